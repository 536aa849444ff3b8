package audit

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
)

// Shape is one physical layout of the event log table the sink knows how to
// write. Columns are inserted in order; every column must be produced by
// Event.values.
type Shape struct {
	Name    string
	Columns []string
}

// Shapes of system_event_log, richest first.
var (
	ShapeFull = Shape{
		Name: "full",
		Columns: []string{
			"event_time", "user_id", "event_type", "table_name", "related_module", "record_id",
			"field_name", "old_value", "new_value", "description", "source_ip", "device_info",
			"session_id", "severity", "digital_signature_id", "digital_signature",
		},
	}
	ShapeHashOnly = Shape{
		Name: "hash_only",
		Columns: []string{
			"event_time", "user_id", "event_type", "table_name", "related_module", "record_id",
			"description", "source_ip", "device_info", "session_id", "severity", "digital_signature",
		},
	}
	ShapeMinimal = Shape{
		Name: "minimal",
		Columns: []string{
			"user_id", "event_type", "table_name", "related_module", "record_id",
			"description", "source_ip", "severity",
		},
	}
)

// DefaultShapes is the negotiation order used by NewSink.
func DefaultShapes() []Shape {
	return []Shape{ShapeFull, ShapeHashOnly, ShapeMinimal}
}

// ShapesByName resolves configured shape names, keeping their order.
func ShapesByName(names []string) ([]Shape, error) {
	known := map[string]Shape{}
	for _, shape := range DefaultShapes() {
		known[shape.Name] = shape
	}

	out := make([]Shape, 0, len(names))
	for _, name := range names {
		shape, ok := known[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("audit: unknown shape %q", name)
		}
		out = append(out, shape)
	}
	return out, nil
}

// IsSchemaMismatch reports whether err means the deployed table lacks a
// column or the table itself. Only these errors move negotiation to the next
// narrower shape.
func IsSchemaMismatch(err error) bool {
	if err == nil {
		return false
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr != nil {
		return myErr.Number == 1054 || myErr.Number == 1146
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr != nil {
		return pgErr.Code == "42703" || pgErr.Code == "42P01"
	}

	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "no such column") ||
		strings.Contains(lower, "no such table") ||
		strings.Contains(lower, "has no column named")
}
