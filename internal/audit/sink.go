package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/yasgmp/gmpauthz/internal/auditctx"
	"github.com/yasgmp/gmpauthz/pkg/logger"
	"github.com/yasgmp/gmpauthz/pkg/metrics"
)

// Reasons reported on the dropped-events counter.
const (
	DropSchemaMismatch = "schema_mismatch"
	DropStoreError     = "store_error"
	DropCancelled      = "cancelled"
	DropPanic          = "panic"
)

// DefaultTableName is the event log written by the sink.
const DefaultTableName = "system_event_log"

// Sink appends audit events to the event log. Writes are best-effort: the
// sink never returns an error to its caller and reports lost events through
// logs and the dropped-events counter instead.
type Sink struct {
	db     *gorm.DB
	table  string
	shapes []Shape
	now    func() time.Time
	log    *zap.Logger
}

// Option customises a Sink.
type Option func(*Sink)

// WithShapes replaces the negotiation order.
func WithShapes(shapes ...Shape) Option {
	return func(s *Sink) {
		if len(shapes) > 0 {
			s.shapes = append([]Shape(nil), shapes...)
		}
	}
}

// WithTable writes to a table other than system_event_log.
func WithTable(name string) Option {
	return func(s *Sink) {
		if name = strings.TrimSpace(name); name != "" {
			s.table = name
		}
	}
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Sink) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger overrides the diagnostics logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Sink) {
		if log != nil {
			s.log = log
		}
	}
}

// NewSink constructs a Sink using the provided database handle.
func NewSink(db *gorm.DB, opts ...Option) (*Sink, error) {
	if db == nil {
		return nil, errors.New("audit sink: db is required")
	}
	s := &Sink{
		db:     db,
		table:  DefaultTableName,
		shapes: DefaultShapes(),
		now:    time.Now,
		log:    logger.WithModule("audit"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// LogEvent persists ev using the richest shape the deployed table accepts.
func (s *Sink) LogEvent(ctx context.Context, ev Event) {
	if s == nil || s.db == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ev = ev.normalize()

	defer func() {
		if r := recover(); r != nil {
			s.drop(ev, DropPanic, fmt.Errorf("%v", r))
		}
	}()

	values := ev.values(s.now().UTC())
	var lastErr error
	for i, shape := range s.shapes {
		if err := ctx.Err(); err != nil {
			s.drop(ev, DropCancelled, err)
			return
		}

		err := s.insert(ctx, shape, values)
		if err == nil {
			metrics.AuditEventsWritten.WithLabelValues(shape.Name).Inc()
			if i > 0 {
				s.log.Debug("audit event written with reduced shape",
					zap.String("shape", shape.Name),
					zap.String("event_type", ev.EventType),
					zap.NamedError("previous_error", lastErr),
				)
			}
			return
		}

		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			s.drop(ev, DropCancelled, err)
			return
		case !IsSchemaMismatch(err):
			s.drop(ev, DropStoreError, err)
			return
		}
		lastErr = err
	}
	s.drop(ev, DropSchemaMismatch, lastErr)
}

func (s *Sink) insert(ctx context.Context, shape Shape, values map[string]any) error {
	if len(shape.Columns) == 0 {
		return fmt.Errorf("audit shape %q has no columns", shape.Name)
	}
	args := make([]any, len(shape.Columns))
	for i, col := range shape.Columns {
		v, ok := values[col]
		if !ok {
			return fmt.Errorf("audit shape %q: unknown column %q", shape.Name, col)
		}
		args[i] = v
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(args)), ", ")
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", s.table, strings.Join(shape.Columns, ", "), placeholders)
	return s.db.WithContext(ctx).Exec(stmt, args...).Error
}

func (s *Sink) drop(ev Event, reason string, err error) {
	metrics.AuditEventsDropped.WithLabelValues(reason).Inc()
	fields := []zap.Field{
		zap.String("reason", reason),
		zap.String("event_type", ev.EventType),
		zap.String("table_name", ev.TableName),
		zap.String("description", ev.Description),
		zap.Error(err),
	}
	if ev.UserID != nil {
		fields = append(fields, zap.Int64("user_id", *ev.UserID))
	}
	s.log.Warn("audit event dropped", fields...)
}

// LogPermissionChange records an authorization mutation as a
// PERMISSION_<action> event. The event belongs to the target user, or to the
// actor when the change has no target.
func (s *Sink) LogPermissionChange(ctx context.Context, actor auditctx.Actor, change PermissionChange) {
	userID := change.TargetUserID
	if userID == nil {
		userID = actor.UserRef()
	}
	recordID := change.RoleID
	if recordID == nil {
		recordID = change.PermissionID
	}

	s.LogEvent(ctx, Event{
		UserID:      userID,
		EventType:   "PERMISSION_" + change.Action,
		TableName:   "permissions",
		Module:      ModuleRBAC,
		RecordID:    recordID,
		Description: change.description(actor.UserID),
		SourceIP:    actor.IPAddress,
		Severity:    SeverityAudit,
		DeviceInfo:  actor.DeviceInfo,
		SessionID:   actor.SessionID,
	})
}

// LogSystemEvent writes a human-readable trail entry for operator dashboards.
func (s *Sink) LogSystemEvent(ctx context.Context, actor auditctx.Actor, action, details, table string, recordID *int64) {
	s.LogEvent(ctx, Event{
		UserID:      actor.UserRef(),
		EventType:   action,
		TableName:   table,
		Module:      ModuleRBAC,
		RecordID:    recordID,
		Description: details,
		SourceIP:    actor.IPAddress,
		Severity:    DefaultSeverity,
		DeviceInfo:  actor.DeviceInfo,
		SessionID:   actor.SessionID,
	})
}
