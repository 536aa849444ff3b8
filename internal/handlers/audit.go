package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yasgmp/gmpauthz/internal/audit"
	"github.com/yasgmp/gmpauthz/internal/models"
	"github.com/yasgmp/gmpauthz/pkg/errors"
	"github.com/yasgmp/gmpauthz/pkg/response"
)

// EventLister reads the system event log.
type EventLister interface {
	List(ctx context.Context, opts audit.ListOptions) ([]models.SystemEvent, int64, error)
}

type AuditHandler struct {
	events EventLister
}

func NewAuditHandler(events EventLister) (*AuditHandler, error) {
	if events == nil {
		return nil, errors.New("AUDIT_HANDLER", "event lister is required", http.StatusInternalServerError)
	}
	return &AuditHandler{events: events}, nil
}

// GET /api/audit/events
func (h *AuditHandler) List(c *gin.Context) {
	page := parseIntQuery(c, "page", 1)
	if page < 1 {
		page = 1
	}
	perPage := parseIntQuery(c, "per_page", 50)
	if perPage < 1 || perPage > 200 {
		perPage = 50
	}

	filters := audit.Filters{
		EventType: strings.TrimSpace(c.Query("event_type")),
		TableName: strings.TrimSpace(c.Query("table_name")),
		Module:    strings.TrimSpace(c.Query("module")),
	}
	if raw := strings.TrimSpace(c.Query("user_id")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			response.Error(c, errors.NewBadRequest("user_id must be an integer"))
			return
		}
		filters.UserID = &id
	}
	var ok bool
	if filters.Since, ok = parseTimeQuery(c, "since"); !ok {
		return
	}
	if filters.Until, ok = parseTimeQuery(c, "until"); !ok {
		return
	}

	events, total, err := h.events.List(requestContext(c), audit.ListOptions{Page: page, PageSize: perPage, Filters: filters})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, events, response.NewMeta(page, perPage, total))
}
