package attendance

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/paddle-club/backend/internal/models"
	"github.com/paddle-club/backend/pkg/response"
)

// Reader is the read side of the attendance collection.
type Reader interface {
	Get(ctx context.Context, eventID string) (*models.AttendanceRecord, error)
	List(ctx context.Context) ([]models.AttendanceRecord, error)
}

// Handler serves attendance reads.
type Handler struct {
	store   Reader
	rosters *RosterExporter // nil when no roster bucket is configured
	logger  *zap.Logger
}

// NewHandler creates an attendance handler.
func NewHandler(store Reader, rosters *RosterExporter, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, rosters: rosters, logger: logger}
}

// Register mounts the attendance routes.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/attendance", h.List)
	r.GET("/attendance/:eventId", h.Get)
	r.GET("/attendance/:eventId/roster", h.Roster)
}

// List handles GET /attendance: event id -> {count, emails}.
func (h *Handler) List(c *gin.Context) {
	list, err := h.store.List(c.Request.Context())
	if err != nil {
		h.logger.Error("list attendance failed", zap.Error(err))
		response.Internal(c, "failed to load attendance")
		return
	}
	out := make(map[string]models.AttendanceSummary, len(list))
	for i := range list {
		out[list[i].EventID] = list[i].Summary()
	}
	response.OK(c, out)
}

// Get handles GET /attendance/:eventId.
func (h *Handler) Get(c *gin.Context) {
	eventID := c.Param("eventId")
	rec, err := h.store.Get(c.Request.Context(), eventID)
	if errors.Is(err, models.ErrNotFound) {
		response.NotFound(c, "no attendance for event")
		return
	}
	if err != nil {
		h.logger.Error("get attendance failed", zap.Error(err), zap.String("event_id", eventID))
		response.Internal(c, "failed to load attendance")
		return
	}
	response.OK(c, rec)
}

// Roster handles GET /attendance/:eventId/roster with a pre-signed download link.
func (h *Handler) Roster(c *gin.Context) {
	if h.rosters == nil {
		response.ServiceUnavailable(c, "roster export not configured")
		return
	}
	eventID := c.Param("eventId")
	if _, err := h.store.Get(c.Request.Context(), eventID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			response.NotFound(c, "no attendance for event")
			return
		}
		response.Internal(c, "failed to load attendance")
		return
	}
	url, expires, err := h.rosters.DownloadURL(c.Request.Context(), eventID)
	if err != nil {
		h.logger.Error("presign roster failed", zap.Error(err), zap.String("event_id", eventID))
		response.Internal(c, "failed to create download link")
		return
	}
	response.OK(c, gin.H{"url": url, "expires_in_seconds": int(expires.Seconds())})
}
