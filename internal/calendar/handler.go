package calendar

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/paddle-club/backend/pkg/response"
)

const (
	defaultListLimit = 25
	maxListLimit     = 250
)

// Handler serves the public upcoming-events listing.
type Handler struct {
	lister     Lister
	calendarID string
	logger     *zap.Logger
}

// NewHandler creates an events handler for calendarID.
func NewHandler(lister Lister, calendarID string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{lister: lister, calendarID: calendarID, logger: logger}
}

// Register mounts the events routes.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/events", h.ListUpcoming)
}

// ListUpcoming handles GET /events?limit=N.
func (h *Handler) ListUpcoming(c *gin.Context) {
	if h.lister == nil {
		response.ServiceUnavailable(c, "calendar not configured")
		return
	}
	limit := defaultListLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			response.BadRequest(c, "invalid limit")
			return
		}
		limit = min(n, maxListLimit)
	}
	events, err := h.lister.ListUpcoming(c.Request.Context(), h.calendarID, time.Now(), limit)
	if err != nil {
		h.logger.Error("list upcoming events failed", zap.Error(err))
		response.ServiceUnavailable(c, "failed to fetch events from calendar")
		return
	}
	response.OK(c, gin.H{"events": events})
}
