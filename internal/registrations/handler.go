package registrations

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/paddle-club/backend/internal/models"
	"github.com/paddle-club/backend/pkg/response"
)

// SubmitRequest is the body for POST /registrations. Fields are not required
// here: incomplete submissions are stored and resolved by the ledger.
type SubmitRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	SelectedEventID string `json:"selectedEventId"`
	SessionUserID   string `json:"sessionUserId"`
}

// Handler handles registration HTTP endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a registrations handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// Register mounts the registration routes.
func (h *Handler) Register(r gin.IRouter) {
	r.POST("/registrations", h.Submit)
	r.GET("/registrations/:id", h.Get)
}

// Submit handles POST /registrations.
func (h *Handler) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	id, err := h.svc.Submit(c.Request.Context(), SubmitInput{
		Name:          req.Name,
		Email:         req.Email,
		EventID:       req.SelectedEventID,
		SessionUserID: req.SessionUserID,
	})
	if err != nil {
		h.logger.Error("create registration failed", zap.Error(err), zap.String("event_id", req.SelectedEventID))
		response.Internal(c, "failed to register")
		return
	}
	response.Created(c, gin.H{
		"registrationId":   id,
		"attendanceStatus": models.StatusPending,
	})
}

// Get handles GET /registrations/:id.
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid registration id")
		return
	}
	reg, err := h.svc.Get(c.Request.Context(), id)
	if errors.Is(err, models.ErrNotFound) {
		response.NotFound(c, "registration not found")
		return
	}
	if err != nil {
		h.logger.Error("get registration failed", zap.Error(err), zap.String("registration_id", id.String()))
		response.Internal(c, "failed to load registration")
		return
	}
	response.OK(c, reg)
}
