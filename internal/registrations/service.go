package registrations

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/paddle-club/backend/internal/models"
)

// Store is the registrations collection as seen by intake.
type Store interface {
	Create(ctx context.Context, reg *models.Registration) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Registration, error)
}

// Triggers fires the registration-created trigger.
type Triggers interface {
	EnqueueRegistrationCreated(ctx context.Context, registrationID uuid.UUID) error
}

// SubmitInput is one registration submission.
type SubmitInput struct {
	Name          string
	Email         string
	EventID       string
	SessionUserID string
}

// Service accepts registration submissions.
type Service struct {
	store    Store
	triggers Triggers
	logger   *zap.Logger
}

// NewService creates the intake service.
func NewService(store Store, triggers Triggers, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, triggers: triggers, logger: logger}
}

// Submit stores a PENDING registration and fires its trigger. Missing fields are
// stored as given; the ledger resolves them to SKIPPED_MISSING_DATA.
// A trigger that cannot be enqueued leaves the registration PENDING for the sweeper.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (uuid.UUID, error) {
	reg := &models.Registration{
		Name:            in.Name,
		Email:           in.Email,
		SelectedEventID: in.EventID,
		SessionUserID:   in.SessionUserID,
	}
	if err := s.store.Create(ctx, reg); err != nil {
		return uuid.Nil, err
	}
	if err := s.triggers.EnqueueRegistrationCreated(ctx, reg.ID); err != nil {
		s.logger.Error("enqueue registration trigger failed",
			zap.Error(err), zap.String("registration_id", reg.ID.String()))
	}
	s.logger.Info("registration submitted",
		zap.String("registration_id", reg.ID.String()),
		zap.String("event_id", reg.SelectedEventID),
		zap.String("session_user_id", reg.SessionUserID))
	return reg.ID, nil
}

// Get returns a registration by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	return s.store.GetByID(ctx, id)
}
