package registrations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paddle-club/backend/internal/models"
)

const registrationColumns = `id, name, email, selected_event_id, session_user_id, attendance_status, error_message, processed_at, created_at`

// Repository persists registrations in the registrations collection.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a registrations repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts reg with a generated id and PENDING status.
func (r *Repository) Create(ctx context.Context, reg *models.Registration) error {
	if reg.ID == uuid.Nil {
		reg.ID = uuid.New()
	}
	reg.AttendanceStatus = models.StatusPending
	const q = `INSERT INTO registrations (id, name, email, selected_event_id, session_user_id, attendance_status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`
	err := r.pool.QueryRow(ctx, q, reg.ID, reg.Name, reg.Email, reg.SelectedEventID, reg.SessionUserID, reg.AttendanceStatus).
		Scan(&reg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert registration: %w", err)
	}
	return nil
}

// GetByID returns a registration by id, or models.ErrNotFound.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	q := `SELECT ` + registrationColumns + ` FROM registrations WHERE id = $1`
	reg, err := scanRegistration(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		return nil, err
	}
	return reg, nil
}

// SetStatus moves a PENDING registration to a terminal status. A registration that
// already left PENDING is returned unchanged with changed=false.
func (r *Repository) SetStatus(ctx context.Context, id uuid.UUID, status models.AttendanceStatus, errMsg string) (*models.Registration, bool, error) {
	q := `UPDATE registrations
		SET attendance_status = $2, error_message = $3, processed_at = NOW()
		WHERE id = $1 AND attendance_status = 'PENDING'
		RETURNING ` + registrationColumns
	reg, err := scanRegistration(r.pool.QueryRow(ctx, q, id, status, errMsg))
	if err == nil {
		return reg, true, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, false, err
	}
	reg, err = r.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return reg, false, nil
}

// ListPending returns registrations still PENDING that were created before olderThan.
func (r *Repository) ListPending(ctx context.Context, olderThan time.Time, limit int) ([]models.Registration, error) {
	q := `SELECT ` + registrationColumns + ` FROM registrations
		WHERE attendance_status = 'PENDING' AND created_at < $1
		ORDER BY created_at LIMIT $2`
	rows, err := r.pool.Query(ctx, q, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending registrations: %w", err)
	}
	defer rows.Close()
	var list []models.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *reg)
	}
	return list, rows.Err()
}

func scanRegistration(row pgx.Row) (*models.Registration, error) {
	var reg models.Registration
	err := row.Scan(&reg.ID, &reg.Name, &reg.Email, &reg.SelectedEventID, &reg.SessionUserID,
		&reg.AttendanceStatus, &reg.ErrorMessage, &reg.ProcessedAt, &reg.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan registration: %w", err)
	}
	return &reg, nil
}
