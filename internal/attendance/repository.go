package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paddle-club/backend/internal/models"
)

// UpdateFunc receives the current record (nil when none exists) and returns the
// record to write, or nil to leave the store untouched. It may run more than once.
type UpdateFunc func(current *models.AttendanceRecord) (*models.AttendanceRecord, error)

const attendanceColumns = `event_id, emails, count, last_updated, calendar_update_status, error_message`

// errNoWrite rolls back a placeholder row when the update function declines to write.
var errNoWrite = errors.New("no write")

// Repository persists attendance records in the attendance collection.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an attendance repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Update runs fn as an atomic read-modify-write on the record for eventID and
// returns the written record, or nil when fn declined to write.
//
// The row is created empty if missing and then locked with FOR UPDATE, so writers
// for the same event serialize on that row, including the very first two.
// Writers for different events never touch the same row.
func (r *Repository) Update(ctx context.Context, eventID string, fn UpdateFunc) (*models.AttendanceRecord, error) {
	var written *models.AttendanceRecord
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `INSERT INTO attendance (event_id) VALUES ($1) ON CONFLICT (event_id) DO NOTHING`, eventID)
		if err != nil {
			return fmt.Errorf("ensure attendance row: %w", err)
		}
		created := tag.RowsAffected() == 1

		q := `SELECT ` + attendanceColumns + ` FROM attendance WHERE event_id = $1 FOR UPDATE`
		current, err := scanAttendance(tx.QueryRow(ctx, q, eventID))
		if err != nil {
			return err
		}
		if created {
			current = nil
		}

		next, err := fn(current)
		if err != nil {
			return err
		}
		if next == nil {
			if created {
				return errNoWrite
			}
			return nil
		}

		next.EventID = eventID
		next.Count = len(next.Emails)
		const upd = `UPDATE attendance
			SET emails = $2, count = $3, last_updated = $4, calendar_update_status = '', error_message = ''
			WHERE event_id = $1`
		if _, err := tx.Exec(ctx, upd, eventID, next.Emails, next.Count, next.LastUpdated); err != nil {
			return fmt.Errorf("write attendance: %w", err)
		}
		next.CalendarUpdateStatus = models.CalendarUnset
		next.ErrorMessage = ""
		written = next
		return nil
	})
	if errors.Is(err, errNoWrite) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return written, nil
}

// Get returns the record for eventID, or models.ErrNotFound.
func (r *Repository) Get(ctx context.Context, eventID string) (*models.AttendanceRecord, error) {
	q := `SELECT ` + attendanceColumns + ` FROM attendance WHERE event_id = $1`
	return scanAttendance(r.pool.QueryRow(ctx, q, eventID))
}

// List returns every attendance record.
func (r *Repository) List(ctx context.Context) ([]models.AttendanceRecord, error) {
	return r.query(ctx, `SELECT `+attendanceColumns+` FROM attendance ORDER BY event_id`)
}

// ListUnsynced returns records last written before olderThan that no calendar sync has resolved.
func (r *Repository) ListUnsynced(ctx context.Context, olderThan time.Time, limit int) ([]models.AttendanceRecord, error) {
	return r.query(ctx, `SELECT `+attendanceColumns+` FROM attendance
		WHERE calendar_update_status = '' AND count > 0 AND last_updated < $1
		ORDER BY last_updated LIMIT $2`, olderThan, limit)
}

// SetCalendarStatus records a sync outcome, but only if the record has not been
// written since the sync read it (lastUpdated == seen). Reports whether it was applied.
func (r *Repository) SetCalendarStatus(ctx context.Context, eventID string, seen time.Time, status models.CalendarUpdateStatus, errMsg string) (bool, error) {
	const q = `UPDATE attendance SET calendar_update_status = $3, error_message = $4
		WHERE event_id = $1 AND last_updated = $2`
	tag, err := r.pool.Exec(ctx, q, eventID, seen, status, errMsg)
	if err != nil {
		return false, fmt.Errorf("set calendar status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) query(ctx context.Context, q string, args ...interface{}) ([]models.AttendanceRecord, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query attendance: %w", err)
	}
	defer rows.Close()
	var list []models.AttendanceRecord
	for rows.Next() {
		rec, err := scanAttendance(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *rec)
	}
	return list, rows.Err()
}

func scanAttendance(row pgx.Row) (*models.AttendanceRecord, error) {
	var rec models.AttendanceRecord
	err := row.Scan(&rec.EventID, &rec.Emails, &rec.Count, &rec.LastUpdated, &rec.CalendarUpdateStatus, &rec.ErrorMessage)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan attendance: %w", err)
	}
	return &rec, nil
}
