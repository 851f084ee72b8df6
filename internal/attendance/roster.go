package attendance

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/paddle-club/backend/internal/models"
	"github.com/paddle-club/backend/pkg/storage"
)

// ObjectStore is the subset of S3 the roster export uses.
type ObjectStore interface {
	Upload(ctx context.Context, bucket, key, contentType string, body io.Reader) error
	GeneratePresignedDownloadURL(ctx context.Context, bucket, key string, expires time.Duration) (string, error)
	RosterBucket() string
	PresignExpire() time.Duration
}

// RosterExporter writes attendee rosters to object storage.
type RosterExporter struct {
	objects ObjectStore
}

// NewRosterExporter creates a roster exporter.
func NewRosterExporter(objects ObjectStore) *RosterExporter {
	return &RosterExporter{objects: objects}
}

// Export uploads rec as rosters/{event_id}.csv.
func (e *RosterExporter) Export(ctx context.Context, rec *models.AttendanceRecord) error {
	body, err := RosterCSV(rec)
	if err != nil {
		return err
	}
	key := storage.RosterKey(rec.EventID)
	if err := e.objects.Upload(ctx, e.objects.RosterBucket(), key, "text/csv", bytes.NewReader(body)); err != nil {
		return fmt.Errorf("export roster %s: %w", rec.EventID, err)
	}
	return nil
}

// DownloadURL returns a pre-signed link to the roster of eventID.
func (e *RosterExporter) DownloadURL(ctx context.Context, eventID string) (string, time.Duration, error) {
	expires := e.objects.PresignExpire()
	url, err := e.objects.GeneratePresignedDownloadURL(ctx, e.objects.RosterBucket(), storage.RosterKey(eventID), expires)
	if err != nil {
		return "", 0, err
	}
	return url, expires, nil
}

// RosterCSV renders rec as a numbered email list with a header row.
func RosterCSV(rec *models.AttendanceRecord) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"#", "email"}); err != nil {
		return nil, err
	}
	for i, email := range rec.Emails {
		if err := w.Write([]string{strconv.Itoa(i + 1), email}); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("render roster: %w", err)
	}
	return buf.Bytes(), nil
}
