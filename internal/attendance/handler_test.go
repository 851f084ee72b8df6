package attendance_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/paddle-club/backend/internal/attendance"
	"github.com/paddle-club/backend/internal/models"
	"github.com/paddle-club/backend/internal/storetest"
)

type MockObjectStore struct {
	mock.Mock
}

func (m *MockObjectStore) Upload(ctx context.Context, bucket, key, contentType string, body io.Reader) error {
	data, _ := io.ReadAll(body)
	args := m.Called(ctx, bucket, key, contentType, string(data))
	return args.Error(0)
}

func (m *MockObjectStore) GeneratePresignedDownloadURL(ctx context.Context, bucket, key string, expires time.Duration) (string, error) {
	args := m.Called(ctx, bucket, key, expires)
	return args.String(0), args.Error(1)
}

func (m *MockObjectStore) RosterBucket() string { return "club-rosters" }

func (m *MockObjectStore) PresignExpire() time.Duration { return 15 * time.Minute }

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func serve(h *attendance.Handler, path string) (*httptest.ResponseRecorder, envelope) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h.Register(r)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func seeded() *storetest.Attendance {
	store := storetest.NewAttendance()
	store.Put(models.AttendanceRecord{EventID: "E1", Emails: []string{"a@x.com", "b@x.com"}, Count: 2})
	store.Put(models.AttendanceRecord{EventID: "E2", Emails: []string{"c@x.com"}, Count: 1, CalendarUpdateStatus: models.CalendarCompleted})
	return store
}

func TestList(t *testing.T) {
	w, env := serve(attendance.NewHandler(seeded(), nil, nil), "/attendance")
	require.Equal(t, http.StatusOK, w.Code)

	var got map[string]models.AttendanceSummary
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, map[string]models.AttendanceSummary{
		"E1": {EventID: "E1", Count: 2, Emails: []string{"a@x.com", "b@x.com"}},
		"E2": {EventID: "E2", Count: 1, Emails: []string{"c@x.com"}},
	}, got)
}

func TestGet(t *testing.T) {
	h := attendance.NewHandler(seeded(), nil, nil)

	w, env := serve(h, "/attendance/E2")
	require.Equal(t, http.StatusOK, w.Code)
	var rec models.AttendanceRecord
	require.NoError(t, json.Unmarshal(env.Data, &rec))
	assert.Equal(t, models.CalendarCompleted, rec.CalendarUpdateStatus)

	w, _ = serve(h, "/attendance/E9")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRoster(t *testing.T) {
	objects := new(MockObjectStore)
	objects.On("GeneratePresignedDownloadURL", mock.Anything, "club-rosters", "rosters/E1.csv", 15*time.Minute).
		Return("https://example.test/rosters/E1.csv?sig=1", nil)
	h := attendance.NewHandler(seeded(), attendance.NewRosterExporter(objects), nil)

	w, env := serve(h, "/attendance/E1/roster")
	require.Equal(t, http.StatusOK, w.Code)
	var got struct {
		URL     string `json:"url"`
		Expires int    `json:"expires_in_seconds"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "https://example.test/rosters/E1.csv?sig=1", got.URL)
	assert.Equal(t, 900, got.Expires)
	objects.AssertExpectations(t)
}

func TestRoster_NotConfigured(t *testing.T) {
	w, _ := serve(attendance.NewHandler(seeded(), nil, nil), "/attendance/E1/roster")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRosterExporter_Export(t *testing.T) {
	objects := new(MockObjectStore)
	objects.On("Upload", mock.Anything, "club-rosters", "rosters/E1.csv", "text/csv", "#,email\n1,a@x.com\n2,b@x.com\n").
		Return(nil)

	rec := &models.AttendanceRecord{EventID: "E1", Emails: []string{"a@x.com", "b@x.com"}, Count: 2}
	require.NoError(t, attendance.NewRosterExporter(objects).Export(context.Background(), rec))
	objects.AssertExpectations(t)
}

func TestRosterExporter_ExportError(t *testing.T) {
	objects := new(MockObjectStore)
	objects.On("Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("access denied"))

	err := attendance.NewRosterExporter(objects).Export(context.Background(), &models.AttendanceRecord{EventID: "E1"})
	assert.ErrorContains(t, err, "access denied")
}

func TestRosterCSV_QuotesOddAddresses(t *testing.T) {
	out, err := attendance.RosterCSV(&models.AttendanceRecord{Emails: []string{`"x,y"@x.com`}})
	require.NoError(t, err)
	assert.Equal(t, "#,email\n1,\"\"\"x,y\"\"@x.com\"\n", string(out))
}
