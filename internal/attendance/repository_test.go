package attendance_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paddle-club/backend/internal/attendance"
	"github.com/paddle-club/backend/internal/models"
	"github.com/paddle-club/backend/internal/storetest"
)

func newRepository(t *testing.T) *attendance.Repository {
	t.Helper()
	return attendance.NewRepository(storetest.Postgres(t))
}

func newEventID() string {
	return "evt-" + uuid.NewString()
}

// addEmail appends email to the current list, stamped with at.
func addEmail(email string, at time.Time) attendance.UpdateFunc {
	return func(cur *models.AttendanceRecord) (*models.AttendanceRecord, error) {
		next := &models.AttendanceRecord{LastUpdated: at}
		if cur != nil {
			next.Emails = append(next.Emails, cur.Emails...)
		}
		next.Emails = append(next.Emails, email)
		return next, nil
	}
}

func TestRepository_ConcurrentUpdatesOnNewEvent(t *testing.T) {
	repo := newRepository(t)
	ctx := context.Background()
	eventID := newEventID()

	const writers = 20
	want := make([]string, writers)
	errs := make([]error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		want[i] = fmt.Sprintf("member%02d@x.com", i)
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = repo.Update(ctx, eventID, addEmail(want[i], time.Now()))
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	rec, err := repo.Get(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, writers, rec.Count)
	assert.ElementsMatch(t, want, rec.Emails)
}

func TestRepository_UpdateSeesCurrentRecord(t *testing.T) {
	repo := newRepository(t)
	ctx := context.Background()
	eventID := newEventID()

	var seen []*models.AttendanceRecord
	for _, email := range []string{"a@x.com", "b@x.com"} {
		email := email
		_, err := repo.Update(ctx, eventID, func(cur *models.AttendanceRecord) (*models.AttendanceRecord, error) {
			seen = append(seen, cur)
			return addEmail(email, time.Now())(cur)
		})
		require.NoError(t, err)
	}

	require.Len(t, seen, 2)
	assert.Nil(t, seen[0], "first writer sees no record")
	require.NotNil(t, seen[1])
	assert.Equal(t, []string{"a@x.com"}, seen[1].Emails)
}

func TestRepository_DeclinedWriteLeavesNoRecord(t *testing.T) {
	repo := newRepository(t)
	ctx := context.Background()
	eventID := newEventID()

	rec, err := repo.Update(ctx, eventID, func(*models.AttendanceRecord) (*models.AttendanceRecord, error) {
		return nil, nil
	})
	require.NoError(t, err)
	assert.Nil(t, rec)

	_, err = repo.Get(ctx, eventID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	// A declined write on an existing record leaves it as it was.
	_, err = repo.Update(ctx, eventID, addEmail("a@x.com", time.Now()))
	require.NoError(t, err)
	rec, err = repo.Update(ctx, eventID, func(*models.AttendanceRecord) (*models.AttendanceRecord, error) {
		return nil, nil
	})
	require.NoError(t, err)
	assert.Nil(t, rec)
	got, err := repo.Get(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a@x.com"}, got.Emails)
}

func TestRepository_UpdateErrorRollsBack(t *testing.T) {
	repo := newRepository(t)
	ctx := context.Background()
	eventID := newEventID()

	_, err := repo.Update(ctx, eventID, func(*models.AttendanceRecord) (*models.AttendanceRecord, error) {
		return nil, assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	_, err = repo.Get(ctx, eventID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestRepository_SetCalendarStatusOnlyForSeenWrite(t *testing.T) {
	repo := newRepository(t)
	ctx := context.Background()
	eventID := newEventID()
	first := time.Now().UTC().Truncate(time.Microsecond)

	rec, err := repo.Update(ctx, eventID, addEmail("a@x.com", first))
	require.NoError(t, err)
	assert.Equal(t, models.CalendarUnset, rec.CalendarUpdateStatus)

	applied, err := repo.SetCalendarStatus(ctx, eventID, first.Add(-time.Second), models.CalendarCompleted, "")
	require.NoError(t, err)
	assert.False(t, applied, "a stale sync is not recorded")

	applied, err = repo.SetCalendarStatus(ctx, eventID, first, models.CalendarCompleted, "")
	require.NoError(t, err)
	assert.True(t, applied)
	got, err := repo.Get(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, models.CalendarCompleted, got.CalendarUpdateStatus)

	// A newer write resets the status and makes the old read stale.
	_, err = repo.Update(ctx, eventID, addEmail("b@x.com", first.Add(time.Second)))
	require.NoError(t, err)
	got, err = repo.Get(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, models.CalendarUnset, got.CalendarUpdateStatus)

	applied, err = repo.SetCalendarStatus(ctx, eventID, first, models.CalendarError, "quota exceeded")
	require.NoError(t, err)
	assert.False(t, applied)
	got, err = repo.Get(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, models.CalendarUnset, got.CalendarUpdateStatus)
	assert.Empty(t, got.ErrorMessage)
}

func TestRepository_ListUnsynced(t *testing.T) {
	repo := newRepository(t)
	ctx := context.Background()
	eventID := newEventID()
	at := time.Now().Add(-time.Hour).UTC().Truncate(time.Microsecond)

	_, err := repo.Update(ctx, eventID, addEmail("a@x.com", at))
	require.NoError(t, err)

	list, err := repo.ListUnsynced(ctx, at.Add(time.Minute), 10000)
	require.NoError(t, err)
	assert.True(t, containsEvent(list, eventID))

	_, err = repo.SetCalendarStatus(ctx, eventID, at, models.CalendarCompleted, "")
	require.NoError(t, err)
	list, err = repo.ListUnsynced(ctx, at.Add(time.Minute), 10000)
	require.NoError(t, err)
	assert.False(t, containsEvent(list, eventID))
}

func containsEvent(list []models.AttendanceRecord, eventID string) bool {
	for _, rec := range list {
		if rec.EventID == eventID {
			return true
		}
	}
	return false
}
