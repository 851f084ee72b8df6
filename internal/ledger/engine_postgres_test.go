package ledger

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paddle-club/backend/internal/attendance"
	"github.com/paddle-club/backend/internal/models"
	"github.com/paddle-club/backend/internal/registrations"
	"github.com/paddle-club/backend/internal/storetest"
)

func TestEngine_PostgresConcurrentRegistrations(t *testing.T) {
	pool := storetest.Postgres(t)
	regs := registrations.NewRepository(pool)
	att := attendance.NewRepository(pool)
	engine := NewEngine(regs, att, storetest.NewQueue(), nil, nil)
	ctx := context.Background()
	eventID := "evt-" + uuid.NewString()

	const players = 15
	ids := make([]uuid.UUID, 0, players+1)
	for i := 0; i < players; i++ {
		reg := &models.Registration{Name: "Player", Email: fmt.Sprintf("p%02d@x.com", i), SelectedEventID: eventID}
		require.NoError(t, regs.Create(ctx, reg))
		ids = append(ids, reg.ID)
	}
	dup := &models.Registration{Name: "Player again", Email: "p00@x.com", SelectedEventID: eventID}
	require.NoError(t, regs.Create(ctx, dup))
	ids = append(ids, dup.ID)

	// Every trigger is delivered twice.
	errs := make([]error, 2*len(ids))
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = engine.Process(ctx, ids[i%len(ids)])
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	rec, err := att.Get(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, players, rec.Count)
	assert.Len(t, rec.Emails, players)

	for _, id := range ids {
		reg, err := regs.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.StatusSuccess, reg.AttendanceStatus)
	}
}
