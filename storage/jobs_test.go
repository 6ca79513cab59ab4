package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhacksman/FeedEater-sub001/wire"
)

func sampleJobRunEvent() wire.JobRunEvent {
	return wire.JobRunEvent{
		Module: "kalshi",
		Queue:  "ingest",
		Job:    "poll",
		Trigger: wire.Trigger{
			Type: wire.TriggerSchedule,
		},
	}
}

func TestStartJobRunDuplicateRunIDIsNoop(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	started, err := store.StartJobRun(ctx, "run-1", sampleJobRunEvent(), now)
	require.NoError(t, err)
	assert.True(t, started)

	started, err = store.StartJobRun(ctx, "run-1", sampleJobRunEvent(), now)
	require.NoError(t, err)
	assert.False(t, started, "duplicate runId must not re-create the row")
}

func TestFinishJobRunTransitionsOnce(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	_, err := store.StartJobRun(ctx, "run-1", sampleJobRunEvent(), now)
	require.NoError(t, err)

	require.NoError(t, store.FinishJobRun(ctx, "run-1", nil, map[string]interface{}{"rows": 3}, now.Add(time.Second)))

	// Finishing again must be a no-op (WHERE status = 'running' no longer matches).
	require.NoError(t, store.FinishJobRun(ctx, "run-1", errors.New("late failure"), nil, now.Add(2*time.Second)))
}

func TestUpdateJobStateMonotonicSuccessAndError(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	t0 := time.Now()

	require.NoError(t, store.UpdateJobState(ctx, "kalshi", "poll", nil, map[string]interface{}{"n": 1}, t0))
	st, err := store.GetJobState(ctx, "kalshi", "poll")
	require.NoError(t, err)
	require.NotNil(t, st.LastSuccessAt)
	assert.Nil(t, st.LastErrorAt)
	assert.Empty(t, st.LastError)

	t1 := t0.Add(time.Minute)
	require.NoError(t, store.UpdateJobState(ctx, "kalshi", "poll", errors.New("boom"), nil, t1))
	st, err = store.GetJobState(ctx, "kalshi", "poll")
	require.NoError(t, err)
	require.NotNil(t, st.LastErrorAt)
	assert.Equal(t, "boom", st.LastError)
	// last_success_at from the prior success must survive the error update.
	require.NotNil(t, st.LastSuccessAt)
}

func TestGetJobStateNotFound(t *testing.T) {
	store := openTestStore(t)
	_, err := store.GetJobState(context.Background(), "kalshi", "missing")
	require.ErrorIs(t, err, ErrNotFound)
}
