package runner

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studiosync/internal/calendar"
	"studiosync/internal/mapper"
	"studiosync/internal/model"
	"studiosync/internal/store"
)

type scriptedSource struct {
	mu      sync.Mutex
	queries []calendar.ListQuery
}

var start = model.EventTime{DateTime: time.Date(2026, 6, 13, 7, 0, 0, 0, time.UTC)}

func (s *scriptedSource) ListEvents(_ context.Context, _ string, q calendar.ListQuery) (*calendar.Page, error) {
	s.mu.Lock()
	s.queries = append(s.queries, q)
	s.mu.Unlock()

	switch q.SyncToken {
	case "stale":
		return nil, calendar.ErrSyncTokenExpired
	case "":
		return &calendar.Page{
			Items: []model.Event{
				{ID: "a", Summary: "Ayşe ✅ SA", Description: "Kapora: 500", Start: start, Status: model.StatusConfirmed},
				{ID: "b", Summary: "Dişçi", Start: start, Status: model.StatusConfirmed},
			},
			NextSyncToken: "t-full",
		}, nil
	default:
		return &calendar.Page{
			Items:         []model.Event{{ID: "a", Status: model.StatusCancelled}},
			NextSyncToken: "t-next",
		}, nil
	}
}

func newTestRunner(t *testing.T) (*Runner, *store.Store, *scriptedSource) {
	t.Helper()
	st, err := store.OpenStore(context.Background(), filepath.Join(t.TempDir(), "runner.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	src := &scriptedSource{}
	r := New(st, []Stream{{
		ID:     "studio",
		Firm:   mapper.FirmGYS,
		Source: src,
		Mapper: mapper.New(mapper.FirmGYS, time.UTC),
	}}, Options{})
	return r, st, src
}

func TestIncrementalWithoutCheckpointRunsFull(t *testing.T) {
	r, st, _ := newTestRunner(t)
	ctx := context.Background()

	reports, err := r.Incremental(ctx, "")
	require.NoError(t, err)
	require.Len(t, reports, 1)

	rep := reports[0]
	assert.True(t, rep.FellBack)
	assert.Equal(t, "full", rep.Kind)
	require.NotNil(t, rep.Full)
	assert.Equal(t, 1, rep.Full.Added)
	assert.Equal(t, 1, rep.Full.Skipped)
	assert.NotEmpty(t, rep.RunID)

	cp, err := st.LoadCheckpoint(ctx, "studio")
	require.NoError(t, err)
	assert.Equal(t, "t-full", cp.SyncToken)

	_, err = st.Record(ctx, "a")
	assert.NoError(t, err)

	status, err := st.LoadStatus(ctx)
	require.NoError(t, err)
	assert.False(t, status.LastSync.IsZero())
	assert.False(t, status.LastFullSync.IsZero())
}

func TestIncrementalUsesCheckpoint(t *testing.T) {
	r, st, src := newTestRunner(t)
	ctx := context.Background()

	_, err := r.Full(ctx, "studio")
	require.NoError(t, err)

	reports, err := r.Incremental(ctx, "studio")
	require.NoError(t, err)
	rep := reports[0]
	assert.False(t, rep.FellBack)
	require.NotNil(t, rep.Incremental)
	assert.Equal(t, 1, rep.Incremental.DeleteCount)
	assert.Equal(t, "t-full", src.queries[len(src.queries)-1].SyncToken)

	cp, err := st.LoadCheckpoint(ctx, "studio")
	require.NoError(t, err)
	assert.Equal(t, "t-next", cp.SyncToken)

	_, err = st.Record(ctx, "a")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestIncrementalFallsBackOnInvalidToken(t *testing.T) {
	r, st, _ := newTestRunner(t)
	ctx := context.Background()
	require.NoError(t, st.SaveCheckpoint(ctx, model.Checkpoint{StreamID: "studio", SyncToken: "stale"}))

	reports, err := r.Incremental(ctx, "studio")
	require.NoError(t, err)
	rep := reports[0]
	assert.True(t, rep.FellBack)
	require.NotNil(t, rep.Incremental)
	assert.True(t, rep.Incremental.TokenInvalid())
	require.NotNil(t, rep.Full)
	assert.Equal(t, 2, rep.Full.TotalEvents)

	cp, err := st.LoadCheckpoint(ctx, "studio")
	require.NoError(t, err)
	assert.Equal(t, "t-full", cp.SyncToken)
}

func TestStreamBusy(t *testing.T) {
	r, _, _ := newTestRunner(t)
	l := &sync.Mutex{}
	l.Lock()
	r.locks["studio"] = l

	reports, err := r.Incremental(context.Background(), "studio")
	assert.ErrorIs(t, err, ErrStreamBusy)
	require.Len(t, reports, 1)
	assert.Equal(t, ErrStreamBusy.Error(), reports[0].Error)
}

func TestUnknownStream(t *testing.T) {
	r, _, _ := newTestRunner(t)
	_, err := r.Full(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownStream)
}

func TestNotify(t *testing.T) {
	r, st, src := newTestRunner(t)
	ctx := context.Background()

	reports, err := r.Notify(ctx, Notification{ChannelID: "c1", State: "sync"})
	require.NoError(t, err)
	assert.Nil(t, reports)
	assert.Empty(t, src.queries)

	require.NoError(t, st.SaveChannel(ctx, model.Channel{ID: "c1", StreamID: "studio", ResourceID: "r1"}))
	reports, err = r.Notify(ctx, Notification{ChannelID: "c1", ResourceID: "r1", State: "exists"})
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "studio", reports[0].Stream)

	status, err := st.LoadStatus(ctx)
	require.NoError(t, err)
	assert.False(t, status.LastWebhook.IsZero())
	assert.Contains(t, status.LastWebhookInfo, "state=exists")
}

func TestCheckStaleness(t *testing.T) {
	r, st, _ := newTestRunner(t)
	ctx := context.Background()
	now := time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	stale, err := r.CheckStaleness(ctx, 48*time.Hour)
	require.NoError(t, err)
	assert.True(t, stale)

	require.NoError(t, st.UpdateStatus(ctx, func(s *model.SyncStatus) { s.LastSync = now.Add(-time.Hour) }))
	stale, err = r.CheckStaleness(ctx, 48*time.Hour)
	require.NoError(t, err)
	assert.False(t, stale)

	status, err := st.LoadStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, "health", status.LastErrorType)
}
