package syncer

import (
	"context"
	"errors"
	"fmt"
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

// fakeSource serves pre-built pages in order and records every query.
type fakeSource struct {
	pages   []*calendar.Page
	errAt   int
	err     error
	queries []calendar.ListQuery
}

func (f *fakeSource) ListEvents(_ context.Context, _ string, q calendar.ListQuery) (*calendar.Page, error) {
	i := len(f.queries)
	f.queries = append(f.queries, q)
	if f.err != nil && i == f.errAt {
		return nil, f.err
	}
	if i >= len(f.pages) {
		return nil, errors.New("no more pages")
	}
	return f.pages[i], nil
}

type fakeStore struct {
	mu          sync.Mutex
	batches     [][]store.Mutation
	checkpoints map[string]model.Checkpoint
	saves       int
	commitErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{checkpoints: map[string]model.Checkpoint{}}
}

func (f *fakeStore) CommitBatch(_ context.Context, muts []store.Mutation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.commitErr != nil {
		return f.commitErr
	}
	f.batches = append(f.batches, append([]store.Mutation(nil), muts...))
	return nil
}

func (f *fakeStore) LoadCheckpoint(_ context.Context, id string) (model.Checkpoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp, ok := f.checkpoints[id]
	if !ok {
		return model.Checkpoint{StreamID: id}, nil
	}
	return cp, nil
}

func (f *fakeStore) SaveCheckpoint(_ context.Context, cp model.Checkpoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	f.checkpoints[cp.StreamID] = cp
	return nil
}

func (f *fakeStore) batchSizes() []int {
	out := make([]int, len(f.batches))
	for i, b := range f.batches {
		out[i] = len(b)
	}
	return out
}

func (f *fakeStore) writes() int {
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

// recordMapper maps every event to a bare record.
type recordMapper struct{}

func (recordMapper) Map(ev model.Event) mapper.Result {
	return mapper.Result{Record: &model.Record{ID: ev.ID}}
}

func events(prefix string, n int) []model.Event {
	out := make([]model.Event, n)
	for i := range out {
		out[i] = model.Event{ID: fmt.Sprintf("%s-%d", prefix, i), Status: model.StatusConfirmed}
	}
	return out
}

func TestIncrementalBatchChunking(t *testing.T) {
	src := &fakeSource{pages: []*calendar.Page{
		{Items: events("a", 400), NextPageToken: "p2"},
		{Items: events("b", 400), NextPageToken: "p3"},
		{Items: events("c", 401), NextSyncToken: "next"},
	}}
	st := newFakeStore()
	st.checkpoints["studio"] = model.Checkpoint{StreamID: "studio", SyncToken: "prev"}

	var seen []int
	eng := NewIncremental(src, st, Options{OnBatch: func(n int) { seen = append(seen, n) }})
	res, err := eng.Run(context.Background(), Stream{CalendarID: "studio", Mapper: recordMapper{}})
	require.NoError(t, err)

	assert.Equal(t, []int{500, 500, 201}, st.batchSizes())
	assert.Equal(t, []int{500, 500, 201}, seen)
	assert.Equal(t, IncrementalResult{Success: true, UpdateCount: 1201, SyncToken: "next"}, res)
	assert.Equal(t, "next", st.checkpoints["studio"].SyncToken)
}

func TestIncrementalTokenOnlyOnFirstPage(t *testing.T) {
	src := &fakeSource{pages: []*calendar.Page{
		{Items: events("a", 1), NextPageToken: "p2"},
		{Items: events("b", 1), NextSyncToken: "next"},
	}}
	st := newFakeStore()
	st.checkpoints["studio"] = model.Checkpoint{StreamID: "studio", SyncToken: "prev"}

	_, err := NewIncremental(src, st, Options{}).Run(context.Background(), Stream{CalendarID: "studio", Mapper: recordMapper{}})
	require.NoError(t, err)

	require.Len(t, src.queries, 2)
	assert.Equal(t, "prev", src.queries[0].SyncToken)
	assert.Empty(t, src.queries[0].PageToken)
	assert.True(t, src.queries[0].TimeMin.IsZero())
	assert.True(t, src.queries[0].ShowDeleted)
	assert.True(t, src.queries[0].SingleEvents)

	assert.Empty(t, src.queries[1].SyncToken)
	assert.Equal(t, "p2", src.queries[1].PageToken)
}

func TestIncrementalWithoutCheckpointListsRange(t *testing.T) {
	src := &fakeSource{pages: []*calendar.Page{{NextSyncToken: "first"}}}
	st := newFakeStore()

	res, err := NewIncremental(src, st, Options{}).Run(context.Background(), Stream{CalendarID: "studio", Mapper: recordMapper{}})
	require.NoError(t, err)

	start, end := DefaultRange()
	assert.True(t, src.queries[0].TimeMin.Equal(start))
	assert.True(t, src.queries[0].TimeMax.Equal(end))
	assert.Equal(t, "first", res.SyncToken)
	assert.Equal(t, "first", st.checkpoints["studio"].SyncToken)
}

func TestIncrementalTokenExpired(t *testing.T) {
	src := &fakeSource{err: fmt.Errorf("%w: 410 Gone", calendar.ErrSyncTokenExpired)}
	st := newFakeStore()
	st.checkpoints["studio"] = model.Checkpoint{StreamID: "studio", SyncToken: "stale"}

	res, err := NewIncremental(src, st, Options{}).Run(context.Background(), Stream{CalendarID: "studio", Mapper: recordMapper{}})
	require.NoError(t, err)

	assert.Equal(t, IncrementalResult{Success: false, Error: "SYNC_TOKEN_INVALID"}, res)
	assert.True(t, res.TokenInvalid())
	assert.Zero(t, st.writes())
	assert.Zero(t, st.saves)
	assert.Equal(t, "stale", st.checkpoints["studio"].SyncToken)
}

func TestIncrementalTransportErrorKeepsCheckpoint(t *testing.T) {
	src := &fakeSource{
		pages: []*calendar.Page{{Items: events("a", 3), NextPageToken: "p2"}},
		errAt: 1,
		err:   errors.New("connection reset"),
	}
	st := newFakeStore()
	st.checkpoints["studio"] = model.Checkpoint{StreamID: "studio", SyncToken: "prev"}

	_, err := NewIncremental(src, st, Options{}).Run(context.Background(), Stream{CalendarID: "studio", Mapper: recordMapper{}})
	require.Error(t, err)
	assert.Zero(t, st.writes())
	assert.Zero(t, st.saves)
}

func TestIncrementalLaterPageFailureWritesNothing(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantError bool
	}{
		{name: "expired token", err: fmt.Errorf("%w: 410 Gone", calendar.ErrSyncTokenExpired)},
		{name: "transport", err: errors.New("connection reset"), wantError: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSource{
				pages: []*calendar.Page{{Items: events("a", 600), NextPageToken: "p2"}},
				errAt: 1,
				err:   tt.err,
			}
			st := newFakeStore()
			st.checkpoints["studio"] = model.Checkpoint{StreamID: "studio", SyncToken: "prev"}

			res, err := NewIncremental(src, st, Options{}).Run(context.Background(), Stream{CalendarID: "studio", Mapper: recordMapper{}})
			if tt.wantError {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.True(t, res.TokenInvalid())
				assert.Zero(t, res.UpdateCount)
			}
			assert.Zero(t, st.writes())
			assert.Zero(t, st.saves)
			assert.Equal(t, "prev", st.checkpoints["studio"].SyncToken)
		})
	}
}

func TestFullSkipsEventsWithoutID(t *testing.T) {
	src := &fakeSource{pages: []*calendar.Page{{Items: []model.Event{
		{ID: "", Status: model.StatusCancelled},
		{ID: "a", Status: model.StatusConfirmed},
	}, NextSyncToken: "t"}}}
	st := newFakeStore()

	res, err := NewFull(src, st, Options{}).Run(context.Background(), Stream{CalendarID: "studio", Mapper: recordMapper{}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 0, res.Deleted)
	assert.Equal(t, 1, res.Added)
	assert.Equal(t, 1, st.writes())
}

func TestIncrementalStoreErrorPropagates(t *testing.T) {
	src := &fakeSource{pages: []*calendar.Page{{Items: events("a", 2), NextSyncToken: "next"}}}
	st := newFakeStore()
	st.commitErr = errors.New("disk full")

	_, err := NewIncremental(src, st, Options{}).Run(context.Background(), Stream{CalendarID: "studio", Mapper: recordMapper{}})
	require.Error(t, err)
	assert.Zero(t, st.saves)
}

func bookingMapper() *mapper.Mapper {
	m := mapper.New(mapper.FirmGYS, time.UTC)
	m.Now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	return m
}

func fixture() []model.Event {
	start := model.EventTime{DateTime: time.Date(2026, 6, 13, 7, 0, 0, 0, time.UTC)}
	return []model.Event{
		{ID: "booked", Summary: "Ayşe ✅ SA", Description: "Kapora: 500", Start: start, Status: model.StatusConfirmed},
		{ID: "lead", Summary: "REF Zeynep ✅ T", Start: start, Status: model.StatusConfirmed},
		{ID: "postponed", Summary: "Elif ERTELENDİ ✅ SA", Description: "Kapora: 500", Start: start, Status: model.StatusConfirmed},
		{ID: "gone", Status: model.StatusCancelled},
		{ID: "personal", Summary: "Dişçi", Start: start, Status: model.StatusConfirmed},
		{ID: "nostart", Summary: "Ayşe ✅ SA", Description: "Kapora: 500", Status: model.StatusConfirmed},
	}
}

func TestIncrementalMapsEvents(t *testing.T) {
	src := &fakeSource{pages: []*calendar.Page{{Items: fixture(), NextSyncToken: "next"}}}
	st := newFakeStore()

	res, err := NewIncremental(src, st, Options{}).Run(context.Background(), Stream{CalendarID: "studio", Mapper: bookingMapper()})
	require.NoError(t, err)
	assert.Equal(t, 4, res.UpdateCount)
	assert.Equal(t, 2, res.DeleteCount)

	require.Len(t, st.batches, 1)
	got := map[string]bool{}
	for _, m := range st.batches[0] {
		got[m.ID] = m.IsDelete()
	}
	assert.Equal(t, map[string]bool{"booked": false, "lead": false, "postponed": true, "gone": true}, got)
}

func TestIncrementalPurgeUnmapped(t *testing.T) {
	src := &fakeSource{pages: []*calendar.Page{{Items: fixture(), NextSyncToken: "next"}}}
	st := newFakeStore()

	res, err := NewIncremental(src, st, Options{PurgeUnmapped: true}).Run(context.Background(), Stream{CalendarID: "studio", Mapper: bookingMapper()})
	require.NoError(t, err)
	assert.Equal(t, 4, res.UpdateCount)
	assert.Equal(t, 6, st.writes())
}

func TestFullCompleteness(t *testing.T) {
	evs := fixture()
	src := &fakeSource{pages: []*calendar.Page{
		{Items: evs[:3], NextPageToken: "p2"},
		{Items: evs[3:], NextSyncToken: "fresh"},
	}}
	st := newFakeStore()

	res, err := NewFull(src, st, Options{}).Run(context.Background(), Stream{CalendarID: "studio", Mapper: bookingMapper()})
	require.NoError(t, err)

	assert.Equal(t, FullResult{Success: true, TotalEvents: 6, Added: 2, Deleted: 2, Skipped: 2, SyncToken: "fresh"}, res)
	assert.Equal(t, res.TotalEvents, res.Added+res.Deleted+res.Skipped)
	assert.Zero(t, st.saves)

	start, end := DefaultRange()
	assert.True(t, src.queries[0].TimeMin.Equal(start))
	assert.True(t, src.queries[0].TimeMax.Equal(end))
	assert.Equal(t, DefaultPageSize, src.queries[0].MaxResults)
	assert.Empty(t, src.queries[0].SyncToken)
	assert.Equal(t, "p2", src.queries[1].PageToken)
}

func TestFullBatchBound(t *testing.T) {
	src := &fakeSource{pages: []*calendar.Page{{Items: events("a", 250), NextSyncToken: "fresh"}}}
	st := newFakeStore()

	res, err := NewFull(src, st, Options{}).Run(context.Background(), Stream{CalendarID: "studio", Mapper: recordMapper{}})
	require.NoError(t, err)
	assert.Equal(t, 250, res.Added)
	assert.Equal(t, []int{100, 100, 50}, st.batchSizes())
}

func TestFullListErrorWritesNothing(t *testing.T) {
	src := &fakeSource{
		pages: []*calendar.Page{{Items: events("a", 5), NextPageToken: "p2"}},
		errAt: 1,
		err:   errors.New("boom"),
	}
	st := newFakeStore()

	_, err := NewFull(src, st, Options{}).Run(context.Background(), Stream{CalendarID: "studio", Mapper: recordMapper{}})
	require.Error(t, err)
	assert.Zero(t, st.writes())
}

func TestFullPurgeUnmappedStillCountsSkipped(t *testing.T) {
	src := &fakeSource{pages: []*calendar.Page{{Items: fixture(), NextSyncToken: "fresh"}}}
	st := newFakeStore()

	res, err := NewFull(src, st, Options{PurgeUnmapped: true}).Run(context.Background(), Stream{CalendarID: "studio", Mapper: bookingMapper()})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, 6, st.writes())
}
