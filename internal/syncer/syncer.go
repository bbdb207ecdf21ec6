// Package syncer holds the incremental and full sync engines that turn
// calendar events into stored records.
//
// Both engines fetch every page and queue the mapped writes before touching
// the store, so a listing that fails part way writes nothing. The queue is
// then committed in bounded batches. They are not safe for concurrent runs of the same
// stream; the caller serializes runs.
package syncer

import (
	"context"
	"time"

	"studiosync/internal/calendar"
	"studiosync/internal/mapper"
	"studiosync/internal/model"
	"studiosync/internal/store"
)

// ErrorSyncTokenInvalid is the Result.Error of an incremental run whose
// checkpoint was rejected by the calendar source.
const ErrorSyncTokenInvalid = "SYNC_TOKEN_INVALID"

const (
	DefaultIncrementalBatch = 500
	DefaultFullBatch        = 100
	DefaultPageSize         = 2500
)

// Store is the persistence the engines write through.
type Store interface {
	CommitBatch(ctx context.Context, muts []store.Mutation) error
	LoadCheckpoint(ctx context.Context, streamID string) (model.Checkpoint, error)
	SaveCheckpoint(ctx context.Context, cp model.Checkpoint) error
}

// Mapper turns one event into a record, a deletion or nothing.
type Mapper interface {
	Map(ev model.Event) mapper.Result
}

// Stream is one calendar synced into the store. Its checkpoint is keyed by
// CalendarID.
type Stream struct {
	CalendarID string
	Mapper     Mapper
}

// Options tunes an engine. Zero values take the defaults.
type Options struct {
	// BatchSize bounds the mutations of one committed batch.
	BatchSize int
	// PageSize is the maxResults of full listings.
	PageSize int
	// RangeStart and RangeEnd bound listings made without a sync token.
	RangeStart time.Time
	RangeEnd   time.Time
	// PurgeUnmapped deletes the stored record of an event that no longer
	// maps to anything.
	PurgeUnmapped bool
	// OnBatch is called after every committed batch with its size.
	OnBatch func(size int)
}

// DefaultRange is the bounded window of full listings.
func DefaultRange() (time.Time, time.Time) {
	return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2030, 12, 31, 0, 0, 0, 0, time.UTC)
}

func (o Options) withDefaults(batch int) Options {
	if o.BatchSize <= 0 {
		o.BatchSize = batch
	}
	if o.PageSize <= 0 {
		o.PageSize = DefaultPageSize
	}
	if o.RangeStart.IsZero() || o.RangeEnd.IsZero() {
		o.RangeStart, o.RangeEnd = DefaultRange()
	}
	return o
}

// batchWriter queues mutations in memory. Nothing reaches the store until
// commit, which writes the queue in groups of at most bound.
type batchWriter struct {
	store   Store
	bound   int
	onBatch func(int)
	pending []store.Mutation
	batches []int
}

func newBatchWriter(s Store, bound int, onBatch func(int)) *batchWriter {
	return &batchWriter{store: s, bound: bound, onBatch: onBatch}
}

func (w *batchWriter) set(rec model.Record) {
	w.pending = append(w.pending, store.SetMutation(rec))
}

func (w *batchWriter) delete(id string) {
	w.pending = append(w.pending, store.DeleteMutation(id))
}

// commit writes every queued mutation. Each group is committed atomically;
// a failing group stops the commit and is returned.
func (w *batchWriter) commit(ctx context.Context) error {
	for len(w.pending) > 0 {
		n := min(w.bound, len(w.pending))
		if err := w.store.CommitBatch(ctx, w.pending[:n]); err != nil {
			return err
		}
		w.pending = w.pending[n:]
		w.batches = append(w.batches, n)
		if w.onBatch != nil {
			w.onBatch(n)
		}
	}
	w.pending = nil
	return nil
}

// listAll pages through every event matching q.
func listAll(ctx context.Context, src calendar.Source, calendarID string, q calendar.ListQuery) ([]model.Event, string, error) {
	var (
		events    []model.Event
		syncToken string
	)
	for {
		page, err := src.ListEvents(ctx, calendarID, q)
		if err != nil {
			return nil, "", err
		}
		events = append(events, page.Items...)
		if page.NextPageToken == "" {
			syncToken = page.NextSyncToken
			break
		}
		q.PageToken = page.NextPageToken
	}
	return events, syncToken, nil
}
