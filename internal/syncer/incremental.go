package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"studiosync/internal/calendar"
	appLog "studiosync/internal/log"
	"studiosync/internal/model"
)

// IncrementalResult is the outcome of an incremental run. A run whose
// checkpoint was rejected has Success false and Error ErrorSyncTokenInvalid.
type IncrementalResult struct {
	Success     bool   `json:"success"`
	UpdateCount int    `json:"updateCount"`
	DeleteCount int    `json:"deleteCount"`
	SyncToken   string `json:"syncToken,omitempty"`
	Error       string `json:"error,omitempty"`
}

// TokenInvalid reports whether the caller must fall back to a full sync.
func (r IncrementalResult) TokenInvalid() bool {
	return r.Error == ErrorSyncTokenInvalid
}

// Incremental applies the changes since a stream's checkpoint.
type Incremental struct {
	source calendar.Source
	store  Store
	opts   Options
	now    func() time.Time
}

// NewIncremental builds the engine; the batch bound defaults to 500.
func NewIncremental(src calendar.Source, s Store, opts Options) *Incremental {
	return &Incremental{
		source: src,
		store:  s,
		opts:   opts.withDefaults(DefaultIncrementalBatch),
		now:    time.Now,
	}
}

// Run fetches every page of changes of stream, writes the mapped results and
// stores the new checkpoint. The checkpoint is sent only with the first page
// request. Errors other than an expired checkpoint abort the run and leave
// the stored checkpoint untouched.
func (e *Incremental) Run(ctx context.Context, stream Stream) (IncrementalResult, error) {
	cp, err := e.store.LoadCheckpoint(ctx, stream.CalendarID)
	if err != nil {
		return IncrementalResult{}, err
	}

	q := calendar.ListQuery{
		SyncToken:    cp.SyncToken,
		SingleEvents: true,
		ShowDeleted:  true,
	}
	if cp.SyncToken == "" {
		q.TimeMin, q.TimeMax = e.opts.RangeStart, e.opts.RangeEnd
	}

	w := newBatchWriter(e.store, e.opts.BatchSize, e.opts.OnBatch)
	var res IncrementalResult

	for {
		page, err := e.source.ListEvents(ctx, stream.CalendarID, q)
		if errors.Is(err, calendar.ErrSyncTokenExpired) {
			appLog.Warn("sync token rejected", "calendar", stream.CalendarID)
			return IncrementalResult{Success: false, Error: ErrorSyncTokenInvalid}, nil
		}
		if err != nil {
			return IncrementalResult{}, fmt.Errorf("list changes of %s: %w", stream.CalendarID, err)
		}

		for _, ev := range page.Items {
			updates, deletes := e.apply(w, stream, ev)
			res.UpdateCount += updates
			res.DeleteCount += deletes
		}

		if page.NextPageToken == "" {
			res.SyncToken = page.NextSyncToken
			break
		}
		q.SyncToken = ""
		q.TimeMin, q.TimeMax = time.Time{}, time.Time{}
		q.PageToken = page.NextPageToken
	}

	if err := w.commit(ctx); err != nil {
		return IncrementalResult{}, err
	}

	if res.SyncToken != "" {
		if err := e.store.SaveCheckpoint(ctx, model.Checkpoint{
			StreamID:  stream.CalendarID,
			SyncToken: res.SyncToken,
			UpdatedAt: e.now().UTC(),
		}); err != nil {
			return IncrementalResult{}, err
		}
	}

	res.Success = true
	appLog.Info("incremental sync done",
		"calendar", stream.CalendarID,
		"updates", res.UpdateCount,
		"deletes", res.DeleteCount,
		"batches", len(w.batches),
	)
	return res, nil
}

// apply queues the writes for one event and returns how many updates and
// deletions it counted.
func (e *Incremental) apply(w *batchWriter, stream Stream, ev model.Event) (updates, deletes int) {
	if ev.ID == "" {
		return 0, 0
	}
	if ev.Cancelled() {
		w.delete(ev.ID)
		return 1, 1
	}

	out := stream.Mapper.Map(ev)
	switch {
	case out.Deletion != nil && out.Deletion.ID != "":
		w.delete(out.Deletion.ID)
		return 1, 1
	case out.Record != nil:
		w.set(*out.Record)
		return 1, 0
	case e.opts.PurgeUnmapped:
		w.delete(ev.ID)
	}
	return 0, 0
}
