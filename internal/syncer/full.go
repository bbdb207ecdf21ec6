package syncer

import (
	"context"
	"fmt"

	"studiosync/internal/calendar"
	appLog "studiosync/internal/log"
)

// FullResult is the outcome of a full sync. Every fetched event is counted
// in exactly one of Added, Deleted and Skipped.
type FullResult struct {
	Success     bool   `json:"success"`
	TotalEvents int    `json:"totalEvents"`
	Added       int    `json:"added"`
	Deleted     int    `json:"deleted"`
	Skipped     int    `json:"skipped"`
	SyncToken   string `json:"syncToken,omitempty"`
}

// Full rebuilds every record of a stream from a bounded listing.
type Full struct {
	source calendar.Source
	store  Store
	opts   Options
}

// NewFull builds the engine; the batch bound defaults to 100.
func NewFull(src calendar.Source, s Store, opts Options) *Full {
	return &Full{source: src, store: s, opts: opts.withDefaults(DefaultFullBatch)}
}

// Run lists every event of stream inside the configured range, then maps and
// writes all of them. It does not read or write the checkpoint; the returned
// SyncToken is for the caller to adopt.
func (e *Full) Run(ctx context.Context, stream Stream) (FullResult, error) {
	events, token, err := listAll(ctx, e.source, stream.CalendarID, calendar.ListQuery{
		TimeMin:      e.opts.RangeStart,
		TimeMax:      e.opts.RangeEnd,
		SingleEvents: true,
		MaxResults:   e.opts.PageSize,
	})
	if err != nil {
		return FullResult{}, fmt.Errorf("list events of %s: %w", stream.CalendarID, err)
	}
	appLog.Info("full sync fetched", "calendar", stream.CalendarID, "events", len(events))

	w := newBatchWriter(e.store, e.opts.BatchSize, e.opts.OnBatch)
	res := FullResult{TotalEvents: len(events), SyncToken: token}

	for _, ev := range events {
		if ev.ID == "" {
			res.Skipped++
			continue
		}
		if ev.Cancelled() {
			res.Deleted++
			w.delete(ev.ID)
			continue
		}

		out := stream.Mapper.Map(ev)
		switch {
		case out.Deletion != nil:
			res.Deleted++
			w.delete(out.Deletion.ID)
		case out.Record != nil:
			res.Added++
			w.set(*out.Record)
		default:
			res.Skipped++
			if e.opts.PurgeUnmapped {
				w.delete(ev.ID)
			}
		}
	}

	if err := w.commit(ctx); err != nil {
		return FullResult{}, err
	}

	res.Success = true
	appLog.Info("full sync done",
		"calendar", stream.CalendarID,
		"total", res.TotalEvents,
		"added", res.Added,
		"deleted", res.Deleted,
		"skipped", res.Skipped,
	)
	return res, nil
}
