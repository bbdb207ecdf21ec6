// Package runner serializes sync runs per calendar, falls back from
// incremental to full sync and records the outcome of every run.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"studiosync/internal/calendar"
	appLog "studiosync/internal/log"
	"studiosync/internal/metrics"
	"studiosync/internal/model"
	"studiosync/internal/store"
	"studiosync/internal/syncer"
)

var (
	// ErrStreamBusy is returned when a run of the same stream is in flight.
	ErrStreamBusy = errors.New("runner: stream busy")
	// ErrUnknownStream is returned for a calendar id that is not configured.
	ErrUnknownStream = errors.New("runner: unknown stream")
)

// Store is what the runner persists through.
type Store interface {
	syncer.Store
	DeleteCheckpoint(ctx context.Context, streamID string) error
	UpdateStatus(ctx context.Context, fn func(*model.SyncStatus)) error
	LoadStatus(ctx context.Context) (model.SyncStatus, error)
	ChannelByID(ctx context.Context, id string) (model.Channel, error)
}

// Stream is one configured calendar.
type Stream struct {
	ID     string
	Firm   string
	Source calendar.Source
	Mapper syncer.Mapper
}

// Options carries the engine options of both run kinds.
type Options struct {
	Incremental syncer.Options
	Full        syncer.Options
}

// Report is the outcome of one stream's run.
type Report struct {
	RunID       string                    `json:"runId"`
	Stream      string                    `json:"calendar"`
	Kind        string                    `json:"kind"`
	FellBack    bool                      `json:"fellBack,omitempty"`
	Incremental *syncer.IncrementalResult `json:"incremental,omitempty"`
	Full        *syncer.FullResult        `json:"full,omitempty"`
	Error       string                    `json:"error,omitempty"`
}

// Runner drives the sync engines for a fixed set of streams.
type Runner struct {
	store   Store
	streams map[string]Stream
	order   []string
	opts    Options

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	now func() time.Time
}

// New returns a Runner over streams, which run in the given order.
func New(s Store, streams []Stream, opts Options) *Runner {
	r := &Runner{
		store:   s,
		streams: make(map[string]Stream, len(streams)),
		opts:    opts,
		locks:   make(map[string]*sync.Mutex),
		now:     time.Now,
	}
	for _, st := range streams {
		r.streams[st.ID] = st
		r.order = append(r.order, st.ID)
	}
	return r
}

// Streams lists the configured stream ids.
func (r *Runner) Streams() []string {
	return append([]string(nil), r.order...)
}

// Incremental runs an incremental sync of streamID, or of every stream when
// streamID is empty. A stream without a checkpoint, or whose checkpoint is
// rejected, gets a full sync and adopts its token.
func (r *Runner) Incremental(ctx context.Context, streamID string) ([]Report, error) {
	return r.each(ctx, streamID, r.incremental)
}

// Full runs a full sync of streamID, or of every stream when it is empty,
// and adopts the returned tokens.
func (r *Runner) Full(ctx context.Context, streamID string) ([]Report, error) {
	return r.each(ctx, streamID, r.full)
}

func (r *Runner) each(ctx context.Context, streamID string, run func(context.Context, Stream) (Report, error)) ([]Report, error) {
	ids := r.order
	if streamID != "" {
		if _, ok := r.streams[streamID]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownStream, streamID)
		}
		ids = []string{streamID}
	}

	reports := make([]Report, 0, len(ids))
	var errs []error
	for _, id := range ids {
		rep, err := r.locked(ctx, r.streams[id], run)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
		}
		reports = append(reports, rep)
	}
	return reports, errors.Join(errs...)
}

func (r *Runner) locked(ctx context.Context, st Stream, run func(context.Context, Stream) (Report, error)) (Report, error) {
	r.mu.Lock()
	l, ok := r.locks[st.ID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[st.ID] = l
	}
	r.mu.Unlock()

	if !l.TryLock() {
		appLog.Warn("sync skipped, run in progress", "calendar", st.ID)
		return Report{Stream: st.ID, Error: ErrStreamBusy.Error()}, ErrStreamBusy
	}
	defer l.Unlock()
	return run(ctx, st)
}

func (r *Runner) incremental(ctx context.Context, st Stream) (Report, error) {
	rep := Report{RunID: uuid.NewString(), Stream: st.ID, Kind: metrics.KindIncremental}
	started := r.now()

	cp, err := r.store.LoadCheckpoint(ctx, st.ID)
	if err != nil {
		return r.fail(ctx, rep, started, err)
	}
	if cp.SyncToken == "" {
		appLog.Info("no checkpoint, running full sync", "calendar", st.ID, "run", rep.RunID)
		return r.fallback(ctx, rep, st)
	}

	eng := syncer.NewIncremental(st.Source, r.store, r.engineOptions(r.opts.Incremental, st.ID))
	res, err := eng.Run(ctx, r.syncerStream(st))
	if err != nil {
		return r.fail(ctx, rep, started, err)
	}
	rep.Incremental = &res

	if res.TokenInvalid() {
		metrics.TokenInvalid(st.ID)
		if err := r.store.DeleteCheckpoint(ctx, st.ID); err != nil {
			return r.fail(ctx, rep, started, err)
		}
		return r.fallback(ctx, rep, st)
	}

	metrics.ObserveRun(st.ID, metrics.KindIncremental, started, nil)
	metrics.AddWrites(st.ID, res.UpdateCount-res.DeleteCount, res.DeleteCount)
	r.recordSuccess(ctx, rep, func(s *model.SyncStatus) {
		s.LastSync = r.now().UTC()
		s.LastResult = map[string]any{
			"runId":       rep.RunID,
			"calendar":    st.ID,
			"kind":        rep.Kind,
			"updateCount": res.UpdateCount,
			"deleteCount": res.DeleteCount,
		}
	})
	return rep, nil
}

// fallback runs a full sync in place of an incremental one.
func (r *Runner) fallback(ctx context.Context, rep Report, st Stream) (Report, error) {
	full, err := r.full(ctx, st)
	full.RunID = rep.RunID
	full.FellBack = true
	full.Incremental = rep.Incremental
	return full, err
}

func (r *Runner) full(ctx context.Context, st Stream) (Report, error) {
	rep := Report{RunID: uuid.NewString(), Stream: st.ID, Kind: metrics.KindFull}
	started := r.now()

	eng := syncer.NewFull(st.Source, r.store, r.engineOptions(r.opts.Full, st.ID))
	res, err := eng.Run(ctx, r.syncerStream(st))
	if err != nil {
		return r.fail(ctx, rep, started, err)
	}
	rep.Full = &res

	if res.SyncToken != "" {
		if err := r.store.SaveCheckpoint(ctx, model.Checkpoint{
			StreamID:  st.ID,
			SyncToken: res.SyncToken,
			UpdatedAt: r.now().UTC(),
		}); err != nil {
			return r.fail(ctx, rep, started, err)
		}
	}

	metrics.ObserveRun(st.ID, metrics.KindFull, started, nil)
	metrics.AddWrites(st.ID, res.Added, res.Deleted)
	r.recordSuccess(ctx, rep, func(s *model.SyncStatus) {
		now := r.now().UTC()
		s.LastSync = now
		s.LastFullSync = now
		s.LastResult = map[string]any{
			"runId":       rep.RunID,
			"calendar":    st.ID,
			"kind":        rep.Kind,
			"totalEvents": res.TotalEvents,
			"added":       res.Added,
			"deleted":     res.Deleted,
			"skipped":     res.Skipped,
		}
	})
	return rep, nil
}

func (r *Runner) fail(ctx context.Context, rep Report, started time.Time, err error) (Report, error) {
	metrics.ObserveRun(rep.Stream, rep.Kind, started, err)
	appLog.Error("sync failed", err, "calendar", rep.Stream, "kind", rep.Kind, "run", rep.RunID)
	rep.Error = err.Error()
	r.RecordError(ctx, rep.Kind, err)
	return rep, err
}

func (r *Runner) recordSuccess(ctx context.Context, rep Report, fn func(*model.SyncStatus)) {
	if err := r.store.UpdateStatus(ctx, fn); err != nil {
		appLog.Error("status update failed", err, "calendar", rep.Stream, "run", rep.RunID)
	}
}

// RecordError stores err as the last error of the service.
func (r *Runner) RecordError(ctx context.Context, kind string, err error) {
	if uerr := r.store.UpdateStatus(ctx, func(s *model.SyncStatus) {
		s.LastError = r.now().UTC()
		s.LastErrorType = kind
		s.LastErrorMsg = err.Error()
	}); uerr != nil {
		appLog.Error("status update failed", uerr)
	}
}

func (r *Runner) engineOptions(o syncer.Options, streamID string) syncer.Options {
	o.OnBatch = func(int) { metrics.BatchCommitted(streamID) }
	return o
}

func (r *Runner) syncerStream(st Stream) syncer.Stream {
	return syncer.Stream{CalendarID: st.ID, Mapper: st.Mapper}
}

// Status returns the stored run status.
func (r *Runner) Status(ctx context.Context) (model.SyncStatus, error) {
	return r.store.LoadStatus(ctx)
}

// CheckStaleness warns and records an error when no sync finished within
// maxAge. It reports whether the service is stale.
func (r *Runner) CheckStaleness(ctx context.Context, maxAge time.Duration) (bool, error) {
	st, err := r.store.LoadStatus(ctx)
	if err != nil {
		return false, err
	}
	if !st.LastSync.IsZero() && r.now().Sub(st.LastSync) <= maxAge {
		return false, nil
	}
	err = fmt.Errorf("no sync since %s", st.LastSync.Format(time.RFC3339))
	appLog.Warn("sync is stale", "last_sync", st.LastSync, "max_age", maxAge.String())
	r.RecordError(ctx, "health", err)
	return true, nil
}

// Notification is a calendar push notification.
type Notification struct {
	ChannelID  string
	ResourceID string
	State      string
}

// Notify handles a push notification. The "sync" handshake is only
// acknowledged; "exists" runs an incremental sync of the channel's stream,
// or of every stream when the channel is not on record.
func (r *Runner) Notify(ctx context.Context, n Notification) ([]Report, error) {
	metrics.Webhook(n.State)
	if err := r.store.UpdateStatus(ctx, func(s *model.SyncStatus) {
		s.LastWebhook = r.now().UTC()
		s.LastWebhookInfo = fmt.Sprintf("channel=%s resource=%s state=%s", n.ChannelID, n.ResourceID, n.State)
	}); err != nil {
		appLog.Error("status update failed", err)
	}

	if n.State != "exists" {
		appLog.Info("webhook acknowledged", "channel", n.ChannelID, "state", n.State)
		return nil, nil
	}

	streamID := ""
	if ch, err := r.store.ChannelByID(ctx, n.ChannelID); err == nil {
		streamID = ch.StreamID
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if _, ok := r.streams[streamID]; !ok {
		streamID = ""
	}
	return r.Incremental(ctx, streamID)
}
