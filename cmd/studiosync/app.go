package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"studiosync/internal/calendar"
	"studiosync/internal/classify"
	"studiosync/internal/config"
	"studiosync/internal/gcal"
	"studiosync/internal/ics"
	appLog "studiosync/internal/log"
	"studiosync/internal/mapper"
	"studiosync/internal/runner"
	"studiosync/internal/store"
	"studiosync/internal/syncer"
	"studiosync/internal/title"
	"studiosync/internal/watch"
)

// app is the wired service shared by every command.
type app struct {
	cfg    *config.Config
	loc    *time.Location
	store  *store.Store
	runner *runner.Runner

	// watcher is nil when no calendar is served by the Calendar API.
	watcher *watch.Manager
	// pushable lists the calendars that support push channels.
	pushable []string
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	rangeStart, rangeEnd, err := cfg.Range()
	if err != nil {
		return nil, err
	}

	st, err := store.OpenStore(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, loc: loc, store: st}
	streams, err := a.streams(ctx, rangeStart, rangeEnd)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	a.runner = runner.New(st, streams, runner.Options{
		Incremental: syncer.Options{
			BatchSize:     cfg.Sync.IncrementalBatch,
			PageSize:      cfg.Sync.PageSize,
			RangeStart:    rangeStart,
			RangeEnd:      rangeEnd,
			PurgeUnmapped: cfg.Sync.PurgeUnmapped,
		},
		Full: syncer.Options{
			BatchSize:     cfg.Sync.FullBatch,
			PageSize:      cfg.Sync.PageSize,
			RangeStart:    rangeStart,
			RangeEnd:      rangeEnd,
			PurgeUnmapped: cfg.Sync.PurgeUnmapped,
		},
	})
	return a, nil
}

func (a *app) streams(ctx context.Context, rangeStart, rangeEnd time.Time) ([]runner.Stream, error) {
	members := make([]title.Member, 0, len(a.cfg.Staff))
	for _, s := range a.cfg.Staff {
		members = append(members, title.Member{Name: s.Name, Abbreviations: s.Abbreviations})
	}
	dir := title.DefaultDirectory()
	if len(members) > 0 {
		dir = title.NewDirectory(members)
	}
	markers := classify.NewMarkers(a.cfg.Markers.Postponed, a.cfg.Markers.Reference)

	var (
		google *gcal.Client
		feeds  []ics.Feed
	)
	for _, c := range a.cfg.Calendars {
		switch c.Source {
		case config.SourceGoogle:
			if google != nil {
				continue
			}
			client, err := gcal.New(ctx, a.cfg.GoogleCredentials)
			if err != nil {
				return nil, err
			}
			google = client
		case config.SourceICS:
			feeds = append(feeds, ics.Feed{ID: c.ID, URL: c.URL})
		}
	}
	var feedSource *ics.Calendar
	if len(feeds) > 0 {
		feedSource = ics.NewCalendar(ics.NewFetcher(a.cfg.CacheDir, nil), feeds, a.loc, ics.Window{Start: rangeStart, End: rangeEnd})
	}

	streams := make([]runner.Stream, 0, len(a.cfg.Calendars))
	for _, c := range a.cfg.Calendars {
		var src calendar.Source
		switch c.Source {
		case config.SourceGoogle:
			if err := google.EnsureSubscribed(ctx, c.ID); err != nil {
				appLog.Warn("calendar subscription failed", "calendar", c.ID, "err", err.Error())
			}
			src = google
			a.pushable = append(a.pushable, c.ID)
		case config.SourceICS:
			src = feedSource
		default:
			return nil, fmt.Errorf("calendar %s: unknown source %q", c.ID, c.Source)
		}

		m := mapper.New(c.Firm, a.loc)
		m.Directory = dir
		m.Markers = markers
		streams = append(streams, runner.Stream{ID: c.ID, Firm: c.Firm, Source: src, Mapper: m})
		appLog.Info("calendar configured", "calendar", c.ID, "name", c.Name, "firm", c.Firm, "source", c.Source)
	}

	if google != nil {
		a.watcher = watch.NewManager(google, a.store, watch.Options{
			Address:     a.cfg.Webhook.Address,
			Token:       a.cfg.Webhook.Token,
			TTL:         a.cfg.WebhookTTL(),
			RenewBefore: a.cfg.RenewBefore(),
		})
	}
	return streams, nil
}

// renewAll renews the channel of every push-capable calendar.
func (a *app) renewAll(ctx context.Context) error {
	if a.watcher == nil || a.cfg.Webhook.Address == "" {
		return nil
	}
	var errs []error
	for _, id := range a.pushable {
		if _, err := a.watcher.Renew(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
		}
	}
	err := errors.Join(errs...)
	if err != nil {
		a.runner.RecordError(ctx, "webhookRenewal", err)
	}
	return err
}

func (a *app) Close() error {
	return a.store.Close()
}
