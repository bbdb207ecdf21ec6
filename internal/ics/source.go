package ics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"studiosync/internal/calendar"
	"studiosync/internal/model"
)

// Calendar serves ICS feeds through the calendar.Source contract.
//
// An ICS feed has no change log, so Calendar emulates one: after every
// listing it stores a fingerprint of each event and hands out a sync token
// naming that snapshot. An incremental listing diffs the current feed against
// the snapshot and reports changed events plus vanished ones as cancelled.
// Only the newest snapshot is kept; any older token is rejected with
// calendar.ErrSyncTokenExpired.
type Calendar struct {
	fetcher *Fetcher
	feeds   map[string]Feed
	loc     *time.Location
	window  Window

	mu sync.Mutex
}

// NewCalendar serves feeds keyed by calendar id. Floating times are read in
// loc; incremental listings expand recurrences inside window.
func NewCalendar(fetcher *Fetcher, feeds []Feed, loc *time.Location, window Window) *Calendar {
	byID := make(map[string]Feed, len(feeds))
	for _, f := range feeds {
		byID[f.ID] = f
	}
	return &Calendar{fetcher: fetcher, feeds: byID, loc: loc, window: window}
}

type snapshot struct {
	Token   string            `json:"token"`
	Entries map[string]string `json:"entries"`
}

// ListEvents returns every matching event in a single page.
func (c *Calendar) ListEvents(ctx context.Context, calendarID string, q calendar.ListQuery) (*calendar.Page, error) {
	feed, ok := c.feeds[calendarID]
	if !ok {
		return nil, fmt.Errorf("ics: unknown calendar %q", calendarID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.fetcher.Fetch(ctx, feed)
	if err != nil {
		return nil, err
	}
	parsed, err := Parse(feed, res.Body, c.loc)
	if err != nil {
		return nil, err
	}

	w := c.window
	if q.SyncToken == "" && !q.TimeMin.IsZero() && !q.TimeMax.IsZero() {
		w.Start, w.End = q.TimeMin, q.TimeMax
	}
	events, err := Expand(parsed, w)
	if err != nil {
		return nil, err
	}

	dir, err := c.fetcher.feedDir(feed)
	if err != nil {
		return nil, err
	}
	next := takeSnapshot(events)

	var items []model.Event
	if q.SyncToken != "" {
		prev, err := loadSnapshot(dir)
		if err != nil || prev.Token != q.SyncToken {
			return nil, calendar.ErrSyncTokenExpired
		}
		items = diff(prev, next, events)
	} else {
		for _, ev := range events {
			if ev.Cancelled() && !q.ShowDeleted {
				continue
			}
			items = append(items, ev)
		}
	}

	if err := saveSnapshot(dir, next); err != nil {
		return nil, fmt.Errorf("ics: save snapshot: %w", err)
	}
	return &calendar.Page{Items: items, NextSyncToken: next.Token}, nil
}

func takeSnapshot(events []model.Event) snapshot {
	s := snapshot{Entries: make(map[string]string, len(events))}
	for _, ev := range events {
		s.Entries[ev.ID] = fingerprint(ev)
	}

	ids := make([]string, 0, len(s.Entries))
	for id := range s.Entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	h := sha256.New()
	for _, id := range ids {
		h.Write([]byte(id))
		h.Write([]byte{0})
		h.Write([]byte(s.Entries[id]))
		h.Write([]byte{0})
	}
	s.Token = hex.EncodeToString(h.Sum(nil)[:16])
	return s
}

func fingerprint(ev model.Event) string {
	data, _ := json.Marshal(ev)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:12])
}

// diff returns events that are new or changed since prev, and a cancelled
// stub for every event that disappeared.
func diff(prev, next snapshot, events []model.Event) []model.Event {
	var out []model.Event
	for _, ev := range events {
		if prev.Entries[ev.ID] != next.Entries[ev.ID] {
			out = append(out, ev)
		}
	}
	gone := make([]string, 0)
	for id := range prev.Entries {
		if _, ok := next.Entries[id]; !ok {
			gone = append(gone, id)
		}
	}
	sort.Strings(gone)
	for _, id := range gone {
		out = append(out, model.Event{ID: id, Status: model.StatusCancelled})
	}
	return out
}

func loadSnapshot(dir string) (snapshot, error) {
	var s snapshot
	data, err := os.ReadFile(filepath.Join(dir, "snapshot.json"))
	if err != nil {
		return s, err
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return snapshot{}, err
	}
	if s.Token == "" {
		return snapshot{}, errors.New("ics: snapshot without token")
	}
	return s, nil
}

func saveSnapshot(dir string, s snapshot) error {
	data, err := json.Marshal(&s)
	if err != nil {
		return err
	}
	tmp := filepath.Join(dir, "snapshot.json.tmp")
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(dir, "snapshot.json"))
}
