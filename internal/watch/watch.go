// Package watch opens and renews calendar push channels.
package watch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"studiosync/internal/gcal"
	appLog "studiosync/internal/log"
	"studiosync/internal/model"
	"studiosync/internal/store"
)

// API is the calendar side of push channels.
type API interface {
	Watch(ctx context.Context, calendarID string, req gcal.WatchRequest) (model.Channel, error)
	Stop(ctx context.Context, ch model.Channel) error
}

// Store keeps the channel registry.
type Store interface {
	SaveChannel(ctx context.Context, ch model.Channel) error
	LatestChannel(ctx context.Context, streamID string) (model.Channel, error)
	DeleteChannel(ctx context.Context, id string) error
}

// Options configures new channels.
type Options struct {
	// Address is the public URL of the webhook endpoint.
	Address string
	Token   string
	TTL     time.Duration
	// RenewBefore renews channels expiring within this window.
	RenewBefore time.Duration
}

// Manager keeps one live channel per calendar.
type Manager struct {
	api   API
	store Store
	opts  Options
	now   func() time.Time
}

// NewManager returns a Manager; TTL defaults to 7 days and RenewBefore to 2.
func NewManager(api API, s Store, opts Options) *Manager {
	if opts.TTL <= 0 {
		opts.TTL = 7 * 24 * time.Hour
	}
	if opts.RenewBefore <= 0 {
		opts.RenewBefore = 48 * time.Hour
	}
	return &Manager{api: api, store: s, opts: opts, now: time.Now}
}

// Setup opens a new channel for calendarID and records it.
func (m *Manager) Setup(ctx context.Context, calendarID string) (model.Channel, error) {
	if m.opts.Address == "" {
		return model.Channel{}, errors.New("watch: webhook address is not configured")
	}
	ch, err := m.api.Watch(ctx, calendarID, gcal.WatchRequest{
		ChannelID: uuid.NewString(),
		Address:   m.opts.Address,
		Token:     m.opts.Token,
		TTL:       m.opts.TTL,
	})
	if err != nil {
		return model.Channel{}, err
	}
	if ch.CreatedAt.IsZero() {
		ch.CreatedAt = m.now().UTC()
	}
	if err := m.store.SaveChannel(ctx, ch); err != nil {
		return model.Channel{}, err
	}
	appLog.Info("watch channel opened", "calendar", calendarID, "channel", ch.ID, "expires", ch.Expiration)
	return ch, nil
}

// Renew replaces the channel of calendarID when it is missing or expires
// within RenewBefore. The replaced channel is stopped on a best-effort
// basis. It reports whether a new channel was opened.
func (m *Manager) Renew(ctx context.Context, calendarID string) (bool, error) {
	old, err := m.store.LatestChannel(ctx, calendarID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		_, err := m.Setup(ctx, calendarID)
		return err == nil, err
	case err != nil:
		return false, err
	}

	left := old.Expiration.Sub(m.now())
	if left > m.opts.RenewBefore {
		appLog.Debug("watch channel still valid", "calendar", calendarID, "channel", old.ID, "left", left.String())
		return false, nil
	}

	if _, err := m.Setup(ctx, calendarID); err != nil {
		return false, fmt.Errorf("renew channel of %s: %w", calendarID, err)
	}
	if err := m.api.Stop(ctx, old); err != nil {
		appLog.Warn("old channel stop failed", "channel", old.ID, "err", err.Error())
	}
	if err := m.store.DeleteChannel(ctx, old.ID); err != nil {
		return true, err
	}
	return true, nil
}
