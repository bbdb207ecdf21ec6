package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"studiosync/internal/model"
)

// SaveChannel records a push channel.
func (s *Store) SaveChannel(ctx context.Context, ch model.Channel) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO channels (id, stream_id, resource_id, token, expiration, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET resource_id = excluded.resource_id, token = excluded.token, expiration = excluded.expiration`,
		ch.ID, ch.StreamID, ch.ResourceID, ch.Token, formatTime(ch.Expiration), formatTime(ch.CreatedAt))
	if err != nil {
		return fmt.Errorf("save channel %s: %w", ch.ID, err)
	}
	return nil
}

// LatestChannel returns the most recently created channel of streamID.
func (s *Store) LatestChannel(ctx context.Context, streamID string) (model.Channel, error) {
	ch := model.Channel{StreamID: streamID}
	var exp, created string
	err := s.db.QueryRowContext(ctx, `SELECT id, resource_id, token, expiration, created_at FROM channels
		WHERE stream_id = ? ORDER BY created_at DESC LIMIT 1`, streamID,
	).Scan(&ch.ID, &ch.ResourceID, &ch.Token, &exp, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Channel{}, ErrNotFound
	}
	if err != nil {
		return model.Channel{}, fmt.Errorf("load channel of %s: %w", streamID, err)
	}
	ch.Expiration = parseTime(exp)
	ch.CreatedAt = parseTime(created)
	return ch, nil
}

// ChannelByID returns the channel with id.
func (s *Store) ChannelByID(ctx context.Context, id string) (model.Channel, error) {
	ch := model.Channel{ID: id}
	var exp, created string
	err := s.db.QueryRowContext(ctx, `SELECT stream_id, resource_id, token, expiration, created_at FROM channels WHERE id = ?`, id).
		Scan(&ch.StreamID, &ch.ResourceID, &ch.Token, &exp, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Channel{}, ErrNotFound
	}
	if err != nil {
		return model.Channel{}, fmt.Errorf("load channel %s: %w", id, err)
	}
	ch.Expiration = parseTime(exp)
	ch.CreatedAt = parseTime(created)
	return ch, nil
}

// DeleteChannel removes the channel with id.
func (s *Store) DeleteChannel(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM channels WHERE id = ?`, id)
	return err
}
