package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"studiosync/internal/model"
)

// LoadCheckpoint returns the checkpoint of streamID. A stream that never
// completed a sync yields a checkpoint with an empty token.
func (s *Store) LoadCheckpoint(ctx context.Context, streamID string) (model.Checkpoint, error) {
	cp := model.Checkpoint{StreamID: streamID}
	var updated string
	err := s.db.QueryRowContext(ctx,
		`SELECT sync_token, updated_at FROM checkpoints WHERE stream_id = ?`, streamID,
	).Scan(&cp.SyncToken, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return cp, nil
	}
	if err != nil {
		return cp, fmt.Errorf("load checkpoint %s: %w", streamID, err)
	}
	cp.UpdatedAt = parseTime(updated)
	return cp, nil
}

// SaveCheckpoint overwrites the checkpoint of cp.StreamID.
func (s *Store) SaveCheckpoint(ctx context.Context, cp model.Checkpoint) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO checkpoints (stream_id, sync_token, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(stream_id) DO UPDATE SET sync_token = excluded.sync_token, updated_at = excluded.updated_at`,
		cp.StreamID, cp.SyncToken, formatTime(cp.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save checkpoint %s: %w", cp.StreamID, err)
	}
	return nil
}

// DeleteCheckpoint forgets the checkpoint of streamID.
func (s *Store) DeleteCheckpoint(ctx context.Context, streamID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE stream_id = ?`, streamID)
	return err
}
