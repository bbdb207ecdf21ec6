package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"studiosync/internal/model"
)

// LoadStatus returns the run status; zero before the first run.
func (s *Store) LoadStatus(ctx context.Context) (model.SyncStatus, error) {
	return loadStatus(ctx, s.db)
}

// UpdateStatus applies fn to the stored status inside one transaction.
func (s *Store) UpdateStatus(ctx context.Context, fn func(*model.SyncStatus)) error {
	return inTx(ctx, s.db, func(tx *sql.Tx) error {
		st, err := loadStatus(ctx, tx)
		if err != nil {
			return err
		}
		fn(&st)
		data, err := json.Marshal(&st)
		if err != nil {
			return fmt.Errorf("encode status: %w", err)
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO sync_status (id, data) VALUES (1, ?)
			ON CONFLICT(id) DO UPDATE SET data = excluded.data`, string(data))
		return err
	})
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func loadStatus(ctx context.Context, q queryRower) (model.SyncStatus, error) {
	var st model.SyncStatus
	var data string
	err := q.QueryRowContext(ctx, `SELECT data FROM sync_status WHERE id = 1`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("load status: %w", err)
	}
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		return st, fmt.Errorf("decode status: %w", err)
	}
	return st, nil
}
