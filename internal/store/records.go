package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"studiosync/internal/model"
)

// Mutation is one write of a batch: an upsert when Record is set, otherwise
// a delete of ID.
type Mutation struct {
	ID     string
	Record *model.Record
}

// SetMutation merges rec into the stored document.
func SetMutation(rec model.Record) Mutation {
	return Mutation{ID: rec.ID, Record: &rec}
}

// DeleteMutation removes the document with id.
func DeleteMutation(id string) Mutation {
	return Mutation{ID: id}
}

// IsDelete reports whether m removes a document.
func (m Mutation) IsDelete() bool { return m.Record == nil }

const upsertRecord = `INSERT INTO records (id, firm, date, data, updated_at) VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		firm = excluded.firm,
		date = excluded.date,
		data = json_patch(records.data, excluded.data),
		updated_at = excluded.updated_at`

// CommitBatch applies muts atomically. Upserts merge: keys present in the
// record overwrite the stored document, other stored keys are kept. Batches
// larger than MaxBatch are rejected with ErrBatchTooLarge.
func (s *Store) CommitBatch(ctx context.Context, muts []Mutation) error {
	if len(muts) > s.maxBatch {
		return fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(muts), s.maxBatch)
	}
	if len(muts) == 0 {
		return nil
	}

	now := formatTime(time.Now())
	return inTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, m := range muts {
			if m.IsDelete() {
				if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, m.ID); err != nil {
					return fmt.Errorf("delete record %s: %w", m.ID, err)
				}
				continue
			}
			data, err := json.Marshal(m.Record)
			if err != nil {
				return fmt.Errorf("encode record %s: %w", m.ID, err)
			}
			if _, err := tx.ExecContext(ctx, upsertRecord, m.ID, m.Record.Firm, m.Record.Date, string(data), now); err != nil {
				return fmt.Errorf("upsert record %s: %w", m.ID, err)
			}
		}
		return nil
	})
}

// Record returns the stored document with id.
func (s *Store) Record(ctx context.Context, id string) (model.Record, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM records WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Record{}, ErrNotFound
	}
	if err != nil {
		return model.Record{}, fmt.Errorf("get record %s: %w", id, err)
	}
	return decodeRecord(data)
}

// RawRecord returns the stored JSON document with id, including keys that
// are not part of model.Record.
func (s *Store) RawRecord(ctx context.Context, id string) (map[string]any, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM records WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get record %s: %w", id, err)
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", id, err)
	}
	return doc, nil
}

// RecordsByDate lists the records of one calendar day ordered by time.
func (s *Store) RecordsByDate(ctx context.Context, date string) ([]model.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM records WHERE date = ? ORDER BY json_extract(data, '$.time'), id`, date)
	if err != nil {
		return nil, fmt.Errorf("list records of %s: %w", date, err)
	}
	defer rows.Close()

	out := make([]model.Record, 0)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		rec, err := decodeRecord(data)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CountRecords returns the number of stored records.
func (s *Store) CountRecords(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&n)
	return n, err
}

func decodeRecord(data string) (model.Record, error) {
	var rec model.Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return model.Record{}, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}
