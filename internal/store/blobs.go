package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PutBlob stores data under key, replacing any previous value.
func (s *Store) PutBlob(ctx context.Context, key string, data []byte) error {
	if data == nil {
		data = []byte{}
	}
	err := retryOnBusy(ctx, func() error {
		_, e := s.db.ExecContext(ctx,
			`INSERT INTO chat_workspace_blobs (key, data, size, created_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT(key) DO UPDATE SET data = excluded.data, size = excluded.size`,
			key, data, len(data), time.Now().UTC(),
		)
		return e
	})
	if err != nil {
		return fmt.Errorf("storing blob: %w", err)
	}
	return nil
}

// GetBlob returns ErrNotFound for unknown keys.
func (s *Store) GetBlob(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM chat_workspace_blobs WHERE key = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading blob: %w", err)
	}
	return data, nil
}

func (s *Store) DeleteBlob(ctx context.Context, key string) error {
	err := retryOnBusy(ctx, func() error {
		_, e := s.db.ExecContext(ctx, `DELETE FROM chat_workspace_blobs WHERE key = ?`, key)
		return e
	})
	if err != nil {
		return fmt.Errorf("deleting blob: %w", err)
	}
	return nil
}
