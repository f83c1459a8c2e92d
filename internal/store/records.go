package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"
)

// SandboxRecord is the durable per-chat row: the last sandbox handed out for
// the chat and the paths believed to exist in its workspace.
type SandboxRecord struct {
	ChatID         string    `json:"chat_id"`
	SandboxID      string    `json:"sandbox_id,omitempty"`
	Driver         string    `json:"driver,omitempty"`
	ExpiresAt      time.Time `json:"expires_at,omitempty"`
	WorkspacePaths []string  `json:"workspace_paths"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

const recordColumns = `chat_id, sandbox_id, driver, expires_at, workspace_paths, created_at, updated_at`

// DecodePaths parses a stored workspace_paths value. Besides a JSON array it
// accepts the legacy encoding, a JSON string holding a serialized array.
// Anything else decodes to an empty list.
func DecodePaths(raw string) []string {
	if raw == "" {
		return []string{}
	}
	var paths []string
	if err := json.Unmarshal([]byte(raw), &paths); err == nil {
		return nonEmpty(paths)
	}
	var inner string
	if err := json.Unmarshal([]byte(raw), &inner); err == nil {
		if err := json.Unmarshal([]byte(inner), &paths); err == nil {
			return nonEmpty(paths)
		}
	}
	return []string{}
}

func nonEmpty(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p != "" && !slices.Contains(out, p) {
			out = append(out, p)
		}
	}
	return out
}

func encodePaths(paths []string) string {
	if paths == nil {
		paths = []string{}
	}
	b, _ := json.Marshal(paths)
	return string(b)
}

func scanRecord(row scannable) (*SandboxRecord, error) {
	var rec SandboxRecord
	var sandboxID sql.NullString
	var expiresAt sql.NullTime
	var paths string
	err := row.Scan(&rec.ChatID, &sandboxID, &rec.Driver, &expiresAt, &paths, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning sandbox record: %w", err)
	}
	rec.SandboxID = sandboxID.String
	if expiresAt.Valid {
		rec.ExpiresAt = expiresAt.Time
	}
	rec.WorkspacePaths = DecodePaths(paths)
	return &rec, nil
}

// GetSandboxRecord returns ErrNotFound when the chat has no record.
func (s *Store) GetSandboxRecord(ctx context.Context, chatID string) (*SandboxRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM chat_sandboxes WHERE chat_id = ?`, chatID,
	)
	return scanRecord(row)
}

// ListSandboxRecords returns every record, most recently updated first.
func (s *Store) ListSandboxRecords(ctx context.Context) ([]*SandboxRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM chat_sandboxes ORDER BY updated_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing sandbox records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// ListExpiredSandboxRecords returns records still pointing at a sandbox whose
// expiry is at or before now.
func (s *Store) ListExpiredSandboxRecords(ctx context.Context, now time.Time) ([]*SandboxRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM chat_sandboxes
		 WHERE sandbox_id IS NOT NULL AND expires_at IS NOT NULL AND expires_at <= ?`,
		now.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("listing expired sandbox records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]*SandboxRecord, error) {
	var recs []*SandboxRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sandbox records: %w", err)
	}
	return recs, nil
}

// UpsertSandboxRecord points the chat at a new sandbox and replaces its path
// list wholesale.
func (s *Store) UpsertSandboxRecord(ctx context.Context, rec *SandboxRecord) error {
	now := time.Now().UTC()
	err := retryOnBusy(ctx, func() error {
		_, e := s.db.ExecContext(ctx,
			`INSERT INTO chat_sandboxes (chat_id, sandbox_id, driver, expires_at, workspace_paths, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(chat_id) DO UPDATE SET
			   sandbox_id = excluded.sandbox_id,
			   driver = excluded.driver,
			   expires_at = excluded.expires_at,
			   workspace_paths = excluded.workspace_paths,
			   updated_at = excluded.updated_at`,
			rec.ChatID, nullString(rec.SandboxID), rec.Driver, nullTime(rec.ExpiresAt),
			encodePaths(rec.WorkspacePaths), now, now,
		)
		return e
	})
	if err != nil {
		return fmt.Errorf("upserting sandbox record: %w", err)
	}
	return nil
}

// ExtendSandboxExpiry moves expires_at for the chat, but only while the
// record still points at sandboxID.
func (s *Store) ExtendSandboxExpiry(ctx context.Context, chatID, sandboxID string, expiresAt time.Time) error {
	var result sql.Result
	err := retryOnBusy(ctx, func() error {
		var e error
		result, e = s.db.ExecContext(ctx,
			`UPDATE chat_sandboxes SET expires_at = ?, updated_at = ? WHERE chat_id = ? AND sandbox_id = ?`,
			expiresAt.UTC(), time.Now().UTC(), chatID, sandboxID,
		)
		return e
	})
	if err != nil {
		return fmt.Errorf("extending sandbox expiry: %w", err)
	}
	return checkRowAffected(result)
}

// ClearSandbox forgets the chat's sandbox but keeps its path list, so the
// next acquisition recreates and rehydrates. If sandboxID is non-empty the
// record is only cleared while it still points at that sandbox.
func (s *Store) ClearSandbox(ctx context.Context, chatID, sandboxID string) error {
	query := `UPDATE chat_sandboxes SET sandbox_id = NULL, expires_at = NULL, updated_at = ? WHERE chat_id = ?`
	args := []any{time.Now().UTC(), chatID}
	if sandboxID != "" {
		query += ` AND sandbox_id = ?`
		args = append(args, sandboxID)
	}
	err := retryOnBusy(ctx, func() error {
		_, e := s.db.ExecContext(ctx, query, args...)
		return e
	})
	if err != nil {
		return fmt.Errorf("clearing sandbox: %w", err)
	}
	return nil
}

// DeleteSandboxRecord removes the record entirely. Missing records are not an error.
func (s *Store) DeleteSandboxRecord(ctx context.Context, chatID string) error {
	err := retryOnBusy(ctx, func() error {
		_, e := s.db.ExecContext(ctx, `DELETE FROM chat_sandboxes WHERE chat_id = ?`, chatID)
		return e
	})
	if err != nil {
		return fmt.Errorf("deleting sandbox record: %w", err)
	}
	return nil
}

// ListWorkspacePaths returns the chat's tracked paths in insertion order.
// A chat without a record has no paths.
func (s *Store) ListWorkspacePaths(ctx context.Context, chatID string) ([]string, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT workspace_paths FROM chat_sandboxes WHERE chat_id = ?`, chatID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading workspace paths: %w", err)
	}
	return DecodePaths(raw), nil
}

// AddWorkspacePath appends path to the chat's list unless already present,
// creating the record if needed. The read and the write share one immediate
// transaction. added reports whether anything was written.
func (s *Store) AddWorkspacePath(ctx context.Context, chatID, path string) (added bool, err error) {
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		added = false
		paths, exists, err := readPathsTx(ctx, tx, chatID)
		if err != nil {
			return err
		}
		if slices.Contains(paths, path) {
			return nil
		}
		paths = append(paths, path)
		now := time.Now().UTC()
		if exists {
			_, err = tx.ExecContext(ctx,
				`UPDATE chat_sandboxes SET workspace_paths = ?, updated_at = ? WHERE chat_id = ?`,
				encodePaths(paths), now, chatID,
			)
		} else {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO chat_sandboxes (chat_id, workspace_paths, created_at, updated_at) VALUES (?, ?, ?, ?)`,
				chatID, encodePaths(paths), now, now,
			)
		}
		if err != nil {
			return err
		}
		added = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("adding workspace path: %w", err)
	}
	return added, nil
}

// RemoveWorkspacePath drops path from the chat's list. Nothing is written
// when the path is not tracked. removed reports whether a write happened.
func (s *Store) RemoveWorkspacePath(ctx context.Context, chatID, path string) (removed bool, err error) {
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		removed = false
		paths, exists, err := readPathsTx(ctx, tx, chatID)
		if err != nil {
			return err
		}
		idx := slices.Index(paths, path)
		if !exists || idx < 0 {
			return nil
		}
		paths = slices.Delete(paths, idx, idx+1)
		if _, err := tx.ExecContext(ctx,
			`UPDATE chat_sandboxes SET workspace_paths = ?, updated_at = ? WHERE chat_id = ?`,
			encodePaths(paths), time.Now().UTC(), chatID,
		); err != nil {
			return err
		}
		removed = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("removing workspace path: %w", err)
	}
	return removed, nil
}

func readPathsTx(ctx context.Context, tx *sql.Tx, chatID string) ([]string, bool, error) {
	var raw string
	err := tx.QueryRowContext(ctx,
		`SELECT workspace_paths FROM chat_sandboxes WHERE chat_id = ?`, chatID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return []string{}, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return DecodePaths(raw), true, nil
}

func checkRowAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
