package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// WorkspaceFile is the saved content of one workspace path. Content is either
// the full text or a blob reference.
type WorkspaceFile struct {
	ChatID    string    `json:"chat_id"`
	Path      string    `json:"path"`
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SaveWorkspaceFile inserts or overwrites the content for (chatID, path).
// Overwrites keep the row's original position in ListWorkspaceFiles.
func (s *Store) SaveWorkspaceFile(ctx context.Context, chatID, path, content string) error {
	err := retryOnBusy(ctx, func() error {
		_, e := s.db.ExecContext(ctx,
			`INSERT INTO chat_workspace_files (chat_id, path, content, updated_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT(chat_id, path) DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at`,
			chatID, path, content, time.Now().UTC(),
		)
		return e
	})
	if err != nil {
		return fmt.Errorf("saving workspace file: %w", err)
	}
	return nil
}

// GetWorkspaceFile returns ErrNotFound when nothing is saved for the path.
func (s *Store) GetWorkspaceFile(ctx context.Context, chatID, path string) (*WorkspaceFile, error) {
	var f WorkspaceFile
	err := s.db.QueryRowContext(ctx,
		`SELECT chat_id, path, content, updated_at FROM chat_workspace_files WHERE chat_id = ? AND path = ?`,
		chatID, path,
	).Scan(&f.ChatID, &f.Path, &f.Content, &f.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading workspace file: %w", err)
	}
	return &f, nil
}

// ListWorkspaceFiles returns all saved files of the chat in the order they
// were first saved.
func (s *Store) ListWorkspaceFiles(ctx context.Context, chatID string) ([]*WorkspaceFile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chat_id, path, content, updated_at FROM chat_workspace_files WHERE chat_id = ? ORDER BY rowid`,
		chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing workspace files: %w", err)
	}
	defer rows.Close()

	var files []*WorkspaceFile
	for rows.Next() {
		var f WorkspaceFile
		if err := rows.Scan(&f.ChatID, &f.Path, &f.Content, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning workspace file: %w", err)
		}
		files = append(files, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating workspace files: %w", err)
	}
	return files, nil
}

// DeleteWorkspaceFile removes the saved content. Deleting a missing file is not an error.
func (s *Store) DeleteWorkspaceFile(ctx context.Context, chatID, path string) error {
	err := retryOnBusy(ctx, func() error {
		_, e := s.db.ExecContext(ctx,
			`DELETE FROM chat_workspace_files WHERE chat_id = ? AND path = ?`, chatID, path,
		)
		return e
	})
	if err != nil {
		return fmt.Errorf("deleting workspace file: %w", err)
	}
	return nil
}

// ReplaceWorkspace swaps the chat's entire saved workspace for files in one
// transaction: every existing file row is dropped, files are inserted in
// order, the path list is set to exactly their paths and the sandbox pointer
// is cleared so the next acquisition rehydrates from the new state.
func (s *Store) ReplaceWorkspace(ctx context.Context, chatID string, files []WorkspaceFile) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx, `DELETE FROM chat_workspace_files WHERE chat_id = ?`, chatID); err != nil {
			return err
		}
		paths := make([]string, 0, len(files))
		for _, f := range files {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO chat_workspace_files (chat_id, path, content, updated_at) VALUES (?, ?, ?, ?)
				 ON CONFLICT(chat_id, path) DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at`,
				chatID, f.Path, f.Content, now,
			); err != nil {
				return err
			}
			paths = append(paths, f.Path)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO chat_sandboxes (chat_id, sandbox_id, driver, expires_at, workspace_paths, created_at, updated_at)
			 VALUES (?, NULL, '', NULL, ?, ?, ?)
			 ON CONFLICT(chat_id) DO UPDATE SET
			   sandbox_id = NULL,
			   expires_at = NULL,
			   workspace_paths = excluded.workspace_paths,
			   updated_at = excluded.updated_at`,
			chatID, encodePaths(nonEmpty(paths)), now, now,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("replacing workspace: %w", err)
	}
	return nil
}
