package api

import (
	"fmt"
	"regexp"

	"github.com/p-arndt/werkbank/internal/workspace"
	"github.com/p-arndt/werkbank/protocol"
)

var (
	// chatIDPattern matches chat ids: letters, digits and . _ : - up to 128 chars
	chatIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:-]{0,127}$`)
)

func validateChatID(id string) error {
	if id == "" {
		return fmt.Errorf("chat id is required")
	}
	if !chatIDPattern.MatchString(id) {
		return fmt.Errorf("chat id must be 1-128 letters, digits, '.', '_', ':' or '-'")
	}
	return nil
}

func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("path is required")
	}
	if err := workspace.ValidatePath(path); err != nil {
		return fmt.Errorf("path must be absolute: %w", err)
	}
	return nil
}

// validateFileRequest validates a workspace file save
func validateFileRequest(req protocol.FileRequest) error {
	if err := validatePath(req.Path); err != nil {
		return err
	}
	if req.Content != nil && req.ContentBase64 != "" {
		return fmt.Errorf("provide either 'content' or 'content_base64', not both")
	}
	if req.Content == nil && req.ContentBase64 == "" {
		return fmt.Errorf("either 'content' or 'content_base64' must be provided")
	}
	return nil
}

func validateRollbackRequest(req protocol.RollbackRequest) error {
	if req.UpToSequence < 0 {
		return fmt.Errorf("up_to_sequence must be non-negative")
	}
	return nil
}
