package workspace

import (
	"context"
	"log/slog"

	"github.com/p-arndt/werkbank/internal/config"
)

// Service is the workspace facade used by the API: path tracking and saved
// content from the Tracker plus the context digest and sandbox sync.
type Service struct {
	*Tracker
	builder *ContextBuilder
	syncer  *Syncer
}

// NewService builds the facade around tr. The tracker is passed in because
// the session manager rehydrates from it too.
func NewService(cfg *config.Config, tr *Tracker, acq Acquirer, logger *slog.Logger) *Service {
	return &Service{
		Tracker: tr,
		builder: NewContextBuilder(tr, cfg.Context, logger),
		syncer:  NewSyncer(tr, acq, cfg.WorkspaceBase, logger),
	}
}

// BuildContext returns the workspace digest for a prompt, or "".
func (s *Service) BuildContext(ctx context.Context, chatID string) string {
	return s.builder.Build(ctx, chatID)
}

// SyncFromSandbox pulls an unsaved file out of the live sandbox.
func (s *Service) SyncFromSandbox(ctx context.Context, chatID, path string) ([]byte, bool, error) {
	return s.syncer.Sync(ctx, chatID, path)
}
