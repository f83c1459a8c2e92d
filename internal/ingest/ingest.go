// Package ingest copies text and code attachments from a user message into
// the chat's sandbox and saves them so they survive a sandbox recreate.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/p-arndt/werkbank/internal/config"
	"github.com/p-arndt/werkbank/internal/runtime"
	"github.com/p-arndt/werkbank/internal/store"
	"github.com/p-arndt/werkbank/internal/workspace"
	"github.com/p-arndt/werkbank/protocol"
)

type Acquirer interface {
	Acquire(ctx context.Context, chatID string) (runtime.Sandbox, error)
}

type Workspace interface {
	ListSavedFiles(ctx context.Context, chatID string) ([]*store.WorkspaceFile, error)
	AddPath(ctx context.Context, chatID, path string) error
	SaveFile(ctx context.Context, chatID, path, content string) error
}

type Ingester struct {
	acquirer     Acquirer
	workspace    Workspace
	base         string
	fetchTimeout time.Duration
	maxBytes     int64
	httpClient   *http.Client
	logger       *slog.Logger
}

type Option func(*Ingester)

func WithHTTPClient(c *http.Client) Option {
	return func(i *Ingester) { i.httpClient = c }
}

func NewIngester(cfg *config.Config, acq Acquirer, ws Workspace, logger *slog.Logger, opts ...Option) *Ingester {
	i := &Ingester{
		acquirer:     acq,
		workspace:    ws,
		base:         cfg.WorkspaceBase,
		fetchTimeout: cfg.FetchTimeout(),
		maxBytes:     cfg.Ingest.MaxBytes,
		httpClient:   http.DefaultClient,
		logger:       logger.With("component", "ingest"),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Result lists workspace paths written and attachment names passed over.
type Result struct {
	Ingested []string
	Skipped  []string
}

type candidate struct {
	name        string
	url         string
	contentType string
	content     string
}

// candidates returns the text/code attachments of msg, attachments first.
func candidates(msg protocol.Message) []candidate {
	var out []candidate
	for _, a := range msg.Attachments {
		if a.URL == "" && a.Content == "" {
			continue
		}
		if !workspace.IsTextAttachment(a.ContentType, a.FileType, a.Name) {
			continue
		}
		out = append(out, candidate{name: orDefault(a.Name), url: a.URL, contentType: a.ContentType, content: a.Content})
	}
	for _, p := range msg.Parts {
		if p.Type != protocol.PartFile || p.URL == "" {
			continue
		}
		if !workspace.IsTextAttachment(p.MediaType, "", p.Filename) {
			continue
		}
		out = append(out, candidate{name: orDefault(p.Filename), url: p.URL, contentType: p.MediaType})
	}
	return out
}

func orDefault(name string) string {
	if name == "" {
		return "file"
	}
	return name
}

// IngestMessageAttachments writes every qualifying attachment of msg into
// the chat's sandbox, tracks it and saves its content. Attachments whose
// path is already saved are skipped. The sandbox is acquired only when
// something needs writing; acquisition failure is the only error returned.
func (i *Ingester) IngestMessageAttachments(ctx context.Context, chatID string, msg protocol.Message) (*Result, error) {
	res := &Result{Ingested: []string{}, Skipped: []string{}}

	cands := candidates(msg)
	if len(cands) == 0 {
		return res, nil
	}

	existing := make(map[string]bool)
	saved, err := i.workspace.ListSavedFiles(ctx, chatID)
	if err != nil {
		i.logger.Warn("listing saved files failed, uploading all attachments", "chat_id", chatID, "error", err)
	}
	for _, f := range saved {
		existing[f.Path] = true
	}

	type pending struct {
		candidate
		path string
	}
	var todo []pending
	for _, c := range cands {
		path, err := workspace.PathForFilename(i.base, c.name)
		if err != nil || existing[path] {
			res.Skipped = append(res.Skipped, c.name)
			continue
		}
		existing[path] = true
		todo = append(todo, pending{candidate: c, path: path})
	}
	if len(todo) == 0 {
		return res, nil
	}

	sb, err := i.acquirer.Acquire(ctx, chatID)
	if err != nil {
		return res, fmt.Errorf("acquiring sandbox: %w", err)
	}

	for _, p := range todo {
		if err := i.ingestOne(ctx, chatID, sb, p.candidate, p.path); err != nil {
			i.logger.Warn("attachment upload failed", "chat_id", chatID, "name", p.name, "path", p.path, "error", err)
			res.Skipped = append(res.Skipped, p.name)
			continue
		}
		res.Ingested = append(res.Ingested, p.path)
	}

	i.logger.Info("attachments ingested", "chat_id", chatID, "ingested", len(res.Ingested), "skipped", len(res.Skipped))
	return res, nil
}

func (i *Ingester) ingestOne(ctx context.Context, chatID string, sb runtime.Sandbox, c candidate, path string) error {
	text, err := i.fetch(ctx, c)
	if err != nil {
		return err
	}
	if text == "" {
		return ErrNoContent
	}
	if err := sb.WriteFile(ctx, path, []byte(text)); err != nil {
		return fmt.Errorf("writing to sandbox: %w", err)
	}
	if err := i.workspace.AddPath(ctx, chatID, path); err != nil {
		return fmt.Errorf("tracking path: %w", err)
	}
	if err := i.workspace.SaveFile(ctx, chatID, path, text); err != nil {
		return fmt.Errorf("saving file: %w", err)
	}
	return nil
}
