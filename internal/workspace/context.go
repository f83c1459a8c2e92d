package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/p-arndt/werkbank/internal/config"
	"github.com/p-arndt/werkbank/internal/store"
)

const (
	contextHeader = "\n\n---\nCurrent workspace files (use read_file(path) for full content, write_file(path, content) to write):\n\n"
	contextFooter = "\n---\n"
	ellipsis      = "..."
)

type ContextSource interface {
	ListPaths(ctx context.Context, chatID string) ([]string, error)
	ListSavedFiles(ctx context.Context, chatID string) ([]*store.WorkspaceFile, error)
}

// ContextBuilder renders a size-bounded digest of a chat's workspace for
// inclusion in a prompt.
type ContextBuilder struct {
	src    ContextSource
	limits config.ContextConfig
	logger *slog.Logger
}

func NewContextBuilder(src ContextSource, limits config.ContextConfig, logger *slog.Logger) *ContextBuilder {
	return &ContextBuilder{src: src, limits: limits, logger: logger.With("component", "context")}
}

// Build never fails: any error, including a panic, yields "". An empty
// result means there is nothing to show.
func (b *ContextBuilder) Build(ctx context.Context, chatID string) (text string) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("building workspace context panicked", "chat_id", chatID, "panic", r)
			text = ""
		}
	}()

	var paths []string
	var files []*store.WorkspaceFile
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		paths, err = b.src.ListPaths(gctx, chatID)
		return err
	})
	g.Go(func() error {
		var err error
		files, err = b.src.ListSavedFiles(gctx, chatID)
		return err
	})
	if err := g.Wait(); err != nil {
		b.logger.Warn("building workspace context failed", "chat_id", chatID, "error", err)
		return ""
	}

	return render(Advertisable(paths, files, b.limits.MaxFiles), b.limits)
}

// Advertisable returns the first max tracked paths that have saved content,
// paired with that content, in tracking order.
func Advertisable(paths []string, files []*store.WorkspaceFile, max int) []*store.WorkspaceFile {
	saved := make(map[string]*store.WorkspaceFile, len(files))
	for _, f := range files {
		saved[f.Path] = f
	}
	if len(paths) > max {
		paths = paths[:max]
	}
	out := make([]*store.WorkspaceFile, 0, len(paths))
	seen := make(map[string]bool, len(paths))
	for _, p := range paths {
		if f, ok := saved[p]; ok && !seen[p] {
			seen[p] = true
			out = append(out, f)
		}
	}
	return out
}

func render(files []*store.WorkspaceFile, limits config.ContextConfig) string {
	if len(files) == 0 {
		return ""
	}

	blocks := make([]string, 0, len(files))
	total := 0
	exhausted := false
	for _, f := range files {
		if IsBlobRef(f.Content) {
			ext := Ext(f.Path)
			if ext == "" {
				ext = "binary"
			}
			blocks = append(blocks, fmt.Sprintf("Path: %s (binary .%s file – available for download)", f.Path, ext))
			continue
		}
		if !exhausted {
			snippet := truncate(f.Content, limits.SnippetChars)
			n := utf8.RuneCountInString(snippet)
			if total+n <= limits.TotalSnippetChars {
				total += n
				blocks = append(blocks, fmt.Sprintf("Path: %s\nSnippet:\n```\n%s\n```\n(Use read_file(%q) for full content.)", f.Path, snippet, f.Path))
				continue
			}
			exhausted = true
		}
		blocks = append(blocks, fmt.Sprintf("Path: %s (use read_file to read)", f.Path))
	}

	return contextHeader + strings.Join(blocks, "\n\n") + contextFooter
}

// truncate cuts s to max runes and appends an ellipsis when it did.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + ellipsis
}
