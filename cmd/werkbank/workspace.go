package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/p-arndt/werkbank/internal/config"
	"github.com/p-arndt/werkbank/internal/store"
	"github.com/p-arndt/werkbank/internal/workspace"
)

var workspaceCmd = &cobra.Command{
	Use:   "workspace",
	Short: "Inspect saved chat workspaces",
}

var workspaceLsCmd = &cobra.Command{
	Use:   "ls <chat-id>",
	Short: "List tracked paths and saved files of a chat",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkspaceLs,
}

var workspaceContextCmd = &cobra.Command{
	Use:   "context <chat-id>",
	Short: "Print the workspace digest a prompt would receive",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkspaceContext,
}

var workspaceCatCmd = &cobra.Command{
	Use:   "cat <chat-id> <path>",
	Short: "Print a saved file",
	Args:  cobra.ExactArgs(2),
	RunE:  runWorkspaceCat,
}

func init() {
	workspaceCmd.AddCommand(workspaceLsCmd, workspaceContextCmd, workspaceCatCmd)
	rootCmd.AddCommand(workspaceCmd)
}

// openTracker opens the store read-side without touching any driver.
func openTracker() (*config.Config, *store.Store, *workspace.Tracker, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	st, err := store.New(cfg.DBPath, 0)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open store: %w", err)
	}
	return cfg, st, workspace.NewTracker(st, newLogger(config.LogConfig{Level: "error"})), nil
}

func runWorkspaceLs(cmd *cobra.Command, args []string) error {
	_, st, tr, err := openTracker()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	chatID := args[0]

	paths, err := tr.ListPaths(ctx, chatID)
	if err != nil {
		return err
	}
	files, err := tr.ListSavedFiles(ctx, chatID)
	if err != nil {
		return err
	}
	saved := make(map[string]*store.WorkspaceFile, len(files))
	for _, f := range files {
		saved[f.Path] = f
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PATH\tSAVED\tSIZE\tUPDATED")
	for _, p := range paths {
		f, ok := saved[p]
		if !ok {
			fmt.Fprintf(w, "%s\tno\t-\t-\n", p)
			continue
		}
		kind := "text"
		size := units.HumanSize(float64(len(f.Content)))
		if workspace.IsBlobRef(f.Content) {
			kind = "blob"
			size = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p, kind, size, units.HumanDuration(time.Since(f.UpdatedAt))+" ago")
	}
	return w.Flush()
}

func runWorkspaceContext(cmd *cobra.Command, args []string) error {
	cfg, st, tr, err := openTracker()
	if err != nil {
		return err
	}
	defer st.Close()

	b := workspace.NewContextBuilder(tr, cfg.Context, newLogger(config.LogConfig{Level: "error"}))
	text := b.Build(cmd.Context(), args[0])
	if text == "" {
		fmt.Fprintln(os.Stderr, "no workspace files")
		return nil
	}
	_, err = io.WriteString(cmd.OutOrStdout(), text+"\n")
	return err
}

func runWorkspaceCat(cmd *cobra.Command, args []string) error {
	_, st, tr, err := openTracker()
	if err != nil {
		return err
	}
	defer st.Close()

	data, found, err := tr.ReadFile(cmd.Context(), args[0], args[1])
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%s: %w", args[1], workspace.ErrNotFound)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
