package cmd

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/conneroisu/tessera/internal/errors"
	"github.com/conneroisu/tessera/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:     "watch NAME",
	Aliases: []string{"w"},
	Short:   "Render a template and re-render it whenever a template changes",
	Long: `Load the template directories, render NAME, then keep watching. Every
change to a template file re-registers it and renders NAME again. A file
that fails to parse is reported and its previous version stays in use.

Examples:
  tessera watch page --out public/index.html
  tessera watch page --data page.yml`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

var watchFlags *StandardFlags

func init() {
	rootCmd.AddCommand(watchCmd)
	watchFlags = AddStandardFlags(watchCmd, "data", "out")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	name := args[0]
	logger := current.logger.WithComponent("watch")

	ws, err := openWorkspace(ctx, current.cfg, current.logger)
	if err != nil {
		return err
	}
	defer ws.Close()

	out := watchFlags.Out
	if out == "" && current.cfg.Render.Output != "-" {
		out = current.cfg.Render.Output
	}

	render := func() {
		// The data file is re-read on every render.
		s, err := watchFlags.Scope()
		if err == nil {
			err = renderTo(ctx, cmd.OutOrStdout(), out, ws.engine, name, s, current.logger)
		}
		if err != nil {
			logger.Warn(ctx, err, "Render failed", "template", name)
		}
	}
	render()

	fw, err := watcher.NewFileWatcher(current.cfg.Debounce(), current.logger)
	if err != nil {
		return err
	}
	defer fw.Stop()

	fw.AddFilter(ws.scanner.Matches)
	fw.SetDirFilter(func(path string) bool { return !ws.scanner.Excluded(filepath.Base(path)) })
	fw.AddHandler(watcher.ReloadHandler(ws.scanner, errors.NewErrorHandler(logger), logger, func(r watcher.Reload) {
		if r.Changed() {
			render()
		}
	}))

	for _, dir := range current.cfg.Templates.Paths {
		if err := fw.AddRecursive(dir); err != nil {
			return err
		}
	}
	if err := fw.Start(ctx); err != nil {
		return err
	}

	logger.Info(ctx, "Watching for changes", "template", name, "paths", current.cfg.Templates.Paths)
	<-ctx.Done()
	return nil
}
