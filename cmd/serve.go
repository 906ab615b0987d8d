package cmd

import (
	"context"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/tessera/internal/errors"
	"github.com/conneroisu/tessera/internal/server"
	"github.com/conneroisu/tessera/internal/watcher"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Serve rendered templates with live reload",
	Long: `Start the preview server. Every template is available at /render/NAME,
with query parameters bound into the root scope. Connected browsers reload
whenever a template changes; templates that fail to load are shown in an
error overlay instead of stopping the server.

Examples:
  tessera serve
  tessera serve --port 3000
  tessera serve --host 0.0.0.0 --no-live-reload`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 0, "port to serve on")
	serveCmd.Flags().String("host", "", "host to bind to")
	serveCmd.Flags().Bool("no-live-reload", false, "disable the live reload script")
	AddFlagValidation(serveCmd, "port", validatePort)

	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := current.cfg
	logger := current.logger

	if noReload, _ := cmd.Flags().GetBool("no-live-reload"); noReload {
		cfg.Server.LiveReload = false
	}

	// Broken templates are shown in the overlay rather than being fatal.
	ws, err := openWorkspace(ctx, cfg, logger)
	defer ws.Close()
	diagnostics := errors.NewErrorCollector()
	if ws.summary != nil {
		for _, e := range ws.summary.Errors {
			diagnostics.AddError(e)
		}
	}
	if err != nil && (ws.summary == nil || len(ws.summary.Errors) == 0) {
		return err
	}

	fw, err := watcher.NewFileWatcher(cfg.Debounce(), logger)
	if err != nil {
		return err
	}
	defer fw.Stop()

	fw.AddFilter(ws.scanner.Matches)
	fw.SetDirFilter(func(path string) bool { return !ws.scanner.Excluded(filepath.Base(path)) })
	fw.AddHandler(trackDiagnostics(diagnostics))
	fw.AddHandler(watcher.ReloadHandler(ws.scanner, errors.NewErrorHandler(logger), logger, func(r watcher.Reload) {
		for _, e := range r.Failed {
			diagnostics.AddError(e)
		}
	}))
	for _, dir := range cfg.Templates.Paths {
		if err := fw.AddRecursive(dir); err != nil {
			logger.Warn(ctx, err, "Failed to watch directory", "path", dir)
		}
	}
	if err := fw.Start(ctx); err != nil {
		return err
	}

	srv := server.New(cfg, ws.engine, diagnostics, logger)
	logger.Info(ctx, "Preview server starting",
		"url", "http://"+cfg.Address(),
		"templates", ws.engine.Registry().Count(),
		"errors", len(diagnostics.GetErrors()))
	return srv.Start(ctx)
}

// trackDiagnostics forgets the diagnostics of every file in a batch before
// the reload handler records fresh ones.
func trackDiagnostics(diagnostics *errors.ErrorCollector) watcher.ChangeHandler {
	return func(ctx context.Context, events []watcher.ChangeEvent) error {
		for _, ev := range events {
			diagnostics.ClearFile(ev.Path)
		}
		return nil
	}
}
