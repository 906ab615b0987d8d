package cmd

import (
	"context"

	"github.com/conneroisu/tessera/internal/config"
	"github.com/conneroisu/tessera/internal/engine"
	"github.com/conneroisu/tessera/internal/logging"
	"github.com/conneroisu/tessera/internal/scanner"
)

// workspace is an engine loaded from the configured template directories.
type workspace struct {
	engine  *engine.Engine
	scanner *scanner.TemplateScanner
	summary *scanner.ScanSummary
}

func (w *workspace) Close() error {
	return w.scanner.Close()
}

// openWorkspace builds an engine and scans every template directory. The
// returned error reports the first broken file; the workspace is still
// usable and the summary lists every failure.
func openWorkspace(ctx context.Context, cfg *config.Config, logger logging.Logger) (*workspace, error) {
	eng := engine.New(
		engine.WithLogger(logger),
		engine.WithMaxDepth(cfg.Render.MaxDepth),
	)
	s := scanner.NewTemplateScanner(eng, scanner.Config{
		Extensions:      cfg.Templates.Extensions,
		ExcludePatterns: cfg.Templates.ExcludePatterns,
		Workers:         cfg.Templates.Workers,
	}, logger)

	perf := logging.StartOperation(logger, "load_templates")
	summary, err := s.ScanDirectories(ctx, cfg.Templates.Paths)
	if err != nil {
		perf.EndWithError(ctx, err)
	} else {
		perf.End(ctx, "files", summary.Files, "registered", summary.Registered, "templates", eng.Registry().Count())
	}

	return &workspace{engine: eng, scanner: s, summary: summary}, err
}
