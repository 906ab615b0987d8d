package cmd

import (
	"bytes"
	"context"
	"io"

	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"

	"github.com/conneroisu/tessera/internal/engine"
	"github.com/conneroisu/tessera/internal/errors"
	"github.com/conneroisu/tessera/internal/logging"
	"github.com/conneroisu/tessera/internal/scope"
)

var renderCmd = &cobra.Command{
	Use:   "render NAME",
	Short: "Render one template",
	Long: `Render a template from the configured template directories.

Data for the root scope comes from a YAML or JSON file and from --set
bindings, which are applied on top and may use dotted keys.

Examples:
  tessera render page
  tessera render page --data page.yml --set user.name=Ana
  tessera render page --out public/index.html
  tessera render page --dump       # show the compiled instructions`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

var (
	renderFlags *StandardFlags
	renderDump  bool
)

func init() {
	rootCmd.AddCommand(renderCmd)
	renderFlags = AddStandardFlags(renderCmd, "data", "out")
	renderCmd.Flags().BoolVar(&renderDump, "dump", false, "print the compiled instruction listing instead of rendering")
}

func runRender(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	name := args[0]

	ws, err := openWorkspace(ctx, current.cfg, current.logger)
	if err != nil {
		return err
	}
	defer ws.Close()

	if !ws.engine.HasTemplate(name) {
		return errors.ErrTemplateNotFound(name)
	}

	if renderDump {
		prog, _ := ws.engine.Program(name)
		return prog.Dump(cmd.OutOrStdout())
	}

	s, err := renderFlags.Scope()
	if err != nil {
		return err
	}

	out := renderFlags.Out
	if out == "" && current.cfg.Render.Output != "-" {
		out = current.cfg.Render.Output
	}
	return renderTo(ctx, cmd.OutOrStdout(), out, ws.engine, name, s, current.logger)
}

// renderTo renders name to stdout, or atomically replaces the file at out
// so readers never observe a partial render.
func renderTo(ctx context.Context, stdout io.Writer, out string, eng *engine.Engine, name string, s *scope.Scope, logger logging.Logger) error {
	perf := logging.StartOperation(logger, "render")

	var buf bytes.Buffer
	if err := eng.RenderNamed(name, s, &buf); err != nil {
		perf.EndWithError(ctx, err)
		return err
	}

	if out == "" || out == "-" {
		if _, err := stdout.Write(buf.Bytes()); err != nil {
			return errors.WrapIO(err, errors.ErrCodeRenderIO, "failed to write output")
		}
	} else if err := atomic.WriteFile(out, &buf); err != nil {
		return errors.WrapIO(err, errors.ErrCodeRenderIO, "failed to write "+out)
	}

	perf.End(ctx, "template", name, "bytes", buf.Len(), "out", out)
	return nil
}
