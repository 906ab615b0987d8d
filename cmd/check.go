package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conneroisu/tessera/internal/config"
	"github.com/conneroisu/tessera/internal/errors"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Parse every template and report all problems",
	Long: `Load every template from the template directories and report every parse
error, not just the first. Call cycles between templates are reported as
information since they are legal when a condition ends the recursion.

The command fails when any template cannot be loaded.`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	collector := errors.NewErrorCollector()
	for _, w := range config.ValidateConfigWithDetails(current.cfg).Warnings {
		collector.Add(errors.Diagnostic{
			File:     "config",
			Code:     errors.ErrCodeConfigInvalid,
			Message:  w.Field + ": " + w.Message,
			Severity: errors.ErrorSeverityWarning,
		})
	}

	ws, scanErr := openWorkspace(cmd.Context(), current.cfg, current.logger)
	defer ws.Close()

	if ws.summary != nil {
		for _, err := range ws.summary.Errors {
			collector.AddError(err)
		}
	}
	if scanErr != nil && (ws.summary == nil || len(ws.summary.Errors) == 0) {
		// The walk itself failed, e.g. a missing directory.
		collector.AddError(scanErr)
	}

	for _, cycle := range ws.engine.Cycles() {
		collector.Add(errors.Diagnostic{
			Template: cycle[0],
			Message:  "call cycle " + strings.Join(cycle, " -> "),
			Severity: errors.ErrorSeverityInfo,
		})
	}

	failed := 0
	for _, d := range collector.GetErrors() {
		if d.Severity >= errors.ErrorSeverityError {
			failed++
		}
		fmt.Fprintln(out, formatDiagnostic(d))
	}

	count := ws.engine.Registry().Count()
	if failed > 0 {
		fmt.Fprintf(out, "%d templates loaded, %d files failed\n", count, failed)
		return errors.NewLoaderError("", fmt.Errorf("%d template files failed to load", failed))
	}
	fmt.Fprintf(out, "%d templates OK\n", count)
	return nil
}

func formatDiagnostic(d errors.Diagnostic) string {
	var b strings.Builder
	switch {
	case d.File != "" && d.Line > 0:
		fmt.Fprintf(&b, "%s:%d:%d: ", d.File, d.Line, d.Column)
	case d.File != "":
		b.WriteString(d.File + ": ")
	case d.Template != "":
		b.WriteString(d.Template + ": ")
	}
	b.WriteString(d.Severity.String())
	if d.Code != "" {
		fmt.Fprintf(&b, " [%s]", d.Code)
	}
	b.WriteString(" " + d.Message)
	return b.String()
}
