package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/tessera/internal/engine"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"l", "ls"},
	Short:   "List all registered templates",
	Long: `List every template found in the template directories with its slots,
metadata, and the templates it calls.

Examples:
  tessera list
  tessera list -o json
  tessera list -o yaml`,
	Args: cobra.NoArgs,
	RunE: runList,
}

var listFlags *StandardFlags

func init() {
	rootCmd.AddCommand(listCmd)
	listFlags = AddStandardFlags(listCmd, "format")
}

func runList(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace(cmd.Context(), current.cfg, current.logger)
	if err != nil {
		return err
	}
	defer ws.Close()

	templates := ws.engine.Templates()
	out := cmd.OutOrStdout()

	switch strings.ToLower(listFlags.Format) {
	case "json":
		return outputListJSON(out, templates)
	case "yaml":
		return outputListYAML(out, templates)
	case "table":
		return outputTable(out, templates)
	default:
		return fmt.Errorf("unsupported format: %s", listFlags.Format)
	}
}

func outputListJSON(w io.Writer, templates []engine.TemplateInfo) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(templates)
}

func outputListYAML(w io.Writer, templates []engine.TemplateInfo) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	defer encoder.Close()
	return encoder.Encode(templates)
}

func outputTable(w io.Writer, templates []engine.TemplateInfo) error {
	if len(templates) == 0 {
		_, err := fmt.Fprintln(w, "No templates found.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSLOTS\tCALLS\tMETADATA\tFILE")
	fmt.Fprintln(tw, "----\t-----\t-----\t--------\t----")

	for _, t := range templates {
		slots := append([]string(nil), t.Slots...)
		if t.CatchAll {
			slots = append(slots, "*")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			t.Name,
			dash(strings.Join(slots, ",")),
			dash(strings.Join(t.Calls, ",")),
			dash(formatMeta(t.Metadata)),
			dash(t.Path))
	}

	fmt.Fprintf(tw, "\nTotal: %d templates\n", len(templates))
	return tw.Flush()
}

func formatMeta(meta map[string]string) string {
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + meta[k]
	}
	return strings.Join(parts, ",")
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
