// Package cmd provides the tessera command-line interface.
//
// Configuration is read, in order of precedence, from command-line flags,
// TESSERA_<SECTION>_<OPTION> environment variables, and a .tessera.yml file
// (or the file named by --config or TESSERA_CONFIG_FILE).
package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/tessera/internal/config"
	"github.com/conneroisu/tessera/internal/logging"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tessera",
	Short: "Compile and render slot-based HTML templates",
	Long: `Tessera compiles HTML-like templates into instruction programs and renders
them against scoped data. Templates call each other by tag name, fill each
other's slots, loop with foreach and branch with if.

Quick Start:
  tessera list                     List every template and its slots
  tessera render page --set title=Hi
  tessera check                    Report every template error
  tessera serve                    Preview templates with live reload`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// Execute adds all child commands to the root command and runs it.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is .tessera.yml, can also use TESSERA_CONFIG_FILE)")
	flags.StringSliceP("templates", "t", nil, "template directories (overrides templates.paths)")
	flags.StringP("log-level", "l", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (text, json)")
	flags.Int("max-depth", 0, "maximum nested template expansion depth")

	_ = viper.BindPFlag("templates.paths", flags.Lookup("templates"))
	_ = viper.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("log.format", flags.Lookup("log-format"))
	_ = viper.BindPFlag("render.max_depth", flags.Lookup("max-depth"))
}

// app holds what setup resolved for the running command.
type app struct {
	cfg    *config.Config
	logger logging.Logger
}

var current *app

// setup loads configuration and builds the logger before any subcommand.
func setup(cmd *cobra.Command, args []string) error {
	if err := config.Setup(viper.GetViper(), cfgFile); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.NewLogger(cfg.LoggerConfig(cmd.ErrOrStderr()))
	if used := viper.ConfigFileUsed(); used != "" {
		logger.Debug(cmd.Context(), "Using config file", "path", used)
	}

	current = &app{cfg: cfg, logger: logger}
	return nil
}
