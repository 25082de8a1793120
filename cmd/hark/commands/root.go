package commands

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/dyluth/hark/internal/config"
	"github.com/dyluth/hark/internal/printer"
)

var configPath string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "hark",
	Short: "Hark - cognitive event decision pipeline",
	Long: `Hark turns application events into a small number of well-timed messages.

Events are perceived, decided on by a prioritised rule engine, and passed
through an anti-spam output gate that deduplicates, rate limits and learns
from viewer feedback before anything is shown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	// Enable strict flag parsing - unknown flags will cause an error
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

// Execute runs the root command.
func Execute() error {
	// Silence Cobra's default error and usage printing
	// We print formatted colored errors directly in the printer package
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "hark.yml", "Path to hark.yml")
}

// loadConfig reads the configuration file. A missing file is only an error
// when --config was given explicitly; otherwise defaults plus environment apply.
func loadConfig(cmd *cobra.Command) (*config.HarkConfig, error) {
	cfg, err := config.Load(configPath)
	if err == nil {
		return cfg, nil
	}

	if errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config") {
		cfg = config.Default()
		cfg.ApplyEnv()
		if err := cfg.Validate(); err != nil {
			return nil, printer.Error("invalid configuration", err.Error(), nil)
		}
		return cfg, nil
	}

	return nil, printer.ErrorWithContext(
		"failed to load configuration",
		err.Error(),
		map[string]string{"Config": configPath},
		[]string{"Check the file exists and is valid YAML", "Run without --config to use defaults"},
	)
}
