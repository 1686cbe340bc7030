package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/Indy1131/kotoba/internal/config"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceVersion    = "1.0.0"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "server",
	Short: "Streaming vowel formant extraction service",
	Long: `kotoba estimates the first two vowel formants (F1, F2) of short audio
chunks and streams them back to clients for pronunciation visualization.

Examples:
  # Run the service
  server serve --config configs/config.yaml

  # Analyse a recording offline
  server analyze take1.wav --json

  # Show the female vowel reference table
  server references --speaker female`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to configuration file")
}

// loadConfig reads the configuration named by --config. When the flag was left
// at its default and that file does not exist, the built-in defaults are used.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := configPath
	if !cmd.Flags().Changed("config") {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			path = ""
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}
