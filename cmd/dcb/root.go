package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"dcb/internal/configstore"
	"dcb/internal/settings"
	"dcb/internal/slogutil"
	"dcb/internal/version"
)

var (
	logLevelFlag   string
	configFileFlag string
)

var rootCmd = &cobra.Command{
	Use:   "dcb",
	Short: "dcb - Delphi compile backend",
	Long: `dcb compiles Delphi projects outside the IDE. It learns the
installation layout from IDE build logs, keeps it in TOML configuration
files, and exposes compilation with structured errors on the command line
and over MCP.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate("dcb version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "",
		"Log level: debug, info, warning or error (default from settings)")
	rootCmd.PersistentFlags().StringVar(&configFileFlag, "config", "",
		"Explicit Delphi configuration file")
}

// loadSettings reads .dcb/settings.json from the working directory.
func loadSettings() (*settings.Settings, error) {
	return settings.Load(".")
}

func newLogger(s *settings.Settings) *slog.Logger {
	level := s.Logging.Level
	if logLevelFlag != "" {
		level = logLevelFlag
	}
	return slogutil.NewLogger(os.Stderr, slogutil.LevelFromString(level))
}

func newLoader(s *settings.Settings, log *slog.Logger) *configstore.Loader {
	return &configstore.Loader{BaseDir: s.Config.Dir, Log: log}
}

// printJSON writes a result to stdout for scripting.
func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
