package main

import (
	"github.com/spf13/cobra"

	"dcb/internal/buildlog"
	"dcb/internal/configstore"
	"dcb/internal/model"
	"dcb/internal/pathutil"
)

var generateOutput string

var generateCmd = &cobra.Command{
	Use:   "generate-config <build-log>...",
	Short: "Generate a compiler config from IDE build logs",
	Long: `Parse one or more IDE build log files and generate a TOML config
capturing the compiler location, search paths, namespaces, aliases and
flags. With multiple logs, one config is produced covering every
platform/configuration pair found.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().StringVarP(&generateOutput, "output", "o", "",
		"Output config path (default delphi-<platform>.toml next to the log)")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}
	log := newLogger(s)
	gen := &configstore.Generator{Log: log}

	if len(args) == 1 {
		facts, err := buildlog.Parse(pathutil.FromWSL(args[0]))
		if err != nil {
			return err
		}
		result, err := gen.Generate(facts, generateOutput)
		if err != nil {
			return err
		}
		return printJSON(result)
	}

	entries := make([]model.BuildLogEntry, 0, len(args))
	for _, logFile := range args {
		facts, err := buildlog.Parse(pathutil.FromWSL(logFile))
		if err != nil {
			return err
		}
		entries = append(entries, model.BuildLogEntry{LogPath: logFile, Facts: *facts})
	}
	result, err := gen.GenerateMulti(entries, generateOutput)
	if err != nil {
		return err
	}
	return printJSON(result)
}
