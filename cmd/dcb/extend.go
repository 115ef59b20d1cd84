package main

import (
	"github.com/spf13/cobra"

	"dcb/internal/buildlog"
	"dcb/internal/configstore"
	"dcb/internal/pathutil"
)

var extendOutput string

var extendCmd = &cobra.Command{
	Use:   "extend-config <build-log>",
	Short: "Extend an existing config with facts from another build log",
	Long: `Parse an IDE build log and merge its search paths, namespaces,
aliases and flags into an existing config. Paths already present are
skipped; everything user-authored in the config is preserved.`,
	Args: cobra.ExactArgs(1),
	RunE: runExtend,
}

func init() {
	rootCmd.AddCommand(extendCmd)

	extendCmd.Flags().StringVarP(&extendOutput, "output", "o", "",
		"Output config path (default: overwrite the input config)")
}

func runExtend(cmd *cobra.Command, args []string) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}
	log := newLogger(s)

	facts, err := buildlog.Parse(pathutil.FromWSL(args[0]))
	if err != nil {
		return err
	}

	configPath := configFileFlag
	if configPath == "" {
		loader := newLoader(s, log)
		configPath, _ = loader.FindConfigFile("", facts.Platform)
	}

	ext := &configstore.Extender{Log: log}
	result, err := ext.Extend(facts, configPath, extendOutput)
	if err != nil {
		return err
	}
	return printJSON(result)
}
