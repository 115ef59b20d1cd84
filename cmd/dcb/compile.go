package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"dcb/internal/compile"
	"dcb/internal/model"
)

var (
	compilePlatform    string
	compileBuildConfig string
	compileForce       bool
	compileTimeoutSecs int
	compileExtraPaths  []string
	compileExtraFlags  []string
)

var compileCmd = &cobra.Command{
	Use:   "compile <project>",
	Short: "Compile a Delphi project",
	Long: `Compile a .dpr, .dpk or .dproj file using the configured Delphi
installation. The result is printed as JSON: structured errors with file,
line and column, plus statistics.`,
	Args: cobra.ExactArgs(1),
	RunE: runCompile,
}

func init() {
	rootCmd.AddCommand(compileCmd)

	compileCmd.Flags().StringVar(&compilePlatform, "platform", "",
		"Target platform (Win32, Win64, Win64x, Linux64); defaults to the project's active platform")
	compileCmd.Flags().StringVar(&compileBuildConfig, "build-config", "",
		"Build configuration (Debug, Release); defaults to the project's active configuration")
	compileCmd.Flags().BoolVar(&compileForce, "force", false, "Rebuild all units (-B)")
	compileCmd.Flags().IntVar(&compileTimeoutSecs, "timeout", 0,
		"Compile timeout in seconds (default from settings)")
	compileCmd.Flags().StringArrayVar(&compileExtraPaths, "path", nil,
		"Additional unit search path (repeatable)")
	compileCmd.Flags().StringArrayVar(&compileExtraFlags, "flag", nil,
		"Additional compiler flag, passed through verbatim (repeatable)")
}

func runCompile(cmd *cobra.Command, args []string) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}
	log := newLogger(s)

	opts := compile.Options{
		ConfigPath: configFileFlag,
		Force:      compileForce,
		ExtraPaths: compileExtraPaths,
		ExtraFlags: compileExtraFlags,
		Timeout:    s.CompileTimeout(),
	}
	if compileTimeoutSecs > 0 {
		opts.Timeout = time.Duration(compileTimeoutSecs) * time.Second
	}
	if compilePlatform != "" {
		if opts.Platform, err = model.ParsePlatform(compilePlatform); err != nil {
			return err
		}
	}
	if compileBuildConfig != "" {
		if opts.BuildConfig, err = model.ParseBuildConfig(compileBuildConfig); err != nil {
			return err
		}
	}

	service := &compile.Service{Loader: newLoader(s, log), Log: log}
	result, err := service.Compile(cmd.Context(), args[0], opts)
	if err != nil {
		return err
	}
	if err := printJSON(result); err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("compilation failed with %d error(s)", len(result.Errors))
	}
	return nil
}
