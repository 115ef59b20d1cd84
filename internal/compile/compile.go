// Package compile orchestrates a full Delphi build: project resolution,
// configuration lookup, command synthesis, execution and output
// classification.
package compile

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dcb/internal/configstore"
	"dcb/internal/dcberr"
	"dcb/internal/diagnostics"
	"dcb/internal/dproj"
	"dcb/internal/invoke"
	"dcb/internal/model"
	"dcb/internal/pathutil"
	"dcb/internal/rescomp"
)

// Options tune a single compile call. Zero values defer to the project
// file's active settings.
type Options struct {
	// ConfigPath selects an explicit configuration file.
	ConfigPath  string
	Platform    model.Platform
	BuildConfig model.BuildConfig
	// Force requests a full rebuild.
	Force      bool
	ExtraPaths []string
	ExtraFlags []string
	Timeout    time.Duration
}

// Service wires the compile pipeline together.
type Service struct {
	Loader *configstore.Loader
	Log    *slog.Logger
}

func (s *Service) log() *slog.Logger {
	if s.Log != nil {
		return s.Log
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (s *Service) loader() *configstore.Loader {
	if s.Loader != nil {
		return s.Loader
	}
	return &configstore.Loader{Log: s.Log}
}

// Compile builds the given .dpr, .dpk or .dproj file. Pre-flight problems
// (bad input, unusable configuration) surface as errors; compiler
// failures, including timeouts, come back as an unsuccessful
// CompilationResult.
func (s *Service) Compile(ctx context.Context, sourcePath string, opts Options) (*model.CompilationResult, error) {
	sourcePath = pathutil.FromWSL(sourcePath)

	ext := strings.ToLower(filepath.Ext(sourcePath))
	switch ext {
	case ".dpr", ".dpk", ".dproj":
	default:
		return nil, dcberr.New(dcberr.ValueError,
			"unsupported project file %s (expected .dpr, .dpk or .dproj)", sourcePath)
	}
	if _, err := os.Stat(sourcePath); err != nil {
		return nil, dcberr.New(dcberr.NotFound, "project file not found: %s", sourcePath)
	}

	mainSource, settings, err := s.resolveProject(sourcePath, ext, opts)
	if err != nil {
		return nil, err
	}

	platform := opts.Platform
	config := opts.BuildConfig
	if settings != nil {
		if platform == "" {
			platform, _ = model.ParsePlatform(settings.ActivePlatform)
		}
		if config == "" {
			config, _ = model.ParseBuildConfig(settings.ActiveConfig)
		}
	}
	if platform == "" {
		platform = model.PlatformWin32
	}
	if config == "" {
		config = model.ConfigDebug
	}

	cfg, err := s.loader().Load(opts.ConfigPath, platform)
	if err != nil {
		return nil, err
	}

	s.log().Info("compiling",
		"source", mainSource,
		"platform", platform,
		"config", config,
		"configFile", cfg.Path)

	start := time.Now()

	if settings != nil && settings.VersionInfo != nil && platform.IsWindows() {
		builder := &rescomp.Builder{CompilerPath: cfg.ResourceCompilerPath(), Log: s.Log}
		if _, err := builder.Build(ctx, settings.VersionInfo, mainSource); err != nil {
			stem := strings.TrimSuffix(filepath.Base(mainSource), filepath.Ext(mainSource))
			result := model.Failed(err.Error(), time.Since(start).Seconds())
			result.Errors[0].File = stem + ".vrc"
			return result, nil
		}
	}

	argv := invoke.Synthesize(cfg, settings, invoke.Request{
		CompilerPath: cfg.CompilerPath(platform),
		SourceFile:   mainSource,
		Platform:     platform,
		BuildConfig:  config,
		Force:        opts.Force,
		ExtraPaths:   opts.ExtraPaths,
		ExtraFlags:   opts.ExtraFlags,
	})

	runner := &invoke.Runner{Timeout: opts.Timeout, Log: s.Log}
	run, err := runner.Run(ctx, argv, filepath.Dir(mainSource))
	if err != nil {
		return model.Failed("Compilation failed: "+err.Error(), time.Since(start).Seconds()), nil
	}
	if run.TimedOut {
		return model.Failed(run.Output, run.Elapsed.Seconds()), nil
	}

	report := diagnostics.Classify(run.Output)
	result := &model.CompilationResult{
		Success:                run.ExitCode == 0 && len(report.Errors) == 0,
		ExitCode:               run.ExitCode,
		Errors:                 report.Errors,
		CompilationTimeSeconds: run.Elapsed.Seconds(),
		Statistics:             report.Stats,
	}
	if result.Success {
		result.OutputExecutable = findArtifact(mainSource, settings, platform)
	}

	s.log().Info("compile finished",
		"success", result.Success,
		"errors", len(result.Errors),
		"lines", result.Statistics.LinesCompiled,
		"elapsed", run.Elapsed)
	return result, nil
}

// resolveProject locates and resolves the project descriptor. A .dproj
// argument is used directly; a .dpr or .dpk looks for its sibling
// descriptor and compiles bare when there is none.
func (s *Service) resolveProject(sourcePath, ext string, opts Options) (string, *model.ProjectSettings, error) {
	projectPath := ""
	mainSource := sourcePath

	if ext == ".dproj" {
		projectPath = sourcePath
	} else {
		sibling := strings.TrimSuffix(sourcePath, filepath.Ext(sourcePath)) + ".dproj"
		if _, err := os.Stat(sibling); err == nil {
			projectPath = sibling
		}
	}

	if projectPath == "" {
		s.log().Debug("no project descriptor, compiling bare", "source", sourcePath)
		return mainSource, nil, nil
	}

	project, err := dproj.Load(projectPath)
	if err != nil {
		return "", nil, err
	}
	settings, err := project.Resolve(string(opts.BuildConfig), string(opts.Platform))
	if err != nil {
		return "", nil, err
	}

	if ext == ".dproj" {
		if settings.MainSource != "" {
			mainSource = settings.MainSource
			if !filepath.IsAbs(mainSource) {
				mainSource = filepath.Join(filepath.Dir(sourcePath), mainSource)
			}
		} else {
			mainSource = strings.TrimSuffix(sourcePath, ".dproj") + ".dpr"
		}
		if _, err := os.Stat(mainSource); err != nil {
			return "", nil, dcberr.New(dcberr.NotFound, "main source not found: %s", mainSource)
		}
	}
	return mainSource, settings, nil
}

// findArtifact looks for the produced binary: the project's output
// directory first, then the source directory and the per-platform
// Debug/Release subdirectories the IDE defaults to.
func findArtifact(mainSource string, settings *model.ProjectSettings, platform model.Platform) string {
	isPackage := strings.EqualFold(filepath.Ext(mainSource), ".dpk")
	stem := strings.TrimSuffix(filepath.Base(mainSource), filepath.Ext(mainSource))

	name := stem + artifactExt(platform, isPackage)
	dir := filepath.Dir(mainSource)

	var candidates []string
	if settings != nil && settings.OutputDir != "" {
		candidates = append(candidates, filepath.Join(settings.OutputDir, name))
	}
	candidates = append(candidates,
		filepath.Join(dir, name),
		filepath.Join(dir, string(platform), "Debug", name),
		filepath.Join(dir, string(platform), "Release", name),
	)

	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c
		}
	}
	return ""
}

func artifactExt(platform model.Platform, isPackage bool) string {
	if platform == model.PlatformLinux64 {
		if isPackage {
			return ".so"
		}
		return ""
	}
	if isPackage {
		return ".bpl"
	}
	return ".exe"
}
