// Package model holds the shared data types of the Delphi compile backend:
// build-log facts, resolved project settings, diagnostics and result shapes.
package model

import (
	"fmt"
	"strings"

	"dcb/internal/dcberr"
)

// Platform identifies a Delphi target platform.
type Platform string

const (
	PlatformWin32     Platform = "Win32"
	PlatformWin64     Platform = "Win64"
	PlatformWin64x    Platform = "Win64x"
	PlatformLinux64   Platform = "Linux64"
	PlatformAndroid   Platform = "Android"
	PlatformAndroid64 Platform = "Android64"
)

// Platforms lists every supported platform in canonical order.
var Platforms = []Platform{
	PlatformWin32,
	PlatformWin64,
	PlatformWin64x,
	PlatformLinux64,
	PlatformAndroid,
	PlatformAndroid64,
}

// ParsePlatform maps a case-insensitive platform token to its canonical
// Platform value.
func ParsePlatform(s string) (Platform, error) {
	for _, p := range Platforms {
		if strings.EqualFold(s, string(p)) {
			return p, nil
		}
	}
	return "", dcberr.New(dcberr.ValueError, "unknown platform %q", s)
}

// CompilerExe returns the compiler executable name for the platform.
// Win64x shares dcc64.exe with Win64.
func (p Platform) CompilerExe() string {
	switch p {
	case PlatformWin32:
		return "dcc32.exe"
	case PlatformWin64, PlatformWin64x:
		return "dcc64.exe"
	case PlatformLinux64:
		return "dcclinux64.exe"
	default:
		return "dcc32.exe"
	}
}

// IsWindows reports whether the platform produces Windows binaries.
func (p Platform) IsWindows() bool {
	switch p {
	case PlatformWin32, PlatformWin64, PlatformWin64x:
		return true
	}
	return false
}

// BuildConfig is the build configuration of an invocation.
type BuildConfig string

const (
	ConfigDebug   BuildConfig = "Debug"
	ConfigRelease BuildConfig = "Release"
)

// ParseBuildConfig maps a case-insensitive token to a BuildConfig.
func ParseBuildConfig(s string) (BuildConfig, error) {
	switch {
	case strings.EqualFold(s, string(ConfigDebug)):
		return ConfigDebug, nil
	case strings.EqualFold(s, string(ConfigRelease)):
		return ConfigRelease, nil
	}
	return "", dcberr.New(dcberr.ValueError, "unknown build configuration %q", s)
}

// BuildLogFacts captures everything a build-log transcript reveals about a
// compiler invocation.
type BuildLogFacts struct {
	CompilerPath         string            `json:"compilerPath"`
	DelphiVersion        string            `json:"delphiVersion"`
	Platform             Platform          `json:"platform"`
	BuildConfig          BuildConfig       `json:"buildConfig"`
	SearchPaths          []string          `json:"searchPaths"`
	NamespacePrefixes    []string          `json:"namespacePrefixes,omitempty"`
	UnitAliases          map[string]string `json:"unitAliases,omitempty"`
	CompilerFlags        []string          `json:"compilerFlags,omitempty"`
	SDKSysroot           string            `json:"sdkSysroot,omitempty"`
	SDKLibPaths          []string          `json:"sdkLibPaths,omitempty"`
	ResourceCompilerPath string            `json:"resourceCompilerPath,omitempty"`
}

// ProjectSettings is the resolved view of a project descriptor for one
// configuration/platform pair.
type ProjectSettings struct {
	ActiveConfig      string       `json:"activeConfig"`
	ActivePlatform    string       `json:"activePlatform"`
	MainSource        string       `json:"mainSource,omitempty"`
	CompilerFlags     []string     `json:"compilerFlags,omitempty"`
	Defines           []string     `json:"defines,omitempty"`
	UnitSearchPaths   []string     `json:"unitSearchPaths,omitempty"`
	IncludePaths      []string     `json:"includePaths,omitempty"`
	ResourcePaths     []string     `json:"resourcePaths,omitempty"`
	OutputDir         string       `json:"outputDir,omitempty"`
	DCUOutputDir      string       `json:"dcuOutputDir,omitempty"`
	NamespacePrefixes []string     `json:"namespacePrefixes,omitempty"`
	VersionInfo       *VersionInfo `json:"versionInfo,omitempty"`
}

// VersionInfo carries the version resource fields of a project descriptor.
type VersionInfo struct {
	Major   int               `json:"major"`
	Minor   int               `json:"minor"`
	Release int               `json:"release"`
	Build   int               `json:"build"`
	Locale  int               `json:"locale"`
	Keys    map[string]string `json:"keys,omitempty"`
}

// FileVersionString renders the four-part version number.
func (v *VersionInfo) FileVersionString() string {
	return fmt.Sprintf("%d.%d.%d.%d", v.Major, v.Minor, v.Release, v.Build)
}

// Diagnostic is a single compiler error or fatal message.
type Diagnostic struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Column   int    `json:"column,omitempty"`
	Severity string `json:"severity"`
	Code     string `json:"code,omitempty"`
	Message  string `json:"message"`
}

// Severity values carried by Diagnostic.
const (
	SeverityError = "error"
	SeverityFatal = "fatal"
)

// CompilationStatistics summarizes the messages a compile run produced.
type CompilationStatistics struct {
	LinesCompiled    int `json:"linesCompiled"`
	WarningsFiltered int `json:"warningsFiltered"`
	HintsFiltered    int `json:"hintsFiltered"`
}

// CompilationResult is the outcome of one compile call.
type CompilationResult struct {
	Success                bool                  `json:"success"`
	ExitCode               int                   `json:"exitCode"`
	Errors                 []Diagnostic          `json:"errors"`
	CompilationTimeSeconds float64               `json:"compilationTimeSeconds"`
	OutputExecutable       string                `json:"outputExecutable,omitempty"`
	Statistics             CompilationStatistics `json:"statistics"`
}

// Failed builds a failed result carrying raw process output as a single
// diagnostic. Used for timeouts and spawn failures.
func Failed(message string, elapsed float64) *CompilationResult {
	return &CompilationResult{
		Success:  false,
		ExitCode: 1,
		Errors: []Diagnostic{{
			File:     "(unknown)",
			Severity: SeverityFatal,
			Message:  message,
		}},
		CompilationTimeSeconds: elapsed,
	}
}

// ConfigGenerationResult reports a single-log config generation.
type ConfigGenerationResult struct {
	OutputPath   string      `json:"outputPath"`
	Platform     Platform    `json:"platform"`
	BuildConfig  BuildConfig `json:"buildConfig"`
	SystemPaths  int         `json:"systemPaths"`
	LibraryPaths int         `json:"libraryPaths"`
	Namespaces   int         `json:"namespaces"`
	Flags        int         `json:"flags"`
}

// BuildLogEntry pairs a build-log path with the facts extracted from it.
type BuildLogEntry struct {
	LogPath string        `json:"logPath"`
	Facts   BuildLogFacts `json:"facts"`
}

// MultiConfigGenerationResult reports a multi-log config generation.
type MultiConfigGenerationResult struct {
	OutputPath    string   `json:"outputPath"`
	Pairs         []string `json:"pairs"`
	SharedPaths   int      `json:"sharedPaths"`
	SpecificPaths int      `json:"specificPaths"`
	CommonFlags   int      `json:"commonFlags"`
}

// ExtendConfigResult reports what an extension pass changed.
type ExtendConfigResult struct {
	ConfigPath      string         `json:"configPath"`
	PathsAdded      int            `json:"pathsAdded"`
	PathsSkipped    int            `json:"pathsSkipped"`
	PlatformsAdded  []Platform     `json:"platformsAdded,omitempty"`
	SettingsUpdated map[string]int `json:"settingsUpdated,omitempty"`
}
