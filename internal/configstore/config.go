// Package configstore loads, generates and extends the delphi_config.toml
// files that describe a Delphi installation: compiler locations, system and
// third-party search paths, namespace prefixes, unit aliases, compiler flags
// and the Linux cross-compilation SDK.
package configstore

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"dcb/internal/dcberr"
	"dcb/internal/model"
	"dcb/internal/pathutil"
)

// DefaultConfigName is the generic configuration filename.
const DefaultConfigName = "delphi_config.toml"

// EnvConfigVar names the environment variable that overrides config lookup.
const EnvConfigVar = "DELPHI_CONFIG"

// PlatformConfigName returns the platform-specific configuration filename,
// e.g. delphi_config_win64.toml.
func PlatformConfigName(platform model.Platform) string {
	return fmt.Sprintf("delphi_config_%s.toml", strings.ToLower(string(platform)))
}

// Config is a loaded configuration document.
type Config struct {
	Delphi   DelphiSection   `toml:"delphi"`
	Paths    PathsSection    `toml:"paths"`
	Compiler CompilerSection `toml:"compiler"`
	LinuxSDK LinuxSDKSection `toml:"linux_sdk"`

	// Path is where the document was loaded from.
	Path string `toml:"-"`
	// Source records how the file was found: explicit, env, platform
	// or generic.
	Source string `toml:"-"`
}

type DelphiSection struct {
	Version         string `toml:"version"`
	RootPath        string `toml:"root_path"`
	CompilerWin32   string `toml:"compiler_win32,omitempty"`
	CompilerWin64   string `toml:"compiler_win64,omitempty"`
	CompilerLinux64 string `toml:"compiler_linux64,omitempty"`
}

type PathsSection struct {
	System    map[string]string `toml:"system"`
	Libraries map[string]string `toml:"libraries"`
	// Scoped holds [paths.<Platform>.<Config>] tables: library paths that
	// apply to a single platform/configuration pair. Encoded separately,
	// hence the "-" tag.
	Scoped map[string]map[string]map[string]string `toml:"-"`
}

// UnmarshalTOML routes the fixed system and libraries tables into their
// maps and every remaining table into Scoped, keyed by platform then
// configuration.
func (p *PathsSection) UnmarshalTOML(data any) error {
	raw, ok := data.(map[string]any)
	if !ok {
		return fmt.Errorf("paths: expected table, got %T", data)
	}
	p.System = toStringMap(raw["system"])
	p.Libraries = toStringMap(raw["libraries"])

	for key, val := range raw {
		if key == "system" || key == "libraries" {
			continue
		}
		byConfig, ok := val.(map[string]any)
		if !ok {
			continue
		}
		for cfg, tbl := range byConfig {
			paths := toStringMap(tbl)
			if len(paths) == 0 {
				continue
			}
			if p.Scoped == nil {
				p.Scoped = make(map[string]map[string]map[string]string)
			}
			if p.Scoped[key] == nil {
				p.Scoped[key] = make(map[string]map[string]string)
			}
			p.Scoped[key][cfg] = paths
		}
	}
	return nil
}

func toStringMap(v any) map[string]string {
	tbl, ok := v.(map[string]any)
	if !ok {
		return map[string]string{}
	}
	out := make(map[string]string, len(tbl))
	for k, item := range tbl {
		if s, ok := item.(string); ok {
			out[k] = s
		}
	}
	return out
}

type CompilerSection struct {
	Namespaces NamespaceSection  `toml:"namespaces"`
	Aliases    map[string]string `toml:"aliases,omitempty"`
	// Flags holds either a flat list under "flags", a "common" list plus
	// per-platform tables, or both. Kept generic so scoped tables like
	// [compiler.flags.Win64.Debug] survive decoding.
	Flags map[string]any `toml:"flags"`
}

type NamespaceSection struct {
	Prefixes []string `toml:"prefixes"`
}

type LinuxSDKSection struct {
	Sysroot  string   `toml:"sysroot,omitempty"`
	LibPaths []string `toml:"libpaths,omitempty"`
}

// Loader finds, decodes and validates configuration files.
type Loader struct {
	// Env supplies variable expansion and the DELPHI_CONFIG override.
	Env pathutil.Env
	// BaseDir is searched for the default config filenames. Empty means
	// the current directory.
	BaseDir string
	// Log receives advisory warnings. Nil discards them.
	Log *slog.Logger
}

func (l *Loader) env() pathutil.Env {
	if l.Env != nil {
		return l.Env
	}
	return pathutil.OSEnv
}

func (l *Loader) log() *slog.Logger {
	if l.Log != nil {
		return l.Log
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// FindConfigFile resolves the config file for a platform. Precedence:
// explicit path, $DELPHI_CONFIG, platform-specific filename, generic
// filename. The returned source names the rule that matched.
func (l *Loader) FindConfigFile(explicit string, platform model.Platform) (path, source string) {
	if explicit != "" {
		return explicit, "explicit"
	}
	if envPath, ok := l.env()(EnvConfigVar); ok && envPath != "" {
		return envPath, "env"
	}
	if platform != "" {
		candidate := filepath.Join(l.BaseDir, PlatformConfigName(platform))
		if _, err := os.Stat(candidate); err == nil {
			return candidate, "platform"
		}
	}
	return filepath.Join(l.BaseDir, DefaultConfigName), "generic"
}

// Load resolves, decodes, expands and validates the configuration for the
// given platform. An empty explicit path triggers the standard search.
func (l *Loader) Load(explicit string, platform model.Platform) (*Config, error) {
	path, source := l.FindConfigFile(explicit, platform)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, dcberr.New(dcberr.NotFound,
				"configuration file not found: %s (generate one from a build log first)", path)
		}
		return nil, dcberr.Wrap(dcberr.ParseError, err, "reading configuration %s", path)
	}

	cfg := &Config{Path: path, Source: source}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, dcberr.Wrap(dcberr.ParseError, err, "invalid TOML in %s", path)
	}

	cfg.expand(l.env())

	if err := cfg.validate(platform, l.log()); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expand applies recursive ${VAR} expansion to every string in the document.
func (c *Config) expand(env pathutil.Env) {
	ex := func(s string) string { return pathutil.ExpandVars(s, env) }

	c.Delphi.RootPath = ex(c.Delphi.RootPath)
	c.Delphi.CompilerWin32 = ex(c.Delphi.CompilerWin32)
	c.Delphi.CompilerWin64 = ex(c.Delphi.CompilerWin64)
	c.Delphi.CompilerLinux64 = ex(c.Delphi.CompilerLinux64)

	for k, v := range c.Paths.System {
		c.Paths.System[k] = ex(v)
	}
	for k, v := range c.Paths.Libraries {
		c.Paths.Libraries[k] = ex(v)
	}
	for _, byConfig := range c.Paths.Scoped {
		for _, tbl := range byConfig {
			for k, v := range tbl {
				tbl[k] = ex(v)
			}
		}
	}
	for i, p := range c.Compiler.Namespaces.Prefixes {
		c.Compiler.Namespaces.Prefixes[i] = ex(p)
	}
	for k, v := range c.Compiler.Aliases {
		c.Compiler.Aliases[k] = ex(v)
	}
	c.Compiler.Flags = expandAny(c.Compiler.Flags, env).(map[string]any)

	c.LinuxSDK.Sysroot = ex(c.LinuxSDK.Sysroot)
	for i, p := range c.LinuxSDK.LibPaths {
		c.LinuxSDK.LibPaths[i] = ex(p)
	}
}

func expandAny(v any, env pathutil.Env) any {
	switch val := v.(type) {
	case string:
		return pathutil.ExpandVars(val, env)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = expandAny(item, env)
		}
		return out
	case []string:
		out := make([]string, len(val))
		for i, item := range val {
			out[i] = pathutil.ExpandVars(item, env)
		}
		return out
	case map[string]any:
		if val == nil {
			return map[string]any{}
		}
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = expandAny(item, env)
		}
		return out
	default:
		return v
	}
}

// validate checks the document against the filesystem. A missing
// installation root or a missing compiler for the requested platform is
// fatal; anything else is advisory.
func (c *Config) validate(platform model.Platform, log *slog.Logger) error {
	if c.Delphi.RootPath == "" {
		return dcberr.New(dcberr.ValueError, "delphi.root_path is not set in %s", c.Path)
	}
	if _, err := os.Stat(c.Delphi.RootPath); err != nil {
		return dcberr.New(dcberr.ValueError,
			"Delphi installation not found at %s (check delphi.root_path in %s)",
			c.Delphi.RootPath, c.Path)
	}

	if platform != "" {
		requested := c.CompilerPath(platform)
		if _, err := os.Stat(requested); err != nil {
			return dcberr.New(dcberr.ValueError,
				"%s compiler not found at %s", platform, requested)
		}
	}

	for _, p := range []model.Platform{model.PlatformWin32, model.PlatformWin64, model.PlatformLinux64} {
		if p == platform {
			continue
		}
		if exe := c.CompilerPath(p); exe != "" {
			if _, err := os.Stat(exe); err != nil {
				log.Warn("compiler not available", "platform", p, "path", exe)
			}
		}
	}

	for name, path := range c.Paths.Libraries {
		if _, err := os.Stat(path); err != nil {
			log.Warn("library path does not exist", "library", name, "path", path)
		}
	}
	return nil
}

// CompilerPath returns the compiler executable for a platform, preferring
// the explicit setting, falling back to root_path/bin. Win64x compiles with
// the Win64 executable.
func (c *Config) CompilerPath(platform model.Platform) string {
	switch platform {
	case model.PlatformWin32:
		if c.Delphi.CompilerWin32 != "" {
			return c.Delphi.CompilerWin32
		}
	case model.PlatformWin64, model.PlatformWin64x:
		if c.Delphi.CompilerWin64 != "" {
			return c.Delphi.CompilerWin64
		}
	case model.PlatformLinux64:
		if c.Delphi.CompilerLinux64 != "" {
			return c.Delphi.CompilerLinux64
		}
	}
	return filepath.Join(c.Delphi.RootPath, "bin", platform.CompilerExe())
}

// AllSearchPaths returns the configured search paths for a platform and
// build configuration: the platform's compiled system lib paths (release
// before debug), the shared third-party libraries in stable key order,
// then the [paths.<Platform>.<Config>] entries scoped to this pair.
func (c *Config) AllSearchPaths(platform model.Platform, config model.BuildConfig) []string {
	var paths []string

	key := strings.ToLower(string(platform))
	if p, ok := c.Paths.System["lib_"+key+"_release"]; ok && p != "" {
		paths = append(paths, p)
	}
	if p, ok := c.Paths.System["lib_"+key+"_debug"]; ok && p != "" {
		paths = append(paths, p)
	}

	for _, name := range sortedKeys(c.Paths.Libraries) {
		paths = append(paths, c.Paths.Libraries[name])
	}

	if byConfig, ok := c.Paths.Scoped[string(platform)]; ok {
		if tbl, ok := byConfig[string(config)]; ok {
			for _, name := range sortedKeys(tbl) {
				paths = append(paths, tbl[name])
			}
		}
	}
	return paths
}

// FlagsFor returns the baseline compiler flags for a platform/config pair:
// the flat list ("flags" or "common") followed by the scoped
// [compiler.flags.<Platform>.<Config>] list.
func (c *Config) FlagsFor(platform model.Platform, config model.BuildConfig) []string {
	var flags []string
	flags = append(flags, toStringSlice(c.Compiler.Flags["flags"])...)
	flags = append(flags, toStringSlice(c.Compiler.Flags["common"])...)

	if scoped, ok := c.Compiler.Flags[string(platform)].(map[string]any); ok {
		if byConfig, ok := scoped[string(config)].(map[string]any); ok {
			flags = append(flags, toStringSlice(byConfig["flags"])...)
		}
	}
	return flags
}

// NamespacePrefixes returns the configured namespace prefixes.
func (c *Config) NamespacePrefixes() []string {
	return c.Compiler.Namespaces.Prefixes
}

// SDKSysroot returns the Linux SDK sysroot, empty when not configured.
func (c *Config) SDKSysroot() string { return c.LinuxSDK.Sysroot }

// SDKLibPaths returns the Linux SDK library paths.
func (c *Config) SDKLibPaths() []string { return c.LinuxSDK.LibPaths }

// ResourceCompilerPath returns the cgrc.exe location under the
// installation root.
func (c *Config) ResourceCompilerPath() string {
	return filepath.Join(c.Delphi.RootPath, "bin", "cgrc.exe")
}

func toStringSlice(v any) []string {
	switch val := v.(type) {
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
