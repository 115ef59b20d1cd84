package configstore

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	tomlv2 "github.com/pelletier/go-toml/v2"

	"dcb/internal/dcberr"
	"dcb/internal/model"
	"dcb/internal/pathutil"
)

// Extender merges facts from an additional build log into an existing
// configuration file without disturbing settings the user already has.
// The file is round-tripped through a generic map so unknown sections
// survive untouched.
type Extender struct {
	Env pathutil.Env
	Log *slog.Logger
}

func (e *Extender) env() pathutil.Env {
	if e.Env != nil {
		return e.Env
	}
	return pathutil.OSEnv
}

func (e *Extender) log() *slog.Logger {
	if e.Log != nil {
		return e.Log
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Extend merges facts into the configuration at configPath and writes the
// result to outputPath (configPath when empty). Existing values always
// win; only genuinely new paths, namespaces, aliases and flags are added.
func (e *Extender) Extend(facts *model.BuildLogFacts, configPath, outputPath string) (*model.ExtendConfigResult, error) {
	if outputPath == "" {
		outputPath = configPath
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, dcberr.New(dcberr.NotFound, "config file %s not found, generate one from a build log first", configPath)
		}
		return nil, dcberr.Wrap(dcberr.InternalError, err, "reading config %s", configPath)
	}

	var doc map[string]any
	if err := tomlv2.Unmarshal(data, &doc); err != nil {
		return nil, dcberr.Wrap(dcberr.ParseError, err, "parsing config %s", configPath)
	}

	result := &model.ExtendConfigResult{
		ConfigPath:      outputPath,
		SettingsUpdated: make(map[string]int),
	}

	paths := ensureTable(doc, "paths")
	system := ensureTable(paths, "system")
	compiler := ensureTable(doc, "compiler")

	e.mergeSystemPaths(system, facts, result)
	e.mergeLibraryPaths(paths, facts, result)
	e.mergeNamespaces(compiler, facts, result)
	e.mergeAliases(compiler, facts, result)
	e.mergeFlags(compiler, facts, result)
	e.mergeLinuxSDK(doc, facts, result)

	out, err := tomlv2.Marshal(doc)
	if err != nil {
		return nil, dcberr.Wrap(dcberr.InternalError, err, "encoding config")
	}
	if err := os.WriteFile(outputPath, out, 0o644); err != nil {
		return nil, dcberr.Wrap(dcberr.InternalError, err, "writing config %s", outputPath)
	}
	return result, nil
}

// mergeSystemPaths adds the compiled lib directories for the log's
// platform and configuration. When neither config of a platform was
// present before, the platform counts as newly added.
func (e *Extender) mergeSystemPaths(system map[string]any, facts *model.BuildLogFacts, result *model.ExtendConfigResult) {
	root := installRoot(facts.CompilerPath)
	lower := strings.ToLower(string(facts.Platform))

	releaseKey := "lib_" + lower + "_release"
	debugKey := "lib_" + lower + "_debug"
	_, hadRelease := system[releaseKey]
	_, hadDebug := system[debugKey]
	if !hadRelease && !hadDebug {
		result.PlatformsAdded = append(result.PlatformsAdded, facts.Platform)
	}

	for key, cfg := range map[string]string{releaseKey: "release", debugKey: "debug"} {
		if _, ok := system[key]; ok {
			result.PathsSkipped++
			continue
		}
		system[key] = e.formatPath(filepath.Join(root, "lib", string(facts.Platform), cfg))
		result.PathsAdded++
		result.SettingsUpdated["system_paths"]++
	}
}

// mergeLibraryPaths adds new third-party paths to [paths.libraries]. Every
// path already present anywhere under [paths], including the
// platform/configuration-scoped tables, counts as existing.
func (e *Extender) mergeLibraryPaths(paths map[string]any, facts *model.BuildLogFacts, result *model.ExtendConfigResult) {
	libraries := ensureTable(paths, "libraries")
	root := installRoot(facts.CompilerPath)
	existing := make(map[string]bool)
	collectPathValues(paths, existing, e.normalize)

	used := make(map[string]bool, len(libraries))
	for name := range libraries {
		used[name] = true
	}

	for _, p := range facts.SearchPaths {
		if isSystemPath(p, root) {
			continue
		}
		if existing[e.normalize(p)] {
			result.PathsSkipped++
			continue
		}
		name := uniqueName(DeriveLibraryName(p), used)
		used[name] = true
		libraries[name] = e.formatPath(p)
		existing[e.normalize(p)] = true
		result.PathsAdded++
		result.SettingsUpdated["library_paths"]++
		e.log().Debug("library path added", "name", name, "path", p)
	}
}

// collectPathValues gathers normalized string values from a table and its
// nested tables.
func collectPathValues(tbl map[string]any, into map[string]bool, normalize func(string) string) {
	for _, v := range tbl {
		switch val := v.(type) {
		case string:
			into[normalize(val)] = true
		case map[string]any:
			collectPathValues(val, into, normalize)
		}
	}
}

func (e *Extender) mergeNamespaces(compiler map[string]any, facts *model.BuildLogFacts, result *model.ExtendConfigResult) {
	if len(facts.NamespacePrefixes) == 0 {
		return
	}
	namespaces := ensureTable(compiler, "namespaces")
	prefixes := toAnySlice(namespaces["prefixes"])

	seen := make(map[string]bool, len(prefixes))
	for _, v := range prefixes {
		if s, ok := v.(string); ok {
			seen[strings.ToLower(s)] = true
		}
	}
	for _, ns := range facts.NamespacePrefixes {
		if seen[strings.ToLower(ns)] {
			continue
		}
		prefixes = append(prefixes, ns)
		seen[strings.ToLower(ns)] = true
		result.SettingsUpdated["namespaces"]++
	}
	namespaces["prefixes"] = prefixes
}

func (e *Extender) mergeAliases(compiler map[string]any, facts *model.BuildLogFacts, result *model.ExtendConfigResult) {
	if len(facts.UnitAliases) == 0 {
		return
	}
	aliases := ensureTable(compiler, "aliases")
	for old, full := range facts.UnitAliases {
		if _, ok := aliases[old]; ok {
			continue
		}
		aliases[old] = full
		result.SettingsUpdated["aliases"]++
	}
}

// mergeFlags unions new flags into the "common" list when one exists
// (hierarchical config) and into "flags" otherwise.
func (e *Extender) mergeFlags(compiler map[string]any, facts *model.BuildLogFacts, result *model.ExtendConfigResult) {
	if len(facts.CompilerFlags) == 0 {
		return
	}
	flagsTable := ensureTable(compiler, "flags")
	key := "flags"
	if _, ok := flagsTable["common"]; ok {
		key = "common"
	}
	list := toAnySlice(flagsTable[key])

	seen := make(map[string]bool, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			seen[strings.ToLower(s)] = true
		}
	}
	for _, f := range facts.CompilerFlags {
		if seen[strings.ToLower(f)] {
			continue
		}
		list = append(list, f)
		seen[strings.ToLower(f)] = true
		result.SettingsUpdated["flags"]++
	}
	flagsTable[key] = list
}

func (e *Extender) mergeLinuxSDK(doc map[string]any, facts *model.BuildLogFacts, result *model.ExtendConfigResult) {
	if facts.SDKSysroot == "" && len(facts.SDKLibPaths) == 0 {
		return
	}
	sdk := ensureTable(doc, "linux_sdk")

	if facts.SDKSysroot != "" {
		if _, ok := sdk["sysroot"]; !ok {
			sdk["sysroot"] = e.formatPath(facts.SDKSysroot)
			result.SettingsUpdated["linux_sdk"]++
		}
	}

	libPaths := toAnySlice(sdk["libpaths"])
	seen := make(map[string]bool, len(libPaths))
	for _, v := range libPaths {
		if s, ok := v.(string); ok {
			seen[e.normalize(s)] = true
		}
	}
	for _, p := range facts.SDKLibPaths {
		if seen[e.normalize(p)] {
			continue
		}
		libPaths = append(libPaths, e.formatPath(p))
		seen[e.normalize(p)] = true
		result.SettingsUpdated["linux_sdk"]++
	}
	if len(libPaths) > 0 {
		sdk["libpaths"] = libPaths
	}
}

// normalize prepares a path for equality checks: case and separator
// folded, with ${USERNAME} expanded so generated and literal spellings of
// the same directory compare equal.
func (e *Extender) normalize(p string) string {
	expanded := pathutil.ExpandVars(p, e.env())
	return pathutil.NormalizeForComparison(expanded)
}

func (e *Extender) formatPath(p string) string {
	return pathutil.FormatForConfig(p, e.env())
}

func ensureTable(parent map[string]any, key string) map[string]any {
	if t, ok := parent[key].(map[string]any); ok {
		return t
	}
	t := make(map[string]any)
	parent[key] = t
	return t
}

func toAnySlice(v any) []any {
	switch list := v.(type) {
	case []any:
		return list
	case []string:
		out := make([]any, len(list))
		for i, s := range list {
			out[i] = s
		}
		return out
	default:
		return nil
	}
}
