package configstore

import (
	"bytes"
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

// Generator builds configuration documents from build-log facts.
type Generator struct {
	// Env supplies the username for ${USERNAME} path substitution.
	Env pathutil.Env
	// Log receives advisory notes. Nil discards them.
	Log *slog.Logger
}

func (g *Generator) env() pathutil.Env {
	if g.Env != nil {
		return g.Env
	}
	return pathutil.OSEnv
}

func (g *Generator) log() *slog.Logger {
	if g.Log != nil {
		return g.Log
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// document is the serialized shape of a configuration file.
type document struct {
	Delphi   DelphiSection    `toml:"delphi"`
	Paths    PathsSection     `toml:"paths"`
	Compiler compilerDocument `toml:"compiler"`
	LinuxSDK *LinuxSDKSection `toml:"linux_sdk,omitempty"`
}

type compilerDocument struct {
	Namespaces NamespaceSection  `toml:"namespaces"`
	Aliases    map[string]string `toml:"aliases"`
	Flags      map[string]any    `toml:"flags"`
}

// Default settings used when a build log reveals nothing for a section.
var (
	defaultNamespaces = []string{
		"Winapi", "System.Win", "Data.Win", "Datasnap.Win",
		"Web.Win", "Soap.Win", "Xml.Win", "Bde",
		"System", "Xml", "Data", "Datasnap", "Web", "Soap", "Vcl",
	}
	defaultAliases = map[string]string{
		"Generics.Collections": "System.Generics.Collections",
		"Generics.Defaults":    "System.Generics.Defaults",
		"WinTypes":             "Winapi.Windows",
		"WinProcs":             "Winapi.Windows",
		"SysUtils":             "System.SysUtils",
		"Classes":              "System.Classes",
	}
	defaultFlags = []string{"--no-config"}
)

// Generate builds a configuration from a single build log's facts and
// writes it to outputPath. An empty outputPath selects the
// platform-specific default filename. The whole document is assembled in
// memory and written in one step.
func (g *Generator) Generate(facts *model.BuildLogFacts, outputPath string) (*model.ConfigGenerationResult, error) {
	if outputPath == "" {
		outputPath = PlatformConfigName(facts.Platform)
	}

	root := installRoot(facts.CompilerPath)
	systemPaths, libraryPaths := splitPaths(facts.SearchPaths, root)

	doc := document{
		Delphi: DelphiSection{
			Version:  facts.DelphiVersion,
			RootPath: g.formatPath(root),
		},
		Paths: PathsSection{
			System:    g.systemSection(systemPaths, root),
			Libraries: g.librarySection(libraryPaths),
		},
		Compiler: compilerDocument{
			Namespaces: NamespaceSection{Prefixes: orDefault(facts.NamespacePrefixes, defaultNamespaces)},
			Aliases:    orDefaultMap(facts.UnitAliases, defaultAliases),
			Flags:      map[string]any{"flags": orDefault(facts.CompilerFlags, defaultFlags)},
		},
		LinuxSDK: g.sdkSection(facts),
	}

	header := fmt.Sprintf(
		"# Delphi build backend configuration\n# Generated from an IDE build log\n# Delphi version: %s, platform: %s, config: %s\n\n",
		facts.DelphiVersion, facts.Platform, facts.BuildConfig)

	if err := g.encodeAndWrite(outputPath, header, doc, ""); err != nil {
		return nil, err
	}

	g.log().Info("configuration generated",
		"path", outputPath,
		"platform", facts.Platform,
		"config", facts.BuildConfig,
		"systemPaths", len(doc.Paths.System),
		"libraryPaths", len(doc.Paths.Libraries))

	return &model.ConfigGenerationResult{
		OutputPath:   outputPath,
		Platform:     facts.Platform,
		BuildConfig:  facts.BuildConfig,
		SystemPaths:  len(doc.Paths.System),
		LibraryPaths: len(doc.Paths.Libraries),
		Namespaces:   len(doc.Compiler.Namespaces.Prefixes),
		Flags:        len(facts.CompilerFlags),
	}, nil
}

// GenerateMulti merges facts from several build logs (different platform
// and configuration pairs) into one hierarchical configuration. Paths and
// flags seen in every pair go into the shared sections; the rest go into
// per-pair [paths.<Platform>.<Config>] and flag tables.
func (g *Generator) GenerateMulti(entries []model.BuildLogEntry, outputPath string) (*model.MultiConfigGenerationResult, error) {
	if len(entries) == 0 {
		return nil, dcberr.New(dcberr.ValueError, "no build logs given")
	}
	if outputPath == "" {
		outputPath = DefaultConfigName
	}

	type pairKey struct {
		config   model.BuildConfig
		platform model.Platform
	}

	merged := make(map[pairKey]*model.BuildLogFacts)
	var order []pairKey
	for i := range entries {
		facts := entries[i].Facts
		key := pairKey{facts.BuildConfig, facts.Platform}
		if have, ok := merged[key]; ok {
			have.SearchPaths = pathutil.Dedup(append(have.SearchPaths, facts.SearchPaths...))
			have.NamespacePrefixes = mergeFold(have.NamespacePrefixes, facts.NamespacePrefixes)
		} else {
			copied := facts
			merged[key] = &copied
			order = append(order, key)
		}
	}

	first := merged[order[0]]
	root := installRoot(first.CompilerPath)

	// System paths: rtl/vcl sources plus both lib configs for every
	// platform seen. Resource files only ship in the release folder, so
	// debug builds still need it.
	system := map[string]string{
		"rtl": g.formatPath(filepath.Join(root, "source", "rtl")),
		"vcl": g.formatPath(filepath.Join(root, "source", "vcl")),
	}
	platformSeen := map[model.Platform]bool{}
	for _, key := range order {
		platformSeen[key.platform] = true
	}
	for platform := range platformSeen {
		lower := strings.ToLower(string(platform))
		for _, cfg := range []string{"debug", "release"} {
			system["lib_"+lower+"_"+cfg] = g.formatPath(filepath.Join(root, "lib", string(platform), cfg))
		}
	}

	// Libraries seen in every pair share [paths.libraries]; the rest are
	// scoped to the [paths.<Platform>.<Config>] section of each pair that
	// uses them.
	pairCount := make(map[string]int)
	for _, key := range order {
		for _, p := range merged[key].SearchPaths {
			pairCount[pathutil.NormalizeForComparison(p)]++
		}
	}

	libraries := make(map[string]string)
	used := make(map[string]bool)
	seen := make(map[string]bool)
	scoped := make(map[model.Platform]map[model.BuildConfig]map[string]string)
	shared, specific := 0, 0
	for _, key := range order {
		_, libPaths := splitPaths(merged[key].SearchPaths, root)
		scopedUsed := map[string]bool{"lib": true}
		for _, p := range libPaths {
			norm := pathutil.NormalizeForComparison(p)
			if pairCount[norm] == len(order) {
				if seen[norm] {
					continue
				}
				seen[norm] = true
				name := uniqueName(DeriveLibraryName(p), used)
				used[name] = true
				libraries[name] = g.formatPath(p)
				shared++
				continue
			}

			name := DeriveLibraryName(p)
			if platformSpecificPath(p) {
				name += "_" + strings.ToLower(string(key.platform))
			}
			name = uniqueName(name, scopedUsed)
			scopedUsed[name] = true
			if scoped[key.platform] == nil {
				scoped[key.platform] = make(map[model.BuildConfig]map[string]string)
			}
			if scoped[key.platform][key.config] == nil {
				scoped[key.platform][key.config] = make(map[string]string)
			}
			scoped[key.platform][key.config][name] = g.formatPath(p)
			specific++
		}
	}

	// Flags: intersection of all pairs is common; leftovers are scoped.
	var common []string
	for _, f := range merged[order[0]].CompilerFlags {
		inAll := true
		for _, key := range order[1:] {
			if !containsString(merged[key].CompilerFlags, f) {
				inAll = false
				break
			}
		}
		if inAll {
			common = append(common, f)
		}
	}
	flags := map[string]any{"common": orDefault(common, defaultFlags)}
	commonSet := make(map[string]bool, len(common))
	for _, f := range common {
		commonSet[f] = true
	}
	for _, key := range order {
		var extra []string
		for _, f := range merged[key].CompilerFlags {
			if !commonSet[f] {
				extra = append(extra, strings.ReplaceAll(f, `\`, "/"))
			}
		}
		if len(extra) == 0 {
			continue
		}
		sort.Strings(extra)
		byPlatform, ok := flags[string(key.platform)].(map[string]any)
		if !ok {
			byPlatform = map[string]any{}
			flags[string(key.platform)] = byPlatform
		}
		byPlatform[string(key.config)] = map[string]any{"flags": extra}
	}

	doc := document{
		Delphi: DelphiSection{
			Version:  first.DelphiVersion,
			RootPath: g.formatPath(root),
		},
		Paths: PathsSection{System: system, Libraries: libraries},
		Compiler: compilerDocument{
			Namespaces: NamespaceSection{Prefixes: orDefault(first.NamespacePrefixes, defaultNamespaces)},
			Aliases:    orDefaultMap(first.UnitAliases, defaultAliases),
			Flags:      flags,
		},
		LinuxSDK: g.sdkSection(first),
	}

	pairs := make([]string, 0, len(order))
	for _, key := range order {
		pairs = append(pairs, fmt.Sprintf("%s/%s", key.platform, key.config))
	}

	header := fmt.Sprintf(
		"# Delphi build backend configuration\n# Generated from %d IDE build logs\n# Pairs: %s\n\n",
		len(entries), strings.Join(pairs, ", "))

	if err := g.encodeAndWrite(outputPath, header, doc, scopedSections(scoped)); err != nil {
		return nil, err
	}

	g.log().Info("merged configuration generated",
		"path", outputPath,
		"pairs", strings.Join(pairs, ", "),
		"sharedPaths", shared,
		"specificPaths", specific)

	return &model.MultiConfigGenerationResult{
		OutputPath:    outputPath,
		Pairs:         pairs,
		SharedPaths:   shared,
		SpecificPaths: specific,
		CommonFlags:   len(common),
	}, nil
}

func (g *Generator) encodeAndWrite(path, header string, doc document, trailer string) error {
	var buf bytes.Buffer
	buf.WriteString(header)
	if err := toml.NewEncoder(&buf).Encode(doc); err != nil {
		return dcberr.Wrap(dcberr.InternalError, err, "encoding configuration")
	}
	buf.WriteString(trailer)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return dcberr.Wrap(dcberr.InternalError, err, "writing configuration %s", path)
	}
	return nil
}

// scopedSections renders the [paths.<Platform>.<Config>] tables. These sit
// outside the typed document because their table names are data.
func scopedSections(scoped map[model.Platform]map[model.BuildConfig]map[string]string) string {
	if len(scoped) == 0 {
		return ""
	}
	var buf bytes.Buffer
	buf.WriteString("\n# Paths specific to one platform/configuration pair\n")

	platforms := make([]string, 0, len(scoped))
	for p := range scoped {
		platforms = append(platforms, string(p))
	}
	sort.Strings(platforms)
	for _, platform := range platforms {
		byConfig := scoped[model.Platform(platform)]
		configs := make([]string, 0, len(byConfig))
		for c := range byConfig {
			configs = append(configs, string(c))
		}
		sort.Strings(configs)
		for _, config := range configs {
			fmt.Fprintf(&buf, "\n[paths.%s.%s]\n", platform, config)
			tbl := byConfig[model.BuildConfig(config)]
			names := make([]string, 0, len(tbl))
			for n := range tbl {
				names = append(names, n)
			}
			sort.Strings(names)
			for _, n := range names {
				fmt.Fprintf(&buf, "%s = %q\n", n, tbl[n])
			}
		}
	}
	return buf.String()
}

func containsString(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}

// systemSection classifies installation paths into the named system keys:
// rtl/vcl source trees and the per-platform compiled lib directories.
func (g *Generator) systemSection(systemPaths []string, root string) map[string]string {
	section := make(map[string]string)

	for _, p := range systemPaths {
		lower := strings.ToLower(strings.ReplaceAll(p, `\`, "/"))
		switch {
		case section["rtl"] == "" && strings.Contains(lower, "rtl") && strings.Contains(lower, "common"):
			section["rtl"] = g.formatPath(p)
		case section["vcl"] == "" && strings.Contains(lower, "vcl") && !strings.Contains(lower, "jvcl"):
			section["vcl"] = g.formatPath(p)
		}

		for _, platform := range model.Platforms {
			pl := strings.ToLower(string(platform))
			for _, cfg := range []string{"release", "debug"} {
				if strings.Contains(lower, "/lib/"+pl+"/"+cfg) {
					// Win64 marker also appears inside Win64x paths.
					if platform == model.PlatformWin64 && strings.Contains(lower, "/lib/win64x/") {
						continue
					}
					key := "lib_" + pl + "_" + cfg
					if section[key] == "" {
						section[key] = g.formatPath(p)
					}
				}
			}
		}
	}

	if section["rtl"] == "" {
		section["rtl"] = g.formatPath(filepath.Join(root, "source", "rtl", "common"))
	}
	if section["vcl"] == "" {
		section["vcl"] = g.formatPath(filepath.Join(root, "source", "vcl"))
	}
	return section
}

func (g *Generator) librarySection(paths []string) map[string]string {
	section := make(map[string]string)
	used := make(map[string]bool)
	for _, p := range paths {
		name := uniqueName(DeriveLibraryName(p), used)
		used[name] = true
		section[name] = g.formatPath(p)
	}
	return section
}

func (g *Generator) sdkSection(facts *model.BuildLogFacts) *LinuxSDKSection {
	if facts.SDKSysroot == "" && len(facts.SDKLibPaths) == 0 {
		return nil
	}
	sdk := &LinuxSDKSection{Sysroot: g.formatPath(facts.SDKSysroot)}
	for _, p := range facts.SDKLibPaths {
		sdk.LibPaths = append(sdk.LibPaths, g.formatPath(p))
	}
	return sdk
}

func (g *Generator) formatPath(p string) string {
	if p == "" {
		return ""
	}
	return pathutil.FormatForConfig(p, g.env())
}

func splitPaths(paths []string, root string) (system, libraries []string) {
	for _, p := range paths {
		if isSystemPath(p, root) {
			system = append(system, p)
		} else {
			libraries = append(libraries, p)
		}
	}
	return system, libraries
}

func platformSpecificPath(p string) bool {
	lower := strings.ToLower(strings.ReplaceAll(p, `\`, "/"))
	for _, marker := range []string{"/win32", "/win64", "/linux64", "/android"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func mergeFold(existing, extra []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, s := range existing {
		seen[strings.ToLower(s)] = true
	}
	for _, s := range extra {
		if !seen[strings.ToLower(s)] {
			existing = append(existing, s)
			seen[strings.ToLower(s)] = true
		}
	}
	return existing
}

func orDefault(values, fallback []string) []string {
	if len(values) > 0 {
		return values
	}
	return fallback
}

func orDefaultMap(values, fallback map[string]string) map[string]string {
	if len(values) > 0 {
		return values
	}
	return fallback
}
