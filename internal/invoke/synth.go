// Package invoke builds Delphi compiler command lines and executes them.
package invoke

import (
	"sort"
	"strings"

	"dcb/internal/configstore"
	"dcb/internal/model"
)

// Request carries the per-build inputs for command synthesis.
type Request struct {
	CompilerPath string
	SourceFile   string
	Platform     model.Platform
	BuildConfig  model.BuildConfig
	// Force requests a full rebuild (-B).
	Force bool
	// ExtraPaths are caller-supplied search paths appended after the
	// configured and project paths.
	ExtraPaths []string
	// ExtraFlags pass through to the compiler unmodified, last before the
	// source file.
	ExtraFlags []string
}

// Flags the synthesizer owns. They are stripped from configured and
// project flag lists and re-emitted in a fixed position so a build log
// can never smuggle in a stale rebuild or SDK setting.
func isReservedFlag(flag string) bool {
	if flag == "-B" || flag == "-Q" {
		return true
	}
	return strings.HasPrefix(flag, "--syslibroot") || strings.HasPrefix(flag, "--libpath")
}

// Synthesize assembles the full compiler argument vector: configured
// flags, project flags and defines, search paths, namespaces, aliases,
// output directories, Linux SDK arguments, caller extras and finally the
// bare source file name. The project settings may be nil when the build
// has no project file.
func Synthesize(cfg *configstore.Config, project *model.ProjectSettings, req Request) []string {
	argv := []string{req.CompilerPath}

	seen := make(map[string]bool)
	addFlag := func(flag string) {
		if isReservedFlag(flag) || seen[flag] {
			return
		}
		argv = append(argv, flag)
		seen[flag] = true
	}

	for _, flag := range cfg.FlagsFor(req.Platform, req.BuildConfig) {
		addFlag(flag)
	}

	if project != nil {
		for _, flag := range project.CompilerFlags {
			addFlag(flag)
		}
		if len(project.Defines) > 0 {
			argv = append(argv, "-D"+strings.Join(project.Defines, ";"))
		}
	}

	if req.Force {
		argv = append(argv, "-B")
	}
	argv = append(argv, "-Q")

	paths := cfg.AllSearchPaths(req.Platform, req.BuildConfig)
	if project != nil {
		paths = append(paths, project.UnitSearchPaths...)
		paths = append(paths, project.IncludePaths...)
		paths = append(paths, project.ResourcePaths...)
	}
	paths = append(paths, req.ExtraPaths...)
	if list := joinPaths(paths); list != "" {
		argv = append(argv, "-U"+list, "-I"+list, "-R"+list)
	}

	if ns := mergeNamespaces(cfg.NamespacePrefixes(), project); len(ns) > 0 {
		argv = append(argv, "-NS"+strings.Join(ns, ";"))
	}

	if aliases := formatAliases(cfg.Compiler.Aliases); aliases != "" {
		argv = append(argv, "-A"+aliases)
	}

	if project != nil {
		if project.OutputDir != "" {
			argv = append(argv, "-E"+project.OutputDir)
		}
		if project.DCUOutputDir != "" {
			argv = append(argv, "-NU"+project.DCUOutputDir)
		}
	}

	if req.Platform == model.PlatformLinux64 {
		if sysroot := cfg.SDKSysroot(); sysroot != "" {
			argv = append(argv, "--syslibroot:"+sysroot)
		}
		if libPaths := cfg.SDKLibPaths(); len(libPaths) > 0 {
			argv = append(argv, "--libpath:"+strings.Join(libPaths, ";"))
		}
	}

	argv = append(argv, req.ExtraFlags...)
	argv = append(argv, baseName(req.SourceFile))
	return argv
}

// baseName strips the directory regardless of separator style. Project
// paths keep their Windows spelling even when the tooling runs elsewhere.
func baseName(p string) string {
	if i := strings.LastIndexAny(p, `/\`); i >= 0 {
		return p[i+1:]
	}
	return p
}

// joinPaths deduplicates search paths and joins them into the semicolon
// list shared by -U, -I and -R. Comparison folds case and separators, the
// first spelling wins.
func joinPaths(paths []string) string {
	var kept []string
	seen := make(map[string]bool, len(paths))
	for _, p := range paths {
		if p == "" {
			continue
		}
		key := strings.ToLower(strings.ReplaceAll(p, "/", `\`))
		if seen[key] {
			continue
		}
		seen[key] = true
		kept = append(kept, p)
	}
	return strings.Join(kept, ";")
}

// mergeNamespaces unions configured prefixes with the project's, config
// first, folding case.
func mergeNamespaces(configured []string, project *model.ProjectSettings) []string {
	merged := make([]string, 0, len(configured))
	seen := make(map[string]bool, len(configured))
	for _, ns := range configured {
		if ns == "" || seen[strings.ToLower(ns)] {
			continue
		}
		merged = append(merged, ns)
		seen[strings.ToLower(ns)] = true
	}
	if project != nil {
		for _, ns := range project.NamespacePrefixes {
			if ns == "" || seen[strings.ToLower(ns)] {
				continue
			}
			merged = append(merged, ns)
			seen[strings.ToLower(ns)] = true
		}
	}
	return merged
}

func formatAliases(aliases map[string]string) string {
	if len(aliases) == 0 {
		return ""
	}
	keys := make([]string, 0, len(aliases))
	for k := range aliases {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+aliases[k])
	}
	return strings.Join(pairs, ";")
}
