// Package pathutil provides the path handling shared across the backend:
// order-preserving deduplication, environment variable expansion, repair of
// mangled placeholders and WSL path conversion.
package pathutil

import (
	"os"
	"regexp"
	"runtime"
	"strings"
)

// Env looks up an environment variable. Injected so callers stay testable
// without touching the process environment.
type Env func(key string) (string, bool)

// OSEnv reads from the real process environment.
func OSEnv(key string) (string, bool) { return os.LookupEnv(key) }

// MapEnv builds an Env backed by a fixed map.
func MapEnv(m map[string]string) Env {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

var varPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ExpandVars replaces ${VAR} references using env, recursively, so that a
// variable whose value contains further references still resolves. Unknown
// variables are left in place. Expansion stops after a fixed number of
// passes to break reference cycles.
func ExpandVars(s string, env Env) string {
	for i := 0; i < 10; i++ {
		expanded := varPattern.ReplaceAllStringFunc(s, func(m string) string {
			name := m[2 : len(m)-1]
			if v, ok := env(name); ok {
				return v
			}
			return m
		})
		if expanded == s {
			return s
		}
		s = expanded
	}
	return s
}

// NormalizeForComparison lowercases a path and unifies separators so that
// spellings of the same location compare equal. Trailing separators are
// dropped.
func NormalizeForComparison(p string) string {
	p = strings.ToLower(strings.ReplaceAll(p, "\\", "/"))
	return strings.TrimRight(p, "/")
}

// Dedup removes duplicates from paths, comparing case-insensitively with
// normalized separators, keeping the first spelling seen. Order is preserved.
func Dedup(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		key := NormalizeForComparison(p)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, p)
	}
	return out
}

// Equivalent reports whether two paths name the same location after
// normalization and ${VAR} expansion against env.
func Equivalent(a, b string, env Env) bool {
	return NormalizeForComparison(ExpandVars(a, env)) ==
		NormalizeForComparison(ExpandVars(b, env))
}

// Encoding corruption seen in machine-translated TOML files: the `${`
// introducer arrives as the `½S` byte pair. Specific known placeholders are
// repaired first, then the generic introducer.
var corruptionRepairs = []struct{ from, to string }{
	{"½SUSERDIR%", "${USERDIR}"},
	{"½SUSERNAME%", "${USERNAME}"},
	{"½S", "${"},
}

// RepairCorruption restores mangled ${...} placeholders in a path string.
func RepairCorruption(p string) string {
	for _, r := range corruptionRepairs {
		p = strings.ReplaceAll(p, r.from, r.to)
	}
	return p
}

// SubstituteUserName replaces a concrete C:\Users\<name> prefix with a
// ${USERNAME} reference so generated configs stay portable between machines.
// The username is taken from env (USERNAME, then USER).
func SubstituteUserName(p string, env Env) string {
	name, ok := env("USERNAME")
	if !ok {
		name, ok = env("USER")
	}
	if !ok || name == "" {
		return p
	}
	norm := strings.ReplaceAll(p, "\\", "/")
	prefix := "C:/Users/" + name
	if len(norm) >= len(prefix) && strings.EqualFold(norm[:len(prefix)], prefix) {
		return "C:/Users/${USERNAME}" + norm[len(prefix):]
	}
	return p
}

// ToForwardSlashes converts backslashes to forward slashes. Serialized
// config paths always use forward slashes.
func ToForwardSlashes(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}

// FormatForConfig applies the full serialization pipeline: corruption
// repair, ${USERNAME} substitution and forward-slash normalization.
func FormatForConfig(p string, env Env) string {
	return ToForwardSlashes(SubstituteUserName(RepairCorruption(p), env))
}

var wslPattern = regexp.MustCompile(`^/mnt/([a-zA-Z])(/.*)?$`)

// FromWSL converts a WSL mount path (/mnt/c/...) to a Windows drive path
// (C:\...) when running on a Windows host. Other paths and other hosts pass
// through unchanged.
func FromWSL(p string) string {
	if runtime.GOOS != "windows" {
		return p
	}
	return fromWSL(p)
}

func fromWSL(p string) string {
	m := wslPattern.FindStringSubmatch(p)
	if m == nil {
		return p
	}
	drive := strings.ToUpper(m[1])
	rest := strings.ReplaceAll(m[2], "/", "\\")
	if rest == "" {
		rest = "\\"
	}
	return drive + ":" + rest
}

// LooksLikePath filters tokens captured from command lines: a search path
// must contain a separator or a drive designator, carry no shell
// redirection noise, and not start like a flag or an unexpanded MSBuild
// variable such as $(BDS).
func LooksLikePath(s string) bool {
	if s == "" {
		return false
	}
	if s[0] == '-' || s[0] == '$' {
		return false
	}
	if strings.ContainsAny(s, "<>|") {
		return false
	}
	return strings.ContainsAny(s, "/\\") || (len(s) >= 2 && s[1] == ':')
}
