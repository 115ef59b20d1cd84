package configstore

import (
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// libraryPattern maps a substring seen in library paths to a canonical TOML
// key. The table is scanned in order, so more specific spellings come before
// shorter ones.
type libraryPattern struct {
	Substring string
	Name      string
}

// Known third-party Delphi libraries.
var libraryPatterns = []libraryPattern{
	{"dunitx", "dunitx"},
	{"delphi-mocks", "delphi_mocks"},
	{"delphi_mocks", "delphi_mocks"},
	{"testinsight", "testinsight"},
	{"spring4d", "spring4d"},
	{"zeoslib", "zeoslib"},
	{"dmvcframework", "dmvcframework"},
	{"loggerpro", "loggerpro"},
	{"jvcl", "jvcl"},
	{"jcl", "jcl"},
	{"abbrevia", "abbrevia"},
	{"lockbox", "lockbox"},
	{"omni", "omnithreadlibrary"},
	{"python4delphi", "python4delphi"},
	{"markdown", "markdown"},
	{"toml", "toml"},
	{"yaml", "yaml"},
}

var trailingVersionPattern = regexp.MustCompile(`[\d._-]+$`)

// DeriveLibraryName derives a TOML key for a library path. Known libraries
// match the pattern table and get an include/source/lib qualifier when the
// path shape suggests one; everything else falls back to a cleaned-up
// directory name, then to "library".
func DeriveLibraryName(path string) string {
	lower := strings.ToLower(path)

	for _, p := range libraryPatterns {
		if !strings.Contains(lower, p.Substring) {
			continue
		}
		switch {
		case strings.Contains(lower, "include"):
			return p.Name + "_include"
		case strings.Contains(lower, "source") || strings.Contains(lower, "src"):
			return p.Name + "_source"
		case strings.Contains(lower, `\lib\`) || strings.Contains(lower, "/lib/"):
			return p.Name + "_lib"
		default:
			return p.Name
		}
	}

	dir := strings.ToLower(filepath.Base(strings.ReplaceAll(path, `\`, "/")))
	dir = strings.ReplaceAll(dir, " ", "_")
	dir = strings.ReplaceAll(dir, "-", "_")
	dir = trailingVersionPattern.ReplaceAllString(dir, "")
	if len(dir) > 2 {
		return dir
	}
	return "library"
}

// uniqueName disambiguates a base name against already used keys by
// appending _2, _3 and so on.
func uniqueName(base string, used map[string]bool) string {
	if !used[base] {
		return base
	}
	for n := 2; ; n++ {
		candidate := base + "_" + strconv.Itoa(n)
		if !used[candidate] {
			return candidate
		}
	}
}

// installRoot derives the installation root from a compiler executable
// path: two levels up from bin/dcc32.exe. Build logs carry Windows
// separators regardless of where the tooling runs, so the split cannot
// rely on the host's path rules.
func installRoot(compilerPath string) string {
	norm := strings.ReplaceAll(compilerPath, `\`, "/")
	return path.Dir(path.Dir(norm))
}

// isSystemPath reports whether a search path lives under the Delphi
// installation.
func isSystemPath(path, root string) bool {
	return strings.Contains(
		strings.ToLower(strings.ReplaceAll(path, `\`, "/")),
		strings.ToLower(strings.ReplaceAll(root, `\`, "/")),
	)
}
