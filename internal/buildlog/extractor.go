// Package buildlog extracts compiler invocation facts from Delphi IDE build
// transcripts. The IDE writes the literal dcc command line into the log
// (English and German variants), wrapped across indented continuation lines;
// this package reassembles the command and classifies every argument exactly
// once with a quote-aware tokenizer.
package buildlog

import (
	"os"
	"regexp"
	"strings"

	"dcb/internal/dcberr"
	"dcb/internal/model"
	"dcb/internal/pathutil"
)

// Compiler executables, most specific first so dcclinux64 is not read as
// dcc64.
var compilerExes = []string{"dcclinux64.exe", "dcc64.exe", "dcc32.exe"}

const resourceCompilerExe = "cgrc.exe"

// Parse reads a build log file and extracts the compiler invocation facts.
func Parse(path string) (*model.BuildLogFacts, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, dcberr.New(dcberr.NotFound, "build log not found: %s", path)
		}
		return nil, dcberr.Wrap(dcberr.ParseError, err, "reading build log %s", path)
	}
	return ParseText(string(data))
}

// ParseText extracts the compiler invocation facts from build log content.
func ParseText(content string) (*model.BuildLogFacts, error) {
	lines := strings.Split(content, "\n")

	lineIdx, exe := findCompilerLine(lines)
	if lineIdx < 0 {
		return nil, dcberr.New(dcberr.NotFound, "no compiler invocation found in build log")
	}

	command := collectCommand(lines, lineIdx)

	compilerPath, args, err := splitCommand(command, exe)
	if err != nil {
		return nil, err
	}

	facts := &model.BuildLogFacts{
		CompilerPath:         compilerPath,
		DelphiVersion:        delphiVersion(compilerPath),
		Platform:             platformForExe(exe),
		BuildConfig:          buildConfig(command),
		ResourceCompilerPath: findResourceCompiler(lines[:lineIdx]),
	}
	classifyArgs(args, facts)
	return facts, nil
}

// findCompilerLine returns the index of the first line carrying a compiler
// executable and the executable it names. Header lines like
// "dcc32 command line for ..." / "dcc32 Befehlszeile ..." name the compiler
// without the .exe suffix and are skipped; the actual command follows them.
func findCompilerLine(lines []string) (int, string) {
	for i, line := range lines {
		lower := strings.ToLower(line)
		for _, exe := range compilerExes {
			if strings.Contains(lower, exe) {
				return i, exe
			}
		}
	}
	return -1, ""
}

// collectCommand joins the compiler line with its indented continuation
// lines into one logical command.
func collectCommand(lines []string, start int) string {
	parts := []string{strings.TrimSpace(lines[start])}
	for i := start + 1; i < len(lines); i++ {
		line := lines[i]
		if line == "" || !(strings.HasPrefix(line, "  ") || strings.HasPrefix(line, "\t")) {
			break
		}
		parts = append(parts, strings.TrimSpace(line))
	}
	return strings.Join(parts, " ")
}

// splitCommand isolates the compiler executable path from the logical
// command and returns the tokenized arguments that follow it. The path may
// contain unquoted spaces ("program files (x86)"), so it runs from the
// start of the command (or an opening quote) up to the executable name.
func splitCommand(command, exe string) (string, []string, error) {
	lower := strings.ToLower(command)
	idx := strings.Index(lower, exe)
	if idx < 0 {
		return "", nil, dcberr.New(dcberr.ParseError, "could not isolate compiler executable in %q", command)
	}
	end := idx + len(exe)

	start := 0
	if q := strings.LastIndex(command[:idx], `"`); q >= 0 {
		start = q + 1
	}
	compilerPath := strings.TrimSpace(command[start:end])

	rest := strings.TrimLeft(command[end:], `" `)
	return compilerPath, tokenize(rest), nil
}

// tokenize splits on whitespace outside double quotes. Quote characters are
// kept in the token; per-element quote stripping happens during
// classification (a single token may hold several quoted list elements, as
// in -U"a";"b").
func tokenize(s string) []string {
	var tokens []string
	var cur strings.Builder
	inQuote := false
	for _, r := range s {
		switch {
		case r == '"':
			inQuote = !inQuote
			cur.WriteRune(r)
		case (r == ' ' || r == '\t') && !inQuote:
			if cur.Len() > 0 {
				tokens = append(tokens, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		tokens = append(tokens, cur.String())
	}
	return tokens
}

var (
	switchFlagPattern = regexp.MustCompile(`^-\$[A-Za-z][+-]?$`)
	targetExtPattern  = regexp.MustCompile(`^-T[A-Za-z]\.[A-Za-z0-9]+$`)
)

// Option prefixes whose values the synthesizer regenerates from project and
// config state; the extractor does not carry them as facts.
var ignoredPrefixes = []string{"-D", "-E", "-LE", "-LN", "-NU", "-NB", "-NH", "-NO", "-V"}

// classifyArgs walks the argument tokens and assigns each to exactly one
// fact category.
func classifyArgs(args []string, facts *model.BuildLogFacts) {
	var paths, flags, namespaces []string
	aliases := make(map[string]string)

	addFlag := func(f string) {
		for _, have := range flags {
			if have == f {
				return
			}
		}
		flags = append(flags, f)
	}

	for _, tok := range args {
		switch {
		case hasFoldPrefix(tok, "--syslibroot:"):
			facts.SDKSysroot = stripQuotes(tok[len("--syslibroot:"):])
		case hasFoldPrefix(tok, "--libpath:"):
			for _, p := range splitList(tok[len("--libpath:"):]) {
				facts.SDKLibPaths = append(facts.SDKLibPaths, p)
			}
		case strings.HasPrefix(tok, "--"):
			addFlag(tok)
		case hasFoldPrefix(tok, "-NS"):
			for _, ns := range splitList(tok[3:]) {
				if !contains(namespaces, ns) {
					namespaces = append(namespaces, ns)
				}
			}
		case switchFlagPattern.MatchString(tok):
			addFlag(tok)
		case hasFoldPrefix(tok, "-A") && len(tok) > 2:
			for _, def := range splitList(tok[2:]) {
				if oldName, newName, ok := strings.Cut(def, "="); ok {
					aliases[strings.TrimSpace(oldName)] = strings.TrimSpace(newName)
				}
			}
		case isPathFlag(tok):
			for _, p := range splitList(tok[2:]) {
				if len(p) > 2 && pathutil.LooksLikePath(p) {
					paths = append(paths, p)
				}
			}
		// -B and -Q are structural: the synthesizer decides build-all and
		// quiet itself, so observed occurrences are not facts.
		case strings.EqualFold(tok, "-B") || strings.EqualFold(tok, "-Q"):
		case hasAnyFoldPrefix(tok, ignoredPrefixes):
		case targetExtPattern.MatchString(tok):
			addFlag(tok)
		case len(tok) == 2 && tok[0] == '-':
			addFlag(tok)
		default:
			// Bare tokens: the project file name and log noise.
		}
	}

	facts.SearchPaths = pathutil.Dedup(paths)
	facts.NamespacePrefixes = namespaces
	facts.CompilerFlags = flags
	if len(aliases) > 0 {
		facts.UnitAliases = aliases
	}
	facts.SDKLibPaths = pathutil.Dedup(facts.SDKLibPaths)
}

func isPathFlag(tok string) bool {
	if len(tok) < 3 || tok[0] != '-' {
		return false
	}
	switch tok[1] {
	case 'U', 'u', 'I', 'i', 'R', 'r', 'O', 'o':
		return true
	}
	return false
}

// splitList splits a semicolon list, stripping quotes and empty elements.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(stripQuotes(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func stripQuotes(s string) string {
	s = strings.ReplaceAll(s, `"`, "")
	return strings.ReplaceAll(s, `'`, "")
}

func hasFoldPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

func hasAnyFoldPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if hasFoldPrefix(s, p) {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func platformForExe(exe string) model.Platform {
	switch exe {
	case "dcc32.exe":
		return model.PlatformWin32
	case "dcclinux64.exe":
		return model.PlatformLinux64
	default:
		return model.PlatformWin64
	}
}

var versionPattern = regexp.MustCompile(`(?i)studio[\\/]([\d.]+)`)

func delphiVersion(compilerPath string) string {
	if m := versionPattern.FindStringSubmatch(compilerPath); m != nil {
		return m[1]
	}
	return "unknown"
}

func buildConfig(command string) model.BuildConfig {
	if strings.Contains(command, `\Debug`) || strings.Contains(command, `\debug`) {
		return model.ConfigDebug
	}
	return model.ConfigRelease
}

// findResourceCompiler scans the lines preceding the compiler invocation for
// a cgrc.exe resource-compilation step and returns its executable path.
func findResourceCompiler(lines []string) string {
	for _, line := range lines {
		lower := strings.ToLower(line)
		idx := strings.Index(lower, resourceCompilerExe)
		if idx < 0 {
			continue
		}
		end := idx + len(resourceCompilerExe)
		trimmed := strings.TrimSpace(line[:end])
		if q := strings.LastIndex(trimmed, `"`); q >= 0 {
			trimmed = trimmed[q+1:]
		}
		return trimmed
	}
	return ""
}
