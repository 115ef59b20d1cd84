// Package diagnostics classifies raw dcc compiler output into structured
// errors and summary statistics. The compiler localizes its messages, so
// both the English and German severity words are recognized.
package diagnostics

import (
	"regexp"
	"strconv"
	"strings"

	"dcb/internal/model"
)

// locatedPattern matches messages carrying a source location:
//
//	MyUnit.pas(42,15) Error: E2003 Undeclared identifier: 'Foo'
//	MyUnit.pas(42) Fehler: E2003 Undeklarierter Bezeichner: 'Foo'
var locatedPattern = regexp.MustCompile(
	`(?i)^(.+?)\((\d+)(?:,(\d+))?\)\s*` +
		`(Error|Warning|Hint|Fatal|Fehler|Warnung|Hinweis|Schwerwiegend)` +
		`\s*:?\s*([EWHF]\d+)?\s*:?\s*(.+)$`)

// simplePattern matches messages without a location, typically emitted
// before any unit is opened:
//
//	Fatal: F1026 File not found: 'Missing.dpr'
var simplePattern = regexp.MustCompile(
	`(?i)^\s*(Error|Warning|Hint|Fatal|Fehler|Warnung|Hinweis|Schwerwiegend)` +
		`\s*:?\s*([EWHF]\d+)?\s*:?\s*(.+)$`)

// linesPattern picks the compiled line count out of the summary line.
var linesPattern = regexp.MustCompile(`(\d+)\s+(?:lines?|Zeilen)`)

var severityWords = map[string]string{
	"error":         model.SeverityError,
	"fatal":         model.SeverityFatal,
	"warning":       "warning",
	"hint":          "hint",
	"fehler":        model.SeverityError,
	"schwerwiegend": model.SeverityFatal,
	"warnung":       "warning",
	"hinweis":       "hint",
}

// severityFromCode maps a message code prefix to a severity. When present
// it overrides the localized severity word, which older compilers get
// wrong for some messages.
func severityFromCode(code string) string {
	if code == "" {
		return ""
	}
	switch code[0] {
	case 'E', 'e':
		return model.SeverityError
	case 'W', 'w':
		return "warning"
	case 'H', 'h':
		return "hint"
	case 'F', 'f':
		return model.SeverityFatal
	}
	return ""
}

// Report is the classified view of one compiler run's output.
type Report struct {
	// Errors holds error and fatal diagnostics; warnings and hints are
	// only counted.
	Errors []model.Diagnostic
	Stats  model.CompilationStatistics
}

// Classify parses combined compiler output line by line.
func Classify(output string) Report {
	var report Report

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}

		// Diagnostics win over the summary: an error message may itself
		// contain "<n> lines".
		if d, ok := matchDiagnostic(line); ok {
			switch d.Severity {
			case model.SeverityError, model.SeverityFatal:
				report.Errors = append(report.Errors, d)
			case "warning":
				report.Stats.WarningsFiltered++
			case "hint":
				report.Stats.HintsFiltered++
			}
			continue
		}

		if m := linesPattern.FindStringSubmatch(line); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				report.Stats.LinesCompiled = n
			}
		}
	}
	return report
}

func matchDiagnostic(line string) (model.Diagnostic, bool) {
	if m := locatedPattern.FindStringSubmatch(line); m != nil {
		lineNo, _ := strconv.Atoi(m[2])
		col := 0
		if m[3] != "" {
			col, _ = strconv.Atoi(m[3])
		}
		return model.Diagnostic{
			File:     m[1],
			Line:     lineNo,
			Column:   col,
			Severity: resolveSeverity(m[4], m[5]),
			Code:     m[5],
			Message:  strings.TrimSpace(m[6]),
		}, true
	}

	if m := simplePattern.FindStringSubmatch(line); m != nil {
		return model.Diagnostic{
			File:     "(unknown)",
			Severity: resolveSeverity(m[1], m[2]),
			Code:     m[2],
			Message:  strings.TrimSpace(m[3]),
		}, true
	}
	return model.Diagnostic{}, false
}

func resolveSeverity(word, code string) string {
	if s := severityFromCode(code); s != "" {
		return s
	}
	return severityWords[strings.ToLower(word)]
}
