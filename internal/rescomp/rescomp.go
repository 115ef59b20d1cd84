// Package rescomp turns project version information into a compiled
// Windows resource via the cgrc resource compiler.
package rescomp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"dcb/internal/dcberr"
	"dcb/internal/invoke"
	"dcb/internal/model"
)

// Resource compilation is quick; anything beyond this is a hung process.
const compileTimeout = 30 * time.Second

// The script is written as UTF-8 and cgrc is told so.
const codepageFlag = "-c65001"

// Builder drives cgrc.exe.
type Builder struct {
	// CompilerPath locates cgrc.exe.
	CompilerPath string
	Log          *slog.Logger
}

func (b *Builder) log() *slog.Logger {
	if b.Log != nil {
		return b.Log
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Build writes a VERSIONINFO script next to sourceFile, compiles it into
// <stem>.res and removes the script again. It returns the path of the
// compiled resource.
func (b *Builder) Build(ctx context.Context, info *model.VersionInfo, sourceFile string) (string, error) {
	dir := filepath.Dir(sourceFile)
	stem := strings.TrimSuffix(filepath.Base(sourceFile), filepath.Ext(sourceFile))
	vrcPath := filepath.Join(dir, stem+".vrc")
	resPath := filepath.Join(dir, stem+".res")

	if err := os.WriteFile(vrcPath, []byte(Script(info)), 0o644); err != nil {
		return "", dcberr.Wrap(dcberr.InternalError, err, "writing resource script")
	}
	defer os.Remove(vrcPath)

	runner := &invoke.Runner{Timeout: compileTimeout, Log: b.Log}
	argv := []string{b.CompilerPath, codepageFlag, stem + ".vrc", "-fo" + stem + ".res"}

	result, err := runner.Run(ctx, argv, dir)
	if err != nil {
		return "", err
	}
	if result.TimedOut {
		return "", dcberr.New(dcberr.Timeout, "resource compilation timed out after %s", compileTimeout)
	}
	if result.ExitCode != 0 {
		return "", dcberr.New(dcberr.InternalError,
			"resource compiler exited with %d: %s", result.ExitCode, strings.TrimSpace(result.Output))
	}

	b.log().Debug("version resource compiled", "res", resPath, "version", info.FileVersionString())
	return resPath, nil
}

// Script renders the VERSIONINFO resource script for cgrc. The
// translation block combines the project locale with the Windows Latin-1
// codepage, which is what the IDE emits.
func Script(info *model.VersionInfo) string {
	var sb strings.Builder

	commas := fmt.Sprintf("%d,%d,%d,%d", info.Major, info.Minor, info.Release, info.Build)
	block := fmt.Sprintf("%04X04E4", info.Locale)

	sb.WriteString("1 VERSIONINFO\n")
	sb.WriteString("FILEVERSION " + commas + "\n")
	sb.WriteString("PRODUCTVERSION " + commas + "\n")
	sb.WriteString("FILEOS 0x4\n")
	sb.WriteString("FILETYPE 0x1\n")
	sb.WriteString("{\n")
	sb.WriteString(" BLOCK \"StringFileInfo\"\n {\n")
	sb.WriteString("  BLOCK \"" + block + "\"\n  {\n")

	keys := make([]string, 0, len(info.Keys))
	hasFileVersion := false
	for k := range info.Keys {
		keys = append(keys, k)
		if k == "FileVersion" {
			hasFileVersion = true
		}
	}
	if !hasFileVersion {
		keys = append(keys, "FileVersion")
	}
	sort.Strings(keys)

	for _, k := range keys {
		v, ok := info.Keys[k]
		if !ok && k == "FileVersion" {
			v = info.FileVersionString()
		}
		sb.WriteString(fmt.Sprintf("   VALUE %q, \"%s\\0\"\n", k, escapeValue(v)))
	}

	sb.WriteString("  }\n }\n")
	sb.WriteString(" BLOCK \"VarFileInfo\"\n {\n")
	sb.WriteString(fmt.Sprintf("  VALUE \"Translation\", 0x%04X 0x04E4\n", info.Locale))
	sb.WriteString(" }\n}\n")
	return sb.String()
}

func escapeValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `"`, `""`)
	return v
}
