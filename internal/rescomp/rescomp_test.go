package rescomp

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dcb/internal/dcberr"
	"dcb/internal/model"
	"dcb/internal/slogutil"
)

func sampleInfo() *model.VersionInfo {
	return &model.VersionInfo{
		Major:   2,
		Minor:   5,
		Release: 1,
		Build:   42,
		Locale:  1033,
		Keys: map[string]string{
			"CompanyName": "ACME",
			"FileVersion": "2.5.1.42",
			"ProductName": "MyApp",
		},
	}
}

func TestScript(t *testing.T) {
	script := Script(sampleInfo())

	for _, want := range []string{
		"1 VERSIONINFO",
		"FILEVERSION 2,5,1,42",
		"PRODUCTVERSION 2,5,1,42",
		`BLOCK "040904E4"`,
		`VALUE "CompanyName", "ACME\0"`,
		`VALUE "FileVersion", "2.5.1.42\0"`,
		`VALUE "Translation", 0x0409 0x04E4`,
	} {
		if !strings.Contains(script, want) {
			t.Errorf("script missing %q:\n%s", want, script)
		}
	}
}

func TestScript_GermanLocaleBlock(t *testing.T) {
	info := sampleInfo()
	info.Locale = 1031
	script := Script(info)
	if !strings.Contains(script, `BLOCK "040704E4"`) {
		t.Errorf("locale block wrong:\n%s", script)
	}
	if !strings.Contains(script, "VALUE \"Translation\", 0x0407 0x04E4") {
		t.Errorf("translation wrong:\n%s", script)
	}
}

func TestScript_DerivesFileVersionWhenAbsent(t *testing.T) {
	info := sampleInfo()
	delete(info.Keys, "FileVersion")
	script := Script(info)
	if !strings.Contains(script, `VALUE "FileVersion", "2.5.1.42\0"`) {
		t.Errorf("derived FileVersion missing:\n%s", script)
	}
}

func TestScript_EscapesValues(t *testing.T) {
	info := sampleInfo()
	info.Keys = map[string]string{"Comments": `path "C:\x"`}
	script := Script(info)
	if !strings.Contains(script, `VALUE "Comments", "path ""C:\\x""\0"`) {
		t.Errorf("escaping wrong:\n%s", script)
	}
}

func TestBuild_RunsCompilerAndCleansUp(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "MyApp.dpr")
	if err := os.WriteFile(source, []byte("program MyApp;"), 0o644); err != nil {
		t.Fatal(err)
	}

	// Stand-in resource compiler: checks its arguments and produces the
	// requested output file.
	fake := filepath.Join(dir, "cgrc.sh")
	script := `#!/bin/sh
[ "$1" = "-c65001" ] || exit 2
[ -f "$2" ] || exit 3
touch "${3#-fo}"
`
	if err := os.WriteFile(fake, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}

	b := &Builder{CompilerPath: fake, Log: slogutil.NewDiscardLogger()}
	resPath, err := b.Build(context.Background(), sampleInfo(), source)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if resPath != filepath.Join(dir, "MyApp.res") {
		t.Errorf("resPath = %q", resPath)
	}
	if _, err := os.Stat(resPath); err != nil {
		t.Errorf("resource not produced: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "MyApp.vrc")); !os.IsNotExist(err) {
		t.Error("script file not cleaned up")
	}
}

func TestBuild_CompilerFailure(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "MyApp.dpr")
	if err := os.WriteFile(source, []byte("program MyApp;"), 0o644); err != nil {
		t.Fatal(err)
	}
	fake := filepath.Join(dir, "cgrc.sh")
	if err := os.WriteFile(fake, []byte("#!/bin/sh\necho bad script >&2\nexit 1\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	b := &Builder{CompilerPath: fake, Log: slogutil.NewDiscardLogger()}
	_, err := b.Build(context.Background(), sampleInfo(), source)
	if err == nil {
		t.Fatal("expected error")
	}
	if dcberr.CodeOf(err) != dcberr.InternalError {
		t.Errorf("code = %v", dcberr.CodeOf(err))
	}
	if !strings.Contains(err.Error(), "bad script") {
		t.Errorf("compiler output not carried: %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "MyApp.vrc")); !os.IsNotExist(statErr) {
		t.Error("script file not cleaned up after failure")
	}
}
