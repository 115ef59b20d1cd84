package compile

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dcb/internal/configstore"
	"dcb/internal/dcberr"
	"dcb/internal/model"
	"dcb/internal/pathutil"
	"dcb/internal/slogutil"
)

// fixture builds a fake Delphi installation whose dcc32.exe is the given
// shell script, plus a matching configuration file.
type fixture struct {
	dir        string
	root       string
	configPath string
}

func newFixture(t *testing.T, compilerScript string) *fixture {
	t.Helper()
	dir := t.TempDir()
	root := filepath.Join(dir, "delphi")
	bin := filepath.Join(root, "bin")
	if err := os.MkdirAll(bin, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(bin, "dcc32.exe"), []byte(compilerScript), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(bin, "cgrc.exe"), []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	configPath := filepath.Join(dir, "delphi_config.toml")
	content := `
[delphi]
version = "23.0"
root_path = "` + root + `"

[compiler.flags]
flags = ["--no-config"]
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return &fixture{dir: dir, root: root, configPath: configPath}
}

func (f *fixture) writeSource(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(f.dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newService() *Service {
	return &Service{
		Loader: &configstore.Loader{Env: pathutil.MapEnv(nil), Log: slogutil.NewDiscardLogger()},
		Log:    slogutil.NewDiscardLogger(),
	}
}

func TestCompile_Success(t *testing.T) {
	f := newFixture(t, `#!/bin/sh
echo "Embarcadero Delphi for Win32"
echo "123 lines, 0.1 seconds"
touch MyApp.exe
`)
	source := f.writeSource(t, "MyApp.dpr", "program MyApp; begin end.")

	result, err := newService().Compile(context.Background(), source, Options{
		ConfigPath:  f.configPath,
		Platform:    model.PlatformWin32,
		BuildConfig: model.ConfigRelease,
	})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !result.Success {
		t.Fatalf("result = %+v", result)
	}
	if result.Statistics.LinesCompiled != 123 {
		t.Errorf("LinesCompiled = %d", result.Statistics.LinesCompiled)
	}
	if filepath.Base(result.OutputExecutable) != "MyApp.exe" {
		t.Errorf("OutputExecutable = %q", result.OutputExecutable)
	}
	if result.CompilationTimeSeconds <= 0 {
		t.Error("no elapsed time recorded")
	}
}

func TestCompile_ClassifiesErrors(t *testing.T) {
	f := newFixture(t, `#!/bin/sh
echo "MyApp.dpr(3,7) Error: E2003 Undeclared identifier: 'Writelnn'"
echo "MyApp.dpr(5) Warning: W1000 Symbol 'Old' is deprecated"
exit 1
`)
	source := f.writeSource(t, "MyApp.dpr", "program MyApp; begin end.")

	result, err := newService().Compile(context.Background(), source, Options{
		ConfigPath: f.configPath,
		Platform:   model.PlatformWin32,
	})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if result.Success {
		t.Fatal("expected failure")
	}
	if result.ExitCode != 1 {
		t.Errorf("ExitCode = %d", result.ExitCode)
	}
	if len(result.Errors) != 1 || result.Errors[0].Code != "E2003" {
		t.Fatalf("Errors = %v", result.Errors)
	}
	if result.Errors[0].Line != 3 || result.Errors[0].Column != 7 {
		t.Errorf("location = %d,%d", result.Errors[0].Line, result.Errors[0].Column)
	}
	if result.Statistics.WarningsFiltered != 1 {
		t.Errorf("WarningsFiltered = %d", result.Statistics.WarningsFiltered)
	}
	if result.OutputExecutable != "" {
		t.Errorf("artifact reported for failed build: %q", result.OutputExecutable)
	}
}

func TestCompile_RejectsUnknownExtension(t *testing.T) {
	_, err := newService().Compile(context.Background(), "project.pas", Options{})
	if dcberr.CodeOf(err) != dcberr.ValueError {
		t.Fatalf("err = %v, want VALUE_ERROR", err)
	}
}

func TestCompile_MissingSource(t *testing.T) {
	_, err := newService().Compile(context.Background(), filepath.Join(t.TempDir(), "nope.dpr"), Options{})
	if !dcberr.IsNotFound(err) {
		t.Fatalf("err = %v, want NOT_FOUND", err)
	}
}

func TestCompile_UsesSiblingDescriptor(t *testing.T) {
	// The fake compiler records its arguments so the test can check what
	// the descriptor contributed.
	f := newFixture(t, `#!/bin/sh
printf '%s\n' "$@" > args.txt
echo "1 lines"
`)
	source := f.writeSource(t, "MyApp.dpr", "program MyApp; begin end.")
	f.writeSource(t, "MyApp.dproj", `<Project xmlns="http://schemas.microsoft.com/developer/msbuild/2003">
  <PropertyGroup>
    <Configuration Condition="'$(Configuration)'==''">Release</Configuration>
    <Platform Condition="'$(Platform)'==''">Win32</Platform>
    <MainSource>MyApp.dpr</MainSource>
  </PropertyGroup>
  <PropertyGroup Condition="'$(Base)'!=''">
    <DCC_Define>FROMDESCRIPTOR</DCC_Define>
  </PropertyGroup>
</Project>`)

	result, err := newService().Compile(context.Background(), source, Options{ConfigPath: f.configPath})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !result.Success {
		t.Fatalf("result = %+v", result)
	}

	args, err := os.ReadFile(filepath.Join(f.dir, "args.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(args), "-DFROMDESCRIPTOR") {
		t.Errorf("descriptor define missing from command:\n%s", args)
	}
	if !strings.Contains(string(args), "MyApp.dpr") {
		t.Errorf("source file missing from command:\n%s", args)
	}
}

func TestCompile_DescriptorEntryPoint(t *testing.T) {
	f := newFixture(t, "#!/bin/sh\necho ok\n")
	f.writeSource(t, "MyApp.dpr", "program MyApp; begin end.")
	descriptor := f.writeSource(t, "MyApp.dproj", `<Project xmlns="http://schemas.microsoft.com/developer/msbuild/2003">
  <PropertyGroup>
    <MainSource>MyApp.dpr</MainSource>
  </PropertyGroup>
</Project>`)

	result, err := newService().Compile(context.Background(), descriptor, Options{
		ConfigPath: f.configPath,
		Platform:   model.PlatformWin32,
	})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !result.Success {
		t.Fatalf("result = %+v", result)
	}
}

func TestCompile_Timeout(t *testing.T) {
	f := newFixture(t, "#!/bin/sh\nsleep 5\n")
	source := f.writeSource(t, "MyApp.dpr", "program MyApp; begin end.")

	result, err := newService().Compile(context.Background(), source, Options{
		ConfigPath: f.configPath,
		Platform:   model.PlatformWin32,
		Timeout:    50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if result.Success {
		t.Fatal("expected failure")
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0].Message, "timed out") {
		t.Fatalf("Errors = %v", result.Errors)
	}
	if result.Errors[0].File != "(unknown)" {
		t.Errorf("file = %q", result.Errors[0].File)
	}
}

func TestCompile_PackageArtifact(t *testing.T) {
	f := newFixture(t, "#!/bin/sh\ntouch MyPkg.bpl\necho ok\n")
	source := f.writeSource(t, "MyPkg.dpk", "package MyPkg; end.")

	result, err := newService().Compile(context.Background(), source, Options{
		ConfigPath: f.configPath,
		Platform:   model.PlatformWin32,
	})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if filepath.Base(result.OutputExecutable) != "MyPkg.bpl" {
		t.Errorf("OutputExecutable = %q", result.OutputExecutable)
	}
}

func TestFindArtifact_SearchOrder(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "MyApp.dpr")

	// Platform subdirectory is found when the flat location is empty.
	sub := filepath.Join(dir, "Win32", "Release")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(sub, "MyApp.exe")
	if err := os.WriteFile(want, []byte{}, 0o644); err != nil {
		t.Fatal(err)
	}
	if got := findArtifact(source, nil, model.PlatformWin32); got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	// An explicit output directory takes precedence.
	outDir := filepath.Join(dir, "out")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		t.Fatal(err)
	}
	preferred := filepath.Join(outDir, "MyApp.exe")
	if err := os.WriteFile(preferred, []byte{}, 0o644); err != nil {
		t.Fatal(err)
	}
	settings := &model.ProjectSettings{OutputDir: outDir}
	if got := findArtifact(source, settings, model.PlatformWin32); got != preferred {
		t.Errorf("got %q, want %q", got, preferred)
	}
}

func TestArtifactExt(t *testing.T) {
	tests := []struct {
		platform  model.Platform
		isPackage bool
		want      string
	}{
		{model.PlatformWin32, false, ".exe"},
		{model.PlatformWin64, true, ".bpl"},
		{model.PlatformLinux64, false, ""},
		{model.PlatformLinux64, true, ".so"},
	}
	for _, tt := range tests {
		if got := artifactExt(tt.platform, tt.isPackage); got != tt.want {
			t.Errorf("artifactExt(%s, %v) = %q, want %q", tt.platform, tt.isPackage, got, tt.want)
		}
	}
}
