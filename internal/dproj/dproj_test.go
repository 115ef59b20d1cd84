package dproj

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"dcb/internal/dcberr"
)

func writeProject(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "TestApp.dproj")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const unionProject = `<?xml version="1.0" encoding="utf-8"?>
<Project xmlns="http://schemas.microsoft.com/developer/msbuild/2003">
    <PropertyGroup>
        <MainSource>TestApp.dpr</MainSource>
        <Configuration Condition="'$(Configuration)'==''">Debug</Configuration>
        <Platform Condition="'$(Platform)'==''">Win32</Platform>
    </PropertyGroup>
    <PropertyGroup Condition="'$(Base)'!=''">
        <DCC_Define>BASEDEF;$(DCC_Define)</DCC_Define>
        <DCC_UnitSearchPath>..\common;$(DCC_UnitSearchPath)</DCC_UnitSearchPath>
        <DCC_Namespace>System;Vcl</DCC_Namespace>
    </PropertyGroup>
    <PropertyGroup Condition="'$(Cfg_1)'!=''">
        <DCC_Define>DEBUG;BASEDEF</DCC_Define>
        <DCC_DebugInfoInExe>true</DCC_DebugInfoInExe>
        <DCC_Optimize>false</DCC_Optimize>
        <DCC_ExeOutput>bin\debug</DCC_ExeOutput>
    </PropertyGroup>
    <PropertyGroup Condition="'$(Cfg_2)'!=''">
        <DCC_Define>RELEASE</DCC_Define>
        <DCC_Optimize>true</DCC_Optimize>
    </PropertyGroup>
    <ItemGroup>
        <BuildConfiguration Include="Debug">
            <Key>Cfg_1</Key>
        </BuildConfiguration>
        <BuildConfiguration Include="Release">
            <Key>Cfg_2</Key>
        </BuildConfiguration>
    </ItemGroup>
</Project>
`

func TestResolve_UnionsBaseAndConfigGroups(t *testing.T) {
	p, err := Load(writeProject(t, unionProject))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	s, err := p.Resolve("", "")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if s.ActiveConfig != "Debug" || s.ActivePlatform != "Win32" {
		t.Errorf("active = %s/%s, want Debug/Win32", s.ActiveConfig, s.ActivePlatform)
	}
	if s.MainSource != "TestApp.dpr" {
		t.Errorf("MainSource = %q", s.MainSource)
	}

	// Base defines come first, Cfg_1 adds DEBUG; BASEDEF is not repeated
	// and the $(DCC_Define) reference is dropped.
	wantDefines := []string{"BASEDEF", "DEBUG"}
	if !reflect.DeepEqual(s.Defines, wantDefines) {
		t.Errorf("Defines = %v, want %v", s.Defines, wantDefines)
	}

	// The Release-only group (Cfg_2) must not contribute.
	for _, d := range s.Defines {
		if d == "RELEASE" {
			t.Error("Defines contains RELEASE from a non-matching group")
		}
	}
	for _, f := range s.CompilerFlags {
		if f == "-$O+" {
			t.Error("CompilerFlags contains -$O+ from a non-matching group")
		}
	}

	wantFlags := []string{"-$D+", "-$O-"}
	if !reflect.DeepEqual(s.CompilerFlags, wantFlags) {
		t.Errorf("CompilerFlags = %v, want %v", s.CompilerFlags, wantFlags)
	}

	wantNS := []string{"System", "Vcl"}
	if !reflect.DeepEqual(s.NamespacePrefixes, wantNS) {
		t.Errorf("NamespacePrefixes = %v, want %v", s.NamespacePrefixes, wantNS)
	}

	if len(s.UnitSearchPaths) != 1 || !strings.HasSuffix(s.UnitSearchPaths[0], "common") {
		t.Errorf("UnitSearchPaths = %v, want one entry resolved to the project dir", s.UnitSearchPaths)
	}
	if !strings.HasSuffix(s.OutputDir, filepath.FromSlash("bin/debug")) &&
		!strings.HasSuffix(s.OutputDir, `bin\debug`) {
		t.Errorf("OutputDir = %q, want resolved bin debug dir", s.OutputDir)
	}
}

func TestResolve_OverridesSelectOtherGroups(t *testing.T) {
	p, err := Load(writeProject(t, unionProject))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	s, err := p.Resolve("Release", "Win64")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if s.ActiveConfig != "Release" || s.ActivePlatform != "Win64" {
		t.Errorf("active = %s/%s, want Release/Win64", s.ActiveConfig, s.ActivePlatform)
	}
	found := false
	for _, d := range s.Defines {
		if d == "RELEASE" {
			found = true
		}
		if d == "DEBUG" {
			t.Error("Defines contains DEBUG for a Release resolve")
		}
	}
	if !found {
		t.Errorf("Defines = %v, want RELEASE present", s.Defines)
	}
}

func TestResolve_DefaultsWithoutConfigurationElements(t *testing.T) {
	content := `<?xml version="1.0" encoding="utf-8"?>
<Project xmlns="http://schemas.microsoft.com/developer/msbuild/2003">
    <PropertyGroup Condition="'$(Cfg_1)'!=''">
        <DCC_Define>DEBUG</DCC_Define>
    </PropertyGroup>
</Project>
`
	p, err := Load(writeProject(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	s, err := p.Resolve("", "")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	// Debug maps to Cfg_1 by convention when BuildConfiguration items are
	// missing, so the Cfg_1 group still applies.
	if s.ActiveConfig != "Debug" || s.ActivePlatform != "Win32" {
		t.Errorf("active = %s/%s, want Debug/Win32 defaults", s.ActiveConfig, s.ActivePlatform)
	}
	if !reflect.DeepEqual(s.Defines, []string{"DEBUG"}) {
		t.Errorf("Defines = %v, want [DEBUG]", s.Defines)
	}
}

const verInfoKeysProject = `<?xml version="1.0" encoding="utf-8"?>
<Project xmlns="http://schemas.microsoft.com/developer/msbuild/2003">
    <PropertyGroup>
        <MainSource>TestApp.dpr</MainSource>
        <Configuration Condition="'$(Configuration)'==''">Debug</Configuration>
        <Platform Condition="'$(Platform)'==''">Win32</Platform>
    </PropertyGroup>
    <PropertyGroup Condition="'$(Base)'!=''">
        <VerInfo_Locale>1031</VerInfo_Locale>
        <VerInfo_Keys>CompanyName=TestCo;FileDescription=$(MSBuildProjectName);FileVersion=2.5.1.42;ProductName=TestApp</VerInfo_Keys>
    </PropertyGroup>
</Project>
`

func TestResolve_VersionInfoFromKeys(t *testing.T) {
	p, err := Load(writeProject(t, verInfoKeysProject))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	s, err := p.Resolve("", "")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	vi := s.VersionInfo
	if vi == nil {
		t.Fatal("VersionInfo = nil, want populated")
	}
	if vi.Major != 2 || vi.Minor != 5 || vi.Release != 1 || vi.Build != 42 {
		t.Errorf("version = %s, want 2.5.1.42", vi.FileVersionString())
	}
	if vi.Locale != 1031 {
		t.Errorf("Locale = %d, want 1031", vi.Locale)
	}
	if vi.Keys["CompanyName"] != "TestCo" {
		t.Errorf("Keys[CompanyName] = %q", vi.Keys["CompanyName"])
	}
	if vi.Keys["FileDescription"] != "TestApp" {
		t.Errorf("Keys[FileDescription] = %q, want project stem substituted", vi.Keys["FileDescription"])
	}
}

func TestResolve_IndividualVersionFieldsOverrideKeys(t *testing.T) {
	content := strings.Replace(verInfoKeysProject,
		"<VerInfo_Locale>1031</VerInfo_Locale>",
		`<VerInfo_MajorVer>3</VerInfo_MajorVer>
        <VerInfo_MinorVer>6</VerInfo_MinorVer>
        <VerInfo_Release>0</VerInfo_Release>
        <VerInfo_Build>316</VerInfo_Build>`, 1)

	p, err := Load(writeProject(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	s, err := p.Resolve("", "")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	vi := s.VersionInfo
	if vi == nil {
		t.Fatal("VersionInfo = nil")
	}
	if got := vi.FileVersionString(); got != "3.6.0.316" {
		t.Errorf("version = %s, want 3.6.0.316", got)
	}
	if vi.Locale != 1033 {
		t.Errorf("Locale = %d, want default 1033", vi.Locale)
	}
}

func TestResolve_VersionInfoDisabled(t *testing.T) {
	content := strings.Replace(verInfoKeysProject,
		"<VerInfo_Locale>1031</VerInfo_Locale>",
		"<VerInfo_IncludeVerInfo>false</VerInfo_IncludeVerInfo>", 1)

	p, err := Load(writeProject(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	s, err := p.Resolve("", "")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if s.VersionInfo != nil {
		t.Errorf("VersionInfo = %+v, want nil when disabled", s.VersionInfo)
	}
}

func TestResolve_NoVersionInfo(t *testing.T) {
	p, err := Load(writeProject(t, unionProject))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	s, err := p.Resolve("", "")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if s.VersionInfo != nil {
		t.Errorf("VersionInfo = %+v, want nil", s.VersionInfo)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.dproj"))
	if dcberr.CodeOf(err) != dcberr.NotFound {
		t.Errorf("error code = %v, want NOT_FOUND", dcberr.CodeOf(err))
	}
}

func TestLoad_InvalidXML(t *testing.T) {
	_, err := Load(writeProject(t, "<Project><broken"))
	if dcberr.CodeOf(err) != dcberr.ParseError {
		t.Errorf("error code = %v, want PARSE_ERROR", dcberr.CodeOf(err))
	}
}

func TestLoad_WrongNamespace(t *testing.T) {
	_, err := Load(writeProject(t, `<Project xmlns="urn:something-else"/>`))
	if dcberr.CodeOf(err) != dcberr.ParseError {
		t.Errorf("error code = %v, want PARSE_ERROR", dcberr.CodeOf(err))
	}
}
