// Package dproj resolves Delphi .dproj project descriptors. A .dproj is an
// MSBuild file whose PropertyGroups are guarded by conditions over internal
// variables (Base, Cfg_1, Cfg_1_Win32, ...); resolving a configuration and
// platform means selecting the matching groups and merging their properties.
package dproj

import (
	"encoding/xml"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"dcb/internal/dcberr"
	"dcb/internal/model"
)

const msbuildNS = "http://schemas.microsoft.com/developer/msbuild/2003"

type xmlProject struct {
	XMLName        xml.Name           `xml:"Project"`
	PropertyGroups []xmlPropertyGroup `xml:"PropertyGroup"`
	ItemGroups     []xmlItemGroup     `xml:"ItemGroup"`
}

type xmlPropertyGroup struct {
	Condition  string        `xml:"Condition,attr"`
	Properties []xmlProperty `xml:",any"`
}

type xmlProperty struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

type xmlItemGroup struct {
	BuildConfigurations []xmlBuildConfiguration `xml:"BuildConfiguration"`
}

type xmlBuildConfiguration struct {
	Include string `xml:"Include,attr"`
	Key     string `xml:"Key"`
}

// Mapping of boolean DCC properties to compiler switch letters.
var dccSwitches = map[string]string{
	"DCC_Optimize":            "O",
	"DCC_DebugInfoInExe":      "D",
	"DCC_LocalDebugSymbols":   "L",
	"DCC_SymbolReferenceInfo": "Y",
	"DCC_AssertionsRuntime":   "C",
	"DCC_IOChecking":          "I",
	"DCC_RangeChecking":       "R",
	"DCC_OverflowChecking":    "Q",
	"DCC_WriteableConst":      "J",
}

// Project is a loaded .dproj descriptor, ready to resolve.
type Project struct {
	path       string
	dir        string
	stem       string
	groups     []xmlPropertyGroup
	configKeys map[string]string
}

// Load reads and parses a .dproj file.
func Load(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, dcberr.New(dcberr.NotFound, "project file not found: %s", path)
		}
		return nil, dcberr.Wrap(dcberr.ParseError, err, "reading project file %s", path)
	}

	var doc xmlProject
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, dcberr.Wrap(dcberr.ParseError, err, "invalid project file %s", path)
	}
	if doc.XMLName.Space != msbuildNS {
		return nil, dcberr.New(dcberr.ParseError, "%s is not an MSBuild project (namespace %q)", path, doc.XMLName.Space)
	}

	base := filepath.Base(path)
	p := &Project{
		path:       path,
		dir:        filepath.Dir(path),
		stem:       strings.TrimSuffix(base, filepath.Ext(base)),
		groups:     doc.PropertyGroups,
		configKeys: buildConfigKeyMap(doc.ItemGroups),
	}
	return p, nil
}

// buildConfigKeyMap maps configuration names to their internal Cfg keys.
// Descriptors written by older IDE versions omit the BuildConfiguration
// items; Debug and Release then get the conventional Cfg_1 / Cfg_2 keys.
func buildConfigKeyMap(items []xmlItemGroup) map[string]string {
	m := make(map[string]string)
	for _, ig := range items {
		for _, bc := range ig.BuildConfigurations {
			if bc.Include != "" && bc.Key != "" {
				m[bc.Include] = strings.TrimSpace(bc.Key)
			}
		}
	}
	if _, ok := m["Debug"]; !ok {
		m["Debug"] = "Cfg_1"
	}
	if _, ok := m["Release"]; !ok {
		m["Release"] = "Cfg_2"
	}
	return m
}

// ActiveConfiguration returns the descriptor's default configuration,
// taken from the Configuration element guarded by '$(Configuration)'==''.
func (p *Project) ActiveConfiguration() string {
	if v := p.defaultProperty("Configuration"); v != "" {
		return v
	}
	return "Debug"
}

// ActivePlatform returns the descriptor's default platform.
func (p *Project) ActivePlatform() string {
	if v := p.defaultProperty("Platform"); v != "" {
		return v
	}
	return "Win32"
}

func (p *Project) defaultProperty(name string) string {
	marker := "'$(" + name + ")'==''"
	for _, g := range p.groups {
		if g.Condition != "" && !strings.Contains(g.Condition, marker) {
			continue
		}
		for _, prop := range g.Properties {
			if prop.XMLName.Local == name && strings.TrimSpace(prop.Value) != "" {
				return strings.TrimSpace(prop.Value)
			}
		}
	}
	return ""
}

// Resolve merges every property group matching the given configuration and
// platform into one settings view. Empty overrides fall back to the
// descriptor defaults. List properties union across groups preserving first
// occurrence; scalar properties take the last matching group's value.
func (p *Project) Resolve(overrideConfig, overridePlatform string) (*model.ProjectSettings, error) {
	config := overrideConfig
	if config == "" {
		config = p.ActiveConfiguration()
	}
	platform := overridePlatform
	if platform == "" {
		platform = p.ActivePlatform()
	}

	configKey, ok := p.configKeys[config]
	if !ok {
		configKey = "Cfg_1"
	}

	matchers := []string{
		"'$(Base)'!=''",
		"'$(Base_" + platform + ")'!=''",
		"'$(" + configKey + ")'!=''",
		"'$(" + configKey + "_" + platform + ")'!=''",
		"'$(Config)'=='" + config + "'",
		"'$(Platform)'=='" + platform + "'",
		"'" + config + "|" + platform + "'",
	}

	settings := &model.ProjectSettings{
		ActiveConfig:   config,
		ActivePlatform: platform,
	}
	vi := newVersionInfoState()

	for _, g := range p.groups {
		if !conditionMatches(g.Condition, matchers) {
			continue
		}
		p.applyGroup(g, settings, vi)
	}

	settings.VersionInfo = vi.finalize()
	return settings, nil
}

func conditionMatches(condition string, matchers []string) bool {
	if condition == "" {
		return true
	}
	for _, m := range matchers {
		if strings.Contains(condition, m) {
			return true
		}
	}
	return false
}

func (p *Project) applyGroup(g xmlPropertyGroup, s *model.ProjectSettings, vi *versionInfoState) {
	for _, prop := range g.Properties {
		name := prop.XMLName.Local
		value := strings.TrimSpace(prop.Value)

		switch name {
		case "MainSource":
			if value != "" {
				s.MainSource = value
			}
		case "DCC_Define":
			appendUnique(&s.Defines, splitSemicolonList(value)...)
		case "DCC_UnitSearchPath":
			appendUnique(&s.UnitSearchPaths, p.resolvePathList(value)...)
		case "DCC_IncludePath":
			appendUnique(&s.IncludePaths, p.resolvePathList(value)...)
		case "DCC_ResourcePath":
			appendUnique(&s.ResourcePaths, p.resolvePathList(value)...)
		case "DCC_ExeOutput":
			if resolved := p.resolvePath(value); resolved != "" {
				s.OutputDir = resolved
			}
		case "DCC_DcuOutput":
			if resolved := p.resolvePath(value); resolved != "" {
				s.DCUOutputDir = resolved
			}
		case "DCC_Namespace":
			appendUnique(&s.NamespacePrefixes, splitSemicolonList(value)...)
		default:
			if letter, ok := dccSwitches[name]; ok {
				sign := "-"
				if strings.EqualFold(value, "true") {
					sign = "+"
				}
				appendUnique(&s.CompilerFlags, "-$"+letter+sign)
			} else if strings.HasPrefix(name, "VerInfo_") {
				vi.apply(name, p.expandMSBuildName(value))
			}
		}
	}
}

var msbuildVarPattern = regexp.MustCompile(`\$\([^)]+\)`)

// splitSemicolonList splits a semicolon list, dropping empty entries and
// pure MSBuild variable references like $(DCC_Define).
func splitSemicolonList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ";") {
		item = strings.TrimSpace(item)
		if item == "" || (strings.HasPrefix(item, "$(") && strings.HasSuffix(item, ")")) {
			continue
		}
		out = append(out, item)
	}
	return out
}

func (p *Project) resolvePathList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ";") {
		if resolved := p.resolvePath(item); resolved != "" {
			out = append(out, resolved)
		}
	}
	return out
}

// resolvePath strips MSBuild variable references and resolves relative
// paths against the project directory.
func (p *Project) resolvePath(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if strings.HasPrefix(value, "$(") && strings.HasSuffix(value, ")") {
		return ""
	}
	value = strings.TrimSpace(msbuildVarPattern.ReplaceAllString(value, ""))
	if value == "" {
		return ""
	}
	if isAbsPath(value) {
		return value
	}
	return filepath.Clean(filepath.Join(p.dir, value))
}

// isAbsPath also recognizes Windows drive paths when running elsewhere.
func isAbsPath(p string) bool {
	if filepath.IsAbs(p) {
		return true
	}
	return len(p) >= 2 && p[1] == ':'
}

// expandMSBuildName substitutes $(MSBuildProjectName) with the descriptor's
// file stem. Other variable references are left alone here; version keys
// carry free text, not paths.
func (p *Project) expandMSBuildName(value string) string {
	return strings.ReplaceAll(value, "$(MSBuildProjectName)", p.stem)
}

func appendUnique(dst *[]string, items ...string) {
	for _, item := range items {
		found := false
		for _, have := range *dst {
			if have == item {
				found = true
				break
			}
		}
		if !found {
			*dst = append(*dst, item)
		}
	}
}

// versionInfoState accumulates VerInfo_* properties across groups. The
// FileVersion key provides the version numbers unless the individual
// VerInfo_MajorVer style properties set them explicitly.
type versionInfoState struct {
	seen     bool
	disabled bool
	locale   int
	keys     map[string]string

	major, minor, release, build             int
	majorSet, minorSet, releaseSet, buildSet bool
}

func newVersionInfoState() *versionInfoState {
	return &versionInfoState{locale: 1033, keys: make(map[string]string)}
}

func (v *versionInfoState) apply(name, value string) {
	v.seen = true
	switch name {
	case "VerInfo_IncludeVerInfo":
		if strings.EqualFold(value, "false") {
			v.disabled = true
		}
	case "VerInfo_Locale":
		if n, err := strconv.Atoi(value); err == nil {
			v.locale = n
		}
	case "VerInfo_MajorVer":
		v.major, v.majorSet = atoiOr(value, v.major), true
	case "VerInfo_MinorVer":
		v.minor, v.minorSet = atoiOr(value, v.minor), true
	case "VerInfo_Release":
		v.release, v.releaseSet = atoiOr(value, v.release), true
	case "VerInfo_Build":
		v.build, v.buildSet = atoiOr(value, v.build), true
	case "VerInfo_Keys":
		for _, pair := range strings.Split(value, ";") {
			if k, val, ok := strings.Cut(pair, "="); ok {
				v.keys[strings.TrimSpace(k)] = strings.TrimSpace(val)
			}
		}
	}
}

func atoiOr(s string, fallback int) int {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return fallback
}

func (v *versionInfoState) finalize() *model.VersionInfo {
	if !v.seen || v.disabled {
		return nil
	}

	info := &model.VersionInfo{Locale: v.locale}
	if len(v.keys) > 0 {
		info.Keys = v.keys
	}

	// FileVersion from the keys supplies defaults for the numbers.
	if fv, ok := v.keys["FileVersion"]; ok {
		parts := strings.Split(fv, ".")
		nums := [4]int{}
		for i := 0; i < len(parts) && i < 4; i++ {
			nums[i] = atoiOr(strings.TrimSpace(parts[i]), 0)
		}
		info.Major, info.Minor, info.Release, info.Build = nums[0], nums[1], nums[2], nums[3]
	}
	if v.majorSet {
		info.Major = v.major
	}
	if v.minorSet {
		info.Minor = v.minor
	}
	if v.releaseSet {
		info.Release = v.release
	}
	if v.buildSet {
		info.Build = v.build
	}
	return info
}
