package pathutil

import (
	"reflect"
	"testing"
)

func TestDedup(t *testing.T) {
	in := []string{
		`C:\Libs\A`,
		`c:/libs/a`,
		`C:\Libs\B`,
		`C:\Libs\A\`,
		`C:\Libs\C`,
	}
	want := []string{`C:\Libs\A`, `C:\Libs\B`, `C:\Libs\C`}
	got := Dedup(in)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Dedup() = %v, want %v", got, want)
	}
}

func TestDedupKeepsFirstSpelling(t *testing.T) {
	got := Dedup([]string{`C:\LIBS\Spring4D`, `c:\libs\spring4d`})
	if len(got) != 1 || got[0] != `C:\LIBS\Spring4D` {
		t.Errorf("Dedup() = %v, want first spelling kept", got)
	}
}

func TestExpandVars(t *testing.T) {
	env := MapEnv(map[string]string{
		"ROOT":  "C:/Delphi",
		"LIBS":  "${ROOT}/libs",
		"LOOP1": "${LOOP2}",
		"LOOP2": "${LOOP1}",
	})

	tests := []struct {
		in, want string
	}{
		{"${ROOT}/bin", "C:/Delphi/bin"},
		{"${LIBS}/spring", "C:/Delphi/libs/spring"},
		{"${MISSING}/x", "${MISSING}/x"},
		{"no refs", "no refs"},
	}
	for _, tt := range tests {
		if got := ExpandVars(tt.in, env); got != tt.want {
			t.Errorf("ExpandVars(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	// Reference cycles must terminate, exact result is unspecified.
	_ = ExpandVars("${LOOP1}", env)
}

func TestRepairCorruption(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"½SUSERNAME%/libs", "${USERNAME}/libs"},
		{"½SUSERDIR%/src", "${USERDIR}/src"},
		{"½SROOT}/bin", "${ROOT}/bin"},
		{"C:/clean/path", "C:/clean/path"},
	}
	for _, tt := range tests {
		if got := RepairCorruption(tt.in); got != tt.want {
			t.Errorf("RepairCorruption(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSubstituteUserName(t *testing.T) {
	env := MapEnv(map[string]string{"USERNAME": "alice"})

	got := SubstituteUserName(`C:\Users\alice\Documents\Libs`, env)
	want := `C:/Users/${USERNAME}/Documents/Libs`
	if got != want {
		t.Errorf("SubstituteUserName() = %q, want %q", got, want)
	}

	// Other users' directories stay untouched.
	p := `C:\Users\bob\Libs`
	if got := SubstituteUserName(p, env); got != p {
		t.Errorf("SubstituteUserName(%q) = %q, want unchanged", p, got)
	}
}

func TestFromWSL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"/mnt/c/Projects/App", `C:\Projects\App`},
		{"/mnt/d/", `D:\`},
		{"/home/user/app", "/home/user/app"},
		{`C:\already\windows`, `C:\already\windows`},
	}
	for _, tt := range tests {
		if got := fromWSL(tt.in); got != tt.want {
			t.Errorf("fromWSL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLooksLikePath(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{`C:\Libs\A`, true},
		{"../relative/dir", true},
		{"C:", true},
		{"justaword", false},
		{"", false},
		{"a|b", false},
		{`-UC:\Libs`, false},
		{`$(BDS)\lib`, false},
	}
	for _, tt := range tests {
		if got := LooksLikePath(tt.in); got != tt.want {
			t.Errorf("LooksLikePath(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
