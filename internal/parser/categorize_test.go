package parser

import (
	"reflect"
	"testing"
)

func TestCategorizeAnomAbend(t *testing.T) {
	res := CategorizeLogEntry(ParseLogLine(abendLine))

	if !res.Has(CategorySecurity) || !res.Has(CategoryCrash) {
		t.Fatalf("categories = %v, want security and crash", res.Categories)
	}
	if res.PrimaryCategory != CategorySecurity {
		t.Errorf("primary = %q, want security", res.PrimaryCategory)
	}
	want := []string{CategorySecurity, CategorySystem, CategoryError, CategoryCrash}
	if !reflect.DeepEqual(res.Categories, want) {
		t.Errorf("categories = %v, want %v", res.Categories, want)
	}
	if !reflect.DeepEqual(res.Tags, []string{"audit", "memory"}) {
		t.Errorf("tags = %v, want [audit memory]", res.Tags)
	}
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		name        string
		line        string
		wantCats    []string
		wantTags    []string
		wantPrimary string
	}{
		{
			name:        "systemd info",
			line:        "2025-06-26T11:09:12-04:00 fedora systemd[1]: Started Session 3 of User jo.",
			wantCats:    []string{CategorySystem},
			wantTags:    []string{},
			wantPrimary: CategorySystem,
		},
		{
			name:        "audit record without abend is primarily security",
			line:        userCmdLine,
			wantCats:    []string{CategorySecurity, CategorySystem},
			wantTags:    []string{"audit"},
			wantPrimary: CategorySecurity,
		},
		{
			name:        "abend from a system service",
			line:        "Jun 26 11:09:12 fedora systemd[1]: ANOM_ABEND unit crashed",
			wantCats:    []string{CategorySecurity, CategorySystem, CategoryError},
			wantTags:    []string{"audit"},
			wantPrimary: CategorySecurity,
		},
		{
			name:        "kernel oom",
			line:        "Jun 26 11:09:12 fedora kernel: Out of memory: Killed process 4242 (firefox)",
			wantCats:    []string{CategorySystem, CategoryCrash},
			wantTags:    []string{"memory"},
			wantPrimary: CategorySystem,
		},
		{
			name:        "application error",
			line:        "Jun 26 11:09:12 fedora code[3100]: ERROR extension host terminated",
			wantCats:    []string{CategoryApplication, CategoryError},
			wantTags:    []string{"vscode"},
			wantPrimary: CategoryApplication,
		},
		{
			name:        "plain",
			line:        "Jun 26 11:09:12 fedora NetworkManager[900]: <info> device state change",
			wantCats:    []string{},
			wantTags:    []string{},
			wantPrimary: CategoryGeneral,
		},
		{
			name:        "signal level alone is an error",
			line:        "Jun 26 11:09:12 fedora app[10]: child exited sig=15",
			wantCats:    []string{CategoryError, CategoryCrash},
			wantTags:    []string{"memory"},
			wantPrimary: CategoryError,
		},
		{
			name:        "segfault case folded",
			line:        "Jun 26 11:09:12 fedora kernel: foo[77]: SEGFAULT at 0 ip 00007f",
			wantCats:    []string{CategoryCrash},
			wantTags:    []string{"memory"},
			wantPrimary: CategoryCrash,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := CategorizeLogEntry(ParseLogLine(tt.line))
			if !reflect.DeepEqual(res.Categories, tt.wantCats) {
				t.Errorf("categories = %v, want %v", res.Categories, tt.wantCats)
			}
			if !reflect.DeepEqual(res.Tags, tt.wantTags) {
				t.Errorf("tags = %v, want %v", res.Tags, tt.wantTags)
			}
			if res.PrimaryCategory != tt.wantPrimary {
				t.Errorf("primary = %q, want %q", res.PrimaryCategory, tt.wantPrimary)
			}
		})
	}
}

func TestCategorizeDeterministic(t *testing.T) {
	e := ParseLogLine(abendLine)
	first := CategorizeLogEntry(e)
	for i := 0; i < 10; i++ {
		if got := CategorizeLogEntry(e); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d: %+v, want %+v", i, got, first)
		}
	}
}

func TestCategorizeCustomMarkers(t *testing.T) {
	p := New(WithAppMarkers([]AppMarker{
		{Substring: "firefox", Tag: "browser"},
		{Substring: "Firefox", Tag: "browser"},
		{Substring: "", Tag: "ignored"},
	}))
	res := p.Categorize(p.Parse("host firefox[5]: Firefox started"))

	if !reflect.DeepEqual(res.Categories, []string{CategoryApplication}) {
		t.Errorf("categories = %v, want [application]", res.Categories)
	}
	if !reflect.DeepEqual(res.Tags, []string{"browser"}) {
		t.Errorf("tags = %v, want [browser]", res.Tags)
	}

	// The default "code" marker must be gone.
	if p.Categorize(p.Parse("host code[1]: hi")).Has(CategoryApplication) {
		t.Error("default marker still active")
	}
}

func TestCategorizeNil(t *testing.T) {
	res := CategorizeLogEntry(nil)
	if res.PrimaryCategory != CategoryGeneral || len(res.Categories) != 0 {
		t.Errorf("got %+v, want general with no categories", res)
	}
}
