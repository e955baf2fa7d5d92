package itemlister

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/abh/dateferry"
	"github.com/abh/dateferry/dateparser"
)

func mustSpec(t *testing.T, s string) *dateparser.DateSpec {
	t.Helper()
	spec, err := dateparser.NewDateSpec(s)
	if err != nil {
		t.Fatalf("NewDateSpec(%q): %v", s, err)
	}
	return spec
}

func TestListDirectoriesSortedAndFiltered(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"20240102", "20240101", "not-a-date", "20240103"} {
		if err := os.Mkdir(filepath.Join(root, name), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	// A regular file should be excluded in directories mode.
	os.WriteFile(filepath.Join(root, "20240101.txt"), []byte("x"), 0o644)

	spec := mustSpec(t, `^%Y%m%d$`)

	now := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	got, err := List(root, dateferry.KindDirectories, spec, now)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"20240101", "20240102", "20240103"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

// TestListAmbiguousDiscardsAllResults mirrors the S3 scenario: a directory
// whose basename parses to more than one distinct date under the spec
// must abort the whole listing, even though other entries are fine.
func TestListAmbiguousDiscardsAllResults(t *testing.T) {
	root := t.TempDir()
	os.Mkdir(filepath.Join(root, "20240101"), 0o755)
	os.Mkdir(filepath.Join(root, "log-2020111111"), 0o755)

	loose := mustSpec(t, `^log-%Y%m%d\d*$`)
	now := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

	_, err := List(root, dateferry.KindDirectories, loose, now)
	if err == nil {
		t.Fatal("expected AmbiguousDateError")
	}
	ambErr, ok := err.(*dateferry.AmbiguousDateError)
	if !ok {
		t.Fatalf("got %T, want *dateferry.AmbiguousDateError", err)
	}
	found := false
	for _, n := range ambErr.Names {
		if n == "log-2020111111" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected log-2020111111 among offenders, got %v", ambErr.Names)
	}
}

// TestListSkipsFutureDates mirrors the S4 scenario: an item whose parsed
// date is after MaxDate is silently skipped, not reported as an error.
func TestListSkipsFutureDates(t *testing.T) {
	root := t.TempDir()
	os.Mkdir(filepath.Join(root, "20240109"), 0o755) // yesterday, eligible
	os.Mkdir(filepath.Join(root, "20240110"), 0o755) // today, not yet eligible

	spec := mustSpec(t, `^%Y%m%d$`)
	now := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC) // MaxDate = 2024-01-09

	got, err := List(root, dateferry.KindDirectories, spec, now)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 || got[0] != "20240109" {
		t.Fatalf("got %v, want [20240109]", got)
	}
}

func TestListFilesMode(t *testing.T) {
	root := t.TempDir()
	os.WriteFile(filepath.Join(root, "report-20240101.csv"), []byte("x"), 0o644)
	os.Mkdir(filepath.Join(root, "report-20240102.csv"), 0o755) // a dir, excluded in files mode

	spec := mustSpec(t, `^report-%Y%m%d\.csv$`)
	now := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

	got, err := List(root, dateferry.KindFiles, spec, now)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 || got[0] != "report-20240101.csv" {
		t.Fatalf("got %v, want [report-20240101.csv]", got)
	}
}
