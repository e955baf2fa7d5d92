package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/abh/dateferry"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "dateferry.yaml")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadAppliesDefaults(t *testing.T) {
	p := writeConfig(t, `
source_root: /data/incoming
dest_root: /remote/archive
ssh:
  host: archive.example.com
  user: uploader
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Kind != "directories" {
		t.Errorf("Kind = %q, want directories", cfg.Kind)
	}
	if cfg.DatedRegex != `^.*%Y%m%d.*$` {
		t.Errorf("DatedRegex = %q, want default", cfg.DatedRegex)
	}
	if cfg.SSH.Port != 22 {
		t.Errorf("SSH.Port = %d, want 22", cfg.SSH.Port)
	}
	if cfg.MetricsPort != 9090 {
		t.Errorf("MetricsPort = %d, want 9090", cfg.MetricsPort)
	}
}

func TestLoadRejectsMissingRequiredFields(t *testing.T) {
	p := writeConfig(t, `
kind: files
`)
	_, err := Load(p)
	if err == nil {
		t.Fatal("expected validation error")
	}
	cfgErr, ok := err.(*dateferry.ConfigError)
	if !ok {
		t.Fatalf("got %T, want *dateferry.ConfigError", err)
	}
	if len(cfgErr.Violations) < 3 {
		t.Fatalf("expected multiple violations, got %v", cfgErr.Violations)
	}
}

func TestLoadRejectsInvalidKind(t *testing.T) {
	p := writeConfig(t, `
source_root: /a
dest_root: /b
kind: bogus
ssh:
  host: h
  user: u
`)
	_, err := Load(p)
	if err == nil {
		t.Fatal("expected validation error for bad kind")
	}
}

func TestLoadRejectsBadDatedRegex(t *testing.T) {
	p := writeConfig(t, `
source_root: /a
dest_root: /b
dated_regex: "no-anchors"
ssh:
  host: h
  user: u
`)
	_, err := Load(p)
	if err == nil {
		t.Fatal("expected validation error for bad dated_regex")
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if _, ok := err.(*dateferry.IoError); !ok {
		t.Fatalf("got %T, want *dateferry.IoError", err)
	}
}
