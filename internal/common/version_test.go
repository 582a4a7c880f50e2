package common

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGetFullVersion_IncludesBuildAndCommit(t *testing.T) {
	full := GetFullVersion()
	if !strings.Contains(full, Version) {
		t.Errorf("expected version %q in %q", Version, full)
	}
	if !strings.Contains(full, "build:") || !strings.Contains(full, "commit:") {
		t.Errorf("expected build and commit labels in %q", full)
	}
}

func TestLoadVersionFile_FillsDefaults(t *testing.T) {
	oldVersion, oldBuild, oldCommit := Version, Build, GitCommit
	t.Cleanup(func() { Version, Build, GitCommit = oldVersion, oldBuild, oldCommit })
	Version, Build, GitCommit = "dev", "unknown", "unknown"

	path := filepath.Join(t.TempDir(), ".version")
	content := "# build info\nversion: 1.2.3\nbuild: 2026-01-01\ncommit: abc123\nmalformed line\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write version file: %v", err)
	}

	loadVersionFile(path)

	if Version != "1.2.3" {
		t.Errorf("expected version 1.2.3, got %s", Version)
	}
	if Build != "2026-01-01" {
		t.Errorf("expected build 2026-01-01, got %s", Build)
	}
	if GitCommit != "abc123" {
		t.Errorf("expected commit abc123, got %s", GitCommit)
	}
}

func TestLoadVersionFile_DoesNotOverrideLdflags(t *testing.T) {
	oldVersion, oldBuild := Version, Build
	t.Cleanup(func() { Version, Build = oldVersion, oldBuild })
	Version, Build = "9.9.9", "unknown"

	path := filepath.Join(t.TempDir(), ".version")
	if err := os.WriteFile(path, []byte("version: 1.0.0\nbuild: b1\n"), 0o644); err != nil {
		t.Fatalf("failed to write version file: %v", err)
	}

	loadVersionFile(path)

	if Version != "9.9.9" {
		t.Errorf("expected ldflags version to win, got %s", Version)
	}
	if Build != "b1" {
		t.Errorf("expected build b1, got %s", Build)
	}
}

func TestLoadVersionFile_MissingFileIsNoop(t *testing.T) {
	oldVersion := Version
	loadVersionFile(filepath.Join(t.TempDir(), "missing"))
	if Version != oldVersion {
		t.Errorf("expected version unchanged, got %s", Version)
	}
}
