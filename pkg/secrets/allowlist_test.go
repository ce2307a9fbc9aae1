package secrets

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeAllowlistFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestLoadAllowlist_MergesFiles(t *testing.T) {
	dir := t.TempDir()
	project := writeAllowlistFile(t, dir, ".gitleaks.toml", `
[allowlist]
paths = ['testdata/.*']
regexes = ['PROJECT_PLACEHOLDER']
`)
	user := writeAllowlistFile(t, dir, "user.toml", `
[allowlist]
regexes = ['USER_PLACEHOLDER']
`)

	merged, err := LoadAllowlist(project, user)
	if err != nil {
		t.Fatalf("LoadAllowlist() error = %v", err)
	}

	if len(merged.Paths) != 1 || merged.Paths[0] != `testdata/.*` {
		t.Errorf("Paths = %v, want [testdata/.*]", merged.Paths)
	}
	if len(merged.Regexes) != 2 {
		t.Errorf("Regexes = %v, want both placeholder patterns", merged.Regexes)
	}
}

func TestLoadAllowlist_MissingFilesSkipped(t *testing.T) {
	merged, err := LoadAllowlist(filepath.Join(t.TempDir(), "absent.toml"), "")
	if err != nil {
		t.Fatalf("LoadAllowlist() error = %v", err)
	}
	if len(merged.Paths) != 0 || len(merged.Regexes) != 0 {
		t.Errorf("missing files should merge to empty, got %+v", merged)
	}
}

func TestLoadAllowlist_InvalidTOML(t *testing.T) {
	dir := t.TempDir()
	bad := writeAllowlistFile(t, dir, "bad.toml", "not [valid toml")

	_, err := LoadAllowlist(bad)
	if !errors.Is(err, ErrInvalidTOML) {
		t.Errorf("err = %v, want ErrInvalidTOML", err)
	}
}

func TestLoadAllowlist_InvalidRegex(t *testing.T) {
	dir := t.TempDir()
	bad := writeAllowlistFile(t, dir, "bad.toml", `
[allowlist]
regexes = ['[unclosed']
`)

	_, err := LoadAllowlist(bad)
	if !errors.Is(err, ErrInvalidRegex) {
		t.Errorf("err = %v, want ErrInvalidRegex", err)
	}
}

func TestLoadAllowlist_InvalidPathPattern(t *testing.T) {
	dir := t.TempDir()
	bad := writeAllowlistFile(t, dir, "bad.toml", `
[allowlist]
paths = ['(']
`)

	_, err := LoadAllowlist(bad)
	if !errors.Is(err, ErrInvalidRegex) {
		t.Errorf("err = %v, want ErrInvalidRegex", err)
	}
}
