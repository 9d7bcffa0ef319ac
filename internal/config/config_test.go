package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFallsBackToDefaultsWithoutEnv(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	defer os.Chdir(wd)
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}

	for _, key := range []string{"CHATX_OUTPUT_DIR", "CHATX_RECOVERY_DIR", "CHATX_WORKERS", "CHATX_VERBOSE"} {
		os.Unsetenv(key)
	}

	d := Load()
	if d.OutputDir != "out" || d.RecoveryDir != "recovered_files" || d.Workers != 4 || d.Verbose {
		t.Fatalf("unexpected defaults: %+v", d)
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	defer os.Chdir(wd)
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}

	envContent := "CHATX_OUTPUT_DIR=custom_out\nCHATX_WORKERS=8\nCHATX_VERBOSE=true\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(envContent), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	for _, key := range []string{"CHATX_OUTPUT_DIR", "CHATX_RECOVERY_DIR", "CHATX_WORKERS", "CHATX_VERBOSE"} {
		os.Unsetenv(key)
	}

	d := Load()
	if d.OutputDir != "custom_out" || d.Workers != 8 || !d.Verbose {
		t.Fatalf("unexpected defaults from .env: %+v", d)
	}
	if d.RecoveryDir != "recovered_files" {
		t.Fatalf("expected unset var to keep hard-coded default, got %q", d.RecoveryDir)
	}
}
