// SPDX-License-Identifier: MPL-2.0

package config

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gabros20/vsix-extension-manager-sub001/internal/testutil"
)

func TestLoadDefaults(t *testing.T) {
	SetConfigFilePathOverride(filepath.Join(t.TempDir(), "absent.toml"))
	t.Cleanup(func() { SetConfigFilePathOverride("") })

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	want := Default()
	if *cfg != want {
		t.Errorf("Load() = %+v, want defaults %+v", cfg, want)
	}
	if cfg.RetryDelay() != 500*time.Millisecond {
		t.Errorf("RetryDelay() = %v", cfg.RetryDelay())
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	testutil.MustWriteFile(t, path, []byte(
		"install_dir = \"/opt/extensions\"\n"+
			"editor = \"codium\"\n"+
			"parallelism = 8\n"+
			"skip_installed = false\n",
	), 0o644)
	SetConfigFilePathOverride(path)
	t.Cleanup(func() { SetConfigFilePathOverride("") })

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.InstallDir != "/opt/extensions" || cfg.Editor != "codium" || cfg.Parallelism != 8 {
		t.Errorf("Load() = %+v", cfg)
	}
	if cfg.SkipInstalled {
		t.Error("skip_installed = true, want false")
	}
	// Keys absent from the file keep their defaults.
	if cfg.MaxRetries != Default().MaxRetries || cfg.BatchSize != Default().BatchSize {
		t.Errorf("unset keys lost defaults: %+v", cfg)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	testutil.MustWriteFile(t, path, []byte("parallelism = 8\n"), 0o644)
	SetConfigFilePathOverride(path)
	t.Cleanup(func() { SetConfigFilePathOverride("") })
	t.Setenv("VSIX_PARALLELISM", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Parallelism != 5 {
		t.Errorf("parallelism = %d, want env override 5", cfg.Parallelism)
	}
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	testutil.MustWriteFile(t, path, []byte("= not toml ="), 0o644)
	SetConfigFilePathOverride(path)
	t.Cleanup(func() { SetConfigFilePathOverride("") })

	if _, err := Load(); err == nil {
		t.Fatal("Load() accepted a malformed config file")
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault() failed: %v", err)
	}

	data := string(testutil.MustReadFile(t, path))
	for _, key := range []string{"install_dir", "parallelism", "max_retries", "batch_size", "skip_installed"} {
		if !strings.Contains(data, key) {
			t.Errorf("written config is missing key %q:\n%s", key, data)
		}
	}

	// The file round-trips through Load.
	SetConfigFilePathOverride(path)
	t.Cleanup(func() { SetConfigFilePathOverride("") })
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() of written default failed: %v", err)
	}
	if *cfg != Default() {
		t.Errorf("round-tripped config = %+v, want %+v", cfg, Default())
	}
}

func TestWriteDefaultRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	testutil.MustWriteFile(t, path, []byte("editor = \"cursor\"\n"), 0o644)

	if err := WriteDefault(path); err == nil {
		t.Fatal("WriteDefault() overwrote an existing file")
	}
	if got := string(testutil.MustReadFile(t, path)); !strings.Contains(got, "cursor") {
		t.Error("existing config file was modified")
	}
}
