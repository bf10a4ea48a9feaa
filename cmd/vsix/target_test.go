// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"testing"
	"time"

	"github.com/gabros20/vsix-extension-manager-sub001/internal/config"
)

func TestResolveTargetPrefersFlagOverConfig(t *testing.T) {
	flagDir := t.TempDir()
	cfg := &config.Config{InstallDir: "/from/config"}

	target, err := resolveTarget(cfg, flagDir)
	if err != nil {
		t.Fatalf("resolveTarget() failed: %v", err)
	}
	if target.installDir != flagDir {
		t.Errorf("installDir = %q, want flag value %q", target.installDir, flagDir)
	}
	// An explicit directory skips editor discovery entirely.
	if target.editorBinary != "" {
		t.Errorf("editorBinary = %q, want empty", target.editorBinary)
	}
}

func TestResolveTargetUsesConfigDir(t *testing.T) {
	cfgDir := t.TempDir()
	cfg := &config.Config{InstallDir: cfgDir}

	target, err := resolveTarget(cfg, "")
	if err != nil {
		t.Fatalf("resolveTarget() failed: %v", err)
	}
	if target.installDir != cfgDir {
		t.Errorf("installDir = %q, want config value %q", target.installDir, cfgDir)
	}
}

func TestFirstPositive(t *testing.T) {
	tests := []struct {
		name   string
		values []int
		want   int
	}{
		{"flag wins", []int{4, 2}, 4},
		{"zero falls through", []int{0, 2}, 2},
		{"negative falls through", []int{-1, 2}, 2},
		{"all unset", []int{0, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := firstPositive(tt.values...); got != tt.want {
				t.Errorf("firstPositive(%v) = %d, want %d", tt.values, got, tt.want)
			}
		})
	}
}

func TestFirstPositiveDuration(t *testing.T) {
	if got := firstPositiveDuration(0, 500*time.Millisecond); got != 500*time.Millisecond {
		t.Errorf("firstPositiveDuration = %v", got)
	}
	if got := firstPositiveDuration(2*time.Second, 500*time.Millisecond); got != 2*time.Second {
		t.Errorf("firstPositiveDuration = %v", got)
	}
}

func TestExitErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := &ExitError{Code: 1, Err: cause}
	if !errors.Is(err, cause) {
		t.Error("ExitError does not unwrap to its cause")
	}
	if err.Error() != "boom" {
		t.Errorf("Error() = %q", err.Error())
	}
	bare := &ExitError{Code: 3}
	if bare.Error() != "exit status 3" {
		t.Errorf("Error() = %q", bare.Error())
	}
}
