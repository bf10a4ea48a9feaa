// SPDX-License-Identifier: MPL-2.0

// Package editor discovers the host editor installation and isolates the
// heuristics around its CLI.
//
// The install engine treats the editor as an opaque collaborator: it only
// needs the extensions directory path and, for CLI-driven installs, a way
// to classify the editor's stdout. The stdout scanning is a pattern-matching
// heuristic inherited from the editor CLI itself and deliberately lives
// here, at the boundary, never inside the engine.
package editor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/gabros20/vsix-extension-manager-sub001/pkg/platform"
)

// ErrNotFound is the sentinel error wrapped by NotFoundError.
var ErrNotFound = errors.New("no supported editor found")

// NotFoundError is returned when no supported editor binary is on PATH.
// It wraps ErrNotFound for errors.Is() compatibility.
type NotFoundError struct {
	// Tried lists the binary names that were searched.
	Tried []string
}

// Error implements the error interface for NotFoundError.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no supported editor found (tried: %s)", strings.Join(e.Tried, ", "))
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// Editor is a discovered editor installation.
type Editor struct {
	// Name is the editor's binary name (e.g. "code").
	Name string
	// BinaryPath is the absolute path of the editor CLI binary.
	BinaryPath string
	// ExtensionsDir is the directory the editor loads extensions from.
	ExtensionsDir string
}

// known maps editor binary names to their home-relative extensions
// directory, in discovery priority order.
var known = []struct {
	binary  string
	homeDir string
}{
	{"code", ".vscode"},
	{"code-insiders", ".vscode-insiders"},
	{"codium", ".vscode-oss"},
	{"cursor", ".cursor"},
	{"windsurf", ".windsurf"},
}

// Discover returns the first supported editor found on PATH.
func Discover() (*Editor, error) {
	tried := make([]string, 0, len(known))
	for _, k := range known {
		tried = append(tried, k.binary)
		ed, err := discoverBinary(k.binary, k.homeDir)
		if err == nil {
			return ed, nil
		}
	}
	return nil, &NotFoundError{Tried: tried}
}

// DiscoverNamed returns the named editor if its binary is on PATH.
func DiscoverNamed(name string) (*Editor, error) {
	for _, k := range known {
		if k.binary != name {
			continue
		}
		ed, err := discoverBinary(k.binary, k.homeDir)
		if err != nil {
			return nil, &NotFoundError{Tried: []string{name}}
		}
		return ed, nil
	}
	return nil, &NotFoundError{Tried: []string{name}}
}

func discoverBinary(binary, homeDir string) (*Editor, error) {
	path, err := exec.LookPath(binary + platform.ExeSuffix())
	if err != nil {
		// Windows installs expose a .cmd shim rather than an .exe.
		if !platform.IsWindows() {
			return nil, err
		}
		path, err = exec.LookPath(binary + ".cmd")
		if err != nil {
			return nil, err
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolving home directory: %w", err)
	}
	return &Editor{
		Name:          binary,
		BinaryPath:    path,
		ExtensionsDir: filepath.Join(home, homeDir, "extensions"),
	}, nil
}

// CLIOutcome classifies the editor CLI's install output.
type CLIOutcome int

const (
	// CLIInstalled means the CLI reported a successful install.
	CLIInstalled CLIOutcome = iota
	// CLIAlreadyInstalled means the CLI reported the extension as present.
	CLIAlreadyInstalled
	// CLIIncompatible means the CLI rejected the extension as incompatible.
	CLIIncompatible
	// CLIUnknown means the output matched no known pattern.
	CLIUnknown
)

// ClassifyInstallOutput scans the editor CLI's combined output for the
// phrases it prints instead of exit codes. The CLI exits zero for several
// non-success outcomes, so the text is the only signal available.
func ClassifyInstallOutput(output string) CLIOutcome {
	lower := strings.ToLower(output)
	switch {
	case strings.Contains(lower, "is already installed"):
		return CLIAlreadyInstalled
	case strings.Contains(lower, "successfully installed"):
		return CLIInstalled
	case strings.Contains(lower, "not compatible"), strings.Contains(lower, "incompatible"):
		return CLIIncompatible
	default:
		return CLIUnknown
	}
}

// InstallWithCLI installs the archive through the editor's own CLI and
// classifies the result. The context bounds the subprocess.
func (e *Editor) InstallWithCLI(ctx context.Context, archivePath string) (CLIOutcome, error) {
	cmd := exec.CommandContext(ctx, e.BinaryPath, "--install-extension", archivePath)
	output, err := cmd.CombinedOutput()
	outcome := ClassifyInstallOutput(string(output))
	if err != nil {
		return outcome, fmt.Errorf("editor CLI install failed: %w (output: %s)",
			err, strings.TrimSpace(string(output)))
	}
	return outcome, nil
}
