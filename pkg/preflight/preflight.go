// SPDX-License-Identifier: MPL-2.0

// Package preflight validates and repairs an install directory before a
// bulk run.
//
// Repairs are best-effort and non-fatal: a missing or corrupted registry
// file or obsolete marker is recreated with empty defaults, extension
// directories without a parseable manifest are flagged (and optionally
// removed, since they block later installs of the same directory name), and
// orphaned staging directories left by crashed runs are purged. Only a
// missing install directory or a missing editor binary makes the run
// invalid.
package preflight

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/gabros20/vsix-extension-manager-sub001/pkg/installer"
	"github.com/gabros20/vsix-extension-manager-sub001/pkg/registry"
	"github.com/gabros20/vsix-extension-manager-sub001/pkg/vsix"
)

// stagingGracePeriod is how recently a staging directory must have been
// modified to be considered possibly in use by a running install.
const stagingGracePeriod = 15 * time.Minute

// ErrInstallDirNotFound is the sentinel error wrapped by
// InstallDirNotFoundError.
var ErrInstallDirNotFound = errors.New("install directory not found")

// ErrBinaryNotFound is the sentinel error wrapped by BinaryNotFoundError.
var ErrBinaryNotFound = errors.New("editor binary not found")

// InstallDirNotFoundError is the hard preflight failure for a missing
// install directory. It wraps ErrInstallDirNotFound for errors.Is()
// compatibility.
type InstallDirNotFoundError struct {
	// Path is the missing directory.
	Path string
}

// Error implements the error interface for InstallDirNotFoundError.
func (e *InstallDirNotFoundError) Error() string {
	return fmt.Sprintf("install directory not found: %s", e.Path)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InstallDirNotFoundError) Unwrap() error {
	return ErrInstallDirNotFound
}

// BinaryNotFoundError is the hard preflight failure for a missing editor
// binary. It wraps ErrBinaryNotFound for errors.Is() compatibility.
type BinaryNotFoundError struct {
	// Binary is the binary name or path that was checked.
	Binary string
}

// Error implements the error interface for BinaryNotFoundError.
func (e *BinaryNotFoundError) Error() string {
	return fmt.Sprintf("editor binary not found: %s", e.Binary)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *BinaryNotFoundError) Unwrap() error {
	return ErrBinaryNotFound
}

// Report is the outcome of one preflight run.
type Report struct {
	// Valid is false only for hard failures (install dir or binary absent).
	Valid bool
	// Errors lists hard failures.
	Errors []string
	// Warnings lists non-fatal findings that were not repaired.
	Warnings []string
	// Repairs lists repair actions that were performed.
	Repairs []string
}

// Options configures one preflight run.
type Options struct {
	// RemoveInvalid deletes extension directories lacking a valid manifest
	// instead of only flagging them.
	RemoveInvalid bool
	// EditorBinary, when set, must resolve to an existing binary (absolute
	// path or a name on PATH); otherwise the run is invalid.
	EditorBinary string
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger used for repair events.
func WithLogger(logger *log.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// Service runs preflight checks against one install directory, repairing
// through the directory's registry Manager.
type Service struct {
	reg    *registry.Manager
	logger *log.Logger
}

// NewService returns a preflight Service for reg's install directory.
func NewService(reg *registry.Manager, opts ...Option) *Service {
	s := &Service{reg: reg, logger: log.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run performs all checks and repairs. The returned error is non-nil only
// for hard failures, and the Report is always populated.
func (s *Service) Run(opts Options) (*Report, error) {
	report := &Report{Valid: true}
	installDir := s.reg.Dir()

	if info, err := os.Stat(installDir); err != nil || !info.IsDir() {
		hardErr := &InstallDirNotFoundError{Path: installDir}
		report.Valid = false
		report.Errors = append(report.Errors, hardErr.Error())
		return report, hardErr
	}

	if opts.EditorBinary != "" {
		if err := checkBinary(opts.EditorBinary); err != nil {
			report.Valid = false
			report.Errors = append(report.Errors, err.Error())
			return report, err
		}
	}

	s.repairRegistryFile(report)
	s.repairObsoleteFile(report)
	s.scanExtensionDirs(report, opts.RemoveInvalid)
	s.purgeOrphanedStaging(report)

	return report, nil
}

// repairRegistryFile recreates the registry file with an empty array when
// it is missing or unparsable.
func (s *Service) repairRegistryFile(report *Report) {
	path := s.reg.RegistryPath()
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		if werr := s.reg.WithLock(func() error { return s.reg.Write([]registry.Entry{}) }); werr != nil {
			report.Warnings = append(report.Warnings, fmt.Sprintf("could not create registry file: %v", werr))
			return
		}
		report.Repairs = append(report.Repairs, "created missing registry file "+path)
	case err != nil:
		report.Warnings = append(report.Warnings, fmt.Sprintf("could not read registry file: %v", err))
	default:
		var entries []registry.Entry
		if json.Unmarshal(data, &entries) == nil {
			return
		}
		s.logger.Warn("registry file is corrupted, resetting to empty", "path", path)
		if werr := s.reg.WithLock(func() error { return s.reg.Write([]registry.Entry{}) }); werr != nil {
			report.Warnings = append(report.Warnings, fmt.Sprintf("could not reset corrupted registry file: %v", werr))
			return
		}
		report.Repairs = append(report.Repairs, "reset corrupted registry file "+path)
	}
}

// repairObsoleteFile recreates the obsolete marker when missing or
// unparsable.
func (s *Service) repairObsoleteFile(report *Report) {
	path := s.reg.ObsoletePath()
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		if werr := s.reg.EnsureObsoleteFile(); werr != nil {
			report.Warnings = append(report.Warnings, fmt.Sprintf("could not create obsolete marker: %v", werr))
			return
		}
		report.Repairs = append(report.Repairs, "created missing obsolete marker "+path)
	case err != nil:
		report.Warnings = append(report.Warnings, fmt.Sprintf("could not read obsolete marker: %v", err))
	default:
		var obsolete map[string]bool
		if json.Unmarshal(data, &obsolete) == nil {
			return
		}
		if werr := os.WriteFile(path, []byte("{}"), 0o644); werr != nil {
			report.Warnings = append(report.Warnings, fmt.Sprintf("could not reset corrupted obsolete marker: %v", werr))
			return
		}
		report.Repairs = append(report.Repairs, "reset corrupted obsolete marker "+path)
	}
}

// scanExtensionDirs flags top-level extension directories without a
// parseable manifest. Such directories collide with future installs of the
// same name and desynchronize the registry.
func (s *Service) scanExtensionDirs(report *Report, removeInvalid bool) {
	entries, err := os.ReadDir(s.reg.Dir())
	if err != nil {
		report.Warnings = append(report.Warnings, fmt.Sprintf("could not scan install directory: %v", err))
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		dirPath := filepath.Join(s.reg.Dir(), entry.Name())
		if validExtensionDir(dirPath) {
			continue
		}
		if !removeInvalid {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("extension directory %s has no valid manifest", entry.Name()))
			continue
		}
		if err := os.RemoveAll(dirPath); err != nil {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("could not remove invalid extension directory %s: %v", entry.Name(), err))
			continue
		}
		report.Repairs = append(report.Repairs, "removed invalid extension directory "+entry.Name())
	}
}

// purgeOrphanedStaging removes staging directories left behind by crashed
// runs, identified by the installer's staging naming convention. A staging
// directory modified within stagingGracePeriod may belong to an install
// that is still running, so it is reported instead of removed.
func (s *Service) purgeOrphanedStaging(report *Report) {
	entries, err := os.ReadDir(s.reg.Dir())
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), installer.StagingPrefix) {
			continue
		}
		if info, err := entry.Info(); err == nil && time.Since(info.ModTime()) < stagingGracePeriod {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("staging directory %s is recent, possibly in use; not removed", entry.Name()))
			continue
		}
		path := filepath.Join(s.reg.Dir(), entry.Name())
		if err := os.RemoveAll(path); err != nil {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("could not remove orphaned staging directory %s: %v", entry.Name(), err))
			continue
		}
		report.Repairs = append(report.Repairs, "removed orphaned staging directory "+entry.Name())
	}
}

// validExtensionDir reports whether dirPath holds a manifest with the
// required fields.
func validExtensionDir(dirPath string) bool {
	data, err := os.ReadFile(filepath.Join(dirPath, "package.json"))
	if err != nil {
		return false
	}
	_, err = vsix.ParseManifest(data)
	return err == nil
}

// checkBinary resolves the editor binary as an absolute path or via PATH.
func checkBinary(binary string) error {
	if filepath.IsAbs(binary) {
		if _, err := os.Stat(binary); err != nil {
			return &BinaryNotFoundError{Binary: binary}
		}
		return nil
	}
	if _, err := exec.LookPath(binary); err != nil {
		return &BinaryNotFoundError{Binary: binary}
	}
	return nil
}
