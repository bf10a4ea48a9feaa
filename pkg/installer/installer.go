// SPDX-License-Identifier: MPL-2.0

// Package installer performs atomic single-extension installs into an
// install directory.
//
// An install walks a fixed state machine: Validating (archive and manifest
// checks), Staging (extraction into a unique hidden staging directory),
// Committing (atomic rename to the final "publisher.name-version" path) and
// Registered (registry entry added). The final path becomes visible only
// after the manifest has been validated and the payload fully staged; a
// failure at any point removes the staging directory and any partial final
// directory before the error surfaces.
//
// "Already installed" is a normal, frequent outcome, so it is reported as a
// Result variant instead of an error.
package installer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/gabros20/vsix-extension-manager-sub001/pkg/archive"
	"github.com/gabros20/vsix-extension-manager-sub001/pkg/registry"
	"github.com/gabros20/vsix-extension-manager-sub001/pkg/vsix"
)

const (
	// StagingPrefix is the directory-name prefix of staging workspaces.
	// Staging directories are hidden so the host editor never mistakes a
	// half-built directory for an installed extension.
	StagingPrefix = ".vsix-staging-"

	// DefaultSource is the install source tag recorded in the registry.
	DefaultSource = "vsix-file"

	// commitRetries bounds the atomic-move retry loop. Renames can fail
	// transiently when the host editor holds handles into the directory.
	commitRetries = 3

	// commitBackoff is the linear backoff between commit retries.
	commitBackoff = 50 * time.Millisecond

	// removeRetries bounds forced-removal retries of an existing directory.
	removeRetries = 3

	// removeBackoff is the linear backoff between removal retries.
	removeBackoff = 100 * time.Millisecond
)

// ErrNotInstalled is the sentinel error wrapped by NotInstalledError.
var ErrNotInstalled = errors.New("extension not installed")

// NotInstalledError is returned by Uninstall when no installed directory
// matches the requested id. It wraps ErrNotInstalled for errors.Is()
// compatibility.
type NotInstalledError struct {
	// ID is the extension id that was requested.
	ID string
}

// Error implements the error interface for NotInstalledError.
func (e *NotInstalledError) Error() string {
	return fmt.Sprintf("extension %s is not installed", e.ID)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *NotInstalledError) Unwrap() error {
	return ErrNotInstalled
}

// Outcome is the terminal state of an install or uninstall.
type Outcome int

const (
	// OutcomeInstalled means the extension was installed and registered.
	OutcomeInstalled Outcome = iota
	// OutcomeAlreadyExists means the target directory already existed and
	// force was not requested. This is a normal outcome, not an error.
	OutcomeAlreadyExists
	// OutcomeUninstalled means the extension directory was removed.
	OutcomeUninstalled
)

// String returns a human-readable outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeInstalled:
		return "installed"
	case OutcomeAlreadyExists:
		return "already-exists"
	case OutcomeUninstalled:
		return "uninstalled"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result describes a completed install or uninstall.
type Result struct {
	// Outcome is the terminal state.
	Outcome Outcome
	// Identity is the extension the operation concerned.
	Identity vsix.Identity
	// Path is the final extension directory (empty for uninstalls).
	Path string
}

// Options configures a single install.
type Options struct {
	// Force removes an existing directory for the same id+version first.
	Force bool
	// Pinned marks the registry entry as pinned.
	Pinned bool
	// Source overrides the install source tag (defaults to DefaultSource).
	Source string
	// Timeout bounds the whole install; zero means no timeout.
	Timeout time.Duration
	// StagingTag namespaces this install's staging directories so a retry
	// can purge leftovers without touching concurrent installs.
	StagingTag string
}

// Option configures an Installer.
type Option func(*Installer)

// WithLogger sets the logger used for non-fatal install events.
func WithLogger(logger *log.Logger) Option {
	return func(i *Installer) { i.logger = logger }
}

// Installer installs extensions into one install directory. Staging and
// extraction are parallel-safe across Installer calls; registry mutation is
// serialized by the registry Manager's lock.
type Installer struct {
	installDir string
	reg        *registry.Manager
	logger     *log.Logger
}

// New returns an Installer for the given install directory. Registry
// bookkeeping goes through reg, which must serve the same directory.
func New(installDir string, reg *registry.Manager, opts ...Option) *Installer {
	i := &Installer{
		installDir: installDir,
		reg:        reg,
		logger:     log.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// InstallDir returns the install directory this Installer serves.
func (i *Installer) InstallDir() string { return i.installDir }

// Install validates, stages, commits and registers the archive at
// archivePath. See the package comment for the state machine. The returned
// Result reports OutcomeAlreadyExists when the target directory exists and
// opts.Force is false.
func (i *Installer) Install(ctx context.Context, archivePath string, opts Options) (*Result, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	// Validating.
	manifest, err := i.validate(ctx, archivePath)
	if err != nil {
		return nil, err
	}
	identity := manifest.Identity()
	finalPath := filepath.Join(i.installDir, identity.DirName())

	if _, err := os.Stat(finalPath); err == nil {
		if !opts.Force {
			i.logger.Debug("extension already installed", "id", identity.ID(), "path", finalPath)
			return &Result{Outcome: OutcomeAlreadyExists, Identity: identity, Path: finalPath}, nil
		}
		if err := removeAllWithRetry(finalPath); err != nil {
			return nil, fmt.Errorf("removing existing %s: %w", finalPath, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("checking %s: %w", finalPath, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("install of %s aborted: %w", identity.ID(), err)
	}

	// Staging. The directory gets a unique hidden name; once extraction has
	// begun it runs to completion or failure, then cleans up.
	stagingDir := filepath.Join(i.installDir, stagingName(opts.StagingTag))
	if err := archive.Extract(archivePath, stagingDir); err != nil {
		os.RemoveAll(stagingDir)
		return nil, err
	}

	// Committing. The archive keeps its payload under "extension/"; that
	// subdirectory becomes the final extension directory via an atomic
	// rename, retried briefly on transient failures.
	stagedPayload := filepath.Join(stagingDir, "extension")
	if err := commitWithRetry(stagedPayload, finalPath); err != nil {
		os.RemoveAll(stagingDir)
		os.RemoveAll(finalPath)
		return nil, fmt.Errorf("committing %s: %w", identity.ID(), err)
	}
	if err := os.RemoveAll(stagingDir); err != nil {
		i.logger.Warn("failed to remove staging directory", "path", stagingDir, "error", err)
	}

	// Registered. A registry failure undoes the commit so the directory and
	// the registry never disagree about a fresh install.
	entry := i.buildEntry(identity, finalPath, opts)
	if err := i.reg.AddOrReplace(entry); err != nil {
		os.RemoveAll(finalPath)
		return nil, fmt.Errorf("registering %s: %w", identity.ID(), err)
	}
	if err := i.reg.EnsureObsoleteFile(); err != nil {
		i.logger.Warn("failed to ensure obsolete marker", "error", err)
	}

	i.logger.Info("extension installed", "id", identity.ID(), "version", identity.Version, "path", finalPath)
	return &Result{Outcome: OutcomeInstalled, Identity: identity, Path: finalPath}, nil
}

// Uninstall removes the installed extension with the given id. The
// directory is matched case-insensitively and confirmed by re-reading its
// manifest, so a look-alike directory name is never removed by mistake.
// The filesystem is the primary truth: a registry update failure after a
// successful removal is logged, not returned.
func (i *Installer) Uninstall(ctx context.Context, id string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("uninstall of %s aborted: %w", id, err)
	}

	dirName, identity, err := i.findInstalled(id)
	if err != nil {
		return nil, err
	}
	dirPath := filepath.Join(i.installDir, dirName)

	if err := i.reg.MarkObsolete(dirName); err != nil {
		i.logger.Warn("failed to mark directory obsolete", "dir", dirName, "error", err)
	}
	if err := removeAllWithRetry(dirPath); err != nil {
		return nil, fmt.Errorf("removing %s: %w", dirPath, err)
	}
	if _, err := i.reg.Remove(identity.ID()); err != nil {
		i.logger.Warn("failed to remove registry entry after uninstall",
			"id", identity.ID(), "error", err)
	}

	i.logger.Info("extension uninstalled", "id", identity.ID(), "version", identity.Version)
	return &Result{Outcome: OutcomeUninstalled, Identity: identity}, nil
}

// PurgeStaging removes leftover staging directories created with the given
// tag. An empty tag purges every staging directory, which is only safe when
// no install is in flight.
func (i *Installer) PurgeStaging(tag string) error {
	entries, err := os.ReadDir(i.installDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading install directory: %w", err)
	}
	prefix := StagingPrefix + tag
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		path := filepath.Join(i.installDir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			i.logger.Warn("failed to purge staging directory", "path", path, "error", err)
		}
	}
	return nil
}

// validate confirms the archive is readable, the install directory exists
// and is writable, and the manifest parses. The manifest read extracts into
// a throwaway temp directory that is removed before validate returns.
func (i *Installer) validate(ctx context.Context, archivePath string) (*vsix.Manifest, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("install aborted: %w", err)
	}

	f, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("opening archive %s: %w", archivePath, err)
	}
	f.Close()

	if err := os.MkdirAll(i.installDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating install directory %s: %w", i.installDir, err)
	}
	probe, err := os.CreateTemp(i.installDir, ".vsix-write-probe-*")
	if err != nil {
		return nil, fmt.Errorf("install directory %s is not writable: %w", i.installDir, err)
	}
	probe.Close()
	os.Remove(probe.Name())

	return archive.ReadManifest(archivePath)
}

// findInstalled locates the directory for an id case-insensitively and
// confirms the match by comparing the manifest's derived id.
func (i *Installer) findInstalled(id string) (dirName string, identity vsix.Identity, err error) {
	entries, err := os.ReadDir(i.installDir)
	if err != nil {
		return "", vsix.Identity{}, fmt.Errorf("reading install directory: %w", err)
	}

	wantPrefix := strings.ToLower(id) + "-"
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if !strings.HasPrefix(strings.ToLower(entry.Name()), wantPrefix) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(i.installDir, entry.Name(), "package.json"))
		if err != nil {
			continue
		}
		manifest, err := vsix.ParseManifest(data)
		if err != nil {
			continue
		}
		candidate := manifest.Identity()
		if strings.EqualFold(candidate.ID(), id) {
			return entry.Name(), candidate, nil
		}
	}
	return "", vsix.Identity{}, &NotInstalledError{ID: id}
}

// buildEntry assembles the registry entry for a completed install.
func (i *Installer) buildEntry(identity vsix.Identity, finalPath string, opts Options) registry.Entry {
	source := opts.Source
	if source == "" {
		source = DefaultSource
	}
	return registry.Entry{
		Identifier:       registry.Identifier{ID: identity.ID()},
		Version:          identity.Version,
		Location:         registry.Location{Path: finalPath, Scheme: registry.SchemeFile},
		RelativeLocation: identity.DirName(),
		Metadata: registry.Metadata{
			InstalledTimestamp: time.Now().UnixMilli(),
			Pinned:             opts.Pinned,
			Source:             source,
		},
	}
}

// stagingName returns a unique hidden staging directory name, optionally
// namespaced by a caller-supplied tag.
func stagingName(tag string) string {
	if tag != "" {
		return StagingPrefix + tag + "-" + uuid.New().String()
	}
	return StagingPrefix + uuid.New().String()
}

// commitWithRetry renames src to dest, retrying transient failures with
// short linear backoff. A rename that keeps failing falls back to a full
// copy so cross-device staging still commits; the copy lands at dest only
// after completing into a sibling temp path.
func commitWithRetry(src, dest string) error {
	var lastErr error
	for attempt := 0; attempt < commitRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(commitBackoff * time.Duration(attempt))
		}
		lastErr = os.Rename(src, dest)
		if lastErr == nil {
			return nil
		}
	}
	if err := copyTree(src, dest); err != nil {
		return fmt.Errorf("rename failed (%v) and copy fallback failed: %w", lastErr, err)
	}
	return nil
}

// copyTree copies src into a temp sibling of dest and renames it into
// place, preserving the no-partial-visibility invariant.
func copyTree(src, dest string) error {
	tmp := dest + ".partial"
	if err := os.RemoveAll(tmp); err != nil {
		return err
	}
	if err := copyDir(src, tmp); err != nil {
		os.RemoveAll(tmp)
		return err
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.RemoveAll(tmp)
		return err
	}
	return os.RemoveAll(src)
}

func copyDir(src, dest string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, info.Mode().Perm())
	})
}

// removeAllWithRetry removes a directory tree, retrying briefly because
// removal can race with OS-level file handles held by the host editor.
func removeAllWithRetry(path string) error {
	var lastErr error
	for attempt := 0; attempt < removeRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(removeBackoff * time.Duration(attempt))
		}
		lastErr = os.RemoveAll(path)
		if lastErr == nil {
			return nil
		}
	}
	return lastErr
}
