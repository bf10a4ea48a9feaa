// SPDX-License-Identifier: MPL-2.0

// Package registry owns the on-disk index of installed extensions.
//
// The registry lives inside the install directory as two artifacts: the
// registry file ("extensions.json", a JSON array consumed by the host
// editor) and the obsolete marker (".obsolete", a JSON object naming
// extension directories pending removal). The registry file is a derived
// index — the extension directories themselves are the canonical storage —
// so a corrupted registry is reset to empty rather than treated as fatal.
//
// All read-modify-write cycles are serialized through a create-exclusive
// lock file with a bounded acquisition timeout. The registry file is always
// replaced atomically (temp file + rename), so concurrent readers never
// observe partial JSON.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/exp/slices"
)

const (
	// FileName is the registry file name inside the install directory.
	FileName = "extensions.json"

	// ObsoleteFileName is the obsolete marker file name.
	ObsoleteFileName = ".obsolete"

	// SchemeFile is the location scheme recorded for local installs.
	SchemeFile = "file"
)

// Identifier names an installed extension.
type Identifier struct {
	// ID is the canonical extension id "publisher.name".
	ID string `json:"id"`
}

// Location records where an extension is installed.
type Location struct {
	// Path is the absolute install path of the extension directory.
	Path string `json:"path"`
	// Scheme is the location scheme (always "file" for local installs).
	Scheme string `json:"scheme"`
}

// Metadata carries install bookkeeping for an entry.
type Metadata struct {
	// InstalledTimestamp is the install time in Unix milliseconds.
	InstalledTimestamp int64 `json:"installedTimestamp"`
	// Pinned marks the extension as excluded from automatic updates.
	Pinned bool `json:"pinned"`
	// Source tags how the extension was installed (e.g. "vsix-file").
	Source string `json:"source"`
}

// Entry is one installed extension in the registry file. The on-disk JSON
// shape is byte-compatible with the host editor's own extensions.json
// reader and must not change.
type Entry struct {
	Identifier       Identifier `json:"identifier"`
	Version          string     `json:"version"`
	Location         Location   `json:"location"`
	RelativeLocation string     `json:"relativeLocation"`
	Metadata         Metadata   `json:"metadata"`
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for non-fatal registry events.
func WithLogger(logger *log.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithLockTiming overrides the lock poll interval and attempt bound.
// Intended for tests; the defaults give roughly a three second window.
func WithLockTiming(poll time.Duration, attempts int) Option {
	return func(m *Manager) {
		m.lockPoll = poll
		m.lockAttempts = attempts
	}
}

// Manager serializes access to one install directory's registry artifacts.
// All mutating access to the registry file must go through a Manager; two
// Managers pointed at the same directory coordinate through the lock file,
// so the serialization holds across processes as well.
type Manager struct {
	dir          string
	registryPath string
	obsoletePath string
	lockPath     string
	lockPoll     time.Duration
	lockAttempts int
	logger       *log.Logger
}

// NewManager returns a Manager for the given install directory.
func NewManager(installDir string, opts ...Option) *Manager {
	m := &Manager{
		dir:          installDir,
		registryPath: filepath.Join(installDir, FileName),
		obsoletePath: filepath.Join(installDir, ObsoleteFileName),
		lockPath:     filepath.Join(installDir, lockFileName),
		lockPoll:     defaultLockPoll,
		lockAttempts: defaultLockAttempts,
		logger:       log.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Dir returns the install directory this Manager serves.
func (m *Manager) Dir() string { return m.dir }

// RegistryPath returns the absolute path of the registry file.
func (m *Manager) RegistryPath() string { return m.registryPath }

// ObsoletePath returns the absolute path of the obsolete marker file.
func (m *Manager) ObsoletePath() string { return m.obsoletePath }

// WithLock runs fn while holding the registry lock. The lock is released on
// every path out of fn, including panic. Acquisition failures surface as
// LockTimeoutError.
func (m *Manager) WithLock(fn func() error) error {
	release, err := m.acquireLock()
	if err != nil {
		return err
	}
	defer release()
	return fn()
}

// Read returns the registry entries. A missing registry file yields an
// empty slice. An unparsable file is treated as corrupted and read as empty
// (logged, not fatal) — the registry is a derived index, so availability
// wins over lossless recovery here.
func (m *Manager) Read() ([]Entry, error) {
	data, err := os.ReadFile(m.registryPath)
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("reading registry %s: %w", m.registryPath, err)
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		m.logger.Warn("registry file is corrupted, treating as empty",
			"path", m.registryPath, "error", err)
		return []Entry{}, nil
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

// Write atomically replaces the registry file with the given entries. The
// JSON is first written to a fresh temporary file in the same directory,
// then renamed over the real file, so a partial write can never appear at
// the final path.
func (m *Manager) Write(entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encoding registry: %w", err)
	}

	tmp, err := os.CreateTemp(m.dir, ".extensions-*.json.tmp")
	if err != nil {
		return fmt.Errorf("creating registry temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing registry temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing registry temp file: %w", err)
	}
	if err := os.Rename(tmpPath, m.registryPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replacing registry %s: %w", m.registryPath, err)
	}
	return nil
}

// AddOrReplace inserts the entry, replacing any existing entry with the
// same id (case-insensitive). The read-modify-write cycle runs inside the
// registry lock.
func (m *Manager) AddOrReplace(entry Entry) error {
	return m.WithLock(func() error {
		entries, err := m.Read()
		if err != nil {
			return err
		}
		idx := slices.IndexFunc(entries, func(e Entry) bool {
			return strings.EqualFold(e.Identifier.ID, entry.Identifier.ID)
		})
		if idx >= 0 {
			entries[idx] = entry
		} else {
			entries = append(entries, entry)
		}
		return m.Write(entries)
	})
}

// Remove deletes the entry with the given id (case-insensitive). It reports
// whether an entry was removed. The read-modify-write cycle runs inside the
// registry lock.
func (m *Manager) Remove(id string) (bool, error) {
	removed := false
	err := m.WithLock(func() error {
		entries, err := m.Read()
		if err != nil {
			return err
		}
		kept := slices.DeleteFunc(entries, func(e Entry) bool {
			return strings.EqualFold(e.Identifier.ID, id)
		})
		removed = len(kept) != len(entries)
		if !removed {
			return nil
		}
		return m.Write(kept)
	})
	return removed, err
}

// Find returns the entry for id (case-insensitive), or false when absent.
func (m *Manager) Find(id string) (Entry, bool, error) {
	entries, err := m.Read()
	if err != nil {
		return Entry{}, false, err
	}
	idx := slices.IndexFunc(entries, func(e Entry) bool {
		return strings.EqualFold(e.Identifier.ID, id)
	})
	if idx < 0 {
		return Entry{}, false, nil
	}
	return entries[idx], true, nil
}

// EnsureObsoleteFile creates the obsolete marker as an empty JSON object if
// it does not exist. The marker is consumed by the host editor to reconcile
// pending removals; it is maintained best-effort only.
func (m *Manager) EnsureObsoleteFile() error {
	if _, err := os.Stat(m.obsoletePath); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("checking obsolete marker %s: %w", m.obsoletePath, err)
	}
	if err := os.WriteFile(m.obsoletePath, []byte("{}"), 0o644); err != nil {
		return fmt.Errorf("creating obsolete marker %s: %w", m.obsoletePath, err)
	}
	return nil
}

// ReadObsolete returns the set of directory names pending removal. Missing
// or corrupted marker files read as empty.
func (m *Manager) ReadObsolete() (map[string]bool, error) {
	data, err := os.ReadFile(m.obsoletePath)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]bool{}, nil
		}
		return nil, fmt.Errorf("reading obsolete marker %s: %w", m.obsoletePath, err)
	}
	obsolete := map[string]bool{}
	if err := json.Unmarshal(data, &obsolete); err != nil {
		m.logger.Warn("obsolete marker is corrupted, treating as empty",
			"path", m.obsoletePath, "error", err)
		return map[string]bool{}, nil
	}
	return obsolete, nil
}

// MarkObsolete records dirName as pending removal in the marker file. The
// marker is best effort; it never has to be consistent with the registry.
func (m *Manager) MarkObsolete(dirName string) error {
	return m.WithLock(func() error {
		obsolete, err := m.ReadObsolete()
		if err != nil {
			return err
		}
		obsolete[dirName] = true
		data, err := json.Marshal(obsolete)
		if err != nil {
			return fmt.Errorf("encoding obsolete marker: %w", err)
		}
		if err := os.WriteFile(m.obsoletePath, data, 0o644); err != nil {
			return fmt.Errorf("writing obsolete marker %s: %w", m.obsoletePath, err)
		}
		return nil
	})
}
