// SPDX-License-Identifier: MPL-2.0

package registry

import (
	"errors"
	"fmt"
	"os"
	"time"
)

const (
	// lockFileName is the well-known lock file guarding the registry. The
	// file is created with create-exclusive semantics; whoever creates it
	// owns the lock until the file is removed.
	lockFileName = ".vsix-registry.lock"

	// defaultLockPoll is the interval between lock acquisition attempts.
	defaultLockPoll = 100 * time.Millisecond

	// defaultLockAttempts bounds acquisition retries (~3s total at the
	// default poll interval) before LockTimeoutError is returned.
	defaultLockAttempts = 30
)

// ErrLockTimeout is the sentinel error wrapped by LockTimeoutError.
var ErrLockTimeout = errors.New("registry lock timeout")

// LockTimeoutError is returned when the registry lock cannot be acquired
// within the bounded retry window. It wraps ErrLockTimeout for errors.Is()
// compatibility.
type LockTimeoutError struct {
	// Path is the lock file path.
	Path string
	// Wait is the total time spent polling before giving up.
	Wait time.Duration
}

// Error implements the error interface for LockTimeoutError.
func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("registry lock timeout: could not acquire %s within %s", e.Path, e.Wait)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *LockTimeoutError) Unwrap() error {
	return ErrLockTimeout
}

// acquireLock polls for exclusive creation of the lock file. It returns a
// release function that removes the lock file; releasing more than once is
// harmless.
func (m *Manager) acquireLock() (release func(), err error) {
	for attempt := 0; attempt < m.lockAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(m.lockPoll)
		}
		f, err := os.OpenFile(m.lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err != nil {
			if os.IsExist(err) {
				continue
			}
			return nil, fmt.Errorf("creating lock file %s: %w", m.lockPath, err)
		}
		// The pid is informational only, for identifying stale locks by hand.
		fmt.Fprintf(f, "%d\n", os.Getpid())
		f.Close()
		return func() {
			if err := os.Remove(m.lockPath); err != nil && !os.IsNotExist(err) {
				m.logger.Warn("failed to release registry lock", "path", m.lockPath, "error", err)
			}
		}, nil
	}
	return nil, &LockTimeoutError{
		Path: m.lockPath,
		Wait: time.Duration(m.lockAttempts) * m.lockPoll,
	}
}
