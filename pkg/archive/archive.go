// SPDX-License-Identifier: MPL-2.0

// Package archive validates and extracts VSIX archives.
//
// A VSIX archive is a zip container holding the extension manifest at
// "extension/package.json" plus the installable payload. Extraction is
// security-sensitive: a malicious archive can carry entry names that escape
// the destination directory (zip-slip). Every entry name is therefore
// checked before a single byte is written, and any violation aborts the
// whole extraction.
package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gabros20/vsix-extension-manager-sub001/pkg/platform"
	"github.com/gabros20/vsix-extension-manager-sub001/pkg/vsix"
)

// ManifestPath is the archive-internal path of the extension manifest.
const ManifestPath = "extension/package.json"

// driveLetterRegex matches Windows drive-letter prefixes ("C:", "d:").
var driveLetterRegex = regexp.MustCompile(`^[a-zA-Z]:`)

// ErrSecurity is the sentinel error wrapped by SecurityError.
var ErrSecurity = errors.New("archive security violation")

// ErrFormat is the sentinel error wrapped by FormatError.
var ErrFormat = errors.New("malformed archive")

// SecurityError is returned when an archive entry attempts to escape the
// extraction directory. It is always fatal to that archive and is never
// retried. It wraps ErrSecurity for errors.Is() compatibility.
type SecurityError struct {
	// Entry is the offending archive entry name.
	Entry string
	// Reason describes the specific violation.
	Reason string
}

// Error implements the error interface for SecurityError.
func (e *SecurityError) Error() string {
	return fmt.Sprintf("archive security violation: entry %q %s", e.Entry, e.Reason)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *SecurityError) Unwrap() error {
	return ErrSecurity
}

// FormatError is returned when an archive is not a readable zip container
// or its manifest is missing or malformed. It wraps ErrFormat for
// errors.Is() compatibility.
type FormatError struct {
	// Path is the archive (or manifest) path concerned.
	Path string
	// Reason describes the specific problem.
	Reason string
	// Err is the underlying cause (optional).
	Err error
}

// Error implements the error interface for FormatError.
func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed archive %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed archive %s: %s", e.Path, e.Reason)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *FormatError) Unwrap() error {
	if e.Err != nil {
		return errors.Join(ErrFormat, e.Err)
	}
	return ErrFormat
}

// Extract validates and extracts the archive at archivePath into destDir.
//
// Every entry name is validated before anything is written, so a rejected
// archive leaves no partial writes in destDir. After extraction the manifest
// must exist at ManifestPath and parse cleanly; a violation is a FormatError.
// destDir is created if missing.
func Extract(archivePath, destDir string) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return &FormatError{Path: archivePath, Reason: "cannot open as zip", Err: err}
	}
	defer reader.Close()

	absDest, err := filepath.Abs(destDir)
	if err != nil {
		return fmt.Errorf("resolving destination directory: %w", err)
	}

	// Validate the full entry list up front. No bytes hit the disk until
	// every name has passed.
	for _, file := range reader.File {
		if err := checkEntryName(file.Name, absDest); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(absDest, 0o755); err != nil {
		return fmt.Errorf("creating destination directory: %w", err)
	}

	for _, file := range reader.File {
		destPath := filepath.Join(absDest, filepath.FromSlash(file.Name))

		if file.FileInfo().IsDir() {
			if err := os.MkdirAll(destPath, 0o755); err != nil {
				return fmt.Errorf("creating directory %s: %w", file.Name, err)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
			return fmt.Errorf("creating parent directory for %s: %w", file.Name, err)
		}
		if err := extractFile(file, destPath); err != nil {
			return fmt.Errorf("extracting %s: %w", file.Name, err)
		}
	}

	manifestPath := filepath.Join(absDest, filepath.FromSlash(ManifestPath))
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return &FormatError{Path: archivePath, Reason: "manifest missing at " + ManifestPath, Err: err}
	}
	if _, err := vsix.ParseManifest(data); err != nil {
		return &FormatError{Path: archivePath, Reason: "manifest invalid", Err: err}
	}
	return nil
}

// ReadManifest extracts the archive into a throwaway temporary directory
// solely to read and validate its manifest. The temporary directory is
// always removed, success or failure.
func ReadManifest(archivePath string) (*vsix.Manifest, error) {
	tmpDir, err := os.MkdirTemp("", "vsix-manifest-*")
	if err != nil {
		return nil, fmt.Errorf("creating temporary directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	if err := Extract(archivePath, tmpDir); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(tmpDir, filepath.FromSlash(ManifestPath)))
	if err != nil {
		return nil, &FormatError{Path: archivePath, Reason: "manifest unreadable", Err: err}
	}
	manifest, err := vsix.ParseManifest(data)
	if err != nil {
		return nil, &FormatError{Path: archivePath, Reason: "manifest invalid", Err: err}
	}
	return manifest, nil
}

// checkEntryName rejects entry names that could escape absDest. The raw zip
// name is checked first (absolute paths, drive letters, dot-dot segments,
// URL-encoded traversal variants), then the normalized destination path is
// confirmed to stay within the boundary.
func checkEntryName(name string, absDest string) error {
	if name == "" {
		return &SecurityError{Entry: name, Reason: "has an empty name"}
	}
	if strings.HasPrefix(name, "/") || strings.HasPrefix(name, "\\") {
		return &SecurityError{Entry: name, Reason: "is an absolute path"}
	}
	if driveLetterRegex.MatchString(name) {
		return &SecurityError{Entry: name, Reason: "has a drive-letter prefix"}
	}

	// URL-encoded traversal variants (%2e%2e, ..%2f, ..%5c) sneak past
	// naive segment checks, so reject them on the raw name.
	lower := strings.ToLower(name)
	for _, pattern := range []string{"%2e%2e", "..%2f", "..%5c"} {
		if strings.Contains(lower, pattern) {
			return &SecurityError{Entry: name, Reason: "contains an encoded traversal sequence"}
		}
	}

	// Zip names use forward slashes, but hostile archives may smuggle
	// backslash separators; split on both.
	for _, segment := range strings.FieldsFunc(name, func(r rune) bool {
		return r == '/' || r == '\\'
	}) {
		if segment == ".." {
			return &SecurityError{Entry: name, Reason: "contains a '..' path segment"}
		}
		// On Windows these names address devices, not files. Rejected on
		// every OS so an archive is judged identically everywhere.
		if platform.IsWindowsReservedName(segment) {
			return &SecurityError{Entry: name, Reason: "contains a reserved device name"}
		}
	}

	// Normalize and confirm the resolved path stays inside the boundary.
	destPath := filepath.Join(absDest, filepath.FromSlash(name))
	rel, err := filepath.Rel(absDest, destPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return &SecurityError{Entry: name, Reason: "resolves outside the destination directory"}
	}
	return nil
}

// extractFile extracts a single file entry from the archive to destPath.
func extractFile(file *zip.File, destPath string) error {
	rc, err := file.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	mode := file.Mode().Perm()
	if mode == 0 {
		mode = 0o644
	}
	dest, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}

	if _, err := io.Copy(dest, rc); err != nil {
		dest.Close()
		return err
	}
	return dest.Close()
}
