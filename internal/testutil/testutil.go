// SPDX-License-Identifier: MPL-2.0

// Package testutil provides helper functions for tests that handle errors
// appropriately, reducing boilerplate and ensuring consistent error handling.
package testutil

import (
	"archive/zip"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// MustMkdirAll creates a directory along with any necessary parents.
// The test fails immediately if the operation fails.
func MustMkdirAll(t testing.TB, path string, perm os.FileMode) {
	t.Helper()
	if err := os.MkdirAll(path, perm); err != nil {
		t.Fatalf("failed to create directory %s: %v", path, err)
	}
}

// MustWriteFile writes data to path, creating the file if necessary.
// The test fails immediately if the operation fails.
func MustWriteFile(t testing.TB, path string, data []byte, perm os.FileMode) {
	t.Helper()
	if err := os.WriteFile(path, data, perm); err != nil {
		t.Fatalf("failed to write file %s: %v", path, err)
	}
}

// MustReadFile reads the file at path.
// The test fails immediately if the operation fails.
func MustReadFile(t testing.TB, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read file %s: %v", path, err)
	}
	return data
}

// MustRemoveAll removes path and any children it contains.
// Unlike other Must* functions, this logs errors but doesn't fail the test,
// as cleanup failures are typically non-fatal.
func MustRemoveAll(t testing.TB, path string) {
	t.Helper()
	if err := os.RemoveAll(path); err != nil {
		t.Logf("warning: failed to remove %s: %v", path, err)
	}
}

// BuildVSIX creates a zip archive at path whose entries are given as a map
// of archive-internal name to file content. Entry names use forward slashes.
// The test fails immediately if archive creation fails.
func BuildVSIX(t testing.TB, path string, entries map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create archive %s: %v", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			t.Errorf("failed to close archive %s: %v", path, cerr)
		}
	}()

	w := zip.NewWriter(f)
	for name, content := range entries {
		entry, err := w.Create(name)
		if err != nil {
			t.Fatalf("failed to create archive entry %s: %v", name, err)
		}
		if _, err := entry.Write([]byte(content)); err != nil {
			t.Fatalf("failed to write archive entry %s: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("failed to finalize archive %s: %v", path, err)
	}
}

// ManifestJSON renders a minimal extension manifest with the given identity.
func ManifestJSON(publisher, name, version string) string {
	if version == "" {
		return fmt.Sprintf(`{"name": %q, "publisher": %q}`, name, publisher)
	}
	return fmt.Sprintf(`{"name": %q, "publisher": %q, "version": %q}`, name, publisher, version)
}

// BuildExtensionVSIX creates a well-formed extension archive at
// dir/<fileName> containing a manifest for the given identity plus a small
// payload file. It returns the archive path.
func BuildExtensionVSIX(t testing.TB, dir, fileName, publisher, name, version string) string {
	t.Helper()
	path := filepath.Join(dir, fileName)
	BuildVSIX(t, path, map[string]string{
		"extension/package.json": ManifestJSON(publisher, name, version),
		"extension/main.js":      "exports.activate = function () {};",
		"extension.vsixmanifest": `<?xml version="1.0" encoding="utf-8"?><PackageManifest/>`,
	})
	return path
}
