// SPDX-License-Identifier: MPL-2.0

// Package platform centralizes runtime.GOOS string literals and small
// OS-conditional helpers so callers avoid scattered magic strings.
package platform

import "runtime"

// OS name constants for runtime.GOOS comparisons.
const (
	Windows = "windows"
	Darwin  = "darwin"
	Linux   = "linux"
)

// IsWindows reports whether the current OS is Windows.
func IsWindows() bool {
	return runtime.GOOS == Windows
}

// ExeSuffix returns the executable file suffix for the current OS
// (".exe" on Windows, empty elsewhere).
func ExeSuffix() string {
	if IsWindows() {
		return ".exe"
	}
	return ""
}
