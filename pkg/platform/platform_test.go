// SPDX-License-Identifier: MPL-2.0

package platform

import "testing"

func TestIsWindowsReservedName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"console device lowercase", "con", true},
		{"console device uppercase", "CON", true},
		{"console device mixed case", "Con", true},
		{"printer device", "prn", true},
		{"aux device", "aux", true},
		{"null device", "nul", true},
		{"first serial port", "com1", true},
		{"last serial port", "com9", true},
		{"first parallel port", "lpt1", true},
		{"last parallel port", "lpt9", true},
		{"reserved with extension", "con.txt", true},
		{"reserved with exe extension", "NUL.exe", true},
		{"reserved source file", "aux.js", true},
		{"ordinary name", "extension", false},
		{"ordinary name with extension", "main.js", false},
		{"reserved prefix only", "confile", false},
		{"two-digit port is not reserved", "com10", false},
		{"two-digit parallel port is not reserved", "lpt10", false},
		{"empty string", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsWindowsReservedName(tt.input); got != tt.want {
				t.Errorf("IsWindowsReservedName(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestWindowsReservedNamesCatalog(t *testing.T) {
	for _, name := range []string{
		"CON", "PRN", "AUX", "NUL",
		"COM1", "COM2", "COM3", "COM4", "COM5", "COM6", "COM7", "COM8", "COM9",
		"LPT1", "LPT2", "LPT3", "LPT4", "LPT5", "LPT6", "LPT7", "LPT8", "LPT9",
	} {
		if !WindowsReservedNames[name] {
			t.Errorf("WindowsReservedNames missing %q", name)
		}
	}
	if len(WindowsReservedNames) != 22 {
		t.Errorf("WindowsReservedNames has %d entries, want 22", len(WindowsReservedNames))
	}
}
