// SPDX-License-Identifier: MPL-2.0

package platform

import "strings"

// WindowsReservedNames are the device filenames Windows reserves regardless
// of extension. Creating them as regular files writes to the device instead
// (CON is the console, COM1 a serial port), so extracted payloads must never
// contain them.
var WindowsReservedNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true,
	"COM5": true, "COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true,
	"LPT5": true, "LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// IsWindowsReservedName reports whether name is a Windows reserved device
// name. The reservation ignores case and any extension, so "aux.js" is as
// reserved as "AUX".
func IsWindowsReservedName(name string) bool {
	upper := strings.ToUpper(name)
	if idx := strings.LastIndex(upper, "."); idx != -1 {
		upper = upper[:idx]
	}
	return WindowsReservedNames[upper]
}
