// SPDX-License-Identifier: MPL-2.0

// vsix is a local installer for editor extensions distributed as signed
// archive bundles.
package main

import cmd "github.com/gabros20/vsix-extension-manager-sub001/cmd/vsix"

func main() {
	cmd.Execute()
}
