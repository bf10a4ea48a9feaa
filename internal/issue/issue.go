// SPDX-License-Identifier: MPL-2.0

// Package issue catalogs the user-facing diagnostics the doctor command can
// raise, with markdown help rendered through glamour.
package issue

import (
	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Id identifies an issue in the catalog.
type Id int

const (
	EditorNotFoundId Id = iota + 1
	InstallDirNotFoundId
	RegistryCorruptedId
	InvalidExtensionDirId
	OrphanedStagingId
	LockContentionId
)

// MarkdownMsg is the markdown body rendered for an issue.
type MarkdownMsg string

// HttpLink is a documentation or reference URL attached to an issue.
type HttpLink string

// Issue is one diagnosable condition with remediation guidance.
type Issue struct {
	id       Id
	mdMsg    MarkdownMsg
	docLinks []HttpLink
	extLinks []HttpLink
}

// Id returns the issue's catalog id.
func (i *Issue) Id() Id {
	return i.id
}

// MarkdownMsg returns the raw markdown body.
func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

// DocLinks returns the issue's documentation links.
func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

// ExtLinks returns the issue's external reference links.
func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

// Render renders the issue's markdown (plus its links) for terminal output.
func (i *Issue) Render() (string, error) {
	md := string(i.mdMsg)
	if len(i.docLinks) > 0 || len(i.extLinks) > 0 {
		md += "\n\n## See also\n"
		for _, link := range i.docLinks {
			md += "- " + string(link) + "\n"
		}
		for _, link := range i.extLinks {
			md += "- " + string(link) + "\n"
		}
	}
	return render(md)
}

// render is swappable in tests to avoid terminal-dependent output.
var render = func(md string) (string, error) {
	return glamour.Render(md, "dark")
}

var catalog = map[Id]*Issue{
	EditorNotFoundId: {
		id: EditorNotFoundId,
		mdMsg: `
# No supported editor found

No editor CLI binary (code, code-insiders, codium, cursor, windsurf) was
found on your PATH.

## Things you can try
- Install the editor, or open it and run the "Install 'code' command in PATH" action
- Pass the extensions directory explicitly with ` + "`--install-dir`" + `
- Set the editor name in your config file (` + "`vsix config show`" + `)`,
		docLinks: []HttpLink{"https://code.visualstudio.com/docs/editor/command-line"},
	},
	InstallDirNotFoundId: {
		id: InstallDirNotFoundId,
		mdMsg: `
# Install directory not found

The target extensions directory does not exist. It is created on the first
install, so this usually means the editor has never run on this machine or
the configured path is wrong.

## Things you can try
- Start the editor once so it creates its extensions directory
- Check the ` + "`install_dir`" + ` value in your config file`,
	},
	RegistryCorruptedId: {
		id: RegistryCorruptedId,
		mdMsg: `
# Extension registry is corrupted

The extensions.json registry file could not be parsed. The registry is a
derived index, so it was reset to an empty list; the editor will rebuild it
from the extension directories on its next scan.

## Things you can try
- Run ` + "`vsix doctor --fix`" + ` to rewrite the registry
- Restart the editor so it reconciles installed extensions`,
	},
	InvalidExtensionDirId: {
		id: InvalidExtensionDirId,
		mdMsg: `
# Extension directory without a valid manifest

An extension directory has no parseable package.json. Such directories can
block later installs through directory-name collisions.

## Things you can try
- Run ` + "`vsix doctor --fix`" + ` to remove invalid directories
- Reinstall the affected extension`,
	},
	OrphanedStagingId: {
		id: OrphanedStagingId,
		mdMsg: `
# Orphaned staging directories

Hidden staging directories from an interrupted install were found. They are
safe to delete; a fresh install never reuses them.

## Things you can try
- Run ` + "`vsix doctor --fix`" + ` to purge them`,
	},
	LockContentionId: {
		id: LockContentionId,
		mdMsg: `
# Registry lock contention

Another process held the registry lock for the whole acquisition window.
If no other install is running, a crashed process may have left the lock
file behind.

## Things you can try
- Wait for concurrent installs to finish and retry
- Remove the stale ` + "`.vsix-registry.lock`" + ` file from the extensions directory`,
	},
}

// ForId returns the cataloged issue for id.
func ForId(id Id) (*Issue, bool) {
	issue, ok := catalog[id]
	return issue, ok
}

// Ids returns all cataloged issue ids in ascending order.
func Ids() []Id {
	ids := maps.Keys(catalog)
	slices.Sort(ids)
	return ids
}
