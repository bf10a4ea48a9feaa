// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/exp/slices"

	"github.com/gabros20/vsix-extension-manager-sub001/pkg/registry"
)

// listDirFlag overrides the discovered extensions directory
var listDirFlag string

// listCmd lists installed extensions from the registry
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed extensions",
	Long: `List the extensions recorded in the editor's extension registry,
sorted by id.

Examples:
  vsix list
  vsix list --install-dir ~/.vscode/extensions`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVar(&listDirFlag, "install-dir", "", "extensions directory (default: discovered from the editor)")
}

func runList(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	target, err := resolveTarget(cfg, listDirFlag)
	if err != nil {
		return err
	}

	entries, err := target.reg.Read()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		cmd.Println(SubtitleStyle.Render("no extensions installed"))
		return nil
	}

	slices.SortFunc(entries, func(a, b registry.Entry) int {
		return strings.Compare(a.Identifier.ID, b.Identifier.ID)
	})

	for _, entry := range entries {
		installed := time.UnixMilli(entry.Metadata.InstalledTimestamp).Format("2006-01-02")
		pinned := ""
		if entry.Metadata.Pinned {
			pinned = WarningStyle.Render(" (pinned)")
		}
		cmd.Printf("%s %s %s%s\n",
			IDStyle.Render(entry.Identifier.ID),
			entry.Version,
			SubtitleStyle.Render(installed),
			pinned)
	}
	cmd.Printf("\n%d extension(s) in %s\n", len(entries), target.installDir)
	return nil
}
