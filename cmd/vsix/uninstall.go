// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gabros20/vsix-extension-manager-sub001/pkg/installer"
	"github.com/gabros20/vsix-extension-manager-sub001/pkg/vsix"
)

// uninstallDirFlag overrides the discovered extensions directory
var uninstallDirFlag string

// uninstallCmd removes installed extensions by id
var uninstallCmd = &cobra.Command{
	Use:   "uninstall <publisher.name> [publisher.name...]",
	Short: "Uninstall extensions",
	Long: `Uninstall one or more extensions by their canonical id.

The extension directory is matched case-insensitively and confirmed against
its manifest before removal, then the registry entry is removed. The
filesystem is the primary truth: the command succeeds once the directory is
gone, even if the registry update has to be deferred to the next doctor run.

Examples:
  vsix uninstall ms-python.python
  vsix uninstall publisher.one publisher.two`,
	Args: cobra.MinimumNArgs(1),
	RunE: runUninstall,
}

func init() {
	uninstallCmd.Flags().StringVar(&uninstallDirFlag, "install-dir", "", "extensions directory (default: discovered from the editor)")
}

func runUninstall(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	target, err := resolveTarget(cfg, uninstallDirFlag)
	if err != nil {
		return err
	}

	failed := 0
	for _, id := range args {
		if !vsix.ValidID(id) {
			cmd.Printf("%s %s: not a valid extension id\n", ErrorStyle.Render("invalid"), id)
			failed++
			continue
		}
		result, err := target.inst.Uninstall(cmd.Context(), id)
		switch {
		case errors.Is(err, installer.ErrNotInstalled):
			cmd.Printf("%s %s\n", SubtitleStyle.Render("not installed"), IDStyle.Render(id))
		case err != nil:
			cmd.Printf("%s %s: %v\n", ErrorStyle.Render("failed"), IDStyle.Render(id), err)
			failed++
		default:
			cmd.Printf("%s %s\n", SuccessStyle.Render("uninstalled"), IDStyle.Render(result.Identity.String()))
		}
	}

	if failed > 0 {
		return &ExitError{Code: 1, Err: fmt.Errorf("%d of %d uninstalls failed", failed, len(args))}
	}
	return nil
}
