// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/gabros20/vsix-extension-manager-sub001/internal/issue"
	"github.com/gabros20/vsix-extension-manager-sub001/pkg/preflight"
)

var (
	// doctorDirFlag overrides the discovered extensions directory
	doctorDirFlag string
	// doctorFix removes invalid extension directories instead of flagging them
	doctorFix bool
)

// doctorCmd checks and repairs the install directory
var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check and repair the extensions directory",
	Long: `Validate the extensions directory and its registry artifacts, repairing
what can be repaired: a missing or corrupted registry file or obsolete
marker is recreated, orphaned staging directories from interrupted runs are
purged, and extension directories without a valid manifest are flagged
(removed with --fix).

Only a missing extensions directory or editor binary makes the check fail.

Examples:
  vsix doctor
  vsix doctor --fix`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	doctorCmd.Flags().StringVar(&doctorDirFlag, "install-dir", "", "extensions directory (default: discovered from the editor)")
	doctorCmd.Flags().BoolVar(&doctorFix, "fix", false, "remove extension directories without a valid manifest")
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	target, err := resolveTarget(cfg, doctorDirFlag)
	if err != nil {
		renderIssue(cmd, issue.EditorNotFoundId)
		return &ExitError{Code: 1, Err: err}
	}

	service := preflight.NewService(target.reg, preflight.WithLogger(target.logger))
	report, err := service.Run(preflight.Options{
		RemoveInvalid: doctorFix,
		EditorBinary:  target.editorBinary,
	})

	for _, repair := range report.Repairs {
		cmd.Printf("%s %s\n", SuccessStyle.Render("repaired"), repair)
	}
	for _, warning := range report.Warnings {
		cmd.Printf("%s %s\n", WarningStyle.Render("warning"), warning)
	}
	for _, hardErr := range report.Errors {
		cmd.Printf("%s %s\n", ErrorStyle.Render("error"), hardErr)
	}

	if err != nil {
		switch {
		case errors.Is(err, preflight.ErrInstallDirNotFound):
			renderIssue(cmd, issue.InstallDirNotFoundId)
		case errors.Is(err, preflight.ErrBinaryNotFound):
			renderIssue(cmd, issue.EditorNotFoundId)
		}
		return &ExitError{Code: 1, Err: err}
	}

	if len(report.Warnings) == 0 && len(report.Repairs) == 0 {
		cmd.Println(SuccessStyle.Render("extensions directory is healthy"))
	} else if len(report.Warnings) > 0 && !doctorFix {
		cmd.Println(SubtitleStyle.Render("re-run with --fix to remove invalid extension directories"))
	}
	return nil
}

// renderIssue prints the cataloged remediation help for an issue id.
func renderIssue(cmd *cobra.Command, id issue.Id) {
	is, ok := issue.ForId(id)
	if !ok {
		return
	}
	rendered, err := is.Render()
	if err != nil {
		cmd.Println(string(is.MarkdownMsg()))
		return
	}
	cmd.Println(rendered)
}
