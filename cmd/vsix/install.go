// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/gabros20/vsix-extension-manager-sub001/internal/config"
	"github.com/gabros20/vsix-extension-manager-sub001/internal/editor"
	"github.com/gabros20/vsix-extension-manager-sub001/pkg/bulk"
	"github.com/gabros20/vsix-extension-manager-sub001/pkg/preflight"
)

var (
	// installDir overrides the discovered extensions directory
	installDirFlag string
	// installForce reinstalls over an existing directory
	installForce bool
	// installPinned marks installed extensions as pinned
	installPinned bool
	// installParallel bounds concurrent tasks
	installParallel int
	// installRetries bounds per-task retries
	installRetries int
	// installRetryDelay is the base retry backoff
	installRetryDelay time.Duration
	// installBatchSize bounds tasks per batch
	installBatchSize int
	// installSkipInstalled skips archives already registered at the same version
	installSkipInstalled bool
	// installTimeout bounds each single install
	installTimeout time.Duration
	// installViaEditor delegates installs to the editor's own CLI
	installViaEditor bool
)

// installCmd installs one or more extension archives
var installCmd = &cobra.Command{
	Use:   "install <archive.vsix> [archive.vsix...]",
	Short: "Install extension archives",
	Long: `Install one or more extension archives into the editor's extensions
directory.

Each archive is validated and extracted into an isolated staging directory,
then committed atomically: the final extension directory appears only after
the payload is complete and its manifest has been validated. The editor's
extension registry (extensions.json) is updated under an exclusive lock, so
parallel installs stay consistent.

A preflight pass repairs the registry and purges leftovers from interrupted
runs before any archive is touched.

Examples:
  vsix install ./ms-python.python-2024.2.0.vsix
  vsix install ./downloads/*.vsix --parallel 4
  vsix install ./ext.vsix --force --install-dir ~/.vscode/extensions`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInstall,
}

func init() {
	installCmd.Flags().StringVar(&installDirFlag, "install-dir", "", "extensions directory (default: discovered from the editor)")
	installCmd.Flags().BoolVarP(&installForce, "force", "f", false, "reinstall even if the same version is already present")
	installCmd.Flags().BoolVar(&installPinned, "pinned", false, "mark installed extensions as pinned")
	installCmd.Flags().IntVar(&installParallel, "parallel", 0, "max concurrent installs (default from config)")
	installCmd.Flags().IntVar(&installRetries, "retries", 0, "max retries per archive (default from config)")
	installCmd.Flags().DurationVar(&installRetryDelay, "retry-delay", 0, "base retry backoff (default from config)")
	installCmd.Flags().IntVar(&installBatchSize, "batch-size", 0, "archives per batch (default from config)")
	installCmd.Flags().BoolVar(&installSkipInstalled, "skip-installed", false, "skip archives already installed at the same version")
	installCmd.Flags().DurationVar(&installTimeout, "timeout", 0, "per-archive timeout (0 = none)")
	installCmd.Flags().BoolVar(&installViaEditor, "editor-cli", false, "delegate installs to the editor's own CLI instead of the engine")
}

func runInstall(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if installViaEditor {
		return runInstallViaEditor(cmd, cfg, args)
	}
	target, err := resolveTarget(cfg, installDirFlag)
	if err != nil {
		return err
	}

	// Preflight once before the batch; repairs are logged, hard failures
	// abort. A missing install directory is fine here — the installer
	// creates it — so only run preflight when the directory exists.
	service := preflight.NewService(target.reg, preflight.WithLogger(target.logger))
	if report, err := service.Run(preflight.Options{}); err == nil {
		for _, repair := range report.Repairs {
			target.logger.Info("preflight repair", "action", repair)
		}
		for _, warning := range report.Warnings {
			target.logger.Warn("preflight warning", "finding", warning)
		}
	}

	tasks := make([]bulk.Task, 0, len(args))
	for _, arg := range args {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return fmt.Errorf("resolving archive path %s: %w", arg, err)
		}
		tasks = append(tasks, bulk.Task{ArchivePath: abs})
	}

	opts := bulk.Options{
		Parallelism:     firstPositive(installParallel, cfg.Parallelism),
		MaxRetries:      firstPositive(installRetries, cfg.MaxRetries),
		RetryDelay:      firstPositiveDuration(installRetryDelay, cfg.RetryDelay()),
		BatchSize:       firstPositive(installBatchSize, cfg.BatchSize),
		SkipIfInstalled: installSkipInstalled || cfg.SkipInstalled,
		Force:           installForce,
		Pinned:          installPinned,
		TaskTimeout:     installTimeout,
		OnProgress: func(done, total int, result bulk.TaskResult) {
			name := filepath.Base(result.Task.ArchivePath)
			switch {
			case result.Skipped:
				cmd.Printf("[%d/%d] %s %s\n", done, total,
					SubtitleStyle.Render("skipped"), IDStyle.Render(name))
			case result.Success:
				cmd.Printf("[%d/%d] %s %s\n", done, total,
					SuccessStyle.Render("installed"), IDStyle.Render(name))
			default:
				cmd.Printf("[%d/%d] %s %s: %v\n", done, total,
					ErrorStyle.Render("failed"), IDStyle.Render(name), result.Err)
			}
		},
	}

	orchestrator := bulk.NewOrchestrator(target.inst, target.reg, bulk.WithLogger(target.logger))
	summary, err := orchestrator.InstallMany(cmd.Context(), tasks, opts)
	if err != nil {
		return err
	}

	cmd.Printf("\n%s %d installed, %d skipped, %d failed (%.1fs, %d retries)\n",
		TitleStyle.Render("Done:"),
		summary.Successful, summary.Skipped, summary.Failed,
		summary.Elapsed.Seconds(), summary.Retries)

	if summary.Failed > 0 {
		return &ExitError{Code: 1, Err: fmt.Errorf("%d of %d installs failed", summary.Failed, summary.Total)}
	}
	return nil
}

// runInstallViaEditor hands each archive to the editor's own CLI and
// classifies its output. The editor manages the extensions directory itself,
// so the engine (staging, registry, preflight) stays out of the way.
func runInstallViaEditor(cmd *cobra.Command, cfg *config.Config, args []string) error {
	var ed *editor.Editor
	var err error
	if cfg.Editor != "" {
		ed, err = editor.DiscoverNamed(cfg.Editor)
	} else {
		ed, err = editor.Discover()
	}
	if err != nil {
		return err
	}

	failed := 0
	for i, arg := range args {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return fmt.Errorf("resolving archive path %s: %w", arg, err)
		}
		name := filepath.Base(abs)
		outcome, err := ed.InstallWithCLI(cmd.Context(), abs)
		switch {
		case err != nil:
			cmd.Printf("[%d/%d] %s %s: %v\n", i+1, len(args),
				ErrorStyle.Render("failed"), IDStyle.Render(name), err)
			failed++
		case outcome == editor.CLIAlreadyInstalled:
			cmd.Printf("[%d/%d] %s %s\n", i+1, len(args),
				SubtitleStyle.Render("skipped"), IDStyle.Render(name))
		case outcome == editor.CLIIncompatible:
			cmd.Printf("[%d/%d] %s %s: not compatible with %s\n", i+1, len(args),
				ErrorStyle.Render("failed"), IDStyle.Render(name), ed.Name)
			failed++
		default:
			cmd.Printf("[%d/%d] %s %s\n", i+1, len(args),
				SuccessStyle.Render("installed"), IDStyle.Render(name))
		}
	}

	if failed > 0 {
		return &ExitError{Code: 1, Err: fmt.Errorf("%d of %d installs failed", failed, len(args))}
	}
	return nil
}

// firstPositive returns the first value greater than zero.
func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

// firstPositiveDuration returns the first duration greater than zero.
func firstPositiveDuration(values ...time.Duration) time.Duration {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
