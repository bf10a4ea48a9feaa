// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/gabros20/vsix-extension-manager-sub001/internal/config"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"

	// verbose enables debug logging
	verbose bool
	// cfgFile allows specifying a custom config file
	cfgFile string

	// rootCmd represents the base command when called without any subcommands
	rootCmd = &cobra.Command{
		Use:   "vsix",
		Short: "A local installer for editor extensions",
		Long: TitleStyle.Render("vsix") + SubtitleStyle.Render(" - A local installer for editor extensions") + `

vsix installs extension archives (.vsix files) into a local editor's
extensions directory: it validates and extracts the archive safely,
commits each extension atomically, and keeps the editor's extension
registry consistent even under concurrent installs.

` + SubtitleStyle.Render("Examples:") + `
  vsix install ./my-extension.vsix     Install a single archive
  vsix install ./downloads/*.vsix      Install many archives in parallel
  vsix uninstall publisher.name        Remove an installed extension
  vsix list                            List installed extensions
  vsix doctor --fix                    Check and repair the install directory`,
	}
)

func init() {
	cobra.OnInitialize(initRootConfig)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is the platform config dir)")

	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(uninstallCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(configCmd)
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}

// initRootConfig applies the --config flag and config-file settings.
func initRootConfig() {
	if cfgFile != "" {
		config.SetConfigFilePathOverride(cfgFile)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, WarningStyle.Render("Warning: ")+err.Error())
	}
	if cfg != nil && !verbose {
		verbose = cfg.Verbose
	}
	if verbose {
		log.SetLevel(log.DebugLevel)
	}
}

// newLogger returns the logger handed to engine components.
func newLogger() *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		Prefix: "vsix",
	})
	if verbose {
		logger.SetLevel(log.DebugLevel)
	}
	return logger
}

// loadConfig loads the tool configuration for command handlers.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return cfg, nil
}
