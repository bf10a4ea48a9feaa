// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"github.com/charmbracelet/log"

	"github.com/gabros20/vsix-extension-manager-sub001/internal/config"
	"github.com/gabros20/vsix-extension-manager-sub001/internal/editor"
	"github.com/gabros20/vsix-extension-manager-sub001/pkg/installer"
	"github.com/gabros20/vsix-extension-manager-sub001/pkg/registry"
)

// target bundles the engine components wired to one install directory.
// Command handlers resolve a target once and delegate to its components.
type target struct {
	installDir   string
	editorBinary string
	reg          *registry.Manager
	inst         *installer.Installer
	logger       *log.Logger
}

// resolveTarget determines the install directory (flag > config > editor
// discovery) and constructs the registry manager and installer for it.
// Editor discovery is skipped entirely when the directory is given
// explicitly — the engine treats the path as opaque configuration.
func resolveTarget(cfg *config.Config, flagInstallDir string) (*target, error) {
	logger := newLogger()

	installDir := flagInstallDir
	if installDir == "" {
		installDir = cfg.InstallDir
	}

	var editorBinary string
	if installDir == "" {
		var ed *editor.Editor
		var err error
		if cfg.Editor != "" {
			ed, err = editor.DiscoverNamed(cfg.Editor)
		} else {
			ed, err = editor.Discover()
		}
		if err != nil {
			return nil, err
		}
		installDir = ed.ExtensionsDir
		editorBinary = ed.BinaryPath
		logger.Debug("discovered editor", "name", ed.Name, "extensionsDir", installDir)
	}

	reg := registry.NewManager(installDir, registry.WithLogger(logger))
	inst := installer.New(installDir, reg, installer.WithLogger(logger))
	return &target{
		installDir:   installDir,
		editorBinary: editorBinary,
		reg:          reg,
		inst:         inst,
		logger:       logger,
	}, nil
}
