// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/gabros20/vsix-extension-manager-sub001/internal/config"
)

// configCmd groups configuration management subcommands
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage vsix configuration",
	Long: `Inspect and bootstrap the vsix configuration file.

Configuration is read from a TOML file in the platform config directory
and can be overridden per key with VSIX_-prefixed environment variables.

Examples:
  vsix config show
  vsix config init`,
}

// configShowCmd prints the resolved configuration
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the resolved configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		data, err := toml.Marshal(cfg)
		if err != nil {
			return err
		}
		path, err := config.DefaultConfigFilePath()
		if err == nil {
			cmd.Println(SubtitleStyle.Render("# config file: " + path))
		}
		cmd.Print(string(data))
		return nil
	},
}

// configInitCmd writes the default configuration file
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a config file with the default settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		path, err := config.DefaultConfigFilePath()
		if err != nil {
			return err
		}
		if err := config.WriteDefault(path); err != nil {
			return err
		}
		cmd.Printf("%s %s\n", SuccessStyle.Render("created"), path)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}
