// SPDX-License-Identifier: MPL-2.0

// Package cmd contains all CLI commands for vsix.
//
// This package implements the Cobra command hierarchy for the vsix CLI:
// the root command plus subcommands for installing, uninstalling and
// listing extensions, running the doctor, and managing configuration.
package cmd
