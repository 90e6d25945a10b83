// Package cmd provides the command-line interface for the provisio tool.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "provisio",
	Short: "Provisio scaffolds enterprise projects across Azure platforms",
	Long: `Provisio automates the creation of enterprise project scaffolding from a
declarative template: work-item hierarchies (epics, features, user stories
and their sub-tasks) on a work-tracking platform, Power Platform
environments and solutions, and the Azure AD app registration the project
will run under.

The three provisioning phases are independent: a failure in one is reported
as a warning while the others keep going, so a partially successful run
still leaves you with everything that could be created.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Add persistent flags that will be available to all commands
	rootCmd.PersistentFlags().StringP("template", "t", "", "Path to a YAML project template (built-in default when omitted)")
}
