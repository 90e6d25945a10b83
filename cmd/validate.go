package cmd

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/provisio/provisio/internal/template"
	"github.com/provisio/provisio/pkg/models"
)

// validateCmd checks a template and previews the creation plan it would
// produce, without talking to any remote system.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a project template and preview its creation plan",
	Long: `Validate a YAML project template.

All problems are reported at once: missing names, dangling epic or feature
references, and duplicate names within a kind. When the template is valid
the command prints the flat creation plan (items per kind and the
parent-child relationships) that a create run would execute.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		templatePath, err := cmd.Flags().GetString("template")
		if err != nil {
			return err
		}
		if templatePath == "" {
			return fmt.Errorf("template flag is required")
		}

		tmpl, err := template.Load(templatePath)
		if err != nil {
			return err
		}

		if errs := template.Validate(tmpl); len(errs) > 0 {
			fmt.Printf("Template '%s' is invalid (%d problem(s)):\n", templatePath, len(errs))
			for _, err := range errs {
				fmt.Printf("  - %v\n", err)
			}
			return fmt.Errorf("template validation failed")
		}

		batch, relationships := template.Parse(tmpl)

		fmt.Printf("Template '%s' is valid.\n\n", tmpl.Name)

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"Kind", "Planned items"})
		for _, kind := range models.KindOrder {
			t.AppendRow(table.Row{kind, len(batch.ItemsOf(kind))})
		}
		t.AppendFooter(table.Row{"Total", batch.Total()})
		t.Render()

		fmt.Printf("\n%d relationship(s) would be established:\n", len(relationships))
		for _, rel := range relationships {
			fmt.Printf("  %s '%s' → %s '%s'\n", rel.ParentKind, rel.ParentName, rel.ChildKind, rel.ChildName)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
