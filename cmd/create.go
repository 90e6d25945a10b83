package cmd

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/provisio/provisio/internal/azuredevops"
	"github.com/provisio/provisio/internal/config"
	"github.com/provisio/provisio/internal/github"
	"github.com/provisio/provisio/internal/graph"
	"github.com/provisio/provisio/internal/jira"
	"github.com/provisio/provisio/internal/logging"
	"github.com/provisio/provisio/internal/orchestrator"
	"github.com/provisio/provisio/internal/powerplatform"
	"github.com/provisio/provisio/pkg/models"
)

// createCmd runs the full project-creation orchestration.
var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a project's scaffolding across all platforms",
	Long: `Create a project from a declarative template.

The command runs up to three provisioning phases:

1. Identity: app registration, service principal and client secret
2. Work tracking: epics, features, user stories and synthesized sub-tasks,
   plus their parent-child links
3. Platform: environment, publisher and solution

Each phase can be skipped individually; --dry-run previews the work-tracking
plan without any remote call and implies skipping the other two phases.

Example:
  provisio create --name "Customer Portal" -t template.yaml --parallel`,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, err := cmd.Flags().GetString("name")
		if err != nil {
			return err
		}
		if name == "" {
			return fmt.Errorf("name flag is required")
		}

		description, _ := cmd.Flags().GetString("description")
		templatePath, _ := cmd.Flags().GetString("template")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		parallel, _ := cmd.Flags().GetBool("parallel")
		skipIdentity, _ := cmd.Flags().GetBool("skip-identity")
		skipWorkTracking, _ := cmd.Flags().GetBool("skip-worktracking")
		skipPlatform, _ := cmd.Flags().GetBool("skip-platform")
		components, _ := cmd.Flags().GetStringArray("component")

		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		request := &models.ProjectRequest{
			Name:             name,
			Description:      description,
			TemplatePath:     templatePath,
			DryRun:           dryRun,
			SkipIdentity:     skipIdentity || dryRun,
			SkipWorkTracking: skipWorkTracking,
			SkipPlatform:     skipPlatform || dryRun,
			Components:       components,
		}

		logging.Info("starting project creation",
			"project", name,
			"tracker", cfg.Tracker,
			"dry_run", dryRun)

		ctx := cmd.Context()

		var tracker orchestrator.WorkTracker
		if !request.SkipWorkTracking && !dryRun {
			tracker, err = newWorkTracker(cmd, cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize work tracker: %w", err)
			}
		}

		var platform orchestrator.PlatformProvisioner
		if !request.SkipPlatform {
			platform, err = powerplatform.NewClient(ctx)
			if err != nil {
				return fmt.Errorf("failed to initialize power platform client: %w", err)
			}
		}

		var identity orchestrator.IdentityProvider
		if !request.SkipIdentity {
			identity, err = graph.NewClient(ctx)
			if err != nil {
				return fmt.Errorf("failed to initialize graph client: %w", err)
			}
		}

		phases := orchestrator.NewPhaseOrchestrator(
			tracker, platform, identity,
			orchestrator.NewProgressRegistry(),
			orchestrator.PhaseConfig{
				ParallelExecution: parallel || cfg.Orchestrator.ParallelPhases,
				OperationTimeout:  cfg.Orchestrator.OperationTimeout,
				Items: orchestrator.ItemConfig{
					ParallelBatchSize:   cfg.Orchestrator.ParallelBatchSize,
					DelayBetweenBatches: cfg.Orchestrator.DelayBetweenBatches,
					MaxRetries:          cfg.Orchestrator.MaxRetries,
				},
				EnvironmentDefaults: models.EnvironmentSpec{
					Location:     cfg.PowerPlatform.Location,
					CurrencyCode: cfg.PowerPlatform.CurrencyCode,
					LanguageCode: cfg.PowerPlatform.LanguageCode,
				},
			},
			nil,
		)

		result, err := phases.CreateProject(ctx, request)
		if err != nil {
			return err
		}

		renderResult(result)

		if progress, ok := phases.GetOperationStatus(result.OperationID); ok {
			fmt.Printf("\nOperation %s: %s (%d/%d steps)\n",
				progress.OperationID, progress.Status, progress.CompletedSteps, progress.TotalSteps)
			for _, entry := range progress.Logs {
				fmt.Printf("  [%s] %s: %s\n", entry.Timestamp.Format("15:04:05"), entry.Phase, entry.Message)
			}
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(createCmd)
	createCmd.Flags().StringP("name", "n", "", "Project name (required)")
	createCmd.Flags().StringP("description", "d", "", "Project description")
	createCmd.Flags().Bool("dry-run", false, "Preview the work-tracking plan without creating anything")
	createCmd.Flags().Bool("parallel", false, "Run the provisioning phases concurrently")
	createCmd.Flags().Bool("skip-identity", false, "Skip the app-registration phase")
	createCmd.Flags().Bool("skip-worktracking", false, "Skip the work-item phase")
	createCmd.Flags().Bool("skip-platform", false, "Skip the environment/solution phase")
	createCmd.Flags().StringArray("component", nil, "Solution component to add, as componentId:componentType (repeatable)")
}

// newWorkTracker builds the work-tracking backend selected by PROVISIO_TRACKER.
func newWorkTracker(cmd *cobra.Command, cfg *config.Config) (orchestrator.WorkTracker, error) {
	switch cfg.Tracker {
	case config.TrackerAzureDevOps:
		return azuredevops.NewClient(cmd.Context())
	case config.TrackerJira:
		return jira.NewClient()
	case config.TrackerGitHub:
		return github.NewClient(cmd.Context())
	default:
		return nil, fmt.Errorf("unknown tracker %q", cfg.Tracker)
	}
}

// renderResult prints the aggregated outcome of a project-creation run.
func renderResult(result *models.ProjectResult) {
	fmt.Printf("Project '%s' provisioned.\n\n", result.ProjectName)

	if result.Identity != nil {
		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"Identity", "Value"})
		t.AppendRow(table.Row{"App ID", result.Identity.AppID})
		t.AppendRow(table.Row{"Object ID", result.Identity.ObjectID})
		t.AppendRow(table.Row{"Service Principal", result.Identity.ServicePrincipalID})
		if result.Identity.Secret != nil {
			t.AppendRow(table.Row{"Secret expires", result.Identity.Secret.ExpiresAt.Format("2006-01-02")})
		}
		t.Render()
		fmt.Println()
	}

	if result.Environment != nil {
		fmt.Printf("Environment: %s (%s)\n", result.Environment.ID, result.Environment.URL)
	}
	if result.Solution != nil {
		fmt.Printf("Solution: %s (%d components added)\n\n", result.Solution.ID, result.Solution.ComponentsAdded)
	}

	if result.WorkTracking != nil {
		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"Kind", "Title", "Remote ID"})
		for _, item := range result.WorkTracking.Created {
			t.AppendRow(table.Row{item.Kind, item.Title, item.RemoteID})
		}
		t.Render()

		fmt.Printf("Created %d items, %d failed, %d relationships linked, %d relationship errors.\n",
			len(result.WorkTracking.Created),
			len(result.WorkTracking.Failed),
			result.WorkTracking.RelationshipsLinked,
			len(result.WorkTracking.RelationshipErrors))
	}

	if len(result.Warnings) > 0 {
		fmt.Printf("\n%d warning(s):\n", len(result.Warnings))
		for _, warning := range result.Warnings {
			fmt.Printf("  - %s\n", warning)
		}
	}
}
