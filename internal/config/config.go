// Package config provides centralized configuration management for the application.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Tracker names a work-tracking backend.
type Tracker string

const (
	TrackerAzureDevOps Tracker = "azuredevops"
	TrackerJira        Tracker = "jira"
	TrackerGitHub      Tracker = "github"
)

// Config holds all configuration parameters for the application.
type Config struct {
	// Tracker selects the work-tracking backend for the work-tracking phase
	Tracker Tracker

	AzureDevOps   AzureDevOpsConfig
	Jira          JiraConfig
	GitHub        GitHubConfig
	Identity      IdentityConfig
	PowerPlatform PowerPlatformConfig
	Orchestrator  OrchestratorConfig
}

// AzureDevOpsConfig holds Azure DevOps specific configuration.
type AzureDevOpsConfig struct {
	OrganizationURL string
	Project         string
	PAT             string
}

// JiraConfig holds JIRA specific configuration.
type JiraConfig struct {
	URL      string
	Username string
	Token    string
	Project  string
}

// GitHubConfig holds GitHub specific configuration.
type GitHubConfig struct {
	Token      string
	Repository string
	Domain     string
}

// IdentityConfig holds the Azure AD app credentials used for Microsoft Graph
// and Power Platform calls.
type IdentityConfig struct {
	TenantID     string
	ClientID     string
	ClientSecret string
}

// PowerPlatformConfig holds Power Platform environment defaults.
type PowerPlatformConfig struct {
	Location     string
	CurrencyCode string
	LanguageCode int
}

// OrchestratorConfig holds tuning knobs for the orchestration core.
type OrchestratorConfig struct {
	// ParallelBatchSize bounds the concurrent creation fan-out within a kind
	ParallelBatchSize int

	// DelayBetweenBatches separates successive creation batches
	DelayBetweenBatches time.Duration

	// MaxRetries bounds creation attempts per item
	MaxRetries int

	// ParallelPhases runs the provisioning phases concurrently instead of
	// identity → work-tracking → platform order
	ParallelPhases bool

	// OperationTimeout caps one whole project-creation operation. Zero
	// means no orchestrator-level deadline.
	OperationTimeout time.Duration
}

// LoadConfig initializes and loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	// Initialize Viper for environment variables
	v := viper.New()
	v.SetEnvPrefix("")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Map specific environment variables
	v.BindEnv("tracker", "PROVISIO_TRACKER")
	v.BindEnv("azdo.org_url", "AZDO_ORG_URL")
	v.BindEnv("azdo.project", "AZDO_PROJECT")
	v.BindEnv("azdo.pat", "AZDO_PAT")
	v.BindEnv("jira.url", "JIRA_URL")
	v.BindEnv("jira.username", "JIRA_USERNAME")
	v.BindEnv("jira.token", "JIRA_TOKEN")
	v.BindEnv("jira.project", "JIRA_PROJECT")
	v.BindEnv("github.token", "GITHUB_TOKEN")
	v.BindEnv("github.repository", "GITHUB_REPOSITORY")
	v.BindEnv("github.domain", "GITHUB_DOMAIN")
	v.BindEnv("aad.tenant_id", "AAD_TENANT_ID")
	v.BindEnv("aad.client_id", "AAD_CLIENT_ID")
	v.BindEnv("aad.client_secret", "AAD_CLIENT_SECRET")
	v.BindEnv("powerplatform.location", "POWERPLATFORM_LOCATION")
	v.BindEnv("powerplatform.currency", "POWERPLATFORM_CURRENCY")
	v.BindEnv("powerplatform.language", "POWERPLATFORM_LANGUAGE")
	v.BindEnv("orchestrator.batch_size", "PROVISIO_BATCH_SIZE")
	v.BindEnv("orchestrator.batch_delay_ms", "PROVISIO_BATCH_DELAY_MS")
	v.BindEnv("orchestrator.max_retries", "PROVISIO_MAX_RETRIES")
	v.BindEnv("orchestrator.parallel_phases", "PROVISIO_PARALLEL_PHASES")
	v.BindEnv("orchestrator.operation_timeout_s", "PROVISIO_OPERATION_TIMEOUT_S")

	v.SetDefault("tracker", string(TrackerAzureDevOps))
	v.SetDefault("powerplatform.location", "unitedstates")
	v.SetDefault("powerplatform.currency", "USD")
	v.SetDefault("powerplatform.language", 1033)
	v.SetDefault("orchestrator.batch_size", 5)
	v.SetDefault("orchestrator.batch_delay_ms", 1000)
	v.SetDefault("orchestrator.max_retries", 3)
	v.SetDefault("orchestrator.parallel_phases", false)
	v.SetDefault("orchestrator.operation_timeout_s", 0)

	config := &Config{
		Tracker: Tracker(strings.ToLower(v.GetString("tracker"))),
		AzureDevOps: AzureDevOpsConfig{
			OrganizationURL: v.GetString("azdo.org_url"),
			Project:         v.GetString("azdo.project"),
			PAT:             v.GetString("azdo.pat"),
		},
		Jira: JiraConfig{
			URL:      v.GetString("jira.url"),
			Username: v.GetString("jira.username"),
			Token:    v.GetString("jira.token"),
			Project:  v.GetString("jira.project"),
		},
		GitHub: GitHubConfig{
			Token:      v.GetString("github.token"),
			Repository: v.GetString("github.repository"),
			Domain:     v.GetString("github.domain"),
		},
		Identity: IdentityConfig{
			TenantID:     v.GetString("aad.tenant_id"),
			ClientID:     v.GetString("aad.client_id"),
			ClientSecret: v.GetString("aad.client_secret"),
		},
		PowerPlatform: PowerPlatformConfig{
			Location:     v.GetString("powerplatform.location"),
			CurrencyCode: v.GetString("powerplatform.currency"),
			LanguageCode: v.GetInt("powerplatform.language"),
		},
		Orchestrator: OrchestratorConfig{
			ParallelBatchSize:   v.GetInt("orchestrator.batch_size"),
			DelayBetweenBatches: time.Duration(v.GetInt("orchestrator.batch_delay_ms")) * time.Millisecond,
			MaxRetries:          v.GetInt("orchestrator.max_retries"),
			ParallelPhases:      v.GetBool("orchestrator.parallel_phases"),
			OperationTimeout:    time.Duration(v.GetInt("orchestrator.operation_timeout_s")) * time.Second,
		},
	}

	switch config.Tracker {
	case TrackerAzureDevOps, TrackerJira, TrackerGitHub:
	default:
		return nil, fmt.Errorf("unknown tracker %q, expected one of: azuredevops, jira, github", config.Tracker)
	}

	return config, nil
}

// ValidateAzureDevOpsConfig validates Azure DevOps specific configuration.
func ValidateAzureDevOpsConfig(config *Config) error {
	var missingVars []string

	if config.AzureDevOps.OrganizationURL == "" {
		missingVars = append(missingVars, "AZDO_ORG_URL")
	}
	if config.AzureDevOps.Project == "" {
		missingVars = append(missingVars, "AZDO_PROJECT")
	}
	if config.AzureDevOps.PAT == "" {
		missingVars = append(missingVars, "AZDO_PAT")
	}

	if len(missingVars) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missingVars)
	}

	return nil
}

// ValidateJiraConfig validates JIRA-specific configuration.
func ValidateJiraConfig(config *Config) error {
	var missingVars []string

	if config.Jira.URL == "" {
		missingVars = append(missingVars, "JIRA_URL")
	}
	if config.Jira.Username == "" {
		missingVars = append(missingVars, "JIRA_USERNAME")
	}
	if config.Jira.Token == "" {
		missingVars = append(missingVars, "JIRA_TOKEN")
	}
	if config.Jira.Project == "" {
		missingVars = append(missingVars, "JIRA_PROJECT")
	}

	if len(missingVars) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missingVars)
	}

	return nil
}

// ValidateGitHubConfig validates GitHub-specific configuration.
func ValidateGitHubConfig(config *Config) error {
	var missingVars []string

	if config.GitHub.Token == "" {
		missingVars = append(missingVars, "GITHUB_TOKEN")
	}
	if config.GitHub.Repository == "" {
		missingVars = append(missingVars, "GITHUB_REPOSITORY")
	}

	if len(missingVars) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missingVars)
	}

	return nil
}

// ValidateIdentityConfig validates the Azure AD credentials shared by the
// Graph and Power Platform clients.
func ValidateIdentityConfig(config *Config) error {
	var missingVars []string

	if config.Identity.TenantID == "" {
		missingVars = append(missingVars, "AAD_TENANT_ID")
	}
	if config.Identity.ClientID == "" {
		missingVars = append(missingVars, "AAD_CLIENT_ID")
	}
	if config.Identity.ClientSecret == "" {
		missingVars = append(missingVars, "AAD_CLIENT_SECRET")
	}

	if len(missingVars) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missingVars)
	}

	return nil
}
