package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, TrackerAzureDevOps, cfg.Tracker)
	assert.Equal(t, "unitedstates", cfg.PowerPlatform.Location)
	assert.Equal(t, "USD", cfg.PowerPlatform.CurrencyCode)
	assert.Equal(t, 1033, cfg.PowerPlatform.LanguageCode)
	assert.Equal(t, 5, cfg.Orchestrator.ParallelBatchSize)
	assert.Equal(t, time.Second, cfg.Orchestrator.DelayBetweenBatches)
	assert.Equal(t, 3, cfg.Orchestrator.MaxRetries)
	assert.False(t, cfg.Orchestrator.ParallelPhases)
	assert.Zero(t, cfg.Orchestrator.OperationTimeout)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("PROVISIO_TRACKER", "jira")
	t.Setenv("JIRA_URL", "https://jira.example.com")
	t.Setenv("JIRA_USERNAME", "bot")
	t.Setenv("JIRA_TOKEN", "secret-token")
	t.Setenv("JIRA_PROJECT", "PROV")
	t.Setenv("PROVISIO_BATCH_SIZE", "10")
	t.Setenv("PROVISIO_BATCH_DELAY_MS", "250")
	t.Setenv("PROVISIO_MAX_RETRIES", "5")
	t.Setenv("PROVISIO_PARALLEL_PHASES", "true")
	t.Setenv("PROVISIO_OPERATION_TIMEOUT_S", "600")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, TrackerJira, cfg.Tracker)
	assert.Equal(t, "https://jira.example.com", cfg.Jira.URL)
	assert.Equal(t, "bot", cfg.Jira.Username)
	assert.Equal(t, "secret-token", cfg.Jira.Token)
	assert.Equal(t, "PROV", cfg.Jira.Project)
	assert.Equal(t, 10, cfg.Orchestrator.ParallelBatchSize)
	assert.Equal(t, 250*time.Millisecond, cfg.Orchestrator.DelayBetweenBatches)
	assert.Equal(t, 5, cfg.Orchestrator.MaxRetries)
	assert.True(t, cfg.Orchestrator.ParallelPhases)
	assert.Equal(t, 10*time.Minute, cfg.Orchestrator.OperationTimeout)
}

func TestLoadConfigNormalizesTrackerCase(t *testing.T) {
	t.Setenv("PROVISIO_TRACKER", "GitHub")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, TrackerGitHub, cfg.Tracker)
}

func TestLoadConfigRejectsUnknownTracker(t *testing.T) {
	t.Setenv("PROVISIO_TRACKER", "trello")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown tracker "trello"`)
}

func TestValidateAzureDevOpsConfig(t *testing.T) {
	cfg := &Config{}
	err := ValidateAzureDevOpsConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AZDO_ORG_URL")
	assert.Contains(t, err.Error(), "AZDO_PROJECT")
	assert.Contains(t, err.Error(), "AZDO_PAT")

	cfg.AzureDevOps = AzureDevOpsConfig{
		OrganizationURL: "https://dev.azure.com/acme",
		Project:         "Platform",
		PAT:             "pat",
	}
	assert.NoError(t, ValidateAzureDevOpsConfig(cfg))
}

func TestValidateJiraConfig(t *testing.T) {
	cfg := &Config{
		Jira: JiraConfig{URL: "https://jira.example.com", Username: "bot"},
	}
	err := ValidateJiraConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JIRA_TOKEN")
	assert.Contains(t, err.Error(), "JIRA_PROJECT")
	assert.NotContains(t, err.Error(), "JIRA_URL")

	cfg.Jira.Token = "token"
	cfg.Jira.Project = "PROV"
	assert.NoError(t, ValidateJiraConfig(cfg))
}

func TestValidateGitHubConfig(t *testing.T) {
	cfg := &Config{GitHub: GitHubConfig{Token: "token"}}
	err := ValidateGitHubConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GITHUB_REPOSITORY")

	cfg.GitHub.Repository = "acme/platform"
	assert.NoError(t, ValidateGitHubConfig(cfg))
}

func TestValidateIdentityConfig(t *testing.T) {
	cfg := &Config{}
	err := ValidateIdentityConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AAD_TENANT_ID")
	assert.Contains(t, err.Error(), "AAD_CLIENT_ID")
	assert.Contains(t, err.Error(), "AAD_CLIENT_SECRET")

	cfg.Identity = IdentityConfig{TenantID: "tenant", ClientID: "client", ClientSecret: "secret"}
	assert.NoError(t, ValidateIdentityConfig(cfg))
}
