package template

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/provisio/provisio/pkg/models"
)

// scenarioTemplate is the minimal one-epic, one-feature, one-story template
// used across parser tests.
func scenarioTemplate() *models.Template {
	return &models.Template{
		Name: "Scenario",
		Epics: []models.EpicSpec{
			{Name: "Setup", Features: []string{"Config"}},
		},
		Features: []models.FeatureSpec{
			{Name: "Config", Epic: "Setup", UserStories: []string{"Create env"}},
		},
	}
}

func TestParseScenario(t *testing.T) {
	batch, relationships := Parse(scenarioTemplate())

	require.Len(t, batch.Epics, 1)
	require.Len(t, batch.Features, 1)
	require.Len(t, batch.UserStories, 1)
	assert.Equal(t, "Setup", batch.Epics[0].Title)
	assert.Equal(t, "Config", batch.Features[0].Title)
	assert.Equal(t, "Create env", batch.UserStories[0].Title)

	// Three standard sub-tasks per story, no keyword extras for this title.
	require.Len(t, batch.Tasks, 3)
	assert.Equal(t, "Create env: Analysis", batch.Tasks[0].Title)
	assert.Equal(t, "Create env: Implementation", batch.Tasks[1].Title)
	assert.Equal(t, "Create env: Testing", batch.Tasks[2].Title)

	// One epic→feature, one feature→story, one story→task per task.
	require.Len(t, relationships, 5)
	assert.Equal(t, models.RelationshipRequest{
		ParentKind: models.KindEpic,
		ParentName: "Setup",
		ChildKind:  models.KindFeature,
		ChildName:  "Config",
	}, relationships[0])
	assert.Equal(t, models.RelationshipRequest{
		ParentKind: models.KindFeature,
		ParentName: "Config",
		ChildKind:  models.KindUserStory,
		ChildName:  "Create env",
	}, relationships[1])
	for i, taskTitle := range []string{"Create env: Analysis", "Create env: Implementation", "Create env: Testing"} {
		assert.Equal(t, models.RelationshipRequest{
			ParentKind: models.KindUserStory,
			ParentName: "Create env",
			ChildKind:  models.KindTask,
			ChildName:  taskTitle,
		}, relationships[2+i])
	}
}

func TestParseIsPure(t *testing.T) {
	tmpl := scenarioTemplate()

	batch1, rels1 := Parse(tmpl)
	batch2, rels2 := Parse(tmpl)

	assert.Equal(t, batch1, batch2)
	assert.Equal(t, rels1, rels2)
}

func TestParseKeywordTasks(t *testing.T) {
	testCases := []struct {
		name      string
		storyName string
		expected  []string
	}{
		{
			name:      "standard set only",
			storyName: "Build login page",
			expected:  []string{"Analysis", "Implementation", "Testing"},
		},
		{
			name:      "environment keyword adds deployment",
			storyName: "Provision development environment",
			expected:  []string{"Analysis", "Implementation", "Testing", "Deployment"},
		},
		{
			name:      "config keyword adds configuration",
			storyName: "Set up pipeline configuration",
			expected:  []string{"Analysis", "Implementation", "Testing", "Configuration"},
		},
		{
			name:      "both keywords add both extras",
			storyName: "Deploy configuration changes",
			expected:  []string{"Analysis", "Implementation", "Testing", "Configuration", "Deployment"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tasksForStory(tc.storyName))
		})
	}
}

func TestValidateReturnsAllErrors(t *testing.T) {
	// Three independent dangling references: all must be reported at once.
	tmpl := &models.Template{
		Name: "Broken",
		Epics: []models.EpicSpec{
			{Name: "Setup", Features: []string{"Missing Feature"}},
		},
		Features: []models.FeatureSpec{
			{Name: "Config", Epic: "Missing Epic", UserStories: []string{"Story"}},
		},
		UserStories: []models.UserStorySpec{
			{Name: "Story", Feature: "Another Missing Feature"},
		},
	}

	errs := Validate(tmpl)
	require.Len(t, errs, 3)
	assert.ErrorContains(t, errs[0], "undeclared feature 'Missing Feature'")
	assert.ErrorContains(t, errs[1], "undeclared epic 'Missing Epic'")
	assert.ErrorContains(t, errs[2], "undeclared feature 'Another Missing Feature'")
}

func TestValidateRequiresEpics(t *testing.T) {
	errs := Validate(&models.Template{Name: "Empty"})
	require.Len(t, errs, 1)
	assert.ErrorContains(t, errs[0], "at least one epic")
}

func TestValidateRejectsDuplicateNames(t *testing.T) {
	// Duplicate names within a kind would collide in the name→id map, so
	// validation rejects them instead of letting last-registered win.
	tmpl := &models.Template{
		Name: "Dupes",
		Epics: []models.EpicSpec{
			{Name: "Setup"},
			{Name: "Setup"},
		},
		Features: []models.FeatureSpec{
			{Name: "Config", Epic: "Setup"},
			{Name: "Config", Epic: "Setup"},
		},
	}

	errs := Validate(tmpl)
	require.Len(t, errs, 2)
	assert.ErrorContains(t, errs[0], "duplicate epic name 'Setup'")
	assert.ErrorContains(t, errs[1], "duplicate feature name 'Config'")
}

func TestValidateDefaultTemplate(t *testing.T) {
	assert.Empty(t, Validate(Default("Customer Portal")))
}

func TestLoad(t *testing.T) {
	content := `name: Loaded
description: from disk
epics:
  - name: Setup
    features: [Config]
features:
  - name: Config
    epic: Setup
    user_stories: [Create env]
user_stories:
  - name: Create env
    feature: Config
    description: provision the environment
`
	path := filepath.Join(t.TempDir(), "template.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	tmpl, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Loaded", tmpl.Name)
	require.Len(t, tmpl.Features, 1)
	assert.Equal(t, "Setup", tmpl.Features[0].Epic)
	assert.Empty(t, Validate(tmpl))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
