// Package template loads, validates and parses declarative project
// templates into flat creation plans.
//
// A template is a tree described by name references only: features name
// their epic, user stories name their feature. Parse flattens the tree into
// a per-kind creation batch plus the list of parent→child relationships to
// establish after the items exist remotely.
package template

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/provisio/provisio/pkg/models"
)

// Standard sub-tasks synthesized for every user story.
var standardTasks = []string{"Analysis", "Implementation", "Testing"}

// Load reads a template from a YAML file.
func Load(path string) (*models.Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template file: %w", err)
	}

	var tmpl models.Template
	if err := yaml.Unmarshal(data, &tmpl); err != nil {
		return nil, fmt.Errorf("failed to parse template file %s: %w", path, err)
	}

	return &tmpl, nil
}

// Validate checks a template's internal consistency and returns every
// problem found, not just the first one. A template that passes validation
// is guaranteed to parse into a batch whose relationship endpoints all exist.
func Validate(tmpl *models.Template) []error {
	var errs []error

	if tmpl.Name == "" {
		errs = append(errs, fmt.Errorf("template name is required"))
	}
	if len(tmpl.Epics) == 0 {
		errs = append(errs, fmt.Errorf("template must declare at least one epic"))
	}

	epicNames := make(map[string]bool)
	for i, epic := range tmpl.Epics {
		if epic.Name == "" {
			errs = append(errs, fmt.Errorf("epic at index %d has no name", i))
			continue
		}
		if epicNames[epic.Name] {
			errs = append(errs, fmt.Errorf("duplicate epic name '%s'", epic.Name))
		}
		epicNames[epic.Name] = true
	}

	featureNames := make(map[string]bool)
	for i, feature := range tmpl.Features {
		if feature.Name == "" {
			errs = append(errs, fmt.Errorf("feature at index %d has no name", i))
			continue
		}
		if featureNames[feature.Name] {
			errs = append(errs, fmt.Errorf("duplicate feature name '%s'", feature.Name))
		}
		featureNames[feature.Name] = true
	}

	storyNames := make(map[string]bool)
	for i, story := range tmpl.UserStories {
		if story.Name == "" {
			errs = append(errs, fmt.Errorf("user story at index %d has no name", i))
			continue
		}
		if storyNames[story.Name] {
			errs = append(errs, fmt.Errorf("duplicate user story name '%s'", story.Name))
		}
		storyNames[story.Name] = true
	}

	// Every declared cross-reference must resolve. Collect all dangling
	// references rather than stopping at the first.
	for _, epic := range tmpl.Epics {
		for _, featureName := range epic.Features {
			if !featureNames[featureName] {
				errs = append(errs, fmt.Errorf("epic '%s' references undeclared feature '%s'", epic.Name, featureName))
			}
		}
	}
	for _, feature := range tmpl.Features {
		if feature.Epic != "" && !epicNames[feature.Epic] {
			errs = append(errs, fmt.Errorf("feature '%s' references undeclared epic '%s'", feature.Name, feature.Epic))
		}
	}
	for _, story := range tmpl.UserStories {
		if story.Feature != "" && !featureNames[story.Feature] {
			errs = append(errs, fmt.Errorf("user story '%s' references undeclared feature '%s'", story.Name, story.Feature))
		}
	}

	return errs
}

// Parse converts a template into a flat creation batch plus the
// relationships to establish after creation. It is a pure function: no I/O,
// no side effects, and identical input always produces identical output.
//
// Traversal order is epics, then each epic's features (matched by the
// feature's epic reference), then each feature's user stories. Every user
// story additionally gets a fixed set of synthesized sub-tasks.
func Parse(tmpl *models.Template) (models.CreationBatch, []models.RelationshipRequest) {
	var batch models.CreationBatch
	var relationships []models.RelationshipRequest

	storySpecs := make(map[string]models.UserStorySpec)
	for _, story := range tmpl.UserStories {
		storySpecs[story.Name] = story
	}

	for _, epic := range tmpl.Epics {
		batch.Epics = append(batch.Epics, models.CreationItem{
			Kind:  models.KindEpic,
			Title: epic.Name,
			Fields: map[string]string{
				"description": epic.Description,
			},
		})

		for _, feature := range tmpl.Features {
			if feature.Epic != epic.Name {
				continue
			}

			batch.Features = append(batch.Features, models.CreationItem{
				Kind:  models.KindFeature,
				Title: feature.Name,
				Fields: map[string]string{
					"description": feature.Description,
				},
			})
			relationships = append(relationships, models.RelationshipRequest{
				ParentKind: models.KindEpic,
				ParentName: epic.Name,
				ChildKind:  models.KindFeature,
				ChildName:  feature.Name,
			})

			for _, storyName := range feature.UserStories {
				description := ""
				if spec, ok := storySpecs[storyName]; ok {
					description = spec.Description
				}

				batch.UserStories = append(batch.UserStories, models.CreationItem{
					Kind:  models.KindUserStory,
					Title: storyName,
					Fields: map[string]string{
						"description": description,
					},
				})
				relationships = append(relationships, models.RelationshipRequest{
					ParentKind: models.KindFeature,
					ParentName: feature.Name,
					ChildKind:  models.KindUserStory,
					ChildName:  storyName,
				})

				for _, taskName := range tasksForStory(storyName) {
					taskTitle := fmt.Sprintf("%s: %s", storyName, taskName)
					batch.Tasks = append(batch.Tasks, models.CreationItem{
						Kind:  models.KindTask,
						Title: taskTitle,
						Fields: map[string]string{
							"description": fmt.Sprintf("%s work for user story '%s'", taskName, storyName),
						},
					})
					relationships = append(relationships, models.RelationshipRequest{
						ParentKind: models.KindUserStory,
						ParentName: storyName,
						ChildKind:  models.KindTask,
						ChildName:  taskTitle,
					})
				}
			}
		}
	}

	return batch, relationships
}

// tasksForStory returns the sub-task names to synthesize for one user
// story: the standard set plus extras triggered by keywords in the story
// name.
func tasksForStory(storyName string) []string {
	tasks := make([]string, len(standardTasks))
	copy(tasks, standardTasks)

	lower := strings.ToLower(storyName)
	if strings.Contains(lower, "config") || strings.Contains(lower, "settings") {
		tasks = append(tasks, "Configuration")
	}
	if strings.Contains(lower, "environment") || strings.Contains(lower, "deploy") {
		tasks = append(tasks, "Deployment")
	}

	return tasks
}
