package template

import (
	"fmt"

	"github.com/provisio/provisio/pkg/models"
)

// Default returns the built-in enterprise scaffold template, used when no
// template file is supplied. The project name is woven into the epic and
// solution-facing items so that several projects can share one board.
func Default(projectName string) *models.Template {
	governance := fmt.Sprintf("%s - Governance", projectName)
	platform := fmt.Sprintf("%s - Platform Setup", projectName)
	delivery := fmt.Sprintf("%s - Delivery", projectName)

	return &models.Template{
		Name:        projectName,
		Description: fmt.Sprintf("Standard scaffolding for project %s", projectName),
		Epics: []models.EpicSpec{
			{
				Name:        governance,
				Description: "Identity, access and compliance groundwork",
				Features:    []string{governance + " / App Registration"},
			},
			{
				Name:        platform,
				Description: "Environments, publisher and solution setup",
				Features:    []string{platform + " / Environments", platform + " / Solution"},
			},
			{
				Name:        delivery,
				Description: "Initial delivery backlog",
				Features:    []string{delivery + " / Walking Skeleton"},
			},
		},
		Features: []models.FeatureSpec{
			{
				Name:        governance + " / App Registration",
				Description: "Service principal and secret management",
				Epic:        governance,
				UserStories: []string{"Register application identity", "Grant API permissions"},
			},
			{
				Name:        platform + " / Environments",
				Description: "Provision development and test environments",
				Epic:        platform,
				UserStories: []string{"Create development environment", "Create test environment"},
			},
			{
				Name:        platform + " / Solution",
				Description: "Publisher and unmanaged solution",
				Epic:        platform,
				UserStories: []string{"Create solution and publisher"},
			},
			{
				Name:        delivery + " / Walking Skeleton",
				Description: "First end-to-end slice",
				Epic:        delivery,
				UserStories: []string{"Build walking skeleton"},
			},
		},
		UserStories: []models.UserStorySpec{
			{Name: "Register application identity", Feature: governance + " / App Registration", Description: "Create the app registration and service principal"},
			{Name: "Grant API permissions", Feature: governance + " / App Registration", Description: "Assign and consent required API permissions"},
			{Name: "Create development environment", Feature: platform + " / Environments", Description: "Provision the development environment"},
			{Name: "Create test environment", Feature: platform + " / Environments", Description: "Provision the test environment"},
			{Name: "Create solution and publisher", Feature: platform + " / Solution", Description: "Create the publisher and the unmanaged solution"},
			{Name: "Build walking skeleton", Feature: delivery + " / Walking Skeleton", Description: "Deliver the thinnest possible end-to-end slice"},
		},
	}
}
