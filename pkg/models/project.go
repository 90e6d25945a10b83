package models

import (
	"time"
)

// ProjectRequest describes one project-creation call to the phase
// orchestrator.
type ProjectRequest struct {
	// Name is the project name, used for the work-tracking items, the
	// environment display name and the solution name
	Name        string
	Description string

	// Template is the resolved template to provision. When nil,
	// TemplatePath is loaded; when that is empty too, the built-in default
	// template is used.
	Template     *Template
	TemplatePath string

	// DryRun previews the work-tracking plan without any remote calls
	DryRun bool

	// Phase toggles. Each phase is independently skippable.
	SkipIdentity     bool
	SkipWorkTracking bool
	SkipPlatform     bool

	// Components are Dataverse component references to add to the created
	// solution, in "componentId:componentType" form
	Components []string
}

// EnvironmentSpec describes a platform environment to provision.
type EnvironmentSpec struct {
	DisplayName     string
	Location        string
	CurrencyCode    string
	LanguageCode    int
	EnvironmentType string
}

// EnvironmentResult is a successfully provisioned environment.
type EnvironmentResult struct {
	ID  string
	URL string
}

// PublisherSpec describes a solution publisher.
type PublisherSpec struct {
	DisplayName string
	UniqueName  string
	Prefix      string
}

// SolutionSpec describes an unmanaged solution.
type SolutionSpec struct {
	DisplayName string
	UniqueName  string
	Description string
}

// SolutionResult is a successfully created solution.
type SolutionResult struct {
	ID              string
	ComponentsAdded int
}

// ClientSecret is a credential generated for an app registration. The value
// is returned exactly once by the identity platform and is never persisted
// by this tool.
type ClientSecret struct {
	Value     string
	ExpiresAt time.Time
}

// IdentityResult is the outcome of the identity phase.
type IdentityResult struct {
	AppID              string
	ObjectID           string
	ServicePrincipalID string
	Secret             *ClientSecret
}

// ProjectResult aggregates whichever phase outputs succeeded for one
// project-creation operation. Missing sections mean the phase was skipped or
// failed; failures are described in Warnings rather than aborting siblings.
type ProjectResult struct {
	OperationID string
	ProjectName string

	Identity     *IdentityResult
	WorkTracking *OrchestrationOutcome
	Environment  *EnvironmentResult
	Solution     *SolutionResult

	Warnings []string

	TotalSteps     int
	CompletedSteps int
}
