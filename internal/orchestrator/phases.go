package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/provisio/provisio/internal/logging"
	"github.com/provisio/provisio/internal/template"
	"github.com/provisio/provisio/pkg/models"
)

// PlatformProvisioner is the contract of the environment/solution platform.
type PlatformProvisioner interface {
	CreateEnvironment(ctx context.Context, spec models.EnvironmentSpec) (*models.EnvironmentResult, error)
	CreatePublisher(ctx context.Context, spec models.PublisherSpec) (string, error)
	CreateSolution(ctx context.Context, spec models.SolutionSpec, publisherID string) (string, error)
	AddComponent(ctx context.Context, solutionID, componentRef string) error
}

// IdentityProvider is the contract of the identity platform.
type IdentityProvider interface {
	CreateApplication(ctx context.Context, name string, permissions []string) (appID, objectID string, err error)
	CreateServicePrincipal(ctx context.Context, appID string) (string, error)
	CreateSecret(ctx context.Context, objectID string) (*models.ClientSecret, error)
}

// Phase names used in progress log entries.
const (
	PhaseIdentity     = "identity"
	PhaseWorkTracking = "work-tracking"
	PhasePlatform     = "platform"
)

// PhaseConfig tunes the phase orchestrator.
type PhaseConfig struct {
	// ParallelExecution launches all enabled phases concurrently. The
	// default runs them in identity → work-tracking → platform order.
	ParallelExecution bool

	// OperationTimeout caps one whole operation. Zero disables the
	// orchestrator-level deadline.
	OperationTimeout time.Duration

	// Items configures the item orchestrator used by the work-tracking phase
	Items ItemConfig

	// EnvironmentDefaults supplies location/currency/language for created
	// environments; the display name comes from the project request
	EnvironmentDefaults models.EnvironmentSpec
}

// PhaseOrchestrator coordinates the three provisioning phases of one
// project-creation operation and maintains its pollable progress record.
// Phases are independent by design: a failed phase is demoted to a warning
// and never aborts or cancels its siblings, maximizing partial progress.
type PhaseOrchestrator struct {
	tracker  WorkTracker
	platform PlatformProvisioner
	identity IdentityProvider
	registry *ProgressRegistry
	cfg      PhaseConfig
	logger   *slog.Logger
}

// NewPhaseOrchestrator creates a phase orchestrator. Collaborators for
// skipped phases may be nil; a nil logger falls back to the application
// default.
func NewPhaseOrchestrator(tracker WorkTracker, platform PlatformProvisioner, identity IdentityProvider, registry *ProgressRegistry, cfg PhaseConfig, logger *slog.Logger) *PhaseOrchestrator {
	if registry == nil {
		registry = NewProgressRegistry()
	}
	if logger == nil {
		logger = logging.GetLogger()
	}
	return &PhaseOrchestrator{
		tracker:  tracker,
		platform: platform,
		identity: identity,
		registry: registry,
		cfg:      cfg,
		logger:   logger,
	}
}

// GetOperationStatus returns a snapshot of an operation's progress record.
// The second return value is false for unknown ids.
func (p *PhaseOrchestrator) GetOperationStatus(operationID string) (models.OperationProgress, bool) {
	return p.registry.Get(operationID)
}

// CreateProject runs the enabled provisioning phases for one project
// request and aggregates their outputs. Template validation errors fail
// fast, before anything remote is attempted; phase failures after that are
// contained as warnings. The returned result is owned by the caller.
func (p *PhaseOrchestrator) CreateProject(ctx context.Context, req *models.ProjectRequest) (*models.ProjectResult, error) {
	if req.Name == "" {
		return nil, errors.New("project name is required")
	}

	if p.cfg.OperationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.OperationTimeout)
		defer cancel()
	}

	operationID := p.registry.Begin("proj", 0)
	p.logger.Info("starting project creation",
		"operation_id", operationID,
		"project", req.Name,
		"parallel", p.cfg.ParallelExecution,
		"dry_run", req.DryRun)

	tmpl, err := p.resolveTemplate(req)
	if err != nil {
		p.registry.Append(operationID, PhaseWorkTracking, fmt.Sprintf("template error: %v", err))
		p.registry.Complete(operationID, models.StatusFailed)
		return nil, err
	}

	if errs := template.Validate(tmpl); len(errs) > 0 {
		err := fmt.Errorf("template validation failed: %w", errors.Join(errs...))
		p.registry.Append(operationID, PhaseWorkTracking, err.Error())
		p.registry.Complete(operationID, models.StatusFailed)
		return nil, err
	}

	batch, relationships := template.Parse(tmpl)

	if err := p.checkCollaborators(req); err != nil {
		p.registry.Append(operationID, PhaseWorkTracking, err.Error())
		p.registry.Complete(operationID, models.StatusFailed)
		return nil, err
	}

	result := &models.ProjectResult{
		OperationID: operationID,
		ProjectName: req.Name,
		TotalSteps:  p.countSteps(req, batch, relationships),
	}
	p.registry.SetTotalSteps(operationID, result.TotalSteps)

	if p.cfg.ParallelExecution {
		p.runParallel(ctx, operationID, req, batch, relationships, result)
	} else {
		p.runSequential(ctx, operationID, req, batch, relationships, result)
	}

	progress, _ := p.registry.Get(operationID)
	result.CompletedSteps = progress.CompletedSteps

	p.registry.Complete(operationID, models.StatusCompleted)
	p.logger.Info("project creation complete",
		"operation_id", operationID,
		"completed_steps", result.CompletedSteps,
		"total_steps", result.TotalSteps,
		"warnings", len(result.Warnings))

	return result, nil
}

// resolveTemplate picks the template for a request: inline, from file, or
// the built-in default.
func (p *PhaseOrchestrator) resolveTemplate(req *models.ProjectRequest) (*models.Template, error) {
	if req.Template != nil {
		return req.Template, nil
	}
	if req.TemplatePath != "" {
		return template.Load(req.TemplatePath)
	}
	return template.Default(req.Name), nil
}

// checkCollaborators verifies that every enabled phase has its collaborator
// wired. A missing collaborator is a structural failure: it is surfaced
// before any phase starts, unlike phase-level errors which are contained.
func (p *PhaseOrchestrator) checkCollaborators(req *models.ProjectRequest) error {
	if !req.SkipIdentity && p.identity == nil {
		return errors.New("identity phase is enabled but no identity provider is configured")
	}
	if !req.SkipWorkTracking && !req.DryRun && p.tracker == nil {
		return errors.New("work-tracking phase is enabled but no work tracker is configured")
	}
	if !req.SkipPlatform && p.platform == nil {
		return errors.New("platform phase is enabled but no platform provisioner is configured")
	}
	return nil
}

// countSteps derives the operation's total step count from the resolved
// template and the enabled phases.
func (p *PhaseOrchestrator) countSteps(req *models.ProjectRequest, batch models.CreationBatch, relationships []models.RelationshipRequest) int {
	total := 0
	if !req.SkipWorkTracking {
		total += batch.Total() + len(relationships)
	}
	if !req.SkipIdentity {
		total += 3 // application, service principal, secret
	}
	if !req.SkipPlatform {
		total += 3 + len(req.Components) // environment, publisher, solution
	}
	return total
}

// platformOutput bundles what the platform phase produced, including
// component-level warnings that did not fail the phase.
type platformOutput struct {
	env      *models.EnvironmentResult
	solution *models.SolutionResult
	warnings []string
}

// phaseOutputs collects the per-phase results; each phase goroutine writes
// only its own slot.
type phaseOutputs struct {
	identity     *models.IdentityResult
	identityErr  error
	workTracking *models.OrchestrationOutcome
	platform     platformOutput
	platformErr  error
}

// runParallel launches every enabled phase concurrently and joins all of
// them unconditionally: one phase's failure never cancels a sibling.
func (p *PhaseOrchestrator) runParallel(ctx context.Context, operationID string, req *models.ProjectRequest, batch models.CreationBatch, relationships []models.RelationshipRequest, result *models.ProjectResult) {
	var out phaseOutputs
	var wg sync.WaitGroup

	if !req.SkipIdentity {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out.identity, out.identityErr = p.runIdentityPhase(ctx, operationID, req)
		}()
	}
	if !req.SkipWorkTracking {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out.workTracking = p.runWorkTrackingPhase(ctx, operationID, req, batch, relationships)
		}()
	}
	if !req.SkipPlatform {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out.platform, out.platformErr = p.runPlatformPhase(ctx, operationID, req)
		}()
	}
	wg.Wait()

	p.aggregate(operationID, req, &out, result)
}

// runSequential runs the enabled phases one after another in identity →
// work-tracking → platform order. An earlier phase's failure is recorded and
// later phases still run: the phases are independent enough that partial
// progress beats an early abort.
func (p *PhaseOrchestrator) runSequential(ctx context.Context, operationID string, req *models.ProjectRequest, batch models.CreationBatch, relationships []models.RelationshipRequest, result *models.ProjectResult) {
	var out phaseOutputs

	if !req.SkipIdentity {
		out.identity, out.identityErr = p.runIdentityPhase(ctx, operationID, req)
	}
	if !req.SkipWorkTracking {
		out.workTracking = p.runWorkTrackingPhase(ctx, operationID, req, batch, relationships)
	}
	if !req.SkipPlatform {
		out.platform, out.platformErr = p.runPlatformPhase(ctx, operationID, req)
	}

	p.aggregate(operationID, req, &out, result)
}

// aggregate merges whichever phase outputs succeeded into the final result
// and demotes phase errors to warnings.
func (p *PhaseOrchestrator) aggregate(operationID string, req *models.ProjectRequest, out *phaseOutputs, result *models.ProjectResult) {
	if out.identityErr != nil {
		warning := fmt.Sprintf("identity phase failed: %v", out.identityErr)
		p.logger.Error("identity phase failed", "operation_id", operationID, "error", out.identityErr)
		p.registry.Append(operationID, PhaseIdentity, warning)
		result.Warnings = append(result.Warnings, warning)
	}
	result.Identity = out.identity

	if out.workTracking != nil {
		result.WorkTracking = out.workTracking
		result.Warnings = append(result.Warnings, out.workTracking.Warnings...)
		for _, failure := range out.workTracking.Failed {
			result.Warnings = append(result.Warnings, failure.Error())
		}
		result.Warnings = append(result.Warnings, out.workTracking.RelationshipErrors...)
	}

	if out.platformErr != nil {
		warning := fmt.Sprintf("platform phase failed: %v", out.platformErr)
		p.logger.Error("platform phase failed", "operation_id", operationID, "error", out.platformErr)
		p.registry.Append(operationID, PhasePlatform, warning)
		result.Warnings = append(result.Warnings, warning)
	}
	result.Environment = out.platform.env
	result.Solution = out.platform.solution
	result.Warnings = append(result.Warnings, out.platform.warnings...)
}

// runIdentityPhase registers the application, creates its service principal
// and generates a client secret.
func (p *PhaseOrchestrator) runIdentityPhase(ctx context.Context, operationID string, req *models.ProjectRequest) (*models.IdentityResult, error) {
	p.registry.Append(operationID, PhaseIdentity, "identity phase started")

	appName := fmt.Sprintf("%s-app", schemaName(req.Name))
	appID, objectID, err := p.identity.CreateApplication(ctx, appName, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create application: %w", err)
	}
	p.registry.AddCompletedSteps(operationID, 1)
	p.registry.Append(operationID, PhaseIdentity, fmt.Sprintf("application '%s' registered (app id %s)", appName, appID))

	spID, err := p.identity.CreateServicePrincipal(ctx, appID)
	if err != nil {
		return &models.IdentityResult{AppID: appID, ObjectID: objectID}, fmt.Errorf("failed to create service principal: %w", err)
	}
	p.registry.AddCompletedSteps(operationID, 1)
	p.registry.Append(operationID, PhaseIdentity, "service principal created")

	secret, err := p.identity.CreateSecret(ctx, objectID)
	if err != nil {
		return &models.IdentityResult{AppID: appID, ObjectID: objectID, ServicePrincipalID: spID}, fmt.Errorf("failed to create client secret: %w", err)
	}
	p.registry.AddCompletedSteps(operationID, 1)
	p.registry.Append(operationID, PhaseIdentity, "client secret generated")

	return &models.IdentityResult{
		AppID:              appID,
		ObjectID:           objectID,
		ServicePrincipalID: spID,
		Secret:             secret,
	}, nil
}

// runWorkTrackingPhase delegates to the item orchestrator. Item-level
// failures are already contained inside the outcome, so this phase never
// reports a phase-level error.
func (p *PhaseOrchestrator) runWorkTrackingPhase(ctx context.Context, operationID string, req *models.ProjectRequest, batch models.CreationBatch, relationships []models.RelationshipRequest) *models.OrchestrationOutcome {
	p.registry.Append(operationID, PhaseWorkTracking,
		fmt.Sprintf("work-tracking phase started: %d items, %d relationships", batch.Total(), len(relationships)))

	cfg := p.cfg.Items
	cfg.DryRun = req.DryRun

	items := NewItemOrchestrator(p.tracker, cfg, p.logger)
	outcome := items.Run(ctx, batch, relationships)

	p.registry.AddCompletedSteps(operationID, len(outcome.Created)+outcome.RelationshipsLinked)
	p.registry.Append(operationID, PhaseWorkTracking,
		fmt.Sprintf("work-tracking phase finished: %d created, %d failed, %d relationships linked",
			len(outcome.Created), len(outcome.Failed), outcome.RelationshipsLinked))

	return &outcome
}

// runPlatformPhase provisions the environment, publisher and solution, then
// adds any requested solution components.
func (p *PhaseOrchestrator) runPlatformPhase(ctx context.Context, operationID string, req *models.ProjectRequest) (platformOutput, error) {
	var out platformOutput
	p.registry.Append(operationID, PhasePlatform, "platform phase started")

	envSpec := models.EnvironmentSpec{
		DisplayName:     fmt.Sprintf("%s Development", req.Name),
		Location:        p.cfg.EnvironmentDefaults.Location,
		CurrencyCode:    p.cfg.EnvironmentDefaults.CurrencyCode,
		LanguageCode:    p.cfg.EnvironmentDefaults.LanguageCode,
		EnvironmentType: "Sandbox",
	}
	env, err := p.platform.CreateEnvironment(ctx, envSpec)
	if err != nil {
		return out, fmt.Errorf("failed to create environment: %w", err)
	}
	out.env = env
	p.registry.AddCompletedSteps(operationID, 1)
	p.registry.Append(operationID, PhasePlatform, fmt.Sprintf("environment '%s' created (%s)", envSpec.DisplayName, env.ID))

	unique := schemaName(req.Name)
	publisherID, err := p.platform.CreatePublisher(ctx, models.PublisherSpec{
		DisplayName: req.Name,
		UniqueName:  unique,
		Prefix:      publisherPrefix(unique),
	})
	if err != nil {
		return out, fmt.Errorf("failed to create publisher: %w", err)
	}
	p.registry.AddCompletedSteps(operationID, 1)
	p.registry.Append(operationID, PhasePlatform, "publisher created")

	solutionID, err := p.platform.CreateSolution(ctx, models.SolutionSpec{
		DisplayName: req.Name,
		UniqueName:  unique,
		Description: req.Description,
	}, publisherID)
	if err != nil {
		return out, fmt.Errorf("failed to create solution: %w", err)
	}
	p.registry.AddCompletedSteps(operationID, 1)
	p.registry.Append(operationID, PhasePlatform, fmt.Sprintf("solution '%s' created", unique))

	out.solution = &models.SolutionResult{ID: solutionID}
	for _, component := range req.Components {
		if err := p.platform.AddComponent(ctx, solutionID, component); err != nil {
			warning := fmt.Sprintf("failed to add component %s to solution '%s': %v", component, unique, err)
			p.registry.Append(operationID, PhasePlatform, warning)
			out.warnings = append(out.warnings, warning)
			continue
		}
		out.solution.ComponentsAdded++
		p.registry.AddCompletedSteps(operationID, 1)
	}

	return out, nil
}

// schemaName lowercases a display name and strips everything but letters
// and digits, yielding a name safe for publisher/solution unique names.
func schemaName(displayName string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(displayName) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "project"
	}
	return b.String()
}

// publisherPrefix derives a short customization prefix from a unique name.
func publisherPrefix(uniqueName string) string {
	if len(uniqueName) <= 3 {
		return uniqueName
	}
	return uniqueName[:3]
}
