package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/provisio/provisio/internal/template"
	"github.com/provisio/provisio/pkg/models"
)

// mockTracker implements WorkTracker for testing. It is safe for the
// orchestrator's concurrent fan-out and records every call it receives.
type mockTracker struct {
	mu sync.Mutex

	CreateItemFunc func(kind models.ItemKind, title string) (string, error)
	LinkItemsFunc  func(parentID, childID string) error
	GetItemFunc    func(id string) (bool, error)

	createdKinds []models.ItemKind
	createCalls  int
	links        [][2]string
	getCalls     int
	nextID       int
}

func (m *mockTracker) CreateItem(ctx context.Context, kind models.ItemKind, title string, fields map[string]string) (string, error) {
	m.mu.Lock()
	m.createCalls++
	m.createdKinds = append(m.createdKinds, kind)
	m.nextID++
	id := fmt.Sprintf("id-%d", m.nextID)
	m.mu.Unlock()

	if m.CreateItemFunc != nil {
		return m.CreateItemFunc(kind, title)
	}
	return id, nil
}

func (m *mockTracker) LinkItems(ctx context.Context, parentID, childID, relation string) error {
	m.mu.Lock()
	m.links = append(m.links, [2]string{parentID, childID})
	m.mu.Unlock()

	if m.LinkItemsFunc != nil {
		return m.LinkItemsFunc(parentID, childID)
	}
	return nil
}

func (m *mockTracker) GetItem(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	m.getCalls++
	m.mu.Unlock()

	if m.GetItemFunc != nil {
		return m.GetItemFunc(id)
	}
	return true, nil
}

// fastConfig keeps tests quick: no inter-batch delays, millisecond backoff.
func fastConfig() ItemConfig {
	cfg := DefaultItemConfig()
	cfg.DelayBetweenBatches = 0
	cfg.DelayBetweenLinkBatches = 0
	cfg.RetryBaseDelay = time.Millisecond
	return cfg
}

// scenarioPlan parses the one-epic, one-feature, one-story template.
func scenarioPlan(t *testing.T) (models.CreationBatch, []models.RelationshipRequest) {
	t.Helper()
	tmpl := &models.Template{
		Name: "Scenario",
		Epics: []models.EpicSpec{
			{Name: "Setup", Features: []string{"Config"}},
		},
		Features: []models.FeatureSpec{
			{Name: "Config", Epic: "Setup", UserStories: []string{"Create env"}},
		},
	}
	require.Empty(t, template.Validate(tmpl))
	return template.Parse(tmpl)
}

func TestRunCreatesEverythingInKindOrder(t *testing.T) {
	batch, relationships := scenarioPlan(t)
	tracker := &mockTracker{}

	orch := NewItemOrchestrator(tracker, fastConfig(), nil)
	outcome := orch.Run(context.Background(), batch, relationships)

	assert.Len(t, outcome.Created, 6) // epic, feature, story, 3 tasks
	assert.Empty(t, outcome.Failed)
	assert.Equal(t, 5, outcome.RelationshipsLinked)
	assert.Empty(t, outcome.RelationshipErrors)

	// Kind-level ordering is strict: every epic is submitted before any
	// feature, every feature before any story, and so on.
	rank := map[models.ItemKind]int{
		models.KindEpic:      0,
		models.KindFeature:   1,
		models.KindUserStory: 2,
		models.KindTask:      3,
		models.KindBug:       4,
	}
	for i := 1; i < len(tracker.createdKinds); i++ {
		assert.LessOrEqual(t, rank[tracker.createdKinds[i-1]], rank[tracker.createdKinds[i]],
			"item of kind %s was created after %s", tracker.createdKinds[i-1], tracker.createdKinds[i])
	}
}

func TestRunContainsPartialFailure(t *testing.T) {
	// Creation of "Config" fails on all attempts; everything else must
	// still be attempted and created.
	batch, relationships := scenarioPlan(t)
	tracker := &mockTracker{}
	tracker.CreateItemFunc = func(kind models.ItemKind, title string) (string, error) {
		if title == "Config" {
			return "", &models.RemoteError{Op: "create work item", StatusCode: 500, Retryable: true, Err: errors.New("server error")}
		}
		return fmt.Sprintf("id-%s", title), nil
	}

	orch := NewItemOrchestrator(tracker, fastConfig(), nil)
	outcome := orch.Run(context.Background(), batch, relationships)

	var createdTitles []string
	for _, item := range outcome.Created {
		createdTitles = append(createdTitles, item.Title)
	}
	assert.Contains(t, createdTitles, "Setup")
	assert.Contains(t, createdTitles, "Create env")
	assert.Len(t, outcome.Created, 5) // epic + story + 3 tasks

	require.Len(t, outcome.Failed, 1)
	assert.Equal(t, models.KindFeature, outcome.Failed[0].Kind)
	assert.Equal(t, "Config", outcome.Failed[0].Title)

	// Both relationships touching "Config" are reported as unresolved, the
	// three story→task links still get established.
	assert.Equal(t, 3, outcome.RelationshipsLinked)
	require.Len(t, outcome.RelationshipErrors, 2)
	for _, relErr := range outcome.RelationshipErrors {
		assert.Contains(t, relErr, "'Config' was never created")
	}
}

func TestRunRetriesTransientErrors(t *testing.T) {
	batch := models.CreationBatch{
		Epics: []models.CreationItem{{Kind: models.KindEpic, Title: "Setup"}},
	}

	attempts := 0
	tracker := &mockTracker{}
	tracker.CreateItemFunc = func(kind models.ItemKind, title string) (string, error) {
		attempts++
		if attempts < 3 {
			return "", &models.RemoteError{Op: "create", StatusCode: 429, Retryable: true, Err: errors.New("rate limited")}
		}
		return "id-1", nil
	}

	orch := NewItemOrchestrator(tracker, fastConfig(), nil)
	outcome := orch.Run(context.Background(), batch, nil)

	assert.Equal(t, 3, attempts)
	assert.Len(t, outcome.Created, 1)
	assert.Empty(t, outcome.Failed)
}

func TestRunDoesNotRetryNonRetryableErrors(t *testing.T) {
	batch := models.CreationBatch{
		Epics: []models.CreationItem{{Kind: models.KindEpic, Title: "Setup"}},
	}

	attempts := 0
	tracker := &mockTracker{}
	tracker.CreateItemFunc = func(kind models.ItemKind, title string) (string, error) {
		attempts++
		return "", &models.RemoteError{Op: "create", StatusCode: 400, Retryable: false, Err: errors.New("validation failed")}
	}

	orch := NewItemOrchestrator(tracker, fastConfig(), nil)
	outcome := orch.Run(context.Background(), batch, nil)

	assert.Equal(t, 1, attempts)
	assert.Empty(t, outcome.Created)
	assert.Len(t, outcome.Failed, 1)
}

func TestRunDryRunMakesNoRemoteCalls(t *testing.T) {
	batch, relationships := scenarioPlan(t)
	tracker := &mockTracker{}

	cfg := fastConfig()
	cfg.DryRun = true

	orch := NewItemOrchestrator(tracker, cfg, nil)
	outcome := orch.Run(context.Background(), batch, relationships)

	assert.Empty(t, outcome.Created)
	assert.Empty(t, outcome.Failed)
	assert.Zero(t, outcome.RelationshipsLinked)
	require.Len(t, outcome.Warnings, 1)
	assert.Contains(t, outcome.Warnings[0], "6 items")
	assert.Contains(t, outcome.Warnings[0], "5 relationships")

	assert.Zero(t, tracker.createCalls)
	assert.Empty(t, tracker.links)
	assert.Zero(t, tracker.getCalls)
}

func TestRunBatchSizeIsOnlyAPerformanceKnob(t *testing.T) {
	// Batch size 1 and 5 must produce the same created items and links.
	run := func(batchSize int) models.OrchestrationOutcome {
		batch, relationships := scenarioPlan(t)
		cfg := fastConfig()
		cfg.ParallelBatchSize = batchSize
		orch := NewItemOrchestrator(&mockTracker{}, cfg, nil)
		return orch.Run(context.Background(), batch, relationships)
	}

	titles := func(outcome models.OrchestrationOutcome) []string {
		var out []string
		for _, item := range outcome.Created {
			out = append(out, string(item.Kind)+"/"+item.Title)
		}
		sort.Strings(out)
		return out
	}

	serial := run(1)
	fanned := run(5)

	assert.Equal(t, titles(serial), titles(fanned))
	assert.Equal(t, serial.RelationshipsLinked, fanned.RelationshipsLinked)
	assert.Empty(t, serial.Failed)
	assert.Empty(t, fanned.Failed)
}

func TestRunRecordsLinkFailures(t *testing.T) {
	batch, relationships := scenarioPlan(t)
	tracker := &mockTracker{}
	var mu sync.Mutex
	failed := false
	tracker.LinkItemsFunc = func(parentID, childID string) error {
		mu.Lock()
		defer mu.Unlock()
		if !failed {
			failed = true
			return &models.RemoteError{Op: "link", StatusCode: 400, Retryable: false, Err: errors.New("link rejected")}
		}
		return nil
	}

	orch := NewItemOrchestrator(tracker, fastConfig(), nil)
	outcome := orch.Run(context.Background(), batch, relationships)

	assert.Equal(t, 4, outcome.RelationshipsLinked)
	require.Len(t, outcome.RelationshipErrors, 1)
	assert.Contains(t, outcome.RelationshipErrors[0], "failed to link")
}

func TestRunValidationPassFlagsMissingItems(t *testing.T) {
	batch, relationships := scenarioPlan(t)
	tracker := &mockTracker{}
	tracker.GetItemFunc = func(id string) (bool, error) {
		return false, nil
	}

	cfg := fastConfig()
	cfg.ValidateCreation = true

	orch := NewItemOrchestrator(tracker, cfg, nil)
	outcome := orch.Run(context.Background(), batch, relationships)

	assert.Equal(t, len(outcome.Created), tracker.getCalls)
	assert.Len(t, outcome.Warnings, len(outcome.Created))
	for _, warning := range outcome.Warnings {
		assert.Contains(t, warning, "cannot be found on re-fetch")
	}
}

func TestRunStopsBetweenBatchesWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var items []models.CreationItem
	for i := 0; i < 10; i++ {
		items = append(items, models.CreationItem{Kind: models.KindEpic, Title: fmt.Sprintf("Epic %d", i)})
	}
	batch := models.CreationBatch{Epics: items}

	tracker := &mockTracker{}
	tracker.CreateItemFunc = func(kind models.ItemKind, title string) (string, error) {
		cancel() // cancel as soon as the first batch is in flight
		return "id", nil
	}

	cfg := fastConfig()
	cfg.ParallelBatchSize = 2

	orch := NewItemOrchestrator(tracker, cfg, nil)
	outcome := orch.Run(ctx, batch, nil)

	assert.Less(t, tracker.createCalls, 10)
	require.NotEmpty(t, outcome.Warnings)
	assert.Contains(t, outcome.Warnings[len(outcome.Warnings)-1], "orchestration stopped")
}
