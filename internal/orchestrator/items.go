// Package orchestrator contains the core that turns a flat creation plan
// into dependency-ordered remote calls: the item orchestrator (create items
// kind by kind, then link them) and the phase orchestrator (coordinate the
// identity, work-tracking and platform provisioning phases).
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/provisio/provisio/internal/logging"
	"github.com/provisio/provisio/pkg/models"
)

// HierarchyRelation is the relation kind passed to LinkItems for
// parent→child links. Backends translate it to their native link type.
const HierarchyRelation = "hierarchy"

// WorkTracker is the minimal contract the item orchestrator needs from a
// work-tracking platform. Implementations classify their errors as
// retryable or not via models.RemoteError; the orchestrator trusts that
// classification.
type WorkTracker interface {
	// CreateItem creates one work item and returns its remote id.
	CreateItem(ctx context.Context, kind models.ItemKind, title string, fields map[string]string) (string, error)

	// LinkItems establishes a parent→child relationship between two
	// already-created items.
	LinkItems(ctx context.Context, parentID, childID, relation string) error

	// GetItem reports whether an item with the given id exists.
	GetItem(ctx context.Context, id string) (bool, error)
}

// ItemConfig holds the tuning knobs of one item-orchestration run. Batch
// sizes and delays are performance knobs, never correctness dependencies:
// any batch size produces the same final set of items and links.
type ItemConfig struct {
	// ParallelBatchSize bounds concurrent creation calls within a kind
	ParallelBatchSize int

	// DelayBetweenBatches separates successive creation batches of a kind
	DelayBetweenBatches time.Duration

	// LinkBatchSize bounds concurrent link calls
	LinkBatchSize int

	// DelayBetweenLinkBatches separates successive link batches
	DelayBetweenLinkBatches time.Duration

	// MaxRetries is the number of creation attempts per item
	MaxRetries int

	// RetryBaseDelay is the base of the linear retry backoff
	RetryBaseDelay time.Duration

	// DryRun short-circuits every remote call and reports the plan only
	DryRun bool

	// ValidateCreation re-fetches created items afterwards to catch
	// read-after-write inconsistency in the remote system
	ValidateCreation bool

	// ValidationBatchSize bounds concurrent re-fetch calls
	ValidationBatchSize int
}

// DefaultItemConfig returns the standard tuning values.
func DefaultItemConfig() ItemConfig {
	return ItemConfig{
		ParallelBatchSize:       5,
		DelayBetweenBatches:     time.Second,
		LinkBatchSize:           10,
		DelayBetweenLinkBatches: 500 * time.Millisecond,
		MaxRetries:              3,
		RetryBaseDelay:          time.Second,
		ValidationBatchSize:     20,
	}
}

// withDefaults fills zero-valued knobs so a partially specified config is
// still usable.
func (c ItemConfig) withDefaults() ItemConfig {
	defaults := DefaultItemConfig()
	if c.ParallelBatchSize <= 0 {
		c.ParallelBatchSize = defaults.ParallelBatchSize
	}
	if c.LinkBatchSize <= 0 {
		c.LinkBatchSize = defaults.LinkBatchSize
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaults.MaxRetries
	}
	if c.ValidationBatchSize <= 0 {
		c.ValidationBatchSize = defaults.ValidationBatchSize
	}
	return c
}

// ItemOrchestrator executes a creation batch against one work tracker.
type ItemOrchestrator struct {
	tracker WorkTracker
	cfg     ItemConfig
	logger  *slog.Logger
}

// NewItemOrchestrator creates an item orchestrator. A nil logger falls back
// to the application default.
func NewItemOrchestrator(tracker WorkTracker, cfg ItemConfig, logger *slog.Logger) *ItemOrchestrator {
	if logger == nil {
		logger = logging.GetLogger()
	}
	return &ItemOrchestrator{
		tracker: tracker,
		cfg:     cfg.withDefaults(),
		logger:  logger,
	}
}

// createResult carries one goroutine's outcome back through its
// preallocated slot, so no lock is needed around the shared maps.
type createResult struct {
	remoteID string
	err      error
}

// Run creates every item in the batch in strict kind order (epics, then
// features, then user stories, then tasks and bugs), then resolves and
// establishes the requested relationships. Individual failures are recorded
// and never abort siblings or later kinds; the returned outcome always
// accounts for every submitted item and relationship.
func (o *ItemOrchestrator) Run(ctx context.Context, batch models.CreationBatch, relationships []models.RelationshipRequest) models.OrchestrationOutcome {
	var outcome models.OrchestrationOutcome

	if o.cfg.DryRun {
		o.logger.Info("dry run requested, skipping all remote calls",
			"planned_items", batch.Total(),
			"planned_relationships", len(relationships))
		outcome.Warnings = append(outcome.Warnings,
			fmt.Sprintf("dry run: %d items and %d relationships planned, nothing was created", batch.Total(), len(relationships)))
		return outcome
	}

	// Name→id map for relationship resolution, keyed by (kind, name) so
	// identical names under different kinds cannot collide. Confined to
	// this goroutine: mutated only between fan-out rounds.
	ids := make(map[models.ItemRef]string)

	for _, kind := range models.KindOrder {
		items := batch.ItemsOf(kind)
		if len(items) == 0 {
			continue
		}

		o.logger.Info("creating items",
			"kind", kind,
			"count", len(items),
			"batch_size", o.cfg.ParallelBatchSize)

		if err := o.createKind(ctx, items, ids, &outcome); err != nil {
			outcome.Warnings = append(outcome.Warnings,
				fmt.Sprintf("orchestration stopped during %s creation: %v", kind, err))
			return outcome
		}
	}

	o.linkRelationships(ctx, relationships, ids, &outcome)

	if o.cfg.ValidateCreation {
		o.validateCreated(ctx, &outcome)
	}

	o.logger.Info("item orchestration complete",
		"created", len(outcome.Created),
		"failed", len(outcome.Failed),
		"relationships_linked", outcome.RelationshipsLinked,
		"relationship_errors", len(outcome.RelationshipErrors))

	return outcome
}

// createKind processes all items of one kind in bounded concurrent batches.
// It returns an error only when the context ends; item-level failures are
// recorded in the outcome and do not stop processing.
func (o *ItemOrchestrator) createKind(ctx context.Context, items []models.CreationItem, ids map[models.ItemRef]string, outcome *models.OrchestrationOutcome) error {
	for start := 0; start < len(items); start += o.cfg.ParallelBatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}

		end := start + o.cfg.ParallelBatchSize
		if end > len(items) {
			end = len(items)
		}
		chunk := items[start:end]

		results := make([]createResult, len(chunk))
		var g errgroup.Group
		for i, item := range chunk {
			i, item := i, item
			g.Go(func() error {
				id, err := o.createWithRetry(ctx, item)
				results[i] = createResult{remoteID: id, err: err}
				return nil
			})
		}
		// Workers never return errors: every result, success or failure,
		// flows back through its slot and is joined unconditionally.
		g.Wait()

		for i, result := range results {
			item := chunk[i]
			if result.err != nil {
				o.logger.Error("failed to create item",
					"kind", item.Kind,
					"title", item.Title,
					"error", result.err)
				outcome.Failed = append(outcome.Failed, models.CreationError{
					Kind:   item.Kind,
					Title:  item.Title,
					Reason: result.err.Error(),
				})
				continue
			}

			o.logger.Debug("created item",
				"kind", item.Kind,
				"title", item.Title,
				"remote_id", result.remoteID)
			outcome.Created = append(outcome.Created, models.CreatedItem{
				RemoteID: result.remoteID,
				Kind:     item.Kind,
				Title:    item.Title,
				Fields:   item.Fields,
			})
			ids[models.ItemRef{Kind: item.Kind, Name: item.Title}] = result.remoteID
		}

		if end < len(items) {
			if err := sleep(ctx, o.cfg.DelayBetweenBatches); err != nil {
				return err
			}
		}
	}

	return nil
}

// createWithRetry attempts one item creation under the retry policy.
func (o *ItemOrchestrator) createWithRetry(ctx context.Context, item models.CreationItem) (string, error) {
	policy := RetryPolicy{
		MaxAttempts: o.cfg.MaxRetries,
		Backoff:     LinearBackoff(o.cfg.RetryBaseDelay),
		Retryable:   models.IsRetryable,
	}

	var remoteID string
	err := Retry(ctx, policy, func() error {
		id, err := o.tracker.CreateItem(ctx, item.Kind, item.Title, item.Fields)
		if err != nil {
			return err
		}
		remoteID = id
		return nil
	})
	return remoteID, err
}

// resolvedLink is a relationship whose endpoints both resolved to remote ids.
type resolvedLink struct {
	parentID string
	childID  string
	desc     string
}

// linkRelationships resolves every relationship request against the name→id
// map and establishes the resolvable ones in bounded concurrent batches.
// Requests with a missing endpoint (the item failed creation) are recorded
// as relationship errors, never attempted and never silently dropped.
func (o *ItemOrchestrator) linkRelationships(ctx context.Context, relationships []models.RelationshipRequest, ids map[models.ItemRef]string, outcome *models.OrchestrationOutcome) {
	var links []resolvedLink
	for _, rel := range relationships {
		desc := fmt.Sprintf("%s '%s' → %s '%s'", rel.ParentKind, rel.ParentName, rel.ChildKind, rel.ChildName)

		parentID, parentOK := ids[models.ItemRef{Kind: rel.ParentKind, Name: rel.ParentName}]
		childID, childOK := ids[models.ItemRef{Kind: rel.ChildKind, Name: rel.ChildName}]
		if !parentOK || !childOK {
			missing := rel.ParentName
			if parentOK {
				missing = rel.ChildName
			}
			o.logger.Warn("cannot link relationship, endpoint was never created",
				"relationship", desc,
				"missing", missing)
			outcome.RelationshipErrors = append(outcome.RelationshipErrors,
				fmt.Sprintf("cannot link %s: '%s' was never created", desc, missing))
			continue
		}

		links = append(links, resolvedLink{parentID: parentID, childID: childID, desc: desc})
	}

	if len(links) == 0 {
		return
	}

	o.logger.Info("linking relationships",
		"resolved", len(links),
		"unresolved", len(outcome.RelationshipErrors))

	for start := 0; start < len(links); start += o.cfg.LinkBatchSize {
		if err := ctx.Err(); err != nil {
			outcome.Warnings = append(outcome.Warnings,
				fmt.Sprintf("relationship linking stopped early: %v", err))
			return
		}

		end := start + o.cfg.LinkBatchSize
		if end > len(links) {
			end = len(links)
		}
		chunk := links[start:end]

		errs := make([]error, len(chunk))
		var g errgroup.Group
		for i, link := range chunk {
			i, link := i, link
			g.Go(func() error {
				errs[i] = o.tracker.LinkItems(ctx, link.parentID, link.childID, HierarchyRelation)
				return nil
			})
		}
		g.Wait()

		for i, err := range errs {
			if err != nil {
				o.logger.Error("failed to link relationship",
					"relationship", chunk[i].desc,
					"error", err)
				outcome.RelationshipErrors = append(outcome.RelationshipErrors,
					fmt.Sprintf("failed to link %s: %v", chunk[i].desc, err))
				continue
			}
			outcome.RelationshipsLinked++
		}

		if end < len(links) {
			if err := sleep(ctx, o.cfg.DelayBetweenLinkBatches); err != nil {
				outcome.Warnings = append(outcome.Warnings,
					fmt.Sprintf("relationship linking stopped early: %v", err))
				return
			}
		}
	}
}

// validateCreated re-fetches every created item by id and records the ones
// the remote system cannot find, to catch read-after-write inconsistency.
func (o *ItemOrchestrator) validateCreated(ctx context.Context, outcome *models.OrchestrationOutcome) {
	o.logger.Info("validating created items", "count", len(outcome.Created))

	for start := 0; start < len(outcome.Created); start += o.cfg.ValidationBatchSize {
		if ctx.Err() != nil {
			return
		}

		end := start + o.cfg.ValidationBatchSize
		if end > len(outcome.Created) {
			end = len(outcome.Created)
		}
		chunk := outcome.Created[start:end]

		warnings := make([]string, len(chunk))
		var g errgroup.Group
		for i, item := range chunk {
			i, item := i, item
			g.Go(func() error {
				found, err := o.tracker.GetItem(ctx, item.RemoteID)
				if err != nil {
					warnings[i] = fmt.Sprintf("could not verify %s '%s' (id %s): %v", item.Kind, item.Title, item.RemoteID, err)
				} else if !found {
					warnings[i] = fmt.Sprintf("%s '%s' (id %s) was created but cannot be found on re-fetch", item.Kind, item.Title, item.RemoteID)
				}
				return nil
			})
		}
		g.Wait()

		for _, w := range warnings {
			if w != "" {
				o.logger.Warn("validation pass flagged item", "warning", w)
				outcome.Warnings = append(outcome.Warnings, w)
			}
		}
	}
}
