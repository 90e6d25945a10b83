// Package models defines data structures shared across the application.
package models

// ItemKind identifies the type of a work-tracking item.
type ItemKind string

const (
	KindEpic      ItemKind = "Epic"
	KindFeature   ItemKind = "Feature"
	KindUserStory ItemKind = "UserStory"
	KindTask      ItemKind = "Task"
	KindBug       ItemKind = "Bug"
)

// KindOrder is the creation-phase order. Children reference parents by name,
// so it is also the dependency order: an item's parent kind always appears
// earlier in this slice.
var KindOrder = []ItemKind{KindEpic, KindFeature, KindUserStory, KindTask, KindBug}

// Template is a declarative description of a project's work-item hierarchy.
// Names are the only cross-reference mechanism: features reference their
// epic by name, user stories reference their feature by name. There is no
// numeric ID until items are created remotely.
type Template struct {
	// Name is the template's display name
	Name string `yaml:"name"`

	// Description is free-form text describing the template
	Description string `yaml:"description"`

	// Epics are the top-level work items
	Epics []EpicSpec `yaml:"epics"`

	// Features are the second-level work items, each owned by an epic
	Features []FeatureSpec `yaml:"features"`

	// UserStories are the third-level work items, each owned by a feature
	UserStories []UserStorySpec `yaml:"user_stories"`
}

// EpicSpec describes one epic in a template.
type EpicSpec struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Features lists the names of features that belong to this epic.
	// Every entry must resolve to a declared FeatureSpec.
	Features []string `yaml:"features"`
}

// FeatureSpec describes one feature in a template.
type FeatureSpec struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Epic is the name of the owning epic. Must resolve to a declared EpicSpec.
	Epic string `yaml:"epic"`

	// UserStories lists the names of user stories under this feature.
	UserStories []string `yaml:"user_stories"`
}

// UserStorySpec describes one user story in a template. A story that is only
// named in a feature's UserStories list (with no matching spec) is still
// created, just without a description.
type UserStorySpec struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Feature is the name of the owning feature.
	Feature string `yaml:"feature"`
}

// CreationItem is a fully-resolved, platform-agnostic description of one
// work item to create. Immutable once produced by the parser.
type CreationItem struct {
	Kind   ItemKind
	Title  string
	Fields map[string]string
}

// CreationBatch groups creation items by kind, in dependency order.
// Ordering within a kind is insertion order from the template.
type CreationBatch struct {
	Epics       []CreationItem
	Features    []CreationItem
	UserStories []CreationItem
	Tasks       []CreationItem
	Bugs        []CreationItem
}

// ItemsOf returns the items of the given kind.
func (b CreationBatch) ItemsOf(kind ItemKind) []CreationItem {
	switch kind {
	case KindEpic:
		return b.Epics
	case KindFeature:
		return b.Features
	case KindUserStory:
		return b.UserStories
	case KindTask:
		return b.Tasks
	case KindBug:
		return b.Bugs
	}
	return nil
}

// Total returns the number of items across all kinds.
func (b CreationBatch) Total() int {
	return len(b.Epics) + len(b.Features) + len(b.UserStories) + len(b.Tasks) + len(b.Bugs)
}

// RelationshipRequest declares a parent→child link between two named items.
// Declared at parse time, resolved to remote IDs at creation time.
type RelationshipRequest struct {
	ParentKind ItemKind
	ParentName string
	ChildKind  ItemKind
	ChildName  string
}

// ItemRef identifies an item by kind and name. Used as the key of the
// name→remote-ID map so that identical names under different kinds cannot
// collide.
type ItemRef struct {
	Kind ItemKind
	Name string
}

// CreatedItem is a work item that was successfully created remotely.
type CreatedItem struct {
	// RemoteID is the identifier assigned by the remote platform
	RemoteID string

	Kind   ItemKind
	Title  string
	Fields map[string]string
}

// OrchestrationOutcome is the result of one item-orchestration run. It is
// built incrementally during the run and owned exclusively by the caller
// once the run returns. A partially successful run is a normal, reportable
// result: Created and Failed together always account for every submitted
// item.
type OrchestrationOutcome struct {
	Created []CreatedItem
	Failed  []CreationError

	// RelationshipsLinked counts parent→child links established remotely
	RelationshipsLinked int

	// RelationshipErrors describes links that could not be established,
	// either because an endpoint was never created or the link call failed
	RelationshipErrors []string

	Warnings []string
}
