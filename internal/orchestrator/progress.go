package orchestrator

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/provisio/provisio/pkg/models"
)

// ProgressRegistry holds the pollable progress record of every operation
// started in this process. Records are never evicted and never persisted:
// the registry lives and dies with the process.
//
// All access goes through the registry's mutex. Progress records handed out
// by Get are copies, so callers can read them without holding any lock.
type ProgressRegistry struct {
	mu  sync.RWMutex
	ops map[string]*models.OperationProgress
}

// NewProgressRegistry creates an empty registry.
func NewProgressRegistry() *ProgressRegistry {
	return &ProgressRegistry{
		ops: make(map[string]*models.OperationProgress),
	}
}

// NewOperationID generates an operation identifier of the form
// prefix_timestamp_random.
func NewOperationID(prefix string) string {
	random := strings.Split(uuid.NewString(), "-")[0]
	return fmt.Sprintf("%s_%d_%s", prefix, time.Now().UnixMilli(), random)
}

// Begin registers a new operation and returns its generated id.
func (r *ProgressRegistry) Begin(prefix string, totalSteps int) string {
	id := NewOperationID(prefix)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.ops[id] = &models.OperationProgress{
		OperationID: id,
		Status:      models.StatusStarted,
		StartedAt:   time.Now(),
		TotalSteps:  totalSteps,
	}
	return id
}

// Append adds a log entry to an operation and moves it to running. Appends
// to a terminal operation are dropped.
func (r *ProgressRegistry) Append(id, phase, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	op, ok := r.ops[id]
	if !ok || op.Status.Terminal() {
		return
	}

	op.Status = models.StatusRunning
	op.Logs = append(op.Logs, models.ProgressEntry{
		Timestamp: time.Now(),
		Phase:     phase,
		Message:   message,
	})
}

// AddCompletedSteps increments an operation's completed-step counter.
func (r *ProgressRegistry) AddCompletedSteps(id string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	op, ok := r.ops[id]
	if !ok || op.Status.Terminal() {
		return
	}
	op.CompletedSteps += n
}

// SetTotalSteps replaces an operation's total-step count, used once the
// template has been resolved and real counts are known.
func (r *ProgressRegistry) SetTotalSteps(id string, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	op, ok := r.ops[id]
	if !ok || op.Status.Terminal() {
		return
	}
	op.TotalSteps = total
}

// Complete moves an operation into a terminal status and stamps
// CompletedAt. Once terminal, the only permitted write ever applied was
// this timestamp; later Complete calls are ignored.
func (r *ProgressRegistry) Complete(id string, status models.OperationStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()

	op, ok := r.ops[id]
	if !ok || op.Status.Terminal() {
		return
	}

	now := time.Now()
	op.Status = status
	op.CompletedAt = &now
}

// Get returns a copy of an operation's progress record. The second return
// value is false when the id is unknown.
func (r *ProgressRegistry) Get(id string) (models.OperationProgress, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	op, ok := r.ops[id]
	if !ok {
		return models.OperationProgress{}, false
	}

	snapshot := *op
	snapshot.Logs = make([]models.ProgressEntry, len(op.Logs))
	copy(snapshot.Logs, op.Logs)
	if op.CompletedAt != nil {
		completed := *op.CompletedAt
		snapshot.CompletedAt = &completed
	}
	return snapshot, true
}
