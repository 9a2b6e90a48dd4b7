package service

import (
	"sort"
	"sync"
	"time"
)

// ActiveRollback is one in-flight rollback pass visible to status queries.
type ActiveRollback struct {
	RollbackID   string    `json:"rollbackId"`
	DeploymentID string    `json:"deploymentId"`
	Status       string    `json:"status"`
	StartTime    time.Time `json:"startTime"`
}

// rollbackRegistry tracks in-flight rollback passes. Entries exist only for
// the duration of a pass; completed passes live in the deployment record.
type rollbackRegistry struct {
	mu     sync.RWMutex
	active map[string]ActiveRollback
}

func newRollbackRegistry() *rollbackRegistry {
	return &rollbackRegistry{active: make(map[string]ActiveRollback)}
}

func (r *rollbackRegistry) insert(entry ActiveRollback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[entry.RollbackID] = entry
}

func (r *rollbackRegistry) remove(rollbackID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, rollbackID)
}

func (r *rollbackRegistry) get(rollbackID string) (ActiveRollback, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.active[rollbackID]
	return entry, ok
}

// isDeploymentBusy reports whether a pass is already running for the
// deployment; concurrent passes over one manifest would race each other.
func (r *rollbackRegistry) isDeploymentBusy(deploymentID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, entry := range r.active {
		if entry.DeploymentID == deploymentID {
			return true
		}
	}
	return false
}

func (r *rollbackRegistry) list() []ActiveRollback {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]ActiveRollback, 0, len(r.active))
	for _, entry := range r.active {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].StartTime.Before(entries[j].StartTime)
	})
	return entries
}
