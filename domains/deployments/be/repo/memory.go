// Package repo provides the deployment history repositories: an in-memory one
// for tests and single-process use, and a Postgres-backed one for anything
// that must survive a restart.
package repo

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/erdbridge/erdbridge/domains/deployments/be/service"
)

// Memory is a mutex-guarded in-process repository.
type Memory struct {
	mu      sync.RWMutex
	records map[string]service.DeploymentRecord
}

// NewMemory constructs an empty Memory repository.
func NewMemory() *Memory {
	return &Memory{records: make(map[string]service.DeploymentRecord)}
}

func (m *Memory) Record(_ context.Context, record service.DeploymentRecord) (service.DeploymentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[record.DeploymentID]; exists {
		return service.DeploymentRecord{}, service.ErrDeploymentConflict
	}
	m.records[record.DeploymentID] = cloneRecord(record)
	return record, nil
}

func (m *Memory) Get(_ context.Context, deploymentID string) (service.DeploymentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.records[deploymentID]
	if !ok {
		return service.DeploymentRecord{}, service.ErrDeploymentNotFound
	}
	return cloneRecord(record), nil
}

func (m *Memory) Update(_ context.Context, record service.DeploymentRecord) (service.DeploymentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[record.DeploymentID]; !exists {
		return service.DeploymentRecord{}, service.ErrDeploymentNotFound
	}
	m.records[record.DeploymentID] = cloneRecord(record)
	return record, nil
}

func (m *Memory) List(_ context.Context, limit, offset int) ([]service.DeploymentRecord, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := make([]service.DeploymentRecord, 0, len(m.records))
	for _, record := range m.records {
		all = append(all, cloneRecord(record))
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].Timestamp.After(all[j].Timestamp)
	})

	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, total, nil
}

// cloneRecord deep-copies through JSON so callers never share slices with the
// stored copy.
func cloneRecord(record service.DeploymentRecord) service.DeploymentRecord {
	raw, err := json.Marshal(record)
	if err != nil {
		return record
	}
	var out service.DeploymentRecord
	if err := json.Unmarshal(raw, &out); err != nil {
		return record
	}
	return out
}

var _ service.Repository = (*Memory)(nil)
