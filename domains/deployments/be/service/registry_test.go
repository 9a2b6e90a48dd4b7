package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryTracksActivePasses(t *testing.T) {
	t.Parallel()

	registry := newRollbackRegistry()
	base := time.Date(2026, 5, 12, 10, 0, 0, 0, time.UTC)

	registry.insert(ActiveRollback{RollbackID: "rb-2", DeploymentID: "dep-2", Status: "running", StartTime: base.Add(time.Minute)})
	registry.insert(ActiveRollback{RollbackID: "rb-1", DeploymentID: "dep-1", Status: "running", StartTime: base})

	entries := registry.list()
	require.Len(t, entries, 2)
	assert.Equal(t, "rb-1", entries[0].RollbackID, "oldest first")
	assert.Equal(t, "rb-2", entries[1].RollbackID)

	entry, ok := registry.get("rb-1")
	require.True(t, ok)
	assert.Equal(t, "dep-1", entry.DeploymentID)

	assert.True(t, registry.isDeploymentBusy("dep-1"))
	assert.False(t, registry.isDeploymentBusy("dep-3"))

	registry.remove("rb-1")
	_, ok = registry.get("rb-1")
	assert.False(t, ok)
	assert.False(t, registry.isDeploymentBusy("dep-1"))
	assert.Len(t, registry.list(), 1)
}
