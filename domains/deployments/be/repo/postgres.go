package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/erdbridge/erdbridge/domains/deployments/be/service"
	"github.com/erdbridge/erdbridge/platform/go/persistence"
)

// Postgres persists deployment records through the shared deployment store.
type Postgres struct {
	store *persistence.DeploymentStore
}

// NewPostgres wraps an initialized store.
func NewPostgres(store *persistence.DeploymentStore) *Postgres {
	if store == nil {
		panic("repo: store is required")
	}
	return &Postgres{store: store}
}

func (p *Postgres) Record(ctx context.Context, record service.DeploymentRecord) (service.DeploymentRecord, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return service.DeploymentRecord{}, fmt.Errorf("encode deployment record: %w", err)
	}

	row, err := p.store.Insert(ctx, persistence.DeploymentRow{
		DeploymentID: record.DeploymentID,
		Status:       string(record.Status),
		Record:       raw,
	})
	if err != nil {
		return service.DeploymentRecord{}, mapStoreError(err)
	}
	return decodeRecord(row)
}

func (p *Postgres) Get(ctx context.Context, deploymentID string) (service.DeploymentRecord, error) {
	row, err := p.store.Get(ctx, deploymentID)
	if err != nil {
		return service.DeploymentRecord{}, mapStoreError(err)
	}
	return decodeRecord(row)
}

func (p *Postgres) Update(ctx context.Context, record service.DeploymentRecord) (service.DeploymentRecord, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return service.DeploymentRecord{}, fmt.Errorf("encode deployment record: %w", err)
	}

	row, err := p.store.Update(ctx, record.DeploymentID, string(record.Status), raw)
	if err != nil {
		return service.DeploymentRecord{}, mapStoreError(err)
	}
	return decodeRecord(row)
}

func (p *Postgres) List(ctx context.Context, limit, offset int) ([]service.DeploymentRecord, int, error) {
	rows, total, err := p.store.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, mapStoreError(err)
	}

	records := make([]service.DeploymentRecord, 0, len(rows))
	for _, row := range rows {
		record, err := decodeRecord(row)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, record)
	}
	return records, total, nil
}

func decodeRecord(row persistence.DeploymentRow) (service.DeploymentRecord, error) {
	var record service.DeploymentRecord
	if err := json.Unmarshal(row.Record, &record); err != nil {
		return service.DeploymentRecord{}, fmt.Errorf("decode deployment record %s: %w", row.DeploymentID, err)
	}
	return record, nil
}

func mapStoreError(err error) error {
	switch {
	case errors.Is(err, persistence.ErrDeploymentNotFound):
		return service.ErrDeploymentNotFound
	case errors.Is(err, persistence.ErrDeploymentConflict):
		return service.ErrDeploymentConflict
	default:
		return err
	}
}

var _ service.Repository = (*Postgres)(nil)
