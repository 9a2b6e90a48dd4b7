package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	sqlassets "github.com/erdbridge/erdbridge/database"
)

// Store-level error sentinel values.
var (
	ErrDeploymentNotFound = errors.New("deployment record not found")
	ErrDeploymentConflict = errors.New("deployment record already exists")
)

// DeploymentRow is the persisted shape of one deployment history entry. The
// full record (manifest, rollback history) travels as a JSON document; status
// is lifted into its own column for filtering.
type DeploymentRow struct {
	DeploymentID string
	Status       string
	Record       []byte
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DeploymentStore persists deployment records in Postgres.
type DeploymentStore struct {
	pool *pgxpool.Pool
}

// NewDeploymentStore applies the deployments DDL and returns a ready store.
func NewDeploymentStore(ctx context.Context, pool *pgxpool.Pool) (*DeploymentStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	if _, err := pool.Exec(ctx, sqlassets.DeploymentsSQL); err != nil {
		return nil, fmt.Errorf("apply deployments schema: %w", err)
	}
	return &DeploymentStore{pool: pool}, nil
}

// Insert stores a new deployment record.
func (s *DeploymentStore) Insert(ctx context.Context, row DeploymentRow) (DeploymentRow, error) {
	const query = `
		INSERT INTO deployments (deployment_id, status, record)
		VALUES ($1, $2, $3)
		ON CONFLICT (deployment_id) DO NOTHING
		RETURNING deployment_id, status, record, created_at, updated_at`

	out, err := scanDeployment(s.pool.QueryRow(ctx, query, row.DeploymentID, row.Status, row.Record))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DeploymentRow{}, ErrDeploymentConflict
		}
		return DeploymentRow{}, fmt.Errorf("insert deployment: %w", err)
	}
	return out, nil
}

// Get fetches one deployment record by id.
func (s *DeploymentStore) Get(ctx context.Context, deploymentID string) (DeploymentRow, error) {
	const query = `
		SELECT deployment_id, status, record, created_at, updated_at
		FROM deployments
		WHERE deployment_id = $1`

	out, err := scanDeployment(s.pool.QueryRow(ctx, query, deploymentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DeploymentRow{}, ErrDeploymentNotFound
		}
		return DeploymentRow{}, fmt.Errorf("get deployment: %w", err)
	}
	return out, nil
}

// Update replaces the status and record document of an existing entry.
func (s *DeploymentStore) Update(ctx context.Context, deploymentID, status string, record []byte) (DeploymentRow, error) {
	const query = `
		UPDATE deployments
		SET status = $2, record = $3, updated_at = now()
		WHERE deployment_id = $1
		RETURNING deployment_id, status, record, created_at, updated_at`

	out, err := scanDeployment(s.pool.QueryRow(ctx, query, deploymentID, status, record))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DeploymentRow{}, ErrDeploymentNotFound
		}
		return DeploymentRow{}, fmt.Errorf("update deployment: %w", err)
	}
	return out, nil
}

// List returns records newest-first along with the total count.
func (s *DeploymentStore) List(ctx context.Context, limit, offset int) ([]DeploymentRow, int, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	const query = `
		SELECT deployment_id, status, record, created_at, updated_at
		FROM deployments
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := s.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list deployments: %w", err)
	}
	defer rows.Close()

	var out []DeploymentRow
	for rows.Next() {
		row, err := scanDeployment(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan deployment: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate deployments: %w", err)
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM deployments`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count deployments: %w", err)
	}

	return out, total, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDeployment(scanner rowScanner) (DeploymentRow, error) {
	var row DeploymentRow
	err := scanner.Scan(&row.DeploymentID, &row.Status, &row.Record, &row.CreatedAt, &row.UpdatedAt)
	return row, err
}
