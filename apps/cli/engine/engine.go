// Package engine wires a deployment service for CLI commands from
// environment configuration.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	deploymentsprov "github.com/erdbridge/erdbridge/domains/deployments/be/provisioning"
	deploymentsrepo "github.com/erdbridge/erdbridge/domains/deployments/be/repo"
	deploymentsservice "github.com/erdbridge/erdbridge/domains/deployments/be/service"
	"github.com/erdbridge/erdbridge/platform/go/dataverse"
	platformlogging "github.com/erdbridge/erdbridge/platform/go/logging"
	"github.com/erdbridge/erdbridge/platform/go/persistence"
	"github.com/erdbridge/erdbridge/platform/go/progress"
)

// Config is the CLI's environment configuration.
type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"warn"`

	DataverseURL        string        `env:"DATAVERSE_URL,required"`
	DataverseToken      string        `env:"DATAVERSE_TOKEN,required"`
	CallTimeout         time.Duration `env:"DATAVERSE_CALL_TIMEOUT" envDefault:"30s"`
	DeleteEntityTimeout time.Duration `env:"DATAVERSE_DELETE_ENTITY_TIMEOUT" envDefault:"2m"`

	HistoryBackend string `env:"HISTORY_BACKEND" envDefault:"postgres"` // postgres | memory
	DatabaseURL    string `env:"DATABASE_URL"`
}

// Engine bundles the wired service with the resources it owns.
type Engine struct {
	Service *deploymentsservice.Service
	Logger  *zap.Logger

	pool *pgxpool.Pool
}

// New reads the environment and wires a ready service. The progress sink
// receives stage events while operations run.
func New(ctx context.Context, sink progress.Sink) (*Engine, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "cli",
		Level:     cfg.LogLevel,
	})
	if err != nil {
		return nil, fmt.Errorf("init zap logger: %w", err)
	}

	client, err := dataverse.NewClient(dataverse.Config{
		BaseURL:             cfg.DataverseURL,
		Tokens:              dataverse.StaticToken(cfg.DataverseToken),
		Logger:              logger,
		CallTimeout:         cfg.CallTimeout,
		DeleteEntityTimeout: cfg.DeleteEntityTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("init dataverse client: %w", err)
	}

	e := &Engine{Logger: logger}

	repository, pool, err := buildRepository(ctx, cfg)
	if err != nil {
		return nil, err
	}
	e.pool = pool

	if sink == nil {
		sink = progress.NopSink{}
	}

	e.Service = deploymentsservice.New(deploymentsservice.Config{
		Repository:    repository,
		Provisioner:   deploymentsprov.NewProvisioner(client, logger),
		Entities:      deploymentsprov.NewEntityBuilder(client, logger),
		Relationships: deploymentsprov.NewRelationshipBuilder(client, logger),
		Choices:       deploymentsprov.NewChoiceManager(client, logger),
		Gateway:       client,
		Logger:        logger,
		Progress:      sink,
	})
	return e, nil
}

// Close releases the engine's resources.
func (e *Engine) Close() {
	if e.pool != nil {
		persistence.ClosePool(e.pool)
	}
	_ = e.Logger.Sync()
}

// History gives read commands the deployment history without a platform
// connection; listing records must not require Dataverse credentials.
type History struct {
	Repo deploymentsservice.Repository

	pool *pgxpool.Pool
}

// HistoryConfig is the subset of the environment history commands need.
type HistoryConfig struct {
	HistoryBackend string `env:"HISTORY_BACKEND" envDefault:"postgres"`
	DatabaseURL    string `env:"DATABASE_URL"`
}

// NewHistory wires the history repository alone.
func NewHistory(ctx context.Context) (*History, error) {
	var cfg HistoryConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	repository, pool, err := buildRepository(ctx, Config{
		HistoryBackend: cfg.HistoryBackend,
		DatabaseURL:    cfg.DatabaseURL,
	})
	if err != nil {
		return nil, err
	}
	return &History{Repo: repository, pool: pool}, nil
}

// Close releases the history store's resources.
func (h *History) Close() {
	if h.pool != nil {
		persistence.ClosePool(h.pool)
	}
}

func buildRepository(ctx context.Context, cfg Config) (deploymentsservice.Repository, *pgxpool.Pool, error) {
	switch cfg.HistoryBackend {
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, nil, fmt.Errorf("DATABASE_URL is required when HISTORY_BACKEND=postgres")
		}
		pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: cfg.DatabaseURL})
		if err != nil {
			return nil, nil, fmt.Errorf("init postgres pool: %w", err)
		}
		store, err := persistence.NewDeploymentStore(ctx, pool)
		if err != nil {
			persistence.ClosePool(pool)
			return nil, nil, fmt.Errorf("init deployment store: %w", err)
		}
		return deploymentsrepo.NewPostgres(store), pool, nil
	case "memory":
		return deploymentsrepo.NewMemory(), nil, nil
	default:
		return nil, nil, fmt.Errorf("invalid HISTORY_BACKEND %q (use postgres or memory)", cfg.HistoryBackend)
	}
}
