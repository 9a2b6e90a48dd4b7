package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	deploymentshandler "github.com/erdbridge/erdbridge/domains/deployments/be/handler"
	deploymentsprov "github.com/erdbridge/erdbridge/domains/deployments/be/provisioning"
	deploymentsrepo "github.com/erdbridge/erdbridge/domains/deployments/be/repo"
	deploymentsservice "github.com/erdbridge/erdbridge/domains/deployments/be/service"
	"github.com/erdbridge/erdbridge/platform/go/dataverse"
	platformlogging "github.com/erdbridge/erdbridge/platform/go/logging"
	platformmiddleware "github.com/erdbridge/erdbridge/platform/go/middleware"
	"github.com/erdbridge/erdbridge/platform/go/persistence"
	"github.com/erdbridge/erdbridge/platform/go/progress"
)

type config struct {
	Port            string        `env:"PORT" envDefault:"3000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15m"` // deployments are long-running
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`

	DataverseURL        string        `env:"DATAVERSE_URL,required"`
	DataverseToken      string        `env:"DATAVERSE_TOKEN,required"`
	CallTimeout         time.Duration `env:"DATAVERSE_CALL_TIMEOUT" envDefault:"30s"`
	DeleteEntityTimeout time.Duration `env:"DATAVERSE_DELETE_ENTITY_TIMEOUT" envDefault:"2m"`

	HistoryBackend string `env:"HISTORY_BACKEND" envDefault:"postgres"` // postgres | memory
	DatabaseURL    string `env:"DATABASE_URL"`                          // required when HISTORY_BACKEND=postgres
}

func main() {
	ctx := context.Background()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "api-server",
		Level:     cfg.LogLevel,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	client, err := dataverse.NewClient(dataverse.Config{
		BaseURL:             cfg.DataverseURL,
		Tokens:              dataverse.StaticToken(cfg.DataverseToken),
		Logger:              logger,
		CallTimeout:         cfg.CallTimeout,
		DeleteEntityTimeout: cfg.DeleteEntityTimeout,
		Metrics:             dataverse.NewMetrics(registry),
	})
	if err != nil {
		logger.Fatal("init dataverse client", zap.Error(err))
	}

	var repository deploymentsservice.Repository
	switch cfg.HistoryBackend {
	case "postgres":
		if cfg.DatabaseURL == "" {
			logger.Fatal("database url required when HISTORY_BACKEND=postgres")
		}
		pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: cfg.DatabaseURL})
		if err != nil {
			logger.Fatal("init postgres pool", zap.Error(err))
		}
		defer persistence.ClosePool(pool)

		store, err := persistence.NewDeploymentStore(ctx, pool)
		if err != nil {
			logger.Fatal("init deployment store", zap.Error(err))
		}
		repository = deploymentsrepo.NewPostgres(store)
	case "memory":
		logger.Warn("using in-memory deployment history; records are lost on restart")
		repository = deploymentsrepo.NewMemory()
	default:
		logger.Fatal("invalid HISTORY_BACKEND (use postgres or memory)", zap.String("backend", cfg.HistoryBackend))
	}

	broker := progress.NewBroker()
	events := broker.Subscribe()
	defer broker.Unsubscribe(events)
	go func() {
		for event := range events {
			logger.Info("progress",
				zap.String("stage", string(event.Stage)),
				zap.String("message", event.Message),
				zap.Any("context", event.Context),
			)
		}
	}()
	svc := deploymentsservice.New(deploymentsservice.Config{
		Repository:    repository,
		Provisioner:   deploymentsprov.NewProvisioner(client, logger),
		Entities:      deploymentsprov.NewEntityBuilder(client, logger),
		Relationships: deploymentsprov.NewRelationshipBuilder(client, logger),
		Choices:       deploymentsprov.NewChoiceManager(client, logger),
		Gateway:       client,
		Logger:        logger,
		Progress:      broker,
	})
	httpHandler := deploymentshandler.New(svc, logger)

	rootRouter := chi.NewRouter()
	rootRouter.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		chimw.Timeout(cfg.RequestTimeout),
		platformmiddleware.DefaultCORS(),
	)
	rootRouter.Use(platformlogging.RequestLogger(logger))

	rootRouter.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	apiRouter := chi.NewRouter()
	httpHandler.Routes(apiRouter)
	rootRouter.Mount("/api/v1", apiRouter)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      rootRouter,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.RequestTimeout + time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("starting api server", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
