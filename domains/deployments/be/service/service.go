package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/erdbridge/erdbridge/platform/go/naming"
	"github.com/erdbridge/erdbridge/platform/go/progress"
)

// Service orchestrates deployments and rollbacks against the metadata
// platform and records their history.
type Service struct {
	repo          Repository
	provisioner   Provisioner
	entities      EntityBuilder
	relationships RelationshipBuilder
	choices       ChoiceManager
	gateway       RollbackGateway
	logger        *zap.Logger
	progress      progress.Sink
	registry      *rollbackRegistry

	now   func() time.Time
	newID func() string
}

// Config collects the Service collaborators.
type Config struct {
	Repository    Repository
	Provisioner   Provisioner
	Entities      EntityBuilder
	Relationships RelationshipBuilder
	Choices       ChoiceManager
	Gateway       RollbackGateway
	Logger        *zap.Logger
	Progress      progress.Sink
}

// New constructs a Service. All collaborators are required.
func New(cfg Config) *Service {
	if cfg.Repository == nil {
		panic("service: Repository is required")
	}
	if cfg.Provisioner == nil {
		panic("service: Provisioner is required")
	}
	if cfg.Entities == nil {
		panic("service: Entities is required")
	}
	if cfg.Relationships == nil {
		panic("service: Relationships is required")
	}
	if cfg.Choices == nil {
		panic("service: Choices is required")
	}
	if cfg.Gateway == nil {
		panic("service: Gateway is required")
	}
	if cfg.Logger == nil {
		panic("service: Logger is required")
	}
	if cfg.Progress == nil {
		cfg.Progress = progress.NopSink{}
	}

	return &Service{
		repo:          cfg.Repository,
		provisioner:   cfg.Provisioner,
		entities:      cfg.Entities,
		relationships: cfg.Relationships,
		choices:       cfg.Choices,
		gateway:       cfg.Gateway,
		logger:        cfg.Logger,
		progress:      cfg.Progress,
		registry:      newRollbackRegistry(),
		now:           func() time.Time { return time.Now().UTC() },
		newID:         func() string { return uuid.NewString() },
	}
}

// Deploy runs one deployment end to end: ensure publisher and solution, then
// create tables, relationships, and global choices inside the solution.
// Publisher and solution failures abort the run; everything created before a
// later failure is still recorded so rollback can remove it.
func (s *Service) Deploy(ctx context.Context, spec DeploymentSpec) (DeployResult, error) {
	if err := validateSpec(spec); err != nil {
		return DeployResult{}, err
	}

	deploymentID := s.newID()
	logger := s.logger.With(zap.String("deployment_id", deploymentID))

	record := DeploymentRecord{
		DeploymentID: deploymentID,
		Timestamp:    s.now(),
		Status:       StatusFailed,
		Warnings:     append([]string(nil), spec.Warnings...),
	}
	result := DeployResult{DeploymentID: deploymentID}

	s.emit(progress.StageValidating, "validating deployment", map[string]any{
		"deploymentId": deploymentID,
		"entities":     len(spec.Entities),
	})

	s.emit(progress.StagePublisher, "ensuring publisher", map[string]any{
		"deploymentId": deploymentID,
		"publisher":    spec.Publisher.UniqueName,
	})
	publisher, err := s.provisioner.EnsurePublisher(ctx, spec.Publisher)
	if err != nil {
		return s.failDeploy(ctx, logger, record, result, fmt.Errorf("ensure publisher %s: %w", spec.Publisher.UniqueName, err))
	}
	record.SolutionInfo = SolutionInfo{
		PublisherID:         publisher.ID,
		PublisherUniqueName: publisher.UniqueName,
		Prefix:              publisher.Prefix,
	}

	s.emit(progress.StageSolution, "ensuring solution", map[string]any{
		"deploymentId": deploymentID,
		"solution":     spec.Solution.UniqueName,
	})
	solution, err := s.provisioner.EnsureSolution(ctx, spec.Solution, publisher)
	if err != nil {
		return s.failDeploy(ctx, logger, record, result, fmt.Errorf("ensure solution %s: %w", spec.Solution.UniqueName, err))
	}
	record.SolutionInfo.SolutionID = solution.ID
	record.SolutionInfo.SolutionUniqueName = solution.UniqueName

	prefix := publisher.Prefix

	s.emit(progress.StageEntities, "creating tables", map[string]any{
		"deploymentId": deploymentID,
		"count":        len(spec.Entities),
	})
	for _, desc := range spec.Entities {
		if _, isCDM := spec.CDMEntities[desc.Name]; isCDM {
			record.RollbackData.CDMEntities = append(record.RollbackData.CDMEntities, desc.Name)
			continue
		}

		entityResult, err := s.entities.CreateEntity(ctx, desc, prefix, solution.UniqueName)
		if err != nil {
			record.Errors = append(record.Errors, fmt.Sprintf("create table %s: %v", desc.Name, err))
			logger.Error("table creation failed", zap.String("entity", desc.Name), zap.Error(err))
			continue
		}

		record.RollbackData.CustomEntities = append(record.RollbackData.CustomEntities, desc.Name)
		record.Warnings = append(record.Warnings, entityResult.Warnings...)
		result.EntitiesCreated++
		logger.Info("table created", zap.String("logical_name", entityResult.LogicalName))
	}

	if len(spec.Relationships) > 0 {
		s.emit(progress.StageRelationships, "creating relationships", map[string]any{
			"deploymentId": deploymentID,
			"count":        len(spec.Relationships),
		})
		outcome, err := s.relationships.CreateRelationships(ctx, spec.Relationships, RelationshipBatchOptions{
			PublisherPrefix:    prefix,
			CDMEntityMap:       spec.CDMEntities,
			SolutionUniqueName: solution.UniqueName,
		})
		if err != nil {
			record.Errors = append(record.Errors, fmt.Sprintf("relationship batch: %v", err))
		}
		record.RollbackData.Relationships = append(record.RollbackData.Relationships, outcome.Created...)
		result.RelationshipsCreated = len(outcome.Created)
		result.RelationshipsFailed = len(outcome.Failed)
		for _, failed := range outcome.Failed {
			record.Errors = append(record.Errors, fmt.Sprintf("relationship %s->%s: %s", failed.FromEntity, failed.ToEntity, failed.Reason))
		}
	}

	if len(spec.GlobalChoices) > 0 {
		s.emit(progress.StageGlobalChoices, "ensuring global choices", map[string]any{
			"deploymentId": deploymentID,
			"count":        len(spec.GlobalChoices),
		})
		outcome, err := s.choices.EnsureGlobalChoices(ctx, spec.GlobalChoices, prefix, solution.UniqueName)
		if err != nil {
			record.Errors = append(record.Errors, fmt.Sprintf("global choices: %v", err))
		}
		// Only choices created by this deployment enter the manifest; reused
		// ones belong to whoever created them.
		record.RollbackData.GlobalChoicesCreated = append(record.RollbackData.GlobalChoicesCreated, outcome.Created...)
		record.Warnings = append(record.Warnings, outcome.Warnings...)
		result.GlobalChoicesCreated = len(outcome.Created)
	}

	// Reaching this point means no fatal stage failed: the publisher and
	// solution exist. Per-item failures stay in Errors without flipping the
	// deployment to failed.
	record.Status = StatusSuccess
	result.Success = true
	result.Errors = record.Errors
	result.Warnings = record.Warnings

	if _, err := s.repo.Record(ctx, record); err != nil {
		// The remote objects exist either way; surface the record loss loudly.
		logger.Error("recording deployment failed", zap.Error(err))
		result.Warnings = append(result.Warnings, fmt.Sprintf("deployment completed but history was not recorded: %v", err))
	}

	s.emit(progress.StageCompleted, "deployment finished", map[string]any{
		"deploymentId": deploymentID,
		"errors":       len(record.Errors),
	})
	return result, nil
}

// failDeploy records a deployment aborted before any schema object work.
func (s *Service) failDeploy(ctx context.Context, logger *zap.Logger, record DeploymentRecord, result DeployResult, cause error) (DeployResult, error) {
	logger.Error("deployment aborted", zap.Error(cause))
	record.Errors = append(record.Errors, cause.Error())
	record.Status = StatusFailed
	if _, err := s.repo.Record(ctx, record); err != nil {
		logger.Error("recording failed deployment", zap.Error(err))
	}
	s.emit(progress.StageFailed, "deployment aborted", map[string]any{
		"deploymentId": record.DeploymentID,
		"error":        cause.Error(),
	})
	result.Errors = record.Errors
	return result, cause
}

// Get returns one deployment record.
func (s *Service) Get(ctx context.Context, deploymentID string) (DeploymentRecord, error) {
	return s.repo.Get(ctx, deploymentID)
}

// List returns deployment records newest first, plus the total count.
func (s *Service) List(ctx context.Context, limit, offset int) ([]DeploymentRecord, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, limit, offset)
}

// ActiveRollbacks returns in-flight rollback passes, oldest first.
func (s *Service) ActiveRollbacks() []ActiveRollback {
	return s.registry.list()
}

func (s *Service) emit(stage progress.Stage, message string, context map[string]any) {
	s.progress.Publish(progress.Event{Stage: stage, Message: message, Context: context, Timestamp: s.now()})
}

func validateSpec(spec DeploymentSpec) error {
	verr := &ValidationError{}

	if err := naming.ValidatePrefix(spec.Publisher.Prefix); err != nil {
		verr.add("publisher.prefix", err.Error())
	}
	if strings.TrimSpace(spec.Publisher.UniqueName) == "" {
		verr.add("publisher.uniqueName", "is required")
	}
	if strings.TrimSpace(spec.Solution.UniqueName) == "" {
		verr.add("solution.uniqueName", "is required")
	}
	if len(spec.Entities) == 0 {
		verr.add("entities", "at least one table is required")
	}

	seen := make(map[string]struct{}, len(spec.Entities))
	for i, entity := range spec.Entities {
		field := fmt.Sprintf("entities[%d]", i)
		if _, err := naming.Safe(entity.Name); err != nil {
			verr.add(field+".name", err.Error())
			continue
		}
		if _, dup := seen[entity.Name]; dup {
			verr.add(field+".name", "duplicate table name")
		}
		seen[entity.Name] = struct{}{}
	}

	for i, rel := range spec.Relationships {
		field := fmt.Sprintf("relationships[%d]", i)
		if _, known := seen[rel.FromEntity]; !known {
			if _, cdm := spec.CDMEntities[rel.FromEntity]; !cdm {
				verr.add(field+".fromEntity", fmt.Sprintf("unknown table %q", rel.FromEntity))
			}
		}
		if _, known := seen[rel.ToEntity]; !known {
			if _, cdm := spec.CDMEntities[rel.ToEntity]; !cdm {
				verr.add(field+".toEntity", fmt.Sprintf("unknown table %q", rel.ToEntity))
			}
		}
	}

	for i, choice := range spec.GlobalChoices {
		field := fmt.Sprintf("globalChoices[%d]", i)
		if _, err := naming.Safe(choice.Name); err != nil {
			verr.add(field+".name", err.Error())
		}
		if len(choice.Options) == 0 {
			verr.add(field+".options", "at least one option is required")
		}
	}

	if verr.empty() {
		return nil
	}
	return verr
}
