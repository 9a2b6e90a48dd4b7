package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/erdbridge/erdbridge/platform/go/progress"
)

// Rollback removes components of a recorded deployment. Each call is one
// pass: options are normalized for dependency consistency, components already
// removed by earlier passes are filtered out, and the pass is appended to the
// record's rollback history.
func (s *Service) Rollback(ctx context.Context, req RollbackRequest) (RollbackResponse, error) {
	record, err := s.repo.Get(ctx, req.DeploymentID)
	if err != nil {
		return RollbackResponse{}, err
	}

	if err := validateRollback(record, req.Options); err != nil {
		return RollbackResponse{}, err
	}
	if s.registry.isDeploymentBusy(req.DeploymentID) {
		verr := &ValidationError{}
		verr.add("deploymentId", "a rollback is already running for this deployment")
		return RollbackResponse{}, verr
	}

	requested := req.Options.Normalize()
	effective, remaining := FilterRemainingComponents(record.RollbackData, record.Rollbacks, requested)

	rollbackID := s.newID()
	logger := s.logger.With(
		zap.String("deployment_id", req.DeploymentID),
		zap.String("rollback_id", rollbackID),
	)

	if remaining.IsEmpty() && !effective.Solution && !effective.Publisher {
		// Everything selected was removed by an earlier pass; record a no-op
		// entry so the history shows the attempt.
		logger.Info("nothing left to roll back")
		results := RollbackResults{Summary: "nothing to roll back; all selected components were already removed"}
		entry := RollbackEntry{
			RollbackID: rollbackID,
			Timestamp:  s.now(),
			Options:    effective,
			Data:       remaining,
			Results:    results,
		}
		record.Rollbacks = append(record.Rollbacks, entry)
		record.Status = s.statusAfterRollback(record)
		if _, err := s.repo.Update(ctx, record); err != nil {
			return RollbackResponse{}, fmt.Errorf("update deployment record: %w", err)
		}
		return RollbackResponse{
			Status:     record.Status,
			RollbackID: rollbackID,
			Results:    results,
			Summary:    results.Summary,
		}, nil
	}

	s.registry.insert(ActiveRollback{
		RollbackID:   rollbackID,
		DeploymentID: req.DeploymentID,
		Status:       "running",
		StartTime:    s.now(),
	})
	defer s.registry.remove(rollbackID)

	logger.Info("rollback started",
		zap.Int("relationships", len(remaining.Relationships)),
		zap.Int("entities", len(remaining.CustomEntities)),
		zap.Int("global_choices", len(remaining.GlobalChoicesCreated)),
	)

	exec := &executor{gateway: s.gateway, logger: logger, progress: s.progress}
	results, removed := exec.execute(ctx, executeInput{
		deploymentID: req.DeploymentID,
		solutionInfo: record.SolutionInfo,
		options:      effective,
		data:         remaining,
	})

	// Only what this pass actually removed enters the history: a halted pass
	// leaves everything it never reached eligible for the next one.
	entry := RollbackEntry{
		RollbackID: rollbackID,
		Timestamp:  s.now(),
		Options:    effective,
		Data:       removed,
		Results:    results,
	}
	record.Rollbacks = append(record.Rollbacks, entry)
	record.Status = s.statusAfterRollback(record)

	if _, err := s.repo.Update(ctx, record); err != nil {
		logger.Error("updating deployment record after rollback", zap.Error(err))
		return RollbackResponse{}, fmt.Errorf("rollback executed but record update failed: %w", err)
	}

	s.emit(progress.StageRollbackCompleted, "rollback finished", map[string]any{
		"deploymentId": req.DeploymentID,
		"rollbackId":   rollbackID,
		"errors":       len(results.Errors),
	})
	logger.Info("rollback finished",
		zap.String("status", string(record.Status)),
		zap.Int("errors", len(results.Errors)),
	)

	return RollbackResponse{
		Status:     record.Status,
		RollbackID: rollbackID,
		Results:    results,
		Summary:    results.Summary,
	}, nil
}

// statusAfterRollback derives the record status from the full rollback
// history: rolled-back once nothing remains, modified otherwise.
func (s *Service) statusAfterRollback(record DeploymentRecord) Status {
	_, remaining := FilterRemainingComponents(record.RollbackData, record.Rollbacks, AllRollbackOptions())
	solutionGone := false
	publisherGone := false
	for _, entry := range record.Rollbacks {
		if entry.Results.SolutionDeleted {
			solutionGone = true
		}
		if entry.Results.PublisherDeleted {
			publisherGone = true
		}
	}
	if remaining.IsEmpty() && solutionGone && publisherGone {
		return StatusRolledBack
	}
	return StatusModified
}

func validateRollback(record DeploymentRecord, opts RollbackOptions) error {
	verr := &ValidationError{}

	if !opts.Relationships && !opts.CustomEntities && !opts.CDMEntities &&
		!opts.CustomGlobalChoices && !opts.Solution && !opts.Publisher {
		verr.add("options", "at least one component category must be selected")
	}
	if record.RollbackData.IsEmpty() && len(record.Rollbacks) == 0 && record.SolutionInfo.SolutionUniqueName == "" {
		verr.add("deploymentId", "deployment has no recorded components to roll back")
	}

	if verr.empty() {
		return nil
	}
	return verr
}
