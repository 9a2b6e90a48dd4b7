package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/erdbridge/erdbridge/platform/go/dataverse"
	"github.com/erdbridge/erdbridge/platform/go/naming"
	"github.com/erdbridge/erdbridge/platform/go/progress"
)

// executor deletes components in strict reverse-dependency order:
// relationships, custom entities, CDM membership (warning only), global
// choices, solution, publisher. Relationship, entity, and solution failures
// are fatal and halt the pass; choice and publisher failures are advisory.
type executor struct {
	gateway  RollbackGateway
	logger   *zap.Logger
	progress progress.Sink
}

type executeInput struct {
	deploymentID string
	solutionInfo SolutionInfo
	options      RollbackOptions
	data         RollbackData
}

// execute returns the pass results together with the manifest slice it
// actually removed. Only removed components enter the rollback history;
// components a halted pass never reached stay eligible for the next pass.
func (e *executor) execute(ctx context.Context, in executeInput) (RollbackResults, RollbackData) {
	results := RollbackResults{}
	removed := RollbackData{}

	if halted := e.deleteRelationships(ctx, in, &results, &removed); halted {
		results.Summary = summarize(results, true)
		return results, removed
	}
	if halted := e.deleteEntities(ctx, in, &results, &removed); halted {
		results.Summary = summarize(results, true)
		return results, removed
	}

	e.reportCDMEntities(in, &results, &removed)
	e.deleteGlobalChoices(ctx, in, &results, &removed)

	if halted := e.deleteSolution(ctx, in, &results); halted {
		results.Summary = summarize(results, true)
		return results, removed
	}

	e.deletePublisher(ctx, in, &results)

	results.Summary = summarize(results, false)
	return results, removed
}

func (e *executor) deleteRelationships(ctx context.Context, in executeInput, results *RollbackResults, removed *RollbackData) (halted bool) {
	if !in.options.Relationships || len(in.data.Relationships) == 0 {
		return false
	}

	e.emit(progress.StageRollbackRelationships, "removing relationships", map[string]any{
		"deploymentId": in.deploymentID,
		"count":        len(in.data.Relationships),
	})

	for _, rel := range in.data.Relationships {
		results.RelationshipsProcessed++

		schemaName := rel.SchemaName
		recorded := schemaName != ""
		if !recorded {
			derived, err := naming.RelationshipSchemaName(in.solutionInfo.Prefix, rel.FromEntity, rel.ToEntity)
			if err != nil {
				results.Errors = append(results.Errors, fmt.Sprintf("relationship %s->%s: derive schema name: %v", rel.FromEntity, rel.ToEntity, err))
				return true
			}
			schemaName = derived
		}

		err := e.gateway.DeleteRelationship(ctx, schemaName)
		if dataverse.IsNotFound(err) && !recorded {
			// Legacy records never captured the created name; the creation
			// path may have used the reversed ordering.
			reversed, derr := naming.RelationshipSchemaName(in.solutionInfo.Prefix, rel.ToEntity, rel.FromEntity)
			if derr == nil {
				err = e.gateway.DeleteRelationship(ctx, reversed)
			}
		}

		switch {
		case err == nil:
			results.RelationshipsDeleted++
			removed.Relationships = append(removed.Relationships, rel)
			e.logger.Info("relationship removed", zap.String("schema_name", schemaName))
		case dataverse.IsNotFound(err):
			results.Warnings = append(results.Warnings, fmt.Sprintf("relationship %s already removed", schemaName))
			removed.Relationships = append(removed.Relationships, rel)
		default:
			// Deleting entities while an association still references them
			// would violate the dependency order, so the pass stops here.
			results.Errors = append(results.Errors, fmt.Sprintf("delete relationship %s: %v", schemaName, err))
			e.logger.Error("relationship deletion failed, halting rollback", zap.String("schema_name", schemaName), zap.Error(err))
			return true
		}
	}

	return false
}

func (e *executor) deleteEntities(ctx context.Context, in executeInput, results *RollbackResults, removed *RollbackData) (halted bool) {
	if !in.options.CustomEntities || len(in.data.CustomEntities) == 0 {
		return false
	}

	e.emit(progress.StageRollbackEntities, "removing custom tables", map[string]any{
		"deploymentId": in.deploymentID,
		"count":        len(in.data.CustomEntities),
	})

	for _, name := range in.data.CustomEntities {
		logicalName, err := naming.LogicalName(in.solutionInfo.Prefix, name)
		if err != nil {
			results.Errors = append(results.Errors, fmt.Sprintf("entity %s: derive logical name: %v", name, err))
			return true
		}

		err = e.gateway.DeleteEntity(ctx, logicalName)
		if dataverse.IsTimeout(err) {
			// Entity deletion regularly outlives the client timeout while the
			// platform finishes the work. One verification read decides.
			exists, checkErr := e.gateway.EntityExists(ctx, logicalName)
			if checkErr == nil && !exists {
				err = nil
			}
		}

		switch {
		case err == nil:
			results.EntitiesDeleted++
			removed.CustomEntities = append(removed.CustomEntities, name)
			e.logger.Info("entity removed", zap.String("logical_name", logicalName))
		case dataverse.IsNotFound(err):
			results.Warnings = append(results.Warnings, fmt.Sprintf("entity %s already removed", logicalName))
			removed.CustomEntities = append(removed.CustomEntities, name)
		default:
			results.Errors = append(results.Errors, fmt.Sprintf("delete entity %s: %v", logicalName, err))
			e.logger.Error("entity deletion failed, halting rollback", zap.String("logical_name", logicalName), zap.Error(err))
			return true
		}
	}

	return false
}

func (e *executor) reportCDMEntities(in executeInput, results *RollbackResults, removed *RollbackData) {
	if !in.options.CDMEntities || len(in.data.CDMEntities) == 0 {
		return
	}

	// The platform offers no API to detach built-in tables from a solution.
	results.Warnings = append(results.Warnings, fmt.Sprintf(
		"built-in tables cannot be removed from the solution via the API; remove manually: %s",
		strings.Join(in.data.CDMEntities, ", "),
	))
	removed.CDMEntities = append(removed.CDMEntities, in.data.CDMEntities...)
}

func (e *executor) deleteGlobalChoices(ctx context.Context, in executeInput, results *RollbackResults, removed *RollbackData) {
	if !in.options.CustomGlobalChoices || len(in.data.GlobalChoicesCreated) == 0 {
		return
	}

	e.emit(progress.StageRollbackChoices, "removing global choices", map[string]any{
		"deploymentId": in.deploymentID,
		"count":        len(in.data.GlobalChoicesCreated),
	})

	// Resolve within the publisher-prefixed subset only, so a same-named
	// choice from another deployment is never touched.
	var prefixed []dataverse.GlobalChoice
	var listErr error
	for _, choice := range in.data.GlobalChoicesCreated {
		id := choice.ID
		if id == "" {
			if prefixed == nil && listErr == nil {
				prefixed, listErr = e.gateway.ListGlobalChoicesByPrefix(ctx, in.solutionInfo.Prefix)
			}
			if listErr != nil {
				results.Warnings = append(results.Warnings, fmt.Sprintf("global choice %s: resolve failed: %v", choice.Name, listErr))
				continue
			}
			id = resolveChoiceID(prefixed, choice)
			if id == "" {
				results.Warnings = append(results.Warnings, fmt.Sprintf("global choice %s not found, skipping", choice.Name))
				removed.GlobalChoicesCreated = append(removed.GlobalChoicesCreated, choice)
				continue
			}
		}

		err := e.gateway.DeleteGlobalChoice(ctx, id)
		switch {
		case err == nil:
			results.GlobalChoicesDeleted++
			removed.GlobalChoicesCreated = append(removed.GlobalChoicesCreated, choice)
			e.logger.Info("global choice removed", zap.String("name", choice.Name))
		case dataverse.IsNotFound(err):
			results.Warnings = append(results.Warnings, fmt.Sprintf("global choice %s already removed", choice.Name))
			removed.GlobalChoicesCreated = append(removed.GlobalChoicesCreated, choice)
		default:
			results.Warnings = append(results.Warnings, fmt.Sprintf("delete global choice %s: %v", choice.Name, err))
		}
	}
}

func (e *executor) deleteSolution(ctx context.Context, in executeInput, results *RollbackResults) (halted bool) {
	if !in.options.Solution {
		return false
	}

	e.emit(progress.StageRollbackSolution, "removing solution", map[string]any{
		"deploymentId": in.deploymentID,
		"solution":     in.solutionInfo.SolutionUniqueName,
	})

	id := in.solutionInfo.SolutionID
	if id == "" {
		solution, err := e.gateway.GetSolution(ctx, in.solutionInfo.SolutionUniqueName)
		if dataverse.IsNotFound(err) {
			results.Warnings = append(results.Warnings, fmt.Sprintf("solution %s already removed", in.solutionInfo.SolutionUniqueName))
			results.SolutionDeleted = true
			return false
		}
		if err != nil {
			results.Errors = append(results.Errors, fmt.Sprintf("resolve solution %s: %v", in.solutionInfo.SolutionUniqueName, err))
			return true
		}
		id = solution.ID
	}

	err := e.gateway.DeleteSolution(ctx, id)
	switch {
	case err == nil:
		results.SolutionDeleted = true
		e.logger.Info("solution removed", zap.String("solution", in.solutionInfo.SolutionUniqueName))
	case dataverse.IsNotFound(err):
		results.Warnings = append(results.Warnings, fmt.Sprintf("solution %s already removed", in.solutionInfo.SolutionUniqueName))
		results.SolutionDeleted = true
	default:
		// Publisher deletion would fail while the solution remains, so stop.
		results.Errors = append(results.Errors, fmt.Sprintf("delete solution %s: %v", in.solutionInfo.SolutionUniqueName, err))
		return true
	}

	return false
}

func (e *executor) deletePublisher(ctx context.Context, in executeInput, results *RollbackResults) {
	if !in.options.Publisher {
		return
	}

	e.emit(progress.StageRollbackPublisher, "removing publisher", map[string]any{
		"deploymentId": in.deploymentID,
		"publisher":    in.solutionInfo.PublisherUniqueName,
	})

	id := in.solutionInfo.PublisherID
	if id == "" {
		publisher, err := e.gateway.GetPublisherByName(ctx, in.solutionInfo.PublisherUniqueName)
		if dataverse.IsNotFound(err) {
			results.Warnings = append(results.Warnings, fmt.Sprintf("publisher %s already removed", in.solutionInfo.PublisherUniqueName))
			results.PublisherDeleted = true
			return
		}
		if err != nil {
			results.Warnings = append(results.Warnings, fmt.Sprintf("resolve publisher %s: %v", in.solutionInfo.PublisherUniqueName, err))
			return
		}
		id = publisher.ID
	}

	err := e.gateway.DeletePublisher(ctx, id)
	switch {
	case err == nil:
		results.PublisherDeleted = true
		e.logger.Info("publisher removed", zap.String("publisher", in.solutionInfo.PublisherUniqueName))
	case dataverse.IsNotFound(err):
		results.Warnings = append(results.Warnings, fmt.Sprintf("publisher %s already removed", in.solutionInfo.PublisherUniqueName))
		results.PublisherDeleted = true
	default:
		// Advisory only; the publisher may be shared or already scheduled for reuse.
		results.Warnings = append(results.Warnings, fmt.Sprintf("delete publisher %s: %v", in.solutionInfo.PublisherUniqueName, err))
	}
}

func (e *executor) emit(stage progress.Stage, message string, context map[string]any) {
	if e.progress != nil {
		e.progress.Publish(progress.Event{Stage: stage, Message: message, Context: context})
	}
}

func resolveChoiceID(prefixed []dataverse.GlobalChoice, record ChoiceRecord) string {
	for _, candidate := range prefixed {
		if record.Name != "" && candidate.Name == record.Name {
			return candidate.ID
		}
		if record.DisplayName != "" && candidate.DisplayName == record.DisplayName {
			return candidate.ID
		}
	}
	return ""
}

func summarize(results RollbackResults, halted bool) string {
	parts := []string{
		fmt.Sprintf("%d relationships", results.RelationshipsDeleted),
		fmt.Sprintf("%d tables", results.EntitiesDeleted),
		fmt.Sprintf("%d global choices", results.GlobalChoicesDeleted),
	}
	summary := "Removed " + strings.Join(parts, ", ")
	if results.SolutionDeleted {
		summary += "; solution removed"
	}
	if results.PublisherDeleted {
		summary += "; publisher removed"
	}
	if len(results.Warnings) > 0 {
		summary += fmt.Sprintf(" (%d warnings)", len(results.Warnings))
	}
	if halted {
		summary += fmt.Sprintf("; halted after %d errors", len(results.Errors))
	}
	return summary
}
