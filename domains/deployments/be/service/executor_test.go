package service

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/erdbridge/erdbridge/platform/go/dataverse"
	"github.com/erdbridge/erdbridge/platform/go/progress"
)

func notFoundErr(op string) error {
	return &dataverse.APIError{Op: op, StatusCode: http.StatusNotFound, Kind: dataverse.KindNotFound, Message: "Not Found"}
}

func fatalErr(op string) error {
	return &dataverse.APIError{Op: op, StatusCode: http.StatusBadRequest, Kind: dataverse.KindFatal, Message: "invalid request"}
}

func timeoutErr(op string) error {
	return &dataverse.APIError{Op: op, Kind: dataverse.KindTimeout, Message: "context deadline exceeded"}
}

func newExecutor(gateway RollbackGateway) *executor {
	return &executor{gateway: gateway, logger: zap.NewNop(), progress: progress.NopSink{}}
}

func testSolutionInfo() SolutionInfo {
	return SolutionInfo{
		PublisherID:         "pub-id",
		PublisherUniqueName: "UnivPublisher",
		Prefix:              "univ",
		SolutionID:          "sol-id",
		SolutionUniqueName:  "UniversitySolution",
	}
}

func TestExecutorRelationshipFailureHaltsPass(t *testing.T) {
	t.Parallel()

	entityDeletes := 0
	gateway := &mockGateway{
		DeleteRelationshipFn: func(_ context.Context, schemaName string) error {
			if schemaName == "univ_professor_course" {
				return fatalErr("delete relationship")
			}
			return nil
		},
		DeleteEntityFn: func(context.Context, string) error {
			entityDeletes++
			return nil
		},
	}

	results, removed := newExecutor(gateway).execute(context.Background(), executeInput{
		deploymentID: "dep-1",
		solutionInfo: testSolutionInfo(),
		options:      AllRollbackOptions(),
		data: RollbackData{
			CustomEntities: []string{"professor", "course"},
			Relationships: []RelationshipRecord{
				{FromEntity: "department", ToEntity: "professor", SchemaName: "univ_department_professor"},
				{FromEntity: "professor", ToEntity: "course", SchemaName: "univ_professor_course"},
				{FromEntity: "department", ToEntity: "course", SchemaName: "univ_department_course"},
			},
		},
	})

	assert.Equal(t, 1, results.RelationshipsDeleted)
	assert.Equal(t, 2, results.RelationshipsProcessed)
	assert.Equal(t, 0, results.EntitiesDeleted)
	assert.Equal(t, 0, entityDeletes, "entity deletion must not run after a relationship failure")
	require.Len(t, results.Errors, 1)
	assert.Contains(t, results.Errors[0], "univ_professor_course")

	// The halted pass removed exactly one relationship; the failed one, the
	// unreached one, and both entities stay out of the removed slice.
	require.Len(t, removed.Relationships, 1)
	assert.Equal(t, "univ_department_professor", removed.Relationships[0].SchemaName)
	assert.Empty(t, removed.CustomEntities)
}

func TestExecutorMissingRelationshipIsWarning(t *testing.T) {
	t.Parallel()

	gateway := &mockGateway{
		DeleteRelationshipFn: func(_ context.Context, schemaName string) error {
			if schemaName == "univ_department_professor" {
				return notFoundErr("delete relationship")
			}
			return nil
		},
	}

	results, _ := newExecutor(gateway).execute(context.Background(), executeInput{
		solutionInfo: testSolutionInfo(),
		options:      RollbackOptions{Relationships: true},
		data: RollbackData{
			Relationships: []RelationshipRecord{
				{FromEntity: "department", ToEntity: "professor", SchemaName: "univ_department_professor"},
				{FromEntity: "professor", ToEntity: "course", SchemaName: "univ_professor_course"},
			},
		},
	})

	assert.Equal(t, 1, results.RelationshipsDeleted)
	assert.Equal(t, 2, results.RelationshipsProcessed)
	assert.Empty(t, results.Errors)
	require.Len(t, results.Warnings, 1)
	assert.Contains(t, results.Warnings[0], "already removed")
}

func TestExecutorLegacyRelationshipTriesReversedName(t *testing.T) {
	t.Parallel()

	var attempted []string
	gateway := &mockGateway{
		DeleteRelationshipFn: func(_ context.Context, schemaName string) error {
			attempted = append(attempted, schemaName)
			if schemaName == "univ_course_professor" {
				return nil
			}
			return notFoundErr("delete relationship")
		},
	}

	results, _ := newExecutor(gateway).execute(context.Background(), executeInput{
		solutionInfo: testSolutionInfo(),
		options:      RollbackOptions{Relationships: true},
		data: RollbackData{
			// No recorded schema name: derived ordering misses, reversed hits.
			Relationships: []RelationshipRecord{{FromEntity: "professor", ToEntity: "course"}},
		},
	})

	assert.Equal(t, []string{"univ_professor_course", "univ_course_professor"}, attempted)
	assert.Equal(t, 1, results.RelationshipsDeleted)
	assert.Empty(t, results.Errors)
}

func TestExecutorRecordedNameSkipsReversedFallback(t *testing.T) {
	t.Parallel()

	var attempted []string
	gateway := &mockGateway{
		DeleteRelationshipFn: func(_ context.Context, schemaName string) error {
			attempted = append(attempted, schemaName)
			return notFoundErr("delete relationship")
		},
	}

	results, _ := newExecutor(gateway).execute(context.Background(), executeInput{
		solutionInfo: testSolutionInfo(),
		options:      RollbackOptions{Relationships: true},
		data: RollbackData{
			Relationships: []RelationshipRecord{
				{FromEntity: "professor", ToEntity: "course", SchemaName: "univ_professor_course"},
			},
		},
	})

	assert.Equal(t, []string{"univ_professor_course"}, attempted)
	assert.Equal(t, 0, results.RelationshipsDeleted)
	require.Len(t, results.Warnings, 1)
}

func TestExecutorEntityTimeoutVerifiedByExistenceCheck(t *testing.T) {
	t.Parallel()

	gateway := &mockGateway{
		DeleteEntityFn: func(context.Context, string) error {
			return timeoutErr("delete entity")
		},
		EntityExistsFn: func(_ context.Context, logicalName string) (bool, error) {
			// Deletion finished on the platform despite the client timeout.
			return false, nil
		},
	}

	results, _ := newExecutor(gateway).execute(context.Background(), executeInput{
		solutionInfo: testSolutionInfo(),
		options:      RollbackOptions{CustomEntities: true},
		data:         RollbackData{CustomEntities: []string{"professor"}},
	})

	assert.Equal(t, 1, results.EntitiesDeleted)
	assert.Empty(t, results.Errors)
}

func TestExecutorEntityTimeoutStillPresentIsFatal(t *testing.T) {
	t.Parallel()

	gateway := &mockGateway{
		DeleteEntityFn: func(context.Context, string) error {
			return timeoutErr("delete entity")
		},
		EntityExistsFn: func(context.Context, string) (bool, error) {
			return true, nil
		},
	}

	results, _ := newExecutor(gateway).execute(context.Background(), executeInput{
		solutionInfo: testSolutionInfo(),
		options:      RollbackOptions{CustomEntities: true, Solution: true},
		data:         RollbackData{CustomEntities: []string{"professor"}},
	})

	assert.Equal(t, 0, results.EntitiesDeleted)
	require.Len(t, results.Errors, 1)
	assert.False(t, results.SolutionDeleted, "solution deletion must not run after an entity failure")
}

func TestExecutorEntityAlreadyPrefixedNameNotDoubled(t *testing.T) {
	t.Parallel()

	var deleted []string
	gateway := &mockGateway{
		DeleteEntityFn: func(_ context.Context, logicalName string) error {
			deleted = append(deleted, logicalName)
			return nil
		},
	}

	newExecutor(gateway).execute(context.Background(), executeInput{
		solutionInfo: testSolutionInfo(),
		options:      RollbackOptions{CustomEntities: true},
		data:         RollbackData{CustomEntities: []string{"univ_professor", "course"}},
	})

	assert.Equal(t, []string{"univ_professor", "univ_course"}, deleted)
}

func TestExecutorCDMEntitiesReportedAsWarning(t *testing.T) {
	t.Parallel()

	results, _ := newExecutor(&mockGateway{}).execute(context.Background(), executeInput{
		solutionInfo: testSolutionInfo(),
		options:      RollbackOptions{CDMEntities: true},
		data:         RollbackData{CDMEntities: []string{"contact", "account"}},
	})

	require.Len(t, results.Warnings, 1)
	assert.Contains(t, results.Warnings[0], "contact")
	assert.Contains(t, results.Warnings[0], "account")
	assert.Empty(t, results.Errors)
}

func TestExecutorChoiceFailureIsAdvisory(t *testing.T) {
	t.Parallel()

	gateway := &mockGateway{
		DeleteGlobalChoiceFn: func(_ context.Context, id string) error {
			if id == "choice-1" {
				return fatalErr("delete global choice")
			}
			return nil
		},
	}

	results, _ := newExecutor(gateway).execute(context.Background(), executeInput{
		solutionInfo: testSolutionInfo(),
		options:      RollbackOptions{CustomGlobalChoices: true, Solution: true},
		data: RollbackData{
			GlobalChoicesCreated: []ChoiceRecord{
				{ID: "choice-1", Name: "univ_status"},
				{ID: "choice-2", Name: "univ_semester"},
			},
		},
	})

	assert.Equal(t, 1, results.GlobalChoicesDeleted)
	assert.True(t, results.SolutionDeleted, "choice failures must not block solution deletion")
	assert.Empty(t, results.Errors)
	require.Len(t, results.Warnings, 1)
}

func TestExecutorChoiceWithoutIDResolvedWithinPrefix(t *testing.T) {
	t.Parallel()

	var deletedID string
	gateway := &mockGateway{
		ListGlobalChoicesByPrefixFn: func(_ context.Context, prefix string) ([]dataverse.GlobalChoice, error) {
			require.Equal(t, "univ", prefix)
			return []dataverse.GlobalChoice{
				{ID: "meta-1", Name: "univ_status"},
				{ID: "meta-2", Name: "univ_semester"},
			}, nil
		},
		DeleteGlobalChoiceFn: func(_ context.Context, id string) error {
			deletedID = id
			return nil
		},
	}

	results, _ := newExecutor(gateway).execute(context.Background(), executeInput{
		solutionInfo: testSolutionInfo(),
		options:      RollbackOptions{CustomGlobalChoices: true},
		data: RollbackData{
			GlobalChoicesCreated: []ChoiceRecord{{Name: "univ_semester"}},
		},
	})

	assert.Equal(t, "meta-2", deletedID)
	assert.Equal(t, 1, results.GlobalChoicesDeleted)
}

func TestExecutorSolutionFailureBlocksPublisher(t *testing.T) {
	t.Parallel()

	publisherDeletes := 0
	gateway := &mockGateway{
		DeleteSolutionFn: func(context.Context, string) error {
			return fatalErr("delete solution")
		},
		DeletePublisherFn: func(context.Context, string) error {
			publisherDeletes++
			return nil
		},
	}

	results, _ := newExecutor(gateway).execute(context.Background(), executeInput{
		solutionInfo: testSolutionInfo(),
		options:      RollbackOptions{Solution: true, Publisher: true},
	})

	assert.False(t, results.SolutionDeleted)
	assert.False(t, results.PublisherDeleted)
	assert.Equal(t, 0, publisherDeletes)
	require.Len(t, results.Errors, 1)
}

func TestExecutorPublisherFailureIsAdvisory(t *testing.T) {
	t.Parallel()

	gateway := &mockGateway{
		DeletePublisherFn: func(context.Context, string) error {
			return fatalErr("delete publisher")
		},
	}

	results, _ := newExecutor(gateway).execute(context.Background(), executeInput{
		solutionInfo: testSolutionInfo(),
		options:      RollbackOptions{Solution: true, Publisher: true},
	})

	assert.True(t, results.SolutionDeleted)
	assert.False(t, results.PublisherDeleted)
	assert.Empty(t, results.Errors)
	require.Len(t, results.Warnings, 1)
}

func TestExecutorMissingSolutionAndPublisherTreatedAsRemoved(t *testing.T) {
	t.Parallel()

	gateway := &mockGateway{
		DeleteSolutionFn: func(context.Context, string) error {
			return notFoundErr("delete solution")
		},
		DeletePublisherFn: func(context.Context, string) error {
			return notFoundErr("delete publisher")
		},
	}

	results, _ := newExecutor(gateway).execute(context.Background(), executeInput{
		solutionInfo: testSolutionInfo(),
		options:      RollbackOptions{Solution: true, Publisher: true},
	})

	assert.True(t, results.SolutionDeleted)
	assert.True(t, results.PublisherDeleted)
	assert.Empty(t, results.Errors)
	assert.Len(t, results.Warnings, 2)
}
