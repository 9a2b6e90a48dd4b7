package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/erdbridge/erdbridge/platform/go/dataverse"
	"github.com/erdbridge/erdbridge/platform/go/progress"
)

func testSpec() DeploymentSpec {
	return DeploymentSpec{
		Publisher: PublisherSpec{UniqueName: "UnivPublisher", Prefix: "univ"},
		Solution:  SolutionSpec{UniqueName: "UniversitySolution"},
		Entities: []EntityDescriptor{
			{Name: "professor", Attributes: []AttributeDescriptor{{Name: "name", Type: "string"}}},
			{Name: "course", Attributes: []AttributeDescriptor{{Name: "title", Type: "string"}}},
		},
		Relationships: []RelationshipDescriptor{
			{FromEntity: "professor", ToEntity: "course"},
		},
	}
}

type serviceFixture struct {
	repo          *mockRepository
	provisioner   *mockProvisioner
	entities      *mockEntityBuilder
	relationships *mockRelationshipBuilder
	choices       *mockChoiceManager
	gateway       *mockGateway

	recorded []DeploymentRecord
	updated  []DeploymentRecord
}

func newServiceFixture() *serviceFixture {
	f := &serviceFixture{gateway: &mockGateway{}}

	f.repo = &mockRepository{
		RecordFn: func(_ context.Context, record DeploymentRecord) (DeploymentRecord, error) {
			f.recorded = append(f.recorded, record)
			return record, nil
		},
		GetFn: func(_ context.Context, deploymentID string) (DeploymentRecord, error) {
			return DeploymentRecord{}, ErrDeploymentNotFound
		},
		UpdateFn: func(_ context.Context, record DeploymentRecord) (DeploymentRecord, error) {
			f.updated = append(f.updated, record)
			return record, nil
		},
		ListFn: func(context.Context, int, int) ([]DeploymentRecord, int, error) {
			return nil, 0, nil
		},
	}
	f.provisioner = &mockProvisioner{
		EnsurePublisherFn: func(_ context.Context, spec PublisherSpec) (dataverse.Publisher, error) {
			return dataverse.Publisher{ID: "pub-id", UniqueName: spec.UniqueName, Prefix: spec.Prefix}, nil
		},
		EnsureSolutionFn: func(_ context.Context, spec SolutionSpec, _ dataverse.Publisher) (dataverse.Solution, error) {
			return dataverse.Solution{ID: "sol-id", UniqueName: spec.UniqueName}, nil
		},
	}
	f.entities = &mockEntityBuilder{
		CreateEntityFn: func(_ context.Context, desc EntityDescriptor, prefix, _ string) (EntityResult, error) {
			return EntityResult{LogicalName: prefix + "_" + desc.Name, MetadataID: "meta-" + desc.Name}, nil
		},
	}
	f.relationships = &mockRelationshipBuilder{
		CreateRelationshipsFn: func(_ context.Context, descs []RelationshipDescriptor, opts RelationshipBatchOptions) (RelationshipOutcome, error) {
			outcome := RelationshipOutcome{}
			for _, desc := range descs {
				outcome.Created = append(outcome.Created, RelationshipRecord{
					FromEntity: desc.FromEntity,
					ToEntity:   desc.ToEntity,
					SchemaName: opts.PublisherPrefix + "_" + desc.FromEntity + "_" + desc.ToEntity,
				})
			}
			return outcome, nil
		},
	}
	f.choices = &mockChoiceManager{
		EnsureGlobalChoicesFn: func(context.Context, []GlobalChoiceDescriptor, string, string) (ChoiceOutcome, error) {
			return ChoiceOutcome{}, nil
		},
	}
	return f
}

func (f *serviceFixture) service() *Service {
	return New(Config{
		Repository:    f.repo,
		Provisioner:   f.provisioner,
		Entities:      f.entities,
		Relationships: f.relationships,
		Choices:       f.choices,
		Gateway:       f.gateway,
		Logger:        zap.NewNop(),
	})
}

func TestDeploySuccessRecordsManifest(t *testing.T) {
	t.Parallel()

	f := newServiceFixture()
	result, err := f.service().Deploy(context.Background(), testSpec())
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 2, result.EntitiesCreated)
	assert.Equal(t, 1, result.RelationshipsCreated)
	assert.NotEmpty(t, result.DeploymentID)

	require.Len(t, f.recorded, 1)
	record := f.recorded[0]
	assert.Equal(t, StatusSuccess, record.Status)
	assert.Equal(t, []string{"professor", "course"}, record.RollbackData.CustomEntities)
	require.Len(t, record.RollbackData.Relationships, 1)
	assert.Equal(t, "univ_professor_course", record.RollbackData.Relationships[0].SchemaName)
	assert.Equal(t, "univ", record.SolutionInfo.Prefix)
	assert.Equal(t, "sol-id", record.SolutionInfo.SolutionID)
}

func TestDeployStageOrdering(t *testing.T) {
	t.Parallel()

	var stages []progress.Stage
	f := newServiceFixture()
	svc := New(Config{
		Repository:    f.repo,
		Provisioner:   f.provisioner,
		Entities:      f.entities,
		Relationships: f.relationships,
		Choices:       f.choices,
		Gateway:       f.gateway,
		Logger:        zap.NewNop(),
		Progress: progress.FuncSink(func(event progress.Event) {
			stages = append(stages, event.Stage)
		}),
	})

	spec := testSpec()
	spec.GlobalChoices = []GlobalChoiceDescriptor{
		{Name: "status", Options: []ChoiceOption{{Value: 1, Label: "Active"}}},
	}
	_, err := svc.Deploy(context.Background(), spec)
	require.NoError(t, err)

	assert.Equal(t, []progress.Stage{
		progress.StageValidating,
		progress.StagePublisher,
		progress.StageSolution,
		progress.StageEntities,
		progress.StageRelationships,
		progress.StageGlobalChoices,
		progress.StageCompleted,
	}, stages)
}

func TestDeployPublisherFailureAborts(t *testing.T) {
	t.Parallel()

	f := newServiceFixture()
	f.provisioner.EnsurePublisherFn = func(context.Context, PublisherSpec) (dataverse.Publisher, error) {
		return dataverse.Publisher{}, errors.New("provisioning unavailable")
	}

	entityCalls := 0
	f.entities.CreateEntityFn = func(context.Context, EntityDescriptor, string, string) (EntityResult, error) {
		entityCalls++
		return EntityResult{}, nil
	}

	_, err := f.service().Deploy(context.Background(), testSpec())
	require.Error(t, err)
	assert.Equal(t, 0, entityCalls, "no table work after publisher failure")

	require.Len(t, f.recorded, 1)
	assert.Equal(t, StatusFailed, f.recorded[0].Status)
	assert.True(t, f.recorded[0].RollbackData.IsEmpty())
}

func TestDeployEntityFailureContinuesAndRecordsPartialManifest(t *testing.T) {
	t.Parallel()

	f := newServiceFixture()
	f.entities.CreateEntityFn = func(_ context.Context, desc EntityDescriptor, prefix, _ string) (EntityResult, error) {
		if desc.Name == "professor" {
			return EntityResult{}, errors.New("metadata rejected")
		}
		return EntityResult{LogicalName: prefix + "_" + desc.Name}, nil
	}

	result, err := f.service().Deploy(context.Background(), testSpec())
	require.NoError(t, err)

	// Per-item failures never flip the deployment to failed; only publisher
	// and solution aborts do.
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.EntitiesCreated)

	require.Len(t, f.recorded, 1)
	record := f.recorded[0]
	assert.Equal(t, StatusSuccess, record.Status)
	// The manifest lists only what was actually created.
	assert.Equal(t, []string{"course"}, record.RollbackData.CustomEntities)
	require.Len(t, record.Errors, 1)
	assert.Contains(t, record.Errors[0], "professor")
}

func TestDeployCDMEntitiesReferencedNotCreated(t *testing.T) {
	t.Parallel()

	f := newServiceFixture()
	var created []string
	f.entities.CreateEntityFn = func(_ context.Context, desc EntityDescriptor, prefix, _ string) (EntityResult, error) {
		created = append(created, desc.Name)
		return EntityResult{LogicalName: prefix + "_" + desc.Name}, nil
	}

	spec := testSpec()
	spec.Entities = append(spec.Entities, EntityDescriptor{Name: "contact"})
	spec.CDMEntities = map[string]string{"contact": "contact"}

	result, err := f.service().Deploy(context.Background(), spec)
	require.NoError(t, err)
	require.True(t, result.Success)

	assert.Equal(t, []string{"professor", "course"}, created)
	require.Len(t, f.recorded, 1)
	assert.Equal(t, []string{"contact"}, f.recorded[0].RollbackData.CDMEntities)
}

func TestDeployPartialRelationshipFailures(t *testing.T) {
	t.Parallel()

	f := newServiceFixture()
	f.relationships.CreateRelationshipsFn = func(_ context.Context, descs []RelationshipDescriptor, opts RelationshipBatchOptions) (RelationshipOutcome, error) {
		return RelationshipOutcome{
			Created: []RelationshipRecord{
				{FromEntity: "professor", ToEntity: "course", SchemaName: "univ_professor_course"},
			},
			Failed: []FailedRelationship{
				{FromEntity: "department", ToEntity: "course", Reason: "referencing table is not queryable"},
			},
		}, nil
	}

	spec := testSpec()
	spec.Relationships = append(spec.Relationships, RelationshipDescriptor{FromEntity: "department", ToEntity: "course"})
	spec.Entities = append(spec.Entities, EntityDescriptor{Name: "department"})

	result, err := f.service().Deploy(context.Background(), spec)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 1, result.RelationshipsCreated)
	assert.Equal(t, 1, result.RelationshipsFailed)
	require.Len(t, f.recorded, 1)
	require.NotEmpty(t, f.recorded[0].Errors)
	// Only the created relationship enters the manifest.
	require.Len(t, f.recorded[0].RollbackData.Relationships, 1)
}

func TestDeployOnlyCreatedChoicesEnterManifest(t *testing.T) {
	t.Parallel()

	f := newServiceFixture()
	f.choices.EnsureGlobalChoicesFn = func(context.Context, []GlobalChoiceDescriptor, string, string) (ChoiceOutcome, error) {
		return ChoiceOutcome{
			Created: []ChoiceRecord{{ID: "meta-1", Name: "univ_status"}},
			Reused:  []ChoiceRecord{{ID: "meta-2", Name: "univ_semester"}},
		}, nil
	}

	spec := testSpec()
	spec.GlobalChoices = []GlobalChoiceDescriptor{
		{Name: "status", Options: []ChoiceOption{{Value: 1, Label: "Active"}}},
		{Name: "semester", Options: []ChoiceOption{{Value: 1, Label: "Fall"}}},
	}

	result, err := f.service().Deploy(context.Background(), spec)
	require.NoError(t, err)
	require.True(t, result.Success)

	assert.Equal(t, 1, result.GlobalChoicesCreated)
	require.Len(t, f.recorded, 1)
	require.Len(t, f.recorded[0].RollbackData.GlobalChoicesCreated, 1)
	assert.Equal(t, "univ_status", f.recorded[0].RollbackData.GlobalChoicesCreated[0].Name)
}

func TestDeployValidationFailsBeforeAnyRemoteCall(t *testing.T) {
	t.Parallel()

	f := newServiceFixture()
	publisherCalls := 0
	f.provisioner.EnsurePublisherFn = func(context.Context, PublisherSpec) (dataverse.Publisher, error) {
		publisherCalls++
		return dataverse.Publisher{}, nil
	}

	tests := map[string]func(spec *DeploymentSpec){
		"bad prefix":       func(spec *DeploymentSpec) { spec.Publisher.Prefix = "Univ-1" },
		"no entities":      func(spec *DeploymentSpec) { spec.Entities = nil },
		"duplicate tables": func(spec *DeploymentSpec) { spec.Entities = append(spec.Entities, spec.Entities[0]) },
		"unknown endpoint": func(spec *DeploymentSpec) {
			spec.Relationships = []RelationshipDescriptor{{FromEntity: "ghost", ToEntity: "course"}}
		},
		"choice without options": func(spec *DeploymentSpec) {
			spec.GlobalChoices = []GlobalChoiceDescriptor{{Name: "status"}}
		},
	}

	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			spec := testSpec()
			mutate(&spec)

			_, err := f.service().Deploy(context.Background(), spec)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
		})
	}
	assert.Equal(t, 0, publisherCalls)
	assert.Empty(t, f.recorded)
}

func TestDeployTimestampsAndIDsInjectable(t *testing.T) {
	t.Parallel()

	f := newServiceFixture()
	svc := f.service()
	fixed := time.Date(2026, 5, 12, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }
	svc.newID = func() string { return "dep-fixed" }

	result, err := svc.Deploy(context.Background(), testSpec())
	require.NoError(t, err)

	assert.Equal(t, "dep-fixed", result.DeploymentID)
	require.Len(t, f.recorded, 1)
	assert.Equal(t, fixed, f.recorded[0].Timestamp)
}
