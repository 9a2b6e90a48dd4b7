package service

import (
	"context"

	"github.com/erdbridge/erdbridge/platform/go/dataverse"
)

type mockRepository struct {
	RecordFn func(ctx context.Context, record DeploymentRecord) (DeploymentRecord, error)
	GetFn    func(ctx context.Context, deploymentID string) (DeploymentRecord, error)
	UpdateFn func(ctx context.Context, record DeploymentRecord) (DeploymentRecord, error)
	ListFn   func(ctx context.Context, limit, offset int) ([]DeploymentRecord, int, error)
}

func (m *mockRepository) Record(ctx context.Context, record DeploymentRecord) (DeploymentRecord, error) {
	return m.RecordFn(ctx, record)
}

func (m *mockRepository) Get(ctx context.Context, deploymentID string) (DeploymentRecord, error) {
	return m.GetFn(ctx, deploymentID)
}

func (m *mockRepository) Update(ctx context.Context, record DeploymentRecord) (DeploymentRecord, error) {
	return m.UpdateFn(ctx, record)
}

func (m *mockRepository) List(ctx context.Context, limit, offset int) ([]DeploymentRecord, int, error) {
	return m.ListFn(ctx, limit, offset)
}

type mockProvisioner struct {
	EnsurePublisherFn func(ctx context.Context, spec PublisherSpec) (dataverse.Publisher, error)
	EnsureSolutionFn  func(ctx context.Context, spec SolutionSpec, publisher dataverse.Publisher) (dataverse.Solution, error)
}

func (m *mockProvisioner) EnsurePublisher(ctx context.Context, spec PublisherSpec) (dataverse.Publisher, error) {
	return m.EnsurePublisherFn(ctx, spec)
}

func (m *mockProvisioner) EnsureSolution(ctx context.Context, spec SolutionSpec, publisher dataverse.Publisher) (dataverse.Solution, error) {
	return m.EnsureSolutionFn(ctx, spec, publisher)
}

type mockEntityBuilder struct {
	CreateEntityFn func(ctx context.Context, desc EntityDescriptor, prefix, solutionUniqueName string) (EntityResult, error)
}

func (m *mockEntityBuilder) CreateEntity(ctx context.Context, desc EntityDescriptor, prefix, solutionUniqueName string) (EntityResult, error) {
	return m.CreateEntityFn(ctx, desc, prefix, solutionUniqueName)
}

type mockRelationshipBuilder struct {
	CreateRelationshipsFn func(ctx context.Context, descs []RelationshipDescriptor, opts RelationshipBatchOptions) (RelationshipOutcome, error)
}

func (m *mockRelationshipBuilder) CreateRelationships(ctx context.Context, descs []RelationshipDescriptor, opts RelationshipBatchOptions) (RelationshipOutcome, error) {
	return m.CreateRelationshipsFn(ctx, descs, opts)
}

type mockChoiceManager struct {
	EnsureGlobalChoicesFn func(ctx context.Context, choices []GlobalChoiceDescriptor, prefix, solutionUniqueName string) (ChoiceOutcome, error)
}

func (m *mockChoiceManager) EnsureGlobalChoices(ctx context.Context, choices []GlobalChoiceDescriptor, prefix, solutionUniqueName string) (ChoiceOutcome, error) {
	return m.EnsureGlobalChoicesFn(ctx, choices, prefix, solutionUniqueName)
}

// mockGateway defaults every call to success so tests override only what
// they exercise.
type mockGateway struct {
	DeleteRelationshipFn        func(ctx context.Context, schemaName string) error
	DeleteEntityFn              func(ctx context.Context, logicalName string) error
	EntityExistsFn              func(ctx context.Context, logicalName string) (bool, error)
	ListGlobalChoicesByPrefixFn func(ctx context.Context, prefix string) ([]dataverse.GlobalChoice, error)
	DeleteGlobalChoiceFn        func(ctx context.Context, id string) error
	GetSolutionFn               func(ctx context.Context, uniqueName string) (dataverse.Solution, error)
	DeleteSolutionFn            func(ctx context.Context, id string) error
	GetPublisherByNameFn        func(ctx context.Context, uniqueName string) (dataverse.Publisher, error)
	DeletePublisherFn           func(ctx context.Context, id string) error
}

func (m *mockGateway) DeleteRelationship(ctx context.Context, schemaName string) error {
	if m.DeleteRelationshipFn == nil {
		return nil
	}
	return m.DeleteRelationshipFn(ctx, schemaName)
}

func (m *mockGateway) DeleteEntity(ctx context.Context, logicalName string) error {
	if m.DeleteEntityFn == nil {
		return nil
	}
	return m.DeleteEntityFn(ctx, logicalName)
}

func (m *mockGateway) EntityExists(ctx context.Context, logicalName string) (bool, error) {
	if m.EntityExistsFn == nil {
		return false, nil
	}
	return m.EntityExistsFn(ctx, logicalName)
}

func (m *mockGateway) ListGlobalChoicesByPrefix(ctx context.Context, prefix string) ([]dataverse.GlobalChoice, error) {
	if m.ListGlobalChoicesByPrefixFn == nil {
		return nil, nil
	}
	return m.ListGlobalChoicesByPrefixFn(ctx, prefix)
}

func (m *mockGateway) DeleteGlobalChoice(ctx context.Context, id string) error {
	if m.DeleteGlobalChoiceFn == nil {
		return nil
	}
	return m.DeleteGlobalChoiceFn(ctx, id)
}

func (m *mockGateway) GetSolution(ctx context.Context, uniqueName string) (dataverse.Solution, error) {
	if m.GetSolutionFn == nil {
		return dataverse.Solution{ID: "sol-id", UniqueName: uniqueName}, nil
	}
	return m.GetSolutionFn(ctx, uniqueName)
}

func (m *mockGateway) DeleteSolution(ctx context.Context, id string) error {
	if m.DeleteSolutionFn == nil {
		return nil
	}
	return m.DeleteSolutionFn(ctx, id)
}

func (m *mockGateway) GetPublisherByName(ctx context.Context, uniqueName string) (dataverse.Publisher, error) {
	if m.GetPublisherByNameFn == nil {
		return dataverse.Publisher{ID: "pub-id", UniqueName: uniqueName}, nil
	}
	return m.GetPublisherByNameFn(ctx, uniqueName)
}

func (m *mockGateway) DeletePublisher(ctx context.Context, id string) error {
	if m.DeletePublisherFn == nil {
		return nil
	}
	return m.DeletePublisherFn(ctx, id)
}
