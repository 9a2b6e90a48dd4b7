package service

import (
	"context"
	"errors"

	"github.com/erdbridge/erdbridge/platform/go/dataverse"
)

// Errors returned by the service layer.
var (
	ErrDeploymentNotFound = errors.New("deployment not found")
	ErrDeploymentConflict = errors.New("deployment already recorded")
)

// FieldErrors maps request fields to validation issues.
type FieldErrors map[string][]string

// ValidationError captures input validation problems surfaced before any
// remote mutation happens.
type ValidationError struct {
	Fields FieldErrors
}

func (v *ValidationError) Error() string {
	return "validation error"
}

func (v *ValidationError) add(field, issue string) {
	if v.Fields == nil {
		v.Fields = FieldErrors{}
	}
	v.Fields[field] = append(v.Fields[field], issue)
}

func (v *ValidationError) empty() bool {
	return len(v.Fields) == 0
}

// Repository abstracts the durable deployment history. The engine treats it
// as an opaque store and never implements persistence itself.
type Repository interface {
	Record(ctx context.Context, record DeploymentRecord) (DeploymentRecord, error)
	Get(ctx context.Context, deploymentID string) (DeploymentRecord, error)
	Update(ctx context.Context, record DeploymentRecord) (DeploymentRecord, error)
	List(ctx context.Context, limit, offset int) ([]DeploymentRecord, int, error)
}

// Provisioner idempotently ensures the publisher and solution container exist
// before any schema object is created.
type Provisioner interface {
	EnsurePublisher(ctx context.Context, spec PublisherSpec) (dataverse.Publisher, error)
	EnsureSolution(ctx context.Context, spec SolutionSpec, publisher dataverse.Publisher) (dataverse.Solution, error)
}

// EntityResult reports one created table. Warnings carry advisory per-column
// failures that did not abort the entity.
type EntityResult struct {
	LogicalName string
	MetadataID  string
	Warnings    []string
}

// EntityBuilder creates one table and its columns.
type EntityBuilder interface {
	CreateEntity(ctx context.Context, desc EntityDescriptor, prefix, solutionUniqueName string) (EntityResult, error)
}

// RelationshipBatchOptions parameterize one relationship batch.
type RelationshipBatchOptions struct {
	PublisherPrefix    string
	CDMEntityMap       map[string]string
	SolutionUniqueName string
}

// FailedRelationship is one association the batch could not create.
type FailedRelationship struct {
	FromEntity string
	ToEntity   string
	Reason     string
}

// RelationshipOutcome is the partial result of one batch; failures never
// abort the rest of the batch.
type RelationshipOutcome struct {
	Created []RelationshipRecord
	Failed  []FailedRelationship
}

// RelationshipBuilder creates associations between existing tables.
type RelationshipBuilder interface {
	CreateRelationships(ctx context.Context, descs []RelationshipDescriptor, opts RelationshipBatchOptions) (RelationshipOutcome, error)
}

// ChoiceOutcome reports created versus reused shared option sets.
type ChoiceOutcome struct {
	Created  []ChoiceRecord
	Reused   []ChoiceRecord
	Warnings []string
}

// ChoiceManager creates or reuses shared option sets and attaches them to the
// solution.
type ChoiceManager interface {
	EnsureGlobalChoices(ctx context.Context, choices []GlobalChoiceDescriptor, prefix, solutionUniqueName string) (ChoiceOutcome, error)
}

// RollbackGateway is the slice of the platform gateway the rollback executor
// depends on. *dataverse.Client satisfies it.
type RollbackGateway interface {
	DeleteRelationship(ctx context.Context, schemaName string) error
	DeleteEntity(ctx context.Context, logicalName string) error
	EntityExists(ctx context.Context, logicalName string) (bool, error)
	ListGlobalChoicesByPrefix(ctx context.Context, prefix string) ([]dataverse.GlobalChoice, error)
	DeleteGlobalChoice(ctx context.Context, id string) error
	GetSolution(ctx context.Context, uniqueName string) (dataverse.Solution, error)
	DeleteSolution(ctx context.Context, id string) error
	GetPublisherByName(ctx context.Context, uniqueName string) (dataverse.Publisher, error)
	DeletePublisher(ctx context.Context, id string) error
}
