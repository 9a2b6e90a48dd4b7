package provisioning

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/erdbridge/erdbridge/domains/deployments/be/service"
	"github.com/erdbridge/erdbridge/platform/go/dataverse"
	"github.com/erdbridge/erdbridge/platform/go/naming"
)

// AssociationGateway is the slice of the platform gateway the relationship
// builder uses.
type AssociationGateway interface {
	EntityExists(ctx context.Context, logicalName string) (bool, error)
	RelationshipExists(ctx context.Context, schemaName string) (bool, error)
	CreateOneToMany(ctx context.Context, rel dataverse.OneToManyRelationship, solutionUniqueName string) (string, error)
}

// RelationshipBuilder creates one-to-many associations between tables that
// already exist. Associations acquire customization locks on both endpoint
// tables, so creates run under the most patient retry policy.
type RelationshipBuilder struct {
	gateway AssociationGateway
	logger  *zap.Logger
	policy  dataverse.Policy
	// batchSettleDelay runs once before the first creation attempt: the
	// endpoint tables were typically created moments earlier and need the
	// read-after-write window to close. settleDelay runs between successful
	// creations.
	batchSettleDelay time.Duration
	settleDelay      time.Duration
	sleep            sleeper
}

// NewRelationshipBuilder constructs a RelationshipBuilder.
func NewRelationshipBuilder(gateway AssociationGateway, logger *zap.Logger) *RelationshipBuilder {
	if gateway == nil {
		panic("provisioning: gateway is required")
	}
	if logger == nil {
		panic("provisioning: logger is required")
	}
	return &RelationshipBuilder{
		gateway:          gateway,
		logger:           logger,
		policy:           dataverse.RelationshipPolicy,
		batchSettleDelay: 5 * time.Second,
		settleDelay:      time.Second,
		sleep:            defaultSleep,
	}
}

// CreateRelationships creates the batch one association at a time. A failed
// item never aborts the batch; it lands in the outcome's Failed list and the
// batch moves on.
func (b *RelationshipBuilder) CreateRelationships(ctx context.Context, descs []service.RelationshipDescriptor, opts service.RelationshipBatchOptions) (service.RelationshipOutcome, error) {
	outcome := service.RelationshipOutcome{}

	created := false
	for i, desc := range descs {
		if i == 0 {
			b.sleep(ctx, b.batchSettleDelay)
		} else if created {
			b.sleep(ctx, b.settleDelay)
		}
		if err := ctx.Err(); err != nil {
			return outcome, err
		}

		created = false
		record, err := b.createOne(ctx, desc, opts)
		if err != nil {
			outcome.Failed = append(outcome.Failed, service.FailedRelationship{
				FromEntity: desc.FromEntity,
				ToEntity:   desc.ToEntity,
				Reason:     err.Error(),
			})
			b.logger.Warn("relationship creation failed",
				zap.String("from", desc.FromEntity),
				zap.String("to", desc.ToEntity),
				zap.Error(err),
			)
			continue
		}
		outcome.Created = append(outcome.Created, record)
		created = true
	}

	return outcome, nil
}

func (b *RelationshipBuilder) createOne(ctx context.Context, desc service.RelationshipDescriptor, opts service.RelationshipBatchOptions) (service.RelationshipRecord, error) {
	referenced, err := b.resolveEndpoint(ctx, desc.FromEntity, opts)
	if err != nil {
		return service.RelationshipRecord{}, err
	}
	referencing, err := b.resolveEndpoint(ctx, desc.ToEntity, opts)
	if err != nil {
		return service.RelationshipRecord{}, err
	}

	schemaName, err := naming.RelationshipSchemaName(opts.PublisherPrefix, desc.FromEntity, desc.ToEntity)
	if err != nil {
		return service.RelationshipRecord{}, err
	}

	record := service.RelationshipRecord{
		FromEntity: desc.FromEntity,
		ToEntity:   desc.ToEntity,
		SchemaName: schemaName,
	}

	exists, err := b.gateway.RelationshipExists(ctx, schemaName)
	if err != nil {
		return service.RelationshipRecord{}, fmt.Errorf("probe relationship %s: %w", schemaName, err)
	}
	if exists {
		b.logger.Info("relationship exists", zap.String("schema_name", schemaName))
		return record, nil
	}

	lookupSchemaName, err := naming.ColumnSchemaName(opts.PublisherPrefix, desc.ToEntity, desc.FromEntity+"id")
	if err != nil {
		return service.RelationshipRecord{}, err
	}

	rel := dataverse.NewOneToMany(schemaName, referenced, referencing, lookupSchemaName, titleCase(desc.FromEntity))
	err = b.policy.Do(ctx, b.logger, "createRelationship", func() error {
		_, err := b.gateway.CreateOneToMany(ctx, rel, opts.SolutionUniqueName)
		return err
	})
	if err != nil {
		return service.RelationshipRecord{}, fmt.Errorf("create relationship %s: %w", schemaName, err)
	}

	b.logger.Info("relationship created", zap.String("schema_name", schemaName))
	return record, nil
}

// resolveEndpoint maps a descriptor name to its platform logical name: a
// built-in table keeps its mapped name, a custom one gets the prefix. The
// endpoint must be queryable before an association can reference it.
func (b *RelationshipBuilder) resolveEndpoint(ctx context.Context, name string, opts service.RelationshipBatchOptions) (string, error) {
	logicalName, mapped := opts.CDMEntityMap[name]
	if !mapped {
		var err error
		logicalName, err = naming.LogicalName(opts.PublisherPrefix, name)
		if err != nil {
			return "", fmt.Errorf("endpoint %s: %w", name, err)
		}
	}

	exists, err := b.gateway.EntityExists(ctx, logicalName)
	if err != nil {
		return "", fmt.Errorf("probe endpoint %s: %w", logicalName, err)
	}
	if !exists {
		return "", fmt.Errorf("endpoint table %s is not queryable", logicalName)
	}
	return logicalName, nil
}

var _ service.RelationshipBuilder = (*RelationshipBuilder)(nil)
