package provisioning

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/erdbridge/erdbridge/domains/deployments/be/service"
	"github.com/erdbridge/erdbridge/platform/go/dataverse"
	"github.com/erdbridge/erdbridge/platform/go/naming"
)

// TableGateway is the slice of the platform gateway the entity builder uses.
type TableGateway interface {
	CreateEntity(ctx context.Context, def dataverse.EntityDefinition, solutionUniqueName string) (string, error)
	GetEntityByLogicalName(ctx context.Context, logicalName string) (dataverse.EntityRef, error)
	EntityExists(ctx context.Context, logicalName string) (bool, error)
	CreateAttribute(ctx context.Context, entityLogicalName string, def dataverse.AttributeDefinition, solutionUniqueName string) (string, error)
}

// EntityBuilder creates custom tables column by column. Entity metadata
// settles asynchronously, so a short delay follows the create before columns
// are added.
type EntityBuilder struct {
	gateway         TableGateway
	logger          *zap.Logger
	entityPolicy    dataverse.Policy
	attributePolicy dataverse.Policy
	settleDelay     time.Duration
	sleep           sleeper
}

// NewEntityBuilder constructs an EntityBuilder.
func NewEntityBuilder(gateway TableGateway, logger *zap.Logger) *EntityBuilder {
	if gateway == nil {
		panic("provisioning: gateway is required")
	}
	if logger == nil {
		panic("provisioning: logger is required")
	}
	return &EntityBuilder{
		gateway:         gateway,
		logger:          logger,
		entityPolicy:    dataverse.EntityCreatePolicy,
		attributePolicy: dataverse.AttributeCreatePolicy,
		settleDelay:     2 * time.Second,
		sleep:           defaultSleep,
	}
}

// CreateEntity ensures the table exists and adds its columns. Column failures
// are advisory: they become warnings on the result instead of aborting the
// table, so one rejected column does not strand the ones already created.
func (b *EntityBuilder) CreateEntity(ctx context.Context, desc service.EntityDescriptor, prefix, solutionUniqueName string) (service.EntityResult, error) {
	logicalName, err := naming.LogicalName(prefix, desc.Name)
	if err != nil {
		return service.EntityResult{}, fmt.Errorf("table %s: %w", desc.Name, err)
	}

	displayName := desc.DisplayName
	if displayName == "" {
		displayName = titleCase(desc.Name)
	}

	result := service.EntityResult{LogicalName: logicalName}

	exists, err := b.gateway.EntityExists(ctx, logicalName)
	if err != nil {
		return service.EntityResult{}, fmt.Errorf("probe table %s: %w", logicalName, err)
	}
	if exists {
		ref, err := b.gateway.GetEntityByLogicalName(ctx, logicalName)
		if err != nil {
			return service.EntityResult{}, fmt.Errorf("fetch table %s: %w", logicalName, err)
		}
		result.MetadataID = ref.MetadataID
		result.Warnings = append(result.Warnings, fmt.Sprintf("table %s already exists, reusing it", logicalName))
		b.logger.Info("table exists", zap.String("logical_name", logicalName))
		return result, nil
	}

	primaryName, columns := splitAttributes(desc)
	def := dataverse.EntityDefinition{
		SchemaName:            logicalName,
		DisplayName:           dataverse.NewLabel(displayName),
		DisplayCollectionName: dataverse.NewLabel(displayName + "s"),
		OwnershipType:         "UserOwned",
		HasNotes:              false,
		HasActivities:         false,
		Attributes:            []dataverse.AttributeDefinition{primaryNameColumn(prefix, primaryName)},
	}

	err = b.entityPolicy.Do(ctx, b.logger, "createEntity", func() error {
		id, err := b.gateway.CreateEntity(ctx, def, solutionUniqueName)
		if err != nil {
			return err
		}
		result.MetadataID = id
		return nil
	})
	if err != nil {
		return service.EntityResult{}, fmt.Errorf("create table %s: %w", logicalName, err)
	}
	b.logger.Info("table created", zap.String("logical_name", logicalName))

	// Give the metadata cache a moment before column creates hit the table.
	b.sleep(ctx, b.settleDelay)
	if queryable, err := b.gateway.EntityExists(ctx, logicalName); err != nil || !queryable {
		result.Warnings = append(result.Warnings, fmt.Sprintf("table %s is not queryable yet; column creation may retry", logicalName))
	}

	for _, attr := range columns {
		if err := b.createColumn(ctx, logicalName, desc.Name, prefix, solutionUniqueName, attr); err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("column %s.%s: %v", desc.Name, attr.Name, err))
			b.logger.Warn("column creation failed",
				zap.String("logical_name", logicalName),
				zap.String("column", attr.Name),
				zap.Error(err),
			)
		}
	}

	return result, nil
}

func (b *EntityBuilder) createColumn(ctx context.Context, entityLogicalName, entityName, prefix, solutionUniqueName string, attr service.AttributeDescriptor) error {
	schemaName, err := naming.ColumnSchemaName(prefix, entityName, attr.Name)
	if err != nil {
		return err
	}

	def, err := columnDefinition(schemaName, attr)
	if err != nil {
		return err
	}

	return b.attributePolicy.Do(ctx, b.logger, "createAttribute", func() error {
		_, err := b.gateway.CreateAttribute(ctx, entityLogicalName, def, solutionUniqueName)
		return err
	})
}

// splitAttributes separates the primary name column from regular ones.
// Primary key attributes are dropped: the platform provisions its own id
// column. Foreign keys are dropped too: the relationship pass creates each
// lookup together with its association.
func splitAttributes(desc service.EntityDescriptor) (primaryName string, columns []service.AttributeDescriptor) {
	primaryName = desc.PrimaryColumnName

	for _, attr := range desc.Attributes {
		if attr.IsPrimaryKey || attr.IsForeignKey {
			continue
		}
		if primaryName == "" && strings.EqualFold(attr.Name, "name") {
			primaryName = attr.Name
			continue
		}
		if strings.EqualFold(attr.Name, primaryName) {
			continue
		}
		columns = append(columns, attr)
	}

	if primaryName == "" {
		primaryName = "name"
	}
	return primaryName, columns
}

func primaryNameColumn(prefix, name string) dataverse.AttributeDefinition {
	yes := true
	maxLength := 100
	return dataverse.AttributeDefinition{
		ODataType:     dataverse.TypeStringAttribute,
		SchemaName:    prefix + "_" + naming.MustSafe(name),
		DisplayName:   dataverse.NewLabel(titleCase(name)),
		RequiredLevel: dataverse.RequiredLevel{Value: "ApplicationRequired"},
		IsPrimaryName: &yes,
		MaxLength:     &maxLength,
	}
}

// columnDefinition maps a descriptor type to the platform's attribute payload.
// Unknown types degrade to string so a diagram typo costs a warning review,
// not the whole table.
func columnDefinition(schemaName string, attr service.AttributeDescriptor) (dataverse.AttributeDefinition, error) {
	def := dataverse.AttributeDefinition{
		SchemaName:    schemaName,
		DisplayName:   dataverse.NewLabel(titleCase(attr.Name)),
		RequiredLevel: dataverse.RequiredLevel{Value: "None"},
	}

	switch strings.ToLower(strings.TrimSpace(attr.Type)) {
	case "string", "varchar", "char", "":
		def.ODataType = dataverse.TypeStringAttribute
		maxLength := 100
		def.MaxLength = &maxLength
	case "text", "memo", "longtext":
		def.ODataType = dataverse.TypeMemoAttribute
		maxLength := 2000
		def.MaxLength = &maxLength
	case "int", "integer", "long":
		def.ODataType = dataverse.TypeIntegerAttribute
		minValue, maxValue := float64(-2147483648), float64(2147483647)
		def.MinValue = &minValue
		def.MaxValue = &maxValue
	case "decimal", "float", "double", "number":
		def.ODataType = dataverse.TypeDecimalAttribute
		precision := 2
		minValue, maxValue := float64(-100000000000), float64(100000000000)
		def.Precision = &precision
		def.MinValue = &minValue
		def.MaxValue = &maxValue
	case "money", "currency":
		def.ODataType = dataverse.TypeMoneyAttribute
		precision := 2
		def.Precision = &precision
	case "bool", "boolean", "bit":
		def.ODataType = dataverse.TypeBooleanAttribute
		def.OptionSet = map[string]any{
			"TrueOption":  map[string]any{"Value": 1, "Label": dataverse.NewLabel("Yes")},
			"FalseOption": map[string]any{"Value": 0, "Label": dataverse.NewLabel("No")},
			"OptionSetType": "Boolean",
		}
	case "datetime", "date", "timestamp":
		def.ODataType = dataverse.TypeDateTimeAttribute
		format := "DateAndTime"
		def.Format = &format
	default:
		def.ODataType = dataverse.TypeStringAttribute
		maxLength := 100
		def.MaxLength = &maxLength
	}

	return def, nil
}

func titleCase(name string) string {
	cleaned := strings.NewReplacer("_", " ", "-", " ").Replace(strings.TrimSpace(name))
	words := strings.Fields(cleaned)
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}

var _ service.EntityBuilder = (*EntityBuilder)(nil)
