package dataverse

import (
	"context"
	"fmt"
	"net/http"
)

// OneToManyRelationship is the create payload for an association where
// ReferencedEntity is the "one" side and ReferencingEntity the "many" side.
type OneToManyRelationship struct {
	ODataType         string              `json:"@odata.type"`
	SchemaName        string              `json:"SchemaName"`
	ReferencedEntity  string              `json:"ReferencedEntity"`
	ReferencingEntity string              `json:"ReferencingEntity"`
	Lookup            AttributeDefinition `json:"Lookup"`
}

// NewOneToMany builds a relationship payload with the lookup column the
// platform requires on the many side.
func NewOneToMany(schemaName, referencedEntity, referencingEntity, lookupSchemaName, lookupDisplayName string) OneToManyRelationship {
	return OneToManyRelationship{
		ODataType:         "#Microsoft.Dynamics.CRM.OneToManyRelationshipMetadata",
		SchemaName:        schemaName,
		ReferencedEntity:  referencedEntity,
		ReferencingEntity: referencingEntity,
		Lookup: AttributeDefinition{
			ODataType:     TypeLookupAttribute,
			SchemaName:    lookupSchemaName,
			DisplayName:   NewLabel(lookupDisplayName),
			RequiredLevel: RequiredLevel{Value: "None"},
		},
	}
}

// CreateOneToMany creates the association and returns its metadata id.
func (c *Client) CreateOneToMany(ctx context.Context, rel OneToManyRelationship, solutionUniqueName string) (string, error) {
	path := "/RelationshipDefinitions"
	if solutionUniqueName != "" {
		path += "?$solution=" + solutionUniqueName
	}

	result, err := c.do(ctx, "createRelationship", http.MethodPost, path, rel, nil)
	if err != nil {
		return "", err
	}
	return result.entityID, nil
}

// RelationshipExists probes for an association by schema name.
func (c *Client) RelationshipExists(ctx context.Context, schemaName string) (bool, error) {
	path := fmt.Sprintf("/RelationshipDefinitions(SchemaName='%s')?$select=MetadataId,SchemaName", escapeKey(schemaName))
	if _, err := c.do(ctx, "getRelationship", http.MethodGet, path, nil, nil); err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// DeleteRelationship removes an association by schema name.
func (c *Client) DeleteRelationship(ctx context.Context, schemaName string) error {
	path := fmt.Sprintf("/RelationshipDefinitions(SchemaName='%s')", escapeKey(schemaName))
	_, err := c.do(ctx, "deleteRelationship", http.MethodDelete, path, nil, nil)
	return err
}
