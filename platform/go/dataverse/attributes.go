package dataverse

import (
	"context"
	"fmt"
	"net/http"
)

// OData metadata types for attribute payloads.
const (
	TypeStringAttribute   = "Microsoft.Dynamics.CRM.StringAttributeMetadata"
	TypeMemoAttribute     = "Microsoft.Dynamics.CRM.MemoAttributeMetadata"
	TypeIntegerAttribute  = "Microsoft.Dynamics.CRM.IntegerAttributeMetadata"
	TypeDecimalAttribute  = "Microsoft.Dynamics.CRM.DecimalAttributeMetadata"
	TypeMoneyAttribute    = "Microsoft.Dynamics.CRM.MoneyAttributeMetadata"
	TypeBooleanAttribute  = "Microsoft.Dynamics.CRM.BooleanAttributeMetadata"
	TypeDateTimeAttribute = "Microsoft.Dynamics.CRM.DateTimeAttributeMetadata"
	TypeLookupAttribute   = "Microsoft.Dynamics.CRM.LookupAttributeMetadata"
)

// RequiredLevel wraps the platform's managed-property envelope for requiredness.
type RequiredLevel struct {
	Value string `json:"Value"`
}

// AttributeDefinition is the create payload for a column. Optional fields are
// pointers so the encoder omits what a given attribute type does not use.
type AttributeDefinition struct {
	ODataType     string        `json:"@odata.type,omitempty"`
	SchemaName    string        `json:"SchemaName"`
	DisplayName   Label         `json:"DisplayName"`
	RequiredLevel RequiredLevel `json:"RequiredLevel"`

	IsPrimaryName *bool   `json:"IsPrimaryName,omitempty"`
	MaxLength     *int    `json:"MaxLength,omitempty"`
	Format        *string `json:"Format,omitempty"`
	FormatName    *struct {
		Value string `json:"Value"`
	} `json:"FormatName,omitempty"`
	MinValue  *float64 `json:"MinValue,omitempty"`
	MaxValue  *float64 `json:"MaxValue,omitempty"`
	Precision *int     `json:"Precision,omitempty"`
	OptionSet map[string]any `json:"OptionSet,omitempty"`
}

// CreateAttribute adds a column to an existing table and returns its metadata id.
func (c *Client) CreateAttribute(ctx context.Context, entityLogicalName string, def AttributeDefinition, solutionUniqueName string) (string, error) {
	path := fmt.Sprintf("/EntityDefinitions(LogicalName='%s')/Attributes", escapeKey(entityLogicalName))
	if solutionUniqueName != "" {
		path += "?$solution=" + solutionUniqueName
	}

	result, err := c.do(ctx, "createAttribute", http.MethodPost, path, def, nil)
	if err != nil {
		return "", err
	}
	return result.entityID, nil
}
