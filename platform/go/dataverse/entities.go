package dataverse

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// Label is the platform's localized-label envelope.
type Label struct {
	LocalizedLabels []LocalizedLabel `json:"LocalizedLabels"`
}

// LocalizedLabel carries one translation of a display name.
type LocalizedLabel struct {
	Label        string `json:"Label"`
	LanguageCode int    `json:"LanguageCode"`
}

// NewLabel builds a single-language label (1033, the platform's base language).
func NewLabel(text string) Label {
	return Label{LocalizedLabels: []LocalizedLabel{{Label: text, LanguageCode: 1033}}}
}

// EntityDefinition is the create payload for a custom table. Attributes holds
// only the primary name column; regular columns are created per attribute
// afterwards.
type EntityDefinition struct {
	SchemaName            string                `json:"SchemaName"`
	DisplayName           Label                 `json:"DisplayName"`
	DisplayCollectionName Label                 `json:"DisplayCollectionName"`
	OwnershipType         string                `json:"OwnershipType"`
	HasNotes              bool                  `json:"HasNotes"`
	HasActivities         bool                  `json:"HasActivities"`
	Attributes            []AttributeDefinition `json:"Attributes"`
}

// EntityRef identifies an existing table.
type EntityRef struct {
	MetadataID  string `json:"MetadataId"`
	LogicalName string `json:"LogicalName"`
	SchemaName  string `json:"SchemaName"`
}

// CreateEntity creates a table inside the named solution and returns its metadata id.
func (c *Client) CreateEntity(ctx context.Context, def EntityDefinition, solutionUniqueName string) (string, error) {
	query := url.Values{}
	if solutionUniqueName != "" {
		query.Set("$solution", solutionUniqueName)
	}
	path := "/EntityDefinitions"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}

	result, err := c.do(ctx, "createEntity", http.MethodPost, path, def, nil)
	if err != nil {
		return "", err
	}
	return result.entityID, nil
}

// GetEntityByLogicalName fetches an existing table's identity.
func (c *Client) GetEntityByLogicalName(ctx context.Context, logicalName string) (EntityRef, error) {
	query := url.Values{}
	query.Set("$select", "MetadataId,LogicalName,SchemaName")
	path := fmt.Sprintf("/EntityDefinitions(LogicalName='%s')?%s", escapeKey(logicalName), query.Encode())

	var ref EntityRef
	if _, err := c.do(ctx, "getEntity", http.MethodGet, path, nil, &ref); err != nil {
		return EntityRef{}, err
	}
	return ref, nil
}

// EntityExists probes whether a table is queryable yet. Errors other than
// not-found propagate so callers can distinguish "absent" from "unreachable".
func (c *Client) EntityExists(ctx context.Context, logicalName string) (bool, error) {
	_, err := c.GetEntityByLogicalName(ctx, logicalName)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// DeleteEntity removes a table. Entity deletion is the slowest metadata call
// the platform serves, so it runs under the extended delete timeout.
func (c *Client) DeleteEntity(ctx context.Context, logicalName string) error {
	path := fmt.Sprintf("/EntityDefinitions(LogicalName='%s')", escapeKey(logicalName))
	_, err := c.doWithTimeout(ctx, "deleteEntity", http.MethodDelete, path, nil, nil, c.deleteEntityTimeout)
	return err
}
