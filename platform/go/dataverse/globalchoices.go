package dataverse

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// GlobalChoice is a shared option set. Option sets are globally scoped; the
// publisher prefix on Name is the only namespacing the platform gives them.
type GlobalChoice struct {
	ID          string `json:"MetadataId"`
	Name        string `json:"Name"`
	DisplayName string `json:"-"`
	Options     []ChoiceOption
}

// ChoiceOption is one value/label pair of an option set.
type ChoiceOption struct {
	Value int
	Label string
}

type globalChoiceRecord struct {
	MetadataID  string `json:"MetadataId"`
	Name        string `json:"Name"`
	DisplayName *Label `json:"DisplayName"`
}

type globalChoiceList struct {
	Value []globalChoiceRecord `json:"value"`
}

// GetGlobalChoiceByName looks a shared option set up by its (prefixed) name.
func (c *Client) GetGlobalChoiceByName(ctx context.Context, name string) (GlobalChoice, error) {
	const op = "getGlobalChoice"

	path := fmt.Sprintf("/GlobalOptionSetDefinitions(Name='%s')", escapeKey(name))
	var record globalChoiceRecord
	if _, err := c.do(ctx, op, http.MethodGet, path, nil, &record); err != nil {
		return GlobalChoice{}, err
	}
	return toGlobalChoice(record), nil
}

// ListGlobalChoicesByPrefix returns the shared option sets whose names carry
// the publisher prefix. The metadata endpoint does not support $filter on
// Name, so the subset is selected client-side.
func (c *Client) ListGlobalChoicesByPrefix(ctx context.Context, prefix string) ([]GlobalChoice, error) {
	query := url.Values{}
	query.Set("$select", "MetadataId,Name,DisplayName")

	var list globalChoiceList
	if _, err := c.do(ctx, "listGlobalChoices", http.MethodGet, "/GlobalOptionSetDefinitions?"+query.Encode(), nil, &list); err != nil {
		return nil, err
	}

	prefixed := make([]GlobalChoice, 0, len(list.Value))
	for _, record := range list.Value {
		if strings.HasPrefix(record.Name, prefix+"_") {
			prefixed = append(prefixed, toGlobalChoice(record))
		}
	}
	return prefixed, nil
}

// CreateGlobalChoice creates a shared option set and returns its metadata id.
func (c *Client) CreateGlobalChoice(ctx context.Context, name, displayName string, options []ChoiceOption) (string, error) {
	optionPayload := make([]map[string]any, 0, len(options))
	for _, option := range options {
		optionPayload = append(optionPayload, map[string]any{
			"Value": option.Value,
			"Label": NewLabel(option.Label),
		})
	}

	payload := map[string]any{
		"@odata.type":   "#Microsoft.Dynamics.CRM.OptionSetMetadata",
		"Name":          name,
		"DisplayName":   NewLabel(displayName),
		"IsGlobal":      true,
		"OptionSetType": "Picklist",
		"Options":       optionPayload,
	}

	result, err := c.do(ctx, "createGlobalChoice", http.MethodPost, "/GlobalOptionSetDefinitions", payload, nil)
	if err != nil {
		return "", err
	}
	return result.entityID, nil
}

// DeleteGlobalChoice removes a shared option set by metadata id.
func (c *Client) DeleteGlobalChoice(ctx context.Context, id string) error {
	_, err := c.do(ctx, "deleteGlobalChoice", http.MethodDelete, fmt.Sprintf("/GlobalOptionSetDefinitions(%s)", id), nil, nil)
	return err
}

func toGlobalChoice(record globalChoiceRecord) GlobalChoice {
	choice := GlobalChoice{ID: strings.ToLower(record.MetadataID), Name: record.Name}
	if record.DisplayName != nil && len(record.DisplayName.LocalizedLabels) > 0 {
		choice.DisplayName = record.DisplayName.LocalizedLabels[0].Label
	}
	return choice
}
