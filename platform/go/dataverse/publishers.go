package dataverse

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// Publisher is the namespace-owning object whose prefix scopes every schema
// name created under it.
type Publisher struct {
	ID           string `json:"publisherid"`
	UniqueName   string `json:"uniquename"`
	FriendlyName string `json:"friendlyname"`
	Prefix       string `json:"customizationprefix"`
}

// PublisherSpec describes a publisher to create.
type PublisherSpec struct {
	UniqueName   string
	FriendlyName string
	Prefix       string
	// OptionValuePrefix seeds option values created under this publisher.
	OptionValuePrefix int
}

type publisherList struct {
	Value []Publisher `json:"value"`
}

const publisherSelect = "publisherid,uniquename,friendlyname,customizationprefix"

// GetPublisherByName looks a publisher up by unique name. Absence surfaces as
// a KindNotFound APIError.
func (c *Client) GetPublisherByName(ctx context.Context, uniqueName string) (Publisher, error) {
	return c.findPublisher(ctx, "getPublisherByName", fmt.Sprintf("uniquename eq '%s'", escapeKey(uniqueName)))
}

// GetPublisherByPrefix looks a publisher up by customization prefix, guarding
// against creating two publishers that would collide on schema names.
func (c *Client) GetPublisherByPrefix(ctx context.Context, prefix string) (Publisher, error) {
	return c.findPublisher(ctx, "getPublisherByPrefix", fmt.Sprintf("customizationprefix eq '%s'", escapeKey(prefix)))
}

func (c *Client) findPublisher(ctx context.Context, op, filter string) (Publisher, error) {
	query := url.Values{}
	query.Set("$select", publisherSelect)
	query.Set("$filter", filter)

	var list publisherList
	if _, err := c.do(ctx, op, http.MethodGet, "/publishers?"+query.Encode(), nil, &list); err != nil {
		return Publisher{}, err
	}
	if len(list.Value) == 0 {
		return Publisher{}, &APIError{Op: op, StatusCode: http.StatusNotFound, Kind: KindNotFound, Message: "publisher not found"}
	}
	return list.Value[0], nil
}

// CreatePublisher creates a publisher and returns its id.
func (c *Client) CreatePublisher(ctx context.Context, spec PublisherSpec) (string, error) {
	optionPrefix := spec.OptionValuePrefix
	if optionPrefix == 0 {
		optionPrefix = 10000
	}

	payload := map[string]any{
		"uniquename":                     spec.UniqueName,
		"friendlyname":                   spec.FriendlyName,
		"customizationprefix":            spec.Prefix,
		"customizationoptionvalueprefix": optionPrefix,
	}

	result, err := c.do(ctx, "createPublisher", http.MethodPost, "/publishers", payload, nil)
	if err != nil {
		return "", err
	}
	return result.entityID, nil
}

// DeletePublisher removes a publisher by id.
func (c *Client) DeletePublisher(ctx context.Context, id string) error {
	_, err := c.do(ctx, "deletePublisher", http.MethodDelete, fmt.Sprintf("/publishers(%s)", id), nil, nil)
	return err
}
