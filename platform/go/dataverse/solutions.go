package dataverse

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// Solution is the deployable container grouping everything a deployment creates.
type Solution struct {
	ID           string `json:"solutionid"`
	UniqueName   string `json:"uniquename"`
	FriendlyName string `json:"friendlyname"`
	PublisherID  string `json:"_publisherid_value"`
}

type solutionList struct {
	Value []Solution `json:"value"`
}

// Solution component type codes used by AddSolutionComponent.
const (
	ComponentTypeEntity          = 1
	ComponentTypeGlobalOptionSet = 9
)

// GetSolution looks a solution up by unique name.
func (c *Client) GetSolution(ctx context.Context, uniqueName string) (Solution, error) {
	const op = "getSolution"

	query := url.Values{}
	query.Set("$select", "solutionid,uniquename,friendlyname,_publisherid_value")
	query.Set("$filter", fmt.Sprintf("uniquename eq '%s'", escapeKey(uniqueName)))

	var list solutionList
	if _, err := c.do(ctx, op, http.MethodGet, "/solutions?"+query.Encode(), nil, &list); err != nil {
		return Solution{}, err
	}
	if len(list.Value) == 0 {
		return Solution{}, &APIError{Op: op, StatusCode: http.StatusNotFound, Kind: KindNotFound, Message: "solution not found"}
	}
	return list.Value[0], nil
}

// CreateSolution creates a solution owned by the given publisher and returns its id.
func (c *Client) CreateSolution(ctx context.Context, uniqueName, friendlyName, publisherID string) (string, error) {
	payload := map[string]any{
		"uniquename":             uniqueName,
		"friendlyname":           friendlyName,
		"version":                "1.0.0.0",
		"publisherid@odata.bind": fmt.Sprintf("/publishers(%s)", publisherID),
	}

	result, err := c.do(ctx, "createSolution", http.MethodPost, "/solutions", payload, nil)
	if err != nil {
		return "", err
	}
	return result.entityID, nil
}

// DeleteSolution removes a solution by id.
func (c *Client) DeleteSolution(ctx context.Context, id string) error {
	_, err := c.do(ctx, "deleteSolution", http.MethodDelete, fmt.Sprintf("/solutions(%s)", id), nil, nil)
	return err
}

// AddSolutionComponent attaches an existing component (by id and numeric
// component-type code) to a solution via the dedicated action endpoint.
func (c *Client) AddSolutionComponent(ctx context.Context, componentID string, componentType int, solutionUniqueName string) error {
	payload := map[string]any{
		"ComponentId":           componentID,
		"ComponentType":         componentType,
		"SolutionUniqueName":    solutionUniqueName,
		"AddRequiredComponents": false,
	}

	_, err := c.do(ctx, "addSolutionComponent", http.MethodPost, "/AddSolutionComponent", payload, nil)
	return err
}
