package dataverse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

// TokenProvider supplies a bearer token per call. Token acquisition lives
// outside this package; tests and simple setups can use StaticToken.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenProvider returning a fixed token.
type StaticToken string

func (t StaticToken) Token(ctx context.Context) (string, error) {
	return string(t), nil
}

// Config captures the knobs required to build a platform client.
type Config struct {
	BaseURL string // e.g. https://org.example.com/api/data/v9.2
	Tokens  TokenProvider
	Logger  *zap.Logger

	// HTTPClient overrides the transport; nil uses http.DefaultClient.
	HTTPClient *http.Client
	// CallTimeout bounds metadata reads and writes (default 30s).
	CallTimeout time.Duration
	// DeleteEntityTimeout bounds entity deletion, which the platform services
	// far slower than other metadata calls (default 2m).
	DeleteEntityTimeout time.Duration
	// Metrics is optional; nil disables instrumentation.
	Metrics *Metrics
}

// Client issues authenticated calls against the platform's resource-style
// metadata endpoints and classifies every failure into a typed APIError.
type Client struct {
	baseURL             string
	httpClient          *http.Client
	tokens              TokenProvider
	logger              *zap.Logger
	callTimeout         time.Duration
	deleteEntityTimeout time.Duration
	metrics             *Metrics
}

// NewClient constructs a Client and validates required configuration.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("dataverse base URL is required")
	}
	if cfg.Tokens == nil {
		return nil, errors.New("dataverse token provider is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	callTimeout := cfg.CallTimeout
	if callTimeout <= 0 {
		callTimeout = 30 * time.Second
	}
	deleteEntityTimeout := cfg.DeleteEntityTimeout
	if deleteEntityTimeout <= 0 {
		deleteEntityTimeout = 2 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		baseURL:             strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient:          httpClient,
		tokens:              cfg.Tokens,
		logger:              logger,
		callTimeout:         callTimeout,
		deleteEntityTimeout: deleteEntityTimeout,
		metrics:             cfg.Metrics,
	}, nil
}

// callResult carries the pieces of a successful response callers may need.
type callResult struct {
	statusCode int
	body       []byte
	entityID   string
}

// do issues one request with the default call timeout.
func (c *Client) do(ctx context.Context, op, method, path string, payload any, out any) (*callResult, error) {
	return c.doWithTimeout(ctx, op, method, path, payload, out, c.callTimeout)
}

func (c *Client) doWithTimeout(ctx context.Context, op, method, path string, payload any, out any, timeout time.Duration) (*callResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reqBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%s: encode request: %w", op, err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: acquire token: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("OData-MaxVersion", "4.0")
	req.Header.Set("OData-Version", "4.0")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		apiErr := c.transportError(op, ctx, err)
		c.observe(op, apiErr)
		return nil, apiErr
	}
	defer resp.Body.Close() // nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := classify(op, resp.StatusCode, body)
		c.observe(op, apiErr)
		return nil, apiErr
	}

	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return nil, fmt.Errorf("%s: decode response: %w", op, err)
		}
	}

	c.observe(op, nil)
	return &callResult{
		statusCode: resp.StatusCode,
		body:       body,
		entityID:   entityIDFromHeader(resp.Header.Get("OData-EntityId")),
	}, nil
}

// transportError wraps network failures. A deadline hit becomes KindTimeout
// because the remote operation may still have completed; everything else is
// treated as transient.
func (c *Client) transportError(op string, ctx context.Context, err error) *APIError {
	kind := KindTransient
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		kind = KindTimeout
	}
	return &APIError{Op: op, Kind: kind, Message: err.Error()}
}

func (c *Client) observe(op string, apiErr *APIError) {
	if c.metrics == nil {
		return
	}
	outcome := "success"
	if apiErr != nil {
		outcome = string(apiErr.Kind)
	}
	c.metrics.ObserveRequest(op, outcome)
}

var entityIDPattern = regexp.MustCompile(`\(([0-9a-fA-F-]{36})\)\s*$`)

// entityIDFromHeader extracts the created resource id from an OData-EntityId
// header of the form https://host/api/data/v9.2/publishers(<guid>).
func entityIDFromHeader(header string) string {
	if header == "" {
		return ""
	}
	match := entityIDPattern.FindStringSubmatch(header)
	if len(match) != 2 {
		return ""
	}
	return strings.ToLower(match[1])
}

// escapeKey escapes a value used inside an alternate-key segment such as
// EntityDefinitions(LogicalName='x').
func escapeKey(value string) string {
	return strings.ReplaceAll(value, "'", "''")
}
