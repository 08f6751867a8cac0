// Package hasura is a typed client for the hosted GraphQL data service.
// The application depends only on four operation shapes (insert_links,
// update_links_by_pk, delete_links_by_pk, and the profile+links query),
// not on the service's internal schema, so the client is a small set of
// fixed documents rather than a generic GraphQL layer.
package hasura

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// Config holds configuration for creating a Client.
type Config struct {
	// Endpoint is the GraphQL HTTP endpoint (e.g. https://x.hasura.app/v1/graphql).
	Endpoint string

	// AdminSecret, when set, is sent as x-hasura-admin-secret on every
	// request. Used by operator tooling; normal sessions rely on the
	// per-call bearer token.
	AdminSecret string

	// HTTPClient is used for all requests. Defaults to http.DefaultClient.
	HTTPClient *http.Client

	// Logger is used for structured logging. Defaults to slog.Default().
	Logger *slog.Logger
}

// Client executes the fixed GraphQL documents the application needs.
type Client struct {
	endpoint    string
	adminSecret string
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewClient creates a data-service client from the given configuration.
func NewClient(config Config) (*Client, error) {
	endpoint := strings.TrimSpace(config.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("hasura: missing endpoint")
	}
	if !strings.HasPrefix(endpoint, "https://") && !strings.HasPrefix(endpoint, "http://") {
		return nil, fmt.Errorf("hasura: endpoint must be an http(s) URL (got %q)", endpoint)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		endpoint:    endpoint,
		adminSecret: config.AdminSecret,
		httpClient:  httpClient,
		logger:      logger,
	}, nil
}

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type gqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []gqlError      `json:"errors"`
}

type gqlError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

// do executes one GraphQL document. A non-2xx status or a non-empty
// errors array becomes an *APIError; transport failures pass through
// wrapped. The returned bytes are the raw "data" object.
func (client *Client) do(ctx context.Context, token, query string, variables map[string]any) (json.RawMessage, error) {
	body, err := json.Marshal(gqlRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("hasura: encoding request: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, client.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("hasura: creating request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	if client.adminSecret != "" {
		request.Header.Set("x-hasura-admin-secret", client.adminSecret)
	}

	response, err := client.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("hasura: %w", err)
	}
	defer response.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(response.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("hasura: reading response body: %w", err)
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return nil, &APIError{StatusCode: response.StatusCode, Message: strings.TrimSpace(string(raw))}
	}

	var parsed gqlResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("hasura: decoding response: %w", err)
	}
	if len(parsed.Errors) > 0 {
		apiErr := &APIError{StatusCode: response.StatusCode}
		for _, e := range parsed.Errors {
			apiErr.Errors = append(apiErr.Errors, OperationError{Message: e.Message, Code: e.Extensions.Code})
		}
		apiErr.Message = parsed.Errors[0].Message
		client.logger.Debug("graphql operation rejected", "code", parsed.Errors[0].Extensions.Code, "message", parsed.Errors[0].Message)
		return nil, apiErr
	}
	return parsed.Data, nil
}
