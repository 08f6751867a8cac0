// Package identity is a thin client for the external identity provider.
// It exchanges email/password for an opaque bearer credential; decoding
// the credential belongs to the session package, and no verification is
// performed anywhere client-side (the trust boundary is the network
// request to the provider).
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// Config holds configuration for creating a Client.
type Config struct {
	// Domain is the provider tenant base URL (e.g. https://acme.auth0.com).
	Domain string

	// ClientID identifies this application to the provider.
	ClientID string

	// Connection is the provider's database-connection name used for
	// password grants and signups. Defaults to the provider's standard
	// username/password store.
	Connection string

	// HTTPClient is used for all requests. Defaults to http.DefaultClient.
	HTTPClient *http.Client

	// Logger is used for structured logging. Defaults to slog.Default().
	Logger *slog.Logger
}

const defaultConnection = "Username-Password-Authentication"

// Client talks to the identity provider.
type Client struct {
	domain     string
	clientID   string
	connection string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates an identity-provider client.
func NewClient(config Config) (*Client, error) {
	domain := strings.TrimRight(strings.TrimSpace(config.Domain), "/")
	if domain == "" {
		return nil, fmt.Errorf("identity: missing domain")
	}
	if !strings.HasPrefix(domain, "https://") {
		return nil, fmt.Errorf("identity: domain must use HTTPS (got %q)", domain)
	}
	if strings.TrimSpace(config.ClientID) == "" {
		return nil, fmt.Errorf("identity: missing client id")
	}

	connection := config.Connection
	if connection == "" {
		connection = defaultConnection
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
		domain:     domain,
		clientID:   config.ClientID,
		connection: connection,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// AuthError is a rejected provider request (bad credentials, policy).
type AuthError struct {
	StatusCode  int
	Code        string
	Description string
}

func (err *AuthError) Error() string {
	if err.Description != "" {
		return fmt.Sprintf("identity: HTTP %d: %s", err.StatusCode, err.Description)
	}
	return fmt.Sprintf("identity: HTTP %d: %s", err.StatusCode, err.Code)
}

// IsInvalidCredentials reports whether err means the email/password pair
// was rejected (as opposed to a transport or provider failure).
func IsInvalidCredentials(err error) bool {
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		return false
	}
	return authErr.StatusCode == 401 || authErr.StatusCode == 403 || authErr.Code == "invalid_grant"
}

// Login exchanges email/password for an opaque bearer credential via the
// provider's password grant.
func (client *Client) Login(ctx context.Context, email, password string) (string, error) {
	payload := map[string]string{
		"grant_type": "http://auth0.com/oauth/grant-type/password-realm",
		"realm":      client.connection,
		"client_id":  client.clientID,
		"username":   strings.TrimSpace(email),
		"password":   password,
		"scope":      "openid",
	}
	body, err := client.post(ctx, "/oauth/token", payload)
	if err != nil {
		return "", err
	}
	var out struct {
		IDToken     string `json:"id_token"`
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("identity: decoding token response: %w", err)
	}
	token := out.IDToken
	if token == "" {
		token = out.AccessToken
	}
	if token == "" {
		return "", fmt.Errorf("identity: token response carried no credential")
	}
	return token, nil
}

// Signup registers a new account with the provider. It does not log the
// user in; callers follow up with Login.
func (client *Client) Signup(ctx context.Context, email, password string) error {
	payload := map[string]string{
		"client_id":  client.clientID,
		"connection": client.connection,
		"email":      strings.TrimSpace(email),
		"password":   password,
	}
	_, err := client.post(ctx, "/dbconnections/signup", payload)
	return err
}

func (client *Client) post(ctx context.Context, path string, payload map[string]string) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("identity: encoding request: %w", err)
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, client.domain+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("identity: creating request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := client.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("identity: %w", err)
	}
	defer response.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(response.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("identity: reading response body: %w", err)
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		authErr := &AuthError{StatusCode: response.StatusCode}
		var parsed struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
			Code             string `json:"code"`
			Description      string `json:"description"`
		}
		if json.Unmarshal(raw, &parsed) == nil {
			authErr.Code = parsed.Error
			if authErr.Code == "" {
				authErr.Code = parsed.Code
			}
			authErr.Description = parsed.ErrorDescription
			if authErr.Description == "" {
				authErr.Description = parsed.Description
			}
		}
		client.logger.Debug("identity request rejected", "path", path, "status", response.StatusCode, "code", authErr.Code)
		return nil, authErr
	}
	return raw, nil
}
