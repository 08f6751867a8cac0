package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewTLSServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{
		Domain:     server.URL,
		ClientID:   "client-1",
		HTTPClient: server.Client(),
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestLogin_PasswordGrant(t *testing.T) {
	var gotPath string
	var gotBody map[string]string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]string{"id_token": "tok-123"})
	})

	tok, err := client.Login(context.Background(), " user@example.com ", "hunter2")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if tok != "tok-123" {
		t.Fatalf("token: %q", tok)
	}
	if gotPath != "/oauth/token" {
		t.Fatalf("path: %q", gotPath)
	}
	if gotBody["username"] != "user@example.com" || gotBody["client_id"] != "client-1" {
		t.Fatalf("grant body: %v", gotBody)
	}
	if gotBody["password"] != "hunter2" {
		t.Fatalf("password not forwarded")
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(403)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Wrong email or password."}`))
	})

	_, err := client.Login(context.Background(), "user@example.com", "wrong")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !IsInvalidCredentials(err) {
		t.Fatalf("expected credentials classification; got %v", err)
	}
}

func TestLogin_EmptyTokenResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	if _, err := client.Login(context.Background(), "u@example.com", "p"); err == nil {
		t.Fatalf("expected error for empty token response")
	}
}

func TestSignup_PostsConnection(t *testing.T) {
	var gotPath string
	var gotBody map[string]string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"_id":"x"}`))
	})

	if err := client.Signup(context.Background(), "new@example.com", "hunter2"); err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if gotPath != "/dbconnections/signup" {
		t.Fatalf("path: %q", gotPath)
	}
	if gotBody["connection"] != defaultConnection {
		t.Fatalf("connection: %q", gotBody["connection"])
	}
}

func TestNewClient_Validation(t *testing.T) {
	if _, err := NewClient(Config{ClientID: "x"}); err == nil {
		t.Fatalf("expected error for missing domain")
	}
	if _, err := NewClient(Config{Domain: "http://insecure", ClientID: "x"}); err == nil {
		t.Fatalf("expected error for non-https domain")
	}
	if _, err := NewClient(Config{Domain: "https://acme.auth0.com"}); err == nil {
		t.Fatalf("expected error for missing client id")
	}
}
