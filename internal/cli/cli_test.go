package cli

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"linkloft/internal/session"
)

func testJWT(t *testing.T, sub string) string {
	t.Helper()
	enc := func(v any) string {
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		return base64.RawURLEncoding.EncodeToString(b)
	}
	return enc(map[string]string{"alg": "none"}) + "." + enc(map[string]string{"sub": sub}) + ".sig"
}

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	err := cmd.Execute()
	return out.String(), err
}

// fakeGQL answers the profile query and records mutations.
type fakeGQL struct {
	mu      sync.Mutex
	deletes int
	inserts int
	updates int
}

func (f *fakeGQL) handler(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var req struct {
		Query     string         `json:"query"`
		Variables map[string]any `json:"variables"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	write := func(data string) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"data":`+data+`}`)
	}
	switch {
	case strings.Contains(req.Query, "query me"):
		write(`{"users": [{
			"first_name": "Sarah", "last_name": "Lane", "email": "sarah@example.com", "image": "",
			"links": [{"id": "link-1", "platform": "github", "url": "https://github.com/sarah", "position": 0}]
		}]}`)
	case strings.Contains(req.Query, "delete_links_by_pk"):
		f.deletes++
		write(`{"delete_links_by_pk": {"id": "x"}}`)
	case strings.Contains(req.Query, "insert_links"):
		f.inserts++
		objects, _ := req.Variables["objects"].([]any)
		rows := make([]string, 0, len(objects))
		for i := range objects {
			rows = append(rows, `{"id": "remote-`+strconv.Itoa(i+1)+`"}`)
		}
		write(`{"insert_links": {"returning": [` + strings.Join(rows, ",") + `]}}`)
	case strings.Contains(req.Query, "update_links_by_pk"):
		f.updates++
		id, _ := req.Variables["id"].(string)
		write(`{"update_links_by_pk": {"id": "` + id + `"}}`)
	case strings.Contains(req.Query, "update_users"):
		write(`{"update_users": {"returning": [{"first_name": "Sarah", "last_name": "Lane", "email": "sarah@example.com", "image": "", "links": []}]}}`)
	default:
		http.Error(w, "unexpected query", http.StatusBadRequest)
	}
}

func setupEnv(t *testing.T) *fakeGQL {
	t.Helper()
	gql := &fakeGQL{}
	srv := httptest.NewServer(http.HandlerFunc(gql.handler))
	t.Cleanup(srv.Close)

	t.Setenv("LINKLOFT_CONFIG_DIR", t.TempDir())
	t.Setenv("LINKLOFT_HASURA_ENDPOINT", srv.URL)
	if err := (session.Store{}).Save(testJWT(t, "auth0|sarah")); err != nil {
		t.Fatalf("seeding session: %v", err)
	}
	return gql
}

func TestWhoamiRequiresLogin(t *testing.T) {
	t.Setenv("LINKLOFT_CONFIG_DIR", t.TempDir())
	_, err := runCLI(t, "", "whoami")
	if err == nil || !strings.Contains(err.Error(), "not logged in") {
		t.Fatalf("expected not-logged-in error, got %v", err)
	}
}

func TestWhoamiReportsSubjectAndProfile(t *testing.T) {
	setupEnv(t)
	out, err := runCLI(t, "", "whoami")
	if err != nil {
		t.Fatalf("whoami: %v", err)
	}
	if !strings.Contains(out, "auth0|sarah") || !strings.Contains(out, "Sarah Lane") {
		t.Fatalf("unexpected whoami output: %s", out)
	}
}

func TestLinksListOutputsOrderedLinks(t *testing.T) {
	setupEnv(t)
	out, err := runCLI(t, "", "links", "list")
	if err != nil {
		t.Fatalf("links list: %v", err)
	}
	var payload struct {
		Data struct {
			Links []struct {
				ID  string `json:"id"`
				URL string `json:"url"`
			} `json:"links"`
		} `json:"data"`
	}
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if len(payload.Data.Links) != 1 || payload.Data.Links[0].ID != "link-1" {
		t.Fatalf("unexpected links: %+v", payload.Data.Links)
	}
}

func TestLinksSaveReplacesCollection(t *testing.T) {
	gql := setupEnv(t)
	input := `[{"platform": "twitch", "url": "https://twitch.tv/sarah"}, {"platform": "youtube", "url": "https://youtube.com/@sarah"}]`
	out, err := runCLI(t, input, "links", "save", "-")
	if err != nil {
		t.Fatalf("links save: %v", err)
	}
	if gql.deletes != 1 {
		t.Fatalf("deletes = %d, want 1 (the existing link)", gql.deletes)
	}
	if gql.inserts != 1 {
		t.Fatalf("inserts = %d, want one batched create", gql.inserts)
	}
	if !strings.Contains(out, "remote-1") || !strings.Contains(out, "remote-2") {
		t.Fatalf("output missing assigned ids: %s", out)
	}
}

func TestLinksSaveRejectsInvalidRows(t *testing.T) {
	gql := setupEnv(t)
	_, err := runCLI(t, `[{"platform": "twitch", "url": "not a url"}]`, "links", "save", "-")
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if gql.deletes != 0 || gql.inserts != 0 {
		t.Fatalf("invalid input must not reach the backend (deletes=%d inserts=%d)", gql.deletes, gql.inserts)
	}
}

func TestProfileSetUpdatesFields(t *testing.T) {
	setupEnv(t)
	out, err := runCLI(t, "", "profile", "set", "--last-name", "Lane-Smith")
	if err != nil {
		t.Fatalf("profile set: %v", err)
	}
	if !strings.Contains(out, "Lane-Smith") {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestProfileSetNeedsAtLeastOneFlag(t *testing.T) {
	setupEnv(t)
	_, err := runCLI(t, "", "profile", "set")
	if err == nil || !strings.Contains(err.Error(), "nothing to change") {
		t.Fatalf("expected nothing-to-change error, got %v", err)
	}
}

func TestLoginRequiresEmail(t *testing.T) {
	t.Setenv("LINKLOFT_CONFIG_DIR", t.TempDir())
	t.Setenv("LINKLOFT_IDENTITY_DOMAIN", "https://acme.example.com")
	t.Setenv("LINKLOFT_IDENTITY_CLIENT_ID", "client-1")
	_, err := runCLI(t, "", "login")
	if err == nil || !strings.Contains(err.Error(), "missing --email") {
		t.Fatalf("expected missing-email error, got %v", err)
	}
}
