package web

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"linkloft/internal/cache"
	"linkloft/internal/hasura"
	"linkloft/internal/identity"
)

const testSubject = "auth0|sarah"

func testJWT(t *testing.T, sub string) string {
	t.Helper()
	enc := func(v any) string {
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		return base64.RawURLEncoding.EncodeToString(b)
	}
	header := enc(map[string]string{"alg": "none", "typ": "JWT"})
	payload := enc(map[string]string{"sub": sub})
	return header + "." + payload + ".sig"
}

// fakeData is a canned GraphQL backend holding one user with one link.
type fakeData struct {
	mu     sync.Mutex
	down   bool
	exists bool
	calls  []string
}

func (f *fakeData) recordedCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeData) setDown(v bool) {
	f.mu.Lock()
	f.down = v
	f.mu.Unlock()
}

func (f *fakeData) handler(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
		return
	}

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

	const userRow = `{
		"first_name": "Sarah", "last_name": "Lane", "email": "sarah@example.com", "image": "",
		"links": [{"id": "link-1", "platform": "github", "url": "https://github.com/sarah", "position": 0}]
	}`

	switch {
	case strings.Contains(req.Query, "query me"):
		f.calls = append(f.calls, "me")
		if !f.exists {
			write(`{"users": []}`)
			return
		}
		write(`{"users": [` + userRow + `]}`)
	case strings.Contains(req.Query, "publicProfile"):
		f.calls = append(f.calls, "publicProfile")
		if !f.exists {
			write(`{"users": []}`)
			return
		}
		write(`{"users": [` + userRow + `]}`)
	case strings.Contains(req.Query, "insert_links"):
		f.calls = append(f.calls, "insert")
		objects, _ := req.Variables["objects"].([]any)
		ids := make([]string, 0, len(objects))
		for i := range objects {
			ids = append(ids, "remote-"+strconv.Itoa(i+1))
		}
		rows := make([]string, 0, len(ids))
		for _, id := range ids {
			rows = append(rows, `{"id": "`+id+`"}`)
		}
		write(`{"insert_links": {"returning": [` + strings.Join(rows, ",") + `]}}`)
	case strings.Contains(req.Query, "update_links_by_pk"):
		f.calls = append(f.calls, "update")
		id, _ := req.Variables["id"].(string)
		write(`{"update_links_by_pk": {"id": "` + id + `"}}`)
	case strings.Contains(req.Query, "delete_links_by_pk"):
		f.calls = append(f.calls, "delete")
		write(`{"delete_links_by_pk": {"id": "x"}}`)
	case strings.Contains(req.Query, "update_users"):
		f.calls = append(f.calls, "upsertProfile")
		write(`{"update_users": {"returning": [` + userRow + `]}}`)
	default:
		http.Error(w, "unexpected query: "+req.Query, http.StatusBadRequest)
	}
}

type testEnv struct {
	server   *Server
	handler  http.Handler
	data     *fakeData
	stateDir string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	data := &fakeData{exists: true}
	gql := httptest.NewServer(http.HandlerFunc(data.handler))
	t.Cleanup(gql.Close)

	idp := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/token":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["password"] != "correct horse" {
				w.WriteHeader(http.StatusForbidden)
				_, _ = io.WriteString(w, `{"error": "invalid_grant", "error_description": "Wrong email or password."}`)
				return
			}
			_, _ = io.WriteString(w, `{"id_token": "`+testJWT(t, testSubject)+`"}`)
		case "/dbconnections/signup":
			_, _ = io.WriteString(w, `{"_id": "abc"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(idp.Close)

	hc, err := hasura.NewClient(hasura.Config{Endpoint: gql.URL})
	if err != nil {
		t.Fatalf("hasura.NewClient: %v", err)
	}
	ic, err := identity.NewClient(identity.Config{Domain: idp.URL, ClientID: "client-1", HTTPClient: idp.Client()})
	if err != nil {
		t.Fatalf("identity.NewClient: %v", err)
	}

	stateDir := t.TempDir()
	srv, err := NewServer(ServerConfig{
		StateDir: stateDir,
		Hasura:   hc,
		Identity: ic,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return &testEnv{server: srv, handler: srv.Handler(), data: data, stateDir: stateDir}
}

func (env *testEnv) do(t *testing.T, method, target string, form url.Values, cookies []*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) login(t *testing.T) []*http.Cookie {
	t.Helper()
	rec := env.do(t, "POST", "/login", url.Values{
		"email":    {"sarah@example.com"},
		"password": {"correct horse"},
	}, nil)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("login status = %d, body: %s", rec.Code, rec.Body.String())
	}
	cookies := rec.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatalf("login set no session cookie")
	}
	return cookies
}

func TestHomeRedirectsToLoginWithoutSession(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, "GET", "/", nil, nil)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/login" {
		t.Fatalf("expected redirect to /login, got %d %q", rec.Code, rec.Header().Get("Location"))
	}
}

func TestLoginAndEditorPage(t *testing.T) {
	env := newTestEnv(t)
	cookies := env.login(t)

	rec := env.do(t, "GET", "/", nil, cookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("editor status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Add new link") {
		t.Fatalf("editor page missing add button: %s", body)
	}
	if !strings.Contains(body, "https://github.com/sarah") {
		t.Fatalf("editor page missing the fetched link")
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, "POST", "/login", url.Values{
		"email":    {"sarah@example.com"},
		"password": {"nope"},
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Wrong email or password") {
		t.Fatalf("expected credential error, got: %s", rec.Body.String())
	}
}

func TestAddLinkGrowsTheEditor(t *testing.T) {
	env := newTestEnv(t)
	cookies := env.login(t)

	before := strings.Count(env.do(t, "GET", "/", nil, cookies).Body.String(), `class="link-row"`)
	rec := env.do(t, "POST", "/links", url.Values{"action": {"add"}}, cookies)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("apply status = %d", rec.Code)
	}
	after := strings.Count(env.do(t, "GET", "/", nil, cookies).Body.String(), `class="link-row"`)
	if after != before+1 {
		t.Fatalf("link rows = %d after add, want %d", after, before+1)
	}
}

func TestSaveUpdatesBackendAndCaches(t *testing.T) {
	env := newTestEnv(t)
	cookies := env.login(t)
	env.do(t, "GET", "/", nil, cookies) // load editors

	rec := env.do(t, "POST", "/links", url.Values{
		"action":          {"save"},
		"platform_link-1": {"github"},
		"url_link-1":      {"https://github.com/sarah-lane"},
	}, cookies)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("save status = %d", rec.Code)
	}

	var sawUpdate bool
	for _, c := range env.data.recordedCalls() {
		if c == "update" {
			sawUpdate = true
		}
		if c == "insert" || c == "delete" {
			t.Fatalf("unexpected %s call for an update-only save", c)
		}
	}
	if !sawUpdate {
		t.Fatalf("save issued no update, calls: %v", env.data.recordedCalls())
	}

	body := env.do(t, "GET", "/", nil, cookies).Body.String()
	if !strings.Contains(body, "Your links have been saved") {
		t.Fatalf("expected save confirmation, got: %s", body)
	}

	snap, err := cache.Store{Dir: env.stateDir}.Get(t.Context(), testSubject)
	if err != nil {
		t.Fatalf("public snapshot not cached after save: %v", err)
	}
	if len(snap.Links) != 1 || snap.Links[0].URL != "https://github.com/sarah-lane" {
		t.Fatalf("cached snapshot stale: %+v", snap.Links)
	}
}

func TestSaveValidationBlocksReconcile(t *testing.T) {
	env := newTestEnv(t)
	cookies := env.login(t)
	env.do(t, "GET", "/", nil, cookies)

	rec := env.do(t, "POST", "/links", url.Values{
		"action":          {"save"},
		"platform_link-1": {"github"},
		"url_link-1":      {"not a url"},
	}, cookies)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("save status = %d", rec.Code)
	}
	for _, c := range env.data.recordedCalls() {
		if c == "insert" || c == "update" || c == "delete" {
			t.Fatalf("mutation %s reached the backend despite invalid input", c)
		}
	}
	body := env.do(t, "GET", "/", nil, cookies).Body.String()
	if !strings.Contains(body, "Please enter a valid URL") {
		t.Fatalf("expected inline URL error, got: %s", body)
	}
}

func TestPublicProfileServesAndFallsBackToCache(t *testing.T) {
	env := newTestEnv(t)
	target := "/u/" + url.PathEscape(testSubject)

	rec := env.do(t, "GET", target, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("public status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Sarah Lane") {
		t.Fatalf("public page missing profile name")
	}
	if strings.Contains(rec.Body.String(), "Showing a saved copy") {
		t.Fatalf("fresh page should not be marked stale")
	}

	env.data.setDown(true)
	rec = env.do(t, "GET", target, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("cached public status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Showing a saved copy") {
		t.Fatalf("expected stale banner on cached page")
	}
	if !strings.Contains(rec.Body.String(), "Sarah Lane") {
		t.Fatalf("cached page missing profile name")
	}
}

func TestPublicProfileUnknownUserIs404(t *testing.T) {
	env := newTestEnv(t)
	env.data.exists = false
	rec := env.do(t, "GET", "/u/nobody", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestLogoutInvalidatesSession(t *testing.T) {
	env := newTestEnv(t)
	cookies := env.login(t)

	rec := env.do(t, "POST", "/logout", nil, cookies)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("logout status = %d", rec.Code)
	}

	rec = env.do(t, "GET", "/", nil, cookies)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/login" {
		t.Fatalf("expected stale cookie to be rejected, got %d", rec.Code)
	}
}

func TestProfileSaveFlow(t *testing.T) {
	env := newTestEnv(t)
	cookies := env.login(t)

	rec := env.do(t, "POST", "/profile", url.Values{
		"first_name": {"Sarah"},
		"last_name":  {"Lane-Smith"},
		"email":      {"sarah@example.com"},
	}, cookies)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("profile save status = %d", rec.Code)
	}

	var saw bool
	for _, c := range env.data.recordedCalls() {
		if c == "upsertProfile" {
			saw = true
		}
	}
	if !saw {
		t.Fatalf("profile save never reached the backend, calls: %v", env.data.recordedCalls())
	}

	body := env.do(t, "GET", "/profile", nil, cookies).Body.String()
	if !strings.Contains(body, "Your profile has been saved") {
		t.Fatalf("expected profile flash, got: %s", body)
	}
	if !strings.Contains(body, "Lane-Smith") {
		t.Fatalf("profile page missing updated field")
	}
}
