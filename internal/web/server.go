// Package web serves the linkloft UI: the authenticated link and profile
// editors, and the public read-only profile pages. Pages are
// server-rendered HTML; the live phone preview on the editor is
// progressively enhanced with a datastar SSE stream. The bearer token
// for the data service stays server-side; browsers only ever hold an
// HMAC-signed session cookie.
package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/starfederation/datastar-go/datastar"

	"linkloft/internal/cache"
	"linkloft/internal/editor"
	"linkloft/internal/hasura"
	"linkloft/internal/identity"
	"linkloft/internal/model"
	"linkloft/internal/reconcile"
	"linkloft/internal/session"
	"linkloft/internal/upload"
)

//go:embed templates/*.html static/*.css
var assetsFS embed.FS

const sessionTTL = 30 * 24 * time.Hour

type ServerConfig struct {
	// StateDir holds the cookie-signing secret and the public snapshot
	// cache. Defaults to the linkloft config dir.
	StateDir string

	Hasura   *hasura.Client
	Identity *identity.Client

	// Uploads may be nil; avatar upload is then disabled.
	Uploads *upload.Client

	Logger *slog.Logger
}

type Server struct {
	cfg    ServerConfig
	tmpl   *template.Template
	secret []byte
	cache  cache.Store
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*userSession // keyed by cookie nonce
}

// userSession is the server-side state of one logged-in browser: the
// bearer token, the decoded subject, and the in-memory editors. Editors
// are created lazily from the first profile fetch.
type userSession struct {
	token   string
	subject string

	mu      sync.Mutex
	loaded  bool
	links   *editor.Links
	profile *editor.Profile
	flash   string

	preview previewHub
}

// previewHub fans "the collection changed" pokes out to the session's
// open preview streams.
type previewHub struct {
	mu   sync.Mutex
	subs map[chan struct{}]struct{}
}

func (h *previewHub) subscribe() (chan struct{}, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs == nil {
		h.subs = map[chan struct{}]struct{}{}
	}
	ch := make(chan struct{}, 1)
	h.subs[ch] = struct{}{}
	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs, ch)
	}
}

func (h *previewHub) notify() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Hasura == nil {
		return nil, errors.New("web: missing data service client")
	}
	if cfg.Identity == nil {
		return nil, errors.New("web: missing identity client")
	}
	if cfg.StateDir == "" {
		dir, err := session.Dir()
		if err != nil {
			return nil, err
		}
		cfg.StateDir = dir
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	tmpl, err := template.ParseFS(assetsFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	secret, err := loadOrInitSecretKey(cfg.StateDir)
	if err != nil {
		return nil, err
	}

	return &Server{
		cfg:      cfg,
		tmpl:     tmpl,
		secret:   secret,
		cache:    cache.Store{Dir: cfg.StateDir},
		logger:   cfg.Logger,
		sessions: map[string]*userSession{},
	}, nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /static/app.css", s.handleAppCSS)
	mux.HandleFunc("GET /", s.handleHome)
	mux.HandleFunc("GET /login", s.handleLoginGet)
	mux.HandleFunc("POST /login", s.handleLoginPost)
	mux.HandleFunc("GET /signup", s.handleSignupGet)
	mux.HandleFunc("POST /signup", s.handleSignupPost)
	mux.HandleFunc("POST /logout", s.handleLogoutPost)
	mux.HandleFunc("POST /links", s.handleLinksApply)
	mux.HandleFunc("GET /links/preview", s.handleLinksPreview)
	mux.HandleFunc("GET /profile", s.handleProfileGet)
	mux.HandleFunc("POST /profile", s.handleProfilePost)
	mux.HandleFunc("POST /profile/avatar", s.handleAvatarPost)
	mux.HandleFunc("GET /u/{userID}", s.handlePublicProfile)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, `{"ok":true}`)
}

func (s *Server) handleAppCSS(w http.ResponseWriter, r *http.Request) {
	b, err := assetsFS.ReadFile("static/app.css")
	if err != nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	_, _ = w.Write(b)
}

// currentSession resolves the cookie to its server-side session. A
// missing, invalid or expired cookie yields nil.
func (s *Server) currentSession(r *http.Request) *userSession {
	c, err := r.Cookie(sessionCookieName)
	if err != nil {
		return nil
	}
	sp, err := verifyToken(s.secret, c.Value)
	if err != nil {
		return nil
	}
	s.mu.RLock()
	sess := s.sessions[sp.N]
	s.mu.RUnlock()
	if sess == nil || sess.subject != sp.Sub {
		return nil
	}
	return sess
}

// establishSession stores the bearer token server-side and sets the
// signed session cookie.
func (s *Server) establishSession(w http.ResponseWriter, token, subject string) error {
	nonce, err := newNonce()
	if err != nil {
		return err
	}
	cookieVal, err := newSessionCookieToken(s.secret, subject, nonce, sessionTTL)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.sessions[nonce] = &userSession{token: token, subject: subject}
	s.mu.Unlock()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    cookieVal,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// ensureLoaded fetches the profile+links join once per session and
// builds the editors. A brand-new account with no profile row yet gets
// empty editors keyed by the subject.
func (sess *userSession) ensureLoaded(ctx context.Context, client *hasura.Client) error {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.loaded {
		return nil
	}
	profile, links, err := client.Me(ctx, sess.token, sess.subject)
	switch {
	case err == nil:
	case errors.Is(err, hasura.ErrUserNotFound):
		profile = model.Profile{UserID: sess.subject}
		links = nil
	default:
		return err
	}
	sess.links = editor.NewLinks(links)
	sess.profile = editor.NewProfile(profile)
	sess.loaded = true
	return nil
}

func (sess *userSession) takeFlash() string {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	f := sess.flash
	sess.flash = ""
	return f
}

func (sess *userSession) setFlash(msg string) {
	sess.mu.Lock()
	sess.flash = msg
	sess.mu.Unlock()
}

func (s *Server) renderTemplate(name string, data any) (string, error) {
	var b strings.Builder
	if err := s.tmpl.ExecuteTemplate(&b, name, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

func (s *Server) writeHTMLTemplate(w http.ResponseWriter, name string, data any) {
	html, err := s.renderTemplate(name, data)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, html)
}

type loginVM struct {
	Error string
	Email string
}

func (s *Server) handleLoginGet(w http.ResponseWriter, r *http.Request) {
	if s.currentSession(r) != nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	s.writeHTMLTemplate(w, "login.html", loginVM{})
}

func (s *Server) handleLoginPost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	email := strings.TrimSpace(r.Form.Get("email"))
	password := r.Form.Get("password")
	if email == "" || password == "" {
		s.writeHTMLTemplate(w, "login.html", loginVM{Error: "Email and password are required", Email: email})
		return
	}

	token, err := s.cfg.Identity.Login(r.Context(), email, password)
	if err != nil {
		msg := "Login failed. Please try again."
		if identity.IsInvalidCredentials(err) {
			msg = "Wrong email or password"
		} else {
			s.logger.Warn("login failed", "error", err)
		}
		s.writeHTMLTemplate(w, "login.html", loginVM{Error: msg, Email: email})
		return
	}
	subject, err := session.Subject(token)
	if err != nil {
		s.logger.Warn("provider returned undecodable credential")
		s.writeHTMLTemplate(w, "login.html", loginVM{Error: "Login failed. Please try again.", Email: email})
		return
	}
	if err := s.establishSession(w, token, subject); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleSignupGet(w http.ResponseWriter, r *http.Request) {
	s.writeHTMLTemplate(w, "signup.html", loginVM{})
}

func (s *Server) handleSignupPost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	email := strings.TrimSpace(r.Form.Get("email"))
	password := r.Form.Get("password")
	if email == "" || len(password) < 8 {
		s.writeHTMLTemplate(w, "signup.html", loginVM{Error: "Email and a password of at least 8 characters are required", Email: email})
		return
	}
	if err := s.cfg.Identity.Signup(r.Context(), email, password); err != nil {
		s.logger.Warn("signup failed", "error", err)
		s.writeHTMLTemplate(w, "signup.html", loginVM{Error: "Signup failed. Please try again.", Email: email})
		return
	}

	// Log the fresh account straight in.
	token, err := s.cfg.Identity.Login(r.Context(), email, password)
	if err != nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	subject, err := session.Subject(token)
	if err != nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	if err := s.establishSession(w, token, subject); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleLogoutPost(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(sessionCookieName); err == nil {
		if sp, err := verifyToken(s.secret, c.Value); err == nil {
			s.mu.Lock()
			delete(s.sessions, sp.N)
			s.mu.Unlock()
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	sess := s.currentSession(r)
	if sess == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	if err := sess.ensureLoaded(r.Context(), s.cfg.Hasura); err != nil {
		s.logger.Warn("loading editor state", "error", err)
		s.writeHTMLTemplate(w, "error.html", map[string]any{
			"Message": "Couldn't reach the data service. Please try again.",
		})
		return
	}
	s.writeHTMLTemplate(w, "links.html", s.linksVM(sess))
}

type linkRowVM struct {
	Index   int
	Link    model.Link
	Def     model.PlatformDef
	Errors  map[string]string
	CanUp   bool
	CanDown bool
}

type linksVM struct {
	Rows      []linkRowVM
	Empty     bool
	Saving    bool
	Flash     string
	Platforms []model.PlatformDef
	Preview   previewVM
}

type previewVM struct {
	Profile model.Profile
	Rows    []linkRowVM
}

func editorRows(sess *userSession) []linkRowVM {
	links := sess.links.Links()
	errs := sess.links.Errors()
	rows := make([]linkRowVM, 0, len(links))
	for i, l := range links {
		rows = append(rows, linkRowVM{
			Index:   i,
			Link:    l,
			Def:     l.PlatformDef(),
			Errors:  errs[i],
			CanUp:   i > 0,
			CanDown: i < len(links)-1,
		})
	}
	return rows
}

func (s *Server) linksVM(sess *userSession) linksVM {
	rows := editorRows(sess)
	return linksVM{
		Rows:      rows,
		Empty:     len(rows) == 0,
		Saving:    sess.links.Saving(),
		Flash:     sess.takeFlash(),
		Platforms: model.Platforms(),
		Preview:   previewVM{Profile: sess.profile.Record(), Rows: rows},
	}
}

// handleLinksApply is the single mutation endpoint of the link editor.
// The whole editor is one form; every post first applies the submitted
// field values, then dispatches on the action (add, remove, up, down,
// save). That way edits survive row-level actions without JavaScript.
func (s *Server) handleLinksApply(w http.ResponseWriter, r *http.Request) {
	sess := s.currentSession(r)
	if sess == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	if err := sess.ensureLoaded(r.Context(), s.cfg.Hasura); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	for _, l := range sess.links.Links() {
		patch := editor.Patch{}
		if v, ok := formValue(r, "platform_"+l.ID); ok {
			patch.Platform = &v
		}
		if v, ok := formValue(r, "url_"+l.ID); ok {
			patch.URL = &v
		}
		if patch.Platform != nil || patch.URL != nil {
			sess.links.Update(l.ID, patch)
		}
	}

	// Row-level buttons carry their target in the action value, e.g.
	// "remove:<id>", so the whole editor stays a single form.
	action, target, _ := strings.Cut(strings.TrimSpace(r.Form.Get("action")), ":")
	switch action {
	case "add":
		sess.links.Add()
	case "remove":
		sess.links.Remove(target)
	case "up":
		sess.links.Move(target, -1)
	case "down":
		sess.links.Move(target, 1)
	case "save":
		s.saveLinks(r.Context(), sess)
	}

	sess.preview.notify()
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// saveLinks runs one save cycle: validate, reconcile, merge confirmed
// results. An overlapping save is dropped. Transport failures leave the
// optimistic local state untouched and surface as a transient message.
func (s *Server) saveLinks(ctx context.Context, sess *userSession) {
	if !sess.links.BeginSave() {
		sess.setFlash("A save is already in progress")
		return
	}
	defer sess.links.EndSave()

	if _, ok := sess.links.Validate(); !ok {
		return
	}

	engine := reconcile.NewEngine(hasura.Bound{Client: s.cfg.Hasura, Token: sess.token}, s.logger)
	d := engine.Save(ctx, sess.links.Links(), sess.links.Removals(), sess.subject)
	sess.links.ApplyDisposition(d)

	if err := d.Err(); err != nil {
		s.logger.Warn("saving links", "subject", sess.subject, "error", err)
		sess.setFlash("Couldn't save your links. Please try again.")
		return
	}
	sess.setFlash("Your links have been saved")
	s.refreshSnapshot(ctx, sess)
}

// refreshSnapshot updates the public-page fallback cache after a
// successful save. Best effort; a cache failure never fails the save.
func (s *Server) refreshSnapshot(ctx context.Context, sess *userSession) {
	if err := s.cache.Put(ctx, sess.subject, sess.profile.Record(), sess.links.Links()); err != nil {
		s.logger.Warn("refreshing public snapshot", "error", err)
	}
}

// handleLinksPreview streams phone-preview updates to the editor page.
func (s *Server) handleLinksPreview(w http.ResponseWriter, r *http.Request) {
	sess := s.currentSession(r)
	if sess == nil {
		http.Error(w, "no session", http.StatusUnauthorized)
		return
	}
	if err := sess.ensureLoaded(r.Context(), s.cfg.Hasura); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	sse := datastar.NewSSE(w, r)
	render := func() (string, error) {
		return s.renderTemplate("preview.html", previewVM{
			Profile: sess.profile.Record(),
			Rows:    editorRows(sess),
		})
	}
	if html, err := render(); err == nil {
		_ = sse.PatchElements(html, datastar.WithSelector("#phone-preview"), datastar.WithMode(datastar.ElementPatchModeOuter))
	}

	ch, cancel := sess.preview.subscribe()
	defer cancel()
	keepAlive := time.NewTicker(25 * time.Second)
	defer keepAlive.Stop()

	for {
		select {
		case <-sse.Context().Done():
			return
		case <-keepAlive.C:
			_ = sse.PatchSignals([]byte(`{}`))
		case <-ch:
			html, err := render()
			if err != nil {
				_ = sse.ExecuteScript(fmt.Sprintf(`console.error(%q)`, err.Error()))
				continue
			}
			_ = sse.PatchElements(html, datastar.WithSelector("#phone-preview"), datastar.WithMode(datastar.ElementPatchModeOuter))
		}
	}
}

type profileVM struct {
	Profile       model.Profile
	Errors        map[string]string
	Flash         string
	UploadEnabled bool
}

func (s *Server) handleProfileGet(w http.ResponseWriter, r *http.Request) {
	sess := s.currentSession(r)
	if sess == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	if err := sess.ensureLoaded(r.Context(), s.cfg.Hasura); err != nil {
		s.writeHTMLTemplate(w, "error.html", map[string]any{
			"Message": "Couldn't reach the data service. Please try again.",
		})
		return
	}
	s.writeHTMLTemplate(w, "profile.html", profileVM{
		Profile:       sess.profile.Record(),
		Errors:        sess.profile.Errors(),
		Flash:         sess.takeFlash(),
		UploadEnabled: s.cfg.Uploads != nil,
	})
}

func (s *Server) handleProfilePost(w http.ResponseWriter, r *http.Request) {
	sess := s.currentSession(r)
	if sess == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	if err := sess.ensureLoaded(r.Context(), s.cfg.Hasura); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	for _, field := range []string{"first_name", "last_name", "email"} {
		if v, ok := formValue(r, field); ok {
			sess.profile.SetField(field, v)
		}
	}

	if !sess.profile.BeginSave() {
		sess.setFlash("A save is already in progress")
		http.Redirect(w, r, "/profile", http.StatusSeeOther)
		return
	}
	func() {
		defer sess.profile.EndSave()
		if _, ok := sess.profile.Validate(); !ok {
			return
		}
		if err := s.cfg.Hasura.UpsertProfile(r.Context(), sess.token, sess.profile.Record()); err != nil {
			s.logger.Warn("saving profile", "subject", sess.subject, "error", err)
			sess.setFlash("Failed to update profile. Please try again.")
			return
		}
		sess.setFlash("Your profile has been saved")
		s.refreshSnapshot(r.Context(), sess)
	}()

	sess.preview.notify()
	http.Redirect(w, r, "/profile", http.StatusSeeOther)
}

func (s *Server) handleAvatarPost(w http.ResponseWriter, r *http.Request) {
	sess := s.currentSession(r)
	if sess == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	if s.cfg.Uploads == nil {
		http.Error(w, "uploads not configured", http.StatusNotImplemented)
		return
	}
	if err := sess.ensureLoaded(r.Context(), s.cfg.Hasura); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	f, header, err := r.FormFile("image")
	if err != nil {
		sess.setFlash("Choose an image to upload")
		http.Redirect(w, r, "/profile", http.StatusSeeOther)
		return
	}
	defer f.Close()

	hosted, err := s.cfg.Uploads.Image(r.Context(), header.Filename, f)
	if err != nil {
		s.logger.Warn("uploading avatar", "error", err)
		sess.setFlash("Image upload failed. Please try again.")
		http.Redirect(w, r, "/profile", http.StatusSeeOther)
		return
	}
	sess.profile.SetImageURL(hosted)
	sess.setFlash("Image uploaded. Save your profile to publish it.")
	sess.preview.notify()
	http.Redirect(w, r, "/profile", http.StatusSeeOther)
}

type publicVM struct {
	Profile model.Profile
	Rows    []linkRowVM
	Stale   bool
	StaleAt string
}

// handlePublicProfile renders the read-only public page. A transport
// failure falls back to the last-known-good snapshot; a user the data
// service no longer knows is a 404 and evicts any stale snapshot.
func (s *Server) handlePublicProfile(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")
	profile, links, err := s.cfg.Hasura.PublicProfile(r.Context(), userID)
	switch {
	case err == nil:
		_ = s.cache.Put(r.Context(), userID, profile, links)
	case errors.Is(err, hasura.ErrUserNotFound):
		_ = s.cache.Delete(r.Context(), userID)
		http.NotFound(w, r)
		return
	default:
		snap, cacheErr := s.cache.Get(r.Context(), userID)
		if cacheErr != nil {
			s.logger.Warn("public profile unavailable", "user", userID, "error", err)
			http.Error(w, "profile temporarily unavailable", http.StatusBadGateway)
			return
		}
		s.logger.Info("serving cached public profile", "user", userID, "cachedAt", snap.CachedAt)
		s.writePublic(w, snap.Profile, snap.Links, true, snap.CachedAt)
		return
	}
	s.writePublic(w, profile, links, false, time.Time{})
}

func (s *Server) writePublic(w http.ResponseWriter, profile model.Profile, links []model.Link, stale bool, staleAt time.Time) {
	rows := make([]linkRowVM, 0, len(links))
	for i, l := range links {
		rows = append(rows, linkRowVM{Index: i, Link: l, Def: l.PlatformDef()})
	}
	vm := publicVM{Profile: profile, Rows: rows, Stale: stale}
	if stale {
		vm.StaleAt = staleAt.UTC().Format(time.RFC3339)
	}
	s.writeHTMLTemplate(w, "public.html", vm)
}

func formValue(r *http.Request, key string) (string, bool) {
	vs, ok := r.Form[key]
	if !ok || len(vs) == 0 {
		return "", false
	}
	return vs[0], true
}
