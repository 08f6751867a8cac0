package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"linkloft/internal/editor"
	"linkloft/internal/hasura"
	"linkloft/internal/model"
	"linkloft/internal/reconcile"
)

type mode int

const (
	modeLoading mode = iota
	modeBrowse
	modeEditURL
)

type loadedMsg struct {
	profile model.Profile
	links   []model.Link
	err     error
}

type savedMsg struct {
	d reconcile.Disposition
}

type appModel struct {
	deps Deps

	mode    mode
	links   *editor.Links
	profile model.Profile

	cursor    int
	editingID string
	urlInput  textinput.Model

	status    string
	statusErr bool

	width  int
	height int
}

func newAppModel(deps Deps) appModel {
	in := textinput.New()
	in.Placeholder = "https://"
	in.Width = 48
	return appModel{deps: deps, mode: modeLoading, urlInput: in}
}

func (m appModel) Init() tea.Cmd { return m.loadCmd() }

func (m appModel) loadCmd() tea.Cmd {
	deps := m.deps
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		profile, links, err := deps.Client.Me(ctx, deps.Token, deps.Subject)
		if errors.Is(err, hasura.ErrUserNotFound) {
			return loadedMsg{profile: model.Profile{UserID: deps.Subject}}
		}
		return loadedMsg{profile: profile, links: links, err: err}
	}
}

func (m appModel) saveCmd() tea.Cmd {
	deps := m.deps
	records := m.links.Links()
	removals := m.links.Removals()
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		engine := reconcile.NewEngine(hasura.Bound{Client: deps.Client, Token: deps.Token}, deps.Logger)
		return savedMsg{d: engine.Save(ctx, records, removals, deps.Subject)}
	}
}

func (m appModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case loadedMsg:
		if msg.err != nil {
			m.status = "Couldn't load your links. Press r to retry, q to quit."
			m.statusErr = true
			return m, nil
		}
		m.links = editor.NewLinks(msg.links)
		m.profile = msg.profile
		m.mode = modeBrowse
		m.status = ""
		m.statusErr = false
		return m, nil

	case savedMsg:
		m.links.ApplyDisposition(msg.d)
		m.links.EndSave()
		if err := msg.d.Err(); err != nil {
			m.deps.Logger.Warn("saving links", "error", err)
			m.status = "Some changes didn't save. Press s to retry."
			m.statusErr = true
		} else {
			m.status = "Saved"
			m.statusErr = false
		}
		m.clampCursor()
		return m, nil

	case tea.KeyMsg:
		if m.mode == modeEditURL {
			return m.updateEditURL(msg)
		}
		return m.updateBrowse(msg)
	}
	return m, nil
}

func (m appModel) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "r":
		if m.mode == modeLoading {
			m.status = "Loading…"
			m.statusErr = false
			return m, m.loadCmd()
		}
	}

	if m.links == nil {
		return m, nil
	}

	switch msg.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.links.Links())-1 {
			m.cursor++
		}
	case "K":
		if row, ok := m.rowAtCursor(); ok {
			m.links.Move(row.ID, -1)
			if m.cursor > 0 {
				m.cursor--
			}
		}
	case "J":
		if row, ok := m.rowAtCursor(); ok {
			m.links.Move(row.ID, 1)
			if m.cursor < len(m.links.Links())-1 {
				m.cursor++
			}
		}
	case "a":
		m.links.Add()
		m.cursor = len(m.links.Links()) - 1
		m.status = ""
	case "d", "x":
		if row, ok := m.rowAtCursor(); ok {
			m.links.Remove(row.ID)
			m.clampCursor()
		}
	case "p":
		if row, ok := m.rowAtCursor(); ok {
			next := string(nextPlatform(row).Key)
			m.links.Update(row.ID, editor.Patch{Platform: &next})
		}
	case "enter", "e":
		if row, ok := m.rowAtCursor(); ok {
			m.mode = modeEditURL
			m.editingID = row.ID
			m.urlInput.SetValue(row.URL)
			m.urlInput.CursorEnd()
			m.urlInput.Focus()
			return m, textinput.Blink
		}
	case "s":
		if !m.links.BeginSave() {
			m.status = "A save is already in progress"
			return m, nil
		}
		if _, ok := m.links.Validate(); !ok {
			m.links.EndSave()
			m.status = "Fix the highlighted fields first"
			m.statusErr = true
			return m, nil
		}
		m.status = "Saving…"
		m.statusErr = false
		return m, m.saveCmd()
	}
	return m, nil
}

func (m appModel) updateEditURL(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.mode = modeBrowse
		m.urlInput.Blur()
		return m, nil
	case "enter":
		v := strings.TrimSpace(m.urlInput.Value())
		m.links.Update(m.editingID, editor.Patch{URL: &v})
		m.mode = modeBrowse
		m.urlInput.Blur()
		return m, nil
	}
	var cmd tea.Cmd
	m.urlInput, cmd = m.urlInput.Update(msg)
	return m, cmd
}

func (m *appModel) clampCursor() {
	n := len(m.links.Links())
	if m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m appModel) rowAtCursor() (model.Link, bool) {
	links := m.links.Links()
	if m.cursor < 0 || m.cursor >= len(links) {
		return model.Link{}, false
	}
	return links[m.cursor], true
}

// nextPlatform cycles through the registry in display order. A link on
// an unrecognized platform restarts at the first entry.
func nextPlatform(l model.Link) model.PlatformDef {
	defs := model.Platforms()
	cur := l.PlatformDef()
	for i, d := range defs {
		if d.Key == cur.Key {
			return defs[(i+1)%len(defs)]
		}
	}
	return defs[0]
}

func (m appModel) View() string {
	var b strings.Builder

	b.WriteString(styleTitle.Render(m.profile.DisplayName()))
	b.WriteString(styleMuted.Render("  ·  your links"))
	b.WriteString("\n\n")

	if m.mode == modeLoading {
		if m.status != "" {
			b.WriteString(m.statusLine())
		} else {
			b.WriteString(styleMuted.Render("Loading your links…"))
		}
		return b.String()
	}

	links := m.links.Links()
	errs := m.links.Errors()
	if len(links) == 0 {
		b.WriteString(styleMuted.Render("No links yet. Press a to add one."))
		b.WriteString("\n")
	}

	for i, l := range links {
		def := l.PlatformDef()
		url := l.URL
		if url == "" {
			url = styleMuted.Render("(no url)")
		}
		line := fmt.Sprintf("%-10s %s", platformStyle(def.Color).Render(def.Name), url)
		if i == m.cursor {
			line = "▸ " + styleSelected.Render(line)
		} else {
			line = "  " + line
		}
		b.WriteString(line)
		b.WriteString("\n")

		if m.mode == modeEditURL && i == m.cursor {
			b.WriteString("  " + m.urlInput.View() + "\n")
		}
		for _, field := range []string{"platform", "url"} {
			if msg, ok := errs[i][field]; ok {
				b.WriteString("    " + styleError.Render(msg) + "\n")
			}
		}
	}

	if m.status != "" {
		b.WriteString("\n")
		b.WriteString(m.statusLine())
	}

	help := "a add · d delete · J/K move · p platform · enter edit url · s save · q quit"
	if m.mode == modeEditURL {
		help = "enter apply · esc cancel"
	}
	b.WriteString("\n")
	b.WriteString(styleHelp.Render(help))
	return b.String()
}

func (m appModel) statusLine() string {
	if m.statusErr {
		return styleError.Render(m.status)
	}
	return styleAccent.Render(m.status)
}
