package editor

import (
	"testing"

	"linkloft/internal/model"
)

func TestProfile_SetFieldAndUnknownName(t *testing.T) {
	p := NewProfile(model.Profile{UserID: "auth0|u1"})
	p.SetField("first_name", "Ada")
	p.SetField("last_name", "Lovelace")
	p.SetField("email", "ada@example.com")
	p.SetField("nickname", "ignored")

	rec := p.Record()
	if rec.FirstName != "Ada" || rec.LastName != "Lovelace" || rec.Email != "ada@example.com" {
		t.Fatalf("fields not applied: %+v", rec)
	}
	if rec.UserID != "auth0|u1" {
		t.Fatalf("owner key must not change: %q", rec.UserID)
	}
}

func TestProfile_ValidateEmail(t *testing.T) {
	p := NewProfile(model.Profile{})
	if _, ok := p.Validate(); !ok {
		t.Fatalf("empty email is allowed")
	}

	p.SetField("email", "not an email")
	if _, ok := p.Validate(); ok {
		t.Fatalf("expected invalid email rejected")
	}
	if msg := p.Errors()["email"]; msg == "" {
		t.Fatalf("expected email error recorded")
	}

	// Editing the field clears the stale error.
	p.SetField("email", "ok@example.com")
	if msg := p.Errors()["email"]; msg != "" {
		t.Fatalf("expected error cleared on edit; got %q", msg)
	}
	if _, ok := p.Validate(); !ok {
		t.Fatalf("expected valid email accepted")
	}
}

func TestProfile_SaveFlagMutualExclusion(t *testing.T) {
	p := NewProfile(model.Profile{})
	if !p.BeginSave() {
		t.Fatalf("first BeginSave refused")
	}
	if p.BeginSave() {
		t.Fatalf("overlapping save must be refused")
	}
	p.EndSave()
	if p.Saving() {
		t.Fatalf("saving flag still set after EndSave")
	}
}

func TestProfile_DisplayNameFallback(t *testing.T) {
	p := model.Profile{Email: "x@example.com"}
	if got := p.DisplayName(); got != "x@example.com" {
		t.Fatalf("expected email fallback; got %q", got)
	}
	p.FirstName = "Ada"
	p.LastName = "Lovelace"
	if got := p.DisplayName(); got != "Ada Lovelace" {
		t.Fatalf("expected full name; got %q", got)
	}
}
