package editor

import (
	"strings"
	"sync"

	"linkloft/internal/model"
)

// Profile is the single-record analogue of the link editor: one profile
// record mutated field by field, saved with one remote upsert keyed by
// the owner identity. There is no batch reconciliation and no retry.
type Profile struct {
	mu     sync.Mutex
	record model.Profile
	errs   map[string]string
	saving bool
}

// NewProfile builds an editor over the fetched profile record.
func NewProfile(record model.Profile) *Profile {
	return &Profile{record: record, errs: map[string]string{}}
}

// SetField mutates one field by its form name. Unknown names are silent
// no-ops (stale UI events). Editing a field clears its stale error.
func (p *Profile) SetField(name, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch name {
	case "first_name":
		p.record.FirstName = value
	case "last_name":
		p.record.LastName = value
	case "email":
		p.record.Email = value
	default:
		return
	}
	delete(p.errs, name)
}

// SetImageURL stores the hosted avatar reference returned by the upload
// collaborator. The editor never holds image bytes.
func (p *Profile) SetImageURL(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record.ImageURL = url
}

// Record returns a snapshot copy of the profile.
func (p *Profile) Record() model.Profile {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.record
}

// Validate checks the record and reports whether it can be saved. Only
// the email shape is enforced, and only when the field is non-empty; the
// name fields are free-form.
func (p *Profile) Validate() (map[string]string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	errs := map[string]string{}
	email := strings.TrimSpace(p.record.Email)
	if email != "" {
		at := strings.Index(email, "@")
		if at <= 0 || at == len(email)-1 || strings.ContainsAny(email, " \t") {
			errs["email"] = "Please enter a valid email"
		}
	}
	p.errs = errs
	out := map[string]string{}
	for k, v := range errs {
		out[k] = v
	}
	return out, len(errs) == 0
}

// Errors returns a copy of the error map from the last save attempt.
func (p *Profile) Errors() map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := map[string]string{}
	for k, v := range p.errs {
		out[k] = v
	}
	return out
}

// BeginSave and EndSave give the same single-flag mutual exclusion as
// the link editor: an overlapping save is refused, not queued.
func (p *Profile) BeginSave() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.saving {
		return false
	}
	p.saving = true
	return true
}

func (p *Profile) EndSave() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saving = false
}

// Saving reports whether a save is in flight.
func (p *Profile) Saving() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.saving
}
