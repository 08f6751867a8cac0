package editor

import (
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"

	"linkloft/internal/model"
	"linkloft/internal/reconcile"
)

// ValidationErrorMap maps collection index -> field name -> message.
// It is transient: recomputed on every save attempt, discarded on success.
type ValidationErrorMap map[int]map[string]string

// Patch is a partial update for a link record. Nil fields are left alone.
type Patch struct {
	Platform *string
	URL      *string
}

// Links is the link collection editor: an ordered list of link records,
// the queue of remote deletes still owed, and the validation errors of
// the last save attempt. All methods are safe for concurrent use; the
// save-cycle flag gives mutual exclusion between overlapping saves.
type Links struct {
	mu       sync.Mutex
	records  []model.Link
	removals []string
	errs     ValidationErrorMap
	saving   bool
}

// NewLinks builds an editor over records already confirmed remotely
// (IsNew is forced off, positions renumbered to the given order).
func NewLinks(existing []model.Link) *Links {
	records := make([]model.Link, len(existing))
	copy(records, existing)
	for i := range records {
		records[i].IsNew = false
		records[i].Position = i
	}
	return &Links{records: records, errs: ValidationErrorMap{}}
}

// Add appends a fresh record with a client-generated id, the registry's
// default platform and an empty URL. No validation happens here; the
// empty URL is allowed until the next save attempt.
func (l *Links) Add() model.Link {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec := model.Link{
		ID:       uuid.NewString(),
		Platform: string(model.DefaultPlatform()),
		Position: len(l.records),
		IsNew:    true,
	}
	l.records = append(l.records, rec)
	return rec
}

// Update applies a partial update to the matching record. An unknown id
// is a silent no-op: it can only come from a stale UI event. Editing a
// field clears that field's stale validation error; new errors are not
// computed until the next save attempt.
func (l *Links) Update(id string, p Patch) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.records {
		if l.records[i].ID != id {
			continue
		}
		if p.Platform != nil {
			l.records[i].Platform = *p.Platform
			l.clearErrorLocked(i, "platform")
		}
		if p.URL != nil {
			l.records[i].URL = *p.URL
			l.clearErrorLocked(i, "url")
		}
		return
	}
}

// Remove deletes the record from the live collection immediately. A
// record that exists remotely is queued for remote deletion; a record
// that was never persisted is simply discarded.
func (l *Links) Remove(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.records {
		if l.records[i].ID != id {
			continue
		}
		if !l.records[i].IsNew {
			l.removals = append(l.removals, id)
		}
		l.records = append(l.records[:i], l.records[i+1:]...)
		l.renumberLocked()
		// Errors are keyed by position; rows past the removed one shift
		// down, so shift their errors with them.
		if len(l.errs) > 0 {
			shifted := ValidationErrorMap{}
			for idx, fields := range l.errs {
				switch {
				case idx < i:
					shifted[idx] = fields
				case idx > i:
					shifted[idx-1] = fields
				}
			}
			l.errs = shifted
		}
		return
	}
}

// Move shifts the record by delta places within the collection, clamped
// to the bounds. Order is the public display order.
func (l *Links) Move(id string, delta int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	from := -1
	for i := range l.records {
		if l.records[i].ID == id {
			from = i
			break
		}
	}
	if from < 0 || delta == 0 {
		return
	}
	to := from + delta
	if to < 0 {
		to = 0
	}
	if to > len(l.records)-1 {
		to = len(l.records) - 1
	}
	if to == from {
		return
	}
	rec := l.records[from]
	l.records = append(l.records[:from], l.records[from+1:]...)
	l.records = append(l.records[:to], append([]model.Link{rec}, l.records[to:]...)...)
	l.renumberLocked()
	// Positions changed wholesale; stale per-index errors would point at
	// the wrong rows.
	l.errs = ValidationErrorMap{}
}

// Links returns a snapshot copy of the collection in display order.
func (l *Links) Links() []model.Link {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.Link, len(l.records))
	copy(out, l.records)
	return out
}

// Removals returns a snapshot copy of the pending remote-delete queue.
func (l *Links) Removals() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.removals))
	copy(out, l.removals)
	return out
}

// Empty reports whether the collection has no records.
func (l *Links) Empty() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records) == 0
}

// Validate checks every record (platform non-empty; url non-empty and an
// absolute http(s) URL), replaces the error map and reports whether the
// whole collection is valid. Repeated calls without edits produce the
// same map.
func (l *Links) Validate() (ValidationErrorMap, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	errs := ValidationErrorMap{}
	for i, rec := range l.records {
		fieldErrs := map[string]string{}
		if strings.TrimSpace(rec.Platform) == "" {
			fieldErrs["platform"] = "Platform can't be empty"
		}
		if msg := validateURL(rec.URL); msg != "" {
			fieldErrs["url"] = msg
		}
		if len(fieldErrs) > 0 {
			errs[i] = fieldErrs
		}
	}
	l.errs = errs
	return copyErrs(errs), len(errs) == 0
}

// Errors returns a copy of the error map from the last save attempt.
func (l *Links) Errors() ValidationErrorMap {
	l.mu.Lock()
	defer l.mu.Unlock()
	return copyErrs(l.errs)
}

// BeginSave marks a save cycle in flight. It reports false when a save
// is already running; the caller must then drop the request (overlapping
// saves are ignored, not queued).
func (l *Links) BeginSave() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.saving {
		return false
	}
	l.saving = true
	return true
}

// EndSave clears the in-flight flag.
func (l *Links) EndSave() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.saving = false
}

// Saving reports whether a save cycle is in flight.
func (l *Links) Saving() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.saving
}

// ApplyDisposition merges the confirmed results of a reconciliation run
// into the collection: confirmed deletes leave the removal queue,
// confirmed creates clear IsNew and adopt the remote id. Failed items
// stay exactly as they were so the next save retries them. On a fully
// successful save the removal queue is empty, every record has
// IsNew=false and the error map is discarded.
func (l *Links) ApplyDisposition(d reconcile.Disposition) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(d.DeletedIDs) > 0 {
		deleted := map[string]bool{}
		for _, id := range d.DeletedIDs {
			deleted[id] = true
		}
		kept := l.removals[:0]
		for _, id := range l.removals {
			if !deleted[id] {
				kept = append(kept, id)
			}
		}
		l.removals = kept
	}

	for i := range l.records {
		remoteID, ok := d.Created[l.records[i].ID]
		if !ok {
			continue
		}
		l.records[i].ID = remoteID
		l.records[i].IsNew = false
	}

	if d.OK() {
		l.errs = ValidationErrorMap{}
	}
}

func (l *Links) clearErrorLocked(index int, field string) {
	fieldErrs, ok := l.errs[index]
	if !ok {
		return
	}
	delete(fieldErrs, field)
	if len(fieldErrs) == 0 {
		delete(l.errs, index)
	}
}

func (l *Links) renumberLocked() {
	for i := range l.records {
		l.records[i].Position = i
	}
}

func validateURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "Can't be empty"
	}
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return "Please enter a valid URL"
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "Please enter a valid URL"
	}
	return ""
}

func copyErrs(in ValidationErrorMap) ValidationErrorMap {
	out := ValidationErrorMap{}
	for i, fields := range in {
		m := map[string]string{}
		for k, v := range fields {
			m[k] = v
		}
		out[i] = m
	}
	return out
}
