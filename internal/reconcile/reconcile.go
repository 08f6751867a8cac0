// Package reconcile makes the remote link store match a validated local
// collection snapshot via a fixed sequence of phases: queued deletes
// (concurrent), one batched create for all new records, then per-record
// updates (concurrent). The delete phase fully settles before anything
// else is dispatched; within a phase no ordering is guaranteed.
//
// The engine keeps no state across calls. Every run returns a
// Disposition with per-item outcomes so the caller can merge confirmed
// results and retry only what is still pending; completed sub-operations
// are never rolled back.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"linkloft/internal/model"
)

// Remote is the mutation surface of the data service the engine needs.
type Remote interface {
	// DeleteLink removes one remotely persisted record by id.
	DeleteLink(ctx context.Context, id string) error
	// InsertLinks creates all records in one round trip, tagged with the
	// owner key, and returns the assigned remote ids in input order.
	InsertLinks(ctx context.Context, links []model.Link, ownerKey string) ([]string, error)
	// UpdateLink rewrites the mutable fields of one existing record.
	UpdateLink(ctx context.Context, link model.Link) error
}

// Disposition reports the per-item outcome of one reconciliation run.
type Disposition struct {
	// DeletedIDs are removal-queue entries confirmed deleted remotely.
	DeletedIDs []string
	// FailedDeletes maps removal-queue entries to their errors.
	FailedDeletes map[string]error

	// Created maps local (client-generated) ids to assigned remote ids.
	Created map[string]string
	// CreateErr is set when the batched create failed; the batch is one
	// round trip, so it fails or succeeds as a whole.
	CreateErr error

	// UpdatedIDs are existing records confirmed updated.
	UpdatedIDs []string
	// FailedUpdates maps record ids to their errors.
	FailedUpdates map[string]error
}

// OK reports whether every dispatched operation succeeded.
func (d Disposition) OK() bool {
	return len(d.FailedDeletes) == 0 && d.CreateErr == nil && len(d.FailedUpdates) == 0
}

// Err summarizes the first failure, or nil when the run fully succeeded.
func (d Disposition) Err() error {
	for id, err := range d.FailedDeletes {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	if d.CreateErr != nil {
		return fmt.Errorf("create: %w", d.CreateErr)
	}
	for id, err := range d.FailedUpdates {
		return fmt.Errorf("update %s: %w", id, err)
	}
	return nil
}

// Engine executes reconciliation runs against a Remote.
type Engine struct {
	remote Remote
	logger *slog.Logger
}

// NewEngine wires an engine. A nil logger falls back to slog.Default.
func NewEngine(remote Remote, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{remote: remote, logger: logger}
}

// Save reconciles the remote store: removals are deleted first (all
// concurrent, all settled before the next phase), new records are
// created in one batch tagged with ownerKey, and the remaining records
// are updated concurrently. The snapshot must already be validated.
func (e *Engine) Save(ctx context.Context, links []model.Link, removals []string, ownerKey string) Disposition {
	d := Disposition{
		FailedDeletes: map[string]error{},
		Created:       map[string]string{},
		FailedUpdates: map[string]error{},
	}

	// Phase 1: deletes. Independent and order-insensitive, so they fan
	// out; the phase blocks until every request settles.
	var mu sync.Mutex
	var g errgroup.Group
	for _, id := range removals {
		g.Go(func() error {
			err := e.remote.DeleteLink(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				d.FailedDeletes[id] = err
				return err
			}
			d.DeletedIDs = append(d.DeletedIDs, id)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		e.logger.Warn("reconcile: delete phase had failures", "failed", len(d.FailedDeletes))
	}

	// Phase 2: one batched create for all new records.
	var fresh []model.Link
	for _, l := range links {
		if l.IsNew {
			fresh = append(fresh, l)
		}
	}
	if len(fresh) > 0 {
		remoteIDs, err := e.remote.InsertLinks(ctx, fresh, ownerKey)
		switch {
		case err != nil:
			d.CreateErr = err
			e.logger.Warn("reconcile: batched create failed", "records", len(fresh), "error", err)
		case len(remoteIDs) != len(fresh):
			d.CreateErr = fmt.Errorf("create returned %d ids for %d records", len(remoteIDs), len(fresh))
		default:
			for i, l := range fresh {
				d.Created[l.ID] = remoteIDs[i]
			}
		}
	}

	// Phase 3: per-record updates for everything that already exists.
	var ug errgroup.Group
	for _, l := range links {
		if l.IsNew {
			continue
		}
		ug.Go(func() error {
			err := e.remote.UpdateLink(ctx, l)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				d.FailedUpdates[l.ID] = err
				return err
			}
			d.UpdatedIDs = append(d.UpdatedIDs, l.ID)
			return nil
		})
	}
	if err := ug.Wait(); err != nil {
		e.logger.Warn("reconcile: update phase had failures", "failed", len(d.FailedUpdates))
	}

	return d
}
