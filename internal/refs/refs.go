// Package refs implements reference management (spec.md §3/§4.8,
// component C8): creating, assigning, and deleting named references,
// listing them, and the repository-wide initialize/erase operations.
// Every mutation here follows the same CAS-retry shape as
// commitengine.Engine.Commit, since the global pointer is the one root
// record both packages fight over.
package refs

import (
	"context"
	"log/slog"
	"time"

	"github.com/newffy/nessie/internal/hashid"
	"github.com/newffy/nessie/internal/nessconfig"
	"github.com/newffy/nessie/internal/nesserr"
	"github.com/newffy/nessie/internal/store"
	"github.com/newffy/nessie/internal/types"
)

// Manager is the reference-management collaborator.
type Manager struct {
	Store  store.Store
	Config *nessconfig.Config
	Now    func() int64
	Log    *slog.Logger
}

// New builds a Manager. now defaults to commitengine's convention of
// wall-clock microseconds if nil.
func New(s store.Store, cfg *nessconfig.Config, now func() int64) *Manager {
	if now == nil {
		now = defaultNow
	}
	return &Manager{Store: s, Config: cfg, Now: now, Log: slog.Default()}
}

func defaultNow() int64 { return time.Now().UnixMicro() }

// Create adds a new named reference pointing at hash (spec.md §3
// "create"). If hash is the no-ancestor sentinel the reference starts
// empty, as the very first branch of a repository does.
func (m *Manager) Create(ctx context.Context, name string, refType types.RefType, hash hashid.Hash) error {
	return m.retryPointer(ctx, func(p *types.GlobalPointer) (*types.GlobalPointer, *types.RefLogEntry, error) {
		if _, exists := p.Lookup(name); exists {
			return nil, nil, nesserr.New(nesserr.AlreadyExists, "reference %q already exists", name)
		}
		next := p.Clone()
		next.Touch(name, types.RefPointer{Type: refType, Hash: hash})
		refLog := &types.RefLogEntry{
			Parents:       []hashid.Hash{p.RefLogID},
			RefName:       name,
			RefType:       refType,
			CommitHash:    hash,
			Operation:     types.OpCreateReference,
			OperationTime: m.Now(),
		}
		return next, refLog, nil
	})
}

// Assign moves an existing reference to point at a new hash (spec.md
// §3 "assign"), e.g. after a force-push-style rewrite.
func (m *Manager) Assign(ctx context.Context, name string, expected hashid.Hash, hash hashid.Hash) error {
	return m.retryPointer(ctx, func(p *types.GlobalPointer) (*types.GlobalPointer, *types.RefLogEntry, error) {
		cur, exists := p.Lookup(name)
		if !exists {
			return nil, nil, nesserr.New(nesserr.NotFound, "reference %q not found", name)
		}
		if !cur.Hash.Equal(expected) {
			return nil, nil, nesserr.New(nesserr.Conflict, "reference %q has moved since it was read", name)
		}
		next := p.Clone()
		next.Touch(name, types.RefPointer{Type: cur.Type, Hash: hash})
		refLog := &types.RefLogEntry{
			Parents:       []hashid.Hash{p.RefLogID},
			RefName:       name,
			RefType:       cur.Type,
			CommitHash:    hash,
			Operation:     types.OpAssignReference,
			OperationTime: m.Now(),
			SourceHashes:  []hashid.Hash{cur.Hash},
		}
		return next, refLog, nil
	})
}

// Delete removes a named reference (spec.md §3 "delete").
func (m *Manager) Delete(ctx context.Context, name string, expected hashid.Hash) error {
	return m.retryPointer(ctx, func(p *types.GlobalPointer) (*types.GlobalPointer, *types.RefLogEntry, error) {
		cur, exists := p.Lookup(name)
		if !exists {
			return nil, nil, nesserr.New(nesserr.NotFound, "reference %q not found", name)
		}
		if !cur.Hash.Equal(expected) {
			return nil, nil, nesserr.New(nesserr.Conflict, "reference %q has moved since it was read", name)
		}
		next := p.Clone()
		next.Remove(name)
		refLog := &types.RefLogEntry{
			Parents:       []hashid.Hash{p.RefLogID},
			RefName:       name,
			RefType:       cur.Type,
			CommitHash:    cur.Hash,
			Operation:     types.OpDeleteReference,
			OperationTime: m.Now(),
		}
		return next, refLog, nil
	})
}

// NamedRef resolves a single reference by name (spec.md §3 "namedRef").
func (m *Manager) NamedRef(ctx context.Context, name string) (types.RefPointer, error) {
	p, err := m.Store.GetGlobalPointer(ctx)
	if err != nil {
		return types.RefPointer{}, err
	}
	ptr, exists := p.Lookup(name)
	if !exists {
		return types.RefPointer{}, nesserr.New(nesserr.NotFound, "reference %q not found", name)
	}
	return ptr, nil
}

// NamedRefs lists every reference in most-recently-touched order
// (spec.md §3 "namedRefs").
func (m *Manager) NamedRefs(ctx context.Context) ([]types.NamedReference, error) {
	p, err := m.Store.GetGlobalPointer(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]types.NamedReference, len(p.NamedReferences))
	copy(out, p.NamedReferences)
	return out, nil
}

// InitializeRepo creates the default "main" branch at the no-ancestor
// root if the repository has no references yet; idempotent when called
// again on an already-initialized repository (spec.md §3
// "initializeRepo").
func (m *Manager) InitializeRepo(ctx context.Context) error {
	p, err := m.Store.GetGlobalPointer(ctx)
	if err != nil {
		return err
	}
	if len(p.NamedReferences) > 0 {
		return nil
	}
	return m.Create(ctx, "main", types.Branch, hashid.NoAncestor())
}

// EraseRepo wipes every record belonging to repositoryID, including the
// global pointer itself (spec.md §3 "eraseRepo"). Unlike every other
// mutation in this package it is not a CAS operation: it is meant for
// full repository teardown, not concurrent use.
func (m *Manager) EraseRepo(ctx context.Context, repositoryID string) error {
	return m.Store.Erase(ctx, repositoryID)
}

// retryPointer runs compute against the current pointer, writes any
// produced ref-log entry, and CASes the result in, retrying on lost
// races up to Config.CommitRetries times — the same shape as
// commitengine.Engine's commit loop, reused here because reference
// mutations share the identical CAS contention surface.
func (m *Manager) retryPointer(ctx context.Context, compute func(*types.GlobalPointer) (*types.GlobalPointer, *types.RefLogEntry, error)) error {
	for i := 0; i < m.Config.CommitRetries; i++ {
		p, err := m.Store.GetGlobalPointer(ctx)
		if err != nil {
			return err
		}
		next, refLog, err := compute(p)
		if err != nil {
			return err
		}

		refLog.RefLogID = refLog.ComputeHash()
		next.RefLogID = refLog.RefLogID
		next.RefLogParentsInclHead = types.PushRing(next.RefLogParentsInclHead, refLog.RefLogID, m.Config.RefLogParentsRing)

		if err := m.Store.PutRefLog(ctx, refLog); err != nil {
			return err
		}

		ok, err := m.Store.CASGlobalPointer(ctx, p, next)
		if err != nil {
			return err
		}
		if ok {
			m.Log.InfoContext(ctx, "reference updated", "ref", refLog.RefName, "operation", refLog.Operation)
			return nil
		}
		m.Log.DebugContext(ctx, "reference update lost CAS race, retrying", "attempt", i+1)
	}
	return nesserr.New(nesserr.Conflict, "reference update lost the CAS race %d times in a row", m.Config.CommitRetries)
}
