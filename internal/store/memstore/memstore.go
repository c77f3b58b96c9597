// Package memstore implements store.Store backed by in-process maps
// guarded by a mutex, in the style of the teacher's
// internal/storage/memory backend. It is the reference Store used by
// every other package's tests and is good enough to run a full single
// repository end to end without any external dependency.
package memstore

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/newffy/nessie/internal/hashid"
	"github.com/newffy/nessie/internal/nesserr"
	"github.com/newffy/nessie/internal/store"
	"github.com/newffy/nessie/internal/types"
)

// Store is an in-memory store.Store implementation. The zero value is
// not usable; construct with New.
type Store struct {
	mu sync.RWMutex

	pointer    *types.GlobalPointer
	commits    map[hashid.Hash]*types.CommitEntry
	globalLogs map[hashid.Hash]*types.GlobalLogEntry
	refLogs    map[hashid.Hash]*types.RefLogEntry
	repoDescs  map[string]*types.RepositoryDescription
}

var _ store.Store = (*Store)(nil)
var _ store.RepoDescriptionStore = (*Store)(nil)

// New returns an empty Store with a zero-valued global pointer (no
// named references, HEAD at the no-ancestor hash). Callers typically
// follow this with refs.InitializeRepo.
func New() *Store {
	return &Store{
		pointer:    &types.GlobalPointer{Version: uuid.NewString()},
		commits:    make(map[hashid.Hash]*types.CommitEntry),
		globalLogs: make(map[hashid.Hash]*types.GlobalLogEntry),
		refLogs:    make(map[hashid.Hash]*types.RefLogEntry),
		repoDescs:  make(map[string]*types.RepositoryDescription),
	}
}

func (s *Store) GetGlobalPointer(_ context.Context) (*types.GlobalPointer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pointer.Clone(), nil
}

func (s *Store) CASGlobalPointer(_ context.Context, expected, next *types.GlobalPointer) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pointer.Version != expected.Version {
		return false, nil
	}
	clone := next.Clone()
	clone.Version = uuid.NewString()
	s.pointer = clone
	return true, nil
}

func (s *Store) PutCommitLog(_ context.Context, e *types.CommitEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commits[e.Hash] = e
	return nil
}

func (s *Store) GetCommitLog(_ context.Context, h hashid.Hash) (*types.CommitEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.commits[h]
	if !ok {
		return nil, nesserr.New(nesserr.NotFound, "commit %s not found", h)
	}
	return e, nil
}

func (s *Store) BatchGetCommitLog(_ context.Context, hs []hashid.Hash) (map[hashid.Hash]*types.CommitEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[hashid.Hash]*types.CommitEntry, len(hs))
	for _, h := range hs {
		if e, ok := s.commits[h]; ok {
			out[h] = e
		}
	}
	return out, nil
}

func (s *Store) PutGlobalLog(_ context.Context, g *types.GlobalLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.globalLogs[g.ID] = g
	return nil
}

func (s *Store) GetGlobalLog(_ context.Context, h hashid.Hash) (*types.GlobalLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.globalLogs[h]
	if !ok {
		return nil, nesserr.New(nesserr.NotFound, "global log entry %s not found", h)
	}
	return g, nil
}

func (s *Store) PutRefLog(_ context.Context, r *types.RefLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refLogs[r.RefLogID] = r
	return nil
}

func (s *Store) GetRefLog(_ context.Context, h hashid.Hash) (*types.RefLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.refLogs[h]
	if !ok {
		return nil, nesserr.New(nesserr.RefLogNotFound, "ref log entry %s not found", h)
	}
	return r, nil
}

func (s *Store) Erase(_ context.Context, repositoryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pointer = &types.GlobalPointer{Version: uuid.NewString()}
	s.commits = make(map[hashid.Hash]*types.CommitEntry)
	s.globalLogs = make(map[hashid.Hash]*types.GlobalLogEntry)
	s.refLogs = make(map[hashid.Hash]*types.RefLogEntry)
	delete(s.repoDescs, repositoryID)
	return nil
}

func (s *Store) ScanRefLog(_ context.Context, head hashid.Hash, fn func(*types.RefLogEntry) bool) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h := head
	for !h.IsNoAncestor() {
		r, ok := s.refLogs[h]
		if !ok {
			return nesserr.New(nesserr.RefLogNotFound, "ref log entry %s not found while scanning", h)
		}
		if !fn(r) {
			return nil
		}
		if len(r.Parents) == 0 {
			return nil
		}
		h = r.Parents[0]
	}
	return nil
}

func (s *Store) GetRepoDescription(_ context.Context, repositoryID string) (*types.RepositoryDescription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.repoDescs[repositoryID]
	if !ok {
		return &types.RepositoryDescription{RepoVersion: 1, Properties: map[string]string{}, Version: ""}, nil
	}
	return d.Clone(), nil
}

func (s *Store) CASRepoDescription(_ context.Context, repositoryID string, expected, next *types.RepositoryDescription) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.repoDescs[repositoryID]
	currentVersion := ""
	if ok {
		currentVersion = current.Version
	}
	if currentVersion != expected.Version {
		return false, nil
	}
	clone := next.Clone()
	clone.Version = uuid.NewString()
	s.repoDescs[repositoryID] = clone
	return true, nil
}
