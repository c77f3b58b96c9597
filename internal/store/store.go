// Package store defines the abstract persistence contract the adapter
// requires (spec.md §6, component C10): CAS on the Global Pointer, and
// durable append-only writes for commit-log, global-log, and ref-log
// records. Concrete bindings (in-memory, Dolt/MySQL) live in subpackages.
package store

import (
	"context"

	"github.com/newffy/nessie/internal/hashid"
	"github.com/newffy/nessie/internal/types"
)

// Store is the persistence collaborator every adapter component is
// built against. Implementations are responsible for durability and for
// CAS semantics on the global pointer; the adapter never assumes a
// particular backing technology.
type Store interface {
	// GetGlobalPointer returns the current pointer record. Reads are
	// always fresh (spec.md §4.4).
	GetGlobalPointer(ctx context.Context) (*types.GlobalPointer, error)

	// CASGlobalPointer atomically replaces expected with next, succeeding
	// only if the stored pointer's Version still matches expected.Version.
	CASGlobalPointer(ctx context.Context, expected, next *types.GlobalPointer) (bool, error)

	// PutCommitLog durably stores a commit entry. Idempotent on hash.
	PutCommitLog(ctx context.Context, e *types.CommitEntry) error
	// GetCommitLog retrieves a single commit entry by hash.
	GetCommitLog(ctx context.Context, h hashid.Hash) (*types.CommitEntry, error)
	// BatchGetCommitLog retrieves multiple commit entries in one round trip.
	BatchGetCommitLog(ctx context.Context, hs []hashid.Hash) (map[hashid.Hash]*types.CommitEntry, error)

	// PutGlobalLog durably stores a global-state log entry.
	PutGlobalLog(ctx context.Context, g *types.GlobalLogEntry) error
	// GetGlobalLog retrieves a single global-state log entry by hash.
	GetGlobalLog(ctx context.Context, h hashid.Hash) (*types.GlobalLogEntry, error)

	// PutRefLog durably stores a ref-log entry.
	PutRefLog(ctx context.Context, r *types.RefLogEntry) error
	// GetRefLog retrieves a single ref-log entry by hash.
	GetRefLog(ctx context.Context, h hashid.Hash) (*types.RefLogEntry, error)

	// Erase removes every record tagged with repositoryID (spec.md §3
	// "eraseRepo").
	Erase(ctx context.Context, repositoryID string) error

	// ScanRefLog walks the ref log from head following
	// RefLogEntry.Parents[0], calling fn for each entry until fn returns
	// false or the chain is exhausted.
	ScanRefLog(ctx context.Context, head hashid.Hash, fn func(*types.RefLogEntry) bool) error
}

// RepoDescriptionStore is a narrower, optional persistence surface for
// the repository description record (spec.md §3); not every Store
// implementation needs to support it directly (the in-memory store
// does), so it is split out rather than folded into Store.
type RepoDescriptionStore interface {
	GetRepoDescription(ctx context.Context, repositoryID string) (*types.RepositoryDescription, error)
	CASRepoDescription(ctx context.Context, repositoryID string, expected, next *types.RepositoryDescription) (bool, error)
}
