// Package readpath implements the adapter's non-mutating query surface
// (spec.md §3/§4.7, component C7): resolving values and keys at a
// commit, walking the commit log, diffing two commits, and resolving a
// relative hash against a reference's history.
package readpath

import (
	"context"

	"github.com/newffy/nessie/internal/hashid"
	"github.com/newffy/nessie/internal/keylist"
	"github.com/newffy/nessie/internal/nesserr"
	"github.com/newffy/nessie/internal/store"
	"github.com/newffy/nessie/internal/types"
)

// Filter narrows a key-space query; nil matches everything.
type Filter func(types.ContentKey) bool

// Reader is the read-path collaborator. Like commitengine.Engine it
// holds only a Store dependency.
type Reader struct {
	Store store.Store
}

// New builds a Reader.
func New(s store.Store) *Reader { return &Reader{Store: s} }

// Values returns the resolved (key, CID, type, value) rows visible at
// commit h, restricted to keys matching filter (spec.md §3 "values").
// For a WithGlobalState key the authoritative bytes live in the
// global-state log rather than the commit itself, so those rows are
// filled in from GlobalValue resolved against h's own GlobalID — not
// necessarily the current HEAD's — so a read at an older commit still
// sees that commit's global state.
func (r *Reader) Values(ctx context.Context, h hashid.Hash, filter Filter) ([]keylist.Entry, error) {
	table, err := keylist.Rebuild(ctx, r.Store, h)
	if err != nil {
		return nil, err
	}

	var globalID hashid.Hash
	if !h.IsNoAncestor() {
		commit, err := r.Store.GetCommitLog(ctx, h)
		if err != nil {
			return nil, err
		}
		globalID = commit.GlobalID
	}

	out := make([]keylist.Entry, 0, len(table))
	for _, e := range table {
		if filter != nil && !filter(e.Key) {
			continue
		}
		if e.Type == types.WithGlobalState && !globalID.IsNoAncestor() {
			if v, err := r.GlobalValue(ctx, globalID, e.CID); err == nil {
				e.GlobalValue = v
			}
		}
		out = append(out, e)
	}
	return out, nil
}

// Keys returns just the keys visible at commit h matching filter
// (spec.md §3 "keys").
func (r *Reader) Keys(ctx context.Context, h hashid.Hash, filter Filter) ([]types.ContentKey, error) {
	entries, err := r.Values(ctx, h, filter)
	if err != nil {
		return nil, err
	}
	out := make([]types.ContentKey, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Key)
	}
	return out, nil
}

// CommitLogPage is one page of CommitLog's lazy pagination.
type CommitLogPage struct {
	Entries []*types.CommitEntry
	Next    hashid.Hash // primary parent of the last entry returned; no-ancestor when exhausted
}

// CommitLog returns up to limit commit entries starting at h and
// following primary parents, lazily (spec.md §3 "commitLog(offset)").
// Callers page through history by feeding Next back in as h.
func (r *Reader) CommitLog(ctx context.Context, h hashid.Hash, limit int) (*CommitLogPage, error) {
	page := &CommitLogPage{}
	cur := h
	for len(page.Entries) < limit && !cur.IsNoAncestor() {
		e, err := r.Store.GetCommitLog(ctx, cur)
		if err != nil {
			return nil, err
		}
		page.Entries = append(page.Entries, e)
		cur = e.PrimaryParent()
	}
	page.Next = cur
	return page, nil
}

// DiffOp describes a single row-level difference between two commits.
type DiffOp struct {
	Key     types.ContentKey
	FromCID types.CID // zero value if the key did not exist at "from"
	ToCID   types.CID // zero value if the key does not exist at "to" (a delete)
}

// Diff compares the logical tables visible at from and to, restricted
// to keys matching filter (spec.md §3 "diff(from,to)").
func (r *Reader) Diff(ctx context.Context, from, to hashid.Hash, filter Filter) ([]DiffOp, error) {
	fromTable, err := keylist.Rebuild(ctx, r.Store, from)
	if err != nil {
		return nil, err
	}
	toTable, err := keylist.Rebuild(ctx, r.Store, to)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(fromTable)+len(toTable))
	var ops []DiffOp
	for k, fe := range fromTable {
		if filter != nil && !filter(fe.Key) {
			continue
		}
		seen[k] = true
		te, ok := toTable[k]
		if ok && te.CID == fe.CID {
			continue
		}
		op := DiffOp{Key: fe.Key, FromCID: fe.CID}
		if ok {
			op.ToCID = te.CID
		}
		ops = append(ops, op)
	}
	for k, te := range toTable {
		if seen[k] {
			continue
		}
		if filter != nil && !filter(te.Key) {
			continue
		}
		ops = append(ops, DiffOp{Key: te.Key, ToCID: te.CID})
	}
	return ops, nil
}

// HashOnReference resolves a hash relative to a reference: if target is
// nil it returns refHead unchanged, otherwise it walks refHead's
// primary-parent chain and confirms target is reachable, returning it
// if so (spec.md §3 "hashOnReference").
func (r *Reader) HashOnReference(ctx context.Context, refHead hashid.Hash, target *hashid.Hash) (hashid.Hash, error) {
	if target == nil {
		return refHead, nil
	}
	cur := refHead
	for !cur.IsNoAncestor() {
		if cur.Equal(*target) {
			return *target, nil
		}
		e, err := r.Store.GetCommitLog(ctx, cur)
		if err != nil {
			return hashid.Hash{}, err
		}
		cur = e.PrimaryParent()
	}
	if target.IsNoAncestor() {
		return hashid.NoAncestor(), nil
	}
	return hashid.Hash{}, nesserr.New(nesserr.NotFound, "hash %s is not reachable from the reference's history", target)
}

// GlobalValue resolves the current value of a global-state CID (spec.md
// component C3) by walking the global-state-log parent chain backward
// from globalID until a GlobalLogEntry carrying that CID is found. The
// global-state log is a single shared address space separate from any
// one reference's commit history, so this walk follows
// GlobalLogEntry.Parents rather than a commit's primary parent.
func (r *Reader) GlobalValue(ctx context.Context, globalID hashid.Hash, cid types.CID) ([]byte, error) {
	cur := globalID
	for !cur.IsNoAncestor() {
		g, err := r.Store.GetGlobalLog(ctx, cur)
		if err != nil {
			return nil, err
		}
		for _, p := range g.Puts {
			if p.CID == cid {
				return p.Value, nil
			}
		}
		if len(g.Parents) == 0 {
			break
		}
		cur = g.Parents[0]
	}
	return nil, nesserr.New(nesserr.NotFound, "global value %s not found", cid)
}

// History returns every commit hash on the path from h back to the
// root, newest first — the full-history counterpart to CommitLog's
// paginated form, used by the supplemental readpath.History feature.
func (r *Reader) History(ctx context.Context, h hashid.Hash) ([]hashid.Hash, error) {
	var out []hashid.Hash
	cur := h
	for !cur.IsNoAncestor() {
		out = append(out, cur)
		e, err := r.Store.GetCommitLog(ctx, cur)
		if err != nil {
			return nil, err
		}
		cur = e.PrimaryParent()
	}
	return out, nil
}
