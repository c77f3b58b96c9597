// Package keylist rebuilds the logical key/value table visible at a
// commit by walking the commit-log parent chain (spec.md §3 "Key List",
// component C2). Every commit carries an embedded key list once its
// distance from the last full snapshot reaches the configured
// keyListDistance; rebuilding means finding the nearest such snapshot
// and replaying the puts/deletes recorded on every commit in between,
// newest first, so the first observation of a key wins.
package keylist

import (
	"context"

	"github.com/newffy/nessie/internal/hashid"
	"github.com/newffy/nessie/internal/nesserr"
	"github.com/newffy/nessie/internal/store"
	"github.com/newffy/nessie/internal/types"
)

// Entry is a single logical key's resolved state at the target commit,
// or a tombstone if the key was deleted since the last snapshot.
// LocalValue carries the per-reference content bytes recorded by the
// put that last wrote the key. GlobalValue is left unset by Rebuild and
// Lookup even for WithGlobalState keys, since the authoritative value
// lives in the global-state log and must be resolved separately
// (readpath.Values does this via Reader.GlobalValue).
type Entry struct {
	Key         types.ContentKey
	CID         types.CID
	Type        types.ContentType
	LocalValue  []byte
	GlobalValue []byte
	Deleted     bool
}

// Rebuild returns the full logical table visible at hash h by walking
// parents until an embedded key list is found, then replaying every
// put/delete recorded on the commits traversed along the way, most
// recent first. Tombstones from deletes closer to h shadow any same-key
// entry in the snapshot or in an intervening commit.
func Rebuild(ctx context.Context, s store.Store, h hashid.Hash) (map[string]Entry, error) {
	out := make(map[string]Entry)
	seen := make(map[string]bool)

	cur := h
	for !cur.IsNoAncestor() {
		e, err := s.GetCommitLog(ctx, cur)
		if err != nil {
			return nil, err
		}

		for _, d := range e.Deletes {
			k := d.Key.String()
			if seen[k] {
				continue
			}
			seen[k] = true
			out[k] = Entry{Key: d.Key, Deleted: true}
		}
		for _, p := range e.Puts {
			k := p.Key.String()
			if seen[k] {
				continue
			}
			seen[k] = true
			out[k] = Entry{Key: p.Key, CID: p.CID, Type: p.Type, LocalValue: p.LocalValue}
		}

		if e.HasEmbeddedKeyList() {
			for _, kle := range e.KeyList {
				k := kle.Key.String()
				if seen[k] {
					continue
				}
				seen[k] = true
				out[k] = Entry{Key: kle.Key, CID: kle.CID, Type: kle.Type, LocalValue: kle.LocalValue}
			}
			break
		}

		cur = e.PrimaryParent()
	}

	live := make(map[string]Entry, len(out))
	for k, v := range out {
		if !v.Deleted {
			live[k] = v
		}
	}
	return live, nil
}

// Lookup resolves a single key at commit h without materializing the
// whole table, short-circuiting as soon as the key (or its tombstone)
// is found.
func Lookup(ctx context.Context, s store.Store, h hashid.Hash, key types.ContentKey) (Entry, bool, error) {
	target := key.String()
	cur := h
	for !cur.IsNoAncestor() {
		e, err := s.GetCommitLog(ctx, cur)
		if err != nil {
			return Entry{}, false, err
		}

		for _, d := range e.Deletes {
			if d.Key.String() == target {
				return Entry{}, false, nil
			}
		}
		for _, p := range e.Puts {
			if p.Key.String() == target {
				return Entry{Key: p.Key, CID: p.CID, Type: p.Type, LocalValue: p.LocalValue}, true, nil
			}
		}
		if e.HasEmbeddedKeyList() {
			for _, kle := range e.KeyList {
				if kle.Key.String() == target {
					return Entry{Key: kle.Key, CID: kle.CID, Type: kle.Type, LocalValue: kle.LocalValue}, true, nil
				}
			}
			return Entry{}, false, nil
		}

		cur = e.PrimaryParent()
	}
	return Entry{}, false, nil
}

// ShouldEmbed reports whether the next commit built on parent (which is
// distance steps from its nearest snapshot) must carry a full embedded
// key list, per spec.md §3's keyListDistance invariant.
func ShouldEmbed(parentDistance int, keyListDistance int) bool {
	return parentDistance+1 >= keyListDistance
}

// NextDistance returns the KeyListDistance value the new commit should
// record: 0 if it embeds a fresh snapshot, otherwise parentDistance+1.
func NextDistance(parentDistance int, keyListDistance int) int {
	if ShouldEmbed(parentDistance, keyListDistance) {
		return 0
	}
	return parentDistance + 1
}

// errNoSnapshot describes a chain exhausted without ever finding an
// embedded key list, which indicates a corrupt history (every root
// commit the commit engine writes embeds one). Rebuild and Lookup do
// not return it: a walk that reaches the no-ancestor hash ends there.
func errNoSnapshot(h hashid.Hash) error {
	return nesserr.New(nesserr.Internal, "no embedded key list found walking back from %s", h)
}
