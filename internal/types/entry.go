package types

import (
	"sort"

	"github.com/newffy/nessie/internal/codec"
	"github.com/newffy/nessie/internal/hashid"
)

// KeyListEntry is a single (key, CID, type, local value) row materialised
// inside a commit entry's embedded key list (spec.md §3 "Key List").
// LocalValue is carried so that values(commit, ...) can still answer
// the per-reference content bytes for a key past a snapshot boundary,
// without having to replay every put back to the key's original commit.
type KeyListEntry struct {
	Key        ContentKey
	CID        CID
	Type       ContentType
	LocalValue []byte
}

// CommitEntry is an immutable commit-log record (spec.md §3 "Commit Log
// Entry", component C2).
type CommitEntry struct {
	Hash            hashid.Hash
	Parents         []hashid.Hash // Parents[0] is the primary parent
	CreatedTime     int64         // microseconds since epoch
	CommitSeq       uint64
	Metadata        []byte
	Puts            []Put
	Deletes         []Delete
	KeyListDistance int
	KeyList         []KeyListEntry // only set when KeyListDistance == 0
	KeyListIDs      []hashid.Hash  // secondary-parent shortcuts embedded alongside KeyList
	// GlobalID is the Global Pointer's GlobalID as of this commit (spec.md
	// component C3), letting readpath resolve a WithGlobalState key's
	// value as it stood at this specific commit rather than only at HEAD.
	GlobalID hashid.Hash
}

// PrimaryParent returns the immediate predecessor, or the no-ancestor
// sentinel if this is the root commit.
func (e *CommitEntry) PrimaryParent() hashid.Hash {
	if len(e.Parents) == 0 {
		return hashid.NoAncestor()
	}
	return e.Parents[0]
}

// HasEmbeddedKeyList reports whether this entry materialises a full key
// list (KeyListDistance == 0).
func (e *CommitEntry) HasEmbeddedKeyList() bool { return e.KeyListDistance == 0 }

// field numbers for the deterministic binary encoding (spec.md §6). The
// hash itself is never a field of its own serialization, and neither is
// GlobalID or a key-list row's LocalValue.
const (
	fieldParents         = 1
	fieldCreatedTime     = 2
	fieldCommitSeq       = 3
	fieldMetadata        = 4
	fieldPutKey          = 5
	fieldPutCID          = 6
	fieldPutType         = 7
	fieldPutLocalValue   = 8
	fieldPutGlobalValue  = 9
	fieldDeleteKey       = 10
	fieldKeyListDistance = 11
	fieldKeyListKey      = 12
	fieldKeyListCID      = 13
	fieldKeyListType     = 14
	fieldKeyListID       = 15
	fieldPutBoundary     = 16 // separates successive puts in the flat stream
	fieldDeleteBoundary  = 17
	fieldKeyListBoundary = 18
)

func encodeKey(k ContentKey) []byte {
	w := codec.NewWriter()
	for _, seg := range k.Segments {
		w.FieldString(1, seg)
	}
	return w.Bytes()
}

// Canonicalize serializes the entry's content (everything except its own
// hash, its GlobalID, and the LocalValue of embedded key-list rows) in
// canonical field order. Two entries with identical content
// produce byte-identical output, which is what makes hash(E) deterministic
// (spec.md §8 invariant 1).
func (e *CommitEntry) Canonicalize() []byte {
	w := codec.NewWriter()
	for _, p := range e.Parents {
		w.Field(fieldParents, p.Bytes())
	}
	w.FieldInt64(fieldCreatedTime, e.CreatedTime)
	w.FieldUint64(fieldCommitSeq, e.CommitSeq)
	w.Field(fieldMetadata, e.Metadata)

	for _, p := range e.Puts {
		w.Field(fieldPutKey, encodeKey(p.Key))
		w.FieldString(fieldPutCID, string(p.CID))
		w.FieldUint64(fieldPutType, uint64(p.Type))
		w.Field(fieldPutLocalValue, p.LocalValue)
		w.Field(fieldPutGlobalValue, p.GlobalValue)
		w.Field(fieldPutBoundary, nil)
	}
	for _, d := range e.Deletes {
		w.Field(fieldDeleteKey, encodeKey(d.Key))
		w.Field(fieldDeleteBoundary, nil)
	}

	w.FieldUint64(fieldKeyListDistance, uint64(e.KeyListDistance))
	for _, kl := range e.KeyList {
		w.Field(fieldKeyListKey, encodeKey(kl.Key))
		w.FieldString(fieldKeyListCID, string(kl.CID))
		w.FieldUint64(fieldKeyListType, uint64(kl.Type))
		w.Field(fieldKeyListBoundary, nil)
	}
	for _, id := range e.KeyListIDs {
		w.Field(fieldKeyListID, id.Bytes())
	}
	return w.Bytes()
}

// ComputeHash returns the deterministic content hash of the entry.
func (e *CommitEntry) ComputeHash() hashid.Hash {
	return hashid.Of(e.Canonicalize())
}

// Validate enforces the intra-entry invariant from spec.md §3: the set
// of keys appearing in Puts and Deletes is disjoint.
func (e *CommitEntry) Validate() error {
	seen := make(map[string]bool, len(e.Puts))
	for _, p := range e.Puts {
		seen[p.Key.String()] = true
	}
	for _, d := range e.Deletes {
		if seen[d.Key.String()] {
			return errPutDeleteSameKey(d.Key)
		}
	}
	return nil
}

// SortedPutKeys returns the keys written by this entry's Puts, sorted
// for deterministic diagnostics output.
func (e *CommitEntry) SortedPutKeys() []string {
	out := make([]string, 0, len(e.Puts))
	for _, p := range e.Puts {
		out = append(out, p.Key.String())
	}
	sort.Strings(out)
	return out
}
