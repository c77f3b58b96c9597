package types

import (
	"github.com/newffy/nessie/internal/codec"
	"github.com/newffy/nessie/internal/hashid"
)

// GlobalPut is a single CID/value write inside a GlobalLogEntry.
type GlobalPut struct {
	CID   CID
	Value []byte
}

// GlobalLogEntry is an append-only record of globally-shared content
// values (spec.md §3 "Global State Log Entry", component C3).
type GlobalLogEntry struct {
	ID          hashid.Hash
	Parents     []hashid.Hash
	Puts        []GlobalPut
	CreatedTime int64
}

const (
	fieldGlobalParents = 1
	fieldGlobalPutCID  = 2
	fieldGlobalPutVal  = 3
	fieldGlobalCreated = 4
	fieldGlobalPutEnd  = 5
)

// Canonicalize serializes the entry's content for hashing, mirroring
// CommitEntry.Canonicalize.
func (g *GlobalLogEntry) Canonicalize() []byte {
	w := codec.NewWriter()
	for _, p := range g.Parents {
		w.Field(fieldGlobalParents, p.Bytes())
	}
	for _, p := range g.Puts {
		w.FieldString(fieldGlobalPutCID, string(p.CID))
		w.Field(fieldGlobalPutVal, p.Value)
		w.Field(fieldGlobalPutEnd, nil)
	}
	w.FieldInt64(fieldGlobalCreated, g.CreatedTime)
	return w.Bytes()
}

// ComputeHash returns the deterministic content hash of the entry.
func (g *GlobalLogEntry) ComputeHash() hashid.Hash {
	return hashid.Of(g.Canonicalize())
}
