package types

import (
	"github.com/newffy/nessie/internal/codec"
	"github.com/newffy/nessie/internal/hashid"
)

// RefType distinguishes branches (mutable, advance via commits) from
// tags (reassignable but intended to be immutable otherwise).
type RefType int

const (
	Branch RefType = iota
	Tag
)

func (t RefType) String() string {
	if t == Tag {
		return "Tag"
	}
	return "Branch"
}

// RefOperation enumerates the kinds of reference mutation recorded in
// the ref log (spec.md §3 "Ref Log Entry").
type RefOperation int

const (
	OpCreateReference RefOperation = iota
	OpCommit
	OpDeleteReference
	OpAssignReference
	OpMerge
	OpTransplant
)

func (o RefOperation) String() string {
	switch o {
	case OpCreateReference:
		return "CREATE_REFERENCE"
	case OpCommit:
		return "COMMIT"
	case OpDeleteReference:
		return "DELETE_REFERENCE"
	case OpAssignReference:
		return "ASSIGN_REFERENCE"
	case OpMerge:
		return "MERGE"
	case OpTransplant:
		return "TRANSPLANT"
	default:
		return "UNKNOWN"
	}
}

// RefLogEntry is a single audit-log record of a reference operation
// (spec.md §3 "Ref Log Entry", component C5).
type RefLogEntry struct {
	RefLogID      hashid.Hash
	Parents       []hashid.Hash
	RefName       string
	RefType       RefType
	CommitHash    hashid.Hash
	Operation     RefOperation
	OperationTime int64
	SourceHashes  []hashid.Hash
}

const (
	fieldRefParents      = 1
	fieldRefName         = 2
	fieldRefType         = 3
	fieldRefCommitHash   = 4
	fieldRefOperation    = 5
	fieldRefOperationTS  = 6
	fieldRefSourceHashes = 7
)

// Canonicalize serializes the entry's content for hashing.
func (r *RefLogEntry) Canonicalize() []byte {
	w := codec.NewWriter()
	for _, p := range r.Parents {
		w.Field(fieldRefParents, p.Bytes())
	}
	w.FieldString(fieldRefName, r.RefName)
	w.FieldUint64(fieldRefType, uint64(r.RefType))
	w.Field(fieldRefCommitHash, r.CommitHash.Bytes())
	w.FieldUint64(fieldRefOperation, uint64(r.Operation))
	w.FieldInt64(fieldRefOperationTS, r.OperationTime)
	for _, h := range r.SourceHashes {
		w.Field(fieldRefSourceHashes, h.Bytes())
	}
	return w.Bytes()
}

// ComputeHash returns the deterministic content hash of the entry.
func (r *RefLogEntry) ComputeHash() hashid.Hash {
	return hashid.Of(r.Canonicalize())
}
