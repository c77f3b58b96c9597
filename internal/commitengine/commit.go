// Package commitengine implements the adapter's single write path
// (spec.md §4.6, component C6): commit, merge, and transplant, all
// built on the same compare-and-swap retry loop over the Global
// Pointer. Every mutating call here is read-modify-write: read the
// current pointer, compute the next commit/log/pointer records purely
// from it, and attempt a CAS; on CAS failure (another writer won the
// race) the whole computation is retried against the fresh pointer,
// matching the teacher's optimistic-retry style in
// internal/storage/dolt/store.go.
package commitengine

import (
	"context"
	"log/slog"
	"time"

	"github.com/newffy/nessie/internal/hashid"
	"github.com/newffy/nessie/internal/keylist"
	"github.com/newffy/nessie/internal/nessconfig"
	"github.com/newffy/nessie/internal/nesserr"
	"github.com/newffy/nessie/internal/store"
	"github.com/newffy/nessie/internal/telemetry"
	"github.com/newffy/nessie/internal/types"
)

// Engine is the commit/merge/transplant collaborator. It holds no
// mutable state of its own; every field is a read-only dependency.
type Engine struct {
	Store  store.Store
	Config *nessconfig.Config
	Now    func() int64 // microseconds since epoch; overridable in tests
	Log    *slog.Logger
}

// New builds an Engine. now defaults to the wall clock if nil.
func New(s store.Store, cfg *nessconfig.Config, now func() int64) *Engine {
	if now == nil {
		now = func() int64 { return time.Now().UnixMicro() }
	}
	return &Engine{Store: s, Config: cfg, Now: now, Log: slog.Default()}
}

// CommitRequest describes a single commit attempt against a named
// reference (spec.md §3 "commit").
type CommitRequest struct {
	RefName      string
	ExpectedHash *hashid.Hash // optional optimistic-locking check on the branch HEAD
	Metadata     []byte
	Puts         []types.Put
	Deletes      []types.Delete
}

// CommitResult reports the outcome of a successful commit.
type CommitResult struct {
	Hash          hashid.Hash
	GlobalID      hashid.Hash
	RefLogID      hashid.Hash
	CommitSeq     uint64
	GlobalLogUsed bool
}

// Commit applies req against refName, retrying the whole computation
// up to Config.CommitRetries times whenever another writer wins the CAS
// race (spec.md §4.6 steps 1-5, §8 invariant 2 "no lost updates").
func (e *Engine) Commit(ctx context.Context, req CommitRequest) (*CommitResult, error) {
	ctx, span := telemetry.StartOperation(ctx, "commit", req.RefName)
	var err error
	defer func() { telemetry.EndSpan(span, err) }()

	var result *CommitResult
	err = e.retry(ctx, func() (bool, error) {
		r, done, aerr := e.attemptCommit(ctx, req)
		if aerr != nil {
			return false, aerr
		}
		if !done {
			telemetry.RecordCommitRetry(ctx)
			e.Log.DebugContext(ctx, "commit lost CAS race, retrying", "ref", req.RefName)
		}
		if done {
			result = r
		}
		return done, nil
	})
	if err != nil {
		return nil, err
	}
	telemetry.RecordCommit(ctx)
	e.Log.InfoContext(ctx, "committed", "ref", req.RefName, "hash", result.Hash.String(), "seq", result.CommitSeq)
	return result, nil
}

func (e *Engine) attemptCommit(ctx context.Context, req CommitRequest) (*CommitResult, bool, error) {
	pointer, err := e.Store.GetGlobalPointer(ctx)
	if err != nil {
		return nil, false, err
	}

	branchPtr, exists := pointer.Lookup(req.RefName)
	if !exists {
		return nil, false, nesserr.New(nesserr.NotFound, "reference %q not found", req.RefName)
	}
	if req.ExpectedHash != nil && !branchPtr.Hash.Equal(*req.ExpectedHash) {
		return nil, false, nesserr.New(nesserr.Conflict, "reference %q has moved since it was read", req.RefName)
	}

	parentEntry, parentDistance, commitSeq, err := e.parentInfo(ctx, branchPtr.Hash)
	if err != nil {
		return nil, false, err
	}

	entry := &types.CommitEntry{
		Parents:     []hashid.Hash{branchPtr.Hash},
		CreatedTime: e.Now(),
		CommitSeq:   commitSeq,
		Metadata:    req.Metadata,
		Puts:        req.Puts,
		Deletes:     req.Deletes,
	}
	if err := entry.Validate(); err != nil {
		return nil, false, err
	}

	distance := keylist.NextDistance(parentDistance, e.Config.DefaultKeyListDistance)
	if branchPtr.Hash.IsNoAncestor() {
		distance = 0 // a root commit always carries a full snapshot
	}
	entry.KeyListDistance = distance
	if distance == 0 {
		table, err := keylist.Rebuild(ctx, e.Store, branchPtr.Hash)
		if err != nil {
			return nil, false, err
		}
		applyDeltaToTable(table, req.Puts, req.Deletes)
		entry.KeyList = tableToKeyList(table)
	}
	_ = parentEntry

	nextPointer := pointer.Clone()
	var globalID hashid.Hash
	globalLogUsed := false
	if globalPuts := globalStatePuts(req.Puts); len(globalPuts) > 0 {
		globalEntry := &types.GlobalLogEntry{
			Parents:     []hashid.Hash{pointer.GlobalID},
			Puts:        globalPuts,
			CreatedTime: entry.CreatedTime,
		}
		globalEntry.ID = globalEntry.ComputeHash()
		if err := e.Store.PutGlobalLog(ctx, globalEntry); err != nil {
			return nil, false, err
		}
		globalID = globalEntry.ID
		nextPointer.GlobalID = globalID
		nextPointer.GlobalParentsInclHead = types.PushRing(nextPointer.GlobalParentsInclHead, globalID, e.Config.GlobalParentsRing)
		globalLogUsed = true
	} else {
		globalID = pointer.GlobalID
	}
	entry.GlobalID = globalID
	entry.Hash = entry.ComputeHash()

	refLog := &types.RefLogEntry{
		Parents:       []hashid.Hash{pointer.RefLogID},
		RefName:       req.RefName,
		RefType:       branchPtr.Type,
		CommitHash:    entry.Hash,
		Operation:     types.OpCommit,
		OperationTime: entry.CreatedTime,
	}
	refLog.RefLogID = refLog.ComputeHash()

	nextPointer.RefLogID = refLog.RefLogID
	nextPointer.RefLogParentsInclHead = types.PushRing(nextPointer.RefLogParentsInclHead, refLog.RefLogID, e.Config.RefLogParentsRing)
	nextPointer.Touch(req.RefName, types.RefPointer{Type: branchPtr.Type, Hash: entry.Hash})

	if err := e.Store.PutCommitLog(ctx, entry); err != nil {
		return nil, false, err
	}
	if err := e.Store.PutRefLog(ctx, refLog); err != nil {
		return nil, false, err
	}

	ok, err := e.Store.CASGlobalPointer(ctx, pointer, nextPointer)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	return &CommitResult{
		Hash:          entry.Hash,
		GlobalID:      globalID,
		RefLogID:      refLog.RefLogID,
		CommitSeq:     entry.CommitSeq,
		GlobalLogUsed: globalLogUsed,
	}, true, nil
}

// parentInfo loads the parent commit (if any), returning its
// KeyListDistance and the next CommitSeq value.
func (e *Engine) parentInfo(ctx context.Context, parentHash hashid.Hash) (*types.CommitEntry, int, uint64, error) {
	if parentHash.IsNoAncestor() {
		return nil, 0, 0, nil
	}
	parent, err := e.Store.GetCommitLog(ctx, parentHash)
	if err != nil {
		return nil, 0, 0, err
	}
	return parent, parent.KeyListDistance, parent.CommitSeq + 1, nil
}

func globalStatePuts(puts []types.Put) []types.GlobalPut {
	var out []types.GlobalPut
	for _, p := range puts {
		if p.Type == types.WithGlobalState {
			out = append(out, types.GlobalPut{CID: p.CID, Value: p.GlobalValue})
		}
	}
	return out
}

func applyDeltaToTable(table map[string]keylist.Entry, puts []types.Put, deletes []types.Delete) {
	for _, d := range deletes {
		delete(table, d.Key.String())
	}
	for _, p := range puts {
		table[p.Key.String()] = keylist.Entry{Key: p.Key, CID: p.CID, Type: p.Type, LocalValue: p.LocalValue}
	}
}

func tableToKeyList(table map[string]keylist.Entry) []types.KeyListEntry {
	out := make([]types.KeyListEntry, 0, len(table))
	for _, e := range table {
		out = append(out, types.KeyListEntry{Key: e.Key, CID: e.CID, Type: e.Type, LocalValue: e.LocalValue})
	}
	return out
}

// retry runs attempt until it reports done=true, a non-CAS error
// occurs, or Config.CommitRetries attempts are exhausted.
func (e *Engine) retry(ctx context.Context, attempt func() (bool, error)) error {
	var lastErr error
	for i := 0; i < e.Config.CommitRetries; i++ {
		done, err := attempt()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		lastErr = nesserr.New(nesserr.Conflict, "CAS attempt %d/%d lost the race on the global pointer", i+1, e.Config.CommitRetries)
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	return lastErr
}
