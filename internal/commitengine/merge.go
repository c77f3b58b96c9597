package commitengine

import (
	"context"
	"sort"

	"github.com/newffy/nessie/internal/hashid"
	"github.com/newffy/nessie/internal/keylist"
	"github.com/newffy/nessie/internal/nesserr"
	"github.com/newffy/nessie/internal/store"
	"github.com/newffy/nessie/internal/telemetry"
	"github.com/newffy/nessie/internal/types"
)

// MergeRequest describes folding fromRef's history since its common
// ancestor with intoRef onto intoRef (spec.md §4.6 "merge"), in the
// style of the teacher's Merge3WayWithTTL: find the common ancestor,
// then replay every commit fromRef carries since it as a transplant
// chain onto intoRef, one new commit per source commit.
type MergeRequest struct {
	FromRef  string
	IntoRef  string
	Metadata []byte // if set, overrides every replayed commit's metadata; otherwise each keeps its own
	DryRun   bool
}

// Conflict describes a single key a transplanted commit wrote that the
// target branch also changed since that commit's own parent.
type Conflict struct {
	Key     types.ContentKey
	BaseCID types.CID
	FromCID types.CID
	IntoCID types.CID
}

// MergeResult reports what a successful (or dry-run) merge computed.
// Hash is the new HEAD of intoRef — the last commit in the replayed
// chain. Hashes lists every new commit in application order. Conflicts
// is only ever populated by a DryRun preview; a real merge that finds a
// conflict returns an error instead (spec.md §4.6, §8 scenario S3).
type MergeResult struct {
	Hash      hashid.Hash
	Hashes    []hashid.Hash
	Conflicts []Conflict
}

// Merge reconciles fromRef onto intoRef: it finds their common
// ancestor, rejects the merge outright if fromRef has nothing beyond
// it, then replays the chronological sequence of commits between the
// ancestor and fromRef's HEAD onto intoRef via the same transplant-chain
// logic Transplant uses, so k source commits produce exactly k new
// commits on intoRef (spec.md §8 invariant 6).
func (e *Engine) Merge(ctx context.Context, req MergeRequest) (result *MergeResult, err error) {
	ctx, span := telemetry.StartOperation(ctx, "merge", req.IntoRef)
	defer func() { telemetry.EndSpan(span, err) }()

	pointer, err := e.Store.GetGlobalPointer(ctx)
	if err != nil {
		return nil, err
	}
	fromPtr, ok := pointer.Lookup(req.FromRef)
	if !ok {
		return nil, nesserr.New(nesserr.NotFound, "reference %q not found", req.FromRef)
	}
	intoPtr, ok := pointer.Lookup(req.IntoRef)
	if !ok {
		return nil, nesserr.New(nesserr.NotFound, "reference %q not found", req.IntoRef)
	}

	baseHash, err := CommonAncestor(ctx, e.Store, fromPtr.Hash, intoPtr.Hash)
	if err != nil {
		return nil, err
	}
	if fromPtr.Hash.Equal(baseHash) {
		return nil, nesserr.New(nesserr.InvalidArgument,
			"No hashes to merge from %q as it is already an ancestor of %q", req.FromRef, req.IntoRef)
	}

	commits, err := commitsBetween(ctx, e.Store, baseHash, fromPtr.Hash)
	if err != nil {
		return nil, err
	}

	rewriter := func(metadata []byte) []byte {
		if req.Metadata != nil {
			return req.Metadata
		}
		return metadata
	}

	if req.DryRun {
		conflicts, perr := e.previewConflicts(ctx, intoPtr.Hash, commits)
		if perr != nil {
			return nil, perr
		}
		return &MergeResult{Conflicts: conflicts}, nil
	}

	results, err := e.replayCommits(ctx, req.IntoRef, &intoPtr.Hash, commits, rewriter)
	if err != nil {
		return nil, err
	}

	telemetry.RecordMergeConflicts(ctx, 0)
	hashes := make([]hashid.Hash, len(results))
	for i, r := range results {
		hashes[i] = r.Hash
	}
	return &MergeResult{Hash: hashes[len(hashes)-1], Hashes: hashes}, nil
}

// commitsBetween returns the chronological (oldest-first) sequence of
// commits on head's primary-parent chain strictly after base, including
// head itself (spec.md §4.6 step "collect the commits between the
// common ancestor and from_hash").
func commitsBetween(ctx context.Context, s store.Store, base, head hashid.Hash) ([]hashid.Hash, error) {
	var newestFirst []hashid.Hash
	cur := head
	for !cur.Equal(base) && !cur.IsNoAncestor() {
		newestFirst = append(newestFirst, cur)
		e, err := s.GetCommitLog(ctx, cur)
		if err != nil {
			return nil, err
		}
		cur = e.PrimaryParent()
	}
	out := make([]hashid.Hash, len(newestFirst))
	for i, h := range newestFirst {
		out[len(out)-1-i] = h
	}
	return out, nil
}

// previewConflicts simulates replayCommits' conflict detection against
// an in-memory projection of intoRef's tip, without writing anything,
// for MergeRequest.DryRun. Unlike a real merge it does not stop at the
// first conflict: a preview's job is to show the caller everything that
// would need resolving.
func (e *Engine) previewConflicts(ctx context.Context, intoHash hashid.Hash, commits []hashid.Hash) ([]Conflict, error) {
	tip, err := keylist.Rebuild(ctx, e.Store, intoHash)
	if err != nil {
		return nil, err
	}

	var conflicts []Conflict
	for _, ch := range commits {
		source, err := e.Store.GetCommitLog(ctx, ch)
		if err != nil {
			return nil, err
		}
		parentTable, err := keylist.Rebuild(ctx, e.Store, source.PrimaryParent())
		if err != nil {
			return nil, err
		}

		for _, p := range source.Puts {
			if c, conflicted := detectConflict(p.Key, parentTable, tip); conflicted {
				c.FromCID = p.CID
				conflicts = append(conflicts, c)
			}
			tip[p.Key.String()] = keylist.Entry{Key: p.Key, CID: p.CID, Type: p.Type, LocalValue: p.LocalValue}
		}
		for _, d := range source.Deletes {
			if c, conflicted := detectConflict(d.Key, parentTable, tip); conflicted {
				conflicts = append(conflicts, c)
			}
			delete(tip, d.Key.String())
		}
	}
	return conflicts, nil
}

// detectConflict reports whether key's value on the evolving target tip
// has diverged from what it was at the source commit's own baseline
// (parentTable) — i.e. whether the target branch changed this key
// concurrently with the commit now being replayed onto it.
func detectConflict(key types.ContentKey, baseline, tip map[string]keylist.Entry) (Conflict, bool) {
	k := key.String()
	baseEntry, inBase := baseline[k]
	tipEntry, inTip := tip[k]
	if inBase == inTip && (!inBase || baseEntry.CID == tipEntry.CID) {
		return Conflict{}, false
	}
	return Conflict{Key: key, BaseCID: baseEntry.CID, IntoCID: tipEntry.CID}, true
}

// replayCommits is the shared transplant-chain engine behind both Merge
// and Transplant (spec.md §4.6 "transplant"): for each source commit,
// in order, it checks whether the target branch changed any key that
// commit touches since that commit's own parent, failing hard with a
// ReferenceConflict on the first one found, then commits exactly that
// commit's puts/deletes as a new commit on the target with metadata run
// through rewriter. Applying k source commits produces exactly k new
// target commits (spec.md §8 invariant 6).
func (e *Engine) replayCommits(ctx context.Context, refName string, expected *hashid.Hash, commits []hashid.Hash, rewriter func([]byte) []byte) ([]*CommitResult, error) {
	if len(commits) == 0 {
		return nil, nesserr.New(nesserr.InvalidArgument, "No hashes to transplant given.")
	}
	if rewriter == nil {
		rewriter = func(metadata []byte) []byte { return metadata }
	}

	pointer, err := e.Store.GetGlobalPointer(ctx)
	if err != nil {
		return nil, err
	}
	targetPtr, ok := pointer.Lookup(refName)
	if !ok {
		return nil, nesserr.New(nesserr.NotFound, "reference %q not found", refName)
	}
	if expected != nil && !targetPtr.Hash.Equal(*expected) {
		return nil, nesserr.New(nesserr.Conflict, "reference %q has moved since it was read", refName)
	}

	results := make([]*CommitResult, 0, len(commits))
	currentHead := targetPtr.Hash
	for _, ch := range commits {
		source, err := e.Store.GetCommitLog(ctx, ch)
		if err != nil {
			return nil, err
		}

		parentTable, err := keylist.Rebuild(ctx, e.Store, source.PrimaryParent())
		if err != nil {
			return nil, err
		}
		targetTable, err := keylist.Rebuild(ctx, e.Store, currentHead)
		if err != nil {
			return nil, err
		}

		var conflictKeys []string
		touched := make(map[string]types.ContentKey, len(source.Puts)+len(source.Deletes))
		for _, p := range source.Puts {
			touched[p.Key.String()] = p.Key
		}
		for _, d := range source.Deletes {
			touched[d.Key.String()] = d.Key
		}
		for k, key := range touched {
			if _, conflicted := detectConflict(key, parentTable, targetTable); conflicted {
				conflictKeys = append(conflictKeys, k)
			}
		}
		if len(conflictKeys) > 0 {
			sort.Strings(conflictKeys)
			return nil, nesserr.New(nesserr.Conflict,
				"transplanting %s onto %q would overwrite changes made on %q since its parent", ch, refName, refName).
				WithKeys(conflictKeys)
		}

		res, err := e.Commit(ctx, CommitRequest{
			RefName:      refName,
			ExpectedHash: &currentHead,
			Metadata:     rewriter(source.Metadata),
			Puts:         source.Puts,
			Deletes:      source.Deletes,
		})
		if err != nil {
			return nil, err
		}
		results = append(results, res)
		currentHead = res.Hash
	}
	return results, nil
}

// TransplantRequest replays a caller-chosen list of commits, in
// application order, onto intoRef's HEAD as new commits (spec.md §3
// "transplant"). Unlike Merge it does not consult a common ancestor:
// the caller has already decided which commits to pick.
type TransplantRequest struct {
	IntoRef  string
	Expected *hashid.Hash // optional optimistic-locking check on intoRef's HEAD
	Commits  []hashid.Hash
	Rewriter func([]byte) []byte // transforms each source commit's metadata; nil keeps it unchanged
}

// Transplant replays req.Commits onto req.IntoRef one new commit per
// source commit, via the same replayCommits logic Merge uses.
func (e *Engine) Transplant(ctx context.Context, req TransplantRequest) (results []*CommitResult, err error) {
	ctx, span := telemetry.StartOperation(ctx, "transplant", req.IntoRef)
	defer func() { telemetry.EndSpan(span, err) }()

	results, err = e.replayCommits(ctx, req.IntoRef, req.Expected, req.Commits, req.Rewriter)
	return results, err
}

// CommonAncestor walks both histories' primary-parent chains to find
// their nearest shared commit hash, falling back to the no-ancestor
// sentinel if the two histories never converge (spec.md §4 supplemental
// feature, SPEC_FULL.md §4).
func CommonAncestor(ctx context.Context, s store.Store, a, b hashid.Hash) (hashid.Hash, error) {
	ancestorsOfA := make(map[hashid.Hash]bool)
	cur := a
	for !cur.IsNoAncestor() {
		ancestorsOfA[cur] = true
		e, err := s.GetCommitLog(ctx, cur)
		if err != nil {
			return hashid.Hash{}, err
		}
		cur = e.PrimaryParent()
	}
	ancestorsOfA[hashid.NoAncestor()] = true

	cur = b
	for {
		if ancestorsOfA[cur] {
			return cur, nil
		}
		if cur.IsNoAncestor() {
			return hashid.NoAncestor(), nil
		}
		e, err := s.GetCommitLog(ctx, cur)
		if err != nil {
			return hashid.Hash{}, err
		}
		cur = e.PrimaryParent()
	}
}
