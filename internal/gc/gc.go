// Package gc identifies expired content for garbage collection of
// commit/global log records (spec.md §3/§4.9, component C9); it reports
// what is expired and deletes no records. It runs two passes over a
// cutoff timestamp T: pass one walks every live reference's
// history plus every hash the ref log shows was ever dropped from a
// reference (a delete or a reassignment), marking each put's content
// live while its commit is newer than T and, once the walk crosses T,
// carrying forward only the content each surviving key still points at;
// pass two re-walks every live named reference (not the dead heads pass
// one found in the ref log) and reports any put whose content the live
// set doesn't recognise as expired. Bloom filters,
// one per content id, make the live set cheap to hold in memory even
// for repositories with deep history, at the cost of a configurable
// false-positive rate that can only ever make GC keep something it
// didn't need to, never drop something live.
package gc

import (
	"context"
	"log/slog"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"golang.org/x/sync/errgroup"

	"github.com/newffy/nessie/internal/hashid"
	"github.com/newffy/nessie/internal/keylist"
	"github.com/newffy/nessie/internal/nessconfig"
	"github.com/newffy/nessie/internal/readpath"
	"github.com/newffy/nessie/internal/store"
	"github.com/newffy/nessie/internal/types"
)

// LiveSet is a sharded collection of bloom filters, one per content id,
// recording every (CID, value fingerprint) pair pass one judged live.
type LiveSet struct {
	mu      sync.Mutex
	filters map[types.CID]*bloom.BloomFilter
	// Degraded lists references (live, by name, or dead, by a
	// "name@operation:refLogID" label) whose walk could not be completed
	// (spec.md §4.9 error handling: a walk failure degrades that
	// reference's contribution instead of aborting the whole
	// collection), the supplemental DegradedFilters feature from
	// SPEC_FULL.md §4.
	Degraded map[string]error

	expected uint
	fpp      float64
}

func newLiveSet(expected uint, fpp float64) *LiveSet {
	return &LiveSet{
		filters:  make(map[types.CID]*bloom.BloomFilter),
		Degraded: make(map[string]error),
		expected: expected,
		fpp:      fpp,
	}
}

func (l *LiveSet) filterFor(cid types.CID) *bloom.BloomFilter {
	l.mu.Lock()
	defer l.mu.Unlock()
	f, ok := l.filters[cid]
	if !ok {
		f = bloom.NewWithEstimates(l.expected, l.fpp)
		l.filters[cid] = f
	}
	return f
}

func (l *LiveSet) add(cid types.CID, fingerprint []byte) {
	l.filterFor(cid).Add(fingerprint)
}

// Contains reports whether (cid, fingerprint) was judged live by pass one.
func (l *LiveSet) Contains(cid types.CID, fingerprint []byte) bool {
	l.mu.Lock()
	f, ok := l.filters[cid]
	l.mu.Unlock()
	if !ok {
		return false
	}
	return f.Test(fingerprint)
}

func (l *LiveSet) degrade(label string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Degraded[label] = err
}

// Collector runs GC passes against a Store.
type Collector struct {
	Store  store.Store
	Config *nessconfig.Config
	Log    *slog.Logger
	reader *readpath.Reader
}

// New builds a Collector.
func New(s store.Store, cfg *nessconfig.Config) *Collector {
	return &Collector{Store: s, Config: cfg, Log: slog.Default(), reader: readpath.New(s)}
}

func (c *Collector) expectedEntries() uint {
	if c.Config.BloomFilterExpectedEntries != nil {
		return uint(*c.Config.BloomFilterExpectedEntries)
	}
	return 100000
}

// head is a single commit chain GC walks: a live named reference, or a
// hash the ref log shows was dropped from a reference by a delete or a
// reassignment (spec.md §4.9 "dead references").
type head struct {
	label string
	hash  hashid.Hash
	// asOf is the operation time recorded for a dead reference: the time
	// the reference stopped pointing at hash. walkHead does not consult
	// it; a dead head's commits are judged against the cutoff by their
	// own CreatedTime, exactly as a live head's are. It is zero for a
	// live reference.
	asOf  int64
	alive bool
}

// BuildLiveSet is GC pass one (spec.md §4.9): for every live reference
// and every dead reference surfaced by the ref log, walk its commit
// chain from the reference's (or former reference's) head, marking
// each put's content live while the commit is newer than cutoff T; at
// the first commit older than T, materialise the live key set via a
// key-list rebuild and mark each surviving key's content, then keep
// walking into the expired region only long enough to account for
// every one of those keys' current values. Heads are walked
// concurrently via errgroup, one goroutine per head, matching the
// teacher's fan-out style for independent per-entity work.
func (c *Collector) BuildLiveSet(ctx context.Context, cutoff int64) (*LiveSet, error) {
	pointer, err := c.Store.GetGlobalPointer(ctx)
	if err != nil {
		return nil, err
	}

	heads := make([]head, 0, len(pointer.NamedReferences))
	for _, nr := range pointer.NamedReferences {
		heads = append(heads, head{label: nr.Name, hash: nr.Pointer.Hash, alive: true})
	}

	if !pointer.RefLogID.IsNoAncestor() {
		err := c.Store.ScanRefLog(ctx, pointer.RefLogID, func(e *types.RefLogEntry) bool {
			switch e.Operation {
			case types.OpDeleteReference:
				heads = append(heads, head{
					label: deadHeadLabel(e, "deleted"),
					hash:  e.CommitHash,
					asOf:  e.OperationTime,
				})
			case types.OpAssignReference:
				if len(e.SourceHashes) > 0 {
					heads = append(heads, head{
						label: deadHeadLabel(e, "reassigned"),
						hash:  e.SourceHashes[0],
						asOf:  e.OperationTime,
					})
				}
			}
			return true
		})
		if err != nil {
			return nil, err
		}
	}

	live := newLiveSet(c.expectedEntries(), c.Config.BloomFilterFPP)

	g, gctx := errgroup.WithContext(ctx)
	for _, h := range heads {
		h := h
		g.Go(func() error {
			if err := c.walkHead(gctx, live, h, cutoff); err != nil {
				live.degrade(h.label, err)
				c.Log.WarnContext(gctx, "degraded live-set walk", "ref", h.label, "error", err)
			}
			return nil // a degraded walk does not abort the whole collection
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return live, nil
}

func deadHeadLabel(e *types.RefLogEntry, op string) string {
	return e.RefName + "@" + op + ":" + e.RefLogID.String()
}

// walkHead implements the per-reference pass-one walk described in
// spec.md §4.9 for a single head, live or dead.
func (c *Collector) walkHead(ctx context.Context, live *LiveSet, h head, cutoff int64) error {
	cur := h.hash
	var cutoffEntry *types.CommitEntry
	var cutoffTable map[string]keylist.Entry
	remaining := map[string]bool{}

	for !cur.IsNoAncestor() {
		entry, err := c.Store.GetCommitLog(ctx, cur)
		if err != nil {
			return err
		}

		if entry.CreatedTime >= cutoff {
			for _, p := range entry.Puts {
				live.add(p.CID, c.contentFingerprint(ctx, entry.GlobalID, p.CID, p.Type, p.LocalValue, p.GlobalValue))
			}
			cur = entry.PrimaryParent()
			continue
		}

		if cutoffTable == nil {
			cutoffEntry = entry
			table, err := keylist.Rebuild(ctx, c.Store, cur)
			if err != nil {
				return err
			}
			cutoffTable = table
			for k, e := range table {
				live.add(e.CID, c.contentFingerprint(ctx, entry.GlobalID, e.CID, e.Type, e.LocalValue, e.GlobalValue))
				remaining[k] = true
			}
			if len(remaining) == 0 {
				return nil
			}
		}

		for _, p := range entry.Puts {
			k := p.Key.String()
			if !remaining[k] {
				continue
			}
			ce, ok := cutoffTable[k]
			if !ok || ce.CID != p.CID {
				continue
			}
			live.add(p.CID, c.contentFingerprint(ctx, cutoffEntry.GlobalID, p.CID, p.Type, p.LocalValue, p.GlobalValue))
			delete(remaining, k)
		}
		if len(remaining) == 0 {
			return nil
		}

		cur = entry.PrimaryParent()
	}
	return nil
}

// contentFingerprint returns the bytes pass one and pass two agree
// identify a put's content: the shared global value (resolved against
// the commit's own GlobalID, so a stale read still sees the value the
// commit actually recorded) for a WithGlobalState put, otherwise the
// put's local value. A resolution failure falls back to the CID alone
// rather than failing the whole walk, since a missing global-log entry
// only widens what pass two calls expired, never what it calls live.
func (c *Collector) contentFingerprint(ctx context.Context, globalID hashid.Hash, cid types.CID, typ types.ContentType, localValue, globalValue []byte) []byte {
	if typ == types.WithGlobalState {
		if len(globalValue) > 0 {
			return hashid.Of(globalValue).Bytes()
		}
		if v, err := c.reader.GlobalValue(ctx, globalID, cid); err == nil {
			return hashid.Of(v).Bytes()
		}
		return hashid.Of([]byte(cid)).Bytes()
	}
	return hashid.Of(localValue).Bytes()
}

// ExpiredContent is a single put whose content pass one did not mark
// live, identified by the CID it wrote and the reference/commit that
// wrote it (spec.md §4.9 pass two: "emitted ... keyed by content id and
// reference").
type ExpiredContent struct {
	CID    types.CID
	Ref    string
	Commit hashid.Hash
	Key    types.ContentKey
}

// ExpiredContent is GC pass two: re-walk every live reference and
// report each put whose (CID, value fingerprint) pair is absent from
// the live set built by BuildLiveSet.
func (c *Collector) ExpiredContent(ctx context.Context, live *LiveSet) ([]ExpiredContent, error) {
	pointer, err := c.Store.GetGlobalPointer(ctx)
	if err != nil {
		return nil, err
	}

	var out []ExpiredContent
	for _, nr := range pointer.NamedReferences {
		cur := nr.Pointer.Hash
		for !cur.IsNoAncestor() {
			entry, err := c.Store.GetCommitLog(ctx, cur)
			if err != nil {
				return nil, err
			}
			for _, p := range entry.Puts {
				fp := c.contentFingerprint(ctx, entry.GlobalID, p.CID, p.Type, p.LocalValue, p.GlobalValue)
				if !live.Contains(p.CID, fp) {
					out = append(out, ExpiredContent{CID: p.CID, Ref: nr.Name, Commit: entry.Hash, Key: p.Key})
				}
			}
			cur = entry.PrimaryParent()
		}
	}
	return out, nil
}
