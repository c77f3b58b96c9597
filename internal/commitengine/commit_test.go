package commitengine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newffy/nessie/internal/hashid"
	"github.com/newffy/nessie/internal/nessconfig"
	"github.com/newffy/nessie/internal/store/memstore"
	"github.com/newffy/nessie/internal/types"
)

func newTestEngine(t *testing.T) (*Engine, *memstore.Store) {
	t.Helper()
	s := memstore.New()
	cfg := nessconfig.Default()
	cfg.DefaultKeyListDistance = 3
	tick := int64(0)
	eng := New(s, cfg, func() int64 {
		tick++
		return tick
	})

	ctx := context.Background()
	pointer, err := s.GetGlobalPointer(ctx)
	require.NoError(t, err)
	next := pointer.Clone()
	next.Touch("main", types.RefPointer{Type: types.Branch, Hash: hashid.NoAncestor()})
	ok, err := s.CASGlobalPointer(ctx, pointer, next)
	require.NoError(t, err)
	require.True(t, ok)

	return eng, s
}

func TestCommitCreatesRootWithEmbeddedKeyList(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	res, err := eng.Commit(ctx, CommitRequest{
		RefName: "main",
		Puts:    []types.Put{{Key: types.NewKey("a"), CID: "cid-a", Type: types.OnReference}},
	})
	require.NoError(t, err)
	assert.False(t, res.Hash.IsNoAncestor())

	entry, err := eng.Store.GetCommitLog(ctx, res.Hash)
	require.NoError(t, err)
	assert.True(t, entry.HasEmbeddedKeyList())
	assert.Len(t, entry.KeyList, 1)
}

func TestCommitRejectsPutAndDeleteSameKey(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.Commit(ctx, CommitRequest{
		RefName: "main",
		Puts:    []types.Put{{Key: types.NewKey("a"), CID: "cid-a"}},
		Deletes: []types.Delete{{Key: types.NewKey("a")}},
	})
	require.Error(t, err)
}

func TestCommitRejectsStaleExpectedHash(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.Commit(ctx, CommitRequest{
		RefName:      "main",
		Puts:         []types.Put{{Key: types.NewKey("a"), CID: "cid-a"}},
	})
	require.NoError(t, err)

	stale := hashid.NoAncestor()
	_, err = eng.Commit(ctx, CommitRequest{
		RefName:      "main",
		ExpectedHash: &stale,
		Puts:         []types.Put{{Key: types.NewKey("b"), CID: "cid-b"}},
	})
	require.Error(t, err)
}

func TestCommitChainBuildsEmbeddedSnapshotsPeriodically(t *testing.T) {
	eng, s := newTestEngine(t)
	ctx := context.Background()

	var lastHash hashid.Hash
	for i := 0; i < 5; i++ {
		res, err := eng.Commit(ctx, CommitRequest{
			RefName: "main",
			Puts:    []types.Put{{Key: types.NewKey("k"), CID: types.CID(string(rune('a' + i)))}},
		})
		require.NoError(t, err)
		lastHash = res.Hash
	}

	entry, err := s.GetCommitLog(ctx, lastHash)
	require.NoError(t, err)
	// DefaultKeyListDistance is 3, so distance should have wrapped back
	// to an embedded snapshot at least once across 5 commits.
	assert.LessOrEqual(t, entry.KeyListDistance, 2)
}

func TestCommitWithGlobalStateAppendsGlobalLog(t *testing.T) {
	eng, s := newTestEngine(t)
	ctx := context.Background()

	res, err := eng.Commit(ctx, CommitRequest{
		RefName: "main",
		Puts: []types.Put{
			{Key: types.NewKey("a"), CID: "cid-a", Type: types.WithGlobalState, GlobalValue: []byte("v1")},
		},
	})
	require.NoError(t, err)
	require.True(t, res.GlobalLogUsed)

	g, err := s.GetGlobalLog(ctx, res.GlobalID)
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), g.Puts[0].Value)
}
