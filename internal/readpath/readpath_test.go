package readpath

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newffy/nessie/internal/commitengine"
	"github.com/newffy/nessie/internal/hashid"
	"github.com/newffy/nessie/internal/keylist"
	"github.com/newffy/nessie/internal/nessconfig"
	"github.com/newffy/nessie/internal/store/memstore"
	"github.com/newffy/nessie/internal/types"
)

func setup(t *testing.T) (*Reader, *commitengine.Engine) {
	t.Helper()
	s := memstore.New()
	eng := commitengine.New(s, nessconfig.Default(), nil)
	ctx := context.Background()

	pointer, err := s.GetGlobalPointer(ctx)
	require.NoError(t, err)
	next := pointer.Clone()
	next.Touch("main", types.RefPointer{Type: types.Branch, Hash: hashid.NoAncestor()})
	ok, err := s.CASGlobalPointer(ctx, pointer, next)
	require.NoError(t, err)
	require.True(t, ok)

	return New(s), eng
}

func TestValuesAndKeysReflectLatestCommit(t *testing.T) {
	r, eng := setup(t)
	ctx := context.Background()

	res, err := eng.Commit(ctx, commitengine.CommitRequest{
		RefName: "main",
		Puts: []types.Put{
			{Key: types.NewKey("a"), CID: "cid-a"},
			{Key: types.NewKey("b"), CID: "cid-b"},
		},
	})
	require.NoError(t, err)

	values, err := r.Values(ctx, res.Hash, nil)
	require.NoError(t, err)
	assert.Len(t, values, 2)

	keys, err := r.Keys(ctx, res.Hash, func(k types.ContentKey) bool { return k.String() == "a" })
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, "a", keys[0].String())
}

func TestCommitLogPaginatesByPrimaryParent(t *testing.T) {
	r, eng := setup(t)
	ctx := context.Background()

	var last hashid.Hash
	for i := 0; i < 3; i++ {
		res, err := eng.Commit(ctx, commitengine.CommitRequest{
			RefName: "main",
			Puts:    []types.Put{{Key: types.NewKey("k"), CID: types.CID(string(rune('a' + i)))}},
		})
		require.NoError(t, err)
		last = res.Hash
	}

	page, err := r.CommitLog(ctx, last, 2)
	require.NoError(t, err)
	assert.Len(t, page.Entries, 2)
	assert.False(t, page.Next.IsNoAncestor())

	rest, err := r.CommitLog(ctx, page.Next, 10)
	require.NoError(t, err)
	assert.Len(t, rest.Entries, 1)
	assert.True(t, rest.Next.IsNoAncestor())
}

func TestDiffReportsAddsChangesAndRemoves(t *testing.T) {
	r, eng := setup(t)
	ctx := context.Background()

	c1, err := eng.Commit(ctx, commitengine.CommitRequest{
		RefName: "main",
		Puts: []types.Put{
			{Key: types.NewKey("keep"), CID: "v1"},
			{Key: types.NewKey("change"), CID: "v1"},
			{Key: types.NewKey("remove"), CID: "v1"},
		},
	})
	require.NoError(t, err)

	c2, err := eng.Commit(ctx, commitengine.CommitRequest{
		RefName: "main",
		Puts:    []types.Put{{Key: types.NewKey("change"), CID: "v2"}, {Key: types.NewKey("added"), CID: "v1"}},
		Deletes: []types.Delete{{Key: types.NewKey("remove")}},
	})
	require.NoError(t, err)

	ops, err := r.Diff(ctx, c1.Hash, c2.Hash, nil)
	require.NoError(t, err)

	byKey := make(map[string]DiffOp)
	for _, op := range ops {
		byKey[op.Key.String()] = op
	}
	assert.NotContains(t, byKey, "keep")
	require.Contains(t, byKey, "change")
	assert.Equal(t, types.CID("v2"), byKey["change"].ToCID)
	require.Contains(t, byKey, "remove")
	assert.Equal(t, types.CID(""), byKey["remove"].ToCID)
	require.Contains(t, byKey, "added")
	assert.Equal(t, types.CID(""), byKey["added"].FromCID)
}

func TestHashOnReferenceResolvesNilToHead(t *testing.T) {
	r, eng := setup(t)
	ctx := context.Background()

	res, err := eng.Commit(ctx, commitengine.CommitRequest{
		RefName: "main",
		Puts:    []types.Put{{Key: types.NewKey("a"), CID: "v1"}},
	})
	require.NoError(t, err)

	got, err := r.HashOnReference(ctx, res.Hash, nil)
	require.NoError(t, err)
	assert.Equal(t, res.Hash, got)
}

func TestHashOnReferenceRejectsUnreachableHash(t *testing.T) {
	r, eng := setup(t)
	ctx := context.Background()

	res, err := eng.Commit(ctx, commitengine.CommitRequest{
		RefName: "main",
		Puts:    []types.Put{{Key: types.NewKey("a"), CID: "v1"}},
	})
	require.NoError(t, err)

	bogus := hashid.Of([]byte("not-in-history"))
	_, err = r.HashOnReference(ctx, res.Hash, &bogus)
	require.Error(t, err)
}

func TestGlobalValueResolvesLatestPutAndRejectsUnknownCID(t *testing.T) {
	r, eng := setup(t)
	ctx := context.Background()

	res, err := eng.Commit(ctx, commitengine.CommitRequest{
		RefName: "main",
		Puts: []types.Put{
			{Key: types.NewKey("shared"), CID: "g1", Type: types.WithGlobalState, GlobalValue: []byte("hello")},
		},
	})
	require.NoError(t, err)
	require.True(t, res.GlobalLogUsed)

	got, err := r.GlobalValue(ctx, res.GlobalID, "g1")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)

	_, err = r.GlobalValue(ctx, res.GlobalID, "missing")
	require.Error(t, err)
}

func TestValuesResolvesGlobalStateContentBytes(t *testing.T) {
	r, eng := setup(t)
	ctx := context.Background()

	res, err := eng.Commit(ctx, commitengine.CommitRequest{
		RefName: "main",
		Puts: []types.Put{
			{Key: types.NewKey("shared"), CID: "g1", Type: types.WithGlobalState, LocalValue: []byte("local"), GlobalValue: []byte("global")},
			{Key: types.NewKey("plain"), CID: "cid-plain", LocalValue: []byte("plain-local")},
		},
	})
	require.NoError(t, err)

	values, err := r.Values(ctx, res.Hash, nil)
	require.NoError(t, err)

	byKey := make(map[string]keylist.Entry, len(values))
	for _, v := range values {
		byKey[v.Key.String()] = v
	}
	require.Contains(t, byKey, "shared")
	require.Contains(t, byKey, "plain")
	assert.Equal(t, []byte("local"), byKey["shared"].LocalValue)
	assert.Equal(t, []byte("global"), byKey["shared"].GlobalValue)
	assert.Equal(t, []byte("plain-local"), byKey["plain"].LocalValue)
	assert.Nil(t, byKey["plain"].GlobalValue)
}

func TestHistoryReturnsNewestFirst(t *testing.T) {
	r, eng := setup(t)
	ctx := context.Background()

	var hashes []hashid.Hash
	for i := 0; i < 3; i++ {
		res, err := eng.Commit(ctx, commitengine.CommitRequest{
			RefName: "main",
			Puts:    []types.Put{{Key: types.NewKey("k"), CID: types.CID(string(rune('a' + i)))}},
		})
		require.NoError(t, err)
		hashes = append(hashes, res.Hash)
	}

	h, err := r.History(ctx, hashes[2])
	require.NoError(t, err)
	require.Len(t, h, 3)
	assert.Equal(t, hashes[2], h[0])
	assert.Equal(t, hashes[0], h[2])
}
