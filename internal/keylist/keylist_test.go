package keylist

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newffy/nessie/internal/hashid"
	"github.com/newffy/nessie/internal/store/memstore"
	"github.com/newffy/nessie/internal/types"
)

func mustPut(t *testing.T, s *memstore.Store, e *types.CommitEntry) {
	t.Helper()
	e.Hash = e.ComputeHash()
	require.NoError(t, s.PutCommitLog(context.Background(), e))
}

func TestRebuildFindsSnapshotAndReplaysDeltas(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()

	root := &types.CommitEntry{
		Parents:     []hashid.Hash{hashid.NoAncestor()},
		CreatedTime: 1,
		KeyList: []types.KeyListEntry{
			{Key: types.NewKey("a"), CID: "cid-a", Type: types.OnReference},
			{Key: types.NewKey("b"), CID: "cid-b", Type: types.OnReference},
		},
	}
	mustPut(t, s, root)

	child := &types.CommitEntry{
		Parents:         []hashid.Hash{root.Hash},
		CreatedTime:     2,
		KeyListDistance: 1,
		Deletes:         []types.Delete{{Key: types.NewKey("b")}},
		Puts:            []types.Put{{Key: types.NewKey("c"), CID: "cid-c", Type: types.OnReference}},
	}
	mustPut(t, s, child)

	table, err := Rebuild(ctx, s, child.Hash)
	require.NoError(t, err)

	assert.Len(t, table, 2)
	assert.Equal(t, types.CID("cid-a"), table["a"].CID)
	assert.Equal(t, types.CID("cid-c"), table["c"].CID)
	_, stillPresent := table["b"]
	assert.False(t, stillPresent)
}

func TestLookupShortCircuitsOnDelete(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()

	root := &types.CommitEntry{
		Parents: []hashid.Hash{hashid.NoAncestor()},
		KeyList: []types.KeyListEntry{{Key: types.NewKey("a"), CID: "cid-a"}},
	}
	mustPut(t, s, root)

	child := &types.CommitEntry{
		Parents: []hashid.Hash{root.Hash},
		Deletes: []types.Delete{{Key: types.NewKey("a")}},
	}
	mustPut(t, s, child)

	_, ok, err := Lookup(ctx, s, child.Hash, types.NewKey("a"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLookupFindsNewerPutOverSnapshot(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()

	root := &types.CommitEntry{
		Parents: []hashid.Hash{hashid.NoAncestor()},
		KeyList: []types.KeyListEntry{{Key: types.NewKey("a"), CID: "cid-a"}},
	}
	mustPut(t, s, root)

	child := &types.CommitEntry{
		Parents: []hashid.Hash{root.Hash},
		Puts:    []types.Put{{Key: types.NewKey("a"), CID: "cid-a-v2"}},
	}
	mustPut(t, s, child)

	e, ok, err := Lookup(ctx, s, child.Hash, types.NewKey("a"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, types.CID("cid-a-v2"), e.CID)
}

func TestShouldEmbedAndNextDistance(t *testing.T) {
	assert.False(t, ShouldEmbed(5, 20))
	assert.True(t, ShouldEmbed(19, 20))
	assert.Equal(t, 6, NextDistance(5, 20))
	assert.Equal(t, 0, NextDistance(19, 20))
}
