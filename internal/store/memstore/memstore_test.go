package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newffy/nessie/internal/hashid"
	"github.com/newffy/nessie/internal/nesserr"
	"github.com/newffy/nessie/internal/types"
)

func TestGetGlobalPointerReturnsIndependentClones(t *testing.T) {
	s := New()
	ctx := context.Background()

	p1, err := s.GetGlobalPointer(ctx)
	require.NoError(t, err)
	p1.Touch("main", types.RefPointer{Hash: hashid.Of([]byte("x"))})

	p2, err := s.GetGlobalPointer(ctx)
	require.NoError(t, err)
	_, existed := p2.Lookup("main")
	assert.False(t, existed)
}

func TestCASGlobalPointerRejectsStaleVersion(t *testing.T) {
	s := New()
	ctx := context.Background()

	current, err := s.GetGlobalPointer(ctx)
	require.NoError(t, err)

	stale := current.Clone()
	ok, err := s.CASGlobalPointer(ctx, current, current.Clone())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.CASGlobalPointer(ctx, stale, stale.Clone())
	require.NoError(t, err)
	assert.False(t, ok, "stale version must be rejected")
}

func TestCASGlobalPointerSucceedsWithFreshVersion(t *testing.T) {
	s := New()
	ctx := context.Background()

	current, err := s.GetGlobalPointer(ctx)
	require.NoError(t, err)

	next := current.Clone()
	next.Touch("main", types.RefPointer{Hash: hashid.Of([]byte("y"))})

	ok, err := s.CASGlobalPointer(ctx, current, next)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.GetGlobalPointer(ctx)
	require.NoError(t, err)
	ptr, existed := got.Lookup("main")
	require.True(t, existed)
	assert.Equal(t, hashid.Of([]byte("y")), ptr.Hash)
}

func TestGetCommitLogNotFound(t *testing.T) {
	s := New()
	_, err := s.GetCommitLog(context.Background(), hashid.Of([]byte("missing")))
	require.Error(t, err)
	assert.True(t, nesserr.IsNotFound(err))
}

func TestPutAndBatchGetCommitLog(t *testing.T) {
	s := New()
	ctx := context.Background()

	e1 := &types.CommitEntry{Hash: hashid.Of([]byte("1")), CreatedTime: 1}
	e2 := &types.CommitEntry{Hash: hashid.Of([]byte("2")), CreatedTime: 2}
	require.NoError(t, s.PutCommitLog(ctx, e1))
	require.NoError(t, s.PutCommitLog(ctx, e2))

	got, err := s.BatchGetCommitLog(ctx, []hashid.Hash{e1.Hash, e2.Hash, hashid.Of([]byte("missing"))})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, e1, got[e1.Hash])
}

func TestScanRefLogWalksParentChain(t *testing.T) {
	s := New()
	ctx := context.Background()

	r1 := &types.RefLogEntry{RefLogID: hashid.Of([]byte("r1")), RefName: "main"}
	r2 := &types.RefLogEntry{RefLogID: hashid.Of([]byte("r2")), RefName: "main", Parents: []hashid.Hash{r1.RefLogID}}
	require.NoError(t, s.PutRefLog(ctx, r1))
	require.NoError(t, s.PutRefLog(ctx, r2))

	var seen []hashid.Hash
	err := s.ScanRefLog(ctx, r2.RefLogID, func(e *types.RefLogEntry) bool {
		seen = append(seen, e.RefLogID)
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, []hashid.Hash{r2.RefLogID, r1.RefLogID}, seen)
}

func TestScanRefLogStopsWhenCallbackReturnsFalse(t *testing.T) {
	s := New()
	ctx := context.Background()

	r1 := &types.RefLogEntry{RefLogID: hashid.Of([]byte("r1")), RefName: "main"}
	r2 := &types.RefLogEntry{RefLogID: hashid.Of([]byte("r2")), RefName: "main", Parents: []hashid.Hash{r1.RefLogID}}
	require.NoError(t, s.PutRefLog(ctx, r1))
	require.NoError(t, s.PutRefLog(ctx, r2))

	var seen []hashid.Hash
	err := s.ScanRefLog(ctx, r2.RefLogID, func(e *types.RefLogEntry) bool {
		seen = append(seen, e.RefLogID)
		return false
	})
	require.NoError(t, err)
	assert.Equal(t, []hashid.Hash{r2.RefLogID}, seen)
}

func TestEraseClearsEverything(t *testing.T) {
	s := New()
	ctx := context.Background()

	e1 := &types.CommitEntry{Hash: hashid.Of([]byte("1"))}
	require.NoError(t, s.PutCommitLog(ctx, e1))

	require.NoError(t, s.Erase(ctx, "default"))

	_, err := s.GetCommitLog(ctx, e1.Hash)
	require.Error(t, err)
}

func TestRepoDescriptionCASRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()

	current, err := s.GetRepoDescription(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, 1, current.RepoVersion)

	next := current.Clone()
	next.Properties["k"] = "v"
	ok, err := s.CASRepoDescription(ctx, "default", current, next)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.GetRepoDescription(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, "v", got.Properties["k"])
}
