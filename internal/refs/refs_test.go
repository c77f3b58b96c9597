package refs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newffy/nessie/internal/hashid"
	"github.com/newffy/nessie/internal/nesserr"
	"github.com/newffy/nessie/internal/nessconfig"
	"github.com/newffy/nessie/internal/store/memstore"
	"github.com/newffy/nessie/internal/types"
)

func newTestManager() (*Manager, *memstore.Store) {
	s := memstore.New()
	return New(s, nessconfig.Default(), func() int64 { return 1 }), s
}

func TestInitializeRepoCreatesMain(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	require.NoError(t, m.InitializeRepo(ctx))

	ptr, err := m.NamedRef(ctx, "main")
	require.NoError(t, err)
	assert.True(t, ptr.Hash.IsNoAncestor())
}

func TestInitializeRepoIsIdempotent(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	require.NoError(t, m.InitializeRepo(ctx))
	require.NoError(t, m.InitializeRepo(ctx))

	refs, err := m.NamedRefs(ctx)
	require.NoError(t, err)
	assert.Len(t, refs, 1)
}

func TestCreateRejectsDuplicateName(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()
	require.NoError(t, m.Create(ctx, "main", types.Branch, hashid.NoAncestor()))

	err := m.Create(ctx, "main", types.Branch, hashid.NoAncestor())
	require.Error(t, err)
	assert.True(t, nesserr.IsAlreadyExists(err))
}

func TestAssignMovesReferenceAndRejectsStale(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()
	require.NoError(t, m.Create(ctx, "main", types.Branch, hashid.NoAncestor()))

	newHash := hashid.Of([]byte("c1"))
	require.NoError(t, m.Assign(ctx, "main", hashid.NoAncestor(), newHash))

	ptr, err := m.NamedRef(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, newHash, ptr.Hash)

	err = m.Assign(ctx, "main", hashid.NoAncestor(), hashid.Of([]byte("c2")))
	require.Error(t, err)
	assert.True(t, nesserr.IsConflict(err))
}

func TestDeleteRemovesReference(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()
	require.NoError(t, m.Create(ctx, "main", types.Branch, hashid.NoAncestor()))

	require.NoError(t, m.Delete(ctx, "main", hashid.NoAncestor()))

	_, err := m.NamedRef(ctx, "main")
	require.Error(t, err)
	assert.True(t, nesserr.IsNotFound(err))
}

func TestNamedRefsOrderedByMostRecentlyTouched(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()
	require.NoError(t, m.Create(ctx, "main", types.Branch, hashid.NoAncestor()))
	require.NoError(t, m.Create(ctx, "dev", types.Branch, hashid.NoAncestor()))
	require.NoError(t, m.Assign(ctx, "main", hashid.NoAncestor(), hashid.Of([]byte("c1"))))

	refs, err := m.NamedRefs(ctx)
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "main", refs[0].Name)
}

func TestEraseRepoClearsStore(t *testing.T) {
	m, s := newTestManager()
	ctx := context.Background()
	require.NoError(t, m.Create(ctx, "main", types.Branch, hashid.NoAncestor()))

	require.NoError(t, m.EraseRepo(ctx, "default"))

	p, err := s.GetGlobalPointer(ctx)
	require.NoError(t, err)
	assert.Empty(t, p.NamedReferences)
}
