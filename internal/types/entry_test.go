package types

import (
	"testing"

	"github.com/newffy/nessie/internal/hashid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEntry() *CommitEntry {
	return &CommitEntry{
		Parents:     []hashid.Hash{hashid.NoAncestor()},
		CreatedTime: 1000,
		CommitSeq:   1,
		Metadata:    []byte("commit 0"),
		Puts: []Put{
			{Key: NewKey("a"), CID: "cid-a", Type: OnReference, LocalValue: []byte("1")},
		},
	}
}

func TestCommitEntryHashIsDeterministic(t *testing.T) {
	e1 := sampleEntry()
	e2 := sampleEntry()
	assert.Equal(t, e1.ComputeHash(), e2.ComputeHash())
	assert.Equal(t, e1.Canonicalize(), e2.Canonicalize())
}

func TestCommitEntryHashChangesWithContent(t *testing.T) {
	e1 := sampleEntry()
	e2 := sampleEntry()
	e2.Metadata = []byte("commit 1")
	assert.NotEqual(t, e1.ComputeHash(), e2.ComputeHash())
}

func TestValidateRejectsPutAndDeleteSameKey(t *testing.T) {
	e := sampleEntry()
	e.Deletes = []Delete{{Key: NewKey("a")}}
	err := e.Validate()
	require.Error(t, err)
}

func TestValidateAllowsDisjointKeys(t *testing.T) {
	e := sampleEntry()
	e.Deletes = []Delete{{Key: NewKey("b")}}
	require.NoError(t, e.Validate())
}

func TestPrimaryParentDefaultsToNoAncestor(t *testing.T) {
	e := &CommitEntry{}
	assert.True(t, e.PrimaryParent().IsNoAncestor())
}

func TestKeyEqual(t *testing.T) {
	a := NewKey("x", "y")
	b := NewKey("x", "y")
	c := NewKey("x", "z")
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.Equal(t, "x.y", a.String())
}
