package types

import (
	"testing"

	"github.com/newffy/nessie/internal/hashid"
	"github.com/stretchr/testify/assert"
)

func TestTouchMovesRefToFront(t *testing.T) {
	p := &GlobalPointer{}
	p.Touch("main", RefPointer{Hash: hashid.Of([]byte("1"))})
	p.Touch("dev", RefPointer{Hash: hashid.Of([]byte("2"))})
	prior, existed := p.Touch("main", RefPointer{Hash: hashid.Of([]byte("3"))})

	assert.True(t, existed)
	assert.Equal(t, hashid.Of([]byte("1")), prior.Hash)
	assert.Equal(t, "main", p.NamedReferences[0].Name)
	assert.Equal(t, "dev", p.NamedReferences[1].Name)
}

func TestRemoveReference(t *testing.T) {
	p := &GlobalPointer{}
	p.Touch("main", RefPointer{Hash: hashid.Of([]byte("1"))})
	prior, existed := p.Remove("main")
	assert.True(t, existed)
	assert.Equal(t, hashid.Of([]byte("1")), prior.Hash)
	_, existed = p.Lookup("main")
	assert.False(t, existed)
}

func TestPushRingTruncates(t *testing.T) {
	ring := []hashid.Hash{hashid.Of([]byte("a"))}
	ring = PushRing(ring, hashid.Of([]byte("b")), 2)
	assert.Len(t, ring, 2)
	ring = PushRing(ring, hashid.Of([]byte("c")), 2)
	assert.Len(t, ring, 2)
	assert.Equal(t, hashid.Of([]byte("c")), ring[0])
}

func TestGlobalPointerCloneIsIndependent(t *testing.T) {
	p := &GlobalPointer{}
	p.Touch("main", RefPointer{Hash: hashid.Of([]byte("1"))})
	clone := p.Clone()
	clone.Touch("main", RefPointer{Hash: hashid.Of([]byte("2"))})

	orig, _ := p.Lookup("main")
	cloned, _ := clone.Lookup("main")
	assert.NotEqual(t, orig.Hash, cloned.Hash)
}
