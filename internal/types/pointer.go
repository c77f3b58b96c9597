package types

import "github.com/newffy/nessie/internal/hashid"

// RefPointer is the HEAD of a single named reference.
type RefPointer struct {
	Type RefType
	Hash hashid.Hash
}

// NamedReference pairs a reference name with its current pointer. The
// GlobalPointer keeps these most-recently-updated first (spec.md §4.4).
type NamedReference struct {
	Name    string
	Pointer RefPointer
}

// GlobalPointer is the sole mutable root record of a repository
// (spec.md §3 "Global Pointer", component C4). Every successful write
// replaces it atomically via CAS; every other record type is write-once.
type GlobalPointer struct {
	GlobalID               hashid.Hash // head of the Global State Log
	NamedReferences        []NamedReference
	RefLogID                hashid.Hash
	GlobalParentsInclHead   []hashid.Hash // bounded ring, most recent first
	RefLogParentsInclHead   []hashid.Hash // bounded ring, most recent first

	// Version is an opaque optimistic-concurrency token supplied by the
	// Store implementation (spec.md §6 CAS primitive); the in-memory and
	// SQL Store implementations populate it differently, so the adapter
	// treats it as opaque and only ever compares it for equality.
	Version string
}

// Clone returns a deep copy of p so callers can build a tentative new
// pointer without mutating the observed one mid-CAS-attempt.
func (p *GlobalPointer) Clone() *GlobalPointer {
	out := &GlobalPointer{
		GlobalID: p.GlobalID,
		RefLogID: p.RefLogID,
		Version:  p.Version,
	}
	out.NamedReferences = append(out.NamedReferences, p.NamedReferences...)
	out.GlobalParentsInclHead = append(out.GlobalParentsInclHead, p.GlobalParentsInclHead...)
	out.RefLogParentsInclHead = append(out.RefLogParentsInclHead, p.RefLogParentsInclHead...)
	return out
}

// Lookup returns the pointer for name, if present.
func (p *GlobalPointer) Lookup(name string) (RefPointer, bool) {
	for _, nr := range p.NamedReferences {
		if nr.Name == name {
			return nr.Pointer, true
		}
	}
	return RefPointer{}, false
}

// Touch moves name to the front of NamedReferences with the given
// pointer, inserting it if absent, matching spec.md §4.4's "most
// recently touched order" requirement. Returns the prior pointer and
// whether the name previously existed.
func (p *GlobalPointer) Touch(name string, ptr RefPointer) (RefPointer, bool) {
	var prior RefPointer
	existed := false
	filtered := make([]NamedReference, 0, len(p.NamedReferences)+1)
	for _, nr := range p.NamedReferences {
		if nr.Name == name {
			prior = nr.Pointer
			existed = true
			continue
		}
		filtered = append(filtered, nr)
	}
	p.NamedReferences = append([]NamedReference{{Name: name, Pointer: ptr}}, filtered...)
	return prior, existed
}

// Remove deletes name from NamedReferences, returning its prior pointer.
func (p *GlobalPointer) Remove(name string) (RefPointer, bool) {
	for i, nr := range p.NamedReferences {
		if nr.Name == name {
			prior := nr.Pointer
			p.NamedReferences = append(p.NamedReferences[:i], p.NamedReferences[i+1:]...)
			return prior, true
		}
	}
	return RefPointer{}, false
}

// PushRing prepends h to ring, truncating to maxLen (spec.md §4.3/§4.5's
// bounded ring buffers).
func PushRing(ring []hashid.Hash, h hashid.Hash, maxLen int) []hashid.Hash {
	out := append([]hashid.Hash{h}, ring...)
	if len(out) > maxLen {
		out = out[:maxLen]
	}
	return out
}

// RepositoryDescription is the persisted repo_version + properties
// record (spec.md §3). Updates go through a pure function supplied by
// the caller; returning nil aborts the update.
type RepositoryDescription struct {
	RepoVersion int
	Properties  map[string]string
	Version     string // optimistic-concurrency token, opaque to callers
}

// Clone returns a deep copy.
func (d *RepositoryDescription) Clone() *RepositoryDescription {
	props := make(map[string]string, len(d.Properties))
	for k, v := range d.Properties {
		props[k] = v
	}
	return &RepositoryDescription{RepoVersion: d.RepoVersion, Properties: props, Version: d.Version}
}

// RepoDescriptionUpdater is a pure function transforming a
// RepositoryDescription; returning nil aborts the update (spec.md §9
// DESIGN NOTES, "Immutable value builders").
type RepoDescriptionUpdater func(*RepositoryDescription) *RepositoryDescription
