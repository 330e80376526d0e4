// Package snapshot is the read-only HeapSnapshot accessor of spec
// section 3/4.11: object metadata and root-set iteration over a
// captured heap snapshot. Loaded once at startup, shared read-only
// across every NMPProcessor for the lifetime of a run.
package snapshot

import "github.com/zixian-cai/hwgc-soft/internal/addr"

// ObjectModel selects how object headers and reference slots are laid
// out (spec section 6's --object-model flag).
type ObjectModel int

const (
	// OpenJDK lays out all of an object's reference slots forward,
	// immediately following a fixed-size header.
	OpenJDK ObjectModel = iota
	// Bidirectional additionally records a back-reference slot for
	// every forward slot (as some conservative collectors do to
	// support incremental compaction); only the forward slots
	// participate in Scan (spec section 4.9), matching a non-moving
	// collector that never needs the back-pointers during marking.
	Bidirectional
)

func (m ObjectModel) String() string {
	switch m {
	case OpenJDK:
		return "OpenJDK"
	case Bidirectional:
		return "Bidirectional"
	default:
		return "unknown"
	}
}

// ParseObjectModel maps the CLI's --object-model flag value.
func ParseObjectModel(s string) (ObjectModel, bool) {
	switch s {
	case "OpenJDK":
		return OpenJDK, true
	case "Bidirectional":
		return Bidirectional, true
	default:
		return 0, false
	}
}

// HeaderSizeBytes is the fixed header size this model places reference
// slots after (spec section 6, --object-model note): OpenJDK packs a
// compact 16-byte header; Bidirectional reserves an extra 8 bytes for
// the back-reference bookkeeping word.
func (m ObjectModel) HeaderSizeBytes() int {
	if m == Bidirectional {
		return 24
	}
	return 16
}

// SlotStrideBytes is the byte distance between consecutive forward
// reference slots. OpenJDK packs slots back-to-back at 8 bytes each;
// Bidirectional interleaves every forward slot with its paired
// back-reference slot, doubling the addressable slot span (spec
// section 3/6: "Bidirectional doubles ReferenceSlots").
func (m ObjectModel) SlotStrideBytes() int {
	if m == Bidirectional {
		return 16
	}
	return 8
}

// Classification is the coarse object kind recorded at capture time
// (e.g. array vs instance); THE CORE only uses it for statistics, the
// marking algorithm itself is classification-agnostic.
type Classification uint32

// Object is the immutable per-object metadata spec section 3
// describes: address, size, reference-slot targets, classification.
type Object struct {
	Address        addr.Virtual
	SizeBytes      uint32
	ClassID        uint32
	Classification Classification
	// References holds every forward reference-slot target, in slot
	// order. Bidirectional snapshots additionally carry BackReferences,
	// which Scan never visits.
	References     []addr.Virtual
	BackReferences []addr.Virtual

	// Marked is the mark-table bit of spec section 3, stored directly
	// on the object for simplicity. Exactly one rank -- the one
	// AddressMapping assigns this object's address to -- ever mutates
	// it, so no synchronization is needed in the single-threaded
	// simulator.
	Marked bool
}

// HeaderAddress is the address Mark's cache.read/cache.write target
// (spec section 4.9): the object's own address; the mark bit lives in
// byte 0 of the header for both ObjectModel variants.
func (s *Snapshot) HeaderAddress(obj addr.Virtual) addr.Virtual { return obj }

// SlotAddress is the address Scan's cache.read targets to fetch
// forward reference slot i (spec section 4.9). The header size and
// the stride between slots both depend on s.model, so OpenJDK and
// Bidirectional snapshots over the same object layout generate
// different cache/TLB/DRAM traffic.
func (s *Snapshot) SlotAddress(obj addr.Virtual, slot int) addr.Virtual {
	return obj + addr.Virtual(s.model.HeaderSizeBytes()) + addr.Virtual(slot*s.model.SlotStrideBytes())
}

// IsMarked reports whether the object at a has already been marked.
func (s *Snapshot) IsMarked(a addr.Virtual) bool {
	o, ok := s.objects[a]
	return ok && o.Marked
}

// SetMarked sets the mark bit for the object at a.
func (s *Snapshot) SetMarked(a addr.Virtual) {
	if o, ok := s.objects[a]; ok {
		o.Marked = true
	}
}

// ReachableMarkedCount counts objects whose mark bit is set; used by tests
// asserting the "sum of objects_marked equals reachable count"
// invariant of spec section 3.
func (s *Snapshot) ReachableMarkedCount() int {
	n := 0
	for _, o := range s.objects {
		if o.Marked {
			n++
		}
	}
	return n
}

// Snapshot is the immutable, shared HeapSnapshot accessor.
type Snapshot struct {
	model   ObjectModel
	objects map[addr.Virtual]*Object
	roots   []addr.Virtual
}

// New builds a Snapshot accessor over already-decoded objects and
// roots, in the order roots were captured (spec section 3: "the root
// set is an ordered sequence of addresses").
func New(model ObjectModel, objects []*Object, roots []addr.Virtual) *Snapshot {
	s := &Snapshot{
		model:   model,
		objects: make(map[addr.Virtual]*Object, len(objects)),
		roots:   roots,
	}
	for _, o := range objects {
		s.objects[o.Address] = o
	}
	return s
}

// ObjectModel reports the header layout this snapshot was decoded with.
func (s *Snapshot) ObjectModel() ObjectModel { return s.model }

// Roots returns the ordered root set.
func (s *Snapshot) Roots() []addr.Virtual { return s.roots }

// Lookup returns the object at the given address, if any.
func (s *Snapshot) Lookup(a addr.Virtual) (*Object, bool) {
	o, ok := s.objects[a]
	return o, ok
}

// NumSlots is the number of forward reference slots Scan must visit
// for the object at a, or 0 if a does not name an object in this
// snapshot.
func (s *Snapshot) NumSlots(a addr.Virtual) int {
	o, ok := s.objects[a]
	if !ok {
		return 0
	}
	return len(o.References)
}

// ReferenceSlot returns the target address stored in forward slot i of
// the object at a.
func (s *Snapshot) ReferenceSlot(a addr.Virtual, i int) (addr.Virtual, bool) {
	o, ok := s.objects[a]
	if !ok || i < 0 || i >= len(o.References) {
		return 0, false
	}
	return o.References[i], true
}

// NumObjects reports the total object count, for statistics.
func (s *Snapshot) NumObjects() int { return len(s.objects) }
