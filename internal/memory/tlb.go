package memory

import (
	"container/list"

	"github.com/zixian-cai/hwgc-soft/internal/addr"
)

// tlbEntry is a single (vpn -> ppn) translation.
type tlbEntry struct {
	vpn uint64
	ppn uint64
}

// TLB is the set-associative LRU translation cache of spec section
// 4.3, sized per page size from PageSize.tlbDims. Each set is an LRU
// list capped at `ways` entries.
type TLB struct {
	pageSize PageSize
	numSets  int
	ways     int
	sets     []*list.List // each element holds *tlbEntry
	index    []map[uint64]*list.Element

	ReadHits, ReadMisses   int
	WriteHits, WriteMisses int
}

// NewTLB builds a TLB dimensioned for the given page size.
func NewTLB(pg PageSize) *TLB {
	entries, ways := pg.tlbDims()
	numSets := entries / ways
	if numSets < 1 {
		numSets = 1
	}
	t := &TLB{
		pageSize: pg,
		numSets:  numSets,
		ways:     ways,
		sets:     make([]*list.List, numSets),
		index:    make([]map[uint64]*list.Element, numSets),
	}
	for i := 0; i < numSets; i++ {
		t.sets[i] = list.New()
		t.index[i] = make(map[uint64]*list.Element)
	}
	return t
}

// vpnOf extracts the virtual page number: the address bits above the
// page offset.
func (t *TLB) vpnOf(va addr.Virtual) uint64 {
	return uint64(va) >> uint(t.pageSize.OffsetBits())
}

// setIndexOf computes the set a vpn maps to: (vpn >> 0) mod num_sets,
// per spec section 4.3.
func (t *TLB) setIndexOf(vpn uint64) int {
	return int(vpn % uint64(t.numSets))
}

// Lookup searches for vpn's translation, promoting it to most-recently
// used on a hit. isWrite only affects which hit/miss counter is bumped.
func (t *TLB) Lookup(va addr.Virtual, isWrite bool) (ppn uint64, ok bool) {
	vpn := t.vpnOf(va)
	set := t.setIndexOf(vpn)
	if el, found := t.index[set][vpn]; found {
		t.sets[set].MoveToFront(el)
		if isWrite {
			t.WriteHits++
		} else {
			t.ReadHits++
		}
		return el.Value.(*tlbEntry).ppn, true
	}
	if isWrite {
		t.WriteMisses++
	} else {
		t.ReadMisses++
	}
	return 0, false
}

// Insert records a new vpn->ppn translation, evicting the LRU entry of
// its set if the set is full.
func (t *TLB) Insert(va addr.Virtual, ppn uint64) {
	vpn := t.vpnOf(va)
	set := t.setIndexOf(vpn)
	if el, found := t.index[set][vpn]; found {
		el.Value.(*tlbEntry).ppn = ppn
		t.sets[set].MoveToFront(el)
		return
	}
	if t.sets[set].Len() >= t.ways {
		back := t.sets[set].Back()
		evicted := back.Value.(*tlbEntry)
		delete(t.index[set], evicted.vpn)
		t.sets[set].Remove(back)
	}
	el := t.sets[set].PushFront(&tlbEntry{vpn: vpn, ppn: ppn})
	t.index[set][vpn] = el
}

// ReadHitRate/WriteHitRate report the split counters spec section 6's
// statistics table asks for (TLB hit rate).
func (t *TLB) ReadHitRate() float64 {
	return hitRate(t.ReadHits, t.ReadMisses)
}

func (t *TLB) WriteHitRate() float64 {
	return hitRate(t.WriteHits, t.WriteMisses)
}

func (t *TLB) HitRate() float64 {
	return hitRate(t.ReadHits+t.WriteHits, t.ReadMisses+t.WriteMisses)
}

func hitRate(hits, misses int) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
