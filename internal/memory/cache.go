package memory

import (
	"container/list"
	"fmt"
	"math/bits"

	"github.com/zixian-cai/hwgc-soft/internal/addr"
)

// CacheConfig parameterizes a DataCache. LineSizeBytes and NumSets
// must both be powers of two; NumSets == 1 yields the fully-
// associative variant named in spec section 4 ("DataCache
// (set-associative and fully-associative variants)").
type CacheConfig struct {
	HitLatency    int
	NumSets       int
	Ways          int
	LineSizeBytes int
	PageSize      PageSize
}

// DefaultCacheConfig is a small, fast L1-like VIPT cache: 64 sets,
// 8-way, 64-byte lines, 1-cycle hit latency.
func DefaultCacheConfig(pg PageSize) CacheConfig {
	return CacheConfig{
		HitLatency:    1,
		NumSets:       64,
		Ways:          8,
		LineSizeBytes: 64,
		PageSize:      pg,
	}
}

// FullyAssociativeCacheConfig collapses NumSets to 1, trading set-
// index logic for a single fully-associative LRU pool.
func FullyAssociativeCacheConfig(pg PageSize, ways int) CacheConfig {
	return CacheConfig{
		HitLatency:    1,
		NumSets:       1,
		Ways:          ways,
		LineSizeBytes: 64,
		PageSize:      pg,
	}
}

type cacheLine struct {
	tag   uint64
	valid bool
}

// DataCache is the VIPT (virtually-indexed, physically-tagged) cache
// of spec section 4.4: write-through, write-allocate, no dirty bit,
// LRU eviction per set. It embeds a TLB and drives a PageTableWalker
// and RankModel to resolve misses.
type DataCache struct {
	cfg CacheConfig
	tlb *TLB
	ptw PageTableWalker
	ram RankModel

	lineOffsetBits int
	setIndexBits   int

	sets  []*list.List
	index []map[uint64]*list.Element

	ReadHits, ReadMisses   int
	WriteHits, WriteMisses int
}

// NewDataCache builds a DataCache over the given RankModel, asserting
// the VIPT invariant that set-index bits lie within the page offset
// (spec section 4.4 step 1, tested explicitly in spec section 8).
func NewDataCache(cfg CacheConfig, ram RankModel) *DataCache {
	if cfg.LineSizeBytes&(cfg.LineSizeBytes-1) != 0 {
		panic("memory: DataCache line size must be a power of two")
	}
	if cfg.NumSets&(cfg.NumSets-1) != 0 {
		panic("memory: DataCache set count must be a power of two")
	}
	lineOffsetBits := bits.TrailingZeros(uint(cfg.LineSizeBytes))
	setIndexBits := bits.TrailingZeros(uint(cfg.NumSets))
	if lineOffsetBits+setIndexBits > cfg.PageSize.OffsetBits() {
		panic(fmt.Sprintf(
			"memory: VIPT invariant violated: set-index bits (%d) + line-offset bits (%d) exceed page offset bits (%d) for page size %s",
			setIndexBits, lineOffsetBits, cfg.PageSize.OffsetBits(), cfg.PageSize))
	}

	c := &DataCache{
		cfg:            cfg,
		tlb:            NewTLB(cfg.PageSize),
		ptw:            NewPageTableWalker(),
		ram:            ram,
		lineOffsetBits: lineOffsetBits,
		setIndexBits:   setIndexBits,
		sets:           make([]*list.List, cfg.NumSets),
		index:          make([]map[uint64]*list.Element, cfg.NumSets),
	}
	for i := 0; i < cfg.NumSets; i++ {
		c.sets[i] = list.New()
		c.index[i] = make(map[uint64]*list.Element)
	}
	return c
}

// TLB exposes the embedded TLB for statistics reporting.
func (c *DataCache) TLB() *TLB { return c.tlb }

func (c *DataCache) setIndexOf(va addr.Virtual) uint64 {
	if c.setIndexBits == 0 {
		return 0
	}
	return (uint64(va) >> uint(c.lineOffsetBits)) & ((uint64(1) << uint(c.setIndexBits)) - 1)
}

func (c *DataCache) tagOf(pa addr.Physical) uint64 {
	return uint64(pa) >> uint(c.lineOffsetBits+c.setIndexBits)
}

// resolve performs the concurrent TLB-lookup / set-index computation
// of spec section 4.4 step 1-2 and returns the physical address, the
// set index, and the latency contributed by address translation.
func (c *DataCache) resolve(va addr.Virtual, isWrite bool) (pa addr.Physical, set int, translateLatency int) {
	set = int(c.setIndexOf(va))
	pageOffset := uint64(va) & ((uint64(1) << uint(c.cfg.PageSize.OffsetBits())) - 1)

	if ppn, ok := c.tlb.Lookup(va, isWrite); ok {
		pa = addr.Physical((ppn << uint(c.cfg.PageSize.OffsetBits())) | pageOffset)
		return pa, set, 0
	}

	resolvedPA, latency := c.ptw.Translate(va, c.cfg.PageSize)
	ppn := uint64(resolvedPA) >> uint(c.cfg.PageSize.OffsetBits())
	c.tlb.Insert(va, ppn)
	return resolvedPA, set, latency
}

// lookupLine searches set `set` for `tag`, promoting on hit.
func (c *DataCache) lookupLine(set int, tag uint64) bool {
	if el, ok := c.index[set][tag]; ok {
		c.sets[set].MoveToFront(el)
		return true
	}
	return false
}

// installLine inserts `tag` into `set`, evicting the LRU line if full.
func (c *DataCache) installLine(set int, tag uint64) {
	if el, ok := c.index[set][tag]; ok {
		c.sets[set].MoveToFront(el)
		return
	}
	if c.sets[set].Len() >= c.cfg.Ways {
		back := c.sets[set].Back()
		evicted := back.Value.(*cacheLine)
		delete(c.index[set], evicted.tag)
		c.sets[set].Remove(back)
	}
	el := c.sets[set].PushFront(&cacheLine{tag: tag, valid: true})
	c.index[set][tag] = el
}

// Read performs a read access, mutating TLB/cache/DRAM state, and
// returns the total latency per the table in spec section 4.4: misses
// install the line before returning.
func (c *DataCache) Read(va addr.Virtual) int {
	pa, set, translateLatency := c.resolve(va, false)
	tag := c.tagOf(pa)

	if c.lookupLine(set, tag) {
		c.ReadHits++
		return translateLatency + c.cfg.HitLatency
	}

	c.ReadMisses++
	dramLatency := c.ram.Transaction(pa, false)
	c.installLine(set, tag)
	return translateLatency + c.cfg.HitLatency + dramLatency
}

// Write performs a write-through, write-allocate access. The DRAM
// write transaction is always issued (write-through), but per spec
// section 4.5 DRAM writes are posted and complete in 1 cycle, so a
// write hit's observed latency equals HIT_LATENCY; on a miss the line
// is installed via a read-equivalent fetch whose latency is visible,
// matching write-allocate.
func (c *DataCache) Write(va addr.Virtual) int {
	pa, set, translateLatency := c.resolve(va, true)
	tag := c.tagOf(pa)

	c.ram.Transaction(pa, true) // posted write-through; return value not on the critical path

	if c.lookupLine(set, tag) {
		c.WriteHits++
		return translateLatency + c.cfg.HitLatency
	}

	c.WriteMisses++
	dramLatency := c.ram.Transaction(pa, false) // write-allocate: fetch the line
	c.installLine(set, tag)
	return translateLatency + c.cfg.HitLatency + dramLatency
}

func (c *DataCache) ReadHitRate() float64  { return hitRate(c.ReadHits, c.ReadMisses) }
func (c *DataCache) WriteHitRate() float64 { return hitRate(c.WriteHits, c.WriteMisses) }
