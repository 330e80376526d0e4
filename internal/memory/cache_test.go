package memory

import (
	"testing"

	"github.com/zixian-cai/hwgc-soft/internal/addr"
)

func newTestCache(t *testing.T) (*DataCache, *NaiveDRAM) {
	t.Helper()
	mapping := addr.NewMapping(addr.DefaultGeometry())
	dram := NewNaiveDRAM(mapping, DefaultDDR4Timing())
	cache := NewDataCache(DefaultCacheConfig(FourMB), dram)
	return cache, dram
}

func TestCacheVIPTInvariantHolds(t *testing.T) {
	// DefaultCacheConfig + FourMB must not panic; a too-wide config must.
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("default config unexpectedly violated the VIPT invariant: %v", r)
		}
	}()
	NewDataCache(DefaultCacheConfig(FourMB), nil)
}

func TestCacheVIPTInvariantRejectsOversizedIndex(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic: set-index bits exceed page-offset bits")
		}
	}()
	cfg := CacheConfig{HitLatency: 1, NumSets: 1 << 16, Ways: 4, LineSizeBytes: 64, PageSize: FourKB}
	NewDataCache(cfg, nil)
}

func TestReadMissThenHit(t *testing.T) {
	cache, _ := newTestCache(t)
	va := addr.Virtual(0x1000)

	missLatency := cache.Read(va)
	hitLatency := cache.Read(va)

	if missLatency <= hitLatency {
		t.Errorf("miss latency (%d) should exceed hit latency (%d)", missLatency, hitLatency)
	}
	if cache.ReadHits != 1 || cache.ReadMisses != 1 {
		t.Errorf("want 1 hit/1 miss, got hits=%d misses=%d", cache.ReadHits, cache.ReadMisses)
	}
	if cache.TLB().ReadHits != 1 {
		t.Errorf("second access should have hit the TLB, got ReadHits=%d", cache.TLB().ReadHits)
	}
}

func TestWriteHitLatencyEqualsHitLatency(t *testing.T) {
	cache, _ := newTestCache(t)
	va := addr.Virtual(0x2000)

	_ = cache.Write(va) // write-allocate miss, installs the line and the TLB entry
	hitLatency := cache.Write(va)

	if hitLatency != cache.cfg.HitLatency {
		t.Errorf("write hit latency = %d, want HIT_LATENCY (%d)", hitLatency, cache.cfg.HitLatency)
	}
}

func TestWriteIsAlwaysThrough(t *testing.T) {
	cache, dram := newTestCache(t)
	va := addr.Virtual(0x3000)

	cache.Write(va)
	cache.Write(va)

	if dram.writes != 2 {
		t.Errorf("expected every write to reach DRAM (write-through), got %d DRAM writes", dram.writes)
	}
}

func TestLRUEviction(t *testing.T) {
	mapping := addr.NewMapping(addr.DefaultGeometry())
	dram := NewNaiveDRAM(mapping, DefaultDDR4Timing())
	cfg := CacheConfig{HitLatency: 1, NumSets: 1, Ways: 2, LineSizeBytes: 64, PageSize: OneGB}
	cache := NewDataCache(cfg, dram)

	// Three distinct lines mapping to the same (only) set; the third
	// access must evict the first (LRU).
	a := addr.Virtual(0 * 64)
	b := addr.Virtual(1 * 64)
	c := addr.Virtual(2 * 64)

	cache.Read(a)
	cache.Read(b)
	cache.Read(c) // evicts a

	missesBefore := cache.ReadMisses
	cache.Read(a) // must miss again: was evicted
	if cache.ReadMisses != missesBefore+1 {
		t.Fatalf("expected eviction of the LRU line a, but it was still resident")
	}
}

func TestRowBufferModel(t *testing.T) {
	mapping := addr.NewMapping(addr.DefaultGeometry())
	timing := DefaultDDR4Timing()
	dram := NewNaiveDRAM(mapping, timing)

	f := addr.Fields{Row: 1}
	pa := mapping.Encode(f)

	if got := dram.Transaction(pa, false); got != timing.RowMissLatency {
		t.Errorf("first access to a bank = %d, want row-miss latency %d", got, timing.RowMissLatency)
	}
	if got := dram.Transaction(pa, false); got != timing.RowHitLatency {
		t.Errorf("second access to the same row = %d, want row-hit latency %d", got, timing.RowHitLatency)
	}

	f.Row = 2
	pa2 := mapping.Encode(f)
	if got := dram.Transaction(pa2, false); got != timing.RowConflictLatency {
		t.Errorf("access to a different row in the same bank = %d, want row-conflict latency %d", got, timing.RowConflictLatency)
	}
}

func TestDRAMSim3AdaptorMemoizesWithoutDoubleStepping(t *testing.T) {
	mapping := addr.NewMapping(addr.DefaultGeometry())
	backend := NewReferenceDRAMSim3(mapping, DefaultDDR4Timing())
	adaptor := NewDRAMSim3Adaptor(backend)

	pa := addr.Physical(0x1000)
	latency1, err := adaptor.Query(pa, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	latency2, err := adaptor.Query(pa, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if latency1 != latency2 {
		t.Fatalf("Query should return the memoized value, got %d then %d", latency1, latency2)
	}

	committed := adaptor.Commit(pa, false)
	if committed != latency1 {
		t.Fatalf("Commit returned %d, want memoized %d", committed, latency1)
	}

	// After Commit, the entry is purged; a second commit without a
	// fresh Query is the fatal invariant violation.
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic on commit of an un-queried transaction")
		}
	}()
	adaptor.Commit(pa, false)
}
