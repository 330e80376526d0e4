package memory

import "github.com/zixian-cai/hwgc-soft/internal/addr"

// RankModel is the DDR4RankModel interface of spec section 4.5: a
// latency oracle for one DRAM rank.
type RankModel interface {
	// Transaction reports the latency, in cycles, of accessing pa.
	// Writes are posted (spec section 4.4/4.5): a write transaction
	// always completes in 1 cycle regardless of row-buffer state,
	// though the row-buffer state is still updated as if the access
	// happened, since a later read may observe it.
	Transaction(pa addr.Physical, isWrite bool) int
}

// BankTiming holds the row-buffer hit/miss/conflict latencies (spec
// section 3/4.5). Units are cycles.
type BankTiming struct {
	RowHitLatency      int // row buffer already holds the target row
	RowMissLatency     int // bank idle, no row activated
	RowConflictLatency int // different row activated in the same bank
}

// DefaultDDR4Timing approximates DDR4-3200 CL22 hit/miss/conflict
// latencies in controller cycles at the clock used by NaiveDRAM's
// caller (see config.ClockGHz).
func DefaultDDR4Timing() BankTiming {
	return BankTiming{
		RowHitLatency:      22,
		RowMissLatency:     46,
		RowConflictLatency: 60,
	}
}

// bankKey identifies one (bank-group, bank) pair within a rank.
type bankKey struct {
	bankGroup uint64
	bank      uint64
}

// NaiveDRAM is the fixed-latency row-buffer model of spec section 4.5:
// bank state is just "which row is currently open", read out through
// AddressMapping so the model never has to know about rank/channel
// fields (those already routed this transaction to the right rank).
type NaiveDRAM struct {
	mapping   addr.Mapping
	timing    BankTiming
	lastRow   map[bankKey]uint64
	rowValid  map[bankKey]bool
	reads     int
	writes    int
	rowHits   int
	rowMisses int
	conflicts int
}

// NewNaiveDRAM builds a rank model keyed by the given AddressMapping,
// which is used only to decode (bank-group, bank, row) out of the
// physical address passed to Transaction.
func NewNaiveDRAM(mapping addr.Mapping, timing BankTiming) *NaiveDRAM {
	return &NaiveDRAM{
		mapping:  mapping,
		timing:   timing,
		lastRow:  make(map[bankKey]uint64),
		rowValid: make(map[bankKey]bool),
	}
}

func (d *NaiveDRAM) Transaction(pa addr.Physical, isWrite bool) int {
	f := d.mapping.Decode(pa)
	key := bankKey{bankGroup: f.BankGroup, bank: f.Bank}

	var latency int
	switch {
	case !d.rowValid[key]:
		latency = d.timing.RowMissLatency
		d.rowMisses++
	case d.lastRow[key] == f.Row:
		latency = d.timing.RowHitLatency
		d.rowHits++
	default:
		latency = d.timing.RowConflictLatency
		d.conflicts++
	}
	d.lastRow[key] = f.Row
	d.rowValid[key] = true

	if isWrite {
		d.writes++
		return 1 // posted write: apparent completion decoupled from bank latency
	}
	d.reads++
	return latency
}

// RowBufferHitRate reports row-buffer hits as a fraction of all
// transactions (hits+misses+conflicts).
func (d *NaiveDRAM) RowBufferHitRate() float64 {
	total := d.rowHits + d.rowMisses + d.conflicts
	if total == 0 {
		return 0
	}
	return float64(d.rowHits) / float64(total)
}
