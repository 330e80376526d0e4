package memory

import (
	"fmt"

	"github.com/zixian-cai/hwgc-soft/internal/addr"
)

// ExternalDRAMModel is the boundary to a cycle-accurate DRAM simulator
// (e.g. dramsim3) that this repo does not vendor. Transact is expected
// to have a real side effect on the external model's internal bank
// state -- it is not a pure query, which is exactly the impedance
// mismatch spec section 4.5/9 calls out.
type ExternalDRAMModel interface {
	Transact(pa addr.Physical, isWrite bool) (latencyCycles int, err error)
}

// dramOp identifies one in-flight (address, operation) pair.
type dramOp struct {
	pa      addr.Physical
	isWrite bool
}

// DRAMSim3Adaptor is the speculative-latency adaptor of spec sections
// 4.5 and 9: it resolves the query-vs-stateful mismatch by running the
// transaction through the external model exactly once and memoizing
// the observed latency, so a cache/processor can "ask how long" via
// Query and separately "consume" the answer via Commit without ever
// re-stepping the external model.
//
// The model only ever has a single in-flight request per rank (spec
// section 5); Commit on an unrecognized (address, op) pair is the
// fatal invariant violation of spec section 7 ("external DRAM model
// rejects a transaction").
type DRAMSim3Adaptor struct {
	backend ExternalDRAMModel
	pending map[dramOp]int
}

// NewDRAMSim3Adaptor wraps an ExternalDRAMModel.
func NewDRAMSim3Adaptor(backend ExternalDRAMModel) *DRAMSim3Adaptor {
	return &DRAMSim3Adaptor{
		backend: backend,
		pending: make(map[dramOp]int),
	}
}

// Query runs the transaction through the external backend if it has
// not already been run for this (address, op) pair, and returns the
// (possibly cached) latency without clearing it.
func (d *DRAMSim3Adaptor) Query(pa addr.Physical, isWrite bool) (int, error) {
	op := dramOp{pa: pa, isWrite: isWrite}
	if latency, ok := d.pending[op]; ok {
		return latency, nil
	}
	latency, err := d.backend.Transact(pa, isWrite)
	if err != nil {
		return 0, fmt.Errorf("dramsim3 adaptor: external model rejected transaction at %#x: %w", pa, err)
	}
	d.pending[op] = latency
	return latency, nil
}

// Commit consumes a previously-queried (address, op) pair, returning
// its memoized latency and purging it. Calling Commit for a pair that
// was never Queried is a fatal invariant violation: the single-in-
// flight-per-rank model never issues Commit without a prior Query.
func (d *DRAMSim3Adaptor) Commit(pa addr.Physical, isWrite bool) int {
	op := dramOp{pa: pa, isWrite: isWrite}
	latency, ok := d.pending[op]
	if !ok {
		panic(fmt.Sprintf("dramsim3 adaptor: commit of un-queried transaction at %#x (write=%v): implementation bug", pa, isWrite))
	}
	delete(d.pending, op)
	return latency
}

// Transaction implements RankModel by querying and immediately
// committing, since every caller in this repo issues exactly one
// transaction per cycle-step before moving on.
func (d *DRAMSim3Adaptor) Transaction(pa addr.Physical, isWrite bool) int {
	if _, err := d.Query(pa, isWrite); err != nil {
		panic(err)
	}
	return d.Commit(pa, isWrite)
}

// ReferenceDRAMSim3 is a deterministic stand-in for a real dramsim3
// binding (none exists in this repo's dependency corpus -- see
// SPEC_FULL.md section 4.5). It reproduces published DDR4-3200 CL22
// row-buffer timings using the same bank-state bookkeeping as
// NaiveDRAM, but through the stateful Transact interface so the
// adaptor above has something real to exercise.
type ReferenceDRAMSim3 struct {
	inner *NaiveDRAM
}

// NewReferenceDRAMSim3 builds the reference stand-in for the given
// mapping and timing.
func NewReferenceDRAMSim3(mapping addr.Mapping, timing BankTiming) *ReferenceDRAMSim3 {
	return &ReferenceDRAMSim3{inner: NewNaiveDRAM(mapping, timing)}
}

func (r *ReferenceDRAMSim3) Transact(pa addr.Physical, isWrite bool) (int, error) {
	return r.inner.Transaction(pa, isWrite), nil
}
