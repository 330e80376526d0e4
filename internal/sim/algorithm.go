// Package sim implements the global orchestrator of spec section 4.10:
// NMPGC drives every NMPProcessor and the interconnect in lockstep,
// one global cycle at a time, until the run reaches quiescence.
package sim

// Result is what an Algorithm reports once a run reaches quiescence.
type Result struct {
	Ticks         int
	ObjectsMarked int
	// Utilization is the fraction of (tick, processor) slots in which a
	// processor executed a real instruction, as opposed to stalling or
	// sitting idle (spec section 6's "utilization" statistic).
	Utilization float64
}

// Algorithm is the marking strategy the CLI's -a flag selects between
// (spec section 6). NMPGC is the hardware-accurate orchestrator;
// IdealTraceUtilization is the simplified baseline described in
// SPEC_FULL.md section 6.
type Algorithm interface {
	Run() (Result, error)
}
