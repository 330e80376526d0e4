package sim

import (
	"github.com/zixian-cai/hwgc-soft/internal/addr"
	"github.com/zixian-cai/hwgc-soft/internal/snapshot"
)

// IdealTraceUtilization is the simplified `-a` baseline of
// SPEC_FULL.md section 6: a single in-memory BFS over the reachable
// set, with no memory-hierarchy or interconnect simulation. It reports
// 100% utilization by construction -- there is no hardware model for
// any cycle to be wasted against -- and Ticks equal to the number of
// mark operations, which is the only notion of "work" this algorithm
// has.
type IdealTraceUtilization struct {
	snap *snapshot.Snapshot
}

// NewIdealTraceUtilization builds the baseline algorithm over snap.
func NewIdealTraceUtilization(snap *snapshot.Snapshot) *IdealTraceUtilization {
	return &IdealTraceUtilization{snap: snap}
}

func (a *IdealTraceUtilization) Run() (Result, error) {
	visited := make(map[uint64]bool)
	var queue []uint64
	for _, root := range a.snap.Roots() {
		queue = append(queue, uint64(root))
	}

	marked := 0
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if visited[cur] {
			continue
		}
		visited[cur] = true
		marked++

		va := addr.Virtual(cur)
		for i := 0; i < a.snap.NumSlots(va); i++ {
			if ref, ok := a.snap.ReferenceSlot(va, i); ok && !visited[uint64(ref)] {
				queue = append(queue, uint64(ref))
			}
		}
	}

	return Result{
		Ticks:         marked,
		ObjectsMarked: marked,
		Utilization:   1.0,
	}, nil
}
