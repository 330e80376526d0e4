package proc

import (
	"testing"

	"github.com/zixian-cai/hwgc-soft/internal/addr"
	"github.com/zixian-cai/hwgc-soft/internal/memory"
	"github.com/zixian-cai/hwgc-soft/internal/snapshot"
)

func newTestProcessor(t *testing.T, rankID int, snap *snapshot.Snapshot) *Processor {
	t.Helper()
	mapping := addr.NewMapping(addr.DefaultGeometry())
	ram := memory.NewNaiveDRAM(mapping, memory.DefaultDDR4Timing())
	cache := memory.NewDataCache(memory.DefaultCacheConfig(memory.FourKB), ram)
	return NewProcessor(rankID, cache, mapping, snap, 2)
}

func runUntilDone(p *Processor, maxTicks int) int {
	ticks := 0
	for ticks < maxTicks && !p.LocallyDone() {
		p.Tick()
		ticks++
	}
	return ticks
}

// TestLinearChainMarksAllThreeObjects exercises the single-processor,
// single-rank scenario: a root pointing to A -> B -> C, all resident
// on the same rank. Every object should end up marked exactly once.
func TestLinearChainMarksAllThreeObjects(t *testing.T) {
	a := addr.Virtual(0x1000)
	b := addr.Virtual(0x2000)
	c := addr.Virtual(0x3000)
	objs := []*snapshot.Object{
		{Address: a, SizeBytes: 32, References: []addr.Virtual{b}},
		{Address: b, SizeBytes: 32, References: []addr.Virtual{c}},
		{Address: c, SizeBytes: 32, References: nil},
	}
	snap := snapshot.New(snapshot.OpenJDK, objs, []addr.Virtual{a})

	p := newTestProcessor(t, 0, snap)
	p.Queue.PushBack(Mark(a))

	ticks := runUntilDone(p, 10000)
	if ticks == 0 {
		t.Fatal("expected at least one tick")
	}
	if !snap.IsMarked(a) || !snap.IsMarked(b) || !snap.IsMarked(c) {
		t.Fatalf("expected all three objects marked, got a=%v b=%v c=%v",
			snap.IsMarked(a), snap.IsMarked(b), snap.IsMarked(c))
	}
	if p.ObjectsMarked != 3 {
		t.Fatalf("ObjectsMarked = %d, want 3", p.ObjectsMarked)
	}
	if snap.ReachableMarkedCount() != 3 {
		t.Fatalf("ReachableMarkedCount() = %d, want 3", snap.ReachableMarkedCount())
	}
}

// TestIdempotentMarkSkipsRescan verifies that marking an already-marked
// object costs a read but never re-enqueues a Scan or double-counts.
func TestIdempotentMarkSkipsRescan(t *testing.T) {
	a := addr.Virtual(0x1000)
	objs := []*snapshot.Object{{Address: a, SizeBytes: 32}}
	snap := snapshot.New(snapshot.OpenJDK, objs, []addr.Virtual{a})
	snap.SetMarked(a)

	p := newTestProcessor(t, 0, snap)
	p.Queue.PushBack(Mark(a))
	runUntilDone(p, 100)

	if p.ObjectsMarked != 0 {
		t.Fatalf("ObjectsMarked = %d, want 0 (already marked before this Mark ran)", p.ObjectsMarked)
	}
	if p.InstructionsExecuted != 1 {
		t.Fatalf("InstructionsExecuted = %d, want 1 (the Mark only; no Scan enqueued)", p.InstructionsExecuted)
	}
	if p.Cache.ReadHits+p.Cache.ReadMisses != 1 {
		t.Fatalf("header reads = %d, want 1", p.Cache.ReadHits+p.Cache.ReadMisses)
	}
}

// TestCrossRankSendMessageRoundTrip drives two processors representing
// two ranks: rank 0 scans an object with a reference into rank 1's
// address range, emits SendMessage, and rank 1 picks the message up off
// its inbox and marks the referenced object.
func TestCrossRankSendMessageRoundTrip(t *testing.T) {
	mapping := addr.NewMapping(addr.DefaultGeometry())

	local := addr.Virtual(0x1000)
	// A rank-1 address: set the Rank field to 1 with all other fields zero.
	remoteFields := mapping.Decode(addr.Physical(0))
	remoteFields.Rank = 1
	remotePA := mapping.Encode(remoteFields)
	remote := addr.Virtual(remotePA)

	localObjs := []*snapshot.Object{
		{Address: local, SizeBytes: 32, References: []addr.Virtual{remote}},
	}
	remoteObjs := []*snapshot.Object{
		{Address: remote, SizeBytes: 32},
	}

	localSnap := snapshot.New(snapshot.OpenJDK, localObjs, []addr.Virtual{local})
	remoteSnap := snapshot.New(snapshot.OpenJDK, remoteObjs, nil)

	p0 := newTestProcessor(t, 0, localSnap)
	p1 := newTestProcessor(t, 1, remoteSnap)

	if mapping.RankOf(addr.Physical(local)) != 0 {
		t.Fatalf("test setup: local address must decode to rank 0, got %d", mapping.RankOf(addr.Physical(local)))
	}
	if mapping.RankOf(addr.Physical(remote)) != 1 {
		t.Fatalf("test setup: remote address must decode to rank 1, got %d", mapping.RankOf(addr.Physical(remote)))
	}

	p0.Queue.PushBack(Mark(local))

	var outgoing *OutgoingMessage
	for i := 0; i < 10000 && outgoing == nil; i++ {
		outgoing = p0.Tick()
	}
	if outgoing == nil {
		t.Fatal("rank 0 never emitted a SendMessage")
	}
	if outgoing.TargetRank != 1 || outgoing.Payload != remote {
		t.Fatalf("outgoing = %+v, want TargetRank=1 Payload=%v", outgoing, remote)
	}

	p1.Inbox.Push(outgoing.Payload)
	runUntilDone(p1, 10000)

	if !remoteSnap.IsMarked(remote) {
		t.Fatal("expected rank 1 to mark the cross-rank object")
	}
	if p1.ObjectsMarked != 1 {
		t.Fatalf("rank 1 ObjectsMarked = %d, want 1", p1.ObjectsMarked)
	}
}

// TestTickIdlesWhenNothingToDo confirms a processor with an empty queue
// and empty inbox executes Idle rather than short-circuiting before
// ever reaching execute(), and that Idle leaves no observable trace.
func TestTickIdlesWhenNothingToDo(t *testing.T) {
	snap := snapshot.New(snapshot.OpenJDK, nil, nil)
	p := newTestProcessor(t, 0, snap)

	if msg := p.Tick(); msg != nil {
		t.Fatalf("idle tick returned an outgoing message: %+v", msg)
	}
	if p.InstructionsExecuted != 0 {
		t.Fatalf("InstructionsExecuted = %d, want 0 after an idle tick", p.InstructionsExecuted)
	}
	if !p.LocallyDone() {
		t.Fatal("expected processor to remain locally done after an idle tick")
	}
}

// TestLocallyDoneAfterDraining confirms the termination predicate only
// reports true once both the queue and inbox have drained.
func TestLocallyDoneAfterDraining(t *testing.T) {
	a := addr.Virtual(0x1000)
	snap := snapshot.New(snapshot.OpenJDK, []*snapshot.Object{{Address: a}}, []addr.Virtual{a})
	p := newTestProcessor(t, 0, snap)

	if !p.LocallyDone() {
		t.Fatal("a fresh processor with no queued work should be locally done")
	}
	p.Inbox.Push(a)
	if p.LocallyDone() {
		t.Fatal("a processor with a pending inbox message is not locally done")
	}
	runUntilDone(p, 10000)
	if !p.LocallyDone() {
		t.Fatal("expected processor to drain to locally done")
	}
}
