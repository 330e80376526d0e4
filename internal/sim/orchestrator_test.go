package sim

import (
	"testing"

	"github.com/zixian-cai/hwgc-soft/internal/addr"
	"github.com/zixian-cai/hwgc-soft/internal/memory"
	"github.com/zixian-cai/hwgc-soft/internal/snapshot"
	"github.com/zixian-cai/hwgc-soft/internal/topology"
)

func buildConfig(t *testing.T, topo topology.Topology, snap *snapshot.Snapshot, rootsByHomeRank bool) Config {
	t.Helper()
	mapping := addr.NewMapping(addr.DefaultGeometry())
	return Config{
		Mapping:         mapping,
		Topology:        topo,
		Snapshot:        snap,
		CacheConfig:     memory.DefaultCacheConfig(memory.FourKB),
		BankTiming:      memory.DefaultDDR4Timing(),
		RootsByHomeRank: rootsByHomeRank,
	}
}

// TestSingleRankLinearChain mirrors the proc-level scenario but through
// the full orchestrator: every object lives on rank 0 (all addresses
// decode to the same rank, dimm, channel), so no network traffic
// should ever occur.
func TestSingleRankLinearChain(t *testing.T) {
	a := addr.Virtual(0x1000)
	b := addr.Virtual(0x2000)
	c := addr.Virtual(0x3000)
	objs := []*snapshot.Object{
		{Address: a, SizeBytes: 32, References: []addr.Virtual{b}},
		{Address: b, SizeBytes: 32, References: []addr.Virtual{c}},
		{Address: c, SizeBytes: 32},
	}
	snap := snapshot.New(snapshot.OpenJDK, objs, []addr.Virtual{a})

	topo := topology.NewFullyConnected(4)
	cfg := buildConfig(t, topo, snap, false)
	gc := New(cfg)

	result, err := gc.Run()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ObjectsMarked != 3 {
		t.Fatalf("ObjectsMarked = %d, want 3", result.ObjectsMarked)
	}
	if result.Ticks == 0 {
		t.Fatal("expected a nonzero number of ticks")
	}
	if gc.Network().InFlightCount() != 0 {
		t.Fatal("no traffic should remain in flight after quiescence")
	}
}

// TestCrossRankRouting seeds the root onto processor 0 and gives it a
// reference to an object on another DIMM, which forces a
// SendMessage/network round trip, and checks the destination rank ends
// up marking the object.
func TestCrossRankRouting(t *testing.T) {
	mapping := addr.NewMapping(addr.DefaultGeometry())

	local := addr.Virtual(0x1000)
	remoteFields := mapping.Decode(addr.Physical(0))
	remoteFields.DIMM = 1 // a different DIMM forces a real network route, not just a local handoff
	remote := addr.Virtual(mapping.Encode(remoteFields))

	objs := []*snapshot.Object{
		{Address: local, SizeBytes: 32, References: []addr.Virtual{remote}},
		{Address: remote, SizeBytes: 32},
	}
	snap := snapshot.New(snapshot.OpenJDK, objs, []addr.Virtual{local})

	topo := topology.NewRing(4)
	cfg := buildConfig(t, topo, snap, false)
	gc := New(cfg)

	result, err := gc.Run()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ObjectsMarked != 2 {
		t.Fatalf("ObjectsMarked = %d, want 2", result.ObjectsMarked)
	}
	if !snap.IsMarked(remote) {
		t.Fatal("expected the cross-rank object to be marked")
	}

	var forwarded int
	for _, c := range gc.Network().Counters() {
		forwarded += c.TotalForwarded
	}
	if forwarded == 0 {
		t.Fatal("expected the cross-DIMM message to have traversed at least one network link")
	}
}

// TestUnreachableObjectsNeverMarked checks that objects outside the
// root-reachable set are left unmarked, per the core mark-phase
// invariant.
func TestUnreachableObjectsNeverMarked(t *testing.T) {
	a := addr.Virtual(0x1000)
	unreachable := addr.Virtual(0x9000)
	objs := []*snapshot.Object{
		{Address: a, SizeBytes: 32},
		{Address: unreachable, SizeBytes: 32},
	}
	snap := snapshot.New(snapshot.OpenJDK, objs, []addr.Virtual{a})

	topo := topology.NewLine(4)
	cfg := buildConfig(t, topo, snap, false)
	gc := New(cfg)

	result, err := gc.Run()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ObjectsMarked != 1 {
		t.Fatalf("ObjectsMarked = %d, want 1", result.ObjectsMarked)
	}
	if snap.IsMarked(unreachable) {
		t.Fatal("unreachable object should never be marked")
	}
}

// TestTwoProcessorsOnOppositeRanks reproduces spec section 8 scenario
// 2 exactly: P=2 processors spread across 4 total ranks must land on
// ranks 0 and 3, not 0 and 1, and a reference from rank 0 to rank 3
// must cross the network rather than vanish as an inactive-rank no-op.
func TestTwoProcessorsOnOppositeRanks(t *testing.T) {
	geom := addr.DefaultGeometry()
	geom.RankBits = 0 // 1 rank per DIMM: 4 DIMMs == 4 total ranks
	mapping := addr.NewMapping(geom)

	local := addr.Virtual(0x1000)
	remoteFields := mapping.Decode(addr.Physical(0))
	remoteFields.Channel = 1 // global DIMM 3 = channel 1, DIMM 1
	remoteFields.DIMM = 1
	remote := addr.Virtual(mapping.Encode(remoteFields))

	if mapping.RankOf(addr.Physical(local)) != 0 {
		t.Fatalf("test setup: local must decode to rank 0, got %d", mapping.RankOf(addr.Physical(local)))
	}
	if mapping.RankOf(addr.Physical(remote)) != 3 {
		t.Fatalf("test setup: remote must decode to rank 3, got %d", mapping.RankOf(addr.Physical(remote)))
	}

	objs := []*snapshot.Object{
		{Address: local, SizeBytes: 32, References: []addr.Virtual{remote}},
		{Address: remote, SizeBytes: 32},
	}
	snap := snapshot.New(snapshot.OpenJDK, objs, []addr.Virtual{local})

	topo := topology.NewLine(4)
	cfg := Config{
		Mapping:       mapping,
		Topology:      topo,
		Snapshot:      snap,
		CacheConfig:   memory.DefaultCacheConfig(memory.FourKB),
		BankTiming:    memory.DefaultDDR4Timing(),
		NumProcessors: 2,
	}
	gc := New(cfg)

	active := gc.Processors()
	if len(active) != 2 {
		t.Fatalf("len(Processors()) = %d, want 2", len(active))
	}
	ranks := map[int]bool{}
	for _, p := range active {
		ranks[p.RankID] = true
	}
	if !ranks[0] || !ranks[3] {
		t.Fatalf("expected processors on ranks {0,3}, got %v", ranks)
	}

	result, err := gc.Run()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ObjectsMarked != 2 {
		t.Fatalf("ObjectsMarked = %d, want 2", result.ObjectsMarked)
	}

	var forwarded int
	for _, c := range gc.Network().Counters() {
		forwarded += c.TotalForwarded
	}
	if forwarded == 0 {
		t.Fatal("expected the rank-0-to-rank-3 message to traverse the network")
	}
}

// TestProcessorCountExceedsRankCountPanics checks the fatal invariant
// of spec section 7 ("processor count exceeds rank count") is enforced
// defensively inside New, matching THE CORE's panic-on-invariant-
// violation error model.
func TestProcessorCountExceedsRankCountPanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic: processor count exceeds rank count")
		}
	}()
	mapping := addr.NewMapping(addr.DefaultGeometry())
	snap := snapshot.New(snapshot.OpenJDK, nil, nil)
	New(Config{
		Mapping:       mapping,
		Topology:      topology.NewLine(4),
		Snapshot:      snap,
		CacheConfig:   memory.DefaultCacheConfig(memory.FourKB),
		BankTiming:    memory.DefaultDDR4Timing(),
		NumProcessors: 9999,
	})
}

func TestIdealTraceUtilizationMatchesReachableCount(t *testing.T) {
	a := addr.Virtual(0x1000)
	b := addr.Virtual(0x2000)
	objs := []*snapshot.Object{
		{Address: a, References: []addr.Virtual{b}},
		{Address: b},
	}
	snap := snapshot.New(snapshot.OpenJDK, objs, []addr.Virtual{a})

	ideal := NewIdealTraceUtilization(snap)
	result, err := ideal.Run()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ObjectsMarked != 2 {
		t.Fatalf("ObjectsMarked = %d, want 2", result.ObjectsMarked)
	}
	if result.Utilization != 1.0 {
		t.Fatalf("Utilization = %v, want 1.0", result.Utilization)
	}
}
