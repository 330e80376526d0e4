package topology

import "testing"

func linksEqual(a, b []Link) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// TestLineRouteLength mirrors the worked scenario in spec section 8:
// Line topology [0,2,1,3], route from rank 0 to rank 3 has length 3.
func TestLineRouteLength(t *testing.T) {
	line := NewLine(4)
	route := line.Route(0, 3)
	if len(route) != 3 {
		t.Fatalf("route(0,3) length = %d, want 3 (route=%v)", len(route), route)
	}
	want := []Link{{0, 2}, {2, 1}, {1, 3}}
	if !linksEqual(route, want) {
		t.Fatalf("route(0,3) = %v, want %v", route, want)
	}
}

func TestLineSameDIMMIsEmpty(t *testing.T) {
	line := NewLine(4)
	if route := line.Route(2, 2); route != nil {
		t.Fatalf("same-dimm route should be empty, got %v", route)
	}
}

// TestRouteLengthLaw is the legacy-latency law of spec section 8:
// len(route) * per_hop_latency + 2*dimm_to_rank_latency must equal
// the scenario's end-to-end latency (16 cycles for rank 0 -> rank 3).
func TestRouteLengthLaw(t *testing.T) {
	line := NewLine(4)
	route := line.Route(0, 3)
	got := len(route)*line.PerHopLatency() + 2*line.DIMMToRankLatency()
	want := 16
	if got != want {
		t.Fatalf("route-length law: got %d, want %d", got, want)
	}
}

// TestRingEquidistantParityTieBreak mirrors spec section 8 scenario 3
// exactly: ring [0,2,1,3,wrap->0], 0<->1 is equidistant both ways;
// direction from 0 is clockwise (links (0,2),(2,1)), and direction
// from 1 is also clockwise by its own position parity (links
// (1,3),(3,0)).
func TestRingEquidistantParityTieBreak(t *testing.T) {
	ring := NewRing(4)

	got01 := ring.Route(0, 1)
	want01 := []Link{{0, 2}, {2, 1}}
	if !linksEqual(got01, want01) {
		t.Fatalf("route(0,1) = %v, want %v", got01, want01)
	}

	got10 := ring.Route(1, 0)
	want10 := []Link{{1, 3}, {3, 0}}
	if !linksEqual(got10, want10) {
		t.Fatalf("route(1,0) = %v, want %v", got10, want10)
	}
}

func TestRingWrapLink(t *testing.T) {
	ring := NewRing(4)
	found := false
	for _, l := range ring.Links() {
		if l.From == 3 && l.To == 0 {
			found = true
		}
	}
	if !found {
		t.Fatal("expected wrap link 3->0 in ring topology")
	}
}

func TestFullyConnectedSingleHop(t *testing.T) {
	fc := NewFullyConnected(4)
	route := fc.Route(0, 3)
	if len(route) != 1 || route[0] != (Link{From: 0, To: 3}) {
		t.Fatalf("fully-connected route(0,3) = %v, want single link {0,3}", route)
	}
}

func TestFullyConnectedLinkCount(t *testing.T) {
	fc := NewFullyConnected(4)
	links := fc.Links()
	if len(links) != 4*3 {
		t.Fatalf("fully-connected over 4 dimms should have 12 directed links, got %d", len(links))
	}
}

func TestPhysicalOrderGeneralization(t *testing.T) {
	order := physicalOrder(8)
	want := []int{0, 2, 4, 6, 1, 3, 5, 7}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("physicalOrder(8) = %v, want %v", order, want)
		}
	}
}
