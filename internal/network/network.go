// Package network implements the routed, pipelined inter-DIMM fabric
// of spec section 4.7: multi-hop forwarding with per-directed-link
// flit accounting and no link contention (counters measure demand, they
// never throttle).
package network

import "github.com/zixian-cai/hwgc-soft/internal/topology"

// Message is an application-level payload in flight across the
// network. The GC layer (internal/proc, internal/sim) fills Payload
// with whatever a SendMessage work item carries; the network never
// inspects it.
type Message struct {
	Payload any
}

// InFlightMessage tracks one Message's progress along its route (spec
// section 3).
type InFlightMessage struct {
	Payload            any
	Route              []topology.Link
	Cursor             int
	HopCyclesRemaining int
	Delivered          bool
}

// CurrentLink is the link this message is presently traversing.
func (m *InFlightMessage) CurrentLink() topology.Link {
	return m.Route[m.Cursor]
}

// LinkCounters is the per-directed-link traffic accounting of spec
// section 3.
type LinkCounters struct {
	TotalForwarded   int
	CurrentTickFlits int
	PeakFlitsPerTick int
}

// Network is the inter-DIMM interconnect of spec section 4.7.
type Network struct {
	topo     topology.Topology
	inFlight []*InFlightMessage
	counters map[topology.Link]*LinkCounters
}

// New builds a Network over the given Topology, pre-seeding a
// LinkCounters entry for every directed link the topology exposes so
// the statistics table (spec section 6) can enumerate them even when
// traffic never crosses them.
func New(topo topology.Topology) *Network {
	n := &Network{
		topo:     topo,
		counters: make(map[topology.Link]*LinkCounters),
	}
	for _, l := range topo.Links() {
		n.counters[l] = &LinkCounters{}
	}
	return n
}

// Topology returns the underlying Topology.
func (n *Network) Topology() topology.Topology { return n.topo }

// Inject places a message on the first link of its route (spec
// section 4.7). route must be non-empty: same-DIMM messages bypass
// the network entirely and are the orchestrator's responsibility.
func (n *Network) Inject(payload any, route []topology.Link) {
	if len(route) == 0 {
		panic("network: Inject called with an empty route; same-dimm traffic must bypass the network")
	}
	n.inFlight = append(n.inFlight, &InFlightMessage{
		Payload:            payload,
		Route:              route,
		Cursor:             0,
		HopCyclesRemaining: n.topo.PerHopLatency(),
	})
}

// counterFor returns (creating if necessary) the counters for link l.
func (n *Network) counterFor(l topology.Link) *LinkCounters {
	c, ok := n.counters[l]
	if !ok {
		c = &LinkCounters{}
		n.counters[l] = c
	}
	return c
}

// Tick advances the network by one cycle per spec section 4.7 and
// returns the messages delivered this tick.
func (n *Network) Tick() []*InFlightMessage {
	var delivered []*InFlightMessage
	var stillInFlight []*InFlightMessage

	for _, msg := range n.inFlight {
		if msg.Delivered {
			continue
		}
		msg.HopCyclesRemaining--
		link := msg.CurrentLink()
		n.counterFor(link).CurrentTickFlits++

		if msg.HopCyclesRemaining <= 0 {
			n.counterFor(link).TotalForwarded++
			msg.Cursor++
			if msg.Cursor >= len(msg.Route) {
				msg.Delivered = true
				delivered = append(delivered, msg)
				continue
			}
			msg.HopCyclesRemaining = n.topo.PerHopLatency()
		}
		stillInFlight = append(stillInFlight, msg)
	}
	n.inFlight = stillInFlight

	for _, c := range n.counters {
		if c.CurrentTickFlits > c.PeakFlitsPerTick {
			c.PeakFlitsPerTick = c.CurrentTickFlits
		}
		c.CurrentTickFlits = 0
	}

	return delivered
}

// InFlightCount reports the number of undelivered messages, used by
// the orchestrator's quiescence check (spec section 4.10).
func (n *Network) InFlightCount() int {
	return len(n.inFlight)
}

// Counters returns the per-link counters, keyed by directed link.
func (n *Network) Counters() map[topology.Link]*LinkCounters {
	return n.counters
}

// PeakThroughputGBps converts a link's peak flits-per-tick demand into
// GB/s, per spec section 4.7:
//
//	flitSizeBytes = messageSizeBytes / perHopLatency
//	peakGBps      = peakFlitsPerTick * flitSizeBytes * clockGHz
func (n *Network) PeakThroughputGBps(l topology.Link, messageSizeBytes float64, clockGHz float64) float64 {
	c := n.counterFor(l)
	flitSizeBytes := messageSizeBytes / float64(n.topo.PerHopLatency())
	return float64(c.PeakFlitsPerTick) * flitSizeBytes * clockGHz
}
