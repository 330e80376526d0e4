package sim

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/zixian-cai/hwgc-soft/internal/addr"
	"github.com/zixian-cai/hwgc-soft/internal/memory"
	"github.com/zixian-cai/hwgc-soft/internal/network"
	"github.com/zixian-cai/hwgc-soft/internal/proc"
	"github.com/zixian-cai/hwgc-soft/internal/snapshot"
	"github.com/zixian-cai/hwgc-soft/internal/topology"
)

// maxTicks bounds a run: a real implementation bug (a cycle never
// draining a queue) would otherwise spin forever. Not a spec concept,
// just a runaway-loop backstop.
const maxTicks = 50_000_000

// Config assembles everything NMPGC needs to run one snapshot.
type Config struct {
	Mapping     addr.Mapping
	Topology    topology.Topology
	Snapshot    *snapshot.Snapshot
	CacheConfig memory.CacheConfig
	BankTiming  memory.BankTiming
	UseDRAMSim3 bool

	// NumProcessors is P, the user-supplied processor count of spec
	// section 4.10 ("create P processors, P = user argument, must be
	// <= total ranks"). Zero means "populate every rank," the
	// historical one-processor-per-rank default.
	NumProcessors int

	// RootsByHomeRank distributes each root to the processor owning
	// its address instead of seeding every root onto processor 0 (the
	// resolved Open Question of spec.md section 9 / SPEC_FULL.md
	// section 9).
	RootsByHomeRank bool

	Logger *logrus.Logger
}

// routedPayload is the network.Message.Payload wrapper NMPGC injects:
// the network only knows about routes between DIMMs, so the owning
// rank on the destination DIMM has to travel alongside the address.
type routedPayload struct {
	TargetRank int
	Addr       addr.Virtual
}

// localDelivery models the last-mile hop for a message whose source
// and destination rank share a DIMM: it never touches the Topology or
// Network (same-DIMM routes are empty by construction), but still
// costs the DIMM-to-rank handoff latency on arrival.
type localDelivery struct {
	targetRank      int
	payload         addr.Virtual
	cyclesRemaining int
}

// NMPGC is THE CORE's orchestrator (spec section 4.10).
type NMPGC struct {
	cfg          Config
	mapping      addr.Mapping
	topo         topology.Topology
	net          *network.Network
	snap         *snapshot.Snapshot
	processors   []*proc.Processor // sparse: nil at ranks with no processor
	numActive    int
	ranksPerDIMM int
	pendingLocal []*localDelivery
	tick         int
	log          *logrus.Entry
}

// selectRanks picks which of [0, totalRanks) ranks get a processor,
// given P = numProcessors (spec section 4.10). numProcessors <= 0 or
// >= totalRanks populates every rank. Otherwise ranks are spread
// evenly across the full rank space: this is the only placement that
// reproduces spec section 8 scenario 2 exactly ("two processors on
// opposite ranks 0 and 3" out of 4 ranks).
func selectRanks(numProcessors, totalRanks int) []int {
	if numProcessors <= 0 || numProcessors >= totalRanks {
		ranks := make([]int, totalRanks)
		for i := range ranks {
			ranks[i] = i
		}
		return ranks
	}
	if numProcessors == 1 {
		return []int{0}
	}
	ranks := make([]int, numProcessors)
	for i := 0; i < numProcessors; i++ {
		ranks[i] = i * (totalRanks - 1) / (numProcessors - 1)
	}
	return ranks
}

// New builds an NMPGC: P processors spread across the rank space
// (spec section 4.10), wired to a shared Network built over
// cfg.Topology. cfg.NumProcessors exceeding the total rank count is
// the "processor count exceeds rank count" fatal condition of spec
// section 7; callers are expected to have already rejected that
// combination at configuration time, so New treats it as an
// implementation bug rather than a user-facing error.
func New(cfg Config) *NMPGC {
	log := cfg.Logger
	if log == nil {
		log = logrus.New()
	}

	geom := cfg.Mapping.Geometry()
	ranksPerDIMM := 1 << uint(geom.RankBits)
	numDIMMs := cfg.Topology.NumDIMMs()
	numRanks := numDIMMs * ranksPerDIMM

	if cfg.NumProcessors > numRanks {
		panic(fmt.Sprintf("sim: processor count %d exceeds rank count %d", cfg.NumProcessors, numRanks))
	}

	net := network.New(cfg.Topology)
	activeRanks := selectRanks(cfg.NumProcessors, numRanks)

	processors := make([]*proc.Processor, numRanks)
	for _, rank := range activeRanks {
		var ram memory.RankModel
		if cfg.UseDRAMSim3 {
			ram = memory.NewDRAMSim3Adaptor(memory.NewReferenceDRAMSim3(cfg.Mapping, cfg.BankTiming))
		} else {
			ram = memory.NewNaiveDRAM(cfg.Mapping, cfg.BankTiming)
		}
		cache := memory.NewDataCache(cfg.CacheConfig, ram)
		processors[rank] = proc.NewProcessor(rank, cache, cfg.Mapping, cfg.Snapshot, cfg.Topology.DIMMToRankLatency())
	}

	return &NMPGC{
		cfg:          cfg,
		mapping:      cfg.Mapping,
		topo:         cfg.Topology,
		net:          net,
		snap:         cfg.Snapshot,
		processors:   processors,
		numActive:    len(activeRanks),
		ranksPerDIMM: ranksPerDIMM,
		log:          log.WithField("component", "nmpgc"),
	}
}

// Processors exposes the active processors for statistics reporting.
func (g *NMPGC) Processors() []*proc.Processor {
	active := make([]*proc.Processor, 0, g.numActive)
	for _, p := range g.processors {
		if p != nil {
			active = append(active, p)
		}
	}
	return active
}

// processorAt returns the processor owning rank, or panics: a message
// routed to a rank with no processor is the "physical address decoding
// to a foreign rank" runtime invariant violation of spec section 7.
func (g *NMPGC) processorAt(rank int) *proc.Processor {
	p := g.processors[rank]
	if p == nil {
		panic(fmt.Sprintf("sim: address routed to rank %d, which has no active processor (%d of %d ranks populated)", rank, g.numActive, len(g.processors)))
	}
	return p
}

// Network exposes the interconnect for statistics reporting.
func (g *NMPGC) Network() *network.Network { return g.net }

// Ticks reports the number of global cycles the most recent Run took.
func (g *NMPGC) Ticks() int { return g.tick }

func (g *NMPGC) dimmOfRank(rank int) int { return rank / g.ranksPerDIMM }

// seedRoots pushes the root set's Mark work items onto the appropriate
// processors' queues (spec section 4.8's initial condition).
func (g *NMPGC) seedRoots() {
	for _, root := range g.snap.Roots() {
		rank := 0
		if g.cfg.RootsByHomeRank {
			rank = g.mapping.RankOf(addr.Physical(root))
		}
		g.processorAt(rank).Queue.PushBack(proc.Mark(root))
	}
}

// route dispatches one SendMessage outcome: same-DIMM traffic bypasses
// the Network and incurs only the local handoff latency; cross-DIMM
// traffic is routed via Topology and injected into the Network.
func (g *NMPGC) route(sourceRank int, msg *proc.OutgoingMessage) {
	fromDIMM := g.dimmOfRank(sourceRank)
	toDIMM := g.dimmOfRank(msg.TargetRank)

	if fromDIMM == toDIMM {
		g.pendingLocal = append(g.pendingLocal, &localDelivery{
			targetRank:      msg.TargetRank,
			payload:         msg.Payload,
			cyclesRemaining: g.topo.DIMMToRankLatency(),
		})
		return
	}

	route := g.topo.Route(fromDIMM, toDIMM)
	g.net.Inject(routedPayload{TargetRank: msg.TargetRank, Addr: msg.Payload}, route)
}

func (g *NMPGC) advanceLocalDeliveries() {
	var still []*localDelivery
	for _, d := range g.pendingLocal {
		d.cyclesRemaining--
		if d.cyclesRemaining <= 0 {
			g.processorAt(d.targetRank).Inbox.Push(d.payload)
			continue
		}
		still = append(still, d)
	}
	g.pendingLocal = still
}

// quiescent is the global termination predicate of spec section 4.10:
// every processor locally done, nothing in flight on the network, and
// nothing pending in the same-DIMM delivery path.
func (g *NMPGC) quiescent() bool {
	if len(g.pendingLocal) > 0 || g.net.InFlightCount() > 0 {
		return false
	}
	for _, p := range g.processors {
		if p != nil && !p.LocallyDone() {
			return false
		}
	}
	return true
}

// step advances the whole system by one global cycle, in the strict
// order spec section 4.10 specifies: processors tick in ascending rank
// order, their outgoing messages are routed, in-flight traffic
// advances, and arrivals land in the destination's inbox.
func (g *NMPGC) step() {
	for rank, p := range g.processors {
		if p == nil {
			continue
		}
		if msg := p.Tick(); msg != nil {
			g.route(rank, msg)
		}
	}
	g.advanceLocalDeliveries()
	for _, delivered := range g.net.Tick() {
		rp := delivered.Payload.(routedPayload)
		g.processorAt(rp.TargetRank).Inbox.Push(rp.Addr)
	}
	g.tick++
}

// Run executes the orchestrator to quiescence (spec section 4.10).
func (g *NMPGC) Run() (Result, error) {
	g.seedRoots()
	for !g.quiescent() {
		if g.tick >= maxTicks {
			return Result{}, fmt.Errorf("sim: nmpgc did not reach quiescence within %d ticks", maxTicks)
		}
		g.step()
	}
	return g.result(), nil
}

func (g *NMPGC) result() Result {
	marked := 0
	executed := 0
	for _, p := range g.processors {
		if p == nil {
			continue
		}
		marked += p.ObjectsMarked
		executed += p.InstructionsExecuted
	}
	utilization := 0.0
	if g.tick > 0 && g.numActive > 0 {
		utilization = float64(executed) / float64(g.tick*g.numActive)
	}
	return Result{
		Ticks:         g.tick,
		ObjectsMarked: marked,
		Utilization:   utilization,
	}
}
