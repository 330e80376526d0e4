package proc

import (
	"github.com/zixian-cai/hwgc-soft/internal/addr"
	"github.com/zixian-cai/hwgc-soft/internal/memory"
	"github.com/zixian-cai/hwgc-soft/internal/snapshot"
)

// OutgoingMessage is what a SendMessage work item hands back to the
// orchestrator for network injection (spec section 4.8/4.10).
type OutgoingMessage struct {
	TargetRank int
	Payload    addr.Virtual
}

// Processor is the NMPProcessor of spec section 4.8: one per rank,
// owning a data cache, a work queue, an inbox, and a reference to the
// shared heap snapshot.
type Processor struct {
	RankID int

	Cache    *memory.DataCache
	Mapping  addr.Mapping
	Snapshot *snapshot.Snapshot

	Queue WorkQueue
	Inbox Inbox

	// DIMMToRankLatency is the constant local handoff latency
	// (spec section 4.6 default 2) SendMessage and ReadInbox stall
	// for.
	DIMMToRankLatency int

	InstructionsExecuted int
	ObjectsMarked        int
}

// NewProcessor builds a processor for the given rank.
func NewProcessor(rankID int, cache *memory.DataCache, mapping addr.Mapping, snap *snapshot.Snapshot, dimmToRankLatency int) *Processor {
	return &Processor{
		RankID:            rankID,
		Cache:             cache,
		Mapping:           mapping,
		Snapshot:          snap,
		DIMMToRankLatency: dimmToRankLatency,
	}
}

// LocallyDone is the per-processor termination predicate of spec
// section 4.8: work queue empty AND inbox empty.
func (p *Processor) LocallyDone() bool {
	return p.Queue.Empty() && p.Inbox.Empty()
}

// Tick advances the processor by one cycle, per spec section 4.8, and
// returns an outgoing message if a SendMessage was executed this tick.
func (p *Processor) Tick() *OutgoingMessage {
	if p.Queue.Empty() {
		if payload, ok := p.Inbox.Peek(); ok {
			// The payload is peeked, not popped, here: ReadInbox's own
			// execution (spec section 4.9) is what formally dequeues
			// it. See DESIGN.md for why the derived work item is
			// Mark(payload) rather than the literal "Scan" spec
			// section 4.8 names: the referenced object has never been
			// marked by its owning rank, so jumping straight to Scan
			// would skip the mark-bit write and undercount
			// objects_marked.
			p.Queue.PushBack(ReadInbox())
			p.Queue.PushBack(Mark(payload))
			return nil
		}
		// Nothing queued, nothing to derive from the inbox: the
		// processor is quiescent this cycle (spec section 4.8's Idle).
		p.execute(Idle())
		return nil
	}

	item, _ := p.Queue.PopFront()
	latency, outgoing := p.execute(item)

	if item.Kind != KindStall && item.Kind != KindIdle {
		p.InstructionsExecuted++
	}
	if latency > 1 {
		p.Queue.PushFront(Stall(latency - 1))
	}
	return outgoing
}

func (p *Processor) execute(item WorkItem) (latency int, outgoing *OutgoingMessage) {
	switch item.Kind {
	case KindMark:
		return p.executeMark(item), nil

	case KindScan:
		return p.executeScan(item), nil

	case KindSendMessage:
		return p.DIMMToRankLatency, &OutgoingMessage{TargetRank: item.TargetRank, Payload: item.Payload}

	case KindReadInbox:
		p.Inbox.Pop()
		return p.DIMMToRankLatency, nil

	case KindStall:
		if item.Remaining > 0 {
			p.Queue.PushFront(Stall(item.Remaining - 1))
		}
		return 1, nil

	case KindIdle:
		return 1, nil

	default:
		panic("proc: unknown work item kind")
	}
}

// executeMark implements spec section 4.9's Mark: a read of the
// object header is mandatory even when the mark bit is already set
// (idempotent marking still incurs memory traffic, per spec section 3
// and the resolved Open Question in SPEC_FULL.md section 9).
func (p *Processor) executeMark(item WorkItem) int {
	headerAddr := p.Snapshot.HeaderAddress(item.Obj)
	readLatency := p.Cache.Read(headerAddr)

	if p.Snapshot.IsMarked(item.Obj) {
		return readLatency
	}

	writeLatency := p.Cache.Write(headerAddr)
	p.Snapshot.SetMarked(item.Obj)
	p.ObjectsMarked++
	p.Queue.PushBack(Scan(item.Obj, 0))
	return readLatency + writeLatency
}

// executeScan implements spec section 4.9's Scan: fetch one outgoing
// reference, route it locally (Mark) or remotely (SendMessage), and
// continue to the next slot if any remain.
func (p *Processor) executeScan(item WorkItem) int {
	slotAddr := p.Snapshot.SlotAddress(item.Obj, item.SlotIndex)
	readLatency := p.Cache.Read(slotAddr)

	if ref, ok := p.Snapshot.ReferenceSlot(item.Obj, item.SlotIndex); ok {
		if p.Mapping.RankOf(addr.Physical(ref)) == p.RankID {
			p.Queue.PushBack(Mark(ref))
		} else {
			targetRank := p.Mapping.RankOf(addr.Physical(ref))
			p.Queue.PushBack(SendMessage(targetRank, ref))
		}
	}

	if item.SlotIndex+1 < p.Snapshot.NumSlots(item.Obj) {
		p.Queue.PushBack(Scan(item.Obj, item.SlotIndex+1))
	}
	return readLatency
}
