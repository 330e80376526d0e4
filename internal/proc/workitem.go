// Package proc implements the per-rank NMPProcessor and its primitive
// WorkItem operations (spec sections 4.8 and 4.9).
package proc

import "github.com/zixian-cai/hwgc-soft/internal/addr"

// Kind tags a WorkItem's variant (spec section 3: "WorkItem (tagged
// variant)"). Go has no sum types, so the tag plus a flat set of
// payload fields stands in for one, the same way the teacher's
// Operation/Instruction structs carry an opcode plus fixed fields
// rather than a class hierarchy.
type Kind uint8

const (
	KindMark Kind = iota
	KindScan
	KindSendMessage
	KindReadInbox
	KindStall
	KindIdle
)

func (k Kind) String() string {
	switch k {
	case KindMark:
		return "Mark"
	case KindScan:
		return "Scan"
	case KindSendMessage:
		return "SendMessage"
	case KindReadInbox:
		return "ReadInbox"
	case KindStall:
		return "Stall"
	case KindIdle:
		return "Idle"
	default:
		return "unknown"
	}
}

// WorkItem is one primitive operation on a processor's work queue.
// Only the fields relevant to Kind are meaningful.
type WorkItem struct {
	Kind Kind

	Obj       addr.Virtual // Mark, Scan
	SlotIndex int          // Scan

	TargetRank int          // SendMessage
	Payload    addr.Virtual // SendMessage

	Remaining int // Stall
}

func Mark(obj addr.Virtual) WorkItem { return WorkItem{Kind: KindMark, Obj: obj} }

func Scan(obj addr.Virtual, slot int) WorkItem {
	return WorkItem{Kind: KindScan, Obj: obj, SlotIndex: slot}
}

func SendMessage(targetRank int, payload addr.Virtual) WorkItem {
	return WorkItem{Kind: KindSendMessage, TargetRank: targetRank, Payload: payload}
}

func ReadInbox() WorkItem { return WorkItem{Kind: KindReadInbox} }

func Stall(remaining int) WorkItem { return WorkItem{Kind: KindStall, Remaining: remaining} }

func Idle() WorkItem { return WorkItem{Kind: KindIdle} }
