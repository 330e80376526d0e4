package proc

import "github.com/zixian-cai/hwgc-soft/internal/addr"

// WorkQueue is the double-ended work-item queue of spec section 3.
// Mark/Scan/SendMessage/ReadInbox are pushed to the back as newly
// discovered work; Stall is pushed to the front so it re-executes
// before anything already queued (spec section 4.8 step 2).
type WorkQueue struct {
	items []WorkItem
}

func (q *WorkQueue) Empty() bool { return len(q.items) == 0 }

func (q *WorkQueue) Len() int { return len(q.items) }

func (q *WorkQueue) PushBack(w WorkItem) {
	q.items = append(q.items, w)
}

func (q *WorkQueue) PushFront(w WorkItem) {
	q.items = append([]WorkItem{w}, q.items...)
}

// PopFront removes and returns the item at the front of the queue.
func (q *WorkQueue) PopFront() (WorkItem, bool) {
	if len(q.items) == 0 {
		return WorkItem{}, false
	}
	w := q.items[0]
	q.items = q.items[1:]
	return w, true
}

// Inbox is the FIFO message queue of spec section 3: insertion-ordered
// so the determinism guarantee of spec section 5 holds.
type Inbox struct {
	messages []addr.Virtual
}

func (b *Inbox) Empty() bool { return len(b.messages) == 0 }

func (b *Inbox) Len() int { return len(b.messages) }

func (b *Inbox) Push(payload addr.Virtual) {
	b.messages = append(b.messages, payload)
}

// Peek returns the oldest message without removing it.
func (b *Inbox) Peek() (addr.Virtual, bool) {
	if len(b.messages) == 0 {
		return 0, false
	}
	return b.messages[0], true
}

// Pop removes and returns the oldest message.
func (b *Inbox) Pop() (addr.Virtual, bool) {
	if len(b.messages) == 0 {
		return 0, false
	}
	m := b.messages[0]
	b.messages = b.messages[1:]
	return m, true
}
