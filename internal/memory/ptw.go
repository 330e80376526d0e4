package memory

import "github.com/zixian-cai/hwgc-soft/internal/addr"

// PageTableWalker is the dummy radix-tree walker of spec section 4.2.
// Translation is identity (pa.bits == va.bits); only the modeled
// latency depends on page size. Stateless: safe to share across ranks.
type PageTableWalker struct{}

// NewPageTableWalker constructs a stateless walker.
func NewPageTableWalker() PageTableWalker { return PageTableWalker{} }

// Translate performs the identity mapping and reports the walk
// latency for the given page size.
func (PageTableWalker) Translate(va addr.Virtual, pg PageSize) (addr.Physical, int) {
	return addr.Physical(va), pg.ptwLatency()
}
