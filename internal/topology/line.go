package topology

// Line is the bus-like topology of spec section 4.6: DIMMs sit at
// fixed physical positions and a route simply walks the position
// sequence between source and destination, one hop per intervening
// slot.
type Line struct {
	n       int
	order   []int
	pos     []int
	perHop  int
	dimmHop int
}

// NewLine builds a Line topology over n DIMMs.
func NewLine(n int) *Line {
	order := physicalOrder(n)
	return &Line{
		n:       n,
		order:   order,
		pos:     positionIndex(order),
		perHop:  defaultPerHopLatency,
		dimmHop: defaultDIMMToRankLatency,
	}
}

func (l *Line) NumDIMMs() int          { return l.n }
func (l *Line) PerHopLatency() int     { return l.perHop }
func (l *Line) DIMMToRankLatency() int { return l.dimmHop }

func (l *Line) Route(from, to int) []Link {
	validatePair(l.n, from, to)
	if from == to {
		return nil
	}
	pf, pt := l.pos[from], l.pos[to]
	var links []Link
	if pf < pt {
		for p := pf; p < pt; p++ {
			links = append(links, Link{From: l.order[p], To: l.order[p+1]})
		}
	} else {
		for p := pf; p > pt; p-- {
			links = append(links, Link{From: l.order[p], To: l.order[p-1]})
		}
	}
	return links
}

func (l *Line) Links() []Link {
	var links []Link
	for p := 0; p < l.n-1; p++ {
		links = append(links,
			Link{From: l.order[p], To: l.order[p+1]},
			Link{From: l.order[p+1], To: l.order[p]},
		)
	}
	return links
}
