package topology

// Ring is the Line physical layout plus a wrap-around link closing
// position n-1 back to position 0 (spec section 4.6: "same order,
// with wrap link 3->0"). For equidistant source/destination pairs
// (clockwise distance == counter-clockwise distance), direction is
// chosen deterministically by the parity of the source's physical
// position: even -> clockwise, odd -> counter-clockwise. This is
// exactly the tie-break spec section 4.6 and the worked example in
// section 8 (ring, 0<->1) specify.
type Ring struct {
	n       int
	order   []int
	pos     []int
	perHop  int
	dimmHop int
}

// NewRing builds a Ring topology over n DIMMs.
func NewRing(n int) *Ring {
	order := physicalOrder(n)
	return &Ring{
		n:       n,
		order:   order,
		pos:     positionIndex(order),
		perHop:  defaultPerHopLatency,
		dimmHop: defaultDIMMToRankLatency,
	}
}

func (r *Ring) NumDIMMs() int          { return r.n }
func (r *Ring) PerHopLatency() int     { return r.perHop }
func (r *Ring) DIMMToRankLatency() int { return r.dimmHop }

// clockwise walks positions in increasing order, wrapping n-1 -> 0.
func (r *Ring) clockwise(pf, pt int) []Link {
	var links []Link
	for p := pf; p != pt; p = (p + 1) % r.n {
		next := (p + 1) % r.n
		links = append(links, Link{From: r.order[p], To: r.order[next]})
	}
	return links
}

// counterClockwise walks positions in decreasing order, wrapping 0 -> n-1.
func (r *Ring) counterClockwise(pf, pt int) []Link {
	var links []Link
	for p := pf; p != pt; p = (p - 1 + r.n) % r.n {
		prev := (p - 1 + r.n) % r.n
		links = append(links, Link{From: r.order[p], To: r.order[prev]})
	}
	return links
}

func (r *Ring) Route(from, to int) []Link {
	validatePair(r.n, from, to)
	if from == to {
		return nil
	}
	pf, pt := r.pos[from], r.pos[to]

	cwDist := (pt - pf + r.n) % r.n
	ccwDist := (pf - pt + r.n) % r.n

	switch {
	case cwDist < ccwDist:
		return r.clockwise(pf, pt)
	case ccwDist < cwDist:
		return r.counterClockwise(pf, pt)
	default:
		// Equidistant: break the tie by parity of the source's
		// physical position.
		if pf%2 == 0 {
			return r.clockwise(pf, pt)
		}
		return r.counterClockwise(pf, pt)
	}
}

func (r *Ring) Links() []Link {
	var links []Link
	for p := 0; p < r.n; p++ {
		next := (p + 1) % r.n
		links = append(links,
			Link{From: r.order[p], To: r.order[next]},
			Link{From: r.order[next], To: r.order[p]},
		)
	}
	return links
}
