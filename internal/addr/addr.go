// Package addr implements the MAGC-DIMM physical address mapping: the
// bit-field decomposition of a 64-bit physical address into the DDR4
// geometry (channel, dimm, rank, bank-group, bank, row, column, burst
// offset) described in spec section 4.1, plus the distinct physical/
// virtual address newtypes required by section 3.
//
// HARDWARE CONTEXT:
// ─────────────────
// A real DDR4 channel multiplexes row/column/bank addressing onto a
// handful of command pins; the decomposition below models only the
// address-bit view a memory controller would present to software, not
// the electrical signaling. Field order (low to high) is fixed by
// spec section 4.1: burst offset, column, bank, bank-group, rank,
// dimm, channel, row.
package addr

import "fmt"

// Physical is a DRAM-facing address. DRAM-facing components (DDR4RankModel,
// AddressMapping) accept only Physical addresses.
type Physical uint64

// Virtual is a cache-facing address. DataCache and TLB accept only
// Virtual addresses. Identity mapping (section 4.2) means Virtual and
// Physical carry the same bit pattern, but the two types are never
// interchangeable without going through a translation step, so a
// misrouted address is a compile error rather than a silent bug.
type Virtual uint64

// Geometry holds the bit widths of every field in the address
// decomposition, low to high. The widths must reproduce the DDR4
// geometry contract in spec section 6:
//
//	page_size         = columns * busWidthBytes   (8 KiB)
//	channel_capacity  = ranksPerChannel * rankSize (32 GiB)
type Geometry struct {
	BurstOffsetBits int
	ColumnBits      int
	BankBits        int
	BankGroupBits   int
	RankBits        int
	DIMMBits        int
	ChannelBits     int
	RowBits         int

	// BusWidthBytes is the channel data-bus width in bytes, used only
	// to report PageSize/RankSize/ChannelCapacity; it does not affect
	// decode/encode, which operate purely on bit positions.
	BusWidthBytes int
}

// DefaultGeometry is the geometry used by every CLI-selected topology
// and DRAM backend in this repo: 2 channels x 4 ranks/channel x 2 dimms/
// channel (so a "rank" below a DIMM identifies one of two ranks sharing
// that DIMM's command bus), an 8 KiB row buffer, and an 8 GiB rank.
//
//	page_size        = 1024 columns * 8 bytes/beat = 8192 B  (8 KiB)
//	channel_capacity = 4 ranks * 8 GiB              = 32 GiB
func DefaultGeometry() Geometry {
	return Geometry{
		BurstOffsetBits: 3, // 8 bytes per 64-bit bus beat
		ColumnBits:      10,
		BankBits:        2,
		BankGroupBits:   2,
		RankBits:        1, // 2 ranks per DIMM, 4 ranks per channel
		DIMMBits:        1, // 2 dimms per channel
		ChannelBits:     1, // 2 channels
		RowBits:         16,
		BusWidthBytes:   8,
	}
}

// TotalBits returns the number of address bits consumed by the geometry.
func (g Geometry) TotalBits() int {
	return g.BurstOffsetBits + g.ColumnBits + g.BankBits + g.BankGroupBits +
		g.RankBits + g.DIMMBits + g.ChannelBits + g.RowBits
}

// PageSize is the DRAM row-buffer size in bytes: columns * bus width.
func (g Geometry) PageSize() uint64 {
	return (uint64(1) << uint(g.ColumnBits)) * uint64(g.BusWidthBytes)
}

// RanksPerChannel is the number of distinct (dimm, rank) pairs per channel.
func (g Geometry) RanksPerChannel() uint64 {
	return uint64(1) << uint(g.DIMMBits+g.RankBits)
}

// ChannelCapacity is RanksPerChannel * RankSize, given an explicit rank size.
func (g Geometry) ChannelCapacity(rankSizeBytes uint64) uint64 {
	return g.RanksPerChannel() * rankSizeBytes
}

// Fields is the decomposition of a physical address produced by Decode
// and consumed by Encode. Encode(Decode(pa)) == pa for every pa that
// fits within g.TotalBits() (round-trip invariant, spec section 8).
type Fields struct {
	BurstOffset uint64
	Column      uint64
	Bank        uint64
	BankGroup   uint64
	Rank        uint64
	DIMM        uint64
	Channel     uint64
	Row         uint64
}

// Mapping is the AddressMapping of spec section 4.1: a pure, infallible
// bit-field decoder/encoder over a fixed Geometry.
type Mapping struct {
	g Geometry

	burstShift int
	colShift   int
	bankShift  int
	bgShift    int
	rankShift  int
	dimmShift  int
	chanShift  int
	rowShift   int
}

// NewMapping builds a Mapping for the given Geometry, precomputing the
// shift amount for each field from the low-to-high bit order.
func NewMapping(g Geometry) Mapping {
	shift := 0
	m := Mapping{g: g}
	m.burstShift = shift
	shift += g.BurstOffsetBits
	m.colShift = shift
	shift += g.ColumnBits
	m.bankShift = shift
	shift += g.BankBits
	m.bgShift = shift
	shift += g.BankGroupBits
	m.rankShift = shift
	shift += g.RankBits
	m.dimmShift = shift
	shift += g.DIMMBits
	m.chanShift = shift
	shift += g.ChannelBits
	m.rowShift = shift
	return m
}

// Geometry returns the geometry this mapping was built from.
func (m Mapping) Geometry() Geometry { return m.g }

func mask(bits int) uint64 {
	if bits >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << uint(bits)) - 1
}

// Decode splits a physical address into its constituent fields. Pure
// and infallible: every uint64 bit pattern decodes to some Fields
// value (bits above g.TotalBits() are simply ignored, matching a
// memory controller that only ever receives addresses within its
// configured capacity).
func (m Mapping) Decode(pa Physical) Fields {
	v := uint64(pa)
	return Fields{
		BurstOffset: (v >> uint(m.burstShift)) & mask(m.g.BurstOffsetBits),
		Column:      (v >> uint(m.colShift)) & mask(m.g.ColumnBits),
		Bank:        (v >> uint(m.bankShift)) & mask(m.g.BankBits),
		BankGroup:   (v >> uint(m.bgShift)) & mask(m.g.BankGroupBits),
		Rank:        (v >> uint(m.rankShift)) & mask(m.g.RankBits),
		DIMM:        (v >> uint(m.dimmShift)) & mask(m.g.DIMMBits),
		Channel:     (v >> uint(m.chanShift)) & mask(m.g.ChannelBits),
		Row:         (v >> uint(m.rowShift)) & mask(m.g.RowBits),
	}
}

// Encode reassembles a physical address from its fields. Encode(Decode(pa))
// == pa for any pa whose bits above TotalBits() are zero.
func (m Mapping) Encode(f Fields) Physical {
	v := (f.BurstOffset & mask(m.g.BurstOffsetBits)) << uint(m.burstShift)
	v |= (f.Column & mask(m.g.ColumnBits)) << uint(m.colShift)
	v |= (f.Bank & mask(m.g.BankBits)) << uint(m.bankShift)
	v |= (f.BankGroup & mask(m.g.BankGroupBits)) << uint(m.bgShift)
	v |= (f.Rank & mask(m.g.RankBits)) << uint(m.rankShift)
	v |= (f.DIMM & mask(m.g.DIMMBits)) << uint(m.dimmShift)
	v |= (f.Channel & mask(m.g.ChannelBits)) << uint(m.chanShift)
	v |= (f.Row & mask(m.g.RowBits)) << uint(m.rowShift)
	return Physical(v)
}

// GlobalRank returns a single integer identifying the (channel, dimm,
// rank) triple an address belongs to, in the canonical order channel
// outermost, matching how NMPGC enumerates its P processors.
//
// NMPProcessor rank IDs in the orchestrator are exactly these
// GlobalRank values: the invariant "every physical address passed to
// rank k decodes back to rank k" (spec section 3) is the statement
// that GlobalRank(Decode(pa)) == k for every pa routed to processor k.
func (m Mapping) GlobalRank(f Fields) int {
	ranksPerDIMM := uint64(1) << uint(m.g.RankBits)
	dimmsPerChannel := uint64(1) << uint(m.g.DIMMBits)
	dimmGlobal := f.Channel*dimmsPerChannel + f.DIMM
	return int(dimmGlobal*ranksPerDIMM + f.Rank)
}

// GlobalDIMM returns a single integer identifying the (channel, dimm)
// pair an address's home DIMM -- this is the unit the interconnect
// Topology routes between (spec section 4.6).
func (m Mapping) GlobalDIMM(f Fields) int {
	dimmsPerChannel := uint64(1) << uint(m.g.DIMMBits)
	return int(f.Channel*dimmsPerChannel + f.DIMM)
}

// RankOf is a convenience wrapper: Decode then GlobalRank.
func (m Mapping) RankOf(pa Physical) int {
	return m.GlobalRank(m.Decode(pa))
}

// DIMMOf is a convenience wrapper: Decode then GlobalDIMM.
func (m Mapping) DIMMOf(pa Physical) int {
	return m.GlobalDIMM(m.Decode(pa))
}

// String renders a Geometry the way a startup-time configuration dump
// does (spec section 6/7: "printing both sides' computed geometry and
// bit-field layout" on a DDR4 geometry mismatch).
func (g Geometry) String() string {
	return fmt.Sprintf(
		"geometry{burst=%d col=%d bank=%d bg=%d rank=%d dimm=%d chan=%d row=%d page_size=%dB ranks/chan=%d}",
		g.BurstOffsetBits, g.ColumnBits, g.BankBits, g.BankGroupBits,
		g.RankBits, g.DIMMBits, g.ChannelBits, g.RowBits,
		g.PageSize(), g.RanksPerChannel(),
	)
}
