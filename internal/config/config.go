// Package config validates and loads the CLI's run configuration
// (spec section 6's flag surface), including the YAML-declared DRAM
// geometry an operator supplies via --use-dramsim3 and the DDR4
// geometry contract check of spec section 7.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/zixian-cai/hwgc-soft/internal/addr"
	"github.com/zixian-cai/hwgc-soft/internal/memory"
	"github.com/zixian-cai/hwgc-soft/internal/snapshot"
)

// ConfigError reports a user-facing configuration problem: invalid
// flag combinations, an unreadable file, a geometry mismatch. THE CORE
// itself still panics on runtime invariant violations (spec section
// 7); ConfigError is reserved for mistakes a user made before the run
// even starts.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return e.Msg }

// Topology names the interconnect layout flag value.
type Topology string

const (
	TopologyLine           Topology = "line"
	TopologyRing           Topology = "ring"
	TopologyFullyConnected Topology = "fully-connected"
)

// Algorithm names the -a flag value (spec section 6).
type Algorithm string

const (
	AlgorithmNMPGC                 Algorithm = "NMPGC"
	AlgorithmIdealTraceUtilization Algorithm = "IdealTraceUtilization"
)

// Config is the fully-parsed, validated run configuration for one
// simulate invocation.
type Config struct {
	SnapshotPaths []string

	ObjectModel snapshot.ObjectModel
	NumDIMMs    int
	Topology    Topology
	Algorithm   Algorithm
	PageSize    memory.PageSize

	// NumProcessors is P (spec section 4.10's -p flag): the number of
	// processors to populate, independent of NumDIMMs/Topology sizing.
	// Zero means "one processor per rank," the historical default.
	// Must not exceed the rank count the topology/geometry imply; that
	// check needs the built topology and mapping, so it happens in
	// cmd/magcsim after Validate, not here.
	NumProcessors int

	// UseDRAMSim3Path, when non-empty, selects the DRAMSim3Adaptor
	// backend and names the YAML file declaring its geometry (spec
	// section 6's --use-dramsim3 <config>).
	UseDRAMSim3Path string

	RootsByHomeRank bool
	VerboseStats    bool
	ClockGHz        float64
}

// Validate checks the flag combination is internally consistent,
// returning a *ConfigError describing the first problem found.
func (c Config) Validate() error {
	if len(c.SnapshotPaths) == 0 {
		return &ConfigError{Msg: "at least one snapshot file path is required"}
	}
	switch c.Topology {
	case TopologyLine, TopologyRing, TopologyFullyConnected:
	default:
		return &ConfigError{Msg: fmt.Sprintf("unknown --topology %q: want line, ring, or fully-connected", c.Topology)}
	}
	switch c.Algorithm {
	case AlgorithmNMPGC, AlgorithmIdealTraceUtilization:
	default:
		return &ConfigError{Msg: fmt.Sprintf("unknown -a %q: want NMPGC or IdealTraceUtilization", c.Algorithm)}
	}
	if c.NumDIMMs < 2 {
		return &ConfigError{Msg: fmt.Sprintf("--dimms must be at least 2, got %d", c.NumDIMMs)}
	}
	if c.NumDIMMs&(c.NumDIMMs-1) != 0 {
		return &ConfigError{Msg: fmt.Sprintf("--dimms must be a power of two, got %d", c.NumDIMMs)}
	}
	if c.NumProcessors < 0 {
		return &ConfigError{Msg: fmt.Sprintf("-p (processor count) must not be negative, got %d", c.NumProcessors)}
	}
	if c.ClockGHz <= 0 {
		return &ConfigError{Msg: fmt.Sprintf("clock rate must be positive, got %v GHz", c.ClockGHz)}
	}
	return nil
}

// dramsim3File is the YAML shape a --use-dramsim3 file declares.
type dramsim3File struct {
	Geometry struct {
		BurstOffsetBits int `yaml:"burst_offset_bits"`
		ColumnBits      int `yaml:"column_bits"`
		BankBits        int `yaml:"bank_bits"`
		BankGroupBits   int `yaml:"bank_group_bits"`
		RankBits        int `yaml:"rank_bits"`
		DIMMBits        int `yaml:"dimm_bits"`
		ChannelBits     int `yaml:"channel_bits"`
		RowBits         int `yaml:"row_bits"`
		BusWidthBytes   int `yaml:"bus_width_bytes"`
	} `yaml:"geometry"`
}

// LoadDRAMSim3Geometry reads the geometry declared by a --use-dramsim3
// config file.
func LoadDRAMSim3Geometry(path string) (addr.Geometry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return addr.Geometry{}, &ConfigError{Msg: fmt.Sprintf("reading --use-dramsim3 config %s: %v", path, err)}
	}
	var f dramsim3File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return addr.Geometry{}, &ConfigError{Msg: fmt.Sprintf("parsing --use-dramsim3 config %s: %v", path, err)}
	}
	return addr.Geometry{
		BurstOffsetBits: f.Geometry.BurstOffsetBits,
		ColumnBits:      f.Geometry.ColumnBits,
		BankBits:        f.Geometry.BankBits,
		BankGroupBits:   f.Geometry.BankGroupBits,
		RankBits:        f.Geometry.RankBits,
		DIMMBits:        f.Geometry.DIMMBits,
		ChannelBits:     f.Geometry.ChannelBits,
		RowBits:         f.Geometry.RowBits,
		BusWidthBytes:   f.Geometry.BusWidthBytes,
	}, nil
}

// CheckGeometryContract compares THE CORE's computed AddressMapping
// geometry against the geometry an external DRAM config declares (spec
// section 6/7): a mismatch is fatal and must print both geometries
// field-by-field.
func CheckGeometryContract(computed, declared addr.Geometry) error {
	if computed == declared {
		return nil
	}
	return &ConfigError{Msg: fmt.Sprintf(
		"DDR4 geometry mismatch: computed %s, declared %s", computed, declared,
	)}
}
