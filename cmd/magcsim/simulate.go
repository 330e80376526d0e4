package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zixian-cai/hwgc-soft/internal/addr"
	"github.com/zixian-cai/hwgc-soft/internal/config"
	"github.com/zixian-cai/hwgc-soft/internal/memory"
	"github.com/zixian-cai/hwgc-soft/internal/sim"
	"github.com/zixian-cai/hwgc-soft/internal/snapshot"
	"github.com/zixian-cai/hwgc-soft/internal/stats"
	"github.com/zixian-cai/hwgc-soft/internal/topology"
)

func runSimulate(cmd *cobra.Command, snapshotPaths []string, flags *simulateFlags) error {
	log := newLogger(flags.logLevel)

	cfg := config.Config{
		SnapshotPaths:   snapshotPaths,
		NumDIMMs:        flags.numDIMMs,
		NumProcessors:   flags.numProcessors,
		Topology:        config.Topology(flags.topologyName),
		Algorithm:       config.Algorithm(flags.algorithm),
		UseDRAMSim3Path: flags.useDRAMSim3,
		RootsByHomeRank: flags.rootsByHomeRank,
		VerboseStats:    flags.verboseStats,
		ClockGHz:        flags.clockGHz,
	}
	objectModel, ok := snapshot.ParseObjectModel(flags.objectModel)
	if !ok {
		return &config.ConfigError{Msg: fmt.Sprintf("unknown --object-model %q", flags.objectModel)}
	}
	cfg.ObjectModel = objectModel

	pageSize, ok := parsePageSize(flags.pageSize)
	if !ok {
		return &config.ConfigError{Msg: fmt.Sprintf("unknown --page-size %q", flags.pageSize)}
	}
	cfg.PageSize = pageSize

	if err := cfg.Validate(); err != nil {
		return err
	}

	mapping := addr.NewMapping(addr.DefaultGeometry())
	if cfg.UseDRAMSim3Path != "" {
		declared, err := config.LoadDRAMSim3Geometry(cfg.UseDRAMSim3Path)
		if err != nil {
			return err
		}
		if err := config.CheckGeometryContract(mapping.Geometry(), declared); err != nil {
			return err
		}
	}

	geom := mapping.Geometry()
	if derived := 1 << uint(geom.ChannelBits+geom.DIMMBits); cfg.NumDIMMs != derived {
		return &config.ConfigError{Msg: fmt.Sprintf(
			"--dimms %d does not match the %d DIMMs addressable by the configured DDR4 geometry (%s)",
			cfg.NumDIMMs, derived, geom)}
	}

	topo, err := buildTopology(cfg.Topology, cfg.NumDIMMs)
	if err != nil {
		return err
	}

	// "Processor count exceeds rank count" is a fatal startup check
	// (spec section 7), distinct from THE CORE's own runtime-invariant
	// panics: it's a user-facing flag-combination mistake, caught here
	// before the orchestrator is ever constructed.
	totalRanks := topo.NumDIMMs() * (1 << uint(geom.RankBits))
	if cfg.NumProcessors > totalRanks {
		return &config.ConfigError{Msg: fmt.Sprintf(
			"-p %d exceeds the %d ranks available (%d DIMMs x %d ranks/DIMM)",
			cfg.NumProcessors, totalRanks, cfg.NumDIMMs, 1<<uint(geom.RankBits))}
	}

	// Spec section 5: multiple snapshots run strictly sequentially,
	// never concurrently, so each run's statistics stay independent.
	for _, path := range cfg.SnapshotPaths {
		if err := runOne(cmd, log, cfg, mapping, topo, pageSize, path); err != nil {
			return err
		}
	}
	return nil
}

func runOne(cmd *cobra.Command, log *logrus.Logger, cfg config.Config, mapping addr.Mapping, topo topology.Topology, pageSize memory.PageSize, path string) error {
	entry := log.WithField("snapshot", path)
	entry.Info("loading snapshot")

	snap, err := snapshot.Load(path, cfg.ObjectModel)
	if err != nil {
		return err
	}
	entry.WithField("objects", snap.NumObjects()).Info("snapshot loaded")

	var result sim.Result
	var report stats.Report

	switch cfg.Algorithm {
	case config.AlgorithmIdealTraceUtilization:
		result, err = sim.NewIdealTraceUtilization(snap).Run()
		if err != nil {
			return err
		}
		report = stats.Report{Ticks: result.Ticks, Utilization: result.Utilization, ObjectsMarked: result.ObjectsMarked}

	default:
		gc := sim.New(sim.Config{
			Mapping:         mapping,
			Topology:        topo,
			Snapshot:        snap,
			CacheConfig:     memory.DefaultCacheConfig(pageSize),
			BankTiming:      memory.DefaultDDR4Timing(),
			UseDRAMSim3:     cfg.UseDRAMSim3Path != "",
			NumProcessors:   cfg.NumProcessors,
			RootsByHomeRank: cfg.RootsByHomeRank,
			Logger:          log,
		})
		result, err = gc.Run()
		if err != nil {
			return err
		}
		report = stats.Collect(result, gc, cfg.ClockGHz)
	}

	fmt.Fprintln(cmd.OutOrStdout(), stats.Render(report))
	return nil
}

func buildTopology(name config.Topology, numDIMMs int) (topology.Topology, error) {
	switch name {
	case config.TopologyLine:
		return topology.NewLine(numDIMMs), nil
	case config.TopologyRing:
		return topology.NewRing(numDIMMs), nil
	case config.TopologyFullyConnected:
		return topology.NewFullyConnected(numDIMMs), nil
	default:
		return nil, &config.ConfigError{Msg: fmt.Sprintf("unknown --topology %q", name)}
	}
}

func parsePageSize(s string) (memory.PageSize, bool) {
	switch s {
	case "4KB":
		return memory.FourKB, true
	case "2MB":
		return memory.TwoMB, true
	case "4MB":
		return memory.FourMB, true
	case "1GB":
		return memory.OneGB, true
	default:
		return 0, false
	}
}

func newLogger(level string) *logrus.Logger {
	log := logrus.New()
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return log
}
