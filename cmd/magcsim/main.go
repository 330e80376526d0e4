// Command magcsim runs the MAGC-DIMM near-memory-processing mark-phase
// simulator against one or more captured heap snapshots.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zixian-cai/hwgc-soft/internal/config"
)

var version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "magcsim",
		Short:         "MAGC-DIMM near-memory-processing GC trace simulator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newSimulateCommand())
	root.AddCommand(newVersionCommand())
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the magcsim version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), version)
			return nil
		},
	}
}

type simulateFlags struct {
	objectModel     string
	numDIMMs        int
	numProcessors   int
	algorithm       string
	useDRAMSim3     string
	topologyName    string
	pageSize        string
	rootsByHomeRank bool
	verboseStats    bool
	clockGHz        float64
	logLevel        string
}

func newSimulateCommand() *cobra.Command {
	flags := &simulateFlags{}
	cmd := &cobra.Command{
		Use:   "simulate <snapshot> [snapshot...]",
		Short: "Run the mark phase over one or more heap snapshots",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(cmd, args, flags)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.objectModel, "object-model", "OpenJDK", "object header layout: OpenJDK or Bidirectional")
	f.IntVar(&flags.numDIMMs, "dimms", 4, "number of DIMMs to simulate (power of two)")
	f.IntVarP(&flags.numProcessors, "processors", "p", 0, "number of processors P, 1 <= P <= total ranks (default: one processor per rank)")
	f.StringVarP(&flags.algorithm, "algorithm", "a", string(config.AlgorithmNMPGC), "NMPGC or IdealTraceUtilization")
	f.StringVar(&flags.useDRAMSim3, "use-dramsim3", "", "path to a YAML file declaring an external DRAM model's geometry")
	f.StringVar(&flags.topologyName, "topology", string(config.TopologyLine), "line, ring, or fully-connected")
	f.StringVar(&flags.pageSize, "page-size", "4MB", "4KB, 2MB, 4MB, or 1GB")
	f.BoolVar(&flags.rootsByHomeRank, "roots-by-home-rank", false, "seed each root onto the processor owning its address instead of processor 0")
	f.BoolVar(&flags.verboseStats, "verbose-stats", false, "has no effect: the per-link throughput distribution summary is always printed")
	f.Float64Var(&flags.clockGHz, "clock-ghz", 3.2, "controller clock rate used to convert flit counts to GB/s")
	f.StringVar(&flags.logLevel, "log-level", "info", "logrus level: debug, info, warn, error")

	return cmd
}
