package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/shardfs/shardfs/build"
)

// exit codes, inspired by sysexits.h
const (
	exitCodeGeneral = 1
	exitCodeUsage   = 64
)

var globalConfig Config

// Config holds every configurable variable for shardfs-coordinatord, filled
// out by cobra according to the flags it parses.
type Config struct {
	APIAddr            string
	DataDir            string
	Backend            string
	ChunkSize          int64
	ReplicationFactor  int
	HeartbeatInterval  time.Duration
	DeadThreshold      time.Duration
	RepairPeriod       time.Duration
	MaxRepairs         int
	GCPeriod           time.Duration
	GCGrace            time.Duration
	SessionTimeout     time.Duration
	LeaseTimeout       time.Duration
	RebalanceEnabled   bool
	Profile            string
	ProfileDir         string
}

// die prints its arguments to stderr, then exits with the general error code.
func die(args ...interface{}) {
	fmt.Fprintln(os.Stderr, args...)
	os.Exit(exitCodeGeneral)
}

func versionCmd(*cobra.Command, []string) {
	fmt.Println("ShardFS Coordinator v" + build.Version)
}

func main() {
	root := &cobra.Command{
		Use:   os.Args[0],
		Short: "ShardFS coordinator daemon v" + build.Version,
		Long:  "ShardFS coordinator daemon v" + build.Version,
		Run:   startDaemonCmd,
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  "Print version information about the ShardFS coordinator daemon",
		Run:   versionCmd,
	})

	root.Flags().StringVarP(&globalConfig.APIAddr, "api-addr", "", "localhost:8480", "host:port the coordinator's HTTP API listens on")
	root.Flags().StringVarP(&globalConfig.DataDir, "data-directory", "d", "", "location of the coordinator's metadata directory")
	root.Flags().StringVarP(&globalConfig.Backend, "backend", "", "wal", "metadata store backend: wal or bolt")
	root.Flags().Int64VarP(&globalConfig.ChunkSize, "chunk-size", "", 0, "fixed chunk size in bytes (0 uses the built-in default)")
	root.Flags().IntVarP(&globalConfig.ReplicationFactor, "replication-factor", "", 0, "number of replicas to place per chunk (0 uses the built-in default)")
	root.Flags().DurationVarP(&globalConfig.HeartbeatInterval, "heartbeat-interval", "", 0, "expected interval between worker heartbeats (0 uses the built-in default)")
	root.Flags().DurationVarP(&globalConfig.DeadThreshold, "dead-threshold", "", 0, "how long a worker may miss heartbeats before being marked inactive (0 uses the built-in default)")
	root.Flags().DurationVarP(&globalConfig.RepairPeriod, "repair-period", "", 0, "how often the repair scan runs (0 uses the built-in default)")
	root.Flags().IntVarP(&globalConfig.MaxRepairs, "max-concurrent-repairs", "", 0, "maximum chunk repairs in flight at once (0 uses the built-in default)")
	root.Flags().DurationVarP(&globalConfig.GCPeriod, "gc-period", "", 0, "how often the garbage collector runs (0 uses the built-in default)")
	root.Flags().DurationVarP(&globalConfig.GCGrace, "gc-grace", "", 0, "how long a soft-deleted file is kept before GC removes its chunks (0 uses the built-in default)")
	root.Flags().DurationVarP(&globalConfig.SessionTimeout, "session-timeout", "", 0, "how long an upload session may sit uncommitted before it is abandoned (0 uses the built-in default)")
	root.Flags().DurationVarP(&globalConfig.LeaseTimeout, "lease-timeout", "", 0, "how long a path lease is held during upload-init (0 uses the built-in default)")
	root.Flags().BoolVarP(&globalConfig.RebalanceEnabled, "rebalance", "", false, "order repair destinations by free-space ratio, most free first (existing placements are never moved)")
	root.Flags().StringVarP(&globalConfig.Profile, "profile", "", "", "enable profiling with flags 'cmt' for CPU, memory, trace")
	root.Flags().StringVarP(&globalConfig.ProfileDir, "profile-directory", "", "profiles", "location of the profiling directory")

	if globalConfig.DataDir == "" {
		globalConfig.DataDir = build.DataDir()
	}

	if err := root.Execute(); err != nil {
		os.Exit(exitCodeUsage)
	}
}
