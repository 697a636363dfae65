package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/shardfs/shardfs/build"
)

const (
	exitCodeGeneral = 1
	exitCodeUsage   = 64
)

var globalConfig Config

// Config holds every configurable variable for shardfs-workerd.
type Config struct {
	WorkerID       string
	Host           string
	Port           int
	DataDir        string
	CoordinatorURL string

	HeartbeatInterval time.Duration
	Profile           string
	ProfileDir        string
}

func die(args ...interface{}) {
	fmt.Fprintln(os.Stderr, args...)
	os.Exit(exitCodeGeneral)
}

func versionCmd(*cobra.Command, []string) {
	fmt.Println("ShardFS Worker v" + build.Version)
}

func main() {
	root := &cobra.Command{
		Use:   os.Args[0],
		Short: "ShardFS storage worker daemon v" + build.Version,
		Long:  "ShardFS storage worker daemon v" + build.Version,
		Run:   startDaemonCmd,
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  "Print version information about the ShardFS worker daemon",
		Run:   versionCmd,
	})

	root.Flags().StringVarP(&globalConfig.WorkerID, "id", "", "", "this worker's id (defaults to node-<host>-<port>)")
	root.Flags().StringVarP(&globalConfig.Host, "host", "", "127.0.0.1", "host this worker advertises to the coordinator")
	root.Flags().IntVarP(&globalConfig.Port, "port", "p", 9500, "port this worker listens on and advertises")
	root.Flags().StringVarP(&globalConfig.DataDir, "data-directory", "d", "", "location of this worker's chunk storage directory")
	root.Flags().StringVarP(&globalConfig.CoordinatorURL, "coordinator", "", "http://127.0.0.1:8480", "base URL of the coordinator to report to")
	root.Flags().DurationVarP(&globalConfig.HeartbeatInterval, "heartbeat-interval", "", 0, "how often to send heartbeats (0 uses the built-in default)")
	root.Flags().StringVarP(&globalConfig.Profile, "profile", "", "", "enable profiling with flags 'cmt' for CPU, memory, trace")
	root.Flags().StringVarP(&globalConfig.ProfileDir, "profile-directory", "", "profiles", "location of the profiling directory")

	if globalConfig.DataDir == "" {
		globalConfig.DataDir = build.DataDir()
	}

	if err := root.Execute(); err != nil {
		os.Exit(exitCodeUsage)
	}
}
