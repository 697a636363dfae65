package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	nodesCmd = &cobra.Command{
		Use:   "nodes",
		Short: "list and inspect registered storage workers",
		Long:  "List and inspect registered storage workers.",
	}

	nodesLsCmd = &cobra.Command{
		Use:   "ls",
		Short: "list registered workers",
		Long:  "List registered workers and their capacity and liveness.",
		Run:   wrap(nodeslscmd),
	}

	nodesGetCmd = &cobra.Command{
		Use:   "get [node id]",
		Short: "show a single worker's record",
		Long:  "Show a single worker's record.",
		Run:   wrap(nodesgetcmd),
	}

	healthCmd = &cobra.Command{
		Use:   "health",
		Short: "show the coordinator's liveness summary",
		Long:  "Show the coordinator's liveness summary.",
		Run:   wrap(healthcmd),
	}
)

func nodeslscmd() {
	nodes, err := shardClient.ListNodes()
	if err != nil {
		die("Could not list nodes:", err)
	}
	if len(nodes) == 0 {
		fmt.Println("No nodes registered.")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tAddress\tState\tFree\tTotal\tChunks\tLast Heartbeat\n")
	for _, n := range nodes {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			n.WorkerID, n.URL(), n.State, fmtBytes(n.FreeBytes), fmtBytes(n.TotalBytes),
			n.ChunkCount, n.LastHeartbeat.Format("2006-01-02 15:04:05"))
	}
	if err := w.Flush(); err != nil {
		die(err)
	}
}

func nodesgetcmd(nodeID string) {
	n, err := shardClient.GetNode(nodeID)
	if err != nil {
		die("Could not fetch node:", err)
	}
	fmt.Printf("ID:             %s\n", n.WorkerID)
	fmt.Printf("Address:        %s\n", n.URL())
	fmt.Printf("Rack:           %s\n", n.Rack)
	fmt.Printf("State:          %s\n", n.State)
	fmt.Printf("Free:           %s\n", fmtBytes(n.FreeBytes))
	fmt.Printf("Total:          %s\n", fmtBytes(n.TotalBytes))
	fmt.Printf("Chunks:         %d\n", n.ChunkCount)
	fmt.Printf("Last Heartbeat: %s\n", n.LastHeartbeat.Format("2006-01-02 15:04:05"))
}

func healthcmd() {
	status, err := shardClient.Health()
	if err != nil {
		die("Could not fetch health:", err)
	}
	for k, v := range status {
		fmt.Printf("%s: %v\n", k, v)
	}
}
