package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	filesCmd = &cobra.Command{
		Use:   "files",
		Short: "list, inspect, and delete files in the namespace",
		Long:  "List, inspect, and delete files in the namespace.",
	}

	filesLsCmd = &cobra.Command{
		Use:   "ls [prefix]",
		Short: "list files",
		Long:  "List files in the namespace, optionally filtered to a path prefix.",
		Run:   filesls,
	}

	filesStatCmd = &cobra.Command{
		Use:   "stat [path]",
		Short: "show a file's chunk and replica placement",
		Long:  "Show a file's metadata, chunk list, and replica placement.",
		Run:   wrap(filesstatcmd),
	}

	filesRmCmd = &cobra.Command{
		Use:   "rm [path]",
		Short: "delete a file",
		Long:  "Soft-delete a file by path; its chunks are reclaimed by garbage collection.",
		Run:   wrap(filesrmcmd),
	}
)

func filesls(cmd *cobra.Command, args []string) {
	if len(args) > 1 {
		cmd.UsageFunc()(cmd)
		os.Exit(exitCodeUsage)
	}
	var prefix string
	if len(args) == 1 {
		prefix = args[0]
	}
	files, err := shardClient.ListFiles(prefix, 0, 0)
	if err != nil {
		die("Could not list files:", err)
	}
	if len(files) == 0 {
		fmt.Println("No files found.")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Path\tSize\tChunks\tModified\n")
	for _, f := range files {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", f.Path, fmtBytes(f.Size), len(f.Chunks), f.ModifiedAt.Format("2006-01-02 15:04:05"))
	}
	if err := w.Flush(); err != nil {
		die(err)
	}
}

func filesstatcmd(path string) {
	f, err := shardClient.GetFile(path)
	if err != nil {
		die("Could not fetch file:", err)
	}
	fmt.Printf("Path:     %s\n", f.Path)
	fmt.Printf("Size:     %s\n", fmtBytes(f.Size))
	fmt.Printf("Created:  %s\n", f.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Modified: %s\n", f.ModifiedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Deleted:  %t\n", f.IsDeleted)
	fmt.Printf("Chunks:   %d\n\n", len(f.Chunks))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Seq\tChunk ID\tSize\tReplicas\n")
	for _, c := range f.Chunks {
		replicaDesc := ""
		for i, r := range c.Replicas {
			if i > 0 {
				replicaDesc += ", "
			}
			replicaDesc += fmt.Sprintf("%s(%s)", r.WorkerID, r.State)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", c.Seq, c.ChunkID, fmtBytes(c.Size), replicaDesc)
	}
	if err := w.Flush(); err != nil {
		die(err)
	}
}

func filesrmcmd(path string) {
	if err := shardClient.DeleteFile(path); err != nil {
		die("Could not delete file:", err)
	}
	fmt.Println("Deleted", path)
}
