package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v5"
)

var (
	uploadOverwrite bool

	uploadCmd = &cobra.Command{
		Use:   "upload [source] [dest path]",
		Short: "upload a local file",
		Long:  "Upload a local file, chunking and replicating it across storage workers.",
		Run:   uploadcmd,
	}

	downloadCmd = &cobra.Command{
		Use:   "download [path] [destination]",
		Short: "download a file",
		Long:  "Download a file, fetching its chunks from storage workers in parallel and verifying each checksum.",
		Run:   downloadcmd,
	}
)

func init() {
	uploadCmd.Flags().BoolVarP(&uploadOverwrite, "overwrite", "", false, "replace an existing file at the destination path")
}

func uploadcmd(cmd *cobra.Command, args []string) {
	if len(args) != 2 {
		cmd.UsageFunc()(cmd)
		os.Exit(exitCodeUsage)
	}
	sourcePath, destPath := args[0], args[1]

	f, err := os.Open(sourcePath)
	if err != nil {
		die("Unable to open source file:", err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		die("Unable to stat source file:", err)
	}

	name := filepath.Base(sourcePath)
	pbs := mpb.New(mpb.WithWidth(40))
	bar := pbs.AddBar(1,
		mpb.PrependDecorators(pbNameDecorator(name)),
	)
	spinner := newProgressSpinner(pbs, bar, name)
	bar.IncrBy(1)

	file, err := shardClient.Upload(context.Background(), destPath, f, fi.Size(), uploadOverwrite)
	newProgressDone(pbs, spinner, name, "uploaded")
	pbs.Wait()
	if err != nil {
		die("Upload failed:", err)
	}
	fmt.Printf("%s -> %s (%s, %d chunks)\n", sourcePath, file.Path, fmtBytes(file.Size), len(file.Chunks))
}

func downloadcmd(cmd *cobra.Command, args []string) {
	if len(args) != 2 {
		cmd.UsageFunc()(cmd)
		os.Exit(exitCodeUsage)
	}
	sourcePath, destPath := args[0], args[1]

	out, err := os.Create(destPath)
	if err != nil {
		die("Unable to create destination file:", err)
	}
	defer out.Close()

	name := filepath.Base(sourcePath)
	pbs := mpb.New(mpb.WithWidth(40))
	bar := pbs.AddBar(1,
		mpb.PrependDecorators(pbNameDecorator(name)),
	)
	spinner := newProgressSpinner(pbs, bar, name)
	bar.IncrBy(1)

	file, err := shardClient.Download(context.Background(), sourcePath, out)
	newProgressDone(pbs, spinner, name, "downloaded")
	pbs.Wait()
	if err != nil {
		die("Download failed:", err)
	}
	fmt.Printf("%s -> %s (%s)\n", file.Path, destPath, fmtBytes(file.Size))
}
