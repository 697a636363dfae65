package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/uplo-tech/errors"

	"github.com/shardfs/shardfs/build"
	"github.com/shardfs/shardfs/modules/worker"
	"github.com/shardfs/shardfs/node/api"
	"github.com/shardfs/shardfs/profile"
)

func installKillSignalHandler() chan os.Signal {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	return sigChan
}

// startDaemon uses the config to build a Worker and serve its HTTP API
// until it is asked to shut down.
func startDaemon(config Config) error {
	loadStart := time.Now()

	if err := os.MkdirAll(config.DataDir, 0700); err != nil {
		return errors.AddContext(err, "could not create data directory")
	}

	fmt.Println("ShardFS Worker v" + build.Version)
	fmt.Println("Loading...")

	cfg := buildModulesConfig(config)
	w, err := worker.New(config.DataDir, config.WorkerID, config.Host, config.Port, config.CoordinatorURL, cfg)
	if err != nil {
		return errors.AddContext(err, "could not start worker")
	}

	listenAddr := ":" + strconv.Itoa(config.Port)
	srv := &http.Server{
		Addr:    listenAddr,
		Handler: api.NewWorkerAPI(w),
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()

	sigChan := installKillSignalHandler()

	fmt.Printf("Worker %q listening on %s, reporting to %s\n", w.ID(), listenAddr, config.CoordinatorURL)
	fmt.Printf("Finished startup in %s\n", time.Since(loadStart).Truncate(time.Millisecond))

	select {
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			build.Critical(err)
		}
	case <-sigChan:
		fmt.Println("\rCaught stop signal, quitting...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			fmt.Println("error during HTTP shutdown:", err)
		}
	}

	return w.Close()
}

// startDaemonCmd is the passthrough cobra handler for startDaemon.
func startDaemonCmd(cmd *cobra.Command, _ []string) {
	config := globalConfig

	profileCPU := strings.Contains(config.Profile, "c")
	profileMem := strings.Contains(config.Profile, "m")
	profileTrace := strings.Contains(config.Profile, "t")
	if profileCPU || profileMem || profileTrace {
		profileDir := config.ProfileDir
		if !filepath.IsAbs(profileDir) {
			profileDir = filepath.Join(config.DataDir, profileDir)
		}
		go profile.StartContinuousProfile(profileDir, profileCPU, profileMem, profileTrace)
	}

	if err := startDaemon(config); err != nil {
		die(err)
	}
	fmt.Println("Shutdown complete.")
}
