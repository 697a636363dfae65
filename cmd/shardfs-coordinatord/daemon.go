package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/uplo-tech/errors"

	"github.com/shardfs/shardfs/build"
	"github.com/shardfs/shardfs/modules/coordinator"
	"github.com/shardfs/shardfs/node/api"
	"github.com/shardfs/shardfs/profile"
)

// installKillSignalHandler installs a signal handler for os.Interrupt and
// SIGTERM, returning a channel that is closed when one is caught.
func installKillSignalHandler() chan os.Signal {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	return sigChan
}

// startDaemon uses the config to build a Coordinator and serve its HTTP API
// until it is asked to shut down.
func startDaemon(config Config) error {
	loadStart := time.Now()

	if err := os.MkdirAll(config.DataDir, 0700); err != nil {
		return errors.AddContext(err, "could not create data directory")
	}

	fmt.Println("ShardFS Coordinator v" + build.Version)
	fmt.Println("Loading...")

	cfg := buildModulesConfig(config)
	c, err := coordinator.New(config.DataDir, coordinator.Backend(config.Backend), cfg)
	if err != nil {
		return errors.AddContext(err, "could not start coordinator")
	}

	srv := &http.Server{
		Addr:    config.APIAddr,
		Handler: api.NewCoordinatorAPI(c),
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()

	sigChan := installKillSignalHandler()

	fmt.Printf("Listening on %s\n", config.APIAddr)
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

	return c.Close()
}

// startDaemonCmd is the passthrough cobra handler for startDaemon.
func startDaemonCmd(cmd *cobra.Command, _ []string) {
	config, err := processConfig(globalConfig)
	if err != nil {
		die(errors.AddContext(err, "failed to parse input parameters"))
	}

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
