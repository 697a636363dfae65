// Package profile wraps the Go runtime's pprof and trace facilities for the
// coordinator and worker daemons: CPU/heap snapshots on demand, plus an
// optional continuous background logger for long-running nodes.
package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"strings"
	"sync"
	"time"

	"github.com/shardfs/shardfs/persist"
	"github.com/uplo-tech/errors"
)

// guard serializes start/stop of a single profiler kind so two goroutines
// can't both believe they own it.
type guard struct {
	mu     sync.Mutex
	active bool
}

// start marks the guard active, refusing if it's already running.
func (g *guard) start() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active {
		return errors.New("profiler already running")
	}
	g.active = true
	return nil
}

// stopIfActive runs fn and clears the active flag, but only if the guard is
// currently active; a no-op otherwise.
func (g *guard) stopIfActive(fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active {
		fn()
		g.active = false
	}
}

var (
	cpuGuard   guard
	memGuard   guard
	traceGuard guard
)

// ErrInvalidProfileFlags is returned when --profile carries an unrecognized
// or duplicate flag.
var ErrInvalidProfileFlags = errors.New("unable to parse --profile flags, unrecognized or duplicate flags")

// ProcessProfileFlags validates a --profile flag string, lowercasing it and
// rejecting anything outside the recognized set: c (cpu), m (heap), t
// (execution trace), and spaces.
func ProcessProfileFlags(profile string) (string, error) {
	if profile == "" {
		return "", errors.New("no profile flags provided")
	}
	profile = strings.ToLower(profile)

	const validProfiles = " cmt"
	leftover := profile
	for _, p := range validProfiles {
		leftover = strings.Replace(leftover, string(p), "", 1)
	}
	if len(leftover) > 0 {
		return "", errors.AddContext(ErrInvalidProfileFlags, leftover)
	}
	return profile, nil
}

// profileFilePath builds <dir>/<kind>-<identifier>-<timestamp>.<ext>, giving
// every snapshot a name that sorts chronologically and never collides with
// a concurrent one from the same node.
func profileFilePath(dir, kind, identifier, ext string) string {
	return filepath.Join(dir, kind+"-"+identifier+"-"+time.Now().Format(time.RFC3339Nano)+"."+ext)
}

// StartCPUProfile begins CPU profiling into profileDir, returning an error
// if a CPU profile is already running on this node.
func StartCPUProfile(profileDir, identifier string) error {
	if err := cpuGuard.start(); err != nil {
		return errors.AddContext(err, "cannot start cpu profiler")
	}
	f, err := os.Create(profileFilePath(profileDir, "cpu-profile", identifier, "prof"))
	if err != nil {
		return err
	}
	return pprof.StartCPUProfile(f)
}

// StopCPUProfile stops CPU profiling if it is running; otherwise a no-op.
func StopCPUProfile() {
	cpuGuard.stopIfActive(pprof.StopCPUProfile)
}

// SaveMemProfile writes a single heap snapshot to profileDir. Unlike CPU
// profiling there is no separate stop call: the snapshot is taken and
// written in one shot.
func SaveMemProfile(profileDir, identifier string) error {
	if err := memGuard.start(); err != nil {
		return errors.AddContext(err, "cannot save memory profile")
	}
	defer memGuard.stopIfActive(func() {})

	f, err := os.Create(profileFilePath(profileDir, "mem-profile", identifier, "prof"))
	if err != nil {
		return err
	}
	return pprof.WriteHeapProfile(f)
}

// StartTrace begins an execution trace into traceDir, returning an error if
// a trace is already running on this node.
func StartTrace(traceDir, identifier string) error {
	if err := traceGuard.start(); err != nil {
		return errors.AddContext(err, "cannot start trace")
	}
	f, err := os.Create(profileFilePath(traceDir, "trace", identifier, "trace"))
	if err != nil {
		return err
	}
	return trace.Start(f)
}

// StopTrace stops the running execution trace, if any.
func StopTrace() {
	traceGuard.stopIfActive(trace.Stop)
}

// nodeStatsLogger periodically appends goroutine and heap counters to
// <dir>/node-stats.log and invokes tick on the same cadence. The sleep
// interval backs off exponentially (capped at sleepCap, or unbounded if
// zero) so a node left running for days doesn't accumulate an unbounded
// log.
func nodeStatsLogger(dir string, sleepCap time.Duration, tick func()) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		fmt.Println(err)
		return
	}
	go func() {
		log, err := persist.NewFileLogger(filepath.Join(dir, "node-stats.log"))
		if err != nil {
			fmt.Println("node stats logging failed:", err)
			return
		}
		sleep := 10 * time.Second
		for {
			tick()
			time.Sleep(sleep)
			sleep = time.Duration(1.2 * float64(sleep))
			if sleepCap != 0 && sleep > sleepCap {
				sleep = sleepCap
			}
			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			log.Printf("\n\tGoroutines: %v\n\tAlloc: %v\n\tTotalAlloc: %v\n\tHeapAlloc: %v\n\tHeapSys: %v\n",
				runtime.NumGoroutine(), m.Alloc, m.TotalAlloc, m.HeapAlloc, m.HeapSys)
		}
	}()
}

// StartContinuousProfile runs a background node-stats logger plus whichever
// of CPU, heap, and execution-trace profiling were requested, re-rolling
// each on the logger's cadence so a node left profiling for a long time
// ends up with a sequence of bounded snapshots instead of one unbounded
// run. Intended to be launched in its own goroutine at daemon startup.
func StartContinuousProfile(profileDir string, profileCPU, profileMem, profileTrace bool) {
	var sleepCap time.Duration // unbounded by default
	if profileTrace {
		sleepCap = 10 * time.Minute
	}
	nodeStatsLogger(profileDir, sleepCap, func() {
		if profileCPU {
			StopCPUProfile()
			StartCPUProfile(profileDir, "continuous-cpu")
		}
		if profileMem {
			SaveMemProfile(profileDir, "continuous-mem")
		}
		if profileTrace {
			StopTrace()
			StartTrace(profileDir, "continuous-trace")
		}
	})
}
