// Package coordinator implements the namespace, placement, and replica
// bookkeeping authority of the system: the single process every client and
// worker talks to for uploads, downloads, deletes, and worker registration.
package coordinator

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/uplo-tech/errors"
	"github.com/uplo-tech/threadgroup"

	"github.com/shardfs/shardfs/modules"
	"github.com/shardfs/shardfs/persist"
)

// wireClientTimeout bounds every outbound request the coordinator makes to
// a worker (replicate trigger, GC delete).
const wireClientTimeout = 30 * time.Second

// Backend selects which modules.MetadataStore implementation a Coordinator
// is built on.
type Backend string

// The supported metadata store backends.
const (
	BackendWAL  Backend = "wal"
	BackendBolt Backend = "bolt"
)

// Coordinator is the top-level authority for the namespace, chunk
// placement, and the worker registry. It owns a MetadataStore and runs the
// background loops (session sweep, repair, garbage collection, liveness
// scan) under a single threadgroup so Close blocks until all of them have
// exited cleanly.
type Coordinator struct {
	store modules.MetadataStore
	cfg   modules.Config
	log   *persist.Logger
	wc    *wireClient

	mu sync.Mutex // serializes UploadInit/Commit path-lease bookkeeping

	tg threadgroup.ThreadGroup
}

// New builds a Coordinator persisting to dir using the requested backend
// and starts its background loops.
func New(dir string, backend Backend, cfg modules.Config) (*Coordinator, error) {
	logFile := filepath.Join(dir, "coordinator.log")
	log, err := persist.NewFileLogger(logFile)
	if err != nil {
		return nil, errors.AddContext(err, "could not create coordinator logger")
	}

	var store modules.MetadataStore
	switch backend {
	case BackendBolt:
		store, err = newBoltStore(filepath.Join(dir, "coordinator.db"))
	case BackendWAL, "":
		store, err = newWALStore(dir, log)
	default:
		err = errors.New("unrecognized coordinator backend: " + string(backend))
	}
	if err != nil {
		return nil, errors.AddContext(err, "could not open coordinator metadata store")
	}

	c := &Coordinator{
		store: store,
		cfg:   cfg,
		log:   log,
		wc:    newWireClient(wireClientTimeout),
	}

	if err := c.tg.AfterStop(log.Close); err != nil {
		return nil, err
	}
	if err := c.tg.AfterStop(store.Close); err != nil {
		return nil, err
	}

	go c.threadedSessionSweep()
	go c.threadedRepairLoop()
	go c.threadedGCLoop()
	go c.threadedLivenessLoop()

	return c, nil
}

// Close stops all background loops and releases the metadata store.
func (c *Coordinator) Close() error {
	return c.tg.Stop()
}

// Health reports whether the coordinator is accepting requests. It is the
// backing call for the liveness wire endpoint.
func (c *Coordinator) Health() error {
	if err := c.tg.Add(); err != nil {
		return err
	}
	defer c.tg.Done()
	return nil
}
