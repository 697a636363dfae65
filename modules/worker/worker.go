package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/uplo-tech/errors"
	"github.com/uplo-tech/go-upnp"
	"github.com/uplo-tech/ratelimit"
	"github.com/uplo-tech/threadgroup"

	"github.com/shardfs/shardfs/modules"
	"github.com/shardfs/shardfs/persist"
)

// upnpDiscoveryTimeout bounds the best-effort startup port mapping; a
// router that doesn't answer within this window is treated the same as
// one that has UPnP disabled.
const upnpDiscoveryTimeout = 3 * time.Second

// Worker is the storage node: a ChunkStore, an inventory cache kept in
// sync with it, a heartbeat emitter, and an outbound client used for peer
// fan-out and repair replication.
type Worker struct {
	id             string
	host           string
	port           int
	coordinatorURL string

	store *ChunkStore
	inv   *inventory
	cfg   modules.Config
	log   *persist.Logger

	rl         *ratelimit.RateLimit
	peerClient *http.Client

	tg threadgroup.ThreadGroup
}

// New builds a Worker storing chunks under dir, identified by id,
// reachable at host:port, reporting to coordinatorURL, and starts its
// background loops (inventory scan, heartbeat emitter).
func New(dir, id, host string, port int, coordinatorURL string, cfg modules.Config) (*Worker, error) {
	if id == "" {
		id = defaultWorkerID(host, port)
	}
	store, err := NewChunkStore(filepath.Join(dir, "chunks"))
	if err != nil {
		return nil, err
	}
	log, err := persist.NewFileLogger(filepath.Join(dir, "worker.log"))
	if err != nil {
		return nil, errors.AddContext(err, "could not create worker logger")
	}

	w := &Worker{
		id:             id,
		host:           host,
		port:           port,
		coordinatorURL: coordinatorURL,
		store:          store,
		inv:            newInventory(),
		cfg:            cfg,
		log:            log,
		rl:             ratelimit.NewRateLimit(0, 0, 0),
	}
	w.peerClient = &http.Client{
		Timeout:   120 * time.Second,
		Transport: rateLimitedTransport(w.rl, w.tg.StopChan()),
	}

	if err := w.tg.AfterStop(log.Close); err != nil {
		return nil, err
	}

	w.tryForwardPort()

	go w.threadedInventoryScan()
	go w.threadedHeartbeatEmitter()

	return w, nil
}

// SetRateLimits adjusts the worker's outbound bandwidth cap for peer
// fan-out and replicate() calls. Zero for both means unlimited.
func (w *Worker) SetRateLimits(downloadSpeed, uploadSpeed int64) error {
	if downloadSpeed < 0 || uploadSpeed < 0 {
		return errors.New("download/upload rate can't be below 0")
	}
	if downloadSpeed == 0 && uploadSpeed == 0 {
		w.rl.SetLimits(0, 0, 0)
	} else {
		w.rl.SetLimits(downloadSpeed, uploadSpeed, 4*4096)
	}
	return nil
}

// tryForwardPort attempts a best-effort UPnP port mapping so the worker is
// reachable from outside its local network. Failure is logged and never
// blocks startup: most deployments run behind an operator-managed network
// where this simply has nothing to do.
func (w *Worker) tryForwardPort() {
	ctx, cancel := context.WithTimeout(context.Background(), upnpDiscoveryTimeout)
	defer cancel()
	d, err := upnp.Discover(ctx)
	if err != nil {
		w.log.Debugln("UPnP discovery unavailable:", err)
		return
	}
	if err := d.Forward(uint16(w.port), "shardfs worker"); err != nil {
		w.log.Debugln("UPnP port forward failed:", err)
		return
	}
	w.log.Println("UPnP forwarded port", w.port)
}

// ID returns the worker's stable identifier.
func (w *Worker) ID() string { return w.id }

// Put stores a chunk, optionally fanning it out to peer URLs, and returns
// the set of worker identifiers (self plus each peer that acked) that now
// hold it. A peer is listed by the id its own PUT response reports, or by
// its URL when the response reports none.
func (w *Worker) Put(ctx context.Context, chunkID string, body io.Reader, peers []string) (size int64, checksum string, nodes []string, err error) {
	var buf *bytes.Buffer
	var src io.Reader = body
	if len(peers) > 0 {
		// A single io.Reader can only be consumed once; buffer so the
		// same bytes can be replayed to every peer after the local write.
		buf = &bytes.Buffer{}
		src = io.TeeReader(body, buf)
	}

	size, checksum, err = w.store.Put(chunkID, src)
	if err != nil {
		return 0, "", nil, err
	}
	w.inv.add(chunkID, size)
	nodes = append(nodes, w.id)

	if len(peers) > 0 {
		for _, r := range w.fanOut(ctx, chunkID, buf.Bytes(), peers) {
			if r.OK {
				nodes = append(nodes, r.WorkerID)
			}
		}
	}
	return size, checksum, nodes, nil
}

// Get opens chunkID for a verified streaming read.
func (w *Worker) Get(chunkID string) (io.ReadCloser, int64, string, error) {
	return w.store.Get(chunkID)
}

// Delete removes chunkID from local storage and the inventory cache.
func (w *Worker) Delete(chunkID string) error {
	if err := w.store.Delete(chunkID); err != nil {
		return err
	}
	w.inv.remove(chunkID)
	return nil
}

// Health reports the worker's liveness and capacity summary.
type Health struct {
	Status     string `json:"status"`
	NodeID     string `json:"node_id"`
	FreeSpace  int64  `json:"free_space"`
	TotalSpace int64  `json:"total_space"`
	ChunkCount int    `json:"chunk_count"`
}

// GetHealth reports the worker's liveness and capacity summary.
func (w *Worker) GetHealth() (Health, error) {
	free, total, err := diskStats(w.store.dir)
	if err != nil {
		return Health{}, err
	}
	return Health{
		Status:     "ok",
		NodeID:     w.id,
		FreeSpace:  free,
		TotalSpace: total,
		ChunkCount: len(w.inv.ids()),
	}, nil
}

// Close stops the worker's background loops.
func (w *Worker) Close() error {
	return w.tg.Stop()
}

// defaultWorkerID derives the spec-mandated default worker id from its
// reachable address.
func defaultWorkerID(host string, port int) string {
	return "node-" + host + "-" + strconv.Itoa(port)
}

// heartbeatPayload is the wire body POSTed to the coordinator's
// /api/v1/nodes/heartbeat endpoint.
type heartbeatPayload struct {
	NodeID     string   `json:"node_id"`
	Host       string   `json:"host"`
	Port       int      `json:"port"`
	FreeSpace  int64    `json:"free_space"`
	TotalSpace int64    `json:"total_space"`
	ChunkIDs   []string `json:"chunk_ids"`
}

func (w *Worker) marshalHeartbeat() ([]byte, error) {
	free, total, err := diskStats(w.store.dir)
	if err != nil {
		return nil, err
	}
	return json.Marshal(heartbeatPayload{
		NodeID:     w.id,
		Host:       w.host,
		Port:       w.port,
		FreeSpace:  free,
		TotalSpace: total,
		ChunkIDs:   w.inv.ids(),
	})
}
