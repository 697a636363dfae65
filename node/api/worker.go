package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"

	"github.com/shardfs/shardfs/modules/worker"
)

// WorkerAPI wraps a worker.Worker with its HTTP router.
type WorkerAPI struct {
	w      *worker.Worker
	router *httprouter.Router
}

// NewWorkerAPI builds the httprouter-backed wire server for a storage
// worker's chunk transfer and health endpoints, per spec.md §6, plus the
// coordinator-only internal replicate endpoint.
func NewWorkerAPI(w *worker.Worker) *WorkerAPI {
	a := &WorkerAPI{w: w, router: httprouter.New()}
	a.router.PUT("/chunks/:chunkID", a.putChunkHandler)
	a.router.GET("/chunks/:chunkID", a.getChunkHandler)
	a.router.DELETE("/chunks/:chunkID", a.deleteChunkHandler)
	a.router.GET("/health", a.healthHandler)
	a.router.POST("/internal/replicate/:chunkID", a.replicateHandler)
	return a
}

// ServeHTTP implements http.Handler.
func (a *WorkerAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) { a.router.ServeHTTP(w, r) }

func (a *WorkerAPI) putChunkHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	chunkID := ps.ByName("chunkID")
	peers := splitPipe(r.URL.Query().Get("replicate_to"))

	size, checksum, nodes, err := a.w.Put(r.Context(), chunkID, r.Body, peers)
	if err != nil {
		writeCoreError(w, err)
		return
	}
	WriteJSON(w, map[string]interface{}{
		"status":   "ok",
		"chunk_id": chunkID,
		"size":     size,
		"checksum": checksum,
		"nodes":    nodes,
	})
}

func (a *WorkerAPI) getChunkHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	body, size, checksum, err := a.w.Get(ps.ByName("chunkID"))
	if err != nil {
		writeCoreError(w, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.Header().Set("X-Checksum", checksum)
	w.Header().Set("Content-Type", "application/octet-stream")
	io.Copy(w, body)
}

func (a *WorkerAPI) deleteChunkHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if err := a.w.Delete(ps.ByName("chunkID")); err != nil {
		writeCoreError(w, err)
		return
	}
	WriteJSON(w, map[string]interface{}{"status": "deleted"})
}

func (a *WorkerAPI) healthHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	h, err := a.w.GetHealth()
	if err != nil {
		writeCoreError(w, err)
		return
	}
	WriteJSON(w, h)
}

// replicateHandler is the coordinator-only RPC driving repair: it tells
// this worker to read its own copy of chunkID and PUT it to destination_url,
// distinguished from the client-facing table by the /internal/ prefix.
func (a *WorkerAPI) replicateHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	chunkID := ps.ByName("chunkID")
	dest := r.URL.Query().Get("destination_url")
	if dest == "" {
		WriteError(w, Error{"destination_url is required"}, http.StatusBadRequest)
		return
	}
	if err := a.w.Replicate(r.Context(), chunkID, dest); err != nil {
		writeCoreError(w, err)
		return
	}
	WriteJSON(w, map[string]interface{}{"status": "ok"})
}

func splitPipe(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == '|' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
