package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"

	"github.com/shardfs/shardfs/modules"
	"github.com/shardfs/shardfs/modules/coordinator"
)

// CoordinatorAPI wraps a coordinator.Coordinator with its HTTP router.
type CoordinatorAPI struct {
	c      *coordinator.Coordinator
	router *httprouter.Router
}

// NewCoordinatorAPI builds the httprouter-backed wire server for the
// coordinator's endpoints, all prefixed /api/v1 per spec.md §6.
func NewCoordinatorAPI(c *coordinator.Coordinator) *CoordinatorAPI {
	a := &CoordinatorAPI{c: c, router: httprouter.New()}
	a.router.POST("/api/v1/files/upload-init", a.uploadInitHandler)
	a.router.POST("/api/v1/files/commit", a.commitHandler)
	a.router.GET("/api/v1/files", a.listFilesHandler)
	a.router.GET("/api/v1/files/:encodedPath", a.getFileHandler)
	a.router.DELETE("/api/v1/files/:encodedPath", a.deleteFileHandler)
	a.router.POST("/api/v1/nodes/heartbeat", a.heartbeatHandler)
	a.router.GET("/api/v1/nodes", a.listNodesHandler)
	a.router.GET("/api/v1/nodes/:nodeID", a.getNodeHandler)
	a.router.GET("/api/v1/health", a.healthHandler)
	a.router.PUT("/api/v1/proxy/chunks/:chunkID", a.proxyPutHandler)
	a.router.GET("/api/v1/proxy/chunks/:chunkID", a.proxyGetHandler)
	return a
}

// ServeHTTP implements http.Handler.
func (a *CoordinatorAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) { a.router.ServeHTTP(w, r) }

type uploadInitRequest struct {
	Path         string `json:"path"`
	Size         int64  `json:"size"`
	Overwrite    bool   `json:"overwrite,omitempty"`
	Compressed   bool   `json:"compressed,omitempty"`
	OriginalSize int64  `json:"original_size,omitempty"`
}

type uploadInitResponse struct {
	FileID    uuid.UUID                  `json:"file_id"`
	ChunkSize int64                      `json:"chunk_size"`
	Chunks    []modules.SessionChunkPlan `json:"chunks"`
}

func (a *CoordinatorAPI) uploadInitHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req uploadInitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, Error{"malformed request body"}, http.StatusBadRequest)
		return
	}
	clientID := r.Header.Get("X-Client-ID")
	sess, err := a.c.UploadInit(req.Path, req.Size, req.Overwrite, clientID)
	if err != nil {
		writeCoreError(w, err)
		return
	}
	WriteJSON(w, uploadInitResponse{FileID: sess.FileID, ChunkSize: sess.ChunkSize, Chunks: sess.Chunks})
}

type commitChunkRequest struct {
	ChunkID  uuid.UUID `json:"chunk_id"`
	Checksum string    `json:"checksum"`
	Nodes    []string  `json:"nodes"`
}

type commitRequest struct {
	FileID uuid.UUID            `json:"file_id"`
	Chunks []commitChunkRequest `json:"chunks"`
}

func (a *CoordinatorAPI) commitHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req commitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, Error{"malformed request body"}, http.StatusBadRequest)
		return
	}

	chunks := make([]modules.ChunkRecord, len(req.Chunks))
	for i, rc := range req.Chunks {
		replicas := make([]modules.ReplicaPlacement, 0, len(rc.Nodes))
		for _, nodeID := range rc.Nodes {
			placement := modules.ReplicaPlacement{WorkerID: nodeID}
			if node, err := a.c.GetNode(nodeID); err == nil {
				placement.URL = node.URL()
			}
			replicas = append(replicas, placement)
		}
		chunks[i] = modules.ChunkRecord{ChunkID: rc.ChunkID, Checksum: rc.Checksum, Replicas: replicas}
	}

	if _, err := a.c.Commit(req.FileID, chunks); err != nil {
		writeCoreError(w, err)
		return
	}
	WriteJSON(w, map[string]interface{}{"status": "committed", "file_id": req.FileID})
}

func (a *CoordinatorAPI) listFilesHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	prefix := r.URL.Query().Get("prefix")
	files, err := a.c.List(prefix)
	if err != nil {
		writeCoreError(w, err)
		return
	}
	limit, offset := paginationParams(r)
	if offset > len(files) {
		offset = len(files)
	}
	end := offset + limit
	if limit <= 0 || end > len(files) {
		end = len(files)
	}
	WriteJSON(w, files[offset:end])
}

func paginationParams(r *http.Request) (limit, offset int) {
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
		limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil {
		offset = v
	}
	return limit, offset
}

func (a *CoordinatorAPI) getFileHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	path, err := url.QueryUnescape(ps.ByName("encodedPath"))
	if err != nil {
		WriteError(w, Error{"malformed path"}, http.StatusBadRequest)
		return
	}
	f, err := a.c.Get(path)
	if err != nil {
		writeCoreError(w, err)
		return
	}
	WriteJSON(w, f)
}

func (a *CoordinatorAPI) deleteFileHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	path, err := url.QueryUnescape(ps.ByName("encodedPath"))
	if err != nil {
		WriteError(w, Error{"malformed path"}, http.StatusBadRequest)
		return
	}
	permanent := r.URL.Query().Get("permanent") == "true"
	if err := a.c.Delete(path, permanent); err != nil {
		writeCoreError(w, err)
		return
	}
	WriteJSON(w, map[string]interface{}{"status": "deleted", "path": path})
}

type heartbeatRequest struct {
	NodeID     string      `json:"node_id"`
	Host       string      `json:"host"`
	Port       int         `json:"port"`
	FreeSpace  int64       `json:"free_space"`
	TotalSpace int64       `json:"total_space"`
	ChunkIDs   []uuid.UUID `json:"chunk_ids"`
}

func (a *CoordinatorAPI) heartbeatHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req heartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, Error{"malformed request body"}, http.StatusBadRequest)
		return
	}
	if err := a.c.Heartbeat(req.NodeID, req.Host, req.Port, req.FreeSpace, req.TotalSpace, req.ChunkIDs); err != nil {
		writeCoreError(w, err)
		return
	}
	WriteJSON(w, map[string]interface{}{"status": "ok"})
}

func (a *CoordinatorAPI) listNodesHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	nodes, err := a.c.ListNodes()
	if err != nil {
		writeCoreError(w, err)
		return
	}
	WriteJSON(w, nodes)
}

func (a *CoordinatorAPI) getNodeHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	node, err := a.c.GetNode(ps.ByName("nodeID"))
	if err != nil {
		writeCoreError(w, err)
		return
	}
	WriteJSON(w, node)
}

func (a *CoordinatorAPI) healthHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	details, err := a.c.HealthSummary()
	if err != nil {
		writeCoreError(w, err)
		return
	}
	WriteJSON(w, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
		"details":   details,
	})
}

// proxyPutHandler lets a client behind NAT push chunk bytes through the
// coordinator instead of addressing a worker directly: it forwards the
// body to every worker id listed in target_nodes via their registered
// URLs, exactly as a worker's own fan-out would, so the caller never needs
// a reachable address for any worker.
func (a *CoordinatorAPI) proxyPutHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	chunkID := ps.ByName("chunkID")
	targets := r.URL.Query().Get("target_nodes")
	if targets == "" {
		WriteError(w, Error{"target_nodes is required"}, http.StatusBadRequest)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		WriteError(w, Error{"could not read body"}, http.StatusBadRequest)
		return
	}
	nodes, err := proxyForwardChunk(r.Context(), a.c, chunkID, body, splitCSV(targets))
	if err != nil {
		writeCoreError(w, err)
		return
	}
	WriteJSON(w, map[string]interface{}{"status": "ok", "nodes": nodes})
}

// proxyGetHandler fetches a chunk's bytes from one of its live replicas on
// the caller's behalf, the same NAT-friendly indirection as the PUT side.
func (a *CoordinatorAPI) proxyGetHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	chunkID := ps.ByName("chunkID")
	filePath := r.URL.Query().Get("file_path")
	f, err := a.c.Get(filePath)
	if err != nil {
		writeCoreError(w, err)
		return
	}
	var replicas []modules.ReplicaPlacement
	for _, ch := range f.Chunks {
		if ch.ChunkID.String() == chunkID {
			replicas = ch.Replicas
			break
		}
	}
	if len(replicas) == 0 {
		WriteError(w, Error{"chunk not found on file"}, http.StatusNotFound)
		return
	}
	if err := proxyStreamChunk(w, r.Context(), chunkID, replicas); err != nil {
		writeCoreError(w, err)
	}
}

func splitCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
