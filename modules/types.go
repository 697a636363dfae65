// Package modules defines the shared data model and wire-adjacent types used
// by the coordinator, the worker, and the client library: file and chunk
// records, replica placements, worker records, upload sessions, and path
// leases. Nothing in this package talks to disk or the network; it is the
// typed vocabulary the rest of the tree shares.
package modules

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// ReplicaState describes the lifecycle of a single (chunk, worker) placement.
type ReplicaState string

// The valid ReplicaState values.
const (
	ReplicaPending   ReplicaState = "pending"
	ReplicaCommitted ReplicaState = "committed"
	ReplicaCorrupted ReplicaState = "corrupted"
	ReplicaDeleted   ReplicaState = "deleted"
)

// WorkerState describes the liveness of a registered storage worker.
type WorkerState string

// The valid WorkerState values.
const (
	WorkerActive       WorkerState = "active"
	WorkerInactive     WorkerState = "inactive"
	WorkerDecommissioned WorkerState = "decommissioned"
)

// FileRecord is one entry in the namespace, published at upload commit and
// soft-deleted rather than removed outright.
type FileRecord struct {
	FileID       uuid.UUID       `json:"file_id"`
	Path         string          `json:"path"`
	Size         int64           `json:"size"`
	CreatedAt    time.Time       `json:"created_at"`
	ModifiedAt   time.Time       `json:"modified_at"`
	Chunks       []ChunkRecord   `json:"chunks"`
	IsDeleted    bool            `json:"is_deleted"`
	DeletedAt    *time.Time      `json:"deleted_at,omitempty"`
	Compressed   bool            `json:"compressed,omitempty"`
	OriginalSize int64           `json:"original_size,omitempty"`
	Provisional  bool            `json:"-"`
}

// ChunkRecord is one chunk of a file, identified by its position in the
// file's chunk sequence.
type ChunkRecord struct {
	ChunkID  uuid.UUID          `json:"chunk_id"`
	Seq      int                `json:"seq"`
	Size     int64              `json:"size"`
	Checksum string             `json:"checksum,omitempty"`
	Replicas []ReplicaPlacement `json:"replicas"`
}

// ReplicaPlacement asserts that a specific worker holds (or held, or is
// expected to hold) a specific chunk.
type ReplicaPlacement struct {
	WorkerID         string       `json:"worker_id"`
	URL              string       `json:"url"`
	State            ReplicaState `json:"state"`
	LastConfirmed    time.Time    `json:"last_confirmed"`
	ChecksumVerified bool         `json:"checksum_verified"`
}

// WorkerRecord is the coordinator's view of a registered storage worker.
type WorkerRecord struct {
	WorkerID      string      `json:"worker_id"`
	Host          string      `json:"host"`
	Port          int         `json:"port"`
	Rack          string      `json:"rack,omitempty"`
	FreeBytes     int64       `json:"free_bytes"`
	TotalBytes    int64       `json:"total_bytes"`
	ChunkCount    int         `json:"chunk_count"`
	LastHeartbeat time.Time   `json:"last_heartbeat"`
	State         WorkerState `json:"state"`
}

// URL returns the worker's reachable base URL.
func (w WorkerRecord) URL() string {
	return "http://" + w.Host + ":" + strconv.Itoa(w.Port)
}

// FreeRatio returns the worker's free-space ratio, 0 if TotalBytes is 0.
func (w WorkerRecord) FreeRatio() float64 {
	if w.TotalBytes <= 0 {
		return 0
	}
	return float64(w.FreeBytes) / float64(w.TotalBytes)
}

// SessionChunkPlan is the per-chunk plan handed back from upload-init.
type SessionChunkPlan struct {
	ChunkID uuid.UUID `json:"chunk_id"`
	Size    int64     `json:"size"`
	Targets []string  `json:"targets"`
}

// UploadSession is transient coordinator state binding a provisional file id
// to a plan of chunk ids and target workers, destroyed by commit or timeout.
type UploadSession struct {
	FileID      uuid.UUID          `json:"file_id"`
	Path        string             `json:"path"`
	Size        int64              `json:"size"`
	ChunkSize   int64              `json:"chunk_size"`
	Chunks      []SessionChunkPlan `json:"chunks"`
	CreatedAt   time.Time          `json:"created_at"`
	Overwrite   bool               `json:"overwrite"`
}

// Lease is transient, one per path under active write, used to serialize
// upload-init calls racing on the same path.
type Lease struct {
	LeaseID    string    `json:"lease_id"`
	Path       string    `json:"path"`
	ClientID   string    `json:"client_id"`
	Expiration time.Time `json:"expiration"`
}
