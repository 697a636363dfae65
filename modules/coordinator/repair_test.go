package coordinator

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shardfs/shardfs/modules"
)

func TestRunRepairScanHealsUnderReplicatedChunk(t *testing.T) {
	source := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer source.Close()

	cfg := modules.DefaultConfig()
	cfg.ReplicationFactor = 2
	cfg.MaxConcurrentRepairs = 4
	c := newTestCoordinator(t, cfg)

	if err := c.store.UpsertWorker(modules.WorkerRecord{
		WorkerID: "source", Host: "source", Port: 1, State: modules.WorkerActive,
		FreeBytes: 1 << 30, TotalBytes: 2 << 30,
	}); err != nil {
		t.Fatal(err)
	}
	if err := c.store.UpsertWorker(modules.WorkerRecord{
		WorkerID: "dest", Host: "dest", Port: 2, State: modules.WorkerActive,
		FreeBytes: 1 << 30, TotalBytes: 2 << 30,
	}); err != nil {
		t.Fatal(err)
	}

	chunkID := uuid.New()
	f := modules.FileRecord{
		Path: "/a.txt",
		Chunks: []modules.ChunkRecord{{
			ChunkID: chunkID,
			Size:    1024,
			Replicas: []modules.ReplicaPlacement{
				{WorkerID: "source", URL: source.URL, State: modules.ReplicaCommitted, LastConfirmed: time.Now()},
			},
		}},
	}
	if err := c.store.PutFile(f); err != nil {
		t.Fatal(err)
	}

	c.runRepairScan()

	got, found, err := c.store.GetFile("/a.txt")
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("file disappeared during repair")
	}
	replicas := got.Chunks[0].Replicas
	if len(replicas) != 2 {
		t.Fatalf("expected repair to add a second placement, got %d replicas", len(replicas))
	}
	destPending := false
	for _, r := range replicas {
		if r.WorkerID == "dest" && r.State == modules.ReplicaPending {
			destPending = true
		}
	}
	if !destPending {
		t.Fatal("expected a pending placement on the destination worker")
	}
}

func TestRunRepairScanSkipsFullyReplicatedChunk(t *testing.T) {
	cfg := modules.DefaultConfig()
	cfg.ReplicationFactor = 1
	c := newTestCoordinator(t, cfg)

	if err := c.store.UpsertWorker(modules.WorkerRecord{WorkerID: "a", State: modules.WorkerActive, FreeBytes: 1 << 30, TotalBytes: 2 << 30}); err != nil {
		t.Fatal(err)
	}
	chunkID := uuid.New()
	f := modules.FileRecord{
		Path: "/a.txt",
		Chunks: []modules.ChunkRecord{{
			ChunkID:  chunkID,
			Replicas: []modules.ReplicaPlacement{{WorkerID: "a", State: modules.ReplicaCommitted}},
		}},
	}
	if err := c.store.PutFile(f); err != nil {
		t.Fatal(err)
	}

	c.runRepairScan() // should be a no-op: already at R=1

	got, found, err := c.store.GetFile("/a.txt")
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("file disappeared during repair")
	}
	if len(got.Chunks[0].Replicas) != 1 {
		t.Fatalf("expected no new placements for a fully-replicated chunk, got %d", len(got.Chunks[0].Replicas))
	}
}
