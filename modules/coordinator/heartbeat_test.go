package coordinator

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shardfs/shardfs/modules"
)

func TestHeartbeatPromotesPendingReplica(t *testing.T) {
	c := newTestCoordinator(t, modules.DefaultConfig())
	chunkID := uuid.New()
	f := modules.FileRecord{
		Path: "/a.txt",
		Chunks: []modules.ChunkRecord{{
			ChunkID: chunkID,
			Replicas: []modules.ReplicaPlacement{
				{WorkerID: "a", State: modules.ReplicaPending},
			},
		}},
	}
	if err := c.store.PutFile(f); err != nil {
		t.Fatal(err)
	}

	if err := c.Heartbeat("a", "host", 9000, 1<<30, 2<<30, []uuid.UUID{chunkID}); err != nil {
		t.Fatal(err)
	}

	got, found, err := c.store.GetFile("/a.txt")
	if err != nil || !found {
		t.Fatalf("file missing after heartbeat: found=%v err=%v", found, err)
	}
	if got.Chunks[0].Replicas[0].State != modules.ReplicaCommitted {
		t.Fatalf("expected replica to be promoted to committed, got %s", got.Chunks[0].Replicas[0].State)
	}
}

func TestHeartbeatCreatesPlacementForUnknownReportedChunk(t *testing.T) {
	c := newTestCoordinator(t, modules.DefaultConfig())
	if err := c.store.UpsertWorker(modules.WorkerRecord{WorkerID: "dest", Host: "dest", Port: 9001, State: modules.WorkerActive}); err != nil {
		t.Fatal(err)
	}
	chunkID := uuid.New()
	f := modules.FileRecord{
		Path: "/a.txt",
		Chunks: []modules.ChunkRecord{{
			ChunkID: chunkID,
		}},
	}
	if err := c.store.PutFile(f); err != nil {
		t.Fatal(err)
	}

	// "dest" reports holding chunkID even though the coordinator has no
	// placement on record for it yet (e.g. a repair destination that
	// landed bytes before its replicate() response was processed).
	if err := c.Heartbeat("dest", "dest", 9001, 1<<30, 2<<30, []uuid.UUID{chunkID}); err != nil {
		t.Fatal(err)
	}

	got, found, err := c.store.GetFile("/a.txt")
	if err != nil || !found {
		t.Fatalf("file missing after heartbeat: found=%v err=%v", found, err)
	}
	if len(got.Chunks[0].Replicas) != 1 {
		t.Fatalf("expected a new placement to be created, got %d replicas", len(got.Chunks[0].Replicas))
	}
	r := got.Chunks[0].Replicas[0]
	if r.WorkerID != "dest" || r.State != modules.ReplicaCommitted {
		t.Fatalf("expected a committed placement on dest, got %+v", r)
	}
}

func TestHeartbeatDemotesUnreportedReplica(t *testing.T) {
	c := newTestCoordinator(t, modules.DefaultConfig())
	chunkID := uuid.New()
	f := modules.FileRecord{
		Path: "/a.txt",
		Chunks: []modules.ChunkRecord{{
			ChunkID: chunkID,
			Replicas: []modules.ReplicaPlacement{
				{WorkerID: "a", State: modules.ReplicaCommitted},
			},
		}},
	}
	if err := c.store.PutFile(f); err != nil {
		t.Fatal(err)
	}

	// Worker "a" heartbeats but no longer reports chunkID among its ids.
	if err := c.Heartbeat("a", "host", 9000, 1<<30, 2<<30, nil); err != nil {
		t.Fatal(err)
	}

	got, _, err := c.store.GetFile("/a.txt")
	if err != nil {
		t.Fatal(err)
	}
	if got.Chunks[0].Replicas[0].State != modules.ReplicaDeleted {
		t.Fatalf("expected replica to be demoted to deleted, got %s", got.Chunks[0].Replicas[0].State)
	}
}

func TestHeartbeatPreservesRackLabel(t *testing.T) {
	c := newTestCoordinator(t, modules.DefaultConfig())
	if err := c.store.UpsertWorker(modules.WorkerRecord{WorkerID: "a", Rack: "rack-1"}); err != nil {
		t.Fatal(err)
	}
	if err := c.Heartbeat("a", "host", 9000, 1<<30, 2<<30, nil); err != nil {
		t.Fatal(err)
	}
	w, found, err := c.store.GetWorker("a")
	if err != nil || !found {
		t.Fatal("worker missing after heartbeat")
	}
	if w.Rack != "rack-1" {
		t.Fatalf("expected rack label to survive heartbeat, got %q", w.Rack)
	}
}

func TestLivenessLoopMarksWorkerInactive(t *testing.T) {
	c := newTestCoordinator(t, modules.DefaultConfig())
	past := time.Now().Add(-time.Hour)
	if err := c.store.UpsertWorker(modules.WorkerRecord{WorkerID: "a", State: modules.WorkerActive, LastHeartbeat: past}); err != nil {
		t.Fatal(err)
	}
	changed, err := c.store.MarkWorkersInactive(time.Now().Add(-time.Minute).UnixNano())
	if err != nil {
		t.Fatal(err)
	}
	if len(changed) != 1 || changed[0] != "a" {
		t.Fatalf("expected worker a to be marked inactive, got %v", changed)
	}
}
