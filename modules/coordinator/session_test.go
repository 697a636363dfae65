package coordinator

import (
	"io"
	"testing"
	"time"

	"github.com/shardfs/shardfs/modules"
	"github.com/shardfs/shardfs/persist"
)

// newTestCoordinator builds a Coordinator over an in-memory store with no
// background loops running, so session/repair/GC behavior can be driven
// directly and deterministically from the test.
func newTestCoordinator(t *testing.T, cfg modules.Config) *Coordinator {
	t.Helper()
	log, err := persist.NewLogger(io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	return &Coordinator{
		store: newMemStore(),
		cfg:   cfg,
		log:   log,
		wc:    newWireClient(time.Second),
	}
}

func TestUploadInitThenCommit(t *testing.T) {
	c := newTestCoordinator(t, modules.DefaultConfig())
	for _, w := range makeWorkers(3) {
		if err := c.store.UpsertWorker(w); err != nil {
			t.Fatal(err)
		}
	}

	sess, err := c.UploadInit("/a.txt", 10, false, "client-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(sess.Chunks) != 1 {
		t.Fatalf("expected 1 chunk for a 10-byte file, got %d", len(sess.Chunks))
	}

	plan := sess.Chunks[0]
	reported := []modules.ChunkRecord{{
		ChunkID: plan.ChunkID,
		Replicas: []modules.ReplicaPlacement{
			{WorkerID: "a", URL: "http://host:9000"},
			{WorkerID: "b", URL: "http://host:9001"},
		},
	}}
	f, err := c.Commit(sess.FileID, reported)
	if err != nil {
		t.Fatal(err)
	}
	if f.Path != "/a.txt" || len(f.Chunks) != 1 {
		t.Fatalf("unexpected committed record: %+v", f)
	}
	if f.Chunks[0].Replicas[0].State != modules.ReplicaCommitted {
		t.Fatal("expected replicas to be marked committed")
	}
}

func TestUploadInitConflictWithoutOverwrite(t *testing.T) {
	c := newTestCoordinator(t, modules.DefaultConfig())
	for _, w := range makeWorkers(3) {
		c.store.UpsertWorker(w)
	}
	if err := c.store.PutFile(modules.FileRecord{Path: "/a.txt"}); err != nil {
		t.Fatal(err)
	}
	if _, err := c.UploadInit("/a.txt", 10, false, "client-1"); err != modules.ErrPathConflict {
		t.Fatalf("expected ErrPathConflict, got %v", err)
	}
}

func TestCommitRejectsMismatchedChunkPlan(t *testing.T) {
	c := newTestCoordinator(t, modules.DefaultConfig())
	for _, w := range makeWorkers(3) {
		c.store.UpsertWorker(w)
	}
	sess, err := c.UploadInit("/a.txt", 10, false, "client-1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Commit(sess.FileID, nil); err != modules.ErrInvalidChunkPlan {
		t.Fatalf("expected ErrInvalidChunkPlan, got %v", err)
	}
}

func TestCommitRejectsNoReportingWorkers(t *testing.T) {
	c := newTestCoordinator(t, modules.DefaultConfig())
	for _, w := range makeWorkers(3) {
		c.store.UpsertWorker(w)
	}
	sess, err := c.UploadInit("/a.txt", 10, false, "client-1")
	if err != nil {
		t.Fatal(err)
	}
	reported := []modules.ChunkRecord{{ChunkID: sess.Chunks[0].ChunkID}}
	if _, err := c.Commit(sess.FileID, reported); err != modules.ErrNoReportingWorkers {
		t.Fatalf("expected ErrNoReportingWorkers, got %v", err)
	}
}

func TestCommitAfterTimeoutAbandonsSession(t *testing.T) {
	cfg := modules.DefaultConfig()
	cfg.SessionTimeout = time.Millisecond
	c := newTestCoordinator(t, cfg)
	for _, w := range makeWorkers(3) {
		c.store.UpsertWorker(w)
	}
	sess, err := c.UploadInit("/a.txt", 10, false, "client-1")
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)

	reported := []modules.ChunkRecord{{
		ChunkID:  sess.Chunks[0].ChunkID,
		Replicas: []modules.ReplicaPlacement{{WorkerID: "a"}},
	}}
	if _, err := c.Commit(sess.FileID, reported); err != modules.ErrSessionExpired {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if _, found, _ := c.store.GetSession(sess.FileID); found {
		t.Fatal("expired session should have been abandoned")
	}
	if _, found, _ := c.store.GetFile(sess.Path); found {
		t.Fatal("provisional file should have been purged on abandon")
	}
}
