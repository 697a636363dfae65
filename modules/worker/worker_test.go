package worker

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shardfs/shardfs/modules"
)

func newTestWorker(t *testing.T, coordinatorURL string) *Worker {
	t.Helper()
	cfg := modules.DefaultConfig()
	cfg.HeartbeatInterval = time.Hour // the emitter sends once at startup, then not again during the test
	w, err := New(t.TempDir(), "node-test", "127.0.0.1", 9000, coordinatorURL, cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { w.Close() })
	return w
}

func TestWorkerPutGetDelete(t *testing.T) {
	w := newTestWorker(t, "http://127.0.0.1:0")

	data := []byte("chunk payload")
	size, checksum, nodes, err := w.Put(context.Background(), "chunk-1", bytes.NewReader(data), nil)
	if err != nil {
		t.Fatal(err)
	}
	if size != int64(len(data)) {
		t.Fatalf("expected size %d, got %d", len(data), size)
	}
	if len(nodes) != 1 || nodes[0] != w.ID() {
		t.Fatalf("expected self id as sole reporting node, got %v", nodes)
	}

	rc, _, gotChecksum, err := w.Get("chunk-1")
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	if gotChecksum != checksum {
		t.Fatalf("checksum mismatch: %s vs %s", gotChecksum, checksum)
	}
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("round-tripped bytes differ")
	}

	if err := w.Delete("chunk-1"); err != nil {
		t.Fatal(err)
	}
	if _, _, _, err := w.Get("chunk-1"); err != modules.ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestWorkerPutFansOutToPeers(t *testing.T) {
	var gotBody []byte
	peer := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		rw.WriteHeader(http.StatusOK)
	}))
	defer peer.Close()

	w := newTestWorker(t, "http://127.0.0.1:0")
	data := []byte("fan out me")
	_, _, nodes, err := w.Put(context.Background(), "chunk-1", bytes.NewReader(data), []string{peer.URL})
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 2 {
		t.Fatalf("expected self + peer in node list, got %v", nodes)
	}
	if !bytes.Equal(gotBody, data) {
		t.Fatalf("peer did not receive the same bytes: got %q", gotBody)
	}
}

func TestSendHeartbeatPostsInventory(t *testing.T) {
	var received int32
	coordinator := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&received, 1)
		rw.WriteHeader(http.StatusOK)
	}))
	defer coordinator.Close()

	w := newTestWorker(t, coordinator.URL)
	// Wait for the emitter's startup heartbeat, then count only the explicit
	// call below.
	deadline := time.Now().Add(5 * time.Second)
	for atomic.LoadInt32(&received) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	atomic.StoreInt32(&received, 0)
	w.sendHeartbeat()

	if atomic.LoadInt32(&received) != 1 {
		t.Fatalf("expected coordinator to receive exactly one heartbeat, got %d", received)
	}
}
