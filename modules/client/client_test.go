package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/shardfs/shardfs/crypto"
	"github.com/shardfs/shardfs/modules"
)

// fakeWorker is a minimal stand-in for a storage worker's chunk PUT/GET
// endpoints, enough to drive the client's upload and download paths
// without a real coordinator or worker process.
type fakeWorker struct {
	mu     sync.Mutex
	chunks map[string][]byte
}

func newFakeWorker() *httptest.Server {
	fw := &fakeWorker{chunks: make(map[string][]byte)}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/chunks/")
		switch r.Method {
		case http.MethodPut:
			body, _ := io.ReadAll(r.Body)
			fw.mu.Lock()
			fw.chunks[id] = body
			fw.mu.Unlock()
			json.NewEncoder(w).Encode(putChunkResponse{Status: "ok", ChunkID: id, Size: int64(len(body)), Nodes: []string{"worker-1"}})
		case http.MethodGet:
			fw.mu.Lock()
			body, ok := fw.chunks[id]
			fw.mu.Unlock()
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Write(body)
		}
	}))
}

// fakeCoordinator backs upload-init/commit/get-file with an in-memory
// single-file namespace, just enough for the client's three-phase upload
// and its path-to-replica resolution on download.
type fakeCoordinator struct {
	mu        sync.Mutex
	chunkSize int64
	workerURL string
	file      modules.FileRecord
}

func newFakeCoordinator(chunkSize int64, workerURL string) *httptest.Server {
	fc := &fakeCoordinator{chunkSize: chunkSize, workerURL: workerURL}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/files/upload-init", func(w http.ResponseWriter, r *http.Request) {
		var req uploadInitRequest
		json.NewDecoder(r.Body).Decode(&req)

		numChunks := (req.Size + fc.chunkSize - 1) / fc.chunkSize
		if numChunks == 0 {
			numChunks = 1
		}
		plans := make([]modules.SessionChunkPlan, numChunks)
		for i := int64(0); i < numChunks; i++ {
			size := fc.chunkSize
			if remainder := req.Size - i*fc.chunkSize; remainder < fc.chunkSize {
				size = remainder
			}
			plans[i] = modules.SessionChunkPlan{ChunkID: uuid.New(), Size: size, Targets: []string{fc.workerURL}}
		}
		fileID := uuid.New()

		fc.mu.Lock()
		fc.file = modules.FileRecord{FileID: fileID, Path: req.Path, Size: req.Size}
		fc.mu.Unlock()

		json.NewEncoder(w).Encode(uploadInitResponse{FileID: fileID, ChunkSize: fc.chunkSize, Chunks: plans})
	})
	mux.HandleFunc("/api/v1/files/commit", func(w http.ResponseWriter, r *http.Request) {
		var req commitRequest
		json.NewDecoder(r.Body).Decode(&req)

		fc.mu.Lock()
		chunks := make([]modules.ChunkRecord, len(req.Chunks))
		for i, rc := range req.Chunks {
			replicas := make([]modules.ReplicaPlacement, len(rc.Nodes))
			for j := range rc.Nodes {
				replicas[j] = modules.ReplicaPlacement{WorkerID: rc.Nodes[j], URL: fc.workerURL, State: modules.ReplicaCommitted}
			}
			size := fc.chunkSize
			if remainder := fc.file.Size - int64(i)*fc.chunkSize; remainder < fc.chunkSize {
				size = remainder
			}
			chunks[i] = modules.ChunkRecord{ChunkID: rc.ChunkID, Seq: i, Size: size, Checksum: rc.Checksum, Replicas: replicas}
		}
		fc.file.Chunks = chunks
		fc.mu.Unlock()

		json.NewEncoder(w).Encode(map[string]interface{}{"status": "committed"})
	})
	mux.HandleFunc("/api/v1/files/", func(w http.ResponseWriter, r *http.Request) {
		fc.mu.Lock()
		defer fc.mu.Unlock()
		json.NewEncoder(w).Encode(fc.file)
	})
	return httptest.NewServer(mux)
}

type memWriterAt struct {
	mu  sync.Mutex
	buf []byte
}

func (m *memWriterAt) WriteAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	need := off + int64(len(p))
	if int64(len(m.buf)) < need {
		grown := make([]byte, need)
		copy(grown, m.buf)
		m.buf = grown
	}
	copy(m.buf[off:], p)
	return len(p), nil
}

func TestUploadThenDownloadRoundTrip(t *testing.T) {
	worker := newFakeWorker()
	defer worker.Close()

	data := bytes.Repeat([]byte("shard"), 1000) // 5000 bytes, several chunks at a small chunk size
	const chunkSize = 1024
	coord := newFakeCoordinator(chunkSize, worker.URL)
	defer coord.Close()

	c := New(coord.URL, "test-client")
	c.UploadConcurrency = 2

	src := bytes.NewReader(data)
	file, err := c.Upload(context.Background(), "/greeting.txt", src, int64(len(data)), false)
	if err != nil {
		t.Fatal(err)
	}
	if len(file.Chunks) == 0 {
		t.Fatal("expected at least one committed chunk")
	}

	dst := &memWriterAt{}
	c.DownloadConcurrency = 2
	if _, err := c.Download(context.Background(), "/greeting.txt", dst); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(dst.buf, data) {
		t.Fatalf("downloaded bytes differ from uploaded bytes (got %d bytes, want %d)", len(dst.buf), len(data))
	}
}

func TestDownloadFailsOverToNextReplicaOnCorruption(t *testing.T) {
	good := newFakeWorker()
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not the right bytes"))
	}))
	defer bad.Close()

	data := []byte("authoritative chunk bytes")
	checksum, err := crypto.SumHex(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}

	chunkID := uuid.MustParse("00000000-0000-0000-0000-000000000001")

	// Seed the good worker directly via its PUT endpoint.
	req, _ := http.NewRequest(http.MethodPut, good.URL+"/chunks/"+chunkID.String(), bytes.NewReader(data))
	if _, err := http.DefaultClient.Do(req); err != nil {
		t.Fatal(err)
	}

	file := modules.FileRecord{
		Path: "/x.bin",
		Size: int64(len(data)),
		Chunks: []modules.ChunkRecord{{
			ChunkID:  chunkID,
			Size:     int64(len(data)),
			Checksum: checksum,
			Replicas: []modules.ReplicaPlacement{
				{WorkerID: "bad", URL: bad.URL, State: modules.ReplicaCommitted},
				{WorkerID: "good", URL: good.URL, State: modules.ReplicaCommitted},
			},
		}},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/files/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(file)
	})
	coord := httptest.NewServer(mux)
	defer coord.Close()

	c := New(coord.URL, "test-client")
	dst := &memWriterAt{}
	if _, err := c.Download(context.Background(), "/x.bin", dst); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(dst.buf, data) {
		t.Fatalf("expected failover to the good replica to recover correct bytes, got %q", dst.buf)
	}
}
