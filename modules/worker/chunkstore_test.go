package worker

import (
	"bytes"
	"io"
	"os"
	"testing"

	"github.com/uplo-tech/errors"

	"github.com/shardfs/shardfs/modules"
)

func TestChunkStorePutGetRoundTrip(t *testing.T) {
	s, err := NewChunkStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	data := []byte("hello distributed world")
	size, checksum, err := s.Put("chunk-1", bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if size != int64(len(data)) {
		t.Fatalf("expected size %d, got %d", len(data), size)
	}

	rc, gotSize, gotChecksum, err := s.Get("chunk-1")
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	if gotSize != size || gotChecksum != checksum {
		t.Fatalf("metadata mismatch: size %d/%d checksum %s/%s", gotSize, size, gotChecksum, checksum)
	}
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("round-tripped bytes differ: got %q want %q", got, data)
	}
}

func TestChunkStorePutIsImmutable(t *testing.T) {
	s, err := NewChunkStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	size, checksum, err := s.Put("chunk-1", bytes.NewReader([]byte("first bytes")))
	if err != nil {
		t.Fatal(err)
	}

	size2, checksum2, err := s.Put("chunk-1", bytes.NewReader([]byte("different, longer bytes")))
	if err != nil {
		t.Fatal(err)
	}
	if size2 != size || checksum2 != checksum {
		t.Fatalf("second Put with differing bytes changed recorded size/checksum: got %d/%s want %d/%s", size2, checksum2, size, checksum)
	}

	rc, _, _, err := s.Get("chunk-1")
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte("first bytes")) {
		t.Fatalf("expected original bytes preserved, got %q", got)
	}
}

func TestChunkStoreGetMissingChunk(t *testing.T) {
	s, err := NewChunkStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, _, _, err := s.Get("does-not-exist"); !errors.Contains(err, modules.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestChunkStoreDetectsCorruptionAndQuarantines(t *testing.T) {
	s, err := NewChunkStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.Put("chunk-1", bytes.NewReader([]byte("original bytes"))); err != nil {
		t.Fatal(err)
	}

	// Corrupt the chunk body in place, behind the sidecar's back.
	if err := os.WriteFile(s.chunkPath("chunk-1"), []byte("tampered bytes!!"), 0600); err != nil {
		t.Fatal(err)
	}

	rc, _, _, err := s.Get("chunk-1")
	if err != nil {
		t.Fatal(err)
	}
	_, err = io.ReadAll(rc)
	rc.Close()
	if !errors.Contains(err, modules.ErrCorrupted) {
		t.Fatalf("expected ErrCorrupted, got %v", err)
	}

	if _, err := os.Stat(s.chunkPath("chunk-1") + badSuffix); err != nil {
		t.Fatal("expected corrupted chunk to be renamed with .bad suffix")
	}
	if _, _, _, err := s.Get("chunk-1"); !errors.Contains(err, modules.ErrNotFound) {
		t.Fatalf("expected quarantined chunk to read as not-found, got %v", err)
	}
}

func TestChunkStoreDeleteIsIdempotent(t *testing.T) {
	s, err := NewChunkStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.Put("chunk-1", bytes.NewReader([]byte("x"))); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete("chunk-1"); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete("chunk-1"); err != nil {
		t.Fatalf("second delete of an already-deleted chunk should be a no-op, got %v", err)
	}
}

func TestChunkStoreScanPairsChunkAndSidecar(t *testing.T) {
	s, err := NewChunkStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.Put("chunk-1", bytes.NewReader([]byte("abc"))); err != nil {
		t.Fatal(err)
	}
	// An orphaned .chunk file with no sidecar must not appear in the scan.
	if err := os.WriteFile(s.chunkPath("orphan"), []byte("xyz"), 0600); err != nil {
		t.Fatal(err)
	}

	entries, err := s.scan()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].ID != "chunk-1" {
		t.Fatalf("expected scan to report exactly chunk-1, got %+v", entries)
	}
}
