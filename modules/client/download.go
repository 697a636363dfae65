package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/uplo-tech/errors"

	"github.com/shardfs/shardfs/crypto"
	"github.com/shardfs/shardfs/modules"
)

// maxReplicaFailures is how many checksum or transport failures a single
// replica may accrue before the download stops trying it for the rest of
// the transfer, per spec.md §4.3.
const maxReplicaFailures = 2

type replicaFailures struct {
	mu     sync.Mutex
	counts map[string]int
}

func newReplicaFailures() *replicaFailures { return &replicaFailures{counts: make(map[string]int)} }

func (f *replicaFailures) record(workerID string) (exhausted bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[workerID]++
	return f.counts[workerID] >= maxReplicaFailures
}

func (f *replicaFailures) isExhausted(workerID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[workerID] >= maxReplicaFailures
}

// Download fetches path and writes its reassembled bytes to dst at the
// correct chunk offsets, fetching chunks in parallel and verifying each
// against its recorded SHA-256, failing over across replicas on mismatch.
func (c *Client) Download(ctx context.Context, path string, dst io.WriterAt) (modules.FileRecord, error) {
	var file modules.FileRecord
	if err := c.doJSON(http.MethodGet, "/files/"+url.QueryEscape(path), nil, &file); err != nil {
		return modules.FileRecord{}, errors.AddContext(err, "could not resolve file")
	}
	filePath := path

	concurrency := c.DownloadConcurrency
	if concurrency < 1 {
		concurrency = DefaultDownloadConcurrency
	}
	if file.Size > StreamableThreshold {
		concurrency = StreamableDownloadConcurrency
	}

	failures := newReplicaFailures()
	offsets := make([]int64, len(file.Chunks))
	var running int64
	for i, ch := range file.Chunks {
		offsets[i] = running
		running += ch.Size
	}

	jobs := make(chan int)
	errs := make(chan error, len(file.Chunks))
	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				if err := c.downloadChunk(ctx, file.Chunks[idx], offsets[idx], filePath, dst, failures); err != nil {
					errs <- errors.AddContext(err, fmt.Sprintf("chunk %d", idx))
				}
			}
		}()
	}
	for i := range file.Chunks {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	close(errs)

	for err := range errs {
		return modules.FileRecord{}, err
	}
	return file, nil
}

func (c *Client) downloadChunk(ctx context.Context, ch modules.ChunkRecord, offset int64, filePath string, dst io.WriterAt, failures *replicaFailures) error {
	if c.UseProxy {
		if err := c.downloadViaProxy(ctx, ch, offset, filePath, dst); err == nil {
			return nil
		}
	}

	var lastErr error
	for _, replica := range ch.Replicas {
		if replica.State != modules.ReplicaCommitted || replica.URL == "" {
			continue
		}
		if failures.isExhausted(replica.WorkerID) {
			continue
		}
		err := c.fetchAndVerify(ctx, replica.URL, ch.ChunkID.String(), ch.Checksum, offset, dst)
		if err == nil {
			return nil
		}
		lastErr = err
		failures.record(replica.WorkerID)
	}
	if lastErr == nil {
		lastErr = errors.New("no live committed replica for chunk")
	}
	return lastErr
}

func (c *Client) fetchAndVerify(ctx context.Context, workerURL, chunkID, wantChecksum string, offset int64, dst io.WriterAt) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, workerURL+"/chunks/"+chunkID, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.AddContext(err, "unreachable")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("chunk GET failed with status %d", resp.StatusCode)
	}

	var buf bytes.Buffer
	cr := crypto.NewChecksumReader(resp.Body)
	if _, err := io.Copy(&buf, cr); err != nil {
		return err
	}
	if wantChecksum != "" && !crypto.Equal(cr.SumHex(), wantChecksum) {
		return modules.ErrCorrupted
	}
	_, err = dst.WriteAt(buf.Bytes(), offset)
	return err
}

func (c *Client) downloadViaProxy(ctx context.Context, ch modules.ChunkRecord, offset int64, filePath string, dst io.WriterAt) error {
	u := c.apiURL("/proxy/chunks/"+ch.ChunkID.String()) + "?file_path=" + url.QueryEscape(filePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.AddContext(err, "unreachable")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("proxy GET failed with status %d", resp.StatusCode)
	}
	var buf bytes.Buffer
	cr := crypto.NewChecksumReader(resp.Body)
	if _, err := io.Copy(&buf, cr); err != nil {
		return err
	}
	if ch.Checksum != "" && !crypto.Equal(cr.SumHex(), ch.Checksum) {
		return modules.ErrCorrupted
	}
	_, err = dst.WriteAt(buf.Bytes(), offset)
	return err
}
