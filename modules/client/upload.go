package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/uplo-tech/errors"

	"github.com/shardfs/shardfs/crypto"
	"github.com/shardfs/shardfs/modules"
	"github.com/shardfs/shardfs/retry"
)

type uploadInitRequest struct {
	Path      string `json:"path"`
	Size      int64  `json:"size"`
	Overwrite bool   `json:"overwrite,omitempty"`
}

type uploadInitResponse struct {
	FileID    uuid.UUID                  `json:"file_id"`
	ChunkSize int64                      `json:"chunk_size"`
	Chunks    []modules.SessionChunkPlan `json:"chunks"`
}

type putChunkResponse struct {
	Status   string   `json:"status"`
	ChunkID  string   `json:"chunk_id"`
	Size     int64    `json:"size"`
	Checksum string   `json:"checksum"`
	Nodes    []string `json:"nodes"`
}

type commitChunk struct {
	ChunkID  uuid.UUID `json:"chunk_id"`
	Checksum string    `json:"checksum"`
	Nodes    []string  `json:"nodes"`
}

type commitRequest struct {
	FileID uuid.UUID     `json:"file_id"`
	Chunks []commitChunk `json:"chunks"`
}

type uploadResult struct {
	seq      int
	checksum string
	nodes    []string
	err      error
}

// Upload reads size bytes from src (chunk-aligned random access, so a
// retried PUT can re-slice the same bytes) and stores it at path. overwrite
// allows replacing a live file at the same path.
func (c *Client) Upload(ctx context.Context, path string, src io.ReaderAt, size int64, overwrite bool) (modules.FileRecord, error) {
	var init uploadInitResponse
	if err := c.doJSON(http.MethodPost, "/files/upload-init", uploadInitRequest{Path: path, Size: size, Overwrite: overwrite}, &init); err != nil {
		return modules.FileRecord{}, errors.AddContext(err, "upload-init failed")
	}

	plans := init.Chunks
	results := make([]uploadResult, len(plans))

	jobs := make(chan int)
	var wg sync.WaitGroup
	concurrency := c.UploadConcurrency
	if concurrency < 1 {
		concurrency = DefaultUploadConcurrency
	}
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for seq := range jobs {
				offset := int64(seq) * init.ChunkSize
				results[seq] = c.uploadChunk(ctx, seq, offset, plans[seq], src)
			}
		}()
	}
	for i := range plans {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	commitChunks := make([]commitChunk, len(results))
	for i, r := range results {
		if r.err != nil {
			return modules.FileRecord{}, errors.AddContext(r.err, fmt.Sprintf("chunk %d failed", i))
		}
		commitChunks[i] = commitChunk{ChunkID: plans[i].ChunkID, Checksum: r.checksum, Nodes: r.nodes}
	}

	var file modules.FileRecord
	if err := c.doJSON(http.MethodPost, "/files/commit", commitRequest{FileID: init.FileID, Chunks: commitChunks}, nil); err != nil {
		return modules.FileRecord{}, errors.AddContext(err, "commit failed")
	}
	if err := c.doJSON(http.MethodGet, "/files/"+url.QueryEscape(path), nil, &file); err != nil {
		return modules.FileRecord{}, errors.AddContext(err, "could not fetch committed record")
	}
	return file, nil
}

// uploadChunk hashes the chunk slice once, outside the retry loop, then
// PUTs it to the chunk's primary target with the remaining targets passed
// as replicate_to so the primary fans out to peers in the same call.
func (c *Client) uploadChunk(ctx context.Context, seq int, offset int64, plan modules.SessionChunkPlan, src io.ReaderAt) uploadResult {
	checksum, err := crypto.SumHex(io.NewSectionReader(src, offset, plan.Size))
	if err != nil {
		return uploadResult{seq: seq, err: err}
	}

	if len(plan.Targets) == 0 {
		return uploadResult{seq: seq, err: errors.New("upload-init returned no targets for chunk")}
	}
	primary := plan.Targets[0]
	peers := plan.Targets[1:]

	var resp putChunkResponse
	err = retry.Do(ctx, retry.DefaultConfig(), func(attempt int) error {
		reqCtx, cancel := context.WithTimeout(ctx, chunkPutTimeout)
		defer cancel()

		// A fresh SectionReader per attempt: the previous attempt's body
		// may already be partially consumed or the connection torn down.
		body := io.NewSectionReader(src, offset, plan.Size)
		u := primary + "/chunks/" + plan.ChunkID.String()
		if len(peers) > 0 {
			u += "?replicate_to=" + url.QueryEscape(strings.Join(peers, "|"))
		}
		req, err := http.NewRequestWithContext(reqCtx, http.MethodPut, u, body)
		if err != nil {
			return err
		}
		httpResp, err := c.http.Do(req)
		if err != nil {
			return errors.AddContext(err, "unreachable")
		}
		defer httpResp.Body.Close()
		if httpResp.StatusCode >= 400 {
			return fmt.Errorf("chunk PUT failed with status %d", httpResp.StatusCode)
		}
		return json.NewDecoder(httpResp.Body).Decode(&resp)
	})
	if err != nil {
		return uploadResult{seq: seq, err: err}
	}
	return uploadResult{seq: seq, checksum: checksum, nodes: resp.Nodes}
}
