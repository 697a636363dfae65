package api

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/uplo-tech/errors"

	"github.com/shardfs/shardfs/modules"
	"github.com/shardfs/shardfs/modules/coordinator"
)

var proxyClient = &http.Client{Timeout: 60 * time.Second}

// proxyForwardChunk resolves each worker id's registered URL and PUTs body
// to its /chunks/{chunkID}, for clients that can reach the coordinator but
// not any worker directly. It returns the ids that accepted the write.
func proxyForwardChunk(ctx context.Context, c *coordinator.Coordinator, chunkID string, body []byte, targetIDs []string) ([]string, error) {
	var ok []string
	for _, id := range targetIDs {
		node, err := c.GetNode(id)
		if err != nil {
			continue
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, node.URL()+"/chunks/"+chunkID, bytes.NewReader(body))
		if err != nil {
			continue
		}
		resp, err := proxyClient.Do(req)
		if err != nil {
			continue
		}
		resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			ok = append(ok, id)
		}
	}
	if len(ok) == 0 {
		return nil, errors.AddContext(modules.ErrUnreachable, "no target worker accepted the chunk")
	}
	return ok, nil
}

// proxyStreamChunk fetches chunkID from the first reachable committed
// replica and copies its body to w, for clients that cannot address a
// worker directly.
func proxyStreamChunk(w http.ResponseWriter, ctx context.Context, chunkID string, replicas []modules.ReplicaPlacement) error {
	for _, r := range replicas {
		if r.State != modules.ReplicaCommitted || r.URL == "" {
			continue
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL+"/chunks/"+chunkID, nil)
		if err != nil {
			continue
		}
		resp, err := proxyClient.Do(req)
		if err != nil {
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			continue
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		_, copyErr := io.Copy(w, resp.Body)
		resp.Body.Close()
		return copyErr
	}
	return errors.AddContext(modules.ErrUnreachable, "no committed replica reachable for chunk")
}
