package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/uplo-tech/ratelimit"

	"github.com/shardfs/shardfs/modules"
	"github.com/shardfs/shardfs/retry"
)

// rateLimitedTransport returns an *http.Transport whose outbound
// connections are wrapped in the worker's bandwidth rate limiter, so peer
// fan-out and repair replicate() calls never saturate the local uplink
// the way an unbounded io.Copy to several peers at once could.
func rateLimitedTransport(rl *ratelimit.RateLimit, stop <-chan struct{}) *http.Transport {
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	return &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			return ratelimit.NewRLConn(conn, rl, stop), nil
		},
	}
}

// fanOutResult is the outcome of forwarding a chunk PUT to one peer.
// WorkerID is the first id in the peer's PUT response "nodes" list, or the
// peer URL when the response names none.
type fanOutResult struct {
	WorkerID string
	OK       bool
}

// fanOut forwards body's bytes (already buffered by the caller, since a
// single io.Reader can't be replayed across several peer PUTs) to every
// peer URL in parallel, collecting which ones ack 2xx. A peer failure is
// recorded, not returned as an error: partial fan-out failures never fail
// the local PUT (spec.md's "the coordinator repair loop will heal missing
// copies").
func (w *Worker) fanOut(ctx context.Context, chunkID string, body []byte, peers []string) []fanOutResult {
	results := make(chan fanOutResult, len(peers))
	for _, peer := range peers {
		peer := peer
		go func() {
			id := peer
			err := retry.Do(ctx, retry.DefaultConfig(), func(attempt int) error {
				req, err := http.NewRequestWithContext(ctx, http.MethodPut, peer+"/chunks/"+chunkID, bytes.NewReader(body))
				if err != nil {
					return err
				}
				resp, err := w.peerClient.Do(req)
				if err != nil {
					return err
				}
				defer resp.Body.Close()
				if resp.StatusCode < 200 || resp.StatusCode >= 300 {
					return modules.ErrUnreachable
				}
				var ack struct {
					Nodes []string `json:"nodes"`
				}
				if json.NewDecoder(resp.Body).Decode(&ack) == nil && len(ack.Nodes) > 0 {
					id = ack.Nodes[0]
				}
				return nil
			})
			results <- fanOutResult{WorkerID: id, OK: err == nil}
		}()
	}
	out := make([]fanOutResult, 0, len(peers))
	for range peers {
		out = append(out, <-results)
	}
	return out
}

// Replicate reads chunkID from local storage and PUTs it to destinationURL,
// acting as a client. This is the operation the coordinator's repair loop
// invokes to heal an under-replicated chunk. The chunk is re-opened on
// every retry attempt since an io.Reader already partially consumed by a
// failed attempt can't be replayed.
func (w *Worker) Replicate(ctx context.Context, chunkID, destinationURL string) error {
	return retry.Do(ctx, retry.DefaultConfig(), func(attempt int) error {
		r, _, _, err := w.store.Get(chunkID)
		if err != nil {
			return err
		}
		defer r.Close()

		req, err := http.NewRequestWithContext(ctx, http.MethodPut, destinationURL+"/chunks/"+chunkID, r)
		if err != nil {
			return err
		}
		resp, err := w.peerClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			return modules.ErrUnreachable
		}
		return nil
	})
}
