package coordinator

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/uplo-tech/errors"

	"github.com/shardfs/shardfs/retry"
)

// wireClient is the coordinator's outbound HTTP client for the two worker
// operations it needs directly: triggering a repair-time replication and
// issuing a GC delete. Everything else the coordinator knows about a
// worker comes from heartbeats, not from calling the worker.
type wireClient struct {
	http *http.Client
}

func newWireClient(timeout time.Duration) *wireClient {
	return &wireClient{http: &http.Client{Timeout: timeout}}
}

// triggerReplicate asks sourceURL's worker to push chunkID to destURL,
// retrying transient failures with the shared backoff policy. A 4xx answer
// is returned as an error without retrying.
func (c *wireClient) triggerReplicate(ctx context.Context, sourceURL, chunkID, destURL string) error {
	u := sourceURL + "/internal/replicate/" + chunkID + "?destination_url=" + url.QueryEscape(destURL)
	refused := errors.New("replicate request refused")
	cfg := retry.DefaultConfig()
	cfg.IsRetriable = func(err error) bool { return !errors.Contains(err, refused) }
	return retry.Do(ctx, cfg, func(attempt int) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
		if err != nil {
			return err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			return errors.New("replicate request failed with status " + resp.Status)
		}
		if resp.StatusCode >= 400 {
			return errors.AddContext(refused, resp.Status) // source refused the request; repair loop will try again next cycle
		}
		return nil
	})
}

// deleteChunk issues a best-effort DELETE for chunkID against workerURL,
// used by the GC sweep once a file's retention grace period has elapsed.
func (c *wireClient) deleteChunk(ctx context.Context, workerURL, chunkID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, workerURL+"/chunks/"+chunkID, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}
