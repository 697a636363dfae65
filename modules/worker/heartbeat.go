package worker

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/shardfs/shardfs/retry"
)

// threadedHeartbeatEmitter POSTs the worker's inventory and free space to
// the coordinator every HeartbeatInterval. A missed heartbeat is logged,
// never fatal: the coordinator will simply mark this worker inactive after
// DeadThreshold and resume trusting it once heartbeats return.
func (w *Worker) threadedHeartbeatEmitter() {
	if err := w.tg.Add(); err != nil {
		return
	}
	defer w.tg.Done()

	for {
		w.sendHeartbeat()
		select {
		case <-w.tg.StopChan():
			return
		case <-time.After(w.cfg.HeartbeatInterval):
		}
	}
}

func (w *Worker) sendHeartbeat() {
	body, err := w.marshalHeartbeat()
	if err != nil {
		w.log.Println("WARN: could not build heartbeat payload:", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.HeartbeatInterval)
	defer cancel()
	err = retry.Do(ctx, retry.DefaultConfig(), func(attempt int) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.coordinatorURL+"/api/v1/nodes/heartbeat", bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := w.peerClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			return errHeartbeatRejected
		}
		return nil
	})
	if err != nil {
		w.log.Println("WARN: heartbeat failed:", err)
	}
}
