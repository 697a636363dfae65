package coordinator

import (
	"time"

	"github.com/google/uuid"

	"github.com/shardfs/shardfs/modules"
)

// Heartbeat records a worker's self-report of free/total space and the set
// of chunk ids it currently holds, then reconciles every placement that
// names this worker against what it actually reported: a placement absent
// from the report is marked deleted (the worker lost or never got the
// chunk), and a pending placement present in the report is promoted to
// committed. The newest heartbeat always wins over whatever the
// coordinator previously believed about this worker.
func (c *Coordinator) Heartbeat(workerID, host string, port int, freeBytes, totalBytes int64, chunkIDs []uuid.UUID) error {
	if err := c.tg.Add(); err != nil {
		return err
	}
	defer c.tg.Done()

	w := modules.WorkerRecord{
		WorkerID:      workerID,
		Host:          host,
		Port:          port,
		FreeBytes:     freeBytes,
		TotalBytes:    totalBytes,
		ChunkCount:    len(chunkIDs),
		LastHeartbeat: time.Now(),
		State:         modules.WorkerActive,
	}
	if existing, found, err := c.store.GetWorker(workerID); err == nil && found {
		w.Rack = existing.Rack
	}
	if err := c.store.UpsertWorker(w); err != nil {
		return err
	}

	reported := make(map[uuid.UUID]bool, len(chunkIDs))
	for _, id := range chunkIDs {
		reported[id] = true
	}
	return c.reconcileWorkerPlacements(workerID, reported)
}

func (c *Coordinator) reconcileWorkerPlacements(workerID string, reported map[uuid.UUID]bool) error {
	var workerURL string
	if w, found, err := c.store.GetWorker(workerID); err == nil && found {
		workerURL = w.URL()
	}

	files, err := c.store.ListFiles("")
	if err != nil {
		return err
	}
	for _, f := range files {
		changed := false
		for i := range f.Chunks {
			ch := &f.Chunks[i]
			has := reported[ch.ChunkID]
			known := false
			for j := range ch.Replicas {
				r := &ch.Replicas[j]
				if r.WorkerID != workerID {
					continue
				}
				known = true
				switch {
				case has && r.State == modules.ReplicaPending:
					r.State = modules.ReplicaCommitted
					r.LastConfirmed = time.Now()
					changed = true
				case has:
					r.LastConfirmed = time.Now()
				case !has && r.State != modules.ReplicaDeleted:
					r.State = modules.ReplicaDeleted
					changed = true
				}
			}
			// A reported chunk this worker isn't yet recorded as holding
			// (e.g. it was a repair destination committed before the
			// coordinator ever saw it land) gets a fresh committed
			// placement instead of being silently ignored.
			if has && !known {
				ch.Replicas = append(ch.Replicas, modules.ReplicaPlacement{
					WorkerID:      workerID,
					URL:           workerURL,
					State:         modules.ReplicaCommitted,
					LastConfirmed: time.Now(),
				})
				changed = true
			}
		}
		if changed {
			if err := c.store.PutFile(f); err != nil {
				c.log.Println("WARN: could not persist heartbeat reconciliation for", f.Path, ":", err)
			}
		}
	}
	return nil
}

// threadedLivenessLoop periodically marks workers inactive once their
// heartbeat has gone silent past the configured dead threshold, checking
// at a quarter of that threshold so the transition is noticed promptly.
func (c *Coordinator) threadedLivenessLoop() {
	if err := c.tg.Add(); err != nil {
		return
	}
	defer c.tg.Done()

	interval := c.cfg.DeadThreshold / 4
	if interval <= 0 {
		interval = time.Second
	}
	for {
		select {
		case <-c.tg.StopChan():
			return
		case <-time.After(interval):
		}
		cutoff := time.Now().Add(-c.cfg.DeadThreshold).UnixNano()
		changed, err := c.store.MarkWorkersInactive(cutoff)
		if err != nil {
			c.log.Println("WARN: liveness scan failed:", err)
			continue
		}
		for _, id := range changed {
			c.log.Println("worker marked inactive after missed heartbeats:", id)
		}
	}
}
