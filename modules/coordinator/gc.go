package coordinator

import (
	"context"
	"time"
)

// threadedGCLoop sweeps soft-deleted files whose grace period has elapsed,
// asking every worker holding one of their chunks to delete the bytes
// before purging the file record itself.
func (c *Coordinator) threadedGCLoop() {
	if err := c.tg.Add(); err != nil {
		return
	}
	defer c.tg.Done()

	for {
		select {
		case <-c.tg.StopChan():
			return
		case <-time.After(c.cfg.GCPeriod):
		}
		c.runGCSweep()
	}
}

func (c *Coordinator) runGCSweep() {
	cutoff := time.Now().Add(-c.cfg.GCGrace).UnixNano()
	files, err := c.store.SoftDeletedOlderThan(cutoff)
	if err != nil {
		c.log.Println("WARN: GC sweep could not list soft-deleted files:", err)
		return
	}
	for _, f := range files {
		ctx, cancel := context.WithTimeout(context.Background(), wireClientTimeout)
		for _, ch := range f.Chunks {
			for _, r := range ch.Replicas {
				if err := c.wc.deleteChunk(ctx, r.URL, ch.ChunkID.String()); err != nil {
					c.log.Printf("GC: could not delete chunk %s on %s: %v\n", ch.ChunkID, r.URL, err)
				}
			}
		}
		cancel()
		if err := c.store.PurgeFile(f.FileID); err != nil {
			c.log.Println("WARN: GC could not purge file record:", err)
		}
	}
}
