package coordinator

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/montanaflynn/stats"

	"github.com/shardfs/shardfs/modules"
)

// repairTask is one under-replicated chunk queued for healing.
type repairTask struct {
	filePath string
	chunk    modules.ChunkRecord
	priority int // R - len(active committed replicas); higher runs first
}

// threadedRepairLoop periodically scans every chunk for under-replication
// and issues replicate() calls, bounded to cfg.MaxConcurrentRepairs
// concurrent copies at a time. Priority is R minus the chunk's current
// count of committed replicas on active workers, so the most degraded
// chunks are serviced first within a scan.
func (c *Coordinator) threadedRepairLoop() {
	if err := c.tg.Add(); err != nil {
		return
	}
	defer c.tg.Done()

	for {
		select {
		case <-c.tg.StopChan():
			return
		case <-time.After(c.cfg.RepairPeriod):
		}
		c.runRepairScan()
	}
}

func (c *Coordinator) runRepairScan() {
	files, err := c.store.ListFiles("")
	if err != nil {
		c.log.Println("WARN: repair scan could not list files:", err)
		return
	}
	workers, err := c.store.ListWorkers()
	if err != nil {
		c.log.Println("WARN: repair scan could not list workers:", err)
		return
	}
	activeByID := make(map[string]modules.WorkerRecord, len(workers))
	for _, w := range workers {
		if w.State == modules.WorkerActive {
			activeByID[w.WorkerID] = w
		}
	}

	var tasks []repairTask
	for _, f := range files {
		for _, ch := range f.Chunks {
			count := 0
			for _, r := range ch.Replicas {
				if r.State == modules.ReplicaCommitted {
					if _, ok := activeByID[r.WorkerID]; ok {
						count++
					}
				}
			}
			if count < c.cfg.ReplicationFactor {
				tasks = append(tasks, repairTask{filePath: f.Path, chunk: ch, priority: c.cfg.ReplicationFactor - count})
			}
		}
	}
	if len(tasks) == 0 {
		return
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].priority > tasks[j].priority })

	sem := make(chan struct{}, c.cfg.MaxConcurrentRepairs)
	var wg sync.WaitGroup
	for _, t := range tasks {
		select {
		case <-c.tg.StopChan():
			wg.Wait()
			return
		case sem <- struct{}{}:
		}
		wg.Add(1)
		t := t
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			c.repairChunk(t.filePath, t.chunk, activeByID)
		}()
	}
	wg.Wait()
}

// repairChunk picks a live source replica and an eligible destination
// worker that does not already hold a copy, then asks the source to push
// a new copy there. The new placement is recorded as pending; the next
// heartbeat from the destination promotes it once it actually appears in
// that worker's reported inventory.
func (c *Coordinator) repairChunk(filePath string, ch modules.ChunkRecord, activeByID map[string]modules.WorkerRecord) {
	var source *modules.ReplicaPlacement
	held := make(map[string]bool, len(ch.Replicas))
	for i := range ch.Replicas {
		r := &ch.Replicas[i]
		held[r.WorkerID] = true
		if source == nil && r.State == modules.ReplicaCommitted {
			if _, ok := activeByID[r.WorkerID]; ok {
				source = r
			}
		}
	}
	if source == nil {
		c.log.Printf("repair: chunk %s has no live source replica, skipping this cycle\n", ch.ChunkID)
		return
	}

	candidates := c.rebalanceCandidates(activeByID, held, ch.Size)
	if len(candidates) == 0 {
		return
	}
	dest := candidates[0]

	ctx, cancel := context.WithTimeout(context.Background(), wireClientTimeout)
	defer cancel()
	if err := c.wc.triggerReplicate(ctx, source.URL, ch.ChunkID.String(), dest.URL()); err != nil {
		c.log.Printf("repair: replicate chunk %s from %s to %s failed: %v\n", ch.ChunkID, source.URL, dest.URL(), err)
		return
	}

	c.recordPendingReplica(filePath, ch.ChunkID, modules.ReplicaPlacement{
		WorkerID:      dest.WorkerID,
		URL:           dest.URL(),
		State:         modules.ReplicaPending,
		LastConfirmed: time.Now(),
	})
}

// recordPendingReplica appends a newly triggered repair destination onto the
// owning FileRecord's chunk entry, the only place replica placement is ever
// read back from (listing, get, download, and heartbeat reconciliation all
// read FileRecord.Chunks[].Replicas). The heartbeat handler promotes this
// pending entry to committed once the destination worker reports the chunk.
func (c *Coordinator) recordPendingReplica(filePath string, chunkID uuid.UUID, placement modules.ReplicaPlacement) {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, found, err := c.store.GetFile(filePath)
	if err != nil {
		c.log.Println("WARN: could not reload file to record pending repair placement:", err)
		return
	}
	if !found {
		c.log.Printf("repair: file %s no longer exists, dropping pending placement for chunk %s\n", filePath, chunkID)
		return
	}
	for i := range f.Chunks {
		if f.Chunks[i].ChunkID != chunkID {
			continue
		}
		f.Chunks[i].Replicas = append(f.Chunks[i].Replicas, placement)
		if err := c.store.PutFile(f); err != nil {
			c.log.Println("WARN: could not persist pending repair placement:", err)
		}
		return
	}
	c.log.Printf("repair: chunk %s no longer present in file %s, dropping pending placement\n", chunkID, filePath)
}

// rebalanceCandidates returns eligible destination workers for a repair
// copy, excluding any worker that already holds the chunk. When
// RebalanceEnabled is set, candidates are ordered by free-space ratio,
// highest first, so workers with more free space than the cluster average
// come first and new copies spread toward under-utilized workers rather
// than just the first eligible one found; otherwise the candidates stay in
// worker-id order. Existing placements are never moved.
func (c *Coordinator) rebalanceCandidates(activeByID map[string]modules.WorkerRecord, held map[string]bool, chunkSize int64) []modules.WorkerRecord {
	var pool []modules.WorkerRecord
	for _, w := range activeByID {
		if held[w.WorkerID] {
			continue
		}
		if eligible(w, chunkSize) {
			pool = append(pool, w)
		}
	}
	sort.Slice(pool, func(i, j int) bool { return pool[i].WorkerID < pool[j].WorkerID })
	if !c.cfg.RebalanceEnabled || len(pool) < 2 {
		return pool
	}

	ratios := make([]float64, len(pool))
	for i, w := range pool {
		ratios[i] = w.FreeRatio()
	}
	avg, err := stats.Mean(ratios)
	if err != nil {
		return pool
	}
	// Prefer workers with more free space than the cluster average, so
	// repair copies drift toward under-utilized workers over time.
	sort.SliceStable(pool, func(i, j int) bool {
		return pool[i].FreeRatio()-avg > pool[j].FreeRatio()-avg
	})
	return pool
}
