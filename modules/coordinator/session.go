package coordinator

import (
	"time"

	"github.com/google/uuid"

	"github.com/shardfs/shardfs/modules"
)

// UploadInit begins a new upload: it checks for a path conflict, acquires a
// path lease so a second concurrent upload-init on the same path is
// rejected, computes a chunk plan against the current worker registry, and
// records a provisional UploadSession awaiting Commit.
func (c *Coordinator) UploadInit(path string, size int64, overwrite bool, clientID string) (modules.UploadSession, error) {
	if err := c.tg.Add(); err != nil {
		return modules.UploadSession{}, err
	}
	defer c.tg.Done()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, found, err := c.store.GetFile(path); err != nil {
		return modules.UploadSession{}, err
	} else if found && !overwrite {
		return modules.UploadSession{}, modules.ErrPathConflict
	}

	lease, err := c.acquirePathLease(path, clientID)
	if err != nil {
		return modules.UploadSession{}, err
	}

	workers, err := c.store.ListWorkers()
	if err != nil {
		c.releasePathLease(path, lease.LeaseID)
		return modules.UploadSession{}, err
	}

	chunkSize := c.cfg.ChunkSize
	numChunks := (size + chunkSize - 1) / chunkSize

	plans := make([]modules.SessionChunkPlan, 0, numChunks)
	for i := int64(0); i < numChunks; i++ {
		thisSize := chunkSize
		if remainder := size - i*chunkSize; remainder < chunkSize {
			thisSize = remainder
		}
		targets, err := Place(workers, int(i), thisSize, c.cfg.ReplicationFactor)
		if err != nil {
			c.releasePathLease(path, lease.LeaseID)
			return modules.UploadSession{}, err
		}
		urls := make([]string, len(targets))
		for j, w := range targets {
			urls[j] = w.URL()
		}
		plans = append(plans, modules.SessionChunkPlan{
			ChunkID: uuid.New(),
			Size:    thisSize,
			Targets: urls,
		})
	}

	sess := modules.UploadSession{
		FileID:    uuid.New(),
		Path:      path,
		Size:      size,
		ChunkSize: chunkSize,
		Chunks:    plans,
		CreatedAt: time.Now(),
		Overwrite: overwrite,
	}
	if err := c.store.PutSession(sess); err != nil {
		c.releasePathLease(path, lease.LeaseID)
		return modules.UploadSession{}, err
	}

	provisional := modules.FileRecord{
		FileID:      sess.FileID,
		Path:        path,
		Size:        size,
		CreatedAt:   sess.CreatedAt,
		ModifiedAt:  sess.CreatedAt,
		Provisional: true,
	}
	if err := c.store.PutFile(provisional); err != nil {
		c.store.DeleteSession(sess.FileID)
		c.releasePathLease(path, lease.LeaseID)
		return modules.UploadSession{}, err
	}

	return sess, nil
}

// Commit finalizes an upload: it validates that the reported chunk set
// matches the session's plan one-for-one and that every chunk has at least
// one reporting worker, then publishes the file into the namespace.
func (c *Coordinator) Commit(fileID uuid.UUID, reported []modules.ChunkRecord) (modules.FileRecord, error) {
	if err := c.tg.Add(); err != nil {
		return modules.FileRecord{}, err
	}
	defer c.tg.Done()

	c.mu.Lock()
	defer c.mu.Unlock()

	sess, found, err := c.store.GetSession(fileID)
	if err != nil {
		return modules.FileRecord{}, err
	}
	if !found {
		return modules.FileRecord{}, modules.ErrSessionNotFound
	}
	if time.Since(sess.CreatedAt) > c.cfg.SessionTimeout {
		c.abandonSession(sess)
		return modules.FileRecord{}, modules.ErrSessionExpired
	}
	if len(reported) != len(sess.Chunks) {
		return modules.FileRecord{}, modules.ErrInvalidChunkPlan
	}

	chunks := make([]modules.ChunkRecord, len(sess.Chunks))
	for i, plan := range sess.Chunks {
		rc := reported[i]
		if rc.ChunkID != plan.ChunkID {
			return modules.FileRecord{}, modules.ErrInvalidChunkPlan
		}
		if len(rc.Replicas) == 0 {
			return modules.FileRecord{}, modules.ErrNoReportingWorkers
		}
		rc.Seq = i
		rc.Size = plan.Size
		for j := range rc.Replicas {
			rc.Replicas[j].State = modules.ReplicaCommitted
			rc.Replicas[j].LastConfirmed = time.Now()
		}
		chunks[i] = rc
	}

	now := time.Now()
	f := modules.FileRecord{
		FileID:     sess.FileID,
		Path:       sess.Path,
		Size:       sess.Size,
		CreatedAt:  sess.CreatedAt,
		ModifiedAt: now,
		Chunks:     chunks,
	}
	if err := c.store.PutFile(f); err != nil {
		return modules.FileRecord{}, err
	}
	if err := c.store.DeleteSession(sess.FileID); err != nil {
		c.log.Println("WARN: could not delete committed upload session:", err)
	}
	if lease, found, err := c.store.GetLease(sess.Path); err == nil && found {
		c.releasePathLease(sess.Path, lease.LeaseID)
	}
	return f, nil
}

// abandonSession discards a timed-out upload session: it removes the
// provisional file record and frees the path lease so a new upload-init
// on the same path can proceed.
func (c *Coordinator) abandonSession(sess modules.UploadSession) {
	if err := c.store.PurgeFile(sess.FileID); err != nil {
		c.log.Println("WARN: could not purge abandoned provisional file:", err)
	}
	if err := c.store.DeleteSession(sess.FileID); err != nil {
		c.log.Println("WARN: could not delete abandoned upload session:", err)
	}
	if lease, found, err := c.store.GetLease(sess.Path); err == nil && found {
		c.releasePathLease(sess.Path, lease.LeaseID)
	}
}

// threadedSessionSweep periodically abandons upload sessions that have
// outlived the configured session timeout without a commit.
func (c *Coordinator) threadedSessionSweep() {
	if err := c.tg.Add(); err != nil {
		return
	}
	defer c.tg.Done()

	for {
		select {
		case <-c.tg.StopChan():
			return
		case <-time.After(c.cfg.SessionTimeout / 4):
		}

		cutoff := time.Now().Add(-c.cfg.SessionTimeout).UnixNano()
		expired, err := c.store.ExpiredSessions(cutoff)
		if err != nil {
			c.log.Println("WARN: session sweep could not list expired sessions:", err)
			continue
		}
		for _, sess := range expired {
			c.mu.Lock()
			c.abandonSession(sess)
			c.mu.Unlock()
		}
	}
}
