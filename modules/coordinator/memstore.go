package coordinator

import (
	"time"

	"github.com/google/uuid"
	"github.com/uplo-tech/demotemutex"

	"github.com/shardfs/shardfs/modules"
)

// memStore is the in-memory half of the reference MetadataStore: a single
// writer lock over a handful of maps, read methods taking a lock and
// returning copies. walStore wraps memStore with write-ahead journaling so
// every mutation here survives a restart; boltStore is the alternate,
// journal-free backend (modules.MetadataStore is implemented by both).
type memStore struct {
	mu demotemutex.DemoteMutex

	filesByID map[uuid.UUID]*modules.FileRecord
	livePath  map[string]uuid.UUID

	sessions map[uuid.UUID]*modules.UploadSession
	leases   map[string]*modules.Lease
	workers  map[string]*modules.WorkerRecord
}

func newMemStore() *memStore {
	return &memStore{
		filesByID: make(map[uuid.UUID]*modules.FileRecord),
		livePath:  make(map[string]uuid.UUID),
		sessions:  make(map[uuid.UUID]*modules.UploadSession),
		leases:    make(map[string]*modules.Lease),
		workers:   make(map[string]*modules.WorkerRecord),
	}
}

func cloneFile(f *modules.FileRecord) modules.FileRecord {
	out := *f
	out.Chunks = make([]modules.ChunkRecord, len(f.Chunks))
	copy(out.Chunks, f.Chunks)
	return out
}

// --- Files ---

func (s *memStore) PutFile(f modules.FileRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := f
	cp.Chunks = append([]modules.ChunkRecord(nil), f.Chunks...)
	s.filesByID[f.FileID] = &cp
	if !f.IsDeleted && !f.Provisional {
		s.livePath[f.Path] = f.FileID
	}
	return nil
}

func (s *memStore) GetFile(path string) (modules.FileRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.livePath[path]
	if !ok {
		return modules.FileRecord{}, false, nil
	}
	f, ok := s.filesByID[id]
	if !ok || f.IsDeleted || f.Provisional {
		return modules.FileRecord{}, false, nil
	}
	return cloneFile(f), true, nil
}

func (s *memStore) ListFiles(prefix string) ([]modules.FileRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []modules.FileRecord
	for path, id := range s.livePath {
		if len(prefix) > 0 && !hasPrefix(path, prefix) {
			continue
		}
		f, ok := s.filesByID[id]
		if !ok || f.IsDeleted || f.Provisional {
			continue
		}
		out = append(out, cloneFile(f))
	}
	return out, nil
}

func hasPrefix(path, prefix string) bool {
	return len(path) >= len(prefix) && path[:len(prefix)] == prefix
}

func (s *memStore) DeleteFile(path string, permanent bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.livePath[path]
	if !ok {
		return modules.ErrNotFound
	}
	f, ok := s.filesByID[id]
	if !ok || f.IsDeleted {
		return modules.ErrNotFound
	}
	now := time.Now()
	f.IsDeleted = true
	f.DeletedAt = &now
	delete(s.livePath, path)
	if permanent {
		delete(s.filesByID, id)
	}
	return nil
}

func (s *memStore) SoftDeletedOlderThan(cutoffUnixNano int64) ([]modules.FileRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []modules.FileRecord
	for _, f := range s.filesByID {
		if f.IsDeleted && f.DeletedAt != nil && f.DeletedAt.UnixNano() < cutoffUnixNano {
			out = append(out, cloneFile(f))
		}
	}
	return out, nil
}

func (s *memStore) PurgeFile(fileID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.filesByID, fileID)
	return nil
}

// --- Sessions ---

func (s *memStore) PutSession(sess modules.UploadSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := sess
	s.sessions[sess.FileID] = &cp
	return nil
}

func (s *memStore) GetSession(fileID uuid.UUID) (modules.UploadSession, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[fileID]
	if !ok {
		return modules.UploadSession{}, false, nil
	}
	return *sess, true, nil
}

func (s *memStore) DeleteSession(fileID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, fileID)
	return nil
}

func (s *memStore) ExpiredSessions(cutoffUnixNano int64) ([]modules.UploadSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []modules.UploadSession
	for _, sess := range s.sessions {
		if sess.CreatedAt.UnixNano() < cutoffUnixNano {
			out = append(out, *sess)
		}
	}
	return out, nil
}

// --- Leases ---

func (s *memStore) AcquireLease(l modules.Lease) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.leases[l.Path]; ok {
		if time.Now().Before(existing.Expiration) && existing.ClientID != l.ClientID {
			return false, nil
		}
	}
	cp := l
	s.leases[l.Path] = &cp
	return true, nil
}

func (s *memStore) ReleaseLease(path, leaseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.leases[path]
	if !ok || existing.LeaseID != leaseID {
		return nil
	}
	delete(s.leases, path)
	return nil
}

func (s *memStore) GetLease(path string) (modules.Lease, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.leases[path]
	if !ok {
		return modules.Lease{}, false, nil
	}
	return *l, true, nil
}

// --- Workers ---

func (s *memStore) UpsertWorker(w modules.WorkerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := w
	s.workers[w.WorkerID] = &cp
	return nil
}

func (s *memStore) GetWorker(id string) (modules.WorkerRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workers[id]
	if !ok {
		return modules.WorkerRecord{}, false, nil
	}
	return *w, true, nil
}

func (s *memStore) ListWorkers() ([]modules.WorkerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]modules.WorkerRecord, 0, len(s.workers))
	for _, w := range s.workers {
		out = append(out, *w)
	}
	return out, nil
}

func (s *memStore) MarkWorkersInactive(cutoffUnixNano int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var changed []string
	for id, w := range s.workers {
		if w.State == modules.WorkerActive && w.LastHeartbeat.UnixNano() < cutoffUnixNano {
			w.State = modules.WorkerInactive
			changed = append(changed, id)
		}
	}
	return changed, nil
}

func (s *memStore) Close() error { return nil }
