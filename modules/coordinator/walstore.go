package coordinator

import (
	"encoding/json"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/uplo-tech/errors"
	"github.com/uplo-tech/writeaheadlog"

	"github.com/shardfs/shardfs/modules"
	"github.com/shardfs/shardfs/persist"
)

// Update names journaled to the write-ahead log. Every mutating
// memStore call is wrapped by one of these so a crash between "journaled"
// and "applied" is replayed on restart instead of silently lost.
const (
	updatePutFile       = "putFile"
	updateDeleteFile    = "deleteFile"
	updatePurgeFile     = "purgeFile"
	updatePutSession    = "putSession"
	updateDeleteSession = "deleteSession"
	updateAcquireLease  = "acquireLease"
	updateReleaseLease  = "releaseLease"
	updateUpsertWorker  = "upsertWorker"
)

// walStore is the reference MetadataStore: an in-memory memStore fronted
// by a write-ahead log, exactly the "single-process in-memory
// implementation with write-ahead journaling to a local file" the spec
// names as the reference backend. Every mutation is journaled via a
// writeaheadlog.Transaction before being applied to memStore, following
// the teacher's create-transaction / SignalSetupComplete / apply /
// SignalUpdatesApplied sequence.
type walStore struct {
	mem *memStore
	wal *writeaheadlog.WAL
	log *persist.Logger
}

// newWALStore opens (or creates) the write-ahead log at <dir>/coordinator.wal,
// replaying any unapplied transactions left by an unclean shutdown before
// returning.
func newWALStore(dir string, log *persist.Logger) (*walStore, error) {
	opts := writeaheadlog.Options{
		StaticLog: log.Logger,
		Path:      filepath.Join(dir, "coordinator.wal"),
	}
	txns, wal, err := writeaheadlog.NewWithOptions(opts)
	if err != nil {
		return nil, errors.AddContext(err, "could not open coordinator WAL")
	}
	s := &walStore{mem: newMemStore(), wal: wal, log: log}
	for _, txn := range txns {
		log.Printf("replaying WAL transaction with %d updates\n", len(txn.Updates))
		for _, u := range txn.Updates {
			if err := s.applyUpdate(u); err != nil {
				return nil, errors.AddContext(err, "failed to replay WAL update "+u.Name)
			}
		}
		if err := txn.SignalUpdatesApplied(); err != nil {
			return nil, errors.AddContext(err, "failed to signal replayed updates applied")
		}
	}
	return s, nil
}

func (s *walStore) applyUpdate(u writeaheadlog.Update) error {
	switch u.Name {
	case updatePutFile:
		var f modules.FileRecord
		if err := json.Unmarshal(u.Instructions, &f); err != nil {
			return err
		}
		return s.mem.PutFile(f)
	case updateDeleteFile:
		var args struct {
			Path      string
			Permanent bool
		}
		if err := json.Unmarshal(u.Instructions, &args); err != nil {
			return err
		}
		err := s.mem.DeleteFile(args.Path, args.Permanent)
		if errors.Contains(err, modules.ErrNotFound) {
			return nil
		}
		return err
	case updatePurgeFile:
		var id uuid.UUID
		if err := json.Unmarshal(u.Instructions, &id); err != nil {
			return err
		}
		return s.mem.PurgeFile(id)
	case updatePutSession:
		var sess modules.UploadSession
		if err := json.Unmarshal(u.Instructions, &sess); err != nil {
			return err
		}
		return s.mem.PutSession(sess)
	case updateDeleteSession:
		var id uuid.UUID
		if err := json.Unmarshal(u.Instructions, &id); err != nil {
			return err
		}
		return s.mem.DeleteSession(id)
	case updateAcquireLease:
		var l modules.Lease
		if err := json.Unmarshal(u.Instructions, &l); err != nil {
			return err
		}
		_, err := s.mem.AcquireLease(l)
		return err
	case updateReleaseLease:
		var args struct{ Path, LeaseID string }
		if err := json.Unmarshal(u.Instructions, &args); err != nil {
			return err
		}
		return s.mem.ReleaseLease(args.Path, args.LeaseID)
	case updateUpsertWorker:
		var w modules.WorkerRecord
		if err := json.Unmarshal(u.Instructions, &w); err != nil {
			return err
		}
		return s.mem.UpsertWorker(w)
	default:
		return errors.New("unrecognized WAL update: " + u.Name)
	}
}

// journal writes a single update to the WAL and, once the log confirms the
// write, applies it to memStore. A panic if apply fails after the WAL
// signals setup complete mirrors the teacher's own defer-panic in
// createAndApplyTransaction: at that point the durable record of intent
// exists on disk and an in-memory failure to match it is a bug, not a
// recoverable condition.
func (s *walStore) journal(name string, payload interface{}, apply func() error) (err error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.AddContext(err, "could not marshal WAL payload")
	}
	txn, err := s.wal.NewTransaction([]writeaheadlog.Update{{Name: name, Instructions: data}})
	if err != nil {
		return errors.AddContext(err, "could not create WAL transaction")
	}
	if err := <-txn.SignalSetupComplete(); err != nil {
		return errors.AddContext(err, "could not signal WAL setup complete")
	}
	defer func() {
		if err != nil {
			panic(errors.AddContext(err, "failed to apply a journaled update"))
		}
	}()
	if err = apply(); err != nil {
		return err
	}
	if err = txn.SignalUpdatesApplied(); err != nil {
		return errors.AddContext(err, "could not signal WAL updates applied")
	}
	return nil
}

func (s *walStore) PutFile(f modules.FileRecord) error {
	return s.journal(updatePutFile, f, func() error { return s.mem.PutFile(f) })
}

func (s *walStore) GetFile(path string) (modules.FileRecord, bool, error) { return s.mem.GetFile(path) }

func (s *walStore) ListFiles(prefix string) ([]modules.FileRecord, error) { return s.mem.ListFiles(prefix) }

func (s *walStore) DeleteFile(path string, permanent bool) error {
	// journal panics when the apply step fails, so a missing or
	// already-deleted path is answered with ErrNotFound before journaling.
	s.mem.mu.RLock()
	f, ok := s.mem.filesByID[s.mem.livePath[path]]
	s.mem.mu.RUnlock()
	if !ok || f.IsDeleted {
		return modules.ErrNotFound
	}
	args := struct {
		Path      string
		Permanent bool
	}{path, permanent}
	return s.journal(updateDeleteFile, args, func() error { return s.mem.DeleteFile(path, permanent) })
}

func (s *walStore) SoftDeletedOlderThan(cutoff int64) ([]modules.FileRecord, error) {
	return s.mem.SoftDeletedOlderThan(cutoff)
}

func (s *walStore) PurgeFile(fileID uuid.UUID) error {
	return s.journal(updatePurgeFile, fileID, func() error { return s.mem.PurgeFile(fileID) })
}

func (s *walStore) PutSession(sess modules.UploadSession) error {
	return s.journal(updatePutSession, sess, func() error { return s.mem.PutSession(sess) })
}

func (s *walStore) GetSession(fileID uuid.UUID) (modules.UploadSession, bool, error) {
	return s.mem.GetSession(fileID)
}

func (s *walStore) DeleteSession(fileID uuid.UUID) error {
	return s.journal(updateDeleteSession, fileID, func() error { return s.mem.DeleteSession(fileID) })
}

func (s *walStore) ExpiredSessions(cutoff int64) ([]modules.UploadSession, error) {
	return s.mem.ExpiredSessions(cutoff)
}

func (s *walStore) AcquireLease(l modules.Lease) (bool, error) {
	ok, err := s.mem.AcquireLease(l)
	if err != nil || !ok {
		return ok, err
	}
	// The grant already landed in memory (needed so a racing caller sees
	// it immediately); journal it for durability across restarts.
	if jerr := s.journal(updateAcquireLease, l, func() error { return nil }); jerr != nil {
		return ok, jerr
	}
	return ok, nil
}

func (s *walStore) ReleaseLease(path, leaseID string) error {
	args := struct{ Path, LeaseID string }{path, leaseID}
	return s.journal(updateReleaseLease, args, func() error { return s.mem.ReleaseLease(path, leaseID) })
}

func (s *walStore) GetLease(path string) (modules.Lease, bool, error) { return s.mem.GetLease(path) }

func (s *walStore) UpsertWorker(w modules.WorkerRecord) error {
	return s.journal(updateUpsertWorker, w, func() error { return s.mem.UpsertWorker(w) })
}

func (s *walStore) GetWorker(id string) (modules.WorkerRecord, bool, error) { return s.mem.GetWorker(id) }

func (s *walStore) ListWorkers() ([]modules.WorkerRecord, error) { return s.mem.ListWorkers() }

func (s *walStore) MarkWorkersInactive(cutoff int64) ([]string, error) {
	// Liveness transitions are a read-time derived fact recomputed from
	// LastHeartbeat on every scan; they don't need to survive a restart
	// independently of the heartbeat timestamps that already did, so this
	// is applied directly without its own journal entry.
	return s.mem.MarkWorkersInactive(cutoff)
}

func (s *walStore) Close() error {
	return s.wal.Close()
}

var _ modules.MetadataStore = (*walStore)(nil)
