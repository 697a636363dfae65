package coordinator

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/uplo-tech/bolt"
	"github.com/uplo-tech/errors"

	"github.com/shardfs/shardfs/modules"
)

// Bolt bucket names for boltStore, the alternate embedded-KV-backed
// MetadataStore. Unlike walStore (in-memory + journal), boltStore has no
// in-memory cache: every call is a bolt transaction, trading a little
// latency for a persistence layer that needs no replay step at startup.
var (
	bucketFiles    = []byte("files")
	bucketLivePath = []byte("live_path")
	bucketSessions = []byte("sessions")
	bucketLeases   = []byte("leases")
	bucketWorkers  = []byte("workers")
)

// boltStore implements modules.MetadataStore on top of an embedded
// github.com/uplo-tech/bolt database file, proving out the "durable
// backend is a pluggable interface" requirement: the coordinator can run
// against either this or walStore without any caller-visible difference.
type boltStore struct {
	db *bolt.DB
}

func newBoltStore(path string) (*boltStore, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, errors.AddContext(err, "could not open bolt metadata store")
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketFiles, bucketLivePath, bucketSessions, bucketLeases, bucketWorkers} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.AddContext(err, "could not create bolt buckets")
	}
	return &boltStore{db: db}, nil
}

func (s *boltStore) PutFile(f modules.FileRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(f)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketFiles).Put([]byte(f.FileID.String()), data); err != nil {
			return err
		}
		if !f.IsDeleted && !f.Provisional {
			return tx.Bucket(bucketLivePath).Put([]byte(f.Path), []byte(f.FileID.String()))
		}
		return nil
	})
}

func (s *boltStore) getFileByIDTx(tx *bolt.Tx, id uuid.UUID) (modules.FileRecord, bool, error) {
	data := tx.Bucket(bucketFiles).Get([]byte(id.String()))
	if data == nil {
		return modules.FileRecord{}, false, nil
	}
	var f modules.FileRecord
	if err := json.Unmarshal(data, &f); err != nil {
		return modules.FileRecord{}, false, err
	}
	return f, true, nil
}

func (s *boltStore) GetFile(path string) (modules.FileRecord, bool, error) {
	var out modules.FileRecord
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		idBytes := tx.Bucket(bucketLivePath).Get([]byte(path))
		if idBytes == nil {
			return nil
		}
		id, err := uuid.Parse(string(idBytes))
		if err != nil {
			return err
		}
		f, ok, err := s.getFileByIDTx(tx, id)
		if err != nil || !ok || f.IsDeleted || f.Provisional {
			return err
		}
		out, found = f, true
		return nil
	})
	return out, found, err
}

func (s *boltStore) ListFiles(prefix string) ([]modules.FileRecord, error) {
	var out []modules.FileRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketLivePath).ForEach(func(path, idBytes []byte) error {
			if len(prefix) > 0 && !hasPrefix(string(path), prefix) {
				return nil
			}
			id, err := uuid.Parse(string(idBytes))
			if err != nil {
				return err
			}
			f, ok, err := s.getFileByIDTx(tx, id)
			if err != nil || !ok || f.IsDeleted || f.Provisional {
				return err
			}
			out = append(out, f)
			return nil
		})
	})
	return out, err
}

func (s *boltStore) DeleteFile(path string, permanent bool) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		idBytes := tx.Bucket(bucketLivePath).Get([]byte(path))
		if idBytes == nil {
			return modules.ErrNotFound
		}
		id, err := uuid.Parse(string(idBytes))
		if err != nil {
			return err
		}
		f, ok, err := s.getFileByIDTx(tx, id)
		if err != nil || !ok || f.IsDeleted {
			return modules.ErrNotFound
		}
		now := time.Now()
		f.IsDeleted = true
		f.DeletedAt = &now
		if err := tx.Bucket(bucketLivePath).Delete([]byte(path)); err != nil {
			return err
		}
		if permanent {
			return tx.Bucket(bucketFiles).Delete([]byte(id.String()))
		}
		data, err := json.Marshal(f)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketFiles).Put([]byte(id.String()), data)
	})
}

func (s *boltStore) SoftDeletedOlderThan(cutoff int64) ([]modules.FileRecord, error) {
	var out []modules.FileRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFiles).ForEach(func(_, data []byte) error {
			var f modules.FileRecord
			if err := json.Unmarshal(data, &f); err != nil {
				return err
			}
			if f.IsDeleted && f.DeletedAt != nil && f.DeletedAt.UnixNano() < cutoff {
				out = append(out, f)
			}
			return nil
		})
	})
	return out, err
}

func (s *boltStore) PurgeFile(fileID uuid.UUID) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFiles).Delete([]byte(fileID.String()))
	})
}

func (s *boltStore) PutSession(sess modules.UploadSession) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(sess)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketSessions).Put([]byte(sess.FileID.String()), data)
	})
}

func (s *boltStore) GetSession(fileID uuid.UUID) (modules.UploadSession, bool, error) {
	var out modules.UploadSession
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketSessions).Get([]byte(fileID.String()))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &out)
	})
	return out, found, err
}

func (s *boltStore) DeleteSession(fileID uuid.UUID) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSessions).Delete([]byte(fileID.String()))
	})
}

func (s *boltStore) ExpiredSessions(cutoff int64) ([]modules.UploadSession, error) {
	var out []modules.UploadSession
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSessions).ForEach(func(_, data []byte) error {
			var sess modules.UploadSession
			if err := json.Unmarshal(data, &sess); err != nil {
				return err
			}
			if sess.CreatedAt.UnixNano() < cutoff {
				out = append(out, sess)
			}
			return nil
		})
	})
	return out, err
}

func (s *boltStore) AcquireLease(l modules.Lease) (bool, error) {
	granted := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLeases)
		data := b.Get([]byte(l.Path))
		if data != nil {
			var existing modules.Lease
			if err := json.Unmarshal(data, &existing); err != nil {
				return err
			}
			if time.Now().Before(existing.Expiration) && existing.ClientID != l.ClientID {
				return nil
			}
		}
		enc, err := json.Marshal(l)
		if err != nil {
			return err
		}
		granted = true
		return b.Put([]byte(l.Path), enc)
	})
	return granted, err
}

func (s *boltStore) ReleaseLease(path, leaseID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLeases)
		data := b.Get([]byte(path))
		if data == nil {
			return nil
		}
		var existing modules.Lease
		if err := json.Unmarshal(data, &existing); err != nil {
			return err
		}
		if existing.LeaseID != leaseID {
			return nil
		}
		return b.Delete([]byte(path))
	})
}

func (s *boltStore) GetLease(path string) (modules.Lease, bool, error) {
	var out modules.Lease
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketLeases).Get([]byte(path))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &out)
	})
	return out, found, err
}

func (s *boltStore) UpsertWorker(w modules.WorkerRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(w)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketWorkers).Put([]byte(w.WorkerID), data)
	})
}

func (s *boltStore) GetWorker(id string) (modules.WorkerRecord, bool, error) {
	var out modules.WorkerRecord
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketWorkers).Get([]byte(id))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &out)
	})
	return out, found, err
}

func (s *boltStore) ListWorkers() ([]modules.WorkerRecord, error) {
	var out []modules.WorkerRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketWorkers).ForEach(func(_, data []byte) error {
			var w modules.WorkerRecord
			if err := json.Unmarshal(data, &w); err != nil {
				return err
			}
			out = append(out, w)
			return nil
		})
	})
	return out, err
}

func (s *boltStore) MarkWorkersInactive(cutoff int64) ([]string, error) {
	var changed []string
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketWorkers)
		return b.ForEach(func(id, data []byte) error {
			var w modules.WorkerRecord
			if err := json.Unmarshal(data, &w); err != nil {
				return err
			}
			if w.State == modules.WorkerActive && w.LastHeartbeat.UnixNano() < cutoff {
				w.State = modules.WorkerInactive
				enc, err := json.Marshal(w)
				if err != nil {
					return err
				}
				changed = append(changed, string(id))
				return b.Put(id, enc)
			}
			return nil
		})
	})
	return changed, err
}

func (s *boltStore) Close() error {
	return s.db.Close()
}

var _ modules.MetadataStore = (*boltStore)(nil)
