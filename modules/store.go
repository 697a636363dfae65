package modules

import "github.com/google/uuid"

// MetadataStore is the pluggable durable backend for all coordinator
// metadata mutations: the namespace (with each file's chunk/replica
// placements embedded in its FileRecord), worker registry, upload
// sessions, and path leases. The reference implementation
// (coordinator.walStore) is in-memory with write-ahead journaling to a
// local file; coordinator.boltStore is an alternate embedded-KV-backed
// implementation behind the same interface.
//
// Every mutating method must be atomic with respect to concurrent callers;
// implementations are responsible for their own internal locking. Read
// methods return copies, never references into live state, so callers may
// hold the result across further mutations safely.
type MetadataStore interface {
	// Files
	PutFile(FileRecord) error
	GetFile(path string) (FileRecord, bool, error)
	ListFiles(prefix string) ([]FileRecord, error)
	DeleteFile(path string, permanent bool) error
	SoftDeletedOlderThan(graceCutoffUnixNano int64) ([]FileRecord, error)
	PurgeFile(fileID uuid.UUID) error

	// Sessions
	PutSession(UploadSession) error
	GetSession(fileID uuid.UUID) (UploadSession, bool, error)
	DeleteSession(fileID uuid.UUID) error
	ExpiredSessions(cutoffUnixNano int64) ([]UploadSession, error)

	// Leases
	AcquireLease(Lease) (bool, error)
	ReleaseLease(path, leaseID string) error
	GetLease(path string) (Lease, bool, error)

	// Workers
	UpsertWorker(WorkerRecord) error
	GetWorker(id string) (WorkerRecord, bool, error)
	ListWorkers() ([]WorkerRecord, error)
	MarkWorkersInactive(cutoffUnixNano int64) ([]string, error)

	// Close releases any held file descriptors.
	Close() error
}
