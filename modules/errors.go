package modules

import "github.com/uplo-tech/errors"

// Error kinds surfaced by the core, as enumerated in the spec's error
// handling design. Handlers in node/api map these to HTTP status codes
// through a single table (node/api/errors.go); nothing further up the
// stack should need to pattern-match on error strings.
var (
	// ErrPathConflict is returned by upload-init when a live file already
	// exists at the requested path and overwrite was not requested.
	ErrPathConflict = errors.New("path-conflict: a live file already exists at this path")

	// ErrNoCapacity is returned by upload-init when fewer than R workers
	// are active, or none has sufficient free space for the chunk.
	ErrNoCapacity = errors.New("no-capacity: insufficient active workers to satisfy replication factor")

	// ErrNoSpace is returned by a worker's PUT when its local disk is full.
	ErrNoSpace = errors.New("no-space: worker disk is full")

	// ErrCorrupted is returned by a worker's GET when the computed digest
	// does not match the chunk's recorded sidecar checksum.
	ErrCorrupted = errors.New("corrupted: checksum mismatch on read")

	// ErrUnreachable wraps network timeouts and connection failures.
	ErrUnreachable = errors.New("unreachable: network timeout or connection refused")

	// ErrSessionExpired is returned by commit when the upload session's
	// lifetime has elapsed.
	ErrSessionExpired = errors.New("session-expired: commit arrived after the session timed out")

	// ErrNotFound is returned by get/delete for a missing or soft-deleted
	// path, and by node lookups for an unknown worker id.
	ErrNotFound = errors.New("not-found")

	// ErrNoReportingWorkers is returned by commit if any chunk in the
	// session has zero reporting workers.
	ErrNoReportingWorkers = errors.New("commit rejected: a chunk has zero reporting workers")

	// ErrSessionNotFound is returned by commit if the file id does not
	// match any known upload session (already committed, already timed
	// out, or never existed).
	ErrSessionNotFound = errors.New("upload session not found")

	// ErrInvalidChunkPlan is returned by commit if the reported chunk set
	// doesn't match the session's plan one-for-one.
	ErrInvalidChunkPlan = errors.New("commit chunk set does not match the upload session's plan")
)
