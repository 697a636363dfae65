package modules

import "time"

// Default configuration values, overridable per-daemon via flags (see
// cmd/shardfs-coordinatord and cmd/shardfs-workerd).
const (
	// DefaultChunkSize is the coordinator-authoritative chunk size. Clients
	// MUST slice uploads using whatever chunk size upload-init returns, not
	// this constant directly.
	DefaultChunkSize = 64 << 20 // 64 MiB

	// DefaultReplicationFactor is the target number of committed replicas
	// per chunk.
	DefaultReplicationFactor = 3

	// DefaultHeartbeatInterval is how often a worker POSTs its inventory.
	DefaultHeartbeatInterval = 10 * time.Second

	// DefaultDeadThreshold is how long since the last heartbeat before a
	// worker is considered inactive.
	DefaultDeadThreshold = 30 * time.Second

	// DefaultRepairPeriod is how often the repair loop scans for
	// under-replicated chunks.
	DefaultRepairPeriod = 60 * time.Second

	// DefaultMaxConcurrentRepairs bounds simultaneous cross-worker repair
	// copies.
	DefaultMaxConcurrentRepairs = 10

	// DefaultGCPeriod is how often the garbage collector sweeps
	// soft-deleted files.
	DefaultGCPeriod = 24 * time.Hour

	// DefaultGCGrace is how long a file stays soft-deleted before its
	// chunks are physically reclaimed.
	DefaultGCGrace = 7 * 24 * time.Hour

	// DefaultSessionTimeout is how long an upload session may sit without
	// a commit before it is abandoned.
	DefaultSessionTimeout = time.Hour

	// DefaultLeaseTimeout is how long a path lease is held before it
	// expires, freeing the path for another client's upload-init.
	DefaultLeaseTimeout = time.Minute

	// MinFreeRatio is the free-space-ratio floor below which a worker is
	// ineligible for new placements.
	MinFreeRatio = 0.10
)

// Config bundles the coordinator's tunables, all overridable at startup.
type Config struct {
	ChunkSize            int64
	ReplicationFactor    int
	HeartbeatInterval    time.Duration
	DeadThreshold        time.Duration
	RepairPeriod         time.Duration
	MaxConcurrentRepairs int
	GCPeriod             time.Duration
	GCGrace              time.Duration
	SessionTimeout       time.Duration
	LeaseTimeout         time.Duration
	RebalanceEnabled     bool
}

// DefaultConfig returns the spec-mandated defaults.
func DefaultConfig() Config {
	return Config{
		ChunkSize:            DefaultChunkSize,
		ReplicationFactor:    DefaultReplicationFactor,
		HeartbeatInterval:    DefaultHeartbeatInterval,
		DeadThreshold:        DefaultDeadThreshold,
		RepairPeriod:         DefaultRepairPeriod,
		MaxConcurrentRepairs: DefaultMaxConcurrentRepairs,
		GCPeriod:             DefaultGCPeriod,
		GCGrace:              DefaultGCGrace,
		SessionTimeout:       DefaultSessionTimeout,
		LeaseTimeout:         DefaultLeaseTimeout,
		RebalanceEnabled:     false,
	}
}
