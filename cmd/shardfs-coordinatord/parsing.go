package main

import (
	"strings"

	"github.com/uplo-tech/errors"

	"github.com/shardfs/shardfs/modules"
	"github.com/shardfs/shardfs/modules/coordinator"
)

// processConfig validates the parsed flags and normalizes values that have
// an allowed-but-unusual form.
func processConfig(config Config) (Config, error) {
	backend := strings.ToLower(config.Backend)
	if backend != "" && backend != string(coordinator.BackendWAL) && backend != string(coordinator.BackendBolt) {
		return Config{}, errors.New("unrecognized --backend: " + config.Backend)
	}
	config.Backend = backend
	return config, nil
}

// buildModulesConfig overlays any flags the operator set on top of the
// package's defaults; a zero value means "use the default".
func buildModulesConfig(config Config) modules.Config {
	cfg := modules.DefaultConfig()
	if config.ChunkSize > 0 {
		cfg.ChunkSize = config.ChunkSize
	}
	if config.ReplicationFactor > 0 {
		cfg.ReplicationFactor = config.ReplicationFactor
	}
	if config.HeartbeatInterval > 0 {
		cfg.HeartbeatInterval = config.HeartbeatInterval
	}
	if config.DeadThreshold > 0 {
		cfg.DeadThreshold = config.DeadThreshold
	}
	if config.RepairPeriod > 0 {
		cfg.RepairPeriod = config.RepairPeriod
	}
	if config.MaxRepairs > 0 {
		cfg.MaxConcurrentRepairs = config.MaxRepairs
	}
	if config.GCPeriod > 0 {
		cfg.GCPeriod = config.GCPeriod
	}
	if config.GCGrace > 0 {
		cfg.GCGrace = config.GCGrace
	}
	if config.SessionTimeout > 0 {
		cfg.SessionTimeout = config.SessionTimeout
	}
	if config.LeaseTimeout > 0 {
		cfg.LeaseTimeout = config.LeaseTimeout
	}
	cfg.RebalanceEnabled = config.RebalanceEnabled
	return cfg
}
