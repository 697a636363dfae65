package main

import (
	"github.com/shardfs/shardfs/modules"
)

// buildModulesConfig overlays any flags the operator set on top of the
// package's defaults; a zero value means "use the default".
func buildModulesConfig(config Config) modules.Config {
	cfg := modules.DefaultConfig()
	if config.HeartbeatInterval > 0 {
		cfg.HeartbeatInterval = config.HeartbeatInterval
	}
	return cfg
}
