package build

var (
	// apiPasswordEnvVar is the environment variable that sets a custom API
	// password if the default is not used.
	apiPasswordEnvVar = "SHARDFS_API_PASSWORD"

	// dataDirEnvVar is the environment variable that tells a daemon where
	// to put its persist directory (WAL/snapshot for the coordinator,
	// chunk storage root for a worker).
	dataDirEnvVar = "SHARDFS_DATA_DIR"
)
