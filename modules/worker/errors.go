package worker

import "github.com/uplo-tech/errors"

// errHeartbeatRejected marks a heartbeat POST that reached the coordinator
// but was rejected (e.g. mid-restart), distinct from a network failure, so
// the shared retry combinator still backs off and retries it the same way.
var errHeartbeatRejected = errors.New("coordinator rejected heartbeat")
