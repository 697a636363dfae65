package coordinator

import (
	"encoding/hex"
	"time"

	"github.com/uplo-tech/fastrand"

	"github.com/shardfs/shardfs/modules"
)

// newLeaseID returns an opaque, unique-enough lease identifier. Leases are
// short-lived and scoped to a single path, so collision risk only matters
// within one lease timeout window.
func newLeaseID() string {
	return hex.EncodeToString(fastrand.Bytes(16))
}

// acquirePathLease grants clientID exclusive use of path for the
// coordinator's configured lease timeout, serializing racing upload-init
// calls against the same path. It returns modules.ErrPathConflict if
// another client already holds a live lease on the path.
func (c *Coordinator) acquirePathLease(path, clientID string) (modules.Lease, error) {
	lease := modules.Lease{
		LeaseID:    newLeaseID(),
		Path:       path,
		ClientID:   clientID,
		Expiration: time.Now().Add(c.cfg.LeaseTimeout),
	}
	granted, err := c.store.AcquireLease(lease)
	if err != nil {
		return modules.Lease{}, err
	}
	if !granted {
		return modules.Lease{}, modules.ErrPathConflict
	}
	return lease, nil
}

// releasePathLease frees a lease early, once its upload session has been
// committed or abandoned instead of waiting for it to expire naturally.
func (c *Coordinator) releasePathLease(path, leaseID string) error {
	return c.store.ReleaseLease(path, leaseID)
}
