package coordinator

import (
	"github.com/shardfs/shardfs/modules"
)

// List returns every live file whose path starts with prefix.
func (c *Coordinator) List(prefix string) ([]modules.FileRecord, error) {
	if err := c.tg.Add(); err != nil {
		return nil, err
	}
	defer c.tg.Done()
	return c.store.ListFiles(prefix)
}

// Get returns the live file record at path.
func (c *Coordinator) Get(path string) (modules.FileRecord, error) {
	if err := c.tg.Add(); err != nil {
		return modules.FileRecord{}, err
	}
	defer c.tg.Done()
	f, found, err := c.store.GetFile(path)
	if err != nil {
		return modules.FileRecord{}, err
	}
	if !found {
		return modules.FileRecord{}, modules.ErrNotFound
	}
	return f, nil
}

// Delete soft-deletes (or, if permanent is set, immediately purges) the
// file at path.
func (c *Coordinator) Delete(path string, permanent bool) error {
	if err := c.tg.Add(); err != nil {
		return err
	}
	defer c.tg.Done()
	return c.store.DeleteFile(path, permanent)
}

// ListNodes returns every registered worker, active or not.
func (c *Coordinator) ListNodes() ([]modules.WorkerRecord, error) {
	if err := c.tg.Add(); err != nil {
		return nil, err
	}
	defer c.tg.Done()
	return c.store.ListWorkers()
}

// GetNode returns the registered worker with the given id.
func (c *Coordinator) GetNode(id string) (modules.WorkerRecord, error) {
	if err := c.tg.Add(); err != nil {
		return modules.WorkerRecord{}, err
	}
	defer c.tg.Done()
	w, found, err := c.store.GetWorker(id)
	if err != nil {
		return modules.WorkerRecord{}, err
	}
	if !found {
		return modules.WorkerRecord{}, modules.ErrNotFound
	}
	return w, nil
}

// HealthDetails reports the summary figures surfaced at GET /health.
type HealthDetails struct {
	TotalNodes        int `json:"total_nodes"`
	ActiveNodes       int `json:"active_nodes"`
	ReplicationFactor int `json:"replication_factor"`
}

// HealthSummary returns the aggregate cluster figures for the health
// endpoint.
func (c *Coordinator) HealthSummary() (HealthDetails, error) {
	workers, err := c.ListNodes()
	if err != nil {
		return HealthDetails{}, err
	}
	d := HealthDetails{TotalNodes: len(workers), ReplicationFactor: c.cfg.ReplicationFactor}
	for _, w := range workers {
		if w.State == modules.WorkerActive {
			d.ActiveNodes++
		}
	}
	return d, nil
}
