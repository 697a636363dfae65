package client

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/shardfs/shardfs/modules"
)

// ListFiles requests the namespace, optionally narrowed to prefix and
// paginated with limit/offset (either left at zero disables that bound).
func (c *Client) ListFiles(prefix string, limit, offset int) ([]modules.FileRecord, error) {
	q := url.Values{}
	if prefix != "" {
		q.Set("prefix", prefix)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	path := "/files"
	if enc := q.Encode(); enc != "" {
		path += "?" + enc
	}
	var files []modules.FileRecord
	if err := c.doJSON(http.MethodGet, path, nil, &files); err != nil {
		return nil, err
	}
	return files, nil
}

// GetFile fetches a single file's committed record by path.
func (c *Client) GetFile(path string) (modules.FileRecord, error) {
	var f modules.FileRecord
	err := c.doJSON(http.MethodGet, "/files/"+url.QueryEscape(path), nil, &f)
	return f, err
}

// DeleteFile soft-deletes a file by path.
func (c *Client) DeleteFile(path string) error {
	return c.doJSON(http.MethodDelete, "/files/"+url.QueryEscape(path), nil, nil)
}

// ListNodes requests the registered worker roster.
func (c *Client) ListNodes() ([]modules.WorkerRecord, error) {
	var nodes []modules.WorkerRecord
	if err := c.doJSON(http.MethodGet, "/nodes", nil, &nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

// GetNode fetches a single registered worker's record by id.
func (c *Client) GetNode(nodeID string) (modules.WorkerRecord, error) {
	var n modules.WorkerRecord
	err := c.doJSON(http.MethodGet, "/nodes/"+url.QueryEscape(nodeID), nil, &n)
	return n, err
}

// Health requests the coordinator's liveness summary.
func (c *Client) Health() (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := c.doJSON(http.MethodGet, "/health", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
