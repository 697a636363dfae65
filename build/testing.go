package build

import (
	"os"
	"path/filepath"
)

// TestingDir is the directory that contains all files and folders created
// during testing.
var TestingDir = filepath.Join(os.TempDir(), "ShardFSTesting")

// TempDir joins the provided directories and prefixes them with the
// testing directory, removing any stale data left by a previous run.
func TempDir(dirs ...string) string {
	path := filepath.Join(TestingDir, filepath.Join(dirs...))
	_ = os.RemoveAll(path)
	return path
}
