//go:build linux || darwin

package worker

import "golang.org/x/sys/unix"

// diskStats reports the free and total byte capacity of the filesystem
// mounted at dir, used both for heartbeat reporting and for refusing PUTs
// once the local disk is full.
func diskStats(dir string) (freeBytes, totalBytes int64, err error) {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return 0, 0, err
	}
	freeBytes = int64(st.Bavail) * int64(st.Bsize)
	totalBytes = int64(st.Blocks) * int64(st.Bsize)
	return freeBytes, totalBytes, nil
}
