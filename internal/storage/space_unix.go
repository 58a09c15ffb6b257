//go:build linux || darwin

package storage

import "golang.org/x/sys/unix"

// FreeSpace returns the bytes available to unprivileged users on the
// directory's volume.
func (d *Dir) FreeSpace() (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(d.root, &st); err != nil {
		return 0, err
	}
	return st.Bavail * uint64(st.Bsize), nil //nolint:gosec // block size is positive
}
