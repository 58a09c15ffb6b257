//go:build !(linux || darwin)

package storage

import "errors"

var errFreeSpaceUnsupported = errors.New("free space query not supported on this platform")

func (d *Dir) FreeSpace() (uint64, error) {
	return 0, errFreeSpaceUnsupported
}
