//go:build unix

package dbfile

import (
	"os"

	"golang.org/x/sys/unix"
)

func mmapPlatform(f *os.File, size int64) ([]byte, bool) {
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, false
	}
	_ = unix.Madvise(data, unix.MADV_RANDOM)
	return data, true
}

func munmapPlatform(data []byte) {
	_ = unix.Munmap(data)
}

func dataSyncPlatform(f interface{ Fd() uintptr }) error {
	return unix.Fdatasync(int(f.Fd()))
}
