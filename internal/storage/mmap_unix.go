//go:build !windows

package storage

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func (x *FlatIndex) mmap(size int64) error {
	data, err := unix.Mmap(int(x.file.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("mmap failed: %w", err)
	}
	x.mapped = data
	return nil
}

func (x *FlatIndex) munmap() error {
	if x.mapped == nil {
		return nil
	}
	err := unix.Munmap(x.mapped)
	x.mapped = nil
	return err
}

func (x *FlatIndex) msync() error {
	if x.mapped == nil {
		return nil
	}
	return unix.Msync(x.mapped, unix.MS_SYNC)
}
