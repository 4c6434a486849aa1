//go:build windows

package storage

import (
	"fmt"
	"syscall"
	"unsafe"
)

func (x *FlatIndex) mmap(size int64) error {
	// Create the mapping with the explicit file length. A mapping object
	// created with max size 0 is frozen at the file size of that moment and
	// would not cover bytes added by later growth.
	if size <= 0 {
		return fmt.Errorf("invalid mmap size: %d", size)
	}

	hi := uint32(uint64(size) >> 32)
	lo := uint32(uint64(size) & 0xffffffff)

	h, err := syscall.CreateFileMapping(
		syscall.Handle(x.file.Fd()),
		nil,
		syscall.PAGE_READWRITE,
		hi,
		lo,
		nil,
	)
	if err != nil {
		return fmt.Errorf("CreateFileMapping failed: %w", err)
	}
	x.mapHandle = uintptr(h)

	addr, err := syscall.MapViewOfFile(h, syscall.FILE_MAP_WRITE, 0, 0, uintptr(size))
	if err != nil {
		syscall.CloseHandle(h)
		x.mapHandle = 0
		return fmt.Errorf("MapViewOfFile failed: %w", err)
	}

	x.viewHandle = addr
	x.mapped = unsafe.Slice((*byte)(unsafe.Pointer(addr)), int(size))
	return nil
}

func (x *FlatIndex) munmap() error {
	if x.viewHandle != 0 {
		_ = syscall.UnmapViewOfFile(x.viewHandle)
		x.viewHandle = 0
	}
	if x.mapHandle != 0 {
		_ = syscall.CloseHandle(syscall.Handle(x.mapHandle))
		x.mapHandle = 0
	}
	x.mapped = nil
	return nil
}

func (x *FlatIndex) msync() error {
	if x.viewHandle == 0 {
		return nil
	}
	return syscall.FlushViewOfFile(x.viewHandle, 0)
}
