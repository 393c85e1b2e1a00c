// Copyright 2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package zocl attaches exported buffers to an array partition through
// the zocl DRM render node. It implements tiledma.BufMapper; the
// register side of the array is driven elsewhere, behind
// tiledma.Driver.
package zocl

import (
	"fmt"
	"os"
	"syscall"
	"unsafe"

	"github.com/platinasystems/tiledma"
)

// DefaultNode is the render node the zocl driver registers.
const DefaultNode = "/dev/dri/renderD128"

// drm_zocl uapi: command numbers of the aie dmabuf calls, relative to
// the DRM command base.
const (
	drmCommandBase = 0x40

	zoclAieAttach = 0x14
	zoclAieDetach = 0x15
)

// aieFd is the argument of both dmabuf calls.
type aieFd struct {
	partition uint32
	fd        int32
}

// iowr encodes a read write ioctl on the DRM character device.
func iowr(nr, size uintptr) uintptr {
	const iocWrite, iocRead = 1, 2
	return (iocRead|iocWrite)<<30 | size<<16 | 'd'<<8 | (drmCommandBase + nr)
}

// Partition is one open array partition on the zocl node.
type Partition struct {
	f  *os.File
	id uint32
}

// Open opens partition id on the zocl render node at path, DefaultNode
// when path is empty.
func Open(path string, id int) (*Partition, error) {
	if path == "" {
		path = DefaultNode
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	return &Partition{f: f, id: uint32(id)}, nil
}

// Close releases the render node. Buffers already attached stay
// attached until the kernel tears the partition down.
func (p *Partition) Close() error { return p.f.Close() }

// Attach makes the exported buffer fd visible to the partition and maps
// it. The descriptor belongs to the partition until Detach, and is
// closed here on any failure.
func (p *Partition) Attach(fd int, size uint64) ([]byte, error) {
	arg := aieFd{partition: p.id, fd: int32(fd)}
	_, _, e := syscall.Syscall(syscall.SYS_IOCTL, p.f.Fd(),
		iowr(zoclAieAttach, unsafe.Sizeof(arg)),
		uintptr(unsafe.Pointer(&arg)))
	if e != 0 {
		syscall.Close(fd)
		return nil, fmt.Errorf("%w: %v", tiledma.ErrAttach, e)
	}
	mem, err := syscall.Mmap(fd, 0, int(size),
		syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		p.detach(fd)
		syscall.Close(fd)
		return nil, fmt.Errorf("%w: %v", tiledma.ErrMap, err)
	}
	return mem, nil
}

// Detach unmaps mem, releases the buffer from the partition and closes
// the descriptor.
func (p *Partition) Detach(fd int, mem []byte) error {
	var err error
	if mem != nil {
		err = syscall.Munmap(mem)
	}
	if derr := p.detach(fd); err == nil {
		err = derr
	}
	if cerr := syscall.Close(fd); err == nil {
		err = cerr
	}
	return err
}

func (p *Partition) detach(fd int) error {
	arg := aieFd{partition: p.id, fd: int32(fd)}
	_, _, e := syscall.Syscall(syscall.SYS_IOCTL, p.f.Fd(),
		iowr(zoclAieDetach, unsafe.Sizeof(arg)),
		uintptr(unsafe.Pointer(&arg)))
	if e != 0 {
		return e
	}
	return nil
}
