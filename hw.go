// Copyright 2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tiledma

import (
	"fmt"
	"time"

	"github.com/platinasystems/tiledma/rsrc"
)

// Loc addresses one tile of the array.
type Loc struct {
	Col, Row int
}

func (l Loc) String() string { return fmt.Sprintf("(%d,%d)", l.Col, l.Row) }

// Dir is a transfer direction, named for the shim DMA queue that
// carries it: mm2s reads host memory into the array, s2mm writes the
// array's stream back to host memory.
type Dir int

const (
	HostToTile Dir = iota // mm2s
	TileToHost            // s2mm
)

func (d Dir) String() string {
	switch d {
	case HostToTile:
		return "mm2s"
	case TileToHost:
		return "s2mm"
	}
	return fmt.Sprintf("dir(%d)", int(d))
}

// Topology describes one array partition.
type Topology struct {
	Cols      int // shim columns
	Rows      int // tile rows above the shim row
	ShimRow   int // row index of the shim tiles
	Partition int // partition id on the device node
}

// Driver owns the array registers. One Driver instance backs one
// partition and must be safe for concurrent use; the runtime calls it
// from whichever goroutine holds the relevant channel.
//
// WaitForIdle with a zero timeout samples the channel exactly once and
// returns immediately; the runtime builds its blocking waits from such
// single polls so that it, not the hardware layer, owns the sleeping
// and the cancellation.
type Driver interface {
	Configure(Topology) error
	Teardown() error
	// ResetArray returns the whole partition to its post boot state.
	// It stays valid after Teardown.
	ResetArray() error

	MaxQueueSize(Loc) int
	EnableChannel(loc Loc, ch int, dir Dir) error
	SetAxiBurst(loc Loc, ch int, dir Dir, burst int) error

	// SetTransfer stages the address window of descriptor bd. The
	// slice is the exact transfer window within an attached mapping.
	SetTransfer(loc Loc, bd int, buf []byte) error
	// SetLockPair stages the hardware lock acquired before and
	// released after the transfer of descriptor bd.
	SetLockPair(loc Loc, bd, acquire, release int) error
	// WriteBD commits the staged descriptor to the tile.
	WriteBD(loc Loc, bd int) error
	Enqueue(loc Loc, ch int, dir Dir, bd int) error

	PendingCount(loc Loc, ch int, dir Dir) (int, error)
	WaitForIdle(loc Loc, ch int, dir Dir, timeout time.Duration) (bool, error)

	SelectStreamEventPort(loc Loc, port int, master bool, streamID int) error
	ResetStreamEventPort(loc Loc, port int) error
	CounterControl(loc Loc, mod rsrc.Module, ctr, startEvent, stopEvent int) error
	CounterValue(loc Loc, mod rsrc.Module, ctr int) (uint64, error)
	CounterReset(loc Loc, mod rsrc.Module, ctr int) error
	ClearCounterControl(loc Loc, mod rsrc.Module, ctr int) error
}

// Buffer is a host buffer that can be exported as a file descriptor.
// The runtime owns a returned descriptor and closes it through the
// BufMapper when the transfer's descriptor slot is reclaimed.
type Buffer interface {
	Export() (int, error)
	Size() uint64
}

// BufMapper attaches exported buffers to the array partition.
//
// Attach takes ownership of fd, makes the buffer visible to the
// partition and maps it into the process; on error the descriptor is
// closed before returning. Detach undoes all of that. Attach errors
// match ErrAttach or ErrMap so callers can tell the two stages apart.
type BufMapper interface {
	Attach(fd int, size uint64) ([]byte, error)
	Detach(fd int, mem []byte) error
}

// PortLoader names the ports of the partition, usually from the
// application's compiled metadata.
type PortLoader interface {
	StreamPorts() ([]Port, error)
	ShimPorts() ([]Port, error)
}
