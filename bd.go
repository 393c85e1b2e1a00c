// Copyright 2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tiledma

import "sync"

// bdSlot holds the host side state of one hardware buffer descriptor: the
// exported file descriptor and the partition mapping staged on it.
type bdSlot struct {
	fd  int
	mem []byte
}

// bdRing tracks the descriptor slots of one shim DMA channel. Every slot
// is on exactly one of two queues: idle, or pending in hardware order.
// Both queues are FIFOs, so the descriptor reused first is always the
// oldest one the hardware retired.
//
// Descriptor numbers partition by channel, base..base+depth-1, so the
// channels of a tile never share a slot.
type bdRing struct {
	mu      sync.Mutex
	ch      int
	dir     Dir
	base    int
	idle    []int
	pending []int
	slots   []bdSlot

	submitted uint64
	completed uint64
	bytes     uint64
}

func newBDRing(ch int, dir Dir, base, depth int) *bdRing {
	r := &bdRing{
		ch:      ch,
		dir:     dir,
		base:    base,
		idle:    make([]int, 0, depth),
		pending: make([]int, 0, depth),
		slots:   make([]bdSlot, depth),
	}
	for i := range r.slots {
		r.slots[i].fd = -1
		r.idle = append(r.idle, base+i)
	}
	return r
}

func (r *bdRing) depth() int { return len(r.slots) }

func (r *bdRing) slot(n int) *bdSlot { return &r.slots[n-r.base] }

// popIdle takes the oldest idle descriptor.
func (r *bdRing) popIdle() (int, bool) {
	if len(r.idle) == 0 {
		return -1, false
	}
	n := r.idle[0]
	r.idle = r.idle[1:]
	return n, true
}

// popPending takes the oldest descriptor queued to hardware.
func (r *bdRing) popPending() (int, bool) {
	if len(r.pending) == 0 {
		return -1, false
	}
	n := r.pending[0]
	r.pending = r.pending[1:]
	return n, true
}

func (r *bdRing) pushIdle(n int) {
	if n < r.base || n >= r.base+r.depth() {
		panic("tiledma: descriptor outside ring")
	}
	if len(r.idle)+len(r.pending) >= r.depth() {
		panic("tiledma: descriptor queue overflow")
	}
	r.idle = append(r.idle, n)
}

func (r *bdRing) pushPending(n int) {
	if len(r.idle)+len(r.pending) >= r.depth() {
		panic("tiledma: descriptor queue overflow")
	}
	r.pending = append(r.pending, n)
}
