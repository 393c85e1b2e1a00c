// Copyright 2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rsrc tracks ownership of the fixed hardware resources a tile
// array offers for profiling: performance counters and stream switch
// event ports. Every resource is numbered from zero within its tile and
// module, and a request records the owner so a release by anyone else
// is refused.
package rsrc

import "sync"

// Module selects a register block within a tile.
type Module int

const (
	Core Module = iota
	Mem
	PL
)

func (m Module) String() string {
	switch m {
	case Core:
		return "core"
	case Mem:
		return "mem"
	case PL:
		return "pl"
	}
	return "module?"
}

// Kind selects a resource class within a module.
type Kind int

const (
	Counter Kind = iota
	StreamEventPort
)

func (k Kind) String() string {
	switch k {
	case Counter:
		return "counter"
	case StreamEventPort:
		return "event-port"
	}
	return "kind?"
}

// Resource counts of the first generation array.
const (
	CoreCounters   = 4
	MemCounters    = 2
	PLCounters     = 2
	CoreEventPorts = 8
	PLEventPorts   = 8
)

// Pool hands out one class of numbered resource. Freed ids are reused
// smallest first.
type Pool struct {
	owner []int
}

// NewPool returns a pool of n resources, all free.
func NewPool(n int) *Pool {
	p := &Pool{owner: make([]int, n)}
	for i := range p.owner {
		p.owner[i] = -1
	}
	return p
}

// Request grants the smallest free id to owner, or -1 when none is
// free.
func (p *Pool) Request(owner int) int {
	if p == nil {
		return -1
	}
	for i, o := range p.owner {
		if o < 0 {
			p.owner[i] = owner
			return i
		}
	}
	return -1
}

// Release frees id if owner holds it.
func (p *Pool) Release(owner, id int) bool {
	if p == nil || id < 0 || id >= len(p.owner) || p.owner[id] != owner {
		return false
	}
	p.owner[id] = -1
	return true
}

// Free returns the number of unowned resources.
func (p *Pool) Free() (n int) {
	if p == nil {
		return 0
	}
	for _, o := range p.owner {
		if o < 0 {
			n++
		}
	}
	return
}

// Cap returns the pool size.
func (p *Pool) Cap() int {
	if p == nil {
		return 0
	}
	return len(p.owner)
}

type tile struct {
	pools [PL + 1][StreamEventPort + 1]*Pool
}

// Array is the resource map of one partition. Shim row tiles carry PL
// module resources, rows above it carry core and memory module
// resources. The zero Module/Kind pair of a tile that lacks it is
// simply an empty pool.
type Array struct {
	mu    sync.Mutex
	cols  int
	rows  int
	tiles []tile
}

// New builds the resource map of a cols wide partition with rows tile
// rows above the shim row at shimRow.
func New(cols, rows, shimRow int) *Array {
	total := shimRow + 1 + rows
	a := &Array{cols: cols, rows: total}
	a.tiles = make([]tile, cols*total)
	for c := 0; c < cols; c++ {
		for r := 0; r < total; r++ {
			t := &a.tiles[c*total+r]
			if r == shimRow {
				t.pools[PL][Counter] = NewPool(PLCounters)
				t.pools[PL][StreamEventPort] = NewPool(PLEventPorts)
			} else if r > shimRow {
				t.pools[Core][Counter] = NewPool(CoreCounters)
				t.pools[Core][StreamEventPort] = NewPool(CoreEventPorts)
				t.pools[Mem][Counter] = NewPool(MemCounters)
			}
		}
	}
	return a
}

func (a *Array) pool(col, row int, m Module, k Kind) *Pool {
	if col < 0 || col >= a.cols || row < 0 || row >= a.rows {
		return nil
	}
	if m < Core || m > PL || k < Counter || k > StreamEventPort {
		return nil
	}
	return a.tiles[col*a.rows+row].pools[m][k]
}

// Request grants owner a resource of the given class on one tile, or -1
// when the tile has none free.
func (a *Array) Request(col, row int, m Module, k Kind, owner int) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pool(col, row, m, k).Request(owner)
}

// Release returns a granted resource. It reports whether owner actually
// held id.
func (a *Array) Release(col, row int, m Module, k Kind, owner, id int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pool(col, row, m, k).Release(owner, id)
}

// Free returns the free count of one tile's resource class.
func (a *Array) Free(col, row int, m Module, k Kind) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pool(col, row, m, k).Free()
}
