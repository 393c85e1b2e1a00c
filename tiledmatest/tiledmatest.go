// Copyright 2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package tiledmatest simulates a tile array for tests. The simulated
// hardware retires queued descriptors only when a test says so, so
// completion order and blocking behavior are under test control.
package tiledmatest

import (
	"fmt"
	"sync"
	"time"

	"github.com/platinasystems/tiledma"
	"github.com/platinasystems/tiledma/rsrc"
)

// Key addresses one simulated DMA channel.
type Key struct {
	Loc tiledma.Loc
	Ch  int
	Dir tiledma.Dir
}

// BDKey addresses one simulated descriptor.
type BDKey struct {
	Loc tiledma.Loc
	Num int
}

// CtrKey addresses one simulated performance counter.
type CtrKey struct {
	Loc tiledma.Loc
	Mod rsrc.Module
	Ctr int
}

// PortKey addresses one simulated stream switch event port.
type PortKey struct {
	Loc  tiledma.Loc
	Port int
}

// BD is the staged state of one descriptor.
type BD struct {
	Buf      []byte
	Acq, Rel int
	Written  bool
}

// Ctr is one simulated counter.
type Ctr struct {
	Start, Stop int
	Armed       bool
	Value       uint64
	Resets      int
	Clears      int
}

// EventPort is one simulated stream switch event port.
type EventPort struct {
	Master   bool
	StreamID int
	Active   bool
	Resets   int
}

// Driver is an in memory tiledma.Driver. The zero value is ready to
// use; exported fields may be set before, and inspected after, runtime
// calls.
type Driver struct {
	mu sync.Mutex

	// Depth is the queue depth reported for every column, 4 when
	// zero.
	Depth int

	// AutoRetire makes Enqueue retire descriptors immediately, for
	// tests that only care about the happy path.
	AutoRetire bool

	// Injected failures, returned whenever set.
	ConfigureErr error
	TransferErr  error
	EnqueueErr   error

	Topo       tiledma.Topology
	Configured bool
	Torn       bool
	Resets     int

	Enabled map[Key]bool
	Burst   map[Key]int

	// Enqueued holds every descriptor handed to a channel, in
	// order; Retired holds them in retirement order. The live queue
	// is the suffix of Enqueued not yet in Retired.
	Enqueued map[Key][]int
	Retired  map[Key][]int
	queues   map[Key][]int

	Staged map[BDKey]*BD

	// WaitPolls counts WaitForIdle calls per channel; NonzeroWaits
	// counts calls made with a nonzero timeout.
	WaitPolls    map[Key]int
	NonzeroWaits int

	Counters   map[CtrKey]*Ctr
	EventPorts map[PortKey]*EventPort
}

func (d *Driver) ensure() {
	if d.Enabled == nil {
		d.Enabled = make(map[Key]bool)
		d.Burst = make(map[Key]int)
		d.Enqueued = make(map[Key][]int)
		d.Retired = make(map[Key][]int)
		d.queues = make(map[Key][]int)
		d.Staged = make(map[BDKey]*BD)
		d.WaitPolls = make(map[Key]int)
		d.Counters = make(map[CtrKey]*Ctr)
		d.EventPorts = make(map[PortKey]*EventPort)
	}
}

func (d *Driver) Configure(t tiledma.Topology) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ensure()
	if d.ConfigureErr != nil {
		return d.ConfigureErr
	}
	d.Topo = t
	d.Configured = true
	d.Torn = false
	return nil
}

func (d *Driver) Teardown() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Torn = true
	return nil
}

func (d *Driver) ResetArray() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Resets++
	return nil
}

func (d *Driver) MaxQueueSize(tiledma.Loc) int {
	if d.Depth == 0 {
		return 4
	}
	return d.Depth
}

func (d *Driver) EnableChannel(loc tiledma.Loc, ch int, dir tiledma.Dir) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ensure()
	d.Enabled[Key{loc, ch, dir}] = true
	return nil
}

func (d *Driver) SetAxiBurst(loc tiledma.Loc, ch int, dir tiledma.Dir, burst int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ensure()
	d.Burst[Key{loc, ch, dir}] = burst
	return nil
}

func (d *Driver) bd(loc tiledma.Loc, n int) *BD {
	k := BDKey{loc, n}
	b := d.Staged[k]
	if b == nil {
		b = &BD{Acq: -1, Rel: -1}
		d.Staged[k] = b
	}
	return b
}

func (d *Driver) SetTransfer(loc tiledma.Loc, n int, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ensure()
	if d.TransferErr != nil {
		return d.TransferErr
	}
	b := d.bd(loc, n)
	b.Buf = buf
	b.Written = false
	return nil
}

func (d *Driver) SetLockPair(loc tiledma.Loc, n, acq, rel int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ensure()
	b := d.bd(loc, n)
	b.Acq, b.Rel = acq, rel
	return nil
}

func (d *Driver) WriteBD(loc tiledma.Loc, n int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ensure()
	b := d.bd(loc, n)
	if b.Buf == nil {
		return fmt.Errorf("bd %d at %v written with no transfer staged", n, loc)
	}
	b.Written = true
	return nil
}

func (d *Driver) Enqueue(loc tiledma.Loc, ch int, dir tiledma.Dir, n int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ensure()
	if d.EnqueueErr != nil {
		return d.EnqueueErr
	}
	k := Key{loc, ch, dir}
	d.Enqueued[k] = append(d.Enqueued[k], n)
	if d.AutoRetire {
		d.Retired[k] = append(d.Retired[k], n)
		return nil
	}
	d.queues[k] = append(d.queues[k], n)
	return nil
}

func (d *Driver) PendingCount(loc tiledma.Loc, ch int, dir tiledma.Dir) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ensure()
	return len(d.queues[Key{loc, ch, dir}]), nil
}

func (d *Driver) WaitForIdle(loc tiledma.Loc, ch int, dir tiledma.Dir, timeout time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ensure()
	k := Key{loc, ch, dir}
	d.WaitPolls[k]++
	if timeout != 0 {
		d.NonzeroWaits++
	}
	return len(d.queues[k]) == 0, nil
}

// Complete retires the oldest n descriptors of a channel.
func (d *Driver) Complete(loc tiledma.Loc, ch int, dir tiledma.Dir, n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ensure()
	k := Key{loc, ch, dir}
	for ; n > 0 && len(d.queues[k]) > 0; n-- {
		d.Retired[k] = append(d.Retired[k], d.queues[k][0])
		d.queues[k] = d.queues[k][1:]
	}
}

// Queue returns the descriptors a channel still holds, oldest first.
func (d *Driver) Queue(loc tiledma.Loc, ch int, dir tiledma.Dir) []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ensure()
	q := d.queues[Key{loc, ch, dir}]
	return append([]int(nil), q...)
}

func (d *Driver) port(loc tiledma.Loc, p int) *EventPort {
	k := PortKey{loc, p}
	ep := d.EventPorts[k]
	if ep == nil {
		ep = &EventPort{}
		d.EventPorts[k] = ep
	}
	return ep
}

func (d *Driver) SelectStreamEventPort(loc tiledma.Loc, p int, master bool, streamID int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ensure()
	ep := d.port(loc, p)
	ep.Master = master
	ep.StreamID = streamID
	ep.Active = true
	return nil
}

func (d *Driver) ResetStreamEventPort(loc tiledma.Loc, p int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ensure()
	ep := d.port(loc, p)
	ep.Active = false
	ep.Resets++
	return nil
}

func (d *Driver) ctr(loc tiledma.Loc, m rsrc.Module, c int) *Ctr {
	k := CtrKey{loc, m, c}
	ct := d.Counters[k]
	if ct == nil {
		ct = &Ctr{}
		d.Counters[k] = ct
	}
	return ct
}

func (d *Driver) CounterControl(loc tiledma.Loc, m rsrc.Module, c, start, stop int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ensure()
	ct := d.ctr(loc, m, c)
	ct.Start, ct.Stop = start, stop
	ct.Armed = true
	return nil
}

func (d *Driver) CounterValue(loc tiledma.Loc, m rsrc.Module, c int) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ensure()
	return d.ctr(loc, m, c).Value, nil
}

// SetCounter drives the value CounterValue reports.
func (d *Driver) SetCounter(loc tiledma.Loc, m rsrc.Module, c int, v uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ensure()
	d.ctr(loc, m, c).Value = v
}

func (d *Driver) CounterReset(loc tiledma.Loc, m rsrc.Module, c int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ensure()
	ct := d.ctr(loc, m, c)
	ct.Value = 0
	ct.Resets++
	return nil
}

func (d *Driver) ClearCounterControl(loc tiledma.Loc, m rsrc.Module, c int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ensure()
	ct := d.ctr(loc, m, c)
	ct.Armed = false
	ct.Clears++
	return nil
}

// Buffer is a fake exportable buffer.
type Buffer struct {
	FD      int
	Len     uint64
	Err     error // returned by Export when set
	Exports int
}

func (b *Buffer) Export() (int, error) {
	if b.Err != nil {
		return -1, b.Err
	}
	b.Exports++
	return b.FD, nil
}

func (b *Buffer) Size() uint64 { return b.Len }

// Mapper is a fake tiledma.BufMapper backed by plain slices. The same
// file descriptor may be attached more than once at a time.
type Mapper struct {
	mu        sync.Mutex
	AttachErr error // reported against tiledma.ErrAttach
	MapErr    error // reported against tiledma.ErrMap

	attached map[int]int

	// Detached records detach order by file descriptor.
	Detached []int
}

func (m *Mapper) Attach(fd int, size uint64) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AttachErr != nil {
		return nil, fmt.Errorf("%w: %v", tiledma.ErrAttach, m.AttachErr)
	}
	if m.MapErr != nil {
		return nil, fmt.Errorf("%w: %v", tiledma.ErrMap, m.MapErr)
	}
	if m.attached == nil {
		m.attached = make(map[int]int)
	}
	m.attached[fd]++
	return make([]byte, size), nil
}

func (m *Mapper) Detach(fd int, mem []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.attached[fd] == 0 {
		return fmt.Errorf("detach of unattached descriptor %d", fd)
	}
	m.attached[fd]--
	if m.attached[fd] == 0 {
		delete(m.attached, fd)
	}
	m.Detached = append(m.Detached, fd)
	return nil
}

// Live returns how many buffer attachments are outstanding.
func (m *Mapper) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.attached {
		n += c
	}
	return n
}
