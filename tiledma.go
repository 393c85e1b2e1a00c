// Copyright 2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package tiledma moves data between host memory and a tile array
// through the array's shim row DMA engines, and meters the array's
// stream switches with its hardware profiling counters.
//
// A Device is built over three narrow collaborators: a Driver that owns
// the array registers, a BufMapper that attaches exported buffers to
// the array partition, and a PortLoader that names the array's ports.
// The zocl package provides the linux BufMapper; package tiledmatest
// provides a simulated array for tests.
package tiledma

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/platinasystems/log"
	"github.com/platinasystems/tiledma/rsrc"
)

// Device is one open array partition. Its methods are safe for
// concurrent use; transfers on the same channel serialize.
type Device struct {
	mu   sync.Mutex
	open bool

	drv    Driver
	mapper BufMapper
	topo   Topology

	stream portSet
	shim   portSet

	engines map[int]*engine

	res *rsrc.Array

	profMu sync.Mutex
	prof   []profRecord
}

// New configures the partition and readies every stream port's DMA
// channel.
func New(cfg *Config) (*Device, error) {
	if cfg == nil || cfg.Driver == nil || cfg.Mapper == nil || cfg.Ports == nil {
		return nil, errors.New("tiledma: Config needs Driver, Mapper and Ports")
	}
	topo := cfg.Topology
	if topo == (Topology{}) {
		topo = DefaultTopology
	}
	if err := cfg.Driver.Configure(topo); err != nil {
		return nil, fmt.Errorf("configure partition %d: %w", topo.Partition, err)
	}
	d := &Device{
		open:    true,
		drv:     cfg.Driver,
		mapper:  cfg.Mapper,
		topo:    topo,
		engines: make(map[int]*engine),
		res:     rsrc.New(topo.Cols, topo.Rows, topo.ShimRow),
	}
	if err := d.load(cfg); err != nil {
		cfg.Driver.Teardown()
		return nil, err
	}
	log.Print("tiledma: partition ", topo.Partition, ": ",
		len(d.stream.ports), " stream ports, ",
		len(d.shim.ports), " shim ports, ",
		len(d.engines), " columns")
	return d, nil
}

func (d *Device) load(cfg *Config) error {
	sp, err := cfg.Ports.StreamPorts()
	if err != nil {
		return fmt.Errorf("stream ports: %w", err)
	}
	hp, err := cfg.Ports.ShimPorts()
	if err != nil {
		return fmt.Errorf("shim ports: %w", err)
	}
	if d.stream, err = makePortSet(sp); err != nil {
		return err
	}
	if d.shim, err = makePortSet(hp); err != nil {
		return err
	}
	pollMin, pollMax := cfg.PollMin, cfg.PollMax
	if pollMin <= 0 {
		pollMin = DefaultPollMin
	}
	if pollMax <= 0 {
		pollMax = DefaultPollMax
	}
	if pollMax < pollMin {
		pollMax = pollMin
	}
	for _, p := range d.shim.ports {
		if err = d.checkCol(p); err != nil {
			return err
		}
		p.Shim.Row = d.topo.ShimRow
	}
	for _, p := range d.stream.ports {
		if err = d.addStream(p, pollMin, pollMax); err != nil {
			return err
		}
	}
	return nil
}

func (d *Device) checkCol(p *Port) error {
	if p.Shim.Col < 0 || p.Shim.Col >= d.topo.Cols {
		return fmt.Errorf("port %q: column %d outside the %d column array",
			p.Name, p.Shim.Col, d.topo.Cols)
	}
	return nil
}

func (d *Device) addStream(p *Port, pollMin, pollMax time.Duration) error {
	if err := d.checkCol(p); err != nil {
		return err
	}
	p.Shim.Row = d.topo.ShimRow
	// The DMA side of the stream switch masters it on mm2s.
	p.Master = p.Dir == HostToTile
	e := d.engines[p.Shim.Col]
	if e == nil {
		depth := d.drv.MaxQueueSize(p.Shim)
		if depth <= 0 {
			return fmt.Errorf("column %d: zero hardware queue depth", p.Shim.Col)
		}
		e = &engine{
			drv:     d.drv,
			mapper:  d.mapper,
			loc:     p.Shim,
			depth:   depth,
			pollMin: pollMin,
			pollMax: pollMax,
		}
		d.engines[p.Shim.Col] = e
	}
	if err := e.addChannel(p.Channel, p.Dir); err != nil {
		return fmt.Errorf("port %q: %w", p.Name, err)
	}
	if err := d.drv.EnableChannel(p.Shim, p.Channel, p.Dir); err != nil {
		return fmt.Errorf("port %q: enable channel: %w", p.Name, err)
	}
	burst := p.Burst
	if burst == 0 {
		burst = DefaultBurst
	}
	if err := d.drv.SetAxiBurst(p.Shim, p.Channel, p.Dir, burst); err != nil {
		return fmt.Errorf("port %q: axi burst: %w", p.Name, err)
	}
	return nil
}

func (d *Device) ok() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return ErrNotOpen
	}
	return nil
}

// Close stops profiling, drops every held mapping and releases the
// partition. Close after Close or Reset is a no-op. A transfer blocked
// in Sync or Wait holds its channel until its context ends; cancel
// those contexts before closing.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return nil
	}
	d.open = false
	d.releaseProfiling()
	for _, e := range d.engines {
		e.reap()
	}
	return d.drv.Teardown()
}

// Reset returns the array to its post boot state. The device is closed
// afterwards and must be reopened before further use.
func (d *Device) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return ErrNotOpen
	}
	d.open = false
	d.releaseProfiling()
	for _, e := range d.engines {
		e.reap()
	}
	err := d.drv.Teardown()
	if rerr := d.drv.ResetArray(); err == nil {
		err = rerr
	}
	log.Print("tiledma: partition ", d.topo.Partition, " reset")
	return err
}

func (d *Device) releaseProfiling() {
	d.profMu.Lock()
	defer d.profMu.Unlock()
	for h := range d.prof {
		d.stopRecord(h)
	}
}

// Driver returns the device's register driver for callers that need
// operations outside the transfer and profiling paths.
func (d *Device) Driver() Driver { return d.drv }

// Topology returns the partition's shape.
func (d *Device) Topology() Topology { return d.topo }

// ChannelStats is a point in time snapshot of one shim DMA channel.
type ChannelStats struct {
	Col       int
	Channel   int
	Dir       Dir
	Depth     int
	Idle      int
	Pending   int
	Submitted uint64
	Completed uint64
	Bytes     uint64
}

// Stats snapshots every configured channel, ordered by column then
// channel.
func (d *Device) Stats() []ChannelStats {
	cols := make([]int, 0, len(d.engines))
	for c := range d.engines {
		cols = append(cols, c)
	}
	sort.Ints(cols)
	var v []ChannelStats
	for _, c := range cols {
		e := d.engines[c]
		for _, r := range e.rings {
			if r == nil {
				continue
			}
			r.mu.Lock()
			v = append(v, ChannelStats{
				Col:       c,
				Channel:   r.ch,
				Dir:       r.dir,
				Depth:     r.depth(),
				Idle:      len(r.idle),
				Pending:   len(r.pending),
				Submitted: r.submitted,
				Completed: r.completed,
				Bytes:     r.bytes,
			})
			r.mu.Unlock()
		}
	}
	return v
}
