// Copyright 2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tiledma

import (
	"fmt"

	"github.com/platinasystems/tiledma/rsrc"
)

// ProfileOption selects what StartProfiling measures.
type ProfileOption int

const (
	ProfileStreamRunningToIdleCycles ProfileOption = iota
	ProfileStreamStartToTransferComplete
	ProfileStreamStartDifference
	ProfileStreamRunningEventCount
)

// profReleased marks a record whose resources have been returned. The
// record itself stays so handle numbers are never reused.
const profReleased ProfileOption = -1

// EventShimPortRunning returns the shim tile event raised while stream
// switch event port p observes a running port. Port zero's event is the
// base of a contiguous block in the shim event map.
func EventShimPortRunning(p int) int { return eventShimPortRunning0 + p }

const eventShimPortRunning0 = 74

type profRsc struct {
	kind rsrc.Kind
	loc  Loc
	mod  rsrc.Module
	id   int
}

type profRecord struct {
	option ProfileOption
	rsc    []profRsc
}

// StartProfiling binds hardware profiling resources to the port named
// by port1 and starts measuring. The returned handle feeds
// ReadProfiling and StopProfiling; handles are dense, stable and never
// reused, so a long lived caller can hold many across stops.
//
// Only ProfileStreamRunningEventCount is measurable on the shim tiles
// this runtime drives; port2 and value are accepted for the remaining
// options' signatures and ignored.
func (d *Device) StartProfiling(option ProfileOption, port1, port2 string, value uint32) (int, error) {
	if err := d.ok(); err != nil {
		return -1, err
	}
	switch option {
	case ProfileStreamRunningEventCount:
		return d.startRunningEventCount(port1)
	}
	return -1, fmt.Errorf("profiling option %d: %w", option, ErrUnsupported)
}

// startRunningEventCount takes one stream switch event port and one
// performance counter from the port's shim tile, both or neither: a
// partial acquisition is unwound before reporting exhaustion.
func (d *Device) startRunningEventCount(name string) (int, error) {
	p, err := d.anyPort(name)
	if err != nil {
		return -1, err
	}
	d.profMu.Lock()
	defer d.profMu.Unlock()
	h := len(d.prof)
	col, row := p.Shim.Col, p.Shim.Row
	port := d.res.Request(col, row, rsrc.PL, rsrc.StreamEventPort, h)
	if port < 0 {
		return -1, fmt.Errorf("port %q: event ports: %w", name, ErrExhausted)
	}
	ctr := d.res.Request(col, row, rsrc.PL, rsrc.Counter, h)
	if ctr < 0 {
		d.res.Release(col, row, rsrc.PL, rsrc.StreamEventPort, h, port)
		return -1, fmt.Errorf("port %q: counters: %w", name, ErrExhausted)
	}
	ev := EventShimPortRunning(port)
	err = d.drv.SelectStreamEventPort(p.Shim, port, p.Master, p.StreamID)
	if err == nil {
		err = d.drv.CounterControl(p.Shim, rsrc.PL, ctr, ev, ev)
	}
	if err != nil {
		d.res.Release(col, row, rsrc.PL, rsrc.Counter, h, ctr)
		d.res.Release(col, row, rsrc.PL, rsrc.StreamEventPort, h, port)
		return -1, fmt.Errorf("port %q: %v", name, err)
	}
	d.prof = append(d.prof, profRecord{
		option: ProfileStreamRunningEventCount,
		rsc: []profRsc{
			{kind: rsrc.Counter, loc: p.Shim, mod: rsrc.PL, id: ctr},
			{kind: rsrc.StreamEventPort, loc: p.Shim, mod: rsrc.PL, id: port},
		},
	})
	return h, nil
}

// ReadProfiling samples the counter behind a profiling handle.
func (d *Device) ReadProfiling(h int) (uint64, error) {
	if err := d.ok(); err != nil {
		return 0, err
	}
	d.profMu.Lock()
	defer d.profMu.Unlock()
	if h < 0 || h >= len(d.prof) || d.prof[h].option == profReleased {
		return 0, fmt.Errorf("handle %d: %w", h, ErrHandle)
	}
	r := &d.prof[h]
	if len(r.rsc) == 0 || r.rsc[0].kind != rsrc.Counter {
		return 0, fmt.Errorf("handle %d: %w", h, ErrResourceOrder)
	}
	return d.drv.CounterValue(r.rsc[0].loc, r.rsc[0].mod, r.rsc[0].id)
}

// StopProfiling resets and releases a handle's resources. Stopping a
// handle twice, or one that never existed, is a no-op.
func (d *Device) StopProfiling(h int) error {
	if err := d.ok(); err != nil {
		return err
	}
	d.profMu.Lock()
	defer d.profMu.Unlock()
	return d.stopRecord(h)
}

// stopRecord releases record h in its recorded order and tombstones it.
// The record is tombstoned even when a hardware reset fails, so a
// retry cannot double release. Called with profMu held.
func (d *Device) stopRecord(h int) error {
	if h < 0 || h >= len(d.prof) {
		return nil
	}
	r := &d.prof[h]
	if r.option == profReleased {
		return nil
	}
	var err error
	for _, rc := range r.rsc {
		var e error
		switch rc.kind {
		case rsrc.Counter:
			e = d.drv.CounterReset(rc.loc, rc.mod, rc.id)
			if e2 := d.drv.ClearCounterControl(rc.loc, rc.mod, rc.id); e == nil {
				e = e2
			}
		case rsrc.StreamEventPort:
			e = d.drv.ResetStreamEventPort(rc.loc, rc.id)
		}
		d.res.Release(rc.loc.Col, rc.loc.Row, rc.mod, rc.kind, h, rc.id)
		if err == nil {
			err = e
		}
	}
	r.option = profReleased
	r.rsc = nil
	return err
}
