// Copyright 2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tiledma_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/platinasystems/tiledma"
	"github.com/platinasystems/tiledma/rsrc"
	"github.com/platinasystems/tiledma/tiledmatest"
)

var testPorts = tiledma.StaticPorts{
	Stream: []tiledma.Port{
		{Name: "in0", LogicalName: "gmio0", Shim: tiledma.Loc{Col: 2},
			Channel: 0, Dir: tiledma.HostToTile, StreamID: 2},
		{Name: "out0", LogicalName: "gmio1", Shim: tiledma.Loc{Col: 2},
			Channel: 1, Dir: tiledma.TileToHost, StreamID: 3, Burst: 64},
		{Name: "in1", Shim: tiledma.Loc{Col: 5},
			Channel: 0, Dir: tiledma.HostToTile, StreamID: 4},
	},
	Shim: []tiledma.Port{
		{Name: "tap0", LogicalName: "plio0", Shim: tiledma.Loc{Col: 3},
			StreamID: 5, Master: true},
		// The logical name collides with stream port in1 so a
		// profiling lookup of "in1" is ambiguous.
		{Name: "tap1", LogicalName: "in1", Shim: tiledma.Loc{Col: 5},
			StreamID: 6},
	},
}

var testTopo = tiledma.Topology{Cols: 8, Rows: 8}

func newTestDevice(t *testing.T) (*tiledma.Device, *tiledmatest.Driver, *tiledmatest.Mapper) {
	t.Helper()
	drv := &tiledmatest.Driver{}
	m := &tiledmatest.Mapper{}
	d, err := tiledma.New(&tiledma.Config{
		Driver:   drv,
		Mapper:   m,
		Ports:    testPorts,
		Topology: testTopo,
		PollMin:  time.Microsecond,
		PollMax:  10 * time.Microsecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	return d, drv, m
}

func statFor(t *testing.T, d *tiledma.Device, col, ch int) tiledma.ChannelStats {
	t.Helper()
	for _, s := range d.Stats() {
		if s.Col == col && s.Channel == ch {
			return s
		}
	}
	t.Fatalf("no stats for column %d channel %d", col, ch)
	return tiledma.ChannelStats{}
}

func TestNew(t *testing.T) {
	d, drv, _ := newTestDevice(t)
	defer d.Close()

	if !drv.Configured || drv.Topo != testTopo {
		t.Errorf("configured %v topology %+v", drv.Configured, drv.Topo)
	}
	if d.Topology() != testTopo {
		t.Errorf("Topology() got %+v", d.Topology())
	}

	for _, k := range []tiledmatest.Key{
		{Loc: tiledma.Loc{Col: 2}, Ch: 0, Dir: tiledma.HostToTile},
		{Loc: tiledma.Loc{Col: 2}, Ch: 1, Dir: tiledma.TileToHost},
		{Loc: tiledma.Loc{Col: 5}, Ch: 0, Dir: tiledma.HostToTile},
	} {
		if !drv.Enabled[k] {
			t.Errorf("channel %+v not enabled", k)
		}
	}
	in0 := tiledmatest.Key{Loc: tiledma.Loc{Col: 2}, Ch: 0,
		Dir: tiledma.HostToTile}
	out0 := tiledmatest.Key{Loc: tiledma.Loc{Col: 2}, Ch: 1,
		Dir: tiledma.TileToHost}
	if drv.Burst[in0] != tiledma.DefaultBurst {
		t.Errorf("in0 burst %d expecting the default %d",
			drv.Burst[in0], tiledma.DefaultBurst)
	}
	if drv.Burst[out0] != 64 {
		t.Errorf("out0 burst %d expecting 64", drv.Burst[out0])
	}

	stats := d.Stats()
	if len(stats) != 3 {
		t.Fatalf("%d channels expecting 3", len(stats))
	}
	for i, want := range []struct{ col, ch int }{{2, 0}, {2, 1}, {5, 0}} {
		s := stats[i]
		if s.Col != want.col || s.Channel != want.ch {
			t.Errorf("stats[%d] is %d/%d expecting %d/%d",
				i, s.Col, s.Channel, want.col, want.ch)
		}
		if s.Depth != 4 || s.Idle != 4 || s.Pending != 0 {
			t.Errorf("stats[%d] depth %d idle %d pending %d",
				i, s.Depth, s.Idle, s.Pending)
		}
	}

	ports := d.StreamPorts()
	if len(ports) != 3 || len(d.ShimPorts()) != 2 {
		t.Fatalf("%d stream %d shim ports", len(ports), len(d.ShimPorts()))
	}
	// The DMA side masters mm2s ports and listens on s2mm ports.
	if !ports[0].Master || ports[1].Master {
		t.Errorf("in0 master %v out0 master %v expecting true false",
			ports[0].Master, ports[1].Master)
	}
}

func TestNewNormalizesRows(t *testing.T) {
	drv := &tiledmatest.Driver{}
	d, err := tiledma.New(&tiledma.Config{
		Driver: drv,
		Mapper: &tiledmatest.Mapper{},
		Ports: tiledma.StaticPorts{
			Stream: []tiledma.Port{{
				Name: "in0",
				Shim: tiledma.Loc{Col: 1, Row: 7},
				Dir:  tiledma.HostToTile,
			}},
		},
		Topology: testTopo,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()
	if row := d.StreamPorts()[0].Shim.Row; row != testTopo.ShimRow {
		t.Errorf("port row %d expecting the shim row %d",
			row, testTopo.ShimRow)
	}
}

func TestNewErrors(t *testing.T) {
	if _, err := tiledma.New(nil); err == nil {
		t.Error("nil config accepted")
	}
	_, err := tiledma.New(&tiledma.Config{Driver: &tiledmatest.Driver{}})
	if err == nil {
		t.Error("config without mapper and ports accepted")
	}

	drv := &tiledmatest.Driver{ConfigureErr: errors.New("no partition")}
	_, err = tiledma.New(&tiledma.Config{
		Driver: drv,
		Mapper: &tiledmatest.Mapper{},
		Ports:  tiledma.StaticPorts{},
	})
	if err == nil {
		t.Error("configure failure not reported")
	}

	for _, bad := range []tiledma.StaticPorts{
		// column outside the partition
		{Stream: []tiledma.Port{{Name: "in0",
			Shim: tiledma.Loc{Col: 9}, Dir: tiledma.HostToTile}}},
		// duplicate names
		{Stream: []tiledma.Port{
			{Name: "in0", Dir: tiledma.HostToTile},
			{Name: "in0", Channel: 1, Dir: tiledma.HostToTile}}},
		// one channel, two ports
		{Stream: []tiledma.Port{
			{Name: "a", Dir: tiledma.HostToTile},
			{Name: "b", Dir: tiledma.TileToHost}}},
		// channel outside the shim DMA
		{Stream: []tiledma.Port{{Name: "in0", Channel: 9,
			Dir: tiledma.HostToTile}}},
		// shim port outside the partition
		{Shim: []tiledma.Port{{Name: "tap0",
			Shim: tiledma.Loc{Col: 9}}}},
	} {
		drv := &tiledmatest.Driver{}
		_, err := tiledma.New(&tiledma.Config{
			Driver:   drv,
			Mapper:   &tiledmatest.Mapper{},
			Ports:    bad,
			Topology: testTopo,
		})
		if err == nil {
			t.Errorf("port table %+v accepted", bad)
			continue
		}
		if !drv.Torn {
			t.Errorf("partition not released after %v", err)
		}
	}

	drv = &tiledmatest.Driver{Depth: -1}
	_, err = tiledma.New(&tiledma.Config{
		Driver:   drv,
		Mapper:   &tiledmatest.Mapper{},
		Ports:    testPorts,
		Topology: testTopo,
	})
	if err == nil {
		t.Error("zero queue depth accepted")
	}
}

func TestClose(t *testing.T) {
	d, drv, m := newTestDevice(t)
	ctx := context.Background()

	buf := &tiledmatest.Buffer{FD: 7, Len: 64}
	if err := d.SyncNB(ctx, "in0", buf, tiledma.HostToTile, 64, 0); err != nil {
		t.Fatal(err)
	}
	if m.Live() != 1 {
		t.Fatalf("%d live attachments expecting 1", m.Live())
	}

	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if !drv.Torn {
		t.Error("partition not released")
	}
	if m.Live() != 0 {
		t.Errorf("%d attachments survived Close", m.Live())
	}
	if s := statFor(t, d, 2, 0); s.Idle != 4 || s.Pending != 0 {
		t.Errorf("idle %d pending %d after Close", s.Idle, s.Pending)
	}

	if err := d.Close(); err != nil {
		t.Errorf("second Close got %v", err)
	}

	wantNotOpen := func(what string, err error) {
		if !errors.Is(err, tiledma.ErrNotOpen) {
			t.Errorf("%s after Close got %v expecting ErrNotOpen",
				what, err)
		}
	}
	wantNotOpen("Sync",
		d.Sync(ctx, "in0", buf, tiledma.HostToTile, 64, 0))
	wantNotOpen("SyncNB",
		d.SyncNB(ctx, "in0", buf, tiledma.HostToTile, 64, 0))
	wantNotOpen("Wait", d.Wait(ctx, "in0"))
	_, err := d.StartProfiling(tiledma.ProfileStreamRunningEventCount,
		"in0", "", 0)
	wantNotOpen("StartProfiling", err)
	_, err = d.ReadProfiling(0)
	wantNotOpen("ReadProfiling", err)
	wantNotOpen("StopProfiling", d.StopProfiling(0))
	wantNotOpen("Reset", d.Reset())
}

func TestCloseStopsProfiling(t *testing.T) {
	d, drv, _ := newTestDevice(t)
	loc := tiledma.Loc{Col: 2}

	_, err := d.StartProfiling(tiledma.ProfileStreamRunningEventCount,
		"in0", "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if err = d.Close(); err != nil {
		t.Fatal(err)
	}

	ep := drv.EventPorts[tiledmatest.PortKey{Loc: loc, Port: 0}]
	if ep == nil || ep.Active || ep.Resets != 1 {
		t.Errorf("event port after Close: %+v", ep)
	}
	ctr := drv.Counters[tiledmatest.CtrKey{Loc: loc, Mod: rsrc.PL, Ctr: 0}]
	if ctr == nil || ctr.Armed || ctr.Resets != 1 || ctr.Clears != 1 {
		t.Errorf("counter after Close: %+v", ctr)
	}
}

func TestReset(t *testing.T) {
	d, drv, _ := newTestDevice(t)
	if err := d.Reset(); err != nil {
		t.Fatal(err)
	}
	if drv.Resets != 1 || !drv.Torn {
		t.Errorf("resets %d torn %v expecting 1 true",
			drv.Resets, drv.Torn)
	}
	if err := d.Reset(); !errors.Is(err, tiledma.ErrNotOpen) {
		t.Errorf("second Reset got %v expecting ErrNotOpen", err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("Close after Reset got %v", err)
	}
	if drv.Resets != 1 {
		t.Errorf("Close after Reset reset again: %d", drv.Resets)
	}
}
