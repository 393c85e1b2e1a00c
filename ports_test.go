// Copyright 2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tiledma

import (
	"errors"
	"testing"
)

func testSets(t *testing.T) (stream, shim portSet) {
	t.Helper()
	var err error
	stream, err = makePortSet([]Port{
		{Name: "in0", LogicalName: "gmio0", Channel: 0, Dir: HostToTile},
		{Name: "out0", LogicalName: "plio0", Channel: 1, Dir: TileToHost},
	})
	if err != nil {
		t.Fatal(err)
	}
	shim, err = makePortSet([]Port{
		{Name: "tap0", LogicalName: "plio0", StreamID: 3},
	})
	if err != nil {
		t.Fatal(err)
	}
	return
}

func TestPortSetRejects(t *testing.T) {
	if _, err := makePortSet([]Port{{Name: ""}}); err == nil {
		t.Error("empty name accepted")
	}
	_, err := makePortSet([]Port{{Name: "a"}, {Name: "a"}})
	if err == nil {
		t.Error("duplicate name accepted")
	}
	_, err = makePortSet([]Port{
		{Name: "a", LogicalName: "x"},
		{Name: "b", LogicalName: "x"},
	})
	if err == nil {
		t.Error("duplicate logical name accepted")
	}
}

func TestPortSetFind(t *testing.T) {
	s, _ := testSets(t)
	if p := s.find("in0"); p == nil || p.Channel != 0 {
		t.Errorf("find by display name got %v", p)
	}
	if p := s.find("gmio0"); p == nil || p.Name != "in0" {
		t.Errorf("find by logical name got %v", p)
	}
	if p := s.find("gone"); p != nil {
		t.Errorf("find of an unknown name got %v", p)
	}
}

// A logical name equal to another port's display name resolves to the
// display name's port.
func TestPortSetDisplayWins(t *testing.T) {
	s, err := makePortSet([]Port{
		{Name: "in0", LogicalName: "x", Channel: 0},
		{Name: "x", LogicalName: "y", Channel: 1},
	})
	if err != nil {
		t.Fatal(err)
	}
	if p := s.find("x"); p == nil || p.Channel != 1 {
		t.Errorf("find(x) got %v expecting the display name port", p)
	}
}

func TestStreamPort(t *testing.T) {
	stream, shim := testSets(t)
	d := &Device{open: true, stream: stream, shim: shim}

	if p, err := d.streamPort("in0"); err != nil || p.Name != "in0" {
		t.Errorf("streamPort(in0) got %v %v", p, err)
	}
	if p, err := d.streamPort("gmio0"); err != nil || p.Name != "in0" {
		t.Errorf("streamPort(gmio0) got %v %v", p, err)
	}
	if _, err := d.streamPort("gone"); !errors.Is(err, ErrNotFound) {
		t.Errorf("streamPort(gone) got %v expecting ErrNotFound", err)
	}
	// Shim only names never resolve for transfers.
	if _, err := d.streamPort("tap0"); !errors.Is(err, ErrNotFound) {
		t.Errorf("streamPort(tap0) got %v expecting ErrNotFound", err)
	}
}

func TestAnyPort(t *testing.T) {
	stream, shim := testSets(t)
	d := &Device{open: true, stream: stream, shim: shim}

	if p, err := d.anyPort("in0"); err != nil || p.Name != "in0" {
		t.Errorf("anyPort(in0) got %v %v", p, err)
	}
	if p, err := d.anyPort("tap0"); err != nil || p.Name != "tap0" {
		t.Errorf("anyPort(tap0) got %v %v", p, err)
	}
	// plio0 is the logical name of a stream port and of a shim port.
	if _, err := d.anyPort("plio0"); !errors.Is(err, ErrAmbiguous) {
		t.Errorf("anyPort(plio0) got %v expecting ErrAmbiguous", err)
	}
	if _, err := d.anyPort("gone"); !errors.Is(err, ErrNotFound) {
		t.Errorf("anyPort(gone) got %v expecting ErrNotFound", err)
	}
}

func TestPortCopies(t *testing.T) {
	stream, shim := testSets(t)
	d := &Device{open: true, stream: stream, shim: shim}
	v := d.StreamPorts()
	if len(v) != 2 {
		t.Fatalf("StreamPorts len %d expecting 2", len(v))
	}
	v[0].Name = "scribbled"
	if p, err := d.streamPort("in0"); err != nil || p.Name != "in0" {
		t.Errorf("device table changed through the copy: %v %v", p, err)
	}
	if len(d.ShimPorts()) != 1 {
		t.Errorf("ShimPorts len %d expecting 1", len(d.ShimPorts()))
	}
}
