// Copyright 2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tiledma

import "fmt"

// Port describes one shim crossing of the array. Stream ports ride a
// shim DMA channel and move host memory; shim ports are direct stream
// switch connections that carry no DMA and exist here so profiling can
// meter them.
type Port struct {
	Name        string
	LogicalName string // name used by the application graph
	Shim        Loc    // shim tile; the row is forced to the topology's shim row
	Channel     int    // shim DMA channel, stream ports only
	Dir         Dir    // fixed transfer direction, stream ports only
	StreamID    int    // stream switch port id
	Burst       int    // AXI burst length in bytes, DefaultBurst when zero
	Master      bool   // master side of the stream switch
}

// StaticPorts is a PortLoader over fixed tables.
type StaticPorts struct {
	Stream, Shim []Port
}

func (s StaticPorts) StreamPorts() ([]Port, error) { return s.Stream, nil }
func (s StaticPorts) ShimPorts() ([]Port, error)   { return s.Shim, nil }

type portSet struct {
	byName    map[string]*Port
	byLogical map[string]*Port
	ports     []*Port
}

func makePortSet(ports []Port) (s portSet, err error) {
	s.byName = make(map[string]*Port)
	s.byLogical = make(map[string]*Port)
	for i := range ports {
		p := &ports[i]
		if p.Name == "" {
			return s, fmt.Errorf("port %d: empty name", i)
		}
		if _, seen := s.byName[p.Name]; seen {
			return s, fmt.Errorf("port %q: duplicate name", p.Name)
		}
		s.byName[p.Name] = p
		if p.LogicalName != "" {
			if _, seen := s.byLogical[p.LogicalName]; seen {
				return s, fmt.Errorf("port %q: duplicate logical name %q",
					p.Name, p.LogicalName)
			}
			s.byLogical[p.LogicalName] = p
		}
		s.ports = append(s.ports, p)
	}
	return s, nil
}

// find matches the display name first so a logical name can never
// shadow another port's display name.
func (s *portSet) find(name string) *Port {
	if p, ok := s.byName[name]; ok {
		return p
	}
	return s.byLogical[name]
}

// streamPort resolves a name against the DMA capable ports only. The
// transfer paths never address shim ports.
func (d *Device) streamPort(name string) (*Port, error) {
	if p := d.stream.find(name); p != nil {
		return p, nil
	}
	return nil, fmt.Errorf("stream port %q: %w", name, ErrNotFound)
}

// anyPort resolves a name against both port sets for profiling. A name
// matching a port in each set names no port at all.
func (d *Device) anyPort(name string) (*Port, error) {
	sp := d.stream.find(name)
	hp := d.shim.find(name)
	switch {
	case sp != nil && hp != nil:
		return nil, fmt.Errorf("port %q: %w", name, ErrAmbiguous)
	case sp != nil:
		return sp, nil
	case hp != nil:
		return hp, nil
	}
	return nil, fmt.Errorf("port %q: %w", name, ErrNotFound)
}

// StreamPorts returns a copy of the device's stream port table.
func (d *Device) StreamPorts() []Port {
	return copyPorts(d.stream.ports)
}

// ShimPorts returns a copy of the device's shim port table.
func (d *Device) ShimPorts() []Port {
	return copyPorts(d.shim.ports)
}

func copyPorts(ports []*Port) []Port {
	v := make([]Port, len(ports))
	for i, p := range ports {
		v[i] = *p
	}
	return v
}
