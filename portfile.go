// Copyright 2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tiledma

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// LoadPortFile reads a port table for use as a PortLoader. The file
// holds one port per line, # to end of line is comment:
//
//	stream NAME LOGICAL COL CHANNEL mm2s|s2mm STREAMID BURST
//	shim   NAME LOGICAL COL STREAMID master|slave
//
// A LOGICAL of - leaves the logical name empty.
func LoadPortFile(name string) (StaticPorts, error) {
	var t StaticPorts
	f, err := os.Open(name)
	if err != nil {
		return t, err
	}
	defer f.Close()
	s := bufio.NewScanner(f)
	for n := 1; s.Scan(); n++ {
		line := s.Text()
		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		p, stream, err := parsePortLine(fields)
		if err != nil {
			return t, fmt.Errorf("%s:%d: %v", name, n, err)
		}
		if stream {
			t.Stream = append(t.Stream, p)
		} else {
			t.Shim = append(t.Shim, p)
		}
	}
	if err := s.Err(); err != nil {
		return t, err
	}
	return t, nil
}

func parsePortLine(f []string) (p Port, stream bool, err error) {
	kind := f[0]
	f = f[1:]
	switch kind {
	case "stream":
		if len(f) != 7 {
			return p, false, fmt.Errorf("stream wants 7 fields, got %d", len(f))
		}
	case "shim":
		if len(f) != 5 {
			return p, false, fmt.Errorf("shim wants 5 fields, got %d", len(f))
		}
	default:
		return p, false, fmt.Errorf("%q: want stream or shim", kind)
	}
	p.Name = f[0]
	if f[1] != "-" {
		p.LogicalName = f[1]
	}
	if p.Shim.Col, err = strconv.Atoi(f[2]); err != nil {
		return p, false, fmt.Errorf("column %q: %v", f[2], err)
	}
	if kind == "shim" {
		if p.StreamID, err = strconv.Atoi(f[3]); err != nil {
			return p, false, fmt.Errorf("stream id %q: %v", f[3], err)
		}
		switch f[4] {
		case "master":
			p.Master = true
		case "slave":
		default:
			return p, false, fmt.Errorf("%q: want master or slave", f[4])
		}
		return p, false, nil
	}
	if p.Channel, err = strconv.Atoi(f[3]); err != nil {
		return p, false, fmt.Errorf("channel %q: %v", f[3], err)
	}
	if p.Dir, err = parseDir(f[4]); err != nil {
		return p, false, err
	}
	if p.StreamID, err = strconv.Atoi(f[5]); err != nil {
		return p, false, fmt.Errorf("stream id %q: %v", f[5], err)
	}
	if p.Burst, err = strconv.Atoi(f[6]); err != nil {
		return p, false, fmt.Errorf("burst %q: %v", f[6], err)
	}
	return p, true, nil
}

func parseDir(s string) (Dir, error) {
	switch s {
	case "mm2s":
		return HostToTile, nil
	case "s2mm":
		return TileToHost, nil
	}
	return 0, fmt.Errorf("direction %q: want mm2s or s2mm", s)
}
