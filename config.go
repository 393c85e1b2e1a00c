// Copyright 2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tiledma

import "time"

// Config assembles a Device. Driver, Mapper and Ports are required; the
// rest defaults.
type Config struct {
	Driver Driver
	Mapper BufMapper
	Ports  PortLoader

	// Topology of the partition. The zero value means
	// DefaultTopology.
	Topology Topology

	// Poll interval bounds of the descriptor acquire and drain
	// loops.
	PollMin, PollMax time.Duration
}

// DefaultTopology matches the first generation 50 column array.
var DefaultTopology = Topology{Cols: 50, Rows: 8}

// DefaultBurst is the AXI burst length programmed on channels whose
// port does not name one.
const DefaultBurst = 256

const (
	DefaultPollMin = 10 * time.Microsecond
	DefaultPollMax = time.Millisecond
)
