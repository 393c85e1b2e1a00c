// Copyright 2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tiledma

import (
	"fmt"
	"io/ioutil"

	"github.com/platinasystems/fdt"
)

// Array node properties read from the flattened device tree. The row
// properties are (start, count) cell pairs like the kernel binding;
// the column count is a single cell.
const (
	dtCompat   = "xlnx,ai-engine"
	dtColumns  = "xlnx,columns"
	dtCoreRows = "xlnx,core-rows"
	dtShimRows = "xlnx,shim-rows"
)

// TopologyFromDTB reads the array topology from a flattened device
// tree blob. Properties the node omits keep their DefaultTopology
// values.
func TopologyFromDTB(b []byte) (Topology, error) {
	t := &fdt.Tree{}
	if err := t.Parse(b); err != nil {
		return Topology{}, err
	}
	topo := DefaultTopology
	found := false
	t.EachProperty("compatible", dtCompat, func(n *fdt.Node, name, value string) {
		if found {
			return
		}
		found = true
		if v, ok := n.Properties[dtColumns]; ok && len(v) >= 4 {
			topo.Cols = int(t.PropUint32(v))
		}
		if v, ok := n.Properties[dtCoreRows]; ok && len(v) >= 8 {
			topo.Rows = int(t.PropUint32Slice(v)[1])
		}
		if v, ok := n.Properties[dtShimRows]; ok && len(v) >= 8 {
			topo.ShimRow = int(t.PropUint32Slice(v)[0])
		}
	})
	if !found {
		return topo, fmt.Errorf("device tree has no %s node", dtCompat)
	}
	return topo, nil
}

// TopologyFromFile reads the array topology from a device tree file,
// /boot/linux.dtb on the platforms this runs on.
func TopologyFromFile(name string) (Topology, error) {
	b, err := ioutil.ReadFile(name)
	if err != nil {
		return Topology{}, err
	}
	return TopologyFromDTB(b)
}
