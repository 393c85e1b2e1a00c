// Copyright 2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io/ioutil"
	"path/filepath"
	"strings"

	"github.com/platinasystems/tiledma"
)

// statusFiles are the per tile attributes the kernel driver exposes in
// the partition directory. Each holds "name: value" lines.
var statusFiles = []string{"dma", "errors"}

type stat struct {
	Key, Val string
}

// column reads the status files of a column's shim tile. A missing
// tile directory yields no stats; partial partitions are normal.
func (i *Info) column(col int) []stat {
	var sts []stat
	loc := tiledma.Loc{Col: col, Row: i.topo.ShimRow}
	for _, name := range statusFiles {
		s, err := readTile(i.sys, loc, name)
		if err != nil {
			continue
		}
		prefix := fmt.Sprintf("tiledma.%d.%s", col, name)
		sts = append(sts, parseStatus(prefix, s)...)
	}
	return sts
}

func readTile(dir string, loc tiledma.Loc, name string) (string, error) {
	tile := fmt.Sprintf("%d_%d", loc.Col, loc.Row)
	b, err := ioutil.ReadFile(filepath.Join(dir, tile, name))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// parseStatus splits "name: value" lines into stats with redis ready
// keys. Lines without a colon or with an empty side are skipped.
func parseStatus(prefix, s string) []stat {
	var sts []stat
	for _, line := range strings.Split(s, "\n") {
		f := strings.SplitN(line, ":", 2)
		if len(f) != 2 {
			continue
		}
		k := strings.TrimSpace(f[0])
		v := strings.TrimSpace(f[1])
		if len(k) == 0 || len(v) == 0 {
			continue
		}
		k = strings.ToLower(strings.Replace(k, " ", "_", -1))
		sts = append(sts, stat{prefix + "." + k, v})
	}
	return sts
}
