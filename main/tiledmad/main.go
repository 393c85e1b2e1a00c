// Copyright 2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Tiledmad publishes tile array shim DMA and error status to redis.
//
// Usage: tiledmad [-dry] [-dtb FILE] [-ports FILE] [-sys DIR]
//	[-interval SECONDS]
//
// Status is read from the aie partition directory under sysfs and
// published under the "tiledma." prefix of the machine hash. The scan
// interval may be changed at runtime with
//
//	hset platina tiledma.interval SECONDS
package main

import (
	"fmt"
	"net/rpc"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/platinasystems/atsock"
	"github.com/platinasystems/flags"
	"github.com/platinasystems/log"
	"github.com/platinasystems/parms"
	"github.com/platinasystems/redis"
	"github.com/platinasystems/redis/publisher"
	"github.com/platinasystems/redis/rpc/args"
	"github.com/platinasystems/redis/rpc/reply"
	"github.com/platinasystems/tiledma"
)

const Name = "tiledmad"

const (
	DefaultDTB      = "/boot/linux.dtb"
	DefaultSysDir   = "/sys/class/aie/aiepart_0_50"
	DefaultInterval = 5 * time.Second
)

type Info struct {
	mutex    sync.Mutex
	rpc      *atsock.RpcServer
	pub      *publisher.Publisher
	stop     chan struct{}
	interval chan time.Duration
	lasts    map[string]string

	sys  string
	topo tiledma.Topology
	cols []int
}

func main() {
	if err := Main(os.Args[1:]...); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", Name, err)
		os.Exit(1)
	}
}

func Main(cmdargs ...string) error {
	flag, cmdargs := flags.New(cmdargs, "-dry")
	parm, cmdargs := parms.New(cmdargs, "-dtb", "-ports", "-sys",
		"-interval")
	if len(cmdargs) > 0 {
		return fmt.Errorf("%v: unexpected", cmdargs)
	}

	i := &Info{
		stop:     make(chan struct{}),
		interval: make(chan time.Duration, 1),
		lasts:    make(map[string]string),
		sys:      DefaultSysDir,
	}
	if s := parm.ByName["-sys"]; len(s) > 0 {
		i.sys = s
	}

	i.topo = tiledma.DefaultTopology
	if dtb := parm.ByName["-dtb"]; len(dtb) > 0 {
		t, err := tiledma.TopologyFromFile(dtb)
		if err != nil {
			return err
		}
		i.topo = t
	} else if t, err := tiledma.TopologyFromFile(DefaultDTB); err == nil {
		i.topo = t
	}

	if name := parm.ByName["-ports"]; len(name) > 0 {
		ports, err := tiledma.LoadPortFile(name)
		if err != nil {
			return err
		}
		i.cols = portColumns(ports)
	} else {
		for col := 0; col < i.topo.Cols; col++ {
			i.cols = append(i.cols, col)
		}
	}

	interval := DefaultInterval
	if s := parm.ByName["-interval"]; len(s) > 0 {
		sec, err := strconv.Atoi(s)
		if err != nil || sec <= 0 {
			return fmt.Errorf("%s: invalid interval", s)
		}
		interval = time.Duration(sec) * time.Second
	}

	if flag.ByName["-dry"] {
		return i.dry()
	}
	return i.daemon(interval)
}

// portColumns returns the sorted set of shim columns a port file names.
func portColumns(ports tiledma.StaticPorts) []int {
	seen := make(map[int]bool)
	for _, p := range ports.Stream {
		seen[p.Shim.Col] = true
	}
	for _, p := range ports.Shim {
		seen[p.Shim.Col] = true
	}
	cols := make([]int, 0, len(seen))
	for col := range seen {
		cols = append(cols, col)
	}
	sort.Ints(cols)
	return cols
}

// dry prints one status sweep and exits.
func (i *Info) dry() error {
	for _, col := range i.cols {
		for _, st := range i.column(col) {
			fmt.Printf("%s: %s\n", st.Key, st.Val)
		}
	}
	return nil
}

func (i *Info) daemon(interval time.Duration) error {
	err := redis.IsReady()
	if err != nil {
		return err
	}

	if i.pub, err = publisher.New(); err != nil {
		return err
	}
	defer i.pub.Close()

	if i.rpc, err = atsock.NewRpcServer(Name); err != nil {
		return err
	}

	rpc.Register(i)
	err = redis.Assign(redis.DefaultHash+":tiledma.", Name, "Info")
	if err != nil {
		return err
	}

	i.pub.Print("tiledma.cols: ", i.topo.Cols)
	i.pub.Print("tiledma.rows: ", i.topo.Rows)
	i.pub.Print("tiledma.shim.row: ", i.topo.ShimRow)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	log.Print(Name, ": publishing ", len(i.cols), " columns every ",
		interval)

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-sig:
			return nil
		case <-i.stop:
			return nil
		case d := <-i.interval:
			t.Stop()
			t = time.NewTicker(d)
			log.Print(Name, ": interval set to ", d)
		case <-t.C:
			i.update()
		}
	}
}

// update publishes the values that changed since the last sweep.
func (i *Info) update() {
	i.mutex.Lock()
	defer i.mutex.Unlock()
	for _, col := range i.cols {
		for _, st := range i.column(col) {
			if i.lasts[st.Key] != st.Val {
				i.pub.Print(st.Key, ": ", st.Val)
				i.lasts[st.Key] = st.Val
			}
		}
	}
}

func (i *Info) Hset(a args.Hset, r *reply.Hset) error {
	field := strings.TrimPrefix(a.Field, "tiledma.")
	if field != "interval" {
		return fmt.Errorf("cannot hset: %s", a.Field)
	}
	sec, err := strconv.Atoi(string(a.Value))
	if err != nil || sec <= 0 {
		return fmt.Errorf("%s: invalid interval", a.Value)
	}
	select {
	case i.interval <- time.Duration(sec) * time.Second:
	default:
	}
	*r = 1
	return nil
}
