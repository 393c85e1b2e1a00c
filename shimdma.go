// Copyright 2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tiledma

import (
	"context"
	"fmt"
	"time"

	"github.com/jpillora/backoff"
	"github.com/platinasystems/log"
)

// A shim tile carries this many DMA channels worth of descriptors.
const shimChannels = 4

// engine drives the shim DMA of one column. Operations on a channel
// serialize on the channel's ring lock; waits sleep holding it, so a
// second submitter queues behind the first.
type engine struct {
	drv              Driver
	mapper           BufMapper
	loc              Loc
	depth            int
	rings            [shimChannels]*bdRing
	pollMin, pollMax time.Duration
}

func (e *engine) addChannel(ch int, dir Dir) error {
	if ch < 0 || ch >= shimChannels {
		return fmt.Errorf("channel %d outside 0..%d", ch, shimChannels-1)
	}
	if e.rings[ch] != nil {
		return fmt.Errorf("channel %d already bound", ch)
	}
	e.rings[ch] = newBDRing(ch, dir, ch*e.depth, e.depth)
	return nil
}

func (e *engine) ring(ch int) *bdRing { return e.rings[ch] }

func (e *engine) newBackoff() *backoff.Backoff {
	return &backoff.Backoff{
		Min:    e.pollMin,
		Max:    e.pollMax,
		Factor: 2,
		Jitter: true,
	}
}

// sleep waits out one poll interval unless ctx ends first.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// submit stages one transfer on the port's channel and hands it to the
// hardware queue.
func (e *engine) submit(ctx context.Context, p *Port, b Buffer, size, off uint64) error {
	r := e.ring(p.Channel)
	r.mu.Lock()
	defer r.mu.Unlock()
	n, err := e.acquire(ctx, r)
	if err != nil {
		return err
	}
	if err = e.prepare(r, n, b); err != nil {
		r.pushIdle(n)
		return err
	}
	if err = e.program(r, n, size, off); err != nil {
		e.clear(r, n)
		r.pushIdle(n)
		return err
	}
	r.pushPending(n)
	r.submitted++
	r.bytes += size
	return nil
}

// acquire returns an idle descriptor, reclaiming retired ones from the
// pending queue while none is idle. Called with the ring locked.
func (e *engine) acquire(ctx context.Context, r *bdRing) (int, error) {
	bo := e.newBackoff()
	for {
		if n, ok := r.popIdle(); ok {
			return n, nil
		}
		n, err := e.reclaim(r)
		if err != nil {
			return -1, err
		}
		if n > 0 {
			continue
		}
		if err = sleep(ctx, bo.Duration()); err != nil {
			return -1, err
		}
	}
}

// reclaim returns retired descriptors to the idle queue. The hardware
// retires in queue order, so the retired count is the difference
// between the software pending queue and the hardware's pending count.
func (e *engine) reclaim(r *bdRing) (int, error) {
	npend, err := e.drv.PendingCount(e.loc, r.ch, r.dir)
	if err != nil {
		return 0, err
	}
	if npend > len(r.pending) {
		return 0, fmt.Errorf("channel %d %v: hardware holds %d descriptors, queue holds %d",
			r.ch, r.dir, npend, len(r.pending))
	}
	done := len(r.pending) - npend
	for i := 0; i < done; i++ {
		n, _ := r.popPending()
		e.clear(r, n)
		r.pushIdle(n)
		r.completed++
	}
	return done, nil
}

// prepare exports the buffer and maps it into the partition, recording
// both on the descriptor slot.
func (e *engine) prepare(r *bdRing, n int, b Buffer) error {
	fd, err := b.Export()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExport, err)
	}
	mem, err := e.mapper.Attach(fd, b.Size())
	if err != nil {
		return err
	}
	s := r.slot(n)
	s.fd = fd
	s.mem = mem
	return nil
}

// program writes the staged descriptor and queues it. The lock pair of
// a slot is the slot's own descriptor number.
func (e *engine) program(r *bdRing, n int, size, off uint64) error {
	s := r.slot(n)
	if err := e.drv.SetTransfer(e.loc, n, s.mem[off:off+size]); err != nil {
		return err
	}
	if err := e.drv.SetLockPair(e.loc, n, n, n); err != nil {
		return err
	}
	if err := e.drv.WriteBD(e.loc, n); err != nil {
		return err
	}
	return e.drv.Enqueue(e.loc, r.ch, r.dir, n)
}

// clear drops the slot's mapping and exported descriptor.
func (e *engine) clear(r *bdRing, n int) {
	s := r.slot(n)
	if s.fd < 0 {
		return
	}
	if err := e.mapper.Detach(s.fd, s.mem); err != nil {
		log.Print("tiledma: shim ", e.loc, " bd ", n, " detach: ", err)
	}
	s.fd = -1
	s.mem = nil
}

// drain waits until the channel's hardware queue is empty, then
// reclaims the whole pending queue.
func (e *engine) drain(ctx context.Context, ch int) error {
	r := e.ring(ch)
	r.mu.Lock()
	defer r.mu.Unlock()
	bo := e.newBackoff()
	for {
		idle, err := e.drv.WaitForIdle(e.loc, r.ch, r.dir, 0)
		if err != nil {
			return err
		}
		if idle {
			break
		}
		if err = sleep(ctx, bo.Duration()); err != nil {
			return err
		}
	}
	for {
		n, ok := r.popPending()
		if !ok {
			break
		}
		e.clear(r, n)
		r.pushIdle(n)
		r.completed++
	}
	return nil
}

// reap drops every mapping the rings still hold without consulting the
// hardware. Teardown only.
func (e *engine) reap() {
	for _, r := range e.rings {
		if r == nil {
			continue
		}
		r.mu.Lock()
		for {
			n, ok := r.popPending()
			if !ok {
				break
			}
			e.clear(r, n)
			r.pushIdle(n)
		}
		r.mu.Unlock()
	}
}
