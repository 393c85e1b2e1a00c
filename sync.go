// Copyright 2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tiledma

import (
	"context"
	"fmt"
)

// Sync moves size bytes at offset off of b through the named stream
// port and waits for the port's channel to drain. The transfer length
// must be a whole number of 32 bit stream words and dir must match the
// port's fixed direction.
func (d *Device) Sync(ctx context.Context, name string, b Buffer, dir Dir, size, off uint64) error {
	p, e, err := d.submit(ctx, name, b, dir, size, off)
	if err != nil {
		return err
	}
	if err = e.drain(ctx, p.Channel); err != nil {
		return fmt.Errorf("port %q: %w", name, err)
	}
	return nil
}

// SyncNB queues the transfer and returns without waiting. The buffer
// stays attached to the partition until a later Sync or Wait on the
// same port reclaims its descriptor.
func (d *Device) SyncNB(ctx context.Context, name string, b Buffer, dir Dir, size, off uint64) error {
	_, _, err := d.submit(ctx, name, b, dir, size, off)
	return err
}

// Wait blocks until the named port's channel has retired every queued
// descriptor.
func (d *Device) Wait(ctx context.Context, name string) error {
	if err := d.ok(); err != nil {
		return err
	}
	p, err := d.streamPort(name)
	if err != nil {
		return err
	}
	if err = d.engines[p.Shim.Col].drain(ctx, p.Channel); err != nil {
		return fmt.Errorf("port %q: %w", name, err)
	}
	return nil
}

// submit validates the transfer and queues it. Validation runs before a
// descriptor is taken, so a rejected transfer leaves the ring exactly
// as it found it.
func (d *Device) submit(ctx context.Context, name string, b Buffer, dir Dir, size, off uint64) (*Port, *engine, error) {
	if err := d.ok(); err != nil {
		return nil, nil, err
	}
	p, err := d.streamPort(name)
	if err != nil {
		return nil, nil, err
	}
	if dir != p.Dir {
		return nil, nil, fmt.Errorf("port %q is %v: %w", name, p.Dir, ErrDirection)
	}
	if size&3 != 0 {
		return nil, nil, fmt.Errorf("%d byte transfer: %w", size, ErrAlignment)
	}
	if end := off + size; end < off || end > b.Size() {
		return nil, nil, fmt.Errorf("%d bytes at %d of a %d byte buffer: %w",
			size, off, b.Size(), ErrBounds)
	}
	e := d.engines[p.Shim.Col]
	if err = e.submit(ctx, p, b, size, off); err != nil {
		return nil, nil, fmt.Errorf("port %q: %w", name, err)
	}
	return p, e, nil
}
