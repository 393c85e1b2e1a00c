// Copyright 2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tiledma

import "errors"

// Errors returned by the runtime. Call sites wrap these with port and
// transfer context, so match with errors.Is.
var (
	ErrNotOpen   = errors.New("device not open")
	ErrNotFound  = errors.New("no such port")
	ErrAmbiguous = errors.New("port name matches both a stream and a shim port")
	ErrDirection = errors.New("transfer direction does not match port direction")
	ErrAlignment = errors.New("transfer length not a multiple of the 32 bit stream word")
	ErrBounds    = errors.New("transfer outside buffer bounds")

	// Buffer staging failures, in the order the stages run.
	ErrExport = errors.New("buffer export failed")
	ErrAttach = errors.New("buffer attach failed")
	ErrMap    = errors.New("buffer map failed")

	ErrUnsupported   = errors.New("unsupported profiling option")
	ErrExhausted     = errors.New("out of profiling resources")
	ErrResourceOrder = errors.New("profiling record does not lead with a counter")
	ErrHandle        = errors.New("no such profiling handle")
)
