//go:build mono

// Package mono provides monotonic time helpers used for elapsed-time
// calculations (controller standby grace window, retry backoff, etc.)
// This variant links directly against the runtime's monotonic clock and
// is opt-in via the "mono" build tag; the default build uses nanotime.go.
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package mono

import (
	_ "unsafe" // for go:linkname
)

// https://golang.org/pkg/runtime/?m=all#nanotime
//
//go:linkname NanoTime runtime.nanotime
func NanoTime() int64
