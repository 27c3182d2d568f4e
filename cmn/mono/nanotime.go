//go:build !mono

// Package mono provides monotonic time helpers used for elapsed-time
// calculations (controller standby grace window, retry backoff, etc.)
// without the wall-clock jump hazards of time.Now().
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package mono

import "time"

var start = time.Now()

// NanoTime returns a monotonic nanosecond counter. Only deltas between two
// calls are meaningful.
func NanoTime() int64 { return time.Since(start).Nanoseconds() }
