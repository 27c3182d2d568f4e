//go:build debug

// Package debug provides build-tag-gated assertions that compile away
// entirely in release builds.
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package debug

import (
	"fmt"
	"sync"
)

func ON() bool { return true }

func Infof(format string, a ...any) { fmt.Printf("[DEBUG] "+format+"\n", a...) }

func Assert(cond bool, a ...any) {
	if !cond {
		panic(fmt.Sprint("assertion failed", fmt.Sprint(a...)))
	}
}

func AssertFunc(f func() bool, a ...any) { Assert(f(), a...) }

func AssertNoErr(err error) {
	if err != nil {
		panic(err)
	}
}

func Assertf(cond bool, format string, a ...any) {
	if !cond {
		panic(fmt.Sprintf(format, a...))
	}
}

// AssertMutexLocked panics unless the mutex is currently held. TryLock
// succeeding means it was free; treat that as a failed assertion.
func AssertMutexLocked(m *sync.Mutex) {
	if m.TryLock() {
		m.Unlock()
		panic("mutex not locked")
	}
}

func AssertRWMutexLocked(m *sync.RWMutex) {
	if m.TryLock() {
		m.Unlock()
		panic("rwmutex not locked")
	}
}
