// Package cmn - global configuration snapshot.
//
// Design note: the original C implementation reaches dozens of one-line
// getters into a mutable global config struct. Per this repository's
// design notes, that becomes a single immutable snapshot value, loaded
// atomically (without a lock) and threaded through the call chain instead of
// re-read field-by-field; `GCO.Get()` is the one place a caller touches
// the global, mirroring the teacher's `cmn.GCO.Get()` convention.
/*
 * Copyright (c) 2023, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import (
	"sync"
	"sync/atomic"
	"time"
)

type (
	// Config is the immutable snapshot threaded through a call chain.
	// Never mutate a *Config obtained from GCO.Get(); construct a copy
	// via BeginUpdate/CommitUpdate instead.
	Config struct {
		Timeout   TimeoutConf
		Transport TransportConf
		Placement PlacementConf
		Auth      AuthConf
		Log       LogConf
	}
	TimeoutConf struct {
		// default message timeout applied when a caller passes 0
		DefaultMsg time.Duration
		// the "controller_timeout" from which SendRecvController's 1.5x
		// standby grace window is computed
		Controller time.Duration
		CplaneOperation time.Duration
		MaxKeepalive    time.Duration
	}
	TransportConf struct {
		MaxShutdownRetry int
		MaxCancelRetry   int
		ForwardTreeWidth int
	}
	PlacementConf struct {
		OverlapLayout bool // overlap layout mode vs. dynamic layout mode (spec.md §4.I)
		DynamicLayout bool
		NodePrefix    string
		MaxGroups     int
	}
	AuthConf struct {
		Enabled bool
	}
	LogConf struct {
		Dir   string
		Level int
	}
)

type globalConfigOwner struct {
	ptr atomic.Pointer[Config]
	mu  sync.Mutex // serializes BeginUpdate/CommitUpdate, Get() is lock-free
}

// GCO is the process-wide global configuration owner, read by every RPC
// and placement call via GCO.Get().
var GCO = &globalConfigOwner{}

func init() {
	GCO.ptr.Store(defaultConfig())
}

func defaultConfig() *Config {
	return &Config{
		Timeout: TimeoutConf{
			DefaultMsg:      30 * time.Second,
			Controller:      30 * time.Second,
			CplaneOperation: time.Second + time.Millisecond,
			MaxKeepalive:    2*time.Second + time.Millisecond,
		},
		Transport: TransportConf{
			MaxShutdownRetry: 3,
			MaxCancelRetry:   5,
			ForwardTreeWidth: 4,
		},
		Placement: PlacementConf{
			OverlapLayout: false,
			DynamicLayout: true,
			NodePrefix:    "bp",
			MaxGroups:     128,
		},
	}
}

// Get returns the current immutable snapshot. Safe for concurrent use
// without a lock; callers must not mutate the returned value.
func (g *globalConfigOwner) Get() *Config { return g.ptr.Load() }

// BeginUpdate locks out concurrent updates and returns a mutable copy of
// the current config for the caller to edit in place.
func (g *globalConfigOwner) BeginUpdate() *Config {
	g.mu.Lock()
	cfg := *g.ptr.Load()
	return &cfg
}

// CommitUpdate publishes the edited copy and releases the update lock.
func (g *globalConfigOwner) CommitUpdate(cfg *Config) {
	g.ptr.Store(cfg)
	Rom.Set(cfg)
	g.mu.Unlock()
}

// DiscardUpdate releases the update lock without publishing, e.g. when
// validation of the edited copy fails.
func (g *globalConfigOwner) DiscardUpdate() { g.mu.Unlock() }
