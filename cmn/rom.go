// Package cmn provides shared constants, the return-code enum, and the
// global configuration snapshot used across the placement and RPC cores.
/*
 * Copyright (c) 2023, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import "time"

// read-mostly and most often used timeouts: assigned at startup to reduce
// the number of GCO.Get() calls on hot paths (every accept, every
// send/recv). Updated a) upon startup and b) upon receiving a new config.

type readMostly struct {
	timeout struct {
		cplane     time.Duration // Config.Timeout.CplaneOperation
		keepalive  time.Duration // ditto MaxKeepalive
		defaultMsg time.Duration // ditto DefaultMsg
	}
	authEnabled bool
}

var Rom readMostly

func init() {
	Rom.Set(GCO.Get())
}

func (rom *readMostly) Set(cfg *Config) {
	rom.timeout.cplane = cfg.Timeout.CplaneOperation
	rom.timeout.keepalive = cfg.Timeout.MaxKeepalive
	rom.timeout.defaultMsg = cfg.Timeout.DefaultMsg
	rom.authEnabled = cfg.Auth.Enabled
}

func (rom *readMostly) CplaneOperation() time.Duration { return rom.timeout.cplane }
func (rom *readMostly) MaxKeepalive() time.Duration    { return rom.timeout.keepalive }
func (rom *readMostly) DefaultMsgTimeout() time.Duration { return rom.timeout.defaultMsg }
func (rom *readMostly) AuthEnabled() bool              { return rom.authEnabled }
