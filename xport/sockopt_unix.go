//go:build unix

/*
 * Copyright (c) 2023, NVIDIA CORPORATION. All rights reserved.
 */
package xport

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/gridforge/wlmcore/cmn/nlog"
)

// applyListenerSockopts sets SO_REUSEADDR on the listening socket so a
// restarted controller can rebind immediately.
func applyListenerSockopts(tl *net.TCPListener) {
	raw, err := tl.SyscallConn()
	if err != nil {
		nlog.Warningf("xport: SyscallConn on listener: %v", err)
		return
	}
	cerr := raw.Control(func(fd uintptr) {
		if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			nlog.Warningf("xport: SO_REUSEADDR: %v", err)
		}
	})
	if cerr != nil {
		nlog.Warningf("xport: sockopt control: %v", cerr)
	}
}

// applyConnSockopts disables Nagle's algorithm (TCP_NODELAY): RPC traffic
// here is small request/response frames, not bulk streams.
func applyConnSockopts(tc *net.TCPConn) {
	raw, err := tc.SyscallConn()
	if err != nil {
		nlog.Warningf("xport: SyscallConn on conn: %v", err)
		return
	}
	cerr := raw.Control(func(fd uintptr) {
		if err := unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
			nlog.Warningf("xport: TCP_NODELAY: %v", err)
		}
	})
	if cerr != nil {
		nlog.Warningf("xport: sockopt control: %v", cerr)
	}
}

func isInterrupted(err error) bool {
	return err == syscall.EINTR
}
