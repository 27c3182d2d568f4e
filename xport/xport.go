// Package xport implements connection-oriented stream-socket transport
// (spec.md §4.C): bind/listen/accept/connect, blocking reads/writes with
// millisecond timeouts, and bounded shutdown retry.
/*
 * Copyright (c) 2023, NVIDIA CORPORATION. All rights reserved.
 */
package xport

import (
	"fmt"
	"net"
	"time"

	"github.com/gridforge/wlmcore/cmn"
	"github.com/gridforge/wlmcore/cmn/nlog"
	"github.com/gridforge/wlmcore/wire"
)

func addrString(a wire.Addr) string {
	return fmt.Sprintf("%d.%d.%d.%d:%d", a.IP[0], a.IP[1], a.IP[2], a.IP[3], a.Port)
}

// ParseHostPort parses an "ipv4:port" string into a wire.Addr.
func ParseHostPort(s string) (wire.Addr, error) { return parseAddr(s) }

func parseAddr(s string) (wire.Addr, error) {
	host, portS, err := net.SplitHostPort(s)
	if err != nil {
		return wire.Addr{}, err
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return wire.Addr{}, fmt.Errorf("xport: unparseable address %q", s)
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return wire.Addr{}, fmt.Errorf("xport: not an ipv4 address %q", s)
	}
	var port int
	if _, err := fmt.Sscanf(portS, "%d", &port); err != nil {
		return wire.Addr{}, err
	}
	var a wire.Addr
	copy(a.IP[:], ip4)
	a.Port = uint16(port)
	return a, nil
}

// Listener wraps a listening stream socket.
type Listener struct {
	ln net.Listener
}

// ListenOn binds and listens on addr (spec.md §4.C: listen_on).
func ListenOn(addr wire.Addr) (*Listener, error) {
	ln, err := net.Listen("tcp4", addrString(addr))
	if err != nil {
		return nil, cmn.NewErr(cmn.SOCKET_ERROR, "xport: listen_on %s: %v", addrString(addr), err)
	}
	if tl, ok := ln.(*net.TCPListener); ok {
		applyListenerSockopts(tl)
	}
	return &Listener{ln: ln}, nil
}

func (l *Listener) Close() error { return l.ln.Close() }

// Addr reports the bound local address, useful when ListenOn was called
// with port 0 (OS-assigned).
func (l *Listener) Addr() wire.Addr {
	a, _ := parseAddr(l.ln.Addr().String())
	return a
}

// Accept blocks until a peer connects (spec.md §4.C: accept).
func (l *Listener) Accept() (*Conn, wire.Addr, error) {
	nc, err := l.ln.Accept()
	if err != nil {
		return nil, wire.Addr{}, cmn.NewErr(cmn.SOCKET_ERROR, "xport: accept: %v", err)
	}
	if tc, ok := nc.(*net.TCPConn); ok {
		applyConnSockopts(tc)
	}
	peer, err := parseAddr(nc.RemoteAddr().String())
	if err != nil {
		nlog.Warningf("xport: could not parse peer address %s: %v", nc.RemoteAddr(), err)
	}
	return &Conn{nc: nc}, peer, nil
}

// Conn wraps a connected stream socket. blocking records the last
// SetBlocking call; no operation reads it, since Go's net.Conn is always
// non-blocking under the hood and every read/write takes its own timeout.
type Conn struct {
	nc       net.Conn
	blocking bool
}

// Connect opens a stream connection to addr (spec.md §4.C: connect).
// A zero timeout applies the default message timeout (spec.md §4.A/§5).
func Connect(addr wire.Addr, timeoutMS int) (*Conn, error) {
	d := net.Dialer{Timeout: resolveTimeout(timeoutMS)}
	nc, err := d.Dial("tcp4", addrString(addr))
	if err != nil {
		return nil, cmn.NewErr(cmn.CONNECTION_ERROR, "xport: connect %s: %v", addrString(addr), err)
	}
	if tc, ok := nc.(*net.TCPConn); ok {
		applyConnSockopts(tc)
	}
	return &Conn{nc: nc, blocking: true}, nil
}

func resolveTimeout(timeoutMS int) time.Duration {
	if timeoutMS > 0 {
		return time.Duration(timeoutMS) * time.Millisecond
	}
	return cmn.Rom.DefaultMsgTimeout()
}

// ReadExact reads exactly n bytes, or fails RECV_TIMEOUT/RECV_ERROR
// (spec.md §4.C: read_exact). A zero timeout applies the default.
func (c *Conn) ReadExact(n int, timeoutMS int) ([]byte, error) {
	if err := c.nc.SetReadDeadline(time.Now().Add(resolveTimeout(timeoutMS))); err != nil {
		return nil, cmn.NewErr(cmn.SOCKET_ERROR, "xport: set read deadline: %v", err)
	}
	buf := make([]byte, n)
	read := 0
	for read < n {
		k, err := c.nc.Read(buf[read:])
		read += k
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return nil, cmn.NewErr(cmn.RECV_TIMEOUT, "xport: read_exact timed out after %d/%d bytes", read, n)
			}
			return nil, cmn.NewErr(cmn.RECV_ERROR, "xport: read_exact: %v", err)
		}
	}
	return buf, nil
}

// WriteAll writes buf in full, or fails SEND_ERROR (spec.md §4.C:
// write_all). A zero timeout applies the default.
func (c *Conn) WriteAll(buf []byte, timeoutMS int) error {
	if err := c.nc.SetWriteDeadline(time.Now().Add(resolveTimeout(timeoutMS))); err != nil {
		return cmn.NewErr(cmn.SOCKET_ERROR, "xport: set write deadline: %v", err)
	}
	written := 0
	for written < len(buf) {
		k, err := c.nc.Write(buf[written:])
		written += k
		if err != nil {
			return cmn.NewErr(cmn.SEND_ERROR, "xport: write_all: %v", err)
		}
	}
	return nil
}

// Shutdown closes the connection, retrying up to MaxShutdownRetry times
// when interrupted (spec.md §4.C, §5: "shutdown must be retried up to an
// implementation-defined bound when interrupted; exceeding the bound is
// an error").
func (c *Conn) Shutdown() error {
	max := cmn.GCO.Get().Transport.MaxShutdownRetry
	var lastErr error
	for attempt := 0; attempt <= max; attempt++ {
		if err := c.nc.Close(); err != nil {
			lastErr = err
			if isInterrupted(err) {
				continue
			}
			return cmn.NewErr(cmn.SHUTDOWN_ERROR, "xport: shutdown: %v", err)
		}
		return nil
	}
	return cmn.NewErr(cmn.SHUTDOWN_ERROR, "xport: shutdown: exceeded %d retries: %v", max, lastErr)
}

// SetBlocking records the desired blocking mode for subsequent operations
// (spec.md §4.C: set_blocking). Go's runtime-managed netpoller makes a
// literal non-blocking mode unnecessary; callers that want a
// non-blocking poll instead pass a small positive timeout to ReadExact.
func (c *Conn) SetBlocking(b bool) error {
	c.blocking = b
	return nil
}

func (c *Conn) RemoteAddr() wire.Addr {
	a, _ := parseAddr(c.nc.RemoteAddr().String())
	return a
}
