// Package nlog provides a buffered, timestamping, leveled logger with
// double-buffered writes, size-based rotation, and an emergency
// also-to-stderr mode.
/*
 * Copyright (c) 2023, NVIDIA CORPORATION. All rights reserved.
 */
package nlog

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gridforge/wlmcore/cmn/mono"
)

const (
	fixedSize   = 64 * 1024
	extraSize   = 32 * 1024 // via mem pool
	maxLineSize = 2 * 1024
)

type severity int

const (
	sevInfo severity = iota
	sevWarn
	sevErr
)

var sevText = [...]string{"INFO", "WARNING", "ERROR"}
var sevChar = "IWE"

type nlog struct {
	file           *os.File
	pw, buf1, buf2 *fixed
	line           fixed
	toFlush        []*fixed
	last           atomic.Int64
	written        atomic.Int64
	sev            severity
	oob            atomic.Bool
	erred          atomic.Bool
	mw             sync.Mutex
}

var (
	nlogs         [3]*nlog
	onceInitFiles sync.Once
	pool          sync.Pool

	toStderr     bool
	alsoToStderr bool
	logDir       string
	role         string // e.g. "controller", "node"
	title        string

	host string
	pid  = os.Getpid()
)

func init() {
	host, _ = os.Hostname()
	if host == "" {
		host = "localhost"
	}
}

func initFiles() {
	for sev := sevInfo; sev <= sevErr; sev++ {
		nlogs[sev] = newNlog(sev)
	}
	if toStderr || logDir == "" {
		return
	}
	for sev := sevInfo; sev <= sevErr; sev++ {
		if f, _, err := fcreate(sevText[sev], time.Now()); err == nil {
			nlogs[sev].file = f
		} else {
			nlogs[sev].erred.Store(true)
		}
	}
}

// main function
func log(sev severity, depth int, format string, args ...any) {
	onceInitFiles.Do(initFiles)

	switch {
	case toStderr:
		fb := alloc()
		sprintf(sev, depth, format, fb, args...)
		fb.flush(os.Stderr)
		free(fb)
	case alsoToStderr || sev >= sevWarn:
		fb := alloc()
		sprintf(sev, depth, format, fb, args...)
		if alsoToStderr || sev >= sevErr {
			fb.flush(os.Stderr)
		}
		if sev >= sevWarn && nlogs[sevErr] != nil {
			n := nlogs[sevErr]
			n.mw.Lock()
			n.write(fb)
			n.mw.Unlock()
		}
		n := nlogs[sevInfo]
		n.mw.Lock()
		n.write(fb)
		n.mw.Unlock()
		free(fb)
	default:
		nlogs[sevInfo].printf(sev, depth, format, args...)
	}
}

func newNlog(sev severity) *nlog {
	n := &nlog{
		sev:     sev,
		buf1:    &fixed{buf: make([]byte, fixedSize)},
		buf2:    &fixed{buf: make([]byte, fixedSize)},
		line:    fixed{buf: make([]byte, maxLineSize)},
		toFlush: make([]*fixed, 0, 4),
	}
	n.pw = n.buf1
	return n
}

func (n *nlog) since(now int64) time.Duration { return time.Duration(now - n.last.Load()) }

func (n *nlog) printf(sev severity, depth int, format string, args ...any) {
	n.mw.Lock()
	n.line.reset()
	sprintf(sev, depth+1, format, &n.line, args...)
	n.write(&n.line)
	n.mw.Unlock()
}

// under mw-lock
func (n *nlog) write(line *fixed) {
	buf := line.buf[:line.woff]
	n.pw.Write(buf)

	if n.pw.avail() > maxLineSize {
		return
	}

	n.toFlush = append(n.toFlush, n.pw)
	n.oob.Store(true)
	n.get()
}

func (n *nlog) get() {
	prev := n.pw
	switch {
	case prev == n.buf1:
		if n.buf2 != nil {
			n.pw = n.buf2
		} else {
			n.pw = alloc()
		}
		n.buf1 = nil
	case prev == n.buf2:
		if n.buf1 != nil {
			n.pw = n.buf1
		} else {
			n.pw = alloc()
		}
		n.buf2 = nil
	default: // prev was alloc-ed
		switch {
		case n.buf1 != nil:
			n.pw = n.buf1
		case n.buf2 != nil:
			n.pw = n.buf2
		default:
			n.pw = alloc()
		}
	}
}

func (n *nlog) put(pw *fixed) {
	n.mw.Lock()
	switch {
	case n.buf1 == nil:
		n.buf1 = pw
	case n.buf2 == nil:
		n.buf2 = pw
	}
	n.mw.Unlock()
}

func (n *nlog) flush() {
	for {
		n.mw.Lock()
		if len(n.toFlush) == 0 {
			n.oob.Store(false)
			n.mw.Unlock()
			break
		}
		pw := n.toFlush[0]
		copy(n.toFlush, n.toFlush[1:])
		n.toFlush = n.toFlush[:len(n.toFlush)-1]
		n.mw.Unlock()

		n.do(pw)
	}
}

func (n *nlog) do(pw *fixed) {
	if n.file == nil || n.erred.Load() {
		os.Stderr.Write(pw.buf[:pw.woff])
	} else {
		cnt, err := pw.flush(n.file)
		if err != nil {
			n.erred.Store(true)
		}
		n.written.Add(int64(cnt))
		n.last.Store(mono.NanoTime())
	}

	pw.reset()
	if pw.size() == extraSize {
		free(pw)
	} else {
		n.put(pw)
	}

	if n.file != nil && n.written.Load() >= MaxSize {
		n.file.Close()
		n.rotate(time.Now())
	}
}

func (n *nlog) rotate(now time.Time) (err error) {
	s := fmt.Sprintf("host %s, %s for %s/%s\n", host, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	snow := now.Format("2006/01/02 15:04:05")
	if n.file, _, err = fcreate(sevText[n.sev], now); err != nil {
		n.erred.Store(true)
		return
	}
	n.written.Store(0)
	n.erred.Store(false)
	if title == "" {
		_, err = n.file.WriteString("Started up at " + snow + ", " + s)
	} else {
		n.file.WriteString("Rotated at " + snow + ", " + s)
		_, err = n.file.WriteString(title)
	}
	return
}

//
// utils
//

func sname() string {
	if role == "" {
		return "wlm"
	}
	return role
}

func logfname(tag string, t time.Time) string {
	return fmt.Sprintf("%s.%s.%s.%02d%02d-%02d%02d%02d.%d",
		sname(), host, tag, t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), pid)
}

func fcreate(tag string, t time.Time) (*os.File, string, error) {
	if logDir == "" {
		return nil, "", os.ErrNotExist
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, "", err
	}
	name := logfname(tag, t)
	full := filepath.Join(logDir, name)
	f, err := os.OpenFile(full, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, "", err
	}
	link := filepath.Join(logDir, sname()+"."+tag)
	os.Remove(link)
	os.Symlink(name, link)
	return f, full, nil
}

func formatHdr(s severity, depth int, fb *fixed) {
	_, fn, ln, ok := runtime.Caller(3 + depth)
	fb.writeByte(sevChar[s])
	fb.writeByte(' ')
	now := time.Now()
	fb.writeString(now.Format("15:04:05.000000"))
	fb.writeByte(' ')
	if !ok {
		return
	}
	if idx := strings.LastIndexByte(fn, filepath.Separator); idx > 0 {
		fn = fn[idx+1:]
	}
	if l := len(fn); l > 3 {
		fn = fn[:l-3]
	}
	fb.writeString(fn)
	fb.writeByte(':')
	fb.writeString(strconv.Itoa(ln))
	fb.writeByte(' ')
}

func sprintf(sev severity, depth int, format string, fb *fixed, args ...any) {
	formatHdr(sev, depth+1, fb)
	if format == "" {
		fmt.Fprintln(fb, args...)
	} else {
		fmt.Fprintf(fb, format, args...)
		fb.eol()
	}
}

func alloc() (fb *fixed) {
	if v := pool.Get(); v != nil {
		fb = v.(*fixed)
		fb.reset()
	} else {
		fb = &fixed{buf: make([]byte, extraSize)}
	}
	return
}

func free(fb *fixed) {
	pool.Put(fb)
}
