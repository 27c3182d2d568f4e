// Package nlog provides a buffered, timestamping, leveled logger with
// double-buffered writes, size-based rotation, and an emergency
// also-to-stderr mode.
/*
 * Copyright (c) 2023, NVIDIA CORPORATION. All rights reserved.
 */
package nlog

import (
	"time"

	"github.com/gridforge/wlmcore/cmn/mono"
)

var MaxSize int64 = 4 * 1024 * 1024

// SetDestination configures where subsequent log lines land. dir == ""
// keeps everything on stderr (the default for short-lived CLI tools like
// cmd/wlmctl); a non-empty dir rotates INFO/WARNING/ERROR files under it.
func SetDestination(dir, r string, mirrorToStderr bool) {
	logDir, role, alsoToStderr = dir, r, mirrorToStderr
	toStderr = dir == ""
}

func SetTitle(s string) { title = s }

func InfoDepth(depth int, args ...any)    { log(sevInfo, depth, "", args...) }
func Infoln(args ...any)                  { log(sevInfo, 0, "", args...) }
func Infof(format string, args ...any)    { log(sevInfo, 0, format, args...) }
func Warningln(args ...any)               { log(sevWarn, 0, "", args...) }
func Warningf(format string, args ...any) { log(sevWarn, 0, format, args...) }
func ErrorDepth(depth int, args ...any)   { log(sevErr, depth, "", args...) }
func Errorln(args ...any)                 { log(sevErr, 0, "", args...) }
func Errorf(format string, args ...any)   { log(sevErr, 0, format, args...) }

func InfoLogName() string { return sname() + ".INFO" }
func ErrLogName() string  { return sname() + ".ERROR" }

// Flush pushes buffered lines to disk. exit=true also fsyncs and closes.
func Flush(exit ...bool) {
	onceInitFiles.Do(initFiles)
	var (
		ex  = len(exit) > 0 && exit[0]
		now = mono.NanoTime()
	)
	for _, sev := range []severity{sevInfo, sevErr} {
		n := nlogs[sev]
		var oob bool

		n.mw.Lock()
		if n.pw.length() == 0 && !ex {
			n.mw.Unlock()
			continue
		}
		if ex || n.pw.avail() < maxLineSize || n.since(now) > 10*time.Second {
			n.toFlush = append(n.toFlush, n.pw)
			n.get()
		}
		oob = len(n.toFlush) > 0
		n.mw.Unlock()

		if oob {
			n.flush()
		}
		if ex && n.file != nil {
			n.file.Sync()
			n.file.Close()
		}
	}
}

func Since() time.Duration {
	onceInitFiles.Do(initFiles)
	now := mono.NanoTime()
	a, b := nlogs[sevInfo].since(now), nlogs[sevErr].since(now)
	if a > b {
		return a
	}
	return b
}

func OOB() bool {
	onceInitFiles.Do(initFiles)
	return nlogs[sevInfo].oob.Load() || nlogs[sevErr].oob.Load()
}
