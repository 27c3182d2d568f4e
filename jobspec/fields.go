// Package jobspec parses the job-description fields a scheduler's edit
// front end would hand to placement (spec.md §6's "Job-description inputs
// accepted by placement"). The front end itself — list views, forms,
// add/list/modify/delete CLI wrappers — is out of scope; this package is
// only the field-level parse/validate step those collaborators call
// through.
/*
 * Copyright (c) 2023, NVIDIA CORPORATION. All rights reserved.
 */
package jobspec

import (
	"strconv"
	"strings"
	"time"

	"github.com/gridforge/wlmcore/cmn"
	"github.com/gridforge/wlmcore/cmn/cos"
	"github.com/gridforge/wlmcore/topo"
)

// NiceOffset biases a nice value into a non-negative stored range
// (spec.md §6: "nice ... stored biased by +NICE_OFFSET").
const NiceOffset = 10000

// Infinite is the sentinel stored for an unbounded time limit.
const Infinite = -1

// ParseTimeLimitMinutes parses a time limit in minutes, accepting the
// literal "INFINITE" sentinel.
func ParseTimeLimitMinutes(s string) (int, error) {
	if strings.EqualFold(s, "INFINITE") {
		return Infinite, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0, editErr("time_limit", s)
	}
	return v, nil
}

// ParsePriority parses a non-negative priority value.
func ParsePriority(s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0, editErr("priority", s)
	}
	return v, nil
}

// ParseNice parses a signed nice value in [-NiceOffset, +NiceOffset] and
// returns it biased by +NiceOffset, ready for storage.
func ParseNice(s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil || v < -NiceOffset || v > NiceOffset {
		return 0, editErr("nice", s)
	}
	return v + NiceOffset, nil
}

// ParseQuantity parses a per-node min-CPUs/tasks/CPUs-per-task/min-nodes/
// max-nodes/min-memory/min-tmp-disk field, all of which share the k/K/m/M
// suffix rule.
func ParseQuantity(field, s string) (int64, error) {
	v, err := cos.ParseSizeSuffixed(s)
	if err != nil {
		return 0, editErr(field, s)
	}
	return v, nil
}

// ParseYesNo parses a boolean field expressed as yes/no (spec.md §6:
// "shared / contiguous / requeue (boolean via yes/no)").
func ParseYesNo(field, s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "true", "1":
		return true, nil
	case "no", "false", "0":
		return false, nil
	default:
		return false, editErr(field, s)
	}
}

// ParseGeometry parses a comma- or x-separated NxNxN triple.
func ParseGeometry(s string) (topo.Coord, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	var parts []string
	switch {
	case strings.Contains(s, "x"):
		parts = strings.Split(s, "x")
	case strings.Contains(s, ","):
		parts = strings.Split(s, ",")
	default:
		return topo.Coord{}, editErr("geometry", s)
	}
	if len(parts) != 3 {
		return topo.Coord{}, editErr("geometry", s)
	}
	var c topo.Coord
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || v <= 0 {
			return topo.Coord{}, editErr("geometry", s)
		}
		c[i] = v
	}
	return c, nil
}

var connTypeNames = map[string]topo.ConnType{
	"torus":       topo.TORUS,
	"mesh":        topo.MESH,
	"nav":         topo.NAV,
	"htc smp":     topo.HTC_S,
	"htc dual":    topo.HTC_D,
	"htc virtual": topo.HTC_V,
	"htc linux":   topo.HTC_L,
}

// ParseConnType parses one of "Torus|Mesh|NAV|HTC SMP|HTC Dual|HTC
// Virtual|HTC Linux", case-insensitively.
func ParseConnType(s string) (topo.ConnType, error) {
	ct, ok := connTypeNames[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, editErr("connection_type", s)
	}
	return ct, nil
}

// ParseStartTime parses an absolute start/eligible time, clamping to now
// if the parsed value is earlier (spec.md §6: "clamped to now if
// earlier").
func ParseStartTime(s string, now time.Time) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, editErr("start_time", s)
	}
	if t.Before(now) {
		return now, nil
	}
	return t, nil
}

// ParseNodeList splits a comma-separated requested/excluded node list.
// Blank entries are rejected outright rather than silently dropped, since
// the edit must be all-or-nothing.
func ParseNodeList(field, s string) ([]string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, editErr(field, s)
		}
		out = append(out, p)
	}
	return out, nil
}

// editErr builds the structured edit error spec.md §6 requires ("any
// value outside these constraints yields a structured edit error; no
// partial update") and §7 requires ("short one-liners identifying job id
// and failing field") — the job id is filled in by EditSession.Apply,
// which is the only caller that has one.
func editErr(field, got string) error {
	return cmn.NewErr(cmn.ERROR, "jobspec: invalid %s: %q", field, got)
}
