// Package topo implements the 3-D machine topology model: coordinates,
// block geometry, the canonical rotation sequence, and overlap/containment
// tests over node bitmaps (spec.md §4.F).
//
// Grounded on original_source/tags/slurm-1-2-23-1/.../bg_job_place.c's
// geometry/rotation handling, restated without gotos.
/*
 * Copyright (c) 2023, NVIDIA CORPORATION. All rights reserved.
 */
package topo

import (
	"fmt"

	"github.com/gridforge/wlmcore/cmn/cos"
)

// DimSize bounds each coordinate axis. The machine is a DimSize^3 grid of
// base partitions; real deployments set this from static config at boot.
var DimSize = [3]int{8, 8, 8}

// Coord is a 3-D non-negative integer coordinate, also used as a block
// geometry triple (shape in base-partition units).
type Coord [3]int

func (c Coord) Size() int { return c.X() * c.Y() * c.Z() }
func (c Coord) X() int    { return c[0] }
func (c Coord) Y() int    { return c[1] }
func (c Coord) Z() int    { return c[2] }

func (c Coord) String() string { return fmt.Sprintf("%dx%dx%d", c[0], c[1], c[2]) }

// InBounds reports whether every axis is within [0, DimSize).
func (c Coord) InBounds() bool {
	for i := 0; i < 3; i++ {
		if c[i] < 0 || c[i] >= DimSize[i] {
			return false
		}
	}
	return true
}

// Fits reports whether a block of geometry c can be placed, axis by axis,
// within a block of geometry other (i.e. c's shape fits inside other's,
// without considering rotation — callers rotate c themselves via Rotations).
func (c Coord) Fits(other Coord) bool {
	return c.X() <= other.X() && c.Y() <= other.Y() && c.Z() <= other.Z()
}

// Equal reports whether two triples match on every axis.
func (c Coord) Equal(other Coord) bool { return c == other }

// Rotations yields all geometries reachable from start by the canonical
// six-permutation rotation order (spec.md §4.F): five in-place swaps,
// Y<->Z, X<->Y, Y<->Z, X<->Y, Y<->Z, applied in that exact sequence.
// Rotations()[0] == start; Rotations() always has length 6 and (per
// spec.md §8 property 5) visits all 6 distinct permutations of a triple
// with 3 distinct values, fewer when axes repeat.
func Rotations(start Coord) [6]Coord {
	var out [6]Coord
	cur := start
	out[0] = cur
	swapYZ := func(c Coord) Coord { c[1], c[2] = c[2], c[1]; return c }
	swapXY := func(c Coord) Coord { c[0], c[1] = c[1], c[0]; return c }
	steps := []func(Coord) Coord{swapYZ, swapXY, swapYZ, swapXY, swapYZ}
	for i, step := range steps {
		cur = step(cur)
		out[i+1] = cur
	}
	return out
}

// FitsRotated reports whether geometry c fits within other's shape in any
// of the (up to) six canonical rotations; rotate=false restricts the test
// to the unrotated geometry (Rotations()[0] only).
func FitsRotated(c, other Coord, rotate bool) (fits bool, rotationsTried int) {
	if !rotate {
		return c.Fits(other), 1
	}
	seen := map[Coord]bool{}
	for i, r := range Rotations(c) {
		if seen[r] {
			continue
		}
		seen[r] = true
		rotationsTried = i + 1
		if r.Fits(other) {
			return true, rotationsTried
		}
	}
	return false, rotationsTried
}

// ConnType enumerates the wiring discipline applied to a block.
type ConnType int

const (
	TORUS ConnType = iota
	MESH
	NAV
	HTC_S
	HTC_D
	HTC_V
	HTC_L
)

func (t ConnType) String() string {
	switch t {
	case TORUS:
		return "TORUS"
	case MESH:
		return "MESH"
	case NAV:
		return "NAV"
	case HTC_S:
		return "HTC_SMP"
	case HTC_D:
		return "HTC_DUAL"
	case HTC_V:
		return "HTC_VIRTUAL"
	case HTC_L:
		return "HTC_LINUX"
	default:
		return "UNKNOWN"
	}
}

// Geometry pairs a shape with an optional fixed start coordinate.
type Geometry struct {
	Shape      Coord
	Start      Coord
	HasStart   bool
	Wildcarded bool // true when the request supplied no geometry at all
}

// Overlaps reports whether two blocks' node bitmaps share any bit
// (spec.md §4.F).
func Overlaps(a, b *cos.BitSet) bool { return a.Overlaps(b) }

// Contains reports whether a contains b: popcount(a & b) == popcount(b).
func Contains(a, b *cos.BitSet) bool { return a.Contains(b) }
