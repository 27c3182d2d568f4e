/*
 * Copyright (c) 2023, NVIDIA CORPORATION. All rights reserved.
 */
package topo

import "github.com/gridforge/wlmcore/cmn/cos"

// IndexOf maps a coordinate to its row-major bit index within DimSize,
// matching how catalog.Block bitmaps are addressed.
func IndexOf(c Coord) int {
	return c[0]*DimSize[1]*DimSize[2] + c[1]*DimSize[2] + c[2]
}

// CoordAt is the inverse of IndexOf.
func CoordAt(i int) Coord {
	z := i % DimSize[2]
	i /= DimSize[2]
	y := i % DimSize[1]
	x := i / DimSize[1]
	return Coord{x, y, z}
}

// BoundingBox computes the geometry and start coordinate of the smallest
// axis-aligned box containing every set bit in bm — used when a job
// supplies a required-node bitmap but no explicit geometry (spec.md §4.I:
// "parse the list ... derive geometry and start coordinates from the
// resulting block").
func BoundingBox(bm *cos.BitSet) (shape, start Coord, ok bool) {
	lo := Coord{DimSize[0], DimSize[1], DimSize[2]}
	hi := Coord{-1, -1, -1}
	for i := 0; i < bm.Len(); i++ {
		if !bm.Test(i) {
			continue
		}
		c := CoordAt(i)
		ok = true
		for d := 0; d < 3; d++ {
			if c[d] < lo[d] {
				lo[d] = c[d]
			}
			if c[d] > hi[d] {
				hi[d] = c[d]
			}
		}
	}
	if !ok {
		return Coord{}, Coord{}, false
	}
	for d := 0; d < 3; d++ {
		shape[d] = hi[d] - lo[d] + 1
	}
	return shape, lo, true
}
