/*
 * Copyright (c) 2023, NVIDIA CORPORATION. All rights reserved.
 */
package topo_test

import (
	"github.com/gridforge/wlmcore/topo"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"
)

var _ = Describe("Rotations", func() {
	DescribeTable("visits all distinct permutations of a triple",
		func(start topo.Coord, wantDistinct int) {
			rs := topo.Rotations(start)
			Expect(rs[0]).To(Equal(start))
			seen := map[topo.Coord]bool{}
			for _, r := range rs {
				seen[r] = true
			}
			Expect(seen).To(HaveLen(wantDistinct))
		},
		Entry("3 distinct axes -> 6 permutations", topo.Coord{2, 4, 8}, 6),
		Entry("2 equal axes -> 3 distinct permutations", topo.Coord{2, 2, 8}, 3),
		Entry("all equal axes -> 1 permutation", topo.Coord{4, 4, 4}, 1),
	)

	It("scenario 2: (2,2,2) fits (2,4,2) after one rotation", func() {
		fits, tried := topo.FitsRotated(topo.Coord{2, 2, 2}, topo.Coord{2, 4, 2}, true)
		Expect(fits).To(BeTrue())
		Expect(tried).To(BeNumerically(">=", 1))
	})

	It("does not rotate when rotate=false", func() {
		fits, tried := topo.FitsRotated(topo.Coord{4, 2, 2}, topo.Coord{2, 4, 2}, false)
		Expect(fits).To(BeFalse())
		Expect(tried).To(Equal(1))
	})
})

var _ = Describe("overlap and containment", func() {
	It("reports overlap iff bitmaps share a bit", func() {
		a := cosBitSet(4, 0, 1)
		b := cosBitSet(4, 2, 3)
		Expect(topo.Overlaps(a, b)).To(BeFalse())
		c := cosBitSet(4, 1, 2)
		Expect(topo.Overlaps(a, c)).To(BeTrue())
	})

	It("contains iff popcount(a&b) == popcount(b)", func() {
		a := cosBitSet(8, 0, 1, 2, 3)
		b := cosBitSet(8, 1, 2)
		Expect(topo.Contains(a, b)).To(BeTrue())
		Expect(topo.Contains(b, a)).To(BeFalse())
	})
})
