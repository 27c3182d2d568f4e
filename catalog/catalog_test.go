/*
 * Copyright (c) 2023, NVIDIA CORPORATION. All rights reserved.
 */
package catalog_test

import (
	"github.com/gridforge/wlmcore/catalog"
	"github.com/gridforge/wlmcore/cmn/cos"
	"github.com/gridforge/wlmcore/topo"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func mkBlock(id string, bits ...int) *catalog.Block {
	bm := cos.NewBitSet(64)
	for _, b := range bits {
		bm.Set(b)
	}
	return catalog.NewBlock(id, bm, topo.Coord{1, 1, 1}, topo.Coord{0, 0, 0}, 16, topo.MESH, catalog.Images{})
}

var _ = Describe("Catalogue", func() {
	It("add/remove respects the FREE + no-pending-free invariant", func() {
		c := catalog.New()
		b := mkBlock("blk-1", 0, 1)

		c.Lock()
		c.Add(b)
		Expect(c.Len()).To(Equal(1))

		b.State = catalog.READY
		Expect(c.Remove(b)).To(BeFalse(), "READY blocks cannot be removed")

		c.MarkFree(b)
		c.FreeList([]*catalog.Block{b})
		Expect(c.Remove(b)).To(BeFalse(), "pending-free count blocks removal")

		c.ClearPendingFree(b)
		Expect(c.Remove(b)).To(BeTrue())
		Expect(c.Len()).To(Equal(0))
		c.Unlock()
	})

	It("iterates views in stable catalogue order", func() {
		c := catalog.New()
		b1, b2, b3 := mkBlock("b1", 0), mkBlock("b2", 1), mkBlock("b3", 2)
		b2.State = catalog.READY
		b3.OwnerJob = "job-7"

		c.Lock()
		c.Add(b1)
		c.Add(b2)
		c.Add(b3)

		var allIDs, bootedIDs, jobIDs []string
		c.Iterate(catalog.ViewAll, func(b *catalog.Block) bool { allIDs = append(allIDs, b.ID); return true })
		c.Iterate(catalog.ViewBooted, func(b *catalog.Block) bool { bootedIDs = append(bootedIDs, b.ID); return true })
		c.Iterate(catalog.ViewJobBearing, func(b *catalog.Block) bool { jobIDs = append(jobIDs, b.ID); return true })
		c.Unlock()

		Expect(allIDs).To(Equal([]string{"b1", "b2", "b3"}))
		Expect(bootedIDs).To(Equal([]string{"b2"}))
		Expect(jobIDs).To(Equal([]string{"b3"}))
	})

	It("detects overlap via shared bitmap bits", func() {
		c := catalog.New()
		b1 := mkBlock("b1", 0, 1, 2)
		b2 := mkBlock("b2", 2, 3)
		b3 := mkBlock("b3", 4, 5)

		c.Lock()
		c.Add(b1)
		c.Add(b2)
		c.Add(b3)
		ov := c.Overlapping(b1)
		c.Unlock()

		Expect(ov).To(HaveLen(1))
		Expect(ov[0].ID).To(Equal("b2"))
	})
})
