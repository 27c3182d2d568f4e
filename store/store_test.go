/*
 * Copyright (c) 2023, NVIDIA CORPORATION. All rights reserved.
 */
package store_test

import (
	"github.com/gridforge/wlmcore/catalog"
	"github.com/gridforge/wlmcore/cmn/cos"
	"github.com/gridforge/wlmcore/jobspec"
	"github.com/gridforge/wlmcore/store"
	"github.com/gridforge/wlmcore/topo"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Store", func() {
	var s *store.Store

	BeforeEach(func() {
		var err error
		s, err = store.Open(":memory:")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(s.Close()).To(Succeed())
	})

	It("round-trips a block, including its bitmap", func() {
		bm := cos.NewBitSet(8)
		bm.Set(1)
		bm.Set(3)
		b := catalog.NewBlock("R00", bm, topo.Coord{2, 2, 2}, topo.Coord{}, 4, topo.TORUS, catalog.Images{Linux: "prod"})

		Expect(s.SaveBlock(b)).To(Succeed())

		got, err := s.LoadBlocks()
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(HaveLen(1))
		Expect(got[0].ID).To(Equal("R00"))
		Expect(got[0].BPCount).To(Equal(2))
		Expect(got[0].Bitmap.Test(1)).To(BeTrue())
		Expect(got[0].Bitmap.Test(3)).To(BeTrue())
		Expect(got[0].Bitmap.Test(2)).To(BeFalse())
		Expect(got[0].Images.Linux).To(Equal("prod"))
	})

	It("deletes a persisted block", func() {
		bm := cos.NewBitSet(4)
		b := catalog.NewBlock("R01", bm, topo.Coord{1, 1, 1}, topo.Coord{}, 1, topo.TORUS, catalog.Images{})
		Expect(s.SaveBlock(b)).To(Succeed())
		Expect(s.DeleteBlock("R01")).To(Succeed())

		got, err := s.LoadBlocks()
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(BeEmpty())
	})

	It("snapshots an entire live catalogue", func() {
		cat := catalog.New()
		bm := cos.NewBitSet(4)
		bm.Set(0)
		b := catalog.NewBlock("R02", bm, topo.Coord{1, 1, 1}, topo.Coord{}, 1, topo.TORUS, catalog.Images{})
		cat.Lock()
		cat.Add(b)
		cat.Unlock()

		Expect(s.SnapshotCatalogue(cat)).To(Succeed())

		got, err := s.LoadBlocks()
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(HaveLen(1))
		Expect(got[0].ID).To(Equal("R02"))
	})

	It("round-trips a job description", func() {
		d := jobspec.NewJobDesc("job1")
		d.Priority = 42
		d.Partition = "gpu"
		Expect(s.SaveJob(d)).To(Succeed())

		got, err := s.LoadJobs()
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(HaveLen(1))
		Expect(got[0].JobID).To(Equal("job1"))
		Expect(got[0].Priority).To(Equal(42))
		Expect(got[0].Partition).To(Equal("gpu"))
	})
})
