/*
 * Copyright (c) 2023, NVIDIA CORPORATION. All rights reserved.
 */
package fanout_test

import (
	"context"
	"errors"

	"github.com/gridforge/wlmcore/fanout"
	"github.com/gridforge/wlmcore/wire"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"
)

func sum(span []int) int {
	n := 0
	for _, s := range span {
		n += s
	}
	return n
}

func max(span []int) int {
	m := 0
	for _, s := range span {
		if s > m {
			m = s
		}
	}
	return m
}

var _ = Describe("Span", func() {
	It("matches the literal worked scenario (13, width 4) -> [3,3,3,4]", func() {
		Expect(fanout.Span(13, 4)).To(Equal([]int{3, 3, 3, 4}))
	})

	DescribeTable("sums to n and never exceeds n",
		func(n, w int) {
			span := fanout.Span(n, w)
			Expect(span).To(HaveLen(w))
			Expect(sum(span)).To(Equal(n))
			Expect(max(span)).To(BeNumerically("<=", n))
		},
		Entry("13 over 4", 13, 4),
		Entry("1 over 4", 1, 4),
		Entry("0 over 4", 0, 4),
		Entry("100 over 3", 100, 3),
		Entry("4 over 4", 4, 4),
		Entry("5 over 1", 5, 1),
	)
})

var _ = Describe("Planner.Dispatch", func() {
	mkTargets := func(n int) []wire.Addr {
		out := make([]wire.Addr, n)
		for i := range out {
			out[i] = wire.Addr{IP: [4]byte{10, 0, 0, byte(i + 1)}, Port: 7000}
		}
		return out
	}

	It("aggregates one entry per expected target across all branches", func() {
		p := &fanout.Planner{Width: 4}
		targets := mkTargets(13)

		result := p.Dispatch(context.Background(), targets, 1000, func(_ context.Context, branch []wire.Addr, _ int32) ([]wire.RetEntry, error) {
			pn := make([]wire.PerNodeData, len(branch))
			for i, t := range branch {
				pn[i] = wire.PerNodeData{NodeName: t.String()}
			}
			return []wire.RetEntry{{ReturnCode: 0, PerNode: pn}}, nil
		})

		Expect(result.ExpectedBranchCount).To(Equal(13))
		Expect(result.Count()).To(Equal(13))
	})

	It("records a failing branch as entries carrying the transport error", func() {
		p := &fanout.Planner{Width: 2}
		targets := mkTargets(3)

		result := p.Dispatch(context.Background(), targets, 1000, func(_ context.Context, branch []wire.Addr, _ int32) ([]wire.RetEntry, error) {
			if len(branch) > 1 {
				return nil, errors.New("boom")
			}
			return []wire.RetEntry{{ReturnCode: 0, PerNode: []wire.PerNodeData{{NodeName: branch[0].String()}}}}, nil
		})

		Expect(result.Count()).To(Equal(3))
	})
})
