/*
 * Copyright (c) 2023, NVIDIA CORPORATION. All rights reserved.
 */
package wire_test

import (
	"github.com/gridforge/wlmcore/cmn"
	"github.com/gridforge/wlmcore/wire"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("frame codec", func() {
	It("round-trips a header and body through PackFrame/UnpackFrame", func() {
		h := &wire.Header{
			Version: wire.ProtocolVersion,
			Flags:   1,
			Kind:    42,
			ForwardPlan: wire.ForwardPlan{
				Count:           2,
				Targets:         []wire.Addr{{IP: [4]byte{10, 0, 0, 1}, Port: 7000}, {IP: [4]byte{10, 0, 0, 2}, Port: 7001}},
				BranchTimeoutMS: 500,
			},
			ForwardReturn: []wire.RetEntry{
				{Kind: 1, ReturnCode: 0, PerNode: []wire.PerNodeData{{NodeName: "n1", NodeID: 1}}},
			},
			OriginAddr:   wire.Addr{IP: [4]byte{127, 0, 0, 1}, Port: 6817},
			SourceNodeID: 3,
		}
		body := []byte("hello placement")
		cred := []byte("opaque-cred")

		frame := wire.PackFrame(h, cred, body)
		got, gotCred, gotBody, err := wire.UnpackFrame(frame)
		Expect(err).NotTo(HaveOccurred())

		Expect(got.Version).To(Equal(h.Version))
		Expect(got.Flags).To(Equal(h.Flags))
		Expect(got.Kind).To(Equal(h.Kind))
		Expect(got.BodyLength).To(Equal(uint32(len(body))))
		Expect(got.ForwardPlan).To(Equal(h.ForwardPlan))
		Expect(got.ForwardReturn).To(Equal(h.ForwardReturn))
		Expect(got.OriginAddr).To(Equal(h.OriginAddr))
		Expect(got.SourceNodeID).To(Equal(h.SourceNodeID))
		Expect(gotBody).To(Equal(body))
		Expect(gotCred).To(Equal(cred))
	})

	It("rejects a version mismatch before inspecting body length", func() {
		h := &wire.Header{Version: wire.ProtocolVersion + 1, Kind: 1}
		frame := wire.PackFrame(h, nil, []byte("x"))

		_, _, _, err := wire.UnpackFrame(frame)
		Expect(err).To(HaveOccurred())
		Expect(cmn.ToRC(err)).To(Equal(cmn.VERSION_MISMATCH))
	})

	It("reports INCOMPLETE_PACKET on a truncated frame", func() {
		h := &wire.Header{Version: wire.ProtocolVersion}
		frame := wire.PackFrame(h, nil, []byte("hello"))

		_, _, _, err := wire.UnpackFrame(frame[:len(frame)-3])
		Expect(err).To(HaveOccurred())
		Expect(cmn.ToRC(err)).To(Equal(cmn.INCOMPLETE_PACKET))
	})

	It("marks the reserved keepalive kind range", func() {
		Expect(wire.ReservedKind(wire.KindNoOp)).To(BeTrue())
		Expect(wire.ReservedKind(1)).To(BeFalse())
	})
})

var _ = Describe("ForwardResult", func() {
	It("aggregates per-branch replies grouped by (return_code, kind)", func() {
		r := wire.NewForwardResult(2, 1000)
		r.Aggregate(wire.RetEntry{Kind: 1, ReturnCode: 0, PerNode: []wire.PerNodeData{{NodeName: "n1"}}})
		r.Aggregate(wire.RetEntry{Kind: 1, ReturnCode: 0, PerNode: []wire.PerNodeData{{NodeName: "n2"}}})
		r.Aggregate(wire.RetEntry{Kind: 1, ReturnCode: 7, PerNode: []wire.PerNodeData{{NodeName: "n3"}}})

		snap := r.Snapshot()
		Expect(snap).To(HaveLen(2))
		Expect(r.Count()).To(Equal(3))
	})
})
