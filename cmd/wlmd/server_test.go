/*
 * Copyright (c) 2023, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"encoding/binary"

	"github.com/gridforge/wlmcore/auth"
	"github.com/gridforge/wlmcore/catalog"
	"github.com/gridforge/wlmcore/cmn"
	"github.com/gridforge/wlmcore/cmn/cos"
	"github.com/gridforge/wlmcore/ctrlclient"
	"github.com/gridforge/wlmcore/jobspec"
	"github.com/gridforge/wlmcore/store"
	"github.com/gridforge/wlmcore/topo"
	"github.com/gridforge/wlmcore/wire"
	"github.com/gridforge/wlmcore/xport"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func newTestJobDesc(jobID string) *jobspec.JobDesc {
	return jobspec.NewJobDesc(jobID)
}

var _ = Describe("aggregateRC", func() {
	It("returns SUCCESS when every entry succeeded", func() {
		entries := []wire.RetEntry{
			{ReturnCode: int32(cmn.SUCCESS)},
			{ReturnCode: int32(cmn.SUCCESS)},
		}
		Expect(aggregateRC(entries)).To(Equal(cmn.SUCCESS))
	})

	It("maps a non-terminal failure to the retriable transition code", func() {
		entries := []wire.RetEntry{
			{ReturnCode: int32(cmn.SUCCESS)},
			{ReturnCode: int32(cmn.TRANSITION_STATE_NO_UPDATE)},
		}
		Expect(aggregateRC(entries)).To(Equal(cmn.TRANSITION_STATE_NO_UPDATE))
	})

	It("lets a terminal code win outright", func() {
		entries := []wire.RetEntry{
			{ReturnCode: int32(cmn.SUCCESS)},
			{ReturnCode: int32(cmn.INVALID_JOB_ID)},
		}
		Expect(aggregateRC(entries)).To(Equal(cmn.INVALID_JOB_ID))
	})
})

var _ = Describe("server.targetsForBlock", func() {
	It("maps set bits to the corresponding node addresses, skipping unset bits and out-of-range ones", func() {
		bm := cos.NewBitSet(4)
		bm.Set(0)
		bm.Set(2)
		bm.Set(3)
		b := catalog.NewBlock("R00", bm, topo.Coord{1, 1, 1}, topo.Coord{}, 1, topo.TORUS, catalog.Images{})

		s := &server{nodeAddrs: []wire.Addr{
			{IP: [4]byte{10, 0, 0, 1}, Port: 1},
			{IP: [4]byte{10, 0, 0, 2}, Port: 2},
			{IP: [4]byte{10, 0, 0, 3}, Port: 3},
		}}
		targets := s.targetsForBlock(b)
		Expect(targets).To(Equal([]wire.Addr{
			{IP: [4]byte{10, 0, 0, 1}, Port: 1},
			{IP: [4]byte{10, 0, 0, 3}, Port: 3},
		}))
	})
})

// fakeNode accepts connections until closed and replies with rc on every request,
// mirroring ctrlclient_test.go's fakeController helper.
func fakeNode(addr wire.Addr, rc cmn.RC) *xport.Listener {
	ln, err := xport.ListenOn(addr)
	Expect(err).NotTo(HaveOccurred())
	go func() {
		p := auth.NoneProvider{}
		for {
			conn, _, err := ln.Accept()
			if err != nil {
				return
			}
			lenBuf, err := conn.ReadExact(4, 2000)
			if err != nil {
				conn.Shutdown()
				continue
			}
			frameLen := binary.BigEndian.Uint32(lenBuf)
			rest, err := conn.ReadExact(int(frameLen), 2000)
			if err != nil {
				conn.Shutdown()
				continue
			}
			if _, _, _, err := wire.UnpackFrame(append(lenBuf, rest...)); err != nil {
				conn.Shutdown()
				continue
			}
			cred, _ := p.Create("")
			packedCred, _ := p.Pack(cred)
			body := make([]byte, 4)
			binary.BigEndian.PutUint32(body, uint32(rc))
			h := &wire.Header{Version: wire.ProtocolVersion}
			_ = conn.WriteAll(wire.PackFrame(h, packedCred, body), 2000)
			conn.Shutdown()
		}
	}()
	return ln
}

var _ = Describe("server.handleNodeOp", func() {
	var (
		cat *catalog.Catalogue
		db  *store.Store
		srv *server
	)

	BeforeEach(func() {
		var err error
		cat = catalog.New()
		db, err = store.Open(":memory:")
		Expect(err).NotTo(HaveOccurred())
		provider := auth.Provider(auth.NoneProvider{})
		srv = &server{cat: cat, store: db, auth: provider, rpc: ctrlclient.New(ctrlclient.Endpoints{}, provider)}
	})

	It("returns INVALID_JOB_ID for a job unknown to both the catalogue and the store", func() {
		rc, _ := srv.handleNodeOp(wire.KindCancel, []byte("nosuchjob"))
		Expect(rc).To(Equal(cmn.INVALID_JOB_ID))
	})

	It("returns JOB_PENDING for a job with no owning block but a persisted record", func() {
		Expect(db.SaveJob(newTestJobDesc("job1"))).To(Succeed())
		rc, _ := srv.handleNodeOp(wire.KindCancel, []byte("job1"))
		Expect(rc).To(Equal(cmn.JOB_PENDING))
	})

	It("cancels a placed job by fanning out to its nodes and frees the block on success", func() {
		bm := cos.NewBitSet(1)
		bm.Set(0)
		b := catalog.NewBlock("R01", bm, topo.Coord{1, 1, 1}, topo.Coord{}, 1, topo.TORUS, catalog.Images{})
		b.OwnerJob = "job2"
		b.State = catalog.READY
		cat.Lock()
		cat.Add(b)
		cat.Unlock()

		addr := wire.Addr{IP: [4]byte{127, 0, 0, 1}}
		ln := fakeNode(addr, cmn.SUCCESS)
		defer ln.Close()
		srv.nodeAddrs = []wire.Addr{ln.Addr()}

		rc, _ := srv.handleNodeOp(wire.KindCancel, []byte("job2"))
		Expect(rc).To(Equal(cmn.SUCCESS))

		cat.Lock()
		defer cat.Unlock()
		got, ok := cat.Get("R01")
		Expect(ok).To(BeTrue())
		Expect(got.State).To(Equal(catalog.FREE))
		Expect(got.OwnerJob).To(Equal(catalog.NoOwner))
	})

	It("reports the retriable transition code when a node is unreachable", func() {
		bm := cos.NewBitSet(1)
		bm.Set(0)
		b := catalog.NewBlock("R02", bm, topo.Coord{1, 1, 1}, topo.Coord{}, 1, topo.TORUS, catalog.Images{})
		b.OwnerJob = "job3"
		cat.Lock()
		cat.Add(b)
		cat.Unlock()

		srv.nodeAddrs = []wire.Addr{{IP: [4]byte{127, 0, 0, 1}, Port: 1}} // nothing listening
		rc, _ := srv.handleNodeOp(wire.KindCancel, []byte("job3"))
		Expect(rc).To(Equal(cmn.TRANSITION_STATE_NO_UPDATE))

		cat.Lock()
		defer cat.Unlock()
		got, _ := cat.Get("R02")
		Expect(got.OwnerJob).To(Equal("job3")) // unchanged: not freed on failure
	})

	It("does not free the block on a successful signal", func() {
		bm := cos.NewBitSet(1)
		bm.Set(0)
		b := catalog.NewBlock("R03", bm, topo.Coord{1, 1, 1}, topo.Coord{}, 1, topo.TORUS, catalog.Images{})
		b.OwnerJob = "job4"
		cat.Lock()
		cat.Add(b)
		cat.Unlock()

		addr := wire.Addr{IP: [4]byte{127, 0, 0, 1}}
		ln := fakeNode(addr, cmn.SUCCESS)
		defer ln.Close()
		srv.nodeAddrs = []wire.Addr{ln.Addr()}

		rc, _ := srv.handleNodeOp(wire.KindSignal, []byte("job4\x00TERM"))
		Expect(rc).To(Equal(cmn.SUCCESS))

		cat.Lock()
		defer cat.Unlock()
		got, _ := cat.Get("R03")
		Expect(got.OwnerJob).To(Equal("job4"))
	})
})
