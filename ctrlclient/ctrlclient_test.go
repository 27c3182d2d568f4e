/*
 * Copyright (c) 2023, NVIDIA CORPORATION. All rights reserved.
 */
package ctrlclient_test

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/gridforge/wlmcore/auth"
	"github.com/gridforge/wlmcore/cmn"
	"github.com/gridforge/wlmcore/ctrlclient"
	"github.com/gridforge/wlmcore/wire"
	"github.com/gridforge/wlmcore/xport"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

// fakeController replies with a sequence of RCs, one per accepted
// connection, each encoded as a 4-byte big-endian body.
func fakeController(addr wire.Addr, replies []cmn.RC) (*xport.Listener, <-chan struct{}) {
	ln, err := xport.ListenOn(addr)
	Expect(err).NotTo(HaveOccurred())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p := auth.NoneProvider{}
		for _, rc := range replies {
			conn, _, err := ln.Accept()
			if err != nil {
				return
			}
			lenBuf, err := conn.ReadExact(4, 2000)
			if err != nil {
				conn.Shutdown()
				return
			}
			frameLen := binary.BigEndian.Uint32(lenBuf)
			rest, err := conn.ReadExact(int(frameLen), 2000)
			if err != nil {
				conn.Shutdown()
				return
			}
			_, _, _, err = wire.UnpackFrame(append(lenBuf, rest...))
			if err != nil {
				conn.Shutdown()
				return
			}
			cred, _ := p.Create("")
			packedCred, _ := p.Pack(cred)
			body := make([]byte, 4)
			binary.BigEndian.PutUint32(body, uint32(rc))
			h := &wire.Header{Version: wire.ProtocolVersion}
			frame := wire.PackFrame(h, packedCred, body)
			_ = conn.WriteAll(frame, 2000)
			conn.Shutdown()
		}
	}()
	return ln, done
}

func extractRC(body []byte) cmn.RC {
	if len(body) < 4 {
		return cmn.ERROR
	}
	return cmn.RC(binary.BigEndian.Uint32(body))
}

var _ = Describe("Client.SendRecvController", func() {
	It("returns success immediately when the controller is not in standby", func() {
		addr := wire.Addr{IP: [4]byte{127, 0, 0, 1}}
		ln, done := fakeController(addr, []cmn.RC{cmn.SUCCESS})
		defer ln.Close()

		c := ctrlclient.New(ctrlclient.Endpoints{Primary: ln.Addr()}, auth.NoneProvider{})
		resp, err := c.SendRecvController(context.Background(), 1, []byte("body"), extractRC)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.RC).To(Equal(cmn.SUCCESS))
		<-done
	})

	It("retries transparently through standby mode until success, per the literal scenario", func() {
		addr := wire.Addr{IP: [4]byte{127, 0, 0, 1}}
		ln, done := fakeController(addr, []cmn.RC{cmn.IN_STANDBY_MODE, cmn.SUCCESS})
		defer ln.Close()

		var slept time.Duration
		c := ctrlclient.New(ctrlclient.Endpoints{Primary: ln.Addr(), Secondary: wire.Addr{IP: [4]byte{127, 0, 0, 1}, Port: 1}}, auth.NoneProvider{})
		c.Sleep = func(d time.Duration) { slept += d }

		resp, err := c.SendRecvController(context.Background(), 1, []byte("body"), extractRC)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.RC).To(Equal(cmn.SUCCESS))
		Expect(slept).To(Equal(30 * time.Second))
		<-done
	})
})

// fakeReader accepts one connection, reads the request frame, and records
// it on the given channel without ever writing a reply — standing in for
// a peer that a send-only caller must not block waiting on.
func fakeReader(addr wire.Addr, got chan<- []byte) *xport.Listener {
	ln, err := xport.ListenOn(addr)
	Expect(err).NotTo(HaveOccurred())
	go func() {
		conn, _, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Shutdown()
		lenBuf, err := conn.ReadExact(4, 2000)
		if err != nil {
			return
		}
		frameLen := binary.BigEndian.Uint32(lenBuf)
		rest, err := conn.ReadExact(int(frameLen), 2000)
		if err != nil {
			return
		}
		_, _, body, err := wire.UnpackFrame(append(lenBuf, rest...))
		if err != nil {
			return
		}
		got <- body
	}()
	return ln
}

var _ = Describe("Client.SendOnlyController and Client.SendOnlyNode", func() {
	It("SendOnlyNode returns as soon as the write completes, without waiting for any reply", func() {
		addr := wire.Addr{IP: [4]byte{127, 0, 0, 1}}
		got := make(chan []byte, 1)
		ln := fakeReader(addr, got)
		defer ln.Close()

		c := ctrlclient.New(ctrlclient.Endpoints{}, auth.NoneProvider{})
		done := make(chan error, 1)
		go func() { done <- c.SendOnlyNode(context.Background(), ln.Addr(), wire.KindSignal, []byte("sig-body")) }()

		select {
		case err := <-done:
			Expect(err).NotTo(HaveOccurred())
		case <-time.After(2 * time.Second):
			Fail("SendOnlyNode blocked waiting for a reply the peer never sends")
		}
		Eventually(got, 2*time.Second).Should(Receive(Equal([]byte("sig-body"))))
	})

	It("SendOnlyController sends to the primary endpoint and returns without a reply", func() {
		addr := wire.Addr{IP: [4]byte{127, 0, 0, 1}}
		got := make(chan []byte, 1)
		ln := fakeReader(addr, got)
		defer ln.Close()

		c := ctrlclient.New(ctrlclient.Endpoints{Primary: ln.Addr()}, auth.NoneProvider{})
		done := make(chan error, 1)
		go func() { done <- c.SendOnlyController(context.Background(), wire.KindSignal, []byte("ctl-body")) }()

		select {
		case err := <-done:
			Expect(err).NotTo(HaveOccurred())
		case <-time.After(2 * time.Second):
			Fail("SendOnlyController blocked waiting for a reply the peer never sends")
		}
		Eventually(got, 2*time.Second).Should(Receive(Equal([]byte("ctl-body"))))
	})
})

var _ = Describe("Client.SendRecvNode", func() {
	It("performs a full round trip against an arbitrary node address", func() {
		addr := wire.Addr{IP: [4]byte{127, 0, 0, 1}}
		ln, done := fakeController(addr, []cmn.RC{cmn.SUCCESS})
		defer ln.Close()

		c := ctrlclient.New(ctrlclient.Endpoints{}, auth.NoneProvider{})
		resp, err := c.SendRecvNode(context.Background(), ln.Addr(), wire.KindCancel, []byte("body"), 2000, extractRC)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.RC).To(Equal(cmn.SUCCESS))
		<-done
	})
})

var _ = Describe("WithCancelRetry", func() {
	It("retries on a retriable RC and stops on success, per the literal scenario", func() {
		calls := 0
		var totalSleep time.Duration
		op := func() error {
			calls++
			if calls <= 2 {
				return cmn.NewErr(cmn.TRANSITION_STATE_NO_UPDATE, "not yet")
			}
			return nil
		}
		err := ctrlclient.WithCancelRetry(
			ctrlclient.CancelRetryPolicy(5),
			func(d time.Duration) { totalSleep += d },
			op,
		)
		Expect(err).NotTo(HaveOccurred())
		Expect(calls).To(Equal(3))
		Expect(totalSleep).To(Equal(11 * time.Second)) // 5s + 6s
	})

	It("stops immediately on a terminal RC", func() {
		calls := 0
		op := func() error {
			calls++
			return cmn.NewErr(cmn.INVALID_JOB_ID, "no such job")
		}
		err := ctrlclient.WithCancelRetry(ctrlclient.CancelRetryPolicy(5), func(time.Duration) {}, op)
		Expect(err).To(HaveOccurred())
		Expect(calls).To(Equal(1))
	})
})
