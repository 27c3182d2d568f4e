/*
 * Copyright (c) 2023, NVIDIA CORPORATION. All rights reserved.
 */
package xport_test

import (
	"github.com/gridforge/wlmcore/cmn"
	"github.com/gridforge/wlmcore/wire"
	"github.com/gridforge/wlmcore/xport"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var loopback = wire.Addr{IP: [4]byte{127, 0, 0, 1}}

var _ = Describe("xport", func() {
	It("connects, writes, and reads exact bytes over a loopback socket", func() {
		ln, err := xport.ListenOn(loopback)
		Expect(err).NotTo(HaveOccurred())
		defer ln.Close()

		serverDone := make(chan error, 1)
		go func() {
			conn, _, err := ln.Accept()
			if err != nil {
				serverDone <- err
				return
			}
			defer conn.Shutdown()
			buf, err := conn.ReadExact(5, 1000)
			if err != nil {
				serverDone <- err
				return
			}
			serverDone <- conn.WriteAll(buf, 1000)
		}()

		client, err := xport.Connect(ln.Addr(), 1000)
		Expect(err).NotTo(HaveOccurred())
		defer client.Shutdown()

		Expect(client.WriteAll([]byte("hello"), 1000)).To(Succeed())
		got, err := client.ReadExact(5, 1000)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(got)).To(Equal("hello"))
		Expect(<-serverDone).To(Succeed())
	})

	It("times out read_exact with RECV_TIMEOUT when the peer sends nothing", func() {
		ln, err := xport.ListenOn(loopback)
		Expect(err).NotTo(HaveOccurred())
		defer ln.Close()

		go func() {
			conn, _, err := ln.Accept()
			if err == nil {
				defer conn.Shutdown()
				_, _ = conn.ReadExact(1, 2000)
			}
		}()

		client, err := xport.Connect(ln.Addr(), 1000)
		Expect(err).NotTo(HaveOccurred())
		defer client.Shutdown()

		_, err = client.ReadExact(10, 50)
		Expect(err).To(HaveOccurred())
		Expect(cmn.ToRC(err)).To(Equal(cmn.RECV_TIMEOUT))
	})
})
