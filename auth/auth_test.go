/*
 * Copyright (c) 2023, NVIDIA CORPORATION. All rights reserved.
 */
package auth_test

import (
	"time"

	"github.com/gridforge/wlmcore/auth"
	"github.com/gridforge/wlmcore/cmn"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("NoneProvider", func() {
	It("always verifies a round-tripped credential", func() {
		p := auth.NoneProvider{}
		c, err := p.Create("alice")
		Expect(err).NotTo(HaveOccurred())

		packed, err := p.Pack(c)
		Expect(err).NotTo(HaveOccurred())

		got, err := p.Unpack(packed)
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Verify(got, "alice")).To(Succeed())

		p.Destroy(got)
		Expect(p.Errstr(got)).NotTo(BeEmpty())
		Expect(p.Verify(got, "alice")).To(HaveOccurred())
	})
})

var _ = Describe("HMACProvider", func() {
	It("verifies a signed credential and rejects a tampered one", func() {
		p := &auth.HMACProvider{Key: []byte("shared-secret")}
		c, err := p.Create("bob")
		Expect(err).NotTo(HaveOccurred())

		packed, err := p.Pack(c)
		Expect(err).NotTo(HaveOccurred())

		got, err := p.Unpack(packed)
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Verify(got, "bob")).To(Succeed())

		packed[len(packed)-1] ^= 0xFF
		tampered, err := p.Unpack(packed)
		Expect(err).NotTo(HaveOccurred())
		err = p.Verify(tampered, "")
		Expect(err).To(HaveOccurred())
		Expect(cmn.ToRC(err)).To(Equal(cmn.AUTH_INVALID))
	})

	It("rejects an expired credential", func() {
		p := &auth.HMACProvider{Key: []byte("k"), MaxAge: time.Millisecond}
		c, _ := p.Create("carol")
		time.Sleep(5 * time.Millisecond)
		Expect(p.Verify(c, "")).To(HaveOccurred())
	})

	It("rejects a uid mismatch", func() {
		p := &auth.HMACProvider{Key: []byte("k")}
		c, _ := p.Create("dave")
		Expect(p.Verify(c, "eve")).To(HaveOccurred())
	})
})
