/*
 * Copyright (c) 2023, NVIDIA CORPORATION. All rights reserved.
 */
package imageacl_test

import (
	"errors"

	"github.com/gridforge/wlmcore/imageacl"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

type fakeResolver struct {
	groups map[string][]string
	calls  int
	err    error
}

func (f *fakeResolver) GroupsFor(userID, _ string) ([]string, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.groups[userID], nil
}

var _ = Describe("Checker", func() {
	It("allows a default image regardless of groups", func() {
		c := imageacl.New(&fakeResolver{})
		err := c.Check("alice", "100", "rhel8", []imageacl.Image{
			{Name: "rhel8", Default: true, Groups: []string{"nobody-allowed"}},
		})
		Expect(err).NotTo(HaveOccurred())
	})

	It("allows an image with no group restriction", func() {
		c := imageacl.New(&fakeResolver{})
		err := c.Check("alice", "100", "rhel8", []imageacl.Image{
			{Name: "rhel8"},
		})
		Expect(err).NotTo(HaveOccurred())
	})

	It("matches the wildcard image name", func() {
		r := &fakeResolver{groups: map[string][]string{"alice": {"eng"}}}
		c := imageacl.New(r)
		err := c.Check("alice", "100", "anything", []imageacl.Image{
			{Name: "*", Groups: []string{"eng"}},
		})
		Expect(err).NotTo(HaveOccurred())
	})

	It("allows when the requester's group matches an allowed group", func() {
		r := &fakeResolver{groups: map[string][]string{"alice": {"eng", "ops"}}}
		c := imageacl.New(r)
		err := c.Check("alice", "100", "rhel8", []imageacl.Image{
			{Name: "rhel8", Groups: []string{"ops"}},
		})
		Expect(err).NotTo(HaveOccurred())
	})

	It("denies with a diagnostic naming the image and requester", func() {
		r := &fakeResolver{groups: map[string][]string{"alice": {"eng"}}}
		c := imageacl.New(r)
		err := c.Check("alice", "100", "rhel8", []imageacl.Image{
			{Name: "rhel8", Groups: []string{"ops"}},
		})
		Expect(err).To(HaveOccurred())
		var denied *imageacl.Denied
		Expect(errors.As(err, &denied)).To(BeTrue())
		Expect(denied.Image).To(Equal("rhel8"))
		Expect(denied.UserID).To(Equal("alice"))
	})

	It("denies when no image entry matches the requested name", func() {
		c := imageacl.New(&fakeResolver{})
		err := c.Check("alice", "100", "rhel8", []imageacl.Image{
			{Name: "ubuntu22", Groups: []string{"ops"}},
		})
		Expect(err).To(HaveOccurred())
	})

	It("caches the last requester's resolved groups", func() {
		r := &fakeResolver{groups: map[string][]string{"alice": {"ops"}}}
		c := imageacl.New(r)
		images := []imageacl.Image{{Name: "rhel8", Groups: []string{"ops"}}}

		Expect(c.Check("alice", "100", "rhel8", images)).To(Succeed())
		Expect(c.Check("alice", "100", "rhel8", images)).To(Succeed())
		Expect(r.calls).To(Equal(1), "second check for the same requester should hit the cache")
	})

	It("re-resolves groups when the requester changes", func() {
		r := &fakeResolver{groups: map[string][]string{
			"alice": {"ops"},
			"bob":   {"eng"},
		}}
		c := imageacl.New(r)
		images := []imageacl.Image{{Name: "rhel8", Groups: []string{"ops"}}}

		Expect(c.Check("alice", "100", "rhel8", images)).To(Succeed())
		Expect(c.Check("bob", "200", "rhel8", images)).To(HaveOccurred())
		Expect(r.calls).To(Equal(2))
	})
})
