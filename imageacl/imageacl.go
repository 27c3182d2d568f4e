// Package imageacl implements the image-name + user-group admission check
// (spec.md §4.H): a job may only reference a boot image whose allowed
// group list includes one of the requester's groups, unless the image is
// marked default or carries no group restriction at all.
/*
 * Copyright (c) 2023, NVIDIA CORPORATION. All rights reserved.
 */
package imageacl

import (
	"os/user"
	"strconv"
	"sync"

	"github.com/gridforge/wlmcore/cmn"
	"github.com/gridforge/wlmcore/cmn/nlog"
)

const MaxGroups = 128

// Image is one entry in a job's configured image list (spec.md §3:
// "Image entry"). Name supports the wildcard "*"; an entry with no groups
// grants everyone.
type Image struct {
	Name    string
	Default bool
	Groups  []string // allowed_group_ids, as resolved group names/IDs
}

// GroupResolver abstracts the OS group-resolution interface spec.md §4.H
// calls for: "compute the requester's group set from (user_id,
// primary_group_id) via the OS group-resolution interface". The default
// implementation (New) backs this with os/user; tests substitute a fake.
type GroupResolver interface {
	GroupsFor(userID, primaryGroupID string) ([]string, error)
}

type osResolver struct{}

func (osResolver) GroupsFor(userID, _ string) ([]string, error) {
	u, err := user.LookupId(userID)
	if err != nil {
		// fall back to treating userID as a username, matching callers
		// that pass job_request.user_id as a name rather than a numeric uid
		if u, err = user.Lookup(userID); err != nil {
			return nil, err
		}
	}
	gids, err := u.GroupIds()
	if err != nil {
		return nil, err
	}
	if len(gids) > MaxGroups {
		gids = gids[:MaxGroups]
	}
	return gids, nil
}

// Checker performs the admission check and caches the last requester's
// resolved group set (spec.md §4.H: "cache the last requester").
type Checker struct {
	resolver GroupResolver

	mu         sync.Mutex
	lastUser   string
	lastGID    string
	lastGroups map[string]struct{}
}

func New(r GroupResolver) *Checker {
	if r == nil {
		r = osResolver{}
	}
	return &Checker{resolver: r}
}

// Denied describes a failed admission check (spec.md §4.H: "Deny produces
// a diagnostic naming the image and the requester").
type Denied struct {
	Image, UserID string
}

func (d *Denied) Error() string {
	return "image " + d.Image + " not permitted for user " + d.UserID
}
func (d *Denied) RC() cmn.RC { return cmn.NO_FIT }

// Check implements spec.md §4.H's algorithm exactly:
//  1. iterate images; consider entries whose name equals the requested
//     name or is "*".
//  2. if the entry is default, or carries no groups, allow.
//  3. otherwise resolve the requester's groups (cached per requester,
//     capped at MaxGroups) and allow if any entry group is in that set.
//  4. if no entry allows, deny.
func (c *Checker) Check(jobUserID, jobPrimaryGID, imageName string, images []Image) error {
	var groups map[string]struct{}
	for _, img := range images {
		if img.Name != imageName && img.Name != "*" {
			continue
		}
		if img.Default || len(img.Groups) == 0 {
			return nil
		}
		if groups == nil {
			var err error
			groups, err = c.groupsFor(jobUserID, jobPrimaryGID)
			if err != nil {
				nlog.Warningf("imageacl: group resolution failed for %s: %v", jobUserID, err)
				groups = map[string]struct{}{}
			}
		}
		for _, g := range img.Groups {
			if _, ok := groups[g]; ok {
				return nil
			}
		}
	}
	nlog.Infof("imageacl: denied image %q for user %s", imageName, jobUserID)
	return &Denied{Image: imageName, UserID: jobUserID}
}

func (c *Checker) groupsFor(userID, primaryGID string) (map[string]struct{}, error) {
	c.mu.Lock()
	if c.lastUser == userID && c.lastGID == primaryGID && c.lastGroups != nil {
		g := c.lastGroups
		c.mu.Unlock()
		return g, nil
	}
	c.mu.Unlock()

	gids, err := c.resolver.GroupsFor(userID, primaryGID)
	if err != nil {
		return nil, err
	}
	if len(gids) > MaxGroups {
		gids = gids[:MaxGroups]
	}
	set := make(map[string]struct{}, len(gids)+1)
	for _, g := range gids {
		set[g] = struct{}{}
	}
	if primaryGID != "" {
		set[primaryGID] = struct{}{}
	}

	c.mu.Lock()
	c.lastUser, c.lastGID, c.lastGroups = userID, primaryGID, set
	c.mu.Unlock()
	return set, nil
}

// ParseGroupID is a small helper for callers that carry group IDs as
// numeric strings (the common case for job_request.group_id).
func ParseGroupID(s string) (int, error) { return strconv.Atoi(s) }
