/*
 * Copyright (c) 2023, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"strconv"
	"strings"

	"github.com/gridforge/wlmcore/cmn"
	"github.com/gridforge/wlmcore/cmn/cos"
	"github.com/gridforge/wlmcore/jobspec"
	"github.com/gridforge/wlmcore/placement"
	"github.com/gridforge/wlmcore/topo"
)

// decodePlaceRequest parses a KindPlace body into a placement.JobRequest.
// The body is a NUL-joined list of "field=value" pairs (wlmctl's
// encodePlaceRequest produces it); field parsing reuses jobspec's
// field-level parsers (spec.md §6) wherever the grammar matches, rather
// than hand-rolling a second copy of the same validation.
func decodePlaceRequest(body []byte, universe int) (*placement.JobRequest, error) {
	req := &placement.JobRequest{ConnType: topo.NAV}
	for _, kv := range strings.Split(string(body), "\x00") {
		if kv == "" {
			continue
		}
		field, value, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, cmn.NewErr(cmn.ERROR, "wlmd: malformed place field %q", kv)
		}
		if err := applyPlaceField(req, field, value, universe); err != nil {
			return nil, err
		}
	}
	return req, nil
}

func applyPlaceField(req *placement.JobRequest, field, value string, universe int) error {
	switch field {
	case "job_id":
		req.JobID = value
	case "user_id":
		req.UserID = value
	case "group_id":
		req.GroupID = value
	case "partition":
		req.PartitionName = value
	case "procs_min":
		v, err := jobspec.ParseQuantity(field, value)
		if err != nil {
			return err
		}
		req.ProcsMin = int(v)
	case "procs_max":
		v, err := jobspec.ParseQuantity(field, value)
		if err != nil {
			return err
		}
		req.ProcsMax = int(v)
	case "nodes_min":
		v, err := jobspec.ParseQuantity(field, value)
		if err != nil {
			return err
		}
		req.NodesMin = int(v)
	case "nodes_max":
		v, err := jobspec.ParseQuantity(field, value)
		if err != nil {
			return err
		}
		req.NodesMax = int(v)
	case "nodes_req":
		v, err := jobspec.ParseQuantity(field, value)
		if err != nil {
			return err
		}
		req.NodesReq = int(v)
	case "geometry":
		g, err := jobspec.ParseGeometry(value)
		if err != nil {
			return err
		}
		req.Geometry = g
		req.HasGeometry = true
	case "rotate":
		v, err := jobspec.ParseYesNo(field, value)
		if err != nil {
			return err
		}
		req.Rotate = v
	case "connection_type":
		ct, err := jobspec.ParseConnType(value)
		if err != nil {
			return err
		}
		req.ConnType = ct
	case "image_blrts":
		req.Images.Blrts = value
	case "image_linux":
		req.Images.Linux = value
	case "image_mloader":
		req.Images.Mloader = value
	case "image_ramdisk":
		req.Images.Ramdisk = value
	case "required_nodes":
		names, err := jobspec.ParseNodeList(field, value)
		if err != nil {
			return err
		}
		bm, err := parseRequiredNodeBitmap(names, universe)
		if err != nil {
			return err
		}
		req.RequiredNodeBitmap = bm
	case "test_only":
		v, err := jobspec.ParseYesNo(field, value)
		if err != nil {
			return err
		}
		req.TestOnly = v
	default:
		return cmn.NewErr(cmn.ERROR, "wlmd: unknown place field %q", field)
	}
	return nil
}

// parseRequiredNodeBitmap maps "<prefix><index>" node names (spec.md §6's
// bp-prefixed node naming) onto a bitmap over the machine's node universe.
func parseRequiredNodeBitmap(names []string, universe int) (*cos.BitSet, error) {
	prefix := cmn.GCO.Get().Placement.NodePrefix
	bm := cos.NewBitSet(universe)
	for _, n := range names {
		idx, err := strconv.Atoi(strings.TrimPrefix(n, prefix))
		if err != nil || idx < 0 || idx >= universe {
			return nil, cmn.NewErr(cmn.ERROR, "wlmd: invalid required node name %q", n)
		}
		bm.Set(idx)
	}
	return bm, nil
}
