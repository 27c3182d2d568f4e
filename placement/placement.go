// Package placement matches a pending job against the block catalogue, or
// falls through to dynamic block synthesis (spec.md §4.I). Engine.Place is
// modeled directly on original_source's
// bg_job_place.c:_find_best_block_match: the same pre-checks, geometry
// derivation, matching loop with its skip conditions, image-mismatch
// retry, overlap-layout retry, and three-view dynamic-creation fallback —
// restated as named early returns instead of the original's goto chains.
/*
 * Copyright (c) 2023, NVIDIA CORPORATION. All rights reserved.
 */
package placement

import (
	"sync"

	"github.com/gridforge/wlmcore/catalog"
	"github.com/gridforge/wlmcore/cmn"
	"github.com/gridforge/wlmcore/cmn/cos"
	"github.com/gridforge/wlmcore/cmn/debug"
	"github.com/gridforge/wlmcore/cmn/nlog"
	"github.com/gridforge/wlmcore/imageacl"
	"github.com/gridforge/wlmcore/topo"
)

// JobRequest is the placement input (spec.md §3 Job request).
type JobRequest struct {
	JobID, UserID, GroupID string

	ProcsMin, ProcsMax int
	NodesMin, NodesMax int
	NodesReq           int // Open Question resolution 1: requested, distinct from the selected block's actual BPCount

	Geometry    topo.Coord
	HasGeometry bool
	Rotate      bool
	StartCoord  topo.Coord
	HasStart    bool

	ConnType topo.ConnType
	Images   catalog.Images

	RequiredNodeBitmap *cos.BitSet
	PartitionName      string

	// TestOnly distinguishes "never runnable" from "not runnable now"
	// (spec.md §4.I "Failure").
	TestOnly bool
}

// Result is returned on a successful placement.
type Result struct {
	Block               *catalog.Block
	AvailabilityBitmap  *cos.BitSet // narrowed: availability_bitmap_in ∧ chosen.bitmap
	NodesActual         int         // chosen.BPCount
}

// Synthesizer creates a new block against a candidate view of the
// catalogue and an availability bitmap, or reports it cannot (spec.md
// §4.I "Dynamic creation"). Implementations own the actual topology
// search; placement only calls it at the right point in the algorithm.
type Synthesizer interface {
	Synthesize(view catalog.View, availability *cos.BitSet, req *JobRequest) (*catalog.Block, error)
}

// BlockStateValidator validates a candidate's base-partition states right
// before it's committed to (spec.md §4.I: "validate the block's base
// partition states — on failure mark the block ERROR ... restart the
// loop"). A nil validator always succeeds.
type BlockStateValidator interface {
	Validate(b *catalog.Block) error
}

// Engine ties the catalogue, image ACL, topology model, and an optional
// dynamic-creation backend together into the matching algorithm.
type Engine struct {
	Catalogue   *catalog.Catalogue
	ACL         *imageacl.Checker
	BlrtsACL    []imageacl.Image
	LinuxACL    []imageacl.Image
	MloaderACL  []imageacl.Image
	RamdiskACL  []imageacl.Image
	Synth       Synthesizer
	Validator   BlockStateValidator

	// dynMu is the dynamic-creation lock: serializes the full
	// synthesize-or-place pipeline so two placers cannot race on the same
	// free region (spec.md §5).
	dynMu sync.Mutex
}

const maxOverlapPasses = 2
const maxBlockErrorRestarts = 8

// Place implements spec.md §4.I.
func (e *Engine) Place(req *JobRequest, availability *cos.BitSet) (*Result, error) {
	if err := e.precheckNodesReq(req); err != nil {
		return nil, err
	}
	if !req.TestOnly {
		if err := e.precheckCPUBudget(req); err != nil {
			return nil, err
		}
	}
	if err := e.precheckImages(req, true); err != nil && !req.TestOnly {
		return nil, err
	}

	targetSize := e.deriveGeometry(req)

	e.dynMu.Lock()
	defer e.dynMu.Unlock()

	block, err := e.matchWithRetries(req, availability, targetSize)
	if err != nil {
		return nil, err
	}
	if block != nil {
		return e.finalizeSelection(block, req, availability), nil
	}

	if !cmn.GCO.Get().Placement.DynamicLayout || e.Synth == nil {
		return nil, cmn.NewErr(cmn.NO_FIT, "placement: no existing block fits job %s", req.JobID)
	}
	block, err = e.dynamicCreate(req, availability)
	if err != nil {
		return nil, err
	}
	if req.TestOnly {
		availability.And(block.Bitmap)
		return &Result{Block: block, AvailabilityBitmap: availability, NodesActual: block.BPCount}, nil
	}
	// restart the matching loop now that the new block is in the catalogue
	block, err = e.matchWithRetries(req, availability, targetSize)
	if err != nil {
		return nil, err
	}
	if block == nil {
		return nil, cmn.NewErr(cmn.NO_FIT, "placement: synthesized block did not survive re-match for job %s", req.JobID)
	}
	return e.finalizeSelection(block, req, availability), nil
}

func (e *Engine) precheckNodesReq(req *JobRequest) error {
	if req.NodesReq != 0 && req.NodesReq > req.NodesMax {
		return cmn.NewErr(cmn.NO_FIT, "placement: nodes_req %d exceeds nodes_max %d", req.NodesReq, req.NodesMax)
	}
	return nil
}

func (e *Engine) precheckCPUBudget(req *JobRequest) error {
	e.Catalogue.Lock()
	free := e.Catalogue.FreeCPUBudget()
	e.Catalogue.Unlock()
	if req.ProcsMin > free {
		return cmn.NewErr(cmn.NO_FIT, "placement: requested %d procs exceeds free budget %d", req.ProcsMin, free)
	}
	return nil
}

// precheckImages runs the image ACL (spec.md §4.H) over each declared
// image name against its type-specific list. A deny is a hard fail in
// non-test mode (spec.md §4.I pre-check 3).
func (e *Engine) precheckImages(req *JobRequest, announce bool) error {
	if e.ACL == nil {
		return nil
	}
	checks := []struct {
		name string
		list []imageacl.Image
	}{
		{req.Images.Blrts, e.BlrtsACL},
		{req.Images.Linux, e.LinuxACL},
		{req.Images.Mloader, e.MloaderACL},
		{req.Images.Ramdisk, e.RamdiskACL},
	}
	for _, c := range checks {
		if c.name == "" {
			continue
		}
		if err := e.ACL.Check(req.UserID, req.GroupID, c.name, c.list); err != nil {
			if announce {
				nlog.Infof("placement: image %q denied for job %s: %v", c.name, req.JobID, err)
			}
			return err
		}
	}
	return nil
}

// deriveGeometry implements spec.md §4.I's "Geometry derivation" and
// writes the derived geometry/start back into req when inferred from a
// required-node bitmap, per the original's behavior of persisting the
// parsed block's geometry into the job record.
func (e *Engine) deriveGeometry(req *JobRequest) int {
	switch {
	case req.HasGeometry:
		size := req.Geometry.Size()
		req.NodesMin = size
		return size
	case req.RequiredNodeBitmap != nil && !req.HasGeometry && !req.HasStart:
		if shape, start, ok := topo.BoundingBox(req.RequiredNodeBitmap); ok {
			req.Geometry = shape
			req.HasGeometry = true
			req.StartCoord = start
			req.HasStart = true
			size := shape.Size()
			req.NodesMin = size
			return size
		}
		return req.NodesMin
	default:
		return req.NodesMin
	}
}

type matchOutcome struct {
	block             *catalog.Block
	anyImageMismatch  bool
	blockWentBad      bool
}

// matchWithRetries runs the matching loop, then applies the image-mismatch
// retry and overlap-layout retry exactly as spec.md §4.I describes.
func (e *Engine) matchWithRetries(req *JobRequest, availability *cos.BitSet, targetSize int) (*catalog.Block, error) {
	checkImage := true
	overlapPasses := 0
	for restarts := 0; restarts < maxBlockErrorRestarts; restarts++ {
		outcome, err := e.matchOnce(req, availability, targetSize, checkImage)
		if err != nil {
			return nil, err
		}
		if outcome.block != nil {
			return outcome.block, nil
		}
		if outcome.blockWentBad {
			continue // the loop already marked the block ERROR; restart a fresh pass
		}
		if checkImage && outcome.anyImageMismatch {
			checkImage = false
			continue
		}
		overlapLayout := cmn.GCO.Get().Placement.OverlapLayout
		if overlapLayout && !req.TestOnly && overlapPasses < maxOverlapPasses-1 {
			overlapPasses++
			continue
		}
		return nil, nil
	}
	return nil, nil
}

// matchOnce is a single pass over the catalogue in order, applying every
// skip condition in spec.md §4.I's "Matching loop".
func (e *Engine) matchOnce(req *JobRequest, availability *cos.BitSet, targetSize int, checkImage bool) (matchOutcome, error) {
	e.Catalogue.Lock()
	defer e.Catalogue.Unlock()

	overlapLayout := cmn.GCO.Get().Placement.OverlapLayout
	dynamicLayout := cmn.GCO.Get().Placement.DynamicLayout

	var out matchOutcome
	var candidate *catalog.Block

	e.Catalogue.Iterate(catalog.ViewAll, func(b *catalog.Block) bool {
		if b.State == catalog.ERROR {
			return true
		}
		if b.HasLiveJob() && !req.TestOnly {
			return true
		}
		procs := b.Procs()
		if procs < req.ProcsMin || procs > req.ProcsMax {
			return true
		}
		if b.BPCount < req.NodesMin {
			return true
		}
		if req.NodesReq != 0 && b.BPCount > req.NodesReq {
			return true
		}
		if b.BPCount < targetSize {
			return true
		}
		if !b.Bitmap.SubsetOf(availability) {
			return true
		}
		if req.RequiredNodeBitmap != nil && !b.Bitmap.Contains(req.RequiredNodeBitmap) {
			return true
		}
		if e.overlapSkip(b, req, overlapLayout, dynamicLayout) {
			return true
		}
		if checkImage && imagesDiffer(req.Images, b.Images) {
			out.anyImageMismatch = true
			return true
		}
		if req.ConnType != b.ConnType && req.ConnType != topo.NAV {
			return true
		}
		if req.HasGeometry {
			fits, _ := topo.FitsRotated(req.Geometry, b.Geometry, req.Rotate)
			if !fits {
				return true
			}
		}
		candidate = b
		return false
	})

	if candidate == nil {
		return out, nil
	}
	if !req.TestOnly && e.Validator != nil {
		if err := e.Validator.Validate(candidate); err != nil {
			e.Catalogue.MarkError(candidate)
			nlog.Warningf("placement: block %s failed state validation, marked ERROR: %v", candidate.ID, err)
			out.blockWentBad = true
			return out, nil
		}
	}
	out.block = candidate
	return out, nil
}

// overlapSkip implements the overlap bullet of the matching loop: occupied
// overlap is disqualifying only outside test_only — original_source's
// _find_best_block_match (bg_job_place.c:491-536) guards the entire
// occupied-overlap branch with `!test_only`, so a feasibility probe runs
// the loop to exhaustion without skipping or free_list-ing anything; in
// overlap-layout mode a readiness mismatch is disqualifying too (also only
// outside test_only); in dynamic layout mode a candidate that overlaps an
// occupied block is itself free_list-ed, again only outside test_only since a probe
// must never mutate the catalogue.
func (e *Engine) overlapSkip(b *catalog.Block, req *JobRequest, overlapLayout, dynamicLayout bool) bool {
	if req.TestOnly {
		return false
	}
	overlapping := e.Catalogue.Overlapping(b)
	skip := false
	for _, other := range overlapping {
		if other.HasLiveJob() {
			skip = true
			if dynamicLayout {
				e.Catalogue.FreeList([]*catalog.Block{b})
			}
			continue
		}
		if overlapLayout && (other.State == catalog.READY) != (b.State == catalog.READY) {
			skip = true
		}
	}
	return skip
}

func imagesDiffer(req, block catalog.Images) bool {
	return differs(req.Blrts, block.Blrts) ||
		differs(req.Linux, block.Linux) ||
		differs(req.Mloader, block.Mloader) ||
		differs(req.Ramdisk, block.Ramdisk)
}

func differs(reqName, blockName string) bool {
	return reqName != "" && reqName != blockName
}

// dynamicCreate tries synthesis against up to three views in order —
// all_blocks, booted_blocks, job_bearing_blocks — returning the first view
// that yields a block (spec.md §4.I "Dynamic creation"). test_only skips
// straight to a synthesis against the whole availability bitmap.
func (e *Engine) dynamicCreate(req *JobRequest, availability *cos.BitSet) (*catalog.Block, error) {
	if req.TestOnly {
		return e.Synth.Synthesize(catalog.ViewAll, availability, req)
	}
	views := []catalog.View{catalog.ViewAll, catalog.ViewBooted, catalog.ViewJobBearing}
	var lastErr error
	for _, v := range views {
		b, err := e.Synth.Synthesize(v, availability, req)
		if err == nil {
			e.Catalogue.Lock()
			e.Catalogue.Add(b)
			e.Catalogue.Unlock()
			return b, nil
		}
		lastErr = err
	}
	return nil, cmn.NewErr(cmn.NO_FIT, "placement: dynamic creation failed for job %s: %v", req.JobID, lastErr)
}

// finalizeSelection applies spec.md §4.I's "Selection side effects".
func (e *Engine) finalizeSelection(b *catalog.Block, req *JobRequest, availability *cos.BitSet) *Result {
	debug.Assert(b.Bitmap.SubsetOf(availability))
	availability.And(b.Bitmap)
	return &Result{Block: b, AvailabilityBitmap: availability, NodesActual: b.BPCount}
}
