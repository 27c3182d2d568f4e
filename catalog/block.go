// Package catalog holds the live block catalogue: the ordered set of
// blocks with their state, job occupancy, images, and the overlap graph
// over their bitmaps (spec.md §3, §4.G).
//
// Design note: the C original links blocks into multiple intrusive lists
// (all-blocks, booted, job-bearing) via raw pointers, which is exactly the
// "cyclic catalogue <-> block references" case called out in spec.md §9.
// Here the catalogue owns an arena (a slice of *Block, with blocks looked
// up by ID) and the derived views are computed by filtering
// that arena rather than walking parallel pointer-linked lists.
/*
 * Copyright (c) 2023, NVIDIA CORPORATION. All rights reserved.
 */
package catalog

import (
	"github.com/gridforge/wlmcore/cmn/cos"
	"github.com/gridforge/wlmcore/topo"
)

type State int

const (
	FREE State = iota
	CONFIGURING
	BOOTING
	READY
	TERM
	ERROR
)

func (s State) String() string {
	switch s {
	case FREE:
		return "FREE"
	case CONFIGURING:
		return "CONFIGURING"
	case BOOTING:
		return "BOOTING"
	case READY:
		return "READY"
	case TERM:
		return "TERM"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Owner sentinels for Block.OwnerJob (spec.md §3: "NONE, a real job id, or
// ERROR_SENTINEL").
const (
	NoOwner       = ""
	ErrorSentinel = "\x00error-sentinel\x00"
)

// Images names the four image slots a block (and a job request) carries.
type Images struct {
	Blrts, Linux, Mloader, Ramdisk string
}

// Handle is an integer block identity type. Catalogue does not use it:
// blocks are looked up by ID, and a block's arena position changes when
// Remove moves the last block into a freed slot.
type Handle int

// Block is a reserved, bounded region of the machine (spec.md §3).
type Block struct {
	ID          string
	OwnerJob    string
	State       State
	Bitmap      *cos.BitSet
	Geometry    topo.Coord
	Start       topo.Coord
	BPCount     int
	IONodes     string
	CPUsPerBP   int
	ConnType    topo.ConnType
	Images      Images
	pendingFree int // free_list() bookkeeping; Remove requires this == 0
}

// Procs returns the block's total processor count (bp_count * cpus_per_bp,
// the invariant checked by spec.md §3 and the placement matching loop).
func (b *Block) Procs() int { return b.BPCount * b.CPUsPerBP }

// HasLiveJob reports whether a real job currently owns the block.
func (b *Block) HasLiveJob() bool {
	return b.OwnerJob != NoOwner && b.OwnerJob != ErrorSentinel
}

// NewBlock constructs a block whose bp_count/cpus_per_bp honor the
// regular-block invariant bp_count*cpus_per_bp == popcount(bitmap)*cpus_per_node.
func NewBlock(id string, bitmap *cos.BitSet, geom topo.Coord, start topo.Coord, cpusPerNode int, ct topo.ConnType, imgs Images) *Block {
	bp := bitmap.Popcount()
	return &Block{
		ID:        id,
		OwnerJob:  NoOwner,
		State:     FREE,
		Bitmap:    bitmap,
		Geometry:  geom,
		Start:     start,
		BPCount:   bp,
		CPUsPerBP: cpusPerNode,
		ConnType:  ct,
		Images:    imgs,
	}
}
