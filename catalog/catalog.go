// Package catalog - the shared, process-wide block catalogue (spec.md
// §4.G, §5). Grounded on the lock-guarded registry shape of the teacher's
// xact/xreg.Registry (a mutex-protected slice, iterated and mutated under
// the same lock, never a lock-free snapshot) rather than channels: aistore
// reaches for a plain mutex here, not goroutine-per-resource, and so does
// this catalogue.
/*
 * Copyright (c) 2023, NVIDIA CORPORATION. All rights reserved.
 */
package catalog

import (
	"sync"

	"github.com/gridforge/wlmcore/cmn"
	"github.com/gridforge/wlmcore/cmn/debug"
)

// View selects which derived subset Iterate walks.
type View int

const (
	ViewAll View = iota
	ViewBooted     // blocks in READY
	ViewJobBearing // blocks with a live job
)

// Catalogue is the live, ordered set of blocks plus derived views. It
// outlives all placement attempts; the placement engine never owns a
// block, it only ever borrows a *Block under the catalogue's lock.
type Catalogue struct {
	mu          sync.Mutex
	blocks      []*Block // arena; index is not a stable Handle once blocks are removed mid-slice in tests, so lookups go by ID
	byID        map[string]int
	totalCPUs   int
	freeCPUs    int
}

func New() *Catalogue {
	return &Catalogue{byID: make(map[string]int)}
}

// Lock/Unlock expose the catalogue lock to callers (placement) that must
// hold it across a whole matching pass, not just a single method call —
// spec.md §4.I's matching loop runs "under the catalogue lock".
func (c *Catalogue) Lock()   { c.mu.Lock() }
func (c *Catalogue) Unlock() { c.mu.Unlock() }

// Iterate calls fn for each block in the requested view, in stable
// catalogue order (spec.md §5: "within a single catalogue iteration,
// block order is stable"). Must be called with the lock held (readers
// take the lock too — the iteration is not a snapshot, per spec.md §5).
func (c *Catalogue) Iterate(view View, fn func(*Block) bool) {
	debug.AssertMutexLocked(&c.mu)
	for _, b := range c.blocks {
		switch view {
		case ViewBooted:
			if b.State != READY {
				continue
			}
		case ViewJobBearing:
			if !b.HasLiveJob() {
				continue
			}
		}
		if !fn(b) {
			return
		}
	}
}

// Snapshot returns a copy of the block pointers in the given view, for
// callers (dynamic placement) that need to pass a stable list to a
// synthesis routine without holding the lock for the routine's duration.
func (c *Catalogue) Snapshot(view View) []*Block {
	debug.AssertMutexLocked(&c.mu)
	out := make([]*Block, 0, len(c.blocks))
	c.Iterate(view, func(b *Block) bool {
		out = append(out, b)
		return true
	})
	return out
}

// Add registers a newly created block (dynamic placement or static
// config). Must be called with the lock held.
func (c *Catalogue) Add(b *Block) {
	debug.AssertMutexLocked(&c.mu)
	debug.Assert(b.ID != "")
	if _, ok := c.byID[b.ID]; ok {
		return
	}
	c.byID[b.ID] = len(c.blocks)
	c.blocks = append(c.blocks, b)
	c.totalCPUs += b.Procs()
	if b.State == FREE {
		c.freeCPUs += b.Procs()
	}
}

// Remove destroys a block; per spec.md §3 this is only legal when the
// block is FREE and has no pending-free count. Returns false (no-op) if
// the invariant doesn't hold — the caller must not treat that as fatal,
// per spec.md §7 ("placement never panics: ... only inconsistent state
// ... aborts" — callers that intentionally race a remove against a fresh
// job landing in the block should expect this to fail benignly).
func (c *Catalogue) Remove(b *Block) bool {
	debug.AssertMutexLocked(&c.mu)
	if b.State != FREE || b.pendingFree != 0 {
		return false
	}
	idx, ok := c.byID[b.ID]
	if !ok {
		return false
	}
	last := len(c.blocks) - 1
	c.blocks[idx] = c.blocks[last]
	c.byID[c.blocks[idx].ID] = idx
	c.blocks = c.blocks[:last]
	delete(c.byID, b.ID)
	c.totalCPUs -= b.Procs()
	c.freeCPUs -= b.Procs()
	return true
}

// MarkError transitions a block to ERROR; a READY block's images remain
// fixed regardless (spec.md §3), so MarkError never touches Images.
func (c *Catalogue) MarkError(b *Block) {
	debug.AssertMutexLocked(&c.mu)
	if b.State == FREE {
		c.freeCPUs -= b.Procs()
	}
	b.State = ERROR
}

// MarkFree transitions a block back to FREE (the only state from which it
// may later be destroyed, or have its images changed per spec.md §3).
func (c *Catalogue) MarkFree(b *Block) {
	debug.AssertMutexLocked(&c.mu)
	if b.State != FREE {
		c.freeCPUs += b.Procs()
	}
	b.State = FREE
	b.OwnerJob = NoOwner
}

// FreeList marks each target block as pending-free (incrementing its
// pending-free counter) and returns the number of blocks now pending.
// Used by dynamic-layout overlap handling: an occupied overlapping block
// "prompts removal of the candidate from the catalogue via free_list"
// (spec.md §4.I) — the actual free happens asynchronously once the
// occupying job exits and the block transitions through FREE.
func (c *Catalogue) FreeList(targets []*Block) (countPending int) {
	debug.AssertMutexLocked(&c.mu)
	for _, b := range targets {
		b.pendingFree++
		countPending++
	}
	return
}

// ClearPendingFree is called once a previously free_list()-ed block
// actually completes a free; idempotent past zero.
func (c *Catalogue) ClearPendingFree(b *Block) {
	debug.AssertMutexLocked(&c.mu)
	if b.pendingFree > 0 {
		b.pendingFree--
	}
}

// FreeCPUBudget reports the catalogue-wide free CPU count, consulted by
// placement's pre-check #2 ("the requested processor count fits in the
// catalogue's free CPU budget").
func (c *Catalogue) FreeCPUBudget() int {
	debug.AssertMutexLocked(&c.mu)
	return c.freeCPUs
}

// TotalCPUBudget reports the catalogue-wide CPU count across all blocks
// regardless of state, consulted by metrics.
func (c *Catalogue) TotalCPUBudget() int {
	debug.AssertMutexLocked(&c.mu)
	return c.totalCPUs
}

// Get looks up a block by ID without requiring iteration order.
func (c *Catalogue) Get(id string) (*Block, bool) {
	debug.AssertMutexLocked(&c.mu)
	idx, ok := c.byID[id]
	if !ok {
		return nil, false
	}
	return c.blocks[idx], true
}

// FindByOwner returns the block currently owned by jobID, if any. The RPC
// core's cancel/signal/requeue handlers use this to resolve a job id to
// its placed block before fanning a node-directed operation out to it.
func (c *Catalogue) FindByOwner(jobID string) (*Block, bool) {
	debug.AssertMutexLocked(&c.mu)
	for _, b := range c.blocks {
		if b.OwnerJob == jobID {
			return b, true
		}
	}
	return nil, false
}

// Overlapping returns every other block in the catalogue whose bitmap
// intersects b's, per spec.md §4.F's overlap test. O(n) over the
// catalogue; aistore's own overlap-adjacent code (transport bundle resync)
// is likewise a linear scan over the current membership rather than a
// precomputed graph, since n is small (a machine's block count, not its
// node count).
func (c *Catalogue) Overlapping(b *Block) []*Block {
	debug.AssertMutexLocked(&c.mu)
	var out []*Block
	for _, other := range c.blocks {
		if other == b {
			continue
		}
		if other.Bitmap.Overlaps(b.Bitmap) {
			out = append(out, other)
		}
	}
	return out
}

// StateCounts tallies blocks by state, for metrics export.
func (c *Catalogue) StateCounts() map[State]int {
	debug.AssertMutexLocked(&c.mu)
	out := make(map[State]int, 6)
	for _, b := range c.blocks {
		out[b.State]++
	}
	return out
}

// Len reports the total number of blocks in the catalogue.
func (c *Catalogue) Len() int {
	debug.AssertMutexLocked(&c.mu)
	return len(c.blocks)
}

// RC-compatible error for invariant violations that do abort (spec.md
// §7: "only inconsistent state ... aborts").
type ErrInvariant struct{ Msg string }

func (e *ErrInvariant) Error() string { return e.Msg }
func (e *ErrInvariant) RC() cmn.RC    { return cmn.ERROR }
