/*
 * Copyright (c) 2023, NVIDIA CORPORATION. All rights reserved.
 */
package wire

import "sync"

// Message is immutable on send; ResponseList is filled only on receipt
// (spec.md §3).
type Message struct {
	Kind         int32
	Body         []byte
	ForwardPlan  ForwardPlan
	Result       *ForwardResult
	ResponseList []RetEntry
	SourceAddr   Addr
	OriginAddr   Addr
	AuthCred     []byte
}

// ForwardResult is shared by reference among the fan-out workers dispatched
// from a single forward plan (spec.md §3); Aggregate is the only mutator
// and is safe for concurrent use.
type ForwardResult struct {
	mu                  sync.Mutex
	BranchTimeoutMS     int32
	ExpectedBranchCount int
	Aggregated          []RetEntry
}

func NewForwardResult(expected int, branchTimeoutMS int32) *ForwardResult {
	return &ForwardResult{ExpectedBranchCount: expected, BranchTimeoutMS: branchTimeoutMS}
}

// Aggregate groups e into an existing entry matching (ReturnCode, Kind), or
// appends a new one — spec.md §4.D: "grouped by (return_code, kind) into
// ret_entry records in a single list".
func (r *ForwardResult) Aggregate(e RetEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.Aggregated {
		ex := &r.Aggregated[i]
		if ex.ReturnCode == e.ReturnCode && ex.Kind == e.Kind {
			ex.PerNode = append(ex.PerNode, e.PerNode...)
			return
		}
	}
	r.Aggregated = append(r.Aggregated, e)
}

// Snapshot returns a copy of the aggregated list under lock.
func (r *ForwardResult) Snapshot() []RetEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RetEntry(nil), r.Aggregated...)
}

// Count reports the total per-node entries aggregated so far, across all
// groups. After fanout's Dispatch it equals ExpectedBranchCount (one per
// target); no entry is added for the dispatching node itself.
func (r *ForwardResult) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.Aggregated {
		n += len(e.PerNode)
	}
	return n
}
