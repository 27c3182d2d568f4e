/*
 * Copyright (c) 2023, NVIDIA CORPORATION. All rights reserved.
 */
package jobspec

import (
	"time"

	"github.com/gridforge/wlmcore/catalog"
	"github.com/gridforge/wlmcore/topo"
)

// JobDesc holds every job-description field spec.md §6 lists as accepted
// by placement, plus the original_source-only extras sview's job_info.c
// tracks alongside them (requested vs. actual CPU count, exit code, state
// reason) that the distilled spec dropped but a complete job record needs.
type JobDesc struct {
	JobID, Name, Partition, WCKey, Account, QOS string
	Features, Gres, Licenses                    string
	Dependency, Reservation                     string

	TimeLimitMinutes int // Infinite sentinel
	Priority         int
	NiceBiased       int

	MinCPUsPerNode   int64
	MinTasks         int64
	CPUsPerTask      int64
	NodesMin         int
	NodesMax         int
	MinMemoryBytes   int64
	MinTmpDiskBytes  int64

	Shared, Contiguous, Requeue bool

	RequestedNodes, ExcludedNodes []string

	Geometry    topo.Coord
	HasGeometry bool
	Rotate      bool
	ConnType    topo.ConnType

	Images catalog.Images

	StartTime, EligibleTime time.Time

	// Extras present in the original (sview/job_info.c) but dropped by
	// the distillation; kept because a real job record needs them.
	NumCPUsActual int
	ExitCode      int
	StateReason   string
}

// NewJobDesc returns a JobDesc with the defaults the original applies to
// an unedited job (unbounded time limit, non-negative nice at the
// unbiased zero point).
func NewJobDesc(jobID string) *JobDesc {
	return &JobDesc{
		JobID:            jobID,
		TimeLimitMinutes: Infinite,
		NiceBiased:       NiceOffset,
	}
}
