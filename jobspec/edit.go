/*
 * Copyright (c) 2023, NVIDIA CORPORATION. All rights reserved.
 */
package jobspec

import (
	"time"

	"github.com/gridforge/wlmcore/cmn"
)

// EditSession accumulates a batch of raw field edits and applies them
// atomically. This replaces the original's process-wide global_edit_error
// / global_send_update_msg / got_edit_signal singletons (Open Question
// resolution 2): a session is constructed per edit call, the caller holds
// the only reference, and it is discarded on return — there is no
// package-level mutable state to race or leak across unrelated edits.
type EditSession struct {
	desc *JobDesc
	now  func() time.Time

	fields map[string]string
}

// NewEditSession opens a batch of edits against desc. now defaults to
// time.Now if nil.
func NewEditSession(desc *JobDesc, now func() time.Time) *EditSession {
	if now == nil {
		now = time.Now
	}
	return &EditSession{desc: desc, now: now, fields: map[string]string{}}
}

// Set stages a raw field value. Staging does not validate; Apply does.
func (s *EditSession) Set(field, value string) *EditSession {
	s.fields[field] = value
	return s
}

// Apply validates every staged field and, only if all validate, commits
// them to the underlying JobDesc in one step (spec.md §6: "any value
// outside these constraints yields a structured edit error; no partial
// update").
func (s *EditSession) Apply() error {
	next := *s.desc // copy: mutate the copy, swap in only on full success

	for field, value := range s.fields {
		if err := applyField(&next, field, value, s.now()); err != nil {
			return cmn.NewErr(cmn.ToRC(err), "job %s: %v", s.desc.JobID, err)
		}
	}
	*s.desc = next
	return nil
}

func applyField(d *JobDesc, field, value string, now time.Time) error {
	switch field {
	case "time_limit":
		v, err := ParseTimeLimitMinutes(value)
		if err != nil {
			return err
		}
		d.TimeLimitMinutes = v
	case "priority":
		v, err := ParsePriority(value)
		if err != nil {
			return err
		}
		d.Priority = v
	case "nice":
		v, err := ParseNice(value)
		if err != nil {
			return err
		}
		d.NiceBiased = v
	case "min_cpus_per_node":
		v, err := ParseQuantity(field, value)
		if err != nil {
			return err
		}
		d.MinCPUsPerNode = v
	case "min_tasks":
		v, err := ParseQuantity(field, value)
		if err != nil {
			return err
		}
		d.MinTasks = v
	case "cpus_per_task":
		v, err := ParseQuantity(field, value)
		if err != nil {
			return err
		}
		d.CPUsPerTask = v
	case "min_memory":
		v, err := ParseQuantity(field, value)
		if err != nil {
			return err
		}
		d.MinMemoryBytes = v
	case "min_tmp_disk":
		v, err := ParseQuantity(field, value)
		if err != nil {
			return err
		}
		d.MinTmpDiskBytes = v
	case "partition":
		d.Partition = value
	case "name":
		d.Name = value
	case "wckey":
		d.WCKey = value
	case "account":
		d.Account = value
	case "qos":
		d.QOS = value
	case "features":
		d.Features = value
	case "gres":
		d.Gres = value
	case "licenses":
		d.Licenses = value
	case "dependency":
		d.Dependency = value
	case "reservation":
		d.Reservation = value
	case "shared":
		v, err := ParseYesNo(field, value)
		if err != nil {
			return err
		}
		d.Shared = v
	case "contiguous":
		v, err := ParseYesNo(field, value)
		if err != nil {
			return err
		}
		d.Contiguous = v
	case "requeue":
		v, err := ParseYesNo(field, value)
		if err != nil {
			return err
		}
		d.Requeue = v
	case "requested_nodes":
		v, err := ParseNodeList(field, value)
		if err != nil {
			return err
		}
		d.RequestedNodes = v
	case "excluded_nodes":
		v, err := ParseNodeList(field, value)
		if err != nil {
			return err
		}
		d.ExcludedNodes = v
	case "geometry":
		v, err := ParseGeometry(value)
		if err != nil {
			return err
		}
		d.Geometry = v
		d.HasGeometry = true
	case "rotate":
		v, err := ParseYesNo(field, value)
		if err != nil {
			return err
		}
		d.Rotate = v
	case "connection_type":
		v, err := ParseConnType(value)
		if err != nil {
			return err
		}
		d.ConnType = v
	case "image_blrts":
		d.Images.Blrts = value
	case "image_linux":
		d.Images.Linux = value
	case "image_mloader":
		d.Images.Mloader = value
	case "image_ramdisk":
		d.Images.Ramdisk = value
	case "start_time":
		v, err := ParseStartTime(value, now)
		if err != nil {
			return err
		}
		d.StartTime = v
	case "eligible_time":
		v, err := ParseStartTime(value, now)
		if err != nil {
			return err
		}
		d.EligibleTime = v
	default:
		return editErr(field, value)
	}
	return nil
}
