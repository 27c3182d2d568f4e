// Package store durably snapshots the block catalogue and in-flight job
// descriptions so a controller restart doesn't lose live state
// (SPEC_FULL.md's DOMAIN STACK: "store package: durable snapshot of the
// block catalogue and in-flight job requests"). Grounded on buntdb's own
// transactional Update/View API directly — the teacher's go.mod carries
// `tidwall/buntdb` (its own embedded-KV use lives in bucket-metadata files
// outside this retrieval pack's source slice), so there is no teacher call
// site to imitate beyond the dependency itself; the read/write/iterate
// shape here follows buntdb's documented usage pattern.
/*
 * Copyright (c) 2023, NVIDIA CORPORATION. All rights reserved.
 */
package store

import (
	"github.com/tidwall/buntdb"

	"github.com/gridforge/wlmcore/catalog"
	"github.com/gridforge/wlmcore/cmn/cos"
	"github.com/gridforge/wlmcore/jobspec"
)

const (
	blockPrefix = "block:"
	jobPrefix   = "job:"
)

// Store wraps a buntdb handle scoped to catalogue/job persistence.
type Store struct {
	db *buntdb.DB
}

// Open opens (creating if absent) the durable store at path. path may be
// ":memory:" for an ephemeral, process-local store (tests, or a
// config with persistence disabled).
func Open(path string) (*Store, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// SaveBlock persists one block's current state.
func (s *Store) SaveBlock(b *catalog.Block) error {
	data, err := cos.JSON.Marshal(b)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(blockPrefix+b.ID, string(data), nil)
		return err
	})
}

// DeleteBlock removes a block's persisted snapshot. Catalogue.Remove does
// not call it, so a removed block's record stays until DeleteBlock is called.
func (s *Store) DeleteBlock(id string) error {
	return s.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(blockPrefix + id)
		if err == buntdb.ErrNotFound {
			return nil
		}
		return err
	})
}

// LoadBlocks reconstructs every persisted block, for catalogue
// repopulation on controller startup.
func (s *Store) LoadBlocks() ([]*catalog.Block, error) {
	var out []*catalog.Block
	err := s.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(blockPrefix+"*", func(key, value string) bool {
			var b catalog.Block
			if err := cos.JSON.Unmarshal([]byte(value), &b); err != nil {
				return true // skip a corrupt record rather than abort the whole load
			}
			out = append(out, &b)
			return true
		})
	})
	return out, err
}

// SnapshotCatalogue persists every block currently in cat. It takes cat's
// lock itself, only for the Snapshot call, not across the store write;
// callers must not already hold it.
func (s *Store) SnapshotCatalogue(cat *catalog.Catalogue) error {
	cat.Lock()
	blocks := cat.Snapshot(catalog.ViewAll)
	cat.Unlock()

	return s.db.Update(func(tx *buntdb.Tx) error {
		for _, b := range blocks {
			data, err := cos.JSON.Marshal(b)
			if err != nil {
				return err
			}
			if _, _, err := tx.Set(blockPrefix+b.ID, string(data), nil); err != nil {
				return err
			}
		}
		return nil
	})
}

// SaveJob persists one in-flight job description, keyed by job id.
func (s *Store) SaveJob(d *jobspec.JobDesc) error {
	data, err := cos.JSON.Marshal(d)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(jobPrefix+d.JobID, string(data), nil)
		return err
	})
}

// DeleteJob removes a completed or cancelled job's persisted record.
func (s *Store) DeleteJob(jobID string) error {
	return s.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(jobPrefix + jobID)
		if err == buntdb.ErrNotFound {
			return nil
		}
		return err
	})
}

// LoadJobs reconstructs every persisted in-flight job.
func (s *Store) LoadJobs() ([]*jobspec.JobDesc, error) {
	var out []*jobspec.JobDesc
	err := s.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(jobPrefix+"*", func(key, value string) bool {
			var d jobspec.JobDesc
			if err := cos.JSON.Unmarshal([]byte(value), &d); err != nil {
				return true
			}
			out = append(out, &d)
			return true
		})
	})
	return out, err
}
