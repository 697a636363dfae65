package coordinator

import (
	"sort"

	"github.com/shardfs/shardfs/modules"
)

// eligible reports whether worker w can host a chunk of the given size:
// active, free-space ratio at least modules.MinFreeRatio, and enough free
// bytes for the chunk itself.
func eligible(w modules.WorkerRecord, chunkSize int64) bool {
	if w.State != modules.WorkerActive {
		return false
	}
	if w.FreeRatio() < modules.MinFreeRatio {
		return false
	}
	return w.FreeBytes >= chunkSize
}

// sortWorkers returns a stable-sorted copy of workers by id, the "stable
// id order" the placement policy in spec.md §4.1 is defined over.
func sortWorkers(workers []modules.WorkerRecord) []modules.WorkerRecord {
	out := make([]modules.WorkerRecord, len(workers))
	copy(out, workers)
	sort.Slice(out, func(i, j int) bool { return out[i].WorkerID < out[j].WorkerID })
	return out
}

// Place chooses R target workers for chunk index i using capacity-weighted
// round robin: for chunk i pick indices (i+k) mod |W| for k=0..R-1 among
// active workers sorted by stable id, skipping workers under the free-space
// floor or without enough free bytes for this chunk, preferring workers
// with more free bytes on ties, and — when any chosen worker carries a
// rack label — requiring at least one replica live on a different
// rack than the others. The policy is a pure function of its inputs: the
// same (workers, chunkIndex, chunkSize, r) always yields the same result.
func Place(workers []modules.WorkerRecord, chunkIndex int, chunkSize int64, r int) ([]modules.WorkerRecord, error) {
	all := sortWorkers(workers)
	var pool []modules.WorkerRecord
	for _, w := range all {
		if eligible(w, chunkSize) {
			pool = append(pool, w)
		}
	}
	if len(pool) < r {
		return nil, modules.ErrNoCapacity
	}

	n := len(pool)
	chosen := make([]modules.WorkerRecord, 0, r)
	used := make(map[string]bool, r)
	for k := 0; k < n && len(chosen) < r; k++ {
		idx := (chunkIndex + k) % n
		w := pool[idx]
		if used[w.WorkerID] {
			continue
		}
		used[w.WorkerID] = true
		chosen = append(chosen, w)
	}
	if len(chosen) < r {
		return nil, modules.ErrNoCapacity
	}

	// Tie-break: among the chosen set, prefer more free bytes by
	// re-ordering (this doesn't change membership, only presentation
	// order, which keeps the membership selection deterministic above
	// while still surfacing the more-capable replica first in the
	// returned target list).
	sort.SliceStable(chosen, func(i, j int) bool {
		return chosen[i].FreeBytes > chosen[j].FreeBytes
	})

	if racksInUse(chosen) {
		chosen = enforceRackDiversity(chosen, pool, used)
	}
	return chosen, nil
}

// racksInUse reports whether at least one worker in the set has a
// non-empty rack label, the condition under which the rack-diversity
// constraint is non-vacuous.
func racksInUse(chosen []modules.WorkerRecord) bool {
	for _, w := range chosen {
		if w.Rack != "" {
			return true
		}
	}
	return false
}

// enforceRackDiversity ensures at least one chosen replica lives on a
// different rack than the rest, swapping in a same-eligibility worker from
// the pool if every chosen replica currently shares one rack.
func enforceRackDiversity(chosen, pool []modules.WorkerRecord, used map[string]bool) []modules.WorkerRecord {
	rack := chosen[0].Rack
	allSame := true
	for _, w := range chosen {
		if w.Rack != rack {
			allSame = false
			break
		}
	}
	if !allSame {
		return chosen
	}
	for _, w := range pool {
		if used[w.WorkerID] || w.Rack == rack {
			continue
		}
		// Swap out the last (least-free-space) chosen replica.
		chosen[len(chosen)-1] = w
		return chosen
	}
	// No worker on another rack is available; the constraint is
	// unsatisfiable given current capacity and is left vacuous rather
	// than failing placement outright.
	return chosen
}
