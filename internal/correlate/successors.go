package correlate

import (
	"errors"
	"math"
	"sort"

	"github.com/fieldmesh/beacon/internal/geo"
)

// Successor-linking defaults (§4.13).
const (
	defaultDeltaMaxSeconds    = 5
	defaultSuccessorMaxDistKM = 10.0
	defaultCandidatesLimit    = 5
	defaultMaxCandidates      = 2
)

// earlierThan is the deliberately asymmetric interval comparator described
// in §9: a < b iff a.FirstSeen < b.LastSeen. It is not a strict weak order
// and must only be used to seed the bisection below.
func earlierThan(a, b *Fingerprint) bool {
	return a.FirstSeen < b.LastSeen
}

// LinkSuccessors implements §4.13 over every randomised-MAC fingerprint in
// ids, in first-seen order. It mutates IsSuccessor and Successors on arena
// entries; it does not touch AntennaHop/IsHopped, which belong to the
// per-MAC hop-resolution pass and run independently (§9 open question 2).
func LinkSuccessors(arena map[int]*Fingerprint, ids []int, locate AntennaLocator) error {
	sorted := make([]int, len(ids))
	copy(sorted, ids)
	sort.SliceStable(sorted, func(i, j int) bool {
		return arena[sorted[i]].FirstSeen < arena[sorted[j]].FirstSeen
	})

	for idx, id := range sorted {
		current := arena[id]
		if !current.Random {
			continue
		}

		tail := sorted[idx+1:]
		start := sort.Search(len(tail), func(i int) bool {
			return !earlierThan(arena[tail[i]], current)
		})

		var candidates []int
		for _, candID := range tail[start:] {
			cand := arena[candID]
			if cand.FirstSeen-current.LastSeen >= defaultDeltaMaxSeconds {
				break
			}
			ok, err := possibleSuccessor(current, cand, locate)
			if err != nil {
				var lookupErr *LookupError
				if !errors.As(err, &lookupErr) {
					return err
				}
				ok = false
			}
			if ok {
				candidates = append(candidates, candID)
			}
		}

		if err := applySuccessorSelection(arena, current, candidates); err != nil {
			return err
		}
	}
	return nil
}

func possibleSuccessor(current, candidate *Fingerprint, locate AntennaLocator) (bool, error) {
	if current.CompanyID != candidate.CompanyID {
		return false, nil
	}
	if current.ServiceUUID != candidate.ServiceUUID {
		return false, nil
	}
	curLoc, err := locate(current.AntennaID, current.LastSeen)
	if err != nil {
		return false, err
	}
	candLoc, err := locate(candidate.AntennaID, candidate.FirstSeen)
	if err != nil {
		return false, err
	}
	return geo.HaversineKM(curLoc, candLoc) <= defaultSuccessorMaxDistKM, nil
}

func successorScore(current, candidate *Fingerprint) float64 {
	return math.Max(math.Abs(current.RSSI-candidate.RSSIMean)-candidate.RSSIStd, 0)
}

func applySuccessorSelection(arena map[int]*Fingerprint, current *Fingerprint, candidates []int) error {
	switch {
	case len(candidates) == 0:
		return nil
	case len(candidates) == 1:
		arena[candidates[0]].IsSuccessor = true
		current.Successors = append(current.Successors, candidates[0])
		return nil
	case len(candidates) <= defaultCandidatesLimit:
		sort.SliceStable(candidates, func(i, j int) bool {
			return successorScore(current, arena[candidates[i]]) < successorScore(current, arena[candidates[j]])
		})
		keep := defaultMaxCandidates
		if keep > len(candidates) {
			keep = len(candidates)
		}
		current.Successors = append(current.Successors, candidates[:keep]...)
		return nil
	default:
		return nil
	}
}
