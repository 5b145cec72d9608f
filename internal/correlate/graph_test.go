package correlate_test

import (
	"testing"

	"github.com/fieldmesh/beacon/internal/correlate"
	"github.com/fieldmesh/beacon/internal/geo"
)

func sameLocator() correlate.AntennaLocator {
	locs := map[int64]geo.Point{
		1: {Lat: 50, Lng: 11},
		2: {Lat: 50, Lng: 11.0001},
	}
	return func(antennaID int64, at int64) (geo.Point, error) {
		return locs[antennaID], nil
	}
}

func arenaOf(fps ...*correlate.Fingerprint) (map[int]*correlate.Fingerprint, []int) {
	arena := make(map[int]*correlate.Fingerprint, len(fps))
	ids := make([]int, len(fps))
	for i, fp := range fps {
		arena[fp.ID] = fp
		ids[i] = fp.ID
	}
	return arena, ids
}

// Scenario 5: two independent same-device pairs -> two components of two.
func TestGetComponents_Scenario5_TwoIndependentPairs(t *testing.T) {
	fp0 := baseFingerprint(0, 1621775133, 1621775386, 1)
	fp1 := baseFingerprint(1, 1621775276, 1621775300, 2)
	fp2 := baseFingerprint(2, 1621777133, 1621777386, 1)
	fp3 := baseFingerprint(3, 1621777276, 1621777500, 2)

	arena, ids := arenaOf(fp0, fp1, fp2, fp3)
	_, components, err := correlate.GetComponents(arena, ids, sameLocator(), correlate.DefaultMaxDistanceKM)
	if err != nil {
		t.Fatalf("GetComponents: %v", err)
	}
	if len(components) != 2 {
		t.Fatalf("len(components) = %d, want 2", len(components))
	}
	for _, comp := range components {
		if len(comp) != 2 {
			t.Errorf("component = %v, want size 2", comp)
		}
	}
}

// Scenario 6: the sixth fingerprint connects only to the fifth, so the third
// component is the chain fp3 -> fp4 -> fp5 with nothing left off its path.
func TestGetComponents_Scenario6_ThreeComponents(t *testing.T) {
	fp0 := baseFingerprint(0, 1000, 1100, 1)
	fp1 := baseFingerprint(1, 1050, 1150, 2) // same device as fp0
	fp2 := baseFingerprint(2, 5000, 5100, 1) // isolated
	fp3 := baseFingerprint(3, 9000, 9100, 1)
	fp4 := baseFingerprint(4, 9050, 10150, 2) // same device as fp3
	// Same device as fp4; starts more than 900s after fp3 ends, so no fp3-fp5 edge.
	fp5 := baseFingerprint(5, 10010, 10200, 1)

	arena, ids := arenaOf(fp0, fp1, fp2, fp3, fp4, fp5)
	g, components, err := correlate.GetComponents(arena, ids, sameLocator(), correlate.DefaultMaxDistanceKM)
	if err != nil {
		t.Fatalf("GetComponents: %v", err)
	}
	if len(components) != 3 {
		t.Fatalf("len(components) = %d, want 3: %v", len(components), components)
	}

	paths, unused, err := correlate.GetPaths(arena, g, components)
	if err != nil {
		t.Fatalf("GetPaths: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("len(paths) = %d, want 2 (singleton component skipped)", len(paths))
	}
	for _, u := range unused {
		if len(u) != 0 {
			t.Errorf("unused = %v, want empty", u)
		}
	}
}

// A LookupError for one antenna must exclude only the pairs that consult
// it, not abort the scan: the remaining same-device pair must still form an
// edge (§7, correlate.go:72-75).
func TestGetComponents_LookupErrorExcludesOnlyThatPair(t *testing.T) {
	// fp0/fp1 are the same device at antenna 1, resolvable normally.
	fp0 := baseFingerprint(0, 1000, 1100, 1)
	fp1 := baseFingerprint(1, 1050, 1150, 1)
	// fp2/fp3 are the same device but antenna 99 has no recorded location.
	fp2 := baseFingerprint(2, 5000, 5100, 99)
	fp3 := baseFingerprint(3, 5050, 5150, 99)

	arena, ids := arenaOf(fp0, fp1, fp2, fp3)

	locs := map[int64]geo.Point{1: {Lat: 50, Lng: 11}}
	locate := func(antennaID int64, at int64) (geo.Point, error) {
		p, ok := locs[antennaID]
		if !ok {
			return geo.Point{}, &correlate.LookupError{AntennaID: antennaID, At: at}
		}
		return p, nil
	}

	_, components, err := correlate.GetComponents(arena, ids, locate, correlate.DefaultMaxDistanceKM)
	if err != nil {
		t.Fatalf("GetComponents: %v", err)
	}

	var sawPair01 bool
	for _, comp := range components {
		if len(comp) == 2 && ((comp[0] == 0 && comp[1] == 1) || (comp[0] == 1 && comp[1] == 0)) {
			sawPair01 = true
		}
	}
	if !sawPair01 {
		t.Fatalf("components = %v, want a {0,1} component despite the antenna-99 lookup error", components)
	}
	if len(components) != 3 {
		t.Fatalf("len(components) = %d, want 3 ({0,1}, {2}, {3} left unlinked by the lookup error)", len(components))
	}
}

// Scenario 7: a component where the middle node lies off the head-to-tail
// shortest path.
func TestGetPaths_Scenario7_MiddleNodeUnused(t *testing.T) {
	fp0 := correlate.NewFingerprint(0)
	fp0.FirstSeen, fp0.LastSeen, fp0.AntennaID = 1000, 1100, 1

	fp1 := correlate.NewFingerprint(1)
	fp1.FirstSeen, fp1.LastSeen, fp1.AntennaID = 1050, 1120, 1

	fp2 := correlate.NewFingerprint(2)
	fp2.FirstSeen, fp2.LastSeen, fp2.AntennaID = 1200, 1300, 1

	arena := map[int]*correlate.Fingerprint{0: fp0, 1: fp1, 2: fp2}
	g := correlate.Graph{}
	_ = g

	// All three share one location and fall within the forward window of
	// each other, so GetComponents links every pair. The head (fp0) and the
	// tail (fp2) are then adjacent, and fp1 is left off the shortest path.
	built, components, err := correlate.GetComponents(arena, []int{0, 1, 2}, func(antennaID int64, at int64) (geo.Point, error) {
		return geo.Point{Lat: 50, Lng: 11}, nil
	}, correlate.DefaultMaxDistanceKM)
	if err != nil {
		t.Fatalf("GetComponents: %v", err)
	}
	if len(components) != 1 || len(components[0]) != 3 {
		t.Fatalf("components = %v, want one component of 3", components)
	}

	paths, unused, err := correlate.GetPaths(arena, built, components)
	if err != nil {
		t.Fatalf("GetPaths: %v", err)
	}
	if len(paths) != 1 {
		t.Fatalf("len(paths) = %d, want 1", len(paths))
	}
	if len(unused[0]) != 1 || unused[0][0] != 1 {
		t.Fatalf("unused = %v, want [1] (fp1 off the fp0->fp2 path)", unused[0])
	}
}
