package correlate_test

import (
	"testing"

	"github.com/fieldmesh/beacon/internal/correlate"
)

func TestResolveHops_ChainsPathAndMarksHopped(t *testing.T) {
	fp0 := baseFingerprint(0, 1000, 1100, 1)
	fp1 := baseFingerprint(1, 1150, 1250, 2)
	// fp2 starts more than 900s after fp0 ends, so the only route from fp0
	// to fp2 runs through fp1.
	fp2 := baseFingerprint(2, 2100, 2200, 1)

	arena, ids := arenaOf(fp0, fp1, fp2)
	if err := correlate.ResolveHops(arena, ids, sameLocator(), correlate.DefaultMaxDistanceKM); err != nil {
		t.Fatalf("ResolveHops: %v", err)
	}

	if fp0.AntennaHop != 1 {
		t.Errorf("fp0.AntennaHop = %d, want 1", fp0.AntennaHop)
	}
	if fp0.IsHopped {
		t.Error("fp0 (chain head) should not be IsHopped")
	}
	if !fp1.IsHopped {
		t.Error("fp1 (chain middle) should be IsHopped")
	}
	if !fp2.IsHopped {
		t.Error("fp2 (chain tail) should be IsHopped")
	}
	if fp2.AntennaHop != -1 {
		t.Errorf("fp2.AntennaHop = %d, want -1 (chain tail)", fp2.AntennaHop)
	}
}

func TestResolveHops_SingletonComponentUntouched(t *testing.T) {
	fp0 := baseFingerprint(0, 1000, 1100, 1)
	fp0.ServiceUUID = 1
	fp1 := baseFingerprint(1, 500000, 500100, 1) // far in time, no edge
	fp1.ServiceUUID = 2

	arena, ids := arenaOf(fp0, fp1)
	if err := correlate.ResolveHops(arena, ids, sameLocator(), correlate.DefaultMaxDistanceKM); err != nil {
		t.Fatalf("ResolveHops: %v", err)
	}

	if fp0.IsHopped || fp1.IsHopped {
		t.Error("singleton components should not be marked IsHopped")
	}
	if fp0.AntennaHop != -1 || fp1.AntennaHop != -1 {
		t.Error("singleton components should not gain an AntennaHop")
	}
}
