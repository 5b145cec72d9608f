package correlate

import "github.com/fieldmesh/beacon/internal/geo"

// DefaultMaxDistanceKM is the distance bound applied to a pair of sightings
// separated by a time gap (§4.8 rule 4, else branch).
const DefaultMaxDistanceKM = 15.0

// forwardWindowSeconds bounds how far into the future new.first_seen may
// fall relative to old.last_seen for old and new to be considered possibly
// the same device.
const forwardWindowSeconds = 900

// overlapMaxDistanceKM is the distance bound applied when old and new
// overlap in time (simultaneous sightings at distant antennas cannot be the
// same device).
const overlapMaxDistanceKM = 0.1

// AntennaLocator resolves an antenna's coordinates at or before time at. It
// returns a *LookupError if no location is on record.
type AntennaLocator func(antennaID int64, at int64) (geo.Point, error)

// IsSame implements the correlator's time-directional identity predicate
// (§4.8). It is not symmetric: callers wanting the undirected relation used
// by the graph builder must try both (old, new) and (new, old).
func IsSame(old, new *Fingerprint, locate AntennaLocator, maxDistanceKM float64) (bool, error) {
	if !(old.FirstSeen <= new.FirstSeen && new.FirstSeen <= old.LastSeen+forwardWindowSeconds) {
		return false, nil
	}
	if old.ServiceUUID != new.ServiceUUID {
		return false, nil
	}
	if old.CompanyID != new.CompanyID {
		return false, nil
	}

	if old.LastSeen > new.FirstSeen {
		oldLoc, err := locate(old.AntennaID, new.FirstSeen)
		if err != nil {
			return false, err
		}
		newLoc, err := locate(new.AntennaID, new.FirstSeen)
		if err != nil {
			return false, err
		}
		return geo.HaversineKM(oldLoc, newLoc) <= overlapMaxDistanceKM, nil
	}

	oldLoc, err := locate(old.AntennaID, old.LastSeen)
	if err != nil {
		return false, err
	}
	newLoc, err := locate(new.AntennaID, new.FirstSeen)
	if err != nil {
		return false, err
	}
	return geo.HaversineKM(oldLoc, newLoc) <= maxDistanceKM, nil
}
