// Package correlate implements the offline same-device correlation pass run
// over a completed agent database: identity matching across antennas,
// connected-component / path extraction, per-MAC hop resolution, and
// randomised-MAC successor linking.
//
// Fingerprints are held in a flat arena and referenced by integer ID rather
// than by pointer chains, since the hop/successor relationships form a
// time-forward DAG in intent but nothing in the identity predicate forbids
// a cycle on tied timestamps.
package correlate

import "fmt"

// Fingerprint is one persisted MAC-address aggregate as read back from the
// correlator's input database (§6's MacAddresses table), plus the mutable
// correlation fields this package fills in.
type Fingerprint struct {
	ID int

	MAC       [6]byte
	Random    bool
	FirstSeen int64
	LastSeen  int64

	ServiceUUID uint16
	CompanyID   uint16

	// RSSI is the last-sample reading; RSSIMean/RSSIStd are the
	// fingerprint's running statistics, both in dBm. Successor scoring
	// compares a fingerprint's point RSSI against each candidate's
	// aggregate, so both are carried rather than collapsed into one.
	RSSI     float64
	RSSIMean float64
	RSSIStd  float64

	AntennaID int64

	// AntennaHop is the ID of the next fingerprint in this MAC's hop
	// chain, or -1 if this fingerprint is the chain tail.
	AntennaHop int
	// IsHopped is true for every non-head element of a hop chain and
	// every fingerprint left out of its component's chosen path.
	IsHopped bool
	// IsSuccessor is true iff this fingerprint was linked as the single,
	// unambiguous successor of another (randomised-MAC) fingerprint.
	IsSuccessor bool
	// Successors holds the IDs linked as this fingerprint's candidate
	// successor(s): exactly one ID if IsSuccessor is set on that ID, or
	// up to defaultMaxCandidates ambiguous IDs otherwise.
	Successors []int
}

// NewFingerprint constructs a Fingerprint with AntennaHop initialised to -1
// (no hop), the sentinel ResolveHops leaves untouched chain tails at.
func NewFingerprint(id int) *Fingerprint {
	return &Fingerprint{ID: id, AntennaHop: -1}
}

// Duration returns last_seen - first_seen, used to break find_end ties.
func (f *Fingerprint) Duration() int64 {
	return f.LastSeen - f.FirstSeen
}

// InvariantError signals a programmer error: an unknown enum value reaching
// code that assumes its domain has already been validated.
type InvariantError struct {
	Msg string
}

func (e *InvariantError) Error() string { return "correlate: " + e.Msg }

// LookupError is returned by an AntennaLocator when no location is on
// record for an antenna at or before the requested timestamp. Per the
// identity predicate's error handling, a pair that raises LookupError is
// simply treated as not the same device.
type LookupError struct {
	AntennaID int64
	At        int64
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("correlate: no location for antenna %d at or before t=%d", e.AntennaID, e.At)
}
