// Package store implements the per-sniffer fingerprint stores: a keyed
// table from variant key to in-progress fingerprint, with thread-safe
// ingest and periodic snapshot-and-prune. One concrete store type per
// fingerprint variant, mirroring the one-type-per-variant fingerprint
// package rather than a single generic table.
package store

import (
	"sync"

	"github.com/fieldmesh/beacon/internal/codec"
	"github.com/fieldmesh/beacon/internal/fingerprint"
)

// defaultSeenForSeconds is the default BTBR/BTLE-Adv reportability
// threshold: a fingerprint must have been observed for longer than this
// many seconds before it is included in a snapshot.
const defaultSeenForSeconds = 60

// defaultSeenThreshold is the default BTLE reportability threshold: a
// fingerprint must have been observed at least this many times.
const defaultSeenThreshold = 5

// BTBRStore is the keyed fingerprint table for classic-Bluetooth packets,
// keyed by LAP.
type BTBRStore struct {
	mu          sync.Mutex
	entries     map[uint32]*fingerprint.BTBR
	prevCutoff  int64
	seenForSecs int64
}

// NewBTBRStore creates an empty BTBRStore. seenForSeconds of 0 selects the
// spec default of 60.
func NewBTBRStore(seenForSeconds int64) *BTBRStore {
	if seenForSeconds == 0 {
		seenForSeconds = defaultSeenForSeconds
	}
	return &BTBRStore{
		entries:     make(map[uint32]*fingerprint.BTBR),
		seenForSecs: seenForSeconds,
	}
}

// Ingest locates or creates the fingerprint keyed by pkt.LAP and folds pkt
// into it under the store's mutex.
func (s *BTBRStore) Ingest(pkt codec.BTBRPacket) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fp, ok := s.entries[pkt.LAP]
	if !ok {
		fp = &fingerprint.BTBR{}
		s.entries[pkt.LAP] = fp
	}
	fp.Update(pkt)
}

// SnapshotAndPrune evicts entries whose LastSeen predates the previous
// snapshot's cutoff, commits now as the new cutoff, and returns copies of
// the entries that satisfy the BTBR reportability predicate
// (last_seen - first_seen > seenForSeconds).
func (s *BTBRStore) SnapshotAndPrune(now int64) []fingerprint.BTBR {
	s.mu.Lock()
	defer s.mu.Unlock()

	var reportable []fingerprint.BTBR
	for key, fp := range s.entries {
		if fp.LastSeen < s.prevCutoff {
			delete(s.entries, key)
			continue
		}
		if fp.LastSeen-fp.FirstSeen > s.seenForSecs {
			reportable = append(reportable, *fp)
		}
	}
	s.prevCutoff = now
	return reportable
}

// BTLEStore is the keyed fingerprint table for BTLE data-channel packets,
// keyed by access address.
type BTLEStore struct {
	mu            sync.Mutex
	entries       map[uint32]*fingerprint.BTLE
	prevCutoff    int64
	seenThreshold int
}

// NewBTLEStore creates an empty BTLEStore. seenThreshold of 0 selects the
// spec default of 5.
func NewBTLEStore(seenThreshold int) *BTLEStore {
	if seenThreshold == 0 {
		seenThreshold = defaultSeenThreshold
	}
	return &BTLEStore{
		entries:       make(map[uint32]*fingerprint.BTLE),
		seenThreshold: seenThreshold,
	}
}

// Ingest locates or creates the fingerprint keyed by pkt.AccessAddress and
// folds pkt into it under the store's mutex.
func (s *BTLEStore) Ingest(pkt codec.BTLEPacket) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fp, ok := s.entries[pkt.AccessAddress]
	if !ok {
		fp = &fingerprint.BTLE{}
		s.entries[pkt.AccessAddress] = fp
	}
	fp.Update(pkt)
}

// SnapshotAndPrune evicts stale entries, commits now as the new cutoff, and
// returns copies of entries that satisfy the BTLE reportability predicate
// (times_seen >= seenThreshold).
func (s *BTLEStore) SnapshotAndPrune(now int64) []fingerprint.BTLE {
	s.mu.Lock()
	defer s.mu.Unlock()

	var reportable []fingerprint.BTLE
	for key, fp := range s.entries {
		if fp.LastSeen < s.prevCutoff {
			delete(s.entries, key)
			continue
		}
		if fp.TimesSeen >= s.seenThreshold {
			reportable = append(reportable, *fp)
		}
	}
	s.prevCutoff = now
	return reportable
}

// BTLEAdvStore is the keyed fingerprint table for BTLE advertising packets,
// keyed by MAC address.
type BTLEAdvStore struct {
	mu          sync.Mutex
	entries     map[[6]byte]*fingerprint.BTLEAdv
	prevCutoff  int64
	seenForSecs int64
}

// NewBTLEAdvStore creates an empty BTLEAdvStore. seenForSeconds of 0
// selects the spec default of 60.
func NewBTLEAdvStore(seenForSeconds int64) *BTLEAdvStore {
	if seenForSeconds == 0 {
		seenForSeconds = defaultSeenForSeconds
	}
	return &BTLEAdvStore{
		entries:     make(map[[6]byte]*fingerprint.BTLEAdv),
		seenForSecs: seenForSeconds,
	}
}

// Ingest locates or creates the fingerprint keyed by pkt.MAC and folds pkt
// into it under the store's mutex.
func (s *BTLEAdvStore) Ingest(pkt codec.BTLEAdvPacket) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fp, ok := s.entries[pkt.MAC]
	if !ok {
		fp = &fingerprint.BTLEAdv{}
		s.entries[pkt.MAC] = fp
	}
	fp.Update(pkt)
}

// SnapshotAndPrune evicts stale entries, commits now as the new cutoff, and
// returns copies of entries that satisfy the BTLE-Adv reportability
// predicate (last_seen - first_seen > seenForSeconds).
func (s *BTLEAdvStore) SnapshotAndPrune(now int64) []fingerprint.BTLEAdv {
	s.mu.Lock()
	defer s.mu.Unlock()

	var reportable []fingerprint.BTLEAdv
	for key, fp := range s.entries {
		if fp.LastSeen < s.prevCutoff {
			delete(s.entries, key)
			continue
		}
		if fp.LastSeen-fp.FirstSeen > s.seenForSecs {
			reportable = append(reportable, *fp)
		}
	}
	s.prevCutoff = now
	return reportable
}
