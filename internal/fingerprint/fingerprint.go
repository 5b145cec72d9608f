// Package fingerprint defines the three device-fingerprint variants the
// agent aggregates from capture packets. Each variant is a concrete type
// sharing a common header rather than a shared interface with dynamic
// dispatch: the variants differ enough in update rule and reportability
// that a tag-dispatched sum type would just move the switch elsewhere.
package fingerprint

import (
	"github.com/fieldmesh/beacon/internal/codec"
	"github.com/fieldmesh/beacon/internal/stats"
)

// Header holds the attributes common to every fingerprint variant.
// FirstSeen is set at creation and never mutated; LastSeen only moves
// forward.
type Header struct {
	FirstSeen int64
	LastSeen  int64
	AntennaID int64
}

// BTBR aggregates observations of one classic-Bluetooth device, keyed by LAP.
type BTBR struct {
	Header

	LAP    uint32
	UAP    *uint8
	NAP    *uint16
	lapSet bool
}

// Update folds in one decoded BTBR packet. It returns wasFirst, true iff
// this is the first packet observed for this fingerprint's key (computed
// before any field is mutated, unlike the hazard in the original
// implementation this was distilled from).
func (fp *BTBR) Update(pkt codec.BTBRPacket) (wasFirst bool) {
	wasFirst = !fp.lapSet
	if wasFirst {
		fp.LAP = pkt.LAP
		fp.lapSet = true
		fp.FirstSeen = pkt.Timestamp
	}

	if pkt.Flags&0b1 != 0 && fp.UAP == nil {
		uap := pkt.UAP
		fp.UAP = &uap
	}

	fp.LastSeen = pkt.Timestamp
	return wasFirst
}

// BTLE aggregates observations of one BTLE data-channel access address.
type BTLE struct {
	Header

	AccessAddress uint32
	TimesSeen     int
	RSSI          stats.Online

	aaSet bool
}

// Update folds in one decoded BTLE packet. It returns the updated TimesSeen
// count.
func (fp *BTLE) Update(pkt codec.BTLEPacket) (timesSeen int) {
	if !fp.aaSet {
		fp.AccessAddress = pkt.AccessAddress
		fp.aaSet = true
		fp.FirstSeen = pkt.Timestamp
	}

	fp.RSSI.Update(float64(pkt.RSSI))
	fp.TimesSeen++
	fp.LastSeen = pkt.Timestamp
	return fp.TimesSeen
}

// BTLEAdv aggregates observations of one BTLE advertising MAC address
// (possibly randomised).
type BTLEAdv struct {
	Header

	MAC         [6]byte
	IsRandom    bool
	ServiceUUID uint16
	CompanyID   uint16
	RSSI        stats.Online

	macSet bool
}

// Update folds in one decoded BTLE-Adv packet. It returns wasFirst, true iff
// this is the first packet observed for this fingerprint's MAC.
func (fp *BTLEAdv) Update(pkt codec.BTLEAdvPacket) (wasFirst bool) {
	wasFirst = !fp.macSet
	if wasFirst {
		fp.MAC = pkt.MAC
		fp.IsRandom = pkt.IsRandom
		fp.ServiceUUID = pkt.ServiceUUID
		fp.CompanyID = pkt.CompanyID
		fp.macSet = true
		fp.FirstSeen = pkt.Timestamp
	}

	fp.RSSI.Update(float64(pkt.RSSI))
	fp.LastSeen = pkt.Timestamp
	return wasFirst
}

// Duration returns last_seen - first_seen. The correlator's end-finder uses
// its own correlate.Fingerprint.Duration, not this method.
func (h Header) Duration() int64 {
	return h.LastSeen - h.FirstSeen
}
