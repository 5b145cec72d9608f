// Package codec decodes the fixed-layout little-endian binary records
// written by the external capture tools (ubertooth-rx, ubertooth-btle) to
// their named pipes, one decoder per sniffer mode.
package codec

import (
	"encoding/binary"
	"fmt"
)

// MalformedRecord is returned when a byte slice does not match the exact
// size or domain constraints of the record it claims to be.
type MalformedRecord struct {
	Mode string
	Want int
	Got  int
}

func (e *MalformedRecord) Error() string {
	return fmt.Sprintf("codec: malformed %s record: want %d bytes, got %d", e.Mode, e.Want, e.Got)
}

// BTBRRecordSize is the fixed wire size of a BTBR record, including one byte
// of structure padding between uap and lap.
const BTBRRecordSize = 12

// BTLERecordSize is the fixed wire size of a BTLE (data channel) record.
const BTLERecordSize = 12

// BTLEAdvRecordSize is the fixed wire size of a BTLE advertising record.
const BTLEAdvRecordSize = 20

// BTBRPacket is one decoded BTBR (classic Bluetooth) record.
type BTBRPacket struct {
	Flags     uint16
	UAP       uint8
	LAP       uint32
	Timestamp int64
}

// DecodeBTBR decodes a 12-byte BTBR record: u16 flags, u8 uap, 1 byte pad,
// u32 lap, u32 timestamp.
func DecodeBTBR(b []byte) (BTBRPacket, error) {
	if len(b) != BTBRRecordSize {
		return BTBRPacket{}, &MalformedRecord{Mode: "btbr", Want: BTBRRecordSize, Got: len(b)}
	}
	return BTBRPacket{
		Flags:     binary.LittleEndian.Uint16(b[0:2]),
		UAP:       b[2],
		LAP:       binary.LittleEndian.Uint32(b[4:8]),
		Timestamp: int64(binary.LittleEndian.Uint32(b[8:12])),
	}, nil
}

// BTLEPacket is one decoded BTLE data-channel record.
type BTLEPacket struct {
	AccessAddress uint32
	Timestamp     int64
	RSSI          int32
}

// DecodeBTLE decodes a 12-byte BTLE record: u32 access_address, u32
// timestamp, i32 rssi.
func DecodeBTLE(b []byte) (BTLEPacket, error) {
	if len(b) != BTLERecordSize {
		return BTLEPacket{}, &MalformedRecord{Mode: "btle", Want: BTLERecordSize, Got: len(b)}
	}
	return BTLEPacket{
		AccessAddress: binary.LittleEndian.Uint32(b[0:4]),
		Timestamp:     int64(binary.LittleEndian.Uint32(b[4:8])),
		RSSI:          int32(binary.LittleEndian.Uint32(b[8:12])),
	}, nil
}

// BTLEAdvPacket is one decoded BTLE advertising record.
type BTLEAdvPacket struct {
	Type        uint8
	IsRandom    bool
	MAC         [6]byte
	Timestamp   int64
	RSSI        int32
	ServiceUUID uint16
	CompanyID   uint16
}

// DecodeBTLEAdv decodes a 20-byte BTLE advertising record: u8 type, u8
// is_random, 6B mac (little-endian), u32 timestamp, i32 rssi, u16
// service_uuid, u16 company_id.
func DecodeBTLEAdv(b []byte) (BTLEAdvPacket, error) {
	if len(b) != BTLEAdvRecordSize {
		return BTLEAdvPacket{}, &MalformedRecord{Mode: "btle-adv", Want: BTLEAdvRecordSize, Got: len(b)}
	}

	isRandomByte := b[1]
	if isRandomByte != 0 && isRandomByte != 1 {
		return BTLEAdvPacket{}, &MalformedRecord{Mode: "btle-adv", Want: BTLEAdvRecordSize, Got: len(b)}
	}

	var mac [6]byte
	copy(mac[:], b[2:8])

	return BTLEAdvPacket{
		Type:        b[0],
		IsRandom:    isRandomByte == 1,
		MAC:         mac,
		Timestamp:   int64(binary.LittleEndian.Uint32(b[8:12])),
		RSSI:        int32(binary.LittleEndian.Uint32(b[12:16])),
		ServiceUUID: binary.LittleEndian.Uint16(b[16:18]),
		CompanyID:   binary.LittleEndian.Uint16(b[18:20]),
	}, nil
}

// RecordSize returns the fixed wire size for a sniffer mode, and whether the
// mode is recognised.
func RecordSize(mode string) (int, bool) {
	switch mode {
	case "btbr":
		return BTBRRecordSize, true
	case "btle":
		return BTLERecordSize, true
	case "btle-adv":
		return BTLEAdvRecordSize, true
	default:
		return 0, false
	}
}

// MacString renders mac in colon-separated reversed-byte-order form, the
// display convention used throughout the agent and the central API's
// macAddress field.
func MacString(mac [6]byte) string {
	var out [17]byte
	const hexDigits = "0123456789abcdef"
	pos := 0
	for i := 5; i >= 0; i-- {
		b := mac[i]
		out[pos] = hexDigits[b>>4]
		out[pos+1] = hexDigits[b&0xf]
		pos += 2
		if i > 0 {
			out[pos] = ':'
			pos++
		}
	}
	return string(out[:])
}
