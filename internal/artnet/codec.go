// Package artnet implements the ArtDmx subset of Art-Net: packet encoding,
// a sender with precomputed per-universe headers and a receive server that
// demultiplexes frames to registered listeners by Port-Address.
//
// Out-of-range universe, subnet and net values are clamped rather than rejected,
// which keeps recordings made by older tools replayable.
package artnet

import (
	"bytes"
	"encoding/binary"
	"regexp"
)

var ipv4Pattern = regexp.MustCompile(`^(?:(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.){3}(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)$`)

// ValidateIP returns ErrInvalidAddress unless ip is a dotted-quad IPv4 address
func ValidateIP(ip string) error {
	if !ipv4Pattern.MatchString(ip) {
		return ErrInvalidAddress
	}
	return nil
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

// EncodeMask converts an address into the 2-byte Port-Address field
func EncodeMask(a Address) Mask {
	if !a.Hierarchical {
		u := uint16(clamp(a.Universe, 0, MaxSimplifiedUniverse))
		var m Mask
		binary.LittleEndian.PutUint16(m[:], u)
		return m
	}

	u := byte(clamp(a.Universe, 0, MaxSubUniverse))
	sub := byte(clamp(a.Subnet, 0, MaxSubnet))
	net := byte(clamp(a.Net, 0, MaxNet))
	return Mask{sub<<4 | u, net}
}

// DecodeMask returns the flat universe number of a mask
func DecodeMask(m Mask) int {
	return int(binary.LittleEndian.Uint16(m[:]))
}

// Address returns the mask interpreted as a hierarchical address
func (m Mask) Address() Address {
	return Hierarchical(int(m[1]&0x7f), int(m[0]>>4), int(m[0]&0x0f))
}

// BuildHeader returns the first 16 bytes of an ArtDmx packet, everything
// up to but excluding the length field
func BuildHeader(sequence uint8, a Address) []byte {
	header := make([]byte, HeaderSize-2, HeaderSize)
	copy(header[0:12], Signature) // ID, OpCode (low byte first), ProtVer (high byte first)
	header[12] = sequence
	header[13] = 0 // Physical
	m := EncodeMask(a)
	header[14] = m[0]
	header[15] = m[1]
	return header
}

// BuildPacket assembles a complete ArtDmx packet
func BuildPacket(sequence uint8, a Address, payload []byte) []byte {
	packet := append(BuildHeader(sequence, a), 0, 0)
	binary.BigEndian.PutUint16(packet[16:18], uint16(len(payload)))
	return append(packet, payload...)
}

// ValidateHeader reports whether data starts with the ArtDmx signature
func ValidateHeader(data []byte) bool {
	return len(data) >= len(Signature) && bytes.Equal(data[:len(Signature)], Signature)
}

// Parse parses a raw datagram into a Packet. The returned payload aliases data.
func Parse(data []byte) (*Packet, error) {
	if !ValidateHeader(data) {
		return nil, NewParseError("invalid ArtDmx signature", 0)
	}

	if len(data) < HeaderSize {
		return nil, NewParseError("packet too short", len(data))
	}

	return &Packet{
		Sequence: data[12],
		Physical: data[13],
		Mask:     Mask{data[14], data[15]},
		Length:   binary.BigEndian.Uint16(data[16:18]),
		Payload:  data[HeaderSize:],
	}, nil
}
