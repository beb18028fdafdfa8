package artnet

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// Art-Net protocol constants
const (
	Port            = 6454
	HeaderSize      = 18
	MaxPayload      = 512
	OpCodeDMX       = 0x5000
	ProtocolVersion = 14

	// MaxSimplifiedUniverse is the highest flat universe number (15 bit port address)
	MaxSimplifiedUniverse = 32767
	MaxNet                = 127
	MaxSubnet             = 15
	MaxSubUniverse        = 15

	// maxDatagram bounds a single read; ArtDmx never exceeds HeaderSize+MaxPayload
	maxDatagram = 1500
)

// Signature is the fixed ID+OpCode+ProtVer prefix (bytes 0-11) of every ArtDmx packet
var Signature = []byte{'A', 'r', 't', '-', 'N', 'e', 't', 0x00, 0x00, 0x50, 0x00, 0x0e}

// Errors returned by the sender
var (
	ErrInvalidAddress  = errors.New("invalid IPv4 address")
	ErrUnknownUniverse = errors.New("unknown universe")
)

// Mask is the 2-byte Port-Address field at offset 14 of an ArtDmx packet
type Mask [2]byte

// Address identifies a universe either by flat number (simplified mode) or
// by the Net/Sub-Net/Universe triple (hierarchical mode)
type Address struct {
	Hierarchical bool
	Net          int
	Subnet       int
	Universe     int
}

// Simplified returns a flat universe address
func Simplified(universe int) Address {
	return Address{Universe: universe}
}

// Hierarchical returns a Net/Sub-Net/Universe address
func Hierarchical(net, subnet, universe int) Address {
	return Address{Hierarchical: true, Net: net, Subnet: subnet, Universe: universe}
}

func (a Address) String() string {
	if a.Hierarchical {
		return fmt.Sprintf("%d:%d:%d", a.Net, a.Subnet, a.Universe)
	}
	return fmt.Sprintf("%d", a.Universe)
}

// Packet represents a parsed ArtDmx packet
type Packet struct {
	Sequence uint8
	Physical uint8
	Mask     Mask
	Length   uint16
	Payload  []byte
}

// Frame is what a listener receives for every matching datagram.
// Payload is shared between all listeners of the datagram and must not be modified.
type Frame struct {
	Universe   int
	Mask       Mask
	Sequence   uint8
	Payload    []byte
	Source     net.Addr
	ReceivedAt time.Time
}

// Handler is invoked on the server's receive goroutine
type Handler func(Frame)

// ParseError represents an error during packet parsing
type ParseError struct {
	Message string
	Offset  int
}

func (e *ParseError) Error() string {
	return e.Message
}

// NewParseError creates a new ParseError
func NewParseError(message string, offset int) *ParseError {
	return &ParseError{Message: message, Offset: offset}
}

// TransportError wraps a failed UDP write
type TransportError struct {
	Universe int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("send universe %d: %v", e.Universe, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
