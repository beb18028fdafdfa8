package artnet

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/rs/zerolog"
)

// SenderConfig configures a Sender
type SenderConfig struct {
	// IP is the destination, a dotted-quad IPv4 address
	IP string
	// Port defaults to the Art-Net port when zero
	Port int
	// Universes to prebuild headers for
	Universes []int
	// Hierarchical packs universes as Net/Sub-Net/Universe using Net and Subnet below
	Hierarchical bool
	Net          int
	Subnet       int
	Broadcast    bool
	Logger       zerolog.Logger
}

// Sender transmits ArtDmx frames over one UDP socket
type Sender struct {
	conn *net.UDPConn
	dst  *net.UDPAddr
	log  zerolog.Logger

	// headers is indexed by universe number; nil entries were not requested
	headers [][]byte

	mu       sync.Mutex
	sequence uint8
}

// NewSender validates the destination, opens the socket and precomputes one
// header per universe
func NewSender(cfg SenderConfig) (*Sender, error) {
	if err := ValidateIP(cfg.IP); err != nil {
		return nil, fmt.Errorf("%w: %q", err, cfg.IP)
	}

	port := cfg.Port
	if port <= 0 {
		port = Port
	}

	dst, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(cfg.IP, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", cfg.IP, err)
	}

	lc := net.ListenConfig{Control: listenControl(false, cfg.Broadcast)}
	pc, err := lc.ListenPacket(context.Background(), "udp4", ":0")
	if err != nil {
		return nil, fmt.Errorf("failed to open sender socket: %w", err)
	}

	s := &Sender{
		conn: pc.(*net.UDPConn),
		dst:  dst,
		log:  cfg.Logger,
	}

	for _, u := range cfg.Universes {
		if u < 0 {
			continue
		}
		for len(s.headers) <= u {
			s.headers = append(s.headers, nil)
		}
		addr := Simplified(u)
		if cfg.Hierarchical {
			addr = Hierarchical(cfg.Net, cfg.Subnet, u)
		}
		s.headers[u] = BuildHeader(0, addr)
	}

	return s, nil
}

// Universes returns the universes a header was built for, ascending
func (s *Sender) Universes() []int {
	var out []int
	for u, h := range s.headers {
		if h != nil {
			out = append(out, u)
		}
	}
	return out
}

// Sequence returns the sequence number the next packet will carry
func (s *Sender) Sequence() uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sequence
}

// Write assembles and transmits one frame. The sequence counter advances
// even if the write fails, so receivers can detect the gap.
func (s *Sender) Write(universe int, payload []byte) error {
	if universe < 0 || universe >= len(s.headers) || s.headers[universe] == nil {
		return fmt.Errorf("%w: %d", ErrUnknownUniverse, universe)
	}

	header := s.headers[universe]
	packet := make([]byte, HeaderSize+len(payload))
	copy(packet, header)
	binary.BigEndian.PutUint16(packet[16:18], uint16(len(payload)))
	copy(packet[HeaderSize:], payload)

	s.mu.Lock()
	packet[12] = s.sequence
	_, err := s.conn.WriteToUDP(packet, s.dst)
	s.sequence++
	s.mu.Unlock()

	if err != nil {
		return &TransportError{Universe: universe, Err: err}
	}
	return nil
}

// Send is Write with transport failures logged instead of returned.
// Only ErrUnknownUniverse reaches the caller.
func (s *Sender) Send(universe int, payload []byte) error {
	err := s.Write(universe, payload)
	if te, ok := err.(*TransportError); ok {
		s.log.Warn().Err(te.Err).Int("universe", universe).Msg("artnet send failed")
		return nil
	}
	return err
}

// RemoteAddr returns the destination address
func (s *Sender) RemoteAddr() *net.UDPAddr {
	return s.dst
}

// Close closes the UDP socket
func (s *Sender) Close() error {
	return s.conn.Close()
}
