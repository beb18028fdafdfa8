package artnet

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/ipv4"
)

// ServerConfig configures a Server
type ServerConfig struct {
	// Bind is the local IP to listen on, empty for all interfaces
	Bind string
	// Port to bind; zero picks an ephemeral port
	Port   int
	Logger zerolog.Logger
}

// DefaultServerConfig listens on the Art-Net port on all interfaces
func DefaultServerConfig() ServerConfig {
	return ServerConfig{Port: Port, Logger: zerolog.Nop()}
}

// registration is one listener entry; identity is id, masks may repeat
type registration struct {
	id       int
	address  Address
	mask     Mask
	universe int
	handler  Handler
	last     []byte
}

// Server receives ArtDmx packets and dispatches them to listeners
type Server struct {
	rawConn net.PacketConn
	conn    *ipv4.PacketConn
	log     zerolog.Logger

	mu        sync.RWMutex
	listeners []*registration
	nextID    int

	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

// NewServer binds the UDP socket with SO_REUSEADDR and starts the receive loop
func NewServer(cfg ServerConfig) (*Server, error) {
	addr := net.JoinHostPort(cfg.Bind, strconv.Itoa(cfg.Port))

	lc := net.ListenConfig{Control: listenControl(true, false)}
	conn, err := lc.ListenPacket(context.Background(), "udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s := &Server{
		rawConn: conn,
		conn:    ipv4.NewPacketConn(conn),
		log:     cfg.Logger,
		done:    make(chan struct{}),
	}

	// Destination info lets debug logs tell broadcast from unicast traffic
	if err := s.conn.SetControlMessage(ipv4.FlagDst, true); err != nil {
		// Non-fatal on some platforms
		s.log.Debug().Err(err).Msg("could not set control message")
	}

	go s.readPackets()

	s.log.Debug().Str("addr", conn.LocalAddr().String()).Msg("artnet server listening")
	return s, nil
}

// LocalAddr returns the bound address
func (s *Server) LocalAddr() net.Addr {
	return s.rawConn.LocalAddr()
}

// readPackets continuously reads packets from the UDP socket
func (s *Server) readPackets() {
	defer close(s.done)

	buf := make([]byte, maxDatagram)

	for {
		n, cm, src, err := s.conn.ReadFrom(buf)
		if err != nil {
			if s.closed.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Debug().Err(err).Msg("artnet read failed")
			continue
		}

		packet, err := Parse(buf[:n])
		if err != nil {
			// Silently drop anything that is not ArtDmx
			continue
		}

		if s.log.GetLevel() <= zerolog.TraceLevel {
			ev := s.log.Trace().Stringer("src", src).Uint8("seq", packet.Sequence).Int("len", len(packet.Payload))
			if cm != nil {
				ev = ev.Stringer("dst", cm.Dst)
			}
			ev.Msg("artnet packet")
		}

		s.dispatch(packet, src)
	}
}

type delivery struct {
	handler  Handler
	universe int
}

// dispatch stores the payload on every matching listener, then calls the
// handlers in registration order outside the lock so they may register or
// delete listeners themselves
func (s *Server) dispatch(packet *Packet, src net.Addr) {
	var payload []byte
	var targets []delivery

	s.mu.Lock()
	for _, l := range s.listeners {
		if l.mask != packet.Mask {
			continue
		}
		if payload == nil {
			payload = make([]byte, len(packet.Payload))
			copy(payload, packet.Payload)
		}
		l.last = payload
		if l.handler != nil {
			targets = append(targets, delivery{handler: l.handler, universe: l.universe})
		}
	}
	s.mu.Unlock()

	if len(targets) == 0 {
		return
	}

	now := time.Now()
	for _, t := range targets {
		t.handler(Frame{
			Universe:   t.universe,
			Mask:       packet.Mask,
			Sequence:   packet.Sequence,
			Payload:    payload,
			Source:     src,
			ReceivedAt: now,
		})
	}
}

// Register adds a listener for an address and returns its id
func (s *Server) Register(addr Address, h Handler) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners = append(s.listeners, &registration{
		id:       id,
		address:  addr,
		mask:     EncodeMask(addr),
		universe: addr.Universe,
		handler:  h,
	})
	return id
}

// RegisterMultiple adds one simplified-address listener per universe, all sharing h
func (s *Server) RegisterMultiple(universes []int, h Handler) []int {
	ids := make([]int, 0, len(universes))
	for _, u := range universes {
		ids = append(ids, s.Register(Simplified(u), h))
	}
	return ids
}

// find returns the registration with id; callers hold s.mu
func (s *Server) find(id int) *registration {
	for _, l := range s.listeners {
		if l.id == id {
			return l
		}
	}
	return nil
}

// Delete removes a listener, reporting whether it existed
func (s *Server) Delete(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, l := range s.listeners {
		if l.id == id {
			s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
			return true
		}
	}
	return false
}

// DeleteAll removes every listener
func (s *Server) DeleteAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = nil
}

// SetHandler replaces the handler of a listener
func (s *Server) SetHandler(id int, h Handler) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := s.find(id)
	if l == nil {
		return false
	}
	l.handler = h
	return true
}

// SetAddressFilter changes the address a listener matches and clears its buffer
func (s *Server) SetAddressFilter(id int, addr Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := s.find(id)
	if l == nil {
		return false
	}
	l.address = addr
	l.mask = EncodeMask(addr)
	l.universe = addr.Universe
	l.last = nil
	return true
}

// Buffer returns a copy of the last payload seen by a listener
func (s *Server) Buffer(id int) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l := s.find(id)
	if l == nil {
		return nil, false
	}
	if l.last == nil {
		return nil, true
	}
	return append([]byte(nil), l.last...), true
}

// ClearBuffer forgets the last payload of a listener
func (s *Server) ClearBuffer(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l := s.find(id); l != nil {
		l.last = nil
	}
}

// Count returns the number of registered listeners
func (s *Server) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.listeners)
}

// Close stops the receive loop. The socket is closed to unblock the pending
// read, then Close waits for the loop to exit.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		err = s.rawConn.Close()
		<-s.done
		s.log.Debug().Msg("artnet server closed")
	})
	return err
}
