// Package stats tracks per-universe packet rate and Art-Net sequence loss
package stats

import (
	"sort"
	"sync"
	"time"
)

// Constants for loss tracking
const (
	// lossWindowDuration is the time window for recent loss calculation
	lossWindowDuration = time.Minute
	// sourceRestartThreshold is the sequence gap above which we assume source restart
	sourceRestartThreshold = 200
)

// PacketEvent records a packet reception event for sliding window tracking
type PacketEvent struct {
	Timestamp time.Time
	Received  uint64 // packets received in this event
	Lost      uint64 // packets lost detected in this event
}

// Source represents one sender, identified by its address
type Source struct {
	Addr         string
	LastSequence uint8
	LastSeen     time.Time
	PacketCount  uint64
	LostPackets  uint64
}

// UniverseStats tracks statistics for a single universe
type UniverseStats struct {
	UniverseID      int
	Sources         map[string]*Source
	PacketCount     uint64
	LostPackets     uint64
	LastPacket      time.Time
	packetsInWindow []time.Time   // For rate calculation
	lossWindow      []PacketEvent // For sliding window loss calculation
	mu              sync.RWMutex
}

// Tracker tracks packet statistics for all universes
type Tracker struct {
	universes  map[int]*UniverseStats
	rateWindow time.Duration
	mu         sync.RWMutex
}

// NewTracker creates a new stats tracker
func NewTracker() *Tracker {
	return &Tracker{
		universes:  make(map[int]*UniverseStats),
		rateWindow: time.Second, // Calculate rate over 1 second window
	}
}

// RecordPacket records a packet for statistics tracking. Sequence zero means
// the sender does not sequence its packets and is never counted as loss.
func (t *Tracker) RecordPacket(universeID int, source string, sequence uint8) {
	t.mu.Lock()
	stats, exists := t.universes[universeID]
	if !exists {
		stats = &UniverseStats{
			UniverseID: universeID,
			Sources:    make(map[string]*Source),
		}
		t.universes[universeID] = stats
	}
	t.mu.Unlock()

	stats.mu.Lock()
	defer stats.mu.Unlock()

	now := time.Now()
	stats.PacketCount++
	stats.LastPacket = now

	// Add to rate window
	stats.packetsInWindow = append(stats.packetsInWindow, now)

	// Clean old packets from window
	cutoff := now.Add(-t.rateWindow)
	newWindow := stats.packetsInWindow[:0]
	for _, pt := range stats.packetsInWindow {
		if pt.After(cutoff) {
			newWindow = append(newWindow, pt)
		}
	}
	stats.packetsInWindow = newWindow

	// Track source
	src, sourceExists := stats.Sources[source]
	if !sourceExists {
		src = &Source{Addr: source}
		stats.Sources[source] = src
	}

	// Check for packet loss (sequence gap)
	var lostThisPacket uint64
	if sourceExists && src.PacketCount > 0 && sequence != 0 {
		expectedSeq := uint8((int(src.LastSequence) + 1) % 256)
		if sequence != expectedSeq {
			// Calculate how many packets were lost
			var lost int
			if sequence > expectedSeq {
				lost = int(sequence) - int(expectedSeq)
			} else {
				// Wrapped around
				lost = 256 - int(expectedSeq) + int(sequence)
			}
			// If gap is too large, assume source restart rather than massive loss
			if lost < sourceRestartThreshold {
				lostThisPacket = uint64(lost)
				src.LostPackets += lostThisPacket
				stats.LostPackets += lostThisPacket
			}
			// If lost >= sourceRestartThreshold, we treat it as a restart
			// and don't count any loss
		}
	}

	// Record event for sliding window loss tracking
	stats.lossWindow = append(stats.lossWindow, PacketEvent{
		Timestamp: now,
		Received:  1,
		Lost:      lostThisPacket,
	})

	// Clean old events from loss window
	lossCutoff := now.Add(-lossWindowDuration)
	newLossWindow := stats.lossWindow[:0]
	for _, evt := range stats.lossWindow {
		if evt.Timestamp.After(lossCutoff) {
			newLossWindow = append(newLossWindow, evt)
		}
	}
	stats.lossWindow = newLossWindow

	src.LastSequence = sequence
	src.LastSeen = now
	src.PacketCount++
}

// GetUniverseStats returns stats for a specific universe
func (t *Tracker) GetUniverseStats(universeID int) *UniverseStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.universes[universeID]
}

// GetPacketRate returns packets per second for a universe
func (t *Tracker) GetPacketRate(universeID int) float64 {
	t.mu.RLock()
	stats := t.universes[universeID]
	t.mu.RUnlock()

	if stats == nil {
		return 0
	}

	stats.mu.RLock()
	defer stats.mu.RUnlock()

	// Clean old packets and count
	now := time.Now()
	cutoff := now.Add(-t.rateWindow)
	count := 0
	for _, pt := range stats.packetsInWindow {
		if pt.After(cutoff) {
			count++
		}
	}

	return float64(count) / t.rateWindow.Seconds()
}

// GetLossPercentage returns cumulative packet loss percentage for a universe
func (t *Tracker) GetLossPercentage(universeID int) float64 {
	t.mu.RLock()
	stats := t.universes[universeID]
	t.mu.RUnlock()

	if stats == nil {
		return 0
	}

	stats.mu.RLock()
	defer stats.mu.RUnlock()

	totalExpected := stats.PacketCount + stats.LostPackets
	if totalExpected == 0 {
		return 0
	}

	return float64(stats.LostPackets) / float64(totalExpected) * 100
}

// GetRecentLossPercentage returns packet loss percentage for the last minute
func (t *Tracker) GetRecentLossPercentage(universeID int) float64 {
	t.mu.RLock()
	stats := t.universes[universeID]
	t.mu.RUnlock()

	if stats == nil {
		return 0
	}

	stats.mu.RLock()
	defer stats.mu.RUnlock()

	// Sum up received and lost from the sliding window
	now := time.Now()
	cutoff := now.Add(-lossWindowDuration)

	var totalReceived, totalLost uint64
	for _, evt := range stats.lossWindow {
		if evt.Timestamp.After(cutoff) {
			totalReceived += evt.Received
			totalLost += evt.Lost
		}
	}

	totalExpected := totalReceived + totalLost
	if totalExpected == 0 {
		return 0
	}

	return float64(totalLost) / float64(totalExpected) * 100
}

// GetSourceLossPercentage returns packet loss percentage for a specific source
func (t *Tracker) GetSourceLossPercentage(universeID int, source string) float64 {
	t.mu.RLock()
	stats := t.universes[universeID]
	t.mu.RUnlock()

	if stats == nil {
		return 0
	}

	stats.mu.RLock()
	defer stats.mu.RUnlock()

	src, exists := stats.Sources[source]
	if !exists {
		return 0
	}

	totalExpected := src.PacketCount + src.LostPackets
	if totalExpected == 0 {
		return 0
	}

	return float64(src.LostPackets) / float64(totalExpected) * 100
}

// ResetUniverseStats clears all statistics for a specific universe
func (t *Tracker) ResetUniverseStats(universeID int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if stats, exists := t.universes[universeID]; exists {
		stats.mu.Lock()
		stats.PacketCount = 0
		stats.LostPackets = 0
		stats.packetsInWindow = nil
		stats.lossWindow = nil
		for _, source := range stats.Sources {
			source.PacketCount = 0
			source.LostPackets = 0
		}
		stats.mu.Unlock()
	}
}

// GetSources returns all sources for a universe
func (t *Tracker) GetSources(universeID int) []Source {
	t.mu.RLock()
	stats := t.universes[universeID]
	t.mu.RUnlock()

	if stats == nil {
		return nil
	}

	stats.mu.RLock()
	defer stats.mu.RUnlock()

	sources := make([]Source, 0, len(stats.Sources))
	for _, s := range stats.Sources {
		sources = append(sources, *s)
	}
	return sources
}

// GetAllUniverseIDs returns all tracked universe IDs, ascending
func (t *Tracker) GetAllUniverseIDs() []int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := make([]int, 0, len(t.universes))
	for id := range t.universes {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Summary is a point-in-time view of one universe
type Summary struct {
	UniverseID  int
	PacketCount uint64
	LostPackets uint64
	Rate        float64
	Loss        float64
	LastPacket  time.Time
}

// Snapshot returns a summary for every tracked universe, ascending
func (t *Tracker) Snapshot() []Summary {
	ids := t.GetAllUniverseIDs()
	out := make([]Summary, 0, len(ids))
	for _, id := range ids {
		stats := t.GetUniverseStats(id)
		if stats == nil {
			continue
		}
		stats.mu.RLock()
		s := Summary{
			UniverseID:  id,
			PacketCount: stats.PacketCount,
			LostPackets: stats.LostPackets,
			LastPacket:  stats.LastPacket,
		}
		stats.mu.RUnlock()
		s.Rate = t.GetPacketRate(id)
		s.Loss = t.GetLossPercentage(id)
		out = append(out, s)
	}
	return out
}
