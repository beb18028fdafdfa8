// Package recorder captures ArtDmx frames from a server into a recording file.
//
// The receive callback only timestamps frames and queues them; a single
// writer goroutine appends them to a temporary log. Run supervises the
// session and stops on inactivity, on the configured duration or when its
// context is cancelled, then finalizes the log into the output path.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"

	"arps/internal/artnet"
	"arps/internal/recfile"
	"arps/internal/stats"
	"arps/internal/universe"
)

// Defaults applied to zero Config fields
const (
	DefaultTimeout      = 5 * time.Second
	DefaultMinLength    = 10 * time.Second
	DefaultPollInterval = 200 * time.Millisecond
	DefaultQueueSize    = 4096
	// MaxDuration bounds an unlimited recording
	MaxDuration = 24 * time.Hour
)

var (
	// ErrTooShort is returned when a recording was discarded for being
	// shorter than the minimum length
	ErrTooShort = errors.New("recording too short")
	// ErrLocked is returned when another recording holds the output path
	ErrLocked = errors.New("output is locked by another recording")
	// ErrNoUniverses is returned by New for an empty universe list
	ErrNoUniverses = errors.New("no universes to record")
)

// Source delivers frames for registered universes. *artnet.Server implements it.
type Source interface {
	RegisterMultiple(universes []int, h artnet.Handler) []int
	Delete(id int) bool
}

// State of a recording session
type State int

const (
	StateIdle State = iota
	StateRecording
	StateFinalizing
	StateSaved
	StateDiscarded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateFinalizing:
		return "finalizing"
	case StateSaved:
		return "saved"
	case StateDiscarded:
		return "discarded"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// StopReason tells why recording ended
type StopReason int

const (
	StopNone StopReason = iota
	StopTimeout
	StopCancelled
	StopDuration
)

func (r StopReason) String() string {
	switch r {
	case StopNone:
		return "none"
	case StopTimeout:
		return "timeout"
	case StopCancelled:
		return "cancelled"
	case StopDuration:
		return "duration elapsed"
	}
	return fmt.Sprintf("StopReason(%d)", int(r))
}

// Config configures a Recorder
type Config struct {
	// Universes in the order they are written to the footer
	Universes []int
	// Duration stops the recording once elapsed; zero means MaxDuration
	Duration time.Duration
	// Output is the final file path; the extension does not select
	// compression, Compress does
	Output   string
	Compress bool
	// TempDir holds the log while recording; empty means os.TempDir()
	TempDir string

	Timeout      time.Duration
	MinLength    time.Duration
	PollInterval time.Duration
	QueueSize    int

	// Debug logs every Nth written frame; zero disables sampling
	Debug  int
	Logger zerolog.Logger

	// Optional live state fed from the receive callback
	Stats *stats.Tracker
	Live  *universe.Manager
}

// Progress is a point-in-time view of a session
type Progress struct {
	State   State
	Elapsed time.Duration
	// Idle is the time since the last received frame
	Idle     time.Duration
	Received int64
	Written  int64
	Dropped  int64
}

// Result is the outcome of Run
type Result struct {
	Path      string
	Saved     bool
	Reason    StopReason
	Duration  time.Duration
	Frames    int64
	Dropped   int64
	// Universes holds the receive statistics when Config.Stats is set
	Universes []stats.Summary
}

type queued struct {
	at       time.Time
	universe int
	payload  []byte
}

// Recorder records one session. It is not reusable.
type Recorder struct {
	src Source
	cfg Config
	log zerolog.Logger

	queue chan queued

	mu        sync.Mutex
	state     State
	stopped   bool
	start     time.Time
	lastFrame time.Time

	received atomic.Int64
	written  atomic.Int64
	dropped  atomic.Int64
}

// New validates cfg and applies defaults
func New(src Source, cfg Config) (*Recorder, error) {
	if len(cfg.Universes) == 0 {
		return nil, ErrNoUniverses
	}
	for _, u := range cfg.Universes {
		if u < 0 || u > artnet.MaxSimplifiedUniverse {
			return nil, fmt.Errorf("universe %d out of range", u)
		}
	}
	if cfg.Output == "" {
		return nil, errors.New("no output path")
	}
	if cfg.Duration <= 0 || cfg.Duration > MaxDuration {
		cfg.Duration = MaxDuration
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MinLength <= 0 {
		cfg.MinLength = DefaultMinLength
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}

	return &Recorder{
		src:   src,
		cfg:   cfg,
		log:   cfg.Logger.With().Str("component", "recorder").Logger(),
		queue: make(chan queued, cfg.QueueSize),
	}, nil
}

// Progress returns the current session state
func (r *Recorder) Progress() Progress {
	r.mu.Lock()
	p := Progress{State: r.state}
	if !r.start.IsZero() {
		now := time.Now()
		p.Elapsed = now.Sub(r.start)
		p.Idle = now.Sub(r.lastFrame)
	}
	r.mu.Unlock()

	p.Received = r.received.Load()
	p.Written = r.written.Load()
	p.Dropped = r.dropped.Load()
	return p
}

func (r *Recorder) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// handle runs on the server's receive goroutine and must not block
func (r *Recorder) handle(f artnet.Frame) {
	at := f.ReceivedAt
	if at.IsZero() {
		at = time.Now()
	}

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.lastFrame = at
	select {
	case r.queue <- queued{at: at, universe: f.Universe, payload: f.Payload}:
		r.received.Add(1)
	default:
		if r.dropped.Add(1) == 1 {
			r.log.Warn().Int("capacity", cap(r.queue)).Msg("write queue full, dropping frames")
		}
	}
	r.mu.Unlock()

	source := ""
	if f.Source != nil {
		source = f.Source.String()
	}
	if r.cfg.Stats != nil {
		r.cfg.Stats.RecordPacket(f.Universe, source, f.Sequence)
	}
	if r.cfg.Live != nil {
		r.cfg.Live.GetOrCreate(f.Universe).Update(f.Payload, source, f.Sequence)
	}
}

// writeLoop drains the queue into w until the queue is closed
func (r *Recorder) writeLoop(w *recfile.Writer, start time.Time, done chan<- error) {
	var firstErr error
	prev := start
	n := 0

	for item := range r.queue {
		delay := item.at.Sub(prev)
		if delay < 0 {
			delay = 0
		}
		prev = item.at

		err := w.WriteFrame(recfile.Frame{Delay: delay, Universe: item.universe, Payload: item.payload})
		if err != nil {
			if firstErr == nil {
				firstErr = err
				r.log.Error().Err(err).Msg("writing frame")
			}
			continue
		}
		r.written.Add(1)

		if r.cfg.Debug > 0 {
			n++
			if n == r.cfg.Debug {
				n = 0
				r.log.Debug().
					Int("universe", item.universe).
					Int("size", len(item.payload)).
					Float64("delay_ms", float64(delay)/float64(time.Millisecond)).
					Msg("frame")
			}
		}
	}
	done <- firstErr
}

// Run records until a stop condition and finalizes the output. A discarded
// recording returns ErrTooShort together with a Result whose Saved is false.
// Cancelling ctx is a normal stop, not an error.
func (r *Recorder) Run(ctx context.Context) (Result, error) {
	res := Result{Path: r.cfg.Output}

	if err := os.MkdirAll(filepath.Dir(r.cfg.Output), 0o755); err != nil {
		return res, fmt.Errorf("create output directory: %w", err)
	}

	lock := flock.New(r.cfg.Output + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return res, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return res, fmt.Errorf("%w: %s", ErrLocked, r.cfg.Output)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			r.log.Warn().Err(err).Msg("failed to release output lock")
		}
		os.Remove(lock.Path())
	}()

	tmp, err := os.CreateTemp(r.cfg.TempDir, recfile.FilePrefix+"*.txt")
	if err != nil {
		return res, fmt.Errorf("create temp log: %w", err)
	}
	tmpPath := tmp.Name()
	w := recfile.NewWriter(tmp)

	start := time.Now()
	r.mu.Lock()
	r.state = StateRecording
	r.start = start
	r.lastFrame = start
	r.mu.Unlock()

	writeDone := make(chan error, 1)
	go r.writeLoop(w, start, writeDone)

	ids := r.src.RegisterMultiple(r.cfg.Universes, r.handle)
	r.log.Info().
		Ints("universes", r.cfg.Universes).
		Dur("duration", r.cfg.Duration).
		Str("output", r.cfg.Output).
		Msg("recording started")

	res.Reason = r.supervise(ctx, start)

	for _, id := range ids {
		r.src.Delete(id)
	}
	r.mu.Lock()
	r.stopped = true
	r.state = StateFinalizing
	r.mu.Unlock()
	close(r.queue)
	writeErr := <-writeDone

	res.Duration = time.Since(start)
	res.Frames = r.written.Load()
	res.Dropped = r.dropped.Load()

	r.log.Info().
		Stringer("reason", res.Reason).
		Dur("elapsed", res.Duration).
		Int64("frames", res.Frames).
		Int64("dropped", res.Dropped).
		Msg("recording stopped")

	if r.cfg.Stats != nil {
		res.Universes = r.cfg.Stats.Snapshot()
		for _, u := range res.Universes {
			r.log.Info().
				Int("universe", u.UniverseID).
				Uint64("packets", u.PacketCount).
				Uint64("lost", u.LostPackets).
				Float64("loss_pct", u.Loss).
				Msg("universe summary")
		}
	}

	if res.Duration < r.cfg.MinLength {
		tmp.Close()
		os.Remove(tmpPath)
		r.setState(StateDiscarded)
		r.log.Warn().Dur("min_length", r.cfg.MinLength).Msg("recording too short, not saving")
		return res, ErrTooShort
	}

	if err := r.finalize(w, tmp, tmpPath, res.Duration); err != nil {
		os.Remove(tmpPath)
		r.setState(StateDiscarded)
		return res, err
	}
	if writeErr != nil {
		r.log.Warn().Err(writeErr).Msg("recording saved with write errors")
	}

	res.Saved = true
	r.setState(StateSaved)
	r.log.Info().Str("path", r.cfg.Output).Msg("recording saved")
	return res, nil
}

// supervise polls the stop conditions
func (r *Recorder) supervise(ctx context.Context, start time.Time) StopReason {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return StopCancelled
		case now := <-ticker.C:
			if now.Sub(start) >= r.cfg.Duration {
				return StopDuration
			}
			r.mu.Lock()
			idle := now.Sub(r.lastFrame)
			r.mu.Unlock()
			if idle > r.cfg.Timeout {
				r.log.Warn().Dur("timeout", r.cfg.Timeout).Msg("no data received, stopping")
				return StopTimeout
			}
		}
	}
}

// finalize appends the footer and moves the log to the output path
func (r *Recorder) finalize(w *recfile.Writer, tmp *os.File, tmpPath string, elapsed time.Duration) error {
	footer := recfile.Footer{Universes: r.cfg.Universes, Duration: elapsed}
	if err := w.WriteFooter(footer); err != nil {
		tmp.Close()
		return fmt.Errorf("write footer: %w", err)
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush temp log: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp log: %w", err)
	}

	if r.cfg.Compress {
		if err := recfile.Compress(tmpPath, r.cfg.Output); err != nil {
			return fmt.Errorf("compress recording: %w", err)
		}
		return os.Remove(tmpPath)
	}
	if err := recfile.Move(tmpPath, r.cfg.Output); err != nil {
		return fmt.Errorf("move recording: %w", err)
	}
	return nil
}
