// Package player replays recording files through an Art-Net sender with the
// recorded inter-frame timing.
package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"arps/internal/artnet"
	"arps/internal/recfile"
)

// DefaultSlack is how far ahead of schedule a frame may be sent without waiting
const DefaultSlack = 500 * time.Microsecond

// DefaultPollInterval is the remaining-time refresh of the supervisor
const DefaultPollInterval = 200 * time.Millisecond

var (
	// ErrEmptyPlaylist is returned when a directory holds no recordings
	ErrEmptyPlaylist = errors.New("no recordings found")
	// ErrUnsupportedPath is returned for a path that is neither a recording nor a directory
	ErrUnsupportedPath = errors.New("not a recording or directory")
)

// Sender transmits frames. *artnet.Sender implements it.
type Sender interface {
	Send(universe int, payload []byte) error
	Close() error
}

// SenderFactory opens a sender for the universes of one file
type SenderFactory func(cfg artnet.SenderConfig) (Sender, error)

func defaultSender(cfg artnet.SenderConfig) (Sender, error) {
	return artnet.NewSender(cfg)
}

// State of the player
type State int

const (
	StateLoaded State = iota
	StatePlaying
	StateCompleted
	StateHalted
)

func (s State) String() string {
	switch s {
	case StateLoaded:
		return "loaded"
	case StatePlaying:
		return "playing"
	case StateCompleted:
		return "completed"
	case StateHalted:
		return "halted"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Config configures a Player
type Config struct {
	// IP is the destination, validated by New
	IP        string
	Port      int
	Broadcast bool
	// Path is a recording file or a directory of recordings
	Path string
	// Loop replays the playlist in shuffled order until cancelled
	Loop bool
	// Debug logs every Nth sent frame; zero disables sampling
	Debug        int
	Slack        time.Duration
	PollInterval time.Duration
	Logger       zerolog.Logger
	// NewSender overrides the Art-Net sender, mainly for tests
	NewSender SenderFactory
}

// Progress is a point-in-time view of playback
type Progress struct {
	State State
	File  string
	// Index is 1-based within the current pass
	Index     int
	Total     int
	Pass      int
	Duration  time.Duration
	Remaining time.Duration
	Sent      int64
}

// Player replays a playlist. Run may be called once.
type Player struct {
	cfg      Config
	log      zerolog.Logger
	playlist []string

	sent atomic.Int64

	// halt is closed by Close, under mu
	halt     chan struct{}
	haltOnce sync.Once

	mu       sync.Mutex
	progress Progress
	started  time.Time
	cancel   context.CancelFunc
	active   Sender
	// worker is only added to under mu while halt is open
	worker sync.WaitGroup
}

// New validates the destination and builds the playlist
func New(cfg Config) (*Player, error) {
	if err := artnet.ValidateIP(cfg.IP); err != nil {
		return nil, fmt.Errorf("%w: %q", err, cfg.IP)
	}
	if cfg.Slack <= 0 {
		cfg.Slack = DefaultSlack
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.NewSender == nil {
		cfg.NewSender = defaultSender
	}

	playlist, err := buildPlaylist(cfg.Path)
	if err != nil {
		return nil, err
	}

	return &Player{
		cfg:      cfg,
		log:      cfg.Logger.With().Str("component", "player").Logger(),
		playlist: playlist,
		halt:     make(chan struct{}),
		progress: Progress{State: StateLoaded, Total: len(playlist)},
	}, nil
}

func buildPlaylist(path string) ([]string, error) {
	if recfile.IsRecording(path) {
		if _, err := os.Stat(path); err != nil {
			return nil, err
		}
		return []string{path}, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPath, path)
	}

	files, err := recfile.Playlist(path)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrEmptyPlaylist, path)
	}
	return files, nil
}

// Playlist returns the files in playback order of the first pass
func (p *Player) Playlist() []string {
	return append([]string(nil), p.playlist...)
}

// Progress returns the current playback state
func (p *Player) Progress() Progress {
	p.mu.Lock()
	defer p.mu.Unlock()

	pr := p.progress
	pr.Sent = p.sent.Load()
	if pr.State == StatePlaying {
		pr.Remaining = pr.Duration - time.Since(p.started)
		if pr.Remaining < 0 {
			pr.Remaining = 0
		}
	}
	return pr
}

func (p *Player) halted() bool {
	select {
	case <-p.halt:
		return true
	default:
		return false
	}
}

func (p *Player) setState(s State) {
	p.mu.Lock()
	p.progress.State = s
	p.mu.Unlock()
}

// Run plays the playlist once, or forever in shuffled passes when Loop is
// set. Cancelling ctx or calling Close halts playback and is not an error.
// A file that fails to load or parse is skipped; the failures are returned
// joined once playback ends.
func (p *Player) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.mu.Lock()
	if p.halted() {
		p.progress.State = StateHalted
		p.mu.Unlock()
		return nil
	}
	p.cancel = cancel
	p.mu.Unlock()

	var errs []error
	playlist := p.Playlist()

	for pass := 1; ; pass++ {
		failed := 0
		for i, path := range playlist {
			if ctx.Err() != nil || p.halted() {
				p.setState(StateHalted)
				return errors.Join(errs...)
			}

			p.mu.Lock()
			p.progress.Index = i + 1
			p.progress.Pass = pass
			p.mu.Unlock()

			p.log.Info().
				Str("file", filepath.Base(path)).
				Int("index", i+1).
				Int("total", len(playlist)).
				Msg("replaying")

			if err := p.PlayFile(ctx, path); err != nil {
				failed++
				errs = append(errs, err)
				p.log.Error().Err(err).Str("file", path).Msg("skipping recording")
			}
		}

		if ctx.Err() != nil || p.halted() {
			p.setState(StateHalted)
			return errors.Join(errs...)
		}
		if !p.cfg.Loop {
			break
		}
		if failed == len(playlist) {
			p.log.Error().Msg("every recording failed, stopping loop")
			break
		}

		rand.Shuffle(len(playlist), func(i, j int) {
			playlist[i], playlist[j] = playlist[j], playlist[i]
		})
		p.log.Info().Msg("shuffled playlist, repeating")
	}

	p.setState(StateCompleted)
	return errors.Join(errs...)
}

// PlayFile replays one recording. The worker goroutine sends the frames
// while the calling goroutine tracks the remaining time.
func (p *Player) PlayFile(ctx context.Context, path string) error {
	rec, err := recfile.Load(path)
	if err != nil {
		return err
	}
	defer rec.Close()

	r, err := rec.Open()
	if err != nil {
		return err
	}
	defer r.Close()

	// the sender is opened under mu so Close either sees it or stops it opening
	p.mu.Lock()
	if p.halted() {
		p.mu.Unlock()
		return nil
	}
	sender, err := p.cfg.NewSender(artnet.SenderConfig{
		IP:        p.cfg.IP,
		Port:      p.cfg.Port,
		Universes: rec.Footer.Universes,
		Broadcast: p.cfg.Broadcast,
		Logger:    p.log,
	})
	if err != nil {
		p.mu.Unlock()
		return err
	}
	p.active = sender
	p.worker.Add(1)
	p.started = time.Now()
	p.progress.File = path
	p.progress.Duration = rec.Footer.Duration
	p.progress.State = StatePlaying
	p.mu.Unlock()
	defer p.release(sender)

	done := make(chan error, 1)
	go func() {
		defer p.worker.Done()
		done <- p.play(ctx, r, sender)
	}()

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case err := <-done:
			if err != nil {
				return fmt.Errorf("%s: %w", filepath.Base(path), err)
			}
			return nil
		case <-ticker.C:
			pr := p.Progress()
			p.log.Trace().Dur("remaining", pr.Remaining).Int64("sent", pr.Sent).Msg("progress")
		}
	}
}

// release closes sender unless Close already took it
func (p *Player) release(sender Sender) {
	p.mu.Lock()
	owned := p.active == sender
	if owned {
		p.active = nil
	}
	p.mu.Unlock()

	if owned {
		if err := sender.Close(); err != nil {
			p.log.Warn().Err(err).Msg("close sender")
		}
	}
}

// play sends frames until the footer, a format error or a halt. A frame due
// more than Slack in the future is waited for; anything later is sent at once.
func (p *Player) play(ctx context.Context, r *recfile.Reader, sender Sender) error {
	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	last := time.Now()
	n := 0

	for {
		if p.halted() || ctx.Err() != nil {
			return nil
		}

		f, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		timeLeft := time.Since(last) - f.Delay
		if timeLeft < -p.cfg.Slack {
			timer.Reset(-timeLeft)
			select {
			case <-ctx.Done():
				return nil
			case <-p.halt:
				return nil
			case <-timer.C:
			}
		}

		if err := sender.Send(f.Universe, f.Payload); err != nil {
			p.log.Warn().Err(err).Int("universe", f.Universe).Msg("frame not sent")
		} else {
			p.sent.Add(1)
		}
		last = time.Now()

		if p.cfg.Debug > 0 {
			n++
			if n == p.cfg.Debug {
				n = 0
				p.log.Debug().
					Int("universe", f.Universe).
					Float64("timing_ms", float64(timeLeft)/float64(time.Millisecond)).
					Msg("frame")
			}
		}
	}
}

// Close halts playback, waits for the worker and closes the active sender.
// It is safe to call from any goroutine and more than once. No frame is sent
// once Close has returned.
func (p *Player) Close() error {
	p.mu.Lock()
	p.haltOnce.Do(func() { close(p.halt) })
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	p.worker.Wait()

	p.mu.Lock()
	sender := p.active
	p.active = nil
	p.mu.Unlock()
	if sender != nil {
		return sender.Close()
	}
	return nil
}

// Info describes a recording without replaying it
type Info struct {
	Path   string
	Footer recfile.Footer
	Frames int
	Bytes  int64
}

// Inspect reads the footer and counts the frames of a recording
func Inspect(path string) (Info, error) {
	info := Info{Path: path}

	st, err := os.Stat(path)
	if err != nil {
		return info, err
	}
	info.Bytes = st.Size()

	rec, err := recfile.Load(path)
	if err != nil {
		return info, err
	}
	defer rec.Close()
	info.Footer = rec.Footer

	r, err := rec.Open()
	if err != nil {
		return info, err
	}
	defer r.Close()

	for {
		_, err := r.Next()
		if errors.Is(err, io.EOF) {
			return info, nil
		}
		if err != nil {
			return info, err
		}
		info.Frames++
	}
}
