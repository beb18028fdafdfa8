package player

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arps/internal/artnet"
	"arps/internal/recfile"
)

type sentFrame struct {
	at       time.Time
	universe int
	payload  []byte
}

type fakeSender struct {
	mu        sync.Mutex
	universes map[int]bool
	frames    []sentFrame
	closed    bool
}

func (f *fakeSender) Send(universe int, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.universes[universe] {
		return artnet.ErrUnknownUniverse
	}
	f.frames = append(f.frames, sentFrame{at: time.Now(), universe: universe, payload: payload})
	return nil
}

func (f *fakeSender) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSender) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeSender) sent() []sentFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentFrame(nil), f.frames...)
}

// factory records every sender it opens
type factory struct {
	mu      sync.Mutex
	senders []*fakeSender
	configs []artnet.SenderConfig
}

func (fa *factory) open(cfg artnet.SenderConfig) (Sender, error) {
	fa.mu.Lock()
	defer fa.mu.Unlock()

	s := &fakeSender{universes: make(map[int]bool)}
	for _, u := range cfg.Universes {
		s.universes[u] = true
	}
	fa.senders = append(fa.senders, s)
	fa.configs = append(fa.configs, cfg)
	return s, nil
}

func (fa *factory) all() []*fakeSender {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	return append([]*fakeSender(nil), fa.senders...)
}

func writeRecording(t *testing.T, path string, frames []recfile.Frame, footer recfile.Footer) {
	t.Helper()

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	require.NoError(t, err)
	w := recfile.NewWriter(f)
	for _, fr := range frames {
		require.NoError(t, w.WriteFrame(fr))
	}
	require.NoError(t, w.WriteFooter(footer))
	require.NoError(t, w.Flush())
	require.NoError(t, f.Close())

	if recfile.IsCompressed(path) {
		require.NoError(t, recfile.Compress(tmp, path))
		require.NoError(t, os.Remove(tmp))
	} else {
		require.NoError(t, recfile.Move(tmp, path))
	}
}

var timedFrames = []recfile.Frame{
	{Delay: 0, Universe: 0, Payload: []byte{1}},
	{Delay: 100 * time.Millisecond, Universe: 0, Payload: []byte{2}},
	{Delay: 50 * time.Millisecond, Universe: 0, Payload: []byte{3}},
	{Delay: 200 * time.Millisecond, Universe: 0, Payload: []byte{4}},
}

func TestNew_InvalidAddress(t *testing.T) {
	_, err := New(Config{IP: "300.1.1.1", Path: t.TempDir()})
	assert.ErrorIs(t, err, artnet.ErrInvalidAddress)
}

func TestNew_Playlist(t *testing.T) {
	dir := t.TempDir()

	_, err := New(Config{IP: "127.0.0.1", Path: dir})
	assert.ErrorIs(t, err, ErrEmptyPlaylist)

	txt := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(txt, nil, 0o644))
	_, err = New(Config{IP: "127.0.0.1", Path: txt})
	assert.ErrorIs(t, err, ErrUnsupportedPath)

	_, err = New(Config{IP: "127.0.0.1", Path: filepath.Join(dir, "missing.rawrec")})
	assert.True(t, errors.Is(err, os.ErrNotExist))

	for _, name := range []string{"b.rawrec", "a.artrec"} {
		writeRecording(t, filepath.Join(dir, name), timedFrames[:1], recfile.Footer{Universes: []int{0}, Duration: time.Second})
	}
	p, err := New(Config{IP: "127.0.0.1", Path: dir})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.artrec"), filepath.Join(dir, "b.rawrec")}, p.Playlist())
	assert.Equal(t, StateLoaded, p.Progress().State)
	assert.Equal(t, 2, p.Progress().Total)
}

func TestPlayFile_Timing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "timed.rawrec")
	writeRecording(t, path, timedFrames, recfile.Footer{Universes: []int{0}, Duration: 350 * time.Millisecond})

	fa := &factory{}
	p, err := New(Config{IP: "127.0.0.1", Path: path, NewSender: fa.open, PollInterval: 10 * time.Millisecond})
	require.NoError(t, err)

	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, StateCompleted, p.Progress().State)

	senders := fa.all()
	require.Len(t, senders, 1)
	assert.True(t, senders[0].isClosed())
	assert.Equal(t, []int{0}, fa.configs[0].Universes)

	got := senders[0].sent()
	require.Len(t, got, len(timedFrames))
	for i := 1; i < len(got); i++ {
		gap := got[i].at.Sub(got[i-1].at)
		assert.InDelta(t, timedFrames[i].Delay.Milliseconds(), gap.Milliseconds(), 5,
			"gap %d = %v, want %v", i, gap, timedFrames[i].Delay)
	}
	assert.Equal(t, []byte{4}, got[3].payload)
	assert.Equal(t, int64(4), p.Progress().Sent)
}

func TestPlayFile_OverLoopback(t *testing.T) {
	srv, err := artnet.NewServer(artnet.ServerConfig{Bind: "127.0.0.1", Port: 0})
	require.NoError(t, err)
	defer srv.Close()

	var mu sync.Mutex
	var arrivals []time.Time
	var payloads [][]byte
	srv.Register(artnet.Simplified(0), func(f artnet.Frame) {
		mu.Lock()
		arrivals = append(arrivals, f.ReceivedAt)
		payloads = append(payloads, f.Payload)
		mu.Unlock()
	})

	path := filepath.Join(t.TempDir(), "loop.artrec")
	writeRecording(t, path, timedFrames, recfile.Footer{Universes: []int{0}, Duration: 350 * time.Millisecond})

	p, err := New(Config{
		IP:   "127.0.0.1",
		Port: srv.LocalAddr().(*net.UDPAddr).Port,
		Path: path,
	})
	require.NoError(t, err)
	require.NoError(t, p.Run(context.Background()))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(arrivals) == len(timedFrames)
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(arrivals); i++ {
		gap := arrivals[i].Sub(arrivals[i-1])
		assert.InDelta(t, timedFrames[i].Delay.Milliseconds(), gap.Milliseconds(), 5)
		assert.Equal(t, timedFrames[i].Payload, payloads[i])
	}
}

func TestPlayFile_UnknownUniverseContinues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mixed.rawrec")
	frames := []recfile.Frame{
		{Universe: 0, Payload: []byte{1}},
		{Universe: 9, Payload: []byte{2}},
		{Universe: 0, Payload: []byte{3}},
	}
	writeRecording(t, path, frames, recfile.Footer{Universes: []int{0}, Duration: time.Millisecond})

	fa := &factory{}
	p, err := New(Config{IP: "127.0.0.1", Path: path, NewSender: fa.open})
	require.NoError(t, err)
	require.NoError(t, p.Run(context.Background()))

	got := fa.all()[0].sent()
	require.Len(t, got, 2)
	assert.Equal(t, []byte{3}, got[1].payload)
}

func TestRun_SkipsBrokenFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.rawrec"), []byte("1 0 [1]\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.rawrec"), []byte("1 0 [1]\ngarbage\n!0 10\n"), 0o644))
	writeRecording(t, filepath.Join(dir, "c.rawrec"), timedFrames[:2], recfile.Footer{Universes: []int{0}, Duration: 100 * time.Millisecond})

	fa := &factory{}
	p, err := New(Config{IP: "127.0.0.1", Path: dir, NewSender: fa.open})
	require.NoError(t, err)

	err = p.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, recfile.ErrNoFooter)
	var fe *recfile.FormatError
	assert.ErrorAs(t, err, &fe)

	senders := fa.all()
	require.Len(t, senders, 2, "a.rawrec never opens a sender")
	assert.Len(t, senders[1].sent(), 2)
	assert.Equal(t, StateCompleted, p.Progress().State)
}

func TestRun_LoopStopsWhenEverythingFails(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.rawrec"), []byte("no footer\n"), 0o644))

	fa := &factory{}
	p, err := New(Config{IP: "127.0.0.1", Path: dir, Loop: true, NewSender: fa.open})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, recfile.ErrNoFooter)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestRun_LoopUntilCancelled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.rawrec")
	writeRecording(t, path, timedFrames[:2], recfile.Footer{Universes: []int{0}, Duration: 100 * time.Millisecond})

	fa := &factory{}
	p, err := New(Config{IP: "127.0.0.1", Path: path, Loop: true, NewSender: fa.open})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return len(fa.all()) >= 3 }, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("player did not stop")
	}
	assert.Equal(t, StateHalted, p.Progress().State)
	assert.GreaterOrEqual(t, p.Progress().Pass, 3)
}

func TestClose_HaltsWorker(t *testing.T) {
	path := filepath.Join(t.TempDir(), "long.rawrec")
	frames := []recfile.Frame{
		{Universe: 0, Payload: []byte{1}},
		{Delay: 10 * time.Second, Universe: 0, Payload: []byte{2}},
	}
	writeRecording(t, path, frames, recfile.Footer{Universes: []int{0}, Duration: 10 * time.Second})

	fa := &factory{}
	p, err := New(Config{IP: "127.0.0.1", Path: path, NewSender: fa.open})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()

	require.Eventually(t, func() bool { return p.Progress().Sent == 1 }, time.Second, 5*time.Millisecond)
	pr := p.Progress()
	assert.Equal(t, StatePlaying, pr.State)
	assert.Greater(t, pr.Remaining, 9*time.Second)

	closed := make(chan struct{})
	go func() {
		p.Close()
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close did not return")
	}
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}

	assert.Len(t, fa.all()[0].sent(), 1)
	assert.True(t, fa.all()[0].isClosed())
	assert.NoError(t, p.Close())
}

func TestClose_ConcurrentWithRun(t *testing.T) {
	dir := t.TempDir()
	frames := []recfile.Frame{
		{Universe: 0, Payload: []byte{1}},
		{Delay: time.Millisecond, Universe: 0, Payload: []byte{2}},
		{Delay: time.Millisecond, Universe: 0, Payload: []byte{3}},
	}
	for _, name := range []string{"a.artrec", "b.artrec", "c.artrec"} {
		writeRecording(t, filepath.Join(dir, name), frames, recfile.Footer{Universes: []int{0}, Duration: 2 * time.Millisecond})
	}

	total := func(fa *factory) int {
		n := 0
		for _, s := range fa.all() {
			n += len(s.sent())
		}
		return n
	}

	for i := 0; i < 50; i++ {
		fa := &factory{}
		p, err := New(Config{IP: "127.0.0.1", Path: dir, Loop: true, NewSender: fa.open})
		require.NoError(t, err)

		done := make(chan error, 1)
		go func() { done <- p.Run(context.Background()) }()

		time.Sleep(time.Duration(i*20) * time.Microsecond)
		require.NoError(t, p.Close())

		for j, s := range fa.all() {
			assert.True(t, s.isClosed(), "run %d: sender %d left open", i, j)
		}
		after := total(fa)

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatalf("run %d: Run did not return after Close", i)
		}
		assert.Equal(t, after, total(fa), "run %d: frames sent after Close returned", i)
		assert.Equal(t, StateHalted, p.Progress().State)
	}
}

func TestInspect_FooterRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rt.artrec")
	writeRecording(t, path, timedFrames, recfile.Footer{Universes: []int{0, 1, 2}, Duration: 20000 * time.Millisecond})

	info, err := Inspect(path)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, info.Footer.Universes)
	assert.Equal(t, int64(20000), info.Footer.Duration.Milliseconds())
	assert.Equal(t, len(timedFrames), info.Frames)
	assert.Positive(t, info.Bytes)
}
