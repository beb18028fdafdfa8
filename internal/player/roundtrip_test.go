package player

import (
	"context"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arps/internal/artnet"
	"arps/internal/recfile"
	"arps/internal/recorder"
)

type arrival struct {
	at      time.Time
	payload []byte
}

func listen(t *testing.T, universe int) (*artnet.Server, func() []arrival) {
	t.Helper()

	srv, err := artnet.NewServer(artnet.ServerConfig{Bind: "127.0.0.1", Port: 0})
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	var mu sync.Mutex
	var got []arrival
	srv.Register(artnet.Simplified(universe), func(f artnet.Frame) {
		mu.Lock()
		got = append(got, arrival{at: f.ReceivedAt, payload: f.Payload})
		mu.Unlock()
	})

	return srv, func() []arrival {
		mu.Lock()
		defer mu.Unlock()
		return append([]arrival(nil), got...)
	}
}

func TestRecordThenReplay_Timing(t *testing.T) {
	gaps := []time.Duration{100 * time.Millisecond, 50 * time.Millisecond, 200 * time.Millisecond}

	// record from a live sender
	in, _ := listen(t, 4)
	path := filepath.Join(t.TempDir(), "show.artrec")
	rec, err := recorder.New(in, recorder.Config{
		Universes:    []int{4},
		Output:       path,
		Compress:     true,
		TempDir:      t.TempDir(),
		Timeout:      5 * time.Second,
		MinLength:    10 * time.Millisecond,
		PollInterval: 5 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		_, err := rec.Run(ctx)
		done <- err
	}()
	require.Eventually(t, func() bool { return in.Count() == 2 }, time.Second, 5*time.Millisecond)

	src, err := artnet.NewSender(artnet.SenderConfig{
		IP:        "127.0.0.1",
		Port:      in.LocalAddr().(*net.UDPAddr).Port,
		Universes: []int{4},
	})
	require.NoError(t, err)
	defer src.Close()

	require.NoError(t, src.Send(4, []byte{0}))
	for i, gap := range gaps {
		time.Sleep(gap)
		require.NoError(t, src.Send(4, []byte{byte(i + 1)}))
	}
	require.Eventually(t, func() bool { return rec.Progress().Written == int64(len(gaps)+1) }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("recorder did not stop")
	}

	loaded, err := recfile.Load(path)
	require.NoError(t, err)
	r, err := loaded.Open()
	require.NoError(t, err)
	var recorded []recfile.Frame
	for {
		f, err := r.Next()
		if err != nil {
			break
		}
		recorded = append(recorded, f)
	}
	r.Close()
	loaded.Close()
	require.Len(t, recorded, len(gaps)+1)
	for i, gap := range gaps {
		assert.InDelta(t, gap.Milliseconds(), recorded[i+1].Delay.Milliseconds(), 5, "recorded gap %d", i)
	}

	// replay to a second listener
	out, arrivals := listen(t, 4)
	p, err := New(Config{
		IP:   "127.0.0.1",
		Port: out.LocalAddr().(*net.UDPAddr).Port,
		Path: path,
	})
	require.NoError(t, err)
	require.NoError(t, p.Run(context.Background()))

	require.Eventually(t, func() bool { return len(arrivals()) == len(gaps)+1 }, time.Second, 5*time.Millisecond)
	got := arrivals()
	for i := 1; i < len(got); i++ {
		gap := got[i].at.Sub(got[i-1].at)
		assert.InDelta(t, recorded[i].Delay.Milliseconds(), gap.Milliseconds(), 5, "replayed gap %d", i)
		assert.InDelta(t, gaps[i-1].Milliseconds(), gap.Milliseconds(), 10, "end to end gap %d", i)
		assert.Equal(t, []byte{byte(i)}, got[i].payload)
	}
}
