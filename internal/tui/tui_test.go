package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	"arps/internal/player"
	"arps/internal/recorder"
	"arps/internal/stats"
	"arps/internal/universe"

	tea "github.com/charmbracelet/bubbletea"
)

func TestRecordModel_QuitStopsOnce(t *testing.T) {
	stops := 0
	m := NewRecordModel(func() recorder.Progress { return recorder.Progress{} }, func() { stops++ },
		"out.artrec", universe.NewManager(), stats.NewTracker(), nil)

	var model tea.Model = m
	model, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	model, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})

	if stops != 1 {
		t.Errorf("stop called %d times, want 1", stops)
	}
}

func TestRecordModel_ShowsUniverses(t *testing.T) {
	um := universe.NewManager()
	um.GetOrCreate(7).Update([]byte{10, 20}, "10.0.0.1:6454", 1)

	progress := recorder.Progress{State: recorder.StateRecording, Elapsed: 2 * time.Second, Written: 42}
	m := NewRecordModel(func() recorder.Progress { return progress }, func() {}, "out.artrec", um, stats.NewTracker(), nil)

	var model tea.Model = m
	model, _ = model.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	model, _ = model.Update(TickMsg(time.Now()))

	view := model.View()
	for _, want := range []string{"Universe 7", "frames 42", "2.0s", "Active: 2/512"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q", want)
		}
	}
}

func TestRecordModel_IdleUniverseAndSources(t *testing.T) {
	um := universe.NewManager()
	um.GetOrCreate(7).Update([]byte{10}, "10.0.0.1:6454", 1)
	um.GetOrCreate(8)

	st := stats.NewTracker()
	st.RecordPacket(7, "10.0.0.1:6454", 1)
	st.RecordPacket(7, "10.0.0.1:6454", 5)
	st.RecordPacket(7, "10.0.0.2:6454", 0)

	m := NewRecordModel(func() recorder.Progress { return recorder.Progress{} }, func() {}, "out.artrec", um, st, nil)

	var model tea.Model = m
	model, _ = model.Update(tea.WindowSizeMsg{Width: 160, Height: 40})
	model, _ = model.Update(TickMsg(time.Now()))

	view := model.View()
	for _, want := range []string{"Universe 8 (idle)", "1m", "Sources: 10.0.0.1:6454", "10.0.0.2:6454 0.0%"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q", want)
		}
	}
	if strings.Contains(view, "Universe 7 (idle)") {
		t.Error("universe 7 received data and should not be idle")
	}
}

func TestRecordModel_ResetClearsStats(t *testing.T) {
	um := universe.NewManager()
	um.GetOrCreate(3).Update([]byte{1}, "10.0.0.1:6454", 1)

	st := stats.NewTracker()
	st.RecordPacket(3, "10.0.0.1:6454", 1)
	st.RecordPacket(3, "10.0.0.1:6454", 9)
	if st.GetLossPercentage(3) == 0 {
		t.Fatal("expected loss before reset")
	}

	m := NewRecordModel(func() recorder.Progress { return recorder.Progress{} }, func() {}, "out.artrec", um, st, nil)

	var model tea.Model = m
	model, _ = model.Update(TickMsg(time.Now()))
	model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})

	if loss := st.GetLossPercentage(3); loss != 0 {
		t.Errorf("GetLossPercentage(3) = %.1f after reset, want 0", loss)
	}
}

func TestRecordModel_DoneQuits(t *testing.T) {
	m := NewRecordModel(func() recorder.Progress { return recorder.Progress{} }, nil, "x", universe.NewManager(), nil, nil)

	model, cmd := m.Update(DoneMsg{Err: errors.New("recording too short")})
	if cmd == nil {
		t.Fatal("DoneMsg should return a quit command")
	}
	if got := model.View(); !strings.Contains(got, "recording too short") {
		t.Errorf("View() = %q, want the error", got)
	}
}

func TestPlayModel_View(t *testing.T) {
	progress := player.Progress{
		State:     player.StatePlaying,
		File:      "/shows/a.artrec",
		Index:     1,
		Total:     3,
		Pass:      2,
		Duration:  10 * time.Second,
		Remaining: 4 * time.Second,
		Sent:      100,
	}
	m := NewPlayModel(func() player.Progress { return progress }, func() {}, "10.0.0.5:6454", nil)

	var model tea.Model = m
	model, _ = model.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	model, _ = model.Update(TickMsg(time.Now()))

	view := model.View()
	for _, want := range []string{"Replaying 1/3", "a.artrec", "pass 2", "4.0s", "frames sent: 100"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q", want)
		}
	}
}

func TestProgressBar(t *testing.T) {
	tests := []struct {
		fraction float64
		filled   int
	}{
		{0, 0},
		{0.5, 5},
		{1, 10},
		{2, 10},
		{-1, 0},
	}

	for _, tt := range tests {
		bar := progressBar(tt.fraction, 10)
		if got := strings.Count(bar, "█"); got != tt.filled {
			t.Errorf("progressBar(%v) filled = %d, want %d", tt.fraction, got, tt.filled)
		}
		if got := strings.Count(bar, "█") + strings.Count(bar, "░"); got != 10 {
			t.Errorf("progressBar(%v) width = %d, want 10", tt.fraction, got)
		}
	}
}
