package tui

import (
	"fmt"
	"path/filepath"
	"strings"

	"arps/internal/logging"
	"arps/internal/player"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

// PlayModel shows playback progress
type PlayModel struct {
	progress func() player.Progress
	stop     func()
	target   string
	log      *logging.Tail

	status player.Progress
	done   *DoneMsg
	width  int
}

// NewPlayModel builds the playback view
func NewPlayModel(progress func() player.Progress, stop func(), target string, tail *logging.Tail) PlayModel {
	return PlayModel{
		progress: progress,
		stop:     stop,
		target:   target,
		log:      tail,
	}
}

func (m PlayModel) Init() tea.Cmd {
	return tickCmd()
}

func (m PlayModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) && m.stop != nil {
			m.stop()
			m.stop = nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case TickMsg:
		m.status = m.progress()
		return m, tickCmd()

	case DoneMsg:
		m.done = &msg
		return m, tea.Quit
	}

	return m, nil
}

func (m PlayModel) View() string {
	if m.done != nil {
		if m.done.Err != nil {
			return failStyle.Render(m.done.Err.Error()) + "\n"
		}
		return okStyle.Render(m.done.Summary) + "\n"
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Art-Net Playback") + "\n\n")
	b.WriteString(helpStyle.Render("Target: "+m.target) + "\n\n")

	s := m.status
	if s.File == "" {
		b.WriteString(helpStyle.Render("Loading...") + "\n")
	} else {
		header := fmt.Sprintf("Replaying %d/%d  %s", s.Index, s.Total, filepath.Base(s.File))
		if s.Pass > 1 {
			header += fmt.Sprintf("  (pass %d)", s.Pass)
		}
		b.WriteString(statsStyle.Render(header) + "\n")

		var fraction float64
		if s.Duration > 0 {
			fraction = 1 - float64(s.Remaining)/float64(s.Duration)
		}
		barWidth := max(10, min(60, m.width-20))
		remaining := formatDuration(s.Remaining)
		if s.Remaining <= 0 {
			remaining = "Finished!"
		}
		fmt.Fprintf(&b, "%s %s\n", progressBar(fraction, barWidth), remaining)
		b.WriteString(helpStyle.Render(fmt.Sprintf("frames sent: %d", s.Sent)) + "\n")
	}

	if m.stop == nil {
		b.WriteString(warnStyle.Render("stopping...") + "\n")
	}
	if l := renderLog(m.log, m.width); l != "" {
		b.WriteString("\n" + l + "\n")
	}
	b.WriteString("\n" + helpStyle.Render("q: stop playback"))
	return b.String()
}
