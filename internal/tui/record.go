package tui

import (
	"fmt"
	"strings"

	"arps/internal/logging"
	"arps/internal/recorder"
	"arps/internal/stats"
	"arps/internal/universe"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

// RecordModel shows a running recording
type RecordModel struct {
	progress func() recorder.Progress
	stop     func()
	output   string
	log      *logging.Tail

	grid   grid
	status recorder.Progress
	done   *DoneMsg
	width  int
	height int
}

// NewRecordModel builds the recording view. progress is polled every tick,
// stop is called once when the user quits.
func NewRecordModel(progress func() recorder.Progress, stop func(), output string,
	um *universe.Manager, st *stats.Tracker, tail *logging.Tail) RecordModel {
	return RecordModel{
		progress: progress,
		stop:     stop,
		output:   output,
		log:      tail,
		grid:     newGrid(um, st),
	}
}

func (m RecordModel) Init() tea.Cmd {
	return tickCmd()
}

func (m RecordModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			if m.stop != nil {
				m.stop()
				m.stop = nil
			}
			return m, nil
		}
		m.grid.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.grid.resize(msg.Width)

	case TickMsg:
		m.status = m.progress()
		m.grid.refresh()
		return m, tickCmd()

	case DoneMsg:
		m.done = &msg
		return m, tea.Quit
	}

	return m, nil
}

func (m RecordModel) View() string {
	if m.done != nil {
		return m.doneView()
	}
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Art-Net Recorder") + "\n\n")

	state := okStyle.Render(m.status.State.String())
	if m.stop == nil {
		state = warnStyle.Render("stopping")
	}
	fmt.Fprintf(&b, "%s  %s | frames %d | idle %s",
		state, formatDuration(m.status.Elapsed), m.status.Written, formatDuration(m.status.Idle))
	if m.status.Dropped > 0 {
		b.WriteString(" | " + failStyle.Render(fmt.Sprintf("dropped %d", m.status.Dropped)))
	}
	b.WriteString("\n" + helpStyle.Render("Output: "+m.output) + "\n\n")

	// Reserve space for: title(2) + status(3) + tabs(3) + stats(2) + log + help(2)
	b.WriteString(m.grid.view(m.height-12-logLines) + "\n")

	if l := renderLog(m.log, m.width); l != "" {
		b.WriteString("\n" + l + "\n")
	}
	b.WriteString("\n" + helpStyle.Render("Tab: switch universe | ↑↓: scroll | r: reset stats | q: stop and save"))
	return b.String()
}

func (m RecordModel) doneView() string {
	if m.done.Err != nil {
		return failStyle.Render(m.done.Err.Error()) + "\n"
	}
	return okStyle.Render(m.done.Summary) + "\n"
}
