// Package tui renders live progress for recording and playback sessions
package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"arps/internal/logging"
	"arps/internal/stats"
	"arps/internal/universe"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Colors
var (
	cyanColor = lipgloss.Color("#00FFFF")
	grayColor = lipgloss.Color("#666666")

	whiteColor  = lipgloss.Color("#FFFFFF")
	greenColor  = lipgloss.Color("#66FF66")
	yellowColor = lipgloss.Color("#FFFF00")
	redColor    = lipgloss.Color("#FF6666")
)

// Styles
var (
	activeCardStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(cyanColor).
			Width(4)

	inactiveCardStyle = lipgloss.NewStyle().
				Border(lipgloss.NormalBorder()).
				BorderForeground(grayColor).
				Width(4)

	statsStyle = lipgloss.NewStyle().
			Foreground(whiteColor)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(whiteColor).
			Background(lipgloss.Color("#1a1a2e")).
			Padding(0, 2)

	tabActiveStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(cyanColor).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(cyanColor).
			Padding(0, 1)

	tabInactiveStyle = lipgloss.NewStyle().
				Foreground(grayColor).
				Border(lipgloss.RoundedBorder()).
				BorderForeground(grayColor).
				Padding(0, 1)

	helpStyle = lipgloss.NewStyle().
			Foreground(grayColor)

	okStyle   = lipgloss.NewStyle().Foreground(greenColor)
	warnStyle = lipgloss.NewStyle().Foreground(yellowColor)
	failStyle = lipgloss.NewStyle().Foreground(redColor)
)

// KeyMap defines keybindings
type KeyMap struct {
	Up   key.Binding
	Down key.Binding
	Tab   key.Binding
	Reset key.Binding
	Quit  key.Binding
}

var keys = KeyMap{
	Up:    key.NewBinding(key.WithKeys("up", "k")),
	Down:  key.NewBinding(key.WithKeys("down", "j")),
	Tab:   key.NewBinding(key.WithKeys("tab")),
	Reset: key.NewBinding(key.WithKeys("r")),
	Quit:  key.NewBinding(key.WithKeys("q", "ctrl+c", "esc")),
}

// idleAfter marks a universe tab idle when no data arrived for this long
const idleAfter = 2 * time.Second

// TickMsg is a message for periodic updates
type TickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// DoneMsg ends the program once the session has finished
type DoneMsg struct {
	Summary string
	Err     error
}

const logLines = 5

// renderLog shows the most recent log lines, if a tail is attached
func renderLog(tail *logging.Tail, width int) string {
	if tail == nil {
		return ""
	}
	lines := tail.Lines()
	if len(lines) > logLines {
		lines = lines[len(lines)-logLines:]
	}
	for i, l := range lines {
		if width > 0 && len(l) > width {
			lines[i] = l[:width]
		}
	}
	return helpStyle.Render(strings.Join(lines, "\n"))
}

// formatDuration prints seconds with one decimal, as the progress counters do
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// progressBar draws a fixed-width bar for fraction in [0,1]
func progressBar(fraction float64, width int) string {
	if width < 1 {
		return ""
	}
	fraction = min(1, max(0, fraction))
	filled := int(fraction * float64(width))
	return okStyle.Render(strings.Repeat("█", filled)) +
		helpStyle.Render(strings.Repeat("░", width-filled))
}

// grid shows the per-universe tabs, stats and channel cards of a live session
type grid struct {
	universeManager  *universe.Manager
	statsTracker     *stats.Tracker
	selectedUniverse int
	universeList     []int
	idle             map[int]bool
	scrollOffset     int
	columnsPerRow    int
}

func newGrid(um *universe.Manager, st *stats.Tracker) grid {
	return grid{
		universeManager: um,
		statsTracker:    st,
		columnsPerRow:   16, // Default, will adjust based on terminal width
	}
}

func (g *grid) resize(width int) {
	// Each card is ~6 chars wide (4 + border)
	g.columnsPerRow = max(1, (width-2)/6)
}

func (g *grid) handleKey(msg tea.KeyMsg) {
	switch {
	case key.Matches(msg, keys.Tab):
		// Cycle to next universe
		if len(g.universeList) > 1 {
			for i, id := range g.universeList {
				if id == g.selectedUniverse {
					g.selectedUniverse = g.universeList[(i+1)%len(g.universeList)]
					break
				}
			}
		}
	case key.Matches(msg, keys.Reset):
		if g.statsTracker != nil && len(g.universeList) > 0 {
			g.statsTracker.ResetUniverseStats(g.selectedUniverse)
		}
	case key.Matches(msg, keys.Down):
		g.scrollOffset += g.columnsPerRow
	case key.Matches(msg, keys.Up):
		if g.scrollOffset >= g.columnsPerRow {
			g.scrollOffset -= g.columnsPerRow
		}
	}
}

func (g *grid) refresh() {
	if g.universeManager == nil {
		return
	}
	universes := g.universeManager.GetAll()
	g.universeList = make([]int, len(universes))
	for i, u := range universes {
		g.universeList[i] = u.ID
	}

	g.idle = make(map[int]bool, len(universes))
	for _, id := range g.universeList {
		g.idle[id] = true
	}
	for _, u := range g.universeManager.GetActiveUniverses(idleAfter) {
		delete(g.idle, u.ID)
	}

	// Select first universe if none selected or selected no longer exists
	if len(g.universeList) > 0 {
		found := false
		for _, id := range g.universeList {
			if id == g.selectedUniverse {
				found = true
				break
			}
		}
		if !found {
			g.selectedUniverse = g.universeList[0]
		}
	}
}

func (g grid) view(height int) string {
	if g.universeManager == nil || g.universeManager.Count() == 0 || len(g.universeList) == 0 {
		return helpStyle.Render("Waiting for Art-Net data...")
	}

	tabs := ""
	for _, id := range g.universeList {
		tabText := fmt.Sprintf("Universe %d", id)
		if g.idle[id] {
			tabText += " (idle)"
		}
		if id == g.selectedUniverse {
			tabs += tabActiveStyle.Render(tabText) + " "
		} else {
			tabs += tabInactiveStyle.Render(tabText) + " "
		}
	}

	return tabs + "\n\n" + g.renderStats() + "\n\n" + g.renderChannelGrid(height)
}

func (g grid) renderStats() string {
	u := g.universeManager.Get(g.selectedUniverse)
	if u == nil {
		return ""
	}

	info := u.GetInfo()
	var rate, loss, recent float64
	var sources []stats.Source
	if g.statsTracker != nil {
		rate = g.statsTracker.GetPacketRate(g.selectedUniverse)
		loss = g.statsTracker.GetLossPercentage(g.selectedUniverse)
		recent = g.statsTracker.GetRecentLossPercentage(g.selectedUniverse)
		sources = g.statsTracker.GetSources(g.selectedUniverse)
	}
	activeCount := u.ActiveChannelCount()

	line := fmt.Sprintf(
		"Source: %s | Rate: %.1f pps | Loss: %s (1m %s) | Active: %d/512",
		info.Source,
		rate,
		formatLoss(loss),
		formatLoss(recent),
		activeCount,
	)

	// per-source loss only when more than one sender is seen
	if len(sources) > 1 {
		sort.Slice(sources, func(i, j int) bool { return sources[i].Addr < sources[j].Addr })
		parts := make([]string, len(sources))
		for i, src := range sources {
			parts[i] = fmt.Sprintf("%s %s", src.Addr,
				formatLoss(g.statsTracker.GetSourceLossPercentage(g.selectedUniverse, src.Addr)))
		}
		line += "\n" + warnStyle.Render("Sources: "+strings.Join(parts, ", "))
	}

	return statsStyle.Render(line)
}

func formatLoss(loss float64) string {
	s := fmt.Sprintf("%.1f%%", loss)
	if loss > 1 {
		return failStyle.Render(s)
	} else if loss > 0 {
		return warnStyle.Render(s)
	}
	return s
}

func (g grid) renderChannelGrid(height int) string {
	u := g.universeManager.Get(g.selectedUniverse)
	if u == nil {
		return ""
	}

	channels := u.GetAllChannels()

	var rows []string
	channelsPerRow := g.columnsPerRow
	if channelsPerRow < 1 {
		channelsPerRow = 16
	}

	// Each card row is 4 lines tall (border + 2 content + border)
	rowsPerScreen := max(1, max(4, height)/4)

	startChannel := g.scrollOffset
	if startChannel >= 512 {
		startChannel = 512 - channelsPerRow
	}
	startChannel = max(0, startChannel)

	endChannel := min(512, startChannel+(rowsPerScreen*channelsPerRow))

	for i := startChannel; i < endChannel; i += channelsPerRow {
		var cards []string
		for j := 0; j < channelsPerRow && (i+j) < 512; j++ {
			ch := channels[i+j]
			channelNum := i + j + 1 // 1-based channel number

			var cardStyle lipgloss.Style
			var valueStr string

			if ch.Active {
				cardStyle = activeCardStyle
				valueStr = fmt.Sprintf("%3d", ch.Value)
			} else {
				cardStyle = inactiveCardStyle
				valueStr = " . "
			}

			cardContent := fmt.Sprintf("%3d\n%s", channelNum, valueStr)
			cards = append(cards, cardStyle.Render(cardContent))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cards...))
	}

	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}
