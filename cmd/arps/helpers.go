package main

import (
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"arps/internal/artnet"
	"arps/internal/tui"
)

// parseUniverses accepts a comma separated list of universes and ranges,
// e.g. "0,1,4-6". Order is kept as given.
func parseUniverses(s string) ([]int, error) {
	s = strings.Trim(s, "\" ")
	if s == "" {
		return nil, fmt.Errorf("no universes given")
	}

	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		lo, hi, isRange := strings.Cut(part, "-")
		first, err := parseUniverse(lo)
		if err != nil {
			return nil, err
		}
		last := first
		if isRange {
			if last, err = parseUniverse(hi); err != nil {
				return nil, err
			}
			if last < first {
				return nil, fmt.Errorf("invalid universe range %q", part)
			}
		}
		for u := first; u <= last; u++ {
			out = append(out, u)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no universes given")
	}
	return out, nil
}

func parseUniverse(s string) (int, error) {
	u, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || u < 0 || u > artnet.MaxSimplifiedUniverse {
		return 0, fmt.Errorf("invalid universe %q", s)
	}
	return u, nil
}

// runProgram runs a progress view while session runs; the view quits once
// session has returned. stop must make session return.
func runProgram(model tea.Model, altScreen bool, stop func(), session func() (string, error)) (string, error) {
	var opts []tea.ProgramOption
	if altScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	p := tea.NewProgram(model, opts...)

	type outcome struct {
		summary string
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		summary, err := session()
		done <- outcome{summary, err}
		p.Send(tui.DoneMsg{Summary: summary, Err: err})
	}()

	if _, err := p.Run(); err != nil {
		stop()
		<-done
		return "", fmt.Errorf("progress view: %w", err)
	}
	o := <-done
	return o.summary, o.err
}
