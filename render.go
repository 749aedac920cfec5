package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"padkit/seq"
)

// renderState prints the pad/step grid. Pads without a sample are skipped.
func renderState(s *session, w io.Writer) {
	s.mu.Lock()
	pads := s.pads
	length := s.pattern.length
	rows := make([][]Step, len(pads))
	for i := range pads {
		rows[i] = append([]Step(nil), s.pattern.steps[i]...)
	}
	s.mu.Unlock()

	playhead := -1
	if s.clock.State() == seq.StatePlaying {
		playhead = s.clock.CurrentStep()
	}

	var maxNameLen int
	names := make([]string, len(pads))
	for i, p := range pads {
		if smp, ok := s.store.Get(p.sampleID); ok {
			names[i] = displayName(smp.Name())
		}
		if len(names[i]) > maxNameLen {
			maxNameLen = len(names[i])
		}
	}
	maxNameLen += 1

	for i := range pads {
		if names[i] == "" {
			continue
		}
		speaker := "🔈"
		if v, err := s.engine.Get(fmt.Sprintf("track.%d.mute", i)); err == nil && v.(bool) {
			speaker = "🔇"
		}

		var steps string
		for _, st := range rows[i] {
			step := "⬜️"
			if st.Active {
				step = "⬛️"
			}
			steps += step + "  "
		}

		id := colorize(padLabel(i), colorGreen)
		fmt.Fprintf(w, "%s %s %s %s\n", id, formatSampleName(names[i], maxNameLen), speaker, steps)
	}

	const spacePerStep = 4
	var numbers string
	for step := 1; step <= length; step++ {
		mark := strconv.Itoa(step)
		if step-1 == playhead {
			mark = "▶"
		}
		space := spacePerStep - 2
		if step < 9 {
			space++
		}
		numbers += mark + strings.Repeat(" ", space)
	}
	numbers = colorize(numbers, colorMagenta)
	fmt.Fprintf(w, strings.Repeat(" ", maxNameLen)+"       "+numbers+"\n")
}

func padLabel(i int) string {
	return fmt.Sprintf("%2d", i+1)
}

func displayName(file string) string {
	file = filepath.Base(file)
	return file[:len(file)-len(filepath.Ext(file))]
}

func formatSampleName(name string, max int) string {
	if len(name) > max {
		name = name[:max-1] + "…"
	}
	if len(name) < max {
		name += strings.Repeat(" ", max-len(name))
	}
	return colorize(name, colorBlue)
}

const (
	colorBlack = iota + 30
	colorRed
	colorGreen
	colorYellow
	colorBlue
	colorMagenta
)

func colorize(text string, color int) string {
	return fmt.Sprintf("\033[%dm%s\033[0m", color, text)
}
