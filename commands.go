package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"padkit/audio"
	"padkit/seq"
)

type command struct {
	name    string
	help    string
	run     func(s *session, pads []int, args []string) error
	pads    int // number of pad ids expected; -1 means any number
	minArgs int // min. number of non-pad args expected
}

var commands = []command{
	{name: "start", help: "start [bpm]: start playback", run: start},
	{name: "stop", help: "stop: stop playback and rewind", run: stop},
	{name: "pause", help: "pause: hold the step position", run: pause},
	{name: "resume", help: "resume: continue after pause", run: resume},
	{name: "bpm", help: "bpm <n>: set tempo", run: bpm, minArgs: 1},
	{name: "swing", help: "swing <0-0.75>: set swing amount", run: swingCmd, minArgs: 1},
	{name: "load", help: "load <pad> <file>: load a wav onto a pad", run: load, pads: 1, minArgs: 1},
	{name: "pat", help: "pat <pad> <mask>: set steps from a x... mask", run: pat, pads: 1, minArgs: 1},
	{name: "tog", help: "tog <pad> <step>: toggle one step", run: tog, pads: 1, minArgs: 1},
	{name: "clear", help: "clear <pads...>: clear patterns", run: clear, pads: -1},
	{name: "vel", help: "vel <pad> <step> <0-1>: set step velocity", run: vel, pads: 1, minArgs: 2},
	{name: "prob", help: "prob <pad> <step> <0-1>: set step probability", run: prob, pads: 1, minArgs: 2},
	{name: "rat", help: "rat <pad> <step> <n>: set step ratchet count", run: rat, pads: 1, minArgs: 2},
	{name: "hit", help: "hit <pad> [vel]: trigger a pad now", run: hit, pads: 1},
	{name: "cut", help: "cut [pad]: release all notes, or one pad's", run: cut, pads: -1},
	{name: "gain", help: "gain <pad> <db>: set track volume", run: gain, pads: 1, minArgs: 1},
	{name: "pan", help: "pan <pad> <-1..1>: set track pan", run: pan, pads: 1, minArgs: 1},
	{name: "mute", help: "mute <pads...>: toggle track mutes", run: mute, pads: -1},
	{name: "solo", help: "solo <pads...>: toggle track solos", run: solo, pads: -1},
	{name: "master", help: "master <db>: set master volume", run: master, minArgs: 1},
	{name: "pitch", help: "pitch <pad> <semitones> [cents]", run: pitch, pads: 1, minArgs: 1},
	{name: "group", help: "group <pad> <n>: set mute group, 0 = none", run: group, pads: 1, minArgs: 1},
	{name: "mode", help: "mode <pad> oneshot|loop", run: mode, pads: 1, minArgs: 1},
	{name: "env", help: "env <pad> <a> <d> <s> <r> [exp]: amp envelope (seconds)", run: env, pads: 1, minArgs: 4},
	{name: "filter", help: "filter <pad> lp|hp|bp|notch <cutoff> <res> or filter <pad> off", run: filterCmd, pads: 1, minArgs: 1},
	{name: "fenv", help: "fenv <pad> <a> <d> <s> <r> <octaves>: filter envelope", run: fenv, pads: 1, minArgs: 5},
	{name: "penv", help: "penv <pad> <a> <d> <s> <r> <semitones>: pitch envelope", run: penv, pads: 1, minArgs: 5},
	{name: "lfo", help: "lfo <pad> <slot> <wave> <dest> <rate[b]> <depth> or lfo <pad> <slot> off", run: lfoCmd, pads: 1, minArgs: 2},
	{name: "metro", help: "metro on|off|<db>: metronome", run: metro, minArgs: 1},
	{name: "clock", help: "clock internal|external: select clock source", run: clockCmd, minArgs: 1},
	{name: "stats", help: "stats: timing and render diagnostics", run: stats},
	{name: "show", help: "show: print the pattern grid", run: show},
}

// The help entry is appended in init to avoid an initialization cycle
// between the commands slice and the help function that iterates it.
func init() {
	commands = append(commands, command{name: "help", help: "help: list commands", run: help})
}

func exec(s *session, line string) error {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return nil
	}
	name := parts[0]
	args := parts[1:]

	for _, cmd := range commands {
		if name != cmd.name {
			continue
		}
		pads, err := parsePadIDs(args, cmd.pads)
		if err != nil {
			return fmt.Errorf("%s: %w", cmd.name, err)
		}
		args = args[len(pads):]
		if len(args) < cmd.minArgs {
			return fmt.Errorf("%s: not enough arguments, try: %s", cmd.name, cmd.help)
		}
		if err := cmd.run(s, pads, args); err != nil {
			return fmt.Errorf("%s: %w", cmd.name, err)
		}
		return nil
	}
	return fmt.Errorf("unknown command: %s", name)
}

// parsePadIDs reads leading pad numbers (1-based) from args: exactly max
// of them, or every leading number when max is -1.
func parsePadIDs(args []string, max int) ([]int, error) {
	variadic := max == -1
	if variadic {
		max = len(args)
	}
	var ids []int
	for i := 0; i < max; i++ {
		if i >= len(args) {
			return nil, fmt.Errorf("expected a pad number 1-%d", audio.NumTracks)
		}
		n, err := strconv.Atoi(args[i])
		if err != nil {
			if variadic {
				break
			}
			return nil, fmt.Errorf("not a valid pad number: %s", args[i])
		}
		if n < 1 || n > audio.NumTracks {
			return nil, fmt.Errorf("pad number out of range 1-%d: %d", audio.NumTracks, n)
		}
		ids = append(ids, n-1)
	}
	return ids, nil
}

func start(s *session, pads []int, args []string) error {
	tempo := s.clock.Tempo()
	if len(args) > 0 {
		t, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return err
		}
		tempo = t
	}
	s.engine.SetTempo(tempo)
	s.clock.Start(tempo, s.clock.Swing())
	return nil
}

func stop(s *session, pads []int, args []string) error {
	s.clock.Stop()
	s.engine.StopAll(-1, false)
	return nil
}

func pause(s *session, pads []int, args []string) error {
	s.clock.Pause()
	return nil
}

func resume(s *session, pads []int, args []string) error {
	s.clock.Resume()
	return nil
}

func bpm(s *session, pads []int, args []string) error {
	t, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return err
	}
	s.clock.SetTempo(t)
	s.engine.SetTempo(seq.ClampTempo(t))
	return nil
}

func swingCmd(s *session, pads []int, args []string) error {
	amount, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return err
	}
	s.clock.SetSwing(amount)
	return nil
}

func load(s *session, pads []int, args []string) error {
	return s.loadSample(pads[0], args[0])
}

func pat(s *session, pads []int, args []string) error {
	var err error
	s.update(func() { err = s.pattern.setMask(pads[0], args[0]) })
	return err
}

func tog(s *session, pads []int, args []string) error {
	step, err := strconv.Atoi(args[0])
	if err != nil {
		return err
	}
	s.update(func() { err = s.pattern.toggle(pads[0], step-1) })
	return err
}

func clear(s *session, pads []int, args []string) error {
	s.update(func() {
		for _, pad := range pads {
			s.pattern.clear(pad)
		}
	})
	return nil
}

func vel(s *session, pads []int, args []string) error {
	step, err := strconv.Atoi(args[0])
	if err != nil {
		return err
	}
	v, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return err
	}
	s.update(func() { err = s.pattern.setVelocity(pads[0], step-1, v) })
	return err
}

func prob(s *session, pads []int, args []string) error {
	step, err := strconv.Atoi(args[0])
	if err != nil {
		return err
	}
	p, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return err
	}
	s.update(func() { err = s.pattern.setProbability(pads[0], step-1, p) })
	return err
}

func rat(s *session, pads []int, args []string) error {
	step, err := strconv.Atoi(args[0])
	if err != nil {
		return err
	}
	count, err := strconv.Atoi(args[1])
	if err != nil {
		return err
	}
	s.update(func() { err = s.pattern.setRatchet(pads[0], step-1, count) })
	return err
}

func hit(s *session, pads []int, args []string) error {
	velocity := 1.0
	if len(args) > 0 {
		v, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return err
		}
		velocity = v
	}
	s.triggerPad(pads[0], velocity)
	return nil
}

func cut(s *session, pads []int, args []string) error {
	track := -1
	if len(pads) > 0 {
		track = pads[0]
	}
	s.engine.StopAll(track, true)
	return nil
}

func gain(s *session, pads []int, args []string) error {
	db, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return err
	}
	return s.engine.Set(fmt.Sprintf("track.%d.volume", pads[0]), db)
}

func pan(s *session, pads []int, args []string) error {
	v, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return err
	}
	return s.engine.Set(fmt.Sprintf("track.%d.pan", pads[0]), v)
}

func mute(s *session, pads []int, args []string) error {
	return toggleStripFlag(s, pads, "mute")
}

func solo(s *session, pads []int, args []string) error {
	return toggleStripFlag(s, pads, "solo")
}

func toggleStripFlag(s *session, pads []int, flag string) error {
	for _, pad := range pads {
		key := fmt.Sprintf("track.%d.%s", pad, flag)
		v, err := s.engine.Get(key)
		if err != nil {
			return err
		}
		if err := s.engine.Set(key, !v.(bool)); err != nil {
			return err
		}
	}
	return nil
}

func master(s *session, pads []int, args []string) error {
	db, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return err
	}
	return s.engine.Set("master.volume", db)
}

func pitch(s *session, pads []int, args []string) error {
	semis, err := strconv.Atoi(args[0])
	if err != nil {
		return err
	}
	cents := 0.0
	if len(args) > 1 {
		cents, err = strconv.ParseFloat(args[1], 64)
		if err != nil {
			return err
		}
	}
	if semis < -24 || semis > 24 {
		return fmt.Errorf("semitones out of range -24..24: %d", semis)
	}
	if cents < -100 || cents > 100 {
		return fmt.Errorf("cents out of range -100..100: %v", cents)
	}
	s.update(func() {
		s.pads[pads[0]].pitchCoarse = semis
		s.pads[pads[0]].pitchFine = cents
	})
	return nil
}

func group(s *session, pads []int, args []string) error {
	g, err := strconv.Atoi(args[0])
	if err != nil {
		return err
	}
	if g < 0 {
		return fmt.Errorf("mute group must be >= 0: %d", g)
	}
	s.update(func() { s.pads[pads[0]].muteGroup = g })
	return nil
}

func mode(s *session, pads []int, args []string) error {
	var m audio.PlaybackMode
	switch args[0] {
	case "oneshot":
		m = audio.OneShot
	case "loop":
		m = audio.LoopForward
	default:
		return fmt.Errorf("unknown mode %q, want oneshot or loop", args[0])
	}
	s.update(func() { s.pads[pads[0]].mode = m })
	return nil
}

func parseEnv(args []string) (audio.EnvelopeSettings, error) {
	var vals [4]float64
	for i := 0; i < 4; i++ {
		v, err := strconv.ParseFloat(args[i], 64)
		if err != nil {
			return audio.EnvelopeSettings{}, err
		}
		if v < 0 || (i != 2 && v > 15) || (i == 2 && v > 1) {
			return audio.EnvelopeSettings{}, fmt.Errorf("envelope value out of range: %v", v)
		}
		vals[i] = v
	}
	return audio.EnvelopeSettings{
		Attack:  vals[0],
		Decay:   vals[1],
		Sustain: vals[2],
		Release: vals[3],
	}, nil
}

func env(s *session, pads []int, args []string) error {
	settings, err := parseEnv(args)
	if err != nil {
		return err
	}
	settings.Exponential = len(args) > 4 && args[4] == "exp"
	s.update(func() { s.pads[pads[0]].ampEnv = settings })
	return nil
}

func filterCmd(s *session, pads []int, args []string) error {
	if args[0] == "off" {
		s.update(func() { s.pads[pads[0]].filter.Enabled = false })
		return nil
	}
	if len(args) < 3 {
		return fmt.Errorf("want: filter <pad> lp|hp|bp|notch <cutoff> <res>")
	}
	var m audio.FilterMode
	switch args[0] {
	case "lp":
		m = audio.FilterLowPass
	case "hp":
		m = audio.FilterHighPass
	case "bp":
		m = audio.FilterBandPass
	case "notch":
		m = audio.FilterNotch
	default:
		return fmt.Errorf("unknown filter mode %q", args[0])
	}
	cutoff, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return err
	}
	res, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return err
	}
	s.update(func() {
		s.pads[pads[0]].filter = audio.FilterSettings{
			Mode:      m,
			CutoffHz:  cutoff,
			Resonance: res,
			Enabled:   true,
		}
	})
	return nil
}

func fenv(s *session, pads []int, args []string) error {
	settings, err := parseEnv(args)
	if err != nil {
		return err
	}
	depth, err := strconv.ParseFloat(args[4], 64)
	if err != nil {
		return err
	}
	s.update(func() {
		p := &s.pads[pads[0]]
		p.filterEnv = settings
		p.filterEnvDepth = depth
		p.filterEnvOn = depth != 0
	})
	return nil
}

func penv(s *session, pads []int, args []string) error {
	settings, err := parseEnv(args)
	if err != nil {
		return err
	}
	depth, err := strconv.ParseFloat(args[4], 64)
	if err != nil {
		return err
	}
	s.update(func() {
		p := &s.pads[pads[0]]
		p.pitchEnv = settings
		p.pitchEnvDepth = depth
		p.pitchEnvOn = depth != 0
	})
	return nil
}

func lfoCmd(s *session, pads []int, args []string) error {
	slot, err := strconv.Atoi(args[0])
	if err != nil {
		return err
	}
	if slot < 1 || slot > audio.MaxVoiceLFOs {
		return fmt.Errorf("lfo slot out of range 1-%d: %d", audio.MaxVoiceLFOs, slot)
	}
	slot--
	if args[1] == "off" {
		s.update(func() { s.pads[pads[0]].lfos[slot].Enabled = false })
		return nil
	}
	if len(args) < 5 {
		return fmt.Errorf("want: lfo <pad> <slot> <wave> <dest> <rate[b]> <depth>")
	}
	var wave audio.LFOWave
	switch args[1] {
	case "sine":
		wave = audio.WaveSine
	case "tri":
		wave = audio.WaveTriangle
	case "square":
		wave = audio.WaveSquare
	case "sawup":
		wave = audio.WaveSawUp
	case "sawdown":
		wave = audio.WaveSawDown
	case "random":
		wave = audio.WaveRandom
	default:
		return fmt.Errorf("unknown waveform %q", args[1])
	}
	var dest audio.LFODest
	switch args[2] {
	case "pitch":
		dest = audio.DestPitch
	case "amp":
		dest = audio.DestAmp
	case "cutoff":
		dest = audio.DestCutoff
	case "pan":
		dest = audio.DestPan
	default:
		return fmt.Errorf("unknown destination %q", args[2])
	}
	settings := audio.LFOSettings{Wave: wave, Dest: dest, Enabled: true}
	rateArg := args[3]
	if strings.HasSuffix(rateArg, "b") {
		beats, err := strconv.ParseFloat(strings.TrimSuffix(rateArg, "b"), 64)
		if err != nil {
			return err
		}
		settings.SyncBeats = beats
	} else {
		hz, err := strconv.ParseFloat(rateArg, 64)
		if err != nil {
			return err
		}
		settings.RateHz = hz
	}
	depth, err := strconv.ParseFloat(args[4], 64)
	if err != nil {
		return err
	}
	if depth < 0 || depth > 1 {
		return fmt.Errorf("depth out of range 0-1: %v", depth)
	}
	settings.Depth = depth
	s.update(func() { s.pads[pads[0]].lfos[slot] = settings })
	return nil
}

func metro(s *session, pads []int, args []string) error {
	switch args[0] {
	case "on":
		return s.engine.Set("metro.enabled", true)
	case "off":
		return s.engine.Set("metro.enabled", false)
	default:
		db, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return err
		}
		return s.engine.Set("metro.volume", db)
	}
}

func clockCmd(s *session, pads []int, args []string) error {
	switch args[0] {
	case "internal":
		s.clock.SetClockSource(seq.SourceInternal)
	case "external":
		s.clock.SetClockSource(seq.SourceExternal)
	default:
		return fmt.Errorf("unknown clock source %q, want internal or external", args[0])
	}
	return nil
}

func stats(s *session, pads []int, args []string) error {
	ts := s.clock.Stats()
	rs := s.engine.Stats()
	fmt.Printf("transport  %s, step %d, %.1f bpm (source %v)\n",
		s.clock.State(), s.clock.CurrentStep()+1, s.clock.Tempo(), s.clock.Source())
	fmt.Printf("timing     jitter avg %v max %v, missed %d, dropped pulses %d\n",
		ts.AverageJitter, ts.MaxJitter, ts.MissedSteps, ts.DroppedPulses)
	if s.clock.Source() == seq.SourceExternal {
		fmt.Printf("sync       synced=%v stalled=%v inferred %.1f bpm\n",
			ts.Synced, ts.Stalled, ts.InferredTempo)
	}
	fmt.Printf("render     %d voices (%d started), %d steals, %d dropped triggers, %d dropped commands, load %.1f%%\n",
		rs.ActiveVoices, rs.VoicesStarted, rs.Steals, rs.DroppedTriggers, rs.DroppedCommands, rs.CPULoad*100)
	for _, cs := range s.clock.Callbacks().Stats() {
		state := "on"
		if cs.AutoDisabled {
			state = "auto-disabled"
		} else if !cs.Enabled {
			state = "off"
		}
		fmt.Printf("callback   %-12s prio %3d %-13s calls %d timeouts %d panics %d\n",
			cs.ID, cs.Priority, state, cs.Calls, cs.Timeouts, cs.Panics)
	}
	return nil
}

func show(s *session, pads []int, args []string) error {
	renderState(s, os.Stdout)
	return nil
}

func help(s *session, pads []int, args []string) error {
	for _, cmd := range commands {
		fmt.Println(" ", cmd.help)
	}
	return nil
}
