package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"padkit/audio"
	"padkit/seq"
)

func main() {
	var (
		bpm     = flag.Float64("bpm", 120, "initial tempo")
		swing   = flag.Float64("swing", 0, "swing amount, 0-0.75")
		sounds  = flag.String("sounds", "*.wav", "glob of samples to load onto pads")
		steps   = flag.Int("steps", 16, "pattern length in steps")
		midiIn  = flag.Int("midi-in", -1, "MIDI input port for external clock sync")
		revert  = flag.Bool("stall-revert", false, "fall back to the internal clock when the external clock stalls")
		runFile = flag.String("run", "", "command file to run at startup")
	)
	flag.Parse()

	store := audio.NewStore()
	engine := audio.NewEngine(store)
	sink, err := audio.NewSink(engine)
	if err != nil {
		log.Fatal(err)
	}

	policy := seq.StallHold
	if *revert {
		policy = seq.StallRevert
	}
	clock := seq.New(seq.Config{
		PatternLength: *steps,
		Latency:       sink.OutputLatency(),
		OnStall:       policy,
		CPULoad:       func() float64 { return engine.Stats().CPULoad },
	})
	clock.SetTempo(*bpm)
	clock.SetSwing(*swing)
	engine.SetTempo(*bpm)

	session := newSession(engine, clock, store, *steps)
	if err := clock.Callbacks().Register("pads", 100, session.onStep); err != nil {
		log.Fatal(err)
	}

	files, err := filepath.Glob(*sounds)
	if err != nil {
		log.Fatal(err)
	}
	for i, file := range files {
		if i >= audio.NumTracks {
			break
		}
		if err := session.loadSample(i, file); err != nil {
			log.Fatal(err)
		}
	}

	if *midiIn >= 0 {
		clock.SetClockSource(seq.SourceExternal)
		stop, err := listenMIDIClock(*midiIn, clock, *bpm, *swing)
		if err != nil {
			log.Fatal(err)
		}
		defer stop()
	}

	if err := sink.Start(); err != nil {
		log.Fatal(err)
	}
	defer sink.Stop()
	defer clock.Stop()

	if *runFile != "" {
		f, err := os.Open(*runFile)
		if err != nil {
			log.Fatal(err)
		}
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			if err := exec(session, line); err != nil {
				log.Fatal(err)
			}
		}
		f.Close()
		if err := scanner.Err(); err != nil {
			log.Fatal(err)
		}
	}

	if err := repl(session); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
