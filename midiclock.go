package main

import (
	"fmt"
	"log"

	gomidi "gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // register the MIDI driver

	"padkit/seq"
)

// listenMIDIClock feeds MIDI realtime messages from the given input port
// into the timing engine: timing clock pulses drive ProcessClockPulse,
// start/stop/continue drive the transport. The returned function closes
// the listener.
func listenMIDIClock(port int, clock *seq.Engine, bpm, swing float64) (func(), error) {
	ins := gomidi.GetInPorts()
	if port < 0 || port >= len(ins) {
		return nil, fmt.Errorf("midi input port out of range 0-%d: %d", len(ins)-1, port)
	}
	in := ins[port]
	log.Printf("midi: clock sync from %q", in.String())

	stop, err := gomidi.ListenTo(in, func(msg gomidi.Message, timestampms int32) {
		switch {
		case msg.Is(gomidi.TimingClockMsg):
			clock.ProcessClockPulse(seq.ClockPulse{})
		case msg.Is(gomidi.StartMsg):
			clock.Start(bpm, swing)
		case msg.Is(gomidi.StopMsg):
			clock.Pause()
		case msg.Is(gomidi.ContinueMsg):
			clock.Resume()
		}
	})
	if err != nil {
		return nil, fmt.Errorf("midi: listen on %q: %w", in.String(), err)
	}
	return func() {
		stop()
		gomidi.CloseDriver()
	}, nil
}
