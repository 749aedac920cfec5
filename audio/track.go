package audio

import (
	"fmt"
	"sync/atomic"
)

// trackStrip is one pad's mixer strip: volume/pan/mute/solo, all read by
// the render thread through atomics registered in Props.
type trackStrip struct {
	volume *atomic.Value // dB
	pan    *atomic.Value // -1..1
	mute   *atomic.Value
	solo   *atomic.Value
}

func newTrackStrip(props *Props, n int) trackStrip {
	prefix := fmt.Sprintf("track.%d.", n)
	return trackStrip{
		volume: props.MustRegister(prefix+"volume", setFloat64(-60, 6), 0.0),
		pan:    props.MustRegister(prefix+"pan", setFloat64(-1, 1), 0.0),
		mute:   props.MustRegister(prefix+"mute", setBool, false),
		solo:   props.MustRegister(prefix+"solo", setBool, false),
	}
}
