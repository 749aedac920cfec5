// Package audio implements the real-time rendering core of a multi-pad
// sampler: a fixed pool of sample-playback voices with per-voice envelope,
// LFO and filter modulation, mixed through per-pad track strips into a
// portaudio output stream. All state changes requested from the control
// domain reach the render thread through a lock-free command queue; the
// render path never allocates, locks or blocks.
package audio

const (
	// SampleRate is the output sample rate of the engine.
	SampleRate = 44100

	// BufferSize is the number of frames per hardware buffer.
	BufferSize = 512

	// blockSize is the granularity at which queued commands and block-rate
	// modulation are applied within a buffer. 16 frames is about 0.35ms.
	blockSize = 16

	// NumTracks is the number of pad tracks (mixer strips).
	NumTracks = 16

	// numVoices is the polyphony budget.
	numVoices = 32
)
