package audio

import (
	"time"

	"github.com/gordonklaus/portaudio"
)

// Source produces audio for the hardware callback.
type Source interface {
	Process(out [][]float32)
}

// Sink owns the portaudio output stream and drives a single Source from
// the audio thread.
type Sink struct {
	source Source
	stream *portaudio.Stream
}

func NewSink(source Source) (*Sink, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, err
	}
	s := &Sink{source: source}
	stream, err := portaudio.OpenDefaultStream(0, 2, SampleRate, BufferSize, s.process)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}
	s.stream = stream
	return s, nil
}

func (s *Sink) process(out [][]float32) {
	s.source.Process(out)
}

func (s *Sink) Start() error {
	return s.stream.Start()
}

func (s *Sink) Stop() error {
	s.stream.Close()
	return portaudio.Terminate()
}

// OutputLatency reports the device's output latency, for the timing
// engine's dispatch compensation.
func (s *Sink) OutputLatency() time.Duration {
	info := s.stream.Info()
	if info == nil {
		return 0
	}
	return info.OutputLatency
}
