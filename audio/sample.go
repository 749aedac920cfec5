package audio

import (
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"sync"

	wav "github.com/youpy/go-wav"
)

// Sample holds decoded PCM audio plus its metadata. Samples are immutable
// after load and may be shared by any number of voices.
type Sample struct {
	frames   []float64 // interleaved when stereo
	rate     float64
	channels int
	name     string
}

func (s *Sample) Frames() int   { return len(s.frames) / s.channels }
func (s *Sample) Channels() int { return s.channels }
func (s *Sample) Rate() float64 { return s.rate }
func (s *Sample) Name() string  { return s.name }

// at returns the linearly interpolated value of channel ch at the
// fractional frame position pos. Out-of-range positions read as silence.
func (s *Sample) at(pos float64, ch int) float64 {
	if ch >= s.channels {
		ch = s.channels - 1
	}
	n := s.Frames()
	i := int(pos)
	if pos < 0 || i >= n {
		return 0
	}
	a := s.frames[i*s.channels+ch]
	if i+1 >= n {
		return a
	}
	b := s.frames[(i+1)*s.channels+ch]
	return a + (b-a)*(pos-float64(i))
}

// LoadSample decodes a WAV file into a Sample. Files with more than two
// channels are truncated to stereo.
func LoadSample(file string) (*Sample, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := wav.NewReader(f)
	format, err := r.Format()
	if err != nil {
		return nil, fmt.Errorf("read wav format %s: %w", file, err)
	}
	channels := int(format.NumChannels)
	if channels > 2 {
		channels = 2
	}
	if channels < 1 {
		return nil, fmt.Errorf("no channels in %s", file)
	}

	snd := Sample{
		rate:     float64(format.SampleRate),
		channels: channels,
		name:     file,
	}
	for {
		samples, err := r.ReadSamples()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read wav samples %s: %w", file, err)
		}
		for _, sample := range samples {
			for ch := 0; ch < channels; ch++ {
				snd.frames = append(snd.frames, r.FloatValue(sample, uint(ch)))
			}
		}
	}
	return &snd, nil
}

// Store maps sample ids to decoded samples. It is read and written from the
// control domain only; the render thread never touches it. Voices hold
// direct *Sample references handed over by value inside trigger commands.
type Store struct {
	mu      sync.RWMutex
	samples map[string]*Sample
}

func NewStore() *Store {
	return &Store{samples: make(map[string]*Sample)}
}

func (st *Store) Put(id string, s *Sample) {
	st.mu.Lock()
	st.samples[id] = s
	st.mu.Unlock()
}

func (st *Store) Get(id string) (*Sample, bool) {
	st.mu.RLock()
	s, ok := st.samples[id]
	st.mu.RUnlock()
	return s, ok
}

// Load decodes file and registers it under id.
func (st *Store) Load(id, file string) (*Sample, error) {
	s, err := LoadSample(file)
	if err != nil {
		return nil, err
	}
	st.Put(id, s)
	return s, nil
}

func (st *Store) IDs() []string {
	st.mu.RLock()
	ids := make([]string, 0, len(st.samples))
	for id := range st.samples {
		ids = append(ids, id)
	}
	st.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// clickSample synthesizes a metronome click: a short sine burst with an
// exponential decay. The accented click sits a fifth higher.
func clickSample(accent bool) *Sample {
	freq := 1000.0
	if accent {
		freq = 1500.0
	}
	const dur = 0.03
	n := int(dur * SampleRate)
	s := &Sample{
		frames:   make([]float64, n),
		rate:     SampleRate,
		channels: 1,
		name:     "click",
	}
	for i := 0; i < n; i++ {
		t := float64(i) / SampleRate
		s.frames[i] = math.Sin(2*math.Pi*freq*t) * math.Exp(-t/0.005)
	}
	return s
}
