package microphone

import (
	"encoding/binary"
	"math"
)

// VADConfig tunes the energy segmenter. Frame counts are 20ms frames.
type VADConfig struct {
	SpeechThreshold  float64
	StartFrames      int
	EndSilenceFrames int
	PrerollFrames    int
}

// DefaultVAD matches the configuration defaults.
func DefaultVAD() VADConfig {
	return VADConfig{
		SpeechThreshold:  300,
		StartFrames:      3,
		EndSilenceFrames: 40,
		PrerollFrames:    10,
	}
}

func (c VADConfig) withDefaults() VADConfig {
	def := DefaultVAD()
	if c.SpeechThreshold <= 0 {
		c.SpeechThreshold = def.SpeechThreshold
	}
	if c.StartFrames <= 0 {
		c.StartFrames = def.StartFrames
	}
	if c.EndSilenceFrames <= 0 {
		c.EndSilenceFrames = def.EndSilenceFrames
	}
	if c.PrerollFrames < c.StartFrames {
		c.PrerollFrames = max(c.StartFrames, def.PrerollFrames)
	}
	return c
}

// volumeNormalization maps RMS to the 0..1 range shown to the user.
const volumeNormalization = 5000

// Segmenter turns PCM frames into chunk_start/audio/chunk_end events.
// It is not safe for concurrent use.
type Segmenter struct {
	cfg VADConfig

	preroll  [][]byte
	voiced   int
	silence  int
	speaking bool
}

func NewSegmenter(cfg VADConfig) *Segmenter {
	return &Segmenter{cfg: cfg.withDefaults()}
}

// Push consumes one frame and returns the events it produced, in order.
func (s *Segmenter) Push(frame []byte) []Event {
	level := rms(frame)
	volume := math.Min(1, level/volumeNormalization)
	loud := level >= s.cfg.SpeechThreshold

	if loud {
		s.voiced++
		s.silence = 0
	} else {
		s.voiced = 0
		s.silence++
	}

	if !s.speaking {
		s.remember(frame)
		if s.voiced < s.cfg.StartFrames {
			return []Event{{Kind: EventAudio, Audio: frame, Silence: s.silence, Volume: volume}}
		}
		s.speaking = true
		start := Event{Kind: EventChunkStart, Audio: joinFrames(s.preroll), Volume: volume}
		s.preroll = s.preroll[:0]
		return []Event{start}
	}

	if s.silence >= s.cfg.EndSilenceFrames {
		s.speaking = false
		return []Event{
			{Kind: EventChunkEnd},
			{Kind: EventAudio, Audio: frame, Silence: s.silence, Volume: volume},
		}
	}
	return []Event{{Kind: EventAudio, Audio: frame, Silence: s.silence, Speaking: true, Volume: volume}}
}

// Reset forgets any speech in progress.
func (s *Segmenter) Reset() {
	s.preroll = s.preroll[:0]
	s.voiced = 0
	s.silence = 0
	s.speaking = false
}

func (s *Segmenter) remember(frame []byte) {
	if len(s.preroll) == s.cfg.PrerollFrames {
		copy(s.preroll, s.preroll[1:])
		s.preroll = s.preroll[:len(s.preroll)-1]
	}
	s.preroll = append(s.preroll, frame)
}

func joinFrames(frames [][]byte) []byte {
	n := 0
	for _, f := range frames {
		n += len(f)
	}
	out := make([]byte, 0, n)
	for _, f := range frames {
		out = append(out, f...)
	}
	return out
}

// rms computes the root mean square of little-endian s16 samples.
func rms(frame []byte) float64 {
	samples := len(frame) / 2
	if samples == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < samples; i++ {
		v := float64(int16(binary.LittleEndian.Uint16(frame[2*i:])))
		sum += v * v
	}
	return math.Sqrt(sum / float64(samples))
}
