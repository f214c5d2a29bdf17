package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ToneSampleRate is the rate used for procedurally generated UI tones.
const ToneSampleRate = 24000

type Tone string

const (
	ToneSwipe Tone = "swipe"
	ToneMatch Tone = "match"
)

type waveform func(phase float64) float64

func sine(phase float64) float64 { return math.Sin(phase) }

func square(phase float64) float64 {
	if math.Sin(phase) >= 0 {
		return 1
	}
	return -1
}

// sweep is an oscillator whose frequency ramps exponentially from -> to over ramp
// seconds while its gain falls linearly from gain to zero over the same span.
type sweep struct {
	wave     waveform
	from, to float64
	gain     float64
	ramp     float64
	length   float64
}

var tones = map[Tone]sweep{
	ToneSwipe: {wave: sine, from: 400, to: 10, gain: 0.1, ramp: 0.2, length: 0.5},
	ToneMatch: {wave: square, from: 80, to: 1, gain: 0.2, ramp: 0.5, length: 0.5},
}

func (t Tone) IsValid() bool {
	_, ok := tones[t]
	return ok
}

// Synthesize renders the tone as mono little-endian PCM16 at ToneSampleRate.
func Synthesize(t Tone) ([]byte, error) {
	s, ok := tones[t]
	if !ok {
		return nil, fmt.Errorf("unknown tone %q", t)
	}
	return s.render(ToneSampleRate), nil
}

func (s sweep) render(rate int) []byte {
	n := int(s.length * float64(rate))
	out := make([]byte, 2*n)

	phase := 0.0
	for i := 0; i < n; i++ {
		t := float64(i) / float64(rate)

		progress := math.Min(t/s.ramp, 1)
		freq := s.from * math.Pow(s.to/s.from, progress)
		gain := s.gain * (1 - progress)

		v := gain * s.wave(phase)
		binary.LittleEndian.PutUint16(out[2*i:], uint16(int16(math.Round(v*math.MaxInt16))))

		phase += 2 * math.Pi * freq / float64(rate)
		if phase > 2*math.Pi {
			phase -= 2 * math.Pi
		}
	}

	return out
}
