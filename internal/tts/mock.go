package tts

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"time"

	"github.com/loqalabs/loqa-dictation/internal/audio"
)

type mockSynth struct {
	format audio.Format
}

// NewMockSynth returns a synthesizer that renders a short tone per request.
// Longer text gives a longer tone and each voice gets its own pitch.
func NewMockSynth(sampleRate, channels int) Synthesizer {
	return &mockSynth{format: audio.Format{SampleRate: sampleRate, Channels: channels}}
}

func (m *mockSynth) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyText
	}
	percent, err := ParseRate(req.Rate)
	if err != nil {
		return nil, err
	}
	length := 200*time.Millisecond + time.Duration(len([]rune(req.Text)))*40*time.Millisecond
	if speed := 1 + float64(percent)/100; speed > 0.1 {
		length = time.Duration(float64(length) / speed)
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(req.Voice))
	freq := 220 + float64(h.Sum32()%440)

	clip := audio.Silence(m.format, length)
	frames := clip.Frames()
	for i := 0; i < frames; i++ {
		v := int16(3000 * math.Sin(2*math.Pi*freq*float64(i)/float64(m.format.SampleRate)))
		for c := 0; c < m.format.Channels; c++ {
			clip.Samples[i*m.format.Channels+c] = v
		}
	}
	return audio.EncodeWAV(clip)
}
