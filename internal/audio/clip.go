// Package audio holds decoded speech clips, the composition plan that orders
// them, and the assembler that renders a plan into one encoded track.
package audio

import (
	"fmt"
	"time"
)

// Format describes interleaved signed 16-bit PCM.
type Format struct {
	SampleRate int
	Channels   int
}

func (f Format) Valid() bool {
	return f.SampleRate > 0 && f.Channels > 0
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dch", f.SampleRate, f.Channels)
}

// frames converts a duration into a whole number of frames, rounding to the nearest frame.
func (f Format) frames(d time.Duration) int {
	if d <= 0 || f.SampleRate <= 0 {
		return 0
	}
	return int((int64(d)*int64(f.SampleRate) + int64(time.Second)/2) / int64(time.Second))
}

func (f Format) duration(frames int) time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(int64(frames) * int64(time.Second) / int64(f.SampleRate))
}

// Clip is decoded audio. Clips are treated as immutable once built.
type Clip struct {
	Format  Format
	Samples []int16
}

// Frames returns the number of sample frames (one sample per channel).
func (c *Clip) Frames() int {
	if c == nil || c.Format.Channels <= 0 {
		return 0
	}
	return len(c.Samples) / c.Format.Channels
}

func (c *Clip) Duration() time.Duration {
	if c == nil {
		return 0
	}
	return c.Format.duration(c.Frames())
}

// Silence returns a clip of zero samples lasting d in format f.
func Silence(f Format, d time.Duration) *Clip {
	return &Clip{Format: f, Samples: make([]int16, f.frames(d)*f.Channels)}
}

// withChannels returns the clip remixed to the requested channel count.
// Only mono and stereo layouts are converted.
func (c *Clip) withChannels(channels int) (*Clip, error) {
	if c.Format.Channels == channels {
		return c, nil
	}
	frames := c.Frames()
	out := &Clip{Format: Format{SampleRate: c.Format.SampleRate, Channels: channels}}
	switch {
	case c.Format.Channels == 1 && channels == 2:
		out.Samples = make([]int16, frames*2)
		for i, s := range c.Samples {
			out.Samples[2*i] = s
			out.Samples[2*i+1] = s
		}
	case c.Format.Channels == 2 && channels == 1:
		out.Samples = make([]int16, frames)
		for i := 0; i < frames; i++ {
			out.Samples[i] = int16((int32(c.Samples[2*i]) + int32(c.Samples[2*i+1])) / 2)
		}
	default:
		return nil, fmt.Errorf("%w: cannot remix %d channels to %d", ErrFormatMismatch, c.Format.Channels, channels)
	}
	return out, nil
}
