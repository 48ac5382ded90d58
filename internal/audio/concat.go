package audio

import (
	"errors"
	"fmt"
)

var (
	ErrDecode         = errors.New("audio decode failed")
	ErrFormatMismatch = fmt.Errorf("%w: incompatible clip format", ErrDecode)
	ErrEmptyPlan      = errors.New("composition plan is empty")
)

// Concat renders plan into a single clip. The sample rate comes from the
// first clip in the plan (or from layout when the plan holds only silence);
// layout.Channels, when set, fixes the channel count of the result.
func Concat(plan *Plan, layout Format) (*Clip, error) {
	if plan == nil || plan.Len() == 0 {
		return nil, ErrEmptyPlan
	}
	format := layout
	for _, seg := range plan.segments {
		if seg.Kind == SegmentClip {
			format.SampleRate = seg.Clip.Format.SampleRate
			if layout.Channels <= 0 {
				format.Channels = seg.Clip.Format.Channels
			}
			break
		}
	}
	if !format.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrFormatMismatch, format)
	}

	parts := make([]*Clip, 0, plan.Len())
	total := 0
	for i, seg := range plan.segments {
		var part *Clip
		switch seg.Kind {
		case SegmentSilence:
			part = Silence(format, seg.Silence)
		default:
			if seg.Clip == nil {
				return nil, fmt.Errorf("segment %d (%s): %w: missing clip", i, seg.Label, ErrDecode)
			}
			if seg.Clip.Format.SampleRate != format.SampleRate {
				return nil, fmt.Errorf("segment %d (%s): %w: %s vs %s", i, seg.Label, ErrFormatMismatch, seg.Clip.Format, format)
			}
			remixed, err := seg.Clip.withChannels(format.Channels)
			if err != nil {
				return nil, fmt.Errorf("segment %d (%s): %w", i, seg.Label, err)
			}
			part = remixed
		}
		parts = append(parts, part)
		total += len(part.Samples)
	}

	out := &Clip{Format: format, Samples: make([]int16, 0, total)}
	for _, part := range parts {
		out.Samples = append(out.Samples, part.Samples...)
	}
	return out, nil
}
