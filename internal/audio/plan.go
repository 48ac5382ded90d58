package audio

import "time"

type SegmentKind int

const (
	SegmentClip SegmentKind = iota
	SegmentSilence
)

func (k SegmentKind) String() string {
	if k == SegmentSilence {
		return "silence"
	}
	return "clip"
}

// Segment is one entry of a Plan: either a decoded clip or a silence of a
// given length. Silence is materialized only when the plan is rendered.
type Segment struct {
	Kind    SegmentKind
	Clip    *Clip
	Silence time.Duration
	Label   string
}

func (s Segment) Duration() time.Duration {
	if s.Kind == SegmentSilence {
		return s.Silence
	}
	return s.Clip.Duration()
}

// Plan is the ordered list of segments for one track. Playback order is
// insertion order.
type Plan struct {
	segments []Segment
}

func NewPlan() *Plan {
	return &Plan{}
}

func (p *Plan) AddClip(c *Clip, label string) {
	p.segments = append(p.segments, Segment{Kind: SegmentClip, Clip: c, Label: label})
}

func (p *Plan) AddSilence(d time.Duration) {
	p.segments = append(p.segments, Segment{Kind: SegmentSilence, Silence: d})
}

// Segments returns a copy of the plan's segments.
func (p *Plan) Segments() []Segment {
	return append([]Segment(nil), p.segments...)
}

func (p *Plan) Len() int {
	return len(p.segments)
}

// Counts returns the number of clip and silence segments.
func (p *Plan) Counts() (clips, silences int) {
	for _, s := range p.segments {
		if s.Kind == SegmentSilence {
			silences++
		} else {
			clips++
		}
	}
	return clips, silences
}

// Duration is the sum of all segment durations.
func (p *Plan) Duration() time.Duration {
	var total time.Duration
	for _, s := range p.segments {
		total += s.Duration()
	}
	return total
}
