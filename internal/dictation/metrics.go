package dictation

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/loqalabs/loqa-dictation/internal/tts"
)

const meterName = "github.com/loqalabs/loqa-dictation/dictation"

// Metrics records generation outcomes on the global meter provider.
type Metrics struct {
	built    metric.Int64Counter
	failed   metric.Int64Counter
	clips    metric.Int64Counter
	duration metric.Float64Histogram
}

func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	built, err := meter.Int64Counter("dictation.tracks.built", metric.WithDescription("Practice tracks rendered"))
	if err != nil {
		return nil, err
	}
	failed, err := meter.Int64Counter("dictation.tracks.failed", metric.WithDescription("Practice tracks that failed to render"))
	if err != nil {
		return nil, err
	}
	clips, err := meter.Int64Counter("dictation.clips.synthesized", metric.WithDescription("Speech clips returned by the provider"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("dictation.track.duration",
		metric.WithDescription("Playback length of rendered tracks"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return &Metrics{built: built, failed: failed, clips: clips, duration: duration}, nil
}

func (m *Metrics) trackBuilt(ctx context.Context, part string, length time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("part", part))
	m.built.Add(ctx, 1, attrs)
	m.duration.Record(ctx, length.Seconds(), attrs)
}

func (m *Metrics) trackFailed(ctx context.Context, part string) {
	if m == nil {
		return
	}
	m.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("part", part)))
}

// Instrument counts successful provider calls made through s.
func (m *Metrics) Instrument(s tts.Synthesizer) tts.Synthesizer {
	if m == nil {
		return s
	}
	return &countingSynth{next: s, counter: m.clips}
}

type countingSynth struct {
	next    tts.Synthesizer
	counter metric.Int64Counter
}

func (c *countingSynth) Synthesize(ctx context.Context, req tts.Request) ([]byte, error) {
	data, err := c.next.Synthesize(ctx, req)
	if err == nil {
		c.counter.Add(ctx, 1, metric.WithAttributes(attribute.String("language", req.Language)))
	}
	return data, err
}
