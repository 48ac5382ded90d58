// Package dictation coordinates practice sessions: it fills request
// defaults, runs the track builder, keeps recent tracks for download, saves
// them to the library, and records the outcome on the event timeline.
package dictation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/loqalabs/loqa-dictation/internal/audio"
	"github.com/loqalabs/loqa-dictation/internal/config"
	"github.com/loqalabs/loqa-dictation/internal/eventstore"
	"github.com/loqalabs/loqa-dictation/internal/library"
	"github.com/loqalabs/loqa-dictation/internal/practice"
	"github.com/loqalabs/loqa-dictation/internal/protocol"
	"github.com/loqalabs/loqa-dictation/internal/tts"
	"github.com/loqalabs/loqa-dictation/internal/vision"
)

const (
	PartVocabulary = "vocab"
	PartPassage    = "passage"
)

var ErrJobNotFound = errors.New("job not found")

// Publisher broadcasts track notifications. *bus.Client satisfies it.
type Publisher interface {
	PublishJSON(subject string, v any) error
}

type Options struct {
	Practice  config.PracticeConfig
	Builder   *practice.Builder
	Library   *library.Library
	Events    *eventstore.Store
	Extractor vision.Extractor
	Metrics   *Metrics
	Publisher Publisher
	Logger    *slog.Logger
}

type jobTracks struct {
	name   string
	tracks map[string]*audio.Track
}

// Manager is shared by the HTTP API and the bus service.
type Manager struct {
	defaults  config.PracticeConfig
	builder   *practice.Builder
	library   *library.Library
	events    *eventstore.Store
	extractor vision.Extractor
	metrics   *Metrics
	publisher Publisher
	jobs      *lru.Cache[string, *jobTracks]
	logger    *slog.Logger
}

func NewManager(opts Options) (*Manager, error) {
	size := opts.Practice.TrackCacheSize
	if size <= 0 {
		size = 64
	}
	jobs, err := lru.New[string, *jobTracks](size)
	if err != nil {
		return nil, fmt.Errorf("create track registry: %w", err)
	}
	m := &Manager{
		defaults:  opts.Practice,
		builder:   opts.Builder,
		library:   opts.Library,
		events:    opts.Events,
		extractor: opts.Extractor,
		metrics:   opts.Metrics,
		publisher: opts.Publisher,
		jobs:      jobs,
		logger:    opts.Logger.With(slog.String("component", "dictation")),
	}
	if err := m.initMetrics(); err != nil {
		m.logger.Warn("failed to initialize registry metrics", slogError(err))
	}
	return m, nil
}

func (m *Manager) initMetrics() error {
	meter := otel.Meter(meterName)
	gauge, err := meter.Int64ObservableGauge("dictation.jobs.cached", metric.WithDescription("Jobs whose tracks are held for download"))
	if err != nil {
		return err
	}
	_, err = meter.RegisterCallback(func(ctx context.Context, obs metric.Observer) error {
		obs.ObserveInt64(gauge, int64(m.jobs.Len()))
		return nil
	}, gauge)
	return err
}

// SetPublisher attaches the bus once it is connected.
func (m *Manager) SetPublisher(p Publisher) {
	m.publisher = p
}

// Generate renders the requested tracks. Per-part failures are reported in
// the reply; the returned error is reserved for requests that cannot run at
// all.
func (m *Manager) Generate(ctx context.Context, req protocol.GenerateRequest) (protocol.GenerateReply, error) {
	if req.Vocabulary == nil && req.Passage == nil {
		return protocol.GenerateReply{}, fmt.Errorf("%w: nothing to generate", practice.ErrInvalidRequest)
	}
	jobID := req.JobID
	if jobID == "" {
		jobID = uuid.NewString()
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = library.DefaultName
	}
	voice := tts.VoiceProfile{Language: req.Voice.Language, Voice: req.Voice.Voice}
	if err := m.events.RecordJob(ctx, eventstore.Job{ID: jobID, Name: name, Language: voice.Language, Voice: voice.Voice}); err != nil {
		m.logger.Warn("failed to record job", slog.String("job_id", jobID), slogError(err))
	}

	session := practice.SessionRequest{Name: library.Sanitize(name)}
	if v := req.Vocabulary; v != nil {
		shuffle := m.defaults.Shuffle
		if v.Shuffle != nil {
			shuffle = *v.Shuffle
		}
		session.Vocabulary = &practice.VocabularyRequest{
			Words:          v.Words,
			Rate:           firstNonEmpty(v.Rate, m.defaults.VocabularyRate),
			Voice:          voice,
			Repeats:        orDefault(v.Repeats, m.defaults.VocabularyRepeats),
			SilenceSeconds: orDefault(v.SilenceSeconds, m.defaults.VocabularySilenceSeconds),
			Shuffle:        shuffle,
		}
	}
	if p := req.Passage; p != nil {
		session.Passage = &practice.PassageRequest{
			Text:    p.Text,
			Rate:    firstNonEmpty(p.Rate, m.defaults.PassageRate),
			Voice:   voice,
			Repeats: orDefault(p.Repeats, m.defaults.PassageRepeats),
		}
	}

	if m.defaults.TimeoutMS > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(m.defaults.TimeoutMS)*time.Millisecond)
		defer cancel()
	}
	start := time.Now()
	result := m.builder.Generate(ctx, session)

	reply := protocol.GenerateReply{JobID: jobID, Tracks: []protocol.TrackInfo{}}
	entry := &jobTracks{name: name, tracks: make(map[string]*audio.Track, 2)}
	m.collect(ctx, &reply, entry, PartVocabulary, result.Vocabulary, result.VocabularyErr)
	m.collect(ctx, &reply, entry, PartPassage, result.Passage, result.PassageErr)
	if len(entry.tracks) > 0 {
		m.jobs.Add(jobID, entry)
	}

	if req.Save && len(entry.tracks) > 0 {
		saved, err := m.Save(ctx, jobID, name)
		if err != nil {
			reply.Error = err.Error()
		}
		for i := range reply.Tracks {
			reply.Tracks[i].SavedAs = saved[reply.Tracks[i].Part]
		}
	}

	m.logger.Info("generation finished",
		slog.String("job_id", jobID),
		slog.Int("tracks", len(reply.Tracks)),
		slog.Int("failures", len(reply.Failures)),
		slog.Duration("elapsed", time.Since(start)))
	return reply, nil
}

func (m *Manager) collect(ctx context.Context, reply *protocol.GenerateReply, entry *jobTracks, part string, track *audio.Track, err error) {
	if err != nil {
		failure := unitFailure(part, err)
		reply.Failures = append(reply.Failures, failure)
		m.metrics.trackFailed(ctx, part)
		m.appendEvent(ctx, reply.JobID, eventstore.EventTrackFailed, part, failure)
		m.publish(protocol.SubjectTrackFailed, protocol.TrackEvent{JobID: reply.JobID, Failure: &failure, Timestamp: time.Now().UTC()})
		m.logger.Warn("track failed", slog.String("job_id", reply.JobID), slog.String("part", part), slogError(err))
		return
	}
	if track == nil {
		return
	}
	entry.tracks[part] = track
	info := protocol.TrackInfo{
		Part:        part,
		DurationSec: track.Duration.Seconds(),
		Bytes:       len(track.Data),
		ContentType: track.ContentType,
	}
	reply.Tracks = append(reply.Tracks, info)
	m.metrics.trackBuilt(ctx, part, track.Duration)
	m.appendEvent(ctx, reply.JobID, eventstore.EventTrackBuilt, part, info)
	m.publish(protocol.SubjectTrackReady, protocol.TrackEvent{JobID: reply.JobID, Track: &info, Timestamp: time.Now().UTC()})
}

// Track returns a rendered track held for download.
func (m *Manager) Track(jobID, part string) (*audio.Track, bool) {
	entry, ok := m.jobs.Get(jobID)
	if !ok {
		return nil, false
	}
	track, ok := entry.tracks[part]
	return track, ok
}

// Save writes every track of a job into the library under name (or the
// job's own name when name is blank). It returns the saved path per part.
func (m *Manager) Save(ctx context.Context, jobID, name string) (map[string]string, error) {
	entry, ok := m.jobs.Get(jobID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if strings.TrimSpace(name) == "" {
		name = entry.name
	}
	saved := make(map[string]string, len(entry.tracks))
	var errs []error
	for _, part := range []string{PartVocabulary, PartPassage} {
		track, ok := entry.tracks[part]
		if !ok {
			continue
		}
		path, err := m.library.Save(ctx, track, name, part)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", part, err))
			continue
		}
		saved[part] = path
		m.appendEvent(ctx, jobID, eventstore.EventTrackSaved, part, map[string]string{"path": path})
	}
	return saved, errors.Join(errs...)
}

// Preview synthesizes a single word or sentence. Without an explicit rate,
// words use the vocabulary rate and sentences the passage rate.
func (m *Manager) Preview(ctx context.Context, req protocol.PreviewRequest) ([]byte, string, error) {
	kind := practice.PreviewKind(req.Kind)
	fallback := m.defaults.VocabularyRate
	if kind == practice.PreviewSentence {
		fallback = m.defaults.PassageRate
	}
	data, err := m.builder.Preview(ctx, practice.PreviewRequest{
		Kind:  kind,
		Text:  req.Text,
		Rate:  firstNonEmpty(req.Rate, fallback),
		Voice: tts.VoiceProfile{Language: req.Voice.Language, Voice: req.Voice.Voice},
	})
	if err != nil {
		return nil, "", err
	}
	return data, SniffContentType(data), nil
}

// Extract reads a worksheet photo and records the extraction as its own job.
func (m *Manager) Extract(ctx context.Context, image []byte, mimeType string) (string, vision.Extraction, error) {
	if m.extractor == nil {
		return "", vision.Extraction{}, fmt.Errorf("%w: no extractor configured", vision.ErrExtraction)
	}
	ext, err := m.extractor.Extract(ctx, image, mimeType)
	if err != nil {
		return "", vision.Extraction{}, err
	}
	jobID := uuid.NewString()
	if err := m.events.RecordJob(ctx, eventstore.Job{ID: jobID, Name: "extraction", Language: ext.Language}); err != nil {
		m.logger.Warn("failed to record job", slog.String("job_id", jobID), slogError(err))
	}
	m.appendEvent(ctx, jobID, eventstore.EventExtractionCompleted, "", map[string]int{
		"words":         len(ext.Vocabulary),
		"passage_chars": len([]rune(ext.Passage)),
	})
	return jobID, ext, nil
}

// History returns the recorded events of a job.
func (m *Manager) History(ctx context.Context, jobID string) ([]eventstore.Event, error) {
	return m.events.ListJobEvents(ctx, jobID, 0)
}

func (m *Manager) Library() *library.Library {
	return m.library
}

func (m *Manager) appendEvent(ctx context.Context, jobID, eventType, part string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		m.logger.Warn("failed to encode event payload", slogError(err))
		return
	}
	if err := m.events.AppendEvent(ctx, eventstore.Event{JobID: jobID, Type: eventType, Part: part, Payload: data}); err != nil {
		m.logger.Warn("failed to append event", slog.String("job_id", jobID), slog.String("type", eventType), slogError(err))
	}
}

func (m *Manager) publish(subject string, v any) {
	if m.publisher == nil {
		return
	}
	if err := m.publisher.PublishJSON(subject, v); err != nil {
		m.logger.Warn("failed to publish track event", slog.String("subject", subject), slogError(err))
	}
}

func unitFailure(part string, err error) protocol.UnitFailure {
	failure := protocol.UnitFailure{Part: part, Error: err.Error()}
	var unit *practice.UnitError
	if errors.As(err, &unit) {
		failure.Kind = string(unit.Kind)
		failure.Index = unit.Index
		failure.Text = unit.Text
	}
	return failure
}

// SniffContentType labels provider or track bytes for HTTP responses.
func SniffContentType(data []byte) string {
	if len(data) >= 4 && string(data[:4]) == "RIFF" {
		return "audio/wav"
	}
	if ct := http.DetectContentType(data); strings.HasPrefix(ct, "audio/") {
		return ct
	}
	return "audio/mpeg"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func orDefault(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
