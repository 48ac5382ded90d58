// Package practice turns word lists and passages into dictation practice
// tracks. Each build synthesizes every unit once, lays the clips out in a
// composition plan, and hands the plan to the audio assembler for a single
// encode.
package practice

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/loqalabs/loqa-dictation/internal/audio"
	"github.com/loqalabs/loqa-dictation/internal/segment"
	"github.com/loqalabs/loqa-dictation/internal/textnorm"
	"github.com/loqalabs/loqa-dictation/internal/tts"
)

const (
	MinRepeats        = 1
	MaxRepeats        = 5
	MinSilenceSeconds = 1
	MaxSilenceSeconds = 10

	InterRepeatSilence   = time.Second
	InterSentenceSilence = 2 * time.Second
)

// Shuffler permutes n elements through swap, with the signature of
// rand.Shuffle.
type Shuffler func(n int, swap func(i, j int))

type VocabularyRequest struct {
	Words          []string
	Rate           string
	Voice          tts.VoiceProfile
	Repeats        int
	SilenceSeconds int
	Shuffle        bool
}

type PassageRequest struct {
	Text    string
	Rate    string
	Voice   tts.VoiceProfile
	Repeats int
}

type Builder struct {
	synth      tts.Synthesizer
	preview    tts.Synthesizer
	normalizer *textnorm.Normalizer
	assembler  *audio.Assembler
	shuffle    Shuffler
	logger     *slog.Logger
}

type Option func(*Builder)

// WithShuffler replaces the random permutation used when a vocabulary
// request asks for shuffling.
func WithShuffler(s Shuffler) Option {
	return func(b *Builder) { b.shuffle = s }
}

func WithNormalizer(n *textnorm.Normalizer) Option {
	return func(b *Builder) { b.normalizer = n }
}

// WithPreviewSynthesizer routes Preview through s, typically a tts.Cached
// wrapping the builder's synthesizer.
func WithPreviewSynthesizer(s tts.Synthesizer) Option {
	return func(b *Builder) { b.preview = s }
}

func NewBuilder(synth tts.Synthesizer, assembler *audio.Assembler, logger *slog.Logger, opts ...Option) *Builder {
	b := &Builder{
		synth:      synth,
		preview:    synth,
		normalizer: textnorm.Standard(),
		assembler:  assembler,
		shuffle:    rand.Shuffle,
		logger:     logger.With(slog.String("component", "practice-builder")),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// VocabularyPlan synthesizes each word once and lays out repeats×[clip,
// silence] per word. It returns a nil plan when no non-blank word remains.
func (b *Builder) VocabularyPlan(ctx context.Context, req VocabularyRequest) (*audio.Plan, error) {
	if err := checkRepeats(req.Repeats); err != nil {
		return nil, err
	}
	if req.SilenceSeconds < MinSilenceSeconds || req.SilenceSeconds > MaxSilenceSeconds {
		return nil, invalid("silence must be between %d and %d seconds, got %d", MinSilenceSeconds, MaxSilenceSeconds, req.SilenceSeconds)
	}
	rate, err := checkRate(req.Rate)
	if err != nil {
		return nil, err
	}

	words := make([]string, 0, len(req.Words))
	for _, w := range req.Words {
		if w = strings.TrimSpace(w); w != "" {
			words = append(words, w)
		}
	}
	if len(words) == 0 {
		return nil, nil
	}
	if req.Shuffle {
		b.shuffle(len(words), func(i, j int) { words[i], words[j] = words[j], words[i] })
	}

	voice := b.voice(req.Voice)
	silence := time.Duration(req.SilenceSeconds) * time.Second
	plan := audio.NewPlan()
	for i, word := range words {
		clip, err := b.synthesize(ctx, tts.Request{Text: word, Rate: rate, Voice: voice.Voice, Language: voice.Language})
		if err != nil {
			return nil, &UnitError{Kind: UnitWord, Index: i, Text: word, Err: err}
		}
		for r := 0; r < req.Repeats; r++ {
			plan.AddClip(clip, word)
			plan.AddSilence(silence)
		}
	}
	return plan, nil
}

// PassagePlan splits text into sentences, normalizes each for the voice's
// language, and lays out r clips separated by one-second pauses followed by
// a two-second pause. It returns a nil plan for blank text.
func (b *Builder) PassagePlan(ctx context.Context, req PassageRequest) (*audio.Plan, error) {
	if err := checkRepeats(req.Repeats); err != nil {
		return nil, err
	}
	rate, err := checkRate(req.Rate)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, nil
	}
	sentences := segment.Split(req.Text)
	if len(sentences) == 0 {
		return nil, nil
	}

	voice := b.voice(req.Voice)
	plan := audio.NewPlan()
	for i, sentence := range sentences {
		spoken := b.normalizer.Normalize(sentence, voice.Language)
		if spoken == "" {
			return nil, &UnitError{Kind: UnitSentence, Index: i, Text: sentence, Err: tts.ErrEmptyText}
		}
		clip, err := b.synthesize(ctx, tts.Request{Text: spoken, Rate: rate, Voice: voice.Voice, Language: voice.Language})
		if err != nil {
			return nil, &UnitError{Kind: UnitSentence, Index: i, Text: sentence, Err: err}
		}
		for r := 0; r < req.Repeats; r++ {
			if r > 0 {
				plan.AddSilence(InterRepeatSilence)
			}
			plan.AddClip(clip, sentence)
		}
		plan.AddSilence(InterSentenceSilence)
	}
	return plan, nil
}

// BuildVocabularyTrack renders the vocabulary drill. A nil track with a nil
// error means there was nothing to render.
func (b *Builder) BuildVocabularyTrack(ctx context.Context, req VocabularyRequest, name string) (*audio.Track, error) {
	plan, err := b.VocabularyPlan(ctx, req)
	if err != nil || plan == nil {
		return nil, err
	}
	return b.render(ctx, plan, name+"_vocab", "vocabulary")
}

// BuildPassageTrack renders the sentence repetition track. A nil track with
// a nil error means there was nothing to render.
func (b *Builder) BuildPassageTrack(ctx context.Context, req PassageRequest, name string) (*audio.Track, error) {
	plan, err := b.PassagePlan(ctx, req)
	if err != nil || plan == nil {
		return nil, err
	}
	return b.render(ctx, plan, name+"_passage", "passage")
}

func (b *Builder) render(ctx context.Context, plan *audio.Plan, name, part string) (*audio.Track, error) {
	track, err := b.assembler.Assemble(ctx, plan, name)
	if err != nil {
		return nil, fmt.Errorf("assemble %s track: %w", part, err)
	}
	clips, silences := plan.Counts()
	b.logger.Info("track built",
		slog.String("part", part),
		slog.Int("clips", clips),
		slog.Int("silences", silences),
		slog.Duration("duration", track.Duration),
		slog.String("path", track.Path))
	return track, nil
}

func (b *Builder) synthesize(ctx context.Context, req tts.Request) (*audio.Clip, error) {
	data, err := b.synth.Synthesize(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProviderFailure, err)
	}
	clip, err := audio.Decode(data)
	if err != nil {
		return nil, err
	}
	return clip, nil
}

func (b *Builder) voice(v tts.VoiceProfile) tts.VoiceProfile {
	v.Language = b.normalizer.Resolve(v.Language)
	if v.Voice == "" {
		v.Voice = tts.DefaultVoice(v.Language)
	}
	return v
}

func checkRepeats(repeats int) error {
	if repeats < MinRepeats || repeats > MaxRepeats {
		return invalid("repeats must be between %d and %d, got %d", MinRepeats, MaxRepeats, repeats)
	}
	return nil
}

func checkRate(rate string) (string, error) {
	percent, err := tts.ParseRate(rate)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return tts.FormatRate(percent), nil
}
