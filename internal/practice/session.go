package practice

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/loqalabs/loqa-dictation/internal/audio"
	"github.com/loqalabs/loqa-dictation/internal/tts"
)

// SessionRequest asks for both tracks of one worksheet. A nil part is
// skipped.
type SessionRequest struct {
	Name       string
	Vocabulary *VocabularyRequest
	Passage    *PassageRequest
}

// SessionResult carries each track and its error independently; one part
// failing never discards the other.
type SessionResult struct {
	Vocabulary    *audio.Track
	Passage       *audio.Track
	VocabularyErr error
	PassageErr    error
}

// Err joins the per-part errors.
func (r SessionResult) Err() error {
	switch {
	case r.VocabularyErr != nil && r.PassageErr != nil:
		return fmt.Errorf("vocabulary: %w; passage: %w", r.VocabularyErr, r.PassageErr)
	case r.VocabularyErr != nil:
		return fmt.Errorf("vocabulary: %w", r.VocabularyErr)
	case r.PassageErr != nil:
		return fmt.Errorf("passage: %w", r.PassageErr)
	}
	return nil
}

// Generate builds the vocabulary and passage tracks concurrently.
func (b *Builder) Generate(ctx context.Context, req SessionRequest) SessionResult {
	name := req.Name
	if strings.TrimSpace(name) == "" {
		name = "session"
	}
	var (
		result SessionResult
		wg     sync.WaitGroup
	)
	if req.Vocabulary != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result.Vocabulary, result.VocabularyErr = b.BuildVocabularyTrack(ctx, *req.Vocabulary, name)
		}()
	}
	if req.Passage != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result.Passage, result.PassageErr = b.BuildPassageTrack(ctx, *req.Passage, name)
		}()
	}
	wg.Wait()
	return result
}

type PreviewKind string

const (
	PreviewWord     PreviewKind = "word"
	PreviewSentence PreviewKind = "sentence"
)

type PreviewRequest struct {
	Kind  PreviewKind
	Text  string
	Rate  string
	Voice tts.VoiceProfile
}

// Preview synthesizes a single word or sentence for auditioning. Sentences
// are normalized the same way the passage track normalizes them. The
// provider's encoded bytes are returned unchanged.
func (b *Builder) Preview(ctx context.Context, req PreviewRequest) ([]byte, error) {
	rate, err := checkRate(req.Rate)
	if err != nil {
		return nil, err
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, invalid("preview text is empty")
	}
	voice := b.voice(req.Voice)
	kind := UnitWord
	switch req.Kind {
	case PreviewWord, "":
	case PreviewSentence:
		kind = UnitSentence
		text = b.normalizer.Normalize(text, voice.Language)
	default:
		return nil, invalid("unknown preview kind %q", req.Kind)
	}
	data, err := b.preview.Synthesize(ctx, tts.Request{Text: text, Rate: rate, Voice: voice.Voice, Language: voice.Language})
	if err != nil {
		return nil, &UnitError{Kind: kind, Text: req.Text, Err: fmt.Errorf("%w: %w", ErrProviderFailure, err)}
	}
	return data, nil
}
