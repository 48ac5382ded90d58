package tts

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/loqalabs/loqa-dictation/internal/config"
)

// Request describes one utterance to synthesize.
type Request struct {
	Text     string
	Rate     string // signed percentage such as "-20%"
	Voice    string
	Language string
}

// Synthesizer is the contract for turning text into encoded audio bytes
// (MP3 or WAV). Implementations never return partial audio with a nil error.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) ([]byte, error)
}

// VoiceProfile fixes the voice and language used for a whole track.
type VoiceProfile struct {
	Language string `json:"language"`
	Voice    string `json:"voice"`
}

var (
	ErrEmptyText   = errors.New("text to synthesize is empty")
	ErrInvalidRate = errors.New("rate must be a signed percentage like -20% or +10%")
)

// StatusError is returned by HTTP backends for non-2xx responses.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// Retryable reports whether a later attempt may succeed.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// ParseRate converts "-20%" into -20. An empty rate means 0.
func ParseRate(rate string) (int, error) {
	rate = strings.TrimSpace(rate)
	if rate == "" {
		return 0, nil
	}
	if !config.ValidRate(rate) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidRate, rate)
	}
	return strconv.Atoi(strings.TrimSuffix(rate, "%"))
}

// FormatRate renders a percentage the way edge-tts expects it.
func FormatRate(percent int) string {
	return fmt.Sprintf("%+d%%", percent)
}
