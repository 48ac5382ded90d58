package tts

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/loqalabs/loqa-dictation/internal/config"
)

// New builds the backend selected by cfg.Mode wrapped in a retry policy.
// Mock output uses the given sample rate and channel count.
func New(cfg config.SpeechConfig, audioCfg config.AudioConfig, logger *slog.Logger) (Synthesizer, error) {
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	var (
		backend Synthesizer
		err     error
	)
	switch cfg.Mode {
	case "mock", "":
		return NewMockSynth(audioCfg.SampleRate, audioCfg.Channels), nil
	case "exec":
		backend, err = NewExecSynth(cfg.Command)
	case "edge":
		backend, err = NewEdgeSynth(cfg.Command)
	case "google":
		backend, err = NewGoogleSynth(GoogleConfig{APIKey: cfg.APIKey, Endpoint: cfg.Endpoint, Voice: cfg.Voice, Timeout: timeout}, logger)
	case "elevenlabs":
		backend, err = NewElevenLabsSynth(ElevenLabsConfig{APIKey: cfg.APIKey, BaseURL: cfg.Endpoint, VoiceID: cfg.Voice, ModelID: cfg.Model, Timeout: timeout}, logger)
	case "openai":
		backend, err = NewOpenAISynth(OpenAIConfig{APIKey: cfg.APIKey, BaseURL: cfg.Endpoint, Model: cfg.Model, Voice: cfg.Voice}, logger)
	default:
		return nil, fmt.Errorf("unknown speech mode %q", cfg.Mode)
	}
	if err != nil {
		return nil, err
	}
	logger.Info("speech backend ready", slog.String("mode", cfg.Mode), slog.Int("max_retries", cfg.MaxRetries))
	return NewRetrying(backend, cfg.MaxRetries, timeout, logger), nil
}
