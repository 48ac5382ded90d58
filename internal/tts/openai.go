package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const (
	openAIMinSpeed = 0.25
	openAIMaxSpeed = 4.0
)

var openAIVoices = map[string]bool{
	"alloy": true, "echo": true, "fable": true, "onyx": true, "nova": true, "shimmer": true,
}

// OpenAIConfig configures the OpenAI speech backend.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Voice   string
}

type openAISynth struct {
	client *openai.Client
	model  openai.SpeechModel
	voice  openai.SpeechVoice
	logger *slog.Logger
}

func NewOpenAISynth(cfg OpenAIConfig, logger *slog.Logger) (Synthesizer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	model := openai.SpeechModel(cfg.Model)
	if cfg.Model == "" {
		model = openai.TTSModel1
	}
	voice := openai.VoiceAlloy
	if openAIVoices[strings.ToLower(cfg.Voice)] {
		voice = openai.SpeechVoice(strings.ToLower(cfg.Voice))
	}
	return &openAISynth{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
		voice:  voice,
		logger: logger.With(slog.String("component", "tts-openai")),
	}, nil
}

func (o *openAISynth) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyText
	}
	speed, err := speedFactor(o.logger, "openai", req.Rate, openAIMinSpeed, openAIMaxSpeed)
	if err != nil {
		return nil, err
	}
	voice := o.voice
	if openAIVoices[strings.ToLower(req.Voice)] {
		voice = openai.SpeechVoice(strings.ToLower(req.Voice))
	}
	resp, err := o.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          o.model,
		Input:          req.Text,
		Voice:          voice,
		ResponseFormat: openai.SpeechResponseFormatMp3,
		Speed:          speed,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return nil, &StatusError{Provider: "openai", StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message}
		}
		return nil, fmt.Errorf("openai speech: %w", err)
	}
	defer resp.Close()
	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("read openai audio: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("openai returned no audio")
	}
	return data, nil
}
