package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	defaultElevenLabsURL   = "https://api.elevenlabs.io/v1"
	defaultElevenLabsVoice = "21m00Tcm4TlvDq8ikWAM" // Rachel
	defaultElevenLabsModel = "eleven_multilingual_v2"
	elevenLabsOutputFormat = "mp3_44100_128"
	elevenLabsStability    = 0.5
	elevenLabsSimilarity   = 0.75
	elevenLabsMinSpeed     = 0.7
	elevenLabsMaxSpeed     = 1.2
)

// ElevenLabsConfig configures the ElevenLabs backend. Only APIKey is required.
type ElevenLabsConfig struct {
	APIKey  string
	BaseURL string
	VoiceID string
	ModelID string
	Timeout time.Duration
}

type elevenLabsSynth struct {
	apiKey  string
	baseURL string
	voiceID string
	modelID string
	client  *http.Client
	logger  *slog.Logger
}

type elevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Speed           float64 `json:"speed,omitempty"`
}

type elevenLabsRequest struct {
	Text          string                  `json:"text"`
	ModelID       string                  `json:"model_id"`
	LanguageCode  string                  `json:"language_code,omitempty"`
	VoiceSettings elevenLabsVoiceSettings `json:"voice_settings"`
}

func NewElevenLabsSynth(cfg ElevenLabsConfig, logger *slog.Logger) (Synthesizer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("eleven labs API key is required")
	}
	logger = logger.With(slog.String("component", "tts-elevenlabs"))
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultElevenLabsURL
	}
	voiceID := cfg.VoiceID
	if voiceID == "" || isNeuralVoiceName(voiceID) {
		voiceID = defaultElevenLabsVoice
		logger.Info("using default voice ID", slog.String("voice_id", voiceID))
	}
	modelID := cfg.ModelID
	if modelID == "" {
		modelID = defaultElevenLabsModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &elevenLabsSynth{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		voiceID: voiceID,
		modelID: modelID,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}, nil
}

func (e *elevenLabsSynth) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyText
	}
	speed, err := speedFactor(e.logger, "elevenlabs", req.Rate, elevenLabsMinSpeed, elevenLabsMaxSpeed)
	if err != nil {
		return nil, err
	}
	voiceID := req.Voice
	if voiceID == "" || isNeuralVoiceName(voiceID) {
		voiceID = e.voiceID
	}
	language := ""
	if req.Language != "" {
		language = strings.ToLower(strings.SplitN(req.Language, "-", 2)[0])
	}
	body, err := json.Marshal(elevenLabsRequest{
		Text:         req.Text,
		ModelID:      e.modelID,
		LanguageCode: language,
		VoiceSettings: elevenLabsVoiceSettings{
			Stability:       elevenLabsStability,
			SimilarityBoost: elevenLabsSimilarity,
			Speed:           speed,
		},
	})
	if err != nil {
		return nil, err
	}

	target := fmt.Sprintf("%s/text-to-speech/%s?output_format=%s", e.baseURL, voiceID, elevenLabsOutputFormat)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/mpeg")
	httpReq.Header.Set("xi-api-key", e.apiKey)

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("eleven labs request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Provider: "elevenlabs", StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read eleven labs audio: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("eleven labs returned no audio")
	}
	return data, nil
}
