package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultGoogleEndpoint = "https://texttospeech.googleapis.com/v1"
	googleMinSpeed        = 0.25
	googleMaxSpeed        = 4.0
)

// GoogleConfig configures the Cloud Text-to-Speech REST backend.
type GoogleConfig struct {
	APIKey   string
	Endpoint string
	Voice    string
	Timeout  time.Duration
}

type googleSynth struct {
	apiKey   string
	endpoint string
	voice    string
	client   *http.Client
	logger   *slog.Logger
}

type googleRequest struct {
	Input       googleInput       `json:"input"`
	Voice       googleVoice       `json:"voice"`
	AudioConfig googleAudioConfig `json:"audioConfig"`
}

type googleInput struct {
	Text string `json:"text"`
}

type googleVoice struct {
	LanguageCode string `json:"languageCode"`
	Name         string `json:"name,omitempty"`
}

type googleAudioConfig struct {
	AudioEncoding string  `json:"audioEncoding"`
	SpeakingRate  float64 `json:"speakingRate,omitempty"`
}

type googleResponse struct {
	AudioContent string `json:"audioContent"`
}

func NewGoogleSynth(cfg GoogleConfig, logger *slog.Logger) (Synthesizer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("google api key is required")
	}
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = defaultGoogleEndpoint
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &googleSynth{
		apiKey:   cfg.APIKey,
		endpoint: endpoint,
		voice:    cfg.Voice,
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With(slog.String("component", "tts-google")),
	}, nil
}

// googleLanguage maps our language tags onto Cloud TTS locale codes.
func googleLanguage(language string) string {
	switch strings.ToLower(language) {
	case "zh-tw", "zh-hant", "zh":
		return "cmn-TW"
	case "", "en":
		return "en-US"
	}
	return language
}

func (g *googleSynth) voiceFor(req Request) googleVoice {
	voice := req.Voice
	if voice == "" || isNeuralVoiceName(voice) {
		voice = g.voice
	}
	if voice == "" || isNeuralVoiceName(voice) {
		return googleVoice{LanguageCode: googleLanguage(req.Language)}
	}
	return googleVoice{LanguageCode: localeOf(voice), Name: voice}
}

func (g *googleSynth) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyText
	}
	speed, err := speedFactor(g.logger, "google", req.Rate, googleMinSpeed, googleMaxSpeed)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(googleRequest{
		Input:       googleInput{Text: req.Text},
		Voice:       g.voiceFor(req),
		AudioConfig: googleAudioConfig{AudioEncoding: "MP3", SpeakingRate: speed},
	})
	if err != nil {
		return nil, err
	}

	target := fmt.Sprintf("%s/text:synthesize?key=%s", g.endpoint, url.QueryEscape(g.apiKey))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("google tts request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Provider: "google", StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	var decoded googleResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode google tts response: %w", err)
	}
	audioData, err := base64.StdEncoding.DecodeString(decoded.AudioContent)
	if err != nil {
		return nil, fmt.Errorf("decode google audio content: %w", err)
	}
	if len(audioData) == 0 {
		return nil, fmt.Errorf("google tts returned no audio")
	}
	return audioData, nil
}
