package vision

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const defaultOpenAIVisionModel = openai.GPT4oMini

type openAIExtractor struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

// NewOpenAIExtractor reads worksheets with an OpenAI vision chat model. The
// image is sent inline as a data URL.
func NewOpenAIExtractor(apiKey, baseURL, model string, logger *slog.Logger) (Extractor, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if model == "" {
		model = defaultOpenAIVisionModel
	}
	return &openAIExtractor{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		logger: logger.With(slog.String("component", "vision-openai")),
	}, nil
}

func (o *openAIExtractor) Extract(ctx context.Context, image []byte, mimeType string) (Extraction, error) {
	if len(image) == 0 {
		return Extraction{}, fmt.Errorf("%w: image is empty", ErrExtraction)
	}
	if mimeType == "" {
		mimeType = "image/png"
	}
	dataURL := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(image)
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: Prompt},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: dataURL}},
			},
		}},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		return Extraction{}, fmt.Errorf("%w: openai: %w", ErrExtraction, err)
	}
	if len(resp.Choices) == 0 {
		return Extraction{}, fmt.Errorf("%w: openai returned no choices", ErrExtraction)
	}
	ext, err := ParseExtraction(resp.Choices[0].Message.Content)
	if err != nil {
		return Extraction{}, err
	}
	o.logger.Debug("worksheet extracted",
		slog.Int("words", len(ext.Vocabulary)),
		slog.String("language", ext.Language))
	return ext, nil
}
