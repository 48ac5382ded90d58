package vision

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.0-flash"

type geminiExtractor struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

// NewGeminiExtractor reads worksheets with a Gemini model through the
// Gemini API backend.
func NewGeminiExtractor(ctx context.Context, apiKey, model string, logger *slog.Logger) (Extractor, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	if model == "" {
		model = defaultGeminiModel
	}
	return &geminiExtractor{
		client: client,
		model:  model,
		logger: logger.With(slog.String("component", "vision-gemini")),
	}, nil
}

func (g *geminiExtractor) Extract(ctx context.Context, image []byte, mimeType string) (Extraction, error) {
	if len(image) == 0 {
		return Extraction{}, fmt.Errorf("%w: image is empty", ErrExtraction)
	}
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(Prompt),
			genai.NewPartFromBytes(image, mimeType),
		}, genai.RoleUser),
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return Extraction{}, fmt.Errorf("%w: gemini: %w", ErrExtraction, err)
	}
	ext, err := ParseExtraction(resp.Text())
	if err != nil {
		return Extraction{}, err
	}
	g.logger.Debug("worksheet extracted",
		slog.Int("words", len(ext.Vocabulary)),
		slog.Int("passage_chars", len(ext.Passage)),
		slog.String("language", ext.Language))
	return ext, nil
}
