package vision

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/loqalabs/loqa-dictation/internal/config"
)

// New builds the extractor selected by cfg.Mode, wrapped in a cache when
// cfg.CacheSize is positive.
func New(ctx context.Context, cfg config.VisionConfig, logger *slog.Logger) (Extractor, error) {
	var (
		extractor Extractor
		err       error
	)
	switch cfg.Mode {
	case "mock", "":
		extractor = NewMockExtractor()
	case "gemini":
		extractor, err = NewGeminiExtractor(ctx, cfg.APIKey, cfg.Model, logger)
	case "openai":
		extractor, err = NewOpenAIExtractor(cfg.APIKey, "", cfg.Model, logger)
	default:
		return nil, fmt.Errorf("unknown vision mode %q", cfg.Mode)
	}
	if err != nil {
		return nil, err
	}
	if cfg.CacheSize > 0 {
		return NewCached(extractor, cfg.CacheSize)
	}
	return extractor, nil
}
