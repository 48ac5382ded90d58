package vision

import (
	"context"
	"fmt"
)

// MockExtractor returns a fixed extraction for every non-empty image.
type MockExtractor struct {
	Result Extraction
}

func NewMockExtractor() *MockExtractor {
	return &MockExtractor{Result: Extraction{
		Vocabulary: []string{"apple", "banana", "cherry"},
		Passage:    "The cat sat on the mat. Where is the dog? It is in the garden!",
		Language:   "en",
	}}
}

func (m *MockExtractor) Extract(ctx context.Context, image []byte, mimeType string) (Extraction, error) {
	if err := ctx.Err(); err != nil {
		return Extraction{}, err
	}
	if len(image) == 0 {
		return Extraction{}, fmt.Errorf("%w: image is empty", ErrExtraction)
	}
	out := m.Result
	out.Vocabulary = append([]string(nil), m.Result.Vocabulary...)
	return out, nil
}
