// Package vision asks a vision-language model to read a dictation worksheet
// and return its vocabulary list and passage.
package vision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/loqalabs/loqa-dictation/internal/textnorm"
)

var ErrExtraction = errors.New("worksheet extraction failed")

// Extraction is the record a model returns for one worksheet image.
type Extraction struct {
	Vocabulary []string `json:"vocabulary"`
	Passage    string   `json:"passage"`
	Language   string   `json:"language"`
}

type Extractor interface {
	Extract(ctx context.Context, image []byte, mimeType string) (Extraction, error)
}

const Prompt = `Analyze this image and extract the text for a dictation practice session.
Return ONLY a raw JSON object (no markdown formatting) with the following structure:
{
    "vocabulary": ["word1", "word2", ...],
    "passage": "The full passage text...",
    "language": "en"
}
"language" should be "en" for English or "zh-tw" for Traditional Chinese. Default to "en" if unsure.
If there is only vocabulary, leave "passage" as an empty string.
If there is only a passage, leave "vocabulary" as an empty list.
Ensure the JSON is valid.`

// ParseExtraction decodes a model reply. Markdown code fences are stripped,
// missing fields become empty, and the language tag is canonicalized with
// "en" as the default.
func ParseExtraction(raw string) (Extraction, error) {
	text := stripFences(raw)
	if text == "" {
		return Extraction{}, fmt.Errorf("%w: empty model reply", ErrExtraction)
	}
	var ext Extraction
	if err := json.Unmarshal([]byte(text), &ext); err != nil {
		return Extraction{}, fmt.Errorf("%w: decode reply: %w", ErrExtraction, err)
	}
	words := ext.Vocabulary[:0]
	for _, w := range ext.Vocabulary {
		if w = strings.TrimSpace(w); w != "" {
			words = append(words, w)
		}
	}
	if len(words) == 0 {
		words = []string{}
	}
	ext.Vocabulary = words
	ext.Passage = strings.TrimSpace(ext.Passage)
	ext.Language = textnorm.Standard().Resolve(ext.Language)
	return ext, nil
}

func stripFences(raw string) string {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if nl := strings.IndexByte(text, '\n'); nl >= 0 && !strings.Contains(text[:nl], "{") {
			text = text[nl+1:]
		} else {
			text = strings.TrimPrefix(text, "json")
		}
	}
	text = strings.TrimSpace(text)
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
