package vision

import (
	"context"
	"crypto/sha256"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cached remembers extractions by the SHA-256 of the image bytes so that
// re-uploading the same worksheet does not call the model again.
type Cached struct {
	next  Extractor
	cache *lru.Cache[[sha256.Size]byte, Extraction]
}

func NewCached(next Extractor, size int) (*Cached, error) {
	cache, err := lru.New[[sha256.Size]byte, Extraction](size)
	if err != nil {
		return nil, fmt.Errorf("create extraction cache: %w", err)
	}
	return &Cached{next: next, cache: cache}, nil
}

func (c *Cached) Extract(ctx context.Context, image []byte, mimeType string) (Extraction, error) {
	key := sha256.Sum256(image)
	if ext, ok := c.cache.Get(key); ok {
		return clone(ext), nil
	}
	ext, err := c.next.Extract(ctx, image, mimeType)
	if err != nil {
		return Extraction{}, err
	}
	c.cache.Add(key, clone(ext))
	return ext, nil
}

func clone(e Extraction) Extraction {
	e.Vocabulary = append([]string{}, e.Vocabulary...)
	return e
}
