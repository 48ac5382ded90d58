package tts

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

type cacheKey struct {
	text     string
	rate     string
	voice    string
	language string
}

// Cached memoizes synthesized audio by (text, rate, voice, language). The
// owner decides its lifetime; nothing is shared between instances.
type Cached struct {
	next  Synthesizer
	cache *lru.Cache[cacheKey, []byte]
}

func NewCached(next Synthesizer, size int) (*Cached, error) {
	cache, err := lru.New[cacheKey, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("create speech cache: %w", err)
	}
	return &Cached{next: next, cache: cache}, nil
}

func (c *Cached) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	key := cacheKey{text: req.Text, rate: req.Rate, voice: req.Voice, language: req.Language}
	if data, ok := c.cache.Get(key); ok {
		return data, nil
	}
	data, err := c.next.Synthesize(ctx, req)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, data)
	return data, nil
}

func (c *Cached) Len() int {
	return c.cache.Len()
}

func (c *Cached) Purge() {
	c.cache.Purge()
}
