package vision

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestParseExtraction(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want Extraction
	}{
		{
			name: "plain",
			raw:  `{"vocabulary":["cat","dog"],"passage":"Hello. World.","language":"en"}`,
			want: Extraction{Vocabulary: []string{"cat", "dog"}, Passage: "Hello. World.", Language: "en"},
		},
		{
			name: "json fence",
			raw:  "```json\n{\"vocabulary\":[\"蘋果\"],\"passage\":\"\",\"language\":\"zh-TW\"}\n```",
			want: Extraction{Vocabulary: []string{"蘋果"}, Passage: "", Language: "zh-tw"},
		},
		{
			name: "bare fence",
			raw:  "```\n{\"passage\":\"  Only text.  \"}\n```",
			want: Extraction{Vocabulary: []string{}, Passage: "Only text.", Language: "en"},
		},
		{
			name: "inline json fence",
			raw:  "```json{\"vocabulary\":[\" a \",\"\"]}```",
			want: Extraction{Vocabulary: []string{"a"}, Language: "en"},
		},
		{
			name: "unknown language",
			raw:  `{"vocabulary":[],"passage":"Bonjour.","language":"fr"}`,
			want: Extraction{Vocabulary: []string{}, Passage: "Bonjour.", Language: "en"},
		},
	}
	for _, tc := range cases {
		got, err := ParseExtraction(tc.raw)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if !slices.Equal(got.Vocabulary, tc.want.Vocabulary) || got.Passage != tc.want.Passage || got.Language != tc.want.Language {
			t.Fatalf("%s: got %+v, want %+v", tc.name, got, tc.want)
		}
	}
}

func TestParseExtractionRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "```json\n```", "I could not read the image."} {
		if _, err := ParseExtraction(raw); !errors.Is(err, ErrExtraction) {
			t.Fatalf("%q: expected extraction error, got %v", raw, err)
		}
	}
}

type countingExtractor struct {
	calls int
}

func (c *countingExtractor) Extract(ctx context.Context, image []byte, mimeType string) (Extraction, error) {
	c.calls++
	if string(image) == "broken" {
		return Extraction{}, ErrExtraction
	}
	return Extraction{Vocabulary: []string{string(image)}, Language: "en"}, nil
}

func TestCachedExtractor(t *testing.T) {
	inner := &countingExtractor{}
	cached, err := NewCached(inner, 4)
	if err != nil {
		t.Fatalf("new cached: %v", err)
	}
	ctx := context.Background()
	first, err := cached.Extract(ctx, []byte("sheet-1"), "image/png")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	first.Vocabulary[0] = "mutated"
	second, err := cached.Extract(ctx, []byte("sheet-1"), "image/png")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if inner.calls != 1 {
		t.Fatalf("expected one model call, got %d", inner.calls)
	}
	if second.Vocabulary[0] != "sheet-1" {
		t.Fatal("cached entry must not share slices with callers")
	}
	if _, err := cached.Extract(ctx, []byte("broken"), "image/png"); err == nil {
		t.Fatal("expected error")
	}
	if _, err := cached.Extract(ctx, []byte("broken"), "image/png"); err == nil {
		t.Fatal("expected error")
	}
	if inner.calls != 3 {
		t.Fatalf("failures must not be cached, calls=%d", inner.calls)
	}
}

func TestMockExtractor(t *testing.T) {
	m := NewMockExtractor()
	ext, err := m.Extract(context.Background(), []byte{1, 2, 3}, "image/png")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(ext.Vocabulary) == 0 || ext.Passage == "" || ext.Language != "en" {
		t.Fatalf("unexpected extraction %+v", ext)
	}
	if _, err := m.Extract(context.Background(), nil, "image/png"); !errors.Is(err, ErrExtraction) {
		t.Fatalf("expected empty image error, got %v", err)
	}
}

func TestOpenAIExtractor(t *testing.T) {
	var request map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&request)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "gpt-4o-mini",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message": map[string]any{
					"role":    "assistant",
					"content": "```json\n{\"vocabulary\":[\"貓\",\"狗\"],\"passage\":\"你好。\",\"language\":\"zh-TW\"}\n```",
				},
			}},
		})
	}))
	defer server.Close()

	extractor, err := NewOpenAIExtractor("sk-test", server.URL+"/v1", "", newLogger())
	if err != nil {
		t.Fatalf("new extractor: %v", err)
	}
	ext, err := extractor.Extract(context.Background(), []byte("png-bytes"), "image/png")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !slices.Equal(ext.Vocabulary, []string{"貓", "狗"}) || ext.Passage != "你好。" || ext.Language != "zh-tw" {
		t.Fatalf("unexpected extraction %+v", ext)
	}
	messages, _ := request["messages"].([]any)
	if len(messages) != 1 {
		t.Fatalf("expected one message, got %v", request["messages"])
	}
	parts, _ := messages[0].(map[string]any)["content"].([]any)
	if len(parts) != 2 {
		t.Fatalf("expected text and image parts, got %v", messages[0])
	}
	image, _ := parts[1].(map[string]any)["image_url"].(map[string]any)
	if url, _ := image["url"].(string); !strings.HasPrefix(url, "data:image/png;base64,") {
		t.Fatalf("unexpected image url %v", image)
	}
}
