package audio

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Track is a rendered practice track: the encoded bytes plus the scratch
// file they were written to.
type Track struct {
	Data        []byte
	Path        string
	Duration    time.Duration
	Extension   string
	ContentType string
}

// Assembler renders plans with a single bulk encode per track.
type Assembler struct {
	encoder    Encoder
	layout     Format
	scratchDir string
	logger     *slog.Logger
}

// NewAssembler returns an assembler. layout supplies the channel count of
// rendered tracks and the sample rate of silence-only plans; scratchDir
// defaults to the OS temp directory.
func NewAssembler(encoder Encoder, layout Format, scratchDir string, logger *slog.Logger) *Assembler {
	return &Assembler{
		encoder:    encoder,
		layout:     layout,
		scratchDir: scratchDir,
		logger:     logger.With(slog.String("component", "audio-assembler")),
	}
}

func (a *Assembler) Extension() string {
	return a.encoder.Extension()
}

// Assemble concatenates plan in order and encodes it once. name only
// influences the scratch file name.
func (a *Assembler) Assemble(ctx context.Context, plan *Plan, name string) (*Track, error) {
	pcm, err := Concat(plan, a.layout)
	if err != nil {
		return nil, err
	}
	if a.scratchDir != "" {
		if err := os.MkdirAll(a.scratchDir, 0o755); err != nil {
			return nil, fmt.Errorf("create scratch dir: %w", err)
		}
	}
	pattern := fmt.Sprintf("dictation_%s_*.%s", scratchName(name), a.encoder.Extension())
	file, err := os.CreateTemp(a.scratchDir, pattern)
	if err != nil {
		return nil, fmt.Errorf("create scratch file: %w", err)
	}
	path := file.Name()

	start := time.Now()
	if err := a.encoder.Encode(ctx, pcm, file); err != nil {
		file.Close()
		os.Remove(path)
		return nil, fmt.Errorf("encode track: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("close scratch file: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scratch file: %w", err)
	}

	track := &Track{
		Data:        data,
		Path:        path,
		Duration:    pcm.Duration(),
		Extension:   a.encoder.Extension(),
		ContentType: a.encoder.ContentType(),
	}
	a.logger.Debug("track assembled",
		slog.String("path", path),
		slog.Int("segments", plan.Len()),
		slog.Duration("duration", track.Duration),
		slog.Duration("encode_time", time.Since(start)))
	return track, nil
}

func scratchName(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' {
			return r
		}
		return '_'
	}, name)
	if cleaned == "" {
		return "track"
	}
	return cleaned
}
