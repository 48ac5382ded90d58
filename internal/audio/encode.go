package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/loqalabs/loqa-dictation/internal/config"
	"github.com/mattn/go-shellwords"
)

// Encoder writes a whole clip in one container format.
type Encoder interface {
	Encode(ctx context.Context, clip *Clip, dst io.WriteSeeker) error
	Extension() string
	ContentType() string
}

// NewEncoder builds the encoder selected by cfg.Format.
func NewEncoder(cfg config.AudioConfig) (Encoder, error) {
	switch cfg.Format {
	case "wav":
		return WAVEncoder{}, nil
	case "mp3", "":
		return NewExecEncoder(cfg.EncoderCommand, "mp3", "audio/mpeg")
	default:
		return nil, fmt.Errorf("unsupported audio format %q", cfg.Format)
	}
}

// WAVEncoder writes 16-bit PCM WAV through go-audio.
type WAVEncoder struct{}

func (WAVEncoder) Extension() string   { return "wav" }
func (WAVEncoder) ContentType() string { return "audio/wav" }

func (WAVEncoder) Encode(_ context.Context, clip *Clip, dst io.WriteSeeker) error {
	buffer := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: clip.Format.Channels, SampleRate: clip.Format.SampleRate},
		SourceBitDepth: 16,
		Data:           make([]int, len(clip.Samples)),
	}
	for i, s := range clip.Samples {
		buffer.Data[i] = int(s)
	}
	enc := wav.NewEncoder(dst, clip.Format.SampleRate, 16, clip.Format.Channels, 1)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}

// EncodeWAV returns clip as an in-memory WAV file.
func EncodeWAV(clip *Clip) ([]byte, error) {
	var buf memFile
	if err := (WAVEncoder{}).Encode(context.Background(), clip, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ExecEncoder hands a WAV rendering of the clip to an external command such
// as ffmpeg. The command template must contain {input} and {output}.
type ExecEncoder struct {
	args        []string
	ext         string
	contentType string
}

func NewExecEncoder(command, ext, contentType string) (*ExecEncoder, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse encoder command: %w", err)
	}
	if len(args) == 0 {
		return nil, errors.New("encoder command empty")
	}
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "{input}") || !strings.Contains(joined, "{output}") {
		return nil, errors.New("encoder command must reference {input} and {output}")
	}
	return &ExecEncoder{args: args, ext: ext, contentType: contentType}, nil
}

func (e *ExecEncoder) Extension() string   { return e.ext }
func (e *ExecEncoder) ContentType() string { return e.contentType }

func (e *ExecEncoder) Encode(ctx context.Context, clip *Clip, dst io.WriteSeeker) error {
	dir, err := os.MkdirTemp("", "dictation_encode_*")
	if err != nil {
		return fmt.Errorf("temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	input := filepath.Join(dir, "input.wav")
	output := filepath.Join(dir, "output."+e.ext)
	in, err := os.Create(input)
	if err != nil {
		return fmt.Errorf("create encoder input: %w", err)
	}
	if err := (WAVEncoder{}).Encode(ctx, clip, in); err != nil {
		in.Close()
		return err
	}
	if err := in.Close(); err != nil {
		return fmt.Errorf("close encoder input: %w", err)
	}

	args := make([]string, len(e.args))
	for i, a := range e.args {
		a = strings.ReplaceAll(a, "{input}", input)
		args[i] = strings.ReplaceAll(a, "{output}", output)
	}
	command := exec.CommandContext(ctx, args[0], args[1:]...)
	var stderr bytes.Buffer
	command.Stderr = &stderr
	if err := command.Run(); err != nil {
		return fmt.Errorf("encoder command failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	out, err := os.Open(output)
	if err != nil {
		return fmt.Errorf("encoder produced no output: %w", err)
	}
	defer out.Close()
	if _, err := io.Copy(dst, out); err != nil {
		return fmt.Errorf("copy encoded audio: %w", err)
	}
	return nil
}

// memFile is a growable in-memory io.WriteSeeker.
type memFile struct {
	data []byte
	pos  int
}

func (m *memFile) Write(p []byte) (int, error) {
	end := m.pos + len(p)
	if end > len(m.data) {
		m.data = append(m.data, make([]byte, end-len(m.data))...)
	}
	copy(m.data[m.pos:], p)
	m.pos = end
	return len(p), nil
}

func (m *memFile) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = int64(m.pos)
	case io.SeekEnd:
		base = int64(len(m.data))
	default:
		return 0, errors.New("invalid whence")
	}
	next := base + offset
	if next < 0 {
		return 0, errors.New("negative position")
	}
	m.pos = int(next)
	return next, nil
}

func (m *memFile) Bytes() []byte {
	return m.data
}
