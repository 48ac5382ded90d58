package tts

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/mattn/go-shellwords"
)

const defaultEdgeCommand = "edge-tts"

// edgeSynth drives the edge-tts command line client, which writes MP3.
type edgeSynth struct {
	cmd []string
}

func NewEdgeSynth(command string) (Synthesizer, error) {
	if strings.TrimSpace(command) == "" {
		command = defaultEdgeCommand
	}
	args, err := shellwords.NewParser().Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse edge-tts command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("edge-tts command empty")
	}
	return &edgeSynth{cmd: args}, nil
}

func (e *edgeSynth) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyText
	}
	percent, err := ParseRate(req.Rate)
	if err != nil {
		return nil, err
	}
	voice := req.Voice
	if voice == "" {
		voice = DefaultVoice(req.Language)
	}

	out, err := os.CreateTemp("", "dictation_edge_*.mp3")
	if err != nil {
		return nil, fmt.Errorf("temp file: %w", err)
	}
	path := out.Name()
	out.Close()
	defer os.Remove(path)

	// The = form keeps values such as "-tion" from being read as flags.
	args := append([]string{}, e.cmd[1:]...)
	args = append(args,
		"--voice="+voice,
		"--rate="+FormatRate(percent),
		"--text="+req.Text,
		"--write-media="+path,
	)
	command := exec.CommandContext(ctx, e.cmd[0], args...)
	var stderr bytes.Buffer
	command.Stderr = &stderr
	if err := command.Run(); err != nil {
		return nil, fmt.Errorf("edge-tts failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read edge-tts output: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("edge-tts produced no audio")
	}
	return data, nil
}
