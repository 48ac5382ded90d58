package tts

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/mattn/go-shellwords"
)

// execSynth speaks a line-oriented JSON protocol with an external program:
// one request object on stdin, one or more {"audio_base64": ...} lines on stdout.
type execSynth struct {
	cmd []string
	mu  sync.Mutex
}

type execRequest struct {
	Text     string `json:"text"`
	Voice    string `json:"voice"`
	Rate     string `json:"rate"`
	Language string `json:"language"`
}

type execResponse struct {
	AudioBase64 string `json:"audio_base64"`
	Error       string `json:"error,omitempty"`
	Final       bool   `json:"final"`
}

func NewExecSynth(command string) (Synthesizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse speech command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("speech command empty")
	}
	return &execSynth{cmd: args}, nil
}

func (e *execSynth) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyText
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	payload, err := json.Marshal(execRequest{Text: req.Text, Voice: req.Voice, Rate: req.Rate, Language: req.Language})
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, e.cmd[0], e.cmd[1:]...)
	cmd.Stdin = bytes.NewReader(payload)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start speech command: %w", err)
	}

	abort := func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}

	var audioData []byte
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 64*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var resp execResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			abort()
			return nil, fmt.Errorf("decode speech response: %w", err)
		}
		if resp.Error != "" {
			abort()
			return nil, fmt.Errorf("speech command: %s", resp.Error)
		}
		chunk, err := base64.StdEncoding.DecodeString(resp.AudioBase64)
		if err != nil {
			abort()
			return nil, fmt.Errorf("decode speech audio: %w", err)
		}
		audioData = append(audioData, chunk...)
		if resp.Final {
			break
		}
	}
	scanErr := scanner.Err()
	_, _ = io.Copy(io.Discard, stdout)
	if err := cmd.Wait(); err != nil {
		return nil, fmt.Errorf("speech command failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	if scanErr != nil {
		return nil, scanErr
	}
	if len(audioData) == 0 {
		return nil, fmt.Errorf("speech command returned no audio")
	}
	return audioData, nil
}
