// Package library stores rendered tracks as named recordings.
package library

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/loqalabs/loqa-dictation/internal/audio"
)

const DefaultName = "recording"

var (
	ErrPersistence = errors.New("recording could not be saved")
	ErrNotFound    = errors.New("recording not found")
)

// Mirror receives a copy of every saved recording.
type Mirror interface {
	Upload(ctx context.Context, filename, path, contentType string) error
}

type Recording struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

type Library struct {
	dir    string
	mirror Mirror
	logger *slog.Logger
}

// New returns a library rooted at dir. mirror may be nil.
func New(dir string, mirror Mirror, logger *slog.Logger) *Library {
	return &Library{
		dir:    dir,
		mirror: mirror,
		logger: logger.With(slog.String("component", "library")),
	}
}

func (l *Library) Dir() string {
	return l.dir
}

// Sanitize keeps ASCII letters, digits, '_' and '-', replaces everything
// else with '_', and trims underscores from both ends.
func Sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	cleaned := strings.Trim(b.String(), "_")
	if cleaned == "" {
		return DefaultName
	}
	return cleaned
}

// Filename is the name Save uses for a track part.
func Filename(name, part, ext string) string {
	if ext == "" {
		ext = "mp3"
	}
	return fmt.Sprintf("%s_%s.%s", Sanitize(name), part, ext)
}

// Save copies the track's scratch file into the library as
// {name}_{part}.{ext}, replacing any earlier recording of that name. The
// track itself is never modified.
func (l *Library) Save(ctx context.Context, track *audio.Track, name, part string) (string, error) {
	if track == nil || track.Path == "" {
		return "", fmt.Errorf("%w: track has no audio file", ErrPersistence)
	}
	src, err := os.Open(track.Path)
	if err != nil {
		return "", fmt.Errorf("%w: open source: %w", ErrPersistence, err)
	}
	defer src.Close()

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create library dir: %w", ErrPersistence, err)
	}
	filename := Filename(name, part, track.Extension)
	dest := filepath.Join(l.dir, filename)

	tmp, err := os.CreateTemp(l.dir, "."+filename+".*")
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("%w: copy: %w", ErrPersistence, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	l.logger.Info("recording saved", slog.String("path", dest))

	if l.mirror != nil {
		if err := l.mirror.Upload(ctx, filename, dest, track.ContentType); err != nil {
			l.logger.Warn("recording mirror upload failed",
				slog.String("file", filename),
				slog.String("error", err.Error()))
		}
	}
	return dest, nil
}

// List returns saved recordings, newest first.
func (l *Library) List() ([]Recording, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read library dir: %w", err)
	}
	recordings := make([]Recording, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		recordings = append(recordings, Recording{Name: entry.Name(), Size: info.Size(), Modified: info.ModTime()})
	}
	sort.SliceStable(recordings, func(i, j int) bool {
		if recordings[i].Modified.Equal(recordings[j].Modified) {
			return recordings[i].Name < recordings[j].Name
		}
		return recordings[i].Modified.After(recordings[j].Modified)
	})
	return recordings, nil
}

// Open opens a recording by file name. Names that would leave the library
// directory are rejected.
func (l *Library) Open(filename string) (*os.File, error) {
	if filename == "" || filename != filepath.Base(filename) || strings.HasPrefix(filename, ".") || strings.ContainsAny(filename, `/\`) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, filename)
	}
	f, err := os.Open(filepath.Join(l.dir, filename))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, filename)
		}
		return nil, err
	}
	return f, nil
}
