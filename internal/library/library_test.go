package library

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/loqalabs/loqa-dictation/internal/audio"
	"github.com/loqalabs/loqa-dictation/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func scratchTrack(t *testing.T, content string) *audio.Track {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dictation_scratch.mp3")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return &audio.Track{Data: []byte(content), Path: path, Extension: "mp3", ContentType: "audio/mpeg"}
}

func TestSanitize(t *testing.T) {
	cases := map[string]string{
		"My Recording":   "My_Recording",
		"  spaced  ":     "spaced",
		"unit-3_week2":   "unit-3_week2",
		"第一課":            "recording",
		"!!!":            "recording",
		"":               "recording",
		"a/b\\c":         "a_b_c",
		"__keep__inner_": "keep__inner",
	}
	for in, want := range cases {
		if got := Sanitize(in); got != want {
			t.Fatalf("Sanitize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSaveWritesNamedFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "recordings")
	lib := New(dir, nil, newLogger())
	track := scratchTrack(t, "first")

	path, err := lib.Save(context.Background(), track, "My Recording", "vocab")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if filepath.Base(path) != "My_Recording_vocab.mp3" || filepath.Dir(path) != dir {
		t.Fatalf("unexpected path %q", path)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "first" {
		t.Fatalf("unexpected content %q, %v", data, err)
	}

	second := scratchTrack(t, "second")
	if _, err := lib.Save(context.Background(), second, "My Recording", "vocab"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	data, _ = os.ReadFile(path)
	if string(data) != "second" {
		t.Fatalf("expected overwrite, got %q", data)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("expected a single file, got %d", len(entries))
	}
}

func TestSaveUsesTrackExtension(t *testing.T) {
	lib := New(t.TempDir(), nil, newLogger())
	track := scratchTrack(t, "wav")
	track.Extension = "wav"
	path, err := lib.Save(context.Background(), track, "", "passage")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if filepath.Base(path) != "recording_passage.wav" {
		t.Fatalf("unexpected file %q", path)
	}
}

func TestSaveMissingSource(t *testing.T) {
	lib := New(t.TempDir(), nil, newLogger())
	track := &audio.Track{Data: []byte("x"), Path: filepath.Join(t.TempDir(), "gone.mp3"), Extension: "mp3"}
	path, err := lib.Save(context.Background(), track, "name", "vocab")
	if !errors.Is(err, ErrPersistence) || path != "" {
		t.Fatalf("expected persistence failure, got %q, %v", path, err)
	}
	if string(track.Data) != "x" {
		t.Fatal("track must be left untouched")
	}
	if _, err := lib.Save(context.Background(), nil, "name", "vocab"); !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected persistence failure for nil track, got %v", err)
	}
}

func TestSaveUnwritableDir(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	lib := New(filepath.Join(blocker, "recordings"), nil, newLogger())
	if _, err := lib.Save(context.Background(), scratchTrack(t, "x"), "n", "vocab"); !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected persistence failure, got %v", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	dir := t.TempDir()
	lib := New(dir, nil, newLogger())
	now := time.Now()
	for i, name := range []string{"old_vocab.mp3", "new_vocab.mp3", "mid_passage.mp3"} {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(name), 0o644); err != nil {
			t.Fatal(err)
		}
		offsets := []time.Duration{-3 * time.Hour, 0, -time.Hour}
		if err := os.Chtimes(path, now.Add(offsets[i]), now.Add(offsets[i])); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, ".partial"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	recordings, err := lib.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var names []string
	for _, r := range recordings {
		names = append(names, r.Name)
	}
	if strings.Join(names, ",") != "new_vocab.mp3,mid_passage.mp3,old_vocab.mp3" {
		t.Fatalf("unexpected order %v", names)
	}
}

func TestListMissingDir(t *testing.T) {
	lib := New(filepath.Join(t.TempDir(), "absent"), nil, newLogger())
	recordings, err := lib.List()
	if err != nil || len(recordings) != 0 {
		t.Fatalf("expected empty list, got %v, %v", recordings, err)
	}
}

func TestOpenRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	lib := New(dir, nil, newLogger())
	if err := os.WriteFile(filepath.Join(dir, "a_vocab.mp3"), []byte("ok"), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := lib.Open("a_vocab.mp3")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	f.Close()
	for _, name := range []string{"../secret", "", ".hidden", "sub/file.mp3", "missing.mp3"} {
		if _, err := lib.Open(name); !errors.Is(err, ErrNotFound) {
			t.Fatalf("Open(%q): expected not found, got %v", name, err)
		}
	}
}

type recordingMirror struct {
	mu    sync.Mutex
	files []string
	err   error
}

func (m *recordingMirror) Upload(_ context.Context, filename, path, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files = append(m.files, filename)
	return m.err
}

func TestSaveMirrorsAndToleratesMirrorFailure(t *testing.T) {
	mirror := &recordingMirror{err: errors.New("bucket offline")}
	lib := New(t.TempDir(), mirror, newLogger())
	path, err := lib.Save(context.Background(), scratchTrack(t, "x"), "Week 1", "passage")
	if err != nil {
		t.Fatalf("mirror failures must not fail the save: %v", err)
	}
	if len(mirror.files) != 1 || mirror.files[0] != "Week_1_passage.mp3" || filepath.Base(path) != mirror.files[0] {
		t.Fatalf("unexpected mirror uploads %v", mirror.files)
	}
}

func TestS3MirrorUpload(t *testing.T) {
	var (
		mu          sync.Mutex
		method      string
		objectPath  string
		contentType string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		method, objectPath, contentType = r.Method, r.URL.Path, r.Header.Get("Content-Type")
		mu.Unlock()
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	u, _ := url.Parse(server.URL)

	mirror, err := NewS3Mirror(config.S3Config{
		Endpoint: u.Host, Bucket: "dictation", Region: "us-east-1",
		AccessKey: "key", SecretKey: "secret", Prefix: "recordings/",
	})
	if err != nil {
		t.Fatalf("new mirror: %v", err)
	}
	track := scratchTrack(t, "audio")
	if err := mirror.Upload(context.Background(), "a_vocab.mp3", track.Path, "audio/mpeg"); err != nil {
		t.Fatalf("upload: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if method != http.MethodPut || objectPath != "/dictation/recordings/a_vocab.mp3" || contentType != "audio/mpeg" {
		t.Fatalf("unexpected request %s %s %s", method, objectPath, contentType)
	}
}
