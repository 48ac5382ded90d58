package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
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

func TestParseAndFormatRate(t *testing.T) {
	cases := map[string]int{"": 0, "-20%": -20, "+10%": 10, "+0%": 0}
	for in, want := range cases {
		got, err := ParseRate(in)
		if err != nil || got != want {
			t.Fatalf("ParseRate(%q) = %d, %v; want %d", in, got, err, want)
		}
	}
	if _, err := ParseRate("fast"); !errors.Is(err, ErrInvalidRate) {
		t.Fatalf("expected invalid rate error, got %v", err)
	}
	if FormatRate(-20) != "-20%" || FormatRate(0) != "+0%" || FormatRate(30) != "+30%" {
		t.Fatal("unexpected FormatRate output")
	}
}

func TestMockSynthProducesDecodableAudio(t *testing.T) {
	synth := NewMockSynth(16000, 1)
	short, err := synth.Synthesize(context.Background(), Request{Text: "cat", Rate: "+0%"})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	long, err := synth.Synthesize(context.Background(), Request{Text: "a much longer sentence", Rate: "+0%"})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	a, err := audio.Decode(short)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	b, err := audio.Decode(long)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if a.Format.SampleRate != 16000 || b.Duration() <= a.Duration() {
		t.Fatalf("unexpected mock clips: %v vs %v", a.Duration(), b.Duration())
	}
	if _, err := synth.Synthesize(context.Background(), Request{Text: "   "}); !errors.Is(err, ErrEmptyText) {
		t.Fatalf("expected empty text error, got %v", err)
	}
}

func TestExecSynth(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	dir := t.TempDir()
	chunkA := base64.StdEncoding.EncodeToString([]byte("RIFF"))
	chunkB := base64.StdEncoding.EncodeToString([]byte("DATA"))
	script := "cat > " + filepath.Join(dir, "request.json") + "\n" +
		"echo '{\"audio_base64\":\"" + chunkA + "\"}'\n" +
		"echo '{\"audio_base64\":\"" + chunkB + "\",\"final\":true}'\n"
	scriptPath := filepath.Join(dir, "speak.sh")
	if err := os.WriteFile(scriptPath, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	synth, err := NewExecSynth("sh " + scriptPath)
	if err != nil {
		t.Fatalf("new exec synth: %v", err)
	}
	data, err := synth.Synthesize(context.Background(), Request{Text: "hello", Voice: "v", Rate: "-20%", Language: "en"})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if string(data) != "RIFFDATA" {
		t.Fatalf("unexpected audio %q", data)
	}
	raw, err := os.ReadFile(filepath.Join(dir, "request.json"))
	if err != nil {
		t.Fatalf("read request: %v", err)
	}
	var req execRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		t.Fatalf("decode request: %v", err)
	}
	if req.Text != "hello" || req.Rate != "-20%" || req.Language != "en" {
		t.Fatalf("unexpected request %+v", req)
	}
}

func TestExecSynthReportsError(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	dir := t.TempDir()
	scriptPath := filepath.Join(dir, "fail.sh")
	if err := os.WriteFile(scriptPath, []byte("cat >/dev/null\necho '{\"error\":\"voice missing\"}'\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	synth, err := NewExecSynth("sh " + scriptPath)
	if err != nil {
		t.Fatalf("new exec synth: %v", err)
	}
	if _, err := synth.Synthesize(context.Background(), Request{Text: "hello"}); err == nil || !strings.Contains(err.Error(), "voice missing") {
		t.Fatalf("expected provider error, got %v", err)
	}
}

// fakeEdgeScript records its arguments one per line and exits 2 when a
// value flag arrives without "=", as edge-tts does for values such as "-tion".
func fakeEdgeScript(t *testing.T, dir string) string {
	t.Helper()
	argv := filepath.Join(dir, "argv.txt")
	script := ": > " + argv + "\n" +
		"out=''\n" +
		"for a in \"$@\"; do\n" +
		"  printf '%s\\n' \"$a\" >> " + argv + "\n" +
		"  case \"$a\" in\n" +
		"    --write-media=*) out=\"${a#--write-media=}\" ;;\n" +
		"    --text|--voice|--rate|--write-media) echo \"error: argument $a: expected one argument\" >&2; exit 2 ;;\n" +
		"  esac\n" +
		"done\n" +
		"printf 'ID3fake' > \"$out\"\n"
	path := filepath.Join(dir, "edge.sh")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestEdgeSynthPassesValuesInline(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	dir := t.TempDir()
	synth, err := NewEdgeSynth("sh " + fakeEdgeScript(t, dir))
	if err != nil {
		t.Fatalf("new edge synth: %v", err)
	}

	for _, word := range []string{"tion", "-tion", "--help"} {
		data, err := synth.Synthesize(context.Background(), Request{Text: word, Rate: "-20%", Language: "en"})
		if err != nil {
			t.Fatalf("synthesize %q: %v", word, err)
		}
		if string(data) != "ID3fake" {
			t.Fatalf("unexpected audio %q for %q", data, word)
		}
		raw, err := os.ReadFile(filepath.Join(dir, "argv.txt"))
		if err != nil {
			t.Fatalf("read argv: %v", err)
		}
		args := strings.Split(strings.TrimSpace(string(raw)), "\n")
		if len(args) != 4 {
			t.Fatalf("expected 4 arguments, got %q", args)
		}
		if args[0] != "--voice=en-US-AriaNeural" || args[1] != "--rate=-20%" || args[2] != "--text="+word {
			t.Fatalf("unexpected argv %q", args)
		}
		if !strings.HasPrefix(args[3], "--write-media=") {
			t.Fatalf("missing output path in %q", args)
		}
	}

	data, err := synth.Synthesize(context.Background(), Request{Text: "你好", Rate: "+5%", Voice: "zh-TW-HsiaoYuNeural", Language: "zh-tw"})
	if err != nil || string(data) != "ID3fake" {
		t.Fatalf("synthesize with explicit voice: %q, %v", data, err)
	}
	raw, _ := os.ReadFile(filepath.Join(dir, "argv.txt"))
	if !strings.Contains(string(raw), "--voice=zh-TW-HsiaoYuNeural\n--rate=+5%\n--text=你好\n") {
		t.Fatalf("unexpected argv %q", raw)
	}
}

func TestEdgeSynthReportsFailure(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "edge.sh")
	if err := os.WriteFile(path, []byte("echo 'no voices available' >&2\nexit 1\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	synth, err := NewEdgeSynth("sh " + path)
	if err != nil {
		t.Fatalf("new edge synth: %v", err)
	}
	if _, err := synth.Synthesize(context.Background(), Request{Text: "cat"}); err == nil || !strings.Contains(err.Error(), "no voices available") {
		t.Fatalf("expected edge-tts failure, got %v", err)
	}
	if _, err := synth.Synthesize(context.Background(), Request{Text: "  "}); !errors.Is(err, ErrEmptyText) {
		t.Fatalf("expected ErrEmptyText, got %v", err)
	}
}

func TestGoogleSynth(t *testing.T) {
	var got googleRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/text:synthesize" || r.URL.Query().Get("key") != "secret" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(googleResponse{AudioContent: base64.StdEncoding.EncodeToString([]byte("mp3-bytes"))})
	}))
	defer server.Close()

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	synth, err := NewGoogleSynth(GoogleConfig{APIKey: "secret", Endpoint: server.URL}, logger)
	if err != nil {
		t.Fatalf("new google synth: %v", err)
	}

	data, err := synth.Synthesize(context.Background(), Request{Text: "你好", Rate: "-20%", Voice: "zh-TW-HsiaoChenNeural", Language: "zh-tw"})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if string(data) != "mp3-bytes" {
		t.Fatalf("unexpected audio %q", data)
	}
	if got.Voice.LanguageCode != "cmn-TW" || got.Voice.Name != "" {
		t.Fatalf("unexpected voice %+v", got.Voice)
	}
	if got.AudioConfig.SpeakingRate != 0.8 || got.AudioConfig.AudioEncoding != "MP3" {
		t.Fatalf("unexpected audio config %+v", got.AudioConfig)
	}
	if strings.Contains(logs.String(), "clamped") {
		t.Fatal("did not expect a clamp warning for -20%")
	}

	if _, err := synth.Synthesize(context.Background(), Request{Text: "hi", Rate: "-100%", Voice: "en-US-Standard-C"}); err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if got.AudioConfig.SpeakingRate != googleMinSpeed {
		t.Fatalf("expected clamped rate %v, got %v", googleMinSpeed, got.AudioConfig.SpeakingRate)
	}
	if got.Voice.Name != "en-US-Standard-C" || got.Voice.LanguageCode != "en-US" {
		t.Fatalf("unexpected voice %+v", got.Voice)
	}
	if !strings.Contains(logs.String(), "speech rate clamped") {
		t.Fatalf("expected clamp warning, logs: %s", logs.String())
	}
}

func TestGoogleSynthStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota", http.StatusTooManyRequests)
	}))
	defer server.Close()
	synth, err := NewGoogleSynth(GoogleConfig{APIKey: "k", Endpoint: server.URL}, newLogger())
	if err != nil {
		t.Fatalf("new google synth: %v", err)
	}
	_, err = synth.Synthesize(context.Background(), Request{Text: "hi"})
	var status *StatusError
	if !errors.As(err, &status) || status.StatusCode != http.StatusTooManyRequests || !status.Retryable() {
		t.Fatalf("expected retryable status error, got %v", err)
	}
}

func TestElevenLabsSynth(t *testing.T) {
	var got elevenLabsRequest
	var path, key string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		key = r.Header.Get("xi-api-key")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("mp3"))
	}))
	defer server.Close()

	synth, err := NewElevenLabsSynth(ElevenLabsConfig{APIKey: "xi", BaseURL: server.URL}, newLogger())
	if err != nil {
		t.Fatalf("new elevenlabs synth: %v", err)
	}
	data, err := synth.Synthesize(context.Background(), Request{Text: "cat", Rate: "-50%", Voice: "en-US-AriaNeural", Language: "en"})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if string(data) != "mp3" || key != "xi" {
		t.Fatalf("unexpected response %q key=%q", data, key)
	}
	if path != "/text-to-speech/"+defaultElevenLabsVoice {
		t.Fatalf("unexpected path %q", path)
	}
	if got.VoiceSettings.Speed != elevenLabsMinSpeed || got.LanguageCode != "en" {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestOpenAISynth(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/audio/speech") {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("openai-mp3"))
	}))
	defer server.Close()

	synth, err := NewOpenAISynth(OpenAIConfig{APIKey: "sk", BaseURL: server.URL + "/v1", Voice: "nova"}, newLogger())
	if err != nil {
		t.Fatalf("new openai synth: %v", err)
	}
	data, err := synth.Synthesize(context.Background(), Request{Text: "dog", Rate: "+10%", Voice: "en-US-GuyNeural"})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if string(data) != "openai-mp3" {
		t.Fatalf("unexpected audio %q", data)
	}
	if body["voice"] != "nova" || body["input"] != "dog" || body["speed"] != 1.1 {
		t.Fatalf("unexpected request body %v", body)
	}
}

type countingSynth struct {
	mu    sync.Mutex
	calls int
	errs  []error
}

func (c *countingSynth) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if len(c.errs) > 0 {
		err := c.errs[0]
		c.errs = c.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return []byte(req.Text + "|" + req.Rate + "|" + req.Voice), nil
}

func TestCachedSynth(t *testing.T) {
	inner := &countingSynth{}
	cached, err := NewCached(inner, 8)
	if err != nil {
		t.Fatalf("new cached: %v", err)
	}
	ctx := context.Background()
	req := Request{Text: "cat", Rate: "-20%", Voice: "en-US-AriaNeural"}
	for i := 0; i < 3; i++ {
		if _, err := cached.Synthesize(ctx, req); err != nil {
			t.Fatalf("synthesize: %v", err)
		}
	}
	if inner.calls != 1 {
		t.Fatalf("expected 1 backend call, got %d", inner.calls)
	}
	req.Rate = "+0%"
	if _, err := cached.Synthesize(ctx, req); err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if inner.calls != 2 || cached.Len() != 2 {
		t.Fatalf("expected a second entry for a new rate, calls=%d len=%d", inner.calls, cached.Len())
	}

	inner.errs = []error{errors.New("boom")}
	req.Text = "dog"
	if _, err := cached.Synthesize(ctx, req); err == nil {
		t.Fatal("expected error")
	}
	if cached.Len() != 2 {
		t.Fatal("failures must not be cached")
	}
}

func TestRetryingSynth(t *testing.T) {
	inner := &countingSynth{errs: []error{
		&StatusError{Provider: "x", StatusCode: 503},
		errors.New("connection reset"),
	}}
	r := NewRetrying(inner, 3, time.Second, newLogger())
	r.initial = time.Millisecond
	data, err := r.Synthesize(context.Background(), Request{Text: "cat"})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if inner.calls != 3 || !strings.HasPrefix(string(data), "cat") {
		t.Fatalf("expected success on third call, calls=%d", inner.calls)
	}
}

func TestRetryingStopsOnPermanentError(t *testing.T) {
	inner := &countingSynth{errs: []error{&StatusError{Provider: "x", StatusCode: 400, Body: "bad voice"}}}
	r := NewRetrying(inner, 3, time.Second, newLogger())
	r.initial = time.Millisecond
	_, err := r.Synthesize(context.Background(), Request{Text: "cat"})
	var status *StatusError
	if !errors.As(err, &status) || status.StatusCode != 400 {
		t.Fatalf("expected status error, got %v", err)
	}
	if inner.calls != 1 {
		t.Fatalf("expected a single call, got %d", inner.calls)
	}
}

func TestRetryingGivesUp(t *testing.T) {
	fail := errors.New("down")
	inner := &countingSynth{errs: []error{fail, fail, fail}}
	r := NewRetrying(inner, 1, time.Second, newLogger())
	r.initial = time.Millisecond
	if _, err := r.Synthesize(context.Background(), Request{Text: "cat"}); !errors.Is(err, fail) {
		t.Fatalf("expected last error, got %v", err)
	}
	if inner.calls != 2 {
		t.Fatalf("expected 2 calls, got %d", inner.calls)
	}
}

func TestVoices(t *testing.T) {
	if n := len(Voices("zh-TW")); n != 4 {
		t.Fatalf("expected 4 zh-tw voices, got %d", n)
	}
	if DefaultVoice("en") != "en-US-AriaNeural" {
		t.Fatalf("unexpected default english voice %q", DefaultVoice("en"))
	}
	if DefaultVoice("zh-tw") != "zh-TW-HsiaoChenNeural" {
		t.Fatalf("unexpected default zh voice %q", DefaultVoice("zh-tw"))
	}
	if DefaultVoice("klingon") != "en-US-AriaNeural" {
		t.Fatal("unknown language should fall back to english voices")
	}
}

func TestFactory(t *testing.T) {
	cfg := config.Default()
	synth, err := New(cfg.Speech, cfg.Audio, newLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := synth.Synthesize(context.Background(), Request{Text: "hello"}); err != nil {
		t.Fatalf("mock synth: %v", err)
	}
	cfg.Speech.Mode = "carrier-pigeon"
	if _, err := New(cfg.Speech, cfg.Audio, newLogger()); err == nil {
		t.Fatal("expected unknown mode error")
	}
}
