package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
	if cfg.Practice.VocabularyRepeats != 2 || cfg.Practice.VocabularySilenceSeconds != 3 || cfg.Practice.PassageRepeats != 3 {
		t.Fatalf("unexpected practice defaults: %+v", cfg.Practice)
	}
	if cfg.Practice.PassageRate != "-20%" {
		t.Fatalf("expected default rate -20%%, got %q", cfg.Practice.PassageRate)
	}
	if cfg.Library.Dir != "./recordings" {
		t.Fatalf("expected default recordings dir, got %q", cfg.Library.Dir)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DICTATION_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("DICTATION_BUS_USERNAME", "alice")
	t.Setenv("DICTATION_BUS_PASSWORD", "secret")
	t.Setenv("DICTATION_BUS_TLS_INSECURE", "true")
	t.Setenv("DICTATION_BUS_CONNECT_TIMEOUT_MS", "5000")
	t.Setenv("DICTATION_EVENT_STORE_PATH", "./tmp.db")
	t.Setenv("DICTATION_EVENT_STORE_RETENTION_MODE", "persistent")
	t.Setenv("DICTATION_EVENT_STORE_RETENTION_DAYS", "7")
	t.Setenv("DICTATION_EVENT_STORE_MAX_JOBS", "123")
	t.Setenv("DICTATION_EVENT_STORE_VACUUM_ON_START", "true")
	t.Setenv("DICTATION_SPEECH_MODE", "edge")
	t.Setenv("DICTATION_SPEECH_VOICE", "zh-TW-HsiaoChenNeural")
	t.Setenv("DICTATION_PRACTICE_PASSAGE_REPEATS", "5")
	t.Setenv("DICTATION_PRACTICE_PASSAGE_RATE", "+10%")
	t.Setenv("DICTATION_AUDIO_FORMAT", "wav")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatalf("expected credentials override")
	}
	if !cfg.Bus.TLSInsecure {
		t.Fatal("expected tls insecure override true")
	}
	if cfg.Bus.ConnectTimeout != 5000 {
		t.Fatalf("expected timeout 5000, got %d", cfg.Bus.ConnectTimeout)
	}
	if cfg.EventStore.Path != "./tmp.db" {
		t.Fatalf("expected event store path override")
	}
	if cfg.EventStore.RetentionMode != "persistent" {
		t.Fatalf("expected event store retention mode override")
	}
	if cfg.EventStore.RetentionDays != 7 {
		t.Fatalf("expected event store retention days override")
	}
	if cfg.EventStore.MaxJobs != 123 {
		t.Fatalf("expected event store max jobs override")
	}
	if !cfg.EventStore.VacuumOnStart {
		t.Fatalf("expected event store vacuum flag override")
	}
	if cfg.Speech.Mode != "edge" || cfg.Speech.Voice != "zh-TW-HsiaoChenNeural" {
		t.Fatalf("expected speech override, got %+v", cfg.Speech)
	}
	if cfg.Practice.PassageRepeats != 5 || cfg.Practice.PassageRate != "+10%" {
		t.Fatalf("expected practice override, got %+v", cfg.Practice)
	}
	if cfg.Audio.Format != "wav" {
		t.Fatalf("expected audio format override")
	}
}

func TestProviderKeyFallback(t *testing.T) {
	t.Setenv("DICTATION_SPEECH_MODE", "google")
	t.Setenv("GOOGLE_API_KEY", "g-key")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Speech.APIKey != "g-key" {
		t.Fatalf("expected GOOGLE_API_KEY to populate speech.api_key, got %q", cfg.Speech.APIKey)
	}
}

func TestValidationRejectsOutOfRangePractice(t *testing.T) {
	cases := map[string]string{
		"DICTATION_PRACTICE_VOCABULARY_REPEATS":         "6",
		"DICTATION_PRACTICE_VOCABULARY_SILENCE_SECONDS": "0",
		"DICTATION_PRACTICE_PASSAGE_REPEATS":            "0",
		"DICTATION_PRACTICE_VOCABULARY_RATE":            "slow",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := Load(""); err == nil {
				t.Fatalf("expected validation error for %s=%s", key, value)
			}
		})
	}
}

func TestValidationRejectsHeartbeatTimeoutBelowInterval(t *testing.T) {
	t.Setenv("DICTATION_NODE_HEARTBEAT_INTERVAL_MS", "5000")
	t.Setenv("DICTATION_NODE_HEARTBEAT_TIMEOUT_MS", "1000")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error when heartbeat timeout is shorter than the interval")
	}
}

func TestValidationRequiresProviderKey(t *testing.T) {
	t.Setenv("DICTATION_SPEECH_MODE", "elevenlabs")
	t.Setenv("ELEVENLABS_API_KEY", "")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error when elevenlabs key missing")
	}
}

func TestLoadFile(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "dictation.yaml")
	data := []byte(`runtime_name: study-box
speech:
  mode: exec
  command: "python3 tts.py"
practice:
  vocabulary_repeats: 4
  vocabulary_silence_seconds: 10
library:
  dir: /srv/recordings
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RuntimeName != "study-box" || cfg.Speech.Command != "python3 tts.py" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Practice.VocabularyRepeats != 4 || cfg.Practice.VocabularySilenceSeconds != 10 {
		t.Fatalf("unexpected practice config: %+v", cfg.Practice)
	}
	if cfg.Practice.PassageRepeats != 3 {
		t.Fatalf("expected untouched default passage repeats, got %d", cfg.Practice.PassageRepeats)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidRate(t *testing.T) {
	for _, rate := range []string{"-20%", "+0%", "+50%", "-100%"} {
		if !ValidRate(rate) {
			t.Fatalf("expected %q valid", rate)
		}
	}
	for _, rate := range []string{"20%", "-20", "", "fast", "+1000%"} {
		if ValidRate(rate) {
			t.Fatalf("expected %q invalid", rate)
		}
	}
}
