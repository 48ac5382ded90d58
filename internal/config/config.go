package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind               string   `yaml:"bind"`
	Port               int      `yaml:"port"`
	MaxUploadMB        int      `yaml:"max_upload_mb"`
	RateLimitPerMinute int      `yaml:"rate_limit_per_minute"`
	AllowedOrigins     []string `yaml:"allowed_origins"`
	RequestTimeoutMS   int      `yaml:"request_timeout_ms"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	EventStore  EventStoreConfig `yaml:"event_store"`
	Speech      SpeechConfig     `yaml:"speech"`
	Vision      VisionConfig     `yaml:"vision"`
	Audio       AudioConfig      `yaml:"audio"`
	Practice    PracticeConfig   `yaml:"practice"`
	Library     LibraryConfig    `yaml:"library"`
	Normalizer  NormalizerConfig `yaml:"normalizer"`
	Dictation   DictationConfig  `yaml:"dictation"`
	Node        NodeConfig       `yaml:"node"`
}

// NodeConfig identifies this daemon to peers on the bus.
type NodeConfig struct {
	ID                  string `yaml:"id"`
	HeartbeatIntervalMS int    `yaml:"heartbeat_interval_ms"`
	HeartbeatTimeoutMS  int    `yaml:"heartbeat_timeout_ms"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxJobs       int    `yaml:"max_jobs"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

// SpeechConfig selects and tunes the text-to-speech backend.
type SpeechConfig struct {
	Mode       string `yaml:"mode"` // mock, exec, edge, google, elevenlabs, openai
	Command    string `yaml:"command"`
	Endpoint   string `yaml:"endpoint"`
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
	Voice      string `yaml:"voice"`
	Language   string `yaml:"language"`
	TimeoutMS  int    `yaml:"timeout_ms"`
	MaxRetries int    `yaml:"max_retries"`
	CacheSize  int    `yaml:"cache_size"`
}

type VisionConfig struct {
	Mode      string `yaml:"mode"` // mock, gemini, openai
	Model     string `yaml:"model"`
	APIKey    string `yaml:"api_key"`
	TimeoutMS int    `yaml:"timeout_ms"`
	CacheSize int    `yaml:"cache_size"`
}

type AudioConfig struct {
	Format         string `yaml:"format"` // mp3, wav
	EncoderCommand string `yaml:"encoder_command"`
	SampleRate     int    `yaml:"sample_rate"`
	Channels       int    `yaml:"channels"`
	ScratchDir     string `yaml:"scratch_dir"`
}

// PracticeConfig holds the defaults applied when a request leaves a knob unset.
type PracticeConfig struct {
	VocabularyRepeats        int    `yaml:"vocabulary_repeats"`
	VocabularySilenceSeconds int    `yaml:"vocabulary_silence_seconds"`
	PassageRepeats           int    `yaml:"passage_repeats"`
	Shuffle                  bool   `yaml:"shuffle"`
	VocabularyRate           string `yaml:"vocabulary_rate"`
	PassageRate              string `yaml:"passage_rate"`
	TrackCacheSize           int    `yaml:"track_cache_size"`
	TimeoutMS                int    `yaml:"timeout_ms"`
}

type LibraryConfig struct {
	Dir string   `yaml:"dir"`
	S3  S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Prefix    string `yaml:"prefix"`
	Secure    bool   `yaml:"secure"`
}

type NormalizerConfig struct {
	ProfilesPath string `yaml:"profiles_path"`
}

type DictationConfig struct {
	Enabled bool `yaml:"enabled"`
}

var ratePattern = regexp.MustCompile(`^[+-]\d{1,3}%$`)

func Default() Config {
	return Config{
		RuntimeName: "loqa-dictation",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind:               "0.0.0.0",
			Port:               8080,
			MaxUploadMB:        10,
			RateLimitPerMinute: 60,
			AllowedOrigins:     []string{"*"},
			RequestTimeoutMS:   300000,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/dictation-events.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxJobs:       10000,
		},
		Speech: SpeechConfig{
			Mode:       "mock",
			Voice:      "en-US-AriaNeural",
			Language:   "en",
			TimeoutMS:  30000,
			MaxRetries: 3,
			CacheSize:  256,
		},
		Vision: VisionConfig{
			Mode:      "mock",
			Model:     "gemini-2.0-flash",
			TimeoutMS: 60000,
			CacheSize: 32,
		},
		Audio: AudioConfig{
			Format:         "mp3",
			EncoderCommand: "ffmpeg -hide_banner -loglevel error -y -i {input} -codec:a libmp3lame -qscale:a 4 {output}",
			SampleRate:     24000,
			Channels:       1,
		},
		Practice: PracticeConfig{
			VocabularyRepeats:        2,
			VocabularySilenceSeconds: 3,
			PassageRepeats:           3,
			VocabularyRate:           "-20%",
			PassageRate:              "-20%",
			TrackCacheSize:           64,
			TimeoutMS:                600000,
		},
		Library: LibraryConfig{
			Dir: "./recordings",
			S3: S3Config{
				Secure: true,
				Prefix: "recordings/",
			},
		},
		Dictation: DictationConfig{
			Enabled: true,
		},
		Node: NodeConfig{
			HeartbeatIntervalMS: 5000,
			HeartbeatTimeoutMS:  15000,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "DICTATION_RUNTIME_NAME")
	overrideString(&cfg.Environment, "DICTATION_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "DICTATION_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "DICTATION_HTTP_PORT")
	overrideInt(&cfg.HTTP.MaxUploadMB, "DICTATION_HTTP_MAX_UPLOAD_MB")
	overrideInt(&cfg.HTTP.RateLimitPerMinute, "DICTATION_HTTP_RATE_LIMIT_PER_MINUTE")
	overrideStringSlice(&cfg.HTTP.AllowedOrigins, "DICTATION_HTTP_ALLOWED_ORIGINS")
	overrideInt(&cfg.HTTP.RequestTimeoutMS, "DICTATION_HTTP_REQUEST_TIMEOUT_MS")
	overrideString(&cfg.Telemetry.LogLevel, "DICTATION_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "DICTATION_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "DICTATION_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "DICTATION_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "DICTATION_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "DICTATION_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "DICTATION_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "DICTATION_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "DICTATION_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "DICTATION_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "DICTATION_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "DICTATION_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "DICTATION_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "DICTATION_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "DICTATION_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "DICTATION_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxJobs, "DICTATION_EVENT_STORE_MAX_JOBS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "DICTATION_EVENT_STORE_VACUUM_ON_START")
	overrideString(&cfg.Speech.Mode, "DICTATION_SPEECH_MODE")
	overrideString(&cfg.Speech.Command, "DICTATION_SPEECH_COMMAND")
	overrideString(&cfg.Speech.Endpoint, "DICTATION_SPEECH_ENDPOINT")
	overrideString(&cfg.Speech.APIKey, "DICTATION_SPEECH_API_KEY")
	overrideString(&cfg.Speech.Model, "DICTATION_SPEECH_MODEL")
	overrideString(&cfg.Speech.Voice, "DICTATION_SPEECH_VOICE")
	overrideString(&cfg.Speech.Language, "DICTATION_SPEECH_LANGUAGE")
	overrideInt(&cfg.Speech.TimeoutMS, "DICTATION_SPEECH_TIMEOUT_MS")
	overrideInt(&cfg.Speech.MaxRetries, "DICTATION_SPEECH_MAX_RETRIES")
	overrideInt(&cfg.Speech.CacheSize, "DICTATION_SPEECH_CACHE_SIZE")
	overrideString(&cfg.Vision.Mode, "DICTATION_VISION_MODE")
	overrideString(&cfg.Vision.Model, "DICTATION_VISION_MODEL")
	overrideString(&cfg.Vision.APIKey, "DICTATION_VISION_API_KEY")
	overrideInt(&cfg.Vision.TimeoutMS, "DICTATION_VISION_TIMEOUT_MS")
	overrideInt(&cfg.Vision.CacheSize, "DICTATION_VISION_CACHE_SIZE")
	overrideString(&cfg.Audio.Format, "DICTATION_AUDIO_FORMAT")
	overrideString(&cfg.Audio.EncoderCommand, "DICTATION_AUDIO_ENCODER_COMMAND")
	overrideInt(&cfg.Audio.SampleRate, "DICTATION_AUDIO_SAMPLE_RATE")
	overrideInt(&cfg.Audio.Channels, "DICTATION_AUDIO_CHANNELS")
	overrideString(&cfg.Audio.ScratchDir, "DICTATION_AUDIO_SCRATCH_DIR")
	overrideInt(&cfg.Practice.VocabularyRepeats, "DICTATION_PRACTICE_VOCABULARY_REPEATS")
	overrideInt(&cfg.Practice.VocabularySilenceSeconds, "DICTATION_PRACTICE_VOCABULARY_SILENCE_SECONDS")
	overrideInt(&cfg.Practice.PassageRepeats, "DICTATION_PRACTICE_PASSAGE_REPEATS")
	overrideBool(&cfg.Practice.Shuffle, "DICTATION_PRACTICE_SHUFFLE")
	overrideString(&cfg.Practice.VocabularyRate, "DICTATION_PRACTICE_VOCABULARY_RATE")
	overrideString(&cfg.Practice.PassageRate, "DICTATION_PRACTICE_PASSAGE_RATE")
	overrideInt(&cfg.Practice.TrackCacheSize, "DICTATION_PRACTICE_TRACK_CACHE_SIZE")
	overrideInt(&cfg.Practice.TimeoutMS, "DICTATION_PRACTICE_TIMEOUT_MS")
	overrideString(&cfg.Library.Dir, "DICTATION_LIBRARY_DIR")
	overrideBool(&cfg.Library.S3.Enabled, "DICTATION_LIBRARY_S3_ENABLED")
	overrideString(&cfg.Library.S3.Endpoint, "DICTATION_LIBRARY_S3_ENDPOINT")
	overrideString(&cfg.Library.S3.Bucket, "DICTATION_LIBRARY_S3_BUCKET")
	overrideString(&cfg.Library.S3.Region, "DICTATION_LIBRARY_S3_REGION")
	overrideString(&cfg.Library.S3.AccessKey, "DICTATION_LIBRARY_S3_ACCESS_KEY")
	overrideString(&cfg.Library.S3.SecretKey, "DICTATION_LIBRARY_S3_SECRET_KEY")
	overrideString(&cfg.Library.S3.Prefix, "DICTATION_LIBRARY_S3_PREFIX")
	overrideBool(&cfg.Library.S3.Secure, "DICTATION_LIBRARY_S3_SECURE")
	overrideString(&cfg.Normalizer.ProfilesPath, "DICTATION_NORMALIZER_PROFILES_PATH")
	overrideBool(&cfg.Dictation.Enabled, "DICTATION_SERVICE_ENABLED")
	overrideString(&cfg.Node.ID, "DICTATION_NODE_ID")
	overrideInt(&cfg.Node.HeartbeatIntervalMS, "DICTATION_NODE_HEARTBEAT_INTERVAL_MS")
	overrideInt(&cfg.Node.HeartbeatTimeoutMS, "DICTATION_NODE_HEARTBEAT_TIMEOUT_MS")

	// Provider keys are also honoured under their conventional names.
	if cfg.Speech.APIKey == "" {
		switch cfg.Speech.Mode {
		case "google":
			overrideString(&cfg.Speech.APIKey, "GOOGLE_API_KEY")
		case "elevenlabs":
			overrideString(&cfg.Speech.APIKey, "ELEVENLABS_API_KEY")
		case "openai":
			overrideString(&cfg.Speech.APIKey, "OPENAI_API_KEY")
		}
	}
	if cfg.Vision.APIKey == "" {
		switch cfg.Vision.Mode {
		case "gemini":
			overrideString(&cfg.Vision.APIKey, "GOOGLE_API_KEY")
		case "openai":
			overrideString(&cfg.Vision.APIKey, "OPENAI_API_KEY")
		}
	}
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

// ValidRate reports whether rate is a signed percentage such as "-20%" or "+0%".
func ValidRate(rate string) bool {
	return ratePattern.MatchString(rate)
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.HTTP.MaxUploadMB <= 0 {
		return errors.New("http.max_upload_mb must be positive")
	}
	if cfg.HTTP.RateLimitPerMinute < 0 {
		return errors.New("http.rate_limit_per_minute must be >= 0")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
		if cfg.Bus.StoreDir == "" {
			return errors.New("bus.store_dir must not be empty when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	if err := validateSpeech(cfg.Speech); err != nil {
		return err
	}
	switch cfg.Vision.Mode {
	case "mock":
	case "gemini", "openai":
		if cfg.Vision.APIKey == "" {
			return fmt.Errorf("vision.api_key must be set when mode=%s", cfg.Vision.Mode)
		}
	default:
		return errors.New("vision.mode must be one of mock|gemini|openai")
	}
	switch cfg.Audio.Format {
	case "wav":
	case "mp3":
		if strings.TrimSpace(cfg.Audio.EncoderCommand) == "" {
			return errors.New("audio.encoder_command must be set when format=mp3")
		}
	default:
		return errors.New("audio.format must be one of mp3|wav")
	}
	if cfg.Audio.SampleRate <= 0 {
		return errors.New("audio.sample_rate must be positive")
	}
	if cfg.Audio.Channels != 1 && cfg.Audio.Channels != 2 {
		return errors.New("audio.channels must be 1 or 2")
	}
	if err := validatePractice(cfg.Practice); err != nil {
		return err
	}
	if cfg.Library.Dir == "" {
		return errors.New("library.dir must not be empty")
	}
	if cfg.Library.S3.Enabled {
		if cfg.Library.S3.Endpoint == "" || cfg.Library.S3.Bucket == "" {
			return errors.New("library.s3.endpoint and library.s3.bucket must be set when s3 is enabled")
		}
	}
	if cfg.Node.HeartbeatIntervalMS <= 0 {
		return errors.New("node.heartbeat_interval_ms must be positive")
	}
	if cfg.Node.HeartbeatTimeoutMS < cfg.Node.HeartbeatIntervalMS {
		return errors.New("node.heartbeat_timeout_ms must be >= node.heartbeat_interval_ms")
	}
	return nil
}

func validateSpeech(cfg SpeechConfig) error {
	switch cfg.Mode {
	case "mock", "edge":
	case "exec":
		if cfg.Command == "" {
			return errors.New("speech.command must be set when mode=exec")
		}
	case "google", "elevenlabs", "openai":
		if cfg.APIKey == "" {
			return fmt.Errorf("speech.api_key must be set when mode=%s", cfg.Mode)
		}
	default:
		return errors.New("speech.mode must be one of mock|exec|edge|google|elevenlabs|openai")
	}
	if cfg.MaxRetries < 0 {
		return errors.New("speech.max_retries must be >= 0")
	}
	if cfg.CacheSize < 0 {
		return errors.New("speech.cache_size must be >= 0")
	}
	return nil
}

func validatePractice(cfg PracticeConfig) error {
	if cfg.VocabularyRepeats < 1 || cfg.VocabularyRepeats > 5 {
		return errors.New("practice.vocabulary_repeats must be between 1 and 5")
	}
	if cfg.VocabularySilenceSeconds < 1 || cfg.VocabularySilenceSeconds > 10 {
		return errors.New("practice.vocabulary_silence_seconds must be between 1 and 10")
	}
	if cfg.PassageRepeats < 1 || cfg.PassageRepeats > 5 {
		return errors.New("practice.passage_repeats must be between 1 and 5")
	}
	if !ValidRate(cfg.VocabularyRate) {
		return fmt.Errorf("practice.vocabulary_rate %q must look like -20%% or +10%%", cfg.VocabularyRate)
	}
	if !ValidRate(cfg.PassageRate) {
		return fmt.Errorf("practice.passage_rate %q must look like -20%% or +10%%", cfg.PassageRate)
	}
	if cfg.TrackCacheSize <= 0 {
		return errors.New("practice.track_cache_size must be positive")
	}
	return nil
}
