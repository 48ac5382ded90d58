package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/loqalabs/loqa-dictation/internal/audio"
	"github.com/loqalabs/loqa-dictation/internal/config"
	"github.com/loqalabs/loqa-dictation/internal/dictation"
	"github.com/loqalabs/loqa-dictation/internal/library"
	"github.com/loqalabs/loqa-dictation/internal/practice"
	"github.com/loqalabs/loqa-dictation/internal/segment"
	"github.com/loqalabs/loqa-dictation/internal/textnorm"
	"github.com/loqalabs/loqa-dictation/internal/tts"
)

var version = "0.1.0-dev"

const usage = "expected one of: normalize, segment, validate-profiles, generate, version"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	_ = godotenv.Load()

	var err error
	switch os.Args[1] {
	case "normalize":
		err = runNormalize(os.Args[2:], os.Stdin, os.Stdout)
	case "segment":
		err = runSegment(os.Args[2:], os.Stdin, os.Stdout)
	case "validate-profiles":
		err = runValidateProfiles(os.Args[2:], os.Stdout)
	case "generate":
		err = runGenerate(os.Args[2:], os.Stdout)
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n%s\n", os.Args[1], usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// readText returns the positional arguments joined, or stdin when there are none.
func readText(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func loadNormalizer(path string) (*textnorm.Normalizer, error) {
	if path == "" {
		return textnorm.Standard(), nil
	}
	profiles, err := textnorm.LoadProfiles(path)
	if err != nil {
		return nil, err
	}
	return textnorm.Standard().Extend(profiles...)
}

func runNormalize(args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("normalize", flag.ContinueOnError)
	lang := fs.String("lang", textnorm.LanguageEnglish, "Language tag selecting the profile")
	profiles := fs.String("profiles", "", "Optional YAML file with extra profiles")
	if err := fs.Parse(args); err != nil {
		return err
	}
	normalizer, err := loadNormalizer(*profiles)
	if err != nil {
		return err
	}
	text, err := readText(fs.Args(), stdin)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, normalizer.Normalize(strings.TrimRight(text, "\n"), *lang))
	return err
}

func runSegment(args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("segment", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	text, err := readText(fs.Args(), stdin)
	if err != nil {
		return err
	}
	for i, sentence := range segment.Split(text) {
		if _, err := fmt.Fprintf(stdout, "%d\t%s\n", i+1, sentence); err != nil {
			return err
		}
	}
	return nil
}

func runValidateProfiles(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("validate-profiles", flag.ContinueOnError)
	path := fs.String("file", "profiles.yaml", "Path to profiles file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	profiles, err := textnorm.LoadProfiles(*path)
	if err != nil {
		return err
	}
	for _, p := range profiles {
		if err := textnorm.ValidateProfile(p); err != nil {
			return fmt.Errorf("profile %q: %w", p.Language, err)
		}
	}
	if _, err := textnorm.Standard().Extend(profiles...); err != nil {
		return err
	}
	_, err = fmt.Fprintf(stdout, "%d profiles valid\n", len(profiles))
	return err
}

func runGenerate(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	words := fs.String("words", "", "Comma-separated vocabulary words")
	passage := fs.String("passage", "", "Passage text")
	passageFile := fs.String("passage-file", "", "Read the passage from a file")
	lang := fs.String("lang", "", "Language tag (defaults to speech.language)")
	voice := fs.String("voice", "", "Voice id")
	name := fs.String("name", library.DefaultName, "Recording name")
	out := fs.String("out", "", "Output directory (defaults to library.dir)")
	repeats := fs.Int("repeats", 0, "Repeats per word and sentence (1-5)")
	silence := fs.Int("silence", 0, "Seconds of silence after each word (1-10)")
	shuffle := fs.Bool("shuffle", false, "Shuffle vocabulary order")
	verbose := fs.Bool("v", false, "Log progress to stderr")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *passageFile != "" {
		data, err := os.ReadFile(*passageFile)
		if err != nil {
			return err
		}
		*passage = string(data)
	}
	if *out != "" {
		cfg.Library.Dir = *out
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	synth, err := tts.New(cfg.Speech, cfg.Audio, logger)
	if err != nil {
		return err
	}
	encoder, err := audio.NewEncoder(cfg.Audio)
	if err != nil {
		return err
	}
	assembler := audio.NewAssembler(encoder, audio.Format{SampleRate: cfg.Audio.SampleRate, Channels: cfg.Audio.Channels}, cfg.Audio.ScratchDir, logger)
	normalizer, err := loadNormalizer(cfg.Normalizer.ProfilesPath)
	if err != nil {
		return err
	}
	builder := practice.NewBuilder(synth, assembler, logger, practice.WithNormalizer(normalizer))

	profile := tts.VoiceProfile{Language: firstNonEmpty(*lang, cfg.Speech.Language), Voice: *voice}
	session := practice.SessionRequest{Name: library.Sanitize(*name)}
	if strings.TrimSpace(*words) != "" {
		session.Vocabulary = &practice.VocabularyRequest{
			Words:          strings.Split(*words, ","),
			Rate:           cfg.Practice.VocabularyRate,
			Voice:          profile,
			Repeats:        orDefault(*repeats, cfg.Practice.VocabularyRepeats),
			SilenceSeconds: orDefault(*silence, cfg.Practice.VocabularySilenceSeconds),
			Shuffle:        *shuffle || cfg.Practice.Shuffle,
		}
	}
	if strings.TrimSpace(*passage) != "" {
		session.Passage = &practice.PassageRequest{
			Text:    *passage,
			Rate:    cfg.Practice.PassageRate,
			Voice:   profile,
			Repeats: orDefault(*repeats, cfg.Practice.PassageRepeats),
		}
	}
	if session.Vocabulary == nil && session.Passage == nil {
		return fmt.Errorf("nothing to generate: pass -words and/or -passage")
	}

	ctx := context.Background()
	result := builder.Generate(ctx, session)
	lib := library.New(cfg.Library.Dir, nil, logger)
	parts := []struct {
		part  string
		track *audio.Track
	}{
		{dictation.PartVocabulary, result.Vocabulary},
		{dictation.PartPassage, result.Passage},
	}
	for _, p := range parts {
		if p.track == nil {
			continue
		}
		path, err := lib.Save(ctx, p.track, *name, p.part)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%s\t%.1fs\t%s\n", p.part, p.track.Duration.Seconds(), path)
	}
	return result.Err()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func orDefault(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}
