package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNormalizeCommand(t *testing.T) {
	var out bytes.Buffer
	if err := runNormalize([]string{"-lang", "zh-TW", "你好，世界。"}, strings.NewReader(""), &out); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != "你好 逗號 世界 句號" {
		t.Fatalf("unexpected output %q", got)
	}

	out.Reset()
	if err := runNormalize(nil, strings.NewReader("Hello, world.\n"), &out); err != nil {
		t.Fatalf("normalize stdin: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != "Hello comma world period" {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestSegmentCommand(t *testing.T) {
	var out bytes.Buffer
	if err := runSegment(nil, strings.NewReader("Hello. World."), &out); err != nil {
		t.Fatalf("segment: %v", err)
	}
	if out.String() != "1\tHello.\n2\tWorld.\n" {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestValidateProfilesCommand(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	if err := os.WriteFile(good, []byte("profiles:\n  - language: fr\n    replacements:\n      \".\": point\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	if err := runValidateProfiles([]string{"-file", good}, &out); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(out.String(), "1 profiles valid") {
		t.Fatalf("unexpected output %q", out.String())
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("profiles:\n  - language: fr\n    replacements:\n      \".\": \"a.b\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := runValidateProfiles([]string{"-file", bad}, &out); err == nil {
		t.Fatal("expected self-referencing token to be rejected")
	}
}

func TestGenerateCommand(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "dictation.yaml")
	cfg := "audio:\n  format: wav\n  sample_rate: 8000\n  channels: 1\n  scratch_dir: " + filepath.Join(dir, "scratch") + "\n"
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "out")
	var stdout bytes.Buffer
	err := runGenerate([]string{
		"-config", cfgPath,
		"-words", "cat,dog",
		"-passage", "Hello. World.",
		"-name", "Unit 3",
		"-out", out,
	}, &stdout)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	for _, name := range []string{"Unit_3_vocab.wav", "Unit_3_passage.wav"} {
		if _, err := os.Stat(filepath.Join(out, name)); err != nil {
			t.Fatalf("expected %s: %v", name, err)
		}
	}
	if lines := strings.Count(stdout.String(), "\n"); lines != 2 {
		t.Fatalf("expected two output lines, got %q", stdout.String())
	}

	if err := runGenerate([]string{"-config", cfgPath, "-out", out}, &stdout); err == nil {
		t.Fatal("expected error when nothing to generate")
	}
}
