package textnorm

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNormalizeExamples(t *testing.T) {
	cases := []struct {
		text string
		lang string
		want string
	}{
		{"Hello, world.", "en", "Hello comma world period"},
		{"Is it?", "en", "Is it question mark"},
		{"A-B", "en", "A hyphen B"},
		{"Wait; (now): \"go\"!", "en", "Wait semicolon open bracket now close bracket colon quote go quote exclamation mark"},
		{"  spaced\t\tout  ", "en", "spaced out"},
		{"", "en", ""},
		{"你好，世界。", "zh-tw", "你好 逗號 世界 句號"},
		{"真的嗎？", "zh-tw", "真的嗎 問號"},
		{"好！", "zh-TW", "好 驚嘆號"},
		{"你好,世界.", "zh-tw", "你好 逗號 世界 句號"},
		{"等等……", "zh-tw", "等等 刪節號"},
		{"Hello, world.", "en-US", "Hello comma world period"},
		{"你好，世界。", "zh-Hant-TW", "你好 逗號 世界 句號"},
	}
	for _, tc := range cases {
		if got := Normalize(tc.text, tc.lang); got != tc.want {
			t.Fatalf("Normalize(%q, %q) = %q, want %q", tc.text, tc.lang, got, tc.want)
		}
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	inputs := []string{
		"Hello, world. Isn't it (really) great?!",
		"semi-colon; colon: \"quoted\"",
		"你好，世界。真的嗎？好！「引號」（括號）……",
		"mixed, 中文。 and English.",
		"　full　width　space。",
	}
	for _, lang := range []string{"en", "zh-tw"} {
		for _, in := range inputs {
			once := Normalize(in, lang)
			twice := Normalize(once, lang)
			if once != twice {
				t.Fatalf("not idempotent for %q (%s): %q then %q", in, lang, once, twice)
			}
		}
	}
}

func TestUnknownLanguageFallsBackToEnglish(t *testing.T) {
	if got := Normalize("Hi.", "fr"); got != "Hi period" {
		t.Fatalf("expected english fallback, got %q", got)
	}
	if got := Normalize("Hi.", ""); got != "Hi period" {
		t.Fatalf("expected english fallback for empty tag, got %q", got)
	}
}

func TestResolve(t *testing.T) {
	n := Standard()
	cases := map[string]string{
		"en":         "en",
		"EN-gb":      "en",
		"zh-TW":      "zh-tw",
		"zh_TW":      "zh-tw",
		"zh-Hant-TW": "zh-tw",
		"zh":         "zh-tw",
		"de-DE":      "en",
	}
	for tag, want := range cases {
		if got := n.Resolve(tag); got != want {
			t.Fatalf("Resolve(%q) = %q, want %q", tag, got, want)
		}
	}
}

func TestValidateProfileRejectsSelfReferencingToken(t *testing.T) {
	p := Profile{Language: "en", Replacements: map[string]string{";": "semi-colon", "-": "hyphen"}}
	if err := ValidateProfile(p); err == nil {
		t.Fatal("expected error for token containing a punctuation key")
	}
}

func TestValidateProfileRejectsEmpty(t *testing.T) {
	if err := ValidateProfile(Profile{}); err == nil {
		t.Fatal("expected error for missing language")
	}
	if err := ValidateProfile(Profile{Language: "x"}); err == nil {
		t.Fatal("expected error for missing replacements")
	}
	if err := ValidateProfile(Profile{Language: "x", Replacements: map[string]string{".": "  "}}); err == nil {
		t.Fatal("expected error for blank token")
	}
}

func TestBuiltinProfilesValid(t *testing.T) {
	for _, p := range BuiltinProfiles() {
		if err := ValidateProfile(p); err != nil {
			t.Fatalf("builtin profile %s invalid: %v", p.Language, err)
		}
	}
}

func TestLongestKeyWins(t *testing.T) {
	n, err := New(Profile{Language: "xx", Replacements: map[string]string{"..": "dots", ".": "dot"}})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if got := n.Normalize("a..b.c", "xx"); got != "a dots b dot c" {
		t.Fatalf("unexpected result %q", got)
	}
}

const extraProfiles = `profiles:
  - language: fr
    aliases: [fr-ca]
    replacements:
      ".": "point"
      ",": "virgule"
  - language: en
    replacements:
      "&": "ampersand"
`

func TestLoadAndExtend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	if err := os.WriteFile(path, []byte(extraProfiles), 0o644); err != nil {
		t.Fatal(err)
	}
	profiles, err := LoadProfiles(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	n, err := Standard().Extend(profiles...)
	if err != nil {
		t.Fatalf("extend: %v", err)
	}
	if got := n.Normalize("Bonjour, monde.", "fr-CA"); got != "Bonjour virgule monde point" {
		t.Fatalf("unexpected french result %q", got)
	}
	if got := n.Normalize("R&D.", "en"); got != "R ampersand D period" {
		t.Fatalf("unexpected merged english result %q", got)
	}
	if got := Normalize("R&D.", "en"); got != "R&D period" {
		t.Fatalf("standard normalizer must stay untouched, got %q", got)
	}
}

func TestLoadProfilesEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	if err := os.WriteFile(path, []byte("profiles: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadProfiles(path); err == nil {
		t.Fatal("expected error for empty profile list")
	}
}
