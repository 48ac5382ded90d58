package textnorm

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// Profile maps punctuation marks to the words a reader says aloud for them.
type Profile struct {
	Language     string            `yaml:"language"`
	Aliases      []string          `yaml:"aliases,omitempty"`
	Replacements map[string]string `yaml:"replacements"`
}

// ProfileFile is the on-disk layout accepted by LoadProfiles.
type ProfileFile struct {
	Profiles []Profile `yaml:"profiles"`
}

const (
	LanguageEnglish = "en"
	LanguageZhTW    = "zh-tw"
)

// BuiltinProfiles returns fresh copies of the English and Traditional Chinese profiles.
func BuiltinProfiles() []Profile {
	return []Profile{
		{
			Language: LanguageEnglish,
			Replacements: map[string]string{
				".":  "period",
				",":  "comma",
				"?":  "question mark",
				"!":  "exclamation mark",
				";":  "semicolon",
				":":  "colon",
				"\"": "quote",
				"'":  "apostrophe",
				"-":  "hyphen",
				"(":  "open bracket",
				")":  "close bracket",
			},
		},
		{
			Language: LanguageZhTW,
			Aliases:  []string{"zh", "zh-hant", "cmn"},
			Replacements: map[string]string{
				"。":  "句號",
				"，":  "逗號",
				"、":  "頓號",
				"？":  "問號",
				"！":  "驚嘆號",
				"；":  "分號",
				"：":  "冒號",
				"「":  "上引號",
				"」":  "下引號",
				"『":  "上雙引號",
				"』":  "下雙引號",
				"（":  "左括號",
				"）":  "右括號",
				"……": "刪節號",
				"…":  "刪節號",
				".":  "句號",
				",":  "逗號",
				"?":  "問號",
				"!":  "驚嘆號",
			},
		},
	}
}

// LoadProfiles reads additional or overriding profiles from a YAML file.
func LoadProfiles(path string) ([]Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file ProfileFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse profiles: %w", err)
	}
	if len(file.Profiles) == 0 {
		return nil, fmt.Errorf("profiles file %s declares no profiles", path)
	}
	return file.Profiles, nil
}

// ValidateProfile rejects profiles that cannot be applied in a single stable pass.
// A spoken token may not contain any punctuation key of the same profile,
// otherwise normalizing twice would rewrite the token itself.
func ValidateProfile(p Profile) error {
	if strings.TrimSpace(p.Language) == "" {
		return fmt.Errorf("language is required")
	}
	if len(p.Replacements) == 0 {
		return fmt.Errorf("profile %q: replacements must not be empty", p.Language)
	}
	keys := sortedKeys(p.Replacements)
	for _, key := range keys {
		if key == "" {
			return fmt.Errorf("profile %q: empty punctuation key", p.Language)
		}
		if strings.IndexFunc(key, unicode.IsSpace) >= 0 {
			return fmt.Errorf("profile %q: key %q contains whitespace", p.Language, key)
		}
		token := strings.TrimSpace(p.Replacements[key])
		if token == "" {
			return fmt.Errorf("profile %q: key %q has an empty token", p.Language, key)
		}
		for _, other := range keys {
			if strings.Contains(token, other) {
				return fmt.Errorf("profile %q: token %q for %q contains punctuation key %q", p.Language, token, key, other)
			}
		}
	}
	return nil
}

// sortedKeys orders keys longest first so that multi-character marks win over their prefixes.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		li, lj := len([]rune(keys[i])), len([]rune(keys[j]))
		if li != lj {
			return li > lj
		}
		return keys[i] < keys[j]
	})
	return keys
}
