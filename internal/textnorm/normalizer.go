// Package textnorm rewrites punctuation into spoken words so that a speech
// engine reads marks aloud during dictation practice.
package textnorm

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Normalizer applies per-language profiles. It is immutable once built and
// safe for concurrent use.
type Normalizer struct {
	profiles map[string]*compiled
	aliases  map[string]string
	fallback string
}

type compiled struct {
	profile Profile
	pattern *regexp.Regexp
}

var standard = mustNew(BuiltinProfiles()...)

// Normalize rewrites text with the built-in profile for languageTag.
func Normalize(text, languageTag string) string {
	return standard.Normalize(text, languageTag)
}

// Standard returns the normalizer holding the built-in profiles.
func Standard() *Normalizer {
	return standard
}

// New compiles the given profiles. The first profile becomes the fallback
// for unknown language tags unless an English profile is present.
func New(profiles ...Profile) (*Normalizer, error) {
	if len(profiles) == 0 {
		return nil, fmt.Errorf("at least one profile is required")
	}
	n := &Normalizer{
		profiles: make(map[string]*compiled, len(profiles)),
		aliases:  make(map[string]string),
	}
	for _, p := range profiles {
		if err := n.add(p); err != nil {
			return nil, err
		}
	}
	if _, ok := n.profiles[LanguageEnglish]; ok {
		n.fallback = LanguageEnglish
	} else {
		n.fallback = canonical(profiles[0].Language)
	}
	return n, nil
}

func mustNew(profiles ...Profile) *Normalizer {
	n, err := New(profiles...)
	if err != nil {
		panic(err)
	}
	return n
}

// Extend returns a new normalizer with extra profiles layered on top. A profile
// whose language already exists has its replacements merged over the old ones.
func (n *Normalizer) Extend(profiles ...Profile) (*Normalizer, error) {
	merged := make(map[string]Profile, len(n.profiles)+len(profiles))
	order := make([]string, 0, len(n.profiles)+len(profiles))
	for _, lang := range n.Languages() {
		merged[lang] = cloneProfile(n.profiles[lang].profile)
		order = append(order, lang)
	}
	for _, p := range profiles {
		lang := canonical(p.Language)
		existing, ok := merged[lang]
		if !ok {
			merged[lang] = cloneProfile(p)
			order = append(order, lang)
			continue
		}
		for k, v := range p.Replacements {
			existing.Replacements[k] = v
		}
		existing.Aliases = append(existing.Aliases, p.Aliases...)
		merged[lang] = existing
	}
	all := make([]Profile, 0, len(order))
	for _, lang := range order {
		all = append(all, merged[lang])
	}
	return New(all...)
}

func (n *Normalizer) add(p Profile) error {
	if err := ValidateProfile(p); err != nil {
		return err
	}
	keys := sortedKeys(p.Replacements)
	quoted := make([]string, len(keys))
	for i, k := range keys {
		quoted[i] = regexp.QuoteMeta(k)
	}
	pattern, err := regexp.Compile(strings.Join(quoted, "|"))
	if err != nil {
		return fmt.Errorf("profile %q: compile: %w", p.Language, err)
	}
	lang := canonical(p.Language)
	p.Language = lang
	n.profiles[lang] = &compiled{profile: p, pattern: pattern}
	for _, alias := range p.Aliases {
		n.aliases[canonical(alias)] = lang
	}
	return nil
}

// Languages lists the canonical tags of all profiles.
func (n *Normalizer) Languages() []string {
	langs := make([]string, 0, len(n.profiles))
	for lang := range n.profiles {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}

// Resolve maps a language tag such as "en-US" or "zh-Hant-TW" onto a profile tag.
func (n *Normalizer) Resolve(languageTag string) string {
	tag := canonical(languageTag)
	if tag == "" {
		return n.fallback
	}
	parts := strings.Split(tag, "-")
	candidates := []string{tag}
	if len(parts) > 2 {
		candidates = append(candidates, parts[0]+"-"+parts[len(parts)-1])
	}
	if len(parts) > 1 {
		candidates = append(candidates, parts[0]+"-"+parts[1], parts[0])
	}
	for _, c := range candidates {
		if _, ok := n.profiles[c]; ok {
			return c
		}
		if lang, ok := n.aliases[c]; ok {
			return lang
		}
	}
	return n.fallback
}

// Normalize replaces every punctuation key with its spoken token, collapses
// whitespace runs into single spaces and trims the result.
func (n *Normalizer) Normalize(text, languageTag string) string {
	c := n.profiles[n.Resolve(languageTag)]
	replaced := c.pattern.ReplaceAllStringFunc(text, func(mark string) string {
		return " " + c.profile.Replacements[mark] + " "
	})
	return strings.Join(strings.Fields(replaced), " ")
}

func canonical(tag string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(tag), "_", "-"))
}

func cloneProfile(p Profile) Profile {
	out := Profile{
		Language:     p.Language,
		Aliases:      append([]string(nil), p.Aliases...),
		Replacements: make(map[string]string, len(p.Replacements)),
	}
	for k, v := range p.Replacements {
		out.Replacements[k] = v
	}
	return out
}
