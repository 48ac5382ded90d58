package tts

import (
	"strings"

	"github.com/loqalabs/loqa-dictation/internal/textnorm"
)

// VoiceOption is one selectable neural voice.
type VoiceOption struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

var catalog = map[string][]VoiceOption{
	textnorm.LanguageZhTW: {
		{ID: "zh-TW-HsiaoChenNeural", Label: "HsiaoChen (Taiwan, Female, Soft)"},
		{ID: "zh-TW-HsiaoYuNeural", Label: "HsiaoYu (Taiwan, Female, Crisp)"},
		{ID: "zh-TW-YunJheNeural", Label: "YunJhe (Taiwan, Male, Gentle)"},
		{ID: "zh-CN-XiaoxiaoNeural", Label: "Xiaoxiao (Mainland, Female, Warm)"},
	},
	textnorm.LanguageEnglish: {
		{ID: "en-US-AriaNeural", Label: "Aria (US, Female)"},
		{ID: "en-US-GuyNeural", Label: "Guy (US, Male)"},
		{ID: "en-GB-SoniaNeural", Label: "Sonia (UK, Female)"},
	},
}

// Voices lists the voices offered for a language tag. Unknown tags get the
// English list.
func Voices(language string) []VoiceOption {
	lang := textnorm.Standard().Resolve(language)
	options, ok := catalog[lang]
	if !ok {
		options = catalog[textnorm.LanguageEnglish]
	}
	return append([]VoiceOption(nil), options...)
}

// DefaultVoice returns the first catalog voice for language.
func DefaultVoice(language string) string {
	return Voices(language)[0].ID
}

// isNeuralVoiceName reports whether voice uses the "xx-YY-NameNeural" naming
// of the catalog, which only the edge backend understands.
func isNeuralVoiceName(voice string) bool {
	return strings.HasSuffix(voice, "Neural") && strings.Count(voice, "-") >= 2
}

// localeOf extracts "zh-TW" from "zh-TW-HsiaoChenNeural" or "cmn-TW-Wavenet-A".
func localeOf(voice string) string {
	parts := strings.Split(voice, "-")
	if len(parts) < 2 {
		return ""
	}
	return parts[0] + "-" + parts[1]
}
