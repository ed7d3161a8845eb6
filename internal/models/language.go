package models

import "strings"

// RenderMode says how a language variant is presented by the avatar client.
const (
	RenderModeText  = "text"
	RenderModeAudio = "audio"
)

// LanguageTargets maps supported language keys to the label handed to the
// Translator. Keys are the canonical identifiers used everywhere else.
var LanguageTargets = map[string]string{
	"zh":  "Chinese",
	"en":  "English",
	"yue": "Cantonese (Yue Chinese, spoken style in Traditional Chinese characters)",
	"ja":  "Japanese",
	"id":  "Indonesian",
	"ms":  "Malay (Malaysia)",
	"hi":  "Hindi",
	"th":  "Thai",
}

// textRenderLanguages are rendered as on-screen text by the avatar client;
// every other language needs pre-synthesized audio.
var textRenderLanguages = map[string]struct{}{
	"zh": {},
	"en": {},
}

// ResolveRenderMode returns the render mode for a language key.
func ResolveRenderMode(languageKey string) string {
	if _, ok := textRenderLanguages[languageKey]; ok {
		return RenderModeText
	}
	return RenderModeAudio
}

// IsSupportedLanguage reports whether key is a known language target.
func IsSupportedLanguage(key string) bool {
	_, ok := LanguageTargets[key]
	return ok
}

// NormalizeLanguage lowercases and validates a language key, returning ""
// when unsupported.
func NormalizeLanguage(key string) string {
	k := strings.ToLower(strings.TrimSpace(key))
	if IsSupportedLanguage(k) {
		return k
	}
	return ""
}

// LanguageKeys returns all supported keys in a stable order.
func LanguageKeys() []string {
	keys := []string{"zh", "en", "yue", "ja", "id", "ms", "hi", "th"}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if IsSupportedLanguage(k) {
			out = append(out, k)
		}
	}
	return out
}

// Question personas for the Q&A artifact.
const DefaultQuestionPersona = "board_director"

var questionPersonas = map[string]struct{}{
	"board_director": {},
	"cro":            {},
	"coo":            {},
	"cfo":            {},
	"strategy":       {},
}

// NormalizeQuestionPersona returns a valid persona key, falling back to the
// default for unknown input.
func NormalizeQuestionPersona(key string) string {
	k := strings.ToLower(strings.TrimSpace(key))
	if _, ok := questionPersonas[k]; ok {
		return k
	}
	return DefaultQuestionPersona
}

// DetectSourceLanguage guesses the source language of a report from its
// text when no explicit tag was provided. Script-range checks first, then
// a few function-word hints for Malay/Indonesian, defaulting to English.
func DetectSourceLanguage(title, summary, script string) string {
	text := strings.TrimSpace(title + "\n" + summary + "\n" + script)
	if text == "" {
		return "zh"
	}
	for _, r := range text {
		switch {
		case r >= 0x0900 && r <= 0x097f:
			return "hi"
		case r >= 0x3040 && r <= 0x30ff:
			return "ja"
		case r >= 0x4e00 && r <= 0x9fff:
			return "zh"
		}
	}
	lower := " " + strings.ToLower(text) + " "
	hints := []string{"yang", "dengan", "untuk", "adalah", "dan", "tidak"}
	score := 0
	for _, h := range hints {
		if strings.Contains(lower, " "+h+" ") {
			score++
		}
	}
	if score >= 3 {
		return "ms"
	}
	return "en"
}
