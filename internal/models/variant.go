package models

import (
	"time"

	"github.com/google/uuid"
)

// Variant job statuses. A variant absent from storage is equivalent to
// VariantStatusMissing.
const (
	VariantStatusMissing     = "missing"
	VariantStatusTranslating = "translating"
	VariantStatusReady       = "ready"
	VariantStatusFailed      = "failed"
)

// LanguageVariant is the localized rendering of one report in one target
// language, carrying its own readiness state. One row per (report,
// language); created lazily on first translation, never deleted.
type LanguageVariant struct {
	ReportID        uuid.UUID  `json:"report_id"`
	LanguageKey     string     `json:"language_key"`
	Title           string     `json:"title"`
	ScriptFinal     string     `json:"script_final"`
	HighlightsFinal []string   `json:"highlights_final"`
	Reflections     []string   `json:"reflections_final"`
	Questions       []string   `json:"questions_final"`
	QuestionPersona string     `json:"question_persona"`
	RenderMode      string     `json:"render_mode"`
	Status          string     `json:"status"`
	Error           string     `json:"error,omitempty"`
	Reviewed        bool       `json:"reviewed"`
	ReviewedAt      *time.Time `json:"reviewed_at,omitempty"`
	// SourceHash is the sha256 of the finalized source content this
	// variant was translated from; used for the unchanged-source check.
	SourceHash string `json:"-"`
	AudioReady bool   `json:"audio_ready"`
	// AudioKey is the S3 object key of the synthesized PCM payload.
	AudioKey string `json:"-"`
	// AudioTextHash is the sha256 of the script the audio was synthesized
	// from; a mismatch means the audio is stale.
	AudioTextHash string    `json:"-"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// JobStatus is the editor-facing polling view of one (report, language)
// pair: status plus last error, never the content itself.
type JobStatus struct {
	LanguageKey string     `json:"language_key"`
	Status      string     `json:"status"`
	Error       string     `json:"error"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// ReflectionAudio is the pre-synthesized TTS cache for one reflection line
// in one language. TextHash detects stale cache after a text edit.
type ReflectionAudio struct {
	ReportID    uuid.UUID `json:"report_id"`
	Seq         int       `json:"seq"`
	LanguageKey string    `json:"language_key"`
	TextHash    string    `json:"-"`
	AudioKey    string    `json:"-"`
	UpdatedAt   time.Time `json:"updated_at"`
}
