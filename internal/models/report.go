package models

import (
	"time"

	"github.com/google/uuid"
)

// Report lifecycle statuses. The lifecycle is monotonic: draft → reviewed →
// published. Leaving published requires an explicit admin override.
const (
	ReportStatusDraft     = "draft"
	ReportStatusReviewed  = "reviewed"
	ReportStatusPublished = "published"
)

// Editorial limits on finalized artifacts.
const (
	MaxHighlights  = 2
	MaxReflections = 5
	MaxQuestions   = 3
)

// Report is a meeting report with its draft and finalized text artifacts.
// The finalized fields are the default-language source every translation is
// produced from.
type Report struct {
	ID              uuid.UUID  `json:"id"`
	Title           string     `json:"title"`
	Speaker         string     `json:"speaker"`
	SourceLanguage  string     `json:"source_language"`
	MeetingTime     time.Time  `json:"meeting_time"`
	SummaryRaw      string     `json:"summary_raw"`
	ScriptDraft     string     `json:"script_draft"`
	ScriptFinal     string     `json:"script_final"`
	HighlightsDraft []string   `json:"highlights_draft"`
	HighlightsFinal []string   `json:"highlights_final"`
	Reflections     []string   `json:"reflections_final"`
	Questions       []string   `json:"questions_final"`
	QuestionPersona string     `json:"question_persona"`
	AutoPlayEnabled bool       `json:"auto_play_enabled"`
	Status          string     `json:"status"`
	PublishedAt     *time.Time `json:"published_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// ResolvedSourceLanguage returns the explicit source language tag, or a
// detected one when the tag is missing or unsupported.
func (r *Report) ResolvedSourceLanguage() string {
	if key := NormalizeLanguage(r.SourceLanguage); key != "" {
		return key
	}
	return DetectSourceLanguage(r.Title, r.SummaryRaw, r.ScriptFinal)
}

// CanTransitionStatus reports whether the lifecycle move is allowed.
// adminOverride permits regressing out of published.
func CanTransitionStatus(from, to string, adminOverride bool) bool {
	rank := map[string]int{
		ReportStatusDraft:     0,
		ReportStatusReviewed:  1,
		ReportStatusPublished: 2,
	}
	fr, ok1 := rank[from]
	tr, ok2 := rank[to]
	if !ok1 || !ok2 {
		return false
	}
	if from == ReportStatusPublished && tr < fr {
		return adminOverride
	}
	return tr >= fr
}
