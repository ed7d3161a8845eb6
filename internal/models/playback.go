package models

import (
	"time"

	"github.com/google/uuid"
)

// Live playback modes. Exactly one PlaybackMode record exists process-wide.
const (
	ModeRealtimeSummary = "realtime_summary"
	ModeCarouselSummary = "carousel_summary"
	ModeReflectionQA    = "reflection_qa"
	ModeMeetingLive     = "meeting_live"
)

// Carousel scopes, meaningful when the mode is carousel_summary.
const (
	CarouselScopeSingle = "single"
	CarouselScopeLoop   = "loop"
)

// PlaybackMode is the single shared selector of the active live
// presentation behavior. Writes are last-writer-wins.
type PlaybackMode struct {
	Mode             string     `json:"mode"`
	CarouselScope    string     `json:"carousel_scope"`
	SelectedReportID *uuid.UUID `json:"selected_report_id,omitempty"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// DefaultPlaybackMode is the startup value before any operator writes.
func DefaultPlaybackMode() PlaybackMode {
	return PlaybackMode{
		Mode:          ModeCarouselSummary,
		CarouselScope: CarouselScopeLoop,
		UpdatedAt:     time.Now(),
	}
}

// ValidPlaybackMode reports whether mode is one of the enumerated values.
func ValidPlaybackMode(mode string) bool {
	switch mode {
	case ModeRealtimeSummary, ModeCarouselSummary, ModeReflectionQA, ModeMeetingLive:
		return true
	}
	return false
}

// ValidCarouselScope reports whether scope is one of the enumerated values.
func ValidCarouselScope(scope string) bool {
	return scope == CarouselScopeSingle || scope == CarouselScopeLoop
}
