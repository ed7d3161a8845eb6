package models

import "errors"

// Domain error taxonomy. Collaborator failures (translation, synthesis,
// generation) are recorded into variant state and only surface to the
// caller that triggered them synchronously.
var (
	// ErrValidation marks malformed input rejected before touching state.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks an unknown report or (report, language) pair.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks an operation invalid for the current state,
	// e.g. marking a non-ready variant reviewed.
	ErrConflict = errors.New("conflict")
	// ErrInvalidMode marks an unknown playback mode or carousel scope.
	ErrInvalidMode = errors.New("invalid playback mode")
	// ErrNotReady marks a synthesis request for a variant that is not ready.
	ErrNotReady = errors.New("variant not ready")

	// ErrTranslation wraps Translator collaborator failures.
	ErrTranslation = errors.New("translation error")
	// ErrSynthesis wraps Synthesizer collaborator failures.
	ErrSynthesis = errors.New("synthesis error")
	// ErrGeneration wraps Drafting Service failures.
	ErrGeneration = errors.New("generation error")
)
