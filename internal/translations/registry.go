// Package translations owns the per-(report, language) translation state
// machine: lazy preparation, bulk and single retranslation jobs, editor
// overrides and review bookkeeping. Completed variants live in Postgres;
// in-flight job state lives in memory and is lost on restart by design.
package translations

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/anchordesk/backend/internal/models"
	"github.com/anchordesk/backend/internal/translator"
	"github.com/anchordesk/backend/pkg/queue"
	"github.com/anchordesk/backend/pkg/utils"
)

// ReportSource supplies the finalized source content being translated.
type ReportSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Report, error)
}

// VariantStore persists completed variants.
type VariantStore interface {
	Get(ctx context.Context, reportID uuid.UUID, languageKey string) (*models.LanguageVariant, error)
	ListByReport(ctx context.Context, reportID uuid.UUID) ([]models.LanguageVariant, error)
	Upsert(ctx context.Context, v *models.LanguageVariant) error
	SetStatus(ctx context.Context, reportID uuid.UUID, languageKey, status, errMsg string) error
}

// AudioEnqueuer schedules speech synthesis after a variant's text changes.
type AudioEnqueuer interface {
	EnqueueVariantAudio(ctx context.Context, payload queue.VariantAudioPayload) error
}

// Notifier pushes job state changes to connected dashboards.
type Notifier interface {
	Publish(event string, data interface{})
}

type pairKey struct {
	reportID    uuid.UUID
	languageKey string
}

// pairState tracks one in-flight or recently settled pair. The generation
// counter is bumped every time a new job (or an editor override) takes
// ownership of the pair; a job may only commit its result while it still
// holds the latest generation.
type pairState struct {
	status     string
	err        string
	generation uint64
	updatedAt  time.Time
}

// Registry coordinates translation jobs for all (report, language) pairs.
type Registry struct {
	mu    sync.Mutex
	pairs map[pairKey]*pairState

	reports    ReportSource
	variants   VariantStore
	translator translator.Service
	audio      AudioEnqueuer
	notifier   Notifier
	jobTimeout time.Duration
	logger     *zap.Logger
}

// NewRegistry creates a translation registry. audio and notifier may be nil.
func NewRegistry(reports ReportSource, variants VariantStore, svc translator.Service,
	audio AudioEnqueuer, notifier Notifier, jobTimeout time.Duration, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if jobTimeout <= 0 {
		jobTimeout = 5 * time.Minute
	}
	return &Registry{
		pairs:      make(map[pairKey]*pairState),
		reports:    reports,
		variants:   variants,
		translator: svc,
		audio:      audio,
		notifier:   notifier,
		jobTimeout: jobTimeout,
		logger:     logger,
	}
}

// sourceContentHash fingerprints the finalized source fields a translation
// is derived from. Matching hashes mean a stored variant is still current.
func sourceContentHash(rep *models.Report) string {
	parts := []string{rep.Title, rep.ScriptFinal, rep.QuestionPersona}
	parts = append(parts, rep.HighlightsFinal...)
	parts = append(parts, rep.Reflections...)
	parts = append(parts, rep.Questions...)
	return utils.ContentHash(parts...)
}

// PrepareTranslation returns the variant for one pair, translating on
// demand. A stored ready variant whose source hash still matches is
// returned as-is without calling the translator.
func (r *Registry) PrepareTranslation(ctx context.Context, reportID uuid.UUID, languageKey string) (*models.LanguageVariant, error) {
	languageKey = models.NormalizeLanguage(languageKey)
	if !models.IsSupportedLanguage(languageKey) {
		return nil, fmt.Errorf("%w: unsupported language %q", models.ErrValidation, languageKey)
	}
	rep, err := r.reports.GetByID(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(rep.ScriptFinal) == "" {
		return nil, fmt.Errorf("%w: report has no finalized script", models.ErrNotReady)
	}

	hash := sourceContentHash(rep)
	if existing, err := r.variants.Get(ctx, reportID, languageKey); err == nil &&
		existing.Status == models.VariantStatusReady && existing.SourceHash == hash {
		return existing, nil
	}

	key := pairKey{reportID: reportID, languageKey: languageKey}
	token := r.begin(key)
	v, err := r.translateVariant(ctx, rep, languageKey, hash)
	if err != nil {
		r.fail(ctx, key, token, err)
		return nil, err
	}
	ok, err := r.commit(ctx, key, token, v)
	if err != nil {
		return nil, err
	}
	if !ok {
		// A newer job took the pair while this translation ran. Serve that
		// job's result when it already landed instead of surfacing a
		// conflict to a legitimate reader.
		if cur, gerr := r.variants.Get(ctx, reportID, languageKey); gerr == nil &&
			cur.Status == models.VariantStatusReady {
			return cur, nil
		}
		return nil, fmt.Errorf("%w: translation superseded by a newer job", models.ErrConflict)
	}
	r.maybeEnqueueAudio(ctx, v)
	return v, nil
}

// TriggerSingleRetranslation starts a background retranslation of one
// target language and returns its job ID immediately. The report's own
// source language cannot be retranslated.
func (r *Registry) TriggerSingleRetranslation(ctx context.Context, reportID uuid.UUID, languageKey string) (uuid.UUID, error) {
	languageKey = models.NormalizeLanguage(languageKey)
	if !models.IsSupportedLanguage(languageKey) {
		return uuid.Nil, fmt.Errorf("%w: unsupported language %q", models.ErrValidation, languageKey)
	}
	rep, err := r.reports.GetByID(ctx, reportID)
	if err != nil {
		return uuid.Nil, err
	}
	if languageKey == rep.ResolvedSourceLanguage() {
		return uuid.Nil, fmt.Errorf("%w: %q is the report's source language", models.ErrValidation, languageKey)
	}
	if strings.TrimSpace(rep.ScriptFinal) == "" {
		return uuid.Nil, fmt.Errorf("%w: report has no finalized script", models.ErrNotReady)
	}

	hash := sourceContentHash(rep)
	jobID := uuid.New()
	tokens := map[string]uint64{
		languageKey: r.begin(pairKey{reportID: reportID, languageKey: languageKey}),
	}
	go r.runJob(jobID, rep, hash, []string{languageKey}, tokens)
	return jobID, nil
}

// TriggerBulkRetranslation starts a background retranslation of every
// target language except the report's source language. It returns the job
// ID and the set of languages the job covers.
func (r *Registry) TriggerBulkRetranslation(ctx context.Context, reportID uuid.UUID) (uuid.UUID, []string, error) {
	rep, err := r.reports.GetByID(ctx, reportID)
	if err != nil {
		return uuid.Nil, nil, err
	}
	if strings.TrimSpace(rep.ScriptFinal) == "" {
		return uuid.Nil, nil, fmt.Errorf("%w: report has no finalized script", models.ErrNotReady)
	}

	source := rep.ResolvedSourceLanguage()
	var langs []string
	for _, lang := range models.LanguageKeys() {
		if lang != source {
			langs = append(langs, lang)
		}
	}

	hash := sourceContentHash(rep)
	jobID := uuid.New()
	tokens := make(map[string]uint64, len(langs))
	for _, lang := range langs {
		tokens[lang] = r.begin(pairKey{reportID: reportID, languageKey: lang})
	}
	go r.runJob(jobID, rep, hash, langs, tokens)
	return jobID, langs, nil
}

// runJob translates each target sequentially so one report never fans out
// into parallel translator calls. Each pair commits (or fails) under its
// own generation token, so languages already retriggered by a newer job
// are silently discarded.
func (r *Registry) runJob(jobID uuid.UUID, rep *models.Report, hash string, langs []string, tokens map[string]uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), r.jobTimeout)
	defer cancel()

	log := r.logger.With(zap.String("job_id", jobID.String()), zap.String("report_id", rep.ID.String()))
	for _, lang := range langs {
		key := pairKey{reportID: rep.ID, languageKey: lang}
		token := tokens[lang]

		v, err := r.translateVariant(ctx, rep, lang, hash)
		if err != nil {
			log.Warn("translation failed", zap.String("language", lang), zap.Error(err))
			r.fail(ctx, key, token, err)
			continue
		}
		ok, err := r.commit(ctx, key, token, v)
		if err != nil {
			log.Error("variant commit failed", zap.String("language", lang), zap.Error(err))
			continue
		}
		if !ok {
			log.Info("stale translation discarded", zap.String("language", lang))
			continue
		}
		log.Info("variant translated", zap.String("language", lang))
		r.maybeEnqueueAudio(ctx, v)
	}
}

// translateVariant produces the variant content for one target. The source
// language is a direct copy of the report's finalized fields; other targets
// go through the translator, with reflections and questions falling back to
// the source text if an individual line fails.
func (r *Registry) translateVariant(ctx context.Context, rep *models.Report, languageKey, hash string) (*models.LanguageVariant, error) {
	v := &models.LanguageVariant{
		ReportID:        rep.ID,
		LanguageKey:     languageKey,
		QuestionPersona: rep.QuestionPersona,
		RenderMode:      models.ResolveRenderMode(languageKey),
		Status:          models.VariantStatusReady,
		SourceHash:      hash,
	}

	if languageKey == rep.ResolvedSourceLanguage() {
		v.Title = rep.Title
		v.ScriptFinal = rep.ScriptFinal
		v.HighlightsFinal = append([]string(nil), rep.HighlightsFinal...)
		v.Reflections = append([]string(nil), rep.Reflections...)
		v.Questions = append([]string(nil), rep.Questions...)
		v.Reviewed = true
		now := time.Now()
		v.ReviewedAt = &now
		return v, nil
	}

	pack, err := r.translator.TranslatePackage(ctx, rep.Title, rep.ScriptFinal, rep.HighlightsFinal, languageKey)
	if err != nil {
		return nil, err
	}
	v.Title = pack.Title
	v.ScriptFinal = pack.Script
	v.HighlightsFinal = pack.Highlights

	v.Reflections = r.translateLines(ctx, rep.Reflections, languageKey)
	v.Questions = r.translateLines(ctx, rep.Questions, languageKey)
	return v, nil
}

func (r *Registry) translateLines(ctx context.Context, lines []string, languageKey string) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		translated, err := r.translator.Translate(ctx, line, languageKey)
		if err != nil {
			r.logger.Warn("line translation failed, keeping source text",
				zap.String("language", languageKey), zap.Error(err))
			translated = line
		}
		out = append(out, translated)
	}
	return out
}

// UpdateParams carries an editor's partial variant override. Nil fields are
// left untouched.
type UpdateParams struct {
	Title           *string
	ScriptFinal     *string
	HighlightsFinal *[]string
	Reflections     *[]string
	Questions       *[]string
	QuestionPersona *string
	Reviewed        *bool
}

func (p UpdateParams) hasContent() bool {
	return p.Title != nil || p.ScriptFinal != nil || p.HighlightsFinal != nil ||
		p.Reflections != nil || p.Questions != nil || p.QuestionPersona != nil
}

// UpdateVariant applies an editor override to one pair. The result is
// always ready: a human-corrected variant outranks whatever a job would
// produce, so the pair's generation is bumped and any in-flight job result
// is discarded. Text changes reset the review flag and invalidate audio
// unless the same request explicitly re-reviews.
func (r *Registry) UpdateVariant(ctx context.Context, reportID uuid.UUID, languageKey string, params UpdateParams) (*models.LanguageVariant, error) {
	languageKey = models.NormalizeLanguage(languageKey)
	if !models.IsSupportedLanguage(languageKey) {
		return nil, fmt.Errorf("%w: unsupported language %q", models.ErrValidation, languageKey)
	}
	if params.HighlightsFinal != nil && len(*params.HighlightsFinal) > models.MaxHighlights {
		return nil, fmt.Errorf("%w: at most %d highlights", models.ErrValidation, models.MaxHighlights)
	}
	if params.Reflections != nil && len(*params.Reflections) > models.MaxReflections {
		return nil, fmt.Errorf("%w: at most %d reflections", models.ErrValidation, models.MaxReflections)
	}
	if params.Questions != nil && len(*params.Questions) > models.MaxQuestions {
		return nil, fmt.Errorf("%w: at most %d questions", models.ErrValidation, models.MaxQuestions)
	}

	v, err := r.variants.Get(ctx, reportID, languageKey)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
		// First touch of this pair: translate it before applying overrides.
		v, err = r.PrepareTranslation(ctx, reportID, languageKey)
		if err != nil {
			return nil, err
		}
	}

	// A bare review toggle is only valid while the pair is actually ready.
	if params.Reviewed != nil && *params.Reviewed && !params.hasContent() {
		if status, _ := r.effectiveStatus(pairKey{reportID, languageKey}, v.Status, v.Error); status != models.VariantStatusReady {
			return nil, fmt.Errorf("%w: variant is %s, not ready for review", models.ErrConflict, status)
		}
	}

	textChanged := false
	setStr := func(dst *string, src *string) {
		if src != nil && *src != *dst {
			*dst = *src
			textChanged = true
		}
	}
	setList := func(dst *[]string, src *[]string) {
		if src != nil && !slices.Equal(*dst, *src) {
			*dst = append([]string(nil), (*src)...)
			textChanged = true
		}
	}
	setStr(&v.Title, params.Title)
	setStr(&v.ScriptFinal, params.ScriptFinal)
	setStr(&v.QuestionPersona, params.QuestionPersona)
	setList(&v.HighlightsFinal, params.HighlightsFinal)
	setList(&v.Reflections, params.Reflections)
	setList(&v.Questions, params.Questions)

	if textChanged {
		v.Reviewed = false
		v.ReviewedAt = nil
		v.AudioReady = false
		v.AudioKey = ""
		v.AudioTextHash = ""
	}
	if params.Reviewed != nil {
		v.Reviewed = *params.Reviewed
		if v.Reviewed {
			now := time.Now()
			v.ReviewedAt = &now
		} else {
			v.ReviewedAt = nil
		}
	}

	// The override forces the pair ready, so the result must actually be
	// servable: a ready variant always carries script and highlight text.
	if strings.TrimSpace(v.ScriptFinal) == "" {
		return nil, fmt.Errorf("%w: override leaves the variant without a script", models.ErrValidation)
	}
	if len(v.HighlightsFinal) == 0 {
		return nil, fmt.Errorf("%w: override leaves the variant without highlights", models.ErrValidation)
	}
	v.Status = models.VariantStatusReady
	v.Error = ""

	if err := r.overrideCommit(ctx, pairKey{reportID, languageKey}, v); err != nil {
		return nil, err
	}
	if textChanged {
		r.maybeEnqueueAudio(ctx, v)
	}
	r.publish(v.ReportID, languageKey, models.VariantStatusReady, "")
	return v, nil
}

// MarkFailed records an out-of-band failure (external watchdog timeout) for
// a pair that is currently translating. The generation is bumped so the
// abandoned job's eventual result is discarded.
func (r *Registry) MarkFailed(ctx context.Context, reportID uuid.UUID, languageKey, message string) error {
	languageKey = models.NormalizeLanguage(languageKey)
	if !models.IsSupportedLanguage(languageKey) {
		return fmt.Errorf("%w: unsupported language %q", models.ErrValidation, languageKey)
	}
	if message == "" {
		message = "translation marked failed"
	}
	key := pairKey{reportID: reportID, languageKey: languageKey}

	r.mu.Lock()
	st := r.pairs[key]
	if st == nil || st.status != models.VariantStatusTranslating {
		r.mu.Unlock()
		return fmt.Errorf("%w: no translation in flight for %q", models.ErrConflict, languageKey)
	}
	st.generation++
	st.status = models.VariantStatusFailed
	st.err = message
	st.updatedAt = time.Now()
	r.mu.Unlock()

	if err := r.variants.SetStatus(ctx, reportID, languageKey, models.VariantStatusFailed, message); err != nil {
		r.logger.Error("persist failure status", zap.Error(err))
	}
	r.publish(reportID, languageKey, models.VariantStatusFailed, message)
	return nil
}

// ListVariants returns one entry per supported language: the source
// language synthesized from the report itself, stored variants overlaid
// with in-flight job state, and skeleton entries for untouched pairs.
func (r *Registry) ListVariants(ctx context.Context, reportID uuid.UUID) ([]models.LanguageVariant, error) {
	rep, err := r.reports.GetByID(ctx, reportID)
	if err != nil {
		return nil, err
	}
	stored, err := r.variants.ListByReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	byLang := make(map[string]models.LanguageVariant, len(stored))
	for _, v := range stored {
		byLang[v.LanguageKey] = v
	}

	source := rep.ResolvedSourceLanguage()
	out := make([]models.LanguageVariant, 0, len(models.LanguageKeys()))
	for _, lang := range models.LanguageKeys() {
		if lang == source {
			out = append(out, r.sourceVariant(rep, lang))
			continue
		}
		v, exists := byLang[lang]
		if !exists {
			v = models.LanguageVariant{
				ReportID:    reportID,
				LanguageKey: lang,
				RenderMode:  models.ResolveRenderMode(lang),
				Status:      models.VariantStatusMissing,
			}
		}
		v.Status, v.Error = r.effectiveStatus(pairKey{reportID, lang}, v.Status, v.Error)
		out = append(out, v)
	}
	return out, nil
}

// ListJobStatuses is the polling view: status and last error per target
// language, without content.
func (r *Registry) ListJobStatuses(ctx context.Context, reportID uuid.UUID) ([]models.JobStatus, error) {
	variants, err := r.ListVariants(ctx, reportID)
	if err != nil {
		return nil, err
	}
	out := make([]models.JobStatus, 0, len(variants))
	for _, v := range variants {
		js := models.JobStatus{LanguageKey: v.LanguageKey, Status: v.Status, Error: v.Error}
		if !v.UpdatedAt.IsZero() {
			t := v.UpdatedAt
			js.UpdatedAt = &t
		}
		out = append(out, js)
	}
	return out, nil
}

func (r *Registry) sourceVariant(rep *models.Report, lang string) models.LanguageVariant {
	v := models.LanguageVariant{
		ReportID:        rep.ID,
		LanguageKey:     lang,
		Title:           rep.Title,
		ScriptFinal:     rep.ScriptFinal,
		HighlightsFinal: rep.HighlightsFinal,
		Reflections:     rep.Reflections,
		Questions:       rep.Questions,
		QuestionPersona: rep.QuestionPersona,
		RenderMode:      models.ResolveRenderMode(lang),
		Status:          models.VariantStatusMissing,
		UpdatedAt:       rep.UpdatedAt,
	}
	if strings.TrimSpace(rep.ScriptFinal) != "" {
		v.Status = models.VariantStatusReady
		v.Reviewed = true
	}
	return v
}

// begin takes ownership of a pair for a new job and returns its token.
func (r *Registry) begin(key pairKey) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.pairs[key]
	if st == nil {
		st = &pairState{}
		r.pairs[key] = st
	}
	st.generation++
	st.status = models.VariantStatusTranslating
	st.err = ""
	st.updatedAt = time.Now()
	return st.generation
}

// commit stores a finished translation if its token is still current. The
// store write happens under the lock so a stale job can never overwrite a
// newer commit. Returns false when the result was superseded.
func (r *Registry) commit(ctx context.Context, key pairKey, token uint64, v *models.LanguageVariant) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.pairs[key]
	if st == nil || st.generation != token {
		return false, nil
	}
	if err := r.variants.Upsert(ctx, v); err != nil {
		st.status = models.VariantStatusFailed
		st.err = err.Error()
		st.updatedAt = time.Now()
		return false, err
	}
	st.status = models.VariantStatusReady
	st.err = ""
	st.updatedAt = time.Now()
	r.publish(key.reportID, key.languageKey, models.VariantStatusReady, "")
	return true, nil
}

// overrideCommit stores an editor override, bumping the generation so any
// in-flight job for the pair is discarded.
func (r *Registry) overrideCommit(ctx context.Context, key pairKey, v *models.LanguageVariant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.pairs[key]
	if st == nil {
		st = &pairState{}
		r.pairs[key] = st
	}
	st.generation++
	if err := r.variants.Upsert(ctx, v); err != nil {
		return err
	}
	st.status = models.VariantStatusReady
	st.err = ""
	st.updatedAt = time.Now()
	return nil
}

// fail marks a pair failed if the failing job still owns it.
func (r *Registry) fail(ctx context.Context, key pairKey, token uint64, cause error) {
	r.mu.Lock()
	st := r.pairs[key]
	if st == nil || st.generation != token {
		r.mu.Unlock()
		return
	}
	st.status = models.VariantStatusFailed
	st.err = cause.Error()
	st.updatedAt = time.Now()
	r.mu.Unlock()

	if err := r.variants.SetStatus(ctx, key.reportID, key.languageKey, models.VariantStatusFailed, cause.Error()); err != nil {
		r.logger.Error("persist failure status", zap.Error(err))
	}
	r.publish(key.reportID, key.languageKey, models.VariantStatusFailed, cause.Error())
}

// effectiveStatus overlays in-memory job state onto a stored row's status.
// A translating pair keeps serving its stale stored text, but its status
// reflects the job.
func (r *Registry) effectiveStatus(key pairKey, base, baseErr string) (string, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.pairs[key]
	if st == nil {
		return base, baseErr
	}
	return st.status, st.err
}

func (r *Registry) maybeEnqueueAudio(ctx context.Context, v *models.LanguageVariant) {
	if r.audio == nil || v.RenderMode != models.RenderModeAudio {
		return
	}
	payload := queue.VariantAudioPayload{ReportID: v.ReportID, LanguageKey: v.LanguageKey}
	if err := r.audio.EnqueueVariantAudio(ctx, payload); err != nil {
		r.logger.Error("enqueue variant audio", zap.String("language", v.LanguageKey), zap.Error(err))
	}
}

func (r *Registry) publish(reportID uuid.UUID, languageKey, status, errMsg string) {
	if r.notifier == nil {
		return
	}
	r.notifier.Publish("translation_status_changed", map[string]interface{}{
		"report_id":    reportID,
		"language_key": languageKey,
		"status":       status,
		"error":        errMsg,
	})
}
