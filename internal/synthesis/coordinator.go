// Package synthesis turns finalized variant text into playable speech
// audio: full-script audio per variant and a per-line cache for reflection
// playback. Audio is stored in S3; rows only carry object keys and text
// hashes for staleness checks.
package synthesis

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/anchordesk/backend/internal/models"
	"github.com/anchordesk/backend/internal/synthesizer"
	"github.com/anchordesk/backend/pkg/storage"
	"github.com/anchordesk/backend/pkg/utils"
)

// ReportSource supplies report content for reflection synthesis.
type ReportSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Report, error)
}

// VariantSource reads variant text and records audio bookkeeping.
type VariantSource interface {
	Get(ctx context.Context, reportID uuid.UUID, languageKey string) (*models.LanguageVariant, error)
	UpdateAudio(ctx context.Context, reportID uuid.UUID, languageKey, audioKey, audioTextHash string, ready bool) error
}

// ReflectionStore is the per-line audio cache.
type ReflectionStore interface {
	Get(ctx context.Context, reportID uuid.UUID, seq int, languageKey string) (*models.ReflectionAudio, error)
	ListByLanguage(ctx context.Context, reportID uuid.UUID, languageKey string) ([]models.ReflectionAudio, error)
	Upsert(ctx context.Context, a *models.ReflectionAudio) error
	PruneAbove(ctx context.Context, reportID uuid.UUID, maxSeq int) error
}

// AudioStore is the object storage surface the coordinator needs.
type AudioStore interface {
	UploadAudio(ctx context.Context, key string, pcm []byte) (string, error)
	PresignAudioURL(ctx context.Context, key string) (string, error)
	DeleteAudio(ctx context.Context, key string) error
}

// Coordinator owns speech synthesis for variants and reflections.
type Coordinator struct {
	reports     ReportSource
	variants    VariantSource
	reflections ReflectionStore
	synth       synthesizer.Service
	store       AudioStore
	logger      *zap.Logger
}

// NewCoordinator creates a synthesis coordinator.
func NewCoordinator(reports ReportSource, variants VariantSource, reflections ReflectionStore,
	synth synthesizer.Service, store AudioStore, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		reports:     reports,
		variants:    variants,
		reflections: reflections,
		synth:       synth,
		store:       store,
		logger:      logger,
	}
}

// SynthesizeVariant produces full-script audio for one ready variant. The
// call is idempotent: audio whose text hash still matches the script is
// kept as-is.
func (c *Coordinator) SynthesizeVariant(ctx context.Context, reportID uuid.UUID, languageKey string) (*models.LanguageVariant, error) {
	languageKey = models.NormalizeLanguage(languageKey)
	if !models.IsSupportedLanguage(languageKey) {
		return nil, fmt.Errorf("%w: unsupported language %q", models.ErrValidation, languageKey)
	}
	v, err := c.variants.Get(ctx, reportID, languageKey)
	if err != nil {
		return nil, err
	}
	if v.Status != models.VariantStatusReady || strings.TrimSpace(v.ScriptFinal) == "" {
		return nil, fmt.Errorf("%w: variant %q is not ready for synthesis", models.ErrNotReady, languageKey)
	}

	hash := utils.TextHash(v.ScriptFinal)
	if v.AudioReady && v.AudioTextHash == hash {
		return v, nil
	}

	pcm, err := c.synth.Synthesize(ctx, v.ScriptFinal, languageKey)
	if err != nil {
		return nil, err
	}
	key, err := c.store.UploadAudio(ctx, storage.VariantAudioKey(reportID.String(), languageKey), pcm)
	if err != nil {
		return nil, fmt.Errorf("%w: upload audio: %v", models.ErrSynthesis, err)
	}
	if err := c.variants.UpdateAudio(ctx, reportID, languageKey, key, hash, true); err != nil {
		return nil, err
	}
	v.AudioReady = true
	v.AudioKey = key
	v.AudioTextHash = hash
	v.RenderMode = models.RenderModeAudio
	c.logger.Info("variant audio synthesized",
		zap.String("report_id", reportID.String()), zap.String("language", languageKey))
	return v, nil
}

// SynthesizeReflections fills the per-line audio cache for the given
// languages, skipping lines whose cached hash still matches. Returns the
// number of lines actually synthesized.
func (c *Coordinator) SynthesizeReflections(ctx context.Context, reportID uuid.UUID, languageKeys []string) (int, error) {
	rep, err := c.reports.GetByID(ctx, reportID)
	if err != nil {
		return 0, err
	}
	if len(languageKeys) == 0 {
		languageKeys = models.LanguageKeys()
	}

	synthesized := 0
	for _, lang := range languageKeys {
		lang = models.NormalizeLanguage(lang)
		if !models.IsSupportedLanguage(lang) {
			return synthesized, fmt.Errorf("%w: unsupported language %q", models.ErrValidation, lang)
		}
		lines, err := c.reflectionLines(ctx, rep, lang)
		if err != nil {
			c.logger.Warn("skipping reflection language without text",
				zap.String("language", lang), zap.Error(err))
			continue
		}
		for seq, line := range lines {
			if strings.TrimSpace(line) == "" {
				continue
			}
			hash := utils.TextHash(line)
			cached, err := c.reflections.Get(ctx, reportID, seq, lang)
			if err == nil && cached.TextHash == hash {
				continue
			}
			pcm, err := c.synth.Synthesize(ctx, line, lang)
			if err != nil {
				return synthesized, err
			}
			key, err := c.store.UploadAudio(ctx, storage.ReflectionAudioKey(reportID.String(), seq, lang), pcm)
			if err != nil {
				return synthesized, fmt.Errorf("%w: upload audio: %v", models.ErrSynthesis, err)
			}
			entry := &models.ReflectionAudio{
				ReportID:    reportID,
				Seq:         seq,
				LanguageKey: lang,
				TextHash:    hash,
				AudioKey:    key,
			}
			if err := c.reflections.Upsert(ctx, entry); err != nil {
				return synthesized, err
			}
			synthesized++
		}
		c.pruneReflections(ctx, reportID, lang, len(lines))
	}
	return synthesized, nil
}

// ReflectionItem is one localized reflection line with its audio, when the
// cached audio is current.
type ReflectionItem struct {
	Seq      int    `json:"seq"`
	Text     string `json:"text"`
	AudioURL string `json:"audio_url,omitempty"`
}

// ReflectionOverlay returns the localized reflection lines for one
// language, attaching presigned audio URLs for lines whose cache is fresh.
func (c *Coordinator) ReflectionOverlay(ctx context.Context, reportID uuid.UUID, languageKey string, includeAudio bool) ([]ReflectionItem, error) {
	languageKey = models.NormalizeLanguage(languageKey)
	if !models.IsSupportedLanguage(languageKey) {
		return nil, fmt.Errorf("%w: unsupported language %q", models.ErrValidation, languageKey)
	}
	rep, err := c.reports.GetByID(ctx, reportID)
	if err != nil {
		return nil, err
	}
	lines, err := c.reflectionLines(ctx, rep, languageKey)
	if err != nil {
		return nil, err
	}

	var cached map[int]models.ReflectionAudio
	if includeAudio {
		entries, err := c.reflections.ListByLanguage(ctx, reportID, languageKey)
		if err != nil {
			return nil, err
		}
		cached = make(map[int]models.ReflectionAudio, len(entries))
		for _, e := range entries {
			cached[e.Seq] = e
		}
	}

	items := make([]ReflectionItem, 0, len(lines))
	for seq, line := range lines {
		item := ReflectionItem{Seq: seq, Text: line}
		if entry, ok := cached[seq]; ok && entry.TextHash == utils.TextHash(line) {
			url, err := c.store.PresignAudioURL(ctx, entry.AudioKey)
			if err != nil {
				c.logger.Warn("presign reflection audio", zap.Error(err))
			} else {
				item.AudioURL = url
			}
		}
		items = append(items, item)
	}
	return items, nil
}

// pruneReflections drops cache rows past the end of a shrunken reflection
// list, deleting their stored audio objects first.
func (c *Coordinator) pruneReflections(ctx context.Context, reportID uuid.UUID, lang string, lineCount int) {
	entries, err := c.reflections.ListByLanguage(ctx, reportID, lang)
	if err != nil {
		c.logger.Warn("list reflection audio for prune", zap.Error(err))
	} else {
		for _, entry := range entries {
			if entry.Seq < lineCount {
				continue
			}
			if err := c.store.DeleteAudio(ctx, entry.AudioKey); err != nil {
				c.logger.Warn("delete stale reflection audio",
					zap.String("key", entry.AudioKey), zap.Error(err))
			}
		}
	}
	if err := c.reflections.PruneAbove(ctx, reportID, lineCount); err != nil {
		c.logger.Warn("prune stale reflection audio", zap.Error(err))
	}
}

// QuestionSet is the localized sharp-question pack for one language.
type QuestionSet struct {
	LanguageKey string   `json:"language_key"`
	Persona     string   `json:"persona"`
	Questions   []string `json:"questions"`
}

// Questions returns the localized questions for one language. A non-empty
// persona must match the persona the questions were generated for; changing
// persona requires regenerating the draft.
func (c *Coordinator) Questions(ctx context.Context, reportID uuid.UUID, languageKey, persona string) (*QuestionSet, error) {
	languageKey = models.NormalizeLanguage(languageKey)
	if !models.IsSupportedLanguage(languageKey) {
		return nil, fmt.Errorf("%w: unsupported language %q", models.ErrValidation, languageKey)
	}
	rep, err := c.reports.GetByID(ctx, reportID)
	if err != nil {
		return nil, err
	}

	set := &QuestionSet{LanguageKey: languageKey}
	if languageKey == rep.ResolvedSourceLanguage() {
		set.Persona = rep.QuestionPersona
		set.Questions = rep.Questions
	} else {
		v, err := c.variants.Get(ctx, reportID, languageKey)
		if err != nil {
			return nil, err
		}
		if v.Status != models.VariantStatusReady {
			return nil, fmt.Errorf("%w: variant %q is %s", models.ErrNotReady, languageKey, v.Status)
		}
		set.Persona = v.QuestionPersona
		set.Questions = v.Questions
	}
	if persona != "" && models.NormalizeQuestionPersona(persona) != set.Persona {
		return nil, fmt.Errorf("%w: questions were generated for persona %q", models.ErrConflict, set.Persona)
	}
	return set, nil
}

// reflectionLines resolves the localized reflection text for a language:
// the report's own lines for the source language, otherwise the ready
// variant's lines.
func (c *Coordinator) reflectionLines(ctx context.Context, rep *models.Report, languageKey string) ([]string, error) {
	if languageKey == rep.ResolvedSourceLanguage() {
		return rep.Reflections, nil
	}
	v, err := c.variants.Get(ctx, rep.ID, languageKey)
	if err != nil {
		return nil, err
	}
	if v.Status != models.VariantStatusReady {
		return nil, fmt.Errorf("%w: variant %q is %s", models.ErrNotReady, languageKey, v.Status)
	}
	return v.Reflections, nil
}
