package playback

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/anchordesk/backend/internal/models"
	"github.com/anchordesk/backend/pkg/utils"
)

// PublishedSource supplies the reports eligible for playback.
type PublishedSource interface {
	ListPublished(ctx context.Context) ([]models.Report, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Report, error)
}

// VariantSource supplies stored language variants.
type VariantSource interface {
	ListByReport(ctx context.Context, reportID uuid.UUID) ([]models.LanguageVariant, error)
}

// AudioPresigner issues short-lived URLs for stored audio objects.
type AudioPresigner interface {
	PresignAudioURL(ctx context.Context, key string) (string, error)
}

// ModeProvider supplies the active playback mode.
type ModeProvider interface {
	Current(ctx context.Context) (models.PlaybackMode, error)
}

// VariantPayload is one localized rendering inside a queue item. AudioURL
// is set only when audio was requested and the stored audio still matches
// the script.
type VariantPayload struct {
	LanguageKey string   `json:"language_key"`
	Title       string   `json:"title"`
	Script      string   `json:"script"`
	Highlights  []string `json:"highlights"`
	RenderMode  string   `json:"render_mode"`
	Reviewed    bool     `json:"reviewed"`
	AudioURL    string   `json:"audio_url,omitempty"`
}

// QueueItem is one report in playback order with its ready localizations.
type QueueItem struct {
	ReportID    uuid.UUID        `json:"report_id"`
	Title       string           `json:"title"`
	Speaker     string           `json:"speaker"`
	MeetingTime time.Time        `json:"meeting_time"`
	PublishedAt *time.Time       `json:"published_at,omitempty"`
	AutoPlay    bool             `json:"auto_play"`
	Payloads    []VariantPayload `json:"payloads"`
}

// Queue is the assembled playback queue for display clients.
type Queue struct {
	Mode        models.PlaybackMode `json:"mode"`
	Items       []QueueItem         `json:"items"`
	GeneratedAt time.Time           `json:"generated_at"`
}

// QueueParams filters the assembled queue. Empty Languages means all
// supported languages. ReportID narrows the queue to one published report
// regardless of the carousel scope.
type QueueParams struct {
	ReportID     *uuid.UUID
	Languages    []string
	IncludeAudio bool
}

// Assembler builds playback queues from published reports and their ready
// variants. Non-ready variants are left out entirely; the queue never
// serves stale or half-translated content.
type Assembler struct {
	reports  PublishedSource
	variants VariantSource
	mode     ModeProvider
	audio    AudioPresigner
	logger   *zap.Logger
}

// NewAssembler creates a playback queue assembler. audio may be nil when
// no object store is configured.
func NewAssembler(reports PublishedSource, variants VariantSource, mode ModeProvider, audio AudioPresigner, logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{reports: reports, variants: variants, mode: mode, audio: audio, logger: logger}
}

// Assemble builds the queue for the current playback mode. Single-scope
// carousel narrows the queue to the selected report; every other mode
// serves all published reports newest first.
func (a *Assembler) Assemble(ctx context.Context, params QueueParams) (*Queue, error) {
	mode, err := a.mode.Current(ctx)
	if err != nil {
		return nil, err
	}

	langs, err := resolveLanguages(params.Languages)
	if err != nil {
		return nil, err
	}

	reps, err := a.eligibleReports(ctx, mode, params.ReportID)
	if err != nil {
		return nil, err
	}

	q := &Queue{Mode: mode, Items: []QueueItem{}, GeneratedAt: time.Now()}
	for i := range reps {
		rep := &reps[i]
		item, err := a.buildItem(ctx, rep, langs, params.IncludeAudio)
		if err != nil {
			return nil, err
		}
		if len(item.Payloads) == 0 {
			continue
		}
		q.Items = append(q.Items, *item)
	}
	return q, nil
}

func (a *Assembler) eligibleReports(ctx context.Context, mode models.PlaybackMode, requested *uuid.UUID) ([]models.Report, error) {
	selected := requested
	if selected == nil && mode.Mode == models.ModeCarouselSummary && mode.CarouselScope == models.CarouselScopeSingle {
		selected = mode.SelectedReportID
	}
	if selected != nil {
		rep, err := a.reports.GetByID(ctx, *selected)
		if err != nil {
			if err == models.ErrNotFound {
				return nil, nil
			}
			return nil, err
		}
		if rep.Status != models.ReportStatusPublished {
			return nil, nil
		}
		return []models.Report{*rep}, nil
	}
	return a.reports.ListPublished(ctx)
}

func (a *Assembler) buildItem(ctx context.Context, rep *models.Report, langs []string, includeAudio bool) (*QueueItem, error) {
	stored, err := a.variants.ListByReport(ctx, rep.ID)
	if err != nil {
		return nil, err
	}
	byLang := make(map[string]*models.LanguageVariant, len(stored))
	for i := range stored {
		byLang[stored[i].LanguageKey] = &stored[i]
	}

	item := &QueueItem{
		ReportID:    rep.ID,
		Title:       rep.Title,
		Speaker:     rep.Speaker,
		MeetingTime: rep.MeetingTime,
		PublishedAt: rep.PublishedAt,
		AutoPlay:    rep.AutoPlayEnabled,
	}

	source := rep.ResolvedSourceLanguage()
	for _, lang := range langs {
		var p *VariantPayload
		if lang == source {
			if strings.TrimSpace(rep.ScriptFinal) == "" {
				continue
			}
			p = &VariantPayload{
				LanguageKey: lang,
				Title:       rep.Title,
				Script:      rep.ScriptFinal,
				Highlights:  rep.HighlightsFinal,
				RenderMode:  models.ResolveRenderMode(lang),
				Reviewed:    true,
			}
			// A stored source-language row may carry synthesized audio;
			// attach it when it still matches the report's script.
			if v, ok := byLang[lang]; ok && includeAudio && a.audio != nil &&
				v.AudioReady && v.AudioTextHash == utils.TextHash(rep.ScriptFinal) {
				url, err := a.audio.PresignAudioURL(ctx, v.AudioKey)
				if err != nil {
					a.logger.Warn("presign variant audio",
						zap.String("language", lang), zap.Error(err))
				} else {
					p.AudioURL = url
				}
			}
		} else {
			v, ok := byLang[lang]
			if !ok || v.Status != models.VariantStatusReady {
				continue
			}
			p = &VariantPayload{
				LanguageKey: lang,
				Title:       v.Title,
				Script:      v.ScriptFinal,
				Highlights:  v.HighlightsFinal,
				RenderMode:  v.RenderMode,
				Reviewed:    v.Reviewed,
			}
			if includeAudio && a.audio != nil && v.AudioReady && v.AudioTextHash == utils.TextHash(v.ScriptFinal) {
				url, err := a.audio.PresignAudioURL(ctx, v.AudioKey)
				if err != nil {
					a.logger.Warn("presign variant audio",
						zap.String("language", lang), zap.Error(err))
				} else {
					p.AudioURL = url
				}
			}
		}
		item.Payloads = append(item.Payloads, *p)
	}
	return item, nil
}

func resolveLanguages(requested []string) ([]string, error) {
	if len(requested) == 0 {
		return models.LanguageKeys(), nil
	}
	seen := make(map[string]struct{}, len(requested))
	out := make([]string, 0, len(requested))
	for _, raw := range requested {
		lang := models.NormalizeLanguage(raw)
		if lang == "" {
			return nil, fmt.Errorf("%w: unsupported language %q", models.ErrValidation, raw)
		}
		if _, dup := seen[lang]; dup {
			continue
		}
		seen[lang] = struct{}{}
		out = append(out, lang)
	}
	return out, nil
}
