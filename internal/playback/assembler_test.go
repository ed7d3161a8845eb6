package playback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/anchordesk/backend/internal/models"
	"github.com/anchordesk/backend/pkg/utils"
)

type stubReports struct {
	reports []models.Report
}

func (s *stubReports) ListPublished(_ context.Context) ([]models.Report, error) {
	var out []models.Report
	for _, r := range s.reports {
		if r.Status == models.ReportStatusPublished {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *stubReports) GetByID(_ context.Context, id uuid.UUID) (*models.Report, error) {
	for _, r := range s.reports {
		if r.ID == id {
			cp := r
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}

type stubVariants struct {
	byReport map[uuid.UUID][]models.LanguageVariant
}

func (s *stubVariants) ListByReport(_ context.Context, reportID uuid.UUID) ([]models.LanguageVariant, error) {
	return s.byReport[reportID], nil
}

type fixedMode struct {
	mode models.PlaybackMode
}

func (f *fixedMode) Current(_ context.Context) (models.PlaybackMode, error) {
	return f.mode, nil
}

type stubPresigner struct{}

func (stubPresigner) PresignAudioURL(_ context.Context, key string) (string, error) {
	return "https://audio.test/" + key, nil
}

func publishedReport(title string, published time.Time) models.Report {
	return models.Report{
		ID:              uuid.New(),
		Title:           title,
		Speaker:         "Chen Wei",
		SourceLanguage:  "zh",
		ScriptFinal:     "Script for " + title,
		HighlightsFinal: []string{"h1"},
		Status:          models.ReportStatusPublished,
		PublishedAt:     &published,
		AutoPlayEnabled: true,
	}
}

func readyVariant(reportID uuid.UUID, lang, script string) models.LanguageVariant {
	return models.LanguageVariant{
		ReportID:    reportID,
		LanguageKey: lang,
		Title:       "[" + lang + "] title",
		ScriptFinal: script,
		RenderMode:  models.ResolveRenderMode(lang),
		Status:      models.VariantStatusReady,
	}
}

func TestAssembleExcludesNonReadyVariants(t *testing.T) {
	rep := publishedReport("Q3 wrap", time.Now())
	failed := readyVariant(rep.ID, "ja", "[ja] script")
	failed.Status = models.VariantStatusFailed

	a := NewAssembler(
		&stubReports{reports: []models.Report{rep}},
		&stubVariants{byReport: map[uuid.UUID][]models.LanguageVariant{
			rep.ID: {readyVariant(rep.ID, "en", "[en] script"), failed},
		}},
		&fixedMode{mode: models.DefaultPlaybackMode()},
		nil, nil,
	)

	q, err := a.Assemble(context.Background(), QueueParams{})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(q.Items) != 1 {
		t.Fatalf("items = %d", len(q.Items))
	}
	langs := make(map[string]bool)
	for _, p := range q.Items[0].Payloads {
		langs[p.LanguageKey] = true
	}
	if !langs["zh"] || !langs["en"] {
		t.Fatalf("payload languages = %v, want source zh and ready en", langs)
	}
	if langs["ja"] {
		t.Fatal("failed variant must not appear in the queue")
	}
}

func TestAssembleSourcePayloadFromReport(t *testing.T) {
	rep := publishedReport("Q3 wrap", time.Now())
	a := NewAssembler(
		&stubReports{reports: []models.Report{rep}},
		&stubVariants{byReport: map[uuid.UUID][]models.LanguageVariant{}},
		&fixedMode{mode: models.DefaultPlaybackMode()},
		nil, nil,
	)

	q, err := a.Assemble(context.Background(), QueueParams{Languages: []string{"zh"}})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	p := q.Items[0].Payloads[0]
	if p.Script != rep.ScriptFinal || !p.Reviewed || p.RenderMode != models.RenderModeText {
		t.Fatalf("payload = %+v", p)
	}
}

func TestAssembleSkipsUnpublishedAndEmptyReports(t *testing.T) {
	published := publishedReport("Live", time.Now())
	draft := publishedReport("Draft", time.Now())
	draft.Status = models.ReportStatusDraft
	empty := publishedReport("Empty", time.Now())
	empty.ScriptFinal = " "

	a := NewAssembler(
		&stubReports{reports: []models.Report{published, draft, empty}},
		&stubVariants{byReport: map[uuid.UUID][]models.LanguageVariant{}},
		&fixedMode{mode: models.DefaultPlaybackMode()},
		nil, nil,
	)

	q, err := a.Assemble(context.Background(), QueueParams{Languages: []string{"zh"}})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(q.Items) != 1 || q.Items[0].ReportID != published.ID {
		t.Fatalf("items = %+v", q.Items)
	}
}

func TestAssembleSingleScopeNarrowsToSelection(t *testing.T) {
	first := publishedReport("First", time.Now())
	second := publishedReport("Second", time.Now())

	mode := models.DefaultPlaybackMode()
	mode.CarouselScope = models.CarouselScopeSingle
	mode.SelectedReportID = &second.ID

	a := NewAssembler(
		&stubReports{reports: []models.Report{first, second}},
		&stubVariants{byReport: map[uuid.UUID][]models.LanguageVariant{}},
		&fixedMode{mode: mode},
		nil, nil,
	)

	q, err := a.Assemble(context.Background(), QueueParams{Languages: []string{"zh"}})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(q.Items) != 1 || q.Items[0].ReportID != second.ID {
		t.Fatalf("items = %+v", q.Items)
	}
}

func TestAssembleExplicitReportOverridesMode(t *testing.T) {
	first := publishedReport("First", time.Now())
	second := publishedReport("Second", time.Now())
	draft := publishedReport("Draft", time.Now())
	draft.Status = models.ReportStatusDraft

	a := NewAssembler(
		&stubReports{reports: []models.Report{first, second, draft}},
		&stubVariants{byReport: map[uuid.UUID][]models.LanguageVariant{}},
		&fixedMode{mode: models.DefaultPlaybackMode()},
		nil, nil,
	)

	q, err := a.Assemble(context.Background(), QueueParams{ReportID: &first.ID, Languages: []string{"zh"}})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(q.Items) != 1 || q.Items[0].ReportID != first.ID {
		t.Fatalf("items = %+v", q.Items)
	}

	// Requesting an unpublished report yields an empty queue.
	q, err = a.Assemble(context.Background(), QueueParams{ReportID: &draft.ID, Languages: []string{"zh"}})
	if err != nil {
		t.Fatalf("Assemble draft: %v", err)
	}
	if len(q.Items) != 0 {
		t.Fatalf("items = %+v, want empty for unpublished selection", q.Items)
	}
}

func TestAssembleAudioAttachment(t *testing.T) {
	rep := publishedReport("Q3 wrap", time.Now())

	fresh := readyVariant(rep.ID, "ja", "[ja] script")
	fresh.AudioReady = true
	fresh.AudioKey = "audio/ja.pcm"
	fresh.AudioTextHash = utils.TextHash(fresh.ScriptFinal)

	stale := readyVariant(rep.ID, "hi", "[hi] edited script")
	stale.AudioReady = true
	stale.AudioKey = "audio/hi.pcm"
	stale.AudioTextHash = utils.TextHash("[hi] original script")

	a := NewAssembler(
		&stubReports{reports: []models.Report{rep}},
		&stubVariants{byReport: map[uuid.UUID][]models.LanguageVariant{rep.ID: {fresh, stale}}},
		&fixedMode{mode: models.DefaultPlaybackMode()},
		stubPresigner{}, nil,
	)

	q, err := a.Assemble(context.Background(), QueueParams{Languages: []string{"ja", "hi"}, IncludeAudio: true})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	byLang := make(map[string]VariantPayload)
	for _, p := range q.Items[0].Payloads {
		byLang[p.LanguageKey] = p
	}
	if byLang["ja"].AudioURL == "" {
		t.Fatal("fresh audio must be attached")
	}
	if byLang["hi"].AudioURL != "" {
		t.Fatal("stale audio must not be attached")
	}

	// Audio is dropped entirely when not requested.
	q, err = a.Assemble(context.Background(), QueueParams{Languages: []string{"ja"}})
	if err != nil {
		t.Fatalf("Assemble without audio: %v", err)
	}
	if q.Items[0].Payloads[0].AudioURL != "" {
		t.Fatal("audio must be omitted when not requested")
	}
}

func TestAssembleSourcePayloadAttachesFreshAudio(t *testing.T) {
	rep := publishedReport("Q3 wrap", time.Now())

	src := readyVariant(rep.ID, "zh", rep.ScriptFinal)
	src.AudioReady = true
	src.AudioKey = "audio/zh.pcm"
	src.AudioTextHash = utils.TextHash(rep.ScriptFinal)

	a := NewAssembler(
		&stubReports{reports: []models.Report{rep}},
		&stubVariants{byReport: map[uuid.UUID][]models.LanguageVariant{rep.ID: {src}}},
		&fixedMode{mode: models.DefaultPlaybackMode()},
		stubPresigner{}, nil,
	)

	q, err := a.Assemble(context.Background(), QueueParams{Languages: []string{"zh"}, IncludeAudio: true})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	p := q.Items[0].Payloads[0]
	if p.Script != rep.ScriptFinal {
		t.Fatalf("payload = %+v, want the report's script", p)
	}
	if p.AudioURL == "" {
		t.Fatal("fresh source-language audio must be attached when requested")
	}

	// Stale audio (report edited after synthesis) is not attached.
	stale := src
	stale.AudioTextHash = utils.TextHash("an earlier script")
	a = NewAssembler(
		&stubReports{reports: []models.Report{rep}},
		&stubVariants{byReport: map[uuid.UUID][]models.LanguageVariant{rep.ID: {stale}}},
		&fixedMode{mode: models.DefaultPlaybackMode()},
		stubPresigner{}, nil,
	)
	q, err = a.Assemble(context.Background(), QueueParams{Languages: []string{"zh"}, IncludeAudio: true})
	if err != nil {
		t.Fatalf("Assemble stale: %v", err)
	}
	if q.Items[0].Payloads[0].AudioURL != "" {
		t.Fatal("stale source-language audio must not be attached")
	}
}

func TestAssembleRejectsUnknownLanguage(t *testing.T) {
	a := NewAssembler(
		&stubReports{},
		&stubVariants{byReport: map[uuid.UUID][]models.LanguageVariant{}},
		&fixedMode{mode: models.DefaultPlaybackMode()},
		nil, nil,
	)

	_, err := a.Assemble(context.Background(), QueueParams{Languages: []string{"fr"}})
	if !errors.Is(err, models.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}
