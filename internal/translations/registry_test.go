package translations

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/anchordesk/backend/internal/models"
	"github.com/anchordesk/backend/internal/translator"
)

type stubReports struct {
	rep *models.Report
}

func (s *stubReports) GetByID(_ context.Context, id uuid.UUID) (*models.Report, error) {
	if s.rep == nil || s.rep.ID != id {
		return nil, models.ErrNotFound
	}
	cp := *s.rep
	return &cp, nil
}

type memStore struct {
	mu   sync.Mutex
	rows map[string]models.LanguageVariant
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[string]models.LanguageVariant)}
}

func (s *memStore) Get(_ context.Context, _ uuid.UUID, lang string) (*models.LanguageVariant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.rows[lang]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := v
	return &cp, nil
}

func (s *memStore) ListByReport(_ context.Context, _ uuid.UUID) ([]models.LanguageVariant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.LanguageVariant
	for _, v := range s.rows {
		out = append(out, v)
	}
	return out, nil
}

func (s *memStore) Upsert(_ context.Context, v *models.LanguageVariant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v.UpdatedAt = time.Now()
	s.rows[v.LanguageKey] = *v
	return nil
}

func (s *memStore) SetStatus(_ context.Context, reportID uuid.UUID, lang, status, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.rows[lang]
	if !ok {
		v = models.LanguageVariant{ReportID: reportID, LanguageKey: lang, RenderMode: models.ResolveRenderMode(lang)}
	}
	v.Status = status
	v.Error = errMsg
	v.UpdatedAt = time.Now()
	s.rows[lang] = v
	return nil
}

type stubTranslator struct {
	mu           sync.Mutex
	packageCalls int
	lineCalls    int
	failPackage  bool
}

func (s *stubTranslator) Translate(_ context.Context, text, lang string) (string, error) {
	s.mu.Lock()
	s.lineCalls++
	s.mu.Unlock()
	if text == "" {
		return "", nil
	}
	return "[" + lang + "] " + text, nil
}

func (s *stubTranslator) TranslatePackage(_ context.Context, title, script string, highlights []string, lang string) (*translator.PackageResult, error) {
	s.mu.Lock()
	s.packageCalls++
	fail := s.failPackage
	s.mu.Unlock()
	if fail {
		return nil, fmt.Errorf("%w: translator unavailable", models.ErrTranslation)
	}
	out := &translator.PackageResult{
		Title:  "[" + lang + "] " + title,
		Script: "[" + lang + "] " + script,
	}
	for _, h := range highlights {
		out.Highlights = append(out.Highlights, "["+lang+"] "+h)
	}
	return out, nil
}

func (s *stubTranslator) packages() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.packageCalls
}

func testReport() *models.Report {
	return &models.Report{
		ID:              uuid.New(),
		Title:           "Quarterly outlook",
		Speaker:         "Chen Wei",
		SourceLanguage:  "zh",
		ScriptFinal:     "Finalized broadcast script.",
		HighlightsFinal: []string{"Revenue up", "New market entry"},
		Reflections:     []string{"Margins remain thin", "Hiring freeze continues"},
		Questions:       []string{"What is the path to profitability?"},
		QuestionPersona: models.DefaultQuestionPersona,
		Status:          models.ReportStatusPublished,
		UpdatedAt:       time.Now(),
	}
}

func newTestRegistry(rep *models.Report) (*Registry, *memStore, *stubTranslator) {
	store := newMemStore()
	svc := &stubTranslator{}
	reg := NewRegistry(&stubReports{rep: rep}, store, svc, nil, nil, time.Minute, nil)
	return reg, store, svc
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestPrepareTranslationTranslatesTarget(t *testing.T) {
	rep := testReport()
	reg, store, svc := newTestRegistry(rep)

	v, err := reg.PrepareTranslation(context.Background(), rep.ID, "ja")
	if err != nil {
		t.Fatalf("PrepareTranslation: %v", err)
	}
	if v.Status != models.VariantStatusReady {
		t.Fatalf("status = %q, want ready", v.Status)
	}
	if v.ScriptFinal != "[ja] Finalized broadcast script." {
		t.Fatalf("script = %q", v.ScriptFinal)
	}
	if len(v.Reflections) != 2 || v.Reflections[0] != "[ja] Margins remain thin" {
		t.Fatalf("reflections = %v", v.Reflections)
	}
	if v.Reviewed {
		t.Fatal("machine translation must not be marked reviewed")
	}
	if v.RenderMode != models.RenderModeAudio {
		t.Fatalf("render mode = %q, want audio", v.RenderMode)
	}
	if svc.packages() != 1 {
		t.Fatalf("package calls = %d, want 1", svc.packages())
	}
	if _, err := store.Get(context.Background(), rep.ID, "ja"); err != nil {
		t.Fatalf("variant not stored: %v", err)
	}
}

func TestPrepareTranslationSourceLanguageCopies(t *testing.T) {
	rep := testReport()
	reg, _, svc := newTestRegistry(rep)

	v, err := reg.PrepareTranslation(context.Background(), rep.ID, "zh")
	if err != nil {
		t.Fatalf("PrepareTranslation: %v", err)
	}
	if v.ScriptFinal != rep.ScriptFinal || v.Title != rep.Title {
		t.Fatal("source language variant must copy report content verbatim")
	}
	if !v.Reviewed {
		t.Fatal("source language copy counts as reviewed")
	}
	if svc.packages() != 0 {
		t.Fatalf("package calls = %d, want 0 for source language", svc.packages())
	}
}

func TestPrepareTranslationUnchangedSourceShortCircuits(t *testing.T) {
	rep := testReport()
	reg, _, svc := newTestRegistry(rep)

	if _, err := reg.PrepareTranslation(context.Background(), rep.ID, "ja"); err != nil {
		t.Fatalf("first prepare: %v", err)
	}
	calls := svc.packages()
	if _, err := reg.PrepareTranslation(context.Background(), rep.ID, "ja"); err != nil {
		t.Fatalf("second prepare: %v", err)
	}
	if svc.packages() != calls {
		t.Fatal("unchanged source must not be retranslated")
	}
}

func TestPrepareTranslationRetranslatesAfterSourceChange(t *testing.T) {
	rep := testReport()
	reg, _, svc := newTestRegistry(rep)

	if _, err := reg.PrepareTranslation(context.Background(), rep.ID, "ja"); err != nil {
		t.Fatalf("first prepare: %v", err)
	}
	rep.ScriptFinal = "Rewritten script after review."
	v, err := reg.PrepareTranslation(context.Background(), rep.ID, "ja")
	if err != nil {
		t.Fatalf("second prepare: %v", err)
	}
	if svc.packages() != 2 {
		t.Fatalf("package calls = %d, want 2 after source change", svc.packages())
	}
	if v.ScriptFinal != "[ja] Rewritten script after review." {
		t.Fatalf("script = %q", v.ScriptFinal)
	}
}

func TestPrepareTranslationRejectsUnfinalizedReport(t *testing.T) {
	rep := testReport()
	rep.ScriptFinal = "  "
	reg, _, _ := newTestRegistry(rep)

	_, err := reg.PrepareTranslation(context.Background(), rep.ID, "ja")
	if !errors.Is(err, models.ErrNotReady) {
		t.Fatalf("err = %v, want ErrNotReady", err)
	}
}

func TestPrepareTranslationFailureRecorded(t *testing.T) {
	rep := testReport()
	reg, store, svc := newTestRegistry(rep)
	svc.failPackage = true

	_, err := reg.PrepareTranslation(context.Background(), rep.ID, "ja")
	if !errors.Is(err, models.ErrTranslation) {
		t.Fatalf("err = %v, want ErrTranslation", err)
	}
	v, err := store.Get(context.Background(), rep.ID, "ja")
	if err != nil {
		t.Fatalf("failure skeleton not stored: %v", err)
	}
	if v.Status != models.VariantStatusFailed || v.Error == "" {
		t.Fatalf("stored status = %q error = %q, want failed with message", v.Status, v.Error)
	}
}

func TestTriggerSingleRejectsSourceLanguage(t *testing.T) {
	rep := testReport()
	reg, _, _ := newTestRegistry(rep)

	_, err := reg.TriggerSingleRetranslation(context.Background(), rep.ID, "zh")
	if !errors.Is(err, models.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestTriggerBulkSkipsSourceLanguage(t *testing.T) {
	rep := testReport()
	reg, store, _ := newTestRegistry(rep)

	jobID, langs, err := reg.TriggerBulkRetranslation(context.Background(), rep.ID)
	if err != nil {
		t.Fatalf("TriggerBulkRetranslation: %v", err)
	}
	if jobID == uuid.Nil {
		t.Fatal("expected a job id")
	}
	for _, lang := range langs {
		if lang == "zh" {
			t.Fatal("bulk job must skip the source language")
		}
	}
	if len(langs) != len(models.LanguageKeys())-1 {
		t.Fatalf("languages = %v", langs)
	}

	waitFor(t, func() bool {
		for _, lang := range langs {
			v, err := store.Get(context.Background(), rep.ID, lang)
			if err != nil || v.Status != models.VariantStatusReady {
				return false
			}
		}
		return true
	})
}

func TestStaleCommitDiscarded(t *testing.T) {
	rep := testReport()
	reg, store, _ := newTestRegistry(rep)
	ctx := context.Background()
	key := pairKey{reportID: rep.ID, languageKey: "ja"}

	tokenOld := reg.begin(key)
	tokenNew := reg.begin(key)

	old := &models.LanguageVariant{ReportID: rep.ID, LanguageKey: "ja", ScriptFinal: "stale", Status: models.VariantStatusReady}
	ok, err := reg.commit(ctx, key, tokenOld, old)
	if err != nil {
		t.Fatalf("commit old: %v", err)
	}
	if ok {
		t.Fatal("stale token must not commit")
	}
	if _, err := store.Get(ctx, rep.ID, "ja"); !errors.Is(err, models.ErrNotFound) {
		t.Fatal("stale result must not reach the store")
	}

	fresh := &models.LanguageVariant{ReportID: rep.ID, LanguageKey: "ja", ScriptFinal: "fresh", Status: models.VariantStatusReady}
	ok, err = reg.commit(ctx, key, tokenNew, fresh)
	if err != nil || !ok {
		t.Fatalf("commit fresh: ok=%v err=%v", ok, err)
	}
	v, err := store.Get(ctx, rep.ID, "ja")
	if err != nil || v.ScriptFinal != "fresh" {
		t.Fatalf("stored = %+v, err = %v", v, err)
	}
}

func TestMarkFailedDiscardsInFlightResult(t *testing.T) {
	rep := testReport()
	reg, _, _ := newTestRegistry(rep)
	ctx := context.Background()
	key := pairKey{reportID: rep.ID, languageKey: "hi"}

	token := reg.begin(key)
	if err := reg.MarkFailed(ctx, rep.ID, "hi", "watchdog timeout"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	late := &models.LanguageVariant{ReportID: rep.ID, LanguageKey: "hi", ScriptFinal: "late", Status: models.VariantStatusReady}
	ok, err := reg.commit(ctx, key, token, late)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if ok {
		t.Fatal("result arriving after MarkFailed must be discarded")
	}

	status, msg := reg.effectiveStatus(key, models.VariantStatusMissing, "")
	if status != models.VariantStatusFailed || msg != "watchdog timeout" {
		t.Fatalf("status = %q %q", status, msg)
	}
}

func TestMarkFailedRequiresInFlightJob(t *testing.T) {
	rep := testReport()
	reg, _, _ := newTestRegistry(rep)

	err := reg.MarkFailed(context.Background(), rep.ID, "hi", "timeout")
	if !errors.Is(err, models.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestUpdateVariantTextChangeResetsReview(t *testing.T) {
	rep := testReport()
	reg, _, _ := newTestRegistry(rep)
	ctx := context.Background()

	if _, err := reg.PrepareTranslation(ctx, rep.ID, "ja"); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	reviewed := true
	if _, err := reg.UpdateVariant(ctx, rep.ID, "ja", UpdateParams{Reviewed: &reviewed}); err != nil {
		t.Fatalf("review: %v", err)
	}

	script := "Hand-corrected script."
	v, err := reg.UpdateVariant(ctx, rep.ID, "ja", UpdateParams{ScriptFinal: &script})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if v.Reviewed {
		t.Fatal("text change must reset the review flag")
	}
	if v.AudioReady || v.AudioKey != "" || v.AudioTextHash != "" {
		t.Fatal("text change must invalidate audio")
	}
	if v.ScriptFinal != script || v.Status != models.VariantStatusReady {
		t.Fatalf("variant = %+v", v)
	}
}

func TestUpdateVariantReviewWhileTranslatingConflicts(t *testing.T) {
	rep := testReport()
	reg, _, _ := newTestRegistry(rep)
	ctx := context.Background()

	if _, err := reg.PrepareTranslation(ctx, rep.ID, "ja"); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	reg.begin(pairKey{reportID: rep.ID, languageKey: "ja"})

	reviewed := true
	_, err := reg.UpdateVariant(ctx, rep.ID, "ja", UpdateParams{Reviewed: &reviewed})
	if !errors.Is(err, models.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestUpdateVariantOverrideDiscardsInFlightJob(t *testing.T) {
	rep := testReport()
	reg, store, _ := newTestRegistry(rep)
	ctx := context.Background()
	key := pairKey{reportID: rep.ID, languageKey: "ja"}

	if _, err := reg.PrepareTranslation(ctx, rep.ID, "ja"); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	token := reg.begin(key)

	script := "Editor override wins."
	if _, err := reg.UpdateVariant(ctx, rep.ID, "ja", UpdateParams{ScriptFinal: &script}); err != nil {
		t.Fatalf("update: %v", err)
	}

	late := &models.LanguageVariant{ReportID: rep.ID, LanguageKey: "ja", ScriptFinal: "machine output", Status: models.VariantStatusReady}
	ok, err := reg.commit(ctx, key, token, late)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if ok {
		t.Fatal("job result must not overwrite an editor override")
	}
	v, _ := store.Get(ctx, rep.ID, "ja")
	if v.ScriptFinal != script {
		t.Fatalf("stored script = %q", v.ScriptFinal)
	}
}

func TestUpdateVariantRejectsOverrideWithoutScript(t *testing.T) {
	rep := testReport()
	reg, store, svc := newTestRegistry(rep)
	ctx := context.Background()

	svc.failPackage = true
	if _, err := reg.PrepareTranslation(ctx, rep.ID, "ja"); !errors.Is(err, models.ErrTranslation) {
		t.Fatalf("prepare err = %v, want ErrTranslation", err)
	}

	// The stored row is a failure skeleton with no text. A title-only
	// override must not force it ready.
	title := "Corrected title"
	_, err := reg.UpdateVariant(ctx, rep.ID, "ja", UpdateParams{Title: &title})
	if !errors.Is(err, models.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
	v, err := store.Get(ctx, rep.ID, "ja")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if v.Status == models.VariantStatusReady {
		t.Fatal("rejected override must not leave the variant ready")
	}

	// Supplying the full text makes the same override valid.
	script := "Hand-written replacement script."
	highlights := []string{"Revenue up"}
	got, err := reg.UpdateVariant(ctx, rep.ID, "ja", UpdateParams{
		Title:           &title,
		ScriptFinal:     &script,
		HighlightsFinal: &highlights,
	})
	if err != nil {
		t.Fatalf("full override: %v", err)
	}
	if got.Status != models.VariantStatusReady || got.ScriptFinal != script {
		t.Fatalf("variant = %+v", got)
	}
}

func TestUpdateVariantIdenticalListsPreserveReviewAndAudio(t *testing.T) {
	rep := testReport()
	reg, store, _ := newTestRegistry(rep)
	ctx := context.Background()

	if _, err := reg.PrepareTranslation(ctx, rep.ID, "ja"); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	reviewed := true
	if _, err := reg.UpdateVariant(ctx, rep.ID, "ja", UpdateParams{Reviewed: &reviewed}); err != nil {
		t.Fatalf("review: %v", err)
	}

	v, err := store.Get(ctx, rep.ID, "ja")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	v.AudioReady = true
	v.AudioKey = "audio/ja.pcm"
	v.AudioTextHash = "hash"
	if err := store.Upsert(ctx, v); err != nil {
		t.Fatalf("seed audio: %v", err)
	}

	same := append([]string(nil), v.HighlightsFinal...)
	got, err := reg.UpdateVariant(ctx, rep.ID, "ja", UpdateParams{
		HighlightsFinal: &same,
		Reflections:     &v.Reflections,
		Questions:       &v.Questions,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !got.Reviewed {
		t.Fatal("resubmitting identical lists must not reset the review flag")
	}
	if !got.AudioReady || got.AudioKey == "" || got.AudioTextHash == "" {
		t.Fatal("resubmitting identical lists must not invalidate audio")
	}
}

// hookTranslator runs a callback inside TranslatePackage, letting a test
// interleave competing registry work with an in-flight translation.
type hookTranslator struct {
	stubTranslator
	onPackage func()
}

func (h *hookTranslator) TranslatePackage(ctx context.Context, title, script string, highlights []string, lang string) (*translator.PackageResult, error) {
	if h.onPackage != nil {
		h.onPackage()
	}
	return h.stubTranslator.TranslatePackage(ctx, title, script, highlights, lang)
}

func TestPrepareSupersededReturnsCommittedVariant(t *testing.T) {
	rep := testReport()
	store := newMemStore()
	svc := &hookTranslator{}
	reg := NewRegistry(&stubReports{rep: rep}, store, svc, nil, nil, time.Minute, nil)
	ctx := context.Background()
	key := pairKey{reportID: rep.ID, languageKey: "ja"}

	winner := &models.LanguageVariant{
		ReportID:    rep.ID,
		LanguageKey: "ja",
		ScriptFinal: "winner script",
		Status:      models.VariantStatusReady,
	}
	svc.onPackage = func() {
		svc.onPackage = nil
		token := reg.begin(key)
		if ok, err := reg.commit(ctx, key, token, winner); err != nil || !ok {
			t.Errorf("winner commit: ok=%v err=%v", ok, err)
		}
	}

	v, err := reg.PrepareTranslation(ctx, rep.ID, "ja")
	if err != nil {
		t.Fatalf("superseded prepare must not error: %v", err)
	}
	if v.ScriptFinal != "winner script" {
		t.Fatalf("script = %q, want the winning job's result", v.ScriptFinal)
	}
}

func TestUpdateVariantRejectsOversizedLists(t *testing.T) {
	rep := testReport()
	reg, _, _ := newTestRegistry(rep)

	highlights := []string{"a", "b", "c"}
	_, err := reg.UpdateVariant(context.Background(), rep.ID, "ja", UpdateParams{HighlightsFinal: &highlights})
	if !errors.Is(err, models.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestListVariantsCoversAllLanguages(t *testing.T) {
	rep := testReport()
	reg, _, _ := newTestRegistry(rep)
	ctx := context.Background()

	if _, err := reg.PrepareTranslation(ctx, rep.ID, "ja"); err != nil {
		t.Fatalf("prepare: %v", err)
	}

	variants, err := reg.ListVariants(ctx, rep.ID)
	if err != nil {
		t.Fatalf("ListVariants: %v", err)
	}
	if len(variants) != len(models.LanguageKeys()) {
		t.Fatalf("got %d variants, want %d", len(variants), len(models.LanguageKeys()))
	}
	byLang := make(map[string]models.LanguageVariant)
	for _, v := range variants {
		byLang[v.LanguageKey] = v
	}
	if byLang["zh"].Status != models.VariantStatusReady || !byLang["zh"].Reviewed {
		t.Fatalf("source variant = %+v", byLang["zh"])
	}
	if byLang["ja"].Status != models.VariantStatusReady {
		t.Fatalf("ja status = %q", byLang["ja"].Status)
	}
	if byLang["th"].Status != models.VariantStatusMissing {
		t.Fatalf("th status = %q, want missing", byLang["th"].Status)
	}
}
