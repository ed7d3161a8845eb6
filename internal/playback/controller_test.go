package playback

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/anchordesk/backend/internal/models"
)

type memModeStore struct {
	mu    sync.Mutex
	saved *models.PlaybackMode
}

func (s *memModeStore) Get(_ context.Context) (*models.PlaybackMode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saved == nil {
		return nil, models.ErrNotFound
	}
	cp := *s.saved
	return &cp, nil
}

func (s *memModeStore) Save(_ context.Context, m *models.PlaybackMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	s.saved = &cp
	return nil
}

type stubReportChecker struct {
	reports map[uuid.UUID]*models.Report
}

func (s *stubReportChecker) GetByID(_ context.Context, id uuid.UUID) (*models.Report, error) {
	rep, ok := s.reports[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *rep
	return &cp, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) Publish(event string, _ interface{}) {
	n.mu.Lock()
	n.events = append(n.events, event)
	n.mu.Unlock()
}

func newTestController(reports map[uuid.UUID]*models.Report) (*Controller, *memModeStore, *recordingNotifier) {
	store := &memModeStore{}
	notifier := &recordingNotifier{}
	c := NewController(store, &stubReportChecker{reports: reports}, notifier, nil)
	return c, store, notifier
}

func TestCurrentFallsBackToDefault(t *testing.T) {
	c, _, _ := newTestController(nil)

	m, err := c.Current(context.Background())
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if m.Mode != models.ModeCarouselSummary || m.CarouselScope != models.CarouselScopeLoop {
		t.Fatalf("default = %+v", m)
	}
}

func TestSetRejectsUnknownMode(t *testing.T) {
	c, _, _ := newTestController(nil)

	_, err := c.Set(context.Background(), SetParams{Mode: "interpretive_dance"})
	if !errors.Is(err, models.ErrInvalidMode) {
		t.Fatalf("err = %v, want ErrInvalidMode", err)
	}
}

func TestSetRejectsUnknownScope(t *testing.T) {
	c, _, _ := newTestController(nil)

	scope := "everything"
	_, err := c.Set(context.Background(), SetParams{Mode: models.ModeCarouselSummary, CarouselScope: &scope})
	if !errors.Is(err, models.ErrInvalidMode) {
		t.Fatalf("err = %v, want ErrInvalidMode", err)
	}
}

func TestSetSingleScopeRequiresSelectedReport(t *testing.T) {
	c, _, _ := newTestController(nil)

	scope := models.CarouselScopeSingle
	_, err := c.Set(context.Background(), SetParams{Mode: models.ModeCarouselSummary, CarouselScope: &scope})
	if !errors.Is(err, models.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestSetSingleScopeRejectsUnpublishedReport(t *testing.T) {
	rep := &models.Report{ID: uuid.New(), Status: models.ReportStatusDraft}
	c, _, _ := newTestController(map[uuid.UUID]*models.Report{rep.ID: rep})

	scope := models.CarouselScopeSingle
	_, err := c.Set(context.Background(), SetParams{
		Mode:             models.ModeCarouselSummary,
		CarouselScope:    &scope,
		SelectedReportID: &rep.ID,
	})
	if !errors.Is(err, models.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestSetPersistsAndNotifies(t *testing.T) {
	rep := &models.Report{ID: uuid.New(), Status: models.ReportStatusPublished}
	c, store, notifier := newTestController(map[uuid.UUID]*models.Report{rep.ID: rep})
	ctx := context.Background()

	scope := models.CarouselScopeSingle
	m, err := c.Set(ctx, SetParams{
		Mode:             models.ModeCarouselSummary,
		CarouselScope:    &scope,
		SelectedReportID: &rep.ID,
	})
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	if m.CarouselScope != models.CarouselScopeSingle || m.SelectedReportID == nil || *m.SelectedReportID != rep.ID {
		t.Fatalf("mode = %+v", m)
	}
	if store.saved == nil || store.saved.Mode != models.ModeCarouselSummary {
		t.Fatal("mode not persisted")
	}
	if len(notifier.events) != 1 || notifier.events[0] != "playback_mode_changed" {
		t.Fatalf("events = %v", notifier.events)
	}

	got, err := c.Current(ctx)
	if err != nil || got.CarouselScope != models.CarouselScopeSingle {
		t.Fatalf("Current = %+v, err = %v", got, err)
	}
}

func TestSetLastWriterWins(t *testing.T) {
	c, store, _ := newTestController(nil)
	ctx := context.Background()

	if _, err := c.Set(ctx, SetParams{Mode: models.ModeReflectionQA}); err != nil {
		t.Fatalf("first set: %v", err)
	}
	if _, err := c.Set(ctx, SetParams{Mode: models.ModeMeetingLive}); err != nil {
		t.Fatalf("second set: %v", err)
	}
	if store.saved.Mode != models.ModeMeetingLive {
		t.Fatalf("persisted mode = %q", store.saved.Mode)
	}
	m, _ := c.Current(ctx)
	if m.Mode != models.ModeMeetingLive {
		t.Fatalf("cached mode = %q", m.Mode)
	}
}
