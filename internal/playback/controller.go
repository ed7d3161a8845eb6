// Package playback owns the live presentation surface: the shared playback
// mode selector and the localized playback queue handed to display clients.
package playback

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/anchordesk/backend/internal/models"
)

// ModeStore persists the playback mode.
type ModeStore interface {
	Get(ctx context.Context) (*models.PlaybackMode, error)
	Save(ctx context.Context, m *models.PlaybackMode) error
}

// ReportChecker verifies a selected report before it becomes the single
// carousel target.
type ReportChecker interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Report, error)
}

// Notifier pushes mode changes to connected display clients.
type Notifier interface {
	Publish(event string, data interface{})
}

// Controller serializes playback mode reads and writes. The mode is cached
// in memory; the store is the source of truth across restarts.
type Controller struct {
	mu     sync.RWMutex
	cached *models.PlaybackMode

	store    ModeStore
	reports  ReportChecker
	notifier Notifier
	logger   *zap.Logger
}

// NewController creates a playback mode controller. notifier may be nil.
func NewController(store ModeStore, reports ReportChecker, notifier Notifier, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{store: store, reports: reports, notifier: notifier, logger: logger}
}

// Current returns the active playback mode, loading it on first use. A
// missing row falls back to the default without failing the read.
func (c *Controller) Current(ctx context.Context) (models.PlaybackMode, error) {
	c.mu.RLock()
	if c.cached != nil {
		m := *c.cached
		c.mu.RUnlock()
		return m, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cached != nil {
		return *c.cached, nil
	}
	m, err := c.store.Get(ctx)
	if err != nil {
		if err == models.ErrNotFound {
			def := models.DefaultPlaybackMode()
			c.cached = &def
			return def, nil
		}
		return models.PlaybackMode{}, err
	}
	c.cached = m
	return *m, nil
}

// SetParams is an operator's mode change. Nil fields keep current values.
type SetParams struct {
	Mode             string
	CarouselScope    *string
	SelectedReportID *uuid.UUID
}

// Set validates and applies a mode change. Writes are last-writer-wins;
// the whole change is serialized under one lock so readers never observe a
// half-applied mode.
func (c *Controller) Set(ctx context.Context, params SetParams) (models.PlaybackMode, error) {
	if !models.ValidPlaybackMode(params.Mode) {
		return models.PlaybackMode{}, fmt.Errorf("%w: unknown mode %q", models.ErrInvalidMode, params.Mode)
	}
	if params.CarouselScope != nil && !models.ValidCarouselScope(*params.CarouselScope) {
		return models.PlaybackMode{}, fmt.Errorf("%w: unknown carousel scope %q", models.ErrInvalidMode, *params.CarouselScope)
	}

	current, err := c.Current(ctx)
	if err != nil {
		return models.PlaybackMode{}, err
	}

	next := current
	next.Mode = params.Mode
	if params.CarouselScope != nil {
		next.CarouselScope = *params.CarouselScope
	}
	if params.SelectedReportID != nil {
		next.SelectedReportID = params.SelectedReportID
	}

	if next.Mode == models.ModeCarouselSummary && next.CarouselScope == models.CarouselScopeSingle {
		if next.SelectedReportID == nil {
			return models.PlaybackMode{}, fmt.Errorf("%w: single scope requires a selected report", models.ErrValidation)
		}
		rep, err := c.reports.GetByID(ctx, *next.SelectedReportID)
		if err != nil {
			return models.PlaybackMode{}, err
		}
		if rep.Status != models.ReportStatusPublished {
			return models.PlaybackMode{}, fmt.Errorf("%w: selected report is not published", models.ErrConflict)
		}
	}

	c.mu.Lock()
	if err := c.store.Save(ctx, &next); err != nil {
		c.mu.Unlock()
		return models.PlaybackMode{}, err
	}
	c.cached = &next
	c.mu.Unlock()

	c.logger.Info("playback mode changed", zap.String("mode", next.Mode),
		zap.String("carousel_scope", next.CarouselScope))
	if c.notifier != nil {
		c.notifier.Publish("playback_mode_changed", next)
	}
	return next, nil
}
