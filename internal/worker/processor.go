// Package worker runs the background synthesis jobs: full-script variant
// audio and per-line reflection audio.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/anchordesk/backend/internal/synthesis"
	"github.com/anchordesk/backend/pkg/queue"
)

// Notifier pushes synthesis completions to connected clients.
type Notifier interface {
	Publish(event string, data interface{})
}

// SynthesisProcessor consumes the synthesis queue and drives the
// coordinator.
type SynthesisProcessor struct {
	coordinator *synthesis.Coordinator
	queue       *queue.Queue
	notifier    Notifier
	logger      *zap.Logger
}

// NewSynthesisProcessor creates a synthesis job processor. notifier may be
// nil.
func NewSynthesisProcessor(coordinator *synthesis.Coordinator, q *queue.Queue, notifier Notifier, logger *zap.Logger) *SynthesisProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SynthesisProcessor{coordinator: coordinator, queue: q, notifier: notifier, logger: logger}
}

// Process executes one job.
func (p *SynthesisProcessor) Process(ctx context.Context, job *queue.Job) error {
	switch job.Type {
	case queue.JobTypeVariantAudio:
		var payload queue.VariantAudioPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("unmarshal payload: %w", err)
		}
		v, err := p.coordinator.SynthesizeVariant(ctx, payload.ReportID, payload.LanguageKey)
		if err != nil {
			return err
		}
		if p.notifier != nil {
			p.notifier.Publish("variant_audio_ready", map[string]interface{}{
				"report_id":    v.ReportID,
				"language_key": v.LanguageKey,
			})
		}
		return nil

	case queue.JobTypeReflectionAudio:
		var payload queue.ReflectionAudioPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("unmarshal payload: %w", err)
		}
		n, err := p.coordinator.SynthesizeReflections(ctx, payload.ReportID, payload.LanguageKeys)
		if err != nil {
			return err
		}
		p.logger.Info("reflection audio synthesized",
			zap.String("report_id", payload.ReportID.String()), zap.Int("lines", n))
		if p.notifier != nil && n > 0 {
			p.notifier.Publish("reflection_audio_ready", map[string]interface{}{
				"report_id": payload.ReportID,
				"lines":     n,
			})
		}
		return nil

	default:
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *SynthesisProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("synthesis worker stopping")
			return
		default:
		}

		job, _, err := p.queue.Dequeue(ctx)
		if err != nil {
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
		}
	}
}
