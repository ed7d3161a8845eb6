package synthesis

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/anchordesk/backend/pkg/queue"
	"github.com/anchordesk/backend/pkg/response"
)

// JobEnqueuer schedules background reflection synthesis.
type JobEnqueuer interface {
	EnqueueReflectionAudio(ctx context.Context, payload queue.ReflectionAudioPayload) error
}

// ReflectionSynthRequest is the body for POST /reports/:id/reflections/synthesize.
// Empty language_keys means every supported language.
type ReflectionSynthRequest struct {
	LanguageKeys []string `json:"language_keys"`
}

// Handler handles synthesis HTTP endpoints.
type Handler struct {
	coordinator *Coordinator
	jobs        JobEnqueuer
}

// NewHandler creates a synthesis handler.
func NewHandler(coordinator *Coordinator, jobs JobEnqueuer) *Handler {
	return &Handler{coordinator: coordinator, jobs: jobs}
}

// SynthesizeVariant handles POST /reports/:id/synthesize/:lang
// (editor/admin). Blocks until the audio exists; idempotent for unchanged
// scripts.
func (h *Handler) SynthesizeVariant(c *gin.Context) {
	reportID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid report id")
		return
	}
	v, err := h.coordinator.SynthesizeVariant(c.Request.Context(), reportID, c.Param("lang"))
	if err != nil {
		response.Error(c, err, "failed to synthesize audio")
		return
	}
	response.OK(c, v)
}

// SynthesizeReflections handles POST /reports/:id/reflections/synthesize
// (editor/admin). The work runs on the background worker.
func (h *Handler) SynthesizeReflections(c *gin.Context) {
	reportID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid report id")
		return
	}
	var req ReflectionSynthRequest
	_ = c.ShouldBindJSON(&req)

	payload := queue.ReflectionAudioPayload{ReportID: reportID, LanguageKeys: req.LanguageKeys}
	if err := h.jobs.EnqueueReflectionAudio(c.Request.Context(), payload); err != nil {
		response.Internal(c, "failed to enqueue reflection synthesis")
		return
	}
	response.OK(c, gin.H{"report_id": reportID, "queued": true})
}

// Reflections handles GET /reports/:id/reflections?lang=xx&include_audio=1.
func (h *Handler) Reflections(c *gin.Context) {
	reportID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid report id")
		return
	}
	lang := c.DefaultQuery("lang", "zh")
	includeAudio := c.Query("include_audio") == "1" || c.Query("include_audio") == "true"

	items, err := h.coordinator.ReflectionOverlay(c.Request.Context(), reportID, lang, includeAudio)
	if err != nil {
		response.Error(c, err, "failed to load reflections")
		return
	}
	response.OK(c, gin.H{"language_key": lang, "reflections": items})
}

// Questions handles GET /reports/:id/questions?lang=xx&persona=cfo.
func (h *Handler) Questions(c *gin.Context) {
	reportID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid report id")
		return
	}
	set, err := h.coordinator.Questions(c.Request.Context(), reportID, c.DefaultQuery("lang", "zh"), c.Query("persona"))
	if err != nil {
		response.Error(c, err, "failed to load questions")
		return
	}
	response.OK(c, set)
}
