package translations

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/anchordesk/backend/pkg/response"
)

// UpdateRequest is the body for PUT /reports/:id/variants/:lang. All fields
// are optional; omitted fields keep their current values.
type UpdateRequest struct {
	Title           *string   `json:"title"`
	ScriptFinal     *string   `json:"script_final"`
	HighlightsFinal *[]string `json:"highlights_final"`
	Reflections     *[]string `json:"reflections_final"`
	Questions       *[]string `json:"questions_final"`
	QuestionPersona *string   `json:"question_persona"`
	Reviewed        *bool     `json:"reviewed"`
}

// FailRequest is the body for POST /reports/:id/variants/:lang/fail.
type FailRequest struct {
	Error string `json:"error"`
}

// Handler handles translation HTTP endpoints.
type Handler struct {
	registry *Registry
}

// NewHandler creates a translations handler.
func NewHandler(registry *Registry) *Handler {
	return &Handler{registry: registry}
}

// ListVariants handles GET /reports/:id/variants.
func (h *Handler) ListVariants(c *gin.Context) {
	reportID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid report id")
		return
	}
	variants, err := h.registry.ListVariants(c.Request.Context(), reportID)
	if err != nil {
		response.Error(c, err, "failed to list variants")
		return
	}
	response.OK(c, variants)
}

// GetVariant handles GET /reports/:id/variants/:lang. Translation happens
// on demand, so this call blocks until the variant is ready or fails.
func (h *Handler) GetVariant(c *gin.Context) {
	reportID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid report id")
		return
	}
	v, err := h.registry.PrepareTranslation(c.Request.Context(), reportID, c.Param("lang"))
	if err != nil {
		response.Error(c, err, "failed to prepare translation")
		return
	}
	response.OK(c, v)
}

// UpdateVariant handles PUT /reports/:id/variants/:lang (editor/admin).
func (h *Handler) UpdateVariant(c *gin.Context) {
	reportID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid report id")
		return
	}
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	params := UpdateParams{
		Title:           req.Title,
		ScriptFinal:     req.ScriptFinal,
		HighlightsFinal: req.HighlightsFinal,
		Reflections:     req.Reflections,
		Questions:       req.Questions,
		QuestionPersona: req.QuestionPersona,
		Reviewed:        req.Reviewed,
	}
	v, err := h.registry.UpdateVariant(c.Request.Context(), reportID, c.Param("lang"), params)
	if err != nil {
		response.Error(c, err, "failed to update variant")
		return
	}
	response.OK(c, v)
}

// Retranslate handles POST /reports/:id/retranslate (editor/admin). The
// job runs in the background; poll translation-status for progress.
func (h *Handler) Retranslate(c *gin.Context) {
	reportID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid report id")
		return
	}
	jobID, langs, err := h.registry.TriggerBulkRetranslation(c.Request.Context(), reportID)
	if err != nil {
		response.Error(c, err, "failed to trigger retranslation")
		return
	}
	response.OK(c, gin.H{"job_id": jobID, "languages": langs})
}

// RetranslateLanguage handles POST /reports/:id/retranslate/:lang
// (editor/admin).
func (h *Handler) RetranslateLanguage(c *gin.Context) {
	reportID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid report id")
		return
	}
	jobID, err := h.registry.TriggerSingleRetranslation(c.Request.Context(), reportID, c.Param("lang"))
	if err != nil {
		response.Error(c, err, "failed to trigger retranslation")
		return
	}
	response.OK(c, gin.H{"job_id": jobID, "language": c.Param("lang")})
}

// TranslationStatus handles GET /reports/:id/translation-status.
func (h *Handler) TranslationStatus(c *gin.Context) {
	reportID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid report id")
		return
	}
	statuses, err := h.registry.ListJobStatuses(c.Request.Context(), reportID)
	if err != nil {
		response.Error(c, err, "failed to read translation status")
		return
	}
	response.OK(c, statuses)
}

// MarkFailed handles POST /reports/:id/variants/:lang/fail (admin). Used
// by the watchdog when a translation exceeds its deadline.
func (h *Handler) MarkFailed(c *gin.Context) {
	reportID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid report id")
		return
	}
	var req FailRequest
	_ = c.ShouldBindJSON(&req)
	if err := h.registry.MarkFailed(c.Request.Context(), reportID, c.Param("lang"), req.Error); err != nil {
		response.Error(c, err, "failed to mark translation failed")
		return
	}
	response.OK(c, gin.H{"language": c.Param("lang"), "status": "failed"})
}
