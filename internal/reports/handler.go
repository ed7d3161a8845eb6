package reports

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/anchordesk/backend/internal/drafting"
	"github.com/anchordesk/backend/internal/models"
	"github.com/anchordesk/backend/pkg/response"
)

// Retranslator triggers background retranslation after source content
// changes.
type Retranslator interface {
	TriggerBulkRetranslation(ctx context.Context, reportID uuid.UUID) (uuid.UUID, []string, error)
}

// CreateRequest is the body for POST /reports.
type CreateRequest struct {
	Title           string     `json:"title" binding:"required"`
	Speaker         string     `json:"speaker"`
	SourceLanguage  string     `json:"source_language"`
	MeetingTime     *time.Time `json:"meeting_time"`
	SummaryRaw      string     `json:"summary_raw"`
	QuestionPersona string     `json:"question_persona"`
	AutoPlayEnabled *bool      `json:"auto_play_enabled"`
}

// UpdateRequest is the body for PUT /reports/:id. All fields optional.
type UpdateRequest struct {
	Title           *string    `json:"title"`
	Speaker         *string    `json:"speaker"`
	SourceLanguage  *string    `json:"source_language"`
	MeetingTime     *time.Time `json:"meeting_time"`
	SummaryRaw      *string    `json:"summary_raw"`
	ScriptDraft     *string    `json:"script_draft"`
	ScriptFinal     *string    `json:"script_final"`
	HighlightsDraft *[]string  `json:"highlights_draft"`
	HighlightsFinal *[]string  `json:"highlights_final"`
	Reflections     *[]string  `json:"reflections_final"`
	Questions       *[]string  `json:"questions_final"`
	QuestionPersona *string    `json:"question_persona"`
	AutoPlayEnabled *bool      `json:"auto_play_enabled"`
}

// StatusRequest is the body for POST /reports/:id/status.
type StatusRequest struct {
	Status        string `json:"status" binding:"required"`
	AdminOverride bool   `json:"admin_override"`
}

// GenerateRequest is the body for POST /reports/:id/generate.
type GenerateRequest struct {
	QuestionPersona string `json:"question_persona"`
}

// Handler handles report HTTP endpoints.
type Handler struct {
	repo       *Repository
	drafter    drafting.Service
	translator Retranslator
	logger     *zap.Logger
}

// NewHandler creates a reports handler.
func NewHandler(repo *Repository, drafter drafting.Service, translator Retranslator, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, drafter: drafter, translator: translator, logger: logger}
}

// List handles GET /reports?page=1&page_size=20&status=draft.
func (h *Handler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	status := c.Query("status")
	if status != "" && status != models.ReportStatusDraft &&
		status != models.ReportStatusReviewed && status != models.ReportStatusPublished {
		response.BadRequest(c, "unknown status filter")
		return
	}

	list, total, err := h.repo.List(c.Request.Context(), page, pageSize, status)
	if err != nil {
		response.Error(c, err, "failed to list reports")
		return
	}
	response.OK(c, gin.H{"reports": list, "total": total, "page": page, "page_size": pageSize})
}

// Create handles POST /reports (editor/admin).
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.SourceLanguage != "" && models.NormalizeLanguage(req.SourceLanguage) == "" {
		response.BadRequest(c, "unsupported source language")
		return
	}

	rep := &models.Report{
		Title:           strings.TrimSpace(req.Title),
		Speaker:         req.Speaker,
		SourceLanguage:  models.NormalizeLanguage(req.SourceLanguage),
		SummaryRaw:      req.SummaryRaw,
		QuestionPersona: models.NormalizeQuestionPersona(req.QuestionPersona),
		AutoPlayEnabled: true,
		Status:          models.ReportStatusDraft,
		MeetingTime:     time.Now(),
	}
	if req.MeetingTime != nil {
		rep.MeetingTime = *req.MeetingTime
	}
	if req.AutoPlayEnabled != nil {
		rep.AutoPlayEnabled = *req.AutoPlayEnabled
	}
	if rep.SourceLanguage == "" {
		rep.SourceLanguage = models.DetectSourceLanguage(rep.Title, rep.SummaryRaw, "")
	}

	if err := h.repo.Create(c.Request.Context(), rep); err != nil {
		response.Error(c, err, "failed to create report")
		return
	}
	response.Created(c, rep)
}

// Get handles GET /reports/:id.
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid report id")
		return
	}
	rep, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err, "failed to load report")
		return
	}
	response.OK(c, rep)
}

// LatestPublished handles GET /reports/latest-published (public).
func (h *Handler) LatestPublished(c *gin.Context) {
	rep, err := h.repo.LatestPublished(c.Request.Context())
	if err != nil {
		response.Error(c, err, "failed to load latest published report")
		return
	}
	response.OK(c, rep)
}

// Update handles PUT /reports/:id (editor/admin). Changing any finalized
// source field kicks off a background retranslation of every target
// language.
func (h *Handler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid report id")
		return
	}
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if err := validateUpdate(&req); err != nil {
		response.Error(c, err, "invalid report update")
		return
	}

	rep, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err, "failed to load report")
		return
	}

	before := sourceFingerprint(rep)
	applyUpdate(rep, &req)
	if err := h.repo.Update(c.Request.Context(), rep); err != nil {
		response.Error(c, err, "failed to update report")
		return
	}

	if h.translator != nil && sourceFingerprint(rep) != before && strings.TrimSpace(rep.ScriptFinal) != "" {
		if _, _, err := h.translator.TriggerBulkRetranslation(c.Request.Context(), rep.ID); err != nil {
			h.logger.Warn("retranslation after source change failed to start",
				zap.String("report_id", rep.ID.String()), zap.Error(err))
		}
	}
	response.OK(c, rep)
}

// Delete handles DELETE /reports/:id (admin).
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid report id")
		return
	}
	if err := h.repo.Delete(c.Request.Context(), id); err != nil {
		response.Error(c, err, "failed to delete report")
		return
	}
	response.NoContent(c)
}

// Publish handles POST /reports/:id/publish (editor/admin). A report is
// publishable only with a finalized script and one or two finalized
// highlights.
func (h *Handler) Publish(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid report id")
		return
	}
	rep, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err, "failed to load report")
		return
	}
	if strings.TrimSpace(rep.ScriptFinal) == "" {
		response.Error(c, fmt.Errorf("%w: finalized script is empty", models.ErrValidation), "")
		return
	}
	if len(rep.HighlightsFinal) < 1 || len(rep.HighlightsFinal) > models.MaxHighlights {
		response.Error(c, fmt.Errorf("%w: publishing needs 1 to %d finalized highlights",
			models.ErrValidation, models.MaxHighlights), "")
		return
	}
	if !models.CanTransitionStatus(rep.Status, models.ReportStatusPublished, false) {
		response.Error(c, fmt.Errorf("%w: cannot publish from %s", models.ErrConflict, rep.Status), "")
		return
	}

	now := time.Now()
	if err := h.repo.SetStatus(c.Request.Context(), id, models.ReportStatusPublished, &now); err != nil {
		response.Error(c, err, "failed to publish report")
		return
	}
	rep.Status = models.ReportStatusPublished
	rep.PublishedAt = &now

	if h.translator != nil {
		if _, _, err := h.translator.TriggerBulkRetranslation(c.Request.Context(), rep.ID); err != nil {
			h.logger.Warn("retranslation after publish failed to start",
				zap.String("report_id", rep.ID.String()), zap.Error(err))
		}
	}
	response.OK(c, rep)
}

// SetStatus handles POST /reports/:id/status. Regressing out of published
// needs admin_override (admin role enforced at the route).
func (h *Handler) SetStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid report id")
		return
	}
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	rep, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err, "failed to load report")
		return
	}
	if !models.CanTransitionStatus(rep.Status, req.Status, req.AdminOverride) {
		response.Error(c, fmt.Errorf("%w: cannot move %s to %s", models.ErrConflict, rep.Status, req.Status), "")
		return
	}

	publishedAt := rep.PublishedAt
	if req.Status == models.ReportStatusPublished && publishedAt == nil {
		now := time.Now()
		publishedAt = &now
	}
	if req.Status != models.ReportStatusPublished {
		publishedAt = nil
	}
	if err := h.repo.SetStatus(c.Request.Context(), id, req.Status, publishedAt); err != nil {
		response.Error(c, err, "failed to change status")
		return
	}
	rep.Status = req.Status
	rep.PublishedAt = publishedAt
	response.OK(c, rep)
}

// Generate handles POST /reports/:id/generate-pack (editor/admin): calls
// the drafting service synchronously and stores the result in the draft
// fields, leaving finalized fields untouched.
func (h *Handler) Generate(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid report id")
		return
	}
	var req GenerateRequest
	_ = c.ShouldBindJSON(&req)

	rep, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err, "failed to load report")
		return
	}
	if strings.TrimSpace(rep.SummaryRaw) == "" {
		response.Error(c, fmt.Errorf("%w: report has no raw summary", models.ErrValidation), "")
		return
	}
	persona := rep.QuestionPersona
	if req.QuestionPersona != "" {
		persona = models.NormalizeQuestionPersona(req.QuestionPersona)
	}

	if err := h.generateDraft(c.Request.Context(), rep, persona); err != nil {
		response.Error(c, err, "failed to generate draft")
		return
	}
	response.OK(c, rep)
}

// GenerateAsync handles POST /reports/:id/generate (editor/admin): same as
// Generate, but runs in the background and returns immediately. Callers
// observe completion through the updated draft fields.
func (h *Handler) GenerateAsync(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid report id")
		return
	}
	var req GenerateRequest
	_ = c.ShouldBindJSON(&req)

	rep, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err, "failed to load report")
		return
	}
	if strings.TrimSpace(rep.SummaryRaw) == "" {
		response.Error(c, fmt.Errorf("%w: report has no raw summary", models.ErrValidation), "")
		return
	}
	persona := rep.QuestionPersona
	if req.QuestionPersona != "" {
		persona = models.NormalizeQuestionPersona(req.QuestionPersona)
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := h.generateDraft(ctx, rep, persona); err != nil {
			h.logger.Error("background draft generation failed",
				zap.String("report_id", id.String()), zap.Error(err))
		}
	}()
	response.OK(c, gin.H{"report_id": id, "queued": true})
}

func (h *Handler) generateDraft(ctx context.Context, rep *models.Report, persona string) error {
	result, err := h.drafter.Draft(ctx, drafting.Request{
		Title:           rep.Title,
		Speaker:         rep.Speaker,
		SummaryRaw:      rep.SummaryRaw,
		QuestionPersona: persona,
	})
	if err != nil {
		return err
	}
	rep.ScriptDraft = result.Script
	rep.HighlightsDraft = clampList(result.Highlights, models.MaxHighlights)
	rep.Reflections = clampList(result.Reflections, models.MaxReflections)
	rep.Questions = clampList(result.Questions, models.MaxQuestions)
	rep.QuestionPersona = persona
	return h.repo.Update(ctx, rep)
}

func clampList(list []string, max int) []string {
	if len(list) > max {
		return list[:max]
	}
	return list
}

func validateUpdate(req *UpdateRequest) error {
	if req.SourceLanguage != nil && *req.SourceLanguage != "" && models.NormalizeLanguage(*req.SourceLanguage) == "" {
		return fmt.Errorf("%w: unsupported source language", models.ErrValidation)
	}
	if req.HighlightsFinal != nil && len(*req.HighlightsFinal) > models.MaxHighlights {
		return fmt.Errorf("%w: at most %d highlights", models.ErrValidation, models.MaxHighlights)
	}
	if req.Reflections != nil && len(*req.Reflections) > models.MaxReflections {
		return fmt.Errorf("%w: at most %d reflections", models.ErrValidation, models.MaxReflections)
	}
	if req.Questions != nil && len(*req.Questions) > models.MaxQuestions {
		return fmt.Errorf("%w: at most %d questions", models.ErrValidation, models.MaxQuestions)
	}
	return nil
}

func applyUpdate(rep *models.Report, req *UpdateRequest) {
	if req.Title != nil {
		rep.Title = strings.TrimSpace(*req.Title)
	}
	if req.Speaker != nil {
		rep.Speaker = *req.Speaker
	}
	if req.SourceLanguage != nil {
		rep.SourceLanguage = models.NormalizeLanguage(*req.SourceLanguage)
	}
	if req.MeetingTime != nil {
		rep.MeetingTime = *req.MeetingTime
	}
	if req.SummaryRaw != nil {
		rep.SummaryRaw = *req.SummaryRaw
	}
	if req.ScriptDraft != nil {
		rep.ScriptDraft = *req.ScriptDraft
	}
	if req.ScriptFinal != nil {
		rep.ScriptFinal = *req.ScriptFinal
	}
	if req.HighlightsDraft != nil {
		rep.HighlightsDraft = *req.HighlightsDraft
	}
	if req.HighlightsFinal != nil {
		rep.HighlightsFinal = *req.HighlightsFinal
	}
	if req.Reflections != nil {
		rep.Reflections = *req.Reflections
	}
	if req.Questions != nil {
		rep.Questions = *req.Questions
	}
	if req.QuestionPersona != nil {
		rep.QuestionPersona = models.NormalizeQuestionPersona(*req.QuestionPersona)
	}
	if req.AutoPlayEnabled != nil {
		rep.AutoPlayEnabled = *req.AutoPlayEnabled
	}
}

// sourceFingerprint covers exactly the finalized fields translations are
// derived from.
func sourceFingerprint(rep *models.Report) string {
	parts := []string{rep.Title, rep.ScriptFinal, rep.QuestionPersona}
	parts = append(parts, rep.HighlightsFinal...)
	parts = append(parts, rep.Reflections...)
	parts = append(parts, rep.Questions...)
	return strings.Join(parts, "\x1f")
}
