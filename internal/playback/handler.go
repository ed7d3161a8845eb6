package playback

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/anchordesk/backend/pkg/response"
)

// SetModeRequest is the body for PUT /playback/mode.
type SetModeRequest struct {
	Mode             string     `json:"mode" binding:"required"`
	CarouselScope    *string    `json:"carousel_scope"`
	SelectedReportID *uuid.UUID `json:"selected_report_id"`
}

// Handler handles playback HTTP endpoints.
type Handler struct {
	controller *Controller
	assembler  *Assembler
}

// NewHandler creates a playback handler.
func NewHandler(controller *Controller, assembler *Assembler) *Handler {
	return &Handler{controller: controller, assembler: assembler}
}

// GetMode handles GET /playback/mode.
func (h *Handler) GetMode(c *gin.Context) {
	mode, err := h.controller.Current(c.Request.Context())
	if err != nil {
		response.Error(c, err, "failed to read playback mode")
		return
	}
	response.OK(c, mode)
}

// SetMode handles PUT /playback/mode (admin).
func (h *Handler) SetMode(c *gin.Context) {
	var req SetModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	mode, err := h.controller.Set(c.Request.Context(), SetParams{
		Mode:             req.Mode,
		CarouselScope:    req.CarouselScope,
		SelectedReportID: req.SelectedReportID,
	})
	if err != nil {
		response.Error(c, err, "failed to set playback mode")
		return
	}
	response.OK(c, mode)
}

// Queue handles GET /playback/queue?report_id=&langs=zh,ja&include_audio=1.
func (h *Handler) Queue(c *gin.Context) {
	var langs []string
	if raw := c.Query("langs"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				langs = append(langs, part)
			}
		}
	}
	includeAudio := c.Query("include_audio") == "1" || c.Query("include_audio") == "true"

	var reportID *uuid.UUID
	if raw := c.Query("report_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.BadRequest(c, "invalid report_id")
			return
		}
		reportID = &id
	}

	q, err := h.assembler.Assemble(c.Request.Context(), QueueParams{
		ReportID:     reportID,
		Languages:    langs,
		IncludeAudio: includeAudio,
	})
	if err != nil {
		response.Error(c, err, "failed to assemble playback queue")
		return
	}
	response.OK(c, q)
}
