package http

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/formdesk/flowengine/internal/application/service"
	"github.com/formdesk/flowengine/internal/domain/template"
	"github.com/formdesk/flowengine/internal/engine/methodology"
	"github.com/formdesk/flowengine/internal/engine/workflow"
	"github.com/formdesk/flowengine/internal/report"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	templates     service.TemplateService
	forms         service.FormService
	escalations   service.EscalationService
	methodologies *methodology.Registry
	exporter      *report.Exporter
	logger        Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	templates service.TemplateService,
	forms service.FormService,
	escalations service.EscalationService,
	methodologies *methodology.Registry,
	exporter *report.Exporter,
	logger Logger,
) *Handlers {
	return &Handlers{
		templates:     templates,
		forms:         forms,
		escalations:   escalations,
		methodologies: methodologies,
		exporter:      exporter,
		logger:        logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// ListRequest represents shared pagination query parameters
type ListRequest struct {
	Limit  int `form:"limit"`
	Offset int `form:"offset"`
}

func (r *ListRequest) normalize() {
	if r.Limit <= 0 || r.Limit > 100 {
		r.Limit = 20
	}
	if r.Offset < 0 {
		r.Offset = 0
	}
}

// CreateInstanceRequest is the body for POST /api/instances
type CreateInstanceRequest struct {
	TenantID   string         `json:"tenant_id" binding:"required"`
	TemplateID int64          `json:"template_id" binding:"required"`
	CreatedBy  string         `json:"created_by" binding:"required"`
	Data       map[string]any `json:"data"`
}

// UpdateDraftRequest is the body for PUT /api/instances/:id/draft
type UpdateDraftRequest struct {
	ActorID string         `json:"actor_id" binding:"required"`
	Data    map[string]any `json:"data" binding:"required"`
}

// ActionRequest is the body for POST /api/instances/:id/actions
type ActionRequest struct {
	Action     string   `json:"action" binding:"required"`
	ActorID    string   `json:"actor_id" binding:"required"`
	ActorRoles []string `json:"actor_roles"`
	Notes      string   `json:"notes"`
	TargetRole string   `json:"target_role"`
}

// MethodologyRequest is the body for POST /api/templates/:id/methodology
type MethodologyRequest struct {
	Methodology string `json:"methodology" binding:"required"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   "1.0.0",
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    response,
	})
}

// CreateTemplate handles POST /api/templates
func (h *Handlers) CreateTemplate(c *gin.Context) {
	var tpl template.Template
	if err := c.ShouldBindJSON(&tpl); err != nil {
		h.badRequest(c, "invalid template body", err)
		return
	}

	if err := h.templates.CreateTemplate(c.Request.Context(), &tpl); err != nil {
		h.logger.Error("Failed to create template", "error", err)
		c.JSON(http.StatusUnprocessableEntity, Response{Success: false, Error: err.Error()})
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: tpl})
}

// ListTemplates handles GET /api/templates
func (h *Handlers) ListTemplates(c *gin.Context) {
	tenantID := c.Query("tenant_id")
	if tenantID == "" {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "tenant_id is required"})
		return
	}

	var req ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.badRequest(c, "invalid query parameters", err)
		return
	}
	req.normalize()

	templates, err := h.templates.ListTemplates(c.Request.Context(), tenantID, req.Limit, req.Offset)
	if err != nil {
		h.logger.Error("Failed to list templates", "tenant_id", tenantID, "error", err)
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "failed to retrieve templates"})
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: templates})
}

// GetTemplate handles GET /api/templates/:id
func (h *Handlers) GetTemplate(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	tpl, err := h.templates.GetTemplate(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, Response{Success: false, Error: "template not found"})
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: tpl})
}

// UpdateTemplate handles PUT /api/templates/:id. Updating a published
// template returns a new unpublished version.
func (h *Handlers) UpdateTemplate(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	var tpl template.Template
	if err := c.ShouldBindJSON(&tpl); err != nil {
		h.badRequest(c, "invalid template body", err)
		return
	}
	tpl.ID = id

	updated, err := h.templates.UpdateTemplate(c.Request.Context(), &tpl)
	if err != nil {
		h.logger.Error("Failed to update template", "template_id", id, "error", err)
		c.JSON(http.StatusUnprocessableEntity, Response{Success: false, Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: updated})
}

// PublishTemplate handles POST /api/templates/:id/publish
func (h *Handlers) PublishTemplate(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	if err := h.templates.PublishTemplate(c.Request.Context(), id); err != nil {
		h.logger.Error("Failed to publish template", "template_id", id, "error", err)
		c.JSON(http.StatusUnprocessableEntity, Response{Success: false, Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, Response{Success: true})
}

// ApplyMethodology handles POST /api/templates/:id/methodology
func (h *Handlers) ApplyMethodology(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	var req MethodologyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid methodology body", err)
		return
	}

	tpl, err := h.templates.ApplyMethodology(c.Request.Context(), id, template.Methodology(req.Methodology))
	if err != nil {
		h.logger.Error("Failed to apply methodology",
			"template_id", id,
			"methodology", req.Methodology,
			"error", err)
		c.JSON(http.StatusUnprocessableEntity, Response{Success: false, Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: tpl})
}

// MethodologyRequirements is the response body for a methodology's
// declarative requirement and compliance tables
type MethodologyRequirements struct {
	Methodology  string                       `json:"methodology"`
	Requirements []methodology.Requirement    `json:"requirements"`
	Compliance   methodology.ComplianceConfig `json:"compliance"`
}

// GetMethodologyRequirements handles GET /api/methodologies/:methodology/requirements
func (h *Handlers) GetMethodologyRequirements(c *gin.Context) {
	m := template.Methodology(c.Param("methodology"))

	compliance, ok := h.methodologies.ComplianceConfig(m)
	if !ok {
		c.JSON(http.StatusNotFound, Response{Success: false, Error: fmt.Sprintf("unknown methodology %q", m)})
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: MethodologyRequirements{
		Methodology:  string(m),
		Requirements: h.methodologies.Requirements(m),
		Compliance:   compliance,
	}})
}

// ListInstances handles GET /api/templates/:id/instances
func (h *Handlers) ListInstances(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	var req ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.badRequest(c, "invalid query parameters", err)
		return
	}
	req.normalize()

	instances, err := h.forms.ListByTemplate(c.Request.Context(), id, req.Limit, req.Offset)
	if err != nil {
		h.logger.Error("Failed to list instances", "template_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "failed to retrieve instances"})
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: instances})
}

// ExportSubmissions handles GET /api/templates/:id/export, streaming an
// Excel workbook of the template's submissions
func (h *Handlers) ExportSubmissions(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename=submissions-"+strconv.FormatInt(id, 10)+".xlsx")

	if err := h.exporter.Export(c.Request.Context(), id, c.Writer); err != nil {
		h.logger.Error("Failed to export submissions", "template_id", id, "error", err)
		// Headers may already be out; abort is the best we can do.
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
}

// CreateInstance handles POST /api/instances
func (h *Handlers) CreateInstance(c *gin.Context) {
	var req CreateInstanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid instance body", err)
		return
	}

	inst, err := h.forms.CreateInstance(c.Request.Context(), req.TenantID, req.TemplateID, req.CreatedBy, req.Data)
	if err != nil {
		h.logger.Error("Failed to create instance",
			"template_id", req.TemplateID,
			"tenant_id", req.TenantID,
			"error", err)
		c.JSON(http.StatusUnprocessableEntity, Response{Success: false, Error: err.Error()})
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: inst})
}

// GetInstance handles GET /api/instances/:id
func (h *Handlers) GetInstance(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	inst, err := h.forms.GetInstance(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, Response{Success: false, Error: "instance not found"})
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: inst})
}

// UpdateDraft handles PUT /api/instances/:id/draft
func (h *Handlers) UpdateDraft(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	var req UpdateDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid draft body", err)
		return
	}

	inst, err := h.forms.UpdateDraft(c.Request.Context(), id, req.ActorID, req.Data)
	if err != nil {
		h.logger.Error("Failed to update draft", "instance_id", id, "error", err)
		c.JSON(http.StatusUnprocessableEntity, Response{Success: false, Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: inst})
}

// ApplyAction handles POST /api/instances/:id/actions. A refused transition
// is a 200 with success=false and the refusal detail; the instance was not
// changed.
func (h *Handlers) ApplyAction(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	var req ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid action body", err)
		return
	}

	result, err := h.forms.Transition(c.Request.Context(), id, workflow.Request{
		Action:     workflow.Action(req.Action),
		Actor:      workflow.Actor{ID: req.ActorID, Roles: req.ActorRoles},
		Notes:      req.Notes,
		TargetRole: req.TargetRole,
	})
	if err != nil {
		h.logger.Error("Workflow transition failed",
			"instance_id", id,
			"action", req.Action,
			"error", err)
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "transition failed"})
		return
	}

	c.JSON(http.StatusOK, Response{Success: result.Success, Data: result})
}

// NextStep handles GET /api/instances/:id/next-step
func (h *Handlers) NextStep(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	info, err := h.forms.NextStep(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, Response{Success: false, Error: "instance not found"})
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: info})
}

// ListHistory handles GET /api/instances/:id/history
func (h *Handlers) ListHistory(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	entries, err := h.forms.ListHistory(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("Failed to list history", "instance_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "failed to retrieve history"})
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: entries})
}

// ScanEscalations handles POST /api/escalations/scan. The scan is
// read-only; notify=true also messages the escalation targets.
func (h *Handlers) ScanEscalations(c *gin.Context) {
	tenantID := c.Query("tenant_id")
	if tenantID == "" {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "tenant_id is required"})
		return
	}

	candidates, err := h.escalations.Scan(c.Request.Context(), tenantID)
	if err != nil {
		h.logger.Error("Escalation scan failed", "tenant_id", tenantID, "error", err)
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "escalation scan failed"})
		return
	}

	delivered := 0
	if c.Query("notify") == "true" && len(candidates) > 0 {
		delivered = h.escalations.NotifyCandidates(c.Request.Context(), tenantID, candidates)
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: gin.H{
			"candidates": candidates,
			"notified":   delivered,
		},
	})
}

// pathID parses the :id path parameter, writing the error response itself
func (h *Handlers) pathID(c *gin.Context) (int64, bool) {
	idStr := c.Param("id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		h.logger.Error("Invalid path id", "id", idStr, "error", err)
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid id"})
		return 0, false
	}
	return id, true
}

func (h *Handlers) badRequest(c *gin.Context, msg string, err error) {
	h.logger.Error(msg, "error", err)
	c.JSON(http.StatusBadRequest, Response{Success: false, Error: msg})
}
