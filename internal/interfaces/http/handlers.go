package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nimbusbank/approval-engine/internal/models"
	"github.com/nimbusbank/approval-engine/internal/workflow"
	"github.com/nimbusbank/approval-engine/pkg/utils"
)

// userIDHeader carries the opaque, upstream-verified identity of the caller
const userIDHeader = "X-User-Id"

// Handlers contains all HTTP request handlers
type Handlers struct {
	engine      *workflow.Engine
	definitions *workflow.DefinitionStore
	logger      Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(engine *workflow.Engine, definitions *workflow.DefinitionStore, logger Logger) *Handlers {
	return &Handlers{
		engine:      engine,
		definitions: definitions,
		logger:      logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	ErrorCode string      `json:"error_code,omitempty"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: gin.H{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// StageTemplateRequest is one stage of a definition publish body
type StageTemplateRequest struct {
	StageOrder        int    `json:"stage_order" binding:"required"`
	StageKey          string `json:"stage_key" binding:"required"`
	ApproverGroup     string `json:"approver_group" binding:"required"`
	RequiredApprovals int    `json:"required_approvals" binding:"required"`
	SLAHours          int    `json:"sla_hours"`
}

// StageOverrideRequest is one per-stage substitution of an amount rule
type StageOverrideRequest struct {
	StageOrder        int     `json:"stage_order" binding:"required"`
	RequiredApprovals *int    `json:"required_approvals,omitempty"`
	ApproverGroup     *string `json:"approver_group,omitempty"`
}

// AmountRuleRequest is one amount rule of a definition publish body
type AmountRuleRequest struct {
	Currency  string                 `json:"currency" binding:"required"`
	MinAmount int64                  `json:"min_amount"`
	MaxAmount *int64                 `json:"max_amount,omitempty"`
	Priority  int                    `json:"priority"`
	Overrides []StageOverrideRequest `json:"overrides,omitempty"`
}

// PublishDefinitionRequest is the POST /api/workflow-definitions body
type PublishDefinitionRequest struct {
	Name        string                 `json:"name" binding:"required"`
	AmountBased bool                   `json:"amount_based"`
	Stages      []StageTemplateRequest `json:"stages" binding:"required"`
	AmountRules []AmountRuleRequest    `json:"amount_rules,omitempty"`
}

// PublishDefinition handles POST /api/workflow-definitions
func (h *Handlers) PublishDefinition(c *gin.Context) {
	var req PublishDefinitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	def := &models.WorkflowDefinition{
		Name:        req.Name,
		AmountBased: req.AmountBased,
	}
	for _, stage := range req.Stages {
		def.Stages = append(def.Stages, models.StageTemplate{
			StageOrder:        stage.StageOrder,
			StageKey:          stage.StageKey,
			ApproverGroup:     stage.ApproverGroup,
			RequiredApprovals: stage.RequiredApprovals,
			SLAHours:          stage.SLAHours,
		})
	}
	for _, rule := range req.AmountRules {
		modelRule := models.AmountRule{
			Currency:  rule.Currency,
			MinAmount: rule.MinAmount,
			MaxAmount: rule.MaxAmount,
			Priority:  rule.Priority,
		}
		for _, override := range rule.Overrides {
			modelRule.Overrides = append(modelRule.Overrides, models.StageOverride{
				StageOrder:        override.StageOrder,
				RequiredApprovals: override.RequiredApprovals,
				ApproverGroup:     override.ApproverGroup,
			})
		}
		def.AmountRules = append(def.AmountRules, modelRule)
	}

	published, err := h.definitions.Publish(c.Request.Context(), def)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: published})
}

// ListDefinitions handles GET /api/workflow-definitions
func (h *Handlers) ListDefinitions(c *gin.Context) {
	defs, err := h.definitions.List(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: defs})
}

// GetDefinition handles GET /api/workflow-definitions/:id
func (h *Handlers) GetDefinition(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		h.badRequest(c, "invalid definition id", err)
		return
	}

	def, err := h.definitions.Get(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: def})
}

// CreateRequestBody is the POST /api/workflow-requests body
type CreateRequestBody struct {
	DefinitionID  int64  `json:"definition_id" binding:"required"`
	ReferenceID   string `json:"reference_id" binding:"required"`
	ReferenceType string `json:"reference_type" binding:"required"`
	ModuleName    string `json:"module_name" binding:"required"`
	ActionKey     string `json:"action_key" binding:"required"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency" binding:"required"`
	Payload       string `json:"payload,omitempty"`
}

// CreateRequest handles POST /api/workflow-requests
func (h *Handlers) CreateRequest(c *gin.Context) {
	userID := c.GetHeader(userIDHeader)
	if userID == "" {
		h.badRequest(c, "missing "+userIDHeader+" header", nil)
		return
	}

	var body CreateRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}
	if err := utils.ValidateCurrency(body.Currency); err != nil {
		h.badRequest(c, err.Error(), nil)
		return
	}
	if err := utils.ValidateAmount(body.Amount); err != nil {
		h.badRequest(c, err.Error(), nil)
		return
	}
	if err := utils.ValidateJSON(body.Payload); err != nil {
		h.badRequest(c, err.Error(), nil)
		return
	}

	detail, err := h.engine.CreateRequest(c.Request.Context(), workflow.CreateRequestInput{
		DefinitionID:  body.DefinitionID,
		ReferenceID:   body.ReferenceID,
		ReferenceType: body.ReferenceType,
		ModuleName:    body.ModuleName,
		ActionKey:     body.ActionKey,
		Amount:        body.Amount,
		Currency:      body.Currency,
		Payload:       body.Payload,
		CreatedBy:     userID,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: detail})
}

// GetRequest handles GET /api/workflow-requests/:id
func (h *Handlers) GetRequest(c *gin.Context) {
	detail, err := h.engine.GetRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: detail})
}

// GetAuditTrail handles GET /api/workflow-requests/:id/audit
func (h *Handlers) GetAuditTrail(c *gin.Context) {
	events, err := h.engine.AuditTrail(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: events})
}

// DecisionBody is the POST /api/workflow/stages/:id/decision body
type DecisionBody struct {
	RequestID string          `json:"request_id" binding:"required"`
	Decision  models.Decision `json:"decision" binding:"required"`
	Remarks   string          `json:"remarks,omitempty"`
}

// RecordDecision handles POST /api/workflow/stages/:id/decision
func (h *Handlers) RecordDecision(c *gin.Context) {
	userID := c.GetHeader(userIDHeader)
	if userID == "" {
		h.badRequest(c, "missing "+userIDHeader+" header", nil)
		return
	}

	stageID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		h.badRequest(c, "invalid stage id", err)
		return
	}

	var body DecisionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}
	if !body.Decision.IsValid() {
		h.badRequest(c, "decision must be APPROVE or REJECT", nil)
		return
	}

	outcome, err := h.engine.RecordDecision(c.Request.Context(), body.RequestID, stageID, userID, body.Decision, body.Remarks)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: gin.H{"outcome": outcome}})
}

// BulkDecision handles POST /api/workflow/stages/bulk-decision.
// Always 200 on an accepted batch; per-item failures are carried as
// error codes in the payload, not the HTTP status.
func (h *Handlers) BulkDecision(c *gin.Context) {
	userID := c.GetHeader(userIDHeader)
	if userID == "" {
		h.badRequest(c, "missing "+userIDHeader+" header", nil)
		return
	}

	var decisions []workflow.BulkDecision
	if err := c.ShouldBindJSON(&decisions); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}
	if len(decisions) == 0 {
		h.badRequest(c, "decision batch is empty", nil)
		return
	}
	for i, item := range decisions {
		if item.RequestID == "" || item.StageID == 0 || !item.Decision.IsValid() {
			h.badRequest(c, "invalid decision at index "+strconv.Itoa(i), nil)
			return
		}
	}

	outcomes := h.engine.ApplyBatch(c.Request.Context(), userID, decisions)
	c.JSON(http.StatusOK, Response{Success: true, Data: outcomes})
}

// AwaitingActions handles GET /api/workflow/awaiting-actions
func (h *Handlers) AwaitingActions(c *gin.Context) {
	approver := c.GetHeader(userIDHeader)
	if approver == "" {
		approver = c.Query("approver")
	}
	if approver == "" {
		h.badRequest(c, "approver identity is required", nil)
		return
	}

	groups := c.QueryArray("group")
	awaiting, err := h.engine.AwaitingActions(c.Request.Context(), approver, groups)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: awaiting})
}

// MyEngagements handles GET /api/workflow/my-engagements
func (h *Handlers) MyEngagements(c *gin.Context) {
	approver := c.GetHeader(userIDHeader)
	if approver == "" {
		approver = c.Query("approver")
	}
	if approver == "" {
		h.badRequest(c, "approver identity is required", nil)
		return
	}

	engagements, err := h.engine.MyEngagements(c.Request.Context(), approver)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: engagements})
}

// Summary handles GET /api/workflow/summary
func (h *Handlers) Summary(c *gin.Context) {
	summary, err := h.engine.Summary(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: summary})
}

func (h *Handlers) badRequest(c *gin.Context, msg string, err error) {
	if err != nil {
		h.logger.Error(msg, "error", err)
	}
	c.JSON(http.StatusBadRequest, Response{Success: false, Error: msg})
}

// writeError maps engine errors onto HTTP statuses: configuration errors
// are unprocessable, integrity/concurrency/state conflicts are 409,
// lookups that found nothing are 404.
func (h *Handlers) writeError(c *gin.Context, err error) {
	code := workflow.ErrorCode(err)

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, workflow.ErrInvalidDefinition),
		errors.Is(err, workflow.ErrNoApplicableRule),
		errors.Is(err, workflow.ErrAmbiguousRule):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, workflow.ErrDuplicateActiveRequest),
		errors.Is(err, workflow.ErrDuplicateApproval),
		errors.Is(err, workflow.ErrConcurrentModification),
		errors.Is(err, workflow.ErrLockTimeout),
		errors.Is(err, workflow.ErrRequestNotActive),
		errors.Is(err, workflow.ErrStageNotActive),
		errors.Is(err, workflow.ErrStageMismatch):
		status = http.StatusConflict
	case errors.Is(err, workflow.ErrDefinitionNotFound),
		errors.Is(err, workflow.ErrRequestNotFound),
		errors.Is(err, workflow.ErrStageNotFound):
		status = http.StatusNotFound
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", "error", err)
		c.JSON(status, Response{Success: false, Error: "internal error", ErrorCode: code})
		return
	}

	c.JSON(status, Response{Success: false, Error: err.Error(), ErrorCode: code})
}
