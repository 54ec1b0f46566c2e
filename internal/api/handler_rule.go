package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"inboxagent/internal/model"
	"inboxagent/internal/repository"
	"inboxagent/internal/service"
)

type RuleHandler struct {
	ruleService *service.RuleService
}

func NewRuleHandler(ruleService *service.RuleService) *RuleHandler {
	return &RuleHandler{ruleService: ruleService}
}

type ruleRequest struct {
	Name         string              `json:"name" binding:"required"`
	Description  string              `json:"description"`
	SourceType   string              `json:"source_type" binding:"required"`
	Conditions   string              `json:"conditions" binding:"required"`
	Action       string              `json:"action" binding:"required"`
	ActionParams *model.ActionParams `json:"action_params"`
	Priority     int                 `json:"priority"`
	IsActive     *bool               `json:"is_active"`
}

func (r ruleRequest) toModel(id uuid.UUID) *model.Rule {
	active := true
	if r.IsActive != nil {
		active = *r.IsActive
	}
	return &model.Rule{
		ID:           id,
		Name:         r.Name,
		Description:  r.Description,
		SourceType:   model.RuleSourceType(r.SourceType),
		Conditions:   r.Conditions,
		Action:       model.DecisionType(r.Action),
		ActionParams: r.ActionParams,
		Priority:     r.Priority,
		IsActive:     active,
	}
}

type ruleView struct {
	ID                    uuid.UUID           `json:"id"`
	Name                  string              `json:"name"`
	Description           string              `json:"description,omitempty"`
	SourceType            string              `json:"source_type"`
	Conditions            string              `json:"conditions"`
	Action                string              `json:"action"`
	ActionParams          *model.ActionParams `json:"action_params,omitempty"`
	Priority              int                 `json:"priority"`
	IsActive              bool                `json:"is_active"`
	CreatedFromDecisionID *uuid.UUID          `json:"created_from_decision_id,omitempty"`
	MatchCount            int                 `json:"match_count"`
	LastMatchedAt         *time.Time          `json:"last_matched_at,omitempty"`
	CreatedAt             time.Time           `json:"created_at"`
	UpdatedAt             time.Time           `json:"updated_at"`
}

func toRuleView(r model.Rule) ruleView {
	return ruleView{
		ID:                    r.ID,
		Name:                  r.Name,
		Description:           r.Description,
		SourceType:            string(r.SourceType),
		Conditions:            r.Conditions,
		Action:                string(r.Action),
		ActionParams:          r.ActionParams,
		Priority:              r.Priority,
		IsActive:              r.IsActive,
		CreatedFromDecisionID: r.CreatedFromDecisionID,
		MatchCount:            r.MatchCount,
		LastMatchedAt:         r.LastMatchedAt,
		CreatedAt:             r.CreatedAt,
		UpdatedAt:             r.UpdatedAt,
	}
}

// ListRules handles GET /rules
func (h *RuleHandler) ListRules(c *gin.Context) {
	list, err := h.ruleService.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list rules"})
		return
	}
	views := make([]ruleView, 0, len(list))
	for _, r := range list {
		views = append(views, toRuleView(r))
	}
	c.JSON(http.StatusOK, gin.H{"rules": views})
}

// GetRule handles GET /rules/:id
func (h *RuleHandler) GetRule(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rule id"})
		return
	}

	rule, err := h.ruleService.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrRuleNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "rule not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load rule"})
		return
	}
	c.JSON(http.StatusOK, toRuleView(*rule))
}

// CreateRule handles POST /rules
func (h *RuleHandler) CreateRule(c *gin.Context) {
	var req ruleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	rule := req.toModel(uuid.New())
	if err := h.ruleService.Create(c.Request.Context(), rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"rule_id": rule.ID})
}

// UpdateRule handles PUT /rules/:id
func (h *RuleHandler) UpdateRule(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rule id"})
		return
	}

	var req ruleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := h.ruleService.Update(c.Request.Context(), req.toModel(id)); err != nil {
		if errors.Is(err, repository.ErrRuleNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "rule not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rule_id": id})
}

// DeleteRule handles DELETE /rules/:id
func (h *RuleHandler) DeleteRule(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rule id"})
		return
	}

	if err := h.ruleService.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, repository.ErrRuleNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "rule not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete rule"})
		return
	}
	c.Status(http.StatusNoContent)
}
