package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"inboxagent/internal/decision"
	"inboxagent/internal/model"
	"inboxagent/internal/service"
)

type DecisionHandler struct {
	decisionService *service.DecisionService
}

func NewDecisionHandler(decisionService *service.DecisionService) *DecisionHandler {
	return &DecisionHandler{decisionService: decisionService}
}

// decisionView is the wire shape of a decision on the review surface.
type decisionView struct {
	ID               uuid.UUID              `json:"id"`
	SourceType       string                 `json:"source_type"`
	SourceExternalID string                 `json:"source_external_id"`
	Sender           string                 `json:"sender"`
	DecisionType     string                 `json:"decision_type"`
	ProposedAction   model.ProposedAction   `json:"proposed_action"`
	Reasoning        string                 `json:"reasoning"`
	ReasoningDetails model.ReasoningDetails `json:"reasoning_details"`
	Confidence       float64                `json:"confidence"`
	ConfidenceTier   string                 `json:"confidence_tier"`
	Status           string                 `json:"status"`
	AppliedRuleID    *uuid.UUID             `json:"applied_rule_id,omitempty"`
	ResultID         *uuid.UUID             `json:"result_id,omitempty"`
	UserFeedback     string                 `json:"user_feedback,omitempty"`
	RetryCount       int                    `json:"retry_count"`
	CreatedAt        time.Time              `json:"created_at"`
	ReviewedAt       *time.Time             `json:"reviewed_at,omitempty"`
	ExecutedAt       *time.Time             `json:"executed_at,omitempty"`
}

func toView(d model.Decision) decisionView {
	return decisionView{
		ID:               d.ID,
		SourceType:       string(d.SourceType),
		SourceExternalID: d.SourceExternalID,
		Sender:           d.Sender,
		DecisionType:     string(d.DecisionType),
		ProposedAction:   d.ProposedAction,
		Reasoning:        d.Reasoning,
		ReasoningDetails: d.ReasoningDetails,
		Confidence:       d.Confidence,
		ConfidenceTier:   model.ConfidenceTier(d.Confidence),
		Status:           string(d.Status),
		AppliedRuleID:    d.AppliedRuleID,
		ResultID:         d.ResultID,
		UserFeedback:     d.UserFeedback,
		RetryCount:       d.RetryCount,
		CreatedAt:        d.CreatedAt,
		ReviewedAt:       d.ReviewedAt,
		ExecutedAt:       d.ExecutedAt,
	}
}

// ListDecisions handles GET /decisions. Ignored decisions are excluded
// unless asked for with ?status=ignored.
func (h *DecisionHandler) ListDecisions(c *gin.Context) {
	var f decision.Filter

	if raw := c.Query("status"); raw != "" {
		status, ok := model.ParseDecisionStatus(raw)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status"})
			return
		}
		f.Status = status
	}
	if raw := c.Query("source_type"); raw != "" {
		st, ok := model.ParseSourceType(raw)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown source_type"})
			return
		}
		f.SourceType = st
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		f.Limit = limit
	}

	list, err := h.decisionService.List(c.Request.Context(), f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list decisions"})
		return
	}

	views := make([]decisionView, 0, len(list))
	for _, d := range list {
		views = append(views, toView(d))
	}
	c.JSON(http.StatusOK, gin.H{"decisions": views})
}

// GetDecision handles GET /decisions/:id
func (h *DecisionHandler) GetDecision(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid decision id"})
		return
	}

	d, err := h.decisionService.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, decision.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "decision not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load decision"})
		return
	}

	c.JSON(http.StatusOK, toView(*d))
}

// GetStats handles GET /decisions/stats
func (h *DecisionHandler) GetStats(c *gin.Context) {
	stats, err := h.decisionService.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

type reviewRequest struct {
	Feedback      string                `json:"feedback"`
	Modifications *model.ProposedAction `json:"modifications"`
	AlwaysDoThis  bool                  `json:"always_do_this"`
	RuleName      string                `json:"rule_name"`
	SubjectFilter string                `json:"subject_filter"`
}

func (r reviewRequest) learnSpec() *service.LearnSpec {
	if !r.AlwaysDoThis {
		return nil
	}
	return &service.LearnSpec{
		SubjectContains: r.SubjectFilter,
		Name:            r.RuleName,
	}
}

// ApproveDecision handles POST /decisions/:id/approve
func (h *DecisionHandler) ApproveDecision(c *gin.Context) {
	h.review(c, func(id uuid.UUID, req reviewRequest) (*service.ReviewResult, error) {
		return h.decisionService.Approve(c.Request.Context(), id, req.Feedback, req.Modifications, req.learnSpec())
	})
}

// RejectDecision handles POST /decisions/:id/reject
func (h *DecisionHandler) RejectDecision(c *gin.Context) {
	h.review(c, func(id uuid.UUID, req reviewRequest) (*service.ReviewResult, error) {
		return h.decisionService.Reject(c.Request.Context(), id, req.Feedback, req.learnSpec())
	})
}

func (h *DecisionHandler) review(c *gin.Context, do func(uuid.UUID, reviewRequest) (*service.ReviewResult, error)) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid decision id"})
		return
	}

	var req reviewRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
	}

	res, err := do(id, req)
	if err != nil {
		switch {
		case errors.Is(err, decision.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "decision not found"})
		case errors.Is(err, decision.ErrIllegalTransition):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to review decision"})
		}
		return
	}

	body := gin.H{"decision": toView(*res.Decision)}
	if res.Rule != nil {
		body["learned_rule_id"] = res.Rule.ID
	}
	c.JSON(http.StatusOK, body)
}

type batchRequest struct {
	IDs      []uuid.UUID `json:"ids" binding:"required"`
	Feedback string      `json:"feedback"`
}

// BatchApprove handles POST /decisions/batch/approve
func (h *DecisionHandler) BatchApprove(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": h.decisionService.BatchApprove(c.Request.Context(), req.IDs)})
}

// BatchReject handles POST /decisions/batch/reject
func (h *DecisionHandler) BatchReject(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": h.decisionService.BatchReject(c.Request.Context(), req.IDs, req.Feedback)})
}
