package model

import (
	"time"

	"github.com/google/uuid"
)

// DecisionType enumerates the actions the engine can propose.
type DecisionType string

const (
	DecisionCreateTodo DecisionType = "create_todo"
	DecisionUpdateTodo DecisionType = "update_todo"
	DecisionIgnore     DecisionType = "ignore"
	DecisionArchive    DecisionType = "archive"
	DecisionDefer      DecisionType = "defer"
	DecisionCategorize DecisionType = "categorize"
	DecisionSetDueDate DecisionType = "set_due_date"
)

func ParseDecisionType(s string) (DecisionType, bool) {
	switch DecisionType(s) {
	case DecisionCreateTodo, DecisionUpdateTodo, DecisionIgnore, DecisionArchive,
		DecisionDefer, DecisionCategorize, DecisionSetDueDate:
		return DecisionType(s), true
	}
	return "", false
}

// DecisionStatus is the lifecycle state of a decision.
type DecisionStatus string

const (
	StatusProposed     DecisionStatus = "proposed"
	StatusAutoApproved DecisionStatus = "auto_approved"
	StatusApproved     DecisionStatus = "approved"
	StatusRejected     DecisionStatus = "rejected"
	StatusExecuted     DecisionStatus = "executed"
	StatusFailed       DecisionStatus = "failed"
	StatusIgnored      DecisionStatus = "ignored"
)

func ParseDecisionStatus(s string) (DecisionStatus, bool) {
	switch DecisionStatus(s) {
	case StatusProposed, StatusAutoApproved, StatusApproved, StatusRejected,
		StatusExecuted, StatusFailed, StatusIgnored:
		return DecisionStatus(s), true
	}
	return "", false
}

// Terminal reports whether a decision in this status can never move again.
// Failed is terminal only after retries are exhausted; the recorder treats
// it as retryable and the executor decides when it becomes final.
func (s DecisionStatus) Terminal() bool {
	switch s {
	case StatusExecuted, StatusRejected, StatusIgnored:
		return true
	}
	return false
}

// ProposedAction is the structured payload describing what executing the
// decision would do. Stored as JSON text, parsed once at the boundaries.
type ProposedAction struct {
	TodoTitle       string     `json:"todo_title,omitempty"`
	TodoDescription string     `json:"todo_description,omitempty"`
	DueDate         *time.Time `json:"due_date,omitempty"`
	CategoryID      *uuid.UUID `json:"category_id,omitempty"`
	Priority        string     `json:"priority,omitempty"`
}

// Contribution is one itemized score component, kept for the audit trail.
type Contribution struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// ReasoningDetails is the structured companion to the human-readable
// reasoning string.
type ReasoningDetails struct {
	MatchedKeywords  []string       `json:"matched_keywords,omitempty"`
	MatchedClauses   []string       `json:"matched_clauses,omitempty"`
	DetectedDeadline *time.Time     `json:"detected_deadline,omitempty"`
	SenderFrequency  *int           `json:"sender_frequency,omitempty"`
	ThreadLength     *int           `json:"thread_length,omitempty"`
	HeuristicScore   *float64       `json:"heuristic_score,omitempty"`
	Contributions    []Contribution `json:"contributions,omitempty"`
	LLMAnalysis      string         `json:"llm_analysis,omitempty"`
}

// Decision is the auditable record of one proposed or executed action.
// decision_type and reasoning never change after creation; proposed_action
// may be amended once, by the reviewer at approval. Otherwise only status,
// user_feedback, result_id and the review/execution timestamps move.
type Decision struct {
	ID               uuid.UUID
	SourceType       SourceType
	SourceID         *uuid.UUID
	SourceExternalID string
	Sender           string
	DecisionType     DecisionType
	ProposedAction   ProposedAction
	Reasoning        string
	ReasoningDetails ReasoningDetails
	Confidence       float64
	Status           DecisionStatus
	AppliedRuleID    *uuid.UUID
	ResultID         *uuid.UUID
	UserFeedback     string
	RetryCount       int
	CreatedAt        time.Time
	ReviewedAt       *time.Time
	ExecutedAt       *time.Time
}

// ConfidenceTier buckets confidence for UI emphasis.
func ConfidenceTier(confidence float64) string {
	switch {
	case confidence >= 0.8:
		return "high"
	case confidence >= 0.5:
		return "medium"
	default:
		return "low"
	}
}

// DecisionStats summarizes decisions for the review surface.
type DecisionStats struct {
	Total             int64   `json:"total"`
	Pending           int64   `json:"pending"`
	Approved          int64   `json:"approved"`
	Rejected          int64   `json:"rejected"`
	AutoApproved      int64   `json:"auto_approved"`
	Executed          int64   `json:"executed"`
	Failed            int64   `json:"failed"`
	Ignored           int64   `json:"ignored"`
	AverageConfidence float64 `json:"average_confidence"`
}
