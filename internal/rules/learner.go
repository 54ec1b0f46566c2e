package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"inboxagent/internal/model"
)

// Store is the rule store surface the learner needs.
type Store interface {
	InsertRule(ctx context.Context, rule *model.Rule) error
	MinActivePriority(ctx context.Context) (int, bool, error)
}

// LearnRequest captures an explicit "always do this" request made while
// reviewing a decision. Sender comes from the decision's originating
// signal; SubjectContains optionally narrows the rule.
type LearnRequest struct {
	Decision        model.Decision
	Sender          string
	SubjectContains string
	Name            string
	Priority        *int
}

// Learner synthesizes rules from reviewed decisions. It persists through
// the rule store and never mutates the originating decision.
type Learner struct {
	store  Store
	logger *zap.Logger
}

func NewLearner(store Store, logger *zap.Logger) *Learner {
	return &Learner{store: store, logger: logger}
}

// defaultPriorityGap keeps learned rules below user-curated ones.
const defaultPriorityGap = 10

// Learn builds and persists a rule from the request. The default condition
// is sender equality; a subject-contains clause is added when supplied.
func (l *Learner) Learn(ctx context.Context, req LearnRequest) (*model.Rule, error) {
	if req.Sender == "" {
		return nil, fmt.Errorf("learn rule: sender is required")
	}
	if req.Decision.Status != model.StatusApproved &&
		req.Decision.Status != model.StatusRejected &&
		req.Decision.Status != model.StatusExecuted {
		return nil, fmt.Errorf("learn rule: decision %s has not been reviewed", req.Decision.ID)
	}

	tree := model.ConditionTree{
		Operator: model.OpAnd,
		Clauses: []model.Clause{
			{Field: "sender", Matcher: model.MatcherEquals, Value: req.Sender},
		},
	}
	if req.SubjectContains != "" {
		tree.Clauses = append(tree.Clauses, model.Clause{
			Field:   "subject",
			Matcher: model.MatcherContains,
			Value:   req.SubjectContains,
		})
	}
	conditions, err := EncodeConditions(tree)
	if err != nil {
		return nil, err
	}

	priority, err := l.pickPriority(ctx, req.Priority)
	if err != nil {
		return nil, err
	}

	name := req.Name
	if name == "" {
		name = fmt.Sprintf("Always %s for %s", req.Decision.DecisionType, req.Sender)
	}

	decisionID := req.Decision.ID
	now := time.Now().UTC()
	rule := &model.Rule{
		ID:                    uuid.New(),
		Name:                  name,
		SourceType:            model.RuleSourceType(req.Decision.SourceType),
		Conditions:            conditions,
		Action:                req.Decision.DecisionType,
		ActionParams:          actionParamsFrom(req.Decision.ProposedAction),
		Priority:              priority,
		IsActive:              true,
		CreatedFromDecisionID: &decisionID,
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	if err := l.store.InsertRule(ctx, rule); err != nil {
		return nil, fmt.Errorf("persist learned rule: %w", err)
	}

	l.logger.Info("learned rule from decision",
		zap.String("rule_id", rule.ID.String()),
		zap.String("decision_id", decisionID.String()),
		zap.String("sender", req.Sender),
		zap.Int("priority", priority),
	)
	return rule, nil
}

// pickPriority places the learned rule below every existing active rule
// unless the caller overrides it.
func (l *Learner) pickPriority(ctx context.Context, override *int) (int, error) {
	if override != nil {
		return *override, nil
	}
	min, ok, err := l.store.MinActivePriority(ctx)
	if err != nil {
		return 0, fmt.Errorf("min rule priority: %w", err)
	}
	if !ok {
		return defaultPriorityGap, nil
	}
	return min - defaultPriorityGap, nil
}

func actionParamsFrom(action model.ProposedAction) *model.ActionParams {
	if action.TodoTitle == "" && action.CategoryID == nil && action.Priority == "" {
		return nil
	}
	return &model.ActionParams{
		TodoTitle:  action.TodoTitle,
		CategoryID: action.CategoryID,
		Priority:   action.Priority,
	}
}
