package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"inboxagent/internal/decision"
	"inboxagent/internal/model"
	"inboxagent/internal/mq"
	"inboxagent/internal/rules"
)

// LearnSpec is the optional "always do this" companion of a review.
type LearnSpec struct {
	SubjectContains string
	Name            string
	Priority        *int
}

// ReviewResult pairs the reviewed decision with the rule it spawned, if any.
type ReviewResult struct {
	Decision *model.Decision
	Rule     *model.Rule
}

// BatchItem reports one decision's outcome inside a batch review.
type BatchItem struct {
	ID    uuid.UUID `json:"id"`
	OK    bool      `json:"ok"`
	Error string    `json:"error,omitempty"`
}

// DecisionService drives the review surface: listing, approving,
// rejecting and learning rules from reviewed decisions.
type DecisionService struct {
	recorder *decision.Recorder
	learner  *rules.Learner
	producer *mq.Producer
	logger   *zap.Logger
}

func NewDecisionService(recorder *decision.Recorder, learner *rules.Learner, producer *mq.Producer, logger *zap.Logger) *DecisionService {
	return &DecisionService{
		recorder: recorder,
		learner:  learner,
		producer: producer,
		logger:   logger,
	}
}

func (s *DecisionService) Get(ctx context.Context, id uuid.UUID) (*model.Decision, error) {
	return s.recorder.Get(ctx, id)
}

func (s *DecisionService) List(ctx context.Context, f decision.Filter) ([]model.Decision, error) {
	return s.recorder.List(ctx, f)
}

func (s *DecisionService) Stats(ctx context.Context) (model.DecisionStats, error) {
	return s.recorder.Stats(ctx)
}

// Approve moves the decision to Approved, queues its execution, and
// optionally learns a rule from it. A learn failure does not undo the
// approval; the caller sees the approved decision either way.
func (s *DecisionService) Approve(ctx context.Context, id uuid.UUID, feedback string, mods *model.ProposedAction, learn *LearnSpec) (*ReviewResult, error) {
	d, err := s.recorder.Transition(ctx, id, decision.EventApprove, decision.TransitionOpts{
		Feedback:      feedback,
		Modifications: mods,
	})
	if err != nil {
		return nil, err
	}

	if err := s.producer.Publish(mq.RoutingKeyDecisionExecute, decision.ExecutePayload{DecisionID: d.ID.String()}); err != nil {
		// 已批准但没能入队，记录错误，等人工或补偿任务处理
		s.logger.Error("Approved decision could not be queued for execution",
			zap.String("decision_id", d.ID.String()),
			zap.Error(err),
		)
	}

	res := &ReviewResult{Decision: d}
	res.Rule = s.maybeLearn(ctx, d, learn)
	return res, nil
}

// Reject moves the decision to Rejected, recording the reviewer's
// feedback. With a learn spec the engine learns the opposite rule:
// "always ignore this sender".
func (s *DecisionService) Reject(ctx context.Context, id uuid.UUID, feedback string, learn *LearnSpec) (*ReviewResult, error) {
	d, err := s.recorder.Transition(ctx, id, decision.EventReject, decision.TransitionOpts{Feedback: feedback})
	if err != nil {
		return nil, err
	}

	res := &ReviewResult{Decision: d}
	res.Rule = s.maybeLearn(ctx, d, learn)
	return res, nil
}

func (s *DecisionService) maybeLearn(ctx context.Context, d *model.Decision, learn *LearnSpec) *model.Rule {
	if learn == nil {
		return nil
	}

	req := rules.LearnRequest{
		Decision:        *d,
		Sender:          d.Sender,
		SubjectContains: learn.SubjectContains,
		Name:            learn.Name,
		Priority:        learn.Priority,
	}
	if d.Status == model.StatusRejected {
		// 拒绝后学到的规则是忽略该发件人
		req.Decision.DecisionType = model.DecisionIgnore
	}

	rule, err := s.learner.Learn(ctx, req)
	if err != nil {
		s.logger.Error("Failed to learn rule from decision",
			zap.String("decision_id", d.ID.String()),
			zap.Error(err),
		)
		return nil
	}
	return rule
}

// BatchApprove approves each id independently and reports per-item
// outcomes. One bad id never aborts the rest.
func (s *DecisionService) BatchApprove(ctx context.Context, ids []uuid.UUID) []BatchItem {
	out := make([]BatchItem, 0, len(ids))
	for _, id := range ids {
		_, err := s.Approve(ctx, id, "", nil, nil)
		out = append(out, batchItem(id, err))
	}
	return out
}

// BatchReject rejects each id independently.
func (s *DecisionService) BatchReject(ctx context.Context, ids []uuid.UUID, feedback string) []BatchItem {
	out := make([]BatchItem, 0, len(ids))
	for _, id := range ids {
		_, err := s.Reject(ctx, id, feedback, nil)
		out = append(out, batchItem(id, err))
	}
	return out
}

func batchItem(id uuid.UUID, err error) BatchItem {
	if err != nil {
		return BatchItem{ID: id, Error: err.Error()}
	}
	return BatchItem{ID: id, OK: true}
}
