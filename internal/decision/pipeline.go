package decision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"inboxagent/internal/heuristic"
	"inboxagent/internal/model"
	"inboxagent/internal/rules"
	"inboxagent/internal/signal"
	"inboxagent/pkg/metrics"
)

// RuleStore is the rule surface the pipeline touches after a match.
// Match bookkeeping only happens when the match produced a persisted
// decision, never on evaluation alone.
type RuleStore interface {
	IncrementMatch(ctx context.Context, ruleID string) error
}

// SenderStats supplies and maintains prior-interaction counts per sender.
type SenderStats interface {
	Frequency(ctx context.Context, sender string) (int, error)
	Record(ctx context.Context, sender string) error
}

// Analyzer is the optional external analysis collaborator. Implementations
// must treat timeout and failure as "no opinion" (nil, nil).
type Analyzer interface {
	Analyze(ctx context.Context, sig model.Signal) (*heuristic.LLMAnalysis, error)
}

// Publisher publishes engine events (decision.execute) to the exchange.
type Publisher interface {
	Publish(routingKey string, payload any) error
}

// ExecutePayload is the decision.execute event body.
type ExecutePayload struct {
	DecisionID string `json:"decision_id"`
}

// Pipeline drives one signal end to end: normalize → match → score →
// record. Each signal is an independent unit of work; batches share the
// snapshot they started with.
type Pipeline struct {
	snapshots *rules.Provider
	matcher   *rules.Matcher
	scorer    *heuristic.Scorer
	calc      *heuristic.Calculator
	recorder  *Recorder
	ruleStore RuleStore
	senders   SenderStats
	analyzer  Analyzer
	publisher Publisher
	logger    *zap.Logger
}

func NewPipeline(
	snapshots *rules.Provider,
	matcher *rules.Matcher,
	scorer *heuristic.Scorer,
	calc *heuristic.Calculator,
	recorder *Recorder,
	ruleStore RuleStore,
	senders SenderStats,
	analyzer Analyzer,
	publisher Publisher,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		snapshots: snapshots,
		matcher:   matcher,
		scorer:    scorer,
		calc:      calc,
		recorder:  recorder,
		ruleStore: ruleStore,
		senders:   senders,
		analyzer:  analyzer,
		publisher: publisher,
		logger:    logger,
	}
}

// Process normalizes a raw record and records a decision for it against
// the current rule snapshot. Validation failures drop the record before
// the pipeline; no decision is created for them.
func (p *Pipeline) Process(ctx context.Context, raw model.RawRecord) (*model.Decision, error) {
	sig, err := signal.Normalize(raw)
	if err != nil {
		if errors.Is(err, signal.ErrValidation) {
			metrics.IncrementSignalDropped("validation")
			p.logger.Warn("dropping malformed raw record",
				zap.String("source_external_id", raw.SourceExternalID),
				zap.Error(err),
			)
		}
		return nil, err
	}
	return p.DecideAndRecord(ctx, sig, p.snapshots.Current())
}

// DecideAndRecord evaluates one signal against a fixed snapshot and
// persists at most one open decision for its source key.
func (p *Pipeline) DecideAndRecord(ctx context.Context, sig model.Signal, snap *rules.Snapshot) (*model.Decision, error) {
	start := time.Now()

	var d *model.Decision
	var matched *rules.MatchResult
	if res, ok := p.matcher.Match(sig, snap); ok {
		matched = &res
		d = p.ruleDecision(sig, res)
		metrics.RecordRuleMatchDuration("rule", time.Since(start))
	} else {
		var err error
		d, err = p.heuristicDecision(ctx, sig)
		if err != nil {
			return nil, err
		}
		metrics.RecordRuleMatchDuration("heuristic", time.Since(start))
	}

	stored, created, err := p.recorder.Create(ctx, d)
	if err != nil {
		return nil, err
	}
	if !created {
		// 幂等返回已有决策，不做任何副作用
		return stored, nil
	}

	// match_count only moves when the match produced a persisted decision.
	if matched != nil {
		if err := p.ruleStore.IncrementMatch(ctx, matched.Rule.ID.String()); err != nil {
			p.logger.Error("failed to increment rule match count",
				zap.String("rule_id", matched.Rule.ID.String()),
				zap.Error(err),
			)
		}
	}

	if err := p.senders.Record(ctx, sig.Sender); err != nil {
		p.logger.Warn("failed to record sender interaction",
			zap.String("sender", sig.Sender),
			zap.Error(err),
		)
	}

	if stored.Status == model.StatusAutoApproved {
		payload := ExecutePayload{DecisionID: stored.ID.String()}
		if err := p.publisher.Publish("decision.execute", payload); err != nil {
			p.logger.Error("failed to publish decision.execute",
				zap.String("decision_id", stored.ID.String()),
				zap.Error(err),
			)
		}
	}

	p.logger.Info("decision recorded",
		zap.String("decision_id", stored.ID.String()),
		zap.String("source_external_id", stored.SourceExternalID),
		zap.String("status", string(stored.Status)),
		zap.String("decision_type", string(stored.DecisionType)),
		zap.Float64("confidence", stored.Confidence),
	)
	return stored, nil
}

// ruleDecision builds a decision from the first matching rule: confidence
// is always 1.0 and auto-approval is gated on the global switch.
func (p *Pipeline) ruleDecision(sig model.Signal, res rules.MatchResult) *model.Decision {
	rule := res.Rule
	ruleID := rule.ID
	action := BuildAction(rule.ActionParams, sig, nil)

	return &model.Decision{
		SourceType:       sig.SourceType,
		SourceExternalID: sig.SourceExternalID,
		Sender:           sig.Sender,
		DecisionType:     rule.Action,
		ProposedAction:   action,
		Reasoning:        fmt.Sprintf("Matched rule %q: %s", rule.Name, strings.Join(res.MatchedClauses, ", ")),
		ReasoningDetails: model.ReasoningDetails{MatchedClauses: res.MatchedClauses},
		Confidence:       1.0,
		Status:           p.calc.RuleStatus(rule.IsActive),
		AppliedRuleID:    &ruleID,
	}
}

// heuristicDecision scores an unmatched signal, optionally consulting the
// external analyzer. Analyzer failure never blocks decision creation.
func (p *Pipeline) heuristicDecision(ctx context.Context, sig model.Signal) (*model.Decision, error) {
	freq, err := p.senders.Frequency(ctx, sig.Sender)
	if err != nil {
		// 查询失败按未知发件人处理
		p.logger.Warn("sender frequency lookup failed", zap.String("sender", sig.Sender), zap.Error(err))
		freq = 0
	}

	signals := p.scorer.Score(sig, freq)

	var analysis *heuristic.LLMAnalysis
	if p.analyzer != nil {
		analysis, err = p.analyzer.Analyze(ctx, sig)
		if err != nil {
			p.logger.Debug("external analysis unavailable, proceeding without it", zap.Error(err))
			analysis = nil
		}
	}

	result := p.calc.Calculate(signals, analysis)

	decisionType := model.DecisionCreateTodo
	if !signals.Actionable() || result.Status == model.StatusIgnored {
		decisionType = model.DecisionIgnore
	}

	score := result.Confidence
	threadLen := signals.ThreadDepth
	details := model.ReasoningDetails{
		MatchedKeywords:  signals.MatchedKeywords(),
		DetectedDeadline: signals.Deadline,
		SenderFrequency:  &signals.SenderFrequency,
		ThreadLength:     &threadLen,
		HeuristicScore:   &score,
		Contributions:    result.Contributions,
	}
	if analysis != nil {
		details.LLMAnalysis = analysis.Reasoning
	}

	return &model.Decision{
		SourceType:       sig.SourceType,
		SourceExternalID: sig.SourceExternalID,
		Sender:           sig.Sender,
		DecisionType:     decisionType,
		ProposedAction:   BuildAction(nil, sig, signals.Deadline),
		Reasoning:        heuristicReasoning(signals),
		ReasoningDetails: details,
		Confidence:       result.Confidence,
		Status:           result.Status,
	}, nil
}

func heuristicReasoning(signals heuristic.Signals) string {
	if kws := signals.MatchedKeywords(); len(kws) > 0 {
		return fmt.Sprintf("Detected keywords: %s", strings.Join(kws, ", "))
	}
	if signals.AutomatedSender {
		return "Automated sender, nothing actionable detected"
	}
	return "No actionable content detected"
}
