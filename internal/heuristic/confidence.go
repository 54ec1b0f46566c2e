package heuristic

import (
	"go.uber.org/zap"

	"inboxagent/config"
	"inboxagent/internal/model"
)

// LLMAnalysis is the optional opinion of the external analysis service.
// Absence means "no opinion" and must never block a decision.
type LLMAnalysis struct {
	IsActionable    bool
	SuggestedAction model.DecisionType
	Confidence      float64
	Reasoning       string
}

// Result is the calculator's output: a bounded score, the initial
// lifecycle status and the itemized contributions behind it.
type Result struct {
	Confidence    float64
	Status        model.DecisionStatus
	Tier          string
	Contributions []model.Contribution
}

// Calculator combines heuristic signals into a confidence in [0,1] and
// maps it to an initial status. Weights come from config so tests can pin
// threshold boundaries exactly.
type Calculator struct {
	weights              config.Weights
	autoApprove          bool
	autoApproveThreshold float64
	ignoreThreshold      float64
	logger               *zap.Logger
}

func NewCalculator(cfg config.EngineConfig, logger *zap.Logger) *Calculator {
	return &Calculator{
		weights:              cfg.Weights,
		autoApprove:          cfg.AutoApprove,
		autoApproveThreshold: cfg.AutoApproveThreshold,
		ignoreThreshold:      cfg.IgnoreThreshold,
		logger:               logger,
	}
}

// Calculate is deterministic for a given (signals, llm) pair.
func (c *Calculator) Calculate(signals Signals, llm *LLMAnalysis) Result {
	var contributions []model.Contribution
	add := func(label string, value float64) {
		if value != 0 {
			contributions = append(contributions, model.Contribution{Label: label, Value: value})
		}
	}

	score := 0.0

	// Action-required and urgency hits stack per keyword but are capped so
	// keyword-stuffed mail cannot buy auto-approval on volume alone.
	keywordBonus := c.weights.ActionRequired*float64(len(signals.ActionRequiredHits)) +
		c.weights.Urgency*float64(len(signals.UrgencyHits))
	if keywordBonus > c.weights.KeywordCap {
		keywordBonus = c.weights.KeywordCap
	}
	add("keyword_bonus", keywordBonus)
	score += keywordBonus

	if len(signals.RequestHits) > 0 {
		add("request", c.weights.Request)
		score += c.weights.Request
	}
	if signals.Deadline != nil {
		add("deadline", c.weights.Deadline)
		score += c.weights.Deadline
	}
	if signals.KnownSender {
		add("known_sender", c.weights.KnownSender)
		score += c.weights.KnownSender
	}
	if signals.IsReply {
		add("reply_in_thread", c.weights.ReplyInThread)
		score += c.weights.ReplyInThread
	}
	if signals.AutomatedSender {
		add("automated_sender", -c.weights.AutomatedSender)
		score -= c.weights.AutomatedSender
	}
	if len(signals.FYIHits) > 0 {
		add("fyi", -c.weights.FYI)
		score -= c.weights.FYI
	}

	// External analysis only ever adds, and only when its direction agrees
	// with ours. Fail-open: nil means no opinion.
	if llm != nil && llm.IsActionable == signals.Actionable() {
		add("llm_agreement", c.weights.LLMAgreement)
		score += c.weights.LLMAgreement
	}

	confidence := c.clamp(score)

	return Result{
		Confidence:    confidence,
		Status:        c.initialStatus(confidence),
		Tier:          model.ConfidenceTier(confidence),
		Contributions: contributions,
	}
}

// clamp bounds the score to [0,1]. The weight table may legitimately sum
// past 1.0 when every signal fires at once (the defaults do), so clamping
// at the top is ordinary saturation, not a breach.
func (c *Calculator) clamp(score float64) float64 {
	const slack = 1e-9
	switch {
	case score < 0:
		if score < -slack {
			c.logger.Warn("confidence underflow clamped", zap.Float64("score", score))
		}
		return 0
	case score > 1:
		if score > 1+slack {
			c.logger.Debug("confidence saturated at 1.0", zap.Float64("score", score))
		}
		return 1
	}
	return score
}

func (c *Calculator) initialStatus(confidence float64) model.DecisionStatus {
	switch {
	case confidence < c.ignoreThreshold:
		return model.StatusIgnored
	case confidence >= c.autoApproveThreshold && c.autoApprove:
		return model.StatusAutoApproved
	default:
		return model.StatusProposed
	}
}

// RuleStatus is the initial status for a rule-matched decision:
// auto-approved only when the global switch is on and the rule is active.
func (c *Calculator) RuleStatus(ruleActive bool) model.DecisionStatus {
	if c.autoApprove && ruleActive {
		return model.StatusAutoApproved
	}
	return model.StatusProposed
}
