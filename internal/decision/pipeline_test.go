package decision

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"inboxagent/config"
	"inboxagent/internal/heuristic"
	"inboxagent/internal/model"
	"inboxagent/internal/rules"
	"inboxagent/internal/signal"
)

type fakeRuleStore struct {
	incremented []string
}

func (f *fakeRuleStore) IncrementMatch(ctx context.Context, ruleID string) error {
	f.incremented = append(f.incremented, ruleID)
	return nil
}

type fakeSenderStats struct {
	freq     map[string]int
	recorded []string
	freqErr  error
}

func (f *fakeSenderStats) Frequency(ctx context.Context, sender string) (int, error) {
	if f.freqErr != nil {
		return 0, f.freqErr
	}
	return f.freq[sender], nil
}

func (f *fakeSenderStats) Record(ctx context.Context, sender string) error {
	f.recorded = append(f.recorded, sender)
	return nil
}

type fakeAnalyzer struct {
	analysis *heuristic.LLMAnalysis
	err      error
	calls    int
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, sig model.Signal) (*heuristic.LLMAnalysis, error) {
	f.calls++
	return f.analysis, f.err
}

type fakePublisher struct {
	published []string
}

func (f *fakePublisher) Publish(routingKey string, payload any) error {
	f.published = append(f.published, routingKey)
	return nil
}

type staticLister struct {
	rules []model.Rule
}

func (s *staticLister) ListActiveRules(ctx context.Context) ([]model.Rule, error) {
	return s.rules, nil
}

type pipelineFixture struct {
	pipeline  *Pipeline
	store     *memStore
	ruleStore *fakeRuleStore
	senders   *fakeSenderStats
	analyzer  *fakeAnalyzer
	publisher *fakePublisher
}

func newPipelineFixture(t *testing.T, autoApprove bool, storedRules []model.Rule) *pipelineFixture {
	t.Helper()
	logger := zap.NewNop()

	provider := rules.NewProvider(&staticLister{rules: storedRules}, rules.NewRegexCache(), time.Minute, logger)
	require.NoError(t, provider.Refresh(context.Background()))

	cfg := config.EngineConfig{
		AutoApprove:          autoApprove,
		AutoApproveThreshold: 0.9,
		IgnoreThreshold:      0.3,
		KnownSenderMin:       3,
		Weights:              config.DefaultWeights(),
	}

	f := &pipelineFixture{
		store:     newMemStore(),
		ruleStore: &fakeRuleStore{},
		senders:   &fakeSenderStats{freq: map[string]int{}},
		analyzer:  &fakeAnalyzer{},
		publisher: &fakePublisher{},
	}
	f.pipeline = NewPipeline(
		provider,
		rules.NewMatcher(rules.NewRegexCache(), logger),
		heuristic.NewScorer(cfg.KnownSenderMin),
		heuristic.NewCalculator(cfg, logger),
		NewRecorder(f.store, logger),
		f.ruleStore,
		f.senders,
		f.analyzer,
		f.publisher,
		logger,
	)
	return f
}

func rawEmail(externalID, sender, subject, body string) model.RawRecord {
	return model.RawRecord{
		SourceType:       "email",
		SourceExternalID: externalID,
		Sender:           sender,
		Subject:          subject,
		BodyText:         body,
		ReceivedAt:       time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
}

func bossRule() model.Rule {
	return model.Rule{
		ID:         uuid.New(),
		Name:       "boss mail",
		SourceType: model.RuleSourceEmail,
		Conditions: `{"operator":"AND","clauses":[{"field":"sender","matcher":"equals","value":"boss@corp.com"}]}`,
		Action:     model.DecisionCreateTodo,
		Priority:   100,
		IsActive:   true,
		CreatedAt:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestProcessRuleMatch(t *testing.T) {
	rule := bossRule()
	f := newPipelineFixture(t, true, []model.Rule{rule})

	d, err := f.pipeline.Process(context.Background(), rawEmail("msg-1", "boss@corp.com", "Numbers", "see attached"))
	require.NoError(t, err)

	assert.Equal(t, 1.0, d.Confidence, "rule decisions are fully confident")
	assert.Equal(t, model.StatusAutoApproved, d.Status)
	assert.Equal(t, model.DecisionCreateTodo, d.DecisionType)
	require.NotNil(t, d.AppliedRuleID)
	assert.Equal(t, rule.ID, *d.AppliedRuleID)
	assert.Contains(t, d.Reasoning, "boss mail")

	assert.Equal(t, []string{rule.ID.String()}, f.ruleStore.incremented)
	assert.Equal(t, []string{"decision.execute"}, f.publisher.published)
	assert.Equal(t, []string{"boss@corp.com"}, f.senders.recorded)
	assert.Zero(t, f.analyzer.calls, "matched signals never reach the analyzer")
}

func TestProcessRuleMatchWithoutAutoApprove(t *testing.T) {
	f := newPipelineFixture(t, false, []model.Rule{bossRule()})

	d, err := f.pipeline.Process(context.Background(), rawEmail("msg-1", "boss@corp.com", "Numbers", "x"))
	require.NoError(t, err)

	assert.Equal(t, model.StatusProposed, d.Status)
	assert.Empty(t, f.publisher.published, "proposed decisions wait for review")
}

func TestProcessNewsletterIsIgnored(t *testing.T) {
	f := newPipelineFixture(t, true, nil)

	d, err := f.pipeline.Process(context.Background(),
		rawEmail("msg-2", "deals@shop.com", "Weekly deals digest", "unsubscribe at any time"))
	require.NoError(t, err)

	assert.Less(t, d.Confidence, 0.3)
	assert.Equal(t, model.StatusIgnored, d.Status)
	assert.Equal(t, model.DecisionIgnore, d.DecisionType)
	assert.Empty(t, f.publisher.published)
}

func TestProcessActionableHeuristicDecision(t *testing.T) {
	f := newPipelineFixture(t, false, nil)
	f.senders.freq["alice@corp.com"] = 10

	d, err := f.pipeline.Process(context.Background(),
		rawEmail("msg-3", "alice@corp.com", "Action required: review budget", "urgent, could you sign off by friday"))
	require.NoError(t, err)

	assert.Equal(t, model.StatusProposed, d.Status)
	assert.Equal(t, model.DecisionCreateTodo, d.DecisionType)
	assert.Greater(t, d.Confidence, 0.5)

	details := d.ReasoningDetails
	assert.NotEmpty(t, details.MatchedKeywords)
	require.NotNil(t, details.DetectedDeadline)
	require.NotNil(t, details.SenderFrequency)
	assert.Equal(t, 10, *details.SenderFrequency)
	assert.NotEmpty(t, details.Contributions)

	require.NotNil(t, d.ProposedAction.DueDate, "detected deadline lands on the todo")
}

func TestProcessDuplicateSourceKeyHasNoSideEffects(t *testing.T) {
	rule := bossRule()
	f := newPipelineFixture(t, true, []model.Rule{rule})

	raw := rawEmail("msg-dup", "boss@corp.com", "Numbers", "x")
	first, err := f.pipeline.Process(context.Background(), raw)
	require.NoError(t, err)

	second, err := f.pipeline.Process(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "one decision per source key")
	assert.Len(t, f.ruleStore.incremented, 1, "match bookkeeping must not repeat")
	assert.Len(t, f.publisher.published, 1)
	assert.Len(t, f.senders.recorded, 1)
}

func TestProcessAnalyzerFailureIsOpen(t *testing.T) {
	f := newPipelineFixture(t, false, nil)
	f.analyzer.err = errors.New("analysis service down")

	d, err := f.pipeline.Process(context.Background(),
		rawEmail("msg-4", "alice@corp.com", "please review", "respond today"))
	require.NoError(t, err, "analyzer failure never blocks the decision")
	assert.Equal(t, 1, f.analyzer.calls)
	assert.Empty(t, d.ReasoningDetails.LLMAnalysis)
}

func TestProcessAnalyzerAgreementRaisesConfidence(t *testing.T) {
	raw := rawEmail("msg-5", "alice@corp.com", "please review", "respond today")

	plain := newPipelineFixture(t, false, nil)
	plain.analyzer.err = errors.New("down")
	base, err := plain.pipeline.Process(context.Background(), raw)
	require.NoError(t, err)

	agreeing := newPipelineFixture(t, false, nil)
	agreeing.analyzer.analysis = &heuristic.LLMAnalysis{IsActionable: true, Reasoning: "clearly a task"}
	boosted, err := agreeing.pipeline.Process(context.Background(), raw)
	require.NoError(t, err)

	assert.InDelta(t, base.Confidence+0.10, boosted.Confidence, 1e-9)
	assert.Equal(t, "clearly a task", boosted.ReasoningDetails.LLMAnalysis)
}

func TestProcessSenderFrequencyLookupFailureIsSoft(t *testing.T) {
	f := newPipelineFixture(t, false, nil)
	f.senders.freqErr = errors.New("redis down")

	d, err := f.pipeline.Process(context.Background(),
		rawEmail("msg-6", "alice@corp.com", "please review", "x"))
	require.NoError(t, err)
	require.NotNil(t, d.ReasoningDetails.SenderFrequency)
	assert.Equal(t, 0, *d.ReasoningDetails.SenderFrequency, "unknown sender on lookup failure")
}

func TestProcessDropsInvalidRecord(t *testing.T) {
	f := newPipelineFixture(t, false, nil)

	raw := rawEmail("msg-7", "", "subject", "body")
	_, err := f.pipeline.Process(context.Background(), raw)
	assert.ErrorIs(t, err, signal.ErrValidation)
	assert.Empty(t, f.senders.recorded, "invalid records produce no decision")
}
