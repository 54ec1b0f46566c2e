package rules

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"inboxagent/internal/model"
)

type fakeLister struct {
	rules []model.Rule
	err   error
}

func (f *fakeLister) ListActiveRules(ctx context.Context) ([]model.Rule, error) {
	return f.rules, f.err
}

const validConditions = `{"operator":"AND","clauses":[{"field":"sender","matcher":"contains","value":"x"}]}`

func storedRule(name string, priority int, createdAt time.Time) model.Rule {
	return model.Rule{
		ID:         uuid.New(),
		Name:       name,
		SourceType: model.RuleSourceEmail,
		Conditions: validConditions,
		Action:     model.DecisionCreateTodo,
		Priority:   priority,
		IsActive:   true,
		CreatedAt:  createdAt,
	}
}

func TestSortRulesDeterministicOrder(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	older := ActiveRule{Rule: storedRule("older", 50, base)}
	newer := ActiveRule{Rule: storedRule("newer", 50, base.Add(time.Hour))}
	top := ActiveRule{Rule: storedRule("top", 100, base.Add(2*time.Hour))}

	for _, perm := range [][]ActiveRule{
		{older, newer, top},
		{newer, top, older},
		{top, older, newer},
	} {
		SortRules(perm)
		names := []string{perm[0].Rule.Name, perm[1].Rule.Name, perm[2].Rule.Name}
		assert.Equal(t, []string{"top", "older", "newer"}, names)
	}
}

func TestSortRulesIDBreaksExactTies(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := ActiveRule{Rule: storedRule("a", 50, base)}
	b := ActiveRule{Rule: storedRule("b", 50, base)}

	set1 := []ActiveRule{a, b}
	set2 := []ActiveRule{b, a}
	SortRules(set1)
	SortRules(set2)

	assert.Equal(t, set1[0].Rule.ID, set2[0].Rule.ID, "order must not depend on input order")
}

func TestProviderRefreshBuildsSnapshot(t *testing.T) {
	lister := &fakeLister{rules: []model.Rule{
		storedRule("a", 10, time.Now()),
		storedRule("b", 20, time.Now()),
	}}
	p := NewProvider(lister, nil, time.Minute, zap.NewNop())

	require.NoError(t, p.Refresh(context.Background()))

	snap := p.Current()
	assert.Equal(t, int64(1), snap.Version)
	require.Len(t, snap.Rules, 2)
	assert.Equal(t, "b", snap.Rules[0].Rule.Name, "higher priority first")

	require.NoError(t, p.Refresh(context.Background()))
	assert.Equal(t, int64(2), p.Current().Version, "every refresh bumps the version")
}

func TestProviderRefreshDropsUndecodableRule(t *testing.T) {
	bad := storedRule("bad", 99, time.Now())
	bad.Conditions = "not json"
	lister := &fakeLister{rules: []model.Rule{bad, storedRule("good", 1, time.Now())}}
	p := NewProvider(lister, nil, time.Minute, zap.NewNop())

	require.NoError(t, p.Refresh(context.Background()))

	snap := p.Current()
	require.Len(t, snap.Rules, 1)
	assert.Equal(t, "good", snap.Rules[0].Rule.Name)
}

func TestProviderRefreshErrorKeepsOldSnapshot(t *testing.T) {
	lister := &fakeLister{rules: []model.Rule{storedRule("a", 1, time.Now())}}
	p := NewProvider(lister, nil, time.Minute, zap.NewNop())
	require.NoError(t, p.Refresh(context.Background()))

	lister.err = errors.New("db down")
	assert.Error(t, p.Refresh(context.Background()))
	assert.Len(t, p.Current().Rules, 1, "failed refresh must not clear the snapshot")
	assert.Equal(t, int64(1), p.Current().Version)
}

func TestProviderRefreshEvictsStaleRegexPatterns(t *testing.T) {
	withRegex := storedRule("spam", 10, time.Now())
	withRegex.Conditions = `{"operator":"AND","clauses":[{"field":"subject","matcher":"regex","value":"(?i)invoice-\\d+"}]}`
	lister := &fakeLister{rules: []model.Rule{withRegex}}

	cache := NewRegexCache()
	p := NewProvider(lister, cache, time.Minute, zap.NewNop())
	require.NoError(t, p.Refresh(context.Background()))

	// Matching populated the cache.
	_, err := cache.Get(`(?i)invoice-\d+`)
	require.NoError(t, err)
	require.Equal(t, 1, cache.Len())

	// Rule deleted: the next refresh sweeps its pattern out of this
	// process's cache.
	lister.rules = nil
	require.NoError(t, p.Refresh(context.Background()))
	assert.Equal(t, 0, cache.Len())

	// Patterns still referenced survive the sweep.
	lister.rules = []model.Rule{withRegex}
	require.NoError(t, p.Refresh(context.Background()))
	_, err = cache.Get(`(?i)invoice-\d+`)
	require.NoError(t, err)
	require.NoError(t, p.Refresh(context.Background()))
	assert.Equal(t, 1, cache.Len())
}

func TestProviderCurrentNeverNil(t *testing.T) {
	p := NewProvider(&fakeLister{}, nil, time.Minute, zap.NewNop())
	snap := p.Current()
	require.NotNil(t, snap)
	assert.Empty(t, snap.Rules)
}
