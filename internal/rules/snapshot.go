package rules

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"inboxagent/internal/model"
)

// Lister is the rule store surface the snapshot provider needs.
type Lister interface {
	ListActiveRules(ctx context.Context) ([]model.Rule, error)
}

// ActiveRule pairs a rule with its decoded condition tree.
type ActiveRule struct {
	Rule model.Rule
	Tree model.ConditionTree
}

// Snapshot is an immutable, versioned view of the active rules, sorted by
// priority descending with creation time ascending as the tie-break.
// Callers hold one snapshot for a whole batch so matching is reproducible.
type Snapshot struct {
	Version  int64
	LoadedAt time.Time
	Rules    []ActiveRule
}

// Provider owns the current snapshot and refreshes it on a fixed interval
// or on demand after rule mutations.
type Provider struct {
	lister   Lister
	cache    *RegexCache
	logger   *zap.Logger
	interval time.Duration

	mu      sync.RWMutex
	current *Snapshot
	version int64
}

// NewProvider builds a provider over lister. cache may be nil when the
// process does no matching of its own.
func NewProvider(lister Lister, cache *RegexCache, interval time.Duration, logger *zap.Logger) *Provider {
	return &Provider{
		lister:   lister,
		cache:    cache,
		interval: interval,
		logger:   logger,
		current:  &Snapshot{},
	}
}

// Current returns the latest snapshot. Never nil.
func (p *Provider) Current() *Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Refresh loads the active rules, decodes their conditions once, sorts them
// deterministically and swaps in a new snapshot. Rules with undecodable
// conditions are dropped from the snapshot with a warning; they must not
// block the rest.
func (p *Provider) Refresh(ctx context.Context) error {
	ruleList, err := p.lister.ListActiveRules(ctx)
	if err != nil {
		return err
	}

	active := make([]ActiveRule, 0, len(ruleList))
	for _, r := range ruleList {
		tree, err := DecodeConditions(r.Conditions)
		if err != nil {
			p.logger.Warn("dropping rule with undecodable conditions",
				zap.String("rule_id", r.ID.String()),
				zap.String("rule_name", r.Name),
				zap.Error(err),
			)
			continue
		}
		active = append(active, ActiveRule{Rule: r, Tree: tree})
	}

	SortRules(active)
	p.sweepRegexCache(active)

	p.mu.Lock()
	p.version++
	p.current = &Snapshot{Version: p.version, LoadedAt: time.Now(), Rules: active}
	p.mu.Unlock()

	p.logger.Debug("rule snapshot refreshed",
		zap.Int64("version", p.version),
		zap.Int("rules", len(active)),
	)
	return nil
}

// sweepRegexCache evicts compiled patterns no rule in the new snapshot
// references, so edits and deletes propagate to this process's cache on
// the same refresh cycle and it never grows past the active rule set.
func (p *Provider) sweepRegexCache(active []ActiveRule) {
	if p.cache == nil {
		return
	}
	keep := make(map[string]struct{})
	for _, ar := range active {
		for _, c := range ar.Tree.Clauses {
			if c.Matcher == model.MatcherRegex {
				keep[c.Value] = struct{}{}
			}
		}
	}
	if dropped := p.cache.Retain(keep); dropped > 0 {
		p.logger.Debug("evicted stale regex patterns", zap.Int("dropped", dropped))
	}
}

// Run refreshes the snapshot periodically until ctx is cancelled.
func (p *Provider) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.Refresh(ctx); err != nil {
				p.logger.Error("rule snapshot refresh failed", zap.Error(err))
			}
		}
	}
}

// SortRules orders rules by priority descending, then creation time
// ascending, then ID as a final guard. Applied both here and wherever a
// fake store builds snapshots, so ordering never depends on store
// iteration order.
func SortRules(active []ActiveRule) {
	sort.SliceStable(active, func(i, j int) bool {
		a, b := active[i].Rule, active[j].Rule
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
}
