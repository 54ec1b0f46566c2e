package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"inboxagent/internal/model"
	"inboxagent/internal/repository"
	"inboxagent/internal/rules"
)

// RuleService owns rule CRUD. Every mutation refreshes the matcher's
// snapshot and drops stale compiled regexes, so the next evaluated
// signal sees the new rule set.
type RuleService struct {
	repo     *repository.RuleRepository
	cache    *rules.RegexCache
	provider *rules.Provider
	logger   *zap.Logger
}

func NewRuleService(repo *repository.RuleRepository, cache *rules.RegexCache, provider *rules.Provider, logger *zap.Logger) *RuleService {
	return &RuleService{
		repo:     repo,
		cache:    cache,
		provider: provider,
		logger:   logger,
	}
}

func (s *RuleService) List(ctx context.Context) ([]model.Rule, error) {
	return s.repo.List(ctx)
}

func (s *RuleService) Get(ctx context.Context, id uuid.UUID) (*model.Rule, error) {
	return s.repo.Get(ctx, id)
}

func (s *RuleService) Create(ctx context.Context, rule *model.Rule) error {
	if err := s.validate(rule); err != nil {
		return err
	}
	if err := s.repo.InsertRule(ctx, rule); err != nil {
		return err
	}
	s.refresh(ctx)
	return nil
}

func (s *RuleService) Update(ctx context.Context, rule *model.Rule) error {
	if err := s.validate(rule); err != nil {
		return err
	}

	old, err := s.repo.Get(ctx, rule.ID)
	if err != nil {
		return err
	}

	if err := s.repo.Update(ctx, rule); err != nil {
		return err
	}

	s.cache.Invalidate(regexPatterns(old.Conditions)...)
	s.refresh(ctx)
	return nil
}

func (s *RuleService) Delete(ctx context.Context, id uuid.UUID) error {
	old, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.cache.Invalidate(regexPatterns(old.Conditions)...)
	s.refresh(ctx)
	return nil
}

func (s *RuleService) validate(rule *model.Rule) error {
	if rule.Name == "" {
		return fmt.Errorf("rule name is required")
	}
	if _, ok := model.ParseRuleSourceType(string(rule.SourceType)); !ok {
		return fmt.Errorf("unknown source_type %q", rule.SourceType)
	}
	if _, ok := model.ParseDecisionType(string(rule.Action)); !ok {
		return fmt.Errorf("unknown action %q", rule.Action)
	}
	if _, err := rules.DecodeConditions(rule.Conditions); err != nil {
		return fmt.Errorf("invalid conditions: %w", err)
	}
	return nil
}

func (s *RuleService) refresh(ctx context.Context) {
	if err := s.provider.Refresh(ctx); err != nil {
		// 下一次定时刷新会补上
		s.logger.Warn("Rule snapshot refresh failed after mutation", zap.Error(err))
	}
}

func regexPatterns(conditions string) []string {
	tree, err := rules.DecodeConditions(conditions)
	if err != nil {
		return nil
	}
	var out []string
	for _, c := range tree.Clauses {
		if c.Matcher == model.MatcherRegex {
			out = append(out, c.Value)
		}
	}
	return out
}
