package rules

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"inboxagent/internal/model"
)

// MatchResult describes the first rule that matched a signal.
type MatchResult struct {
	Rule           model.Rule
	MatchedClauses []string
}

// Matcher evaluates rule snapshots against signals. Evaluation order is
// fixed by the snapshot (priority descending, creation time ascending), so
// identical (signal, snapshot) pairs always produce the same result.
type Matcher struct {
	cache  *RegexCache
	logger *zap.Logger
}

func NewMatcher(cache *RegexCache, logger *zap.Logger) *Matcher {
	return &Matcher{cache: cache, logger: logger}
}

// Match returns the first matching rule in the snapshot, or false.
// A rule whose condition fails to evaluate (bad regex) is skipped for this
// evaluation only; the remaining rules are still considered.
func (m *Matcher) Match(sig model.Signal, snap *Snapshot) (MatchResult, bool) {
	for _, ar := range snap.Rules {
		if !ar.Rule.SourceType.AppliesTo(sig.SourceType) {
			continue
		}

		matched, clauses, err := m.evaluateTree(ar.Tree, sig)
		if err != nil {
			m.logger.Warn("rule evaluation failed, skipping rule",
				zap.String("rule_id", ar.Rule.ID.String()),
				zap.String("rule_name", ar.Rule.Name),
				zap.Error(err),
			)
			continue
		}
		if matched {
			return MatchResult{Rule: ar.Rule, MatchedClauses: clauses}, true
		}
	}
	return MatchResult{}, false
}

// evaluateTree applies AND/OR with short-circuiting. A regex compile error
// aborts the whole tree so the rule counts as non-matching.
func (m *Matcher) evaluateTree(tree model.ConditionTree, sig model.Signal) (bool, []string, error) {
	var matchedClauses []string
	isAnd := tree.Operator == model.OpAnd

	for _, clause := range tree.Clauses {
		fieldValue := fieldValue(clause.Field, sig)
		matches, err := m.evaluateClause(clause, fieldValue)
		if err != nil {
			return false, nil, err
		}

		if matches {
			matchedClauses = append(matchedClauses,
				fmt.Sprintf("%s %s %q", clause.Field, clause.Matcher, clause.Value))
		}

		if isAnd && !matches {
			return false, nil, nil
		}
		if !isAnd && matches {
			return true, matchedClauses, nil
		}
	}

	// AND: every clause matched. OR: none did.
	if isAnd {
		return true, matchedClauses, nil
	}
	return false, nil, nil
}

func (m *Matcher) evaluateClause(clause model.Clause, fieldValue string) (bool, error) {
	value, pattern := fieldValue, clause.Value
	if !clause.CaseSensitive {
		value = strings.ToLower(value)
		pattern = strings.ToLower(pattern)
	}

	switch clause.Matcher {
	case model.MatcherEquals:
		return value == pattern, nil
	case model.MatcherContains:
		return strings.Contains(value, pattern), nil
	case model.MatcherStartsWith:
		return strings.HasPrefix(value, pattern), nil
	case model.MatcherEndsWith:
		return strings.HasSuffix(value, pattern), nil
	case model.MatcherRegex:
		re, err := m.cache.Get(clause.Value)
		if err != nil {
			return false, fmt.Errorf("regex %q: %w", clause.Value, err)
		}
		// 正则始终匹配原始值，大小写交给 pattern 自己控制
		return re.MatchString(fieldValue), nil
	}
	return false, fmt.Errorf("unknown matcher %q", clause.Matcher)
}

// fieldValue extracts a clause field from the signal. Unknown fields
// compare as empty, matching nothing.
func fieldValue(field string, sig model.Signal) string {
	switch field {
	case "sender", "from", "from_address":
		return sig.Sender
	case "sender_name", "from_name":
		return sig.SenderName
	case "subject":
		return sig.Subject
	case "body", "body_text":
		return sig.BodyText
	case "snippet", "body_preview":
		return sig.BodyPreview
	case "labels":
		return strings.Join(sig.Labels, ", ")
	case "from_full":
		if sig.SenderName == "" {
			return sig.Sender
		}
		return fmt.Sprintf("%s <%s>", sig.SenderName, sig.Sender)
	case "content":
		return sig.Subject + " " + sig.BodyText
	}
	return ""
}
