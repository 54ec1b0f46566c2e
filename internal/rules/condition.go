package rules

import (
	"encoding/json"
	"fmt"
	"strings"

	"inboxagent/internal/model"
)

// DecodeConditions parses a rule's persisted condition text into an
// explicit tree. Done once per snapshot load so evaluation never touches
// JSON again.
func DecodeConditions(text string) (model.ConditionTree, error) {
	var raw struct {
		Operator string         `json:"operator"`
		Clauses  []model.Clause `json:"clauses"`
	}
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return model.ConditionTree{}, fmt.Errorf("decode conditions: %w", err)
	}

	var op model.Operator
	switch strings.ToUpper(raw.Operator) {
	case "AND":
		op = model.OpAnd
	case "OR":
		op = model.OpOr
	default:
		return model.ConditionTree{}, fmt.Errorf("decode conditions: unknown operator %q", raw.Operator)
	}

	if len(raw.Clauses) == 0 {
		return model.ConditionTree{}, fmt.Errorf("decode conditions: empty clause list")
	}
	for i, c := range raw.Clauses {
		if _, ok := model.ParseMatcher(string(c.Matcher)); !ok {
			return model.ConditionTree{}, fmt.Errorf("decode conditions: clause %d has unknown matcher %q", i, c.Matcher)
		}
		if c.Field == "" {
			return model.ConditionTree{}, fmt.Errorf("decode conditions: clause %d missing field", i)
		}
	}

	return model.ConditionTree{Operator: op, Clauses: raw.Clauses}, nil
}

// EncodeConditions is the inverse used when persisting authored rules.
func EncodeConditions(tree model.ConditionTree) (string, error) {
	b, err := json.Marshal(tree)
	if err != nil {
		return "", fmt.Errorf("encode conditions: %w", err)
	}
	return string(b), nil
}
