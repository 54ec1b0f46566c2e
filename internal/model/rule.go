package model

import (
	"time"

	"github.com/google/uuid"
)

// RuleSourceType scopes which signals a rule applies to.
type RuleSourceType string

const (
	RuleSourceEmail    RuleSourceType = "email"
	RuleSourceCalendar RuleSourceType = "calendar"
	RuleSourceAny      RuleSourceType = "any"
)

func ParseRuleSourceType(s string) (RuleSourceType, bool) {
	switch RuleSourceType(s) {
	case RuleSourceEmail, RuleSourceCalendar, RuleSourceAny:
		return RuleSourceType(s), true
	}
	return "", false
}

// AppliesTo reports whether the scope covers a signal source.
func (rs RuleSourceType) AppliesTo(st SourceType) bool {
	if rs == RuleSourceAny {
		return true
	}
	return string(rs) == string(st)
}

// Matcher is how a clause compares its field against its value.
type Matcher string

const (
	MatcherEquals     Matcher = "equals"
	MatcherContains   Matcher = "contains"
	MatcherRegex      Matcher = "regex"
	MatcherStartsWith Matcher = "starts_with"
	MatcherEndsWith   Matcher = "ends_with"
)

func ParseMatcher(s string) (Matcher, bool) {
	switch Matcher(s) {
	case MatcherEquals, MatcherContains, MatcherRegex, MatcherStartsWith, MatcherEndsWith:
		return Matcher(s), true
	}
	return "", false
}

// Operator joins the clauses of a condition tree. Single level, no nesting.
type Operator string

const (
	OpAnd Operator = "AND"
	OpOr  Operator = "OR"
)

// Clause is one field comparison inside a condition tree.
type Clause struct {
	Field         string  `json:"field"`
	Matcher       Matcher `json:"matcher"`
	Value         string  `json:"value"`
	CaseSensitive bool    `json:"case_sensitive"`
}

// ConditionTree is the decoded form of a rule's persisted condition text.
type ConditionTree struct {
	Operator Operator `json:"operator"`
	Clauses  []Clause `json:"clauses"`
}

// ActionParams parameterizes the rule's action. All fields optional;
// missing ones fall back to signal-derived defaults.
type ActionParams struct {
	TodoTitle         string     `json:"todo_title,omitempty"`
	TodoDescription   string     `json:"todo_description,omitempty"`
	CategoryID        *uuid.UUID `json:"category_id,omitempty"`
	DueDateOffsetDays *int       `json:"due_date_offset_days,omitempty"`
	Priority          string     `json:"priority,omitempty"`
}

// Rule is a user-authored condition → action mapping. Conditions is opaque
// JSON text owned by the rule store; it is decoded once per snapshot load,
// never per evaluation.
type Rule struct {
	ID                    uuid.UUID
	Name                  string
	Description           string
	SourceType            RuleSourceType
	Conditions            string
	Action                DecisionType
	ActionParams          *ActionParams
	Priority              int
	IsActive              bool
	CreatedFromDecisionID *uuid.UUID
	MatchCount            int
	LastMatchedAt         *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}
