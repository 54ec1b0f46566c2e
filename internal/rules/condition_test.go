package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inboxagent/internal/model"
)

func TestDecodeConditionsRoundTrip(t *testing.T) {
	tree := model.ConditionTree{
		Operator: model.OpAnd,
		Clauses: []model.Clause{
			{Field: "sender", Matcher: model.MatcherEquals, Value: "a@b.c"},
		},
	}

	text, err := EncodeConditions(tree)
	require.NoError(t, err)

	decoded, err := DecodeConditions(text)
	require.NoError(t, err)
	assert.Equal(t, tree, decoded)
}

func TestDecodeConditionsOperatorIsCaseInsensitive(t *testing.T) {
	decoded, err := DecodeConditions(`{"operator":"or","clauses":[{"field":"subject","matcher":"contains","value":"x"}]}`)
	require.NoError(t, err)
	assert.Equal(t, model.OpOr, decoded.Operator)
}

func TestDecodeConditionsRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		text string
	}{
		{"not json", "{{"},
		{"unknown operator", `{"operator":"XOR","clauses":[{"field":"subject","matcher":"contains","value":"x"}]}`},
		{"empty clauses", `{"operator":"AND","clauses":[]}`},
		{"unknown matcher", `{"operator":"AND","clauses":[{"field":"subject","matcher":"glob","value":"x"}]}`},
		{"missing field", `{"operator":"AND","clauses":[{"field":"","matcher":"contains","value":"x"}]}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeConditions(tc.text)
			assert.Error(t, err)
		})
	}
}
