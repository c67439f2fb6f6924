package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fetchcore/fetchengine/pkg/types"
)

func strp(s string) *string { return &s }

func TestResolver_FirstMatchWins(t *testing.T) {
	r, err := New([]types.PolicyRule{
		{Name: "api", Match: types.MatchCriteria{StartsWith: strp("/api/")}, TTL: time.Second},
		{Name: "catch-all", Match: types.MatchCriteria{StartsWith: strp("/")}, TTL: 2 * time.Second},
	})
	require.NoError(t, err)

	rule := r.Resolve("/api/users", types.MethodGet)
	require.NotNil(t, rule)
	assert.Equal(t, "api", rule.Name)

	rule = r.Resolve("/other", types.MethodGet)
	require.NotNil(t, rule)
	assert.Equal(t, "catch-all", rule.Name)
}

func TestResolver_ANDCombinesCriteria(t *testing.T) {
	r, err := New([]types.PolicyRule{
		{Name: "both", Match: types.MatchCriteria{StartsWith: strp("/api/"), EndsWith: strp(".json")}},
	})
	require.NoError(t, err)

	assert.NotNil(t, r.Resolve("/api/x.json", types.MethodGet))
	assert.Nil(t, r.Resolve("/api/x.xml", types.MethodGet))
	assert.Nil(t, r.Resolve("/other/x.json", types.MethodGet))
}

func TestResolver_RejectsRuleWithoutCriteria(t *testing.T) {
	_, err := New([]types.PolicyRule{{Name: "empty"}})
	require.Error(t, err)
}

func TestResolver_NoMatchReturnsNil(t *testing.T) {
	r, err := New([]types.PolicyRule{
		{Name: "x", Match: types.MatchCriteria{Is: strp("/only")}},
	})
	require.NoError(t, err)

	assert.Nil(t, r.Resolve("/nope", types.MethodGet))
}

func TestResolver_SetRulesInvalidatesCache(t *testing.T) {
	r, err := New([]types.PolicyRule{
		{Name: "a", Match: types.MatchCriteria{Is: strp("/x")}},
	})
	require.NoError(t, err)
	require.NotNil(t, r.Resolve("/x", types.MethodGet))

	require.NoError(t, r.SetRules([]types.PolicyRule{
		{Name: "b", Match: types.MatchCriteria{Is: strp("/y")}},
	}))

	assert.Nil(t, r.Resolve("/x", types.MethodGet))
	assert.NotNil(t, r.Resolve("/y", types.MethodGet))
}

func TestResolver_RegexMatch(t *testing.T) {
	r, err := New([]types.PolicyRule{
		{Name: "re", Match: types.MatchCriteria{Match: strp(`^/v\d+/`)}},
	})
	require.NoError(t, err)

	assert.NotNil(t, r.Resolve("/v1/users", types.MethodGet))
	assert.Nil(t, r.Resolve("/vX/users", types.MethodGet))
}
