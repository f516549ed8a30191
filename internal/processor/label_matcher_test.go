package processor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeLabelText(t *testing.T) {
	assert.Equal(t, "fresh milk 1.5l", NormalizeLabelText("  FRESH  Milk® 1.5L!! "))
	assert.Equal(t, "", NormalizeLabelText("@@@"))
}

func TestApplyCorrections(t *testing.T) {
	corrections := []Correction{
		{Bad: "M1LK", Good: "MILK"},
		{Bad: "MILK", Good: "Milk"},
		{Bad: "", Good: "ignored"},
	}

	assert.Equal(t, "Fresh Milk", ApplyCorrections("Fresh M1LK", corrections))
}

func TestScoreMatch(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical after normalize", "Fresh Milk!", "fresh milk", 1},
		{"one edit", "milk", "mile", 0.75},
		{"nothing in common", "abc", "xyz", 0},
		{"both empty", "", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, ScoreMatch(tt.a, tt.b), 1e-9)
		})
	}
}

func TestMatchLabel_Auto(t *testing.T) {
	res := MatchLabel("FRESH MILK 1L", []string{"Brown Eggs", "Fresh Milk 1L", "Bread"}, 0.7)

	assert.True(t, res.Found)
	assert.True(t, res.Auto)
	assert.Equal(t, "Fresh Milk 1L", res.Label)
	assert.Equal(t, "exact", res.Method)
	assert.Empty(t, res.Suggestions)
}

func TestMatchLabel_ReviewKeepsTopFive(t *testing.T) {
	candidates := []string{"aaaa", "aaab", "aabb", "abbb", "bbbb", "cccc", "dddd"}

	res := MatchLabel("aaxx", candidates, 0.9)

	assert.False(t, res.Auto)
	require.Len(t, res.Suggestions, MaxSuggestions)
	assert.Equal(t, "aaaa", res.Suggestions[0].Label)
	assert.Equal(t, res.Label, res.Suggestions[0].Label)
	for i := 1; i < len(res.Suggestions); i++ {
		assert.GreaterOrEqual(t, res.Suggestions[i-1].Score, res.Suggestions[i].Score)
	}
}

func TestMatchLabel_NoInput(t *testing.T) {
	assert.Equal(t, "not_found", MatchLabel("", []string{"Milk"}, 0.7).Method)
	assert.Equal(t, "not_found", MatchLabel("Milk", nil, 0.7).Method)
	assert.Equal(t, "not_found", MatchLabel("Milk", []string{"  "}, 0.7).Method)
}

func TestCleanLabel(t *testing.T) {
	assert.Equal(t, "fresh_milk_1l", CleanLabel("  Fresh Milk (1L) "))
	assert.Equal(t, "unknown", CleanLabel("!!!"))
	assert.Equal(t, "unknown", CleanLabel(""))
}
