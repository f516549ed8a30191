package ai

import (
	"testing"

	"github.com/bosocmputer/invoice_labeler/internal/reconcile"
	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInvoiceLines(t *testing.T) {
	text := "```json\n{\"lines\":[{\"text\":\"Milk\tx2\",\"confidence\":0.93},{\"text\":\"TOTAL 7.00\",\"confidence\":88}]}\n```"

	lines, err := parseInvoiceLines(text)
	require.NoError(t, err)
	require.Len(t, lines, 2)

	assert.Equal(t, "Milk\tx2", reconcile.ExtractText(lines[0]))
	require.NotNil(t, lines[1].Confidence)
	assert.InDelta(t, 0.88, *lines[1].Confidence, 1e-9)
}

func TestParseInvoiceLines_Errors(t *testing.T) {
	_, err := parseInvoiceLines("")
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, CategoryEmptyResponse, pe.Category)

	_, err = parseInvoiceLines(`{"other":1}`)
	assert.ErrorIs(t, err, errNoLines)

	_, err = parseInvoiceLines(`{"lines":[`)
	assert.Error(t, err)
}

func TestFixJSONEscaping(t *testing.T) {
	in := "{\"text\":\"line one\nline two\",\n\"q\":\"say \\\"hi\\\"\"}"

	out := fixJSONEscaping(in)

	assert.Equal(t, "{\"text\":\"line one\\nline two\",\n\"q\":\"say \\\"hi\\\"\"}", out)
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripCodeFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence("```\n{\"a\":1}```"))
	assert.Equal(t, `{not json`, stripCodeFence("  {not json "))
}

func TestSplitTextLines(t *testing.T) {
	assert.Equal(t, []string{"FRESH MILK", "1L"}, splitTextLines("\n FRESH MILK \n\n1L\n"))
	assert.Nil(t, splitTextLines("   "))
}

func TestResponseHelpers(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:      &genai.Content{Parts: []genai.Part{genai.Text("hello "), genai.Text("world")}},
			FinishReason: genai.FinishReasonMaxTokens,
		}},
	}

	assert.Equal(t, "hello world", responseText(resp))
	assert.True(t, truncated(resp))
	assert.Nil(t, responseUsage(resp, nil))
	assert.Equal(t, "", responseText(nil))
}
