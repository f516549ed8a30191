package common

import (
	"bytes"
	"errors"
	"testing"

	"github.com/bosocmputer/invoice_labeler/configs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestContext_StepsAndTokens(t *testing.T) {
	var buf bytes.Buffer
	rc := NewRequestContextWithLogger(NewLogger(&buf, "debug", "json"), "session-1")

	rc.StartStep("ocr")
	rc.StartSubStep("call_gemini_api")
	rc.EndSubStep("12 lines")
	rc.EndStep(StatusSuccess, &TokenUsage{InputTokens: 100, OutputTokens: 20, TotalTokens: 120, CostTHB: 1.5}, nil)

	rc.StartStep("structure")
	rc.EndStep(StatusFailed, &TokenUsage{InputTokens: 5, TotalTokens: 5}, errors.New("quota"))

	require.Len(t, rc.Steps, 2)
	assert.Equal(t, "ocr", rc.Steps[0].Name)
	require.Len(t, rc.Steps[0].SubSteps, 1)
	assert.Equal(t, "12 lines", rc.Steps[0].SubSteps[0].Details)
	assert.Equal(t, "quota", rc.Steps[1].Error)
	assert.Equal(t, 125, rc.Tokens.TotalTokens)

	out := buf.String()
	assert.Contains(t, out, `"request_id":"`+rc.RequestID+`"`)
	assert.Contains(t, out, `"session_id":"session-1"`)
	assert.Contains(t, out, `"step":"structure"`)
	assert.Contains(t, out, `"sub_step":"call_gemini_api"`)

	summary := rc.Summary()
	assert.Equal(t, "session-1", summary.SessionID)
	assert.Len(t, summary.Steps, 2)
	assert.Equal(t, []string{"ocr"}, summary.Completed)
	assert.Empty(t, summary.Running)
	assert.Equal(t, 125, summary.Tokens.TotalTokens)
}

func TestRequestContext_OpenStep(t *testing.T) {
	rc := NewRequestContextWithLogger(NewLogger(&bytes.Buffer{}, "info", "json"), "")

	rc.StartStep("ocr")
	assert.Equal(t, "ocr", rc.Summary().Running)

	// starting another step closes the open one
	rc.StartStep("structure")
	require.Len(t, rc.Steps, 1)
	assert.Equal(t, StatusSkipped, rc.Steps[0].Status)

	// sub-step and step ends without a start are ignored
	rc.EndSubStep("nothing")
	rc.EndStep(StatusSuccess, nil, nil)
	rc.EndStep(StatusSuccess, nil, nil)
	assert.Len(t, rc.Steps, 2)
}

func TestCalculateTokenCost(t *testing.T) {
	configs.OCR_INPUT_PRICE_PER_MILLION = 1
	configs.OCR_OUTPUT_PRICE_PER_MILLION = 2
	configs.STRUCTURE_INPUT_PRICE_PER_MILLION = 0.5
	configs.STRUCTURE_OUTPUT_PRICE_PER_MILLION = 0.5
	configs.USD_TO_THB = 10

	ocr := CalculateOCRTokenCost(1_000_000, 500_000)
	assert.Equal(t, 1_500_000, ocr.TotalTokens)
	assert.InDelta(t, 2.0, ocr.CostUSD, 1e-9)
	assert.InDelta(t, 20.0, ocr.CostTHB, 1e-9)

	st := CalculateStructureTokenCost(2_000_000, 0)
	assert.InDelta(t, 1.0, st.CostUSD, 1e-9)
}

func TestNewLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "warn", "json")

	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}
