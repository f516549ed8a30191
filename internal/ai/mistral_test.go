package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bosocmputer/invoice_labeler/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMistralProvider_ReadInvoice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/ocr", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req mistralOCRRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "image_url", req.Document.Type)
		assert.True(t, strings.HasPrefix(req.Document.ImageURL, "data:image/png;base64,"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"model": "mistral-ocr-2505",
			"pages": [{"index":0,"markdown":"# INVOICE 1042\n\n| Item | Qty | Price |\n|---|---|---|\n| Fresh Milk | 2 | 3.50 |\n\n**TOTAL** 7.00"}],
			"usage_info": {"pages_processed": 1}
		}`))
	}))
	defer srv.Close()

	p := NewMistralProvider("secret", "mistral-ocr-latest", srv.URL)
	res, usage, err := p.ReadInvoice(context.Background(), []byte("png"), "image/png", common.NewRequestContext("s"))
	require.NoError(t, err)

	assert.Equal(t, "mistral", res.Engine)
	assert.Equal(t, "mistral-ocr-2505", res.Model)
	assert.Equal(t, []string{"INVOICE 1042", "Item Qty Price", "Fresh Milk 2 3.50", "TOTAL 7.00"}, res.Texts())
	require.NotNil(t, usage)
	assert.Equal(t, 1, usage.InputTokens)
	assert.InDelta(t, 0.002, usage.CostUSD, 1e-9)
}

func TestMistralProvider_ErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid api key"}}`))
	}))
	defer srv.Close()

	p := NewMistralProvider("bad", "m", srv.URL)
	_, _, err := p.ReadLabel(context.Background(), []byte("x"), "image/jpeg", common.NewRequestContext("s"))

	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, CategoryUnauthorized, pe.Category)
	assert.Equal(t, "invalid api key", pe.Message)
	assert.Equal(t, http.StatusUnauthorized, pe.StatusCode)
}

func TestMistralProvider_RejectsPDF(t *testing.T) {
	p := NewMistralProvider("k", "m", "http://127.0.0.1:0")
	_, _, err := p.ReadInvoice(context.Background(), []byte("%PDF"), "application/pdf", common.NewRequestContext("s"))

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, CategoryBadRequest, pe.Category)
}

func TestMistralErrorMessage(t *testing.T) {
	assert.Equal(t, "top level", mistralErrorMessage([]byte(`{"message":"top level"}`)))
	assert.Equal(t, "Bad Gateway", mistralErrorMessage([]byte(" Bad Gateway \n")))
}

func TestMarkdownLines(t *testing.T) {
	md := "## Receipt\n![logo](img-0.jpeg)\n| :--- | ---: |\n|  Eggs  |  12 |\n> note   here\n"

	assert.Equal(t, []string{"Receipt", "Eggs 12", "note here"}, markdownLines(md))
}
