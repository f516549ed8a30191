// mistral.go - Mistral AI client for OCR processing

package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/bosocmputer/invoice_labeler/configs"
	"github.com/bosocmputer/invoice_labeler/internal/common"
	"github.com/bosocmputer/invoice_labeler/internal/reconcile"
)

const providerMistral = "mistral"

// mistralCostPerPage is $2 per 1,000 pages.
const mistralCostPerPage = 0.002

// MistralProvider implements OCRProvider interface for Mistral AI
type MistralProvider struct {
	apiKey    string
	modelName string
	baseURL   string
	client    *http.Client
}

// NewMistralProvider creates a new Mistral AI provider
func NewMistralProvider(apiKey, modelName, baseURL string) *MistralProvider {
	if baseURL == "" {
		baseURL = "https://api.mistral.ai"
	}
	return &MistralProvider{
		apiKey:    apiKey,
		modelName: modelName,
		baseURL:   strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// GetProviderName returns "mistral"
func (m *MistralProvider) GetProviderName() string {
	return providerMistral
}

type mistralOCRDocument struct {
	Type     string `json:"type"`
	ImageURL string `json:"image_url,omitempty"`
}

type mistralOCRRequest struct {
	Model    string             `json:"model"`
	Document mistralOCRDocument `json:"document"`
}

type mistralOCRPage struct {
	Index    int    `json:"index"`
	Markdown string `json:"markdown"`
}

type mistralOCRUsageInfo struct {
	PagesProcessed int `json:"pages_processed"`
	DocSizeBytes   int `json:"doc_size_bytes,omitempty"`
}

type mistralOCRResponse struct {
	Model     string              `json:"model"`
	Pages     []mistralOCRPage    `json:"pages"`
	UsageInfo mistralOCRUsageInfo `json:"usage_info"`
}

type mistralErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
	Message string `json:"message"`
}

// ReadInvoice reads the invoice as markdown and returns its lines. Mistral
// reports no per-line confidence, so lines are bare text.
func (m *MistralProvider) ReadInvoice(ctx context.Context, image []byte, mimeType string, reqCtx *common.RequestContext) (*InvoiceOCR, *common.TokenUsage, error) {
	lines, usage, model, err := m.read(ctx, image, mimeType, reqCtx)
	if err != nil {
		return nil, nil, err
	}

	result := &InvoiceOCR{Engine: providerMistral, Model: model}
	for _, l := range lines {
		result.Lines = append(result.Lines, reconcile.TextLine(l))
	}
	return result, usage, nil
}

// ReadLabel reads the package text of a product photo.
func (m *MistralProvider) ReadLabel(ctx context.Context, image []byte, mimeType string, reqCtx *common.RequestContext) ([]string, *common.TokenUsage, error) {
	lines, usage, _, err := m.read(ctx, image, mimeType, reqCtx)
	return lines, usage, err
}

func (m *MistralProvider) read(ctx context.Context, image []byte, mimeType string, reqCtx *common.RequestContext) ([]string, *common.TokenUsage, string, error) {
	if mimeType == "application/pdf" {
		return nil, nil, "", &ProviderError{
			Provider: providerMistral,
			Category: CategoryBadRequest,
			Message:  "mistral OCR does not accept PDF files sent as base64, upload an image instead",
		}
	}

	request := mistralOCRRequest{
		Model: m.modelName,
		Document: mistralOCRDocument{
			Type:     "image_url",
			ImageURL: fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(image)),
		},
	}

	reqCtx.StartSubStep("mistral_ocr_api_call")
	response, err := m.callMistralOCRAPI(ctx, request)
	if err != nil {
		reqCtx.EndSubStep("failed")
		return nil, nil, "", err
	}
	reqCtx.EndSubStep(fmt.Sprintf("%d page(s)", len(response.Pages)))

	if len(response.Pages) == 0 {
		return nil, nil, "", &ProviderError{Provider: providerMistral, Category: CategoryEmptyResponse, Message: "no pages returned from Mistral OCR API"}
	}

	var lines []string
	for _, page := range response.Pages {
		lines = append(lines, markdownLines(page.Markdown)...)
	}

	// pages are billed, stored as input "tokens"
	pages := response.UsageInfo.PagesProcessed
	costUSD := float64(pages) * mistralCostPerPage
	usage := &common.TokenUsage{
		InputTokens: pages,
		TotalTokens: pages,
		CostUSD:     costUSD,
		CostTHB:     costUSD * configs.USD_TO_THB,
	}

	return lines, usage, response.Model, nil
}

// callMistralOCRAPI makes HTTP request to Mistral OCR API
func (m *MistralProvider) callMistralOCRAPI(ctx context.Context, request mistralOCRRequest) (*mistralOCRResponse, error) {
	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/v1/ocr", bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, categorizeError(providerMistral, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		pe := &ProviderError{Provider: providerMistral}
		msg := mistralErrorMessage(body)
		categorizeStatus(pe, resp.StatusCode, msg)
		if msg != "" {
			pe.Message = msg
		}
		return nil, pe
	}

	var response mistralOCRResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse OCR response: %w", err)
	}
	return &response, nil
}

// mistralErrorMessage prefers the JSON error message and falls back to the raw body.
func mistralErrorMessage(body []byte) string {
	var errorResp mistralErrorResponse
	if err := json.Unmarshal(body, &errorResp); err == nil {
		if errorResp.Error.Message != "" {
			return errorResp.Error.Message
		}
		if errorResp.Message != "" {
			return errorResp.Message
		}
	}
	return strings.TrimSpace(string(body))
}

var (
	tableSeparatorRe = regexp.MustCompile(`^\|?\s*:?-{3,}:?\s*(\|\s*:?-{3,}:?\s*)*\|?$`)
	markdownImageRe  = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
)

// markdownLines flattens OCR markdown into plain text lines. Table rows become
// their cells joined by spaces.
func markdownLines(md string) []string {
	var out []string
	for _, raw := range strings.Split(md, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || tableSeparatorRe.MatchString(line) {
			continue
		}

		line = markdownImageRe.ReplaceAllString(line, "")
		line = strings.TrimLeft(line, "#>")
		line = strings.NewReplacer("**", "", "__", "").Replace(line)

		if strings.HasPrefix(line, "|") {
			cells := strings.Split(strings.Trim(line, "|"), "|")
			parts := make([]string, 0, len(cells))
			for _, c := range cells {
				if c = strings.TrimSpace(c); c != "" {
					parts = append(parts, c)
				}
			}
			line = strings.Join(parts, " ")
		}

		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
