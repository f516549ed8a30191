// gemini.go - Gemini invoice OCR, label reading and invoice structuring

package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bosocmputer/invoice_labeler/configs"
	"github.com/bosocmputer/invoice_labeler/internal/common"
	"github.com/bosocmputer/invoice_labeler/internal/ratelimit"
	"github.com/bosocmputer/invoice_labeler/internal/reconcile"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const providerGemini = "gemini"

// maxOutputTokens is Gemini's output ceiling; set explicitly to avoid silent truncation.
const maxOutputTokens int32 = 8192

// GeminiProvider implements OCRProvider and Structurer on the Gemini API.
type GeminiProvider struct {
	client         *genai.Client
	ocrModel       string
	structureModel string
	retry          RetryConfig
	limiter        waiter
}

// globalLimiter adapts the process-wide Gemini limiter.
type globalLimiter struct{}

func (globalLimiter) Wait(ctx context.Context) error {
	return ratelimit.WaitForRateLimit(ctx)
}

// NewGeminiProvider creates a Gemini client shared by all calls of this provider.
func NewGeminiProvider(ctx context.Context, apiKey, ocrModel, structureModel string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	retry := DefaultRetryConfig
	if configs.GEMINI_MAX_RETRIES > 0 {
		retry.MaxAttempts = configs.GEMINI_MAX_RETRIES
	}

	return &GeminiProvider{
		client:         client,
		ocrModel:       ocrModel,
		structureModel: structureModel,
		retry:          retry,
		limiter:        globalLimiter{},
	}, nil
}

// Close releases the underlying client.
func (g *GeminiProvider) Close() error {
	return g.client.Close()
}

// GetProviderName returns "gemini"
func (g *GeminiProvider) GetProviderName() string {
	return providerGemini
}

// ReadInvoice reads every invoice line with a per-line confidence. When the
// JSON answer cannot be parsed it falls back to a plain-text read, whose lines
// carry no confidence.
func (g *GeminiProvider) ReadInvoice(ctx context.Context, image []byte, mimeType string, reqCtx *common.RequestContext) (*InvoiceOCR, *common.TokenUsage, error) {
	ctx, cancel := context.WithTimeout(ctx, seconds(configs.OCR_TIMEOUT))
	defer cancel()

	reqCtx.StartSubStep("configure_model")
	model := g.client.GenerativeModel(g.ocrModel)
	model.GenerationConfig = genai.GenerationConfig{
		MaxOutputTokens: int32Ptr(maxOutputTokens),
	}
	model.SetTemperature(0)
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = invoiceLinesSchema()
	reqCtx.EndSubStep(g.ocrModel)

	reqCtx.StartSubStep("call_gemini_api")
	resp, err := callWithRetry(ctx, providerGemini, func(ctx context.Context) (*genai.GenerateContentResponse, error) {
		return model.GenerateContent(ctx, genai.Text(GetInvoiceOCRPrompt()), genai.Blob{MIMEType: mimeType, Data: image})
	}, g.limiter, reqCtx, g.retry)
	if err != nil {
		reqCtx.EndSubStep("failed")
		return nil, nil, err
	}
	reqCtx.EndSubStep("")

	reqCtx.StartSubStep("parse_json_response")
	usage := responseUsage(resp, common.CalculateOCRTokenCost)
	result := &InvoiceOCR{Engine: providerGemini, Model: g.ocrModel, IsPartial: truncated(resp)}
	if result.IsPartial {
		result.Warning = "OCR response was truncated due to token limit. Lines may be incomplete."
		reqCtx.LogWarning("OCR response was truncated (FinishReason: MAX_TOKENS)")
	}

	text := responseText(resp)
	lines, parseErr := parseInvoiceLines(text)
	if parseErr == nil {
		result.Lines = lines
		reqCtx.EndSubStep(fmt.Sprintf("%d lines", len(lines)))
		return result, usage, nil
	}
	reqCtx.EndSubStep("json parse failed")
	reqCtx.LogWarning("Failed to parse OCR JSON (%v), trying plain text read", parseErr)

	reqCtx.StartSubStep("fallback_plain_text_ocr")
	plain, plainUsage, err := g.readPlainText(ctx, g.ocrModel, GetInvoiceOCRPrompt(), image, mimeType, reqCtx)
	if err != nil {
		reqCtx.EndSubStep("failed")
		return nil, nil, fmt.Errorf("JSON parse failed and plain text fallback failed: %w (original error: %v)", err, parseErr)
	}
	reqCtx.EndSubStep("")

	for _, l := range plain {
		result.Lines = append(result.Lines, reconcile.TextLine(l))
	}
	result.Warning = strings.TrimSpace(result.Warning + " Structured OCR answer was unreadable, plain text fallback used.")
	return result, sumUsage(usage, plainUsage), nil
}

// ReadLabel reads the text printed on a product photo.
func (g *GeminiProvider) ReadLabel(ctx context.Context, image []byte, mimeType string, reqCtx *common.RequestContext) ([]string, *common.TokenUsage, error) {
	ctx, cancel := context.WithTimeout(ctx, seconds(configs.OCR_TIMEOUT))
	defer cancel()

	return g.readPlainText(ctx, g.ocrModel, GetLabelOCRPrompt(), image, mimeType, reqCtx)
}

func (g *GeminiProvider) readPlainText(ctx context.Context, modelName, prompt string, image []byte, mimeType string, reqCtx *common.RequestContext) ([]string, *common.TokenUsage, error) {
	model := g.client.GenerativeModel(modelName)
	model.GenerationConfig = genai.GenerationConfig{
		MaxOutputTokens: int32Ptr(maxOutputTokens),
	}
	model.SetTemperature(0)

	resp, err := callWithRetry(ctx, providerGemini, func(ctx context.Context) (*genai.GenerateContentResponse, error) {
		return model.GenerateContent(ctx, genai.Text(prompt), genai.Blob{MIMEType: mimeType, Data: image})
	}, g.limiter, reqCtx, g.retry)
	if err != nil {
		return nil, nil, err
	}

	return splitTextLines(responseText(resp)), responseUsage(resp, common.CalculateOCRTokenCost), nil
}

// StructureInvoice asks the structuring model for the invoice JSON. The answer
// is returned with markdown fences removed but otherwise untouched.
func (g *GeminiProvider) StructureInvoice(ctx context.Context, normalizedText string, reqCtx *common.RequestContext) (string, *common.TokenUsage, error) {
	if strings.TrimSpace(normalizedText) == "" {
		return "", nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, seconds(configs.STRUCTURE_TIMEOUT))
	defer cancel()

	model := g.client.GenerativeModel(g.structureModel)
	model.GenerationConfig = genai.GenerationConfig{
		MaxOutputTokens: int32Ptr(maxOutputTokens),
	}
	model.SetTemperature(0)
	model.ResponseMIMEType = "application/json"

	reqCtx.StartSubStep("call_gemini_api")
	resp, err := callWithRetry(ctx, providerGemini, func(ctx context.Context) (*genai.GenerateContentResponse, error) {
		return model.GenerateContent(ctx, genai.Text(BuildStructurePrompt(normalizedText)))
	}, g.limiter, reqCtx, g.retry)
	if err != nil {
		reqCtx.EndSubStep("failed")
		return "", nil, err
	}
	reqCtx.EndSubStep(g.structureModel)

	return stripCodeFence(responseText(resp)), responseUsage(resp, common.CalculateStructureTokenCost), nil
}

// invoiceLinesSchema is {"lines":[{"text":string,"confidence":number}]}.
func invoiceLinesSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"lines": {
				Type:        genai.TypeArray,
				Description: "Every printed line of the invoice in reading order",
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"text": {
							Type:        genai.TypeString,
							Description: "The line exactly as printed",
						},
						"confidence": {
							Type:        genai.TypeNumber,
							Description: "Confidence between 0 and 1 that the text is read correctly",
						},
					},
					Required: []string{"text"},
				},
			},
		},
		Required: []string{"lines"},
	}
}

var errNoLines = errors.New("response has no lines array")

// parseInvoiceLines decodes the JSON OCR answer.
func parseInvoiceLines(text string) ([]reconcile.OcrLine, error) {
	text = fixJSONEscaping(stripCodeFence(text))
	if text == "" {
		return nil, &ProviderError{Provider: providerGemini, Category: CategoryEmptyResponse, Message: "empty response from Gemini API"}
	}

	var out struct {
		Lines []reconcile.OcrLine `json:"lines"`
	}
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, err
	}
	if out.Lines == nil {
		return nil, errNoLines
	}
	return out.Lines, nil
}

// fixJSONEscaping escapes raw control characters inside JSON string literals.
// Gemini sometimes emits literal newlines and tabs inside strings, which the
// JSON parser rejects.
func fixJSONEscaping(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inString, escaped := false, false
	for _, ch := range s {
		switch {
		case !inString:
			if ch == '"' {
				inString = true
			}
			b.WriteRune(ch)
		case escaped:
			escaped = false
			b.WriteRune(ch)
		case ch == '\\':
			escaped = true
			b.WriteRune(ch)
		case ch == '"':
			inString = false
			b.WriteRune(ch)
		case ch == '\n':
			b.WriteString(`\n`)
		case ch == '\r':
			b.WriteString(`\r`)
		case ch == '\t':
			b.WriteString(`\t`)
		case ch < 0x20:
			fmt.Fprintf(&b, `\u%04x`, ch)
		default:
			b.WriteRune(ch)
		}
	}
	return b.String()
}

// stripCodeFence removes a surrounding ```json ... ``` block.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```JSON")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// splitTextLines splits model text into trimmed, non-empty lines.
func splitTextLines(text string) []string {
	var out []string
	for _, line := range strings.Split(stripCodeFence(text), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return b.String()
}

func truncated(resp *genai.GenerateContentResponse) bool {
	return resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason == genai.FinishReasonMaxTokens
}

func responseUsage(resp *genai.GenerateContentResponse, price func(in, out int) common.TokenUsage) *common.TokenUsage {
	if resp == nil || resp.UsageMetadata == nil {
		return nil
	}
	usage := price(int(resp.UsageMetadata.PromptTokenCount), int(resp.UsageMetadata.CandidatesTokenCount))
	return &usage
}

func sumUsage(a, b *common.TokenUsage) *common.TokenUsage {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	total := *a
	total.Add(*b)
	return &total
}

func seconds(n int) time.Duration {
	if n <= 0 {
		n = 60
	}
	return time.Duration(n) * time.Second
}

func int32Ptr(i int32) *int32 {
	return &i
}
