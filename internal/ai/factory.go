// factory.go - OCR Provider Factory for creating provider instances

package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/bosocmputer/invoice_labeler/configs"
	"github.com/bosocmputer/invoice_labeler/internal/common"
	"github.com/rs/zerolog/log"
)

// Providers bundles what the API needs from the AI layer.
type Providers struct {
	OCR        OCRProvider
	Structurer Structurer

	gemini *GeminiProvider
}

// Close releases provider clients.
func (p *Providers) Close() error {
	if p.gemini != nil {
		return p.gemini.Close()
	}
	return nil
}

// CreateProviders builds the configured OCR provider, with the other engine
// as fallback when its key is set. Structuring always runs on Gemini.
func CreateProviders(ctx context.Context) (*Providers, error) {
	gemini, err := NewGeminiProvider(ctx, configs.GEMINI_API_KEY, configs.OCR_MODEL_NAME, configs.STRUCTURE_MODEL_NAME)
	if err != nil {
		return nil, err
	}

	var mistral *MistralProvider
	if configs.MISTRAL_API_KEY != "" {
		mistral = NewMistralProvider(configs.MISTRAL_API_KEY, configs.MISTRAL_MODEL_NAME, configs.MISTRAL_BASE_URL)
	}

	var primary, fallback OCRProvider
	switch configs.OCR_PROVIDER {
	case providerGemini:
		log.Info().Msg("Creating Gemini OCR provider")
		primary = gemini
		if mistral != nil {
			fallback = mistral
		}
	case providerMistral:
		if mistral == nil {
			gemini.Close()
			return nil, errors.New("OCR_PROVIDER=mistral requires MISTRAL_API_KEY")
		}
		log.Info().Msg("Creating Mistral OCR provider")
		primary, fallback = mistral, gemini
	default:
		gemini.Close()
		return nil, fmt.Errorf("unsupported OCR provider: %s (supported: gemini, mistral)", configs.OCR_PROVIDER)
	}

	ocr := primary
	if fallback != nil {
		log.Info().Str("fallback", fallback.GetProviderName()).Msg("Fallback OCR provider configured")
		ocr = WithFallback(primary, fallback)
	}

	return &Providers{OCR: ocr, Structurer: gemini, gemini: gemini}, nil
}

// fallbackProvider tries primary first and the fallback on any error other
// than cancellation.
type fallbackProvider struct {
	primary  OCRProvider
	fallback OCRProvider
}

// WithFallback wraps two providers so the second is used when the first fails.
func WithFallback(primary, fallback OCRProvider) OCRProvider {
	return &fallbackProvider{primary: primary, fallback: fallback}
}

func (f *fallbackProvider) GetProviderName() string {
	return f.primary.GetProviderName()
}

func (f *fallbackProvider) ReadInvoice(ctx context.Context, image []byte, mimeType string, reqCtx *common.RequestContext) (*InvoiceOCR, *common.TokenUsage, error) {
	res, usage, err := f.primary.ReadInvoice(ctx, image, mimeType, reqCtx)
	if !f.shouldFallback(ctx, err, reqCtx) {
		return res, usage, err
	}
	return f.fallback.ReadInvoice(ctx, image, mimeType, reqCtx)
}

func (f *fallbackProvider) ReadLabel(ctx context.Context, image []byte, mimeType string, reqCtx *common.RequestContext) ([]string, *common.TokenUsage, error) {
	lines, usage, err := f.primary.ReadLabel(ctx, image, mimeType, reqCtx)
	if !f.shouldFallback(ctx, err, reqCtx) {
		return lines, usage, err
	}
	return f.fallback.ReadLabel(ctx, image, mimeType, reqCtx)
}

func (f *fallbackProvider) shouldFallback(ctx context.Context, err error, reqCtx *common.RequestContext) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	reqCtx.LogWarning("%s failed (%v), falling back to %s", f.primary.GetProviderName(), err, f.fallback.GetProviderName())
	return true
}
