// interface.go - OCR Provider Interface for supporting multiple AI providers

package ai

import (
	"context"

	"github.com/bosocmputer/invoice_labeler/internal/common"
	"github.com/bosocmputer/invoice_labeler/internal/reconcile"
)

// OCRProvider defines the interface that all OCR providers must implement
// so Gemini and Mistral can be swapped behind the same handlers.
type OCRProvider interface {
	// ReadInvoice reads every line of an invoice image.
	ReadInvoice(ctx context.Context, image []byte, mimeType string, reqCtx *common.RequestContext) (*InvoiceOCR, *common.TokenUsage, error)

	// ReadLabel reads the text printed on a product photo, most prominent line first.
	ReadLabel(ctx context.Context, image []byte, mimeType string, reqCtx *common.RequestContext) ([]string, *common.TokenUsage, error)

	// GetProviderName returns the name of the provider (e.g., "gemini", "mistral")
	GetProviderName() string
}

// Structurer turns normalized invoice text into the structured invoice JSON.
// The raw model output is returned as-is, even when it is not valid JSON.
type Structurer interface {
	StructureInvoice(ctx context.Context, normalizedText string, reqCtx *common.RequestContext) (string, *common.TokenUsage, error)
}

// InvoiceOCR is the result of reading one invoice image.
type InvoiceOCR struct {
	Lines     []reconcile.OcrLine `json:"ocr_lines"`
	Engine    string              `json:"engine"`
	Model     string              `json:"model"`
	IsPartial bool                `json:"is_partial"`
	Warning   string              `json:"warning,omitempty"`
}

// Texts returns the text of every line that has some.
func (r *InvoiceOCR) Texts() []string {
	out := make([]string, 0, len(r.Lines))
	for _, l := range r.Lines {
		if t := reconcile.ExtractText(l); t != "" {
			out = append(out, t)
		}
	}
	return out
}
