package reconcile

import (
	"fmt"
	"math"
	"strings"
)

// LineSource names the tier the OCR line list was rendered from.
type LineSource string

const (
	LineSourceOCR    LineSource = "ocr_lines"
	LineSourceLegacy LineSource = "lines"
	LineSourceNone   LineSource = "none"
)

// NoLinesPlaceholder is shown when no tier yields a usable line.
const NoLinesPlaceholder = "No lines detected"

// DisplayLine is one entry of the rendered OCR line list.
type DisplayLine struct {
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// ConfidenceLabel formats the confidence as a whole percentage, or "" when
// the line has none.
func (d DisplayLine) ConfidenceLabel() string {
	if d.Confidence == nil {
		return ""
	}
	return fmt.Sprintf("%.0f%%", math.Round(*d.Confidence*100))
}

type lineStrategy struct {
	source LineSource
	derive func(p Payload) []DisplayLine
}

var lineStrategies = []lineStrategy{
	{source: LineSourceOCR, derive: ocrDisplayLines},
	{source: LineSourceLegacy, derive: legacyDisplayLines},
}

// DisplayLines picks the first tier that yields at least one usable line.
// An empty result comes back as LineSourceNone.
func DisplayLines(p Payload) ([]DisplayLine, LineSource) {
	for _, s := range lineStrategies {
		if lines := s.derive(p); len(lines) > 0 {
			return lines, s.source
		}
	}
	return []DisplayLine{}, LineSourceNone
}

func ocrDisplayLines(p Payload) []DisplayLine {
	out := make([]DisplayLine, 0, len(p.OcrLines))
	for _, l := range p.OcrLines {
		text := ExtractText(l)
		if isBlank(text) {
			continue
		}
		out = append(out, DisplayLine{Text: text, Confidence: ExtractConfidence(l)})
	}
	return out
}

// legacyDisplayLines reads `lines`, falling back to the older `text` alias.
func legacyDisplayLines(p Payload) []DisplayLine {
	var values []string
	if p.Lines != nil {
		values = p.Lines.Values
	}
	if len(values) == 0 {
		values = splitLines(p.Text)
	}

	out := make([]DisplayLine, 0, len(values))
	for _, v := range values {
		if isBlank(v) {
			continue
		}
		out = append(out, DisplayLine{Text: v})
	}
	return out
}

// normalizedText returns the normalized OCR text, falling back to the raw
// text of the layout pass.
func normalizedText(p Payload) string {
	if !isBlank(p.NormalizedText) {
		return strings.TrimSpace(p.NormalizedText)
	}
	if p.OcrRaw != nil && !isBlank(p.OcrRaw.RawText) {
		return strings.TrimSpace(p.OcrRaw.RawText)
	}
	return ""
}
