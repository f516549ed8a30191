package reconcile

import "strings"

// NormalizeConfidence maps a raw OCR confidence into [0,1]. Engines report
// either a 0-1 probability or a 0-100 percentage; values in (1,100] are read
// as a percentage.
func NormalizeConfidence(c float64) *float64 {
	if c != c { // NaN
		return nil
	}
	if c > 1 && c <= 100 {
		c = c / 100
	}
	if c < 0 {
		c = 0
	}
	if c > 1 {
		c = 1
	}
	return &c
}

// ExtractText returns the text a line contributes, or "" when it has none.
func ExtractText(line OcrLine) string {
	switch line.Kind {
	case KindText, KindScored:
		return line.Text
	default:
		return ""
	}
}

// ExtractConfidence returns the normalized confidence of a line. Bare string
// lines never carry one.
func ExtractConfidence(line OcrLine) *float64 {
	if line.Kind != KindScored || line.Confidence == nil {
		return nil
	}
	c := *line.Confidence
	return &c
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
