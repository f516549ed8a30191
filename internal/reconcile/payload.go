// payload.go - Upstream OCR/LLM response payload and its lenient JSON decoding.
//
// Every field of the upstream response is optional and may arrive with an
// unexpected type. Shapes are resolved here, once, so the rest of the package
// only deals with typed values.

package reconcile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// LineKind tags the shape an OCR line arrived in.
type LineKind uint8

const (
	// KindUnknown is any JSON value we cannot read text from (number, null, array...)
	KindUnknown LineKind = iota
	// KindText is a bare JSON string
	KindText
	// KindScored is an object with a text field and optional confidence
	KindScored
)

func (k LineKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindScored:
		return "scored"
	default:
		return "unknown"
	}
}

// OcrLine is one raw OCR line. Confidence is already normalized into [0,1];
// nil means the line carries no usable confidence.
type OcrLine struct {
	Kind       LineKind
	Text       string
	Confidence *float64
}

// TextLine builds a bare string line.
func TextLine(text string) OcrLine {
	return OcrLine{Kind: KindText, Text: text}
}

// ScoredLine builds a record line with a raw confidence value, normalized the
// same way decoded lines are.
func ScoredLine(text string, confidence float64) OcrLine {
	return OcrLine{Kind: KindScored, Text: text, Confidence: NormalizeConfidence(confidence)}
}

// UnmarshalJSON accepts a string, an object {text, confidence} or anything
// else. It never fails on valid JSON.
func (l *OcrLine) UnmarshalJSON(data []byte) error {
	*l = OcrLine{Kind: KindUnknown}
	if isNull(data) {
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		l.Kind = KindText
		l.Text = s
		return nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil || obj == nil {
		return nil
	}

	l.Kind = KindScored
	if raw, ok := obj["text"]; ok {
		var text string
		if json.Unmarshal(raw, &text) == nil {
			l.Text = text
		}
	}
	if raw, ok := obj["confidence"]; ok {
		l.Confidence = decodeConfidence(raw)
	}
	return nil
}

// MarshalJSON writes the line back in the upstream shape.
func (l OcrLine) MarshalJSON() ([]byte, error) {
	switch l.Kind {
	case KindText:
		return json.Marshal(l.Text)
	case KindScored:
		out := map[string]interface{}{"text": l.Text}
		if l.Confidence != nil {
			out["confidence"] = *l.Confidence
		}
		return json.Marshal(out)
	default:
		return []byte("null"), nil
	}
}

// leadingFloat matches the numeric prefix of strings like "85%" or "0.9 pct".
var leadingFloat = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)

// parseLeadingFloat reads the longest numeric prefix of s, ignoring leading
// whitespace and whatever follows the number.
func parseLeadingFloat(s string) (float64, bool) {
	m := leadingFloat.FindString(strings.TrimSpace(s))
	if m == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// decodeConfidence resolves a raw confidence value: numbers and strings that
// start with a number are normalized, anything else is treated as absent.
func decodeConfidence(raw json.RawMessage) *float64 {
	if isNull(raw) {
		return nil
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return NormalizeConfidence(n)
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		parsed, ok := parseLeadingFloat(s)
		if !ok {
			return nil
		}
		return NormalizeConfidence(parsed)
	}

	return nil
}

// LegacyLines is the older line format: a JSON array of arbitrary values or a
// newline-delimited string. Values holds the display text of each entry.
type LegacyLines struct {
	Values []string
}

// UnmarshalJSON never fails on valid JSON; unsupported shapes decode empty.
func (ll *LegacyLines) UnmarshalJSON(data []byte) error {
	ll.Values = nil

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		ll.Values = splitLines(s)
		return nil
	}

	var arr []json.RawMessage
	if err := json.Unmarshal(data, &arr); err != nil {
		return nil
	}
	ll.Values = displayValues(arr)
	return nil
}

// MarshalJSON writes the entries as a string array.
func (ll LegacyLines) MarshalJSON() ([]byte, error) {
	if ll.Values == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(ll.Values)
}

// displayValues turns arbitrary JSON array entries into display strings.
// Strings are kept verbatim, nulls dropped, other values shown as compact JSON.
func displayValues(arr []json.RawMessage) []string {
	out := make([]string, 0, len(arr))
	for _, raw := range arr {
		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
			continue
		}
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			out = append(out, s)
			continue
		}
		var buf bytes.Buffer
		if err := json.Compact(&buf, trimmed); err != nil {
			out = append(out, string(trimmed))
			continue
		}
		out = append(out, buf.String())
	}
	return out
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, "\n")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimRight(p, "\r"))
	}
	return out
}

// StructuredKind tags how the structured (LLM) result arrived.
type StructuredKind uint8

const (
	// StructuredAbsent means the field was missing, null or an empty string
	StructuredAbsent StructuredKind = iota
	// StructuredEncoded means a string holding JSON text that still needs parsing
	StructuredEncoded
	// StructuredValue means an already-decoded JSON value
	StructuredValue
)

// StructuredResult is the LLM-normalized invoice, either still encoded as a
// JSON string or already a JSON value.
type StructuredResult struct {
	Kind StructuredKind
	// Encoded is the JSON text for StructuredEncoded
	Encoded string
	// Value is the raw JSON for StructuredValue
	Value json.RawMessage
}

// EncodedStructured wraps a JSON-encoded string.
func EncodedStructured(s string) StructuredResult {
	if strings.TrimSpace(s) == "" {
		return StructuredResult{}
	}
	return StructuredResult{Kind: StructuredEncoded, Encoded: s}
}

// UnmarshalJSON never fails on valid JSON.
func (sr *StructuredResult) UnmarshalJSON(data []byte) error {
	*sr = StructuredResult{}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		*sr = EncodedStructured(s)
		return nil
	}

	sr.Kind = StructuredValue
	sr.Value = append(json.RawMessage(nil), trimmed...)
	return nil
}

// MarshalJSON writes the result back in the shape it arrived in.
func (sr StructuredResult) MarshalJSON() ([]byte, error) {
	switch sr.Kind {
	case StructuredEncoded:
		return json.Marshal(sr.Encoded)
	case StructuredValue:
		return sr.Value, nil
	default:
		return []byte("null"), nil
	}
}

// TableRow is one row of the raw OCR table.
type TableRow struct {
	Description string `json:"description,omitempty"`
	Qty         string `json:"qty,omitempty"`
	Price       string `json:"price,omitempty"`
}

// OcrRaw is the layout-aware OCR output (header, table, total).
type OcrRaw struct {
	Header  map[string]string `json:"header,omitempty"`
	Table   []TableRow        `json:"table,omitempty"`
	Total   string            `json:"total,omitempty"`
	RawText string            `json:"raw_text,omitempty"`
	Engine  string            `json:"engine,omitempty"`
}

// UnmarshalJSON tolerates missing or wrong-typed members.
func (o *OcrRaw) UnmarshalJSON(data []byte) error {
	*o = OcrRaw{}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil || obj == nil {
		return nil
	}

	if raw, ok := obj["table"]; ok {
		var rows []json.RawMessage
		if json.Unmarshal(raw, &rows) == nil {
			for _, r := range rows {
				var fields map[string]json.RawMessage
				if json.Unmarshal(r, &fields) != nil || fields == nil {
					o.Table = append(o.Table, TableRow{})
					continue
				}
				o.Table = append(o.Table, TableRow{
					Description: stringField(fields, "description"),
					Qty:         stringField(fields, "qty"),
					Price:       stringField(fields, "price"),
				})
			}
		}
	}
	if raw, ok := obj["header"]; ok {
		var header map[string]json.RawMessage
		if json.Unmarshal(raw, &header) == nil && len(header) > 0 {
			o.Header = make(map[string]string, len(header))
			for k := range header {
				if v := stringField(header, k); v != "" {
					o.Header[k] = v
				}
			}
		}
	}
	o.Total = stringField(obj, "total")
	o.RawText = stringField(obj, "raw_text")
	o.Engine = stringField(obj, "engine")
	return nil
}

// stringField reads a string member, returning "" for any other type.
func stringField(obj map[string]json.RawMessage, key string) string {
	raw, ok := obj[key]
	if !ok {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

// Payload is one upstream OCR/LLM response. Any field may be absent.
type Payload struct {
	OcrLines         []OcrLine        `json:"ocr_lines,omitempty"`
	Lines            *LegacyLines     `json:"lines,omitempty"`
	Text             string           `json:"text,omitempty"`
	NormalizedText   string           `json:"normalized_text,omitempty"`
	Structured       StructuredResult `json:"structured"`
	ItemsForDropdown []string         `json:"items_for_dropdown,omitempty"`
	Sample           []string         `json:"sample,omitempty"`
	OcrRaw           *OcrRaw          `json:"ocr_raw,omitempty"`
	Detail           string           `json:"detail,omitempty"`
}

// ErrNotObject is returned when the payload document is not a JSON object.
var ErrNotObject = errors.New("payload is not a JSON object")

// DecodePayload decodes an upstream response body. Individual fields never
// cause an error; only a document that is not a JSON object does.
func DecodePayload(data []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{}, err
	}
	return p, nil
}

// UnmarshalJSON decodes each member on its own so one bad field cannot take
// the others down with it.
func (p *Payload) UnmarshalJSON(data []byte) error {
	*p = Payload{}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil || obj == nil {
		return fmt.Errorf("%w: %v", ErrNotObject, describeJSONError(err))
	}

	if raw, ok := obj["ocr_lines"]; ok {
		var lines []OcrLine
		if json.Unmarshal(raw, &lines) == nil {
			p.OcrLines = lines
		}
	}
	if raw, ok := obj["lines"]; ok && !isNull(raw) {
		var ll LegacyLines
		_ = json.Unmarshal(raw, &ll)
		p.Lines = &ll
	}
	p.Text = stringField(obj, "text")
	p.NormalizedText = stringField(obj, "normalized_text")
	if raw, ok := obj["structured"]; ok {
		_ = json.Unmarshal(raw, &p.Structured)
	}
	if raw, ok := obj["items_for_dropdown"]; ok {
		p.ItemsForDropdown = stringsOnly(raw)
	}
	if raw, ok := obj["sample"]; ok {
		var arr []json.RawMessage
		if json.Unmarshal(raw, &arr) == nil {
			p.Sample = displayValues(arr)
		}
	}
	if raw, ok := obj["ocr_raw"]; ok && !isNull(raw) {
		var o OcrRaw
		_ = json.Unmarshal(raw, &o)
		p.OcrRaw = &o
	}
	p.Detail = stringField(obj, "detail")
	return nil
}

// stringsOnly keeps the string entries of a JSON array.
func stringsOnly(raw json.RawMessage) []string {
	var arr []json.RawMessage
	if json.Unmarshal(raw, &arr) != nil {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, v := range arr {
		var s string
		if isNull(v) {
			continue
		}
		if json.Unmarshal(v, &s) == nil {
			out = append(out, s)
		}
	}
	return out
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func describeJSONError(err error) string {
	if err == nil {
		return "null document"
	}
	return err.Error()
}
