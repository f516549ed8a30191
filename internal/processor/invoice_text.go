// invoice_text.go - Layout heuristics over OCR lines: relevance filtering,
// table/header/total extraction and per-line item rows.

package processor

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/bosocmputer/invoice_labeler/internal/reconcile"
)

var (
	whitespaceRe  = regexp.MustCompile(`\s+`)
	keywordRe     = regexp.MustCompile(`(?i)\b(qty|quantity|total|subtotal|tax|amount|price|item|date|due|balance|cash|card|invoice)\b`)
	numberRe      = regexp.MustCompile(`\b\d+[\d.,]*\b`)
	currencyRe    = regexp.MustCompile(`[$€£¥]`)
	tableRowRe    = regexp.MustCompile(`^(.+?)\s+(\d+[\d.,]*)\s+(\d+[\d.,]*)$`)
	invoiceNoRe   = regexp.MustCompile(`(?i)invoice\s*(?:no\.?|number|#)\s*[:#-]?\s*([A-Za-z0-9-]+)`)
	amountRe      = regexp.MustCompile(`-?\d+[\d,.]*`)
	priceTailRe   = regexp.MustCompile(`([0-9]{1,3}(?:,[0-9]{3})*(?:\.[0-9]{2})|\d+\.[0-9]{2}|\d+)$`)
	itemNoRe      = regexp.MustCompile(`^\s*(\d{4,})\b`)
	qtyLabelRe    = regexp.MustCompile(`(?i)\bqty\s*[:x]?\s*(\d+)\b`)
	qtyTimesRe    = regexp.MustCompile(`(?i)\b(\d+)\s*x\b`)
	hundredPcRe   = regexp.MustCompile(`(?i)\b10O?p\b`)
	leadingOpenRe = regexp.MustCompile(`^[{\[(]+(\d)`)
	ocrNoiseRe    = regexp.MustCompile(`[^0-9a-zA-Z\s.\-/%:]`)
)

// datePatterns are tried in order; the first match on the first matching line wins.
var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(\d{1,2}[/-]\d{1,2}[/-]\d{2,4})\b`),
	regexp.MustCompile(`\b(\d{1,2}\s+[A-Za-z]{3,9}\s+\d{4})\b`),
	regexp.MustCompile(`\b([A-Za-z]{3,9}\s+\d{1,2},\s+\d{4})\b`),
}

// Header keys produced by ExtractHeader.
const (
	HeaderInvoiceNo = "invoice_no"
	HeaderDate      = "date"
)

// NormalizeOCRText collapses whitespace, drops lines that carry nothing an
// invoice parser could use, and removes case-insensitive duplicates.
func NormalizeOCRText(lines []string) string {
	seen := make(map[string]struct{}, len(lines))
	kept := make([]string, 0, len(lines))

	for _, line := range lines {
		line = collapseSpaces(line)
		if line == "" || !isRelevantLine(line) {
			continue
		}
		key := strings.ToLower(line)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, line)
	}

	return strings.Join(kept, "\n")
}

func isRelevantLine(line string) bool {
	if keywordRe.MatchString(line) || numberRe.MatchString(line) || currencyRe.MatchString(line) {
		return true
	}
	return strings.Contains(line, " ") && strings.IndexFunc(line, unicode.IsLetter) >= 0
}

func collapseSpaces(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// ExtractTable returns rows shaped "<name> <qty> <price>".
func ExtractTable(lines []string) []reconcile.TableRow {
	rows := make([]reconcile.TableRow, 0)
	for _, line := range lines {
		m := tableRowRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		rows = append(rows, reconcile.TableRow{
			Description: strings.TrimSpace(m[1]),
			Qty:         strings.ReplaceAll(m[2], ",", ""),
			Price:       strings.ReplaceAll(m[3], ",", ""),
		})
	}
	return rows
}

// ExtractHeader finds the invoice number and the first date.
func ExtractHeader(lines []string) map[string]string {
	header := make(map[string]string)

	for _, line := range lines {
		if _, ok := header[HeaderInvoiceNo]; !ok && strings.Contains(strings.ToLower(line), "invoice") {
			if m := invoiceNoRe.FindStringSubmatch(line); m != nil {
				header[HeaderInvoiceNo] = m[1]
			}
		}
		if _, ok := header[HeaderDate]; !ok {
			for _, re := range datePatterns {
				if m := re.FindStringSubmatch(line); m != nil {
					header[HeaderDate] = m[1]
					break
				}
			}
		}
	}

	return header
}

// ExtractTotal takes the last amount on the first "total" line, else the
// first amount anywhere. Commas are removed.
func ExtractTotal(lines []string) string {
	for _, line := range lines {
		if !strings.Contains(strings.ToLower(line), "total") {
			continue
		}
		if amounts := amountRe.FindAllString(line, -1); len(amounts) > 0 {
			return strings.ReplaceAll(amounts[len(amounts)-1], ",", "")
		}
	}
	for _, line := range lines {
		if amount := amountRe.FindString(line); amount != "" {
			return strings.ReplaceAll(amount, ",", "")
		}
	}
	return ""
}

// BuildOCRRaw assembles the layout-aware view of an OCR pass.
func BuildOCRRaw(lines []string, engine string) *reconcile.OcrRaw {
	return &reconcile.OcrRaw{
		Header:  ExtractHeader(lines),
		Table:   ExtractTable(lines),
		Total:   ExtractTotal(lines),
		RawText: strings.Join(lines, "\n"),
		Engine:  engine,
	}
}

// InvoiceRow is a best-effort item row read from a single OCR line.
type InvoiceRow struct {
	ItemNo      string   `json:"item_no,omitempty"`
	Description string   `json:"desc"`
	Qty         int      `json:"qty"`
	Price       *float64 `json:"price,omitempty"`
	Confidence  float64  `json:"confidence"`
	NeedsReview bool     `json:"needs_review"`
}

// CleanOCRLine fixes the OCR misreads seen most often on printed invoices.
func CleanOCRLine(s string) string {
	s = hundredPcRe.ReplaceAllString(s, "100pc")
	s = leadingOpenRe.ReplaceAllString(s, "$1")
	s = ocrNoiseRe.ReplaceAllString(s, " ")
	return collapseSpaces(s)
}

// LineToRow splits a line into item number, description, quantity and price.
// Quantity defaults to 1.
func LineToRow(line string) InvoiceRow {
	clean := CleanOCRLine(line)
	row := InvoiceRow{Qty: 1}
	start, end := 0, len(clean)

	if m := itemNoRe.FindStringSubmatchIndex(clean); m != nil {
		row.ItemNo = clean[m[2]:m[3]]
		start = m[1]
	}

	if m := priceTailRe.FindStringSubmatchIndex(clean); m != nil && m[0] >= start {
		raw := strings.ReplaceAll(clean[m[2]:m[3]], ",", "")
		if price, err := strconv.ParseFloat(raw, 64); err == nil {
			row.Price = &price
			end = m[0]
		}
	}
	row.Description = strings.TrimSpace(clean[start:end])

	m := qtyLabelRe.FindStringSubmatch(clean)
	if m == nil {
		m = qtyTimesRe.FindStringSubmatch(clean)
	}
	if m != nil {
		if qty, err := strconv.Atoi(m[1]); err == nil {
			row.Qty = qty
		}
	}

	return row
}

// StructureRows converts every OCR line into a row. Lines without a
// confidence use the mean of those that have one; rows under reviewThreshold
// are flagged.
func StructureRows(lines []reconcile.OcrLine, reviewThreshold float64) []InvoiceRow {
	var sum float64
	var n int
	for _, l := range lines {
		if c := reconcile.ExtractConfidence(l); c != nil {
			sum += *c
			n++
		}
	}
	avg := 0.0
	if n > 0 {
		avg = sum / float64(n)
	}

	rows := make([]InvoiceRow, 0, len(lines))
	for _, l := range lines {
		text := reconcile.ExtractText(l)
		if strings.TrimSpace(text) == "" {
			continue
		}
		conf := avg
		if c := reconcile.ExtractConfidence(l); c != nil {
			conf = *c
		}

		row := LineToRow(text)
		row.Confidence = math.Round(conf*1000) / 1000
		row.NeedsReview = conf < reviewThreshold
		rows = append(rows, row)
	}
	return rows
}
