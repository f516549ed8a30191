// prompts.go - Prompt text for invoice OCR, label reading and invoice structuring

package ai

import (
	"fmt"
	"strings"
)

// GetInvoiceOCRPrompt asks for every printed line with a per-line confidence.
func GetInvoiceOCRPrompt() string {
	return `You are an OCR engine reading a photographed grocery or retail invoice.

Return every printed line of the document, top to bottom, left to right.
- Keep each line exactly as printed: item names, quantities, prices, totals, dates.
- Do not translate, correct spelling, merge or reorder lines.
- Skip logos, stamps and handwriting that is not part of the printed invoice.
- For each line give a confidence between 0 and 1 for how sure you are the text is correct.

Answer with JSON only, matching the schema {"lines":[{"text":"...","confidence":0.97}]}.`
}

// GetLabelOCRPrompt asks for the text printed on a single product package.
func GetLabelOCRPrompt() string {
	return `Read the text printed on the product package in this photo.

Return plain text only, one line per printed line, most prominent text first
(the product name is usually the largest text). Do not describe the image and
do not add commentary. If there is no readable text, return an empty answer.`
}

// BuildStructurePrompt asks the model to turn normalized invoice text into the
// invoice JSON document.
func BuildStructurePrompt(normalizedText string) string {
	var b strings.Builder
	b.WriteString(`You convert OCR text of a grocery invoice into JSON.

Return a single JSON object with exactly these keys:
  "recipient": string, the customer or shop the invoice is addressed to ("" if unknown)
  "items": array of {"name": string, "quantity": number, "price": number}
  "total": number, the invoice grand total (0 if not printed)
  "date": string, the invoice date as printed ("" if not printed)

Rules:
- One entry in "items" per purchased product line. Skip subtotal, tax, discount and payment lines.
- "name" is the product description without quantity or price.
- Numbers use a dot as decimal separator and no thousands separators.
- Output JSON only, no markdown fences, no explanations.

OCR text:
`)
	fmt.Fprintf(&b, "%s\n", strings.TrimSpace(normalizedText))
	return b.String()
}
