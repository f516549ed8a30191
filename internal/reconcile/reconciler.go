// Package reconcile turns one upstream OCR/LLM response into the candidate
// item names for the label selector and an HTML summary of what was read.
//
// Reconciliation is pure: the same payload always yields the same result, and
// no combination of missing or malformed fields makes it fail.
package reconcile

import (
	"errors"
	"strings"
)

// StructuredBlock is the display state of the structured (LLM) result.
type StructuredBlock struct {
	Present bool   `json:"present"`
	Pretty  string `json:"pretty,omitempty"`
	// Error and Raw are set when the result could not be parsed
	Error string `json:"error,omitempty"`
	Raw   string `json:"raw,omitempty"`
}

// Blocks holds everything the summary renders.
type Blocks struct {
	Lines          []DisplayLine   `json:"lines"`
	LineSource     LineSource      `json:"line_source"`
	NormalizedText string          `json:"normalized_text,omitempty"`
	Structured     StructuredBlock `json:"structured"`
	// Sample is only filled when no line-derived text exists
	Sample []string `json:"sample,omitempty"`
}

// Result is the reconciled view of one payload.
type Result struct {
	Items       []string        `json:"items_for_dropdown"`
	ItemsSource CandidateSource `json:"items_source"`
	Blocks      Blocks          `json:"blocks"`
	HTML        string          `json:"html"`
	OptionsHTML string          `json:"options_html"`
}

// Reconcile computes the candidate list and display blocks for p.
func Reconcile(p Payload) Result {
	doc, parseErr := ParseStructured(p.Structured)

	items, source := Candidates(p, doc)
	lines, lineSource := DisplayLines(p)

	blocks := Blocks{
		Lines:          lines,
		LineSource:     lineSource,
		NormalizedText: normalizedText(p),
		Structured:     structuredBlock(p.Structured, doc, parseErr),
	}
	if lineSource == LineSourceNone {
		blocks.Sample = nonBlank(p.Sample)
	}

	return Result{
		Items:       items,
		ItemsSource: source,
		Blocks:      blocks,
		HTML:        RenderBlocks(blocks),
		OptionsHTML: RenderOptions(items),
	}
}

func structuredBlock(sr StructuredResult, doc StructuredDoc, parseErr error) StructuredBlock {
	if sr.Kind == StructuredAbsent {
		return StructuredBlock{}
	}
	var perr *StructuredParseError
	if errors.As(parseErr, &perr) {
		return StructuredBlock{Present: true, Error: perr.Err.Error(), Raw: perr.Raw}
	}
	return StructuredBlock{Present: true, Pretty: doc.Pretty()}
}

func nonBlank(values []string) []string {
	var out []string
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}
