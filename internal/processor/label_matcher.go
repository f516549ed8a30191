// label_matcher.go - Fuzzy matching of product-photo text against invoice item names
package processor

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

// MaxSuggestions is how many ranked candidates a review-needed match carries.
const MaxSuggestions = 5

// UnknownLabel is the folder name used when nothing usable was read.
const UnknownLabel = "unknown"

var (
	labelNoiseRe  = regexp.MustCompile(`[^a-z0-9\s\-.]`)
	labelFolderRe = regexp.MustCompile(`[^a-z0-9]+`)
)

// Correction maps a known OCR misread to its fix.
type Correction struct {
	Bad  string `json:"bad" bson:"bad"`
	Good string `json:"good" bson:"good"`
}

// Suggestion is a ranked candidate with its similarity score.
type Suggestion struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// LabelMatchResult represents the result of matching photo text to a candidate
type LabelMatchResult struct {
	Found       bool         `json:"found"`
	Label       string       `json:"label"`
	Score       float64      `json:"score"`
	Auto        bool         `json:"auto"`
	Method      string       `json:"method"` // exact, fuzzy, not_found
	Suggestions []Suggestion `json:"suggestions,omitempty"`
}

// ApplyCorrections replaces every bad substring with its good form, in order.
func ApplyCorrections(text string, corrections []Correction) string {
	for _, c := range corrections {
		if c.Bad == "" {
			continue
		}
		text = strings.ReplaceAll(text, c.Bad, c.Good)
	}
	return text
}

// NormalizeLabelText lowercases and keeps only letters, digits, spaces, '-' and '.'.
func NormalizeLabelText(s string) string {
	s = strings.ToLower(s)
	s = labelNoiseRe.ReplaceAllString(s, " ")
	return collapseSpaces(s)
}

// ScoreMatch returns a 0..1 similarity of the normalized forms of a and b.
func ScoreMatch(a, b string) float64 {
	return nameSimilarity(NormalizeLabelText(a), NormalizeLabelText(b))
}

// MatchLabel picks the candidate closest to ocrText. The match is automatic
// when the best score reaches threshold; otherwise the top suggestions are
// returned for review.
func MatchLabel(ocrText string, candidates []string, threshold float64) LabelMatchResult {
	normalized := NormalizeLabelText(ocrText)
	if normalized == "" || len(candidates) == 0 {
		return LabelMatchResult{Method: "not_found"}
	}

	ranked := make([]Suggestion, 0, len(candidates))
	for _, c := range candidates {
		if strings.TrimSpace(c) == "" {
			continue
		}
		ranked = append(ranked, Suggestion{
			Label: c,
			Score: round3(nameSimilarity(normalized, NormalizeLabelText(c))),
		})
	}
	if len(ranked) == 0 {
		return LabelMatchResult{Method: "not_found"}
	}

	// stable: equal scores keep invoice order
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })

	best := ranked[0]
	result := LabelMatchResult{
		Found:  best.Score > 0,
		Label:  best.Label,
		Score:  best.Score,
		Method: "fuzzy",
	}
	if best.Score >= 0.99 {
		result.Method = "exact"
	}
	if !result.Found {
		result.Label = ""
		result.Method = "not_found"
	}

	if result.Found && best.Score >= threshold {
		result.Auto = true
		return result
	}

	if len(ranked) > MaxSuggestions {
		ranked = ranked[:MaxSuggestions]
	}
	result.Suggestions = ranked
	return result
}

// CleanLabel turns a label into a dataset folder name.
func CleanLabel(label string) string {
	cleaned := labelFolderRe.ReplaceAllString(strings.ToLower(label), "_")
	cleaned = strings.Trim(cleaned, "_")
	if cleaned == "" {
		return UnknownLabel
	}
	return cleaned
}

// nameSimilarity calculates similarity between two normalized names
func nameSimilarity(a, b string) float64 {
	if a == b {
		if a == "" {
			return 0
		}
		return 1
	}

	ra, rb := []rune(a), []rune(b)
	maxLen := float64(max(len(ra), len(rb)))
	if maxLen == 0 {
		return 0
	}

	distance := levenshteinDistance(ra, rb)
	return math.Max(0, 1.0-float64(distance)/maxLen)
}

// levenshteinDistance calculates edit distance between two rune slices
func levenshteinDistance(s1, s2 []rune) int {
	prev := make([]int, len(s2)+1)
	curr := make([]int, len(s2)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(s1); i++ {
		curr[0] = i
		for j := 1; j <= len(s2); j++ {
			cost := 0
			if s1[i-1] != s2[j-1] {
				cost = 1
			}
			curr[j] = min(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}

	return prev[len(s2)]
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
