// Package recommendation extracts BUY/SELL votes from analyst replies.
package recommendation

import (
	"regexp"
	"strings"
)

type Action string

const (
	ActionUnset Action = "UNSET"
	ActionBuy   Action = "BUY"
	ActionSell  Action = "SELL"
)

type Confidence string

const (
	ConfidenceUnset  Confidence = "UNSET"
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

type Recommendation struct {
	Action     Action     `json:"action"`
	Confidence Confidence `json:"confidence"`
}

func (r Recommendation) Resolved() bool {
	return r.Action == ActionBuy || r.Action == ActionSell
}

// Unset is the recommendation of a reply that carries no vote.
var Unset = Recommendation{Action: ActionUnset, Confidence: ConfidenceUnset}

// Parser turns a free-text reply into a Recommendation. Implementations must
// be pure: the same text always yields the same result.
type Parser interface {
	Parse(text string) Recommendation
}

// Patterns are checked in order; the first hit decides the action.
var actionPatterns = []struct {
	pattern string
	action  Action
}{
	{"RECOMMENDATION: BUY", ActionBuy},
	{"RECOMMEND BUY", ActionBuy},
	{"RECOMMENDATION: SELL", ActionSell},
	{"RECOMMEND SELL", ActionSell},
}

var confidencePatterns = []struct {
	pattern    string
	confidence Confidence
}{
	{"CONFIDENCE: HIGH", ConfidenceHigh},
	{"CONFIDENCE: MEDIUM", ConfidenceMedium},
	{"CONFIDENCE: LOW", ConfidenceLow},
}

// LenientParser does case-insensitive substring matching. Markdown emphasis,
// brackets and runs of whitespace are folded away first so
// "**Recommendation:** [Buy]" reads the same as "RECOMMENDATION: BUY".
type LenientParser struct{}

func NewLenientParser() LenientParser {
	return LenientParser{}
}

func (LenientParser) Parse(text string) Recommendation {
	norm := normalize(text)
	rec := Unset
	for _, p := range actionPatterns {
		if strings.Contains(norm, p.pattern) {
			rec.Action = p.action
			break
		}
	}
	for _, p := range confidencePatterns {
		if strings.Contains(norm, p.pattern) {
			rec.Confidence = p.confidence
			break
		}
	}
	return rec
}

var (
	// the instruction template echoed back verbatim is not a vote
	placeholders = strings.NewReplacer("[BUY OR SELL]", "", "[HIGH/MEDIUM/LOW]", "")
	stripper     = strings.NewReplacer("*", "", "[", "", "]", "", "_", " ", "#", "", ":", ": ")
)

func normalize(text string) string {
	upper := stripper.Replace(placeholders.Replace(strings.ToUpper(text)))
	fields := strings.Fields(upper)
	joined := strings.Join(fields, " ")
	// "RECOMMENDATION : BUY" -> "RECOMMENDATION: BUY"
	return strings.ReplaceAll(joined, " :", ":")
}

var reasoningMarker = regexp.MustCompile(`(?i)REASONING:`)

// ExtractReasoning returns the text after the first REASONING: marker, in
// any case, or "" when the reply has none.
func ExtractReasoning(text string) string {
	loc := reasoningMarker.FindStringIndex(text)
	if loc == nil {
		return ""
	}
	return strings.TrimSpace(text[loc[1]:])
}
