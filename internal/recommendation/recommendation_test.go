package recommendation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLenientParser(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Recommendation
	}{
		{
			name: "canonical block",
			text: "Strong cash flow.\nRECOMMENDATION: BUY\nCONFIDENCE: HIGH\nREASONING: margins expanding",
			want: Recommendation{ActionBuy, ConfidenceHigh},
		},
		{
			name: "lower case",
			text: "recommendation: sell\nconfidence: low",
			want: Recommendation{ActionSell, ConfidenceLow},
		},
		{
			name: "recommend phrasing",
			text: "Overall I recommend buy given the momentum.",
			want: Recommendation{ActionBuy, ConfidenceUnset},
		},
		{
			name: "markdown emphasis and brackets",
			text: "**Recommendation:** [Sell]\n**Confidence:** _Medium_",
			want: Recommendation{ActionSell, ConfidenceMedium},
		},
		{
			name: "missing space after colon",
			text: "RECOMMENDATION:SELL",
			want: Recommendation{ActionSell, ConfidenceUnset},
		},
		{
			name: "no block",
			text: "I need more data before deciding.",
			want: Unset,
		},
		{
			name: "echoed template is not a vote",
			text: "Provide:\nRECOMMENDATION: [BUY or SELL]\nCONFIDENCE: [HIGH/MEDIUM/LOW]",
			want: Unset,
		},
		{
			name: "buy pattern outranks sell within one reply",
			text: "Others said RECOMMENDATION: SELL but my RECOMMENDATION: BUY",
			want: Recommendation{ActionBuy, ConfidenceUnset},
		},
		{
			name: "empty",
			text: "",
			want: Unset,
		},
	}

	p := NewLenientParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Parse(tt.text)
			assert.Equal(t, tt.want, got)
			// parsing is idempotent
			assert.Equal(t, got, p.Parse(tt.text))
		})
	}
}

func TestResolved(t *testing.T) {
	assert.True(t, Recommendation{Action: ActionBuy}.Resolved())
	assert.True(t, Recommendation{Action: ActionSell}.Resolved())
	assert.False(t, Unset.Resolved())
}

func TestExtractReasoning(t *testing.T) {
	text := "RECOMMENDATION: BUY\nCONFIDENCE: MEDIUM\nReasoning: Revenue grew 12% and debt fell."
	assert.Equal(t, "Revenue grew 12% and debt fell.", ExtractReasoning(text))
	assert.Empty(t, ExtractReasoning("no marker here"))
}

func TestExtractReasoningKeepsOriginalText(t *testing.T) {
	text := "RECOMMENDATION: SELL\nreasoning: Kırıkkale plant exposure; ſtrong headwinds in Q3."
	assert.Equal(t, "Kırıkkale plant exposure; ſtrong headwinds in Q3.", ExtractReasoning(text))

	text = "Dıscussion first.\nREASONING:   Margins held at 44%."
	assert.Equal(t, "Margins held at 44%.", ExtractReasoning(text))
}
