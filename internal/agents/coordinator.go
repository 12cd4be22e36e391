package agents

import (
	"context"
	"regexp"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/dyike/alphaagents/internal/models"
	"github.com/dyike/alphaagents/internal/riskprofile"
	"github.com/dyike/alphaagents/internal/utils"
)

// TerminateSentinel in a synthesis asks the scheduler to stop early.
const TerminateSentinel = "TERMINATE"

type SynthesisRequest struct {
	Ticker     string
	Mode       models.Mode
	Transcript []models.Turn
	// Final is set when the turn budget leaves room for this synthesis only.
	Final bool
}

// Synthesizer is the non-voting coordinator role.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthesisRequest) (string, error)
}

var (
	terminateRe = regexp.MustCompile(`\b` + TerminateSentinel + `\b`)
	negationRe  = regexp.MustCompile(`(?i)\b(not|never|don't|doesn't|shouldn't|cannot|can't|won't)\b`)
)

// SignalsTermination reports whether a synthesis carries the sentinel: a line
// holding only the word in any case, or the upper-case word on a line that
// does not negate it first. "TERMINATED" and "we should not TERMINATE yet"
// do not count.
func SignalsTermination(text string) bool {
	for _, line := range strings.Split(text, "\n") {
		if strings.EqualFold(strings.Trim(line, " \t\r*_`\"'.!#>"), TerminateSentinel) {
			return true
		}
		loc := terminateRe.FindStringIndex(line)
		if loc == nil {
			continue
		}
		if negationRe.MatchString(line[:loc[0]]) {
			continue
		}
		return true
	}
	return false
}

const coordinatorUserTpl = `{instructions}

Discussion so far:

{history}`

type Coordinator struct {
	profile  riskprofile.Profile
	reasoner Reasoner
	template prompt.ChatTemplate
}

func NewCoordinator(profile riskprofile.Profile, reasoner Reasoner) *Coordinator {
	return &Coordinator{
		profile:  profile,
		reasoner: reasoner,
		template: prompt.FromMessages(schema.FString,
			schema.SystemMessage("{system}"),
			schema.UserMessage(coordinatorUserTpl),
		),
	}
}

func (c *Coordinator) Synthesize(ctx context.Context, req SynthesisRequest) (string, error) {
	system, err := utils.LoadPromptWithContext("coordinator/"+string(req.Mode), map[string]string{
		"Ticker":      req.Ticker,
		"RiskProfile": strings.ToLower(c.profile.Title()),
	})
	if err != nil {
		return "", err
	}
	instructions := "Write your synthesis."
	if req.Final {
		instructions = "This is the final synthesis of the session. Write the closing report."
	}
	msgs, err := c.template.Format(ctx, map[string]any{
		"system":       system,
		"instructions": instructions,
		"history":      models.Render(req.Transcript),
	})
	if err != nil {
		return "", err
	}
	out, err := c.reasoner.Reason(ctx, msgs)
	if err != nil {
		return "", err
	}
	if out == nil || strings.TrimSpace(out.Content) == "" {
		return "", ErrEmptyReply
	}
	return strings.TrimSpace(out.Content), nil
}
