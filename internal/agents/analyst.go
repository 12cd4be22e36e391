package agents

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/dyike/alphaagents/internal/models"
	"github.com/dyike/alphaagents/internal/riskprofile"
	"github.com/dyike/alphaagents/internal/utils"
)

var ErrEmptyReply = errors.New("empty reply")

// RoleSpec is everything that distinguishes one analyst from another.
type RoleSpec struct {
	Role        models.Role
	DisplayName string
	Specialty   string
	Tool        tool.BaseTool
}

func (s RoleSpec) promptName() string {
	return strings.ToLower(string(s.Role))
}

// TaskOptions parameterize the opening task each analyst is given.
type TaskOptions struct {
	NewsDaysBack int
	PricePeriod  string
}

type TurnRequest struct {
	Ticker     string
	Mode       models.Mode
	Transcript []models.Turn
	// Conclude asks the analyst to end with the recommendation block.
	Conclude bool
}

// Responder is an analyst as the turn scheduler sees it.
type Responder interface {
	Identity() models.AgentIdentity
	Respond(ctx context.Context, req TurnRequest) (string, error)
}

const analystSystemTpl = `{role_prompt}

RISK PROFILE: {risk_title}
{risk_modifier}

You can call one tool, {tool_name}: {tool_desc}
Tool output is private to you; quote only what matters for your argument.

For your reference, the current date is {current_date}.`

const analystUserTpl = `{task}

{mode_instructions}

{history}

{closing}`

// Analyst is the single parameterized analyst type; roles differ only in
// their RoleSpec.
type Analyst struct {
	spec     RoleSpec
	profile  riskprofile.Profile
	reasoner Reasoner
	task     TaskOptions
	template prompt.ChatTemplate

	rolePrompt string
	toolName   string
	toolDesc   string
}

func NewAnalyst(ctx context.Context, spec RoleSpec, profile riskprofile.Profile, reasoner Reasoner, task TaskOptions) (*Analyst, error) {
	rolePrompt, err := utils.LoadPrompt("analysts/" + spec.promptName())
	if err != nil {
		return nil, err
	}
	a := &Analyst{
		spec:       spec,
		profile:    profile,
		reasoner:   reasoner,
		task:       task,
		rolePrompt: rolePrompt,
		template: prompt.FromMessages(schema.FString,
			schema.SystemMessage(analystSystemTpl),
			schema.UserMessage(analystUserTpl),
		),
	}
	if spec.Tool != nil {
		info, err := spec.Tool.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("tool info for %s: %w", spec.DisplayName, err)
		}
		a.toolName, a.toolDesc = info.Name, info.Desc
	}
	return a, nil
}

func (a *Analyst) Identity() models.AgentIdentity {
	return models.AgentIdentity{
		Role:        a.spec.Role,
		DisplayName: a.spec.DisplayName,
		Capability:  a.toolName,
	}
}

func (a *Analyst) Respond(ctx context.Context, req TurnRequest) (string, error) {
	msgs, err := a.Messages(ctx, req)
	if err != nil {
		return "", err
	}
	out, err := a.reasoner.Reason(ctx, msgs)
	if err != nil {
		return "", err
	}
	if out == nil || strings.TrimSpace(out.Content) == "" {
		return "", ErrEmptyReply
	}
	return strings.TrimSpace(out.Content), nil
}

// Messages renders the prompt for one turn.
func (a *Analyst) Messages(ctx context.Context, req TurnRequest) ([]*schema.Message, error) {
	threshold := strconv.Itoa(a.profile.ThresholdPercent())
	vars := map[string]string{
		"Ticker":    req.Ticker,
		"DaysBack":  strconv.Itoa(a.task.NewsDaysBack),
		"Period":    a.task.PricePeriod,
		"Threshold": threshold,
	}
	task, err := utils.LoadPromptWithContext("tasks/"+a.spec.promptName(), vars)
	if err != nil {
		return nil, err
	}
	modeText, err := utils.LoadPromptWithContext("modes/"+string(req.Mode), vars)
	if err != nil {
		return nil, err
	}

	history := "You are the first to speak."
	if len(req.Transcript) > 0 {
		history = "Discussion so far:\n\n" + models.Render(req.Transcript)
	}

	closing := "Share your analysis."
	if req.Conclude {
		closing, err = utils.LoadPromptWithContext("analysts/recommendation", map[string]string{
			"RiskProfile": a.profile.Name,
			"Threshold":   threshold,
			"Specialty":   a.spec.Specialty,
		})
		if err != nil {
			return nil, err
		}
	}

	toolName, toolDesc := a.toolName, a.toolDesc
	if toolName == "" {
		toolName, toolDesc = "none", "no tool is available this session"
	}

	return a.template.Format(ctx, map[string]any{
		"role_prompt":       a.rolePrompt,
		"risk_title":        a.profile.Title(),
		"risk_modifier":     a.profile.PromptModifier,
		"tool_name":         toolName,
		"tool_desc":         toolDesc,
		"current_date":      time.Now().Format("2006-01-02"),
		"task":              task,
		"mode_instructions": modeText,
		"history":           history,
		"closing":           closing,
	})
}
