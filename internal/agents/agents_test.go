package agents

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	toolutils "github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/alphaagents/internal/config"
	"github.com/dyike/alphaagents/internal/models"
	"github.com/dyike/alphaagents/internal/riskprofile"
)

type scriptedReasoner struct {
	mu      sync.Mutex
	replies []string
	err     error
	seen    [][]*schema.Message
}

func (s *scriptedReasoner) Reason(_ context.Context, input []*schema.Message) (*schema.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, input)
	if s.err != nil {
		return nil, s.err
	}
	if len(s.replies) == 0 {
		return schema.AssistantMessage("", nil), nil
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]
	return schema.AssistantMessage(reply, nil), nil
}

type tickerInput struct {
	Ticker string `json:"ticker"`
}

func newEchoTool(name string) tool.InvokableTool {
	return toolutils.NewTool(&schema.ToolInfo{
		Name: name,
		Desc: "echo tool for tests",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"ticker": {Type: schema.String, Desc: "ticker", Required: true},
		}),
	}, func(ctx context.Context, in tickerInput) (string, error) {
		return "volatility report for " + in.Ticker, nil
	})
}

func neutralProfile(t *testing.T) riskprofile.Profile {
	t.Helper()
	p, err := riskprofile.Lookup("risk_neutral")
	require.NoError(t, err)
	return p
}

func TestAnalystMessagesCarryRoleRiskAndClosing(t *testing.T) {
	ctx := context.Background()
	spec := DefaultRoles(map[models.Role]tool.BaseTool{
		models.RoleValuation: newEchoTool("analyze_stock_valuation"),
	})[2]
	reasoner := &scriptedReasoner{replies: []string{"Trend is up.\nRECOMMENDATION: BUY"}}
	a, err := NewAnalyst(ctx, spec, neutralProfile(t), reasoner, TaskOptions{NewsDaysBack: 30, PricePeriod: "6mo"})
	require.NoError(t, err)

	assert.Equal(t, models.AgentIdentity{
		Role:        models.RoleValuation,
		DisplayName: "Valuation_Analyst",
		Capability:  "analyze_stock_valuation",
	}, a.Identity())

	prior := []models.Turn{{
		Speaker: models.AgentIdentity{Role: models.RoleFundamental, DisplayName: "Fundamental_Analyst"},
		Text:    "Margins expanded for three years.",
	}}
	text, err := a.Respond(ctx, TurnRequest{Ticker: "NVDA", Mode: models.ModeDebate, Transcript: prior, Conclude: true})
	require.NoError(t, err)
	assert.Equal(t, "Trend is up.\nRECOMMENDATION: BUY", text)

	require.Len(t, reasoner.seen, 1)
	msgs := reasoner.seen[0]
	require.Len(t, msgs, 2)
	assert.Equal(t, schema.System, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "valuation equity analyst")
	assert.Contains(t, msgs[0].Content, "RISK PROFILE: RISK NEUTRAL")
	assert.Contains(t, msgs[0].Content, "risk-neutral investor")
	assert.Contains(t, msgs[0].Content, "analyze_stock_valuation")

	user := msgs[1].Content
	assert.Contains(t, user, "valuation analysis of NVDA over the past 6mo")
	assert.Contains(t, user, "at most 30% annualized volatility")
	assert.Contains(t, user, "structured debate")
	assert.Contains(t, user, "[Fundamental_Analyst]\nMargins expanded for three years.")
	assert.Contains(t, user, "RECOMMENDATION: [BUY or SELL]")
}

func TestAnalystWithoutConclusionOmitsBlock(t *testing.T) {
	ctx := context.Background()
	spec := DefaultRoles(nil)[1]
	a, err := NewAnalyst(ctx, spec, neutralProfile(t), &scriptedReasoner{}, TaskOptions{NewsDaysBack: 14, PricePeriod: "3mo"})
	require.NoError(t, err)

	msgs, err := a.Messages(ctx, TurnRequest{Ticker: "AAPL", Mode: models.ModeCollaboration})
	require.NoError(t, err)
	assert.Contains(t, msgs[1].Content, "last 14 days")
	assert.Contains(t, msgs[1].Content, "You are the first to speak.")
	assert.NotContains(t, msgs[1].Content, "RECOMMENDATION:")
	assert.Contains(t, msgs[0].Content, "You can call one tool, none")
}

func TestAnalystEmptyReplyIsError(t *testing.T) {
	ctx := context.Background()
	a, err := NewAnalyst(ctx, DefaultRoles(nil)[0], neutralProfile(t), &scriptedReasoner{}, TaskOptions{})
	require.NoError(t, err)

	_, err = a.Respond(ctx, TurnRequest{Ticker: "AAPL", Mode: models.ModeDebate})
	assert.ErrorIs(t, err, ErrEmptyReply)
}

func TestBuilderUnknownProfileBuildsNothing(t *testing.T) {
	set, err := riskprofile.Presets()
	require.NoError(t, err)

	built := 0
	factory := func(ctx context.Context, spec RoleSpec) (Reasoner, error) {
		built++
		return &scriptedReasoner{}, nil
	}
	b := NewBuilder(set, DefaultRoles(nil), factory)

	_, err = b.Build(context.Background(), "reckless")
	require.ErrorIs(t, err, riskprofile.ErrUnknownProfile)
	assert.Zero(t, built)

	team, err := b.Build(context.Background(), "risk_averse")
	require.NoError(t, err)
	assert.Equal(t, 3, built)
	assert.Nil(t, team.Coordinator)
	require.Len(t, team.Analysts, 3)
	for i, role := range models.AnalystRoles {
		assert.Equal(t, role, team.Analysts[i].Identity().Role)
	}
}

func TestBuilderPropagatesFactoryError(t *testing.T) {
	set, err := riskprofile.Presets()
	require.NoError(t, err)
	b := NewBuilder(set, DefaultRoles(nil), NewReactFactory(nil, 4))

	_, err = b.Build(context.Background(), "risk_neutral")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no bound capability")
}

func TestCoordinatorSynthesis(t *testing.T) {
	ctx := context.Background()
	reasoner := &scriptedReasoner{replies: []string{"All three say BUY.\nTERMINATE"}}
	c := NewCoordinator(neutralProfile(t), reasoner)

	text, err := c.Synthesize(ctx, SynthesisRequest{Ticker: "MSFT", Mode: models.ModeDebate, Final: true})
	require.NoError(t, err)
	assert.True(t, SignalsTermination(text))
	assert.Contains(t, reasoner.seen[0][0].Content, "moderate a debate")
	assert.Contains(t, reasoner.seen[0][0].Content, "risk neutral investor")
	assert.Contains(t, reasoner.seen[0][1].Content, "final synthesis")

	reasoner.err = errors.New("model down")
	_, err = c.Synthesize(ctx, SynthesisRequest{Ticker: "MSFT", Mode: models.ModeCollaboration})
	assert.Error(t, err)
}

func TestSignalsTermination(t *testing.T) {
	for _, text := range []string{
		"All three say BUY.\nTERMINATE",
		"Consensus reached. TERMINATE",
		"Decision documented.\n**Terminate.**",
	} {
		assert.True(t, SignalsTermination(text), text)
	}
	for _, text := range []string{
		"The contract was TERMINATED last year.",
		"We should not terminate yet.",
		"We should not TERMINATE until valuation replies.",
		"Do NOT TERMINATE: the fundamental view is missing.",
		"Please don't TERMINATE.",
		"",
	} {
		assert.False(t, SignalsTermination(text), text)
	}
}

func TestNewEmbedderOnlyForOpenAI(t *testing.T) {
	ctx := context.Background()
	cfg := config.DefaultConfig()
	cfg.LLMProvider = "openai"
	cfg.OpenAIAPIKey = "sk-test"
	cfg.EmbeddingModel = "text-embedding-3-small"

	emb, err := NewEmbedder(ctx, cfg)
	require.NoError(t, err)
	assert.NotNil(t, emb)

	cfg.EmbeddingModel = ""
	emb, err = NewEmbedder(ctx, cfg)
	require.NoError(t, err)
	assert.Nil(t, emb)

	cfg.EmbeddingModel = "text-embedding-3-small"
	cfg.LLMProvider = "deepseek"
	emb, err = NewEmbedder(ctx, cfg)
	require.NoError(t, err)
	assert.Nil(t, emb)
}

// toolThenAnswerModel asks for one tool call, then answers using the result.
type toolThenAnswerModel struct {
	toolName   string
	toolResult string
}

func (m *toolThenAnswerModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	last := input[len(input)-1]
	if last.Role == schema.Tool {
		m.toolResult = last.Content
		return schema.AssistantMessage("Volatility is fine.\nRECOMMENDATION: BUY\nCONFIDENCE: MEDIUM", nil), nil
	}
	return schema.AssistantMessage("", []schema.ToolCall{{
		ID:       "call_1",
		Type:     "function",
		Function: schema.FunctionCall{Name: m.toolName, Arguments: `{"ticker":"AMD"}`},
	}}), nil
}

func (m *toolThenAnswerModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (m *toolThenAnswerModel) WithTools(_ []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return m, nil
}

func TestReactReasonerRunsBoundTool(t *testing.T) {
	ctx := context.Background()
	cm := &toolThenAnswerModel{toolName: "analyze_stock_valuation"}
	tools := map[models.Role]tool.BaseTool{models.RoleValuation: newEchoTool("analyze_stock_valuation")}

	reasoner, err := NewReactFactory(cm, 6)(ctx, DefaultRoles(tools)[2])
	require.NoError(t, err)

	out, err := reasoner.Reason(ctx, []*schema.Message{schema.UserMessage("analyze AMD")})
	require.NoError(t, err)
	assert.Contains(t, out.Content, "RECOMMENDATION: BUY")
	assert.Contains(t, cm.toolResult, "volatility report for AMD")
}
