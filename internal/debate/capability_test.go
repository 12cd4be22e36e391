package debate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/alphaagents/internal/agents"
	"github.com/dyike/alphaagents/internal/dataflows"
	"github.com/dyike/alphaagents/internal/models"
	"github.com/dyike/alphaagents/internal/recommendation"
	"github.com/dyike/alphaagents/internal/riskprofile"
	"github.com/dyike/alphaagents/internal/tools"
)

type downNews struct{}

func (downNews) CompanyNews(context.Context, string, time.Time, time.Time) ([]*dataflows.NewsArticle, error) {
	return nil, errors.New("finnhub 503")
}

// toolCallingModel calls the first bound tool once per turn, then answers
// with whatever the tool returned folded into a cautious vote.
type toolCallingModel struct {
	toolName string

	mu      sync.Mutex
	results []string
}

func (m *toolCallingModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	last := input[len(input)-1]
	if last.Role == schema.Tool {
		m.mu.Lock()
		m.results = append(m.results, last.Content)
		m.mu.Unlock()
		return schema.AssistantMessage("News could not be checked.\nRECOMMENDATION: SELL\nCONFIDENCE: LOW", nil), nil
	}
	return schema.AssistantMessage("", []schema.ToolCall{{
		ID:       "call_news",
		Type:     "function",
		Function: schema.FunctionCall{Name: m.toolName, Arguments: `{"ticker":"AAPL","days_back":7}`},
	}}), nil
}

func (m *toolCallingModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (m *toolCallingModel) WithTools(infos []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	if len(infos) > 0 {
		m.toolName = infos[0].Name
	}
	return m, nil
}

func (m *toolCallingModel) toolResults() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.results...)
}

func TestFailingCapabilityReachesTranscriptAsMarker(t *testing.T) {
	ctx := context.Background()
	cm := &toolCallingModel{}
	news := tools.NewNewsCapability(downNews{}, cm, 5)
	specs := agents.DefaultRoles(map[models.Role]tool.BaseTool{
		models.RoleSentiment: tools.NewNewsTool(news, 30),
	})

	set, err := riskprofile.Presets()
	require.NoError(t, err)
	profile, err := set.Get("risk_neutral")
	require.NoError(t, err)
	reasoner, err := agents.NewReactFactory(cm, 6)(ctx, specs[1])
	require.NoError(t, err)
	sentiment, err := agents.NewAnalyst(ctx, specs[1], profile, reasoner, agents.TaskOptions{NewsDaysBack: 30, PricePeriod: "3mo"})
	require.NoError(t, err)

	trio := newTrio(replying("RECOMMENDATION: SELL"), nil, replying("RECOMMENDATION: SELL"))
	analysts := []agents.Responder{trio[0], sentiment, trio[2]}
	opts := testOptions()
	opts.MaxDebateRounds = 1
	opts.MinAgentTurns = 1
	c := newCoordinator(t, &fakeBuilder{analysts: analysts}, opts)

	res, err := c.RunDebate(ctx, "AAPL", "risk_neutral")
	require.NoError(t, err)
	require.Len(t, res.Transcript, 3)

	turn := res.Transcript[1]
	assert.Equal(t, models.RoleSentiment, turn.Speaker.Role)
	assert.Equal(t, tools.NewsToolName, turn.Speaker.Capability)
	assert.False(t, turn.Failed())
	assert.Contains(t, turn.Text, "RECOMMENDATION: SELL")

	results := cm.toolResults()
	require.Len(t, results, 1)
	assert.Contains(t, results[0], tools.UnavailablePrefix+" ("+tools.NewsToolName+")")
	assert.Contains(t, results[0], "finnhub 503")
	assert.Contains(t, results[0], `"available":false`)

	assert.Equal(t, recommendation.ActionSell, res.Consensus.PerRole[models.RoleSentiment].Action)
	assert.Equal(t, recommendation.ActionSell, res.Consensus.Decision)
}
