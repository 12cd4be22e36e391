package tools

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	t_utils "github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/dyike/alphaagents/internal/models"
)

const (
	FilingToolName = "query_10k"
	NewsToolName   = "analyze_news_sentiment"
	PriceToolName  = "analyze_stock_valuation"
)

type FilingQueryInput struct {
	Ticker string `json:"ticker"`
	Query  string `json:"query"`
}

type NewsSentimentInput struct {
	Ticker   string `json:"ticker"`
	DaysBack int    `json:"days_back"`
}

type ValuationInput struct {
	Ticker              string  `json:"ticker"`
	Period              string  `json:"period"`
	VolatilityThreshold float64 `json:"volatility_threshold"`
}

// ToolOutput is what every capability tool returns to the model. Available
// is false when the report is an unavailable marker.
type ToolOutput struct {
	Report    string `json:"report"`
	Available bool   `json:"available"`
}

func newToolOutput(report string) *ToolOutput {
	return &ToolOutput{Report: report, Available: !IsUnavailable(report)}
}

func NewFilingTool(c *FilingCapability) tool.InvokableTool {
	return t_utils.NewTool(
		&schema.ToolInfo{
			Name: FilingToolName,
			Desc: "Query the most recent 10-K annual report of a company. Returns the passages most relevant to the question.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"ticker": {
					Type:     schema.String,
					Desc:     "The stock ticker symbol, e.g. AAPL",
					Required: true,
				},
				"query": {
					Type:     schema.String,
					Desc:     "A natural language question about the filing, e.g. 'What are the main risk factors?'",
					Required: true,
				},
			}),
		},
		func(ctx context.Context, input FilingQueryInput) (*ToolOutput, error) {
			report := Guard(ctx, FilingToolName, func(ctx context.Context) (string, error) {
				if input.Query == "" {
					return "", fmt.Errorf("query parameter is required")
				}
				return c.QueryFilingSection(ctx, input.Ticker, input.Query)
			})
			return newToolOutput(report), nil
		},
	)
}

func NewNewsTool(c *NewsCapability, defaultDaysBack int) tool.InvokableTool {
	return t_utils.NewTool(
		&schema.ToolInfo{
			Name: NewsToolName,
			Desc: "Analyze the sentiment of recent financial news about a stock. Returns overall sentiment and summaries of the latest headlines.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"ticker": {
					Type:     schema.String,
					Desc:     "The stock ticker symbol",
					Required: true,
				},
				"days_back": {
					Type:     schema.Integer,
					Desc:     fmt.Sprintf("Number of days of news to analyze (default: %d)", defaultDaysBack),
					Required: false,
				},
			}),
		},
		func(ctx context.Context, input NewsSentimentInput) (*ToolOutput, error) {
			days := input.DaysBack
			if days <= 0 {
				days = defaultDaysBack
			}
			report := Guard(ctx, NewsToolName, func(ctx context.Context) (string, error) {
				return c.QueryNewsSentiment(ctx, input.Ticker, days)
			})
			return newToolOutput(report), nil
		},
	)
}

func NewPriceTool(c *PriceCapability, defaultPeriod string) tool.InvokableTool {
	return t_utils.NewTool(
		&schema.ToolInfo{
			Name: PriceToolName,
			Desc: "Analyze stock price trend, returns, volatility, Sharpe ratio and volume over a lookback period.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"ticker": {
					Type:     schema.String,
					Desc:     "The stock ticker symbol",
					Required: true,
				},
				"period": {
					Type:     schema.String,
					Desc:     fmt.Sprintf("Lookback period (default: %s)", defaultPeriod),
					Enum:     []string{"1mo", "3mo", "6mo", "1y", "2y"},
					Required: false,
				},
				"volatility_threshold": {
					Type:     schema.Number,
					Desc:     "The investor's maximum acceptable annualized volatility in percent, e.g. 30",
					Required: false,
				},
			}),
		},
		func(ctx context.Context, input ValuationInput) (*ToolOutput, error) {
			period := input.Period
			if period == "" {
				period = defaultPeriod
			}
			report := Guard(ctx, PriceToolName, func(ctx context.Context) (string, error) {
				return c.QueryPriceValuation(ctx, input.Ticker, period, input.VolatilityThreshold)
			})
			return newToolOutput(report), nil
		},
	)
}

// Capabilities bundles the three capabilities for binding to analyst roles.
type Capabilities struct {
	Filing *FilingCapability
	News   *NewsCapability
	Price  *PriceCapability

	NewsDaysBack int
	PricePeriod  string
}

// ByRole returns each analyst's single tool.
func (c Capabilities) ByRole() map[models.Role]tool.BaseTool {
	return map[models.Role]tool.BaseTool{
		models.RoleFundamental: NewFilingTool(c.Filing),
		models.RoleSentiment:   NewNewsTool(c.News, c.NewsDaysBack),
		models.RoleValuation:   NewPriceTool(c.Price, c.PricePeriod),
	}
}
