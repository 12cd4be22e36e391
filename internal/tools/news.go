package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/dyike/alphaagents/internal/dataflows"
	"github.com/dyike/alphaagents/internal/logger"
	"github.com/dyike/alphaagents/internal/utils"
)

const (
	reflectionTemperature = 0.5
	reflectionMaxTokens   = 300
	headlinesShown        = 5
)

// ArticleReflection is the model's reading of one article.
type ArticleReflection struct {
	Headline string
	Date     string
	Source   string
	Analysis string
}

// Summary is the text between SUMMARY: and SENTIMENT:, when present.
func (a ArticleReflection) Summary() string {
	if !strings.Contains(a.Analysis, "SUMMARY:") {
		return ""
	}
	head, _, _ := strings.Cut(a.Analysis, "SENTIMENT:")
	return strings.TrimSpace(strings.Replace(head, "SUMMARY:", "", 1))
}

type NewsSentiment struct {
	Ticker          string
	DaysBack        int
	Articles        []ArticleReflection
	Sentiment       string
	SentimentCounts map[string]int
	Action          string
	ActionCounts    map[string]int
}

// NewsCapability summarizes recent company news with a reflection prompt and
// aggregates the per-article sentiment.
type NewsCapability struct {
	news        dataflows.NewsSource
	model       model.BaseChatModel
	maxArticles int
	now         func() time.Time
}

func NewNewsCapability(news dataflows.NewsSource, cm model.BaseChatModel, maxArticles int) *NewsCapability {
	if maxArticles <= 0 {
		maxArticles = 10
	}
	return &NewsCapability{news: news, model: cm, maxArticles: maxArticles, now: time.Now}
}

// QueryNewsSentiment returns the human-readable sentiment report.
func (c *NewsCapability) QueryNewsSentiment(ctx context.Context, ticker string, daysBack int) (string, error) {
	res, err := c.Analyze(ctx, ticker, daysBack)
	if err != nil {
		return "", err
	}
	return res.Report(), nil
}

func (c *NewsCapability) Analyze(ctx context.Context, ticker string, daysBack int) (*NewsSentiment, error) {
	ticker = dataflows.NormalizeSymbol(ticker)
	if daysBack <= 0 {
		daysBack = 30
	}
	to := c.now()
	from := to.AddDate(0, 0, -daysBack)

	articles, err := c.news.CompanyNews(ctx, ticker, from, to)
	if err != nil {
		return nil, err
	}
	res := &NewsSentiment{Ticker: ticker, DaysBack: daysBack}
	if len(articles) == 0 {
		res.Sentiment, res.Action = "neutral", "hold"
		return res, nil
	}
	if len(articles) > c.maxArticles {
		articles = articles[:c.maxArticles]
	}

	for _, a := range articles {
		res.Articles = append(res.Articles, c.reflect(ctx, a))
	}
	res.Sentiment, res.SentimentCounts = tallyLabels(res.Articles, "sentiment: ", []string{"positive", "negative"}, "neutral")
	res.Action, res.ActionCounts = tallyLabels(res.Articles, "recommendation: ", []string{"buy", "sell"}, "hold")
	return res, nil
}

func (c *NewsCapability) reflect(ctx context.Context, a *dataflows.NewsArticle) ArticleReflection {
	r := ArticleReflection{
		Headline: a.Title,
		Date:     a.PublishedAt.Format("2006-01-02"),
		Source:   a.Source,
	}
	if r.Source == "" {
		r.Source = "Unknown"
	}

	prompt, err := utils.LoadPromptWithContext("news/reflection", map[string]string{
		"Headline": a.Title,
		"Date":     r.Date,
		"Source":   r.Source,
		"Summary":  a.Summary,
	})
	if err == nil {
		var out *schema.Message
		out, err = c.model.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)},
			model.WithTemperature(reflectionTemperature),
			model.WithMaxTokens(reflectionMaxTokens),
		)
		if err == nil && out != nil {
			r.Analysis = out.Content
			return r
		}
	}
	logger.Warn(ctx, "Article reflection failed", "headline", a.Title, "error", err)
	r.Analysis = "Error processing article"
	return r
}

// tallyLabels counts, per article, the first label found after prefix, or
// fallback. Ties resolve in the order labels are listed, fallback last.
func tallyLabels(articles []ArticleReflection, prefix string, labels []string, fallback string) (string, map[string]int) {
	counts := make(map[string]int, len(labels)+1)
	for _, l := range labels {
		counts[l] = 0
	}
	counts[fallback] = 0

	for _, a := range articles {
		text := strings.ToLower(a.Analysis)
		matched := fallback
		for _, l := range labels {
			if strings.Contains(text, prefix+l) {
				matched = l
				break
			}
		}
		counts[matched]++
	}

	best := fallback
	for _, l := range append(append([]string{}, labels...), fallback) {
		if counts[l] > counts[best] || (counts[l] == counts[best] && l != best && rank(l, labels) < rank(best, labels)) {
			best = l
		}
	}
	return best, counts
}

func rank(label string, labels []string) int {
	for i, l := range labels {
		if l == label {
			return i
		}
	}
	return len(labels)
}

// Report renders the aggregate. The per-article action is labelled as news
// implied so it cannot be mistaken for an analyst's own recommendation block.
func (n *NewsSentiment) Report() string {
	if len(n.Articles) == 0 {
		return fmt.Sprintf("No recent news found for %s in the last %d days.", n.Ticker, n.DaysBack)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "News Sentiment Analysis for %s\n", n.Ticker)
	b.WriteString(strings.Repeat("=", 50) + "\n\n")
	fmt.Fprintf(&b, "Analyzed %d recent news articles\n", len(n.Articles))
	fmt.Fprintf(&b, "Overall Sentiment: %s\n", strings.ToUpper(n.Sentiment))
	fmt.Fprintf(&b, "Sentiment breakdown: %d positive, %d negative, %d neutral\n",
		n.SentimentCounts["positive"], n.SentimentCounts["negative"], n.SentimentCounts["neutral"])
	fmt.Fprintf(&b, "News-implied action: %s\n\n", strings.ToUpper(n.Action))
	b.WriteString("Recent Headlines:\n")

	for i, a := range n.Articles {
		if i == headlinesShown {
			break
		}
		fmt.Fprintf(&b, "\n%d. %s (%s)\n", i+1, a.Headline, a.Date)
		fmt.Fprintf(&b, "   Source: %s\n", a.Source)
		if s := a.Summary(); s != "" {
			fmt.Fprintf(&b, "   %s\n", s)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
