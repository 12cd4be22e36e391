package dataflows

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"

	"github.com/dyike/alphaagents/internal/ratelimit"
)

const (
	secWWWBaseURL  = "https://www.sec.gov"
	secDataBaseURL = "https://data.sec.gov"
)

// EdgarClient reads company filings from SEC EDGAR. SEC requires a
// descriptive User-Agent on every request.
type EdgarClient struct {
	www     *resty.Client
	data    *resty.Client
	cache   *CacheManager
	limiter ratelimit.Limiter
	retry   *RetryConfig
}

func NewEdgarClient(config *Config, limiter ratelimit.Limiter) *EdgarClient {
	cacheDir := filepath.Join(config.DataCacheDir, "sec_edgar")
	// filings change at most once a quarter
	cache := NewCacheManager(cacheDir, 7*24*time.Hour, config.CacheEnabled)

	newClient := func(base string) *resty.Client {
		return resty.New().
			SetBaseURL(base).
			SetTimeout(60*time.Second).
			SetHeader("User-Agent", config.SECUserAgent).
			SetHeader("Accept-Encoding", "gzip, deflate")
	}

	if limiter == nil {
		limiter = ratelimit.Noop()
	}
	return &EdgarClient{
		www:     newClient(secWWWBaseURL),
		data:    newClient(secDataBaseURL),
		cache:   cache,
		limiter: limiter,
		retry:   DefaultRetryConfig(),
	}
}

// WithBaseURLs points the client at other endpoints; www serves the ticker
// map and archives, data serves submissions.
func (ec *EdgarClient) WithBaseURLs(www, data string) *EdgarClient {
	ec.www.SetBaseURL(www)
	ec.data.SetBaseURL(data)
	return ec
}

type companyTicker struct {
	CIK    int64  `json:"cik_str"`
	Ticker string `json:"ticker"`
	Title  string `json:"title"`
}

type submissions struct {
	CIK     string `json:"cik"`
	Name    string `json:"name"`
	Filings struct {
		Recent struct {
			AccessionNumber []string `json:"accessionNumber"`
			FilingDate      []string `json:"filingDate"`
			Form            []string `json:"form"`
			PrimaryDocument []string `json:"primaryDocument"`
		} `json:"recent"`
	} `json:"filings"`
}

func (ec *EdgarClient) get(ctx context.Context, client *resty.Client, path string) ([]byte, error) {
	var body []byte
	err := WithRetry(ctx, ec.retry, func() error {
		if err := ec.limiter.Wait(ctx); err != nil {
			return Permanent(err)
		}
		resp, err := client.R().SetContext(ctx).Get(path)
		if err != nil {
			return fmt.Errorf("failed to fetch %s: %w", path, err)
		}
		if resp.StatusCode() == 404 {
			return Permanent(fmt.Errorf("%s: %w", path, ErrNotFound))
		}
		if resp.StatusCode() != 200 {
			return statusError("SEC", resp.StatusCode(), resp.String())
		}
		body = resp.Body()
		return nil
	})
	return body, err
}

// ResolveCIK maps a ticker to its zero-padded 10 digit CIK.
func (ec *EdgarClient) ResolveCIK(ctx context.Context, ticker string) (string, string, error) {
	if err := ValidateSymbol(ticker); err != nil {
		return "", "", err
	}
	ticker = NormalizeSymbol(ticker)

	var tickers map[string]companyTicker
	if !ec.cache.Get("sec", "company_tickers", "all", &tickers) {
		body, err := ec.get(ctx, ec.www, "/files/company_tickers.json")
		if err != nil {
			return "", "", err
		}
		if err := json.Unmarshal(body, &tickers); err != nil {
			return "", "", fmt.Errorf("failed to parse ticker map: %w", err)
		}
		ec.cache.Set("sec", "company_tickers", "all", tickers)
	}

	for _, t := range tickers {
		if strings.EqualFold(t.Ticker, ticker) {
			return fmt.Sprintf("%010d", t.CIK), t.Title, nil
		}
	}
	return "", "", fmt.Errorf("ticker %s: %w in SEC ticker map", ticker, ErrNotFound)
}

// LatestFiling finds the most recent filing of the given form type.
func (ec *EdgarClient) LatestFiling(ctx context.Context, ticker, form string) (*Filing, error) {
	cik, name, err := ec.ResolveCIK(ctx, ticker)
	if err != nil {
		return nil, err
	}

	body, err := ec.get(ctx, ec.data, fmt.Sprintf("/submissions/CIK%s.json", cik))
	if err != nil {
		return nil, err
	}
	var sub submissions
	if err := json.Unmarshal(body, &sub); err != nil {
		return nil, fmt.Errorf("failed to parse submissions for %s: %w", ticker, err)
	}

	recent := sub.Filings.Recent
	for i, f := range recent.Form {
		if f != form || i >= len(recent.AccessionNumber) || i >= len(recent.PrimaryDocument) {
			continue
		}
		filing := &Filing{
			CIK:             cik,
			Ticker:          NormalizeSymbol(ticker),
			CompanyName:     name,
			Form:            f,
			AccessionNumber: recent.AccessionNumber[i],
			PrimaryDocument: recent.PrimaryDocument[i],
		}
		if i < len(recent.FilingDate) {
			filing.FilingDate, _ = ParseDateString(recent.FilingDate[i])
		}
		filing.URL = archivePath(cik, filing.AccessionNumber, filing.PrimaryDocument)
		return filing, nil
	}
	return nil, fmt.Errorf("no %s filing for %s: %w", form, ticker, ErrNotFound)
}

func archivePath(cik, accession, document string) string {
	n, err := strconv.ParseInt(cik, 10, 64)
	if err != nil {
		n = 0
	}
	return fmt.Sprintf("/Archives/edgar/data/%d/%s/%s", n, strings.ReplaceAll(accession, "-", ""), document)
}

var blankRuns = regexp.MustCompile(`\n{3,}`)

const blockSelector = "p, div, td, li, h1, h2, h3, h4, h5, h6"

// FilingText downloads the filing document and reduces it to plain text.
func (ec *EdgarClient) FilingText(ctx context.Context, filing *Filing) (string, error) {
	if filing == nil {
		return "", errors.New("nil filing")
	}
	var cached string
	if ec.cache.Get("sec", "filing_text", filing.AccessionNumber, &cached) {
		return cached, nil
	}

	body, err := ec.get(ctx, ec.www, filing.URL)
	if err != nil {
		return "", err
	}
	text, err := HTMLToText(string(body))
	if err != nil {
		return "", fmt.Errorf("failed to extract text from %s: %w", filing.URL, err)
	}
	ec.cache.Set("sec", "filing_text", filing.AccessionNumber, text)
	return text, nil
}

// HTMLToText keeps visible text, one block element per paragraph.
func HTMLToText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	doc.Find("script, style, head").Remove()

	var b strings.Builder
	doc.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		// only leaf-level blocks, otherwise nested divs repeat their text
		if s.Find(blockSelector).Length() > 0 {
			return
		}
		text := strings.Join(strings.Fields(s.Text()), " ")
		if text == "" {
			return
		}
		b.WriteString(text)
		b.WriteString("\n\n")
	})

	out := b.String()
	if strings.TrimSpace(out) == "" {
		out = strings.Join(strings.Fields(doc.Text()), " ")
	}
	return strings.TrimSpace(blankRuns.ReplaceAllString(out, "\n\n")), nil
}
