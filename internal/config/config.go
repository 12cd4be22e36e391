package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var (
	ErrInvalidConfig      = errors.New("invalid configuration")
	ErrMissingCredentials = errors.New("missing required credentials")
)

// Provider identities used to key rate limiters and caches.
const (
	ProviderFinnhub  = "finnhub"
	ProviderSEC      = "sec"
	ProviderYahoo    = "yahoo"
	ProviderLongport = "longport"
)

type RateLimit struct {
	MaxCalls int           `json:"max_calls"`
	Period   time.Duration `json:"period"`
}

type Config struct {
	ProjectDir   string `json:"project_dir"`
	ResultsDir   string `json:"results_dir"`
	DataDir      string `json:"data_dir"`
	DataCacheDir string `json:"data_cache_dir"`
	DBPath       string `json:"db_path"`

	LLMProvider    string  `json:"llm_provider"`
	LLMModel       string  `json:"llm_model"`
	LLMTemperature float32 `json:"llm_temperature"`
	LLMMaxTokens   int     `json:"llm_max_tokens"`
	BackendURL     string  `json:"backend_url"`

	// AI Model API Keys
	OpenAIAPIKey   string `json:"openai_api_key"`
	DeepSeekAPIKey string `json:"deepseek_api_key"`

	// Market data
	FinnhubAPIKey       string `json:"finnhub_api_key"`
	SECUserAgent        string `json:"sec_user_agent"`
	LongportAppKey      string `json:"longport_app_key"`
	LongportAppSecret   string `json:"longport_app_secret"`
	LongportAccessToken string `json:"longport_access_token"`
	CacheEnabled        bool   `json:"cache_enabled"`

	RateLimits map[string]RateLimit `json:"rate_limits"`

	// Debate protocol
	MaxDebateRounds       int           `json:"max_debate_rounds"`
	MinAgentTurns         int           `json:"min_agent_turns"`
	CollaborationMaxTurns int           `json:"collaboration_max_turns"`
	AgentTimeout          time.Duration `json:"agent_timeout"`
	AgentMaxSteps         int           `json:"agent_max_steps"`
	DefaultRiskProfile    string        `json:"default_risk_profile"`
	NewsDaysBack          int           `json:"news_days_back"`
	NewsMaxArticles       int           `json:"news_max_articles"`
	PricePeriod           string        `json:"price_period"`

	// Filing retrieval
	ChunkSize    int `json:"chunk_size"`
	ChunkOverlap int `json:"chunk_overlap"`
	RAGTopK      int `json:"rag_top_k"`

	// EmbeddingModel selects the OpenAI embedding model used to index
	// filings. Empty keeps lexical retrieval.
	EmbeddingModel string `json:"embedding_model"`

	// Backtest
	TradingDaysPerYear int     `json:"trading_days_per_year"`
	RiskFreeRate       float64 `json:"risk_free_rate"`
	RollingWindowDays  int     `json:"rolling_window_days"`
	InitialCapital     float64 `json:"initial_capital"`

	SelectionConcurrency int `json:"selection_concurrency"`

	Debug bool `json:"debug"`

	// Eino Debug configuration
	EinoDebugEnabled bool `json:"eino_debug_enabled"`
	EinoDebugPort    int  `json:"eino_debug_port"`

	LogLevel          string `json:"log_level"`
	LogFormat         string `json:"log_format"`
	LogTracingEnabled bool   `json:"log_tracing_enabled"`
}

func DefaultConfig() *Config {
	currentDir, _ := os.Getwd()

	cfg := &Config{
		ProjectDir:   currentDir,
		ResultsDir:   filepath.Join(currentDir, "results"),
		DataDir:      filepath.Join(currentDir, "data"),
		DataCacheDir: filepath.Join(currentDir, "data", "cache"),
		DBPath:       filepath.Join(currentDir, "data", "alphaagents.db"),

		LLMProvider:    "openai",
		LLMModel:       "gpt-4o",
		LLMTemperature: 0.7,
		LLMMaxTokens:   2000,
		BackendURL:     "",

		SECUserAgent: "AlphaAgents research@example.com",
		CacheEnabled: true,

		RateLimits: map[string]RateLimit{
			ProviderFinnhub:  {MaxCalls: 60, Period: 60 * time.Second},
			ProviderSEC:      {MaxCalls: 10, Period: time.Second},
			ProviderYahoo:    {MaxCalls: 100, Period: time.Hour},
			ProviderLongport: {MaxCalls: 10, Period: time.Second},
		},

		MaxDebateRounds:       5,
		MinAgentTurns:         2,
		CollaborationMaxTurns: 10,
		AgentTimeout:          120 * time.Second,
		AgentMaxSteps:         12,
		DefaultRiskProfile:    "risk_neutral",
		NewsDaysBack:          30,
		NewsMaxArticles:       10,
		PricePeriod:           "3mo",

		ChunkSize:    1000,
		ChunkOverlap: 200,
		RAGTopK:      5,

		EmbeddingModel: "text-embedding-3-small",

		TradingDaysPerYear: 252,
		RiskFreeRate:       0.05,
		RollingWindowDays:  20,
		InitialCapital:     100000,

		SelectionConcurrency: 3,

		EinoDebugEnabled: false,
		EinoDebugPort:    52538,

		LogLevel:          "INFO",
		LogFormat:         "text",
		LogTracingEnabled: false,
	}

	// Load environment variables from .env file
	_ = godotenv.Load()

	cfg.loadFromEnv()

	return cfg
}

func (c *Config) loadFromEnv() {
	if val := os.Getenv("PROJECT_DIR"); val != "" {
		c.ProjectDir = val
	}
	if val := os.Getenv("RESULTS_DIR"); val != "" {
		c.ResultsDir = val
	}
	if val := os.Getenv("DATA_DIR"); val != "" {
		c.DataDir = val
	}
	if val := os.Getenv("DATA_CACHE_DIR"); val != "" {
		c.DataCacheDir = val
	}
	if val := os.Getenv("ALPHA_DB_PATH"); val != "" {
		c.DBPath = val
	}

	if val := os.Getenv("LLM_PROVIDER"); val != "" {
		c.LLMProvider = strings.ToLower(val)
	}
	if val := os.Getenv("LLM_MODEL"); val != "" {
		c.LLMModel = val
	}
	if val := os.Getenv("LLM_TEMPERATURE"); val != "" {
		if v, err := strconv.ParseFloat(val, 32); err == nil {
			c.LLMTemperature = float32(v)
		}
	}
	if val := os.Getenv("LLM_MAX_TOKENS"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.LLMMaxTokens = v
		}
	}
	if val := os.Getenv("BACKEND_URL"); val != "" {
		c.BackendURL = val
	}

	if val := os.Getenv("OPENAI_API_KEY"); val != "" {
		c.OpenAIAPIKey = val
	}
	if val := os.Getenv("DEEPSEEK_API_KEY"); val != "" {
		c.DeepSeekAPIKey = val
	}
	if val, ok := os.LookupEnv("EMBEDDING_MODEL"); ok {
		c.EmbeddingModel = val
	}
	if val := os.Getenv("FINNHUB_API_KEY"); val != "" {
		c.FinnhubAPIKey = val
	}
	if val := os.Getenv("SEC_USER_AGENT"); val != "" {
		c.SECUserAgent = val
	}
	if val := os.Getenv("LONGPORT_APP_KEY"); val != "" {
		c.LongportAppKey = val
	}
	if val := os.Getenv("LONGPORT_APP_SECRET"); val != "" {
		c.LongportAppSecret = val
	}
	if val := os.Getenv("LONGPORT_ACCESS_TOKEN"); val != "" {
		c.LongportAccessToken = val
	}
	if val := os.Getenv("CACHE_ENABLED"); val != "" {
		if cache, err := strconv.ParseBool(val); err == nil {
			c.CacheEnabled = cache
		}
	}

	if val := os.Getenv("MAX_DEBATE_ROUNDS"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.MaxDebateRounds = v
		}
	}
	if val := os.Getenv("MIN_AGENT_TURNS"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.MinAgentTurns = v
		}
	}
	if val := os.Getenv("AGENT_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.AgentTimeout = d
		}
	}
	if val := os.Getenv("DEFAULT_RISK_PROFILE"); val != "" {
		c.DefaultRiskProfile = val
	}
	if val := os.Getenv("SELECTION_CONCURRENCY"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.SelectionConcurrency = v
		}
	}

	if val := os.Getenv("ALPHA_DEBUG"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.Debug = enabled
		}
	}
	if val := os.Getenv("EINO_DEBUG_ENABLED"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.EinoDebugEnabled = enabled
		}
	}
	if val := os.Getenv("EINO_DEBUG_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			c.EinoDebugPort = port
		}
	}

	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.LogLevel = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.LogFormat = val
	}
	if val := os.Getenv("LOG_TRACING_ENABLED"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.LogTracingEnabled = enabled
		}
	}
}

// Validate checks the protocol and backtest settings. It does not look at
// credentials; see ValidateCredentials.
func (c *Config) Validate() error {
	var problems []string
	if c.MaxDebateRounds <= 0 {
		problems = append(problems, "max_debate_rounds must be positive")
	}
	if c.MinAgentTurns <= 0 {
		problems = append(problems, "min_agent_turns must be positive")
	}
	if c.MinAgentTurns > c.MaxDebateRounds {
		problems = append(problems, fmt.Sprintf("min_agent_turns (%d) exceeds max_debate_rounds (%d)", c.MinAgentTurns, c.MaxDebateRounds))
	}
	if c.CollaborationMaxTurns <= 0 {
		problems = append(problems, "collaboration_max_turns must be positive")
	}
	if c.AgentTimeout <= 0 {
		problems = append(problems, "agent_timeout must be positive")
	}
	if c.TradingDaysPerYear <= 0 {
		problems = append(problems, "trading_days_per_year must be positive")
	}
	if c.RollingWindowDays < 2 {
		problems = append(problems, "rolling_window_days must be at least 2")
	}
	for name, rl := range c.RateLimits {
		if rl.MaxCalls <= 0 || rl.Period <= 0 {
			problems = append(problems, fmt.Sprintf("rate limit for %s must have positive calls and period", name))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// ValidateCredentials reports every credential the configured LLM provider
// and the news provider need.
func (c *Config) ValidateCredentials() error {
	var missing []string
	switch c.LLMProvider {
	case "deepseek":
		if c.DeepSeekAPIKey == "" {
			missing = append(missing, "DEEPSEEK_API_KEY")
		}
	default:
		if c.OpenAIAPIKey == "" {
			missing = append(missing, "OPENAI_API_KEY")
		}
	}
	if c.FinnhubAPIKey == "" {
		missing = append(missing, "FINNHUB_API_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingCredentials, strings.Join(missing, ", "))
	}
	return nil
}

func (c *Config) HasLongportCredentials() bool {
	return c.LongportAppKey != "" && c.LongportAppSecret != "" && c.LongportAccessToken != ""
}

func (c *Config) EnsureDirectories() error {
	dirs := []string{c.ResultsDir, c.DataDir, c.DataCacheDir, filepath.Dir(c.DBPath)}
	for _, dir := range dirs {
		path := strings.TrimSpace(dir)
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", path, err)
		}
	}
	return nil
}
