package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dyike/alphaagents/internal/backtest"
	"github.com/dyike/alphaagents/internal/config"
	"github.com/dyike/alphaagents/internal/debug"
	"github.com/dyike/alphaagents/internal/display"
	"github.com/dyike/alphaagents/internal/logger"
	"github.com/dyike/alphaagents/internal/models"
	"github.com/dyike/alphaagents/internal/selection"
	"github.com/dyike/alphaagents/internal/storage"
)

const version = "1.0.0"

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cfg := config.DefaultConfig()

	rootCmd := &cobra.Command{
		Use:   "alphaagents",
		Short: "AlphaAgents - multi-agent equity analysis",
		Long: `AlphaAgents runs a fundamental, a sentiment and a valuation analyst against one stock,
either collaborating on a joint report or debating until they agree to BUY or SELL.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			if path == "" {
				if cwd, err := os.Getwd(); err == nil {
					path, _ = config.DetectFile(cwd)
				}
			}
			if path != "" {
				loaded, err := config.LoadFile(path)
				if err != nil {
					return err
				}
				*cfg = *loaded
			}
			if dbg, _ := cmd.Flags().GetBool("debug"); dbg {
				cfg.Debug = true
				cfg.LogLevel = "DEBUG"
			}
			if err := logger.Init(logger.LogConfig{
				Level:           cfg.LogLevel,
				Format:          cfg.LogFormat,
				DetailedLogging: cfg.Debug,
				TracingEnabled:  cfg.LogTracingEnabled,
			}); err != nil {
				return err
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("failed to create directories: %w", err)
			}
			return debug.NewEinoDebugger(cfg).Initialize(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return logger.Shutdown(context.WithoutCancel(cmd.Context()))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInteractiveMode(cmd.Context(), cfg)
		},
	}

	rootCmd.AddCommand(newAnalyzeCmd(cfg))
	rootCmd.AddCommand(newSelectCmd(cfg))
	rootCmd.AddCommand(newBacktestCmd(cfg))
	rootCmd.AddCommand(newDecisionsCmd(cfg))
	rootCmd.AddCommand(newRunsCmd(cfg))
	rootCmd.AddCommand(newConfigCmd(cfg))
	rootCmd.AddCommand(newVersionCmd())

	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("config", "", "JSON configuration file path")

	return rootCmd
}

func newAnalyzeCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze TICKER",
		Short: "Run a collaboration or debate session on one stock",
		Long: `Run the three analysts on one ticker.
Example: alphaagents analyze AAPL --mode debate --risk risk_averse`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			modeFlag, _ := cmd.Flags().GetString("mode")
			profile, _ := cmd.Flags().GetString("risk")
			save, _ := cmd.Flags().GetBool("save")
			mode, err := models.ParseMode(modeFlag)
			if err != nil {
				return err
			}
			return runAnalyze(cmd.Context(), cfg, args[0], mode, profile, save)
		},
	}
	cmd.Flags().String("mode", string(models.ModeDebate), "Session mode: collaboration or debate")
	cmd.Flags().String("risk", cfg.DefaultRiskProfile, "Risk profile: risk_neutral, risk_averse or risk_seeking")
	cmd.Flags().Bool("save", true, "Record debate decisions in the local database")
	return cmd
}

func newSelectCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "select TICKER...",
		Short: "Debate every ticker and list the ones the analysts would buy",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, _ := cmd.Flags().GetString("risk")
			concurrency, _ := cmd.Flags().GetInt("concurrency")
			save, _ := cmd.Flags().GetBool("save")
			return runSelect(cmd.Context(), cfg, parseTickers(strings.Join(args, ",")), profile, concurrency, save)
		},
	}
	cmd.Flags().String("risk", cfg.DefaultRiskProfile, "Risk profile")
	cmd.Flags().Int("concurrency", cfg.SelectionConcurrency, "Debates to run at once")
	cmd.Flags().Bool("save", true, "Record decisions in the local database")
	return cmd
}

func newBacktestCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Backtest a buy-and-hold portfolio against an equal-weight benchmark",
		Long: `Backtest a portfolio over historical closes.
With --from-decisions the portfolio is the latest BUY list recorded for --risk and the
--tickers universe becomes the equal-weight benchmark.
Example: alphaagents backtest --tickers AAPL,MSFT,NVDA --start 2024-01-01 --end 2024-12-31`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := backtestOptions{}
			tickers, _ := cmd.Flags().GetString("tickers")
			weights, _ := cmd.Flags().GetString("weights")
			start, _ := cmd.Flags().GetString("start")
			end, _ := cmd.Flags().GetString("end")
			opts.fromDecisions, _ = cmd.Flags().GetBool("from-decisions")
			opts.profile, _ = cmd.Flags().GetString("risk")
			opts.output, _ = cmd.Flags().GetString("output")
			opts.save, _ = cmd.Flags().GetBool("save")

			opts.tickers = parseTickers(tickers)
			if len(opts.tickers) == 0 {
				return fmt.Errorf("--tickers is required")
			}
			var err error
			if opts.weights, err = parseWeights(weights); err != nil {
				return err
			}
			if opts.start, opts.end, err = parseRange(start, end, time.Now()); err != nil {
				return err
			}
			if opts.output == "" {
				opts.output = filepath.Join(cfg.ResultsDir, "backtest")
			}
			return runBacktest(cmd.Context(), cfg, opts)
		},
	}
	cmd.Flags().String("tickers", "", "Comma-separated tickers")
	cmd.Flags().String("weights", "", "Explicit weights, e.g. AAPL=0.6,MSFT=0.4 (default equal weight)")
	cmd.Flags().String("start", "", "Start date YYYY-MM-DD (default one year before end)")
	cmd.Flags().String("end", "", "End date YYYY-MM-DD (default today)")
	cmd.Flags().Bool("from-decisions", false, "Use the latest recorded BUY decisions as the portfolio")
	cmd.Flags().String("risk", cfg.DefaultRiskProfile, "Risk profile whose decisions --from-decisions reads")
	cmd.Flags().String("output", "", "Report directory (default <results>/backtest)")
	cmd.Flags().Bool("save", true, "Record the run in the local database")
	return cmd
}

func newDecisionsCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decisions",
		Short: "List recorded debate decisions",
		RunE: func(cmd *cobra.Command, args []string) error {
			var f storage.DecisionFilter
			f.Ticker, _ = cmd.Flags().GetString("ticker")
			f.RiskProfile, _ = cmd.Flags().GetString("risk")
			f.Decision, _ = cmd.Flags().GetString("decision")
			f.Limit, _ = cmd.Flags().GetInt("limit")
			f.Ticker = strings.ToUpper(f.Ticker)
			f.Decision = strings.ToUpper(f.Decision)

			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			recs, err := store.ListDecisions(cmd.Context(), f)
			if err != nil {
				return err
			}
			fmt.Println(display.Decisions(recs))
			return nil
		},
	}
	cmd.Flags().String("ticker", "", "Only this ticker")
	cmd.Flags().String("risk", "", "Only this risk profile")
	cmd.Flags().String("decision", "", "Only BUY or SELL")
	cmd.Flags().Int("limit", 50, "Maximum rows")
	return cmd
}

func newRunsCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded backtest runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			runs, err := store.ListBacktests(cmd.Context(), limit)
			if err != nil {
				return err
			}
			fmt.Println(display.BacktestRuns(runs))
			return nil
		},
	}
	cmd.Flags().Int("limit", 20, "Maximum rows")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("AlphaAgents v%s\n", version)
			fmt.Println("Multi-agent equity analysis built on cloudwego/eino")
		},
	}
}

func newConfigCmd(cfg *config.Config) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Run: func(cmd *cobra.Command, args []string) {
			showConfig(cfg)
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration and credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateConfig(cfg)
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "init [PATH]",
		Short: "Write the current configuration to a JSON file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.DefaultFile
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.WriteFile(path, cfg); err != nil {
				return err
			}
			display.Success("Configuration written to " + path)
			return nil
		},
	})

	return configCmd
}

func runAnalyze(ctx context.Context, cfg *config.Config, ticker string, mode models.Mode, profile string, save bool) error {
	if _, err := checkProfile(profile); err != nil {
		return err
	}
	app, err := NewApp(ctx, cfg)
	if err != nil {
		return err
	}

	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	display.Info(fmt.Sprintf("Starting %s on %s (%s)", mode, ticker, profile))

	if mode == models.ModeCollaboration {
		res, err := app.coordinator.RunCollaboration(ctx, ticker, profile)
		if err != nil {
			return fmt.Errorf("analysis failed: %w", err)
		}
		fmt.Println(display.CollaborationResult(res))
		writeSessionReport(cfg, reportFromCollaboration(res))
		return nil
	}

	res, err := app.coordinator.RunDebate(ctx, ticker, profile)
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}
	fmt.Println(display.DebateResult(res))
	writeSessionReport(cfg, reportFromDebate(res))

	if save {
		store, err := openStore(cfg)
		if err != nil {
			display.Warning(err.Error())
			return nil
		}
		defer store.Close()
		rec := storage.DecisionFromDebate(res)
		if err := store.SaveDecision(ctx, &rec); err != nil {
			display.Warning(fmt.Sprintf("decision not recorded: %v", err))
		}
	}
	return nil
}

func runSelect(ctx context.Context, cfg *config.Config, tickers []string, profile string, concurrency int, save bool) error {
	if _, err := checkProfile(profile); err != nil {
		return err
	}
	app, err := NewApp(ctx, cfg)
	if err != nil {
		return err
	}

	opts := []selection.Option{
		selection.WithProgress(func(it selection.Item) {
			if it.Status == selection.Completed || it.Status == selection.Failed {
				display.Info(fmt.Sprintf("%s %s", it.Ticker, it.Status))
			}
		}),
	}
	if save {
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()
		opts = append(opts, selection.WithStore(store))
	}

	display.Info(fmt.Sprintf("Debating %d tickers with up to %d sessions at once", len(tickers), concurrency))
	report, err := selection.NewPipeline(app.coordinator, concurrency, opts...).Run(ctx, tickers, profile)
	if err != nil {
		return err
	}
	fmt.Println(display.SelectionReport(report))
	return nil
}

func writeSessionReport(cfg *config.Config, r sessionReport) {
	path, err := r.save(cfg.ResultsDir, time.Now())
	if err != nil {
		display.Warning(err.Error())
		return
	}
	display.Success("Session report saved to " + path)
}

type backtestOptions struct {
	tickers       []string
	weights       map[string]float64
	start, end    time.Time
	fromDecisions bool
	profile       string
	output        string
	save          bool
}

func runBacktest(ctx context.Context, cfg *config.Config, opts backtestOptions) error {
	var store *storage.Store
	if opts.save || opts.fromDecisions {
		var err error
		if store, err = openStore(cfg); err != nil {
			return err
		}
		defer store.Close()
	}

	portfolios := []backtest.Portfolio{{
		Name:           "Portfolio",
		Tickers:        opts.tickers,
		Start:          opts.start,
		End:            opts.end,
		Weights:        opts.weights,
		InitialCapital: cfg.InitialCapital,
	}}
	if opts.fromDecisions {
		buys, err := store.LatestBuys(ctx, opts.profile)
		if err != nil {
			return err
		}
		if len(buys) == 0 {
			return fmt.Errorf("no BUY decisions recorded for %s", opts.profile)
		}
		portfolios = []backtest.Portfolio{
			{Name: "AlphaAgents " + opts.profile, Tickers: buys, Start: opts.start, End: opts.end, InitialCapital: cfg.InitialCapital},
			{Name: "Benchmark", Tickers: opts.tickers, Start: opts.start, End: opts.end, InitialCapital: cfg.InitialCapital},
		}
	}

	prices := newPriceOnly(ctx, cfg)
	settings := backtest.SettingsFromConfig(cfg)
	results := make([]*backtest.Result, 0, len(portfolios))
	for _, p := range portfolios {
		res, err := p.Run(ctx, prices, settings)
		if err != nil {
			return fmt.Errorf("backtest %s: %w", p.Name, err)
		}
		fmt.Println(res.Summary())
		results = append(results, res)
		if store != nil && opts.save {
			if _, err := store.SaveBacktest(ctx, p.Name, res.Tickers, p.Start, p.End, res.Metrics); err != nil {
				display.Warning(fmt.Sprintf("backtest not recorded: %v", err))
			}
		}
	}

	fmt.Println(display.BacktestTable(backtest.Compare(results)))
	csvPath, mdPath, err := backtest.WriteReport(opts.output, results)
	if err != nil {
		return err
	}
	display.Success(fmt.Sprintf("Report written to %s and %s (rolling Sharpe series in %s)",
		csvPath, mdPath, filepath.Join(opts.output, backtest.RollingSharpeFile)))
	return nil
}

func showConfig(cfg *config.Config) {
	fmt.Println(display.Header("📋 Current AlphaAgents Configuration"))
	fmt.Printf("Project Directory:    %s\n", cfg.ProjectDir)
	fmt.Printf("Results Directory:    %s\n", cfg.ResultsDir)
	fmt.Printf("Data Directory:       %s\n", cfg.DataDir)
	fmt.Printf("Cache Directory:      %s\n", cfg.DataCacheDir)
	fmt.Printf("Database:             %s\n", cfg.DBPath)
	fmt.Println()
	fmt.Printf("LLM Provider:         %s\n", cfg.LLMProvider)
	fmt.Printf("Model:                %s\n", cfg.LLMModel)
	fmt.Printf("Backend URL:          %s\n", cfg.BackendURL)
	fmt.Println()
	fmt.Printf("Max Debate Rounds:    %d\n", cfg.MaxDebateRounds)
	fmt.Printf("Min Agent Turns:      %d\n", cfg.MinAgentTurns)
	fmt.Printf("Collaboration Turns:  %d\n", cfg.CollaborationMaxTurns)
	fmt.Printf("Agent Timeout:        %s\n", cfg.AgentTimeout)
	fmt.Printf("Default Risk Profile: %s\n", cfg.DefaultRiskProfile)
	fmt.Println()
	fmt.Printf("Cache Enabled:        %t\n", cfg.CacheEnabled)
	fmt.Printf("Debug Mode:           %t\n", cfg.Debug)
	fmt.Printf("Eino Debug:           %t\n", cfg.EinoDebugEnabled)
	if cfg.EinoDebugEnabled {
		fmt.Printf("Debug URL:            http://localhost:%d\n", cfg.EinoDebugPort)
	}
	fmt.Println()

	fmt.Println("🔌 API Configuration:")
	fmt.Println("─────────────────────")
	fmt.Printf("LLM API key:          %s\n", configured(llmKey(cfg) != ""))
	fmt.Printf("Finnhub API:          %s\n", configured(cfg.FinnhubAPIKey != ""))
	fmt.Printf("Longport:             %s\n", configured(cfg.HasLongportCredentials()))
	fmt.Printf("SEC User Agent:       %s\n", cfg.SECUserAgent)
}

func llmKey(cfg *config.Config) string {
	if cfg.LLMProvider == "deepseek" {
		return cfg.DeepSeekAPIKey
	}
	return cfg.OpenAIAPIKey
}

func configured(ok bool) string {
	if ok {
		return "✅ Configured"
	}
	return "❌ Not configured"
}

func validateConfig(cfg *config.Config) error {
	fmt.Println("🔍 Validating AlphaAgents Configuration...")

	fmt.Print("📁 Checking directories... ")
	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Println("❌")
		return fmt.Errorf("directory validation failed: %w", err)
	}
	fmt.Println("✅")

	fmt.Print("⚙️  Checking configuration values... ")
	if err := cfg.Validate(); err != nil {
		fmt.Println("❌")
		return err
	}
	fmt.Println("✅")

	fmt.Print("🎚  Checking default risk profile... ")
	if _, err := checkProfile(cfg.DefaultRiskProfile); err != nil {
		fmt.Println("❌")
		return err
	}
	fmt.Println("✅")

	fmt.Print("🔑 Checking API keys... ")
	if err := cfg.ValidateCredentials(); err != nil {
		fmt.Println("❌")
		return err
	}
	fmt.Println("✅")
	if !cfg.HasLongportCredentials() {
		display.Warning("Longport credentials not configured, exchange-qualified symbols use Yahoo")
	}

	display.Success("Configuration validation completed successfully!")
	return nil
}

// parseTickers splits a comma or space separated list, uppercasing and
// dropping duplicates.
func parseTickers(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
	seen := make(map[string]bool, len(fields))
	var out []string
	for _, f := range fields {
		t := strings.ToUpper(strings.TrimSpace(f))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// parseWeights reads "AAPL=0.6,MSFT=0.4". An empty string means equal weight.
func parseWeights(s string) (map[string]float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	out := make(map[string]float64)
	for _, pair := range strings.Split(s, ",") {
		ticker, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("%w: %q is not TICKER=WEIGHT", backtest.ErrInvalidWeights, pair)
		}
		w, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", backtest.ErrInvalidWeights, pair, err)
		}
		out[strings.ToUpper(strings.TrimSpace(ticker))] = w
	}
	return out, nil
}

// parseRange defaults end to today and start to one year before end.
func parseRange(start, end string, now time.Time) (time.Time, time.Time, error) {
	e := now
	if strings.TrimSpace(end) != "" {
		var err error
		if e, err = time.Parse("2006-01-02", strings.TrimSpace(end)); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid end date, use YYYY-MM-DD: %w", err)
		}
	}
	s := e.AddDate(-1, 0, 0)
	if strings.TrimSpace(start) != "" {
		var err error
		if s, err = time.Parse("2006-01-02", strings.TrimSpace(start)); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid start date, use YYYY-MM-DD: %w", err)
		}
	}
	if !s.Before(e) {
		return time.Time{}, time.Time{}, fmt.Errorf("start date %s is not before end date %s", s.Format("2006-01-02"), e.Format("2006-01-02"))
	}
	return s, e, nil
}
