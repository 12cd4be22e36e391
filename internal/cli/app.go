package cli

import (
	"context"
	"fmt"

	"github.com/dyike/alphaagents/internal/agents"
	"github.com/dyike/alphaagents/internal/config"
	"github.com/dyike/alphaagents/internal/dataflows"
	"github.com/dyike/alphaagents/internal/debate"
	"github.com/dyike/alphaagents/internal/ratelimit"
	"github.com/dyike/alphaagents/internal/recommendation"
	"github.com/dyike/alphaagents/internal/retrieval"
	"github.com/dyike/alphaagents/internal/riskprofile"
	"github.com/dyike/alphaagents/internal/storage"
	"github.com/dyike/alphaagents/internal/tools"
)

// App holds the wired analysis stack for one process. Rate limiters and the
// price source are shared by every session it runs.
type App struct {
	cfg         *config.Config
	profiles    *riskprofile.Set
	prices      dataflows.PriceSource
	coordinator *debate.Coordinator
}

// NewApp validates configuration and credentials before anything talks to a
// provider.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.ValidateCredentials(); err != nil {
		return nil, err
	}
	profiles, err := riskprofile.Presets()
	if err != nil {
		return nil, err
	}

	cm, err := agents.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, err
	}
	limits := ratelimit.NewRegistry(cfg.RateLimits)
	prices := dataflows.NewPriceSource(ctx, cfg, limits)
	splitter, err := retrieval.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	var filingOpts []tools.FilingOption
	emb, err := agents.NewEmbedder(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if emb != nil {
		filingOpts = append(filingOpts, tools.WithEmbedder(emb))
	}

	caps := tools.Capabilities{
		Filing:       tools.NewFilingCapability(dataflows.NewEdgarClient(cfg, limits.For(config.ProviderSEC)), splitter, cfg.RAGTopK, filingOpts...),
		News:         tools.NewNewsCapability(dataflows.NewFinnhubClient(cfg, limits.For(config.ProviderFinnhub)), cm, cfg.NewsMaxArticles),
		Price:        tools.NewPriceCapability(prices, cfg.TradingDaysPerYear, cfg.RiskFreeRate),
		NewsDaysBack: cfg.NewsDaysBack,
		PricePeriod:  cfg.PricePeriod,
	}
	builder := agents.NewBuilder(
		profiles,
		agents.DefaultRoles(caps.ByRole()),
		agents.NewReactFactory(cm, cfg.AgentMaxSteps),
		agents.WithCoordinator(func(context.Context) (agents.Reasoner, error) {
			return agents.NewChatReasoner(cm), nil
		}),
		agents.WithTaskOptions(agents.TaskOptions{NewsDaysBack: cfg.NewsDaysBack, PricePeriod: cfg.PricePeriod}),
	)
	coordinator, err := debate.NewCoordinator(builder, recommendation.NewLenientParser(), debate.OptionsFromConfig(cfg))
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:         cfg,
		profiles:    profiles,
		prices:      prices,
		coordinator: coordinator,
	}, nil
}

// newPriceOnly wires just the price source, for commands that never call a
// model.
func newPriceOnly(ctx context.Context, cfg *config.Config) dataflows.PriceSource {
	return dataflows.NewPriceSource(ctx, cfg, ratelimit.NewRegistry(cfg.RateLimits))
}

func openStore(cfg *config.Config) (*storage.Store, error) {
	store, err := storage.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open decision store: %w", err)
	}
	return store, nil
}

// checkProfile rejects an unknown profile name before any wiring happens.
func checkProfile(name string) (riskprofile.Profile, error) {
	return riskprofile.Lookup(name)
}
