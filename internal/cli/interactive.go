package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/AlecAivazis/survey/v2/terminal"

	"github.com/dyike/alphaagents/internal/config"
	"github.com/dyike/alphaagents/internal/display"
	"github.com/dyike/alphaagents/internal/riskprofile"
	"github.com/dyike/alphaagents/internal/storage"
)

// runInteractiveMode loops over the survey menu until the user quits or
// presses Ctrl+C.
func runInteractiveMode(ctx context.Context, cfg *config.Config) error {
	fmt.Println(display.Banner())
	fmt.Println()

	profiles, err := riskprofile.Presets()
	if err != nil {
		return err
	}

	for {
		action, err := PromptForAction()
		if err != nil {
			return promptErr(err)
		}

		switch action {
		case actionQuit:
			fmt.Println("👋 Goodbye!")
			return nil
		case actionAnalyze:
			err = interactiveAnalyze(ctx, cfg, profiles)
		case actionSelect:
			err = interactiveSelect(ctx, cfg, profiles)
		case actionDecisions:
			err = interactiveDecisions(ctx, cfg)
		}
		if err != nil {
			if errors.Is(err, terminal.InterruptErr) {
				return nil
			}
			display.Error(err, action)
		}

		again, err := PromptForContinue()
		if err != nil {
			return promptErr(err)
		}
		if !again {
			return nil
		}
	}
}

func interactiveAnalyze(ctx context.Context, cfg *config.Config, profiles *riskprofile.Set) error {
	ticker, err := PromptForTicker()
	if err != nil {
		return err
	}
	mode, err := PromptForMode()
	if err != nil {
		return err
	}
	profile, err := PromptForRiskProfile(profiles.Names(), cfg.DefaultRiskProfile)
	if err != nil {
		return err
	}
	return runAnalyze(ctx, cfg, ticker, mode, profile, true)
}

func interactiveSelect(ctx context.Context, cfg *config.Config, profiles *riskprofile.Set) error {
	tickers, err := PromptForUniverse()
	if err != nil {
		return err
	}
	profile, err := PromptForRiskProfile(profiles.Names(), cfg.DefaultRiskProfile)
	if err != nil {
		return err
	}
	return runSelect(ctx, cfg, tickers, profile, cfg.SelectionConcurrency, true)
}

func interactiveDecisions(ctx context.Context, cfg *config.Config) error {
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	recs, err := store.ListDecisions(ctx, storage.DecisionFilter{Limit: 20})
	if err != nil {
		return err
	}
	fmt.Println(display.Decisions(recs))
	return nil
}

func promptErr(err error) error {
	if errors.Is(err, terminal.InterruptErr) {
		fmt.Println("\n👋 Goodbye!")
		return nil
	}
	return err
}
