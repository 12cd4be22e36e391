package cli

import (
	"fmt"
	"strings"

	"github.com/AlecAivazis/survey/v2"

	"github.com/dyike/alphaagents/internal/dataflows"
	"github.com/dyike/alphaagents/internal/models"
)

// Interactive menu entries.
const (
	actionAnalyze   = "Analyze a stock"
	actionSelect    = "Select stocks from a universe"
	actionDecisions = "Show recorded decisions"
	actionQuit      = "Quit"
)

// PromptForAction asks what the interactive session should do next.
func PromptForAction() (string, error) {
	var action string
	prompt := &survey.Select{
		Message: "What would you like to do?",
		Options: []string{actionAnalyze, actionSelect, actionDecisions, actionQuit},
		Default: actionAnalyze,
	}
	if err := survey.AskOne(prompt, &action); err != nil {
		return "", err
	}
	return action, nil
}

// PromptForTicker prompts the user to enter a stock ticker symbol
func PromptForTicker() (string, error) {
	var ticker string
	prompt := &survey.Input{
		Message: "Enter the stock ticker symbol (e.g., AAPL, MSFT, 700.HK):",
		Help:    "Exchange-qualified symbols are routed to Longport when it is configured",
	}

	err := survey.AskOne(prompt, &ticker, survey.WithValidator(validateTicker))
	if err != nil {
		return "", err
	}
	return dataflows.NormalizeSymbol(ticker), nil
}

// PromptForUniverse asks for a comma-separated ticker list.
func PromptForUniverse() ([]string, error) {
	var raw string
	prompt := &survey.Input{
		Message: "Enter tickers separated by commas:",
		Help:    "Each ticker gets its own debate; the BUY decisions form the selection",
	}
	err := survey.AskOne(prompt, &raw, survey.WithValidator(func(val interface{}) error {
		tickers := parseTickers(val.(string))
		if len(tickers) == 0 {
			return fmt.Errorf("enter at least one ticker")
		}
		for _, t := range tickers {
			if err := validateTicker(t); err != nil {
				return fmt.Errorf("%s: %w", t, err)
			}
		}
		return nil
	}))
	if err != nil {
		return nil, err
	}
	return parseTickers(raw), nil
}

func validateTicker(val interface{}) error {
	str, _ := val.(string)
	return dataflows.ValidateSymbol(dataflows.NormalizeSymbol(str))
}

// PromptForMode asks for collaboration or debate.
func PromptForMode() (models.Mode, error) {
	var choice string
	prompt := &survey.Select{
		Message: "Select the session mode:",
		Options: []string{string(models.ModeDebate), string(models.ModeCollaboration)},
		Default: string(models.ModeDebate),
		Description: func(value string, _ int) string {
			if value == string(models.ModeDebate) {
				return "analysts argue until they agree on BUY or SELL"
			}
			return "analysts build one joint report"
		},
	}
	if err := survey.AskOne(prompt, &choice); err != nil {
		return "", err
	}
	return models.ParseMode(choice)
}

// PromptForRiskProfile lists the known profiles with the default preselected.
func PromptForRiskProfile(names []string, def string) (string, error) {
	var choice string
	prompt := &survey.Select{
		Message: "Select the risk profile:",
		Options: names,
		Default: def,
	}
	if err := survey.AskOne(prompt, &choice); err != nil {
		return "", err
	}
	return strings.TrimSpace(choice), nil
}

// PromptForContinue asks if the user wants to run another session.
func PromptForContinue() (bool, error) {
	again := false
	prompt := &survey.Confirm{
		Message: "Run another session?",
		Default: false,
	}
	if err := survey.AskOne(prompt, &again); err != nil {
		return false, err
	}
	return again, nil
}
