package debate

import (
	"context"
	"fmt"

	"github.com/dyike/alphaagents/internal/agents"
	"github.com/dyike/alphaagents/internal/consensus"
	"github.com/dyike/alphaagents/internal/logger"
	"github.com/dyike/alphaagents/internal/models"
	"github.com/dyike/alphaagents/internal/recommendation"
)

type CollaborationResult struct {
	SessionID   string        `json:"session_id"`
	Ticker      string        `json:"ticker"`
	Mode        models.Mode   `json:"mode"`
	RiskProfile string        `json:"risk_profile"`
	Transcript  []models.Turn `json:"transcript"`
	Syntheses   []models.Turn `json:"syntheses"`
	Synthesis   string        `json:"synthesis"`
	NumTurns    int           `json:"num_turns"`
}

type DebateResult struct {
	SessionID   string           `json:"session_id"`
	Ticker      string           `json:"ticker"`
	Mode        models.Mode      `json:"mode"`
	RiskProfile string           `json:"risk_profile"`
	Transcript  []models.Turn    `json:"transcript"`
	Syntheses   []models.Turn    `json:"syntheses"`
	Consensus   consensus.Result `json:"consensus"`
	NumRounds   int              `json:"num_rounds"`
	NumTurns    int              `json:"num_turns"`
}

// Coordinator builds a fresh team per session and runs it to completion.
type Coordinator struct {
	builder  agents.TeamBuilder
	resolver *consensus.Resolver
	opts     Options
}

func NewCoordinator(builder agents.TeamBuilder, parser recommendation.Parser, opts Options) (*Coordinator, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Coordinator{
		builder:  builder,
		resolver: consensus.NewResolver(parser),
		opts:     opts,
	}, nil
}

// NewSession builds the team for profileName. An unknown profile fails here,
// before any agent exists.
func (c *Coordinator) NewSession(ctx context.Context, ticker string, mode models.Mode, profileName string) (*Session, *agents.Team, error) {
	team, err := c.builder.Build(ctx, profileName)
	if err != nil {
		return nil, nil, err
	}
	return NewSession(team, ticker, mode, c.opts, c.resolver), team, nil
}

func (c *Coordinator) RunCollaboration(ctx context.Context, ticker, profileName string) (*CollaborationResult, error) {
	sess, team, err := c.NewSession(ctx, ticker, models.ModeCollaboration, profileName)
	if err != nil {
		return nil, err
	}

	op := logger.StartOperation(ctx, "collaboration_session", "session_id", sess.ID, "ticker", ticker, "risk_profile", team.Profile.Name)
	if err := sess.Run(op.Context()); err != nil {
		op.EndWithError(err)
		return nil, fmt.Errorf("collaboration on %s: %w", ticker, err)
	}

	transcript := sess.Transcript()
	res := &CollaborationResult{
		SessionID:   sess.ID,
		Ticker:      ticker,
		Mode:        models.ModeCollaboration,
		RiskProfile: team.Profile.Name,
		Transcript:  transcript,
		Syntheses:   sess.Syntheses(),
		NumTurns:    len(transcript) + len(sess.syntheses),
	}
	res.Synthesis = finalText(transcript, res.Syntheses)
	op.End("turns", res.NumTurns, "early", sess.StoppedEarly())
	return res, nil
}

func (c *Coordinator) RunDebate(ctx context.Context, ticker, profileName string) (*DebateResult, error) {
	sess, team, err := c.NewSession(ctx, ticker, models.ModeDebate, profileName)
	if err != nil {
		return nil, err
	}

	op := logger.StartOperation(ctx, "debate_session", "session_id", sess.ID, "ticker", ticker, "risk_profile", team.Profile.Name)
	if err := sess.Run(op.Context()); err != nil {
		op.EndWithError(err)
		return nil, fmt.Errorf("debate on %s: %w", ticker, err)
	}

	transcript := sess.Transcript()
	res := &DebateResult{
		SessionID:   sess.ID,
		Ticker:      ticker,
		Mode:        models.ModeDebate,
		RiskProfile: team.Profile.Name,
		Transcript:  transcript,
		Syntheses:   sess.Syntheses(),
		Consensus:   c.resolver.Resolve(transcript),
		NumRounds:   (len(transcript) + len(team.Analysts) - 1) / len(team.Analysts),
		NumTurns:    len(transcript),
	}
	logger.Decision(op.Context(), ticker, string(res.Consensus.Decision), res.Consensus.ConsensusReached,
		"session_id", sess.ID,
		"buy", res.Consensus.Votes.Buy,
		"sell", res.Consensus.Votes.Sell,
		"unset", res.Consensus.Votes.Unset,
	)
	op.End("rounds", res.NumRounds, "early", sess.StoppedEarly())
	return res, nil
}

// finalText is the last successful synthesis, or the last analyst turn when
// no coordinator wrote one.
func finalText(transcript, syntheses []models.Turn) string {
	for i := len(syntheses) - 1; i >= 0; i-- {
		if !syntheses[i].Failed() {
			return syntheses[i].Text
		}
	}
	if len(transcript) == 0 {
		return ""
	}
	return transcript[len(transcript)-1].Text
}
