// Package debate schedules analyst turns for one ticker and decides when a
// session is over.
package debate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dyike/alphaagents/internal/agents"
	"github.com/dyike/alphaagents/internal/config"
	"github.com/dyike/alphaagents/internal/consensus"
	"github.com/dyike/alphaagents/internal/logger"
	"github.com/dyike/alphaagents/internal/models"
)

var ErrSessionFinished = errors.New("session already terminated")

type State int

const (
	NotStarted State = iota
	InProgress
	Terminated
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case InProgress:
		return "in_progress"
	case Terminated:
		return "terminated"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Options bound a session's length.
type Options struct {
	MaxDebateRounds       int
	MinAgentTurns         int
	CollaborationMaxTurns int
	AgentTimeout          time.Duration
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		MaxDebateRounds:       cfg.MaxDebateRounds,
		MinAgentTurns:         cfg.MinAgentTurns,
		CollaborationMaxTurns: cfg.CollaborationMaxTurns,
		AgentTimeout:          cfg.AgentTimeout,
	}
}

func (o Options) Validate() error {
	switch {
	case o.MaxDebateRounds <= 0:
		return fmt.Errorf("%w: max debate rounds must be positive", config.ErrInvalidConfig)
	case o.MinAgentTurns <= 0:
		return fmt.Errorf("%w: min agent turns must be positive", config.ErrInvalidConfig)
	case o.MinAgentTurns > o.MaxDebateRounds:
		return fmt.Errorf("%w: min agent turns (%d) exceeds max debate rounds (%d)",
			config.ErrInvalidConfig, o.MinAgentTurns, o.MaxDebateRounds)
	case o.CollaborationMaxTurns <= 0:
		return fmt.Errorf("%w: collaboration max turns must be positive", config.ErrInvalidConfig)
	case o.AgentTimeout <= 0:
		return fmt.Errorf("%w: agent timeout must be positive", config.ErrInvalidConfig)
	}
	return nil
}

// Session is one run of a team over one ticker. It is driven by Step and is
// not safe for concurrent use.
type Session struct {
	ID     string
	Ticker string
	Mode   models.Mode

	team     *agents.Team
	opts     Options
	resolver *consensus.Resolver

	state      State
	transcript models.Transcript
	syntheses  []models.Turn
	// turns counts analyst and synthesis turns against the collaboration budget
	turns         int
	synthesizedAt int
	stoppedEarly  bool
}

func NewSession(team *agents.Team, ticker string, mode models.Mode, opts Options, resolver *consensus.Resolver) *Session {
	return &Session{
		ID:            uuid.NewString(),
		Ticker:        ticker,
		Mode:          mode,
		team:          team,
		opts:          opts,
		resolver:      resolver,
		synthesizedAt: -1,
	}
}

func (s *Session) State() State { return s.state }

// Transcript returns the analyst turns so far.
func (s *Session) Transcript() []models.Turn { return s.transcript.Turns() }

// Syntheses returns the coordinator's turns so far. They never vote.
func (s *Session) Syntheses() []models.Turn {
	out := make([]models.Turn, len(s.syntheses))
	copy(out, s.syntheses)
	return out
}

// StoppedEarly reports whether a synthesis ended the session before its cap.
func (s *Session) StoppedEarly() bool { return s.stoppedEarly }

func (s *Session) analystTurns() int { return s.transcript.Len() }

func (s *Session) numAnalysts() int { return len(s.team.Analysts) }

// minTurnsMet reports whether every analyst has spoken MinAgentTurns times.
func (s *Session) minTurnsMet() bool {
	for _, a := range s.team.Analysts {
		if s.transcript.CountBy(a.Identity().Role) < s.opts.MinAgentTurns {
			return false
		}
	}
	return true
}

func (s *Session) roundComplete() bool {
	n := s.analystTurns()
	return n > 0 && n%s.numAnalysts() == 0
}

// Run steps the session until it terminates.
func (s *Session) Run(ctx context.Context) error {
	for s.state != Terminated {
		if err := s.Step(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Step performs one scheduling step: the next analyst's turn or, when one is
// due, a coordinator synthesis. Termination is checked after every step.
func (s *Session) Step(ctx context.Context) error {
	switch s.state {
	case Terminated:
		return ErrSessionFinished
	case NotStarted:
		if len(s.team.Analysts) == 0 {
			return fmt.Errorf("session %s has no analysts", s.ID)
		}
		s.state = InProgress
		logger.Info(ctx, "Session started", "session_id", s.ID, "ticker", s.Ticker, "mode", s.Mode)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if s.synthesisDue() {
		s.synthesize(ctx)
	} else {
		s.analystTurn(ctx)
	}

	if s.shouldTerminate() {
		s.state = Terminated
		logger.Info(ctx, "Session terminated", "session_id", s.ID,
			"analyst_turns", s.analystTurns(), "syntheses", len(s.syntheses), "early", s.stoppedEarly)
	}
	return nil
}

func (s *Session) synthesisDue() bool {
	if s.team.Coordinator == nil || s.synthesizedAt == s.analystTurns() {
		return false
	}
	afterRound := s.roundComplete() && s.minTurnsMet()
	if s.Mode == models.ModeDebate {
		return afterRound
	}
	return afterRound || s.opts.CollaborationMaxTurns-s.turns == 1
}

func (s *Session) shouldTerminate() bool {
	if s.stoppedEarly {
		return true
	}
	if s.Mode == models.ModeDebate {
		return s.analystTurns() >= s.opts.MaxDebateRounds*s.numAnalysts()
	}
	return s.turns >= s.opts.CollaborationMaxTurns
}

// conclude decides whether the next analyst is asked for a recommendation
// block. Debate turns always conclude; collaboration turns conclude once the
// minimum turns are in reach or the budget is nearly spent.
func (s *Session) conclude() bool {
	if s.Mode == models.ModeDebate {
		return true
	}
	round := s.analystTurns() / s.numAnalysts()
	remaining := s.opts.CollaborationMaxTurns - s.turns - 1
	return round >= s.opts.MinAgentTurns-1 || remaining < s.numAnalysts()
}

func (s *Session) analystTurn(ctx context.Context) {
	n := s.analystTurns()
	analyst := s.team.Analysts[n%s.numAnalysts()]
	id := analyst.Identity()

	ctx, span := logger.StartSpan(ctx, "analyst_turn")
	defer span.End()

	req := agents.TurnRequest{
		Ticker:     s.Ticker,
		Mode:       s.Mode,
		Transcript: s.transcript.Turns(),
		Conclude:   s.conclude(),
	}
	start := time.Now()
	text, err := s.invoke(ctx, func(ctx context.Context) (string, error) {
		return analyst.Respond(ctx, req)
	})

	turn := models.Turn{
		Speaker:   id,
		Index:     n,
		Round:     n / s.numAnalysts(),
		Text:      text,
		CreatedAt: time.Now(),
	}
	if err != nil {
		turn.Err = err.Error()
		turn.Text = unavailableText(id.DisplayName, err)
		logger.ErrorWithErr(ctx, "Analyst turn failed", err, "session_id", s.ID, "speaker", id.DisplayName)
	} else {
		logger.Debug(ctx, "Analyst turn", "session_id", s.ID, "speaker", id.DisplayName,
			"index", n, "chars", len(text), "duration_ms", time.Since(start).Milliseconds())
	}
	s.transcript.Append(turn)
	s.turns++
}

func (s *Session) synthesize(ctx context.Context) {
	n := s.analystTurns()
	ctx, span := logger.StartSpan(ctx, "synthesis_turn")
	defer span.End()

	final := s.Mode == models.ModeCollaboration && s.opts.CollaborationMaxTurns-s.turns == 1
	req := agents.SynthesisRequest{
		Ticker:     s.Ticker,
		Mode:       s.Mode,
		Transcript: s.transcript.Turns(),
		Final:      final,
	}
	text, err := s.invoke(ctx, func(ctx context.Context) (string, error) {
		return s.team.Coordinator.Synthesize(ctx, req)
	})

	turn := models.Turn{
		Speaker:   models.AgentIdentity{Role: models.RoleCoordinator, DisplayName: "Coordinator"},
		Index:     len(s.syntheses),
		Round:     n / s.numAnalysts(),
		Text:      text,
		CreatedAt: time.Now(),
	}
	if err != nil {
		turn.Err = err.Error()
		turn.Text = unavailableText(turn.Speaker.DisplayName, err)
		logger.ErrorWithErr(ctx, "Synthesis failed", err, "session_id", s.ID)
	}
	s.syntheses = append(s.syntheses, turn)
	s.synthesizedAt = n
	if s.Mode == models.ModeCollaboration {
		s.turns++
	}

	if err == nil && agents.SignalsTermination(text) && s.minTurnsMet() {
		// in debate the sentinel only counts when the votes agree with it
		if s.Mode == models.ModeDebate && !s.resolver.Resolve(s.transcript.Turns()).ConsensusReached {
			logger.Warn(ctx, "Ignoring termination without consensus", "session_id", s.ID)
			return
		}
		s.stoppedEarly = true
	}
}

// invoke runs one agent call under the per-agent timeout. Errors, panics and
// timeouts all come back as err.
func (s *Session) invoke(ctx context.Context, call func(ctx context.Context) (string, error)) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.AgentTimeout)
	defer cancel()

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		text, err := call(ctx)
		done <- result{text: text, err: err}
	}()

	select {
	case r := <-done:
		return r.text, r.err
	case <-ctx.Done():
		return "", fmt.Errorf("timed out after %s: %w", s.opts.AgentTimeout, ctx.Err())
	}
}

func unavailableText(name string, err error) string {
	return fmt.Sprintf("[%s unavailable: %v]", name, err)
}
