package agents

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/tool"

	"github.com/dyike/alphaagents/internal/models"
	"github.com/dyike/alphaagents/internal/riskprofile"
)

// DefaultRoles returns the three analyst roles in speaking order, each bound
// to its capability from tools.
func DefaultRoles(tools map[models.Role]tool.BaseTool) []RoleSpec {
	return []RoleSpec{
		{Role: models.RoleFundamental, DisplayName: "Fundamental_Analyst", Specialty: "fundamental", Tool: tools[models.RoleFundamental]},
		{Role: models.RoleSentiment, DisplayName: "Sentiment_Analyst", Specialty: "sentiment", Tool: tools[models.RoleSentiment]},
		{Role: models.RoleValuation, DisplayName: "Valuation_Analyst", Specialty: "valuation", Tool: tools[models.RoleValuation]},
	}
}

// Team is the set of agents for one session. It is never shared between
// sessions.
type Team struct {
	Profile     riskprofile.Profile
	Analysts    []Responder
	Coordinator Synthesizer
}

// TeamBuilder creates a fresh team for a session.
type TeamBuilder interface {
	Build(ctx context.Context, profileName string) (*Team, error)
}

type Builder struct {
	profiles    *riskprofile.Set
	roles       []RoleSpec
	analysts    ReasonerFactory
	coordinator func(ctx context.Context) (Reasoner, error)
	task        TaskOptions
}

type BuilderOption func(*Builder)

// WithCoordinator adds a synthesis role backed by the reasoner newReasoner
// returns. Without it sessions run with analysts only.
func WithCoordinator(newReasoner func(ctx context.Context) (Reasoner, error)) BuilderOption {
	return func(b *Builder) {
		b.coordinator = newReasoner
	}
}

func WithTaskOptions(task TaskOptions) BuilderOption {
	return func(b *Builder) {
		b.task = task
	}
}

func NewBuilder(profiles *riskprofile.Set, roles []RoleSpec, analysts ReasonerFactory, opts ...BuilderOption) *Builder {
	b := &Builder{
		profiles: profiles,
		roles:    roles,
		analysts: analysts,
		task:     TaskOptions{NewsDaysBack: 30, PricePeriod: "3mo"},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build resolves the risk profile before constructing anything, so an
// unknown profile fails without side effects.
func (b *Builder) Build(ctx context.Context, profileName string) (*Team, error) {
	profile, err := b.profiles.Get(profileName)
	if err != nil {
		return nil, err
	}

	team := &Team{Profile: profile}
	for _, spec := range b.roles {
		reasoner, err := b.analysts(ctx, spec)
		if err != nil {
			return nil, fmt.Errorf("build %s: %w", spec.DisplayName, err)
		}
		analyst, err := NewAnalyst(ctx, spec, profile, reasoner, b.task)
		if err != nil {
			return nil, err
		}
		team.Analysts = append(team.Analysts, analyst)
	}

	if b.coordinator != nil {
		reasoner, err := b.coordinator(ctx)
		if err != nil {
			return nil, fmt.Errorf("build coordinator: %w", err)
		}
		team.Coordinator = NewCoordinator(profile, reasoner)
	}
	return team, nil
}
