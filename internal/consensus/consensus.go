// Package consensus turns a finished debate transcript into one BUY/SELL
// decision.
package consensus

import (
	"github.com/dyike/alphaagents/internal/models"
	"github.com/dyike/alphaagents/internal/recommendation"
)

type Votes struct {
	Buy   int `json:"buy"`
	Sell  int `json:"sell"`
	Unset int `json:"unset"`
}

type Result struct {
	Decision         recommendation.Action                         `json:"decision"`
	ConsensusReached bool                                          `json:"consensus_reached"`
	Votes            Votes                                         `json:"votes"`
	PerRole          map[models.Role]recommendation.Recommendation `json:"per_role"`
	Excerpt          []models.Turn                                 `json:"excerpt"`
}

type Resolver struct {
	parser recommendation.Parser
	roles  []models.Role
}

func NewResolver(parser recommendation.Parser) *Resolver {
	return &Resolver{parser: parser, roles: models.AnalystRoles}
}

// Resolve scans turns newest first and keeps, per role, the first turn the
// parser resolves to BUY or SELL. Roles without one stay UNSET. Turns by
// speakers outside the analyst roles are ignored.
func (r *Resolver) Resolve(turns []models.Turn) Result {
	perRole := make(map[models.Role]recommendation.Recommendation, len(r.roles))
	source := make(map[models.Role]int, len(r.roles))
	for _, role := range r.roles {
		perRole[role] = recommendation.Unset
	}

	for i := len(turns) - 1; i >= 0; i-- {
		role := turns[i].Speaker.Role
		current, voting := perRole[role]
		if !voting || current.Resolved() {
			continue
		}
		rec := r.parser.Parse(turns[i].Text)
		if rec.Resolved() {
			perRole[role] = rec
			source[role] = i
		}
	}

	recs := make([]recommendation.Recommendation, 0, len(r.roles))
	for _, role := range r.roles {
		recs = append(recs, perRole[role])
	}
	decision, reached, votes := Tally(recs)

	excerpt := make([]models.Turn, 0, len(source))
	for i, t := range turns {
		for _, idx := range source {
			if idx == i {
				excerpt = append(excerpt, t)
				break
			}
		}
	}

	return Result{
		Decision:         decision,
		ConsensusReached: reached,
		Votes:            votes,
		PerRole:          perRole,
		Excerpt:          excerpt,
	}
}

// Tally applies the majority-of-three rule. Anything short of two matching
// votes resolves to SELL without consensus.
func Tally(recs []recommendation.Recommendation) (recommendation.Action, bool, Votes) {
	var v Votes
	for _, rec := range recs {
		switch rec.Action {
		case recommendation.ActionBuy:
			v.Buy++
		case recommendation.ActionSell:
			v.Sell++
		default:
			v.Unset++
		}
	}
	switch {
	case v.Buy >= 2:
		return recommendation.ActionBuy, true, v
	case v.Sell >= 2:
		return recommendation.ActionSell, true, v
	default:
		return recommendation.ActionSell, false, v
	}
}
