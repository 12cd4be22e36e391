package models

import (
	"fmt"
	"strings"
	"time"
)

type Role string

const (
	RoleFundamental Role = "Fundamental"
	RoleSentiment   Role = "Sentiment"
	RoleValuation   Role = "Valuation"
	RoleCoordinator Role = "Coordinator"
)

// AnalystRoles is the fixed round-robin speaking order.
var AnalystRoles = []Role{RoleFundamental, RoleSentiment, RoleValuation}

type Mode string

const (
	ModeCollaboration Mode = "collaboration"
	ModeDebate        Mode = "debate"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeCollaboration:
		return ModeCollaboration, nil
	case ModeDebate:
		return ModeDebate, nil
	}
	return "", fmt.Errorf("unknown mode %q (want collaboration or debate)", s)
}

type AgentIdentity struct {
	Role        Role   `json:"role"`
	DisplayName string `json:"display_name"`
	Capability  string `json:"capability"`
}

// Turn is one contribution to a transcript. Index counts analyst turns from
// zero; Round is Index / len(AnalystRoles).
type Turn struct {
	Speaker   AgentIdentity `json:"speaker"`
	Index     int           `json:"index"`
	Round     int           `json:"round"`
	Text      string        `json:"text"`
	Err       string        `json:"error,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

func (t Turn) Failed() bool {
	return t.Err != ""
}

// Transcript is the append-only ordered record of a session's turns.
type Transcript struct {
	turns []Turn
}

func (tr *Transcript) Append(turn Turn) {
	tr.turns = append(tr.turns, turn)
}

func (tr *Transcript) Len() int {
	return len(tr.turns)
}

// Turns returns a copy so callers cannot rewrite history.
func (tr *Transcript) Turns() []Turn {
	out := make([]Turn, len(tr.turns))
	copy(out, tr.turns)
	return out
}

func (tr *Transcript) Last() (Turn, bool) {
	if len(tr.turns) == 0 {
		return Turn{}, false
	}
	return tr.turns[len(tr.turns)-1], true
}

// CountBy returns how many turns role has authored.
func (tr *Transcript) CountBy(role Role) int {
	n := 0
	for _, t := range tr.turns {
		if t.Speaker.Role == role {
			n++
		}
	}
	return n
}

// Render formats turns as the conversation shown to the next speaker.
func Render(turns []Turn) string {
	if len(turns) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&sb, "[%s]\n%s\n\n", t.Speaker.DisplayName, strings.TrimSpace(t.Text))
	}
	return strings.TrimRight(sb.String(), "\n")
}
