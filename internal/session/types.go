// internal/session/types.go
//
// Core type definitions for the Guess Who game engine.
// Defines:
//   - Category: what kind of hidden identity the model should hold.
//   - Identity: immutable descriptor of the hidden identity.
//   - Answer/Verdict: structured model replies the engine trusts.
//   - Turn: one question-and-answer or guess-and-verdict exchange.
//   - Status: lifecycle state of a session.

package session

import (
	"errors"
	"fmt"
	"strings"
)

// Category selects what kind of hidden identity the game is played against.
type Category string

const (
	CategoryRandom     Category = "random"
	CategoryHistorical Category = "historical"
	CategoryFictional  Category = "fictional"
	CategoryRole       Category = "role"
	CategoryCustom     Category = "custom"
)

// ParseCategory maps a wire string onto a Category (case-insensitive).
func ParseCategory(s string) (Category, error) {
	switch Category(strings.ToLower(strings.TrimSpace(s))) {
	case CategoryRandom:
		return CategoryRandom, nil
	case CategoryHistorical:
		return CategoryHistorical, nil
	case CategoryFictional:
		return CategoryFictional, nil
	case CategoryRole:
		return CategoryRole, nil
	case CategoryCustom:
		return CategoryCustom, nil
	}
	return "", fmt.Errorf("%w: unknown category %q", ErrInvalidIdentity, s)
}

// Identity describes the hidden identity for one round.
//
// For CategoryCustom, Detail is the resolved identity itself: the engine
// knows the answer and verifies guesses locally. For every other category
// the model is instructed to invent and silently hold an identity matching
// the category, so not even the engine knows the answer in advance.
type Identity struct {
	Category Category
	Detail   string
}

// NewIdentity validates and constructs an Identity.
// Custom identities require a non-blank Detail.
func NewIdentity(category Category, detail string) (Identity, error) {
	detail = strings.TrimSpace(detail)
	if category == CategoryCustom && detail == "" {
		return Identity{}, fmt.Errorf("%w: custom identity requires a detail", ErrInvalidIdentity)
	}
	return Identity{Category: category, Detail: detail}, nil
}

// Resolved reports whether the engine itself knows the concrete identity.
func (id Identity) Resolved() bool { return id.Category == CategoryCustom }

// AnswerValue is the closed enum a question reply must carry.
type AnswerValue string

const (
	AnswerYes     AnswerValue = "yes"
	AnswerNo      AnswerValue = "no"
	AnswerUnknown AnswerValue = "unknown"
)

// Answer is a validated reply to a yes/no question.
type Answer struct {
	Value  AnswerValue `json:"answer"`
	Reason string      `json:"reason,omitempty"`
}

// Verdict is a validated judgement of a guess attempt.
type Verdict struct {
	Correct bool   `json:"correct"`
	Reason  string `json:"reason,omitempty"`
}

// TurnKind distinguishes question turns from guess turns.
type TurnKind string

const (
	TurnQuestion TurnKind = "question"
	TurnGuess    TurnKind = "guess"
)

// Turn records one completed exchange. History is append-only; a Turn is
// never written before its reply has been validated.
type Turn struct {
	Kind    TurnKind `json:"kind"`
	Content string   `json:"content"`
	Answer  *Answer  `json:"answer,omitempty"`  // set on question turns
	Correct *bool    `json:"correct,omitempty"` // set on guess turns
}

// Status is the lifecycle state of a session.
// Won, Lost and Abandoned are terminal.
type Status string

const (
	StatusSetup      Status = "setup"
	StatusInProgress Status = "in_progress"
	StatusWon        Status = "won"
	StatusLost       Status = "lost"
	StatusAbandoned  Status = "abandoned"
)

// Terminal reports whether s accepts no further question/guess turns.
func (s Status) Terminal() bool {
	return s == StatusWon || s == StatusLost || s == StatusAbandoned
}

var (
	// ErrInvalidIdentity - setup input failed validation.
	ErrInvalidIdentity = errors.New("invalid identity")
	// ErrSessionTerminated - operation attempted on a finished session.
	ErrSessionTerminated = errors.New("session terminated")
	// ErrNotStarted - ask/guess before setup completed.
	ErrNotStarted = errors.New("session not started")
	// ErrAlreadyStarted - setup on a session that is already in progress.
	ErrAlreadyStarted = errors.New("session already started")
	// ErrEmptyInput - blank question or guess text.
	ErrEmptyInput = errors.New("empty input")
)
