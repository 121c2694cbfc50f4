// internal/session/session.go
//
// Core state machine for a single Guess Who session.
// Responsibilities:
//   - Lifecycle: setup → in_progress → won/lost, abandoned via give-up/restart.
//   - Question turns: delegate to the Oracle, append validated answers.
//   - Guess turns: local fuzzy match for resolved identities, Oracle verdict
//     otherwise; decrement the guess budget; decide won/lost deterministically.
//   - Atomicity: a turn is appended only after its reply validated; a failed
//     oracle call leaves the session untouched so the player can retry.
//
// Notes:
//   - One session belongs to one player interaction; the internal mutex
//     serializes operations so a server can hold many isolated sessions.
//   - randomID() is a compact hex identifier for correlating server state.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultGuessBudget is the starting number of guess attempts when the
// caller does not choose one.
const DefaultGuessBudget = 3

// Oracle is the model gateway the session consults. Implementations must
// return only schema-validated replies; the session never sees raw text.
type Oracle interface {
	// Answer replies to a yes/no question in character.
	Answer(ctx context.Context, id Identity, history []Turn, question string) (Answer, error)
	// Judge decides whether candidate names the held identity.
	Judge(ctx context.Context, id Identity, history []Turn, candidate string) (Verdict, error)
	// Reveal asks the model to disclose the identity it has been holding.
	Reveal(ctx context.Context, id Identity, history []Turn) (string, error)
}

// Session holds the state of a single game.
type Session struct {
	ID string

	mu          sync.Mutex
	oracle      Oracle
	budget      int
	identity    *Identity
	history     []Turn
	guessesLeft int
	status      Status
	revealed    string // concrete identity, populated once terminal
}

// New constructs a session in the setup state. budget <= 0 falls back to
// DefaultGuessBudget.
func New(oracle Oracle, budget int) *Session {
	if budget <= 0 {
		budget = DefaultGuessBudget
	}
	return &Session{
		ID:     randomID(),
		oracle: oracle,
		budget: budget,
		status: StatusSetup,
	}
}

// Setup validates the identity request and moves the session in_progress
// with an empty history and a full guess budget.
func (s *Session) Setup(category Category, detail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusSetup {
		if s.status.Terminal() {
			return ErrSessionTerminated
		}
		return ErrAlreadyStarted
	}
	id, err := NewIdentity(category, detail)
	if err != nil {
		return err
	}
	s.identity = &id
	s.history = nil
	s.guessesLeft = s.budget
	s.revealed = ""
	s.status = StatusInProgress
	return nil
}

// Ask sends a yes/no question to the oracle and records the exchange.
// On oracle failure nothing is recorded and the session stays in_progress;
// the same question may be retried.
func (s *Session) Ask(ctx context.Context, question string) (Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.playable(); err != nil {
		return Answer{}, err
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, ErrEmptyInput
	}
	ans, err := s.oracle.Answer(ctx, *s.identity, s.historyCopy(), question)
	if err != nil {
		return Answer{}, err
	}
	s.history = append(s.history, Turn{Kind: TurnQuestion, Content: question, Answer: &ans})
	return ans, nil
}

// Guess evaluates a guess attempt, consumes one guess from the budget, and
// applies the won/lost transition. Resolved identities are checked locally;
// otherwise the oracle judges. An oracle failure leaves the session (and the
// remaining budget) untouched.
func (s *Session) Guess(ctx context.Context, candidate string) (Verdict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.playable(); err != nil {
		return Verdict{}, err
	}
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return Verdict{}, ErrEmptyInput
	}

	var v Verdict
	if s.identity.Resolved() {
		v = Verdict{Correct: identityMatches(s.identity.Detail, candidate)}
	} else {
		var err error
		v, err = s.oracle.Judge(ctx, *s.identity, s.historyCopy(), candidate)
		if err != nil {
			return Verdict{}, err
		}
	}

	correct := v.Correct
	s.history = append(s.history, Turn{Kind: TurnGuess, Content: candidate, Correct: &correct})
	s.guessesLeft--

	switch {
	case v.Correct:
		s.status = StatusWon
		s.revealed = s.revealName(ctx, candidate)
	case s.guessesLeft <= 0:
		s.status = StatusLost
		s.revealed = s.revealName(ctx, "")
	}
	return v, nil
}

// GiveUp abandons the round and reveals the identity when one was in play.
// Allowed from setup (no-op reveal) and in_progress.
func (s *Session) GiveUp(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return "", ErrSessionTerminated
	}
	if s.status == StatusInProgress {
		s.revealed = s.revealName(ctx, "")
	}
	s.status = StatusAbandoned
	return s.revealed, nil
}

// Restart discards all round state and returns the session to a clean
// setup state. Valid from any state.
func (s *Session) Restart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusAbandoned // transient, observable only as a transition
	s.identity = nil
	s.history = nil
	s.guessesLeft = 0
	s.revealed = ""
	s.status = StatusSetup
}

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// GuessesRemaining returns how many guess attempts are left.
func (s *Session) GuessesRemaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.guessesLeft
}

// History returns a copy of the ordered turn transcript.
func (s *Session) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.historyCopy()
}

// Category returns the identity category, or "" before setup.
func (s *Session) Category() Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil {
		return ""
	}
	return s.identity.Category
}

// Revealed returns the concrete identity once the session is terminal,
// and "" while the game is still on (the identity is never leaked mid-game).
func (s *Session) Revealed() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.status.Terminal() {
		return ""
	}
	return s.revealed
}

// playable gates ask/guess on lifecycle state. Caller holds s.mu.
func (s *Session) playable() error {
	if s.status.Terminal() {
		return ErrSessionTerminated
	}
	if s.status != StatusInProgress {
		return ErrNotStarted
	}
	return nil
}

func (s *Session) historyCopy() []Turn {
	out := make([]Turn, len(s.history))
	copy(out, s.history)
	return out
}

// revealName resolves the concrete identity at end of game. For resolved
// identities the engine already knows it; otherwise the oracle is asked,
// best effort — a reveal failure must not block the terminal transition.
// Caller holds s.mu.
func (s *Session) revealName(ctx context.Context, winningGuess string) string {
	if s.identity.Resolved() {
		return s.identity.Detail
	}
	if winningGuess != "" {
		return winningGuess
	}
	name, err := s.oracle.Reveal(ctx, *s.identity, s.historyCopy())
	if err != nil {
		return ""
	}
	return name
}

// identityMatches compares a resolved identity against a guess after
// normalization: case folded, diacritics stripped, punctuation dropped.
// A guess counts when it equals the identity or either contains the other
// ("is it abraham lincoln?" should match "Abraham Lincoln").
func identityMatches(identity, guess string) bool {
	a, b := normalizeName(identity), normalizeName(guess)
	if a == "" || b == "" {
		return false
	}
	return a == b || strings.Contains(b, a) || strings.Contains(a, b)
}

var nameNormalizer = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

func normalizeName(s string) string {
	if folded, _, err := transform.String(nameNormalizer, s); err == nil {
		s = folded
	}
	var b strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case !lastSpace:
			b.WriteRune(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}

// randomID returns a compact 16-hex-char identifier.
func randomID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
