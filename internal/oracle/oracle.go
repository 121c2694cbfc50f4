// internal/oracle/oracle.go
//
// Model gateway: turns engine operations into chat prompts, sends them to a
// language-model backend, and validates the raw replies through the schema
// package before anything reaches game state.
//
// Retry policy:
//   - Malformed output is retried up to cfg retries with an appended
//     reminder restating the required JSON shape.
//   - Transport errors and exhausted retries surface as ErrModelUnavailable;
//     the caller discards the turn and may retry it.
//
// No caching: every call is a fresh query and determinism is not assumed.

package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/robalobadob/guesswho/internal/schema"
	"github.com/robalobadob/guesswho/internal/session"
)

// ErrModelUnavailable - backend unreachable or retries exhausted.
// Fatal for the current turn only; the session stays intact.
var ErrModelUnavailable = errors.New("model unavailable")

// DefaultRetries is how many extra attempts follow a malformed reply.
const DefaultRetries = 2

// Message is one chat turn sent to a backend.
type Message struct {
	Role    string // "user" or "assistant"
	Content string
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Backend sends one chat exchange to a concrete model server and returns
// the raw reply text. Implementations: Ollama and OpenAI-compatible APIs.
type Backend interface {
	Chat(ctx context.Context, system string, msgs []Message) (string, error)
}

// Oracle implements session.Oracle on top of a Backend.
type Oracle struct {
	backend Backend
	retries int
}

// New constructs an Oracle. retries < 0 falls back to DefaultRetries.
func New(backend Backend, retries int) *Oracle {
	if retries < 0 {
		retries = DefaultRetries
	}
	return &Oracle{backend: backend, retries: retries}
}

// Answer asks the model, in character, for a yes/no/unknown reply.
func (o *Oracle) Answer(ctx context.Context, id session.Identity, history []session.Turn, question string) (session.Answer, error) {
	var out session.Answer
	err := o.query(ctx, "answer", answerSystemPrompt(id), historyMessages(history), question, answerReminder,
		func(raw string) error {
			ans, err := schema.ParseAnswer(raw)
			if err != nil {
				return err
			}
			out = ans
			return nil
		})
	return out, err
}

// Judge asks the model whether candidate names the identity it is holding.
func (o *Oracle) Judge(ctx context.Context, id session.Identity, history []session.Turn, candidate string) (session.Verdict, error) {
	var out session.Verdict
	prompt := fmt.Sprintf("The player's guess: %q. Does this name your identity?", candidate)
	err := o.query(ctx, "judge", judgeSystemPrompt(id), historyMessages(history), prompt, judgeReminder,
		func(raw string) error {
			v, err := schema.ParseVerdict(raw)
			if err != nil {
				return err
			}
			out = v
			return nil
		})
	return out, err
}

// Reveal asks the model to disclose the identity it committed to. Used at
// end of game only.
func (o *Oracle) Reveal(ctx context.Context, id session.Identity, history []session.Turn) (string, error) {
	var out string
	prompt := "The game is over. Reveal the identity you have been playing."
	err := o.query(ctx, "reveal", revealSystemPrompt(id), historyMessages(history), prompt, revealReminder,
		func(raw string) error {
			name, err := schema.ParseReveal(raw)
			if err != nil {
				return err
			}
			out = name
			return nil
		})
	return out, err
}

// query runs the retry loop shared by the three operations. parse must
// return schema.ErrMalformedResponse for replies worth retrying.
func (o *Oracle) query(ctx context.Context, op, system string, history []Message, prompt, reminder string, parse func(string) error) error {
	attempts := o.retries + 1
	for i := 0; i < attempts; i++ {
		msgs := append(historyCopy(history), Message{Role: RoleUser, Content: prompt})
		if i > 0 {
			// Amended prompt: restate the required output shape.
			msgs = append(msgs, Message{Role: RoleUser, Content: reminder})
		}

		start := time.Now()
		raw, err := o.backend.Chat(ctx, system, msgs)
		requestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		if err != nil {
			requestsTotal.WithLabelValues(op, "error").Inc()
			log.Warn().Err(err).Str("op", op).Msg("oracle backend call failed")
			return fmt.Errorf("%w: %v", ErrModelUnavailable, err)
		}

		if perr := parse(raw); perr != nil {
			requestsTotal.WithLabelValues(op, "malformed").Inc()
			log.Debug().Str("op", op).Int("attempt", i+1).Str("raw", raw).Msg("discarding malformed model reply")
			continue
		}
		requestsTotal.WithLabelValues(op, "ok").Inc()
		return nil
	}
	return fmt.Errorf("%w: %d malformed replies", ErrModelUnavailable, attempts)
}

// historyMessages serializes the ordered turn history as alternating chat
// messages. Assistant turns are re-serialized in the schema shapes so the
// model keeps seeing — and producing — the same format, and stays
// consistent with its own earlier answers.
func historyMessages(history []session.Turn) []Message {
	msgs := make([]Message, 0, len(history)*2)
	for _, t := range history {
		switch t.Kind {
		case session.TurnQuestion:
			msgs = append(msgs, Message{Role: RoleUser, Content: t.Content})
			if t.Answer != nil {
				body, _ := json.Marshal(t.Answer)
				msgs = append(msgs, Message{Role: RoleAssistant, Content: string(body)})
			}
		case session.TurnGuess:
			msgs = append(msgs, Message{Role: RoleUser, Content: fmt.Sprintf("My guess: %s", t.Content)})
			if t.Correct != nil {
				body, _ := json.Marshal(session.Verdict{Correct: *t.Correct})
				msgs = append(msgs, Message{Role: RoleAssistant, Content: string(body)})
			}
		}
	}
	return msgs
}

func historyCopy(msgs []Message) []Message {
	out := make([]Message, len(msgs), len(msgs)+2)
	copy(out, msgs)
	return out
}
