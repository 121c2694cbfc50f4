// internal/schema/schema.go
//
// Strict validation of raw model output before the engine trusts it.
// The model is a non-deterministic text generator; every reply is forced
// through one of three fixed JSON shapes:
//   - answer:  {"answer": "yes"|"no"|"unknown", "reason": "..."}
//   - verdict: {"correct": true|false, "reason": "..."}
//   - reveal:  {"identity": "..."}
//
// Rules:
//   - Required fields must be present and correctly typed.
//   - Unknown extra fields are ignored.
//   - Enum values get one case-insensitive normalization before failing.
//   - If the payload as a whole is not JSON, the first {...} block is
//     extracted and decoded once more (models like to wrap JSON in prose).
//
// Parsing is pure: same raw text in, same result out.

package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/robalobadob/guesswho/internal/session"
)

// ErrMalformedResponse - raw model output failed schema validation.
var ErrMalformedResponse = errors.New("malformed model response")

var jsonObjectRe = regexp.MustCompile(`(?s)\{.*?\}`)

// ParseAnswer validates raw text against the yes/no/unknown answer shape.
func ParseAnswer(raw string) (session.Answer, error) {
	var payload struct {
		Answer *string `json:"answer"`
		Reason string  `json:"reason"`
	}
	if err := decodeObject(raw, &payload); err != nil {
		return session.Answer{}, err
	}
	if payload.Answer == nil {
		return session.Answer{}, fmt.Errorf(`%w: missing "answer" field`, ErrMalformedResponse)
	}
	switch session.AnswerValue(strings.ToLower(strings.TrimSpace(*payload.Answer))) {
	case session.AnswerYes:
		return session.Answer{Value: session.AnswerYes, Reason: payload.Reason}, nil
	case session.AnswerNo:
		return session.Answer{Value: session.AnswerNo, Reason: payload.Reason}, nil
	case session.AnswerUnknown:
		return session.Answer{Value: session.AnswerUnknown, Reason: payload.Reason}, nil
	}
	return session.Answer{}, fmt.Errorf("%w: unrecognized answer %q", ErrMalformedResponse, *payload.Answer)
}

// ParseVerdict validates raw text against the guess-verdict shape.
func ParseVerdict(raw string) (session.Verdict, error) {
	var payload struct {
		Correct *bool  `json:"correct"`
		Reason  string `json:"reason"`
	}
	if err := decodeObject(raw, &payload); err != nil {
		return session.Verdict{}, err
	}
	if payload.Correct == nil {
		return session.Verdict{}, fmt.Errorf(`%w: missing "correct" field`, ErrMalformedResponse)
	}
	return session.Verdict{Correct: *payload.Correct, Reason: payload.Reason}, nil
}

// ParseReveal validates raw text against the end-of-game reveal shape.
func ParseReveal(raw string) (string, error) {
	var payload struct {
		Identity string `json:"identity"`
	}
	if err := decodeObject(raw, &payload); err != nil {
		return "", err
	}
	identity := strings.TrimSpace(payload.Identity)
	if identity == "" {
		return "", fmt.Errorf(`%w: missing "identity" field`, ErrMalformedResponse)
	}
	return identity, nil
}

// decodeObject decodes raw into dst, falling back to the first embedded
// {...} block when the full payload does not parse.
func decodeObject(raw string, dst any) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("%w: empty payload", ErrMalformedResponse)
	}
	if err := json.Unmarshal([]byte(raw), dst); err == nil {
		return nil
	}
	if m := jsonObjectRe.FindString(raw); m != "" {
		if err := json.Unmarshal([]byte(m), dst); err == nil {
			return nil
		}
	}
	return fmt.Errorf("%w: not a JSON object", ErrMalformedResponse)
}
