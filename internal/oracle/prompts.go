// internal/oracle/prompts.go
//
// System prompt templates for the three oracle operations. The identity
// clause either hands the model a resolved identity (custom/daily games)
// or instructs it to invent and silently hold one matching the category.

package oracle

import (
	"fmt"
	"strings"

	"github.com/robalobadob/guesswho/internal/session"
)

const gameRules = `You are playing "Guess Who" with the user. They are trying to figure out who or what you are by asking yes/no questions.

Rules:
- Answer truthfully about your identity, and stay consistent with every answer you already gave in this conversation.
- If a question is ambiguous or cannot be answered about your identity, answer "unknown".
- Never state your identity unless explicitly told the game is over.
- Keep any reason text to one short sentence.`

const answerReminder = `Your last reply did not match the required format. Respond with a single JSON object and nothing else: {"answer": "yes"|"no"|"unknown", "reason": "optional short justification"}. No markdown fences, no extra text.`

const judgeReminder = `Your last reply did not match the required format. Respond with a single JSON object and nothing else: {"correct": true|false, "reason": "optional short justification"}. No markdown fences, no extra text.`

const revealReminder = `Your last reply did not match the required format. Respond with a single JSON object and nothing else: {"identity": "the name of your identity"}. No markdown fences, no extra text.`

// identityClause tells the model who it is, or what kind of identity to
// invent and commit to.
func identityClause(id session.Identity) string {
	if id.Resolved() {
		return fmt.Sprintf("Your identity is: %s.", id.Detail)
	}
	var kind string
	switch id.Category {
	case session.CategoryHistorical:
		kind = "a significant real historical figure from any time period"
	case session.CategoryFictional:
		kind = "a fictional character from literature, film, TV, comics or games"
	case session.CategoryRole:
		kind = "a profession or social role (doctor, astronaut, parent, leader...)"
	default:
		kind = "any identity: a historical figure, fictional character, celebrity or profession"
	}
	clause := fmt.Sprintf("Silently invent %s and commit to it for the whole game. Do not change it between questions.", kind)
	if d := strings.TrimSpace(id.Detail); d != "" {
		clause += fmt.Sprintf(" Additional constraint on the identity: %s.", d)
	}
	return clause
}

func answerSystemPrompt(id session.Identity) string {
	return fmt.Sprintf(`%s

%s

Output format: respond EXCLUSIVELY with a single JSON object, nothing else:
{"answer": "yes"|"no"|"unknown", "reason": "optional short justification"}`,
		identityClause(id), gameRules)
}

func judgeSystemPrompt(id session.Identity) string {
	return fmt.Sprintf(`%s

%s

The user is now making a direct guess at your identity. Judge whether the guess names your identity (accept reasonable spelling variants and partial names that are unambiguous).

Output format: respond EXCLUSIVELY with a single JSON object, nothing else:
{"correct": true|false, "reason": "optional short justification"}`,
		identityClause(id), gameRules)
}

func revealSystemPrompt(id session.Identity) string {
	return fmt.Sprintf(`%s

%s

The game has ended and you are released from secrecy.

Output format: respond EXCLUSIVELY with a single JSON object, nothing else:
{"identity": "the name of the identity you played"}`,
		identityClause(id), gameRules)
}
