package httpserver

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robalobadob/guesswho/internal/config"
	"github.com/robalobadob/guesswho/internal/daily"
	"github.com/robalobadob/guesswho/internal/oracle"
	"github.com/robalobadob/guesswho/internal/roster"
	"github.com/robalobadob/guesswho/internal/session"
	"github.com/robalobadob/guesswho/internal/store"
)

// stubOracle is a controllable session.Oracle for HTTP tests.
type stubOracle struct {
	answer     session.Answer
	answerErr  error
	verdicts   []session.Verdict // consumed in order; last one repeats
	revealName string
}

func (o *stubOracle) Answer(ctx context.Context, id session.Identity, history []session.Turn, question string) (session.Answer, error) {
	return o.answer, o.answerErr
}

func (o *stubOracle) Judge(ctx context.Context, id session.Identity, history []session.Turn, candidate string) (session.Verdict, error) {
	v := o.verdicts[0]
	if len(o.verdicts) > 1 {
		o.verdicts = o.verdicts[1:]
	}
	return v, nil
}

func (o *stubOracle) Reveal(ctx context.Context, id session.Identity, history []session.Turn) (string, error) {
	return o.revealName, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Port:           "0",
		OracleProvider: "ollama",
		OracleTimeout:  5 * time.Second,
		OracleRetries:  0,
		GuessBudget:    3,
		GuessBudgetCap: 10,
		JWTSecret:      "test_secret",
		JWTExpireDays:  1,
		CookieName:     "guesswho_token",
		ClientOrigin:   "http://localhost:5173",
		DailySalt:      "test_salt",
	}
}

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	schema, err := os.ReadFile(filepath.Join("..", "..", "sql", "0001_init.sql"))
	require.NoError(t, err)
	_, err = db.Exec(string(schema))
	require.NoError(t, err)
	return db
}

// newTestClient builds a full server around the stub oracle and returns a
// cookie-holding client pointed at it.
func newTestClient(t *testing.T, orc session.Oracle) (*http.Client, string, *config.Config) {
	t.Helper()
	require.NoError(t, roster.Init())

	cfg := testConfig()
	srv := New(cfg, store.NewMemoryStore(), testDB(t), orc)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar}, ts.URL, cfg
}

func postJSON(t *testing.T, c *http.Client, url string, body any, out any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	res, err := c.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer res.Body.Close()
	if out != nil && res.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(res.Body).Decode(out))
	}
	return res
}

func getJSON(t *testing.T, c *http.Client, url string, out any) *http.Response {
	t.Helper()
	res, err := c.Get(url)
	require.NoError(t, err)
	defer res.Body.Close()
	if out != nil && res.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(res.Body).Decode(out))
	}
	return res
}

func TestHealth(t *testing.T) {
	c, base, _ := newTestClient(t, &stubOracle{})
	res := getJSON(t, c, base+"/health", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestGameFlow(t *testing.T) {
	orc := &stubOracle{
		answer:   session.Answer{Value: session.AnswerYes, Reason: "they were"},
		verdicts: []session.Verdict{{Correct: false, Reason: "not them"}, {Correct: true}},
	}
	c, base, _ := newTestClient(t, orc)

	var created newGameRes
	res := postJSON(t, c, base+"/game/new", map[string]any{"category": "historical"}, &created)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.NotEmpty(t, created.GameID)
	assert.Equal(t, "in_progress", created.Status)
	assert.Equal(t, 3, created.GuessesRemaining)

	var asked askRes
	res = postJSON(t, c, base+"/game/ask", map[string]any{
		"gameId": created.GameID, "question": "Were they born before 1900?",
	}, &asked)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "yes", asked.Answer)
	assert.Equal(t, "in_progress", asked.Status)

	// Mid-game state never exposes an identity.
	var state stateRes
	res = getJSON(t, c, base+"/game/state?gameId="+created.GameID, &state)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Len(t, state.History, 1)
	assert.Empty(t, state.Identity)

	var wrong guessRes
	res = postJSON(t, c, base+"/game/guess", map[string]any{
		"gameId": created.GameID, "guess": "Isaac Newton",
	}, &wrong)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.False(t, wrong.Correct)
	assert.Equal(t, "in_progress", wrong.Status)
	assert.Equal(t, 2, wrong.GuessesRemaining)

	var right guessRes
	res = postJSON(t, c, base+"/game/guess", map[string]any{
		"gameId": created.GameID, "guess": "Marie Curie",
	}, &right)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.True(t, right.Correct)
	assert.Equal(t, "won", right.Status)
	assert.Equal(t, "Marie Curie", right.Identity)

	// Terminal sessions refuse further turns.
	res = postJSON(t, c, base+"/game/ask", map[string]any{
		"gameId": created.GameID, "question": "One more?",
	}, nil)
	assert.Equal(t, http.StatusConflict, res.StatusCode)
}

func TestNewGameValidation(t *testing.T) {
	c, base, _ := newTestClient(t, &stubOracle{})

	res := postJSON(t, c, base+"/game/new", map[string]any{"category": "wizard"}, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res = postJSON(t, c, base+"/game/new", map[string]any{"category": "custom", "detail": "   "}, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestBudgetClampedToCap(t *testing.T) {
	c, base, cfg := newTestClient(t, &stubOracle{})

	var created newGameRes
	res := postJSON(t, c, base+"/game/new", map[string]any{"category": "random", "budget": 999}, &created)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, cfg.GuessBudgetCap, created.GuessesRemaining)
}

func TestUnknownGameID(t *testing.T) {
	c, base, _ := newTestClient(t, &stubOracle{})
	res := postJSON(t, c, base+"/game/ask", map[string]any{"gameId": "missing", "question": "Hi?"}, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestModelUnavailableIsRetryable(t *testing.T) {
	orc := &stubOracle{answerErr: fmt.Errorf("%w: connection refused", oracle.ErrModelUnavailable)}
	c, base, _ := newTestClient(t, orc)

	var created newGameRes
	postJSON(t, c, base+"/game/new", map[string]any{"category": "fictional"}, &created)

	res := postJSON(t, c, base+"/game/ask", map[string]any{
		"gameId": created.GameID, "question": "Hello?",
	}, nil)
	assert.Equal(t, http.StatusBadGateway, res.StatusCode)

	// The failed turn is not recorded and the session accepts a retry.
	orc.answerErr = nil
	orc.answer = session.Answer{Value: session.AnswerNo}
	var asked askRes
	res = postJSON(t, c, base+"/game/ask", map[string]any{
		"gameId": created.GameID, "question": "Hello?",
	}, &asked)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "no", asked.Answer)

	var state stateRes
	getJSON(t, c, base+"/game/state?gameId="+created.GameID, &state)
	assert.Len(t, state.History, 1)
}

func TestGiveUpRevealsIdentity(t *testing.T) {
	orc := &stubOracle{revealName: "Cleopatra"}
	c, base, _ := newTestClient(t, orc)

	var created newGameRes
	postJSON(t, c, base+"/game/new", map[string]any{"category": "historical"}, &created)

	var out map[string]string
	res := postJSON(t, c, base+"/game/giveup", map[string]any{"gameId": created.GameID}, &out)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "abandoned", out["status"])
	assert.Equal(t, "Cleopatra", out["identity"])
}

func TestRestartReturnsToSetup(t *testing.T) {
	c, base, _ := newTestClient(t, &stubOracle{answer: session.Answer{Value: session.AnswerYes}})

	var created newGameRes
	postJSON(t, c, base+"/game/new", map[string]any{"category": "role"}, &created)
	postJSON(t, c, base+"/game/ask", map[string]any{"gameId": created.GameID, "question": "Do you work indoors?"}, nil)

	var out map[string]string
	res := postJSON(t, c, base+"/game/restart", map[string]any{"gameId": created.GameID}, &out)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "setup", out["status"])

	var state stateRes
	getJSON(t, c, base+"/game/state?gameId="+created.GameID, &state)
	assert.Empty(t, state.History)
}

func TestSignupStatsAfterWin(t *testing.T) {
	orc := &stubOracle{verdicts: []session.Verdict{{Correct: true}}}
	c, base, _ := newTestClient(t, orc)

	res := postJSON(t, c, base+"/auth/signup", map[string]any{
		"username": "player_one", "password": "hunter2hunter2",
	}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	var me authUser
	res = getJSON(t, c, base+"/auth/me", &me)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "player_one", me.Username)

	var created newGameRes
	postJSON(t, c, base+"/game/new", map[string]any{"category": "fictional"}, &created)
	var g guessRes
	postJSON(t, c, base+"/game/guess", map[string]any{"gameId": created.GameID, "guess": "Sherlock Holmes"}, &g)
	require.Equal(t, "won", g.Status)

	var stats struct {
		GamesPlayed int `json:"gamesPlayed"`
		Wins        int `json:"wins"`
		Streak      int `json:"streak"`
	}
	res = getJSON(t, c, base+"/stats/me", &stats)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, 1, stats.GamesPlayed)
	assert.Equal(t, 1, stats.Wins)
	assert.Equal(t, 1, stats.Streak)

	res = postJSON(t, c, base+"/auth/logout", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	res = getJSON(t, c, base+"/stats/me", nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestStatsRequireAuth(t *testing.T) {
	c, base, _ := newTestClient(t, &stubOracle{})
	res := getJSON(t, c, base+"/stats/me", nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestDailyFlow(t *testing.T) {
	c, base, cfg := newTestClient(t, &stubOracle{})

	var created dailyNewRes
	res := postJSON(t, c, base+"/daily/new", nil, &created)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.False(t, created.Played)
	require.NotEmpty(t, created.GameID)

	// Calling new again before finishing reuses the same game.
	var again dailyNewRes
	postJSON(t, c, base+"/daily/new", nil, &again)
	assert.Equal(t, created.GameID, again.GameID)

	// The daily identity is resolved, so the correct roster name wins
	// without any oracle involvement.
	identity := roster.Pick(daily.IdentityIndex(time.Now().UTC(), cfg.DailySalt, roster.Count()))
	require.NotEmpty(t, identity)

	var g dailyGuessRes
	res = postJSON(t, c, base+"/daily/guess", map[string]any{
		"gameId": created.GameID, "guess": identity,
	}, &g)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.True(t, g.Correct)
	assert.Equal(t, "won", g.Status)
	assert.Equal(t, identity, g.Identity)

	// One play per day: a fresh /daily/new now reports played.
	var after dailyNewRes
	postJSON(t, c, base+"/daily/new", nil, &after)
	assert.True(t, after.Played)

	var lb lbRes
	res = getJSON(t, c, base+"/daily/leaderboard", &lb)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Len(t, lb.Top, 1)
	assert.NotEmpty(t, lb.Top[0].UserID)
	assert.Equal(t, 1, lb.Top[0].Guesses)
}

func TestDailyUnknownSession(t *testing.T) {
	c, base, _ := newTestClient(t, &stubOracle{})
	res := postJSON(t, c, base+"/daily/ask", map[string]any{"gameId": "nope", "question": "Hi?"}, nil)
	assert.Equal(t, http.StatusConflict, res.StatusCode)
}
