// internal/httpserver/routes_daily.go
//
// HTTP routes for the "Daily Challenge" mode.
// Exposes four endpoints under /daily:
//   - POST /daily/new         → start today's game (creates or reuses session)
//   - POST /daily/ask         → ask a yes/no question in today's game
//   - POST /daily/guess       → submit a guess for today's identity
//   - GET  /daily/leaderboard → top results for today (or a given date)
//
// Everyone plays the same hidden identity on a given date, picked
// deterministically from the roster via date + salt. The identity is
// resolved (the engine knows it), so guesses verify locally while questions
// still go through the oracle role-playing that identity. Each user can
// play once per day (enforced by DB + in-memory session).

package httpserver

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/robalobadob/guesswho/internal/daily"
	"github.com/robalobadob/guesswho/internal/roster"
	"github.com/robalobadob/guesswho/internal/session"
)

// dailyServer wraps dependencies for /daily endpoints.
type dailyServer struct {
	srv      *Server
	store    *daily.Store
	salt     string
	sessions map[string]*dailyGame // active games keyed by userID|date
	mu       sync.Mutex            // guards sessions
}

// dailyGame holds transient in-memory state for an in-progress daily game.
type dailyGame struct {
	Sess          *session.Session
	UserID        string
	Date          string
	IdentityIndex int
	Start         time.Time
	Recorded      bool
}

// mountDaily registers all /daily routes.
func (s *Server) mountDaily(r chi.Router) {
	dd := &dailyServer{
		srv:      s,
		store:    daily.NewStore(s.db),
		salt:     s.cfg.DailySalt,
		sessions: make(map[string]*dailyGame),
	}
	r.Route("/daily", func(r chi.Router) {
		r.Post("/new", dd.handleNew)
		r.Post("/ask", dd.handleAsk)
		r.Post("/guess", dd.handleGuess)
		r.Get("/leaderboard", dd.handleLeaderboard)
	})
}

// identityNow returns today's date key, deterministic roster index, and identity.
func (d *dailyServer) identityNow() (date string, idx int, identity string) {
	now := time.Now().UTC()
	date = daily.DateKey(now)
	if roster.Count() == 0 {
		return date, 0, ""
	}
	idx = daily.IdentityIndex(now, d.salt, roster.Count())
	return date, idx, roster.Pick(idx)
}

// userIDWithAnon returns the authenticated user ID if logged in,
// otherwise ensures an anonymous ID via Server.ensureAnonID.
func (d *dailyServer) userIDWithAnon(w http.ResponseWriter, r *http.Request) string {
	if me, _ := r.Context().Value(ctxUserKey{}).(*authUser); me != nil {
		return me.ID
	}
	return d.srv.ensureAnonID(w, r)
}

// lookup finds the caller's active daily game for today, matching gameID.
func (d *dailyServer) lookup(uid, date, gameID string) *dailyGame {
	d.mu.Lock()
	defer d.mu.Unlock()
	g, ok := d.sessions[uid+"|"+date]
	if !ok || g.Sess.ID != gameID {
		return nil
	}
	return g
}

// -----------------------------------------------------------------------------
// /daily/new

// dailyNewRes is returned by /daily/new.
type dailyNewRes struct {
	GameID           string `json:"gameId"`
	Date             string `json:"date"`
	Played           bool   `json:"played"`
	GuessesRemaining int    `json:"guessesRemaining,omitempty"`
}

// handleNew creates or reuses a daily session for the current date.
// - If user already has a DB row for today → return Played=true.
// - Otherwise create/reuse an in-memory session and return GameID.
func (d *dailyServer) handleNew(w http.ResponseWriter, r *http.Request) {
	uid := d.userIDWithAnon(w, r)
	date, idx, identity := d.identityNow()
	if identity == "" {
		http.Error(w, `{"error":"roster_empty"}`, http.StatusInternalServerError)
		return
	}

	// Check if already played (persisted in DB).
	if played, err := d.store.AlreadyPlayed(r.Context(), uid, date); err == nil && played {
		_ = json.NewEncoder(w).Encode(dailyNewRes{GameID: "", Date: date, Played: true})
		return
	}

	// Reuse or create session in memory.
	key := uid + "|" + date
	d.mu.Lock()
	if g, ok := d.sessions[key]; ok {
		d.mu.Unlock()
		_ = json.NewEncoder(w).Encode(dailyNewRes{
			GameID: g.Sess.ID, Date: date, Played: false,
			GuessesRemaining: g.Sess.GuessesRemaining(),
		})
		return
	}
	sess := session.New(d.srv.oracle, d.srv.cfg.GuessBudget)
	if err := sess.Setup(session.CategoryCustom, identity); err != nil {
		d.mu.Unlock()
		http.Error(w, `{"error":"setup_failed"}`, http.StatusInternalServerError)
		return
	}
	g := &dailyGame{
		Sess:          sess,
		UserID:        uid,
		Date:          date,
		IdentityIndex: idx,
		Start:         time.Now(),
	}
	d.sessions[key] = g
	d.mu.Unlock()

	_ = json.NewEncoder(w).Encode(dailyNewRes{
		GameID: sess.ID, Date: date, Played: false,
		GuessesRemaining: sess.GuessesRemaining(),
	})
}

// -----------------------------------------------------------------------------
// /daily/ask

type dailyAskReq struct {
	GameID   string `json:"gameId"`
	Question string `json:"question"`
}
type dailyAskRes struct {
	Answer    string `json:"answer"`
	Reason    string `json:"reason,omitempty"`
	Status    string `json:"status"`
	Questions int    `json:"questions"`
}

// handleAsk forwards a question in today's game to the oracle.
func (d *dailyServer) handleAsk(w http.ResponseWriter, r *http.Request) {
	uid := d.userIDWithAnon(w, r)
	var p dailyAskReq
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	date, _, _ := d.identityNow()
	g := d.lookup(uid, date, p.GameID)
	if g == nil {
		http.Error(w, `{"error":"no_session"}`, http.StatusConflict)
		return
	}
	ans, err := g.Sess.Ask(r.Context(), p.Question)
	if err != nil {
		d.srv.writeSessionError(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(dailyAskRes{
		Answer:    string(ans.Value),
		Reason:    ans.Reason,
		Status:    string(g.Sess.Status()),
		Questions: countQuestions(g.Sess.History()),
	})
}

// -----------------------------------------------------------------------------
// /daily/guess

type dailyGuessReq struct {
	GameID string `json:"gameId"`
	Guess  string `json:"guess"`
}
type dailyGuessRes struct {
	Correct          bool   `json:"correct"`
	Status           string `json:"status"`
	GuessesRemaining int    `json:"guessesRemaining"`
	Identity         string `json:"identity,omitempty"`
}

// handleGuess applies a guess for today's daily session and persists the
// result once the game finishes.
func (d *dailyServer) handleGuess(w http.ResponseWriter, r *http.Request) {
	uid := d.userIDWithAnon(w, r)
	var p dailyGuessReq
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	date, _, _ := d.identityNow()
	g := d.lookup(uid, date, p.GameID)
	if g == nil {
		http.Error(w, `{"error":"no_session"}`, http.StatusConflict)
		return
	}
	verdict, err := g.Sess.Guess(r.Context(), p.Guess)
	if err != nil {
		d.srv.writeSessionError(w, err)
		return
	}

	status := g.Sess.Status()
	if status.Terminal() {
		d.recordResult(r, g, status == session.StatusWon)
	}

	_ = json.NewEncoder(w).Encode(dailyGuessRes{
		Correct:          verdict.Correct,
		Status:           string(status),
		GuessesRemaining: g.Sess.GuessesRemaining(),
		Identity:         g.Sess.Revealed(),
	})
}

// recordResult persists a finished play exactly once.
func (d *dailyServer) recordResult(r *http.Request, g *dailyGame, won bool) {
	d.mu.Lock()
	if g.Recorded {
		d.mu.Unlock()
		return
	}
	g.Recorded = true
	d.mu.Unlock()

	hist := g.Sess.History()
	_ = d.store.InsertResult(r.Context(), daily.Result{
		UserID:        g.UserID,
		Date:          g.Date,
		IdentityIndex: g.IdentityIndex,
		Questions:     countQuestions(hist),
		Guesses:       len(hist) - countQuestions(hist),
		ElapsedMs:     int(time.Since(g.Start).Milliseconds()),
		Won:           won,
	})
}

// countQuestions tallies question turns in a transcript.
func countQuestions(hist []session.Turn) int {
	n := 0
	for _, t := range hist {
		if t.Kind == session.TurnQuestion {
			n++
		}
	}
	return n
}

// -----------------------------------------------------------------------------
// /daily/leaderboard

// lbRes is returned by /daily/leaderboard.
type lbRes struct {
	Date string        `json:"date"`
	Top  []daily.LBRow `json:"top"`
}

// handleLeaderboard returns the leaderboard for the given date (default today).
func (d *dailyServer) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date, _, _ = d.identityNow()
	}
	rows, err := d.store.Leaderboard(r.Context(), date, 20)
	if err != nil {
		http.Error(w, `{"error":"server_error"}`, http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(lbRes{Date: date, Top: rows})
}
