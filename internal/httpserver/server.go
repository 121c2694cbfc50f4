// internal/httpserver/server.go
//
// HTTP server wiring for the Guess Who backend.
// Responsibilities:
//   - Router + middleware (JSON, CORS, timeouts, panic recovery, request IDs).
//   - Public endpoints: "/", "/health", "/metrics".
//   - Game endpoints (optional auth): POST /game/new, /game/ask, /game/guess,
//     /game/restart, /game/giveup, GET /game/state.
//   - Daily Challenge endpoints (optional auth): mounted under /daily.
//   - Auth + profile/stat endpoints (require auth): /auth/*, /stats/me, /games/mine.
//   - JWT + cookie handling, anonymous session cookie, user CRUD helpers.
//   - Database persistence for game summaries and user stats.
//
// Notes:
//   - Live session state (history, hidden identity) stays in the store; the
//     database only sees summaries, so the identity never touches disk for
//     the unresolved game modes.
//   - CORS is origin-aware and credentials-enabled (so cookies work).
//   - Optional auth decorates requests with user context when a valid token
//     is present; routes can still run for guests.

package httpserver

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/robalobadob/guesswho/internal/config"
	"github.com/robalobadob/guesswho/internal/oracle"
	"github.com/robalobadob/guesswho/internal/session"
	"github.com/robalobadob/guesswho/internal/store"
)

// Server bundles router, live session store, oracle, and DB handle.
type Server struct {
	r      *chi.Mux
	store  store.Store
	db     *sql.DB
	oracle session.Oracle
	cfg    *config.Config
}

// New constructs a Server, installs middleware, and registers routes.
func New(cfg *config.Config, st store.Store, db *sql.DB, orc session.Oracle) *Server {
	s := &Server{r: chi.NewRouter(), store: st, db: db, oracle: orc, cfg: cfg}

	// --- middleware ---
	s.r.Use(chimw.RequestID)
	s.r.Use(chimw.RealIP)
	s.r.Use(chimw.Recoverer)
	// Oracle calls are slow; the handler timeout must outlive one full
	// retry cycle.
	s.r.Use(chimw.Timeout(cfg.OracleTimeout*time.Duration(cfg.OracleRetries+1) + 5*time.Second))
	s.r.Use(jsonContentType)
	s.r.Use(s.cors)

	// --- diagnostics ---
	s.r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"service":"guesswho","endpoints":["/health","POST /game/new","POST /game/ask","POST /game/guess","/daily/*","/auth/*"]}`))
	})
	s.r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	s.r.Handle("/metrics", promhttp.Handler())

	// Game endpoints — OPTIONAL AUTH (guests can play)
	s.r.With(s.withOptionalAuth()).Route("/game", func(r chi.Router) {
		r.Post("/new", s.handleNewGame)
		r.Post("/ask", s.handleAsk)
		r.Post("/guess", s.handleGuess)
		r.Post("/restart", s.handleRestart)
		r.Post("/giveup", s.handleGiveUp)
		r.Get("/state", s.handleState)
	})

	// Daily Challenge — OPTIONAL AUTH (guests can play; results persisted)
	s.mountDaily(s.r.With(s.withOptionalAuth()))

	// Auth + profile/stats (require auth)
	s.mountAuthRoutes()

	// JSON 404 for easier debugging
	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"not_found","path":"`+r.URL.Path+`"}`, http.StatusNotFound)
	})

	return s
}

// Start begins serving HTTP on addr.
func (s *Server) Start(addr string) error { return http.ListenAndServe(addr, s.r) }

// Router exposes the internal router (useful for tests).
func (s *Server) Router() chi.Router { return s.r }

// ----------------------------- middleware ----------------------------------

// jsonContentType sets a default JSON Content-Type header on all responses.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

// cors enables credentialed CORS for the configured client origin.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Origin", s.cfg.ClientOrigin)
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ------------------------------ GAME ---------------------------------------

// newGameReq/Res payloads for POST /game/new.
type newGameReq struct {
	Category string `json:"category"` // random | historical | fictional | role | custom
	Detail   string `json:"detail"`   // constraint text; the answer itself for custom
	Budget   int    `json:"budget"`   // optional guess budget override
}
type newGameRes struct {
	GameID           string `json:"gameId"`
	Status           string `json:"status"`
	GuessesRemaining int    `json:"guessesRemaining"`
}

// handleNewGame creates a new live session and persists a DB summary row
// (either user_id or anonymous_id) for history/stats.
func (s *Server) handleNewGame(w http.ResponseWriter, r *http.Request) {
	var req newGameReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	cat, err := session.ParseCategory(req.Category)
	if err != nil {
		http.Error(w, `{"error":"invalid_category"}`, http.StatusBadRequest)
		return
	}
	budget := req.Budget
	if budget <= 0 {
		budget = s.cfg.GuessBudget
	}
	if budget > s.cfg.GuessBudgetCap {
		budget = s.cfg.GuessBudgetCap
	}

	sess := session.New(s.oracle, budget)
	if err := sess.Setup(cat, req.Detail); err != nil {
		if errors.Is(err, session.ErrInvalidIdentity) {
			http.Error(w, `{"error":"invalid_identity"}`, http.StatusBadRequest)
			return
		}
		http.Error(w, `{"error":"setup_failed"}`, http.StatusInternalServerError)
		return
	}
	if err := s.store.Save(r.Context(), sess); err != nil {
		log.Error().Err(err).Msg("save session")
		http.Error(w, `{"error":"save_failed"}`, http.StatusInternalServerError)
		return
	}

	// Persist owner summary row; the hidden identity is never written.
	now := time.Now().UTC().Format(time.RFC3339)
	if me, _ := r.Context().Value(ctxUserKey{}).(*authUser); me != nil {
		_, err := s.db.Exec(`INSERT INTO games (id, user_id, category, status, questions, guesses, started_at)
		                     VALUES (?,?,?,?,0,0,?)`, sess.ID, me.ID, string(cat), string(sess.Status()), now)
		if err != nil {
			log.Warn().Err(err).Str("gameId", sess.ID).Msg("insert user game row")
		}
	} else {
		anon := s.ensureAnonID(w, r)
		_, err := s.db.Exec(`INSERT INTO games (id, anonymous_id, category, status, questions, guesses, started_at)
		                     VALUES (?,?,?,?,0,0,?)`, sess.ID, anon, string(cat), string(sess.Status()), now)
		if err != nil {
			log.Warn().Err(err).Str("gameId", sess.ID).Msg("insert anon game row")
		}
	}

	_ = json.NewEncoder(w).Encode(newGameRes{
		GameID:           sess.ID,
		Status:           string(sess.Status()),
		GuessesRemaining: sess.GuessesRemaining(),
	})
}

// askReq/Res payloads for POST /game/ask.
type askReq struct {
	GameID   string `json:"gameId"`
	Question string `json:"question"`
}
type askRes struct {
	Answer string `json:"answer"` // yes | no | unknown
	Reason string `json:"reason,omitempty"`
	Status string `json:"status"`
}

// handleAsk forwards a yes/no question to the session's oracle and records
// the turn. Oracle failure discards the turn; the player may retry.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	sess, err := s.store.Get(r.Context(), req.GameID)
	if err != nil {
		http.Error(w, `{"error":"not_found"}`, http.StatusNotFound)
		return
	}
	ans, err := sess.Ask(r.Context(), req.Question)
	if err != nil {
		s.writeSessionError(w, err)
		return
	}

	// Best-effort question counter for history/stats.
	if _, err := s.db.Exec(`UPDATE games SET questions = questions + 1 WHERE id=?`, sess.ID); err != nil {
		log.Warn().Err(err).Msg("update questions")
	}

	_ = json.NewEncoder(w).Encode(askRes{
		Answer: string(ans.Value),
		Reason: ans.Reason,
		Status: string(sess.Status()),
	})
}

// guessReq/Res payloads for POST /game/guess.
type guessReq struct {
	GameID string `json:"gameId"`
	Guess  string `json:"guess"`
}
type guessRes struct {
	Correct          bool   `json:"correct"`
	Reason           string `json:"reason,omitempty"`
	Status           string `json:"status"` // in_progress | won | lost
	GuessesRemaining int    `json:"guessesRemaining"`
	Identity         string `json:"identity,omitempty"` // revealed once terminal
}

// handleGuess applies a guess attempt, persists progress, and (if finished)
// updates user stats in a best-effort transaction.
func (s *Server) handleGuess(w http.ResponseWriter, r *http.Request) {
	var req guessReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	sess, err := s.store.Get(r.Context(), req.GameID)
	if err != nil {
		http.Error(w, `{"error":"not_found"}`, http.StatusNotFound)
		return
	}
	verdict, err := sess.Guess(r.Context(), req.Guess)
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	status := sess.Status()

	// Persist counters/summary (best effort, non-fatal if it fails).
	tx, txErr := s.db.Begin()
	if txErr == nil {
		defer func() { _ = tx.Rollback() }()
		if _, err := tx.Exec(`UPDATE games SET guesses = guesses + 1 WHERE id=?`, sess.ID); err != nil {
			log.Warn().Err(err).Msg("update guesses")
		}
		if status.Terminal() {
			if _, err := tx.Exec(`UPDATE games SET status=?, finished_at=? WHERE id=?`,
				string(status), time.Now().UTC().Format(time.RFC3339), sess.ID); err != nil {
				log.Warn().Err(err).Msg("finish game")
			}
			if me, _ := r.Context().Value(ctxUserKey{}).(*authUser); me != nil {
				if err := s.bumpStats(tx, me.ID, status == session.StatusWon); err != nil {
					log.Warn().Err(err).Str("user", me.ID).Msg("bump stats")
				}
			}
		}
		_ = tx.Commit()
	}

	_ = json.NewEncoder(w).Encode(guessRes{
		Correct:          verdict.Correct,
		Reason:           verdict.Reason,
		Status:           string(status),
		GuessesRemaining: sess.GuessesRemaining(),
		Identity:         sess.Revealed(),
	})
}

// restartReq is the payload for POST /game/restart and /game/giveup.
type restartReq struct {
	GameID string `json:"gameId"`
}

// handleRestart discards the round and returns the session to setup.
func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	var req restartReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	sess, err := s.store.Get(r.Context(), req.GameID)
	if err != nil {
		http.Error(w, `{"error":"not_found"}`, http.StatusNotFound)
		return
	}
	if !sess.Status().Terminal() {
		if _, err := s.db.Exec(`UPDATE games SET status='abandoned', finished_at=? WHERE id=?`,
			time.Now().UTC().Format(time.RFC3339), sess.ID); err != nil {
			log.Warn().Err(err).Msg("abandon game")
		}
	}
	sess.Restart()
	_ = json.NewEncoder(w).Encode(map[string]string{"status": string(sess.Status())})
}

// handleGiveUp abandons the round and reveals the identity.
func (s *Server) handleGiveUp(w http.ResponseWriter, r *http.Request) {
	var req restartReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	sess, err := s.store.Get(r.Context(), req.GameID)
	if err != nil {
		http.Error(w, `{"error":"not_found"}`, http.StatusNotFound)
		return
	}
	identity, err := sess.GiveUp(r.Context())
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	if _, err := s.db.Exec(`UPDATE games SET status='abandoned', finished_at=? WHERE id=?`,
		time.Now().UTC().Format(time.RFC3339), sess.ID); err != nil {
		log.Warn().Err(err).Msg("abandon game")
	}
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":   string(sess.Status()),
		"identity": identity,
	})
}

// stateRes is returned by GET /game/state.
type stateRes struct {
	GameID           string         `json:"gameId"`
	Status           string         `json:"status"`
	Category         string         `json:"category,omitempty"`
	GuessesRemaining int            `json:"guessesRemaining"`
	History          []session.Turn `json:"history"`
	Identity         string         `json:"identity,omitempty"` // only once terminal
}

// handleState returns the renderable session state. The hidden identity is
// withheld until the session is terminal.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("gameId")
	sess, err := s.store.Get(r.Context(), id)
	if err != nil {
		http.Error(w, `{"error":"not_found"}`, http.StatusNotFound)
		return
	}
	_ = json.NewEncoder(w).Encode(stateRes{
		GameID:           sess.ID,
		Status:           string(sess.Status()),
		Category:         string(sess.Category()),
		GuessesRemaining: sess.GuessesRemaining(),
		History:          sess.History(),
		Identity:         sess.Revealed(),
	})
}

// writeSessionError maps engine errors onto HTTP responses.
func (s *Server) writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrEmptyInput):
		http.Error(w, `{"error":"empty_input"}`, http.StatusBadRequest)
	case errors.Is(err, session.ErrSessionTerminated):
		http.Error(w, `{"error":"session_terminated"}`, http.StatusConflict)
	case errors.Is(err, session.ErrNotStarted):
		http.Error(w, `{"error":"not_started"}`, http.StatusConflict)
	case errors.Is(err, oracle.ErrModelUnavailable):
		// Turn discarded, session intact; the client may retry the same turn.
		http.Error(w, `{"error":"model_unavailable","retryable":true}`, http.StatusBadGateway)
	default:
		http.Error(w, `{"error":"internal"}`, http.StatusInternalServerError)
	}
}

// ------------------------ anon identity ------------------------------------

const anonCookieName = "guesswho_anon"

// ensureAnonID returns an existing anon cookie or sets a new one.
// Used to associate guest games with a stable identifier.
func (s *Server) ensureAnonID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(anonCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	id := genID()
	http.SetCookie(w, &http.Cookie{
		Name:     anonCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cfg.Production,
		SameSite: func() http.SameSite {
			if s.cfg.Production {
				return http.SameSiteNoneMode
			}
			return http.SameSiteLaxMode
		}(),
		Expires: time.Now().Add(180 * 24 * time.Hour),
	})
	return id
}

// genID creates a 22-char URL-safe, crypto-random identifier (no padding).
func genID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	s := base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(b[:])
	if len(s) > 22 {
		return s[:22]
	}
	return s
}

// ---------------------------- auth middleware ------------------------------

// ctxUserKey is the context key type for storing authUser.
type ctxUserKey struct{}

// authUser is placed into request context by auth middleware.
type authUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// withOptionalAuth decorates requests with user context if a valid JWT is
// present. It never 401s; used for routes where guests are allowed.
func (s *Server) withOptionalAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tok := s.bearerOrCookie(r); tok != "" {
				claims := jwt.MapClaims{}
				if t, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (interface{}, error) {
					return []byte(s.cfg.JWTSecret), nil
				}); err == nil && t.Valid {
					if id, _ := claims["id"].(string); id != "" {
						if u, err := s.findUserByID(id); err == nil {
							ctx := context.WithValue(r.Context(), ctxUserKey{}, &authUser{ID: u.ID, Username: u.Username})
							r = r.WithContext(ctx)
						}
					}
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requireAuth enforces a valid JWT and injects authUser into request context.
func (s *Server) requireAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := s.bearerOrCookie(r)
			if tokenStr == "" {
				http.Error(w, `{"error":"Unauthorized"}`, http.StatusUnauthorized)
				return
			}
			claims := jwt.MapClaims{}
			token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
				return []byte(s.cfg.JWTSecret), nil
			})
			if err != nil || !token.Valid {
				http.Error(w, `{"error":"Invalid token"}`, http.StatusUnauthorized)
				return
			}
			id, _ := claims["id"].(string)
			username, _ := claims["username"].(string)
			if id == "" || username == "" {
				http.Error(w, `{"error":"Invalid token"}`, http.StatusUnauthorized)
				return
			}
			// Ensure user still exists
			if _, err := s.findUserByID(id); err != nil {
				http.Error(w, `{"error":"Invalid token"}`, http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), ctxUserKey{}, &authUser{ID: id, Username: username})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerOrCookie extracts a bearer token from Authorization header or auth cookie.
func (s *Server) bearerOrCookie(r *http.Request) string {
	if a := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(a), "bearer ") {
		return strings.TrimSpace(a[7:])
	}
	if c, err := r.Cookie(s.cfg.CookieName); err == nil {
		return c.Value
	}
	return ""
}

// bumpStats increments games played; updates wins and streak based on result (within tx).
func (s *Server) bumpStats(tx *sql.Tx, userID string, won bool) error {
	var gp, wins, streak int
	row := tx.QueryRow(`SELECT games_played, wins, streak FROM users WHERE id=?`, userID)
	if err := row.Scan(&gp, &wins, &streak); err != nil {
		return err
	}
	gp++
	if won {
		wins++
		streak++
	} else {
		streak = 0
	}
	_, err := tx.Exec(`UPDATE users SET games_played=?, wins=?, streak=? WHERE id=?`, gp, wins, streak, userID)
	return err
}

// checkPassword is a bcrypt verifier.
func checkPassword(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}
