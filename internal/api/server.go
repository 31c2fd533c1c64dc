// Package api exposes the trading service over HTTP. It is a thin
// shell: request decoding, session checks and status-code mapping live
// here, every decision with money in it lives in the ledger core.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/papertrade/stock-ledger/internal/accounts"
	"github.com/papertrade/stock-ledger/internal/interfaces"
	"github.com/papertrade/stock-ledger/internal/ledger"
)

type contextKey string

const accountIDKey contextKey = "account_id"

type Server struct {
	ledger   *ledger.Ledger
	accounts *accounts.Service
	oracle   interfaces.PriceOracle
	sessions *sessionStore
	logger   zerolog.Logger
	router   *mux.Router
}

func NewServer(ledgerSvc *ledger.Ledger, accountsSvc *accounts.Service, oracle interfaces.PriceOracle, logger zerolog.Logger) *Server {
	s := &Server{
		ledger:   ledgerSvc,
		accounts: accountsSvc,
		oracle:   oracle,
		sessions: newSessionStore(),
		logger:   logger,
		router:   mux.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/register", s.handleRegister).Methods(http.MethodPost)
	s.router.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)

	authed := s.router.NewRoute().Subrouter()
	authed.Use(s.requireSession)
	authed.HandleFunc("/logout", s.handleLogout).Methods(http.MethodPost)
	authed.HandleFunc("/quote", s.handleQuote).Methods(http.MethodGet)
	authed.HandleFunc("/buy", s.handleBuy).Methods(http.MethodPost)
	authed.HandleFunc("/sell", s.handleSell).Methods(http.MethodPost)
	authed.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet)
	authed.HandleFunc("/portfolio", s.handlePortfolio).Methods(http.MethodGet)
}

// requireSession resolves the bearer token to an account id and threads
// it through the request context. Everything money-touching sits behind
// this middleware.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		accountID, ok := s.sessions.accountID(token)
		if !ok {
			writeError(w, http.StatusUnauthorized, "invalid or expired session")
			return
		}
		ctx := context.WithValue(r.Context(), accountIDKey, accountID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return ""
	}
	return strings.TrimSpace(auth[len(prefix):])
}

func requestAccountID(r *http.Request) string {
	id, _ := r.Context().Value(accountIDKey).(string)
	return id
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeTradeError maps the ledger error taxonomy onto status codes:
// user-correctable conditions are 4xx, a flaky oracle is 503, anything
// else is a 500.
func (s *Server) writeTradeError(w http.ResponseWriter, err error) {
	var (
		unknownSym   *ledger.UnknownSymbolError
		badQty       *ledger.InvalidQuantityError
		noFunds      *ledger.InsufficientFundsError
		noShares     *ledger.InsufficientSharesError
		oracleDown   *ledger.OracleUnavailableError
		storeFailure *ledger.PersistenceError
	)
	switch {
	case errors.As(err, &unknownSym), errors.As(err, &badQty):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &noFunds), errors.As(err, &noShares):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &oracleDown):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &storeFailure):
		s.logger.Error().Err(err).Msg("trade persistence failure")
		writeError(w, http.StatusInternalServerError, "trade could not be recorded, no money moved")
	default:
		s.logger.Error().Err(err).Msg("unexpected trade error")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
