// Package adminhttp is the AI admin HTTP surface: GET /start issues an
// XSRF cookie, POST /start (with a matching XSRF header) spawns an AI
// Client Bridge for a player key.
//
// Grounded on igo/aiserver/http_server.py's /start contract and on
// service/middleware.go's cookie-based auth pattern, with the XSRF
// minting logic adapted from business/nonce.go.
package adminhttp

import (
	"context"
	"encoding/json"
	"log"
	"math/rand"
	"net/http"
	"time"

	"gobanserver/aiclient"
	"gobanserver/aiclient/policy"
)

const xsrfCookieName = "xsrf_token"

// Server exposes the /start endpoint used to spawn AI clients.
type Server struct {
	wsURL  string
	nonces *nonceManager
}

// New constructs a Server that dials wsURL (e.g. "ws://localhost:8080/ws")
// when spawning an AI client.
func New(wsURL string) *Server {
	return &Server{wsURL: wsURL, nonces: newNonceManager()}
}

// Handler returns the mux-ready handler for /start.
func (s *Server) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			s.handleGet(w, r)
		case http.MethodPost:
			s.handlePost(w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	token, err := s.nonces.issue()
	if err != nil {
		log.Printf("adminhttp: issuing xsrf token: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     xsrfCookieName,
		Value:    token,
		Path:     "/start",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		Expires:  time.Now().Add(5 * time.Minute),
	})
	w.WriteHeader(http.StatusOK)
}

type startRequest struct {
	PlayerKey string `json:"player_key"`
	AISecret  string `json:"ai_secret"`
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(xsrfCookieName)
	if err != nil {
		http.Error(w, "missing xsrf cookie", http.StatusForbidden)
		return
	}
	header := r.Header.Get("X-XSRF-Token")
	if header == "" || header != cookie.Value {
		http.Error(w, "xsrf token mismatch", http.StatusForbidden)
		return
	}
	if err := s.nonces.validate(header); err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}

	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed body", http.StatusBadRequest)
		return
	}
	if req.PlayerKey == "" || req.AISecret == "" {
		http.Error(w, "player_key and ai_secret are required", http.StatusBadRequest)
		return
	}

	client := aiclient.New(s.wsURL, req.PlayerKey, req.AISecret, defaultPolicy())
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 6*time.Hour)
		defer cancel()
		if err := client.Run(ctx); err != nil {
			log.Printf("adminhttp: ai client for %s exited: %v", req.PlayerKey, err)
		}
	}()

	w.WriteHeader(http.StatusOK)
}

func defaultPolicy() policy.Policy {
	return policy.NewRandomLegal(rand.NewSource(time.Now().UnixNano()))
}
