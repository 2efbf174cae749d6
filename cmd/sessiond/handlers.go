package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/identity"
	"github.com/MrEthical07/goSession/middleware"
)

const maxBodyBytes = 64 << 10

type server struct {
	engine  *goSession.Engine
	log     *slog.Logger
	cookie  middleware.CookieOptions
	extract middleware.Extractor
	metrics http.Handler
}

func newServer(engine *goSession.Engine, log *slog.Logger, cookie middleware.CookieOptions, metrics http.Handler) *server {
	return &server{
		engine:  engine,
		log:     log,
		cookie:  cookie,
		extract: middleware.DefaultExtractor(),
		metrics: metrics,
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	guard := middleware.Guard(s.engine, s.extract)
	admin := middleware.RequireAllowListed(s.engine.AllowList())

	mux.HandleFunc("POST /api/auth/verify", s.handleVerify)
	mux.HandleFunc("POST /api/auth/logout", s.handleLogout)
	mux.Handle("GET /api/auth/me", guard(http.HandlerFunc(s.handleMe)))
	mux.Handle("GET /api/admin/ping", guard(admin(http.HandlerFunc(s.handleAdminPing))))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}

	return withRequestContext(mux, s.log)
}

type verifyRequest struct {
	IDToken      string `json:"idToken"`
	RememberMe   bool   `json:"rememberMe"`
	SameWhatsapp bool   `json:"sameWhatsapp"`
}

type verifyResponse struct {
	Message string `json:"message"`
	Token   string `json:"token"`
}

func (s *server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil || req.IDToken == "" {
		middleware.WriteMessage(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	res, err := s.engine.Login(r.Context(), req.IDToken, goSession.LoginOptions{
		RememberMe: req.RememberMe,
		Profile: map[string]string{
			"sameNumberOnWhatsapp": strconv.FormatBool(req.SameWhatsapp),
		},
	})
	if err != nil {
		s.writeLoginError(w, r, err)
		return
	}

	middleware.SetSessionCookie(w, res.Token, time.Until(res.ExpiresAt), s.cookie)
	middleware.WriteJSON(w, http.StatusOK, verifyResponse{
		Message: "Logged in successfully",
		Token:   res.Token,
	})
}

func (s *server) writeLoginError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, identity.ErrClaimMissing):
		middleware.WriteMessage(w, http.StatusBadRequest, "Phone number not found in token")
	case errors.Is(err, goSession.ErrLoginRateLimited):
		middleware.WriteMessage(w, http.StatusTooManyRequests, "Too many failed attempts, please try again later.")
	case errors.Is(err, goSession.ErrIdentityRejected):
		middleware.WriteMessage(w, http.StatusUnauthorized, "Verification failed.")
	case errors.Is(err, goSession.ErrUpstreamUnavailable):
		middleware.WriteMessage(w, http.StatusServiceUnavailable, "Verification unavailable, please retry.")
	default:
		s.log.ErrorContext(r.Context(), "login failed",
			"request_id", requestIDFromContext(r.Context()),
			"error", err,
		)
		middleware.WriteMessage(w, http.StatusInternalServerError, "Verification error occurred.")
	}
}

func (s *server) handleLogout(w http.ResponseWriter, r *http.Request) {
	wire, ok := s.extract(r)
	if !ok {
		middleware.WriteMessage(w, http.StatusOK, "Already Logged Out, Please login again to continue.")
		return
	}

	if err := s.engine.Revoke(r.Context(), wire); err != nil {
		s.log.WarnContext(r.Context(), "logout failed",
			"request_id", requestIDFromContext(r.Context()),
			"error", err,
		)
		middleware.WriteMessage(w, http.StatusServiceUnavailable, "Logout unavailable, please retry.")
		return
	}

	middleware.ClearSessionCookie(w, s.cookie)
	middleware.WriteMessage(w, http.StatusOK, "Logged out successfully")
}

type meResponse struct {
	Identity  string    `json:"identity"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *server) handleMe(w http.ResponseWriter, r *http.Request) {
	res, ok := middleware.AuthResultFromContext(r.Context())
	if !ok {
		middleware.WriteMessage(w, http.StatusUnauthorized, "No token provided.")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, meResponse{Identity: res.Identity, ExpiresAt: res.ExpiresAt})
}

func (s *server) handleAdminPing(w http.ResponseWriter, _ *http.Request) {
	middleware.WriteMessage(w, http.StatusOK, "pong")
}

type healthResponse struct {
	Status         string `json:"status"`
	StoreLatencyMS int64  `json:"storeLatencyMs"`
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := s.engine.Health(r.Context())
	if !h.StoreAvailable {
		middleware.WriteJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "degraded"})
		return
	}
	middleware.WriteJSON(w, http.StatusOK, healthResponse{
		Status:         "ok",
		StoreLatencyMS: h.StoreLatency.Milliseconds(),
	})
}
