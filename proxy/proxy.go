// Package proxy is the OAuth token exchange service used by the sign-in
// flow. It holds the OAuth app's client secret so the CLI never has to.
//
// Routes:
//
//	POST /token   {code, state} → {access_token} | {error}
//	POST /revoke  {token}       → 204
//	GET  /health                → {status: "ok", timestamp}
//
// Cross-origin requests are answered only for allowed origins; localhost
// origins are always allowed and "*" allows every origin.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

// DefaultOrigin is allowed when no origins are configured.
const DefaultOrigin = "https://theburd.github.io"

// Config configures a Server.
type Config struct {
	ClientID       string
	ClientSecret   string
	AllowedOrigins []string
	// Endpoint defaults to GitHub's OAuth endpoint.
	Endpoint oauth2.Endpoint
	// APIBase is the GitHub API root used for revocation.
	APIBase string
}

// Server handles the proxy routes.
type Server struct {
	cfg    Config
	oauth  *oauth2.Config
	client *http.Client
	log    zerolog.Logger
	now    func() time.Time
}

// New returns a Server for cfg.
func New(cfg Config, log zerolog.Logger) *Server {
	if cfg.Endpoint.TokenURL == "" {
		cfg.Endpoint = github.Endpoint
	}
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.github.com"
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{DefaultOrigin}
	}
	return &Server{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     cfg.Endpoint,
		},
		client: &http.Client{Timeout: 30 * time.Second},
		log:    log,
		now:    time.Now,
	}
}

// ParseOrigins splits a comma-separated origin list.
func ParseOrigins(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// originAllowed reports whether origin may call the proxy.
func (s *Server) originAllowed(origin string) bool {
	if u, err := url.Parse(origin); err == nil {
		switch u.Hostname() {
		case "localhost", "127.0.0.1":
			return true
		}
	}
	for _, o := range s.cfg.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// Handler returns the routed handler with CORS and access logging.
func (s *Server) Handler(accessLog io.Writer) http.Handler {
	r := mux.NewRouter().StrictSlash(true)
	r.HandleFunc("/token", s.handleToken).Methods(http.MethodPost)
	r.HandleFunc("/revoke", s.handleRevoke).Methods(http.MethodPost)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "Not found"})
	})

	cors := handlers.CORS(
		handlers.AllowedOriginValidator(s.originAllowed),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
		handlers.MaxAge(86400),
	)
	var h http.Handler = cors(r)
	if accessLog != nil {
		h = handlers.CombinedLoggingHandler(accessLog, h)
	}
	return h
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string, accessLog io.Writer) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(accessLog),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.Info().Str("addr", addr).Strs("origins", s.cfg.AllowedOrigins).Msg("token proxy listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type errorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code  string `json:"code"`
		State string `json:"state"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf("Could not decode request (%v)", err)})
		return
	}
	if req.Code == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Missing code parameter"})
		return
	}

	ctx := context.WithValue(r.Context(), oauth2.HTTPClient, s.client)
	tok, err := s.oauth.Exchange(ctx, req.Code)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			s.log.Warn().Str("error", re.ErrorCode).Msg("code exchange rejected")
			body := errorBody{Error: re.ErrorCode, ErrorDescription: re.ErrorDescription}
			if body.Error == "" {
				body.Error = fmt.Sprintf("token endpoint returned %d", re.Response.StatusCode)
			}
			writeJSON(w, http.StatusBadRequest, body)
			return
		}
		s.log.Error().Err(err).Msg("code exchange failed")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}

	scope, _ := tok.Extra("scope").(string)
	writeJSON(w, http.StatusOK, map[string]string{
		"access_token": tok.AccessToken,
		"token_type":   tok.TokenType,
		"scope":        scope,
	})
}

// handleRevoke deletes the app's grant for a token through the GitHub
// applications API.
func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Missing token parameter"})
		return
	}

	body, _ := json.Marshal(map[string]string{"access_token": req.Token})
	url := fmt.Sprintf("%s/applications/%s/grant", strings.TrimRight(s.cfg.APIBase, "/"), s.cfg.ClientID)
	greq, err := http.NewRequestWithContext(r.Context(), http.MethodDelete, url, strings.NewReader(string(body)))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}
	greq.SetBasicAuth(s.cfg.ClientID, s.cfg.ClientSecret)
	greq.Header.Set("Accept", "application/vnd.github+json")
	greq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(greq)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, errorBody{Error: err.Error()})
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		s.log.Warn().Int("status", resp.StatusCode).Msg("revocation rejected")
		writeJSON(w, http.StatusBadGateway, errorBody{Error: fmt.Sprintf("revocation returned %d", resp.StatusCode)})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": s.now().UTC().Format("2006-01-02T15:04:05.000Z"),
	})
}
