package web

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/e7d/rustdesk-indicator/internal/logging"
)

// requestToken extracts the presented token. Browsers cannot set headers on
// EventSource or WebSocket requests, so ?token= is accepted too.
func requestToken(r *http.Request) string {
	if h := strings.TrimSpace(r.Header.Get("Authorization")); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

// authorizeRequest reports whether r may read the state feeds. Any request
// passes when no token is configured.
func (s *Server) authorizeRequest(r *http.Request) bool {
	if s.cfg.Token == "" {
		return true
	}
	got := requestToken(r)
	if got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.Token)) == 1 {
		return true
	}
	logging.Aggregate(logging.CompWeb, "unauthorized_request",
		slog.String("path", r.URL.Path),
		slog.String("remote", r.RemoteAddr))
	return false
}
