package server

import (
	"net/http"
	"strings"
)

// checkOrigin validates a request origin against server.allowed_origins.
// Requests without an Origin header (CLI clients, tests) are allowed.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	allowed := s.cfg.Server.AllowedOrigins
	if len(allowed) == 0 {
		return strings.HasPrefix(origin, "http://localhost") ||
			strings.HasPrefix(origin, "https://localhost")
	}

	// Prefix matching so any port of an allowed host passes
	for _, a := range allowed {
		if strings.HasPrefix(origin, a) {
			return true
		}
	}
	return false
}
