package server

import (
	"net/http"

	"github.com/teranos/logtap/logger"
	"github.com/teranos/logtap/version"
)

// setupHTTPRoutes configures all HTTP handlers
func (s *Server) setupHTTPRoutes() {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /ws/scan", s.HandleScanSocket) // Scan channel (commands in, events out)
	mux.HandleFunc("GET /health", s.corsMiddleware(s.HandleHealth))

	mux.HandleFunc("GET /api/datasets", s.corsMiddleware(s.HandleListDatasets))
	mux.HandleFunc("POST /api/datasets", s.corsMiddleware(s.HandleCreateDataset)) // Store under a generated key
	mux.HandleFunc("PUT /api/datasets/{key}", s.corsMiddleware(s.HandlePutDataset))
	mux.HandleFunc("GET /api/datasets/{key}", s.corsMiddleware(s.HandleGetDataset))
	mux.HandleFunc("DELETE /api/datasets/{key}", s.corsMiddleware(s.HandleDeleteDataset))
	mux.HandleFunc("OPTIONS /api/", s.corsMiddleware(func(http.ResponseWriter, *http.Request) {}))

	mux.HandleFunc("GET /api/rules", s.corsMiddleware(s.HandleListRules))
	mux.HandleFunc("GET /api/rules/{file}", s.corsMiddleware(s.HandleGetRules))

	s.mux = mux
}

// corsMiddleware adds CORS headers for allowed origins and answers preflight requests
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			if !s.checkOrigin(r) {
				writeError(w, http.StatusForbidden, "Origin not allowed")
				return
			}
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next(w, r)
	}
}

// HandleHealth reports liveness and the number of open scan channels
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if err := writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": version.Get().Version,
		"clients": s.ClientCount(),
	}); err != nil {
		s.logger.Debugw("Health response failed", logger.FieldError, err)
	}
}
