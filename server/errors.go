package server

import (
	"net/http"

	"github.com/teranos/logtap/errors"
	"github.com/teranos/logtap/logger"
)

// statusFor maps an error to the HTTP status a client should see
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.IsNotFoundError(err):
		return http.StatusNotFound
	case errors.IsInvalidRequestError(err):
		return http.StatusBadRequest
	case errors.IsServiceUnavailableError(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeErrorFor writes err with its mapped status. Internal failures are
// logged and reported without detail.
func (s *Server) writeErrorFor(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Errorw("Request failed",
			logger.FieldMethod, r.Method,
			logger.FieldPath, r.URL.Path,
			logger.FieldError, err,
		)
		writeError(w, status, "Internal server error")
		return
	}
	writeError(w, status, err.Error())
}
