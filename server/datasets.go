package server

import (
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/teranos/logtap/errors"
	"github.com/teranos/logtap/logger"
)

// maxUploadSize caps a single dataset upload
const maxUploadSize = 1 << 30

// datasetResponse acknowledges a stored dataset
type datasetResponse struct {
	Key  string `json:"key"`
	Size int64  `json:"size"`
}

// HandleListDatasets lists stored datasets, most recently updated first
func (s *Server) HandleListDatasets(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.List(r.Context())
	if err != nil {
		s.writeErrorFor(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleCreateDataset stores the request body under a generated key
func (s *Server) HandleCreateDataset(w http.ResponseWriter, r *http.Request) {
	s.storeDataset(w, r, uuid.NewString(), http.StatusCreated)
}

// HandlePutDataset stores the request body under the key in the path, replacing any previous dataset
func (s *Server) HandlePutDataset(w http.ResponseWriter, r *http.Request) {
	s.storeDataset(w, r, r.PathValue("key"), http.StatusOK)
}

func (s *Server) storeDataset(w http.ResponseWriter, r *http.Request, key string, status int) {
	if !s.uploads.Allow() {
		w.Header().Set("Retry-After", "60")
		writeError(w, http.StatusTooManyRequests, "Upload rate limit exceeded")
		return
	}

	body := http.MaxBytesReader(w, r.Body, maxUploadSize)
	size, err := s.store.PutStream(r.Context(), key, body)
	if err != nil {
		s.writeErrorFor(w, r, err)
		return
	}

	s.logger.Infow("Dataset stored", logger.FieldDatasetKey, key, logger.FieldSize, size)
	writeJSON(w, status, datasetResponse{Key: key, Size: size})
}

// HandleGetDataset streams a stored dataset back as text
func (s *Server) HandleGetDataset(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	size, err := s.store.Size(r.Context(), key)
	if err != nil {
		s.writeErrorFor(w, r, err)
		return
	}
	stream, err := s.store.GetStream(r.Context(), key)
	if err != nil {
		s.writeErrorFor(w, r, err)
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, stream); err != nil {
		// Headers are gone; all that is left is to cut the response short
		s.logger.Warnw("Dataset download interrupted",
			logger.FieldDatasetKey, key,
			logger.FieldError, errors.Wrap(err, "stream dataset"),
		)
	}
}

// HandleDeleteDataset removes a stored dataset. Deleting a missing key succeeds.
func (s *Server) HandleDeleteDataset(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if err := s.store.Delete(r.Context(), key); err != nil {
		s.writeErrorFor(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
