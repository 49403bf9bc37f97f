package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"pageanalyzer/internal/inspector"
	"pageanalyzer/internal/storage"
	"pageanalyzer/internal/telemetry"
	"pageanalyzer/internal/urlnorm"
)

type createURLRequest struct {
	URL string `json:"url"`
}

// createURL registers a URL. The raw input is normalized to its canonical
// form before any store lookup; submitting a URL that is already tracked
// answers 200 with the existing entry instead of creating a duplicate.
func (s *Server) createURL(w http.ResponseWriter, r *http.Request) {
	var req createURLRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	canonical, err := urlnorm.Normalize(req.URL)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid url")
		return
	}

	if existing, err := s.store.FindByName(r.Context(), canonical); err == nil {
		writeJSON(w, http.StatusOK, map[string]any{"url": existing})
		return
	} else if !errors.Is(err, storage.ErrNotFound) {
		s.storeError(w, "find entry", err)
		return
	}

	entry, err := s.store.CreateEntry(r.Context(), canonical)
	if errors.Is(err, storage.ErrDuplicate) {
		// Lost the insert race to a concurrent submission; the entry that won
		// is the one to show.
		writeJSON(w, http.StatusOK, map[string]any{"url": entry})
		return
	}
	if err != nil {
		s.storeError(w, "create entry", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"url": entry})
}

// listURLs answers the merged listing: every entry joined with its latest
// check, newest entry first.
func (s *Server) listURLs(w http.ResponseWriter, r *http.Request) {
	merged, err := s.store.MergedListing(r.Context())
	if err != nil {
		s.storeError(w, "merged listing", err)
		return
	}
	if merged == nil {
		merged = []storage.MergedEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"urls": merged})
}

// getURL answers an entry and its full check history.
func (s *Server) getURL(w http.ResponseWriter, r *http.Request) {
	id, ok := parseURLID(w, r)
	if !ok {
		return
	}
	entry, err := s.store.FindByID(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "url not found")
		return
	}
	if err != nil {
		s.storeError(w, "find entry", err)
		return
	}
	checks, err := s.store.ListChecks(r.Context(), id)
	if err != nil {
		s.storeError(w, "list checks", err)
		return
	}
	if checks == nil {
		checks = []storage.Check{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"url": entry, "checks": checks})
}

// runCheck fetches the entry's URL, extracts page metadata and persists the
// result. A failed fetch writes nothing and answers 502.
func (s *Server) runCheck(w http.ResponseWriter, r *http.Request) {
	id, ok := parseURLID(w, r)
	if !ok {
		return
	}
	entry, err := s.store.FindByID(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "url not found")
		return
	}
	if err != nil {
		s.storeError(w, "find entry", err)
		return
	}

	result, err := s.inspector.Check(r.Context(), entry.Name)
	if err != nil {
		if errors.Is(err, inspector.ErrFetchFailed) {
			telemetry.ObserveCheck(telemetry.CheckOutcomeFailure)
			s.logger.Warn("check failed",
				zap.String("url", entry.Name),
				zap.Error(err),
			)
			writeError(w, http.StatusBadGateway, "check failed")
			return
		}
		s.logger.Error("unexpected check error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	check, err := s.store.CreateCheck(r.Context(), id, storage.CheckInput{
		StatusCode:  result.StatusCode,
		Title:       result.Title,
		H1:          result.H1,
		Description: result.Description,
	})
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "url not found")
		return
	}
	if err != nil {
		s.storeError(w, "create check", err)
		return
	}
	telemetry.ObserveCheck(telemetry.CheckOutcomeSuccess)
	writeJSON(w, http.StatusCreated, map[string]any{"check": check})
}

func parseURLID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "url_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, "url not found")
		return 0, false
	}
	return id, true
}

// storeError logs the underlying store failure and answers a generic 500.
// Raw store error text never reaches the client.
func (s *Server) storeError(w http.ResponseWriter, op string, err error) {
	s.logger.Error("store operation failed", zap.String("op", op), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal server error")
}
