package server

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"strconv"

	"system-snapshot/internal/metrics"
)

// latestSnapshot returns the newest stored snapshot.
func (s *Server) latestSnapshot(w http.ResponseWriter, r *http.Request) {
	history, ok := s.loadHistory(w)
	if !ok {
		return
	}

	if len(history.Snapshots) == 0 {
		writeError(w, http.StatusNotFound, "no snapshots recorded yet")
		return
	}

	writeJSON(w, http.StatusOK, history.Snapshots[len(history.Snapshots)-1])
}

// history returns up to limit snapshots, newest first. The limit defaults to
// and is capped by the configured history limit.
func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	limit := -1
	if s.historyLimit > 0 {
		limit = s.historyLimit
	}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		if limit < 0 || n < limit {
			limit = n
		}
	}

	history, ok := s.loadHistory(w)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, newestFirst(history.Snapshots, limit))
}

// snapshotFile returns the history document as stored.
func (s *Server) snapshotFile(w http.ResponseWriter, r *http.Request) {
	history, ok := s.loadHistory(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, history)
}

// emptyList serves endpoints that have nothing to report yet.
func (s *Server) emptyList(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{name: []any{}})
	}
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// loadHistory reads the store, treating a missing file as an empty history.
// On failure it writes the error response and reports false.
func (s *Server) loadHistory(w http.ResponseWriter) (metrics.History, bool) {
	history, err := s.store.Load()
	if errors.Is(err, fs.ErrNotExist) {
		return metrics.History{Snapshots: []metrics.Snapshot{}}, true
	}
	if err != nil {
		s.logger.Error().Err(err).Str("path", s.store.Path()).Msg("failed to load snapshot history")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return metrics.History{}, false
	}
	return history, true
}

// newestFirst returns the last limit snapshots in reverse order. A negative
// limit returns all of them.
func newestFirst(snapshots []metrics.Snapshot, limit int) []metrics.Snapshot {
	n := len(snapshots)
	if limit >= 0 && limit < n {
		n = limit
	}

	out := make([]metrics.Snapshot, 0, n)
	for i := len(snapshots) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, snapshots[i])
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
