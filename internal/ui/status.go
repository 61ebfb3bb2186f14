package ui

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/bamsammich/beamsplit/internal/engine"
)

// Operator is the control surface of a running orchestrator.
type Operator interface {
	Snapshot() engine.Status
	Retry(id int64) bool
	Skip(id int64) bool
	RetryAllFailed() int
	Stop()
}

// NewStatusMux serves the operator endpoints:
//
//	GET  /status
//	POST /chunks/{id}/retry
//	POST /chunks/{id}/skip
//	POST /retry-failed
//	POST /stop
func NewStatusMux(op Operator, log *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", NewStatusHandler(op, log))
	mux.HandleFunc("POST /chunks/{id}/retry", NewChunkActionHandler(op.Retry, "retry", log))
	mux.HandleFunc("POST /chunks/{id}/skip", NewChunkActionHandler(op.Skip, "skip", log))
	mux.HandleFunc("POST /retry-failed", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]int{"retried": op.RetryAllFailed()})
	})
	mux.HandleFunc("POST /stop", func(w http.ResponseWriter, _ *http.Request) {
		log.Info("stop requested over http")
		op.Stop()
		w.WriteHeader(http.StatusAccepted)
	})
	return mux
}

// NewStatusHandler writes the orchestrator snapshot as JSON.
func NewStatusHandler(op Operator, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "StatusHandler"))

	return func(w http.ResponseWriter, _ *http.Request) {
		st := op.Snapshot()
		log.Debug("status requested", "phase", st.Phase, "profile", st.Profile)
		writeJSON(w, http.StatusOK, st)
	}
}

// NewChunkActionHandler applies action to the chunk named in the path.
// Unknown or non-failed chunks get 404.
func NewChunkActionHandler(action func(int64) bool, name string, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "ChunkActionHandler"), slog.String("action", name))

	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			http.Error(w, "Bad request", http.StatusBadRequest)

			return
		}
		if !action(id) {
			http.Error(w, "chunk not in failed queue", http.StatusNotFound)

			return
		}
		log.Info("chunk action applied", "chunk", id)
		writeJSON(w, http.StatusOK, map[string]int64{"chunk": id})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("cannot encode response", "error", err)
	}
}
