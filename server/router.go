package main

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"dealer/server/comms"
	"dealer/server/store"
)

// Router is the read-only admin/observability API served next to the
// TCP game port.
func Router(gw store.Gateway, srv *comms.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/api/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, map[string]any{"ok": true, "sessions": srv.Registry().Count()})
	})

	r.Get("/api/leaderboard", func(w http.ResponseWriter, req *http.Request) {
		rows, err := gw.Leaderboard(req.Context(), 100)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]any{"rows": rows})
	})

	r.Get("/api/player/{name}", func(w http.ResponseWriter, req *http.Request) {
		st, err := gw.Stats(req.Context(), chi.URLParam(req, "name"))
		if err != nil {
			http.Error(w, "no such player", http.StatusNotFound)
			return
		}
		writeJSON(w, st)
	})

	r.Get("/api/tables", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, map[string]any{"tables": srv.Snapshots()})
	})

	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
