// internal/handlers/http.go
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// RoomsHandler lists live rooms.
func RoomsHandler(s *ArenaServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.Rooms.List())
	}
}

// TournamentsHandler lists tournaments.
func TournamentsHandler(s *ArenaServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.Tournaments.List())
	}
}

// TournamentHandler returns one tournament with its bracket.
func TournamentHandler(s *ArenaServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid tournament id"})
			return
		}
		t, ok := s.Tournaments.Get(id)
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "tournament not found"})
			return
		}
		writeJSON(w, http.StatusOK, t.Snapshot())
	}
}

// HealthHandler reports liveness with a couple of gauges.
func HealthHandler(s *ArenaServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":  "ok",
			"rooms":   s.Rooms.Len(),
			"clients": s.ClientCount(),
		})
	}
}

// Routes mounts the arena endpoints on a chi router.
func Routes(r chi.Router, s *ArenaServer) {
	r.Get("/rooms", RoomsHandler(s))
	r.Get("/tournaments", TournamentsHandler(s))
	r.Get("/tournaments/{id}", TournamentHandler(s))
	r.Get("/healthz", HealthHandler(s))
}
