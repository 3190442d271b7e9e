package party

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleSubmitTrack queues one track for the calling member.
// POST /parties/{id}/tracks
func (s *Server) handleSubmitTrack(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing user context")
		return
	}
	partyID := chi.URLParam(r, "id")

	var body struct {
		TrackID string `json:"trackId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.TrackID == "" {
		writeError(w, http.StatusBadRequest, "missing track id")
		return
	}

	track, err := s.SubmitTrack(ctx, userID, partyID, body.TrackID)
	if err != nil {
		log.Printf("party-service: submit track: %v", err)
		writePartyError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, track)
}

// handleGetQueue returns all pending tracks in canonical order.
// GET /parties/{id}/queue
func (s *Server) handleGetQueue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	partyID := chi.URLParam(r, "id")

	tracks, err := s.ListQueue(ctx, partyID)
	if err != nil {
		log.Printf("party-service: get queue: %v", err)
		writePartyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tracks": tracks})
}

// handleMyTracks lists the caller's pending submissions with their projected
// queue positions.
// GET /parties/{id}/my-tracks
func (s *Server) handleMyTracks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing user context")
		return
	}
	partyID := chi.URLParam(r, "id")

	tracks, err := s.MyTracks(ctx, userID, partyID)
	if err != nil {
		log.Printf("party-service: my tracks: %v", err)
		writePartyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tracks": tracks})
}

// handleTrackPosition projects the queue position of one pending track.
// GET /parties/{id}/tracks/{trackId}/position
func (s *Server) handleTrackPosition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	partyID := chi.URLParam(r, "id")
	trackID := chi.URLParam(r, "trackId")

	pos, err := s.TrackPosition(ctx, partyID, trackID)
	if err != nil {
		log.Printf("party-service: track position: %v", err)
		writePartyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"trackId":         trackID,
		"positionInQueue": pos,
	})
}
