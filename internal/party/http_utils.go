package party

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
)

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writePartyError maps the package's sentinel errors onto HTTP statuses.
func writePartyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrPartyNotFound):
		writeError(w, http.StatusNotFound, "party not found")
	case errors.Is(err, ErrPartyEnded):
		writeError(w, http.StatusGone, "party has ended")
	case errors.Is(err, ErrNotAMember):
		writeError(w, http.StatusForbidden, "not a member of this party")
	case errors.Is(err, ErrDuplicateSubmission):
		writeError(w, http.StatusConflict, "track is already queued")
	case errors.Is(err, ErrPartyCodeExhausted):
		writeError(w, http.StatusServiceUnavailable, "could not allocate a party code")
	default:
		writeError(w, http.StatusInternalServerError, "database error")
	}
}

func (s *Server) publishEvent(ctx context.Context, event map[string]any) {
	if s.rdb == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("party-service: marshal event: %v", err)
		return
	}
	if err := s.rdb.Publish(ctx, "broadcast", string(data)).Err(); err != nil {
		log.Printf("party-service: publish event: %v", err)
	}
}
