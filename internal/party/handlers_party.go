package party

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// handleCreateParty creates a party with the caller as host.
// POST /parties
func (s *Server) handleCreateParty(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing user context")
		return
	}

	var body struct {
		DisplayName string `json:"displayName"`
		Country     string `json:"country"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	if body.DisplayName == "" {
		body.DisplayName = userID
	}

	p, err := s.CreateParty(ctx, userID, body.DisplayName, body.Country)
	if err != nil {
		log.Printf("party-service: create party: %v", err)
		writePartyError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// handleJoinParty joins the caller to the party behind a join code.
// POST /parties/join
func (s *Server) handleJoinParty(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing user context")
		return
	}

	var body struct {
		Code        string `json:"code"`
		DisplayName string `json:"displayName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	body.Code = strings.ToUpper(strings.TrimSpace(body.Code))
	if body.Code == "" {
		writeError(w, http.StatusBadRequest, "missing party code")
		return
	}
	if body.DisplayName == "" {
		body.DisplayName = userID
	}

	p, err := s.JoinPartyByCode(ctx, userID, body.DisplayName, body.Code)
	if err != nil {
		log.Printf("party-service: join party: %v", err)
		writePartyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleGetParty returns one party document.
// GET /parties/{id}
func (s *Server) handleGetParty(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	partyID := chi.URLParam(r, "id")
	if partyID == "" {
		writeError(w, http.StatusBadRequest, "missing party id")
		return
	}

	p, err := s.GetParty(ctx, partyID)
	if err != nil {
		writePartyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleLeaveParty marks the caller inactive.
// POST /parties/{id}/leave
func (s *Server) handleLeaveParty(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing user context")
		return
	}
	partyID := chi.URLParam(r, "id")

	if err := s.LeaveParty(ctx, userID, partyID); err != nil {
		log.Printf("party-service: leave party: %v", err)
		writePartyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleEndParty lets the host end the party; cleanup happens asynchronously.
// POST /parties/{id}/end
func (s *Server) handleEndParty(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing user context")
		return
	}
	partyID := chi.URLParam(r, "id")

	err := s.EndParty(ctx, userID, partyID)
	if err == ErrNotHost {
		writeError(w, http.StatusForbidden, "only the host may end the party")
		return
	}
	if err != nil {
		log.Printf("party-service: end party: %v", err)
		writePartyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleListMembers lists members with pending or played submissions.
// GET /parties/{id}/members
func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	partyID := chi.URLParam(r, "id")

	members, err := s.ListMembers(ctx, partyID)
	if err != nil {
		log.Printf("party-service: list members: %v", err)
		writePartyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"members": members})
}
