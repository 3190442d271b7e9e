package party

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrNotHost rejects host-only operations from other members.
var ErrNotHost = errors.New("only the host may do this")

// CreateParty creates a party with the caller as host, joins them to it and
// allocates a join code. A code allocation failure rolls the party back and
// surfaces as a creation failure.
func (s *Server) CreateParty(ctx context.Context, userID, displayName, country string) (Party, error) {
	partyID := uuid.NewString()
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Party{}, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO parties (id, host_id, country, created_at) VALUES ($1, $2, $3, $4)
	`, partyID, userID, country, now); err != nil {
		return Party{}, err
	}

	// The creator/host must join their own party.
	if _, err := tx.Exec(ctx, `
		INSERT INTO party_members (party_id, user_id, display_name, joined_at)
		VALUES ($1, $2, $3, $4)
	`, partyID, userID, displayName, now); err != nil {
		return Party{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Party{}, err
	}

	code, err := s.allocateCode(ctx, partyID)
	if err != nil {
		if _, delErr := s.db.Exec(ctx, `DELETE FROM parties WHERE id = $1`, partyID); delErr != nil {
			log.Printf("party-service: rollback codeless party %s: %v", partyID, delErr)
		}
		return Party{}, err
	}
	if _, err := s.db.Exec(ctx, `UPDATE parties SET code = $2 WHERE id = $1`, partyID, code); err != nil {
		return Party{}, err
	}

	p := Party{
		ID:        partyID,
		Code:      code,
		HostID:    userID,
		Country:   country,
		CreatedAt: now,
	}
	s.publishEvent(ctx, map[string]any{
		"type":    "party.created",
		"partyId": partyID,
		"payload": p,
	})
	return p, nil
}

// JoinPartyByCode resolves a human-entered code and joins the caller.
func (s *Server) JoinPartyByCode(ctx context.Context, userID, displayName, code string) (Party, error) {
	var p Party
	err := s.db.QueryRow(ctx, `
		SELECT id, code, host_id, country, ended, num_tracks_played, created_at
		FROM parties WHERE code = $1
	`, code).Scan(&p.ID, &p.Code, &p.HostID, &p.Country, &p.Ended, &p.NumTracksPlayed, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Party{}, ErrPartyNotFound
	}
	if err != nil {
		return Party{}, err
	}
	if p.Ended {
		return Party{}, ErrPartyEnded
	}
	if err := s.JoinParty(ctx, userID, displayName, p.ID); err != nil {
		return Party{}, err
	}
	return p, nil
}

// JoinParty adds the caller as a member, or reactivates them on rejoin
// without resetting the counters they accumulated.
func (s *Server) JoinParty(ctx context.Context, userID, displayName, partyID string) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var exists bool
	err = tx.QueryRow(ctx, `
		SELECT TRUE FROM party_members WHERE party_id = $1 AND user_id = $2 FOR UPDATE
	`, partyID, userID).Scan(&exists)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		if _, err := tx.Exec(ctx, `
			INSERT INTO party_members (party_id, user_id, display_name)
			VALUES ($1, $2, $3)
		`, partyID, userID, displayName); err != nil {
			return err
		}
	case err != nil:
		return err
	default:
		if _, err := tx.Exec(ctx, `
			UPDATE party_members SET active = TRUE WHERE party_id = $1 AND user_id = $2
		`, partyID, userID); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	s.publishEvent(ctx, map[string]any{
		"type":    "party.member_joined",
		"partyId": partyID,
		"payload": map[string]any{"userId": userID, "displayName": displayName},
	})
	return nil
}

// LeaveParty flips the member inactive. The row stays so a rejoin keeps the
// member's counters and pending submissions.
func (s *Server) LeaveParty(ctx context.Context, userID, partyID string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE party_members SET active = FALSE WHERE party_id = $1 AND user_id = $2
	`, partyID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotAMember
	}
	s.publishEvent(ctx, map[string]any{
		"type":    "party.member_left",
		"partyId": partyID,
		"payload": map[string]any{"userId": userID},
	})
	return nil
}

// EndParty marks the party ended. Data erasure happens asynchronously in the
// cleanup worker.
func (s *Server) EndParty(ctx context.Context, userID, partyID string) error {
	var hostID string
	var ended bool
	err := s.db.QueryRow(ctx, `SELECT host_id, ended FROM parties WHERE id = $1`, partyID).
		Scan(&hostID, &ended)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrPartyNotFound
	}
	if err != nil {
		return err
	}
	if hostID != userID {
		return ErrNotHost
	}
	if ended {
		return nil
	}

	if _, err := s.db.Exec(ctx, `UPDATE parties SET ended = TRUE WHERE id = $1`, partyID); err != nil {
		return err
	}
	s.publishEvent(ctx, map[string]any{
		"type":    "party.ended",
		"partyId": partyID,
	})
	return nil
}

// GetParty loads one party document.
func (s *Server) GetParty(ctx context.Context, partyID string) (Party, error) {
	var p Party
	err := s.db.QueryRow(ctx, `
		SELECT id, code, host_id, country, ended, num_tracks_played, created_at
		FROM parties WHERE id = $1
	`, partyID).Scan(&p.ID, &p.Code, &p.HostID, &p.Country, &p.Ended, &p.NumTracksPlayed, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Party{}, ErrPartyNotFound
	}
	return p, err
}

// ListMembers returns members who have submitted at least one track, the set
// the fairness projection runs over.
func (s *Server) ListMembers(ctx context.Context, partyID string) ([]Member, error) {
	rows, err := s.db.Query(ctx, `
		SELECT party_id, user_id, display_name, num_tracks_added, num_tracks_played, active, time_first_track_added, joined_at
		FROM party_members
		WHERE party_id = $1 AND num_tracks_added > 0
	`, partyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.PartyID, &m.UserID, &m.DisplayName, &m.NumTracksAdded,
			&m.NumTracksPlayed, &m.Active, &m.TimeFirstTrackAdded, &m.JoinedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}
