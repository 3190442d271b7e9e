package party

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"

	// submitRetries bounds transparent retries on optimistic-concurrency
	// conflicts between submissions by the same member.
	submitRetries = 3
)

// SubmitTrack stamps and inserts one submission as a single transaction
// against the submitter's member row: trackNumber = ++numTracksAdded and
// memberOrderStamp = timeFirstTrackAdded (set to now on the member's first
// submission). Concurrent submissions by the same member
// serialize on the row lock; a conflicting commit is retried against fresh
// counters.
func (s *Server) SubmitTrack(ctx context.Context, userID, partyID, trackID string) (QueueTrack, error) {
	var track QueueTrack
	var err error
	for attempt := 0; attempt < submitRetries; attempt++ {
		track, err = s.submitTrackOnce(ctx, userID, partyID, trackID)
		if err == nil {
			s.publishEvent(ctx, map[string]any{
				"type":    "queue.track_added",
				"partyId": partyID,
				"payload": track,
			})
			return track, nil
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgSerializationFailure {
			log.Printf("party-service: submit retry %d for %s/%s: %v", attempt+1, partyID, trackID, err)
			continue
		}
		return QueueTrack{}, err
	}
	return QueueTrack{}, err
}

func (s *Server) submitTrackOnce(ctx context.Context, userID, partyID, trackID string) (QueueTrack, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return QueueTrack{}, err
	}
	defer tx.Rollback(ctx)

	var ended bool
	err = tx.QueryRow(ctx, `SELECT ended FROM parties WHERE id = $1`, partyID).Scan(&ended)
	if errors.Is(err, pgx.ErrNoRows) {
		return QueueTrack{}, ErrPartyNotFound
	}
	if err != nil {
		return QueueTrack{}, err
	}
	if ended {
		return QueueTrack{}, ErrPartyEnded
	}

	var numTracksAdded int
	var firstAdded *time.Time
	var displayName string
	err = tx.QueryRow(ctx, `
		SELECT num_tracks_added, time_first_track_added, display_name
		FROM party_members
		WHERE party_id = $1 AND user_id = $2
		FOR UPDATE
	`, partyID, userID).Scan(&numTracksAdded, &firstAdded, &displayName)
	if errors.Is(err, pgx.ErrNoRows) {
		return QueueTrack{}, ErrNotAMember
	}
	if err != nil {
		return QueueTrack{}, err
	}

	now := time.Now().UTC()
	numTracksAdded++
	orderStamp := now
	if numTracksAdded == 1 {
		// The member's first submission stamps their order key.
		_, err = tx.Exec(ctx, `
			UPDATE party_members
			SET num_tracks_added = $3, time_first_track_added = $4
			WHERE party_id = $1 AND user_id = $2
		`, partyID, userID, numTracksAdded, now)
	} else {
		if firstAdded != nil {
			orderStamp = *firstAdded
		}
		_, err = tx.Exec(ctx, `
			UPDATE party_members
			SET num_tracks_added = $3
			WHERE party_id = $1 AND user_id = $2
		`, partyID, userID, numTracksAdded)
	}
	if err != nil {
		return QueueTrack{}, err
	}

	track := QueueTrack{
		PartyID:          partyID,
		TrackID:          trackID,
		SubmitterID:      userID,
		SubmitterName:    displayName,
		TrackNumber:      numTracksAdded,
		MemberOrderStamp: orderStamp,
		CreatedAt:        now,
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO party_tracks (party_id, track_id, submitter_id, submitter_name, track_number, member_order_stamp, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, partyID, trackID, userID, displayName, track.TrackNumber, track.MemberOrderStamp, now)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return QueueTrack{}, ErrDuplicateSubmission
	}
	if err != nil {
		return QueueTrack{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return QueueTrack{}, err
	}
	return track, nil
}

// ListQueue returns all pending tracks in canonical storage order.
func (s *Server) ListQueue(ctx context.Context, partyID string) ([]QueueTrack, error) {
	rows, err := s.db.Query(ctx, `
		SELECT party_id, track_id, submitter_id, submitter_name, track_number, member_order_stamp, created_at
		FROM party_tracks
		WHERE party_id = $1
		ORDER BY track_number ASC, member_order_stamp ASC
	`, partyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tracks []QueueTrack
	for rows.Next() {
		var t QueueTrack
		if err := rows.Scan(&t.PartyID, &t.TrackID, &t.SubmitterID, &t.SubmitterName,
			&t.TrackNumber, &t.MemberOrderStamp, &t.CreatedAt); err != nil {
			return nil, err
		}
		tracks = append(tracks, t)
	}
	return tracks, rows.Err()
}

// NextTrack returns the queue head, or nil when the queue is empty.
func (s *Server) NextTrack(ctx context.Context, partyID string) (*QueueTrack, error) {
	var t QueueTrack
	err := s.db.QueryRow(ctx, `
		SELECT party_id, track_id, submitter_id, submitter_name, track_number, member_order_stamp, created_at
		FROM party_tracks
		WHERE party_id = $1
		ORDER BY track_number ASC, member_order_stamp ASC
		LIMIT 1
	`, partyID).Scan(&t.PartyID, &t.TrackID, &t.SubmitterID, &t.SubmitterName,
		&t.TrackNumber, &t.MemberOrderStamp, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// MyTracks lists the viewer's own pending submissions in submission order,
// each annotated with its projected position in the party queue.
func (s *Server) MyTracks(ctx context.Context, userID, partyID string) ([]TrackWithPosition, error) {
	members, err := s.memberSnapshots(ctx, partyID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT party_id, track_id, submitter_id, submitter_name, track_number, member_order_stamp, created_at
		FROM party_tracks
		WHERE party_id = $1 AND submitter_id = $2
		ORDER BY created_at ASC
	`, partyID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tracks []QueueTrack
	for rows.Next() {
		var t QueueTrack
		if err := rows.Scan(&t.PartyID, &t.TrackID, &t.SubmitterID, &t.SubmitterName,
			&t.TrackNumber, &t.MemberOrderStamp, &t.CreatedAt); err != nil {
			return nil, err
		}
		tracks = append(tracks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(tracks) == 0 {
		return nil, nil
	}

	viewer, others, err := splitViewer(members, userID)
	if err != nil {
		return nil, err
	}

	out := make([]TrackWithPosition, 0, len(tracks))
	for _, t := range tracks {
		item := TrackWithPosition{
			QueueTrack: t,
			Position:   PositionInQueue(t.TrackNumber, viewer, others),
		}
		if s.resolver != nil {
			if meta, err := s.resolver.Resolve(t.TrackID); err == nil {
				item.Track = &meta
			}
		}
		out = append(out, item)
	}
	return out, nil
}

// TrackWithPosition is a pending submission plus its read-time projection.
type TrackWithPosition struct {
	QueueTrack
	Position int        `json:"positionInQueue"`
	Track    *TrackMeta `json:"track,omitempty"`
}

// TrackPosition projects the position of one pending track. The projection
// always runs from the submitter's viewpoint, whoever asks.
func (s *Server) TrackPosition(ctx context.Context, partyID, trackID string) (int, error) {
	var trackNumber int
	var submitterID string
	err := s.db.QueryRow(ctx, `
		SELECT track_number, submitter_id
		FROM party_tracks
		WHERE party_id = $1 AND track_id = $2
	`, partyID, trackID).Scan(&trackNumber, &submitterID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrPartyNotFound
	}
	if err != nil {
		return 0, err
	}

	members, err := s.memberSnapshots(ctx, partyID)
	if err != nil {
		return 0, err
	}
	viewer, others, err := splitViewer(members, submitterID)
	if err != nil {
		return 0, err
	}
	return PositionInQueue(trackNumber, viewer, others), nil
}

// AdvanceQueue removes the played queue head and credits its submitter, as
// one transaction: look up the submitter's counters, delete the track,
// increment num_tracks_played by exactly one. Single-flight per party; the
// head check turns a late duplicate advance into ErrInconsistentQueueHead,
// which callers treat as a benign no-op.
//
// Returns the new queue head (nil when the queue drained).
func (s *Server) AdvanceQueue(ctx context.Context, partyID, expectedTrackID string) (*QueueTrack, error) {
	mu := s.partyMutex(partyID)
	mu.Lock()
	defer mu.Unlock()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var head QueueTrack
	err = tx.QueryRow(ctx, `
		SELECT track_id, submitter_id
		FROM party_tracks
		WHERE party_id = $1
		ORDER BY track_number ASC, member_order_stamp ASC
		LIMIT 1
		FOR UPDATE
	`, partyID).Scan(&head.TrackID, &head.SubmitterID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrInconsistentQueueHead
	}
	if err != nil {
		return nil, err
	}
	if expectedTrackID != "" && head.TrackID != expectedTrackID {
		return nil, ErrInconsistentQueueHead
	}

	var numTracksPlayed int
	err = tx.QueryRow(ctx, `
		SELECT num_tracks_played
		FROM party_members
		WHERE party_id = $1 AND user_id = $2
		FOR UPDATE
	`, partyID, head.SubmitterID).Scan(&numTracksPlayed)
	if err != nil {
		return nil, err
	}

	if _, err = tx.Exec(ctx, `
		DELETE FROM party_tracks WHERE party_id = $1 AND track_id = $2
	`, partyID, head.TrackID); err != nil {
		return nil, err
	}

	if _, err = tx.Exec(ctx, `
		UPDATE party_members SET num_tracks_played = $3
		WHERE party_id = $1 AND user_id = $2
	`, partyID, head.SubmitterID, numTracksPlayed+1); err != nil {
		return nil, err
	}

	if _, err = tx.Exec(ctx, `
		UPDATE parties SET num_tracks_played = num_tracks_played + 1 WHERE id = $1
	`, partyID); err != nil {
		return nil, err
	}

	var next *QueueTrack
	var t QueueTrack
	err = tx.QueryRow(ctx, `
		SELECT party_id, track_id, submitter_id, submitter_name, track_number, member_order_stamp, created_at
		FROM party_tracks
		WHERE party_id = $1
		ORDER BY track_number ASC, member_order_stamp ASC
		LIMIT 1
	`, partyID).Scan(&t.PartyID, &t.TrackID, &t.SubmitterID, &t.SubmitterName,
		&t.TrackNumber, &t.MemberOrderStamp, &t.CreatedAt)
	if err == nil {
		next = &t
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.publishEvent(ctx, map[string]any{
		"type":    "queue.advanced",
		"partyId": partyID,
		"payload": map[string]any{
			"playedTrackId": head.TrackID,
			"nextTrack":     next,
		},
	})
	return next, nil
}

// SavePlaybackState persists the host's replicated playback state on the
// party document and notifies subscribers. The origin tag lets the host's
// own subscriber loop drop the echo instead of re-issuing player commands.
func (s *Server) SavePlaybackState(ctx context.Context, partyID string, state json.RawMessage, origin string) error {
	if _, err := s.db.Exec(ctx, `
		UPDATE parties SET playback_state = $2 WHERE id = $1
	`, partyID, state); err != nil {
		return err
	}
	s.publishEvent(ctx, map[string]any{
		"type":    "player.state_changed",
		"partyId": partyID,
		"origin":  origin,
		"payload": json.RawMessage(state),
	})
	return nil
}

// LoadPlaybackState returns the stored snapshot, or nil if none published yet.
func (s *Server) LoadPlaybackState(ctx context.Context, partyID string) (json.RawMessage, error) {
	var state []byte
	err := s.db.QueryRow(ctx, `SELECT playback_state FROM parties WHERE id = $1`, partyID).Scan(&state)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPartyNotFound
	}
	if err != nil {
		return nil, err
	}
	return state, nil
}
