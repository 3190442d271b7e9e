package party

import (
	"context"
	"time"
)

// MemberCounts is the snapshot of one member's counters that the fairness
// projection runs over. It deliberately carries no queue contents: position
// in queue is a pure function of the member set, recomputed from scratch on
// every read rather than incrementally patched.
type MemberCounts struct {
	UserID              string
	NumTracksAdded      int
	NumTracksPlayed     int
	TimeFirstTrackAdded time.Time
}

// PositionInQueue computes the 1-based position of the viewer's trackNumber'th
// pending submission within the canonical (trackNumber, memberOrderStamp)
// order, given snapshots of every member with at least one submission.
//
// The viewer must not appear in others.
func PositionInQueue(trackNumber int, viewer MemberCounts, others []MemberCounts) int {
	// If this is the viewer's X'th submission, the position is at least
	// X minus the viewer's tracks already played.
	position := trackNumber - viewer.NumTracksPlayed

	for _, member := range others {
		if member.NumTracksAdded >= trackNumber {
			// At least trackNumber-1 of this member's submissions sort ahead
			// of the track we're looking at.
			inFront := trackNumber - 1

			// Both members have an X'th submission; the one who queued up
			// earlier wins the tie.
			if member.TimeFirstTrackAdded.Before(viewer.TimeFirstTrackAdded) {
				inFront++
			}

			// Played tracks aren't in front anymore. A member whose plays
			// outpace their adds must not pull the viewer's track forward.
			inFront -= member.NumTracksPlayed
			if inFront > 0 {
				position += inFront
			}
		} else {
			position += member.NumTracksAdded - member.NumTracksPlayed
		}
	}

	return position
}

// CanonicalLess reports whether track a sorts before track b in the physical
// queue order the synchronizer drains from.
func CanonicalLess(a, b QueueTrack) bool {
	if a.TrackNumber != b.TrackNumber {
		return a.TrackNumber < b.TrackNumber
	}
	return a.MemberOrderStamp.Before(b.MemberOrderStamp)
}

// memberSnapshots loads the counters of every member who has submitted at
// least one track, matching the members listener in the client model.
func (s *Server) memberSnapshots(ctx context.Context, partyID string) ([]MemberCounts, error) {
	rows, err := s.db.Query(ctx, `
		SELECT user_id, num_tracks_added, num_tracks_played, time_first_track_added
		FROM party_members
		WHERE party_id = $1 AND num_tracks_added > 0
	`, partyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []MemberCounts
	for rows.Next() {
		var m MemberCounts
		var firstAdded *time.Time
		if err := rows.Scan(&m.UserID, &m.NumTracksAdded, &m.NumTracksPlayed, &firstAdded); err != nil {
			return nil, err
		}
		if firstAdded != nil {
			m.TimeFirstTrackAdded = *firstAdded
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// splitViewer pulls the viewer out of the member set. Returns ErrNotAMember
// if the viewer has no counters there (never submitted or never joined).
func splitViewer(members []MemberCounts, userID string) (MemberCounts, []MemberCounts, error) {
	others := make([]MemberCounts, 0, len(members))
	var viewer MemberCounts
	found := false
	for _, m := range members {
		if m.UserID == userID {
			viewer = m
			found = true
			continue
		}
		others = append(others, m)
	}
	if !found {
		return MemberCounts{}, nil, ErrNotAMember
	}
	return viewer, others, nil
}
