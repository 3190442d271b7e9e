package party

import (
	"time"
)

// Party is a shared listening session. Exactly one member (the host) owns the
// authoritative playback device; everyone else replicates its state.
type Party struct {
	ID              string    `json:"id"`
	Code            string    `json:"code"`
	HostID          string    `json:"hostId"`
	Country         string    `json:"country,omitempty"`
	Ended           bool      `json:"ended"`
	NumTracksPlayed int       `json:"numTracksPlayed"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Member is a user's participation record within one party. Counters drive
// the fairness projection; rows are never hard-deleted while the party
// exists, only flipped inactive.
type Member struct {
	PartyID             string     `json:"partyId"`
	UserID              string     `json:"userId"`
	DisplayName         string     `json:"displayName"`
	NumTracksAdded      int        `json:"numTracksAdded"`
	NumTracksPlayed     int        `json:"numTracksPlayed"`
	Active              bool       `json:"active"`
	TimeFirstTrackAdded *time.Time `json:"timeFirstTrackAdded,omitempty"`
	JoinedAt            time.Time  `json:"joinedAt"`
}

// QueueTrack is one pending submission. TrackNumber is the 1-based ordinal
// among the submitter's own submissions; MemberOrderStamp is the fairness
// tie-break key (the submitter's timeFirstTrackAdded).
type QueueTrack struct {
	PartyID          string    `json:"partyId"`
	TrackID          string    `json:"trackId"`
	SubmitterID      string    `json:"submitterId"`
	SubmitterName    string    `json:"submitterName"`
	TrackNumber      int       `json:"trackNumber"`
	MemberOrderStamp time.Time `json:"memberOrderStamp"`
	CreatedAt        time.Time `json:"createdAt"`
}

// TrackMeta is display metadata resolved from the track provider.
type TrackMeta struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Artists    []string `json:"artists"`
	DurationMs int      `json:"durationMs"`
}

// TrackResolver resolves a track id to display metadata. The search/metadata
// provider behind it is an external collaborator.
type TrackResolver interface {
	Resolve(trackID string) (TrackMeta, error)
}
