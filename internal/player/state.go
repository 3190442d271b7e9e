package player

import (
	"time"
)

// TrackInfo is the slice of track metadata the classifier and synchronizer
// care about. DurationMs keeps the device's duration_ms wire name.
type TrackInfo struct {
	ID         string `json:"id"`
	Name       string `json:"name,omitempty"`
	DurationMs int    `json:"duration_ms"`
}

// Snapshot is one raw playback report from the active device, already
// flattened from the device's track_window shape.
type Snapshot struct {
	Paused        bool       `json:"paused"`
	Position      int        `json:"position"`
	CurrentTrack  *TrackInfo `json:"currentTrack"`
	PreviousTrack *TrackInfo `json:"previousTrack"`
}

// RawState mirrors the playback device's own event payload.
type RawState struct {
	Paused      bool `json:"paused"`
	Position    int  `json:"position"`
	TrackWindow struct {
		CurrentTrack   *TrackInfo  `json:"current_track"`
		PreviousTracks []TrackInfo `json:"previous_tracks"`
	} `json:"track_window"`
}

// ReduceRawState flattens a device report into a Snapshot. A nil report
// means the device disconnected.
func ReduceRawState(raw *RawState) *Snapshot {
	if raw == nil {
		return nil
	}
	snap := &Snapshot{
		Paused:       raw.Paused,
		Position:     raw.Position,
		CurrentTrack: raw.TrackWindow.CurrentTrack,
	}
	if len(raw.TrackWindow.PreviousTracks) > 0 {
		prev := raw.TrackWindow.PreviousTracks[0]
		snap.PreviousTrack = &prev
	}
	return snap
}

// State is the replicated playback state. The current host is its only
// legitimate writer; followers treat it as read-only.
type State struct {
	Paused        bool       `json:"paused"`
	Position      int        `json:"position"`
	CurrentTrack  *TrackInfo `json:"currentTrack"`
	PreviousTrack *TrackInfo `json:"previousTrack,omitempty"`
	LastUpdated   time.Time  `json:"lastUpdated"`
}

func trackID(t *TrackInfo) string {
	if t == nil {
		return ""
	}
	return t.ID
}
