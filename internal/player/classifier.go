package player

// Event is the classifier's verdict on a pair of consecutive snapshots.
type Event int

const (
	// NoChange: nothing followers or the queue care about.
	NoChange Event = iota
	// RelevantChange: pause flag, position or current track differs; the
	// new state should be republished to followers.
	RelevantChange
	// Finished: the current track completed naturally; dequeue one track.
	Finished
	// Skipped: the current track was skipped manually; dequeue one track.
	Skipped
)

func (e Event) String() string {
	switch e {
	case RelevantChange:
		return "relevant_change"
	case Finished:
		return "finished"
	case Skipped:
		return "skipped"
	default:
		return "no_change"
	}
}

// Classifier infers discrete playback events from the host device's raw
// snapshot stream. It is scoped to one active playback session: the
// two-event skip memory must not survive a disconnect, so callers Reset it
// whenever the device drops.
//
// Classification is a pure function of the snapshot fields plus lastDuration;
// no clocks are consulted, so a fixed snapshot sequence always yields the
// same event sequence.
type Classifier struct {
	lastDuration    int
	hasLastDuration bool
}

// Reset clears the skip-detection memory. Call on device disconnect, or a
// skip could be misclassified across the connection gap.
func (c *Classifier) Reset() {
	c.lastDuration = 0
	c.hasLastDuration = false
}

// Classify compares a previous and next snapshot. A nil prev (first report
// of a session) is a RelevantChange so the initial state gets published.
func (c *Classifier) Classify(prev, next *Snapshot) Event {
	if next == nil {
		return NoChange
	}
	if prev == nil {
		c.Reset()
		return RelevantChange
	}

	if c.finished(prev, next) {
		return Finished
	}
	if c.skipped(prev, next) {
		return Skipped
	}
	if relevantStateChanged(prev, next) {
		return RelevantChange
	}
	return NoChange
}

// finished: the track reports itself as the new previous-track exactly once,
// with playback parked at position 0.
func (c *Classifier) finished(prev, next *Snapshot) bool {
	return !currentTrackChanged(prev, next) &&
		next.Position == 0 &&
		next.Paused &&
		prev.PreviousTrack == nil &&
		next.PreviousTrack != nil &&
		next.PreviousTrack.ID == trackID(prev.CurrentTrack)
}

// skipped: a manual skip fires two state changes before settling, with the
// second changing the reported duration. The first matching event arms
// lastDuration; the second confirms the skip only if the remembered value
// matches the duration it replaced. Any other shape disarms the memory.
func (c *Classifier) skipped(prev, next *Snapshot) bool {
	if !currentTrackChanged(prev, next) &&
		next.Position == 0 &&
		prev.PreviousTrack == nil &&
		next.PreviousTrack == nil &&
		next.Paused {
		if trackDurationChanged(prev, next) &&
			c.hasLastDuration && c.lastDuration == prev.CurrentTrack.DurationMs {
			c.Reset()
			return true
		}
		// An idle device reports this shape with no current track at all;
		// there is no duration to remember.
		if next.CurrentTrack == nil {
			c.Reset()
			return false
		}
		c.lastDuration = next.CurrentTrack.DurationMs
		c.hasLastDuration = true
		return false
	}
	c.Reset()
	return false
}

func currentTrackChanged(prev, next *Snapshot) bool {
	return trackID(next.CurrentTrack) != trackID(prev.CurrentTrack)
}

func trackDurationChanged(prev, next *Snapshot) bool {
	return next.CurrentTrack != nil && prev.CurrentTrack != nil &&
		next.CurrentTrack.DurationMs != prev.CurrentTrack.DurationMs
}

func relevantStateChanged(prev, next *Snapshot) bool {
	return prev.Paused != next.Paused ||
		prev.Position != next.Position ||
		trackID(prev.CurrentTrack) != trackID(next.CurrentTrack)
}
