package player

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func track(id string, durationMs int) *TrackInfo {
	return &TrackInfo{ID: id, Name: "Track " + id, DurationMs: durationMs}
}

func playing(t *TrackInfo, position int) *Snapshot {
	return &Snapshot{Paused: false, Position: position, CurrentTrack: t}
}

func TestClassify_FirstReportIsRelevant(t *testing.T) {
	var c Classifier
	got := c.Classify(nil, playing(track("a", 180000), 0))
	require.Equal(t, RelevantChange, got)
}

func TestClassify_NilNextIsNoChange(t *testing.T) {
	var c Classifier
	got := c.Classify(playing(track("a", 180000), 5000), nil)
	require.Equal(t, NoChange, got)
}

func TestClassify_Finished(t *testing.T) {
	var c Classifier
	x := track("a", 180000)

	prev := playing(x, 179500)
	next := &Snapshot{
		Paused:        true,
		Position:      0,
		CurrentTrack:  x,
		PreviousTrack: track("a", 180000),
	}
	require.Equal(t, Finished, c.Classify(prev, next))
}

func TestClassify_FinishedOnlyOnFirstEcho(t *testing.T) {
	// The device keeps reporting the finished track in its history. Only the
	// transition into that shape counts; the steady state afterwards must not
	// dequeue again.
	var c Classifier
	x := track("a", 180000)

	settled := &Snapshot{
		Paused:        true,
		Position:      0,
		CurrentTrack:  x,
		PreviousTrack: track("a", 180000),
	}
	require.Equal(t, Finished, c.Classify(playing(x, 179500), settled))
	require.Equal(t, NoChange, c.Classify(settled, settled))
}

func TestClassify_SkipConfirmedOnSecondEvent(t *testing.T) {
	var c Classifier
	s0 := playing(track("a", 180000), 42000)
	// First settle event: paused at zero, history empty, duration unchanged.
	s1 := &Snapshot{Paused: true, Position: 0, CurrentTrack: track("a", 180000)}
	// Second settle event: the reported duration flips to the next track's.
	s2 := &Snapshot{Paused: true, Position: 0, CurrentTrack: track("a", 200000)}

	require.Equal(t, RelevantChange, c.Classify(s0, s1), "arming event is still a state change")
	require.Equal(t, Skipped, c.Classify(s1, s2))
}

func TestClassify_SkipMemoryDisarmedByUnrelatedEvent(t *testing.T) {
	var c Classifier
	s0 := playing(track("a", 180000), 42000)
	s1 := &Snapshot{Paused: true, Position: 0, CurrentTrack: track("a", 180000)}
	// A seek breaks the two-event sequence.
	s2 := &Snapshot{Paused: true, Position: 9000, CurrentTrack: track("a", 180000)}
	s3 := &Snapshot{Paused: true, Position: 0, CurrentTrack: track("a", 200000)}

	require.Equal(t, RelevantChange, c.Classify(s0, s1))
	require.Equal(t, RelevantChange, c.Classify(s1, s2))
	// The duration change alone, without an armed first event, must not
	// register as a skip.
	require.Equal(t, RelevantChange, c.Classify(s2, s3))
}

func TestClassify_ResetClearsSkipMemory(t *testing.T) {
	var c Classifier
	s0 := playing(track("a", 180000), 42000)
	s1 := &Snapshot{Paused: true, Position: 0, CurrentTrack: track("a", 180000)}
	s2 := &Snapshot{Paused: true, Position: 0, CurrentTrack: track("a", 200000)}

	require.Equal(t, RelevantChange, c.Classify(s0, s1))
	c.Reset()
	require.Equal(t, NoChange, c.Classify(s1, s2),
		"after a reset a lone duration change should only re-arm")
}

func TestClassify_IdleDeviceReportsNoTrack(t *testing.T) {
	// A freshly connected device reports paused at zero with an empty track
	// window. The shape matches the skip sequence but carries nothing to arm.
	var c Classifier
	idle := &Snapshot{Paused: true, Position: 0}

	require.Equal(t, RelevantChange, c.Classify(nil, idle))
	require.Equal(t, NoChange, c.Classify(idle, idle))
	require.Equal(t, NoChange, c.Classify(idle, idle))
}

func TestClassify_TrackDisappearingDisarms(t *testing.T) {
	var c Classifier
	s0 := playing(track("a", 180000), 42000)
	s1 := &Snapshot{Paused: true, Position: 0, CurrentTrack: track("a", 180000)}
	s2 := &Snapshot{Paused: true, Position: 0}
	s3 := &Snapshot{Paused: true, Position: 0, CurrentTrack: track("a", 200000)}

	require.Equal(t, RelevantChange, c.Classify(s0, s1))
	// The track vanishing from the window must not confirm, not crash, and
	// must clear the armed duration.
	require.Equal(t, RelevantChange, c.Classify(s1, s2))
	require.Equal(t, RelevantChange, c.Classify(s2, s3))
	require.Equal(t, NoChange, c.Classify(s3, s3))
}

func TestClassify_PauseResumeSeek(t *testing.T) {
	var c Classifier
	x := track("a", 180000)

	atPos := func(paused bool, pos int) *Snapshot {
		return &Snapshot{Paused: paused, Position: pos, CurrentTrack: x}
	}

	require.Equal(t, RelevantChange, c.Classify(atPos(false, 5000), atPos(true, 5000)), "pause")
	require.Equal(t, RelevantChange, c.Classify(atPos(true, 5000), atPos(false, 5000)), "resume")
	require.Equal(t, RelevantChange, c.Classify(atPos(false, 5000), atPos(false, 60000)), "seek")
	require.Equal(t, NoChange, c.Classify(atPos(false, 5000), atPos(false, 5000)))
}

func TestClassify_TrackChangeIsRelevantNotTerminal(t *testing.T) {
	var c Classifier
	prev := playing(track("a", 180000), 5000)
	next := playing(track("b", 200000), 0)
	require.Equal(t, RelevantChange, c.Classify(prev, next))
}

func TestClassify_Deterministic(t *testing.T) {
	seq := []*Snapshot{
		playing(track("a", 180000), 0),
		playing(track("a", 180000), 30000),
		{Paused: true, Position: 0, CurrentTrack: track("a", 180000)},
		{Paused: true, Position: 0, CurrentTrack: track("a", 200000)},
		playing(track("b", 200000), 0),
		playing(track("b", 200000), 199500),
		{Paused: true, Position: 0, CurrentTrack: track("b", 200000), PreviousTrack: track("b", 200000)},
	}

	run := func() []Event {
		var c Classifier
		var prev *Snapshot
		var events []Event
		for _, next := range seq {
			events = append(events, c.Classify(prev, next))
			prev = next
		}
		return events
	}

	first := run()
	require.Equal(t, first, run())
	require.Equal(t, Skipped, first[3])
	require.Equal(t, Finished, first[6])
}

func TestReduceRawState(t *testing.T) {
	raw := &RawState{Paused: true, Position: 1234}
	raw.TrackWindow.CurrentTrack = track("a", 180000)
	raw.TrackWindow.PreviousTracks = []TrackInfo{{ID: "z", DurationMs: 90000}}

	snap := ReduceRawState(raw)
	require.True(t, snap.Paused)
	require.Equal(t, 1234, snap.Position)
	require.Equal(t, "a", snap.CurrentTrack.ID)
	require.Equal(t, "z", snap.PreviousTrack.ID)

	require.Nil(t, ReduceRawState(nil))
}
