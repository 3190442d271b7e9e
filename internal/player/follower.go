package player

import (
	"context"
	"log"
	"time"
)

// SeekTolerance is how far the replicated position may drift from the local
// one before a follower reseeks. Sub-second jitter must not cause thrashing.
const SeekTolerance = 1000 * time.Millisecond

// Follower reconciles a local playback device against the host's replicated
// state. It never writes shared state.
type Follower struct {
	device Device

	// localOrigin identifies updates this process published itself; those
	// are echoes the follower must not react to.
	localOrigin string

	last *State
}

func NewFollower(localOrigin string, device Device) *Follower {
	return &Follower{
		device:      device,
		localOrigin: localOrigin,
	}
}

// Apply reconciles one replicated update: resume/pause on a pause-flag flip,
// seek when the position drifted past the tolerance.
func (f *Follower) Apply(ctx context.Context, state *State, origin string) {
	if state == nil {
		return
	}
	if origin == f.localOrigin {
		// Our own publish coming back through the subscription.
		f.last = state
		return
	}

	prev := f.last
	f.last = state
	if prev == nil {
		return
	}

	if prev.Paused && !state.Paused {
		if err := f.device.Resume(ctx); err != nil {
			log.Printf("player: follower resume: %v", err)
		}
	} else if !prev.Paused && state.Paused {
		if err := f.device.Pause(ctx); err != nil {
			log.Printf("player: follower pause: %v", err)
		}
	}

	delta := state.Position - prev.Position
	if delta < 0 {
		delta = -delta
	}
	if time.Duration(delta)*time.Millisecond > SeekTolerance {
		if err := f.device.Seek(ctx, state.Position); err != nil {
			log.Printf("player: follower seek: %v", err)
		}
	}
}

// BecomeHost starts local playback of the replicated current track when this
// follower takes over as host device. If the state was playing, the stored
// position is advanced by the time elapsed since the last publish, since
// playback kept running on the previous host after it last reported.
func (f *Follower) BecomeHost(ctx context.Context, state *State) error {
	if state == nil || state.CurrentTrack == nil {
		return nil
	}
	position := state.Position
	if !state.Paused {
		position += int(time.Since(state.LastUpdated).Milliseconds())
	}
	return f.device.Play(ctx, state.CurrentTrack.ID, position)
}
