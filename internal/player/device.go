package player

import "context"

// Device is the playback device control surface. Implementations wrap the
// streaming provider's player API; tests script a fake.
type Device interface {
	// Play starts playback of a track, optionally from a position in ms.
	Play(ctx context.Context, playTrackID string, positionMs int) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Seek(ctx context.Context, positionMs int) error
}
