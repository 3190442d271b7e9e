package player

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/itsjustbrian/qspot/internal/party"
)

// QueueStore is the slice of the party service the host-side synchronizer
// drives. Implemented by *party.Server.
type QueueStore interface {
	NextTrack(ctx context.Context, partyID string) (*party.QueueTrack, error)
	AdvanceQueue(ctx context.Context, partyID, expectedTrackID string) (*party.QueueTrack, error)
	SavePlaybackState(ctx context.Context, partyID string, state json.RawMessage, origin string) error
	LoadPlaybackState(ctx context.Context, partyID string) (json.RawMessage, error)
}

// DefaultConfirmTimeout bounds the play-command confirmation handshake. A
// stuck confirmation falls through rather than wedging the queue.
const DefaultConfirmTimeout = 5 * time.Second

// Session is the host-side reconciliation loop for one party: it consumes
// the device's raw snapshots, classifies transitions, advances the shared
// queue on finish/skip and publishes relevant state for followers.
type Session struct {
	partyID string
	origin  string
	device  Device
	store   QueueStore

	classifier Classifier
	prev       *Snapshot

	ConfirmTimeout time.Duration

	mu        sync.Mutex
	awaiting  string
	confirmed chan struct{}
}

// NewSession creates a host session. origin tags every state publish so the
// host's own subscriber loop can drop the echo.
func NewSession(partyID, origin string, device Device, store QueueStore) *Session {
	return &Session{
		partyID:        partyID,
		origin:         origin,
		device:         device,
		store:          store,
		ConfirmTimeout: DefaultConfirmTimeout,
	}
}

// Origin returns the session's publish origin tag.
func (s *Session) Origin() string { return s.origin }

// Start begins playback of the current queue head, the entry point after a
// device connects or a follower takes over an idle party.
func (s *Session) Start(ctx context.Context) error {
	next, err := s.store.NextTrack(ctx, s.partyID)
	if err != nil {
		return err
	}
	if next == nil {
		log.Printf("player: party %s has nothing to play", s.partyID)
		return nil
	}
	s.playAndConfirm(ctx, next.TrackID, 0)
	return nil
}

// HandleSnapshot feeds one raw device report through the classifier. A nil
// snapshot means the device disconnected, which clears the per-session
// classifier memory.
func (s *Session) HandleSnapshot(ctx context.Context, next *Snapshot) {
	if next == nil {
		s.classifier.Reset()
		s.prev = nil
		return
	}

	s.notifyConfirmation(next)

	prev := s.prev
	event := s.classifier.Classify(prev, next)
	s.prev = next

	switch event {
	case Finished, Skipped:
		log.Printf("player: party %s track %s %s", s.partyID, trackID(prev.CurrentTrack), event)
		s.advance(ctx, trackID(prev.CurrentTrack))
	case RelevantChange:
		s.publish(ctx, next)
	}
}

// advance dequeues exactly one track and starts the new head. Errors are
// logged, never fatal: a failed advance self-heals on the next telemetry
// tick instead of wedging the party.
func (s *Session) advance(ctx context.Context, playedTrackID string) {
	next, err := s.store.AdvanceQueue(ctx, s.partyID, playedTrackID)
	if errors.Is(err, party.ErrInconsistentQueueHead) {
		// Someone already advanced past this head. Benign race.
		return
	}
	if err != nil {
		log.Printf("player: advance queue for party %s: %v", s.partyID, err)
		return
	}
	if next == nil {
		log.Printf("player: party %s queue drained", s.partyID)
		return
	}
	s.playAndConfirm(ctx, next.TrackID, 0)
}

// publish replicates a relevant state change to the party document, tagged
// with this session's origin.
func (s *Session) publish(ctx context.Context, snap *Snapshot) {
	state := State{
		Paused:        snap.Paused,
		Position:      snap.Position,
		CurrentTrack:  snap.CurrentTrack,
		PreviousTrack: snap.PreviousTrack,
		LastUpdated:   time.Now().UTC(),
	}
	raw, err := json.Marshal(state)
	if err != nil {
		log.Printf("player: marshal playback state: %v", err)
		return
	}
	if err := s.store.SavePlaybackState(ctx, s.partyID, raw, s.origin); err != nil {
		log.Printf("player: save playback state for party %s: %v", s.partyID, err)
	}
}

// playAndConfirm issues a play command and arms a bounded watchdog for a
// snapshot reporting the requested track. Confirmation arrives through the
// same telemetry stream that drives HandleSnapshot, so the wait runs in the
// background; the caller must never block on it.
func (s *Session) playAndConfirm(ctx context.Context, playTrackID string, positionMs int) {
	s.mu.Lock()
	s.awaiting = playTrackID
	s.confirmed = make(chan struct{})
	confirmed := s.confirmed
	s.mu.Unlock()

	if err := s.device.Play(ctx, playTrackID, positionMs); err != nil {
		log.Printf("player: play %s on party %s: %v", playTrackID, s.partyID, err)
		return
	}

	go func() {
		select {
		case <-confirmed:
		case <-time.After(s.ConfirmTimeout):
			s.expireConfirmation(confirmed)
			log.Printf("player: confirmation timeout for track %s on party %s", playTrackID, s.partyID)
		case <-ctx.Done():
			s.expireConfirmation(confirmed)
		}
	}()
}

// expireConfirmation disarms an abandoned play handshake so a much later
// snapshot of that track cannot confirm a dead command. A newer command's
// handshake is left alone.
func (s *Session) expireConfirmation(confirmed chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.confirmed == confirmed {
		s.awaiting = ""
		s.confirmed = nil
	}
}

func (s *Session) notifyConfirmation(next *Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.awaiting != "" && trackID(next.CurrentTrack) == s.awaiting {
		close(s.confirmed)
		s.awaiting = ""
		s.confirmed = nil
	}
}

// Manager tracks at most one host session per party.
type Manager struct {
	store QueueStore

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(store QueueStore) *Manager {
	return &Manager{
		store:    store,
		sessions: make(map[string]*Session),
	}
}

// Attach registers a device as the party's host player, replacing any
// previous session. The replicated state trusts only the newest writer, so
// a stale host's session is simply dropped.
func (m *Manager) Attach(partyID, origin string, device Device) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	session := NewSession(partyID, origin, device, m.store)
	m.sessions[partyID] = session
	return session
}

// Session returns the party's active host session, if any.
func (m *Manager) Session(partyID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[partyID]
}

// Detach drops the party's host session. The session's classifier memory
// dies with it.
func (m *Manager) Detach(partyID string, session *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[partyID] == session {
		delete(m.sessions, partyID)
	}
}
