package party

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// queueSim applies the sequence-allocator contract in memory so the fairness
// projection can be checked against the canonical order without a database.
type queueSim struct {
	now     time.Time
	members map[string]*MemberCounts
	tracks  []QueueTrack
}

func newQueueSim() *queueSim {
	return &queueSim{
		now:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		members: map[string]*MemberCounts{},
	}
}

func (s *queueSim) tick() time.Time {
	s.now = s.now.Add(time.Second)
	return s.now
}

func (s *queueSim) join(userID string) {
	if _, ok := s.members[userID]; !ok {
		s.members[userID] = &MemberCounts{UserID: userID}
	}
}

func (s *queueSim) submit(userID string) QueueTrack {
	m := s.members[userID]
	now := s.tick()
	m.NumTracksAdded++
	if m.NumTracksAdded == 1 {
		m.TimeFirstTrackAdded = now
	}
	track := QueueTrack{
		TrackID:          fmt.Sprintf("%s-%d", userID, m.NumTracksAdded),
		SubmitterID:      userID,
		TrackNumber:      m.NumTracksAdded,
		MemberOrderStamp: m.TimeFirstTrackAdded,
		CreatedAt:        now,
	}
	s.tracks = append(s.tracks, track)
	return track
}

func (s *queueSim) canonical() []QueueTrack {
	sorted := append([]QueueTrack(nil), s.tracks...)
	sort.Slice(sorted, func(i, j int) bool { return CanonicalLess(sorted[i], sorted[j]) })
	return sorted
}

// playHead removes the canonical head and credits its submitter.
func (s *queueSim) playHead() {
	sorted := s.canonical()
	if len(sorted) == 0 {
		return
	}
	head := sorted[0]
	s.members[head.SubmitterID].NumTracksPlayed++
	for i, t := range s.tracks {
		if t.TrackID == head.TrackID {
			s.tracks = append(s.tracks[:i], s.tracks[i+1:]...)
			break
		}
	}
}

func (s *queueSim) position(t QueueTrack) int {
	var viewer MemberCounts
	var others []MemberCounts
	for id, m := range s.members {
		if m.NumTracksAdded == 0 {
			continue
		}
		if id == t.SubmitterID {
			viewer = *m
		} else {
			others = append(others, *m)
		}
	}
	return PositionInQueue(t.TrackNumber, viewer, others)
}

// requireFair asserts the core fairness invariant: sorting pending tracks by
// their projected positions reproduces exactly the canonical storage order.
func requireFair(t *testing.T, s *queueSim) {
	t.Helper()
	sorted := s.canonical()
	for i, track := range sorted {
		require.Equalf(t, i+1, s.position(track),
			"track %s should project position %d", track.TrackID, i+1)
	}
}

func TestPositionInQueue_SoloMember(t *testing.T) {
	s := newQueueSim()
	s.join("a")
	a1 := s.submit("a")
	a2 := s.submit("a")
	a3 := s.submit("a")

	require.Equal(t, 1, s.position(a1))
	require.Equal(t, 2, s.position(a2))
	require.Equal(t, 3, s.position(a3))
}

func TestPositionInQueue_SecondMemberTieBreak(t *testing.T) {
	// A queued three tracks before B joined in; B also has a 1st submission,
	// so the order-stamps break the tie and b1 lands right behind a1.
	s := newQueueSim()
	s.join("a")
	s.join("b")
	s.submit("a")
	s.submit("a")
	s.submit("a")
	b1 := s.submit("b")

	require.Equal(t, 2, s.position(b1))
	requireFair(t, s)
}

func TestPositionInQueue_PlayedTracksClampToZero(t *testing.T) {
	// A member whose plays caught up with their adds cannot push another
	// viewer's track backward.
	viewer := MemberCounts{
		UserID:              "b",
		NumTracksAdded:      1,
		TimeFirstTrackAdded: time.Date(2024, 5, 1, 12, 0, 10, 0, time.UTC),
	}
	other := MemberCounts{
		UserID:              "a",
		NumTracksAdded:      2,
		NumTracksPlayed:     2,
		TimeFirstTrackAdded: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	require.Equal(t, 1, PositionInQueue(1, viewer, []MemberCounts{other}))
}

func TestPositionInQueue_MemberWithFewerSubmissions(t *testing.T) {
	s := newQueueSim()
	s.join("a")
	s.join("b")
	s.submit("a")
	s.submit("b")
	a2 := s.submit("a")
	a3 := s.submit("a")

	// b contributes only its single pending track in front of a's 2nd and 3rd.
	require.Equal(t, 3, s.position(a2))
	require.Equal(t, 4, s.position(a3))
	requireFair(t, s)
}

func TestFairness_MatchesCanonicalOrder_Interleaved(t *testing.T) {
	s := newQueueSim()
	for _, id := range []string{"a", "b", "c"} {
		s.join(id)
	}
	s.submit("b")
	s.submit("a")
	s.submit("a")
	s.submit("c")
	s.submit("b")
	s.submit("c")
	s.submit("a")

	requireFair(t, s)
}

func TestFairness_HoldsUnderPlays(t *testing.T) {
	s := newQueueSim()
	for _, id := range []string{"a", "b", "c"} {
		s.join(id)
	}
	for i := 0; i < 3; i++ {
		s.submit("a")
		s.submit("b")
		s.submit("c")
	}
	for len(s.tracks) > 0 {
		requireFair(t, s)
		s.playHead()
	}
}

func TestFairness_RandomizedScenario(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	ids := []string{"a", "b", "c", "d"}

	s := newQueueSim()
	for _, id := range ids {
		s.join(id)
	}
	for step := 0; step < 200; step++ {
		if rng.Intn(3) == 0 {
			s.playHead()
		} else {
			s.submit(ids[rng.Intn(len(ids))])
		}
		requireFair(t, s)
	}
}

func TestConservation(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	ids := []string{"a", "b", "c"}

	s := newQueueSim()
	for _, id := range ids {
		s.join(id)
	}
	check := func() {
		added, played := 0, 0
		for _, m := range s.members {
			require.LessOrEqual(t, m.NumTracksPlayed, m.NumTracksAdded)
			added += m.NumTracksAdded
			played += m.NumTracksPlayed
		}
		require.Equal(t, len(s.tracks), added-played)
	}
	for step := 0; step < 100; step++ {
		if rng.Intn(2) == 0 {
			s.playHead()
		} else {
			s.submit(ids[rng.Intn(len(ids))])
		}
		check()
	}
}

func TestCanonicalLess(t *testing.T) {
	early := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	late := early.Add(time.Minute)

	// trackNumber dominates; order-stamp only breaks ties.
	require.True(t, CanonicalLess(
		QueueTrack{TrackNumber: 1, MemberOrderStamp: late},
		QueueTrack{TrackNumber: 2, MemberOrderStamp: early},
	))
	require.True(t, CanonicalLess(
		QueueTrack{TrackNumber: 2, MemberOrderStamp: early},
		QueueTrack{TrackNumber: 2, MemberOrderStamp: late},
	))
	require.False(t, CanonicalLess(
		QueueTrack{TrackNumber: 2, MemberOrderStamp: late},
		QueueTrack{TrackNumber: 2, MemberOrderStamp: early},
	))
}
