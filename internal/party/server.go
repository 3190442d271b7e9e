package party

import (
	"context"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
)

// DB is the slice of pgxpool.Pool this service uses. It is implemented by
// *pgxpool.Pool and can be mocked in tests.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

type Server struct {
	db       DB
	rdb      *redis.Client
	resolver TrackResolver

	// advanceMu serializes playback-advance transactions per party.
	advanceMu sync.Map // partyID -> *sync.Mutex
}

func NewServer(db DB, rdb *redis.Client, resolver TrackResolver) *Server {
	return &Server{
		db:       db,
		rdb:      rdb,
		resolver: resolver,
	}
}

func (s *Server) Router(middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	for _, mw := range middlewares {
		r.Use(mw)
	}

	r.Get("/health", s.handleHealth)

	r.Post("/parties", s.handleCreateParty)
	r.Post("/parties/join", s.handleJoinParty)
	r.Get("/parties/{id}", s.handleGetParty)
	r.Post("/parties/{id}/leave", s.handleLeaveParty)
	r.Post("/parties/{id}/end", s.handleEndParty)

	r.Get("/parties/{id}/members", s.handleListMembers)

	r.Post("/parties/{id}/tracks", s.handleSubmitTrack)
	r.Get("/parties/{id}/queue", s.handleGetQueue)
	r.Get("/parties/{id}/my-tracks", s.handleMyTracks)
	r.Get("/parties/{id}/tracks/{trackId}/position", s.handleTrackPosition)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "party-service",
	})
}

// partyMutex returns the run-serializing guard for one party's
// playback-advance transactions.
func (s *Server) partyMutex(partyID string) *sync.Mutex {
	mu, _ := s.advanceMu.LoadOrStore(partyID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}
