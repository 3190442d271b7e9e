package party

import (
	"context"
	"log"
	"time"
)

// StartCleanupWorker starts a background worker that erases the data of
// parties whose host has ended them.
func (s *Server) StartCleanupWorker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				s.cleanupEndedParties(ctx)
			}
		}
	}()
}

func (s *Server) cleanupEndedParties(ctx context.Context) {
	rows, err := s.db.Query(ctx, `SELECT id FROM parties WHERE ended = TRUE`)
	if err != nil {
		log.Printf("party-service: cleanup query error: %v", err)
		return
	}
	defer rows.Close()

	var partyIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			log.Printf("party-service: cleanup scan error: %v", err)
			continue
		}
		partyIDs = append(partyIDs, id)
	}

	for _, id := range partyIDs {
		log.Printf("party-service: cleaning up ended party %s", id)
		if err := s.erase(ctx, id); err != nil {
			log.Printf("party-service: cleanup error for %s: %v", id, err)
		}
	}
}

// erase releases the party's join code and deletes the party document;
// member and track rows go with it via ON DELETE CASCADE.
func (s *Server) erase(ctx context.Context, partyID string) error {
	if err := s.releaseCode(ctx, partyID); err != nil {
		return err
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM parties WHERE id = $1`, partyID); err != nil {
		return err
	}
	s.advanceMu.Delete(partyID)
	return nil
}
