package party

import (
	"context"
	"log"
)

// AutoMigrate creates the document tables. Layout mirrors the persisted
// paths parties/{id}, parties/{id}/members/{userId},
// parties/{id}/tracks/{trackId} and party-codes/{code}.
func AutoMigrate(ctx context.Context, db DB) error {
	if _, err := db.Exec(ctx, `
      CREATE TABLE IF NOT EXISTS parties (
          id                uuid PRIMARY KEY,
          code              TEXT NOT NULL DEFAULT '',
          host_id           TEXT NOT NULL,
          country           TEXT NOT NULL DEFAULT '',
          ended             BOOLEAN NOT NULL DEFAULT FALSE,
          num_tracks_played INT NOT NULL DEFAULT 0,
          playback_state    JSONB,
          created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
      )
    `); err != nil {
		log.Printf("party-service: migrate parties: %v", err)
		return err
	}

	if _, err := db.Exec(ctx, `
      CREATE TABLE IF NOT EXISTS party_members (
          party_id               uuid NOT NULL REFERENCES parties(id) ON DELETE CASCADE,
          user_id                TEXT NOT NULL,
          display_name           TEXT NOT NULL DEFAULT '',
          num_tracks_added       INT NOT NULL DEFAULT 0,
          num_tracks_played      INT NOT NULL DEFAULT 0,
          active                 BOOLEAN NOT NULL DEFAULT TRUE,
          time_first_track_added TIMESTAMPTZ,
          joined_at              TIMESTAMPTZ NOT NULL DEFAULT now(),
          PRIMARY KEY (party_id, user_id)
      )
    `); err != nil {
		log.Printf("party-service: migrate party_members: %v", err)
		return err
	}

	// (party_id, track_id) primary key is what rejects duplicate submissions.
	if _, err := db.Exec(ctx, `
      CREATE TABLE IF NOT EXISTS party_tracks (
          party_id           uuid NOT NULL REFERENCES parties(id) ON DELETE CASCADE,
          track_id           TEXT NOT NULL,
          submitter_id       TEXT NOT NULL,
          submitter_name     TEXT NOT NULL DEFAULT '',
          track_number       INT NOT NULL,
          member_order_stamp TIMESTAMPTZ NOT NULL,
          created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
          PRIMARY KEY (party_id, track_id)
      )
    `); err != nil {
		log.Printf("party-service: migrate party_tracks: %v", err)
		return err
	}

	if _, err := db.Exec(ctx, `
      CREATE INDEX IF NOT EXISTS party_tracks_canonical_order
          ON party_tracks (party_id, track_number, member_order_stamp)
    `); err != nil {
		return err
	}

	if _, err := db.Exec(ctx, `
      CREATE TABLE IF NOT EXISTS party_codes (
          code          TEXT PRIMARY KEY,
          parties       JSONB NOT NULL DEFAULT '{}'::jsonb,
          extension_num INT NOT NULL DEFAULT 0
      )
    `); err != nil {
		log.Printf("party-service: migrate party_codes: %v", err)
		return err
	}

	return nil
}
