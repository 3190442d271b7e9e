package party

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"strconv"

	"github.com/jackc/pgx/v5"
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	codeLength   = 4

	// codeAttempts bounds allocation retries before the collision storm is
	// surfaced as a creation failure.
	codeAttempts = 5
)

func randomLetters(n int) string {
	letters := make([]byte, n)
	for i := range letters {
		letters[i] = codeAlphabet[rand.Intn(len(codeAlphabet))]
	}
	return string(letters)
}

// allocateCode claims a short join code for the party. The first party on a
// base code gets the bare code; later collisions get the code with the next
// disambiguation index appended.
func (s *Server) allocateCode(ctx context.Context, partyID string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < codeAttempts; attempt++ {
		code, err := s.claimCode(ctx, partyID, randomLetters(codeLength))
		if err == nil {
			return code, nil
		}
		lastErr = err
	}
	if lastErr != nil {
		return "", errors.Join(ErrPartyCodeExhausted, lastErr)
	}
	return "", ErrPartyCodeExhausted
}

func (s *Server) claimCode(ctx context.Context, partyID, base string) (string, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", err
	}
	defer tx.Rollback(ctx)

	var partiesJSON []byte
	var extensionNum int
	err = tx.QueryRow(ctx, `
		SELECT parties, extension_num FROM party_codes WHERE code = $1 FOR UPDATE
	`, base).Scan(&partiesJSON, &extensionNum)

	fullCode := base
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		entry, _ := json.Marshal(map[string]int{partyID: 0})
		if _, err := tx.Exec(ctx, `
			INSERT INTO party_codes (code, parties, extension_num) VALUES ($1, $2, 1)
		`, base, entry); err != nil {
			return "", err
		}
	case err != nil:
		return "", err
	default:
		parties := map[string]int{}
		if err := json.Unmarshal(partiesJSON, &parties); err != nil {
			return "", err
		}
		if extensionNum > 0 {
			fullCode = base + strconv.Itoa(extensionNum)
		}
		parties[partyID] = extensionNum
		entry, _ := json.Marshal(parties)
		if _, err := tx.Exec(ctx, `
			UPDATE party_codes SET parties = $2, extension_num = $3 WHERE code = $1
		`, base, entry, extensionNum+1); err != nil {
			return "", err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return fullCode, nil
}

// releaseCode removes the party from the code registry: the entry shrinks
// while other parties still hold the base code and is deleted with its last
// party.
func (s *Server) releaseCode(ctx context.Context, partyID string) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var base string
	var partiesJSON []byte
	err = tx.QueryRow(ctx, `
		SELECT code, parties FROM party_codes WHERE parties ? $1 FOR UPDATE
	`, partyID).Scan(&base, &partiesJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		// Not in the ledger, nothing to release.
		return nil
	}
	if err != nil {
		return err
	}

	parties := map[string]int{}
	if err := json.Unmarshal(partiesJSON, &parties); err != nil {
		return err
	}
	delete(parties, partyID)

	if len(parties) > 0 {
		entry, _ := json.Marshal(parties)
		if _, err := tx.Exec(ctx, `
			UPDATE party_codes SET parties = $2 WHERE code = $1
		`, base, entry); err != nil {
			return err
		}
	} else if _, err := tx.Exec(ctx, `
		DELETE FROM party_codes WHERE code = $1
	`, base); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
