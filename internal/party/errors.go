package party

import "errors"

var (
	// ErrNotAMember rejects a submission from a user who never joined the party.
	ErrNotAMember = errors.New("user is not a member of this party")

	// ErrDuplicateSubmission rejects a track that is already pending in the
	// party queue. Reported to the submitter, never retried.
	ErrDuplicateSubmission = errors.New("track is already queued")

	// ErrPartyNotFound covers both unknown party ids and unknown join codes.
	ErrPartyNotFound = errors.New("party not found")

	// ErrPartyEnded rejects operations against a party the host has ended.
	ErrPartyEnded = errors.New("party has ended")

	// ErrPartyCodeExhausted surfaces a pathological collision storm during
	// code allocation as a creation failure.
	ErrPartyCodeExhausted = errors.New("could not allocate a party code")

	// ErrInconsistentQueueHead means the advance transaction found the
	// expected head already gone. Benign race; the advance becomes a no-op.
	ErrInconsistentQueueHead = errors.New("queue head changed under advance")
)
