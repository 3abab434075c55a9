package services

import "errors"

// Shared errors of the session core. The protocol layer logs these, cancels
// the affected match, and keeps serving other connections.
var (
	// A required live connection is missing.
	ErrConnection = errors.New("required connection is not available")

	// Referenced entity absent in storage.
	ErrMatchNotFound       = errors.New("match not found")
	ErrTournamentNotFound  = errors.New("tournament not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrSettingsNotFound    = errors.New("settings not found")

	// A match participant slot is still unfilled.
	ErrMatchNotReady = errors.New("match is not ready to start")

	// Malformed or semantically invalid message.
	ErrProtocol = errors.New("protocol violation")

	// Persistence invariant violated.
	ErrDatabase = errors.New("database invariant violated")

	// Validation of tournament creation input.
	ErrTournamentSize        = errors.New("tournament size must be 2 or 4")
	ErrTournamentNotFinished = errors.New("tournament is not finished")
)
