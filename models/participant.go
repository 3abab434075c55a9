package models

import "time"

// ParticipantStatus mirrors the participant_status ENUM in the database.
type ParticipantStatus string

const (
	ParticipantStatusPending  ParticipantStatus = "pending"
	ParticipantStatusAccepted ParticipantStatus = "accepted"
)

// Participant is a tournament-scoped registration of a user. It is distinct
// from the user itself: the alias and acceptance status live per tournament.
type Participant struct {
	ID           int               `json:"id" db:"id"`
	UserID       int               `json:"user_id" db:"user_id"`
	TournamentID int               `json:"tournament_id" db:"tournament_id"`
	Status       ParticipantStatus `json:"status" db:"status"`
	Alias        string            `json:"alias" db:"alias"`
	CreatedAt    time.Time         `json:"created_at" db:"created_at"`
}
