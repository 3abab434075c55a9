package models

import "time"

// TournamentStatus mirrors the tournament_status ENUM in the database.
type TournamentStatus string

const (
	TournamentStatusPending    TournamentStatus = "pending"
	TournamentStatusInProgress TournamentStatus = "in_progress"
	TournamentStatusFinished   TournamentStatus = "finished"
)

// Tournament is a persisted bracket of 2 or 4 participants advancing across
// rounds to a single winner. SettingsID snapshots the creator's game settings
// at creation time.
type Tournament struct {
	ID           int              `json:"id" db:"id"`
	CreatorID    int              `json:"creator_id" db:"creator_id"`
	Size         int              `json:"size" db:"size"`
	CurrentRound int              `json:"current_round" db:"current_round"`
	SettingsID   int              `json:"settings_id" db:"settings_id"`
	Status       TournamentStatus `json:"status" db:"status"`
	CreatedAt    time.Time        `json:"created_at" db:"created_at"`

	// Related entities, populated by the service layer, never scanned directly.
	Participants []Participant `json:"participants,omitempty" db:"-"`
	Matches      []Match       `json:"matches,omitempty" db:"-"`
}
