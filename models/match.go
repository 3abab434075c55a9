package models

import "time"

// MatchStatus mirrors the match_status ENUM in the database.
type MatchStatus string

const (
	MatchStatusPending    MatchStatus = "pending"
	MatchStatusInProgress MatchStatus = "in_progress"
	MatchStatusPaused     MatchStatus = "paused"
	MatchStatusCancelled  MatchStatus = "cancelled"
	MatchStatusFinished   MatchStatus = "finished"
)

// Match is a persisted match row. Participant slots are nullable: matches of
// later rounds are created as placeholders and filled once the previous round
// produces its winners.
type Match struct {
	ID                  int         `json:"id" db:"id"`
	TournamentID        int         `json:"tournament_id" db:"tournament_id"`
	Participant1ID      *int        `json:"participant1_id,omitempty" db:"participant1_id"`
	Participant2ID      *int        `json:"participant2_id,omitempty" db:"participant2_id"`
	Score1              int         `json:"score1" db:"score1"`
	Score2              int         `json:"score2" db:"score2"`
	WinnerParticipantID *int        `json:"winner_participant_id,omitempty" db:"winner_participant_id"`
	Round               int         `json:"round" db:"round"`
	Status              MatchStatus `json:"status" db:"status"`
	CreatedAt           time.Time   `json:"created_at" db:"created_at"`
}

// Ready reports whether both participant slots are filled.
func (m *Match) Ready() bool {
	return m.Participant1ID != nil && m.Participant2ID != nil
}
