package game

import "github.com/Dosada05/pong-arena/models"

type PlayerStatus string

const (
	PlayerStatusPending  PlayerStatus = "pending"
	PlayerStatusAccepted PlayerStatus = "accepted"
)

// Player is one seat of a runtime match. PaddlePosition holds the last
// position the client reported.
type Player struct {
	UserID         int
	ParticipantID  int
	Score          int
	PaddlePosition float64
	Status         PlayerStatus
}

// Match is the runtime session shared by every connected player of one
// persisted match. The player set is fixed at creation.
type Match struct {
	MatchID       int
	CreatorUserID int
	Status        models.MatchStatus
	Players       []*Player
}

func NewMatch(matchID, creatorUserID int, players []*Player) *Match {
	return &Match{
		MatchID:       matchID,
		CreatorUserID: creatorUserID,
		Status:        models.MatchStatusPending,
		Players:       players,
	}
}

// Player returns the player seated for the given user, or nil.
func (m *Match) Player(userID int) *Player {
	for _, p := range m.Players {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}

// AllAccepted reports whether every player has accepted the match.
func (m *Match) AllAccepted() bool {
	for _, p := range m.Players {
		if p.Status != PlayerStatusAccepted {
			return false
		}
	}
	return true
}

// Terminal reports whether the match reached a state it can never leave.
func (m *Match) Terminal() bool {
	return m.Status == models.MatchStatusCancelled || m.Status == models.MatchStatusFinished
}
