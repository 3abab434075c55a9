package game

import "encoding/json"

// Wire message type tags. The client uses the same strings.
const (
	TypeInitiate        = "initiate"
	TypeAccept          = "accept"
	TypeDecline         = "decline"
	TypeMove            = "move"
	TypeGameState       = "game_state"
	TypePoint           = "point"
	TypePause           = "pause"
	TypeQuit            = "quit"
	TypeMatchStart      = "match_start"
	TypeMatchFinished   = "match_finished"
	TypeTournamentStart = "tournament_start"
)

// Message is the wire envelope: a short type tag plus an optional payload.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type InitiatePayload struct {
	MatchID int `json:"match_id"`
}

type AcceptPayload struct {
	TournamentID int `json:"tournament_id,omitempty"`
}

type MovePayload struct {
	PaddlePosition float64 `json:"paddle_position"`
}

type PointPayload struct {
	UserID int `json:"user_id"`
}

// encodeMessage builds an envelope as wire text. Payloads are small local
// structs; marshalling them cannot fail, so the error is swallowed into an
// empty payload rather than propagated.
func encodeMessage(msgType string, payload interface{}) string {
	msg := Message{Type: msgType}
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			msg.Payload = raw
		}
	}
	out, _ := json.Marshal(msg)
	return string(out)
}
