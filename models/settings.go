package models

import "time"

// Settings holds a user's game settings. A tournament references the snapshot
// its creator had at creation time, so later edits never change a running
// bracket.
type Settings struct {
	ID         int       `json:"id" db:"id"`
	UserID     int       `json:"user_id" db:"user_id"`
	MaxScore   int       `json:"max_score" db:"max_score"`
	BallSpeed  float64   `json:"ball_speed" db:"ball_speed"`
	PaddleSize float64   `json:"paddle_size" db:"paddle_size"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
