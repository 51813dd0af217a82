package models

import "github.com/google/uuid"

// Player is one connected participant in a lobby. Score resets each game;
// Wins persist for as long as the lobby lives.
type Player struct {
	ConnID uuid.UUID `json:"connId"`
	Name   string    `json:"name"`

	Score int `json:"score"`
	Wins  int `json:"wins"`

	// MiniStatus is the ephemeral last-action indicator shown next to a
	// player's name (last answer text or last correct time), cleared each round.
	MiniStatus string `json:"miniStatus,omitempty"`

	// Per-game stats.
	AnswerTimesMs []int64 `json:"answerTimesMs,omitempty"`
	CorrectCount  int     `json:"correctCount"`
	TotalAnswered int     `json:"totalAnswered"`
}

// ResetForGame clears the per-game counters at the start of a new game.
func (p *Player) ResetForGame() {
	p.Score = 0
	p.MiniStatus = ""
	p.AnswerTimesMs = nil
	p.CorrectCount = 0
	p.TotalAnswered = 0
}
