package models

// Settings holds per-lobby game configuration. Mutable only by the leader and
// only while the lobby is waiting.
type Settings struct {
	Shuffle          bool `json:"shuffle"`
	FuzzyTolerance   bool `json:"fuzzyTolerance"`
	AnswerByTerm     bool `json:"answerByTerm"`
	MultipleChoice   bool `json:"multipleChoice"`
	RoundTimeSeconds int  `json:"roundTimeSeconds"`
	PointsToWin      int  `json:"pointsToWin"`
}

// DefaultSettings are applied at lobby creation. PointsToWin of 0 disables the
// score threshold; the game then runs until the deck is exhausted.
func DefaultSettings() Settings {
	return Settings{
		Shuffle:          false,
		FuzzyTolerance:   false,
		AnswerByTerm:     false,
		MultipleChoice:   false,
		RoundTimeSeconds: 20,
		PointsToWin:      0,
	}
}
