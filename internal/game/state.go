// internal/game/state.go
package game

import (
	"context"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/quizdash/quizdash/internal/models"
)

// CorrectRecord is one correct answer within the current round, recorded in
// submission order.
type CorrectRecord struct {
	ConnID    uuid.UUID `json:"connId"`
	Name      string    `json:"name"`
	ElapsedMs int64     `json:"elapsedMs"`
}

// WrongRecord accumulates a single player's incorrect submissions within the
// current round.
type WrongRecord struct {
	ConnID  uuid.UUID `json:"connId"`
	Name    string    `json:"name"`
	Answers []string  `json:"answers"`
}

// GameState is the ephemeral working data of one in-progress game. The
// current question is always Remaining[0]; advancing a round pops the front
// and resets the three per-round collections. GameState is guarded by its
// lobby's mutex.
type GameState struct {
	// Remaining is a working copy of the lobby deck, consumed from the front.
	Remaining []models.Flashcard

	RoundStart time.Time

	Correct   []CorrectRecord
	Wrong     []*WrongRecord
	Submitted map[uuid.UUID]struct{}

	// cancel stops the round scheduler driving this game. Stored so teardown
	// can positively cancel pending work instead of relying on stale timers
	// noticing the lobby is gone.
	cancel context.CancelFunc

	// allSubmitted is closed once every current player has submitted,
	// letting the scheduler cut the answer window short.
	allSubmitted       chan struct{}
	allSubmittedClosed bool
}

// newGameState copies the deck into a fresh working state. When byTerm is
// set the question/answer orientation of every card is flipped, including
// its distractor sides.
func newGameState(deck []models.Flashcard, byTerm bool) *GameState {
	remaining := make([]models.Flashcard, len(deck))
	copy(remaining, deck)
	if byTerm {
		for i := range remaining {
			remaining[i] = flipCard(remaining[i])
		}
	}
	return &GameState{
		Remaining:    remaining,
		Submitted:    make(map[uuid.UUID]struct{}),
		allSubmitted: make(chan struct{}),
	}
}

// flipCard swaps a card's question/answer sides along with the matching
// distractor sets and completeness flags.
func flipCard(c models.Flashcard) models.Flashcard {
	return models.Flashcard{
		Question:                   c.Answer,
		Answer:                     c.Question,
		DefinitionDistractors:      c.TermDistractors,
		TermDistractors:            c.DefinitionDistractors,
		DefinitionDistractorsReady: c.TermDistractorsReady,
		TermDistractorsReady:       c.DefinitionDistractorsReady,
	}
}

// CurrentCard returns the card in play, or nil if the deck is exhausted.
func (gs *GameState) CurrentCard() *models.Flashcard {
	if len(gs.Remaining) == 0 {
		return nil
	}
	return &gs.Remaining[0]
}

// AllSubmittedC is closed once every player has submitted this round.
func (gs *GameState) AllSubmittedC() <-chan struct{} {
	return gs.allSubmitted
}

// markSubmitted records a player's final submission for the round and
// signals the scheduler when the whole roster has submitted. Idempotent.
func (gs *GameState) markSubmitted(connID uuid.UUID, rosterSize int) {
	gs.Submitted[connID] = struct{}{}
	if !gs.allSubmittedClosed && len(gs.Submitted) >= rosterSize {
		gs.allSubmittedClosed = true
		close(gs.allSubmitted)
	}
}

// advance pops the front card and resets the per-round collections for the
// next round. Returns false when the deck is exhausted.
func (gs *GameState) advance() bool {
	if len(gs.Remaining) > 0 {
		gs.Remaining = gs.Remaining[1:]
	}
	gs.Correct = nil
	gs.Wrong = nil
	gs.Submitted = make(map[uuid.UUID]struct{})
	gs.allSubmitted = make(chan struct{})
	gs.allSubmittedClosed = false
	return len(gs.Remaining) > 0
}

// wrongRecord returns the accumulating record for connID, or nil.
func (gs *GameState) wrongRecord(connID uuid.UUID) *WrongRecord {
	for _, w := range gs.Wrong {
		if w.ConnID == connID {
			return w
		}
	}
	return nil
}

// correctRecord returns the round's correct entry for connID, or nil.
func (gs *GameState) correctRecord(connID uuid.UUID) *CorrectRecord {
	for i := range gs.Correct {
		if gs.Correct[i].ConnID == connID {
			return &gs.Correct[i]
		}
	}
	return nil
}

// sortCorrectByElapsed orders correct records fastest-first. Stable, so
// equal elapsed times keep submission order.
func sortCorrectByElapsed(records []CorrectRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].ElapsedMs < records[j].ElapsedMs
	})
}

// shuffleCards permutes cards in place with a Fisher-Yates shuffle.
func shuffleCards(r *rand.Rand, cards []models.Flashcard) {
	r.Shuffle(len(cards), func(i, j int) {
		cards[i], cards[j] = cards[j], cards[i]
	})
}
