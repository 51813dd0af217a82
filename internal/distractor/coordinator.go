// internal/distractor/coordinator.go
package distractor

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/quizdash/quizdash/internal/game"
	"github.com/quizdash/quizdash/internal/models"
)

// Generator is the external collaborator producing multiple-choice
// distractors: one list per input card. The call is a network/AI round-trip
// and may fail.
type Generator interface {
	Generate(ctx context.Context, cards []models.Flashcard) ([][]string, error)
}

// Resolver is the directory view the coordinator needs.
type Resolver interface {
	ByCode(code string) (*game.Lobby, bool)
}

// Display strings mirrored onto the lobby for client rendering.
const (
	StatusGenerating = "generating"
	StatusReady      = "ready"
	StatusError      = "error"
)

type trackState struct {
	Generating bool
	Ready      bool
}

// Coordinator tracks the async distractor-generation lifecycle per lobby
// code, so multiple-choice gameplay can be gated on readiness and so at
// most one generation is ever in flight per lobby.
type Coordinator struct {
	mu       sync.Mutex
	tracking map[string]*trackState

	dir Resolver
	gen Generator
	log *logrus.Logger
}

// NewCoordinator builds a coordinator over the directory and generator.
func NewCoordinator(dir Resolver, gen Generator, log *logrus.Logger) *Coordinator {
	return &Coordinator{
		tracking: make(map[string]*trackState),
		dir:      dir,
		gen:      gen,
		log:      log,
	}
}

// Status returns the lobby's tracked generation state. Both false when the
// lobby is not tracked at all.
func (c *Coordinator) Status(code string) (generating, ready bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.tracking[code]
	if !ok {
		return false, false
	}
	return st.Generating, st.Ready
}

// Cleanup drops the lobby's tracking entry. Part of game teardown.
func (c *Coordinator) Cleanup(code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tracking, code)
}

// BeginGeneration calls the external generator with the lobby's current
// deck and assigns validated distractors back onto the cards, per the
// orientation active at call time. No-op if a generation is already in
// flight for this lobby.
//
// The generator call is the one suspension point in the core: no lock is
// held across it, and the lobby's deck is re-checked afterwards since it may
// have been replaced in the meantime.
//
// Generator failures are converted to an error status on the lobby and
// returned to the caller for user-facing surfacing; they never propagate
// into the scheduler or crash the process.
func (c *Coordinator) BeginGeneration(ctx context.Context, code string) error {
	c.mu.Lock()
	if st, ok := c.tracking[code]; ok && st.Generating {
		c.mu.Unlock()
		c.log.Infof("lobby %s: distractor generation already in flight, ignoring", code)
		return nil
	}
	c.tracking[code] = &trackState{Generating: true}
	c.mu.Unlock()

	lob, ok := c.dir.ByCode(code)
	if !ok {
		c.Cleanup(code)
		return fmt.Errorf("lobby %s not found", code)
	}

	lob.Mu.Lock()
	byTerm := lob.Settings.AnswerByTerm
	cards := make([]models.Flashcard, len(lob.Deck))
	copy(cards, lob.Deck)
	if byTerm {
		// The generator produces alternatives to the answer field. When play
		// answers by term, the term side is the answer, so the snapshot is
		// flipped to match the orientation the results will be stored under.
		for i := range cards {
			cards[i].Question, cards[i].Answer = cards[i].Answer, cards[i].Question
		}
	}
	lob.DistractorStatus = StatusGenerating
	lob.BroadcastLobbyUnsafe()
	lob.Mu.Unlock()

	lists, err := c.gen.Generate(ctx, cards)
	if err != nil {
		c.setResult(code, false, StatusError, nil, byTerm)
		return fmt.Errorf("distractor generation for lobby %s: %w", code, err)
	}

	if len(lists) != len(cards) {
		c.log.Warnf("lobby %s: generator returned %d lists for %d cards", code, len(lists), len(cards))
		c.setResult(code, false, StatusError, nil, byTerm)
		return nil
	}

	// Validate per card; a malformed entry empties that card's distractors
	// but does not discard the cards that parsed correctly.
	allGood := true
	for i, list := range lists {
		if len(list) != 3 || hasEmpty(list) {
			lists[i] = nil
			allGood = false
		}
	}

	status := StatusReady
	if !allGood {
		status = StatusError
	}
	c.setResult(code, allGood, status, lists, byTerm)
	return nil
}

// setResult records the tracking outcome and writes the distractor lists
// (which may be nil) onto the lobby's deck for the given orientation.
func (c *Coordinator) setResult(code string, ready bool, status string, lists [][]string, byTerm bool) {
	c.mu.Lock()
	if _, ok := c.tracking[code]; ok {
		c.tracking[code] = &trackState{Generating: false, Ready: ready}
	}
	c.mu.Unlock()

	lob, ok := c.dir.ByCode(code)
	if !ok {
		return
	}
	lob.Mu.Lock()
	defer lob.Mu.Unlock()

	// The deck may have been swapped while the generator ran.
	if lists != nil && len(lists) == len(lob.Deck) {
		for i := range lob.Deck {
			assignDistractors(&lob.Deck[i], lists[i], byTerm)
		}
	}
	lob.DistractorStatus = status
	lob.BroadcastLobbyUnsafe()
}

// assignDistractors writes one card's distractor list and completeness flag
// for the orientation generation ran against. A nil list marks the card
// empty and incomplete.
func assignDistractors(card *models.Flashcard, list []string, byTerm bool) {
	if byTerm {
		card.TermDistractors = list
		card.TermDistractorsReady = list != nil
		return
	}
	card.DefinitionDistractors = list
	card.DefinitionDistractorsReady = list != nil
}

func hasEmpty(list []string) bool {
	for _, s := range list {
		if s == "" {
			return true
		}
	}
	return false
}
