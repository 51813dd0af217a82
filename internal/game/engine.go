// internal/game/engine.go
package game

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/quizdash/quizdash/internal/models"
)

// Resolver is the session directory view the engine needs: it hands out
// lobby references so the engine never re-derives lobby existence on its own.
type Resolver interface {
	ByCode(code string) (*Lobby, bool)
	ByConn(connID uuid.UUID) (*Lobby, bool)
}

// Question is the payload for one round's prompt. Choices is nil in
// free-text mode.
type Question struct {
	Question  string   `json:"question"`
	Choices   []string `json:"choices,omitempty"`
	Remaining int      `json:"remaining"`
}

// SubmitResult is the outcome of one answer submission.
type SubmitResult struct {
	Correct   bool
	ElapsedMs int64
	Lobby     *Lobby
}

// RoundResults summarizes a finished round for broadcast.
type RoundResults struct {
	Answer  string          `json:"answer"`
	Correct []CorrectRecord `json:"correct"`
	Wrong   []*WrongRecord  `json:"wrong"`
}

// Engine owns the per-lobby game state machine. Every operation resolves the
// lobby through the directory, takes the lobby mutex, and completes its
// read-then-write before returning; missing lobbies or game states are
// routine races and reported as a false ok, never an error.
type Engine struct {
	dir Resolver
	log *logrus.Logger

	// rnd, when set, replaces the global math/rand source. Tests inject a
	// seeded source; production leaves it nil.
	rnd *rand.Rand

	// OnTeardown is invoked whenever a game's state is torn down, with the
	// lobby code. Wired to the distractor coordinator's cleanup.
	OnTeardown func(code string)
}

// NewEngine builds an engine over the given directory.
func NewEngine(dir Resolver, log *logrus.Logger) *Engine {
	return &Engine{dir: dir, log: log}
}

// StartGame transitions a waiting lobby to starting and builds a fresh
// GameState from a copy of the deck. Returns false if the caller's lobby is
// gone, the lobby is not waiting, or the deck is empty; callers skip the
// broadcast in that case.
func (e *Engine) StartGame(connID uuid.UUID) (*Lobby, bool) {
	lob, ok := e.dir.ByConn(connID)
	if !ok {
		return nil, false
	}
	lob.Mu.Lock()
	defer lob.Mu.Unlock()

	if lob.Status != StatusWaiting || len(lob.Deck) == 0 {
		return nil, false
	}

	for _, p := range lob.Players {
		p.ResetForGame()
	}
	lob.EndVotes = make(map[uuid.UUID]struct{})
	lob.Game = newGameState(lob.Deck, lob.Settings.AnswerByTerm)
	lob.Status = StatusStarting
	e.log.Infof("lobby %s: game started with %d cards, %d players", lob.Code, len(lob.Deck), len(lob.Players))
	return lob, true
}

// AttachCancel stores the scheduler's cancel func on the running game so
// teardown can stop the loop positively.
func (e *Engine) AttachCancel(code string, cancel context.CancelFunc) bool {
	lob, ok := e.dir.ByCode(code)
	if !ok {
		return false
	}
	lob.Mu.Lock()
	defer lob.Mu.Unlock()
	if lob.Game == nil {
		return false
	}
	lob.Game.cancel = cancel
	return true
}

// ShuffleDeck permutes the game's remaining cards in place, if the lobby's
// shuffle setting is on. Called once per game, at the start of the countdown.
func (e *Engine) ShuffleDeck(code string) {
	lob, ok := e.dir.ByCode(code)
	if !ok {
		return
	}
	lob.Mu.Lock()
	defer lob.Mu.Unlock()
	if lob.Game == nil || !lob.Settings.Shuffle {
		return
	}
	if e.rnd != nil {
		shuffleCards(e.rnd, lob.Game.Remaining)
	} else {
		rand.Shuffle(len(lob.Game.Remaining), func(i, j int) {
			lob.Game.Remaining[i], lob.Game.Remaining[j] = lob.Game.Remaining[j], lob.Game.Remaining[i]
		})
	}
}

// CurrentQuestion reads the question in play. ok is false when the lobby or
// its game is gone; a nil question with ok true means the deck is exhausted.
func (e *Engine) CurrentQuestion(code string) (*Question, bool) {
	lob, ok := e.dir.ByCode(code)
	if !ok {
		return nil, false
	}
	lob.Mu.Lock()
	defer lob.Mu.Unlock()
	if lob.Game == nil {
		return nil, false
	}
	return e.currentQuestionUnsafe(lob), true
}

// currentQuestionUnsafe builds the Question payload for the card in play.
// Assumes the lobby mutex is held.
func (e *Engine) currentQuestionUnsafe(lob *Lobby) *Question {
	card := lob.Game.CurrentCard()
	if card == nil {
		return nil
	}
	return &Question{
		Question:  card.Question,
		Choices:   e.buildChoices(lob, card),
		Remaining: len(lob.Game.Remaining),
	}
}

// buildChoices assembles the 4-option multiple-choice list: the canonical
// answer plus the card's distractors, minus any distractor that normalizes
// to the same text as the answer. Fewer than 3 surviving distractors is a
// soft degradation, not an error. Returns nil in free-text mode or when the
// card's distractor set is incomplete.
func (e *Engine) buildChoices(lob *Lobby, card *models.Flashcard) []string {
	if !lob.Settings.MultipleChoice {
		return nil
	}
	distractors := card.DefinitionDistractors
	if len(distractors) != 3 {
		return nil
	}
	choices := []string{card.Answer}
	for _, d := range distractors {
		if normalizeAnswer(d) == normalizeAnswer(card.Answer) {
			continue
		}
		choices = append(choices, d)
	}
	if e.rnd != nil {
		e.rnd.Shuffle(len(choices), func(i, j int) {
			choices[i], choices[j] = choices[j], choices[i]
		})
	} else {
		rand.Shuffle(len(choices), func(i, j int) {
			choices[i], choices[j] = choices[j], choices[i]
		})
	}
	return choices
}

// MarkOngoing moves a starting lobby to ongoing once the countdown has
// elapsed, and broadcasts the new status. Returns false if the game was torn
// down during the countdown.
func (e *Engine) MarkOngoing(code string) bool {
	lob, ok := e.dir.ByCode(code)
	if !ok {
		return false
	}
	lob.Mu.Lock()
	defer lob.Mu.Unlock()
	if lob.Game == nil || lob.Status != StatusStarting {
		return false
	}
	lob.Status = StatusOngoing
	lob.BroadcastLobbyUnsafe()
	return true
}

// Broadcast sends msg to every connection in the lobby's room. No-op if the
// lobby is gone.
func (e *Engine) Broadcast(code string, msg map[string]interface{}) {
	lob, ok := e.dir.ByCode(code)
	if !ok {
		return
	}
	lob.Mu.Lock()
	defer lob.Mu.Unlock()
	lob.BroadcastUnsafe(msg)
}

// BroadcastLobby broadcasts the lobbyUpdated snapshot. No-op if the lobby is
// gone.
func (e *Engine) BroadcastLobby(code string) {
	lob, ok := e.dir.ByCode(code)
	if !ok {
		return
	}
	lob.Mu.Lock()
	defer lob.Mu.Unlock()
	lob.BroadcastLobbyUnsafe()
}

// SetRoundStart stamps the moment the current question was broadcast, so
// elapsed times are comparable across players. Called exactly once per round
// by the scheduler.
func (e *Engine) SetRoundStart(code string) {
	lob, ok := e.dir.ByCode(code)
	if !ok {
		return
	}
	lob.Mu.Lock()
	defer lob.Mu.Unlock()
	if lob.Game == nil {
		return
	}
	lob.Game.RoundStart = time.Now()
}

// normalizeAnswer is the canonical form used for answer comparison:
// whitespace-trimmed and lowercased. The fuzzy-tolerance setting is stored
// and surfaced but deliberately does not alter this comparison.
func normalizeAnswer(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// SubmitAnswer resolves the caller's lobby, game and roster entry, scores
// the submission, and reports the outcome. ok is false if any of the three
// are missing (e.g. the lobby was destroyed while the message was in
// flight) or the lobby is not ongoing yet — an answer sent during the
// countdown must not score against a card that was never shown, and must not
// pre-close the round's all-submitted signal; the caller then drops the
// event silently.
//
// Correct answers are scored idempotently: a player cannot earn more than
// one point per round. Wrong answers diverge by mode: multiple choice marks
// the player as submitted on their first wrong guess (one shot), free text
// leaves the round open so the player may keep retrying until correct or
// the timer ends the round. This asymmetry is intentional.
func (e *Engine) SubmitAnswer(connID uuid.UUID, text string) (*SubmitResult, bool) {
	lob, ok := e.dir.ByConn(connID)
	if !ok {
		return nil, false
	}
	lob.Mu.Lock()
	defer lob.Mu.Unlock()

	gs := lob.Game
	if gs == nil || lob.Status != StatusOngoing {
		return nil, false
	}
	card := gs.CurrentCard()
	if card == nil {
		return nil, false
	}
	player := lob.PlayerUnsafe(connID)
	if player == nil {
		return nil, false
	}

	elapsed := time.Since(gs.RoundStart).Milliseconds()
	participated := gs.correctRecord(connID) != nil || gs.wrongRecord(connID) != nil

	if normalizeAnswer(text) == normalizeAnswer(card.Answer) {
		if rec := gs.correctRecord(connID); rec != nil {
			// Already scored this round.
			return &SubmitResult{Correct: true, ElapsedMs: rec.ElapsedMs, Lobby: lob}, true
		}
		gs.Correct = append(gs.Correct, CorrectRecord{ConnID: connID, Name: player.Name, ElapsedMs: elapsed})
		player.Score++
		player.CorrectCount++
		if !participated {
			player.TotalAnswered++
		}
		player.AnswerTimesMs = append(player.AnswerTimesMs, elapsed)
		player.MiniStatus = fmt.Sprintf("%.2fs", float64(elapsed)/1000)
		gs.markSubmitted(connID, len(lob.Players))
		return &SubmitResult{Correct: true, ElapsedMs: elapsed, Lobby: lob}, true
	}

	wr := gs.wrongRecord(connID)
	if wr == nil {
		wr = &WrongRecord{ConnID: connID, Name: player.Name}
		gs.Wrong = append(gs.Wrong, wr)
		if !participated {
			player.TotalAnswered++
		}
	}
	wr.Answers = append(wr.Answers, text)
	player.MiniStatus = text
	if lob.Settings.MultipleChoice {
		gs.markSubmitted(connID, len(lob.Players))
	}
	return &SubmitResult{Correct: false, ElapsedMs: elapsed, Lobby: lob}, true
}

// AllSubmitted reports whether every current player has submitted this
// round. Advisory only; the round also ends on the timer.
func (e *Engine) AllSubmitted(code string) bool {
	lob, ok := e.dir.ByCode(code)
	if !ok {
		return false
	}
	lob.Mu.Lock()
	defer lob.Mu.Unlock()
	if lob.Game == nil {
		return false
	}
	return len(lob.Game.Submitted) >= len(lob.Players)
}

// RoundSignals exposes what the scheduler needs to wait out an answer
// window: the all-submitted channel and the configured window length.
func (e *Engine) RoundSignals(code string) (<-chan struct{}, time.Duration, bool) {
	lob, ok := e.dir.ByCode(code)
	if !ok {
		return nil, 0, false
	}
	lob.Mu.Lock()
	defer lob.Mu.Unlock()
	if lob.Game == nil {
		return nil, 0, false
	}
	return lob.Game.AllSubmittedC(), time.Duration(lob.Settings.RoundTimeSeconds) * time.Second, true
}

// RoundResults builds the end-of-round summary: the canonical answer,
// correct players sorted fastest-first (stable, so equal times keep
// submission order), and each player's wrong submissions.
func (e *Engine) RoundResults(code string) (*RoundResults, bool) {
	lob, ok := e.dir.ByCode(code)
	if !ok {
		return nil, false
	}
	lob.Mu.Lock()
	defer lob.Mu.Unlock()
	gs := lob.Game
	if gs == nil {
		return nil, false
	}
	card := gs.CurrentCard()
	if card == nil {
		return nil, false
	}

	correct := make([]CorrectRecord, len(gs.Correct))
	copy(correct, gs.Correct)
	sortCorrectByElapsed(correct)

	wrong := make([]*WrongRecord, len(gs.Wrong))
	copy(wrong, gs.Wrong)

	return &RoundResults{Answer: card.Answer, Correct: correct, Wrong: wrong}, true
}

// AdvanceRound pops the current card and prepares the next round, clearing
// every player's mini status. The returned question is nil once the deck is
// exhausted, which signals game over to the caller.
func (e *Engine) AdvanceRound(code string) (*Question, bool) {
	lob, ok := e.dir.ByCode(code)
	if !ok {
		return nil, false
	}
	lob.Mu.Lock()
	defer lob.Mu.Unlock()
	if lob.Game == nil {
		return nil, false
	}
	for _, p := range lob.Players {
		p.MiniStatus = ""
	}
	if !lob.Game.advance() {
		return nil, true
	}
	return e.currentQuestionUnsafe(lob), true
}

// WinThresholdReached reports whether any player has hit the lobby's
// points-to-win setting. A setting of 0 disables the threshold.
func (e *Engine) WinThresholdReached(code string) bool {
	lob, ok := e.dir.ByCode(code)
	if !ok {
		return false
	}
	lob.Mu.Lock()
	defer lob.Mu.Unlock()
	if lob.Settings.PointsToWin <= 0 {
		return false
	}
	for _, p := range lob.Players {
		if p.Score >= lob.Settings.PointsToWin {
			return true
		}
	}
	return false
}

// VoteEnd records connID's vote to end the ongoing game. reached is true
// once the quorum (floor(0.75*N)+1 of the current roster) is met; the caller
// is then expected to finish the game.
func (e *Engine) VoteEnd(connID uuid.UUID) (lob *Lobby, reached, ok bool) {
	lob, ok = e.dir.ByConn(connID)
	if !ok {
		return nil, false, false
	}
	lob.Mu.Lock()
	defer lob.Mu.Unlock()
	if lob.Status != StatusOngoing || lob.Game == nil || lob.PlayerUnsafe(connID) == nil {
		return nil, false, false
	}
	lob.EndVotes[connID] = struct{}{}
	quorum := voteQuorum(len(lob.Players))
	return lob, len(lob.EndVotes) >= quorum, true
}

// voteQuorum is floor(0.75*n)+1. For n=4 that is all four players; the exact
// arithmetic is load-bearing for game-ending behavior.
func voteQuorum(n int) int {
	return (n*3)/4 + 1
}

// FinishGame marks the lobby finished, credits a win to the top scorer(s),
// broadcasts the final lobby snapshot, and tears the game down. Safe to call
// on every finish path; a second call finds the lobby no longer ongoing and
// does nothing.
func (e *Engine) FinishGame(code string) (*Lobby, bool) {
	lob, ok := e.dir.ByCode(code)
	if !ok {
		return nil, false
	}
	lob.Mu.Lock()
	defer lob.Mu.Unlock()
	if lob.Status != StatusOngoing && lob.Status != StatusStarting {
		return nil, false
	}
	lob.Status = StatusFinished

	top := 0
	for _, p := range lob.Players {
		if p.Score > top {
			top = p.Score
		}
	}
	if top > 0 {
		for _, p := range lob.Players {
			if p.Score == top {
				p.Wins++
			}
		}
	}

	lob.BroadcastLobbyUnsafe()
	e.endGameUnsafe(lob)
	e.log.Infof("lobby %s: game finished", lob.Code)
	return lob, true
}

// EndGame tears down the lobby's game state and distractor tracking.
// Idempotent; called on every path that reaches finished.
func (e *Engine) EndGame(code string) {
	lob, ok := e.dir.ByCode(code)
	if !ok {
		return
	}
	lob.Mu.Lock()
	defer lob.Mu.Unlock()
	e.endGameUnsafe(lob)
}

// endGameUnsafe cancels the scheduler, drops the GameState, and clears the
// distractor tracking entry. Assumes the lobby mutex is held.
func (e *Engine) endGameUnsafe(lob *Lobby) {
	lob.TeardownGameUnsafe()
	lob.DistractorStatus = ""
	lob.EndVotes = make(map[uuid.UUID]struct{})
	if e.OnTeardown != nil {
		e.OnTeardown(lob.Code)
	}
}
