// internal/game/scheduler.go
package game

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Scheduler drives the autonomous round loop of a started game:
// countdown -> question -> answer window -> results -> next question, until
// the deck runs out or a win condition fires. Exactly one loop runs per
// lobby; StartGame's waiting-status precondition guarantees no second loop
// can be launched while one is active.
//
// Every wait is a cancellation point. The loop re-resolves the lobby through
// the engine after each wait and stops as soon as the lobby or its game
// state is gone, so timers left over from a destroyed lobby never touch
// stale state.
type Scheduler struct {
	engine *Engine
	log    *logrus.Logger

	// CountdownTicks is the number of one-second countdown broadcasts before
	// the first question.
	CountdownTicks int

	// ResultsWindow is how long round results stay on screen before the next
	// question. Fixed per deployment, not a lobby setting.
	ResultsWindow time.Duration
}

// NewScheduler builds a scheduler over the engine.
func NewScheduler(engine *Engine, log *logrus.Logger, countdownTicks int, resultsWindow time.Duration) *Scheduler {
	return &Scheduler{
		engine:         engine,
		log:            log,
		CountdownTicks: countdownTicks,
		ResultsWindow:  resultsWindow,
	}
}

// Launch attaches a cancel handle to the freshly started game and runs the
// loop in its own goroutine. No-op if the game vanished between StartGame
// and here.
func (s *Scheduler) Launch(code string) {
	ctx, cancel := context.WithCancel(context.Background())
	if !s.engine.AttachCancel(code, cancel) {
		cancel()
		return
	}
	go s.run(ctx, code)
}

// run is the per-lobby control loop. It owns the game's pacing; all state
// mutation happens through engine operations that lock the lobby themselves.
func (s *Scheduler) run(ctx context.Context, code string) {
	s.log.Infof("lobby %s: scheduler loop starting", code)
	defer s.log.Infof("lobby %s: scheduler loop exited", code)

	// Broadcast the starting status, then shuffle right away so players who
	// join mid-countdown see a consistent upcoming order.
	s.engine.BroadcastLobby(code)
	s.engine.ShuffleDeck(code)

	for i := s.CountdownTicks; i > 0; i-- {
		s.engine.Broadcast(code, map[string]interface{}{
			"type":    "startCountdown",
			"seconds": i,
		})
		if !s.wait(ctx, time.Second) {
			return
		}
	}

	if !s.engine.MarkOngoing(code) {
		return
	}

	for {
		q, ok := s.engine.CurrentQuestion(code)
		if !ok {
			return
		}
		if q == nil {
			s.engine.FinishGame(code)
			return
		}

		s.engine.SetRoundStart(code)
		s.engine.Broadcast(code, map[string]interface{}{
			"type":      "newFlashcard",
			"question":  q.Question,
			"choices":   q.Choices,
			"remaining": q.Remaining,
		})

		// Answer window: ends on the timer, or early once every player has
		// submitted.
		allSubmitted, window, ok := s.engine.RoundSignals(code)
		if !ok {
			return
		}
		timer := time.NewTimer(window)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-allSubmitted:
			timer.Stop()
		case <-timer.C:
		}

		results, ok := s.engine.RoundResults(code)
		if !ok {
			return
		}
		s.engine.Broadcast(code, map[string]interface{}{
			"type":    "endFlashcard",
			"results": results,
		})

		if s.engine.WinThresholdReached(code) {
			s.engine.FinishGame(code)
			return
		}

		if !s.wait(ctx, s.ResultsWindow) {
			return
		}

		next, ok := s.engine.AdvanceRound(code)
		if !ok {
			return
		}
		if next == nil {
			s.engine.FinishGame(code)
			return
		}
	}
}

// wait sleeps for d unless the loop is cancelled first. Returns false on
// cancellation.
func (s *Scheduler) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
