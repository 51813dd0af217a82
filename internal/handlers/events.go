// internal/handlers/events.go
package handlers

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/quizdash/quizdash/internal/deckstore"
	"github.com/quizdash/quizdash/internal/game"
	"github.com/quizdash/quizdash/internal/models"
)

// handleEvent routes one inbound event. Missing lobbies, players or game
// states are routine races (a disconnect beat the message here); the policy
// throughout is to drop the event silently rather than crash or broadcast
// to a dead room.
func (s *Server) handleEvent(ctx context.Context, conn *game.Conn, ev *inbound) {
	switch ev.Type {
	case "createLobby":
		s.handleCreateLobby(conn, ev.Nickname)
	case "joinLobby":
		s.handleJoinLobby(conn, ev.Code, ev.Nickname)
	case "updateFlashcard":
		s.handleUpdateFlashcard(conn, ev)
	case "updateSettings":
		s.handleUpdateSettings(conn, ev.Settings)
	case "updateLeader":
		s.handleUpdateLeader(conn, ev.NextLeader)
	case "getLobby":
		s.handleGetLobby(conn, ev.Code)
	case "startGame":
		s.handleStartGame(conn)
	case "requestCurrentQuestion":
		s.handleRequestCurrentQuestion(conn)
	case "answer":
		s.handleAnswer(conn, ev.Text)
	case "voteEndGame":
		s.handleVoteEndGame(conn)
	case "generateDistractors":
		s.handleGenerateDistractors(conn)
	case "loadSet":
		s.handleLoadSet(ctx, conn, ev.SetID)
	case "publishSet":
		s.handlePublishSet(ctx, conn)
	case "leaveLobby":
		s.removeAndNotify(conn)
	default:
		s.Log.Warnf("conn %s: unknown event type %q", conn.ID, ev.Type)
		conn.WriteError("unknown event type: " + ev.Type)
	}
}

func (s *Server) handleCreateLobby(conn *game.Conn, nickname string) {
	if nickname == "" {
		conn.WriteError("nickname is required")
		return
	}
	if _, ok := s.Dir.ByConn(conn.ID); ok {
		conn.WriteError("already in a lobby")
		return
	}
	lob := s.Dir.CreateLobby(conn.ID, nickname)
	lob.Mu.Lock()
	lob.Connections[conn.ID] = conn
	snapshot := lob.SnapshotUnsafe()
	lob.Mu.Unlock()

	conn.Write(map[string]interface{}{
		"type":  "lobbyData",
		"lobby": snapshot,
	})
}

func (s *Server) handleJoinLobby(conn *game.Conn, code, nickname string) {
	if nickname == "" {
		conn.WriteError("nickname is required")
		return
	}
	if _, ok := s.Dir.ByConn(conn.ID); ok {
		conn.WriteError("already in a lobby")
		return
	}
	lob, ok := s.Dir.AddPlayer(code, conn.ID, nickname)
	if !ok {
		conn.WriteError("lobby not found")
		return
	}
	lob.Mu.Lock()
	lob.Connections[conn.ID] = conn
	lob.BroadcastLobbyUnsafe()
	lob.Mu.Unlock()
}

// handleUpdateFlashcard replaces the lobby's deck and metadata. A finished
// lobby drops back to waiting so a fresh game can be configured.
func (s *Server) handleUpdateFlashcard(conn *game.Conn, ev *inbound) {
	lob, ok := s.Dir.ByConn(conn.ID)
	if !ok {
		return
	}
	lob.Mu.Lock()
	if lob.Status == game.StatusStarting || lob.Status == game.StatusOngoing {
		lob.Mu.Unlock()
		conn.WriteError("cannot replace the deck mid-game")
		return
	}
	lob.Deck = ev.Cards
	if ev.Deck != nil {
		lob.DeckMeta = *ev.Deck
	} else {
		lob.DeckMeta = models.DeckMeta{}
	}
	if lob.Status == game.StatusFinished {
		lob.Status = game.StatusWaiting
	}
	lob.DistractorStatus = ""
	code := lob.Code
	lob.BroadcastLobbyUnsafe()
	lob.Mu.Unlock()

	// The old deck's generation tracking no longer applies.
	s.Coordinator.Cleanup(code)
}

func (s *Server) handleUpdateSettings(conn *game.Conn, settings *models.Settings) {
	if settings == nil {
		conn.WriteError("missing settings payload")
		return
	}
	lob, ok := s.Dir.ByConn(conn.ID)
	if !ok {
		return
	}
	lob.Mu.Lock()
	defer lob.Mu.Unlock()
	if lob.LeaderID != conn.ID {
		conn.WriteError("only the leader can change settings")
		return
	}
	if lob.Status != game.StatusWaiting {
		conn.WriteError("settings are locked while a game is running")
		return
	}
	lob.Settings = *settings
	lob.BroadcastLobbyUnsafe()
}

func (s *Server) handleUpdateLeader(conn *game.Conn, next string) {
	nextID, err := uuid.Parse(next)
	if err != nil {
		conn.WriteError("invalid nextLeaderConnId")
		return
	}
	lob, ok := s.Dir.ByConn(conn.ID)
	if !ok {
		return
	}
	lob.Mu.Lock()
	if lob.LeaderID != conn.ID {
		lob.Mu.Unlock()
		conn.WriteError("only the leader can transfer leadership")
		return
	}
	lob.PromoteLeaderUnsafe(nextID)
	lob.BroadcastLobbyUnsafe()
	lob.Mu.Unlock()
}

func (s *Server) handleGetLobby(conn *game.Conn, code string) {
	lob, ok := s.Dir.ByCode(code)
	if !ok {
		conn.Write(map[string]interface{}{"type": "lobbyData", "lobby": nil})
		return
	}
	lob.Mu.Lock()
	snapshot := lob.SnapshotUnsafe()
	lob.Mu.Unlock()
	conn.Write(map[string]interface{}{"type": "lobbyData", "lobby": snapshot})
}

func (s *Server) handleStartGame(conn *game.Conn) {
	lob, ok := s.Dir.ByConn(conn.ID)
	if !ok {
		return
	}

	lob.Mu.Lock()
	if lob.LeaderID != conn.ID {
		lob.Mu.Unlock()
		conn.WriteError("only the leader can start the game")
		return
	}
	if lob.Status != game.StatusWaiting {
		lob.Mu.Unlock()
		conn.WriteError("game already in progress")
		return
	}
	if len(lob.Deck) == 0 {
		lob.Mu.Unlock()
		conn.WriteError("load a flashcard set first")
		return
	}
	if lob.Settings.MultipleChoice && !deckChoicesReady(lob) {
		lob.Mu.Unlock()
		conn.WriteError("multiple-choice options are not ready yet")
		return
	}
	code := lob.Code
	lob.Mu.Unlock()

	if _, ok := s.Engine.StartGame(conn.ID); !ok {
		return
	}
	s.Scheduler.Launch(code)
}

// deckChoicesReady reports whether every card carries a complete distractor
// set for the active orientation. Assumes the lobby mutex is held.
func deckChoicesReady(lob *game.Lobby) bool {
	for i := range lob.Deck {
		card := &lob.Deck[i]
		if lob.Settings.AnswerByTerm {
			if !card.TermDistractorsReady {
				return false
			}
		} else if !card.DefinitionDistractorsReady {
			return false
		}
	}
	return len(lob.Deck) > 0
}

// handleRequestCurrentQuestion serves late joiners and reconnects: the
// current question goes to the sender only.
func (s *Server) handleRequestCurrentQuestion(conn *game.Conn) {
	lob, ok := s.Dir.ByConn(conn.ID)
	if !ok {
		return
	}
	lob.Mu.Lock()
	ongoing := lob.Status == game.StatusOngoing
	code := lob.Code
	lob.Mu.Unlock()
	if !ongoing {
		return
	}
	q, ok := s.Engine.CurrentQuestion(code)
	if !ok || q == nil {
		return
	}
	conn.Write(map[string]interface{}{
		"type":      "newFlashcard",
		"question":  q.Question,
		"choices":   q.Choices,
		"remaining": q.Remaining,
	})
}

func (s *Server) handleAnswer(conn *game.Conn, text string) {
	res, ok := s.Engine.SubmitAnswer(conn.ID, text)
	if !ok {
		return
	}
	if res.Correct {
		conn.Write(map[string]interface{}{
			"type":      "correctGuess",
			"elapsedMs": res.ElapsedMs,
		})
	}
	res.Lobby.Mu.Lock()
	res.Lobby.BroadcastLobbyUnsafe()
	res.Lobby.Mu.Unlock()
}

func (s *Server) handleVoteEndGame(conn *game.Conn) {
	lob, reached, ok := s.Engine.VoteEnd(conn.ID)
	if !ok {
		return
	}
	code := lob.Code
	if reached {
		// FinishGame broadcasts the final snapshot itself.
		s.Engine.FinishGame(code)
		return
	}
	s.Engine.BroadcastLobby(code)
}

func (s *Server) handleGenerateDistractors(conn *game.Conn) {
	lob, ok := s.Dir.ByConn(conn.ID)
	if !ok {
		return
	}
	lob.Mu.Lock()
	leader := lob.LeaderID == conn.ID
	waiting := lob.Status == game.StatusWaiting
	hasDeck := len(lob.Deck) > 0
	code := lob.Code
	lob.Mu.Unlock()

	if !leader {
		conn.WriteError("only the leader can generate choices")
		return
	}
	if !waiting || !hasDeck {
		conn.WriteError("load a deck and wait for the lobby before generating choices")
		return
	}

	// The generation round-trip runs off the event path; its outcome is
	// broadcast by the coordinator.
	go func() {
		if err := s.Coordinator.BeginGeneration(context.Background(), code); err != nil {
			s.Log.Warnf("lobby %s: distractor generation failed: %v", code, err)
			conn.WriteError("generating multiple-choice options failed")
		}
	}()
}

func (s *Server) handleLoadSet(ctx context.Context, conn *game.Conn, setID string) {
	if setID == "" {
		conn.WriteError("missing setId")
		return
	}
	lob, ok := s.Dir.ByConn(conn.ID)
	if !ok {
		return
	}
	set, err := s.Decks.Load(ctx, setID)
	if err != nil {
		if errors.Is(err, deckstore.ErrNotFound) {
			conn.WriteError("no flashcard set with that id")
		} else {
			s.Log.Warnf("conn %s: load set %s: %v", conn.ID, setID, err)
			conn.WriteError("loading the flashcard set failed")
		}
		return
	}

	lob.Mu.Lock()
	if lob.Status == game.StatusStarting || lob.Status == game.StatusOngoing {
		lob.Mu.Unlock()
		conn.WriteError("cannot replace the deck mid-game")
		return
	}
	lob.Deck = set.Cards
	lob.DeckMeta = set.Meta
	if lob.Status == game.StatusFinished {
		lob.Status = game.StatusWaiting
	}
	lob.DistractorStatus = ""
	code := lob.Code
	lob.BroadcastLobbyUnsafe()
	lob.Mu.Unlock()

	s.Coordinator.Cleanup(code)
}

func (s *Server) handlePublishSet(ctx context.Context, conn *game.Conn) {
	lob, ok := s.Dir.ByConn(conn.ID)
	if !ok {
		return
	}
	lob.Mu.Lock()
	if lob.LeaderID != conn.ID {
		lob.Mu.Unlock()
		conn.WriteError("only the leader can publish the set")
		return
	}
	if len(lob.Deck) == 0 {
		lob.Mu.Unlock()
		conn.WriteError("nothing to publish")
		return
	}
	set := &models.FlashcardSet{Meta: lob.DeckMeta}
	set.Cards = make([]models.Flashcard, len(lob.Deck))
	copy(set.Cards, lob.Deck)
	lob.Mu.Unlock()

	id, err := s.Decks.Save(ctx, set)
	if err != nil {
		s.Log.Warnf("conn %s: publish set: %v", conn.ID, err)
		conn.WriteError("publishing the flashcard set failed")
		return
	}
	conn.Write(map[string]interface{}{
		"type":  "setPublished",
		"setId": id,
	})
}

// removeAndNotify removes the connection's player from its lobby, detaches
// the event channel, and broadcasts the remaining roster unless the lobby
// drained and was destroyed.
func (s *Server) removeAndNotify(conn *game.Conn) {
	lob, empty, ok := s.Dir.RemovePlayer(conn.ID)
	if !ok {
		return
	}
	lob.Mu.Lock()
	delete(lob.Connections, conn.ID)
	if !empty {
		lob.BroadcastLobbyUnsafe()
	}
	lob.Mu.Unlock()
}
