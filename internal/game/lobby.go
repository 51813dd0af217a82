// internal/game/lobby.go
package game

import (
	"log"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/quizdash/quizdash/internal/models"
)

// Status is the lobby lifecycle state. Transitions only move
// waiting -> starting -> ongoing -> finished, and back to waiting when a
// finished lobby loads a new deck or restarts.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusStarting Status = "starting"
	StatusOngoing  Status = "ongoing"
	StatusFinished Status = "finished"
)

// Lobby is an ephemeral room of players sharing a deck, settings and a
// lifecycle status. It is owned by the session directory and must only be
// mutated while Mu is held.
type Lobby struct {
	Code string

	// Players is the ordered roster. Join order is preserved; display
	// ordering is derived via SortedPlayersUnsafe.
	Players []*models.Player

	Deck     []models.Flashcard
	DeckMeta models.DeckMeta
	Settings models.Settings
	Status   Status

	// LeaderID identifies the single player allowed to change settings,
	// replace the deck and start the game. Always a current member.
	LeaderID uuid.UUID

	// EndVotes is the set of players who voted to end the current game.
	EndVotes map[uuid.UUID]struct{}

	// DistractorStatus mirrors the coordinator's per-lobby generation state
	// ("", "generating", "ready", "error") so snapshots are self-contained.
	DistractorStatus string

	// Game is the working state of an in-progress game, nil otherwise.
	// At most one per lobby.
	Game *GameState

	// Connections holds the live event channels of joined players.
	Connections map[uuid.UUID]*Conn

	Mu sync.Mutex
}

// Conn is a single player's presence in the lobby: a buffered outbound
// channel drained by the transport's write pump.
type Conn struct {
	ID      uuid.UUID
	Cancel  func()
	OutChan chan map[string]interface{}
}

// Write pushes a message onto the connection's OutChan without blocking.
// Messages to a closed or full channel are dropped and logged.
func (c *Conn) Write(msg map[string]interface{}) {
	select {
	case c.OutChan <- msg:
	default:
		msgType, _ := msg["type"].(string)
		log.Printf("conn %s: OutChan closed or full, dropped message type %q", c.ID, msgType)
	}
}

// WriteError sends an error object to this connection only.
func (c *Conn) WriteError(msg string) {
	c.Write(map[string]interface{}{
		"type":    "error",
		"message": msg,
	})
}

// NewLobby constructs a waiting lobby with a single player, who becomes the
// leader.
func NewLobby(code string, leaderID uuid.UUID, leaderName string) *Lobby {
	return &Lobby{
		Code:        code,
		Players:     []*models.Player{{ConnID: leaderID, Name: leaderName}},
		Settings:    models.DefaultSettings(),
		Status:      StatusWaiting,
		LeaderID:    leaderID,
		EndVotes:    make(map[uuid.UUID]struct{}),
		Connections: make(map[uuid.UUID]*Conn),
	}
}

// PlayerUnsafe returns the roster entry for connID, or nil. Assumes Mu held.
func (l *Lobby) PlayerUnsafe(connID uuid.UUID) *models.Player {
	for _, p := range l.Players {
		if p.ConnID == connID {
			return p
		}
	}
	return nil
}

// AddPlayerUnsafe appends a new player with zeroed stats. Idempotent on a
// duplicate connID. Assumes Mu held.
func (l *Lobby) AddPlayerUnsafe(connID uuid.UUID, name string) *models.Player {
	if p := l.PlayerUnsafe(connID); p != nil {
		return p
	}
	p := &models.Player{ConnID: connID, Name: name}
	l.Players = append(l.Players, p)
	return p
}

// RemovePlayerUnsafe drops the player from the roster and the end-game vote
// set, re-homing leadership if the leader left. Returns the remaining roster
// size. Assumes Mu held.
func (l *Lobby) RemovePlayerUnsafe(connID uuid.UUID) int {
	for i, p := range l.Players {
		if p.ConnID == connID {
			l.Players = append(l.Players[:i], l.Players[i+1:]...)
			break
		}
	}
	delete(l.EndVotes, connID)
	if l.LeaderID == connID && len(l.Players) > 0 {
		l.LeaderID = l.Players[0].ConnID
	}
	return len(l.Players)
}

// PromoteLeaderUnsafe reassigns leadership. Silent no-op if the target is
// not a current member. Assumes Mu held.
func (l *Lobby) PromoteLeaderUnsafe(next uuid.UUID) {
	if l.PlayerUnsafe(next) == nil {
		return
	}
	l.LeaderID = next
}

// SortedPlayersUnsafe returns the roster in display order: wins descending
// while waiting/finished, score descending while a game is starting/ongoing.
// The sort is stable so ties keep roster (join) order. Assumes Mu held.
func (l *Lobby) SortedPlayersUnsafe() []*models.Player {
	sorted := make([]*models.Player, len(l.Players))
	copy(sorted, l.Players)
	byScore := l.Status == StatusStarting || l.Status == StatusOngoing
	sort.SliceStable(sorted, func(i, j int) bool {
		if byScore {
			return sorted[i].Score > sorted[j].Score
		}
		return sorted[i].Wins > sorted[j].Wins
	})
	return sorted
}

// TeardownGameUnsafe cancels the running scheduler, if any, and drops the
// game state. Assumes Mu held. Safe to call repeatedly.
func (l *Lobby) TeardownGameUnsafe() {
	if l.Game == nil {
		return
	}
	if l.Game.cancel != nil {
		l.Game.cancel()
	}
	l.Game = nil
}

// BroadcastUnsafe sends msg to every connected player. Assumes Mu held;
// Conn.Write never blocks so holding the lock here is safe.
func (l *Lobby) BroadcastUnsafe(msg map[string]interface{}) {
	for _, c := range l.Connections {
		c.Write(msg)
	}
}

// SnapshotUnsafe builds the lobby state payload broadcast to clients.
// Assumes Mu held.
func (l *Lobby) SnapshotUnsafe() map[string]interface{} {
	players := make([]map[string]interface{}, 0, len(l.Players))
	for _, p := range l.SortedPlayersUnsafe() {
		players = append(players, map[string]interface{}{
			"connId":     p.ConnID.String(),
			"name":       p.Name,
			"score":      p.Score,
			"wins":       p.Wins,
			"miniStatus": p.MiniStatus,
		})
	}
	return map[string]interface{}{
		"code":             l.Code,
		"status":           string(l.Status),
		"leaderId":         l.LeaderID.String(),
		"players":          players,
		"settings":         l.Settings,
		"deck":             l.DeckMeta,
		"deckSize":         len(l.Deck),
		"distractorStatus": l.DistractorStatus,
		"endVotes":         len(l.EndVotes),
	}
}

// BroadcastLobbyUnsafe broadcasts the standard lobbyUpdated snapshot.
// Assumes Mu held.
func (l *Lobby) BroadcastLobbyUnsafe() {
	l.BroadcastUnsafe(map[string]interface{}{
		"type":  "lobbyUpdated",
		"lobby": l.SnapshotUnsafe(),
	})
}
