// internal/session/directory.go
package session

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/quizdash/quizdash/internal/game"
	"github.com/quizdash/quizdash/internal/roomcode"
)

// Directory is the single source of truth for which lobbies exist and which
// connection belongs to which lobby. It owns two maps: room code -> Lobby,
// and connection id -> room code (the reverse index). Every operation that
// changes a connection's membership updates the reverse index in the same
// step; a stale reverse index makes later lookups silently miss or target
// the wrong lobby, so membership changes are never split across calls.
type Directory struct {
	mu      sync.Mutex
	codes   *roomcode.Allocator
	lobbies map[string]*game.Lobby
	conns   map[uuid.UUID]string

	log *logrus.Logger

	// OnDestroy runs after a lobby is removed, with its code. Wired to the
	// distractor coordinator so tracking entries never outlive their lobby.
	OnDestroy func(code string)
}

// NewDirectory builds an empty directory with its own code allocator.
func NewDirectory(log *logrus.Logger) *Directory {
	return &Directory{
		codes:   roomcode.NewAllocator(nil),
		lobbies: make(map[string]*game.Lobby),
		conns:   make(map[uuid.UUID]string),
		log:     log,
	}
}

// CreateLobby allocates a room code, constructs a waiting lobby with the
// creator as its only player and leader, and registers the creator's
// connection.
func (d *Directory) CreateLobby(connID uuid.UUID, name string) *game.Lobby {
	d.mu.Lock()
	defer d.mu.Unlock()
	code := d.codes.Allocate()
	lob := game.NewLobby(code, connID, name)
	d.lobbies[code] = lob
	d.conns[connID] = code
	d.log.Infof("lobby %s: created by %s (%s)", code, name, connID)
	return lob
}

// ByCode resolves a lobby by its room code.
func (d *Directory) ByCode(code string) (*game.Lobby, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	lob, ok := d.lobbies[code]
	return lob, ok
}

// ByConn resolves the lobby a connection currently belongs to.
func (d *Directory) ByConn(connID uuid.UUID) (*game.Lobby, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	code, ok := d.conns[connID]
	if !ok {
		return nil, false
	}
	lob, ok := d.lobbies[code]
	return lob, ok
}

// Track registers a connection as belonging to a room code.
func (d *Directory) Track(connID uuid.UUID, code string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.conns[connID] = code
}

// Untrack removes a connection from the reverse index. No-op if absent.
func (d *Directory) Untrack(connID uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.conns, connID)
}

// Lobbies returns all active lobbies, for diagnostics.
func (d *Directory) Lobbies() []*game.Lobby {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*game.Lobby, 0, len(d.lobbies))
	for _, lob := range d.lobbies {
		out = append(out, lob)
	}
	return out
}

// AddPlayer joins a connection to the lobby for code. Idempotent on a
// duplicate connID. Returns false if no such lobby exists.
func (d *Directory) AddPlayer(code string, connID uuid.UUID, name string) (*game.Lobby, bool) {
	lob, ok := d.ByCode(code)
	if !ok {
		return nil, false
	}
	lob.Mu.Lock()
	lob.AddPlayerUnsafe(connID, name)
	lob.Mu.Unlock()
	d.Track(connID, code)
	return lob, true
}

// RemovePlayer removes a connection's player from its lobby and untracks the
// connection. empty reports that the roster drained and the lobby was
// destroyed, so the caller must not broadcast to the dead room.
func (d *Directory) RemovePlayer(connID uuid.UUID) (lob *game.Lobby, empty, ok bool) {
	lob, ok = d.ByConn(connID)
	if !ok {
		return nil, false, false
	}
	d.Untrack(connID)

	lob.Mu.Lock()
	remaining := lob.RemovePlayerUnsafe(connID)
	lob.Mu.Unlock()

	if remaining == 0 {
		d.Destroy(lob.Code)
		return lob, true, true
	}
	return lob, false, true
}

// PromoteLeader reassigns the lobby's leader. Silent no-op if the target is
// not a current member.
func (d *Directory) PromoteLeader(code string, next uuid.UUID) (*game.Lobby, bool) {
	lob, ok := d.ByCode(code)
	if !ok {
		return nil, false
	}
	lob.Mu.Lock()
	lob.PromoteLeaderUnsafe(next)
	lob.Mu.Unlock()
	return lob, true
}

// Destroy removes a lobby, releases its room code for reuse, purges any
// reverse-index entries still pointing at it, and cancels a running game
// loop. Called when the last player leaves.
func (d *Directory) Destroy(code string) {
	d.mu.Lock()
	lob, ok := d.lobbies[code]
	if !ok {
		d.mu.Unlock()
		return
	}
	delete(d.lobbies, code)
	d.codes.Release(code)
	for id, c := range d.conns {
		if c == code {
			delete(d.conns, id)
		}
	}
	d.mu.Unlock()

	lob.Mu.Lock()
	lob.TeardownGameUnsafe()
	lob.Mu.Unlock()

	if d.OnDestroy != nil {
		d.OnDestroy(code)
	}
	d.log.Infof("lobby %s: destroyed", code)
}
