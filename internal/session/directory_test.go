package session

import (
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizdash/quizdash/internal/game"
	"github.com/quizdash/quizdash/internal/models"
)

func newTestDirectory() *Directory {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewDirectory(logger)
}

func TestCreateLobbyRegistersCreator(t *testing.T) {
	d := newTestDirectory()
	alice := uuid.New()

	lob := d.CreateLobby(alice, "alice")
	require.NotNil(t, lob)
	assert.Len(t, lob.Code, 4)
	assert.Equal(t, alice, lob.LeaderID)
	assert.Equal(t, game.StatusWaiting, lob.Status)

	byCode, ok := d.ByCode(lob.Code)
	require.True(t, ok)
	assert.Same(t, lob, byCode)

	byConn, ok := d.ByConn(alice)
	require.True(t, ok)
	assert.Same(t, lob, byConn)
}

func TestCreateLobbyCodesAreUnique(t *testing.T) {
	d := newTestDirectory()
	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		lob := d.CreateLobby(uuid.New(), "p")
		_, dup := seen[lob.Code]
		require.False(t, dup, "code %s allocated twice", lob.Code)
		seen[lob.Code] = struct{}{}
	}
}

func TestAddPlayerRoundTrip(t *testing.T) {
	d := newTestDirectory()
	alice, bob := uuid.New(), uuid.New()
	lob := d.CreateLobby(alice, "alice")

	joined, ok := d.AddPlayer(lob.Code, bob, "bob")
	require.True(t, ok)
	assert.Same(t, lob, joined)

	byConn, ok := d.ByConn(bob)
	require.True(t, ok)
	assert.Same(t, lob, byConn)

	lob.Mu.Lock()
	assert.Len(t, lob.Players, 2)
	lob.Mu.Unlock()

	// Joining the same lobby twice changes nothing.
	_, ok = d.AddPlayer(lob.Code, bob, "bob")
	require.True(t, ok)
	lob.Mu.Lock()
	assert.Len(t, lob.Players, 2)
	lob.Mu.Unlock()
}

func TestAddPlayerUnknownCode(t *testing.T) {
	d := newTestDirectory()
	_, ok := d.AddPlayer("ZZZZ", uuid.New(), "bob")
	assert.False(t, ok)
}

func TestRemovePlayerKeepsLobbyAlive(t *testing.T) {
	d := newTestDirectory()
	alice, bob := uuid.New(), uuid.New()
	lob := d.CreateLobby(alice, "alice")
	_, ok := d.AddPlayer(lob.Code, bob, "bob")
	require.True(t, ok)

	removed, empty, ok := d.RemovePlayer(alice)
	require.True(t, ok)
	assert.False(t, empty)
	assert.Same(t, lob, removed)

	_, ok = d.ByConn(alice)
	assert.False(t, ok, "a removed connection no longer resolves")

	lob.Mu.Lock()
	assert.Equal(t, bob, lob.LeaderID, "leadership moved to the remaining player")
	lob.Mu.Unlock()
}

func TestLastPlayerLeavingDestroysLobby(t *testing.T) {
	d := newTestDirectory()
	var destroyed []string
	d.OnDestroy = func(code string) { destroyed = append(destroyed, code) }

	alice := uuid.New()
	lob := d.CreateLobby(alice, "alice")
	code := lob.Code

	_, empty, ok := d.RemovePlayer(alice)
	require.True(t, ok)
	assert.True(t, empty)

	_, ok = d.ByCode(code)
	assert.False(t, ok)
	_, ok = d.ByConn(alice)
	assert.False(t, ok)
	assert.Equal(t, []string{code}, destroyed)

	// A second remove for the same connection is a silent miss.
	_, _, ok = d.RemovePlayer(alice)
	assert.False(t, ok)
}

func TestDestroyCancelsRunningGame(t *testing.T) {
	d := newTestDirectory()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	e := game.NewEngine(d, logger)

	alice := uuid.New()
	lob := d.CreateLobby(alice, "alice")
	lob.Mu.Lock()
	lob.Deck = []models.Flashcard{{Question: "q", Answer: "a"}}
	lob.Mu.Unlock()

	_, ok := e.StartGame(alice)
	require.True(t, ok)
	cancelled := false
	require.True(t, e.AttachCancel(lob.Code, func() { cancelled = true }))

	d.Destroy(lob.Code)
	assert.True(t, cancelled, "destroying a lobby stops its scheduler")
	lob.Mu.Lock()
	assert.Nil(t, lob.Game)
	lob.Mu.Unlock()
}

func TestPromoteLeader(t *testing.T) {
	d := newTestDirectory()
	alice, bob := uuid.New(), uuid.New()
	lob := d.CreateLobby(alice, "alice")
	_, ok := d.AddPlayer(lob.Code, bob, "bob")
	require.True(t, ok)

	_, ok = d.PromoteLeader(lob.Code, bob)
	require.True(t, ok)
	lob.Mu.Lock()
	assert.Equal(t, bob, lob.LeaderID)
	lob.Mu.Unlock()

	// Promoting a stranger leaves leadership alone.
	_, ok = d.PromoteLeader(lob.Code, uuid.New())
	require.True(t, ok)
	lob.Mu.Lock()
	assert.Equal(t, bob, lob.LeaderID)
	lob.Mu.Unlock()

	_, ok = d.PromoteLeader("ZZZZ", bob)
	assert.False(t, ok)
}
