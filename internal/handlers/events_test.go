package handlers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizdash/quizdash/internal/deckstore"
	"github.com/quizdash/quizdash/internal/distractor"
	"github.com/quizdash/quizdash/internal/game"
	"github.com/quizdash/quizdash/internal/models"
	"github.com/quizdash/quizdash/internal/session"
)

type stubGen struct {
	lists [][]string
	err   error
}

func (g *stubGen) Generate(ctx context.Context, cards []models.Flashcard) ([][]string, error) {
	return g.lists, g.err
}

// stubStore keeps published sets in a map, standing in for the Redis store.
type stubStore struct {
	sets    map[string]*models.FlashcardSet
	saveErr error
}

func newStubStore() *stubStore {
	return &stubStore{sets: make(map[string]*models.FlashcardSet)}
}

func (s *stubStore) Load(ctx context.Context, id string) (*models.FlashcardSet, error) {
	set, ok := s.sets[id]
	if !ok {
		return nil, deckstore.ErrNotFound
	}
	return set, nil
}

func (s *stubStore) Save(ctx context.Context, set *models.FlashcardSet) (string, error) {
	if s.saveErr != nil {
		return "", s.saveErr
	}
	id := uuid.NewString()
	s.sets[id] = set
	return id, nil
}

func newTestServer() *Server {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	dir := session.NewDirectory(logger)
	engine := game.NewEngine(dir, logger)
	return &Server{
		Dir:         dir,
		Engine:      engine,
		Scheduler:   game.NewScheduler(engine, logger, 0, time.Millisecond),
		Coordinator: distractor.NewCoordinator(dir, &stubGen{}, logger),
		Decks:       newStubStore(),
		Log:         logger,
	}
}

func newTestConn() *game.Conn {
	return &game.Conn{ID: uuid.New(), OutChan: make(chan map[string]interface{}, 64)}
}

// nextMsg pops the connection's next outbound message, failing the test if
// none is queued.
func nextMsg(t *testing.T, conn *game.Conn) map[string]interface{} {
	t.Helper()
	select {
	case msg := <-conn.OutChan:
		return msg
	default:
		t.Fatal("expected an outbound message")
		return nil
	}
}

func requireErrorMsg(t *testing.T, conn *game.Conn) string {
	t.Helper()
	msg := nextMsg(t, conn)
	require.Equal(t, "error", msg["type"])
	text, _ := msg["message"].(string)
	return text
}

func createLobbyFor(t *testing.T, s *Server, conn *game.Conn, nickname string) string {
	t.Helper()
	s.handleEvent(context.Background(), conn, &inbound{Type: "createLobby", Nickname: nickname})
	msg := nextMsg(t, conn)
	require.Equal(t, "lobbyData", msg["type"])
	lobby, ok := msg["lobby"].(map[string]interface{})
	require.True(t, ok)
	code, _ := lobby["code"].(string)
	require.Len(t, code, 4)
	return code
}

func TestCreateLobby(t *testing.T) {
	s := newTestServer()
	conn := newTestConn()
	code := createLobbyFor(t, s, conn, "alice")

	lob, ok := s.Dir.ByCode(code)
	require.True(t, ok)
	lob.Mu.Lock()
	assert.Equal(t, conn.ID, lob.LeaderID)
	assert.Contains(t, lob.Connections, conn.ID)
	lob.Mu.Unlock()
}

func TestCreateLobbyValidation(t *testing.T) {
	s := newTestServer()
	conn := newTestConn()

	s.handleEvent(context.Background(), conn, &inbound{Type: "createLobby"})
	assert.Contains(t, requireErrorMsg(t, conn), "nickname")

	createLobbyFor(t, s, conn, "alice")
	s.handleEvent(context.Background(), conn, &inbound{Type: "createLobby", Nickname: "alice"})
	assert.Contains(t, requireErrorMsg(t, conn), "already in a lobby")
}

func TestJoinLobby(t *testing.T) {
	s := newTestServer()
	host := newTestConn()
	code := createLobbyFor(t, s, host, "alice")

	guest := newTestConn()
	s.handleEvent(context.Background(), guest, &inbound{Type: "joinLobby", Code: code, Nickname: "bob"})

	// Both members receive the roster broadcast.
	assert.Equal(t, "lobbyUpdated", nextMsg(t, host)["type"])
	assert.Equal(t, "lobbyUpdated", nextMsg(t, guest)["type"])

	lob, ok := s.Dir.ByConn(guest.ID)
	require.True(t, ok)
	lob.Mu.Lock()
	assert.Len(t, lob.Players, 2)
	lob.Mu.Unlock()
}

func TestJoinLobbyUnknownCode(t *testing.T) {
	s := newTestServer()
	conn := newTestConn()
	s.handleEvent(context.Background(), conn, &inbound{Type: "joinLobby", Code: "ZZZZ", Nickname: "bob"})
	assert.Contains(t, requireErrorMsg(t, conn), "not found")
}

func TestUpdateSettingsLeaderOnly(t *testing.T) {
	s := newTestServer()
	host := newTestConn()
	code := createLobbyFor(t, s, host, "alice")
	guest := newTestConn()
	s.handleEvent(context.Background(), guest, &inbound{Type: "joinLobby", Code: code, Nickname: "bob"})
	drain(host)
	drain(guest)

	settings := models.DefaultSettings()
	settings.MultipleChoice = true
	s.handleEvent(context.Background(), guest, &inbound{Type: "updateSettings", Settings: &settings})
	assert.Contains(t, requireErrorMsg(t, guest), "leader")

	s.handleEvent(context.Background(), host, &inbound{Type: "updateSettings", Settings: &settings})
	assert.Equal(t, "lobbyUpdated", nextMsg(t, host)["type"])

	lob, _ := s.Dir.ByCode(code)
	lob.Mu.Lock()
	assert.True(t, lob.Settings.MultipleChoice)
	lob.Mu.Unlock()
}

func TestUpdateFlashcardReplacesDeck(t *testing.T) {
	s := newTestServer()
	conn := newTestConn()
	code := createLobbyFor(t, s, conn, "alice")

	s.handleEvent(context.Background(), conn, &inbound{
		Type:  "updateFlashcard",
		Cards: []models.Flashcard{{Question: "q", Answer: "a"}},
		Deck:  &models.DeckMeta{Name: "Unit 1"},
	})
	msg := nextMsg(t, conn)
	require.Equal(t, "lobbyUpdated", msg["type"])

	lob, _ := s.Dir.ByCode(code)
	lob.Mu.Lock()
	assert.Len(t, lob.Deck, 1)
	assert.Equal(t, "Unit 1", lob.DeckMeta.Name)
	lob.Mu.Unlock()
}

func TestStartGameGating(t *testing.T) {
	s := newTestServer()
	host := newTestConn()
	code := createLobbyFor(t, s, host, "alice")
	guest := newTestConn()
	s.handleEvent(context.Background(), guest, &inbound{Type: "joinLobby", Code: code, Nickname: "bob"})
	drain(host)
	drain(guest)

	// Non-leader cannot start.
	s.handleEvent(context.Background(), guest, &inbound{Type: "startGame"})
	assert.Contains(t, requireErrorMsg(t, guest), "leader")

	// Leader cannot start without a deck.
	s.handleEvent(context.Background(), host, &inbound{Type: "startGame"})
	assert.Contains(t, requireErrorMsg(t, host), "flashcard set")

	lob, _ := s.Dir.ByCode(code)
	lob.Mu.Lock()
	lob.Deck = []models.Flashcard{{Question: "q", Answer: "a"}}
	lob.Settings.MultipleChoice = true
	lob.Settings.RoundTimeSeconds = 0
	lob.Mu.Unlock()

	// Multiple choice without generated options is refused.
	s.handleEvent(context.Background(), host, &inbound{Type: "startGame"})
	assert.Contains(t, requireErrorMsg(t, host), "not ready")

	lob.Mu.Lock()
	lob.Settings.MultipleChoice = false
	lob.Mu.Unlock()

	s.handleEvent(context.Background(), host, &inbound{Type: "startGame"})
	require.Eventually(t, func() bool {
		lob.Mu.Lock()
		defer lob.Mu.Unlock()
		return lob.Status == game.StatusFinished
	}, 2*time.Second, 5*time.Millisecond, "a one-card game runs to completion")
}

func TestAnswerSendsCorrectGuess(t *testing.T) {
	s := newTestServer()
	conn := newTestConn()
	code := createLobbyFor(t, s, conn, "alice")

	lob, _ := s.Dir.ByCode(code)
	lob.Mu.Lock()
	lob.Deck = []models.Flashcard{{Question: "2+2", Answer: "4"}}
	lob.Mu.Unlock()

	_, ok := s.Engine.StartGame(conn.ID)
	require.True(t, ok)
	require.True(t, s.Engine.MarkOngoing(code))
	drain(conn)

	s.handleEvent(context.Background(), conn, &inbound{Type: "answer", Text: " 4 "})
	msg := nextMsg(t, conn)
	require.Equal(t, "correctGuess", msg["type"])
	assert.Contains(t, msg, "elapsedMs")
	assert.Equal(t, "lobbyUpdated", nextMsg(t, conn)["type"])
}

func TestGetLobby(t *testing.T) {
	s := newTestServer()
	conn := newTestConn()
	code := createLobbyFor(t, s, conn, "alice")

	s.handleEvent(context.Background(), conn, &inbound{Type: "getLobby", Code: code})
	msg := nextMsg(t, conn)
	require.Equal(t, "lobbyData", msg["type"])
	require.NotNil(t, msg["lobby"])

	s.handleEvent(context.Background(), conn, &inbound{Type: "getLobby", Code: "ZZZZ"})
	msg = nextMsg(t, conn)
	require.Equal(t, "lobbyData", msg["type"])
	assert.Nil(t, msg["lobby"])
}

func TestLeaveLobbyDestroysEmptyRoom(t *testing.T) {
	s := newTestServer()
	conn := newTestConn()
	code := createLobbyFor(t, s, conn, "alice")

	s.handleEvent(context.Background(), conn, &inbound{Type: "leaveLobby"})
	_, ok := s.Dir.ByCode(code)
	assert.False(t, ok)
	// No broadcast goes to the drained room.
	select {
	case msg := <-conn.OutChan:
		t.Fatalf("unexpected message after leaving: %v", msg)
	default:
	}
}

func TestLoadSet(t *testing.T) {
	s := newTestServer()
	conn := newTestConn()
	code := createLobbyFor(t, s, conn, "alice")

	store := s.Decks.(*stubStore)
	id := uuid.NewString()
	store.sets[id] = &models.FlashcardSet{
		Meta:  models.DeckMeta{Name: "Unit 2", SetID: id},
		Cards: []models.Flashcard{{Question: "q", Answer: "a"}},
	}

	s.handleEvent(context.Background(), conn, &inbound{Type: "loadSet", SetID: id})
	assert.Equal(t, "lobbyUpdated", nextMsg(t, conn)["type"])

	lob, _ := s.Dir.ByCode(code)
	lob.Mu.Lock()
	assert.Len(t, lob.Deck, 1)
	assert.Equal(t, "Unit 2", lob.DeckMeta.Name)
	lob.Mu.Unlock()
}

func TestLoadSetErrors(t *testing.T) {
	s := newTestServer()
	conn := newTestConn()
	createLobbyFor(t, s, conn, "alice")

	s.handleEvent(context.Background(), conn, &inbound{Type: "loadSet"})
	assert.Contains(t, requireErrorMsg(t, conn), "setId")

	s.handleEvent(context.Background(), conn, &inbound{Type: "loadSet", SetID: "missing"})
	assert.Contains(t, requireErrorMsg(t, conn), "no flashcard set")
}

func TestPublishSet(t *testing.T) {
	s := newTestServer()
	host := newTestConn()
	code := createLobbyFor(t, s, host, "alice")
	guest := newTestConn()
	s.handleEvent(context.Background(), guest, &inbound{Type: "joinLobby", Code: code, Nickname: "bob"})
	drain(host)
	drain(guest)

	lob, _ := s.Dir.ByCode(code)
	lob.Mu.Lock()
	lob.Deck = []models.Flashcard{{Question: "q", Answer: "a"}}
	lob.DeckMeta = models.DeckMeta{Name: "Unit 1"}
	lob.Mu.Unlock()

	// Only the leader may publish.
	s.handleEvent(context.Background(), guest, &inbound{Type: "publishSet"})
	assert.Contains(t, requireErrorMsg(t, guest), "leader")

	s.handleEvent(context.Background(), host, &inbound{Type: "publishSet"})
	msg := nextMsg(t, host)
	require.Equal(t, "setPublished", msg["type"])
	id, _ := msg["setId"].(string)
	require.NotEmpty(t, id)

	store := s.Decks.(*stubStore)
	require.Contains(t, store.sets, id)
	assert.Equal(t, "Unit 1", store.sets[id].Meta.Name)
}

func TestPublishSetRequiresDeck(t *testing.T) {
	s := newTestServer()
	conn := newTestConn()
	createLobbyFor(t, s, conn, "alice")

	s.handleEvent(context.Background(), conn, &inbound{Type: "publishSet"})
	assert.Contains(t, requireErrorMsg(t, conn), "nothing to publish")
}

func TestUnknownEventType(t *testing.T) {
	s := newTestServer()
	conn := newTestConn()
	s.handleEvent(context.Background(), conn, &inbound{Type: "bogus"})
	assert.Contains(t, requireErrorMsg(t, conn), "unknown event type")
}

func drain(conn *game.Conn) {
	for {
		select {
		case <-conn.OutChan:
		default:
			return
		}
	}
}

func TestHealthzHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthzHandler(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestListLobbiesHandler(t *testing.T) {
	s := newTestServer()
	conn := newTestConn()
	createLobbyFor(t, s, conn, "alice")

	rec := httptest.NewRecorder()
	ListLobbiesHandler(s)(rec, httptest.NewRequest(http.MethodGet, "/lobbies", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `"status":"waiting"`)
}
