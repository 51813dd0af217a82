// internal/handlers/ws.go
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/quizdash/quizdash/internal/game"
	"github.com/quizdash/quizdash/internal/models"
)

// inbound is the envelope for every client->server event. Unused fields are
// simply absent for a given event type.
type inbound struct {
	Type string `json:"type"`

	Nickname   string `json:"nickname,omitempty"`
	Code       string `json:"code,omitempty"`
	Text       string `json:"text,omitempty"`
	SetID      string `json:"setId,omitempty"`
	NextLeader string `json:"nextLeaderConnId,omitempty"`

	Settings *models.Settings   `json:"settings,omitempty"`
	Cards    []models.Flashcard `json:"cards,omitempty"`
	Deck     *models.DeckMeta   `json:"deck,omitempty"`
}

// WSHandler upgrades the connection, assigns it a connection id, and pumps
// events until the client goes away. Leaving the read loop for any reason
// removes the player from their lobby.
func WSHandler(logger *logrus.Logger, s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"quizdash"},
			OriginPatterns: []string{"*"}, // Adjust in production
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != "quizdash" {
			c.Close(BadSubprotocolError, "client must speak the quizdash subprotocol")
			return
		}

		connID := uuid.New()
		ctx, cancel := context.WithCancel(r.Context())
		conn := &game.Conn{
			ID:      connID,
			Cancel:  cancel,
			OutChan: make(chan map[string]interface{}, 16),
		}
		logger.Infof("conn %s: connected from %s", connID, r.RemoteAddr)

		go writePump(ctx, c, conn, logger)
		readPump(ctx, c, conn, s, logger)

		// readPump exited: the socket is gone, remove the player from
		// whatever lobby it was in and notify the survivors.
		cancel()
		s.removeAndNotify(conn)
		logger.Infof("conn %s: disconnected", connID)
	}
}

// readPump decodes inbound events and dispatches them until the connection
// closes or the context is cancelled.
func readPump(ctx context.Context, c *websocket.Conn, conn *game.Conn, s *Server, logger *logrus.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		typ, msg, err := c.Read(ctx)
		if err != nil {
			closeStatus := websocket.CloseStatus(err)
			if closeStatus == websocket.StatusNormalClosure || closeStatus == websocket.StatusGoingAway {
				logger.Infof("conn %s: closed normally", conn.ID)
			} else if !strings.Contains(err.Error(), "context canceled") {
				logger.Warnf("conn %s: read error: %v", conn.ID, err)
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		var ev inbound
		if err := json.Unmarshal(msg, &ev); err != nil {
			logger.Warnf("conn %s: invalid json: %v", conn.ID, err)
			conn.WriteError("invalid JSON")
			continue
		}
		s.handleEvent(ctx, conn, &ev)
	}
}

// writePump drains the connection's OutChan onto the socket and keeps the
// connection alive with periodic pings.
func writePump(ctx context.Context, c *websocket.Conn, conn *game.Conn, logger *logrus.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-conn.OutChan:
			if !ok {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				logger.Warnf("conn %s: failed to marshal outgoing msg: %v", conn.ID, err)
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				logger.Warnf("conn %s: write failed: %v", conn.ID, err)
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				logger.Warnf("conn %s: ping failed, assuming disconnect: %v", conn.ID, err)
				return
			}
		}
	}
}
