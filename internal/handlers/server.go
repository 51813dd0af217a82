// internal/handlers/server.go
package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/quizdash/quizdash/internal/distractor"
	"github.com/quizdash/quizdash/internal/game"
	"github.com/quizdash/quizdash/internal/models"
	"github.com/quizdash/quizdash/internal/session"
)

// SetStore is the published-set storage the handlers need. Satisfied by
// deckstore.Store; Load reports a missing id with deckstore.ErrNotFound.
type SetStore interface {
	Load(ctx context.Context, id string) (*models.FlashcardSet, error)
	Save(ctx context.Context, set *models.FlashcardSet) (string, error)
}

// Server bundles the core components the event handlers act on.
type Server struct {
	Dir         *session.Directory
	Engine      *game.Engine
	Scheduler   *game.Scheduler
	Coordinator *distractor.Coordinator
	Decks       SetStore
	Log         *logrus.Logger
}

// HealthzHandler is a trivial liveness endpoint.
func HealthzHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// ListLobbiesHandler returns every active lobby's snapshot, for diagnostics.
func ListLobbiesHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lobbies := s.Dir.Lobbies()
		out := make([]map[string]interface{}, 0, len(lobbies))
		for _, lob := range lobbies {
			lob.Mu.Lock()
			out = append(out, lob.SnapshotUnsafe())
			lob.Mu.Unlock()
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	}
}
