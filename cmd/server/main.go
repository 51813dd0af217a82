// cmd/server/main.go
package main

import (
	"log"
	"net/http"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/quizdash/quizdash/internal/config"
	"github.com/quizdash/quizdash/internal/deckstore"
	"github.com/quizdash/quizdash/internal/distractor"
	"github.com/quizdash/quizdash/internal/game"
	"github.com/quizdash/quizdash/internal/handlers"
	"github.com/quizdash/quizdash/internal/middleware"
	"github.com/quizdash/quizdash/internal/session"
)

func main() {
	cfg := config.Load()

	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	decks, err := deckstore.Connect(cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		log.Fatalf("deck store: %v", err)
	}

	dir := session.NewDirectory(logger)
	engine := game.NewEngine(dir, logger)
	scheduler := game.NewScheduler(engine, logger, cfg.CountdownSeconds, time.Duration(cfg.ResultsSeconds)*time.Second)
	coordinator := distractor.NewCoordinator(dir, distractor.NewHTTPGenerator(cfg.DistractorAPIURL), logger)

	// Distractor tracking never outlives its lobby or its game.
	engine.OnTeardown = coordinator.Cleanup
	dir.OnDestroy = coordinator.Cleanup

	srv := &handlers.Server{
		Dir:         dir,
		Engine:      engine,
		Scheduler:   scheduler,
		Coordinator: coordinator,
		Decks:       decks,
		Log:         logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", handlers.HealthzHandler)
	mux.Handle("/lobbies", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.ListLobbiesHandler(srv),
	)))
	mux.Handle("/ws", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.WSHandler(logger, srv),
	)))

	addr := ":" + cfg.Port
	logger.Infof("Running on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
