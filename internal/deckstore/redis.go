// internal/deckstore/redis.go
package deckstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/quizdash/quizdash/internal/models"
)

// ErrNotFound is returned when no set exists under the requested id.
var ErrNotFound = errors.New("flashcard set not found")

const keyPrefix = "quizdash:set:"

// Store is the opaque document store for published flashcard sets, keyed by
// set id. Lobby gameplay never depends on it; load/save failures surface as
// error replies to the requesting client only.
type Store struct {
	rdb *redis.Client
}

// Connect opens a Redis client and verifies connectivity.
func Connect(addr string, db int) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	return &Store{rdb: rdb}, nil
}

// Save stores the set as a JSON document under a fresh id and returns the id.
func (s *Store) Save(ctx context.Context, set *models.FlashcardSet) (string, error) {
	id := uuid.NewString()
	set.Meta.SetID = id
	data, err := json.Marshal(set)
	if err != nil {
		return "", fmt.Errorf("marshal flashcard set: %w", err)
	}
	if err := s.rdb.Set(ctx, keyPrefix+id, data, 0).Err(); err != nil {
		return "", fmt.Errorf("store flashcard set %s: %w", id, err)
	}
	return id, nil
}

// Load fetches a set by id. Returns ErrNotFound if the id is unknown.
func (s *Store) Load(ctx context.Context, id string) (*models.FlashcardSet, error) {
	data, err := s.rdb.Get(ctx, keyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetch flashcard set %s: %w", id, err)
	}
	var set models.FlashcardSet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("decode flashcard set %s: %w", id, err)
	}
	return &set, nil
}
