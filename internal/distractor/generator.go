// internal/distractor/generator.go
package distractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/quizdash/quizdash/internal/models"
)

// HTTPGenerator calls a distractor-generation service over HTTP. The service
// receives the deck's question/answer pairs and returns one 3-string list
// per card.
type HTTPGenerator struct {
	URL    string
	Client *http.Client
}

// NewHTTPGenerator builds a generator for the given endpoint.
func NewHTTPGenerator(url string) *HTTPGenerator {
	return &HTTPGenerator{
		URL:    url,
		Client: &http.Client{Timeout: 60 * time.Second},
	}
}

type generateRequest struct {
	Cards []generateCard `json:"cards"`
}

type generateCard struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type generateResponse struct {
	Distractors [][]string `json:"distractors"`
}

// Generate posts the cards and decodes the distractor lists. The response
// shape is validated by the coordinator, not here; this only surfaces
// transport and decode failures.
func (g *HTTPGenerator) Generate(ctx context.Context, cards []models.Flashcard) ([][]string, error) {
	req := generateRequest{Cards: make([]generateCard, len(cards))}
	for i, c := range cards {
		req.Cards[i] = generateCard{Question: c.Question, Answer: c.Answer}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal generate request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build generate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.Client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call distractor service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("distractor service returned %s", resp.Status)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode generate response: %w", err)
	}
	return out.Distractors, nil
}
