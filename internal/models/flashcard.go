package models

// Flashcard is a single question/answer pair within a deck. Distractors are
// incorrect multiple-choice options, tracked independently per orientation so
// that flipping the question/answer sides does not lose generated data.
type Flashcard struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`

	// Up to 3 distractors for the definition side (shown when asking by term)
	// and for the term side (shown when asking by definition).
	DefinitionDistractors []string `json:"definitionDistractors,omitempty"`
	TermDistractors       []string `json:"termDistractors,omitempty"`

	// Generation-completeness flags per orientation.
	DefinitionDistractorsReady bool `json:"definitionDistractorsReady"`
	TermDistractorsReady       bool `json:"termDistractorsReady"`
}

// Distractors returns the distractor list for the given orientation.
func (f *Flashcard) Distractors(byTerm bool) []string {
	if byTerm {
		return f.TermDistractors
	}
	return f.DefinitionDistractors
}

// DeckMeta describes where the lobby's current deck came from.
type DeckMeta struct {
	Name        string `json:"name"`
	SetID       string `json:"setId,omitempty"`
	Description string `json:"description,omitempty"`
	Author      string `json:"author,omitempty"`
}

// FlashcardSet is the published form of a deck, as stored in the set store.
type FlashcardSet struct {
	Meta  DeckMeta    `json:"meta"`
	Cards []Flashcard `json:"cards"`
}
