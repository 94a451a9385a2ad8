package dictionary

import (
	"encoding/json"
	"fmt"
	"os"
)

// Difficulty levels a term may carry.
const (
	DifficultyBasic    = "basic"
	DifficultyAdvanced = "advanced"
)

// Term is a single glossary entry as supplied by the content-management side.
type Term struct {
	ID            string   `json:"id"`
	Term          string   `json:"term"`
	Definition    string   `json:"definition"`
	Pronunciation string   `json:"pronunciation,omitempty"`
	Aliases       []string `json:"also_known_as,omitempty"`
	RelatedTerms  []string `json:"related_terms,omitempty"`
	Category      string   `json:"category,omitempty"`
	Difficulty    string   `json:"difficulty,omitempty"`
	Example       string   `json:"example,omitempty"`
}

// IsBasic reports whether the term should be shown to readers who only want basic terms.
// Terms without a difficulty are treated as basic.
func (t Term) IsBasic() bool {
	return t.Difficulty != DifficultyAdvanced
}

// LoadTerms reads a JSON file holding either {"terms": [...]} or a bare array of terms.
func LoadTerms(path string) ([]Term, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var wrapped struct {
		Terms []Term `json:"terms"`
	}
	// Try parsing as full object wrapper first { "terms": [...] }
	dec := json.NewDecoder(f)
	if err := dec.Decode(&wrapped); err == nil && len(wrapped.Terms) > 0 {
		return wrapped.Terms, nil
	}

	// Reset and try as array [...]
	if _, err := f.Seek(0, 0); err != nil {
		return nil, err
	}
	var terms []Term
	dec = json.NewDecoder(f)
	if err := dec.Decode(&terms); err != nil {
		return nil, fmt.Errorf("failed to parse terms as object or array: %w", err)
	}
	return terms, nil
}
