package knol

import (
	"sort"
	"testing"

	"github.com/conorfennell/vocabox/internal/domain"
)

func TestNormalize(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "Lowercases and trims", input: "  La Playa \r\n", expected: "la playa"},
		{name: "Collapses inner whitespace", input: "el\tmercado   central", expected: "el mercado central"},
		{name: "Empty", input: "   ", expected: ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Normalize(tc.input); got != tc.expected {
				t.Errorf("Expected normalized string to be '%s', but got '%s'", tc.expected, got)
			}
		})
	}
}

func TestContentKey(t *testing.T) {
	t.Run("generates correct key", func(t *testing.T) {
		// sha256 of "hola"
		expected := "b221d9dbb083a7f33428d7c2a3c3198ae925614d70210e28716ccaa7cd4ddb79"
		if got := ContentKey(" Hola "); got != expected {
			t.Errorf("Expected key '%s', but got '%s'", expected, got)
		}
	})

	t.Run("only the front text matters", func(t *testing.T) {
		c1 := domain.Flashcard{Front: "el perro", Back: "the dog"}
		c2 := domain.Flashcard{Front: "El  Perro", Back: "dog", Category: "animals"}
		if Hash(c1) != Hash(c2) {
			t.Error("Expected cards with the same front text to share a key")
		}
	})

	t.Run("different fronts have different keys", func(t *testing.T) {
		if ContentKey("el gato") == ContentKey("el perro") {
			t.Error("Expected different keys for different fronts")
		}
	})
}

func TestNewID(t *testing.T) {
	a, err := NewID()
	if err != nil {
		t.Fatalf("NewID() returned an unexpected error: %v", err)
	}
	b, err := NewID()
	if err != nil {
		t.Fatalf("NewID() returned an unexpected error: %v", err)
	}
	if a == "" || a == b {
		t.Errorf("Expected two distinct non-empty ids, got '%s' and '%s'", a, b)
	}
}

func TestGroupByCategory(t *testing.T) {
	cards := []domain.Flashcard{
		{ID: "1", Category: "Food"},
		{ID: "2", Category: " food "},
		{ID: "3", Category: "transport"},
		{ID: "4"},
	}

	groups := GroupByCategory(cards)
	if len(groups["food"]) != 2 {
		t.Errorf("Expected 2 food cards, got %d", len(groups["food"]))
	}
	if len(groups["transport"]) != 1 {
		t.Errorf("Expected 1 transport card, got %d", len(groups["transport"]))
	}
	if len(groups[Uncategorized]) != 1 {
		t.Errorf("Expected 1 uncategorized card, got %d", len(groups[Uncategorized]))
	}

	cats := Categories(cards)
	sort.Strings(cats)
	if len(cats) != 2 || cats[0] != "food" || cats[1] != "transport" {
		t.Errorf("Expected [food transport], got %v", cats)
	}
}
