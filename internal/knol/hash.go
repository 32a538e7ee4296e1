package knol

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"unicode"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/samber/lo"

	"github.com/conorfennell/vocabox/internal/domain"
)

// Uncategorized is the group used for cards without a category.
const Uncategorized = "uncategorized"

// Normalize cleans a card's front text: lowercased, trimmed, CRLF folded
// and inner runs of whitespace collapsed to a single space.
func Normalize(front string) string {
	p := strings.ToLower(front)
	p = strings.ReplaceAll(p, "\r\n", "\n")
	return strings.Join(strings.FieldsFunc(p, unicode.IsSpace), " ")
}

// ContentKey is the identity used to deduplicate cards on save. Two cards
// whose front text normalizes to the same string share a key.
func ContentKey(front string) string {
	sum := sha256.Sum256([]byte(Normalize(front)))
	return fmt.Sprintf("%x", sum)
}

// Hash returns the content key of card.
func Hash(card domain.Flashcard) string {
	return ContentKey(card.Front)
}

// NewID returns a fresh opaque card identifier.
func NewID() (string, error) {
	return gonanoid.New()
}

// NormalizeCategory trims and lowercases a category label.
func NormalizeCategory(category string) string {
	return strings.ToLower(strings.TrimSpace(category))
}

// GroupByCategory buckets cards by normalized category. Cards without one
// land under Uncategorized.
func GroupByCategory(cards []domain.Flashcard) map[string][]domain.Flashcard {
	return lo.GroupBy(cards, func(c domain.Flashcard) string {
		if cat := NormalizeCategory(c.Category); cat != "" {
			return cat
		}
		return Uncategorized
	})
}

// Categories lists the distinct normalized categories present in cards.
func Categories(cards []domain.Flashcard) []string {
	return lo.Uniq(lo.FilterMap(cards, func(c domain.Flashcard, _ int) (string, bool) {
		cat := NormalizeCategory(c.Category)
		return cat, cat != ""
	}))
}
