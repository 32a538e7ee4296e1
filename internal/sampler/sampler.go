// Package sampler picks quiz decks weighted toward weak cards and turns
// cards into multiple-choice questions.
package sampler

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/samber/lo"

	"github.com/conorfennell/vocabox/internal/domain"
	"github.com/conorfennell/vocabox/internal/knol"
)

const (
	// MinDeckSize is the smallest deck that can yield a full set of options.
	MinDeckSize = 4
	// Distractors is the number of wrong options per question.
	Distractors = 3

	lowShare = 0.6
	midShare = 0.3
)

// ErrInsufficientDeck is returned when a deck is too small to build a quiz.
var ErrInsufficientDeck = errors.New("insufficient deck")

// DeckSizeError reports how many cards were available against how many
// were required.
type DeckSizeError struct {
	Have int
	Need int
}

func (e *DeckSizeError) Error() string {
	return fmt.Sprintf("deck has %d cards, at least %d are needed", e.Have, e.Need)
}

func (e *DeckSizeError) Unwrap() error { return ErrInsufficientDeck }

// Sampler draws cards using its own random source. It is not safe for
// concurrent use.
type Sampler struct {
	rng *rand.Rand
}

// New returns a Sampler drawing from rng. A nil rng gets a randomly
// seeded PCG source.
func New(rng *rand.Rand) *Sampler {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Sampler{rng: rng}
}

// Allocation is the per-stratum target for a quiz of a given size.
type Allocation struct {
	Low  int
	Mid  int
	High int
}

// Allocate splits target between the low (box 1-2), mid (box 3) and high
// (box 4-5) strata. Low and mid are rounded up, in that order, and high
// receives whatever is left, which may be zero.
func Allocate(target int) Allocation {
	if target <= 0 {
		return Allocation{}
	}
	low := min(int(math.Ceil(float64(target)*lowShare)), target)
	mid := min(int(math.Ceil(float64(target)*midShare)), target-low)
	return Allocation{Low: low, Mid: mid, High: target - low - mid}
}

type strata struct {
	low, mid, high []domain.Flashcard
}

func partition(cards []domain.Flashcard) strata {
	var s strata
	for _, c := range cards {
		switch {
		case c.Box <= 2:
			s.low = append(s.low, c)
		case c.Box == 3:
			s.mid = append(s.mid, c)
		default:
			s.high = append(s.high, c)
		}
	}
	return s
}

// SelectQuizDeck returns min(target, distinct cards) cards with no repeated
// ids. Each stratum contributes up to its allocation, any shortfall is
// filled from the cards not yet picked, and the result is shuffled.
func (s *Sampler) SelectQuizDeck(all []domain.Flashcard, target int) []domain.Flashcard {
	pool := lo.UniqBy(all, func(c domain.Flashcard) string { return c.ID })
	n := min(target, len(pool))
	if n <= 0 {
		return []domain.Flashcard{}
	}

	alloc := Allocate(n)
	st := partition(pool)

	selected := make([]domain.Flashcard, 0, n)
	selected = append(selected, s.sample(st.low, alloc.Low)...)
	selected = append(selected, s.sample(st.mid, alloc.Mid)...)
	selected = append(selected, s.sample(st.high, alloc.High)...)

	if short := n - len(selected); short > 0 {
		picked := lo.KeyBy(selected, func(c domain.Flashcard) string { return c.ID })
		rest := lo.Filter(pool, func(c domain.Flashcard, _ int) bool {
			_, ok := picked[c.ID]
			return !ok
		})
		selected = append(selected, s.sample(rest, short)...)
	}

	s.rng.Shuffle(len(selected), func(i, j int) {
		selected[i], selected[j] = selected[j], selected[i]
	})
	return selected
}

// sample draws up to k cards from cards without replacement. The input
// slice is left untouched.
func (s *Sampler) sample(cards []domain.Flashcard, k int) []domain.Flashcard {
	k = min(k, len(cards))
	if k <= 0 {
		return nil
	}
	perm := s.rng.Perm(len(cards))
	out := make([]domain.Flashcard, k)
	for i := range k {
		out[i] = cards[perm[i]]
	}
	return out
}

// BuildQuestion turns card into a multiple-choice question whose wrong
// options are other cards' translations drawn from pool. Candidates that
// repeat the correct answer or each other are skipped, so a small or
// repetitive pool yields fewer than Distractors wrong options.
func (s *Sampler) BuildQuestion(card domain.Flashcard, pool []domain.Flashcard) domain.Question {
	seen := map[string]struct{}{knol.Normalize(card.Back): {}}
	var candidates []string
	for _, idx := range s.rng.Perm(len(pool)) {
		other := pool[idx]
		if other.ID == card.ID {
			continue
		}
		key := knol.Normalize(other.Back)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		candidates = append(candidates, other.Back)
		if len(candidates) == Distractors {
			break
		}
	}

	options := append([]string{card.Back}, candidates...)
	s.rng.Shuffle(len(options), func(i, j int) {
		options[i], options[j] = options[j], options[i]
	})

	return domain.Question{
		CardID:        card.ID,
		Prompt:        card.Front,
		CorrectAnswer: card.Back,
		Options:       options,
	}
}

// BuildQuiz selects up to size cards from deck and builds one question per
// card, drawing distractors from the whole deck. Cards repeating an id
// count once towards MinDeckSize.
func (s *Sampler) BuildQuiz(deck []domain.Flashcard, size int) ([]domain.Flashcard, []domain.Question, error) {
	pool := lo.UniqBy(deck, func(c domain.Flashcard) string { return c.ID })
	if len(pool) < MinDeckSize {
		return nil, nil, &DeckSizeError{Have: len(pool), Need: MinDeckSize}
	}
	if size <= 0 {
		return nil, nil, fmt.Errorf("quiz size must be positive, got %d", size)
	}

	selected := s.SelectQuizDeck(pool, size)
	questions := lo.Map(selected, func(c domain.Flashcard, _ int) domain.Question {
		return s.BuildQuestion(c, pool)
	})
	return selected, questions, nil
}
