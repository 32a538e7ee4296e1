package leitner

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/conorfennell/vocabox/internal/domain"
	"github.com/conorfennell/vocabox/internal/knol"
)

const (
	MinBox = 1
	MaxBox = 5
)

const day = 24 * time.Hour

// intervals is indexed by box-1.
var intervals = [MaxBox]time.Duration{
	1 * day,
	2 * day,
	5 * day,
	10 * day,
	30 * day,
}

// ErrInvalidBox is returned when a box lies outside [MinBox, MaxBox].
var ErrInvalidBox = errors.New("invalid box")

// BoxError carries the offending box value.
type BoxError struct {
	Box int
}

func (e *BoxError) Error() string {
	return fmt.Sprintf("invalid box %d: must be between %d and %d", e.Box, MinBox, MaxBox)
}

func (e *BoxError) Unwrap() error { return ErrInvalidBox }

// Clock is the time source used for every scheduling decision.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a plain function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock returns a Clock backed by time.Now.
func SystemClock() Clock { return ClockFunc(time.Now) }

// FixedClock always reports t.
func FixedClock(t time.Time) Clock {
	return ClockFunc(func() time.Time { return t })
}

// Intervals returns a copy of the review interval table, indexed by box-1.
func Intervals() [MaxBox]time.Duration {
	return intervals
}

// Interval returns the review interval for box.
func Interval(box int) (time.Duration, error) {
	if box < MinBox || box > MaxBox {
		return 0, &BoxError{Box: box}
	}
	return intervals[box-1], nil
}

// Scheduler moves cards between boxes. It holds no card state; the zero
// value is not usable, build one with NewScheduler.
type Scheduler struct {
	clock Clock
}

// NewScheduler returns a Scheduler reading time from clock. A nil clock
// falls back to the system clock.
func NewScheduler(clock Clock) *Scheduler {
	if clock == nil {
		clock = SystemClock()
	}
	return &Scheduler{clock: clock}
}

// Now reports the scheduler's current time.
func (s *Scheduler) Now() time.Time {
	return s.clock.Now()
}

// ComputeNextReview returns now plus the interval for box.
func (s *Scheduler) ComputeNextReview(box int) (time.Time, error) {
	return nextReviewAt(s.clock.Now(), box)
}

func nextReviewAt(now time.Time, box int) (time.Time, error) {
	interval, err := Interval(box)
	if err != nil {
		return time.Time{}, err
	}
	return now.Add(interval), nil
}

// NewCard builds a card in box 1, due one interval from now.
func (s *Scheduler) NewCard(front, back, category string, source *domain.SourceContext) (domain.Flashcard, error) {
	id, err := knol.NewID()
	if err != nil {
		return domain.Flashcard{}, fmt.Errorf("failed to generate card id: %w", err)
	}
	now := s.clock.Now()
	next, err := nextReviewAt(now, MinBox)
	if err != nil {
		return domain.Flashcard{}, err
	}
	return domain.Flashcard{
		ID:          id,
		Front:       front,
		Back:        back,
		Box:         MinBox,
		NextReview:  next,
		ReviewCount: 0,
		Category:    knol.NormalizeCategory(category),
		Source:      cloneSource(source),
		CreatedAt:   now,
	}, nil
}

// ApplyReview returns the card's state after a review. A correct answer
// promotes one box (capped at MaxBox) and counts the review; an incorrect
// answer sends the card back to box 1. The input card is not modified.
func (s *Scheduler) ApplyReview(card domain.Flashcard, correct bool) (domain.Flashcard, error) {
	if err := Validate(card); err != nil {
		return domain.Flashcard{}, err
	}

	now := s.clock.Now()
	updated := card
	updated.Source = cloneSource(card.Source)
	updated.LastReviewed = &now

	if correct {
		updated.Box = min(card.Box+1, MaxBox)
		updated.ReviewCount = card.ReviewCount + 1
	} else {
		updated.Box = MinBox
	}

	next, err := nextReviewAt(now, updated.Box)
	if err != nil {
		return domain.Flashcard{}, err
	}
	updated.NextReview = next
	return updated, nil
}

// Validate reports whether card is in a state the scheduler can work with.
func Validate(card domain.Flashcard) error {
	if card.Box < MinBox || card.Box > MaxBox {
		return fmt.Errorf("card %s: %w", card.ID, &BoxError{Box: card.Box})
	}
	if card.NextReview.IsZero() {
		return fmt.Errorf("card %s: next review is not set", card.ID)
	}
	return nil
}

// IsDue reports whether card's scheduled review time has been reached.
func IsDue(card domain.Flashcard, now time.Time) bool {
	return !card.NextReview.After(now)
}

// DueCards returns the due subset of cards, earliest first.
func DueCards(cards []domain.Flashcard, now time.Time) []domain.Flashcard {
	due := lo.Filter(cards, func(c domain.Flashcard, _ int) bool {
		return IsDue(c, now)
	})
	sort.SliceStable(due, func(i, j int) bool {
		return due[i].NextReview.Before(due[j].NextReview)
	})
	return due
}

// GetStats counts cards per box and how many are due. Every card must have
// a valid box so that the per-box counts partition the total.
func GetStats(cards []domain.Flashcard, now time.Time) (domain.Stats, error) {
	var stats domain.Stats
	for _, c := range cards {
		if c.Box < MinBox || c.Box > MaxBox {
			return domain.Stats{}, fmt.Errorf("card %s: %w", c.ID, &BoxError{Box: c.Box})
		}
		stats.Total++
		stats.PerBox[c.Box]++
		if IsDue(c, now) {
			stats.DueCount++
		}
	}
	return stats, nil
}

func cloneSource(src *domain.SourceContext) *domain.SourceContext {
	if src == nil {
		return nil
	}
	c := *src
	return &c
}
