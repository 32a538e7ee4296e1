// Package quiz runs multiple-choice review sessions and feeds their
// outcomes back into the Leitner scheduler.
package quiz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/conorfennell/vocabox/internal/domain"
	"github.com/conorfennell/vocabox/internal/knol"
	"github.com/conorfennell/vocabox/internal/sampler"
	"github.com/conorfennell/vocabox/internal/storage"
)

// State is the lifecycle stage of a session.
type State int

const (
	NotStarted State = iota
	InProgress
	Finished
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case InProgress:
		return "in_progress"
	case Finished:
		return "finished"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var (
	ErrSessionNotStarted = errors.New("quiz session not started")
	ErrSessionStarted    = errors.New("quiz session already started")
	ErrSessionFinished   = errors.New("quiz session finished")
	ErrSessionOpen       = errors.New("quiz session still in progress")
	ErrAlreadyApplied    = errors.New("quiz outcomes already applied")
)

// Reviewer computes a card's next state after an answer.
type Reviewer interface {
	ApplyReview(card domain.Flashcard, correct bool) (domain.Flashcard, error)
}

// CardWriter persists reviewed cards.
type CardWriter interface {
	Update(ctx context.Context, card domain.Flashcard) error
	InsertReviewLog(ctx context.Context, log domain.ReviewLog) error
}

// Outcome is the recorded answer to one question.
type Outcome struct {
	CardID   string
	Answer   string
	Expected string
	Correct  bool
	applied  bool
	skipped  bool // card no longer stored
}

// Session walks through a fixed list of questions, one card each.
// It is safe for concurrent use.
type Session struct {
	ID string

	mu        sync.Mutex
	deck      []domain.Flashcard
	questions []domain.Question
	state     State
	current   int
	score     int
	outcomes  []Outcome
	applied   bool
}

// New builds a session over deck, where questions[i] asks about deck[i].
func New(deck []domain.Flashcard, questions []domain.Question) (*Session, error) {
	if len(deck) == 0 {
		return nil, errors.New("quiz needs at least one question")
	}
	if len(deck) != len(questions) {
		return nil, fmt.Errorf("quiz has %d cards but %d questions", len(deck), len(questions))
	}
	seen := make(map[string]struct{}, len(deck))
	for i, c := range deck {
		if questions[i].CardID != c.ID {
			return nil, fmt.Errorf("question %d is for card %s, expected %s", i, questions[i].CardID, c.ID)
		}
		if _, dup := seen[c.ID]; dup {
			return nil, fmt.Errorf("card %s appears more than once in quiz", c.ID)
		}
		seen[c.ID] = struct{}{}
	}

	return &Session{
		ID:        uuid.NewString(),
		deck:      append([]domain.Flashcard(nil), deck...),
		questions: append([]domain.Question(nil), questions...),
		outcomes:  make([]Outcome, 0, len(deck)),
	}, nil
}

// Generate samples a quiz of up to size cards from deck and starts it.
func Generate(smp *sampler.Sampler, deck []domain.Flashcard, size int) (*Session, error) {
	selected, questions, err := smp.BuildQuiz(deck, size)
	if err != nil {
		return nil, err
	}
	s, err := New(selected, questions)
	if err != nil {
		return nil, err
	}
	if err := s.Start(); err != nil {
		return nil, err
	}
	return s, nil
}

// Start moves a new session to InProgress.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != NotStarted {
		return ErrSessionStarted
	}
	s.state = InProgress
	return nil
}

// State reports the session's lifecycle stage.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Len is the number of questions in the session.
func (s *Session) Len() int {
	return len(s.questions)
}

// Index is the zero-based position of the current question.
func (s *Session) Index() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Score is the number of correct answers so far.
func (s *Session) Score() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.score
}

// Current returns the question awaiting an answer. ok is false unless the
// session is in progress.
func (s *Session) Current() (q domain.Question, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != InProgress {
		return domain.Question{}, false
	}
	return s.questions[s.current], true
}

// Outcomes returns a copy of the answers recorded so far.
func (s *Session) Outcomes() []Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Outcome(nil), s.outcomes...)
}

// Submit records an answer to the current question and advances. The
// answer is compared to the card's translation ignoring case and spacing.
// Answering the last question finishes the session.
func (s *Session) Submit(answer string) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case NotStarted:
		return Outcome{}, ErrSessionNotStarted
	case Finished:
		return Outcome{}, ErrSessionFinished
	}

	q := s.questions[s.current]
	o := Outcome{
		CardID:   q.CardID,
		Answer:   answer,
		Expected: q.CorrectAnswer,
		Correct:  knol.Normalize(answer) == knol.Normalize(q.CorrectAnswer),
	}
	s.outcomes = append(s.outcomes, o)
	if o.Correct {
		s.score++
	}

	s.current++
	if s.current == len(s.questions) {
		s.state = Finished
	}
	return o, nil
}

// Finish applies every recorded outcome to its card through reviewer and
// writes the result with store. Each outcome is applied once: if a write
// fails, calling Finish again resumes with the outcomes not yet written.
// Cards deleted since the quiz started are skipped. It returns the
// reviewed cards in question order.
func (s *Session) Finish(ctx context.Context, reviewer Reviewer, store CardWriter) ([]domain.Flashcard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Finished {
		return nil, ErrSessionOpen
	}
	if s.applied {
		return nil, ErrAlreadyApplied
	}

	reviewed := make([]domain.Flashcard, 0, len(s.outcomes))
	for i := range s.outcomes {
		o := &s.outcomes[i]
		card := s.deck[i]
		if o.skipped {
			continue
		}
		if o.applied {
			reviewed = append(reviewed, card)
			continue
		}

		updated, err := reviewer.ApplyReview(card, o.Correct)
		if err != nil {
			return nil, fmt.Errorf("failed to review card %s: %w", card.ID, err)
		}
		err = store.Update(ctx, updated)
		if errors.Is(err, storage.ErrNotFound) {
			slog.Warn("Card deleted during quiz, skipping its outcome", "session", s.ID, "card", card.ID)
			o.applied = true
			o.skipped = true
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to save card %s: %w", card.ID, err)
		}
		o.applied = true
		s.deck[i] = updated

		entry := domain.ReviewLog{
			CardID:     updated.ID,
			Timestamp:  *updated.LastReviewed,
			Correct:    o.Correct,
			BoxBefore:  card.Box,
			BoxAfter:   updated.Box,
			NextReview: updated.NextReview,
		}
		if err := store.InsertReviewLog(ctx, entry); err != nil {
			slog.Warn("Failed to record review log", "card", updated.ID, "error", err)
		}
		reviewed = append(reviewed, updated)
	}

	s.applied = true
	slog.Info("quiz outcomes applied",
		"session", s.ID,
		"cards", len(reviewed),
		"score", s.score,
	)
	return reviewed, nil
}
