package domain

import "time"

// Flashcard is a single vocabulary entry tracked by the Leitner scheduler.
type Flashcard struct {
	ID           string
	Front        string // source-language term
	Back         string // translation
	Box          int    // 1 (least proficient) to 5 (most proficient)
	LastReviewed *time.Time
	NextReview   time.Time
	ReviewCount  int
	Category     string
	Source       *SourceContext
	CreatedAt    time.Time
}

// SourceContext points back at the material a card was created from.
// It is informational only and never consulted for scheduling.
type SourceContext struct {
	EntryID  string
	ImageURL string
	Location string
	SourceID int64
}

// ReviewLog records a single review outcome for a card.
type ReviewLog struct {
	CardID     string
	Timestamp  time.Time
	Correct    bool
	BoxBefore  int
	BoxAfter   int
	NextReview time.Time
}

// Stats summarises a deck at a point in time.
// PerBox is indexed by box number; index 0 is unused.
type Stats struct {
	Total    int
	PerBox   [6]int
	DueCount int
}

// Question is one multiple-choice prompt generated from a card.
type Question struct {
	CardID        string
	Prompt        string
	CorrectAnswer string
	Options       []string
}
