package web

import (
	"time"

	"github.com/samber/lo"

	"github.com/conorfennell/vocabox/internal/domain"
	"github.com/conorfennell/vocabox/internal/importer"
	"github.com/conorfennell/vocabox/internal/storage"
)

type sourceContextJSON struct {
	EntryID  string `json:"entry_id,omitempty"`
	ImageURL string `json:"image_url,omitempty" validate:"omitempty,url"`
	Location string `json:"location,omitempty"`
}

type cardJSON struct {
	ID           string             `json:"id"`
	Front        string             `json:"front"`
	Back         string             `json:"back"`
	Box          int                `json:"box"`
	LastReviewed *time.Time         `json:"last_reviewed,omitempty"`
	NextReview   time.Time          `json:"next_review"`
	ReviewCount  int                `json:"review_count"`
	Category     string             `json:"category,omitempty"`
	Source       *sourceContextJSON `json:"source,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
}

func toCardJSON(c domain.Flashcard) cardJSON {
	out := cardJSON{
		ID:           c.ID,
		Front:        c.Front,
		Back:         c.Back,
		Box:          c.Box,
		LastReviewed: c.LastReviewed,
		NextReview:   c.NextReview,
		ReviewCount:  c.ReviewCount,
		Category:     c.Category,
		CreatedAt:    c.CreatedAt,
	}
	if c.Source != nil {
		out.Source = &sourceContextJSON{
			EntryID:  c.Source.EntryID,
			ImageURL: c.Source.ImageURL,
			Location: c.Source.Location,
		}
	}
	return out
}

func toCardsJSON(cards []domain.Flashcard) []cardJSON {
	return lo.Map(cards, func(c domain.Flashcard, _ int) cardJSON { return toCardJSON(c) })
}

type createCardRequest struct {
	Front    string             `json:"front" validate:"required,max=500"`
	Back     string             `json:"back" validate:"required,max=500"`
	Category string             `json:"category" validate:"max=100"`
	Source   *sourceContextJSON `json:"source"`
}

type reviewRequest struct {
	Correct *bool `json:"correct" validate:"required"`
}

type statsJSON struct {
	Total      int            `json:"total"`
	PerBox     map[int]int    `json:"per_box"`
	Due        int            `json:"due"`
	Categories map[string]int `json:"categories"`
}

type startQuizRequest struct {
	Size int `json:"size" validate:"omitempty,min=1,max=100"`
}

type questionJSON struct {
	Index   int      `json:"index"`
	CardID  string   `json:"card_id"`
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
}

type quizJSON struct {
	ID       string        `json:"id"`
	Total    int           `json:"total"`
	Question *questionJSON `json:"question,omitempty"`
}

type answerRequest struct {
	Answer string `json:"answer" validate:"required"`
}

type answerResponse struct {
	Correct       bool          `json:"correct"`
	CorrectAnswer string        `json:"correct_answer"`
	Score         int           `json:"score"`
	Finished      bool          `json:"finished"`
	Next          *questionJSON `json:"next,omitempty"`
	Reviewed      []cardJSON    `json:"reviewed,omitempty"`
}

type sourceJSON struct {
	ID          int64      `json:"id"`
	Path        string     `json:"path"`
	Type        string     `json:"type"`
	LastScanned *time.Time `json:"last_scanned,omitempty"`
}

func toSourcesJSON(sources []storage.Source) []sourceJSON {
	return lo.Map(sources, func(s storage.Source, _ int) sourceJSON {
		return sourceJSON{ID: s.ID, Path: s.Path, Type: s.Type, LastScanned: s.LastScanned}
	})
}

type addSourceRequest struct {
	Path string `json:"path" validate:"required"`
}

type syncReportJSON struct {
	SourceID int64    `json:"source_id"`
	Path     string   `json:"path"`
	Parsed   int      `json:"parsed"`
	Inserted int      `json:"inserted"`
	Deleted  int      `json:"deleted"`
	Errors   []string `json:"errors,omitempty"`
}

func toReportsJSON(reports []importer.Report) []syncReportJSON {
	return lo.Map(reports, func(r importer.Report, _ int) syncReportJSON {
		return syncReportJSON{
			SourceID: r.SourceID,
			Path:     r.Path,
			Parsed:   r.Parsed,
			Inserted: r.Inserted,
			Deleted:  r.Deleted,
			Errors:   lo.Map(r.Errors, func(err error, _ int) string { return err.Error() }),
		}
	})
}

type errorJSON struct {
	Error string `json:"error"`
}
