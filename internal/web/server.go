package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"github.com/conorfennell/vocabox/internal/domain"
	"github.com/conorfennell/vocabox/internal/importer"
	"github.com/conorfennell/vocabox/internal/knol"
	"github.com/conorfennell/vocabox/internal/leitner"
	"github.com/conorfennell/vocabox/internal/quiz"
	"github.com/conorfennell/vocabox/internal/sampler"
	"github.com/conorfennell/vocabox/internal/storage"
)

// Store is the card repository the server works against.
type Store interface {
	Load(ctx context.Context) ([]domain.Flashcard, error)
	FindByID(ctx context.Context, id string) (domain.Flashcard, error)
	Save(ctx context.Context, card domain.Flashcard) (domain.Flashcard, error)
	Update(ctx context.Context, card domain.Flashcard) error
	Delete(ctx context.Context, id string) error
	InsertReviewLog(ctx context.Context, log domain.ReviewLog) error
	AllSources(ctx context.Context) ([]storage.Source, error)
	DeleteSource(ctx context.Context, sourceID int64) error
}

// Options tunes quiz generation.
type Options struct {
	QuizSize   int
	MinDeck    int
	SessionTTL time.Duration
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	db         Store
	sched      *leitner.Scheduler
	importer   *importer.Importer
	quizzes    *quiz.Manager
	opts       Options
	router     *http.ServeMux
	validate   *validator.Validate
	newSampler func() *sampler.Sampler
}

// NewServer creates and configures a new server.
func NewServer(db Store, sched *leitner.Scheduler, im *importer.Importer, opts Options) *Server {
	if opts.QuizSize <= 0 {
		opts.QuizSize = 10
	}
	opts.MinDeck = max(opts.MinDeck, sampler.MinDeckSize)

	s := &Server{
		db:         db,
		sched:      sched,
		importer:   im,
		quizzes:    quiz.NewManager(opts.SessionTTL),
		opts:       opts,
		router:     http.NewServeMux(),
		validate:   validator.New(),
		newSampler: func() *sampler.Sampler { return sampler.New(nil) },
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	s.router.ServeHTTP(w, r)
	slog.Debug("request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
}

// routes sets up the routing for the server.
func (s *Server) routes() {
	s.router.HandleFunc("GET /api/cards", s.handleListCards())
	s.router.HandleFunc("POST /api/cards", s.handleCreateCard())
	s.router.HandleFunc("GET /api/cards/due", s.handleDueCards())
	s.router.HandleFunc("DELETE /api/cards/{id}", s.handleDeleteCard())
	s.router.HandleFunc("POST /api/cards/{id}/review", s.handleReviewCard())
	s.router.HandleFunc("GET /api/stats", s.handleStats())

	s.router.HandleFunc("POST /api/quiz", s.handleStartQuiz())
	s.router.HandleFunc("POST /api/quiz/{id}/answer", s.handleAnswer())
	s.router.HandleFunc("POST /api/quiz/{id}/finish", s.handleFinishQuiz())
	s.router.HandleFunc("DELETE /api/quiz/{id}", s.handleDiscardQuiz())

	// Source management routes
	s.router.HandleFunc("GET /api/sources", s.handleListSources())
	s.router.HandleFunc("POST /api/sources", s.handleAddSource())
	s.router.HandleFunc("DELETE /api/sources/{id}", s.handleDeleteSource())
	s.router.HandleFunc("POST /api/sync", s.handleSync())
}

func (s *Server) handleListCards() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cards, err := s.db.Load(r.Context())
		if err != nil {
			s.fail(w, "Error loading cards", err)
			return
		}
		writeJSON(w, http.StatusOK, toCardsJSON(cards))
	}
}

// handleCreateCard stores a card, or returns the existing card with the
// same front text.
func (s *Server) handleCreateCard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createCardRequest
		if !s.decode(w, r, &req) {
			return
		}

		var src *domain.SourceContext
		if req.Source != nil {
			src = &domain.SourceContext{
				EntryID:  req.Source.EntryID,
				ImageURL: req.Source.ImageURL,
				Location: req.Source.Location,
			}
		}
		card, err := s.sched.NewCard(req.Front, req.Back, req.Category, src)
		if err != nil {
			s.fail(w, "Error building card", err)
			return
		}
		saved, err := s.db.Save(r.Context(), card)
		if err != nil {
			s.fail(w, "Error saving card", err)
			return
		}

		status := http.StatusCreated
		if saved.ID != card.ID {
			status = http.StatusOK
		}
		writeJSON(w, status, toCardJSON(saved))
	}
}

func (s *Server) handleDueCards() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cards, err := s.db.Load(r.Context())
		if err != nil {
			s.fail(w, "Error loading cards", err)
			return
		}
		writeJSON(w, http.StatusOK, toCardsJSON(leitner.DueCards(cards, s.sched.Now())))
	}
}

func (s *Server) handleDeleteCard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.db.Delete(r.Context(), r.PathValue("id")); err != nil {
			s.fail(w, "Error deleting card", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleReviewCard applies a single review outcome outside of a quiz.
func (s *Server) handleReviewCard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req reviewRequest
		if !s.decode(w, r, &req) {
			return
		}

		card, err := s.db.FindByID(r.Context(), r.PathValue("id"))
		if err != nil {
			s.fail(w, "Error finding card", err)
			return
		}
		updated, err := s.sched.ApplyReview(card, *req.Correct)
		if err != nil {
			s.fail(w, "Error reviewing card", err)
			return
		}
		if err := s.db.Update(r.Context(), updated); err != nil {
			s.fail(w, "Error updating card", err)
			return
		}
		err = s.db.InsertReviewLog(r.Context(), domain.ReviewLog{
			CardID:     updated.ID,
			Timestamp:  *updated.LastReviewed,
			Correct:    *req.Correct,
			BoxBefore:  card.Box,
			BoxAfter:   updated.Box,
			NextReview: updated.NextReview,
		})
		if err != nil {
			slog.Warn("Failed to record review log", "card", updated.ID, "error", err)
		}
		writeJSON(w, http.StatusOK, toCardJSON(updated))
	}
}

func (s *Server) handleStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cards, err := s.db.Load(r.Context())
		if err != nil {
			s.fail(w, "Error loading cards", err)
			return
		}
		stats, err := leitner.GetStats(cards, s.sched.Now())
		if err != nil {
			s.fail(w, "Error computing stats", err)
			return
		}

		perBox := make(map[int]int, leitner.MaxBox)
		for box := leitner.MinBox; box <= leitner.MaxBox; box++ {
			perBox[box] = stats.PerBox[box]
		}
		categories := lo.MapValues(knol.GroupByCategory(cards), func(group []domain.Flashcard, _ string) int {
			return len(group)
		})
		writeJSON(w, http.StatusOK, statsJSON{
			Total:      stats.Total,
			PerBox:     perBox,
			Due:        stats.DueCount,
			Categories: categories,
		})
	}
}

func (s *Server) handleStartQuiz() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req startQuizRequest
		if r.ContentLength != 0 && !s.decode(w, r, &req) {
			return
		}
		size := req.Size
		if size == 0 {
			size = s.opts.QuizSize
		}

		cards, err := s.db.Load(r.Context())
		if err != nil {
			s.fail(w, "Error loading cards", err)
			return
		}
		if len(cards) < s.opts.MinDeck {
			writeJSON(w, http.StatusUnprocessableEntity, errorJSON{
				Error: fmt.Sprintf("Add at least %d cards before starting a quiz (you have %d).", s.opts.MinDeck, len(cards)),
			})
			return
		}

		session, err := quiz.Generate(s.newSampler(), cards, size)
		if err != nil {
			s.fail(w, "Error generating quiz", err)
			return
		}
		s.quizzes.Add(session)
		slog.Info("Quiz started", "session", session.ID, "questions", session.Len())

		writeJSON(w, http.StatusCreated, quizJSON{
			ID:       session.ID,
			Total:    session.Len(),
			Question: currentQuestion(session),
		})
	}
}

// handleAnswer records an answer. The final answer applies every outcome
// of the session to its card.
func (s *Server) handleAnswer() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := s.quizzes.Get(r.PathValue("id"))
		if !ok {
			writeJSON(w, http.StatusNotFound, errorJSON{Error: "quiz not found"})
			return
		}
		var req answerRequest
		if !s.decode(w, r, &req) {
			return
		}

		outcome, err := session.Submit(req.Answer)
		if err != nil {
			s.fail(w, "Error submitting answer", err)
			return
		}

		resp := answerResponse{
			Correct:       outcome.Correct,
			CorrectAnswer: outcome.Expected,
			Score:         session.Score(),
			Next:          currentQuestion(session),
		}
		if session.State() == quiz.Finished {
			reviewed, err := s.finish(r.Context(), session)
			if err != nil {
				s.fail(w, "Error applying quiz results", err)
				return
			}
			resp.Finished = true
			resp.Reviewed = toCardsJSON(reviewed)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// handleFinishQuiz retries applying the outcomes of a finished session
// whose earlier write-back failed.
func (s *Server) handleFinishQuiz() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := s.quizzes.Get(r.PathValue("id"))
		if !ok {
			writeJSON(w, http.StatusNotFound, errorJSON{Error: "quiz not found"})
			return
		}
		reviewed, err := s.finish(r.Context(), session)
		if err != nil {
			s.fail(w, "Error applying quiz results", err)
			return
		}
		writeJSON(w, http.StatusOK, answerResponse{
			Score:    session.Score(),
			Finished: true,
			Reviewed: toCardsJSON(reviewed),
		})
	}
}

func (s *Server) finish(ctx context.Context, session *quiz.Session) ([]domain.Flashcard, error) {
	reviewed, err := session.Finish(ctx, s.sched, s.db)
	if err != nil {
		return nil, err
	}
	s.quizzes.Discard(session.ID)
	return reviewed, nil
}

func (s *Server) handleDiscardQuiz() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.quizzes.Discard(r.PathValue("id"))
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleListSources() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sources, err := s.db.AllSources(r.Context())
		if err != nil {
			s.fail(w, "Error getting sources", err)
			return
		}
		writeJSON(w, http.StatusOK, toSourcesJSON(sources))
	}
}

func (s *Server) handleAddSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req addSourceRequest
		if !s.decode(w, r, &req) {
			return
		}
		id, err := s.importer.AddSource(r.Context(), req.Path)
		if err != nil {
			s.fail(w, "Error inserting new source", err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
	}
}

func (s *Server) handleDeleteSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorJSON{Error: "invalid source ID"})
			return
		}
		if err := s.db.DeleteSource(r.Context(), id); err != nil {
			s.fail(w, "Error deleting source", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleSync runs a sync in the foreground and reports per source.
func (s *Server) handleSync() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reports, err := s.importer.Run(r.Context())
		resp := map[string]any{"reports": toReportsJSON(reports)}
		if err != nil {
			slog.Warn("Sync finished with errors", "error", err)
			resp["error"] = err.Error()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func currentQuestion(session *quiz.Session) *questionJSON {
	q, ok := session.Current()
	if !ok {
		return nil
	}
	return &questionJSON{
		Index:   session.Index(),
		CardID:  q.CardID,
		Prompt:  q.Prompt,
		Options: q.Options,
	}
}

// decode reads a JSON body into dst and validates it. It writes a 400 and
// returns false on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: "invalid JSON body"})
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: err.Error()})
		return false
	}
	return true
}

// fail maps err onto an HTTP status and logs anything unexpected.
func (s *Server) fail(w http.ResponseWriter, msg string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, sampler.ErrInsufficientDeck):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, quiz.ErrSessionFinished),
		errors.Is(err, quiz.ErrAlreadyApplied),
		errors.Is(err, quiz.ErrSessionOpen):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		slog.Error(msg, "error", err)
		writeJSON(w, status, errorJSON{Error: "internal server error"})
		return
	}
	writeJSON(w, status, errorJSON{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to write response", "error", err)
	}
}
