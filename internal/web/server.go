// Package web serves the study session as a small JSON API.
package web

import (
	"cmp"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/conorfennell/flashcards/internal/domain"
	"github.com/conorfennell/flashcards/internal/importer"
	"github.com/conorfennell/flashcards/internal/ledger"
	"github.com/conorfennell/flashcards/internal/parser"
	"github.com/conorfennell/flashcards/internal/queue"
	"github.com/conorfennell/flashcards/internal/search"
	"github.com/conorfennell/flashcards/internal/storage"
	"github.com/conorfennell/flashcards/internal/study"
)

// Server holds the dependencies for the HTTP server.
type Server struct {
	db       *storage.DB
	session  *study.Session
	importer *importer.Importer
	opts     parser.Options
	log      *slog.Logger
	router   chi.Router
}

// NewServer creates and configures a new server.
func NewServer(db *storage.DB, session *study.Session, im *importer.Importer, opts parser.Options, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		db:       db,
		session:  session,
		importer: im,
		opts:     opts,
		log:      log,
		router:   chi.NewRouter(),
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routes sets up the routing for the server.
func (s *Server) routes() {
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(chimiddleware.RequestID)

	s.router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	s.router.Get("/deck", s.handleGetDeck())
	s.router.Get("/groups", s.handleGetGroups())
	s.router.Get("/search", s.handleSearch())

	s.router.Get("/review/next", s.handleGetNextReview())
	s.router.Get("/review/answer/{id}", s.handleShowAnswer())
	s.router.Post("/review/{id}", s.handlePostReview())
	s.router.Post("/undo", s.handlePostUndo())

	s.router.Patch("/cards/{id}", s.handlePatchCard())
	s.router.Delete("/cards/{id}", s.handleDeleteCard())
	s.router.Put("/cards/{id}/tags", s.handlePutCardTags())
	s.router.Get("/tags", s.handleGetTags())

	s.router.Get("/sources", s.handleGetSources())
	s.router.Post("/sources", s.handlePostSource())
	s.router.Delete("/sources/{id}", s.handleDeleteSource())
	s.router.Post("/sync", s.handlePostSync())
}

type cardFront struct {
	ID        uuid.UUID        `json:"id"`
	Prompt    string           `json:"prompt"`
	StudyMode domain.StudyMode `json:"study_mode"`
}

type cardView struct {
	ID           uuid.UUID   `json:"id"`
	Front        string      `json:"front"`
	Back         string      `json:"back"`
	Notes        string      `json:"notes,omitempty"`
	NextReview   time.Time   `json:"next_review"`
	LastReviewed *time.Time  `json:"last_reviewed,omitempty"`
	Reviews      int         `json:"reviews"`
	Tags         []uuid.UUID `json:"tags"`
}

func viewOf(c *domain.Card) cardView {
	v := cardView{
		ID:         c.ID,
		Front:      c.Front,
		Back:       c.Back,
		Notes:      c.Notes,
		NextReview: c.NextReviewDate,
		Reviews:    len(c.Reviews),
		Tags:       c.Tags.IDs(),
	}
	if last, ok := ledger.LastReviewDate(c); ok {
		v.LastReviewed = &last
	}
	return v
}

func viewsOf(cards []*domain.Card) []cardView {
	out := make([]cardView, 0, len(cards))
	for _, c := range cards {
		out = append(out, viewOf(c))
	}
	return out
}

// prompt picks the side the learner sees. Recall-front shows the back.
func prompt(c *domain.Card, mode domain.StudyMode) string {
	if mode == domain.StudyModeFront {
		return c.Back
	}
	return c.Front
}

// handleGetDeck reports the number of due cards.
func (s *Server) handleGetDeck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		due := s.session.DueCount()
		writeJSON(w, http.StatusOK, map[string]any{
			"due_count":     due,
			"has_due_cards": due > 0,
			"can_undo":      s.session.PendingUndos() > 0,
		})
	}
}

// handleGetNextReview returns the prompt side of the next due card, or 204
// when nothing is due.
func (s *Server) handleGetNextReview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		card, mode, ok := s.session.Current()
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, cardFront{ID: card.ID, Prompt: prompt(card, mode), StudyMode: mode})
	}
}

// handleShowAnswer returns a whole card.
func (s *Server) handleShowAnswer() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid card ID")
			return
		}
		card, ok := s.session.Card(id)
		if !ok {
			writeError(w, http.StatusNotFound, "Card not found")
			return
		}
		writeJSON(w, http.StatusOK, viewOf(card))
	}
}

// handlePostReview records an outcome and returns the next card.
func (s *Server) handlePostReview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid card ID")
			return
		}
		outcome, ok := domain.ParseOutcome(r.FormValue("outcome"))
		if !ok {
			writeError(w, http.StatusBadRequest, "outcome must be ok or fail")
			return
		}

		if _, err := s.session.Submit(r.Context(), id, outcome); err != nil {
			if errors.Is(err, study.ErrCardNotFound) {
				writeError(w, http.StatusNotFound, "Card not found")
				return
			}
			s.log.Error("Error recording review", "card", id, "error", err)
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}

		// After review, show the next card
		s.handleGetNextReview()(w, r)
	}
}

// handlePostUndo reverts the latest review.
func (s *Server) handlePostUndo() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		card, ok, err := s.session.Undo(r.Context())
		if err != nil {
			s.log.Error("Error undoing review", "error", err)
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		if !ok {
			writeError(w, http.StatusConflict, "Nothing to undo")
			return
		}
		writeJSON(w, http.StatusOK, viewOf(card))
	}
}

// handlePatchCard edits a card. Only the form fields present are changed:
// front, back, notes and next_review (RFC 3339).
func (s *Server) handlePatchCard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid card ID")
			return
		}
		if err := r.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid form")
			return
		}

		var edit study.CardEdit
		field := func(name string) *string {
			if _, ok := r.PostForm[name]; !ok {
				return nil
			}
			v := r.PostForm.Get(name)
			return &v
		}
		edit.Front = field("front")
		edit.Back = field("back")
		edit.Notes = field("notes")
		if due := field("next_review"); due != nil {
			t, err := time.Parse(time.RFC3339, *due)
			if err != nil {
				writeError(w, http.StatusBadRequest, "next_review must be an RFC 3339 time")
				return
			}
			edit.NextReviewDate = &t
		}

		card, err := s.session.Edit(r.Context(), id, edit)
		if err != nil {
			s.writeSessionError(w, "Error editing card", id, err)
			return
		}
		writeJSON(w, http.StatusOK, viewOf(card))
	}
}

// handleDeleteCard deletes a card with its reviews.
func (s *Server) handleDeleteCard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid card ID")
			return
		}
		if err := s.session.Delete(r.Context(), id); err != nil {
			s.writeSessionError(w, "Error deleting card", id, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handlePutCardTags replaces a card's tags with the repeated form field tag.
func (s *Server) handlePutCardTags() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid card ID")
			return
		}
		if err := r.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid form")
			return
		}
		var tagIDs []uuid.UUID
		for _, raw := range r.PostForm["tag"] {
			tagID, err := uuid.Parse(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "Invalid tag ID")
				return
			}
			tagIDs = append(tagIDs, tagID)
		}

		card, err := s.session.SetTags(r.Context(), id, tagIDs)
		if err != nil {
			s.writeSessionError(w, "Error setting card tags", id, err)
			return
		}
		writeJSON(w, http.StatusOK, viewOf(card))
	}
}

type tagView struct {
	ID        uuid.UUID        `json:"id"`
	Name      string           `json:"name"`
	StudyMode domain.StudyMode `json:"study_mode"`
	Bucket    domain.Bucket    `json:"bucket"`
	Cards     int              `json:"cards"`
}

// handleGetTags lists tags by name with their card counts.
func (s *Server) handleGetTags() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cards := s.session.Cards()
		tags := s.session.Tags()
		out := make([]tagView, 0, len(tags))
		for _, t := range tags {
			out = append(out, tagView{
				ID:        t.ID,
				Name:      t.Name,
				StudyMode: t.StudyMode,
				Bucket:    t.Bucket,
				Cards:     len(domain.CommittedCards(t.ID, cards)),
			})
		}
		slices.SortFunc(out, func(a, b tagView) int {
			return cmp.Or(
				cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)),
				cmp.Compare(a.ID.String(), b.ID.String()),
			)
		})
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) writeSessionError(w http.ResponseWriter, msg string, id uuid.UUID, err error) {
	switch {
	case errors.Is(err, study.ErrCardNotFound):
		writeError(w, http.StatusNotFound, "Card not found")
	case errors.Is(err, study.ErrTagNotFound):
		writeError(w, http.StatusBadRequest, "Tag not found")
	case errors.Is(err, study.ErrEmptyCard):
		writeError(w, http.StatusBadRequest, "Card needs a front or a back")
	default:
		s.log.Error(msg, "card", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
	}
}

type groupView struct {
	Label string     `json:"label"`
	Cards []cardView `json:"cards"`
}

// handleGetGroups lists the selected cards grouped by due day.
func (s *Server) handleGetGroups() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		groups := s.session.Groups()
		out := make([]groupView, 0, len(groups))
		for _, g := range groups {
			out = append(out, groupView{Label: g.Label, Cards: viewsOf(g.Cards)})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// handleSearch matches cards by text. prefix=true restricts to fronts and
// backs starting with q.
func (s *Server) handleSearch() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		idx := search.NewIndex(s.session.Cards())

		var found []*domain.Card
		if prefix, _ := strconv.ParseBool(r.URL.Query().Get("prefix")); prefix {
			found = idx.StartingWith(q)
		} else {
			found = idx.Including(q)
		}
		queue.Sort(found)
		writeJSON(w, http.StatusOK, viewsOf(found))
	}
}

// handleGetSources lists the configured sources.
func (s *Server) handleGetSources() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sources, err := s.db.GetAllSources(r.Context())
		if err != nil {
			s.log.Error("Error getting sources", "error", err)
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		writeJSON(w, http.StatusOK, sourceViews(sources))
	}
}

// handlePostSource adds a new source.
func (s *Server) handlePostSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := r.FormValue("path")
		if path == "" {
			writeError(w, http.StatusBadRequest, "Path cannot be empty")
			return
		}
		id, err := s.importer.AddSource(r.Context(), path)
		if err != nil {
			s.log.Error("Error inserting new source", "path", path, "error", err)
			writeError(w, http.StatusBadRequest, "Failed to add source")
			return
		}
		writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
	}
}

// handleDeleteSource deletes a source. Its cards are kept.
func (s *Server) handleDeleteSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid source ID")
			return
		}
		if err := s.db.DeleteSource(r.Context(), id); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				writeError(w, http.StatusNotFound, "Source not found")
				return
			}
			s.log.Error("Error deleting source", "id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to delete source")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handlePostSync imports new cards from every source and reloads the deck.
func (s *Server) handlePostSync() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rep, err := s.importer.SyncAll(r.Context(), s.opts)
		if err != nil {
			s.log.Error("Error syncing sources", "error", err)
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		if rep.Imported > 0 {
			if err := s.reload(r); err != nil {
				s.log.Error("Error reloading deck after sync", "error", err)
				writeError(w, http.StatusInternalServerError, "Internal Server Error")
				return
			}
		}
		errs := make([]string, 0, len(rep.Errors))
		for _, e := range rep.Errors {
			errs = append(errs, e.Error())
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"imported":   rep.Imported,
			"duplicates": rep.Duplicates,
			"errors":     errs,
		})
	}
}

func (s *Server) reload(r *http.Request) error {
	cards, err := s.db.ListCards(r.Context(), storage.ListOptions{})
	if err != nil {
		return err
	}
	tags, err := s.db.ListTags(r.Context())
	if err != nil {
		return err
	}
	s.session.Reset(cards, tags)
	return nil
}

type sourceView struct {
	ID          int64      `json:"id"`
	Path        string     `json:"path"`
	Type        string     `json:"type"`
	LastScanned *time.Time `json:"last_scanned,omitempty"`
}

func sourceViews(sources []storage.Source) []sourceView {
	out := make([]sourceView, 0, len(sources))
	for _, src := range sources {
		v := sourceView{ID: src.ID, Path: src.Path, Type: src.Type}
		if src.LastScanned.Valid {
			t := src.LastScanned.Time
			v.LastScanned = &t
		}
		out = append(out, v)
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
