package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/askadmit/askadmit/internal/domain"
	"github.com/askadmit/askadmit/internal/domain/answer"
	"github.com/askadmit/askadmit/internal/domain/question"
)

const maxQuestionLength = 2000

// processor is the engine surface the transport needs.
type processor interface {
	Process(ctx context.Context, q question.Question) *answer.Answer
	GetAnswer(ctx context.Context, id string) (*answer.Answer, error)
}

// Handlers holds the HTTP handler set.
type Handlers struct {
	engine processor
	log    *slog.Logger

	checkNames []string
	checks     map[string]func(ctx context.Context) error
}

// NewHandlers creates the handler set.
func NewHandlers(engine processor, log *slog.Logger) *Handlers {
	if log == nil {
		log = slog.Default()
	}
	return &Handlers{
		engine: engine,
		log:    log,
		checks: make(map[string]func(ctx context.Context) error),
	}
}

// AddHealthCheck registers a named collaborator probe reported by /health.
func (h *Handlers) AddHealthCheck(name string, fn func(ctx context.Context) error) {
	h.checkNames = append(h.checkNames, name)
	h.checks[name] = fn
}

type askRequest struct {
	Question string   `json:"question"`
	History  []string `json:"history,omitempty"`
}

// AskQuestion handles POST /v1/questions: runs the full pipeline and
// returns the answer with its tracking bundle.
func (h *Handlers) AskQuestion(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[askRequest](w, r)
	if !ok {
		return
	}

	text := strings.TrimSpace(req.Question)
	if text == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}
	if len(text) > maxQuestionLength {
		writeError(w, http.StatusBadRequest, "question too long")
		return
	}

	a := h.engine.Process(r.Context(), question.Question{Text: text, History: req.History})
	writeJSON(w, http.StatusOK, a)
}

// GetAnswer handles GET /v1/questions/{id}: returns a previously processed
// answer from the history store.
func (h *Handlers) GetAnswer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	a, err := h.engine.GetAnswer(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "answer not found")
			return
		}
		h.log.Error("answer lookup failed", "answer_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// Health handles GET /health: reports per-collaborator status. Any failing
// probe turns the overall status to degraded with a 503.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	body := map[string]string{"status": "ok"}
	for _, name := range h.checkNames {
		if err := h.checks[name](ctx); err != nil {
			body[name] = err.Error()
			body["status"] = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		body[name] = "ok"
	}
	writeJSON(w, status, body)
}
