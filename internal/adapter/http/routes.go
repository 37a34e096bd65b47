package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/askadmit/askadmit/internal/config"
)

// NewRouter builds the chi router with the full middleware chain. The
// question endpoint sits behind the admission limiter so a traffic burst
// degrades to fast 503s instead of unbounded dispatcher queueing.
func NewRouter(h *Handlers, cfg config.Server, log *slog.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(CorrelationID)
	r.Use(Logger(log))
	r.Use(CORS(cfg.CORSOrigin))

	r.Get("/health", h.Health)

	r.Route("/v1", func(r chi.Router) {
		ask := otelhttp.NewHandler(http.HandlerFunc(h.AskQuestion), "AskQuestion")
		r.With(Admission(int64(cfg.MaxInFlight))).Method(http.MethodPost, "/questions", ask)
		r.Get("/questions/{id}", h.GetAnswer)
	})

	return r
}
