package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/askadmit/askadmit/internal/dispatch"
	"github.com/askadmit/askadmit/internal/domain/answer"
	"github.com/askadmit/askadmit/internal/domain/question"
	"github.com/askadmit/askadmit/internal/domain/validation"
	"github.com/askadmit/askadmit/internal/logger"
	"github.com/askadmit/askadmit/internal/port/events"
	"github.com/askadmit/askadmit/internal/port/historystore"
)

// Event subjects emitted per processed question.
const (
	SubjectAnswered = "answers.answered"
	SubjectDegraded = "answers.degraded"
)

// EngineService is the top-level question pipeline: classify, gather
// context along the simple or complex path, synthesize, verify, persist and
// publish. Every component below it absorbs its own failures; the engine's
// degraded reply is the last resort when even answer synthesis is gone.
type EngineService struct {
	classifier *ClassifierService
	validator  *ValidatorService
	scorer     *ScorerService
	enricher   *EnrichmentService
	verifier   *VerifierService
	model      modelCaller
	history    historystore.Store
	publisher  events.Publisher
	log        *slog.Logger

	now         func() time.Time
	onProcessed func(a *answer.Answer)
}

// NewEngineService creates an EngineService. History store and publisher
// may be nil for embedded use; persistence and events are then skipped.
func NewEngineService(
	classifier *ClassifierService,
	validator *ValidatorService,
	scorer *ScorerService,
	enricher *EnrichmentService,
	verifier *VerifierService,
	model modelCaller,
	history historystore.Store,
	publisher events.Publisher,
	log *slog.Logger,
) *EngineService {
	if log == nil {
		log = slog.Default()
	}
	return &EngineService{
		classifier: classifier,
		validator:  validator,
		scorer:     scorer,
		enricher:   enricher,
		verifier:   verifier,
		model:      model,
		history:    history,
		publisher:  publisher,
		log:        log,
		now:        time.Now,
	}
}

// SetOnProcessed registers a callback invoked with every completed answer,
// after persistence. Used for metrics.
func (s *EngineService) SetOnProcessed(fn func(a *answer.Answer)) {
	s.onProcessed = fn
}

// Process answers one question end to end and returns the full tracking
// bundle. It never returns an error to the transport layer: total failure
// produces a degraded answer carrying the request correlation id.
func (s *EngineService) Process(ctx context.Context, q question.Question) *answer.Answer {
	start := s.now()
	a := &answer.Answer{
		ID:        uuid.NewString(),
		Question:  q.Text,
		CreatedAt: start,
	}

	a.Classification = s.classifier.Classify(ctx, q)
	log := s.log.With("answer_id", a.ID, "category", string(a.Classification.Category))

	switch a.Classification.Category {
	case question.CategoryInappropriate:
		a.Text = inappropriateReply
		a.Verification = answer.SkippedVerification("category excluded")
	case question.CategoryOffTopic:
		a.Text = offTopicReply
		a.Verification = answer.SkippedVerification("category excluded")
	case question.CategoryComplex:
		s.complexPath(ctx, q, a, log)
	default:
		s.simplePath(ctx, q, a, log)
	}

	a.ProcessingTime = s.now().Sub(start)
	s.persist(ctx, a, log)
	s.publish(ctx, a, log)

	log.Info("question processed",
		"degraded", a.Degraded,
		"steps", len(a.Steps),
		"verified", a.Verification.IsVerified,
		"duration", a.ProcessingTime.String(),
	)
	if s.onProcessed != nil {
		s.onProcessed(a)
	}
	return a
}

// GetAnswer returns a previously processed answer by id.
func (s *EngineService) GetAnswer(ctx context.Context, id string) (*answer.Answer, error) {
	return s.history.GetAnswer(ctx, id)
}

// simplePath answers with a single validated query pass.
func (s *EngineService) simplePath(ctx context.Context, q question.Question, a *answer.Answer, log *slog.Logger) {
	raw, err := s.model.Complete(ctx, PurposeQueryGen, queryGenPrompt(q.Text, ""), dispatch.PriorityHigh)
	var res validation.Result
	if err != nil {
		log.Warn("main query generation failed", "error", err)
		res = validation.Invalid("", 0)
	} else {
		res = s.validator.Validate(ctx, q.Text, extractQuery(raw))
	}
	a.Validation = summarize(res)

	text, serr := s.model.Complete(ctx, PurposeSynthesis, simpleSynthesisPrompt(q.Text, res.Records), dispatch.PriorityNormal)
	if serr != nil {
		s.degrade(ctx, a, log, serr)
		return
	}
	a.Text = text
	a.Verification = s.verifier.Verify(ctx, q.Text, a.Text, res.Records, a.Classification.Category)
}

// complexPath runs the enrichment orchestrator.
func (s *EngineService) complexPath(ctx context.Context, q question.Question, a *answer.Answer, log *slog.Logger) {
	out, err := s.enricher.Answer(ctx, q)
	a.Analysis = out.Analysis
	a.Steps = out.Steps
	a.ScoreHistory = out.ScoreHistory
	a.Validation = summarize(out.Validation)
	a.Diversity = out.Diversity
	if err != nil {
		s.degrade(ctx, a, log, err)
		return
	}
	a.Text = out.Answer
	a.Verification = s.verifier.Verify(ctx, q.Text, a.Text, out.Records, a.Classification.Category)
}

// degrade fills the last-resort reply. The correlation id comes from the
// request context; the answer id stands in when the transport set none.
func (s *EngineService) degrade(ctx context.Context, a *answer.Answer, log *slog.Logger, cause error) {
	cid := logger.CorrelationID(ctx)
	if cid == "" {
		cid = a.ID
	}
	log.Error("degraded response", "correlation_id", cid, "error", cause)
	a.Text = degradedReply(cid)
	a.Degraded = true
	a.Verification = answer.SkippedVerification("degraded")
}

func (s *EngineService) persist(ctx context.Context, a *answer.Answer, log *slog.Logger) {
	if s.history == nil {
		return
	}
	if err := s.history.SaveAnswer(ctx, a); err != nil {
		log.Error("failed to persist answer", "error", err)
	}
}

func (s *EngineService) publish(ctx context.Context, a *answer.Answer, log *slog.Logger) {
	if s.publisher == nil {
		return
	}
	subject := SubjectAnswered
	if a.Degraded {
		subject = SubjectDegraded
	}
	data, err := json.Marshal(a)
	if err != nil {
		log.Error("failed to encode answer event", "error", err)
		return
	}
	if err := s.publisher.Publish(ctx, subject, data); err != nil {
		log.Warn("failed to publish answer event", "error", err)
	}
}

func summarize(res validation.Result) answer.ValidationSummary {
	return answer.ValidationSummary{
		Query:          res.Query,
		RecordCount:    len(res.Records),
		WasCorrected:   res.WasCorrected,
		WasOptimized:   res.WasOptimized,
		SyntaxRetries:  res.SyntaxRetries,
		ContextRetries: res.ContextRetries,
		IsValid:        res.IsValid,
	}
}
