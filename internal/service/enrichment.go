package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/askadmit/askadmit/internal/config"
	"github.com/askadmit/askadmit/internal/dispatch"
	"github.com/askadmit/askadmit/internal/domain/enrichment"
	"github.com/askadmit/askadmit/internal/domain/graph"
	"github.com/askadmit/askadmit/internal/domain/question"
	"github.com/askadmit/askadmit/internal/domain/validation"
)

// EnrichmentOutcome is the full result of the complex-question path: the
// synthesized answer plus the audit trail the history store persists.
type EnrichmentOutcome struct {
	Analysis     string
	Answer       string
	Records      []graph.Record
	Steps        []enrichment.Step
	ScoreHistory []enrichment.ScoreSample
	Validation   validation.Result
	Diversity    float64
}

// EnrichmentService runs the adaptive context-gathering loop for complex
// questions: analyze, execute the main query, then plan supplementary
// queries while the context score keeps improving. Steps are strictly
// sequential; each plan depends on the previous step's accumulated context.
type EnrichmentService struct {
	model     modelCaller
	validator *ValidatorService
	scorer    *ScorerService
	cfg       config.Enrichment
	log       *slog.Logger
}

// NewEnrichmentService creates an EnrichmentService.
func NewEnrichmentService(model modelCaller, validator *ValidatorService, scorer *ScorerService, cfg config.Enrichment, log *slog.Logger) *EnrichmentService {
	if log == nil {
		log = slog.Default()
	}
	return &EnrichmentService{
		model:     model,
		validator: validator,
		scorer:    scorer,
		cfg:       cfg,
		log:       log,
	}
}

type planResponse struct {
	Query       string   `json:"query"`
	Purpose     string   `json:"purpose"`
	InfoType    string   `json:"info_type"`
	EntityTypes []string `json:"entity_types"`
}

// Answer runs the full complex-question pipeline and synthesizes the final
// answer. It fails only when both the full synthesis and the simpler
// fallback synthesis are unavailable.
func (s *EnrichmentService) Answer(ctx context.Context, q question.Question) (EnrichmentOutcome, error) {
	out := EnrichmentOutcome{}
	out.Analysis = s.analyze(ctx, q.Text)

	mainRecords := s.mainQuery(ctx, q.Text, out.Analysis, &out)
	out.Records = append(out.Records, mainRecords...)

	sample := s.scorer.Score(ctx, q.Text, out.Records, "main_query")
	out.ScoreHistory = append(out.ScoreHistory, sample)

	s.enrich(ctx, q.Text, &out)
	out.Diversity = enrichment.Diversity(out.Steps, s.cfg.EntityCatalogSize)

	text, err := s.synthesize(ctx, q.Text, &out, mainRecords)
	if err != nil {
		return out, err
	}
	out.Answer = text
	return out, nil
}

// analyze extracts intent and needed information. Analysis failure is not
// fatal: downstream prompts simply omit it.
func (s *EnrichmentService) analyze(ctx context.Context, questionText string) string {
	raw, err := s.model.Complete(ctx, PurposeAnalysis, analysisPrompt(questionText), dispatch.PriorityHigh)
	if err != nil {
		s.log.Warn("question analysis failed, continuing without it", "error", err)
		return ""
	}
	return raw
}

// mainQuery generates and validates the primary query. A generation failure
// leaves the context empty, which the score and synthesis fallbacks absorb.
func (s *EnrichmentService) mainQuery(ctx context.Context, questionText, analysis string, out *EnrichmentOutcome) []graph.Record {
	raw, err := s.model.Complete(ctx, PurposeQueryGen, queryGenPrompt(questionText, analysis), dispatch.PriorityHigh)
	if err != nil {
		s.log.Warn("main query generation failed", "error", err)
		out.Validation = validation.Invalid("", 0)
		return nil
	}

	out.Validation = s.validator.Validate(ctx, questionText, extractQuery(raw))
	return out.Validation.Records
}

// enrich runs the bounded supplementary-query loop. Every planned query
// goes through the full validation path, so enrichment queries get the same
// repair and optimization guarantees as the main query.
func (s *EnrichmentService) enrich(ctx context.Context, questionText string, out *EnrichmentOutcome) {
	consecutiveFailures := 0

	for step := 1; step <= s.cfg.MaxQueries; step++ {
		score := currentScore(out.ScoreHistory)
		if !s.shouldContinue(step, score, consecutiveFailures, out) {
			return
		}

		plan, ok := s.plan(ctx, questionText, out)
		if !ok {
			s.log.Debug("planner declined to propose a query", "step", step)
			return
		}

		res := s.validator.Validate(ctx, questionText, plan.Query)
		entry := enrichment.Step{
			StepNumber:   step,
			Query:        res.Query,
			ResultCount:  len(res.Records),
			Purpose:      plan.Purpose,
			InfoType:     plan.InfoType,
			EntityTypes:  plan.EntityTypes,
			WasValidated: res.IsValid,
			Failed:       !res.IsValid,
		}
		out.Steps = append(out.Steps, entry)

		if !res.IsValid || len(res.Records) == 0 {
			consecutiveFailures++
		} else {
			consecutiveFailures = 0
			out.Records = append(out.Records, res.Records...)
		}

		sample := s.scorer.Score(ctx, questionText, out.Records, fmt.Sprintf("enrichment_%d", step))
		out.ScoreHistory = append(out.ScoreHistory, sample)
	}
}

// shouldContinue is the loop's continue predicate, evaluated before each
// step. The step cap narrows as the score rises: weak context justifies
// the full budget, near-threshold context only one more attempt.
func (s *EnrichmentService) shouldContinue(step int, score float64, consecutiveFailures int, out *EnrichmentOutcome) bool {
	if score >= s.cfg.EarlyTermination {
		return false
	}
	if step > s.dynamicCap(score) {
		return false
	}
	if consecutiveFailures >= 2 {
		return false
	}
	if len(out.Records) >= s.cfg.MaxContextSize {
		return false
	}
	firstStep := len(out.Steps) == 0
	if !firstStep && enrichment.Improvement(out.ScoreHistory) < s.cfg.MinScoreImprovement {
		return false
	}
	return true
}

// dynamicCap bounds the number of enrichment steps by current score band.
func (s *EnrichmentService) dynamicCap(score float64) int {
	switch {
	case score < 0.3:
		return s.cfg.MaxQueries
	case score < 0.6:
		return 2
	default:
		return 1
	}
}

// plan asks the model for one supplementary query. An empty query means the
// planner found no new angle; any model failure is treated the same way.
func (s *EnrichmentService) plan(ctx context.Context, questionText string, out *EnrichmentOutcome) (planResponse, bool) {
	raw, err := s.model.Complete(ctx, PurposePlanning,
		planningPrompt(questionText, out.Analysis, out.Records, out.Steps, out.ScoreHistory), dispatch.PriorityNormal)
	if err != nil {
		s.log.Warn("enrichment planning failed", "error", err)
		return planResponse{}, false
	}

	var plan planResponse
	if err := decodeJSONResponse(raw, &plan); err != nil {
		s.log.Warn("malformed planning response", "error", err)
		return planResponse{}, false
	}
	if plan.Query = extractQuery(plan.Query); plan.Query == "" {
		return planResponse{}, false
	}
	return plan, true
}

// synthesize produces the final answer from the accumulated context. On
// failure it retries a simpler one-shot prompt over the main-query context
// only.
func (s *EnrichmentService) synthesize(ctx context.Context, questionText string, out *EnrichmentOutcome, mainRecords []graph.Record) (string, error) {
	text, err := s.model.Complete(ctx, PurposeSynthesis,
		synthesisPrompt(questionText, out.Analysis, out.Records, out.Steps), dispatch.PriorityNormal)
	if err == nil {
		return text, nil
	}
	s.log.Warn("synthesis failed, falling back to one-shot answer", "error", err)

	text, ferr := s.model.Complete(ctx, PurposeSynthesis, simpleSynthesisPrompt(questionText, mainRecords), dispatch.PriorityNormal)
	if ferr != nil {
		return "", fmt.Errorf("synthesis fallback: %w", ferr)
	}
	return text, nil
}

func currentScore(history []enrichment.ScoreSample) float64 {
	if len(history) == 0 {
		return 0
	}
	return history[len(history)-1].Score
}
