package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/askadmit/askadmit/internal/dispatch"
	"github.com/askadmit/askadmit/internal/domain/enrichment"
	"github.com/askadmit/askadmit/internal/domain/graph"
)

// ScorerService rates how well a record set supports answering a question.
// It always returns a sample: on any model failure it degrades to a
// heuristic score so the enrichment loop keeps a usable trajectory.
type ScorerService struct {
	model modelCaller
	log   *slog.Logger
}

// NewScorerService creates a ScorerService.
func NewScorerService(model modelCaller, log *slog.Logger) *ScorerService {
	if log == nil {
		log = slog.Default()
	}
	return &ScorerService{model: model, log: log}
}

type scoreResponse struct {
	Score     float64 `json:"score"`
	Reasoning string  `json:"reasoning"`
}

// Score rates the records against the question. The label names the
// pipeline stage for the audit trail ("main_query", "enrichment_2", ...).
func (s *ScorerService) Score(ctx context.Context, questionText string, records []graph.Record, label string) enrichment.ScoreSample {
	raw, err := s.model.Complete(ctx, PurposeScoring, scoringPrompt(questionText, records, label), dispatch.PriorityNormal)
	if err != nil {
		s.log.Warn("context scoring call failed, using heuristic", "stage", label, "error", err)
		return s.heuristic(records, label)
	}

	var resp scoreResponse
	if err := decodeJSONResponse(raw, &resp); err != nil || resp.Score < 0 || resp.Score > 1 {
		s.log.Warn("malformed score response, using heuristic", "stage", label, "error", err, "score", resp.Score)
		return s.heuristic(records, label)
	}
	return enrichment.ScoreSample{
		Score:     resp.Score,
		Reasoning: strings.TrimSpace(resp.Reasoning),
		StepName:  label,
	}
}

// heuristic is the degraded score: some context is worth a conservative
// 0.3, no context scores zero.
func (s *ScorerService) heuristic(records []graph.Record, label string) enrichment.ScoreSample {
	score := 0.0
	if len(records) > 0 {
		score = 0.3
	}
	return enrichment.ScoreSample{
		Score:     score,
		Reasoning: "heuristic score: model response unusable",
		StepName:  label,
	}
}
