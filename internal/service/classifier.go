package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/askadmit/askadmit/internal/dispatch"
	"github.com/askadmit/askadmit/internal/domain/question"
)

// ClassifierService labels a question into a fixed category set. It never
// fails: any model error or schema violation degrades to the fallback
// classification so the question still gets answered.
type ClassifierService struct {
	model modelCaller
	log   *slog.Logger
}

// NewClassifierService creates a ClassifierService.
func NewClassifierService(model modelCaller, log *slog.Logger) *ClassifierService {
	if log == nil {
		log = slog.Default()
	}
	return &ClassifierService{model: model, log: log}
}

type classificationResponse struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Classify labels the question, consulting recent conversation history for
// disambiguation. Classification is latency-sensitive and dispatches at high
// priority.
func (s *ClassifierService) Classify(ctx context.Context, q question.Question) question.Classification {
	raw, err := s.model.Complete(ctx, PurposeClassification, classificationPrompt(q.Text, q.History), dispatch.PriorityHigh)
	if err != nil {
		s.log.Warn("classification call failed, using fallback", "error", err)
		return question.Fallback()
	}

	var resp classificationResponse
	if err := decodeJSONResponse(raw, &resp); err != nil {
		s.log.Warn("malformed classification response, using fallback", "error", err)
		return question.Fallback()
	}

	c := question.Classification{
		Category:   question.Category(resp.Category),
		Confidence: resp.Confidence,
		Reasoning:  strings.TrimSpace(resp.Reasoning),
	}
	if !c.Category.Valid() || c.Confidence < 0 || c.Confidence > 1 || c.Reasoning == "" {
		s.log.Warn("classification failed schema validation, using fallback",
			"category", resp.Category,
			"confidence", resp.Confidence,
		)
		return question.Fallback()
	}
	return c
}
