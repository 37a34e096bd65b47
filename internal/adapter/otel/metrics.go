package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "askadmit"

// Metrics holds all askadmit metric instruments.
type Metrics struct {
	QuestionsProcessed metric.Int64Counter
	QuestionsDegraded  metric.Int64Counter
	ModelCalls         metric.Int64Counter
	CacheHits          metric.Int64Counter
	CircuitOpens       metric.Int64Counter
	EnrichmentSteps    metric.Int64Counter
	ProcessingDuration metric.Float64Histogram
	ContextScore       metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.QuestionsProcessed, err = meter.Int64Counter("askadmit.questions.processed",
		metric.WithDescription("Number of questions processed"))
	if err != nil {
		return nil, err
	}

	m.QuestionsDegraded, err = meter.Int64Counter("askadmit.questions.degraded",
		metric.WithDescription("Number of questions answered with the degraded fallback"))
	if err != nil {
		return nil, err
	}

	m.ModelCalls, err = meter.Int64Counter("askadmit.model.calls",
		metric.WithDescription("Number of model dispatches"))
	if err != nil {
		return nil, err
	}

	m.CacheHits, err = meter.Int64Counter("askadmit.cache.hits",
		metric.WithDescription("Number of response cache hits"))
	if err != nil {
		return nil, err
	}

	m.CircuitOpens, err = meter.Int64Counter("askadmit.circuit.opens",
		metric.WithDescription("Number of calls rejected by an open circuit"))
	if err != nil {
		return nil, err
	}

	m.EnrichmentSteps, err = meter.Int64Counter("askadmit.enrichment.steps",
		metric.WithDescription("Number of enrichment steps executed"))
	if err != nil {
		return nil, err
	}

	m.ProcessingDuration, err = meter.Float64Histogram("askadmit.question.duration_seconds",
		metric.WithDescription("Question processing duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.ContextScore, err = meter.Float64Histogram("askadmit.context.score",
		metric.WithDescription("Final context quality score per question"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
