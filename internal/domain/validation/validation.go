// Package validation defines the outcome of the query validation pipeline.
package validation

import "github.com/askadmit/askadmit/internal/domain/graph"

// Result is produced once per validation pass and is immutable after
// construction. IsValid=false means repair was exhausted; downstream treats
// that as "no context found", never as a fatal error.
type Result struct {
	Query          string         `json:"query"`
	Records        []graph.Record `json:"-"`
	WasCorrected   bool           `json:"was_corrected"`
	WasOptimized   bool           `json:"was_optimized"`
	SyntaxRetries  int            `json:"syntax_retries"`
	ContextRetries int            `json:"context_retries"`
	IsValid        bool           `json:"is_valid"`
}

// Invalid returns the terminal result for an exhausted repair phase.
func Invalid(query string, syntaxRetries int) Result {
	return Result{
		Query:         query,
		Records:       nil,
		WasCorrected:  syntaxRetries > 0,
		SyntaxRetries: syntaxRetries,
		IsValid:       false,
	}
}
