// Package answer defines the engine's output contract: the final answer text
// plus the full tracking bundle handed to the history store.
package answer

import (
	"time"

	"github.com/askadmit/askadmit/internal/domain/enrichment"
	"github.com/askadmit/askadmit/internal/domain/question"
)

// VerificationResult is the post-hoc correctness check of a synthesized
// answer against its retrieved context.
type VerificationResult struct {
	IsVerified  bool     `json:"is_verified"`
	Score       float64  `json:"score"`
	IsCorrect   bool     `json:"is_correct"`
	IsIncorrect bool     `json:"is_incorrect"`
	Reasoning   string   `json:"reasoning"`
	Issues      []string `json:"issues,omitempty"`
	Skipped     bool     `json:"skipped,omitempty"`
	SkipReason  string   `json:"skip_reason,omitempty"`
}

// SkippedVerification returns a result recording that no check ran.
func SkippedVerification(reason string) VerificationResult {
	return VerificationResult{Skipped: true, SkipReason: reason}
}

// ValidationSummary captures the validation pass without carrying the
// retrieved records into storage.
type ValidationSummary struct {
	Query          string `json:"query"`
	RecordCount    int    `json:"record_count"`
	WasCorrected   bool   `json:"was_corrected"`
	WasOptimized   bool   `json:"was_optimized"`
	SyntaxRetries  int    `json:"syntax_retries"`
	ContextRetries int    `json:"context_retries"`
	IsValid        bool   `json:"is_valid"`
}

// Answer is the complete processing outcome for one question: the reply text
// plus the tracking metadata the history store persists.
type Answer struct {
	ID             string                    `json:"id"`
	Question       string                    `json:"question"`
	Text           string                    `json:"text"`
	Classification question.Classification   `json:"classification"`
	Analysis       string                    `json:"analysis,omitempty"`
	Steps          []enrichment.Step         `json:"steps,omitempty"`
	ScoreHistory   []enrichment.ScoreSample  `json:"score_history,omitempty"`
	Validation     ValidationSummary         `json:"validation"`
	Verification   VerificationResult        `json:"verification"`
	Diversity      float64                   `json:"diversity"`
	Degraded       bool                      `json:"degraded,omitempty"`
	ProcessingTime time.Duration             `json:"processing_time"`
	CreatedAt      time.Time                 `json:"created_at"`
}
