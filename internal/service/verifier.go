package service

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"strings"

	"github.com/askadmit/askadmit/internal/config"
	"github.com/askadmit/askadmit/internal/dispatch"
	"github.com/askadmit/askadmit/internal/domain/answer"
	"github.com/askadmit/askadmit/internal/domain/graph"
	"github.com/askadmit/askadmit/internal/domain/question"
)

// Verification modes.
const (
	VerifyPreResponse = "pre_response"
	VerifyPostAsync   = "post_async"
	VerifyBackground  = "background"
)

// VerifierService rates whether a synthesized answer is correct and
// relevant given the retrieved context. Ineligible answers are skipped
// before any model call; a timed-out verification is a skipped result, not
// an error.
type VerifierService struct {
	model modelCaller
	cfg   config.Verification
	log   *slog.Logger

	rand func() float64
}

// NewVerifierService creates a VerifierService.
func NewVerifierService(model modelCaller, cfg config.Verification, log *slog.Logger) *VerifierService {
	if log == nil {
		log = slog.Default()
	}
	return &VerifierService{model: model, cfg: cfg, log: log, rand: rand.Float64}
}

type verifyResponse struct {
	Score     float64  `json:"score"`
	IsCorrect bool     `json:"is_correct"`
	Reasoning string   `json:"reasoning"`
	Issues    []string `json:"issues"`
}

// Verify checks the answer under the configured mode. In pre_response mode
// the model call races a bounded timeout so verification can never stall
// the user-facing response.
func (s *VerifierService) Verify(ctx context.Context, questionText, answerText string, records []graph.Record, category question.Category) answer.VerificationResult {
	if reason, ok := s.ineligible(answerText, category); ok {
		return answer.SkippedVerification(reason)
	}

	switch s.cfg.Mode {
	case VerifyBackground:
		// Verification semantics deferred to the caller's background worker.
		return answer.SkippedVerification("background mode")
	case VerifyPreResponse:
		return s.verifyWithin(ctx, questionText, answerText, records)
	default: // post_async
		return s.call(ctx, questionText, answerText, records)
	}
}

// ineligible pre-filters answers that are not worth a model call.
func (s *VerifierService) ineligible(answerText string, category question.Category) (string, bool) {
	if !category.NeedsGraph() {
		return "category excluded", true
	}
	if len(strings.TrimSpace(answerText)) < s.cfg.MinAnswerLength {
		return "answer too short", true
	}
	if s.cfg.SampleRate < 1 && s.rand() >= s.cfg.SampleRate {
		return "not sampled", true
	}
	return "", false
}

// verifyWithin races the verification call against the configured timeout.
func (s *VerifierService) verifyWithin(ctx context.Context, questionText, answerText string, records []graph.Record) answer.VerificationResult {
	vctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	done := make(chan answer.VerificationResult, 1)
	go func() {
		done <- s.call(vctx, questionText, answerText, records)
	}()

	select {
	case res := <-done:
		return res
	case <-vctx.Done():
		s.log.Warn("verification timed out", "timeout", s.cfg.Timeout.String())
		return answer.SkippedVerification("timeout")
	}
}

func (s *VerifierService) call(ctx context.Context, questionText, answerText string, records []graph.Record) answer.VerificationResult {
	raw, err := s.model.Complete(ctx, PurposeVerification, verificationPrompt(questionText, answerText, records), dispatch.PriorityNormal)
	if err != nil {
		s.log.Warn("verification call failed", "error", err)
		return answer.SkippedVerification("model unavailable")
	}

	var resp verifyResponse
	if err := decodeJSONResponse(raw, &resp); err != nil || resp.Score < 0 || resp.Score > 1 {
		s.log.Warn("malformed verification response", "error", err, "score", resp.Score)
		return answer.SkippedVerification("malformed response")
	}

	return answer.VerificationResult{
		IsVerified:  true,
		Score:       resp.Score,
		IsCorrect:   resp.IsCorrect,
		IsIncorrect: !resp.IsCorrect,
		Reasoning:   strings.TrimSpace(resp.Reasoning),
		Issues:      resp.Issues,
	}
}
