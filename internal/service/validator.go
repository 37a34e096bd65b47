package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/askadmit/askadmit/internal/config"
	"github.com/askadmit/askadmit/internal/dispatch"
	"github.com/askadmit/askadmit/internal/domain/validation"
	"github.com/askadmit/askadmit/internal/port/graphstore"
)

// ValidatorService turns a candidate graph query into a working one. Phase A
// repairs syntax through bounded model round-trips; Phase B broadens queries
// that execute but return too little context. It never returns an error:
// exhausted repair yields an invalid result with an empty record set, which
// callers treat as "no context found".
type ValidatorService struct {
	model modelCaller
	store graphstore.Store
	cfg   config.Validator
	log   *slog.Logger

	sleep func(ctx context.Context, d time.Duration)
}

// NewValidatorService creates a ValidatorService.
func NewValidatorService(model modelCaller, store graphstore.Store, cfg config.Validator, log *slog.Logger) *ValidatorService {
	if log == nil {
		log = slog.Default()
	}
	return &ValidatorService{
		model: model,
		store: store,
		cfg:   cfg,
		log:   log,
		sleep: func(ctx context.Context, d time.Duration) {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-t.C:
			case <-ctx.Done():
			}
		},
	}
}

// Validate runs the candidate query through syntax repair and, when the
// result set is below the context threshold, through optimization rounds.
func (s *ValidatorService) Validate(ctx context.Context, questionText, candidate string) validation.Result {
	res := s.repair(ctx, questionText, candidate)
	if !res.IsValid {
		return res
	}
	if len(res.Records) >= s.cfg.MinContextThreshold {
		return res
	}
	return s.optimize(ctx, questionText, res)
}

// repair executes the candidate and asks the model to fix it on failure.
// The loop is bounded by total executions; it stops early when the model
// returns the same query or no query at all, since re-executing an
// unchanged query cannot succeed.
func (s *ValidatorService) repair(ctx context.Context, questionText, candidate string) validation.Result {
	query := candidate
	for attempt := 1; attempt <= s.cfg.MaxSyntaxRetries; attempt++ {
		records, err := s.store.Execute(ctx, query, nil)
		if err == nil {
			return validation.Result{
				Query:         query,
				Records:       records,
				WasCorrected:  attempt > 1,
				SyntaxRetries: attempt - 1,
				IsValid:       true,
			}
		}

		s.log.Debug("query execution failed",
			"attempt", attempt,
			"syntax_error", graphstore.IsSyntaxError(err),
			"error", err,
		)
		if attempt == s.cfg.MaxSyntaxRetries {
			break
		}

		raw, merr := s.model.Complete(ctx, PurposeSyntaxFix, syntaxRepairPrompt(questionText, query, err.Error()), dispatch.PriorityNormal)
		if merr != nil {
			s.log.Warn("syntax repair call failed", "attempt", attempt, "error", merr)
			return validation.Invalid(query, attempt-1)
		}
		repaired := extractQuery(raw)
		if repaired == "" || repaired == query {
			s.log.Debug("repair produced no new query, stopping early", "attempt", attempt)
			return validation.Invalid(query, attempt-1)
		}
		query = repaired
	}
	return validation.Invalid(query, s.cfg.MaxSyntaxRetries-1)
}

// optimize asks the model to broaden the query, keeping whichever candidate
// yields strictly more records. Rounds are sequential and separated by a
// fixed delay; the retained record set never shrinks.
func (s *ValidatorService) optimize(ctx context.Context, questionText string, best validation.Result) validation.Result {
	for round := 1; round <= s.cfg.MaxContextRetries; round++ {
		if len(best.Records) >= s.cfg.MinContextThreshold {
			break
		}
		if round > 1 {
			s.sleep(ctx, s.cfg.OptimizeDelay)
		}

		raw, err := s.model.Complete(ctx, PurposeOptimization, optimizationPrompt(questionText, best.Query, len(best.Records)), dispatch.PriorityNormal)
		if err != nil {
			s.log.Warn("optimization call failed", "round", round, "error", err)
			best.ContextRetries = round
			break
		}
		rewrite := extractQuery(raw)
		if rewrite == "" || rewrite == best.Query {
			best.ContextRetries = round
			break
		}

		records, execErr := s.store.Execute(ctx, rewrite, nil)
		best.ContextRetries = round
		if execErr != nil {
			s.log.Debug("optimized query failed, keeping current best", "round", round, "error", execErr)
			continue
		}
		if len(records) > len(best.Records) {
			best.Query = rewrite
			best.Records = records
			best.WasOptimized = true
		}
	}
	return best
}
