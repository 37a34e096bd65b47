package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/askadmit/askadmit/internal/config"
	"github.com/askadmit/askadmit/internal/domain/question"
)

func enrichmentConfig() config.Enrichment {
	return config.Enrichment{
		MaxQueries:          3,
		MaxContextSize:      50,
		EarlyTermination:    0.8,
		MinScoreImprovement: 0.05,
		EntityCatalogSize:   7,
	}
}

// enrichmentHarness wires the orchestrator with one shared fake model and a
// fake graph so tests script a whole question flow end to end.
func enrichmentHarness(t *testing.T, model *fakeModel, store *fakeGraph) *EnrichmentService {
	t.Helper()
	validator := newValidator(model, store, validatorConfig())
	scorer := NewScorerService(model, nil)
	return NewEnrichmentService(model, validator, scorer, enrichmentConfig(), nil)
}

func scoreJSON(score float64) string {
	return fmt.Sprintf(`{"score":%.2f,"reasoning":"trajectory"}`, score)
}

func planJSON(query, infoType string, entities ...string) string {
	ents := ""
	for i, e := range entities {
		if i > 0 {
			ents += ","
		}
		ents += fmt.Sprintf("%q", e)
	}
	return fmt.Sprintf(`{"query":%q,"purpose":"supplementary lookup","info_type":%q,"entity_types":[%s]}`, query, infoType, ents)
}

func TestAnswerStopsWhenThresholdReached(t *testing.T) {
	model := newFakeModel()
	store := newFakeGraph()
	store.results["MAIN"] = makeRecords(4)

	model.queue(PurposeAnalysis, `{"intent":"tuition lookup"}`)
	model.queue(PurposeQueryGen, "MAIN")
	model.queue(PurposeScoring, scoreJSON(0.85)) // main query already sufficient
	model.queue(PurposeSynthesis, "final answer")

	svc := enrichmentHarness(t, model, store)
	out, err := svc.Answer(context.Background(), question.Question{Text: "q"})
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Steps) != 0 {
		t.Errorf("expected no enrichment steps above threshold, got %d", len(out.Steps))
	}
	if out.Answer != "final answer" {
		t.Errorf("answer = %q", out.Answer)
	}
	if model.callsFor(PurposePlanning) != 0 {
		t.Error("planner must not run once the threshold is reached")
	}
}

func TestAnswerEnrichesUntilImprovementStalls(t *testing.T) {
	model := newFakeModel()
	store := newFakeGraph()
	store.results["MAIN"] = makeRecords(3)
	store.results["ENRICH1"] = makeRecords(2)
	store.results["ENRICH2"] = makeRecords(2)

	model.queue(PurposeAnalysis, `{"intent":"comparison"}`)
	model.queue(PurposeQueryGen, "MAIN")
	model.queue(PurposeScoring, scoreJSON(0.10), scoreJSON(0.16), scoreJSON(0.17))
	model.queue(PurposePlanning,
		planJSON("ENRICH1", "deadlines", "Deadline"),
		planJSON("ENRICH2", "scholarships", "Scholarship"),
		planJSON("ENRICH3", "requirements", "Requirement"), // must never be consumed
	)
	model.queue(PurposeSynthesis, "final answer")

	svc := enrichmentHarness(t, model, store)
	out, err := svc.Answer(context.Background(), question.Question{Text: "q"})
	if err != nil {
		t.Fatal(err)
	}

	// Improvement from 0.16 to 0.17 is below the 0.05 floor, so the loop
	// halts after two steps despite budget remaining.
	if len(out.Steps) != 2 {
		t.Fatalf("expected 2 enrichment steps, got %d", len(out.Steps))
	}
	if model.callsFor(PurposePlanning) != 2 {
		t.Errorf("expected 2 planning calls, got %d", model.callsFor(PurposePlanning))
	}
	if len(out.Records) != 7 {
		t.Errorf("expected 3+2+2 accumulated records, got %d", len(out.Records))
	}
	if len(out.ScoreHistory) != 3 {
		t.Errorf("expected 3 score samples, got %d", len(out.ScoreHistory))
	}
}

func TestAnswerDynamicCapNarrowsWithScore(t *testing.T) {
	model := newFakeModel()
	store := newFakeGraph()
	store.results["MAIN"] = makeRecords(3)
	store.results["ENRICH1"] = makeRecords(2)

	// Main score 0.65: the cap is already 1, so only one step may run even
	// though the score stays under the termination threshold.
	model.queue(PurposeAnalysis, `{"intent":"x"}`)
	model.queue(PurposeQueryGen, "MAIN")
	model.queue(PurposeScoring, scoreJSON(0.65), scoreJSON(0.75))
	model.queue(PurposePlanning, planJSON("ENRICH1", "deadlines", "Deadline"))
	model.queue(PurposeSynthesis, "final answer")

	svc := enrichmentHarness(t, model, store)
	out, err := svc.Answer(context.Background(), question.Question{Text: "q"})
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Steps) != 1 {
		t.Errorf("expected dynamic cap of 1 step at score 0.65, got %d steps", len(out.Steps))
	}
}

func TestAnswerStopsAfterConsecutiveFailures(t *testing.T) {
	model := newFakeModel()
	store := newFakeGraph()
	store.results["MAIN"] = makeRecords(3)
	store.results["EMPTY1"] = makeRecords(0)
	store.results["EMPTY2"] = makeRecords(0)

	model.queue(PurposeAnalysis, `{"intent":"x"}`)
	model.queue(PurposeQueryGen, "MAIN")
	model.queue(PurposeScoring, scoreJSON(0.10), scoreJSON(0.20), scoreJSON(0.28))
	model.queue(PurposePlanning,
		planJSON("EMPTY1", "deadlines", "Deadline"),
		planJSON("EMPTY2", "scholarships", "Scholarship"),
		planJSON("NEVER", "requirements", "Requirement"),
	)
	model.queue(PurposeSynthesis, "final answer")

	svc := enrichmentHarness(t, model, store)
	out, err := svc.Answer(context.Background(), question.Question{Text: "q"})
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Steps) != 2 {
		t.Fatalf("expected loop to stop after 2 empty steps, got %d", len(out.Steps))
	}
	if len(out.Records) != 3 {
		t.Errorf("empty steps must not grow the context, got %d records", len(out.Records))
	}
}

func TestAnswerPlannerDecline(t *testing.T) {
	model := newFakeModel()
	store := newFakeGraph()
	store.results["MAIN"] = makeRecords(3)

	model.queue(PurposeAnalysis, `{"intent":"x"}`)
	model.queue(PurposeQueryGen, "MAIN")
	model.queue(PurposeScoring, scoreJSON(0.10))
	model.queue(PurposePlanning, `{"query":""}`)
	model.queue(PurposeSynthesis, "final answer")

	svc := enrichmentHarness(t, model, store)
	out, err := svc.Answer(context.Background(), question.Question{Text: "q"})
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Steps) != 0 {
		t.Errorf("declined plan must end the loop, got %d steps", len(out.Steps))
	}
}

func TestAnswerSynthesisFallback(t *testing.T) {
	model := newFakeModel()
	store := newFakeGraph()
	store.results["MAIN"] = makeRecords(3)

	model.queue(PurposeAnalysis, `{"intent":"x"}`)
	model.queue(PurposeQueryGen, "MAIN")
	model.queue(PurposeScoring, scoreJSON(0.85))
	// First synthesis errors (no scripted response), second succeeds.
	model.failures = map[string]int{PurposeSynthesis: 1}
	model.queue(PurposeSynthesis, "fallback answer")

	svc := enrichmentHarness(t, model, store)
	out, err := svc.Answer(context.Background(), question.Question{Text: "q"})
	if err != nil {
		t.Fatal(err)
	}
	if out.Answer != "fallback answer" {
		t.Errorf("answer = %q, want fallback answer", out.Answer)
	}
}

func TestAnswerBothSynthesisPathsFail(t *testing.T) {
	model := newFakeModel()
	store := newFakeGraph()
	store.results["MAIN"] = makeRecords(3)

	model.queue(PurposeAnalysis, `{"intent":"x"}`)
	model.queue(PurposeQueryGen, "MAIN")
	model.queue(PurposeScoring, scoreJSON(0.85))
	model.fail(PurposeSynthesis, errors.New("model down"))

	svc := enrichmentHarness(t, model, store)
	_, err := svc.Answer(context.Background(), question.Question{Text: "q"})
	if err == nil {
		t.Fatal("expected error when both synthesis paths fail")
	}
}

func TestAnswerDiversityReported(t *testing.T) {
	model := newFakeModel()
	store := newFakeGraph()
	store.results["MAIN"] = makeRecords(3)
	store.results["ENRICH1"] = makeRecords(2)
	store.results["ENRICH2"] = makeRecords(2)

	model.queue(PurposeAnalysis, `{"intent":"x"}`)
	model.queue(PurposeQueryGen, "MAIN")
	model.queue(PurposeScoring, scoreJSON(0.10), scoreJSON(0.20), scoreJSON(0.28))
	model.queue(PurposePlanning,
		planJSON("ENRICH1", "deadlines", "Deadline"),
		planJSON("ENRICH2", "scholarships", "Scholarship", "Program"),
	)
	model.queue(PurposeSynthesis, "final answer")

	svc := enrichmentHarness(t, model, store)
	out, err := svc.Answer(context.Background(), question.Question{Text: "q"})
	if err != nil {
		t.Fatal(err)
	}
	// 3 distinct entity types / catalog 7, averaged with 2 distinct info
	// types / 2 steps.
	want := (3.0/7.0 + 1.0) / 2.0
	if diff := out.Diversity - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("diversity = %v, want %v", out.Diversity, want)
	}
}
