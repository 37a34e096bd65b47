package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/askadmit/askadmit/internal/domain/answer"
	"github.com/askadmit/askadmit/internal/domain/question"
	"github.com/askadmit/askadmit/internal/logger"
)

type fakeHistory struct {
	mu    sync.Mutex
	saved []*answer.Answer
}

func (f *fakeHistory) SaveAnswer(_ context.Context, a *answer.Answer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, a)
	return nil
}

func (f *fakeHistory) GetAnswer(_ context.Context, id string) (*answer.Answer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.saved {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, errors.New("not found")
}

type fakePublisher struct {
	mu       sync.Mutex
	subjects []string
}

func (f *fakePublisher) Publish(_ context.Context, subject string, _ []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subjects = append(f.subjects, subject)
	return nil
}

func newEngine(t *testing.T, model *fakeModel, store *fakeGraph, history *fakeHistory, pub *fakePublisher) *EngineService {
	t.Helper()
	validator := newValidator(model, store, validatorConfig())
	scorer := NewScorerService(model, nil)
	enricher := NewEnrichmentService(model, validator, scorer, enrichmentConfig(), nil)
	verifier := NewVerifierService(model, verifierConfig(), nil)
	classifier := NewClassifierService(model, nil)
	return NewEngineService(classifier, validator, scorer, enricher, verifier, model, history, pub, nil)
}

func classificationJSON(category string) string {
	return `{"category":"` + category + `","confidence":0.9,"reasoning":"scripted"}`
}

func TestProcessSimpleQuestion(t *testing.T) {
	model := newFakeModel()
	store := newFakeGraph()
	store.results["MAIN"] = makeRecords(3)
	history := &fakeHistory{}
	pub := &fakePublisher{}

	model.queue(PurposeClassification, classificationJSON("simple_admission"))
	model.queue(PurposeQueryGen, "MAIN")
	model.queue(PurposeSynthesis, longAnswer)
	model.queue(PurposeVerification, `{"score":0.9,"is_correct":true,"reasoning":"ok"}`)

	engine := newEngine(t, model, store, history, pub)
	a := engine.Process(context.Background(), question.Question{Text: "What is the CS tuition?"})

	if a.Text != longAnswer {
		t.Errorf("answer text = %q", a.Text)
	}
	if a.Degraded {
		t.Error("expected non-degraded answer")
	}
	if !a.Validation.IsValid || a.Validation.RecordCount != 3 {
		t.Errorf("validation summary %+v", a.Validation)
	}
	if !a.Verification.IsVerified {
		t.Errorf("expected verified answer, got %+v", a.Verification)
	}
	if len(history.saved) != 1 {
		t.Fatalf("expected 1 persisted answer, got %d", len(history.saved))
	}
	if len(pub.subjects) != 1 || pub.subjects[0] != SubjectAnswered {
		t.Errorf("subjects = %v", pub.subjects)
	}
	if model.callsFor(PurposePlanning) != 0 {
		t.Error("simple path must not run enrichment")
	}
}

func TestProcessComplexQuestion(t *testing.T) {
	model := newFakeModel()
	store := newFakeGraph()
	store.results["MAIN"] = makeRecords(3)
	store.results["ENRICH1"] = makeRecords(2)
	history := &fakeHistory{}
	pub := &fakePublisher{}

	model.queue(PurposeClassification, classificationJSON("complex_admission"))
	model.queue(PurposeAnalysis, `{"intent":"comparison"}`)
	model.queue(PurposeQueryGen, "MAIN")
	model.queue(PurposeScoring, scoreJSON(0.40), scoreJSON(0.85))
	model.queue(PurposePlanning, planJSON("ENRICH1", "deadlines", "Deadline"))
	model.queue(PurposeSynthesis, longAnswer)
	model.queue(PurposeVerification, `{"score":0.8,"is_correct":true,"reasoning":"ok"}`)

	engine := newEngine(t, model, store, history, pub)
	a := engine.Process(context.Background(), question.Question{Text: "Compare programs"})

	if len(a.Steps) != 1 {
		t.Errorf("expected 1 enrichment step, got %d", len(a.Steps))
	}
	if len(a.ScoreHistory) != 2 {
		t.Errorf("expected 2 score samples, got %d", len(a.ScoreHistory))
	}
	if a.Text != longAnswer {
		t.Errorf("answer = %q", a.Text)
	}
	if a.Diversity == 0 {
		t.Error("expected non-zero diversity after an enrichment step")
	}
}

func TestProcessInappropriateQuestion(t *testing.T) {
	model := newFakeModel()
	history := &fakeHistory{}
	model.queue(PurposeClassification, classificationJSON("inappropriate"))

	engine := newEngine(t, model, newFakeGraph(), history, &fakePublisher{})
	a := engine.Process(context.Background(), question.Question{Text: "offensive text"})

	if a.Text != inappropriateReply {
		t.Errorf("answer = %q", a.Text)
	}
	if !a.Verification.Skipped {
		t.Error("refused questions must skip verification")
	}
	if model.callsFor(PurposeQueryGen) != 0 {
		t.Error("refused questions must never reach the graph")
	}
}

func TestProcessOffTopicQuestion(t *testing.T) {
	model := newFakeModel()
	model.queue(PurposeClassification, classificationJSON("off_topic"))

	engine := newEngine(t, model, newFakeGraph(), &fakeHistory{}, &fakePublisher{})
	a := engine.Process(context.Background(), question.Question{Text: "best pizza near campus"})

	if a.Text != offTopicReply {
		t.Errorf("answer = %q", a.Text)
	}
}

func TestProcessDegradedCarriesCorrelationID(t *testing.T) {
	model := newFakeModel()
	store := newFakeGraph()
	store.results["MAIN"] = makeRecords(3)
	pub := &fakePublisher{}

	model.queue(PurposeClassification, classificationJSON("simple_admission"))
	model.queue(PurposeQueryGen, "MAIN")
	model.fail(PurposeSynthesis, errors.New("circuit open"))

	engine := newEngine(t, model, store, &fakeHistory{}, pub)
	ctx := logger.WithCorrelationID(context.Background(), "req-1234")
	a := engine.Process(ctx, question.Question{Text: "q"})

	if !a.Degraded {
		t.Fatal("expected degraded answer")
	}
	if !strings.Contains(a.Text, "req-1234") {
		t.Errorf("degraded reply must carry the correlation id, got %q", a.Text)
	}
	if len(pub.subjects) != 1 || pub.subjects[0] != SubjectDegraded {
		t.Errorf("subjects = %v", pub.subjects)
	}
}

func TestProcessClassifierFallbackStillAnswers(t *testing.T) {
	model := newFakeModel()
	store := newFakeGraph()
	store.results["MAIN"] = makeRecords(2)

	model.queue(PurposeClassification, "not json at all")
	model.queue(PurposeQueryGen, "MAIN")
	model.queue(PurposeSynthesis, longAnswer)
	model.queue(PurposeVerification, `{"score":0.7,"is_correct":true,"reasoning":"ok"}`)

	engine := newEngine(t, model, store, &fakeHistory{}, &fakePublisher{})
	a := engine.Process(context.Background(), question.Question{Text: "q"})

	if a.Classification != question.Fallback() {
		t.Errorf("classification = %+v, want fallback", a.Classification)
	}
	if a.Text != longAnswer {
		t.Errorf("fallback classification must still take the simple path, got %q", a.Text)
	}
}

func TestGetAnswerRoundTrip(t *testing.T) {
	model := newFakeModel()
	store := newFakeGraph()
	store.results["MAIN"] = makeRecords(2)
	history := &fakeHistory{}

	model.queue(PurposeClassification, classificationJSON("simple_admission"))
	model.queue(PurposeQueryGen, "MAIN")
	model.queue(PurposeSynthesis, longAnswer)
	model.queue(PurposeVerification, `{"score":0.9,"is_correct":true,"reasoning":"ok"}`)

	engine := newEngine(t, model, store, history, &fakePublisher{})
	a := engine.Process(context.Background(), question.Question{Text: "q"})

	got, err := engine.GetAnswer(context.Background(), a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != a.ID || got.Text != a.Text {
		t.Errorf("round trip mismatch: %+v vs %+v", got, a)
	}
}
