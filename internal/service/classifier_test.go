package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/askadmit/askadmit/internal/dispatch"
	"github.com/askadmit/askadmit/internal/domain/question"
)

// fakeModel scripts responses per purpose. A purpose with a pending entry
// in failures errors that many times before consuming queued responses.
type fakeModel struct {
	responses map[string][]string // purpose -> queued responses
	errs      map[string]error
	failures  map[string]int // purpose -> initial failures before responses
	calls     []fakeCall
}

type fakeCall struct {
	purpose  string
	prompt   string
	priority dispatch.Priority
}

func newFakeModel() *fakeModel {
	return &fakeModel{
		responses: make(map[string][]string),
		errs:      make(map[string]error),
		failures:  make(map[string]int),
	}
}

func (f *fakeModel) queue(purpose string, responses ...string) {
	f.responses[purpose] = append(f.responses[purpose], responses...)
}

func (f *fakeModel) fail(purpose string, err error) {
	f.errs[purpose] = err
}

func (f *fakeModel) Complete(_ context.Context, purpose, prompt string, priority dispatch.Priority) (string, error) {
	f.calls = append(f.calls, fakeCall{purpose: purpose, prompt: prompt, priority: priority})
	if err, ok := f.errs[purpose]; ok {
		return "", err
	}
	if f.failures[purpose] > 0 {
		f.failures[purpose]--
		return "", errors.New("scripted failure for " + purpose)
	}
	q := f.responses[purpose]
	if len(q) == 0 {
		return "", errors.New("no scripted response for " + purpose)
	}
	f.responses[purpose] = q[1:]
	return q[0], nil
}

func (f *fakeModel) callsFor(purpose string) int {
	n := 0
	for _, c := range f.calls {
		if c.purpose == purpose {
			n++
		}
	}
	return n
}

func TestClassifyValidResponse(t *testing.T) {
	model := newFakeModel()
	model.queue(PurposeClassification, `{"category":"complex_admission","confidence":0.92,"reasoning":"requires comparing tuition across programs"}`)
	svc := NewClassifierService(model, nil)

	got := svc.Classify(context.Background(), question.Question{Text: "Compare CS and SE tuition"})
	if got.Category != question.CategoryComplex {
		t.Errorf("category = %s, want complex_admission", got.Category)
	}
	if got.Confidence != 0.92 {
		t.Errorf("confidence = %v, want 0.92", got.Confidence)
	}
	if len(model.calls) != 1 || model.calls[0].priority != dispatch.PriorityHigh {
		t.Error("classification must dispatch at high priority")
	}
}

func TestClassifySchemaViolationFallsBack(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"unknown category and out-of-range confidence", `{"category":"unknown_value","confidence":1.2,"reasoning":"x"}`},
		{"negative confidence", `{"category":"off_topic","confidence":-0.1,"reasoning":"x"}`},
		{"empty reasoning", `{"category":"off_topic","confidence":0.9,"reasoning":"  "}`},
		{"not json", `definitely simple`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			model := newFakeModel()
			model.queue(PurposeClassification, tc.raw)
			svc := NewClassifierService(model, nil)

			got := svc.Classify(context.Background(), question.Question{Text: "q"})
			want := question.Fallback()
			if got != want {
				t.Errorf("got %+v, want fallback %+v", got, want)
			}
		})
	}
}

func TestClassifyModelErrorFallsBack(t *testing.T) {
	model := newFakeModel()
	model.fail(PurposeClassification, errors.New("circuit open"))
	svc := NewClassifierService(model, nil)

	got := svc.Classify(context.Background(), question.Question{Text: "q"})
	if got != question.Fallback() {
		t.Errorf("got %+v, want fallback", got)
	}
}

func TestClassifyHistoryInPrompt(t *testing.T) {
	model := newFakeModel()
	model.queue(PurposeClassification, `{"category":"simple_admission","confidence":0.8,"reasoning":"follow-up"}`)
	svc := NewClassifierService(model, nil)

	svc.Classify(context.Background(), question.Question{
		Text:    "And for next year?",
		History: []string{"What is the CS tuition?"},
	})
	if len(model.calls) != 1 {
		t.Fatal("expected one call")
	}
	if !strings.Contains(model.calls[0].prompt, "What is the CS tuition?") {
		t.Error("expected history in classification prompt")
	}
}
