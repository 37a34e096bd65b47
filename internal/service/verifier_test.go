package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/askadmit/askadmit/internal/config"
	"github.com/askadmit/askadmit/internal/dispatch"
	"github.com/askadmit/askadmit/internal/domain/question"
)

func verifierConfig() config.Verification {
	return config.Verification{
		Mode:            VerifyPreResponse,
		Timeout:         5 * time.Second,
		SampleRate:      1.0,
		MinAnswerLength: 40,
	}
}

const longAnswer = "The computer science program tuition for the coming intake is 12,500 per semester, with scholarships available for top applicants."

func TestVerifyValidResponse(t *testing.T) {
	model := newFakeModel()
	model.queue(PurposeVerification, `{"score":0.9,"is_correct":true,"reasoning":"matches context","issues":[]}`)
	svc := NewVerifierService(model, verifierConfig(), nil)

	res := svc.Verify(context.Background(), "q", longAnswer, makeRecords(3), question.CategorySimple)
	if !res.IsVerified || res.Skipped {
		t.Fatalf("expected verified result, got %+v", res)
	}
	if res.Score != 0.9 || !res.IsCorrect || res.IsIncorrect {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestVerifyIncorrectAnswer(t *testing.T) {
	model := newFakeModel()
	model.queue(PurposeVerification, `{"score":0.2,"is_correct":false,"reasoning":"tuition figure not in context","issues":["unsupported figure"]}`)
	svc := NewVerifierService(model, verifierConfig(), nil)

	res := svc.Verify(context.Background(), "q", longAnswer, makeRecords(3), question.CategoryComplex)
	if !res.IsIncorrect || res.IsCorrect {
		t.Errorf("expected incorrect verdict, got %+v", res)
	}
	if len(res.Issues) != 1 {
		t.Errorf("expected 1 issue, got %v", res.Issues)
	}
}

func TestVerifyEligibilitySkips(t *testing.T) {
	cases := []struct {
		name     string
		answer   string
		category question.Category
		reason   string
	}{
		{"excluded category", longAnswer, question.CategoryOffTopic, "category excluded"},
		{"short answer", "No.", question.CategorySimple, "answer too short"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			model := newFakeModel()
			svc := NewVerifierService(model, verifierConfig(), nil)

			res := svc.Verify(context.Background(), "q", tc.answer, makeRecords(3), tc.category)
			if !res.Skipped || res.SkipReason != tc.reason {
				t.Errorf("got %+v, want skipped with reason %q", res, tc.reason)
			}
			if len(model.calls) != 0 {
				t.Error("ineligible answers must not reach the model")
			}
		})
	}
}

func TestVerifySampleRateSkips(t *testing.T) {
	model := newFakeModel()
	cfg := verifierConfig()
	cfg.SampleRate = 0.5
	svc := NewVerifierService(model, cfg, nil)
	svc.rand = func() float64 { return 0.9 } // above the sample rate

	res := svc.Verify(context.Background(), "q", longAnswer, makeRecords(3), question.CategorySimple)
	if !res.Skipped || res.SkipReason != "not sampled" {
		t.Errorf("got %+v, want skipped not-sampled", res)
	}
	if len(model.calls) != 0 {
		t.Error("unsampled answers must not reach the model")
	}
}

func TestVerifyBackgroundModeSkips(t *testing.T) {
	model := newFakeModel()
	cfg := verifierConfig()
	cfg.Mode = VerifyBackground
	svc := NewVerifierService(model, cfg, nil)

	res := svc.Verify(context.Background(), "q", longAnswer, makeRecords(3), question.CategorySimple)
	if !res.Skipped {
		t.Errorf("background mode must skip, got %+v", res)
	}
}

func TestVerifyPreResponseTimeout(t *testing.T) {
	model := &slowModel{delay: 200 * time.Millisecond}
	cfg := verifierConfig()
	cfg.Timeout = 20 * time.Millisecond
	svc := NewVerifierService(model, cfg, nil)

	start := time.Now()
	res := svc.Verify(context.Background(), "q", longAnswer, makeRecords(3), question.CategorySimple)
	if !res.Skipped || res.SkipReason != "timeout" {
		t.Fatalf("got %+v, want skipped timeout", res)
	}
	if elapsed := time.Since(start); elapsed > 150*time.Millisecond {
		t.Errorf("verification blocked past its timeout: %v", elapsed)
	}
}

func TestVerifyMalformedResponseSkips(t *testing.T) {
	model := newFakeModel()
	model.queue(PurposeVerification, "looks right to me")
	svc := NewVerifierService(model, verifierConfig(), nil)

	res := svc.Verify(context.Background(), "q", longAnswer, makeRecords(3), question.CategorySimple)
	if !res.Skipped || !strings.Contains(res.SkipReason, "malformed") {
		t.Errorf("got %+v, want skipped malformed", res)
	}
}

// slowModel blocks long enough to trip the verification timeout. It ignores
// ctx so the race is decided by the timer, not by call-site error handling.
type slowModel struct {
	delay time.Duration
}

func (m *slowModel) Complete(context.Context, string, string, dispatch.Priority) (string, error) {
	time.Sleep(m.delay)
	return `{"score":0.9,"is_correct":true,"reasoning":"x"}`, nil
}
