// Package enrichment defines the audit trail of the adaptive enrichment loop.
package enrichment

// Step records one supplementary query round. Steps are appended to an
// ordered sequence per question and never mutated afterwards; the sequence
// itself is the audit trail.
type Step struct {
	StepNumber   int      `json:"step_number"`
	Query        string   `json:"query"`
	ResultCount  int      `json:"result_count"`
	Purpose      string   `json:"purpose"`
	InfoType     string   `json:"info_type"`
	EntityTypes  []string `json:"entity_types,omitempty"`
	WasValidated bool     `json:"was_validated"`
	Failed       bool     `json:"failed,omitempty"`
	Skipped      bool     `json:"skipped,omitempty"`
}

// ScoreSample is one context-quality measurement, appended to a per-question
// history list and used to compute improvement deltas.
type ScoreSample struct {
	Score     float64 `json:"score"`
	Reasoning string  `json:"reasoning"`
	StepName  string  `json:"step_name"`
}

// Improvement returns the delta between the two most recent samples.
// With fewer than two samples there is no trend yet and the delta is 0.
func Improvement(history []ScoreSample) float64 {
	if len(history) < 2 {
		return 0
	}
	return history[len(history)-1].Score - history[len(history)-2].Score
}

// Diversity rates how varied the attempted enrichment queries were: the
// fraction of distinct entity types referenced over a fixed catalog size,
// averaged with the fraction of distinct declared information types over
// the number of attempts. Reporting only, never a stopping criterion.
func Diversity(steps []Step, catalogSize int) float64 {
	if len(steps) == 0 || catalogSize <= 0 {
		return 0
	}

	entityTypes := make(map[string]struct{})
	infoTypes := make(map[string]struct{})
	for _, s := range steps {
		for _, et := range s.EntityTypes {
			entityTypes[et] = struct{}{}
		}
		if s.InfoType != "" {
			infoTypes[s.InfoType] = struct{}{}
		}
	}

	entityFrac := float64(len(entityTypes)) / float64(catalogSize)
	if entityFrac > 1 {
		entityFrac = 1
	}
	infoFrac := float64(len(infoTypes)) / float64(len(steps))

	return (entityFrac + infoFrac) / 2
}
