// Package question defines the incoming question model and its classification.
package question

// Category labels a question for routing through the answer pipeline.
type Category string

const (
	CategoryInappropriate Category = "inappropriate"
	CategoryOffTopic      Category = "off_topic"
	CategorySimple        Category = "simple_admission"
	CategoryComplex       Category = "complex_admission"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryInappropriate, CategoryOffTopic, CategorySimple, CategoryComplex:
		return true
	}
	return false
}

// NeedsGraph reports whether questions of this category are answered
// from graph context at all.
func (c Category) NeedsGraph() bool {
	return c == CategorySimple || c == CategoryComplex
}

// Classification is the classifier's verdict for a question.
type Classification struct {
	Category   Category `json:"category"`
	Confidence float64  `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
}

// Fallback returns the safe classification used when the model response
// is missing or fails schema validation.
func Fallback() Classification {
	return Classification{
		Category:   CategorySimple,
		Confidence: 0.5,
		Reasoning:  "fallback classification",
	}
}

// Question is a single natural-language question plus recent chat turns
// used to disambiguate follow-ups.
type Question struct {
	Text    string   `json:"text"`
	History []string `json:"history,omitempty"`
}
