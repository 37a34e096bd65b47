package service

import (
	"fmt"
	"strings"

	"github.com/askadmit/askadmit/internal/domain/enrichment"
	"github.com/askadmit/askadmit/internal/domain/graph"
)

// Prompt builders for every model call type. Each one states the expected
// JSON shape inline so malformed replies are a schema violation, not a
// parsing ambiguity.

func classificationPrompt(question string, history []string) string {
	var b strings.Builder
	b.WriteString("You are a triage assistant for a university admissions Q&A service.\n")
	b.WriteString("Classify the user's question into exactly one category:\n")
	b.WriteString("- inappropriate: offensive, harmful, or abusive content\n")
	b.WriteString("- off_topic: unrelated to university admissions\n")
	b.WriteString("- simple_admission: answerable with a single lookup (one fact, one deadline, one fee)\n")
	b.WriteString("- complex_admission: requires combining multiple facts, comparisons, or conditions\n\n")
	if len(history) > 0 {
		b.WriteString("Recent conversation:\n")
		for _, h := range history {
			b.WriteString("- " + h + "\n")
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Question: %s\n\n", question)
	b.WriteString(`Respond with JSON only: {"category": "...", "confidence": 0.0-1.0, "reasoning": "..."}`)
	return b.String()
}

func analysisPrompt(question string) string {
	return fmt.Sprintf(`Analyze this admissions question and identify what information is needed to answer it.

Question: %s

Respond with JSON only: {"intent": "...", "entities": ["..."], "information_needed": ["..."]}`, question)
}

func queryGenPrompt(question, analysis string) string {
	var b strings.Builder
	b.WriteString("Write a single Cypher query against the admissions knowledge graph to answer the question below.\n")
	b.WriteString("Node labels include Major, Program, Tuition, AdmissionYear, Deadline, Requirement, Scholarship.\n\n")
	fmt.Fprintf(&b, "Question: %s\n", question)
	if analysis != "" {
		fmt.Fprintf(&b, "Analysis: %s\n", analysis)
	}
	b.WriteString("\nRespond with the Cypher query only, no explanation.")
	return b.String()
}

func syntaxRepairPrompt(question, query, execError string) string {
	return fmt.Sprintf(`The following Cypher query failed to execute.

Question it should answer: %s

Query:
%s

Execution error:
%s

Fix the query. Respond with the corrected Cypher query only, no explanation.`, question, query, execError)
}

func optimizationPrompt(question, query string, resultCount int) string {
	return fmt.Sprintf(`The following Cypher query executed successfully but returned only %d record(s), which is too few to answer the question well.

Question: %s

Query:
%s

Rewrite the query to broaden the match (relax filters, add OPTIONAL MATCH, widen label or property constraints) while staying relevant to the question. Respond with the rewritten Cypher query only.`, resultCount, question, query)
}

func scoringPrompt(question string, records []graph.Record, label string) string {
	return fmt.Sprintf(`Rate how well the retrieved records below support answering the question. Consider coverage, specificity, and relevance.

Question: %s
Stage: %s

Records:
%s

Respond with JSON only: {"score": 0.0-1.0, "reasoning": "..."}`, question, label, graph.MarshalRecords(records))
}

func planningPrompt(question, analysis string, records []graph.Record, steps []enrichment.Step, history []enrichment.ScoreSample) string {
	var b strings.Builder
	b.WriteString("You are planning one supplementary Cypher query to enrich the context for an admissions question.\n\n")
	fmt.Fprintf(&b, "Question: %s\n", question)
	if analysis != "" {
		fmt.Fprintf(&b, "Analysis: %s\n", analysis)
	}
	fmt.Fprintf(&b, "\nContext so far (%d records, sample):\n%s\n", len(records), graph.MarshalRecords(sampleRecords(records, 5)))
	if len(steps) > 0 {
		b.WriteString("\nPrevious enrichment attempts (do not repeat these query shapes):\n")
		for _, s := range steps {
			status := "ok"
			if s.Failed {
				status = "failed"
			} else if s.ResultCount == 0 {
				status = "empty"
			}
			fmt.Fprintf(&b, "- step %d [%s] info=%s entities=%s: %s\n",
				s.StepNumber, status, s.InfoType, strings.Join(s.EntityTypes, ","), s.Query)
		}
	}
	if len(history) > 0 {
		b.WriteString("\nContext score trend:")
		for _, s := range history {
			fmt.Fprintf(&b, " %.2f", s.Score)
		}
		b.WriteString("\n")
	}
	b.WriteString(`
If a genuinely new angle exists, respond with JSON only:
{"query": "...", "purpose": "...", "info_type": "...", "entity_types": ["..."]}
If no useful supplementary query remains, respond with: {"query": ""}`)
	return b.String()
}

func synthesisPrompt(question, analysis string, records []graph.Record, steps []enrichment.Step) string {
	var b strings.Builder
	b.WriteString("Answer the admissions question below using only the retrieved context. Be specific; if the context does not cover something, say so rather than guessing.\n\n")
	fmt.Fprintf(&b, "Question: %s\n", question)
	if analysis != "" {
		fmt.Fprintf(&b, "Analysis: %s\n", analysis)
	}
	fmt.Fprintf(&b, "\nContext (%d records):\n%s\n", len(records), graph.MarshalRecords(records))
	if len(steps) > 0 {
		fmt.Fprintf(&b, "\nThe context was gathered over %d enrichment step(s):\n", len(steps))
		for _, s := range steps {
			fmt.Fprintf(&b, "- %s (%d records)\n", s.Purpose, s.ResultCount)
		}
	}
	b.WriteString("\nWrite the answer in clear prose for a prospective student.")
	return b.String()
}

func simpleSynthesisPrompt(question string, records []graph.Record) string {
	return fmt.Sprintf(`Answer the admissions question below using only the retrieved context. Be concise and specific.

Question: %s

Context:
%s`, question, graph.MarshalRecords(records))
}

func verificationPrompt(question, answer string, records []graph.Record) string {
	return fmt.Sprintf(`Verify the answer below against the retrieved context.

Question: %s

Answer:
%s

Context:
%s

Respond with JSON only: {"score": 0.0-1.0, "is_correct": true/false, "reasoning": "...", "issues": ["..."]}`, question, answer, graph.MarshalRecords(records))
}

func sampleRecords(records []graph.Record, n int) []graph.Record {
	if len(records) <= n {
		return records
	}
	return records[:n]
}

// Canned user-facing texts for questions that never reach the graph.
const (
	inappropriateReply = "I can only help with questions about university admissions. Please keep the conversation respectful."
	offTopicReply      = "That question is outside what I can help with. I answer questions about university admissions: majors, programs, tuition, deadlines, and requirements."
)

// degradedReply is the last-resort response when every fallback layer has
// failed. The correlation id lets support trace the request in the logs.
func degradedReply(correlationID string) string {
	return fmt.Sprintf("The system is degraded and could not answer your question right now. Please try again later or contact support with reference id %s.", correlationID)
}
