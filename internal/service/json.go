package service

import (
	"encoding/json"
	"errors"
	"strings"
)

var errNoJSON = errors.New("no JSON object in model output")

// decodeJSONResponse unmarshals a JSON object out of raw model output.
// Models routinely wrap their JSON in markdown fences or surround it with
// prose, so the payload is located by its outermost braces rather than
// parsed verbatim.
func decodeJSONResponse(raw string, v any) error {
	payload := strings.TrimSpace(raw)

	if strings.HasPrefix(payload, "```") {
		payload = strings.TrimPrefix(payload, "```json")
		payload = strings.TrimPrefix(payload, "```")
		if idx := strings.LastIndex(payload, "```"); idx >= 0 {
			payload = payload[:idx]
		}
		payload = strings.TrimSpace(payload)
	}

	start := strings.Index(payload, "{")
	end := strings.LastIndex(payload, "}")
	if start < 0 || end <= start {
		return errNoJSON
	}

	return json.Unmarshal([]byte(payload[start:end+1]), v)
}

// extractQuery pulls a bare query string out of model output, stripping
// markdown fences and any leading "cypher" language tag.
func extractQuery(raw string) string {
	q := strings.TrimSpace(raw)
	if strings.HasPrefix(q, "```") {
		q = strings.TrimPrefix(q, "```cypher")
		q = strings.TrimPrefix(q, "```")
		if idx := strings.LastIndex(q, "```"); idx >= 0 {
			q = q[:idx]
		}
		q = strings.TrimSpace(q)
	}
	return q
}
